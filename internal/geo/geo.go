// Package geo evaluates geolocation consistency across a session's images.
package geo

import (
	"math"

	"github.com/dcastano/inspectord/internal/domain"
)

const earthRadiusMeters = 6371000

// HaversineMeters returns the great-circle distance between two points.
func HaversineMeters(a, b domain.GeoPoint) float64 {
	dLat := radians(b.Lat - a.Lat)
	dLon := radians(b.Lon - a.Lon)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(a.Lat))*math.Cos(radians(b.Lat))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusMeters * c
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Evaluate computes pairwise distance statistics over all collected points
// and grades them: INSUFFICIENT with fewer than two points, FAIL beyond the
// hard threshold, WARN beyond the warn threshold, OK otherwise.
func Evaluate(points []domain.GeoPoint, warnDist, hardDist float64) domain.GeoEvaluation {
	eval := domain.GeoEvaluation{
		Status: domain.GeoStatusOK,
		Points: len(points),
	}
	if len(points) < 2 {
		eval.Status = domain.GeoStatusInsufficient
		return eval
	}

	minDist := math.MaxFloat64
	for i := 0; i < len(points); i++ {
		for j := i + 1; j < len(points); j++ {
			d := HaversineMeters(points[i], points[j])
			if d > eval.MaxDistance {
				eval.MaxDistance = d
			}
			if d < minDist {
				minDist = d
			}
			eval.Pairs++
		}
	}
	eval.MinDistance = minDist
	eval.MaxDistance = round2(eval.MaxDistance)
	eval.MinDistance = round2(eval.MinDistance)

	switch {
	case eval.MaxDistance > hardDist:
		eval.Status = domain.GeoStatusFail
		eval.Flags = append(eval.Flags, domain.FlagGeoHardMismatch)
	case eval.MaxDistance > warnDist:
		eval.Status = domain.GeoStatusWarn
		eval.Flags = append(eval.Flags, domain.FlagGeoInconsistent)
	}
	return eval
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
