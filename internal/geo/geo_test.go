package geo

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dcastano/inspectord/internal/domain"
)

func TestHaversineMeters(t *testing.T) {
	// Paris to London, roughly 344 km.
	paris := domain.GeoPoint{Lat: 48.8566, Lon: 2.3522}
	london := domain.GeoPoint{Lat: 51.5074, Lon: -0.1278}

	d := HaversineMeters(paris, london)
	require.InDelta(t, 343500, d, 2000)

	require.Zero(t, HaversineMeters(paris, paris))
}

func TestHaversineShortDistance(t *testing.T) {
	a := domain.GeoPoint{Lat: 55.7558, Lon: 37.6173}
	// Roughly 111 meters north.
	b := domain.GeoPoint{Lat: 55.7568, Lon: 37.6173}

	d := HaversineMeters(a, b)
	require.InDelta(t, 111, d, 2)
}

func TestEvaluateInsufficient(t *testing.T) {
	eval := Evaluate(nil, 300, 1000)
	require.Equal(t, domain.GeoStatusInsufficient, eval.Status)
	require.Zero(t, eval.Pairs)

	eval = Evaluate([]domain.GeoPoint{{Lat: 1, Lon: 1}}, 300, 1000)
	require.Equal(t, domain.GeoStatusInsufficient, eval.Status)
	require.Equal(t, 1, eval.Points)
}

func TestEvaluateOK(t *testing.T) {
	points := []domain.GeoPoint{
		{Lat: 55.7558, Lon: 37.6173},
		{Lat: 55.7559, Lon: 37.6174},
	}
	eval := Evaluate(points, 300, 1000)
	require.Equal(t, domain.GeoStatusOK, eval.Status)
	require.Equal(t, 1, eval.Pairs)
	require.Empty(t, eval.Flags)
	require.Less(t, eval.MaxDistance, 300.0)
}

func TestEvaluateWarn(t *testing.T) {
	points := []domain.GeoPoint{
		{Lat: 55.7558, Lon: 37.6173},
		// Roughly 550 meters away.
		{Lat: 55.7608, Lon: 37.6173},
	}
	eval := Evaluate(points, 300, 1000)
	require.Equal(t, domain.GeoStatusWarn, eval.Status)
	require.Contains(t, eval.Flags, domain.FlagGeoInconsistent)
}

func TestEvaluateFail(t *testing.T) {
	points := []domain.GeoPoint{
		{Lat: 55.7558, Lon: 37.6173},
		{Lat: 55.7559, Lon: 37.6174},
		// A different city entirely.
		{Lat: 59.9311, Lon: 30.3609},
	}
	eval := Evaluate(points, 300, 1000)
	require.Equal(t, domain.GeoStatusFail, eval.Status)
	require.Equal(t, 3, eval.Pairs)
	require.Contains(t, eval.Flags, domain.FlagGeoHardMismatch)
	require.Greater(t, eval.MaxDistance, 1000.0)
}
