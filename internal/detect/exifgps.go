package detect

import (
	"bytes"
	"math"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/dcastano/inspectord/internal/domain"
)

// ExifGPSExtractor reads the GPS coordinate embedded in image EXIF data.
type ExifGPSExtractor struct{}

// ExtractGPS implements GPSExtractor. Images without EXIF, or without a
// usable GPS block, yield nil without error: an absent signal is a normal
// outcome, not a degradation.
func (ExifGPSExtractor) ExtractGPS(img []byte) (*domain.GeoPoint, error) {
	meta, err := exif.Decode(bytes.NewReader(img))
	if err != nil {
		return nil, nil
	}
	lat, lon, err := meta.LatLong()
	if err != nil {
		return nil, nil
	}
	return &domain.GeoPoint{
		Lat: round7(lat),
		Lon: round7(lon),
	}, nil
}

func round7(v float64) float64 {
	return math.Round(v*1e7) / 1e7
}
