// Package detect defines the detection-collaborator contracts consumed by
// the analysis orchestrator, plus the local extractors (dominant color,
// EXIF GPS, quality) that run in-process. Model-backed collaborators
// (damage, parts, OCR, tamper) are external: they are invoked as pure,
// stateless calls and any failure degrades to an empty result upstream.
package detect

import (
	"bytes"
	"context"
	"errors"
	"image"

	// Register the decoders for the upload formats we accept.
	_ "image/jpeg"
	_ "image/png"

	"github.com/dcastano/inspectord/internal/domain"
)

// ErrBadImage marks bytes that cannot be decoded as an image. This is a
// client error: it is rejected before any detector runs.
var ErrBadImage = errors.New("image cannot be decoded")

// DamageDetector finds damage boxes above the confidence threshold.
type DamageDetector interface {
	DetectDamage(ctx context.Context, img []byte, confidence float64) ([]domain.DamageBox, error)
}

// PartsDetector reports presence of the expected vehicle parts.
type PartsDetector interface {
	DetectParts(ctx context.Context, img []byte, confidence float64) (map[string]domain.PartPresence, error)
}

// OCRReader extracts text candidates from an image.
type OCRReader interface {
	ReadText(ctx context.Context, img []byte) ([]domain.OCRCandidate, error)
}

// TamperScorer runs forensic tamper analysis.
type TamperScorer interface {
	ScoreTamper(ctx context.Context, img []byte) (*domain.TamperVerdict, error)
}

// ColorExtractor returns the dominant color of an image, or nil when none
// can be determined.
type ColorExtractor interface {
	DominantColor(img []byte) (*domain.ColorInfo, error)
}

// GPSExtractor parses an embedded GPS coordinate, or nil when absent.
type GPSExtractor interface {
	ExtractGPS(img []byte) (*domain.GeoPoint, error)
}

// Detectors bundles every collaborator the orchestrator fans out to.
type Detectors struct {
	Damage DamageDetector
	Parts  PartsDetector
	OCR    OCRReader
	Tamper TamperScorer
	Color  ColorExtractor
	GPS    GPSExtractor
}

// Decode parses image bytes, returning ErrBadImage for anything that is
// not a decodable JPEG or PNG.
func Decode(img []byte) (image.Image, error) {
	decoded, _, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return nil, ErrBadImage
	}
	return decoded, nil
}
