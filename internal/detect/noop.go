package detect

import (
	"context"

	"github.com/dcastano/inspectord/internal/domain"
)

// NoopModels stands in for the model-backed collaborators when no model
// server is configured. Every call succeeds with an empty result, so the
// rest of the pipeline (color, geo, quality, rules) still runs.
type NoopModels struct{}

// DetectDamage implements DamageDetector.
func (NoopModels) DetectDamage(context.Context, []byte, float64) ([]domain.DamageBox, error) {
	return nil, nil
}

// DetectParts implements PartsDetector.
func (NoopModels) DetectParts(context.Context, []byte, float64) (map[string]domain.PartPresence, error) {
	return nil, nil
}

// ReadText implements OCRReader.
func (NoopModels) ReadText(context.Context, []byte) ([]domain.OCRCandidate, error) {
	return nil, nil
}

// ScoreTamper implements TamperScorer.
func (NoopModels) ScoreTamper(context.Context, []byte) (*domain.TamperVerdict, error) {
	return nil, nil
}
