package inspection

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dcastano/inspectord/internal/bus"
	"github.com/dcastano/inspectord/internal/colorname"
	"github.com/dcastano/inspectord/internal/config"
	"github.com/dcastano/inspectord/internal/domain"
	"github.com/dcastano/inspectord/internal/geo"
	"github.com/dcastano/inspectord/internal/metrics"
	"github.com/dcastano/inspectord/internal/registry"
	"github.com/dcastano/inspectord/internal/store"
)

// Verdict thresholds over the merged session evidence.
const (
	rejectDamageCount  = 15
	rejectMissingParts = 2
	reviewDamageCount  = 5
)

// Finalizer aggregates a session's per-image results into one immutable
// inspection record.
type Finalizer struct {
	repo     store.Repository
	registry *registry.Registry
	bus      *bus.Bus
	cfg      *config.Config
}

// NewFinalizer wires the aggregation step.
func NewFinalizer(repo store.Repository, reg *registry.Registry, eventBus *bus.Bus, cfg *config.Config) *Finalizer {
	return &Finalizer{repo: repo, registry: reg, bus: eventBus, cfg: cfg}
}

// Finalize merges every analyzed image of the session, evaluates the
// session-wide checks (majority color fraud, geo consistency), decides the
// terminal status and verdict, and persists the record. Finalizing the same
// session twice overwrites the previous record. When clear is true the
// accumulated session state is deleted after the record is stored.
func (f *Finalizer) Finalize(ctx context.Context, sessionKey, plate string, clear bool) (*domain.InspectionRecord, error) {
	images, err := f.repo.ListImages(ctx, sessionKey)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, ErrEmptySession
	}

	sess, err := f.repo.GetSession(ctx, sessionKey)
	if err != nil {
		return nil, err
	}

	plate = registry.NormalizePlate(plate)
	var vehicle *domain.Vehicle
	if plate != "" {
		vehicle, err = f.registry.LookupOrCreateVehicle(ctx, plate)
		if err != nil {
			return nil, fmt.Errorf("resolve vehicle: %w", err)
		}
	}
	driver, err := f.registry.AnyDriver(ctx)
	if err != nil {
		slog.Warn("Driver lookup failed", "error", err)
	}

	merged := mergeImages(images)

	registeredColor := ""
	if vehicle != nil {
		registeredColor = vehicle.Color
	}
	colorFraud := colorname.MajorityFraud(registeredColor, merged.colors, f.cfg.ColorFraudRatio)
	if colorFraud.Fraud {
		if err := f.repo.AddFlag(ctx, sessionKey, domain.FlagFraud, domain.FlagColorFraud); err != nil {
			return nil, err
		}
		// The mismatch policy applies here the same way it does per image:
		// REVIEW marks the session for review, ABORT decides the terminal
		// status below.
		if f.cfg.ColorMismatchPolicy == config.ColorPolicyReview {
			if err := f.repo.AddFlag(ctx, sessionKey, domain.FlagReview, domain.FlagColorMismatch); err != nil {
				return nil, err
			}
		}
	}

	geoEval := geo.Evaluate(merged.geoPoints, f.cfg.GeoWarnDistance, f.cfg.GeoHardDistance)

	fraudFlags, err := f.repo.ListFlags(ctx, sessionKey, domain.FlagFraud)
	if err != nil {
		return nil, err
	}
	reviewFlags, err := f.repo.ListFlags(ctx, sessionKey, domain.FlagReview)
	if err != nil {
		return nil, err
	}
	notes, err := f.repo.ListNotes(ctx, sessionKey)
	if err != nil {
		return nil, err
	}

	rec := &domain.InspectionRecord{
		InspectionID:        uuid.New().String(),
		SessionKey:          sessionKey,
		Plate:               plate,
		Timestamp:           time.Now().UTC(),
		Damage:              merged.damage,
		Parts:               merged.parts,
		MissingParts:        []string{},
		Colors:              domain.ColorSummary{Consensus: colorname.Consensus(merged.colors), All: merged.colors},
		ColorFraud:          colorFraud,
		Geo:                 geoEval,
		FraudFlags:          fraudFlags,
		ReviewFlags:         reviewFlags,
		Notes:               notes,
		PlateCandidates:     merged.plateCandidates,
		VINCandidates:       merged.vinCandidates,
		TamperSuspectImages: merged.tamperSuspects,
		Thresholds: domain.Thresholds{
			Damage: f.cfg.DefaultConfDamage,
			Parts:  f.cfg.DefaultConfParts,
		},
		Vehicle: vehicle,
		Driver:  driver,
	}
	// Part evidence only counts when the detector actually observed parts;
	// a session with no parts data has neither missing parts nor a
	// completeness figure.
	if len(merged.parts) > 0 {
		rec.MissingParts = missingParts(f.cfg.PartLabels, merged.parts)
		present := 0
		for _, p := range merged.parts {
			if p.Present {
				present++
			}
		}
		completeness := round3(float64(present) / float64(len(f.cfg.PartLabels)))
		rec.PartCompleteness = &completeness
	}

	// Terminal status precedence: an existing abort wins, then color fraud
	// under the ABORT policy, then a failed geo evaluation. Only a fully
	// completed inspection gets a verdict.
	switch {
	case sess != nil && sess.Aborted:
		rec.Status = domain.StatusAbortedPrefix + sess.AbortReason
	case colorFraud.Fraud && f.cfg.ColorMismatchPolicy == config.ColorPolicyAbort:
		rec.Status = domain.StatusAbortedColorFraud
	case geoEval.Status == domain.GeoStatusFail:
		rec.Status = domain.StatusFailedGeoMismatch
	default:
		rec.Status = domain.StatusCompleted
		rec.Verdict = computeVerdict(len(merged.damage), len(rec.MissingParts), !colorFraud.Fraud)
	}

	if err := f.repo.UpsertInspection(ctx, rec); err != nil {
		return nil, err
	}
	metrics.Finalizations.WithLabelValues(rec.Status).Inc()

	if clear {
		if err := f.repo.ClearSession(ctx, sessionKey); err != nil {
			return nil, fmt.Errorf("clear session: %w", err)
		}
	}

	f.bus.Broadcast(bus.Event{Name: "finalize:done", SessionKey: sessionKey,
		Fields: map[string]any{
			"inspection_id": rec.InspectionID,
			"status":        rec.Status,
		}})
	return rec, nil
}

type mergedEvidence struct {
	damage          []domain.DamageBox
	parts           map[string]domain.PartPresence
	colors          []string
	geoPoints       []domain.GeoPoint
	plateCandidates []string
	vinCandidates   []string
	tamperSuspects  int
}

// mergeImages folds all per-image analyses into session-wide evidence.
// Damage detections concatenate; per-part presence keeps the observation
// with the highest confidence, first seen winning ties.
func mergeImages(images []domain.ImageRecord) *mergedEvidence {
	m := &mergedEvidence{
		damage: []domain.DamageBox{},
		parts:  make(map[string]domain.PartPresence),
		colors: []string{},
	}
	for _, img := range images {
		a := img.Analysis
		if a == nil {
			continue
		}
		m.damage = append(m.damage, a.Damage...)
		for label, p := range a.Parts {
			if prev, ok := m.parts[label]; !ok || p.Confidence > prev.Confidence {
				m.parts[label] = p
			}
		}
		if a.Color != nil {
			m.colors = append(m.colors, a.Color.Name)
		}
		if a.Geo != nil {
			m.geoPoints = append(m.geoPoints, *a.Geo)
		}
		m.plateCandidates = unionFlags(m.plateCandidates, a.PlateCandidates)
		m.vinCandidates = unionFlags(m.vinCandidates, a.VINCandidates)
		if a.Tamper != nil && a.Tamper.Suspect {
			m.tamperSuspects++
		}
	}
	return m
}

// computeVerdict grades the merged evidence. The score is a confidence
// proxy, not a probability: it decays with damage and missing parts and is
// floored at 0.05.
func computeVerdict(damageCount, missingCount int, colorMatch bool) *domain.Verdict {
	var conditions []string
	verdict := domain.VerdictApprove

	switch {
	case damageCount > rejectDamageCount || missingCount > rejectMissingParts:
		verdict = domain.VerdictReject
		if damageCount > rejectDamageCount {
			conditions = append(conditions, "severe_damage")
		}
		if missingCount > rejectMissingParts {
			conditions = append(conditions, "multiple_missing_parts")
		}
	case damageCount > reviewDamageCount || missingCount > 0 || !colorMatch:
		verdict = domain.VerdictReview
		if damageCount > reviewDamageCount {
			conditions = append(conditions, "notable_damage")
		}
		if missingCount > 0 {
			conditions = append(conditions, "missing_parts")
		}
		if !colorMatch {
			conditions = append(conditions, "color_mismatch")
		}
	}

	penalty := 1.0 - 0.03*float64(damageCount) - 0.1*float64(missingCount)
	if !colorMatch {
		penalty -= 0.1
	}
	if penalty < 0.05 {
		penalty = 0.05
	}
	return &domain.Verdict{
		Verdict:    verdict,
		Score:      round3(penalty),
		Conditions: conditions,
	}
}
