// Package inspection orchestrates per-image analysis and session
// finalization.
package inspection

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"image"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/dcastano/inspectord/internal/bus"
	"github.com/dcastano/inspectord/internal/colorname"
	"github.com/dcastano/inspectord/internal/config"
	"github.com/dcastano/inspectord/internal/detect"
	"github.com/dcastano/inspectord/internal/domain"
	"github.com/dcastano/inspectord/internal/geo"
	"github.com/dcastano/inspectord/internal/metrics"
	"github.com/dcastano/inspectord/internal/registry"
	"github.com/dcastano/inspectord/internal/rules"
	"github.com/dcastano/inspectord/internal/store"
)

// ErrEmptySession is returned by finalize when no images were analyzed.
var ErrEmptySession = errors.New("session has no analyzed images")

// AnalyzeRequest carries one uploaded image plus its client context.
type AnalyzeRequest struct {
	SessionKey string
	Plate      string
	PhotoSlot  string
	Image      []byte
	BrowserGeo *domain.GeoPoint
	Note       string

	// Optional confidence overrides; zero means the configured default.
	ConfDamage float64
	ConfParts  float64
}

// AnalyzeResponse is the per-image result returned to the client. The flag
// sets are the session's cumulative fraud/review flags after this image.
// When the session is or becomes aborted, Analysis may still be present for
// the image that triggered the abort.
type AnalyzeResponse struct {
	SessionKey      string                 `json:"session_key"`
	ImageHash       string                 `json:"image_hash"`
	Cached          bool                   `json:"cached"`
	Aborted         bool                   `json:"aborted"`
	AbortReason     string                 `json:"abort_reason,omitempty"`
	Analysis        *domain.AnalysisResult `json:"analysis,omitempty"`
	RegisteredColor string                 `json:"registered_color,omitempty"`
	ColorMatch      *bool                  `json:"color_match,omitempty"`
	FraudFlags      []string               `json:"fraud_flags"`
	ReviewFlags     []string               `json:"review_flags"`
	ImagesInSession int                    `json:"images_in_session"`
}

// Analyzer runs the analysis pipeline for a single uploaded image.
type Analyzer struct {
	repo     store.Repository
	registry *registry.Registry
	rules    *rules.Engine
	bus      *bus.Bus
	cfg      *config.Config
	det      detect.Detectors
	filter   *detect.CandidateFilter
}

// NewAnalyzer wires the orchestrator.
func NewAnalyzer(repo store.Repository, reg *registry.Registry, engine *rules.Engine,
	eventBus *bus.Bus, cfg *config.Config, det detect.Detectors,
	filter *detect.CandidateFilter) *Analyzer {
	return &Analyzer{
		repo:     repo,
		registry: reg,
		rules:    engine,
		bus:      eventBus,
		cfg:      cfg,
		det:      det,
		filter:   filter,
	}
}

// Analyze processes one image: dedup by content hash, run the detection
// fan-out, apply the consistency checks and configured rules, then persist
// the image with its flags. Session aborts are sticky; once a session is
// aborted every further call short-circuits.
func (a *Analyzer) Analyze(ctx context.Context, req *AnalyzeRequest) (*AnalyzeResponse, error) {
	start := time.Now()
	defer func() {
		metrics.AnalyzeDuration.Observe(time.Since(start).Seconds())
	}()

	a.bus.Broadcast(bus.Event{Name: "analyze:start", SessionKey: req.SessionKey,
		Fields: map[string]any{"photo_slot": req.PhotoSlot}})

	if err := a.repo.EnsureSession(ctx, req.SessionKey); err != nil {
		return nil, err
	}
	sess, err := a.repo.GetSession(ctx, req.SessionKey)
	if err != nil {
		return nil, err
	}
	if sess != nil && sess.Aborted {
		fraud, review, err := a.sessionFlags(ctx, req.SessionKey)
		if err != nil {
			return nil, err
		}
		return &AnalyzeResponse{
			SessionKey:  req.SessionKey,
			Aborted:     true,
			AbortReason: sess.AbortReason,
			FraudFlags:  fraud,
			ReviewFlags: review,
		}, nil
	}

	sum := sha256.Sum256(req.Image)
	hash := hex.EncodeToString(sum[:])

	// The cap applies to every upload, duplicates included, so it is
	// checked before the hash lookup.
	count, err := a.repo.CountImages(ctx, req.SessionKey)
	if err != nil {
		return nil, err
	}
	if count >= a.cfg.MaxImagesPerSession {
		if err := a.repo.SetAbort(ctx, req.SessionKey, domain.AbortTooManyImages); err != nil {
			return nil, err
		}
		metrics.AnalyzeAborts.WithLabelValues(domain.AbortTooManyImages).Inc()
		a.bus.Broadcast(bus.Event{Name: "session:aborted", SessionKey: req.SessionKey,
			Fields: map[string]any{"reason": domain.AbortTooManyImages}})
		fraud, review, err := a.sessionFlags(ctx, req.SessionKey)
		if err != nil {
			return nil, err
		}
		return &AnalyzeResponse{
			SessionKey:      req.SessionKey,
			ImageHash:       hash,
			Aborted:         true,
			AbortReason:     domain.AbortTooManyImages,
			FraudFlags:      unionFlags(fraud, []string{domain.AbortTooManyImages}),
			ReviewFlags:     review,
			ImagesInSession: count,
		}, nil
	}

	if stored, err := a.repo.FindImageByHash(ctx, req.SessionKey, hash); err != nil {
		return nil, err
	} else if stored != nil {
		metrics.AnalyzeCacheHits.Inc()
		fraud, review, err := a.sessionFlags(ctx, req.SessionKey)
		if err != nil {
			return nil, err
		}
		resp := &AnalyzeResponse{
			SessionKey:      req.SessionKey,
			ImageHash:       hash,
			Cached:          true,
			Analysis:        stored.Analysis,
			FraudFlags:      fraud,
			ReviewFlags:     review,
			ImagesInSession: count,
		}
		a.bus.Broadcast(bus.Event{Name: "analyze:result", SessionKey: req.SessionKey,
			Fields: map[string]any{
				"image_hash": hash,
				"cached":     true,
				"aborted":    false,
			}})
		return resp, nil
	}

	decoded, err := detect.Decode(req.Image)
	if err != nil {
		return nil, err
	}

	analysis := a.runDetectors(ctx, req, decoded)

	var fraudFlags, reviewFlags []string
	if analysis.Quality != domain.QualityOK && analysis.Quality != domain.QualityWarn {
		reviewFlags = append(reviewFlags, domain.FlagLowImageQuality)
	}

	abortReason := ""

	// Browser geolocation versus the EXIF coordinate of this image.
	browserDistance := -1.0
	if req.BrowserGeo != nil && analysis.Geo != nil {
		browserDistance = geo.HaversineMeters(*req.BrowserGeo, *analysis.Geo)
		if browserDistance > a.cfg.GeoWarnDistance {
			fraudFlags = append(fraudFlags, domain.FlagGeoBrowserMismatch)
		}
	}

	// This image's coordinate versus everything already in the session.
	// Repeated hard mismatches graduate from review to abort.
	hardMismatch := false
	if analysis.Geo != nil {
		prior, err := a.repo.ListImages(ctx, req.SessionKey)
		if err != nil {
			return nil, err
		}
		for _, img := range prior {
			if img.Analysis == nil || img.Analysis.Geo == nil {
				continue
			}
			if geo.HaversineMeters(*img.Analysis.Geo, *analysis.Geo) > a.cfg.GeoHardDistance {
				hardMismatch = true
				break
			}
		}
		if hardMismatch {
			mismatches, err := a.repo.IncrementGeoMismatch(ctx, req.SessionKey)
			if err != nil {
				return nil, err
			}
			if mismatches >= a.cfg.GeoAbortAfterWarn {
				abortReason = domain.AbortGeoHardMismatch
				fraudFlags = append(fraudFlags, domain.FlagGeoHardMismatch)
			} else {
				reviewFlags = append(reviewFlags, domain.FlagGeoInconsistent)
			}
		}
	}

	// Dominant color versus the registered color.
	colorMismatch := false
	registeredColor := ""
	var colorMatch *bool
	if analysis.Color != nil && req.Plate != "" {
		vehicle, err := a.registry.LookupOrCreateVehicle(ctx, req.Plate)
		if err != nil {
			slog.Warn("Vehicle lookup failed, skipping color check",
				"plate", req.Plate, "error", err)
		} else {
			registeredColor = vehicle.Color
			match := colorname.Match(analysis.Color.Name, vehicle.Color)
			colorMatch = &match
			if !match {
				colorMismatch = true
				if a.cfg.ColorMismatchPolicy == config.ColorPolicyAbort {
					if abortReason == "" {
						abortReason = domain.AbortColorMismatch
					}
					fraudFlags = append(fraudFlags, domain.FlagColorMismatch)
				} else {
					reviewFlags = append(reviewFlags, domain.FlagColorMismatch)
				}
			}
		}
	}

	ruleCtx := rules.Context{
		"damage.count":         float64(len(analysis.Damage)),
		"parts.missing_count":  float64(len(analysis.MissingParts)),
		"geo.browser_distance": browserDistance,
		"geo.hard_mismatch":    hardMismatch,
		"color.mismatch":       colorMismatch,
		"quality.ok":           analysis.Quality == domain.QualityOK,
		"session.images":       float64(count + 1),
	}
	ruleFraud, ruleReview := a.rules.Evaluate(ruleCtx)
	fraudFlags = unionFlags(fraudFlags, ruleFraud)
	reviewFlags = unionFlags(reviewFlags, ruleReview)

	rec := &domain.ImageRecord{
		Hash:        hash,
		PhotoSlot:   req.PhotoSlot,
		Raw:         req.Image,
		Analysis:    analysis,
		FraudFlags:  fraudFlags,
		ReviewFlags: reviewFlags,
		CreatedAt:   time.Now(),
	}
	if err := a.repo.AppendImage(ctx, req.SessionKey, rec); err != nil {
		return nil, err
	}
	for _, f := range fraudFlags {
		if err := a.repo.AddFlag(ctx, req.SessionKey, domain.FlagFraud, f); err != nil {
			return nil, err
		}
	}
	for _, f := range reviewFlags {
		if err := a.repo.AddFlag(ctx, req.SessionKey, domain.FlagReview, f); err != nil {
			return nil, err
		}
	}
	if req.Note != "" {
		if err := a.repo.AddNote(ctx, req.SessionKey, req.Note); err != nil {
			return nil, err
		}
	}

	if abortReason != "" {
		if err := a.repo.SetAbort(ctx, req.SessionKey, abortReason); err != nil {
			return nil, err
		}
		metrics.AnalyzeAborts.WithLabelValues(abortReason).Inc()
		a.bus.Broadcast(bus.Event{Name: "session:aborted", SessionKey: req.SessionKey,
			Fields: map[string]any{"reason": abortReason}})
	}

	allFraud, allReview, err := a.sessionFlags(ctx, req.SessionKey)
	if err != nil {
		return nil, err
	}

	resp := &AnalyzeResponse{
		SessionKey:      req.SessionKey,
		ImageHash:       hash,
		Aborted:         abortReason != "",
		AbortReason:     abortReason,
		Analysis:        analysis,
		RegisteredColor: registeredColor,
		ColorMatch:      colorMatch,
		FraudFlags:      allFraud,
		ReviewFlags:     allReview,
		ImagesInSession: count + 1,
	}
	a.bus.Broadcast(bus.Event{Name: "analyze:result", SessionKey: req.SessionKey,
		Fields: map[string]any{
			"image_hash":   hash,
			"damage_count": len(analysis.Damage),
			"aborted":      resp.Aborted,
		}})
	return resp, nil
}

// sessionFlags loads the session's cumulative fraud and review flag sets.
func (a *Analyzer) sessionFlags(ctx context.Context, sessionKey string) (fraud, review []string, err error) {
	fraud, err = a.repo.ListFlags(ctx, sessionKey, domain.FlagFraud)
	if err != nil {
		return nil, nil, err
	}
	review, err = a.repo.ListFlags(ctx, sessionKey, domain.FlagReview)
	if err != nil {
		return nil, nil, err
	}
	return fraud, review, nil
}

// runDetectors fans out to all detection collaborators concurrently. Any
// detector failure is degraded to an empty result for that modality so one
// unavailable model never fails the whole analysis.
func (a *Analyzer) runDetectors(ctx context.Context, req *AnalyzeRequest, decoded image.Image) *domain.AnalysisResult {
	confDamage := req.ConfDamage
	if confDamage <= 0 {
		confDamage = a.cfg.DefaultConfDamage
	}
	confParts := req.ConfParts
	if confParts <= 0 {
		confParts = a.cfg.DefaultConfParts
	}

	analysis := &domain.AnalysisResult{
		Quality: detect.AssessQuality(decoded),
	}

	run := newFanout()
	run.do(func() {
		boxes, err := a.det.Damage.DetectDamage(ctx, req.Image, confDamage)
		if err != nil {
			slog.Warn("Damage detection failed", "error", err)
			return
		}
		analysis.Damage = boxes
	})
	run.do(func() {
		parts, err := a.det.Parts.DetectParts(ctx, req.Image, confParts)
		if err != nil {
			slog.Warn("Parts detection failed", "error", err)
			return
		}
		// No observations at all means no evidence, not all parts missing.
		if len(parts) > 0 {
			analysis.Parts = parts
			analysis.MissingParts = missingParts(a.cfg.PartLabels, parts)
		}
	})
	run.do(func() {
		color, err := a.det.Color.DominantColor(req.Image)
		if err != nil {
			slog.Warn("Color extraction failed", "error", err)
			return
		}
		analysis.Color = color
	})
	run.do(func() {
		point, err := a.det.GPS.ExtractGPS(req.Image)
		if err != nil {
			slog.Warn("GPS extraction failed", "error", err)
			return
		}
		analysis.Geo = point
	})
	run.do(func() {
		verdict, err := a.det.Tamper.ScoreTamper(ctx, req.Image)
		if err != nil {
			slog.Warn("Tamper scoring failed", "error", err)
			return
		}
		analysis.Tamper = verdict
	})
	if a.cfg.OCRSlotAllowed(req.PhotoSlot) {
		run.do(func() {
			candidates, err := a.det.OCR.ReadText(ctx, req.Image)
			if err != nil {
				slog.Warn("OCR failed", "error", err)
				return
			}
			analysis.OCR = candidates
			analysis.PlateCandidates = a.filter.PlateCandidates(candidates)
			analysis.VINCandidates = a.filter.VINCandidates(candidates)
		})
	}
	run.wait()

	if analysis.Damage == nil {
		analysis.Damage = []domain.DamageBox{}
	}
	if analysis.MissingParts == nil && analysis.Parts != nil {
		analysis.MissingParts = []string{}
	}
	return analysis
}

func missingParts(expected []string, observed map[string]domain.PartPresence) []string {
	missing := make([]string, 0)
	for _, label := range expected {
		if p, ok := observed[label]; !ok || !p.Present {
			missing = append(missing, label)
		}
	}
	return missing
}

// unionFlags merges b into a keeping first-seen order without duplicates.
func unionFlags(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(a, b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// fanout runs independent detector calls concurrently. Each closure writes
// to a distinct field, so no locking beyond the WaitGroup is needed.
type fanout struct {
	wg sync.WaitGroup
}

func newFanout() *fanout {
	return &fanout{}
}

func (f *fanout) do(fn func()) {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		fn()
	}()
}

func (f *fanout) wait() {
	f.wg.Wait()
}
