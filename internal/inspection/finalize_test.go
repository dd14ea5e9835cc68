package inspection

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dcastano/inspectord/internal/bus"
	"github.com/dcastano/inspectord/internal/config"
	"github.com/dcastano/inspectord/internal/domain"
)

func newFinalizer(env *analyzerEnv) *Finalizer {
	return NewFinalizer(env.repo, env.registry, bus.New(), env.cfg)
}

func TestComputeVerdict(t *testing.T) {
	tests := []struct {
		name       string
		damage     int
		missing    int
		colorMatch bool
		verdict    string
		score      float64
	}{
		{"clean", 0, 0, true, domain.VerdictApprove, 1.0},
		{"boundary damage approves", 5, 0, true, domain.VerdictApprove, 0.85},
		{"notable damage", 6, 0, true, domain.VerdictReview, 0.82},
		{"one missing part", 0, 1, true, domain.VerdictReview, 0.9},
		{"color mismatch", 0, 0, false, domain.VerdictReview, 0.9},
		{"severe damage", 16, 0, true, domain.VerdictReject, 0.52},
		{"many missing parts", 0, 3, true, domain.VerdictReject, 0.7},
		{"score floor", 40, 5, false, domain.VerdictReject, 0.05},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := computeVerdict(tt.damage, tt.missing, tt.colorMatch)
			require.Equal(t, tt.verdict, v.Verdict)
			require.InDelta(t, tt.score, v.Score, 1e-9)
		})
	}
}

func TestComputeVerdictConditions(t *testing.T) {
	v := computeVerdict(6, 1, false)
	require.Equal(t, domain.VerdictReview, v.Verdict)
	require.ElementsMatch(t, []string{"notable_damage", "missing_parts", "color_mismatch"}, v.Conditions)

	v = computeVerdict(0, 0, true)
	require.Empty(t, v.Conditions)
}

func TestMergeImagesPartUnion(t *testing.T) {
	images := []domain.ImageRecord{
		{Analysis: &domain.AnalysisResult{
			Parts: map[string]domain.PartPresence{
				"door":   {Present: true, Confidence: 0.4},
				"bumper": {Present: false, Confidence: 0.7},
			},
		}},
		{Analysis: &domain.AnalysisResult{
			Parts: map[string]domain.PartPresence{
				"door":   {Present: true, Confidence: 0.8},
				"bumper": {Present: true, Confidence: 0.7}, // tie, first observation wins
			},
		}},
	}

	m := mergeImages(images)
	require.InDelta(t, 0.8, m.parts["door"].Confidence, 1e-9)
	require.True(t, m.parts["door"].Present)
	require.False(t, m.parts["bumper"].Present)
	require.InDelta(t, 0.7, m.parts["bumper"].Confidence, 1e-9)
}

func TestMergeImagesCollectsEvidence(t *testing.T) {
	images := []domain.ImageRecord{
		{Analysis: &domain.AnalysisResult{
			Damage:          []domain.DamageBox{{Label: "scratch"}},
			Color:           &domain.ColorInfo{Name: "white"},
			Geo:             &domain.GeoPoint{Lat: 1, Lon: 1},
			PlateCandidates: []string{"A123BC"},
			Tamper:          &domain.TamperVerdict{Suspect: true},
		}},
		{Analysis: nil}, // tolerated
		{Analysis: &domain.AnalysisResult{
			Damage:          []domain.DamageBox{{Label: "dent"}},
			Color:           &domain.ColorInfo{Name: "white"},
			PlateCandidates: []string{"A123BC", "X999XX"},
		}},
	}

	m := mergeImages(images)
	require.Len(t, m.damage, 2)
	require.Equal(t, []string{"white", "white"}, m.colors)
	require.Len(t, m.geoPoints, 1)
	require.Equal(t, []string{"A123BC", "X999XX"}, m.plateCandidates)
	require.Equal(t, 1, m.tamperSuspects)
}

func TestFinalizeEmptySession(t *testing.T) {
	env := newAnalyzerEnv(t, testConfig(), nilGPS{})
	f := newFinalizer(env)

	_, err := f.Finalize(context.Background(), "empty", "A123BC", false)
	require.ErrorIs(t, err, ErrEmptySession)
}

func TestFinalizeCompletedWithVerdict(t *testing.T) {
	env := newAnalyzerEnv(t, testConfig(), nilGPS{})
	f := newFinalizer(env)
	ctx := context.Background()

	require.NoError(t, env.repo.UpsertVehicle(ctx, &domain.Vehicle{
		Plate: "A123BC", Brand: "Toyota", Model: "Corolla",
		Year: 2019, Color: "white", VIN: "WVWZZZ1JZXW000001",
	}))
	require.NoError(t, env.registry.SeedDrivers(ctx, 1))

	for i := uint8(0); i < 2; i++ {
		resp, err := env.analyzer.Analyze(ctx, &AnalyzeRequest{
			SessionKey: "sess-1", Plate: "A123BC", Image: sharpPNG(t, i),
		})
		require.NoError(t, err)
		require.False(t, resp.Aborted)
	}

	rec, err := f.Finalize(ctx, "sess-1", "A123BC", false)
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, rec.Status)
	require.NotNil(t, rec.Verdict)
	require.NotEmpty(t, rec.InspectionID)
	require.Equal(t, "A123BC", rec.Plate)
	require.NotNil(t, rec.Vehicle)
	require.Equal(t, "white", rec.Vehicle.Color)
	require.NotNil(t, rec.Driver)
	require.Equal(t, domain.GeoStatusInsufficient, rec.Geo.Status)

	// The record is persisted and readable.
	stored, err := env.repo.GetInspection(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, rec.InspectionID, stored.InspectionID)

	// Finalizing again overwrites with a fresh record.
	again, err := f.Finalize(ctx, "sess-1", "A123BC", false)
	require.NoError(t, err)
	require.Equal(t, rec.Status, again.Status)
	require.NotEqual(t, rec.InspectionID, again.InspectionID)
}

func TestFinalizeClearsSession(t *testing.T) {
	env := newAnalyzerEnv(t, testConfig(), nilGPS{})
	f := newFinalizer(env)
	ctx := context.Background()

	_, err := env.analyzer.Analyze(ctx, &AnalyzeRequest{
		SessionKey: "sess-1", Image: sharpPNG(t, 1),
	})
	require.NoError(t, err)

	_, err = f.Finalize(ctx, "sess-1", "A123BC", true)
	require.NoError(t, err)

	sess, err := env.repo.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	require.Nil(t, sess)

	// The inspection record survives the cleanup.
	stored, err := env.repo.GetInspection(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
}

func TestFinalizeAbortedSessionStatus(t *testing.T) {
	env := newAnalyzerEnv(t, testConfig(), nilGPS{})
	f := newFinalizer(env)
	ctx := context.Background()

	_, err := env.analyzer.Analyze(ctx, &AnalyzeRequest{
		SessionKey: "sess-1", Image: sharpPNG(t, 1),
	})
	require.NoError(t, err)
	require.NoError(t, env.repo.SetAbort(ctx, "sess-1", domain.AbortGeoHardMismatch))

	rec, err := f.Finalize(ctx, "sess-1", "A123BC", false)
	require.NoError(t, err)
	require.Equal(t, "ABORTED_GEO_HARD_MISMATCH", rec.Status)
	require.Nil(t, rec.Verdict)
}

func TestFinalizeGeoFailStatus(t *testing.T) {
	cfg := testConfig()
	// Keep the per-image abort out of the way so finalize sees the spread.
	cfg.GeoAbortAfterWarn = 10
	gps := &queueGPS{points: []*domain.GeoPoint{
		{Lat: 55.7558, Lon: 37.6173},
		{Lat: 59.9311, Lon: 30.3609},
	}}
	env := newAnalyzerEnv(t, cfg, gps)
	f := newFinalizer(env)
	ctx := context.Background()

	for i := uint8(0); i < 2; i++ {
		resp, err := env.analyzer.Analyze(ctx, &AnalyzeRequest{
			SessionKey: "sess-1", Image: sharpPNG(t, i),
		})
		require.NoError(t, err)
		require.False(t, resp.Aborted)
	}

	rec, err := f.Finalize(ctx, "sess-1", "A123BC", false)
	require.NoError(t, err)
	require.Equal(t, domain.StatusFailedGeoMismatch, rec.Status)
	require.Equal(t, domain.GeoStatusFail, rec.Geo.Status)
	require.Nil(t, rec.Verdict)
}

func TestFinalizeMajorityColorFraud(t *testing.T) {
	env := newAnalyzerEnv(t, testConfig(), nilGPS{})
	f := newFinalizer(env)
	ctx := context.Background()

	require.NoError(t, env.repo.UpsertVehicle(ctx, &domain.Vehicle{
		Plate: "A123BC", Brand: "Toyota", Model: "Corolla",
		Year: 2019, Color: "white", VIN: "WVWZZZ1JZXW000001",
	}))

	for i := uint8(0); i < 3; i++ {
		_, err := env.analyzer.Analyze(ctx, &AnalyzeRequest{
			SessionKey: "sess-1", Plate: "A123BC", Image: redPNG(t, i),
		})
		require.NoError(t, err)
	}

	rec, err := f.Finalize(ctx, "sess-1", "A123BC", false)
	require.NoError(t, err)
	require.True(t, rec.ColorFraud.Fraud)
	require.Contains(t, rec.FraudFlags, domain.FlagColorFraud)
	// Under the REVIEW policy the session still completes.
	require.Equal(t, domain.StatusCompleted, rec.Status)
	require.Equal(t, domain.VerdictReview, rec.Verdict.Verdict)
}

func TestFinalizeColorFraudReviewPolicyFlags(t *testing.T) {
	env := newAnalyzerEnv(t, testConfig(), nilGPS{})
	f := newFinalizer(env)
	ctx := context.Background()

	require.NoError(t, env.repo.UpsertVehicle(ctx, &domain.Vehicle{
		Plate: "A123BC", Brand: "Toyota", Model: "Corolla",
		Year: 2019, Color: "white", VIN: "WVWZZZ1JZXW000001",
	}))

	// The per-image color check never ran for this image, so the
	// session-wide majority check is the only place the mismatch surfaces.
	require.NoError(t, env.repo.EnsureSession(ctx, "sess-1"))
	require.NoError(t, env.repo.AppendImage(ctx, "sess-1", &domain.ImageRecord{
		Hash: "h1",
		Analysis: &domain.AnalysisResult{
			Color:   &domain.ColorInfo{Name: "red"},
			Quality: domain.QualityOK,
		},
	}))

	rec, err := f.Finalize(ctx, "sess-1", "A123BC", false)
	require.NoError(t, err)
	require.True(t, rec.ColorFraud.Fraud)
	require.Contains(t, rec.FraudFlags, domain.FlagColorFraud)
	require.Contains(t, rec.ReviewFlags, domain.FlagColorMismatch)
	require.Equal(t, domain.StatusCompleted, rec.Status)
}

func TestFinalizeColorFraudAbortPolicy(t *testing.T) {
	cfg := testConfig()
	cfg.ColorMismatchPolicy = config.ColorPolicyAbort
	env := newAnalyzerEnv(t, cfg, nilGPS{})
	f := newFinalizer(env)
	ctx := context.Background()

	require.NoError(t, env.repo.UpsertVehicle(ctx, &domain.Vehicle{
		Plate: "A123BC", Brand: "Toyota", Model: "Corolla",
		Year: 2019, Color: "white", VIN: "WVWZZZ1JZXW000001",
	}))

	// Store a mismatching image directly so the per-image abort does not
	// fire first; finalize must still detect the majority fraud.
	require.NoError(t, env.repo.EnsureSession(ctx, "sess-1"))
	require.NoError(t, env.repo.AppendImage(ctx, "sess-1", &domain.ImageRecord{
		Hash: "h1",
		Analysis: &domain.AnalysisResult{
			Color:   &domain.ColorInfo{Name: "red"},
			Quality: domain.QualityOK,
		},
	}))

	rec, err := f.Finalize(ctx, "sess-1", "A123BC", false)
	require.NoError(t, err)
	require.True(t, rec.ColorFraud.Fraud)
	require.Equal(t, domain.StatusAbortedColorFraud, rec.Status)
	require.Nil(t, rec.Verdict)
}

func TestFinalizePartCompleteness(t *testing.T) {
	env := newAnalyzerEnv(t, testConfig(), nilGPS{})
	f := newFinalizer(env)
	ctx := context.Background()

	require.NoError(t, env.repo.EnsureSession(ctx, "sess-1"))
	require.NoError(t, env.repo.AppendImage(ctx, "sess-1", &domain.ImageRecord{
		Hash: "h1",
		Analysis: &domain.AnalysisResult{
			Parts: map[string]domain.PartPresence{
				"bonnet": {Present: true, Confidence: 0.9},
				"bumper": {Present: true, Confidence: 0.8},
				"door":   {Present: false, Confidence: 0.2},
			},
			Quality: domain.QualityOK,
		},
	}))

	rec, err := f.Finalize(ctx, "sess-1", "", false)
	require.NoError(t, err)
	require.NotNil(t, rec.PartCompleteness)
	// 2 of the 3 expected parts present.
	require.InDelta(t, 0.667, *rec.PartCompleteness, 1e-9)
	require.Equal(t, []string{"door"}, rec.MissingParts)
}

func TestFinalizeNoPartsOmitsCompleteness(t *testing.T) {
	env := newAnalyzerEnv(t, testConfig(), nilGPS{})
	f := newFinalizer(env)
	ctx := context.Background()

	require.NoError(t, env.repo.EnsureSession(ctx, "sess-1"))
	require.NoError(t, env.repo.AppendImage(ctx, "sess-1", &domain.ImageRecord{
		Hash:     "h1",
		Analysis: &domain.AnalysisResult{Quality: domain.QualityOK},
	}))

	rec, err := f.Finalize(ctx, "sess-1", "", false)
	require.NoError(t, err)
	require.Nil(t, rec.PartCompleteness)
}
