package domain

import "time"

// Verdict decisions.
const (
	VerdictApprove = "APPROVE"
	VerdictReview  = "REVIEW"
	VerdictReject  = "REJECT"
)

// Terminal statuses of a finalized inspection.
const (
	StatusCompleted         = "COMPLETED"
	StatusFailedGeoMismatch = "FAILED_GEO_MISMATCH"
	StatusAbortedPrefix     = "ABORTED_"
	StatusAbortedColorFraud = "ABORTED_COLOR_FRAUD"
)

// Geo evaluation statuses.
const (
	GeoStatusOK           = "OK"
	GeoStatusWarn         = "WARN"
	GeoStatusFail         = "FAIL"
	GeoStatusInsufficient = "INSUFFICIENT"
)

// Verdict is the APPROVE/REVIEW/REJECT decision with a confidence proxy
// score and human-readable conditions. Only computed on the COMPLETED path.
type Verdict struct {
	Verdict    string   `json:"verdict"`
	Score      float64  `json:"score"`
	Conditions []string `json:"conditions,omitempty"`
}

// ColorFraudResult is the majority color-fraud evaluation over all images.
// Absence of data is never fraud; Reason says why when Fraud is false.
type ColorFraudResult struct {
	Fraud         bool    `json:"fraud"`
	Reason        string  `json:"reason"`
	MismatchRatio float64 `json:"mismatch_ratio"`
	Registered    string  `json:"registered,omitempty"`
	Samples       int     `json:"samples"`
}

// GeoEvaluation summarizes pairwise distances between all GPS points
// collected across a session.
type GeoEvaluation struct {
	Status      string   `json:"status"`
	MaxDistance float64  `json:"max_dist"`
	MinDistance float64  `json:"min_dist"`
	Points      int      `json:"points"`
	Pairs       int      `json:"pairs"`
	Flags       []string `json:"flags,omitempty"`
}

// ColorSummary aggregates per-image dominant color observations.
type ColorSummary struct {
	Consensus string   `json:"consensus,omitempty"`
	All       []string `json:"all"`
}

// Thresholds are the detection confidences the session was analyzed with.
type Thresholds struct {
	Damage float64 `json:"damage"`
	Parts  float64 `json:"parts"`
}

// InspectionRecord is the immutable output of finalize, persisted keyed by
// session with upsert semantics.
type InspectionRecord struct {
	InspectionID        string                  `json:"inspection_id"`
	SessionKey          string                  `json:"session_key"`
	Plate               string                  `json:"plate"`
	Timestamp           time.Time               `json:"timestamp"`
	Damage              []DamageBox             `json:"damage_detections"`
	Parts               map[string]PartPresence `json:"parts_presence"`
	MissingParts        []string                `json:"missing_parts"`
	Colors              ColorSummary            `json:"colors"`
	ColorFraud          ColorFraudResult        `json:"color_fraud"`
	Geo                 GeoEvaluation           `json:"geo"`
	Verdict             *Verdict                `json:"verdict,omitempty"`
	Status              string                  `json:"status"`
	FraudFlags          []string                `json:"fraud_flags"`
	ReviewFlags         []string                `json:"review_flags"`
	Notes               []string                `json:"notes"`
	PlateCandidates     []string                `json:"plate_candidates,omitempty"`
	VINCandidates       []string                `json:"vin_candidates,omitempty"`
	TamperSuspectImages int                     `json:"tamper_suspect_images"`
	PartCompleteness    *float64                `json:"part_completeness,omitempty"`
	Thresholds          Thresholds              `json:"thresholds"`
	Vehicle             *Vehicle                `json:"vehicle,omitempty"`
	Driver              *Driver                 `json:"driver,omitempty"`
}
