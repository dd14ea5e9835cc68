package domain

import "time"

// Abort reasons recorded on a session. Always machine-readable tokens.
const (
	AbortTooManyImages   = "TOO_MANY_IMAGES"
	AbortGeoHardMismatch = "GEO_HARD_MISMATCH"
	AbortColorMismatch   = "COLOR_MISMATCH"
)

// Flag names attached by the consistency checks.
const (
	FlagGeoBrowserMismatch = "GEO_BROWSER_MISMATCH"
	FlagGeoHardMismatch    = "GEO_HARD_MISMATCH"
	FlagGeoInconsistent    = "GEO_INCONSISTENT"
	FlagColorMismatch      = "COLOR_MISMATCH"
	FlagColorFraud         = "COLOR_FRAUD"
	FlagLowImageQuality    = "LOW_IMAGE_QUALITY"
)

// FlagKind separates high-confidence fraud signals from review signals.
type FlagKind string

const (
	FlagFraud  FlagKind = "fraud"
	FlagReview FlagKind = "review"
)

// Session is the accumulated server-side state for one inspection visit.
// Once Aborted is set it is sticky: further analyze calls short-circuit.
type Session struct {
	Key              string    `json:"session_key"`
	Aborted          bool      `json:"aborted"`
	AbortReason      string    `json:"abort_reason,omitempty"`
	GeoMismatchCount int       `json:"geo_mismatch_count"`
	CreatedAt        time.Time `json:"created_at"`
}

// Vehicle is a registry record resolved by plate.
type Vehicle struct {
	Plate     string    `json:"plate"`
	Brand     string    `json:"brand"`
	Model     string    `json:"model"`
	Year      int       `json:"year"`
	Color     string    `json:"color"`
	VIN       string    `json:"vin"`
	CreatedAt time.Time `json:"created_at"`
}

// Driver is a registry record for the person presenting the vehicle.
type Driver struct {
	DriverID        string  `json:"driver_id"`
	Name            string  `json:"name"`
	LicenseCategory string  `json:"license_category"`
	YearsExperience int     `json:"years_experience"`
	RiskFactor      float64 `json:"risk_factor"`
}
