// Package domain contains core domain types for the inspection service.
package domain

import "time"

// QualityStatus classifies the sharpness/contrast of an uploaded image.
type QualityStatus string

const (
	QualityOK       QualityStatus = "ok"
	QualityWarn     QualityStatus = "warn"
	QualityBlur     QualityStatus = "blur"
	QualityVeryBlur QualityStatus = "very_blur"
)

// Box is a bounding box as [x1, y1, x2, y2] in pixel coordinates.
type Box [4]float64

// DamageBox is a single damage detection.
type DamageBox struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// PartPresence reports whether an expected vehicle part was observed.
type PartPresence struct {
	Present    bool    `json:"present"`
	Confidence float64 `json:"confidence"`
	Box        *Box    `json:"box,omitempty"`
}

// ColorInfo describes the dominant color of an image.
type ColorInfo struct {
	Name  string   `json:"name"`
	RGB   [3]uint8 `json:"rgb"`
	Ratio float64  `json:"ratio"`
}

// GeoPoint is a WGS84 coordinate.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// OCRCandidate is one piece of recognized text.
type OCRCandidate struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Box        *Box    `json:"box,omitempty"`
}

// TamperVerdict is the output of forensic tamper scoring.
type TamperVerdict struct {
	Suspect bool     `json:"suspect"`
	Reasons []string `json:"reasons,omitempty"`
}

// AnalysisResult is the immutable per-image analysis produced by one
// analyze call. It is stored alongside the image and never mutated.
type AnalysisResult struct {
	Damage          []DamageBox             `json:"damage"`
	Parts           map[string]PartPresence `json:"parts_presence"`
	MissingParts    []string                `json:"missing_parts"`
	Color           *ColorInfo              `json:"color,omitempty"`
	Geo             *GeoPoint               `json:"exif_geo,omitempty"`
	OCR             []OCRCandidate          `json:"ocr,omitempty"`
	PlateCandidates []string                `json:"plate_candidates,omitempty"`
	VINCandidates   []string                `json:"vin_candidates,omitempty"`
	Tamper          *TamperVerdict          `json:"tamper,omitempty"`
	Quality         QualityStatus           `json:"quality_status"`
}

// ImageRecord is one uploaded image within a session. Uniqueness inside a
// session is by content hash: resubmitting identical bytes returns the
// stored analysis instead of re-running detection.
type ImageRecord struct {
	Hash        string          `json:"image_hash"`
	PhotoSlot   string          `json:"photo_slot"`
	Raw         []byte          `json:"-"`
	Analysis    *AnalysisResult `json:"analysis"`
	FraudFlags  []string        `json:"fraud_flags,omitempty"`
	ReviewFlags []string        `json:"review_flags,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
