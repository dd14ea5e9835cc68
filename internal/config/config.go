// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ColorPolicy controls how a detected-vs-registered color mismatch is
// handled: REVIEW adds a review flag, ABORT terminates the session.
type ColorPolicy string

const (
	ColorPolicyReview ColorPolicy = "REVIEW"
	ColorPolicyAbort  ColorPolicy = "ABORT"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	RulesPath   string
	DetectorURL string

	MaxImageMB          int
	MaxImagesPerSession int

	DefaultConfDamage float64
	DefaultConfParts  float64

	// Geo thresholds in meters. A browser/EXIF distance beyond the warn
	// threshold flags fraud; a pairwise distance beyond the hard threshold
	// counts toward the abort limit.
	GeoWarnDistance   float64
	GeoHardDistance   float64
	GeoAbortAfterWarn int

	ColorMismatchPolicy ColorPolicy
	ColorFraudRatio     float64

	PartLabels []string

	OCRPhotoSlots []string
	OCRPlateRegex string
	OCRVINRegex   string

	RegistryCacheTTLMinutes int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/inspections.db"),
		RulesPath:   getEnv("RULES_PATH", "./config/fraud_rules.yaml"),
		DetectorURL: getEnv("DETECTOR_URL", ""),

		MaxImageMB:          getEnvInt("MAX_IMAGE_MB", 8),
		MaxImagesPerSession: getEnvInt("MAX_IMAGES_PER_SESSION", 30),

		DefaultConfDamage: getEnvFloat("DEFAULT_CONF_DAMAGE", 0.35),
		DefaultConfParts:  getEnvFloat("DEFAULT_CONF_PARTS", 0.35),

		GeoWarnDistance:   getEnvFloat("GEO_WARN_DISTANCE", 300),
		GeoHardDistance:   getEnvFloat("GEO_HARD_DISTANCE", 1000),
		GeoAbortAfterWarn: getEnvInt("GEO_ABORT_AFTER_WARN", 3),

		ColorMismatchPolicy: ColorPolicy(strings.ToUpper(getEnv("COLOR_MISMATCH_POLICY", "REVIEW"))),
		ColorFraudRatio:     getEnvFloat("COLOR_FRAUD_RATIO", 0.65),

		PartLabels: getEnvList("PART_LABELS",
			"bonnet,bumper,door,headlight,mirror,taillight,windshield"),

		OCRPhotoSlots: getEnvList("OCR_PHOTO_SLOTS", "front,rear,vin"),
		OCRPlateRegex: getEnv("OCR_PLATE_REGEX", `^[A-Z0-9]{5,8}$`),
		OCRVINRegex:   getEnv("OCR_VIN_REGEX", `^[A-HJ-NPR-Z0-9]{11,17}$`),

		RegistryCacheTTLMinutes: getEnvInt("REGISTRY_CACHE_TTL_MINUTES", 15),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are consistent.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.MaxImageMB <= 0 {
		return fmt.Errorf("MAX_IMAGE_MB must be > 0")
	}
	if c.MaxImagesPerSession <= 0 {
		return fmt.Errorf("MAX_IMAGES_PER_SESSION must be > 0")
	}
	if c.GeoAbortAfterWarn <= 0 {
		return fmt.Errorf("GEO_ABORT_AFTER_WARN must be > 0")
	}
	if c.ColorFraudRatio <= 0 || c.ColorFraudRatio > 1 {
		return fmt.Errorf("COLOR_FRAUD_RATIO must be in (0, 1]")
	}
	switch c.ColorMismatchPolicy {
	case ColorPolicyReview, ColorPolicyAbort:
	default:
		return fmt.Errorf("COLOR_MISMATCH_POLICY must be REVIEW or ABORT, got %q", c.ColorMismatchPolicy)
	}
	if len(c.PartLabels) == 0 {
		return fmt.Errorf("PART_LABELS cannot be empty")
	}
	return nil
}

// MaxImageBytes returns the upload size cap in bytes.
func (c *Config) MaxImageBytes() int64 {
	return int64(c.MaxImageMB) << 20
}

// OCRSlotAllowed reports whether OCR runs for the given photo slot.
func (c *Config) OCRSlotAllowed(slot string) bool {
	for _, s := range c.OCRPhotoSlots {
		if s == slot {
			return true
		}
	}
	return false
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvList(key, fallback string) []string {
	raw := getEnv(key, fallback)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
