// Package colorname maps RGB values to a small set of named vehicle colors
// and evaluates color-fraud signals against the registered color.
package colorname

import (
	"strings"

	"github.com/dcastano/inspectord/internal/domain"
)

// Base palette of registrable vehicle colors. Matching is nearest neighbor
// in RGB space; the palette is intentionally coarse since registry colors
// are coarse too.
var baseColors = map[string][3]int{
	"white":  {240, 240, 240},
	"black":  {20, 20, 20},
	"silver": {192, 192, 192},
	"gray":   {128, 128, 128},
	"red":    {180, 20, 20},
	"maroon": {110, 15, 15},
	"blue":   {25, 60, 170},
	"navy":   {15, 30, 80},
	"green":  {25, 140, 60},
	"yellow": {240, 220, 50},
	"orange": {240, 140, 30},
	"brown":  {90, 60, 30},
	"beige":  {210, 200, 170},
	"gold":   {200, 160, 30},
	"purple": {110, 40, 150},
}

// Closest returns the palette name nearest to the given RGB value.
func Closest(r, g, b uint8) string {
	best := ""
	bestDist := int(^uint(0) >> 1)
	for name, c := range baseColors {
		dr := int(r) - c[0]
		dg := int(g) - c[1]
		db := int(b) - c[2]
		d := dr*dr + dg*dg + db*db
		if d < bestDist {
			bestDist = d
			best = name
		}
	}
	return best
}

// Names returns all palette color names.
func Names() []string {
	out := make([]string, 0, len(baseColors))
	for name := range baseColors {
		out = append(out, name)
	}
	return out
}

// Match reports whether a detected color name equals the registered one,
// case-insensitively. Empty values never match.
func Match(detected, registered string) bool {
	detected = strings.TrimSpace(detected)
	registered = strings.TrimSpace(registered)
	return detected != "" && registered != "" && strings.EqualFold(detected, registered)
}

// MajorityFraud compares every observed color name against the registered
// color and flags fraud when the mismatch ratio reaches fraudRatio. Missing
// data is never fraud: the Reason field says which input was absent.
func MajorityFraud(registered string, observed []string, fraudRatio float64) domain.ColorFraudResult {
	if len(observed) == 0 {
		return domain.ColorFraudResult{Reason: "no_colors"}
	}
	reg := strings.ToLower(strings.TrimSpace(registered))
	if reg == "" {
		return domain.ColorFraudResult{Reason: "no_registered"}
	}

	mismatches, total := 0, 0
	for _, name := range observed {
		n := strings.ToLower(strings.TrimSpace(name))
		if n == "" {
			continue
		}
		total++
		if n != reg {
			mismatches++
		}
	}
	if total == 0 {
		return domain.ColorFraudResult{Reason: "no_valid_colors", Registered: reg}
	}

	ratio := float64(mismatches) / float64(total)
	res := domain.ColorFraudResult{
		MismatchRatio: ratio,
		Registered:    reg,
		Samples:       total,
		Reason:        "ok",
	}
	if ratio >= fraudRatio {
		res.Fraud = true
		res.Reason = "color_mismatch"
	}
	return res
}

// Consensus returns the most frequent non-empty color name; ties resolve to
// the first observed.
func Consensus(observed []string) string {
	counts := make(map[string]int)
	best := ""
	bestCount := 0
	for _, name := range observed {
		n := strings.ToLower(strings.TrimSpace(name))
		if n == "" {
			continue
		}
		counts[n]++
		if counts[n] > bestCount {
			bestCount = counts[n]
			best = n
		}
	}
	return best
}
