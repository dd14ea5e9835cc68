package detect

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dcastano/inspectord/internal/domain"
)

// CandidateFilter extracts plate and VIN candidates from raw OCR output
// using the configured patterns. The filters are pure: they normalize each
// recognized string (uppercase, strip separators) and keep matches.
type CandidateFilter struct {
	plate *regexp.Regexp
	vin   *regexp.Regexp
}

// NewCandidateFilter compiles the plate and VIN patterns.
func NewCandidateFilter(platePattern, vinPattern string) (*CandidateFilter, error) {
	plate, err := regexp.Compile(platePattern)
	if err != nil {
		return nil, fmt.Errorf("compile plate pattern: %w", err)
	}
	vin, err := regexp.Compile(vinPattern)
	if err != nil {
		return nil, fmt.Errorf("compile vin pattern: %w", err)
	}
	return &CandidateFilter{plate: plate, vin: vin}, nil
}

// PlateCandidates returns normalized OCR strings matching the plate pattern.
func (f *CandidateFilter) PlateCandidates(results []domain.OCRCandidate) []string {
	return f.filter(results, f.plate)
}

// VINCandidates returns normalized OCR strings matching the VIN pattern.
func (f *CandidateFilter) VINCandidates(results []domain.OCRCandidate) []string {
	return f.filter(results, f.vin)
}

func (f *CandidateFilter) filter(results []domain.OCRCandidate, re *regexp.Regexp) []string {
	var out []string
	seen := make(map[string]bool)
	for _, r := range results {
		text := normalizeOCR(r.Text)
		if text == "" || seen[text] {
			continue
		}
		if re.MatchString(text) {
			out = append(out, text)
			seen[text] = true
		}
	}
	return out
}

func normalizeOCR(s string) string {
	s = strings.ToUpper(s)
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '.', ':':
			return -1
		}
		return r
	}, s)
	return s
}
