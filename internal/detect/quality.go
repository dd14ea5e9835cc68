package detect

import (
	"image"

	"github.com/dcastano/inspectord/internal/domain"
)

// Sharpness thresholds on the mean absolute Laplacian of the grayscale
// image. Calibrated against phone photos downscaled to ~1 megapixel.
const (
	sharpnessOK   = 6.0
	sharpnessWarn = 3.5
	sharpnessBlur = 1.5
)

// AssessQuality grades image sharpness. It runs independently of the
// detectors: a poor grade contributes a review flag but never blocks
// analysis.
func AssessQuality(img image.Image) domain.QualityStatus {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < 3 || h < 3 {
		return domain.QualityVeryBlur
	}

	gray := grayscale(img)

	// Mean absolute response of a 4-neighbor Laplacian. Blurry images have
	// weak second derivatives almost everywhere.
	var sum float64
	var count int
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			c := gray[y][x]
			lap := 4*c - gray[y-1][x] - gray[y+1][x] - gray[y][x-1] - gray[y][x+1]
			if lap < 0 {
				lap = -lap
			}
			sum += lap
			count++
		}
	}
	mean := sum / float64(count)

	switch {
	case mean >= sharpnessOK:
		return domain.QualityOK
	case mean >= sharpnessWarn:
		return domain.QualityWarn
	case mean >= sharpnessBlur:
		return domain.QualityBlur
	default:
		return domain.QualityVeryBlur
	}
}

func grayscale(img image.Image) [][]float64 {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := make([][]float64, h)
	for y := 0; y < h; y++ {
		row := make([]float64, w)
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			// Rec. 601 luma, 16-bit channels scaled to 0..255.
			row[x] = (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 257
		}
		out[y] = row
	}
	return out
}
