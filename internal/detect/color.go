package detect

import (
	"github.com/dcastano/inspectord/internal/colorname"
	"github.com/dcastano/inspectord/internal/domain"
)

// LocalColorExtractor determines the dominant color by bucketing sampled
// pixels onto the named base palette and averaging the winning bucket.
type LocalColorExtractor struct {
	// SampleStride controls how sparsely pixels are sampled; 0 picks a
	// stride that keeps the sample around 10k pixels.
	SampleStride int
}

// DominantColor implements ColorExtractor.
func (e *LocalColorExtractor) DominantColor(img []byte) (*domain.ColorInfo, error) {
	decoded, err := Decode(img)
	if err != nil {
		return nil, err
	}

	bounds := decoded.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	stride := e.SampleStride
	if stride <= 0 {
		stride = 1
		for (w/stride)*(h/stride) > 10000 {
			stride++
		}
	}

	type bucket struct {
		count   int
		r, g, b uint64
	}
	buckets := make(map[string]*bucket)
	total := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y += stride {
		for x := bounds.Min.X; x < bounds.Max.X; x += stride {
			r16, g16, b16, _ := decoded.At(x, y).RGBA()
			r, g, b := uint8(r16>>8), uint8(g16>>8), uint8(b16>>8)
			name := colorname.Closest(r, g, b)
			bk := buckets[name]
			if bk == nil {
				bk = &bucket{}
				buckets[name] = bk
			}
			bk.count++
			bk.r += uint64(r)
			bk.g += uint64(g)
			bk.b += uint64(b)
			total++
		}
	}
	if total == 0 {
		return nil, nil
	}

	bestName := ""
	var best *bucket
	for name, bk := range buckets {
		if best == nil || bk.count > best.count {
			best = bk
			bestName = name
		}
	}

	n := uint64(best.count)
	return &domain.ColorInfo{
		Name:  bestName,
		RGB:   [3]uint8{uint8(best.r / n), uint8(best.g / n), uint8(best.b / n)},
		Ratio: float64(best.count) / float64(total),
	}, nil
}
