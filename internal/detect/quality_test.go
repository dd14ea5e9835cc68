package detect

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dcastano/inspectord/internal/domain"
)

func checkerboard(t *testing.T, a, b color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			if (x+y)%2 == 0 {
				img.Set(x, y, a)
			} else {
				img.Set(x, y, b)
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func uniform(t *testing.T, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("not an image"))
	require.ErrorIs(t, err, ErrBadImage)

	img := checkerboard(t, color.RGBA{255, 255, 255, 255}, color.RGBA{0, 0, 0, 255})
	decoded, err := Decode(img)
	require.NoError(t, err)
	require.Equal(t, 32, decoded.Bounds().Dx())
}

func TestAssessQuality(t *testing.T) {
	sharp := checkerboard(t, color.RGBA{255, 255, 255, 255}, color.RGBA{0, 0, 0, 255})
	decoded, err := Decode(sharp)
	require.NoError(t, err)
	require.Equal(t, domain.QualityOK, AssessQuality(decoded))

	flat := uniform(t, color.RGBA{128, 128, 128, 255})
	decoded, err = Decode(flat)
	require.NoError(t, err)
	require.Equal(t, domain.QualityVeryBlur, AssessQuality(decoded))
}

func TestDominantColor(t *testing.T) {
	e := &LocalColorExtractor{}

	info, err := e.DominantColor(uniform(t, color.RGBA{200, 20, 20, 255}))
	require.NoError(t, err)
	require.NotNil(t, info)
	require.Equal(t, "red", info.Name)
	require.InDelta(t, 1.0, info.Ratio, 1e-9)

	info, err = e.DominantColor(uniform(t, color.RGBA{250, 250, 250, 255}))
	require.NoError(t, err)
	require.Equal(t, "white", info.Name)

	_, err = e.DominantColor([]byte("garbage"))
	require.Error(t, err)
}

func TestExifGPSAbsent(t *testing.T) {
	e := ExifGPSExtractor{}

	// PNGs carry no EXIF; absence is a nil point, not an error.
	point, err := e.ExtractGPS(uniform(t, color.RGBA{1, 2, 3, 255}))
	require.NoError(t, err)
	require.Nil(t, point)
}
