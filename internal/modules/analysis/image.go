package analysis

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	_ "image/gif"  // register decoders for common chart upload formats
	_ "image/jpeg"
)

// contrastFactor matches the preprocessing the analyst pipeline has always
// used: charts are contrast-boosted before upload so grid lines and wicks
// survive the model's downscaling.
const contrastFactor = 1.8

// EnhanceContrast decodes an uploaded chart, scales every channel away from
// the midpoint by contrastFactor and re-encodes as PNG. Returns the processed
// bytes and the mime type to send upstream.
func EnhanceContrast(data []byte) ([]byte, string, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode chart image: %w", err)
	}

	bounds := src.Bounds()
	dst := image.NewRGBA(bounds)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := src.At(x, y).RGBA()
			dst.SetRGBA(x, y, color.RGBA{
				R: stretch(r),
				G: stretch(g),
				B: stretch(b),
				A: uint8(a >> 8),
			})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, "", fmt.Errorf("failed to encode processed chart: %w", err)
	}

	return buf.Bytes(), "image/png", nil
}

// stretch moves one 16-bit channel value away from mid-gray by the
// contrast factor, clamped to the 8-bit range.
func stretch(channel uint32) uint8 {
	v := float64(channel>>8) - 128.0
	v = v*contrastFactor + 128.0
	if v < 0 {
		v = 0
	}
	if v > 255 {
		v = 255
	}
	return uint8(v)
}
