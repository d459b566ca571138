package ui

import (
	"image"
)

// =============================================================================
// Night Mode Filter
// =============================================================================
// Red-tinted, brightness-enhanced rendering for dark rooms.
// Algorithm:
//   1. Convert pixel to grayscale luminance (BT.601)
//   2. Apply 1.6x brightness boost (clamped to 255)
//   3. Map result to red channel only (R = boosted, G = 0, B = 0)
// =============================================================================

// nightModeLUT is a pre-computed lookup table: grayscale value -> boosted value.
var nightModeLUT [256]uint8

func init() {
	for i := 0; i < 256; i++ {
		v := float64(i) * 1.6
		if v > 255 {
			v = 255
		}
		nightModeLUT[i] = uint8(v)
	}
}

// applyNightMode writes the night-mode rendering of src into dst and
// returns it. dst is reused when its buffer is large enough, otherwise a
// new image is allocated. dst may be src itself.
func applyNightMode(src, dst *image.RGBA) *image.RGBA {
	bounds := src.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	neededLen := w * h * 4

	if dst != src {
		// Reuse dst buffer if it has enough capacity
		if dst != nil && cap(dst.Pix) >= neededLen {
			dst.Pix = dst.Pix[:neededLen]
			dst.Stride = w * 4
			dst.Rect = image.Rect(0, 0, w, h)
		} else {
			dst = image.NewRGBA(image.Rect(0, 0, w, h))
		}
	}

	for y := 0; y < h; y++ {
		srcOff := (y+bounds.Min.Y-src.Rect.Min.Y)*src.Stride + (bounds.Min.X-src.Rect.Min.X)*4
		dstOff := (y+bounds.Min.Y-dst.Rect.Min.Y)*dst.Stride + (bounds.Min.X-dst.Rect.Min.X)*4
		if dst != src {
			dstOff = y * dst.Stride
		}

		for x := 0; x < w; x++ {
			r := src.Pix[srcOff+0]
			g := src.Pix[srcOff+1]
			b := src.Pix[srcOff+2]

			gray := uint8((299*uint32(r) + 587*uint32(g) + 114*uint32(b)) / 1000)

			dst.Pix[dstOff+0] = nightModeLUT[gray]
			dst.Pix[dstOff+1] = 0
			dst.Pix[dstOff+2] = 0
			dst.Pix[dstOff+3] = 255

			srcOff += 4
			dstOff += 4
		}
	}

	return dst
}
