package camera

import (
	"fmt"
	"image"
	"image/color"
	"strings"
	"time"
)

// ColorOrder is the byte order of the color channels in a Frame.
type ColorOrder int

const (
	RGB ColorOrder = iota
	BGR
)

func (o ColorOrder) String() string {
	switch o {
	case RGB:
		return "RGB"
	case BGR:
		return "BGR"
	default:
		return fmt.Sprintf("ColorOrder(%d)", int(o))
	}
}

// ParseColorOrder accepts "RGB" or "BGR" in any case.
func ParseColorOrder(s string) (ColorOrder, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "RGB":
		return RGB, nil
	case "BGR":
		return BGR, nil
	default:
		return RGB, fmt.Errorf("camera: unknown color order %q", s)
	}
}

// Frame is one captured image. Once published a Frame belongs to the
// consumer; producers must not touch it again.
type Frame struct {
	// Seq is the retrieval order, stamped by the acquisition loop.
	Seq uint64

	Width    int
	Height   int
	Channels int // 1 (gray), 3 or 4
	Order    ColorOrder

	// Pix holds Height rows of Width*Channels bytes, no padding.
	Pix []byte

	CapturedAt time.Time
}

// NewFrame wraps pix as a frame after checking that its length matches the
// geometry. pix is not copied.
func NewFrame(width, height, channels int, order ColorOrder, pix []byte) (*Frame, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: size %dx%d", ErrInvalidFrame, width, height)
	}
	switch channels {
	case 1, 3, 4:
	default:
		return nil, fmt.Errorf("%w: %d channels", ErrInvalidFrame, channels)
	}
	if want := width * height * channels; len(pix) != want {
		return nil, fmt.Errorf("%w: buffer has %d bytes, want %d", ErrInvalidFrame, len(pix), want)
	}
	return &Frame{
		Width:    width,
		Height:   height,
		Channels: channels,
		Order:    order,
		Pix:      pix,
	}, nil
}

// Empty reports whether the frame carries no pixels.
func (f *Frame) Empty() bool {
	return f == nil || len(f.Pix) == 0 || f.Width == 0 || f.Height == 0
}

// FrameFromImage packs img into a 3-channel frame in the given order.
func FrameFromImage(img image.Image, order ColorOrder) *Frame {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	pix := make([]byte, w*h*3)

	// Fast path for RGBA sources
	if rgba, ok := img.(*image.RGBA); ok {
		for y := 0; y < h; y++ {
			src := rgba.Pix[(y+b.Min.Y-rgba.Rect.Min.Y)*rgba.Stride+(b.Min.X-rgba.Rect.Min.X)*4:]
			dst := pix[y*w*3:]
			for x := 0; x < w; x++ {
				r, g, bl := src[x*4], src[x*4+1], src[x*4+2]
				if order == BGR {
					r, bl = bl, r
				}
				dst[x*3], dst[x*3+1], dst[x*3+2] = r, g, bl
			}
		}
	} else if ycc, ok := img.(*image.YCbCr); ok {
		// Decoded JPEGs land here
		off := 0
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				yi := ycc.YOffset(x, y)
				ci := ycc.COffset(x, y)
				r, g, bl := color.YCbCrToRGB(ycc.Y[yi], ycc.Cb[ci], ycc.Cr[ci])
				if order == BGR {
					r, bl = bl, r
				}
				pix[off], pix[off+1], pix[off+2] = r, g, bl
				off += 3
			}
		}
	} else {
		off := 0
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				r, g, bl, _ := img.At(x, y).RGBA()
				r8, g8, b8 := uint8(r>>8), uint8(g>>8), uint8(bl>>8)
				if order == BGR {
					r8, b8 = b8, r8
				}
				pix[off], pix[off+1], pix[off+2] = r8, g8, b8
				off += 3
			}
		}
	}

	return &Frame{Width: w, Height: h, Channels: 3, Order: order, Pix: pix}
}

// ToRGBA returns a new display-ready image. This is the only place channel
// order is swapped, so the result is never converted twice.
func (f *Frame) ToRGBA() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	n := f.Width * f.Height
	src := f.Pix
	dst := img.Pix

	switch f.Channels {
	case 1:
		for i := 0; i < n; i++ {
			v := src[i]
			dst[i*4], dst[i*4+1], dst[i*4+2], dst[i*4+3] = v, v, v, 255
		}
	case 3, 4:
		c := f.Channels
		ri, bi := 0, 2
		if f.Order == BGR {
			ri, bi = 2, 0
		}
		for i := 0; i < n; i++ {
			s := src[i*c:]
			dst[i*4+0] = s[ri]
			dst[i*4+1] = s[1]
			dst[i*4+2] = s[bi]
			dst[i*4+3] = 255
		}
	}
	return img
}
