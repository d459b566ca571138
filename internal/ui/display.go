package ui

import (
	"image"
	"image/color"
	"sync/atomic"

	"depth-preview-go/internal/camera"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
	"go.uber.org/zap"
)

// Display is the preview surface. OnFrame must be called on the fyne
// thread; the delivery channel arranges that through fyne.Do.
type Display struct {
	widget.BaseWidget

	image   *canvas.Image
	bg      *canvas.Rectangle
	message *canvas.Text
	log     *zap.SugaredLogger

	nightMode atomic.Bool

	// OnNightModeChanged is called on the fyne thread after a tap toggles
	// night mode.
	OnNightModeChanged func(on bool)

	// Written on the fyne thread only; read by health logging
	painted atomic.Uint64
	lastSeq atomic.Uint64
}

// NewDisplay creates a display showing a dark placeholder of the given size.
func NewDisplay(width, height int, log *zap.SugaredLogger) *Display {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	d := &Display{
		bg:  canvas.NewRectangle(color.RGBA{25, 25, 25, 255}),
		log: log,
	}

	d.image = canvas.NewImageFromImage(createColoredImage(width, height, color.RGBA{25, 25, 25, 255}))
	d.image.FillMode = canvas.ImageFillContain
	d.image.ScaleMode = canvas.ImageScaleFastest
	d.image.SetMinSize(fyne.NewSize(float32(width)/2, float32(height)/2))

	d.message = canvas.NewText("Waiting for camera...", color.RGBA{180, 180, 180, 255})
	d.message.TextSize = 18
	d.message.Alignment = fyne.TextAlignCenter

	d.ExtendBaseWidget(d)
	return d
}

func createColoredImage(width, height int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	if width <= 0 || height <= 0 {
		return img
	}

	// Fill first row with direct Pix writes
	stride := img.Stride
	for x := 0; x < width; x++ {
		off := x * 4
		img.Pix[off+0] = c.R
		img.Pix[off+1] = c.G
		img.Pix[off+2] = c.B
		img.Pix[off+3] = c.A
	}
	// Copy first row to remaining rows
	firstRow := img.Pix[:stride]
	for y := 1; y < height; y++ {
		copy(img.Pix[y*stride:(y+1)*stride], firstRow)
	}
	return img
}

// CreateRenderer stacks background, image and the centered message.
func (d *Display) CreateRenderer() fyne.WidgetRenderer {
	c := container.NewStack(d.bg, d.image, container.NewCenter(d.message))
	return widget.NewSimpleRenderer(c)
}

// OnFrame paints frame. The frame is only read; conversion to display
// order happens once, in Frame.ToRGBA.
func (d *Display) OnFrame(frame *camera.Frame) {
	if frame.Empty() {
		return
	}

	if last := d.lastSeq.Load(); frame.Seq != 0 && frame.Seq <= last {
		d.log.Warnw("Frame out of order", "seq", frame.Seq, "last", last)
	}

	img := frame.ToRGBA()
	if d.nightMode.Load() {
		applyNightMode(img, img)
	}

	d.image.Image = img
	if !d.message.Hidden {
		d.message.Hide()
	}
	d.image.Refresh()

	d.lastSeq.Store(frame.Seq)
	d.painted.Add(1)
}

// ShowMessage replaces the picture with a centered message. fyne thread only.
func (d *Display) ShowMessage(text string) {
	d.message.Text = text
	d.message.Show()
	d.message.Refresh()
}

// Tapped toggles night mode.
func (d *Display) Tapped(_ *fyne.PointEvent) {
	on := !d.NightMode()
	d.SetNightMode(on)
	if d.OnNightModeChanged != nil {
		d.OnNightModeChanged(on)
	}
}

// SetNightMode enables or disables the red night filter for later frames.
func (d *Display) SetNightMode(on bool) {
	if d.nightMode.Swap(on) != on {
		d.log.Infow("Night mode", "enabled", on)
	}
}

// NightMode reports whether the night filter is active.
func (d *Display) NightMode() bool {
	return d.nightMode.Load()
}

// Painted returns how many frames have been drawn.
func (d *Display) Painted() uint64 {
	return d.painted.Load()
}

// LastSeq returns the sequence number of the frame on screen.
func (d *Display) LastSeq() uint64 {
	return d.lastSeq.Load()
}
