package ui

import (
	"image"
	"image/color"
	"testing"

	"depth-preview-go/internal/camera"

	"fyne.io/fyne/v2/test"
)

func TestDisplayPaintsInDisplayOrder(t *testing.T) {
	test.NewTempApp(t)
	d := NewDisplay(4, 2, nil)

	frame, err := camera.NewFrame(1, 1, 3, camera.BGR, []byte{10, 20, 30})
	if err != nil {
		t.Fatal(err)
	}
	frame.Seq = 1
	d.OnFrame(frame)

	img, ok := d.image.Image.(*image.RGBA)
	if !ok {
		t.Fatalf("display image is %T, want *image.RGBA", d.image.Image)
	}
	if got, want := img.RGBAAt(0, 0), (color.RGBA{30, 20, 10, 255}); got != want {
		t.Errorf("painted pixel = %v, want %v", got, want)
	}
	if frame.Pix[0] != 10 {
		t.Error("display modified the frame")
	}
	if d.Painted() != 1 || d.LastSeq() != 1 {
		t.Errorf("Painted()=%d LastSeq()=%d", d.Painted(), d.LastSeq())
	}
	if !d.message.Hidden {
		t.Error("placeholder message still visible after a frame")
	}
}

func TestDisplayIgnoresEmptyFrames(t *testing.T) {
	test.NewTempApp(t)
	d := NewDisplay(4, 2, nil)
	before := d.image.Image

	d.OnFrame(nil)
	d.OnFrame(&camera.Frame{})
	if d.image.Image != before || d.Painted() != 0 {
		t.Error("empty frame was painted")
	}
}

func TestDisplayNightMode(t *testing.T) {
	test.NewTempApp(t)
	d := NewDisplay(4, 2, nil)

	d.Tapped(nil)
	if !d.NightMode() {
		t.Fatal("tap did not enable night mode")
	}

	frame, err := camera.NewFrame(1, 1, 3, camera.RGB, []byte{200, 200, 200})
	if err != nil {
		t.Fatal(err)
	}
	d.OnFrame(frame)
	px := d.image.Image.(*image.RGBA).RGBAAt(0, 0)
	if px.R != 255 || px.G != 0 || px.B != 0 {
		t.Errorf("night pixel = %v, want pure red", px)
	}

	d.Tapped(nil)
	if d.NightMode() {
		t.Error("second tap did not disable night mode")
	}
}

func TestDisplayShowMessage(t *testing.T) {
	test.NewTempApp(t)
	d := NewDisplay(4, 2, nil)
	test.WidgetRenderer(d)

	d.ShowMessage("No camera")
	if d.message.Hidden || d.message.Text != "No camera" {
		t.Errorf("message = %q hidden=%v", d.message.Text, d.message.Hidden)
	}
}
