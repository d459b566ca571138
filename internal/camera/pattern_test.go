package camera

import (
	"testing"
	"time"
)

func TestPatternPreview(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Device = SceneSky
	cfg.Width, cfg.Height = 32, 24
	cfg.Order = BGR
	cfg.Blocking = true

	stream, err := NewPatternSource().OpenPreview(cfg)
	if err != nil {
		t.Fatalf("OpenPreview() failed: %v", err)
	}

	f, err := stream.NextFrame(time.Second)
	if err != nil {
		t.Fatalf("NextFrame() failed: %v", err)
	}
	if f.Empty() || f.Width != 32 || f.Height != 24 || f.Order != BGR {
		t.Fatalf("unexpected frame %+v", f)
	}
	if f.CapturedAt.IsZero() {
		t.Error("CapturedAt not set")
	}

	if err := stream.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	// Drain what is left; a closed generator ends with nil
	for i := 0; i < cfg.QueueSize+1; i++ {
		if f, _ = stream.NextFrame(10 * time.Millisecond); f == nil {
			return
		}
	}
	t.Error("stream kept producing frames after Close")
}

func TestPatternVideoPacketsAreJPEG(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Device = SceneField
	cfg.Width, cfg.Height = 32, 24
	cfg.Blocking = true

	stream, err := NewPatternSource().OpenVideo(cfg)
	if err != nil {
		t.Fatalf("OpenVideo() failed: %v", err)
	}
	defer stream.Close()

	pkt, err := stream.NextPacket(time.Second)
	if err != nil {
		t.Fatalf("NextPacket() failed: %v", err)
	}
	if len(pkt) < 4 || pkt[0] != 0xFF || pkt[1] != 0xD8 || pkt[len(pkt)-2] != 0xFF || pkt[len(pkt)-1] != 0xD9 {
		t.Errorf("packet is not a complete JPEG (%d bytes)", len(pkt))
	}
}

func TestPatternFramesChange(t *testing.T) {
	g := &patternGenerator{scene: SceneGradient, width: 8, height: 8}
	a, b := g.render(0), g.render(1)
	same := true
	for i := range a.Pix {
		if a.Pix[i] != b.Pix[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("consecutive frames are identical")
	}
}
