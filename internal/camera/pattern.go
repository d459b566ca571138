package camera

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"strings"
	"sync"
	"time"
)

// Scene names understood by the pattern source (Config.Device).
const (
	SceneSky      = "sky"
	SceneField    = "field"
	SceneUrban    = "urban"
	SceneGradient = "gradient"
)

// PatternSource generates synthetic frames at the configured rate. It stands
// in for a camera during demos and on machines without capture hardware.
type PatternSource struct{}

// NewPatternSource returns a synthetic source.
func NewPatternSource() *PatternSource {
	return &PatternSource{}
}

// OpenPreview starts generating frames in the configured color order.
func (PatternSource) OpenPreview(cfg Config) (FrameStream, error) {
	q := newBoundedQueue[*Frame](cfg.QueueSize, cfg.Blocking)
	g := newPatternGenerator(cfg, func(img *image.RGBA) {
		f := FrameFromImage(img, cfg.Order)
		f.CapturedAt = time.Now()
		q.push(f)
	}, q.close)
	return &patternFrameStream{gen: g, q: q}, nil
}

// OpenVideo starts generating JPEG packets.
func (PatternSource) OpenVideo(cfg Config) (PacketStream, error) {
	q := newBoundedQueue[[]byte](cfg.QueueSize, cfg.Blocking)
	g := newPatternGenerator(cfg, func(img *image.RGBA) {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err == nil {
			q.push(buf.Bytes())
		}
	}, q.close)
	return &patternPacketStream{gen: g, q: q}, nil
}

type patternGenerator struct {
	scene  string
	width  int
	height int

	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newPatternGenerator(cfg Config, emit func(*image.RGBA), closeQueue func()) *patternGenerator {
	fps := cfg.FPS
	if fps <= 0 {
		fps = DefaultFPS
	}
	g := &patternGenerator{
		scene:  strings.ToLower(cfg.Device),
		width:  cfg.Width,
		height: cfg.Height,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}

	go func() {
		defer close(g.done)
		defer closeQueue()

		ticker := time.NewTicker(time.Second / time.Duration(fps))
		defer ticker.Stop()

		frameNum := 0
		for {
			emit(g.render(frameNum))
			frameNum++
			select {
			case <-g.stopCh:
				return
			case <-ticker.C:
			}
		}
	}()
	return g
}

func (g *patternGenerator) stop() {
	g.stopOnce.Do(func() { close(g.stopCh) })
	<-g.done
}

// render draws one frame of the scene. The moving elements advance with
// frameNum so consecutive frames differ.
func (g *patternGenerator) render(frameNum int) *image.RGBA {
	width, height := g.width, g.height
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	shift := frameNum * 4

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var r, gr, b uint8

			switch g.scene {
			case SceneSky:
				// Blue gradient sky with drifting clouds
				gradient := float64(y) / float64(height)
				r = uint8(135 * (1 - gradient))
				gr = uint8(206 * (1 - gradient))
				b = uint8(250 * (1 - gradient))
				if (x+shift)%80 < 20 && y%60 < 15 {
					r, gr, b = 230, 230, 230
				}

			case SceneField:
				r, gr, b = 50, 140, 50
				if (x+shift)%100 < 10 && y%100 < 10 {
					r, gr, b = 255, 100, 100
				}

			case SceneUrban:
				gray := uint8(128 + (frameNum % 40))
				r, gr, b = gray, gray, gray
				if (x%40 < 5 || y%30 < 3) && x+y > 200 {
					r, gr, b = 180, 180, 200
				}

			default:
				r = uint8((x + frameNum) % 256)
				gr = uint8((y + frameNum/2) % 256)
				b = uint8((x + y + frameNum/3) % 256)
			}

			img.SetRGBA(x, y, color.RGBA{r, gr, b, 255})
		}
	}

	return img
}

type patternFrameStream struct {
	gen *patternGenerator
	q   *boundedQueue[*Frame]
}

func (s *patternFrameStream) NextFrame(timeout time.Duration) (*Frame, error) {
	return s.q.next(timeout)
}

func (s *patternFrameStream) Close() error {
	s.gen.stop()
	return nil
}

type patternPacketStream struct {
	gen *patternGenerator
	q   *boundedQueue[[]byte]
}

func (s *patternPacketStream) NextPacket(timeout time.Duration) ([]byte, error) {
	return s.q.next(timeout)
}

func (s *patternPacketStream) Close() error {
	s.gen.stop()
	return nil
}
