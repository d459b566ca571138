// Package v4l2cam captures MJPEG straight from a V4L2 device with go4vl,
// without an ffmpeg process in between.
package v4l2cam

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"depth-preview-go/internal/camera"

	"github.com/vladimirvivien/go4vl/device"
	"github.com/vladimirvivien/go4vl/v4l2"
	"go.uber.org/zap"
)

// bufferCount is the number of driver buffers requested. Two keeps latency
// at one frame while the previous one is being read.
const bufferCount = 2

// stopSettle is how long Close waits after cancelling the stream before it
// closes the device, so the driver goroutine's own Stop finishes first.
const stopSettle = 100 * time.Millisecond

// Source opens V4L2 devices in MJPEG mode.
type Source struct {
	log *zap.SugaredLogger
}

// NewSource returns a go4vl-backed source.
func NewSource(log *zap.SugaredLogger) *Source {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Source{log: log}
}

// OpenPreview decodes every JPEG the device produces.
func (s *Source) OpenPreview(cfg camera.Config) (camera.FrameStream, error) {
	st, err := s.open(cfg)
	if err != nil {
		return nil, err
	}
	return &frameStream{stream: st, order: cfg.Order}, nil
}

// OpenVideo hands out the device's JPEG images untouched.
func (s *Source) OpenVideo(cfg camera.Config) (camera.PacketStream, error) {
	st, err := s.open(cfg)
	if err != nil {
		return nil, err
	}
	return &packetStream{stream: st}, nil
}

// pixFormat is the capture format requested from the driver. Only MJPEG is
// supported; the driver may adjust the size.
func pixFormat(cfg camera.Config) v4l2.PixFormat {
	return v4l2.PixFormat{
		PixelFormat: v4l2.PixelFmtMJPEG,
		Width:       uint32(cfg.Width),
		Height:      uint32(cfg.Height),
		Field:       v4l2.FieldNone,
	}
}

func (s *Source) open(cfg camera.Config) (*stream, error) {
	path, err := camera.PrepareDevice(cfg, s.log)
	if err != nil {
		return nil, err
	}
	if cfg.Format != "" && cfg.Format != "mjpeg" {
		s.log.Warnw("Only MJPEG is captured through V4L2, ignoring format", "format", cfg.Format)
	}

	dev, err := device.Open(path,
		device.WithBufferSize(bufferCount),
		device.WithPixFormat(pixFormat(cfg)),
		device.WithFPS(uint32(cfg.FPS)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", camera.ErrSourceUnavailable, path, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := dev.Start(ctx); err != nil {
		cancel()
		dev.Close()
		return nil, fmt.Errorf("%w: %s: %v", camera.ErrSourceUnavailable, path, err)
	}

	st := &stream{
		output: dev.GetOutput(),
		stop: func() error {
			cancel()
			time.Sleep(stopSettle)
			return dev.Close()
		},
	}

	timeout := cfg.OpenTimeout
	if timeout <= 0 {
		timeout = camera.DefaultOpenTimeout
	}
	if err := st.awaitFirst(timeout); err != nil {
		st.Close()
		return nil, fmt.Errorf("%w: %s: %v", camera.ErrSourceUnavailable, path, err)
	}

	s.log.Infow("V4L2 capture started", "device", path,
		"size", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height), "fps", cfg.FPS)
	return st, nil
}

// stream reads the go4vl output channel. The first image is held back from
// open so that a device which never produces anything fails there.
type stream struct {
	output <-chan []byte
	stop   func() error

	mu      sync.Mutex
	pending []byte

	closeOnce sync.Once
	closeErr  error
}

func (st *stream) awaitFirst(timeout time.Duration) error {
	data, err := st.next(timeout)
	if errors.Is(err, camera.ErrReadTimeout) {
		return fmt.Errorf("no image within %s", timeout)
	}
	if err != nil {
		return err
	}
	st.pending = data
	return nil
}

// next returns a copy of the next image; go4vl reuses its buffers.
func (st *stream) next(timeout time.Duration) ([]byte, error) {
	st.mu.Lock()
	if data := st.pending; data != nil {
		st.pending = nil
		st.mu.Unlock()
		return data, nil
	}
	st.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case data, ok := <-st.output:
		if !ok {
			return nil, camera.ErrStreamEnded
		}
		if len(data) == 0 {
			return nil, nil
		}
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	case <-timer.C:
		return nil, camera.ErrReadTimeout
	}
}

func (st *stream) Close() error {
	st.closeOnce.Do(func() {
		st.closeErr = st.stop()
	})
	return st.closeErr
}

type frameStream struct {
	*stream
	order camera.ColorOrder
}

func (s *frameStream) NextFrame(timeout time.Duration) (*camera.Frame, error) {
	data, err := s.next(timeout)
	if err != nil || data == nil {
		return nil, err
	}
	frame, err := camera.DecodeJPEG(data, s.order)
	if err != nil {
		return nil, err
	}
	frame.CapturedAt = time.Now()
	return frame, nil
}

type packetStream struct {
	*stream
}

func (s *packetStream) NextPacket(timeout time.Duration) ([]byte, error) {
	return s.next(timeout)
}
