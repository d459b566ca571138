// Package gocvcam opens capture devices through OpenCV.
package gocvcam

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"depth-preview-go/internal/camera"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// Source reads frames with gocv.VideoCapture. OpenCV delivers BGR; RGB order
// is produced with CvtColor before the frame leaves this package.
type Source struct {
	log *zap.SugaredLogger
}

// NewSource returns an OpenCV-backed source.
func NewSource(log *zap.SugaredLogger) *Source {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Source{log: log}
}

// OpenPreview opens the device for raw frames.
func (s *Source) OpenPreview(cfg camera.Config) (camera.FrameStream, error) {
	cs, err := s.open(cfg)
	if err != nil {
		return nil, err
	}
	return &frameStream{capture: cs, order: cfg.Order}, nil
}

// OpenVideo opens the device and JPEG-encodes every frame.
func (s *Source) OpenVideo(cfg camera.Config) (camera.PacketStream, error) {
	cs, err := s.open(cfg)
	if err != nil {
		return nil, err
	}
	return &packetStream{capture: cs}, nil
}

func (s *Source) open(cfg camera.Config) (*captureStream, error) {
	path, err := camera.PrepareDevice(cfg, s.log)
	if err != nil {
		return nil, err
	}

	webcam, err := gocv.OpenVideoCapture(deviceArg(path))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", camera.ErrSourceUnavailable, path, err)
	}
	if !webcam.IsOpened() {
		webcam.Close()
		return nil, fmt.Errorf("%w: %s: device did not open", camera.ErrSourceUnavailable, path)
	}

	webcam.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	webcam.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	webcam.Set(gocv.VideoCaptureFPS, float64(cfg.FPS))

	s.log.Infow("OpenCV capture opened", "device", path,
		"width", webcam.Get(gocv.VideoCaptureFrameWidth),
		"height", webcam.Get(gocv.VideoCaptureFrameHeight),
		"fps", webcam.Get(gocv.VideoCaptureFPS))

	return &captureStream{webcam: webcam, mat: gocv.NewMat()}, nil
}

// deviceArg turns /dev/videoN into the index N, which selects the V4L2
// backend; anything else (files, URLs, GStreamer pipelines) is passed as is.
func deviceArg(path string) interface{} {
	if rest, ok := strings.CutPrefix(path, "/dev/video"); ok {
		if idx, err := strconv.Atoi(rest); err == nil {
			return idx
		}
	}
	return path
}

// captureStream reads synchronously on the caller's goroutine. The read
// timeout is left to the driver.
type captureStream struct {
	mu     sync.Mutex
	webcam *gocv.VideoCapture
	mat    gocv.Mat
	closed bool
}

// read grabs the next image into mat. It returns false with a nil error
// when the device produced an empty frame.
func (c *captureStream) read() (bool, error) {
	if c.closed {
		return false, nil
	}
	if !c.webcam.Read(&c.mat) {
		return false, fmt.Errorf("cannot read frame")
	}
	if c.mat.Empty() {
		return false, nil
	}
	return true, nil
}

func (c *captureStream) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.mat.Close()
	return c.webcam.Close()
}

type frameStream struct {
	*captureStream
	order camera.ColorOrder
}

func (s *frameStream) NextFrame(time.Duration) (*camera.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok, err := s.read()
	if !ok {
		return nil, err
	}

	src := s.mat
	if s.order == camera.RGB && s.mat.Channels() > 1 {
		code := gocv.ColorBGRToRGB
		if s.mat.Channels() == 4 {
			code = gocv.ColorBGRAToRGBA
		}
		rgb := gocv.NewMat()
		defer rgb.Close()
		gocv.CvtColor(s.mat, &rgb, code)
		src = rgb
	}

	// Copy out of the Mat; its memory is reused by the next Read
	data := src.ToBytes()
	pix := make([]byte, len(data))
	copy(pix, data)

	frame, err := camera.NewFrame(src.Cols(), src.Rows(), src.Channels(), s.order, pix)
	if err != nil {
		return nil, err
	}
	frame.CapturedAt = time.Now()
	return frame, nil
}

type packetStream struct {
	*captureStream
}

func (s *packetStream) NextPacket(time.Duration) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok, err := s.read()
	if !ok {
		return nil, err
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, s.mat)
	if err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}
	defer buf.Close()

	data := buf.GetBytes()
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}
