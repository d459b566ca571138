package camera

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FFmpegSource captures from a V4L2 device by running ffmpeg and reading the
// MJPEG image2pipe output.
type FFmpegSource struct {
	binary string
	log    *zap.SugaredLogger
}

// NewFFmpegSource returns a source that runs the ffmpeg found on PATH.
func NewFFmpegSource(log *zap.SugaredLogger) *FFmpegSource {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &FFmpegSource{binary: "ffmpeg", log: log}
}

// OpenPreview starts ffmpeg and decodes every JPEG into a frame.
func (s *FFmpegSource) OpenPreview(cfg Config) (FrameStream, error) {
	st, err := s.open(cfg, ModePreview)
	if err != nil {
		return nil, err
	}
	return &ffmpegFrameStream{st}, nil
}

// OpenVideo starts ffmpeg and hands out the raw JPEG packets.
func (s *FFmpegSource) OpenVideo(cfg Config) (PacketStream, error) {
	st, err := s.open(cfg, ModeVideo)
	if err != nil {
		return nil, err
	}
	return &ffmpegPacketStream{st}, nil
}

// ffmpegArgs lists the argument sets to try, configured format first.
func ffmpegArgs(cfg Config) [][]string {
	videoSize := fmt.Sprintf("%dx%d", cfg.Width, cfg.Height)
	fps := fmt.Sprintf("%d", cfg.FPS)

	// Common FFmpeg args for all formats
	commonArgs := []string{"-loglevel", "error", "-thread_queue_size", "512", "-probesize", "32", "-analyzeduration", "0"}
	outputArgs := []string{"-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "5", "-"}

	input := func(format string) []string {
		args := append([]string{}, commonArgs...)
		args = append(args, "-f", "v4l2")
		if format != "" {
			args = append(args, "-input_format", format)
		}
		args = append(args, "-video_size", videoSize, "-framerate", fps, "-i", cfg.Device)
		return append(args, outputArgs...)
	}

	var formats []string
	if cfg.Format == "yuyv" {
		formats = []string{"yuyv422", "mjpeg"}
	} else {
		formats = []string{"mjpeg", "yuyv422"}
	}

	var out [][]string
	for _, f := range formats {
		out = append(out, input(f))
	}
	// Auto format detection as last resort
	return append(out, input(""))
}

func (s *FFmpegSource) open(cfg Config, mode Mode) (*ffmpegStream, error) {
	path, err := PrepareDevice(cfg, s.log)
	if err != nil {
		return nil, err
	}
	cfg.Device = path

	if _, err := os.Stat(cfg.Device); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, cfg.Device, err)
	}
	if _, err := exec.LookPath(s.binary); err != nil {
		return nil, fmt.Errorf("%w: %s not found: %v", ErrSourceUnavailable, s.binary, err)
	}

	var lastErr error
	for _, args := range ffmpegArgs(cfg) {
		st, err := s.start(cfg, args, mode)
		if err == nil {
			return st, nil
		}
		s.log.Warnw("FFmpeg attempt failed", "device", cfg.Device, "args", args, "error", err)
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, cfg.Device, lastErr)
}

// start runs one ffmpeg process and waits for its first image.
func (s *FFmpegSource) start(cfg Config, args []string, mode Mode) (*ffmpegStream, error) {
	cmd := exec.Command(s.binary, args...)
	cmd.Stderr = nil // Suppress FFmpeg stderr output

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	st := &ffmpegStream{
		cmd:     cmd,
		stdout:  stdout,
		readers: make(chan struct{}),
		first:   make(chan error, 1),
		log:     s.log,
	}

	if mode == ModeVideo {
		st.packets = newBoundedQueue[[]byte](cfg.QueueSize, cfg.Blocking)
		go st.readPackets()
	} else {
		st.frames = newBoundedQueue[*Frame](cfg.QueueSize, cfg.Blocking)
		go st.readFrames(cfg.Order)
	}

	timeout := cfg.OpenTimeout
	if timeout <= 0 {
		timeout = DefaultOpenTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-st.first:
		if err != nil {
			st.Close()
			return nil, err
		}
	case <-timer.C:
		st.Close()
		return nil, fmt.Errorf("no image within %s", timeout)
	}

	s.log.Infow("FFmpeg started", "device", cfg.Device, "pid", cmd.Process.Pid,
		"size", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height), "fps", cfg.FPS)
	return st, nil
}

// ffmpegStream owns one ffmpeg process and the goroutine reading its output.
type ffmpegStream struct {
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	readers chan struct{} // closed when the reader goroutine exits
	first   chan error
	log     *zap.SugaredLogger

	frames  *boundedQueue[*Frame]
	packets *boundedQueue[[]byte]

	closeOnce sync.Once
	closeErr  error
}

func (st *ffmpegStream) signalFirst(err error) {
	select {
	case st.first <- err:
	default:
	}
}

func (st *ffmpegStream) readFrames(order ColorOrder) {
	defer close(st.readers)
	defer st.frames.close()

	split := newMJPEGSplitter(st.stdout)
	signaled := false
	for {
		data, err := split.Next()
		if errors.Is(err, ErrFrameTooLarge) {
			st.log.Warnw("Skipping oversized MJPEG frame", "error", err)
			continue
		}
		if err != nil {
			if !signaled {
				st.signalFirst(err)
			}
			return
		}
		frame, err := DecodeJPEG(data, order)
		if err != nil {
			// Corrupt JPEG, skip it and keep the stream flowing
			continue
		}
		frame.CapturedAt = time.Now()
		st.frames.push(frame)
		if !signaled {
			st.signalFirst(nil)
			signaled = true
		}
	}
}

func (st *ffmpegStream) readPackets() {
	defer close(st.readers)
	defer st.packets.close()

	split := newMJPEGSplitter(st.stdout)
	signaled := false
	for {
		data, err := split.Next()
		if errors.Is(err, ErrFrameTooLarge) {
			st.log.Warnw("Skipping oversized MJPEG frame", "error", err)
			continue
		}
		if err != nil {
			if !signaled {
				st.signalFirst(err)
			}
			return
		}
		st.packets.push(data)
		if !signaled {
			st.signalFirst(nil)
			signaled = true
		}
	}
}

// Close kills ffmpeg, waits for the reader and reaps the process.
func (st *ffmpegStream) Close() error {
	st.closeOnce.Do(func() {
		if st.cmd.Process != nil {
			st.cmd.Process.Kill()
		}
		<-st.readers
		// CRITICAL: Always reap the process to prevent zombies
		err := st.cmd.Wait()
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			st.closeErr = err
		}
		st.log.Debugw("FFmpeg stopped", "pid", st.cmd.Process.Pid, "queue_dropped", st.dropped())
	})
	return st.closeErr
}

func (st *ffmpegStream) dropped() uint64 {
	if st.frames != nil {
		return st.frames.droppedCount()
	}
	return st.packets.droppedCount()
}

type ffmpegFrameStream struct{ *ffmpegStream }

func (s *ffmpegFrameStream) NextFrame(timeout time.Duration) (*Frame, error) {
	return s.frames.next(timeout)
}

type ffmpegPacketStream struct{ *ffmpegStream }

func (s *ffmpegPacketStream) NextPacket(timeout time.Duration) ([]byte, error) {
	return s.packets.next(timeout)
}
