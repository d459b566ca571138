package camera

import (
	"errors"
	"time"
)

// Source is a capture device that can be opened for preview frames or for
// an encoded video stream. The two modes are independent opens of the same
// device, never shared.
type Source interface {
	OpenPreview(cfg Config) (FrameStream, error)
	OpenVideo(cfg Config) (PacketStream, error)
}

// FrameStream yields raw frames. A nil frame with a nil error means nothing
// is available yet (non-blocking queue empty). ErrReadTimeout is transient.
// ErrStreamEnded means the device stopped for good; no later call will
// return data.
type FrameStream interface {
	NextFrame(timeout time.Duration) (*Frame, error)
	Close() error
}

// PacketStream yields chunks of an encoded bitstream with the same nil and
// timeout conventions as FrameStream.
type PacketStream interface {
	NextPacket(timeout time.Duration) ([]byte, error)
	Close() error
}

// Sink receives frames on the GUI thread.
type Sink interface {
	OnFrame(frame *Frame)
}

// Publisher accepts frames from the acquisition loop.
type Publisher interface {
	Publish(frame *Frame)
}

// Dispatcher runs fn on the thread that owns the sink. It must not block
// waiting for fn to finish.
type Dispatcher func(fn func())

// Errors
var (
	ErrSourceUnavailable = errors.New("frame source unavailable")
	ErrReadTimeout       = errors.New("frame read timeout")
	ErrRecordingWrite    = errors.New("recording write failed")
	ErrAlreadyStarted    = errors.New("task already started or stopped")
	ErrNotStarted        = errors.New("session not started")
	ErrInvalidFrame      = errors.New("invalid frame")
	ErrFrameTooLarge     = errors.New("mjpeg frame exceeds size limit")
	ErrStreamEnded       = errors.New("frame stream ended")
)
