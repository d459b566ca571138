package camera

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// CAPTURE CONFIGURATION
// =============================================================================
// Mode and color order are fixed when a session starts. Changing them means
// stopping the session and starting a new one.
// =============================================================================

// Mode selects what a source produces.
type Mode int

const (
	// ModePreview yields ready-to-display frames.
	ModePreview Mode = iota
	// ModeVideo yields an encoded bitstream for the recorder.
	ModeVideo
)

func (m Mode) String() string {
	switch m {
	case ModePreview:
		return "preview"
	case ModeVideo:
		return "video"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode accepts "preview" or "video" in any case.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "preview":
		return ModePreview, nil
	case "video":
		return ModeVideo, nil
	default:
		return ModePreview, fmt.Errorf("camera: unknown mode %q", s)
	}
}

// -----------------------------------------------------------------------------
// Defaults
// -----------------------------------------------------------------------------
// 640x480 @ 30 FPS MJPEG matches the preview size of the depth camera's color
// sensor and stays well inside USB 2.0 bandwidth.
// -----------------------------------------------------------------------------

const (
	DefaultWidth  = 640
	DefaultHeight = 480
	DefaultFPS    = 30
	DefaultFormat = "mjpeg"

	// DefaultQueueSize mirrors the device output queue depth of 4.
	DefaultQueueSize = 4

	DefaultPollInterval = 10 * time.Millisecond
	DefaultReadTimeout  = 200 * time.Millisecond
	DefaultOpenTimeout  = 5 * time.Second

	DefaultOutputPath = "./video.mjpeg"
)

// Config is the option set handed to a Source when opening a stream.
type Config struct {
	// Device is a path such as /dev/video0, a numeric index, or empty/"auto"
	// to pick the first discovered device. The pattern backend uses it as
	// the scene name.
	Device string

	Order  ColorOrder
	Mode   Mode
	Width  int
	Height int
	FPS    int
	Format string // "mjpeg" or "yuyv"

	// Queue policy between the device reader and NextFrame/NextPacket.
	QueueSize int
	Blocking  bool

	ReadTimeout  time.Duration
	PollInterval time.Duration
	OpenTimeout  time.Duration

	// OutputPath is where video mode writes the raw stream.
	OutputPath string

	KillDeviceHolders bool
}

// DefaultConfig returns a preview configuration for the first camera.
func DefaultConfig() Config {
	return Config{
		Device:       "auto",
		Order:        RGB,
		Mode:         ModePreview,
		Width:        DefaultWidth,
		Height:       DefaultHeight,
		FPS:          DefaultFPS,
		Format:       DefaultFormat,
		QueueSize:    DefaultQueueSize,
		Blocking:     false,
		ReadTimeout:  DefaultReadTimeout,
		PollInterval: DefaultPollInterval,
		OpenTimeout:  DefaultOpenTimeout,
		OutputPath:   DefaultOutputPath,
	}
}

// Validate reports settings a stream cannot work with.
func (c Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("camera: invalid resolution %dx%d", c.Width, c.Height)
	}
	if c.FPS <= 0 {
		return fmt.Errorf("camera: invalid fps %d", c.FPS)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("camera: queue size must be positive, got %d", c.QueueSize)
	}
	if c.Format != "mjpeg" && c.Format != "yuyv" {
		return fmt.Errorf("camera: unknown capture format %q", c.Format)
	}
	if c.Mode == ModeVideo && c.OutputPath == "" {
		return fmt.Errorf("camera: video mode needs an output path")
	}
	return nil
}
