package camera

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RecorderStats is a snapshot of what a recording session has written.
type RecorderStats struct {
	SessionID  string
	Path       string
	Packets    uint64
	Bytes      uint64
	ReadErrors uint64
}

// Recorder appends the video-mode bitstream of a Source to a file. The
// output is the raw stream exactly as the source hands it out, no container.
// A write failure ends only this session.
type Recorder struct {
	task

	source    Source
	cfg       Config
	log       *zap.SugaredLogger
	sessionID string

	// create opens the output file. Replaced in tests.
	create func(path string) (io.WriteCloser, error)

	packets    atomic.Uint64
	bytes      atomic.Uint64
	readErrors atomic.Uint64
}

// NewRecorder creates an idle recorder writing to cfg.OutputPath.
func NewRecorder(source Source, cfg Config, log *zap.SugaredLogger) *Recorder {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.OutputPath == "" {
		cfg.OutputPath = DefaultOutputPath
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	id := uuid.NewString()
	r := &Recorder{
		source:    source,
		cfg:       cfg,
		log:       log.With("session", id),
		sessionID: id,
		create: func(path string) (io.WriteCloser, error) {
			return os.Create(path)
		},
	}
	r.task.init()
	return r
}

// SessionID identifies this recording in logs.
func (r *Recorder) SessionID() string {
	return r.sessionID
}

// Start spawns the recording goroutine.
func (r *Recorder) Start() error {
	if err := r.begin(); err != nil {
		return err
	}
	go r.run()
	return nil
}

// Stats returns the current counters.
func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{
		SessionID:  r.sessionID,
		Path:       r.cfg.OutputPath,
		Packets:    r.packets.Load(),
		Bytes:      r.bytes.Load(),
		ReadErrors: r.readErrors.Load(),
	}
}

func (r *Recorder) run() {
	r.log.Infow("Opening video stream", "device", r.cfg.Device, "output", r.cfg.OutputPath)

	stream, err := r.source.OpenVideo(r.cfg)
	if err != nil {
		if !errors.Is(err, ErrSourceUnavailable) {
			err = fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
		}
		r.log.Errorw("Video stream failed to open", "error", err)
		r.finish(err)
		return
	}

	err = r.record(stream)

	if cerr := stream.Close(); cerr != nil {
		r.log.Warnw("Closing video stream", "error", cerr)
	}
	if err != nil {
		r.log.Errorw("Recording aborted", "error", err,
			"written", humanize.Bytes(r.bytes.Load()))
		r.finish(err)
		return
	}

	r.log.Infow("Recording finished",
		"output", r.cfg.OutputPath,
		"packets", r.packets.Load(),
		"written", humanize.Bytes(r.bytes.Load()))
	r.log.Infof("To wrap it in a container: ffmpeg -framerate %d -i %s -c copy video.mp4",
		r.cfg.FPS, r.cfg.OutputPath)
	r.finish(nil)
}

// record copies packets into the output file. Whatever was written is
// flushed even when the stream ends early; only a write error skips it.
func (r *Recorder) record(stream PacketStream) error {
	f, err := r.create(r.cfg.OutputPath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRecordingWrite, err)
	}
	w := bufio.NewWriterSize(f, 256*1024)

	rerr := r.copyPackets(stream, w)
	if !errors.Is(rerr, ErrRecordingWrite) {
		if err := w.Flush(); err != nil {
			rerr = fmt.Errorf("%w: %w", ErrRecordingWrite, err)
		}
	}
	if err := f.Close(); err != nil && rerr == nil {
		rerr = fmt.Errorf("%w: %w", ErrRecordingWrite, err)
	}
	return rerr
}

// copyPackets runs until stop is requested, the stream ends or a write
// fails. A stream that ends on its own is reported as ErrSourceUnavailable.
func (r *Recorder) copyPackets(stream PacketStream, w io.Writer) error {
	lastErrLog := time.Time{}

	for {
		if r.stopping() {
			return nil
		}

		pkt, err := stream.NextPacket(r.cfg.ReadTimeout)
		switch {
		case errors.Is(err, ErrReadTimeout):
		case errors.Is(err, ErrStreamEnded):
			if r.stopping() {
				return nil
			}
			return fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
		case err != nil:
			r.readErrors.Add(1)
			// At most one warning per second
			if time.Since(lastErrLog) > time.Second {
				r.log.Warnw("Packet read failed", "error", err, "errors", r.readErrors.Load())
				lastErrLog = time.Now()
			}
		case len(pkt) > 0:
			n, err := w.Write(pkt)
			r.bytes.Add(uint64(n))
			if err != nil {
				return fmt.Errorf("%w: %w", ErrRecordingWrite, err)
			}
			r.packets.Add(1)
			// Drain whatever is already queued before sleeping
			continue
		}

		select {
		case <-r.stopCh:
			return nil
		case <-time.After(r.cfg.PollInterval):
		}
	}
}
