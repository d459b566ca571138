package camera

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// LoopStats is a snapshot of acquisition counters.
type LoopStats struct {
	Frames      uint64
	EmptyPolls  uint64
	Timeouts    uint64
	ReadErrors  uint64
	LastFrameAt time.Time
}

// Loop pulls frames from a Source on its own goroutine and publishes them.
// The stream handle is owned by that goroutine for the whole run and is
// closed before the loop reports Stopped.
type Loop struct {
	task

	source Source
	cfg    Config
	out    Publisher
	log    *zap.SugaredLogger

	seq uint64 // loop goroutine only

	frameCount   atomic.Uint64
	emptyCount   atomic.Uint64
	timeoutCount atomic.Uint64
	errorCount   atomic.Uint64
	lastFrameAt  atomic.Int64
}

// NewLoop creates an idle acquisition loop.
func NewLoop(source Source, cfg Config, out Publisher, log *zap.SugaredLogger) *Loop {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	l := &Loop{
		source: source,
		cfg:    cfg,
		out:    out,
		log:    log,
	}
	l.task.init()
	return l
}

// Start spawns the acquisition goroutine. Opening the source happens there,
// so a slow device never blocks the caller. An open failure ends the task
// with ErrSourceUnavailable, visible through Wait.
func (l *Loop) Start() error {
	if err := l.begin(); err != nil {
		return err
	}
	go l.run()
	return nil
}

// Stats returns the current counters.
func (l *Loop) Stats() LoopStats {
	s := LoopStats{
		Frames:     l.frameCount.Load(),
		EmptyPolls: l.emptyCount.Load(),
		Timeouts:   l.timeoutCount.Load(),
		ReadErrors: l.errorCount.Load(),
	}
	if ns := l.lastFrameAt.Load(); ns > 0 {
		s.LastFrameAt = time.Unix(0, ns)
	}
	return s
}

func (l *Loop) run() {
	l.log.Infow("Opening frame source",
		"device", l.cfg.Device, "size", fmt.Sprintf("%dx%d", l.cfg.Width, l.cfg.Height),
		"fps", l.cfg.FPS, "order", l.cfg.Order, "blocking", l.cfg.Blocking)

	stream, err := l.source.OpenPreview(l.cfg)
	if err != nil {
		if !errors.Is(err, ErrSourceUnavailable) {
			err = fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
		}
		l.log.Errorw("Frame source failed to open", "error", err)
		l.finish(err)
		return
	}

	err = l.loop(stream)

	if cerr := stream.Close(); cerr != nil {
		l.log.Warnw("Closing frame source", "error", cerr)
	}
	st := l.Stats()
	if err != nil {
		l.log.Errorw("Frame source lost", "error", err, "frames", st.Frames)
		l.finish(err)
		return
	}
	l.log.Infow("Acquisition stopped",
		"frames", st.Frames, "timeouts", st.Timeouts, "errors", st.ReadErrors)
	l.finish(nil)
}

// loop runs until stop is requested or the stream ends. A stream that ends
// on its own is reported as ErrSourceUnavailable.
func (l *Loop) loop(stream FrameStream) error {
	lastErrLog := time.Time{}

	for {
		if l.stopping() {
			return nil
		}

		frame, err := stream.NextFrame(l.cfg.ReadTimeout)
		switch {
		case errors.Is(err, ErrReadTimeout):
			l.timeoutCount.Add(1)
		case errors.Is(err, ErrStreamEnded):
			if l.stopping() {
				return nil
			}
			return fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
		case err != nil:
			l.errorCount.Add(1)
			// At most one warning per second
			if time.Since(lastErrLog) > time.Second {
				l.log.Warnw("Frame read failed", "error", err, "errors", l.errorCount.Load())
				lastErrLog = time.Now()
			}
		case frame.Empty():
			l.emptyCount.Add(1)
		default:
			l.deliver(frame)
		}

		select {
		case <-l.stopCh:
			return nil
		case <-time.After(l.cfg.PollInterval):
		}
	}
}

func (l *Loop) deliver(frame *Frame) {
	l.seq++
	frame.Seq = l.seq
	if frame.CapturedAt.IsZero() {
		frame.CapturedAt = time.Now()
	}

	count := l.frameCount.Add(1)
	l.lastFrameAt.Store(frame.CapturedAt.UnixNano())

	if count%300 == 1 {
		l.log.Debugw("Frame", "seq", frame.Seq, "size", fmt.Sprintf("%dx%d", frame.Width, frame.Height))
	}

	// Ownership passes to the publisher here.
	l.out.Publish(frame)
}
