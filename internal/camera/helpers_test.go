package camera

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// step is one scripted result of NextFrame / NextPacket.
type step struct {
	frame  *Frame
	packet []byte
	err    error
	delay  time.Duration
}

// scriptedSource replays a fixed list of results. After the script runs
// out it keeps returning nil, nil.
type scriptedSource struct {
	steps   []step
	openErr error

	opens  atomic.Int32
	stream *scriptedStream
}

func (s *scriptedSource) open() (*scriptedStream, error) {
	s.opens.Add(1)
	if s.openErr != nil {
		return nil, s.openErr
	}
	s.stream = &scriptedStream{steps: s.steps}
	return s.stream, nil
}

func (s *scriptedSource) OpenPreview(Config) (FrameStream, error) {
	st, err := s.open()
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (s *scriptedSource) OpenVideo(Config) (PacketStream, error) {
	st, err := s.open()
	if err != nil {
		return nil, err
	}
	return st, nil
}

type scriptedStream struct {
	mu    sync.Mutex
	steps []step
	pos   int

	reads  atomic.Int32
	closes atomic.Int32
}

func (s *scriptedStream) next() step {
	s.reads.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.steps) {
		return step{}
	}
	st := s.steps[s.pos]
	s.pos++
	return st
}

func (s *scriptedStream) NextFrame(time.Duration) (*Frame, error) {
	st := s.next()
	time.Sleep(st.delay)
	return st.frame, st.err
}

func (s *scriptedStream) NextPacket(time.Duration) ([]byte, error) {
	st := s.next()
	time.Sleep(st.delay)
	return st.packet, st.err
}

func (s *scriptedStream) Close() error {
	s.closes.Add(1)
	return nil
}

// timeoutStream always waits out the read timeout, like a blocking queue
// on a silent device.
type timeoutStream struct {
	closes atomic.Int32
}

type timeoutSource struct {
	stream timeoutStream
}

func (s *timeoutSource) OpenPreview(Config) (FrameStream, error) { return &s.stream, nil }
func (s *timeoutSource) OpenVideo(Config) (PacketStream, error) {
	return nil, errors.New("not supported")
}

func (s *timeoutStream) NextFrame(timeout time.Duration) (*Frame, error) {
	time.Sleep(timeout)
	return nil, ErrReadTimeout
}

func (s *timeoutStream) Close() error {
	s.closes.Add(1)
	return nil
}

// recordingSink remembers every frame it was handed.
type recordingSink struct {
	mu     sync.Mutex
	frames []*Frame
}

func (s *recordingSink) OnFrame(f *Frame) {
	s.mu.Lock()
	s.frames = append(s.frames, f)
	s.mu.Unlock()
}

func (s *recordingSink) snapshot() []*Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Frame(nil), s.frames...)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// manualDispatcher queues scheduled functions until the test runs them,
// standing in for a GUI thread that is busy.
type manualDispatcher struct {
	mu      sync.Mutex
	pending []func()
}

func (d *manualDispatcher) dispatch(fn func()) {
	d.mu.Lock()
	d.pending = append(d.pending, fn)
	d.mu.Unlock()
}

func (d *manualDispatcher) len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *manualDispatcher) runAll() {
	d.mu.Lock()
	fns := d.pending
	d.pending = nil
	d.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func testFrame(tag byte) *Frame {
	f, err := NewFrame(2, 1, 3, RGB, []byte{tag, tag, tag, tag, tag, tag})
	if err != nil {
		panic(err)
	}
	return f
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Device = "/dev/null"
	cfg.ReadTimeout = 20 * time.Millisecond
	cfg.PollInterval = time.Millisecond
	return cfg
}

func testLogger(t *testing.T) *zap.SugaredLogger {
	return zaptest.NewLogger(t).Sugar()
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}
