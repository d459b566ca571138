package camera

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRecorderWritesPackets(t *testing.T) {
	src := &scriptedSource{steps: []step{
		{packet: []byte("first-")},
		{},
		{err: ErrReadTimeout},
		{packet: []byte("second")},
	}}
	cfg := testConfig()
	cfg.Mode = ModeVideo
	cfg.OutputPath = filepath.Join(t.TempDir(), "video.mjpeg")

	rec := NewRecorder(src, cfg, testLogger(t))
	if rec.SessionID() == "" {
		t.Fatal("empty session id")
	}
	if err := rec.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	waitFor(t, "two packets", 2*time.Second, func() bool { return rec.Stats().Packets == 2 })

	rec.RequestStop()
	if err := rec.Wait(); err != nil {
		t.Fatalf("Wait() = %v", err)
	}

	data, err := os.ReadFile(cfg.OutputPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "first-second" {
		t.Errorf("file = %q, want %q", data, "first-second")
	}
	if st := rec.Stats(); st.Bytes != 12 || st.Path != cfg.OutputPath {
		t.Errorf("Stats() = %+v", st)
	}
	if n := src.stream.closes.Load(); n != 1 {
		t.Errorf("stream closed %d times, want 1", n)
	}
}

func TestRecorderCreateFailure(t *testing.T) {
	src := &scriptedSource{}
	cfg := testConfig()
	cfg.OutputPath = filepath.Join(t.TempDir(), "missing-dir", "video.mjpeg")

	rec := NewRecorder(src, cfg, testLogger(t))
	if err := rec.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	if err := rec.Wait(); !errors.Is(err, ErrRecordingWrite) {
		t.Fatalf("Wait() = %v, want ErrRecordingWrite", err)
	}
	if n := src.stream.closes.Load(); n != 1 {
		t.Errorf("stream closed %d times, want 1", n)
	}
}

// TestRecorderWriteFailure makes the output fail on the first write. The
// packet is larger than the write buffer so the error surfaces at once.
func TestRecorderWriteFailure(t *testing.T) {
	big := bytes.Repeat([]byte{0xAB}, 512*1024)
	src := &scriptedSource{steps: []step{{packet: big}}}
	cfg := testConfig()

	out := &failingFile{}
	rec := NewRecorder(src, cfg, testLogger(t))
	rec.create = func(string) (io.WriteCloser, error) { return out, nil }

	if err := rec.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	err := rec.Wait()
	if !errors.Is(err, ErrRecordingWrite) {
		t.Fatalf("Wait() = %v, want ErrRecordingWrite", err)
	}
	if !out.closed {
		t.Error("output file not closed")
	}
	if n := src.stream.closes.Load(); n != 1 {
		t.Errorf("stream closed %d times, want 1", n)
	}
	if rec.State() != StateStopped {
		t.Errorf("state = %v, want stopped", rec.State())
	}
}

func TestRecorderOpenFailure(t *testing.T) {
	src := &scriptedSource{openErr: errors.New("busy")}
	rec := NewRecorder(src, testConfig(), testLogger(t))
	if err := rec.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if err := rec.Wait(); !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("Wait() = %v, want ErrSourceUnavailable", err)
	}
}

type failingFile struct {
	closed bool
}

func (f *failingFile) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func (f *failingFile) Close() error {
	f.closed = true
	return nil
}

// brokenSource opens a packet stream whose every read fails, like gocv on a
// device that has gone away without closing.
type brokenSource struct {
	reads atomic.Int32
}

func (s *brokenSource) OpenPreview(Config) (FrameStream, error) {
	return nil, errors.New("not supported")
}

func (s *brokenSource) OpenVideo(Config) (PacketStream, error) { return s, nil }

func (s *brokenSource) NextPacket(time.Duration) ([]byte, error) {
	s.reads.Add(1)
	return nil, errors.New("cannot read frame")
}

func (s *brokenSource) Close() error { return nil }

// TestRecorderReadErrorsAreRateLimited keeps a recorder on a failing stream
// for a few hundred reads. Every failure is counted, but the log gets at
// most one warning per second.
func TestRecorderReadErrorsAreRateLimited(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	src := &brokenSource{}
	cfg := testConfig()
	cfg.OutputPath = filepath.Join(t.TempDir(), "video.mjpeg")

	rec := NewRecorder(src, cfg, zap.New(core).Sugar())
	if err := rec.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	waitFor(t, "repeated read errors", 2*time.Second, func() bool { return src.reads.Load() >= 50 })

	rec.RequestStop()
	if err := rec.Wait(); err != nil {
		t.Fatalf("Wait() = %v", err)
	}

	if n := logs.FilterMessage("Packet read failed").Len(); n < 1 || n > 2 {
		t.Errorf("read warnings = %d for %d failed reads, want 1 or 2", n, src.reads.Load())
	}
	if st := rec.Stats(); st.ReadErrors < 50 {
		t.Errorf("ReadErrors = %d, want at least 50", st.ReadErrors)
	}
}

// TestRecorderEndsWithStream unplugs the device mid-recording. The session
// ends by itself, and what was already written is on disk.
func TestRecorderEndsWithStream(t *testing.T) {
	src := &scriptedSource{steps: []step{
		{packet: []byte("kept")},
		{err: ErrStreamEnded},
	}}
	cfg := testConfig()
	cfg.OutputPath = filepath.Join(t.TempDir(), "video.mjpeg")

	rec := NewRecorder(src, cfg, testLogger(t))
	if err := rec.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	select {
	case <-rec.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("recorder kept running after the stream ended")
	}
	err := rec.Wait()
	if !errors.Is(err, ErrSourceUnavailable) || !errors.Is(err, ErrStreamEnded) {
		t.Fatalf("Wait() = %v, want ErrSourceUnavailable wrapping ErrStreamEnded", err)
	}
	if rec.State() != StateStopped {
		t.Errorf("State() = %v, want stopped", rec.State())
	}

	data, rerr := os.ReadFile(cfg.OutputPath)
	if rerr != nil || string(data) != "kept" {
		t.Errorf("file = %q, %v; want %q", data, rerr, "kept")
	}
	if n := src.stream.closes.Load(); n != 1 {
		t.Errorf("stream closed %d times, want 1", n)
	}
}
