package camera

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

// SessionStats is a point-in-time view of a running session, used by the
// health log.
type SessionStats struct {
	Mode     Mode
	State    State
	Loop     LoopStats
	Delivery DeliveryStats
	Recorder RecorderStats
}

// Manager owns one capture session. Preview mode runs an acquisition loop
// feeding a delivery channel; video mode runs a recorder. The mode is fixed
// by the config the manager was built with.
type Manager struct {
	source Source
	cfg    Config
	log    *zap.SugaredLogger

	mutex    sync.RWMutex
	started  bool
	stopped  bool
	loop     *Loop
	delivery *Delivery
	recorder *Recorder
}

// NewManager creates a manager for a single session.
func NewManager(source Source, cfg Config, log *zap.SugaredLogger) *Manager {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Manager{
		source: source,
		cfg:    cfg,
		log:    log,
	}
}

// Mode returns the session mode.
func (m *Manager) Mode() Mode {
	return m.cfg.Mode
}

// Start begins the session. In preview mode frames reach sink through
// dispatch; video mode ignores both. Device open happens asynchronously,
// so its failure is reported by Wait, not here.
func (m *Manager) Start(sink Sink, dispatch Dispatcher) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.started {
		return ErrAlreadyStarted
	}
	if err := m.cfg.Validate(); err != nil {
		return err
	}

	switch m.cfg.Mode {
	case ModeVideo:
		m.recorder = NewRecorder(m.source, m.cfg, m.log.Named("recorder"))
		if err := m.recorder.Start(); err != nil {
			return err
		}
		m.log.Infow("Recording session started", "session", m.recorder.SessionID())
	default:
		if sink == nil {
			return errors.New("camera: preview needs a display sink")
		}
		m.delivery = NewDelivery(sink, dispatch)
		m.loop = NewLoop(m.source, m.cfg, m.delivery, m.log.Named("capture"))
		if err := m.loop.Start(); err != nil {
			return err
		}
		m.log.Infow("Preview session started", "order", m.cfg.Order)
	}

	m.started = true
	return nil
}

// Stop requests cancellation, waits for the worker to finish and closes the
// delivery channel. Safe to call more than once.
func (m *Manager) Stop() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if !m.started || m.stopped {
		return
	}
	m.stopped = true

	if m.loop != nil {
		m.loop.RequestStop()
		m.loop.Wait()
	}
	if m.delivery != nil {
		m.delivery.Close()
	}
	if m.recorder != nil {
		m.recorder.RequestStop()
		m.recorder.Wait()
	}
}

// Done is closed when the session worker has stopped, on its own or after
// Stop. It is nil before Start.
func (m *Manager) Done() <-chan struct{} {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	switch {
	case m.loop != nil:
		return m.loop.Done()
	case m.recorder != nil:
		return m.recorder.Done()
	}
	return nil
}

// Wait blocks until the session worker has stopped and returns the error
// it ended with: ErrSourceUnavailable or ErrRecordingWrite wraps, or nil.
func (m *Manager) Wait() error {
	m.mutex.RLock()
	loop, recorder := m.loop, m.recorder
	m.mutex.RUnlock()

	switch {
	case loop != nil:
		return loop.Wait()
	case recorder != nil:
		return recorder.Wait()
	}
	return ErrNotStarted
}

// Stats returns a snapshot of the session counters.
func (m *Manager) Stats() SessionStats {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	s := SessionStats{Mode: m.cfg.Mode, State: StateIdle}
	if m.loop != nil {
		s.State = m.loop.State()
		s.Loop = m.loop.Stats()
	}
	if m.delivery != nil {
		s.Delivery = m.delivery.Stats()
	}
	if m.recorder != nil {
		s.State = m.recorder.State()
		s.Recorder = m.recorder.Stats()
	}
	return s
}
