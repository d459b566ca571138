package camera

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// State is the lifecycle of a background task.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateCancelRequested
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCancelRequested:
		return "cancel-requested"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// task carries the Idle → Running → CancelRequested → Stopped lifecycle
// shared by the acquisition loop and the recorder. Stopped is terminal.
type task struct {
	state    atomic.Int32
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	err      error // written once before done is closed
}

func (t *task) init() {
	t.stopCh = make(chan struct{})
	t.done = make(chan struct{})
}

// begin moves Idle to Running. Any other state means the task was already
// used.
func (t *task) begin() error {
	if !t.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return ErrAlreadyStarted
	}
	return nil
}

// RequestStop asks the task to finish its current iteration and exit.
// A task that never started goes straight to Stopped.
func (t *task) RequestStop() {
	t.stopOnce.Do(func() {
		close(t.stopCh)
		if t.state.CompareAndSwap(int32(StateIdle), int32(StateStopped)) {
			close(t.done)
			return
		}
		t.state.CompareAndSwap(int32(StateRunning), int32(StateCancelRequested))
	})
}

// Wait blocks until the task is Stopped and returns the error it ended with.
func (t *task) Wait() error {
	<-t.done
	return t.err
}

// Done is closed once the task is Stopped.
func (t *task) Done() <-chan struct{} {
	return t.done
}

// State returns the current lifecycle state.
func (t *task) State() State {
	return State(t.state.Load())
}

func (t *task) stopping() bool {
	select {
	case <-t.stopCh:
		return true
	default:
		return false
	}
}

func (t *task) finish(err error) {
	t.err = err
	t.state.Store(int32(StateStopped))
	close(t.done)
}
