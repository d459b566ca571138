package camera

import (
	"sync/atomic"
	"time"
)

// boundedQueue sits between a device reader goroutine and the consumer.
// When full, the oldest entry is dropped so the consumer always sees recent
// data. There is exactly one producer; it closes the queue when it exits.
type boundedQueue[T any] struct {
	ch       chan T
	blocking bool
	dropped  atomic.Uint64
}

func newBoundedQueue[T any](size int, blocking bool) *boundedQueue[T] {
	if size <= 0 {
		size = 1
	}
	return &boundedQueue[T]{
		ch:       make(chan T, size),
		blocking: blocking,
	}
}

// push never blocks.
func (q *boundedQueue[T]) push(v T) {
	for {
		select {
		case q.ch <- v:
			return
		default:
		}
		select {
		case <-q.ch:
			q.dropped.Add(1)
		default:
		}
	}
}

// close is called by the producer only.
func (q *boundedQueue[T]) close() {
	close(q.ch)
}

// next returns the oldest queued entry. A non-blocking empty queue yields
// the zero value and no error; a closed and drained one ErrStreamEnded.
func (q *boundedQueue[T]) next(timeout time.Duration) (T, error) {
	var zero T

	if !q.blocking || timeout <= 0 {
		select {
		case v, ok := <-q.ch:
			if !ok {
				return zero, ErrStreamEnded
			}
			return v, nil
		default:
			if q.blocking {
				return zero, ErrReadTimeout
			}
			return zero, nil
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case v, ok := <-q.ch:
		if !ok {
			return zero, ErrStreamEnded
		}
		return v, nil
	case <-timer.C:
		return zero, ErrReadTimeout
	}
}

func (q *boundedQueue[T]) droppedCount() uint64 {
	return q.dropped.Load()
}
