package camera

import (
	"errors"
	"testing"
	"time"
)

func TestQueueNonBlockingEmpty(t *testing.T) {
	q := newBoundedQueue[*Frame](2, false)

	start := time.Now()
	f, err := q.next(time.Second)
	if f != nil || err != nil {
		t.Fatalf("next() = %v, %v; want nil, nil", f, err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("non-blocking next waited %v", elapsed)
	}
}

func TestQueueBlockingTimeout(t *testing.T) {
	q := newBoundedQueue[*Frame](2, true)

	start := time.Now()
	_, err := q.next(30 * time.Millisecond)
	if !errors.Is(err, ErrReadTimeout) {
		t.Fatalf("next() err = %v, want ErrReadTimeout", err)
	}
	if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
		t.Errorf("returned after %v, before the timeout", elapsed)
	}
}

func TestQueueBlockingReceives(t *testing.T) {
	q := newBoundedQueue[*Frame](2, true)
	f := testFrame(1)

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.push(f)
	}()

	got, err := q.next(time.Second)
	if err != nil || got != f {
		t.Fatalf("next() = %v, %v", got, err)
	}
}

// TestQueueDropsOldest overflows a queue of two.
func TestQueueDropsOldest(t *testing.T) {
	q := newBoundedQueue[[]byte](2, false)
	q.push([]byte{1})
	q.push([]byte{2})
	q.push([]byte{3})

	for _, want := range []byte{2, 3} {
		got, err := q.next(0)
		if err != nil || len(got) != 1 || got[0] != want {
			t.Fatalf("next() = %v, %v; want [%d]", got, err, want)
		}
	}
	if n := q.droppedCount(); n != 1 {
		t.Errorf("droppedCount() = %d, want 1", n)
	}
}

// TestQueueClosed checks that queued entries survive close and that the
// drained queue then reports the end of the stream in both modes.
func TestQueueClosed(t *testing.T) {
	for _, blocking := range []bool{true, false} {
		q := newBoundedQueue[[]byte](2, blocking)
		q.push([]byte{7})
		q.close()

		if got, err := q.next(time.Second); err != nil || len(got) != 1 {
			t.Fatalf("blocking=%v: next() = %v, %v; want the queued entry", blocking, got, err)
		}
		start := time.Now()
		if _, err := q.next(time.Second); !errors.Is(err, ErrStreamEnded) {
			t.Errorf("blocking=%v: next() on drained queue err = %v, want ErrStreamEnded", blocking, err)
		}
		if time.Since(start) > 100*time.Millisecond {
			t.Errorf("blocking=%v: closed queue waited", blocking)
		}
	}
}
