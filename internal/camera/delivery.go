package camera

import (
	"sync"
	"sync/atomic"
)

// DeliveryStats is a snapshot of delivery counters.
type DeliveryStats struct {
	Published uint64
	Delivered uint64
	Dropped   uint64 // overwritten before the GUI thread took them
}

// Delivery hands frames from the acquisition goroutine to the sink's thread.
// It holds at most one undelivered frame; a newer frame replaces it. At most
// one drain is queued on the dispatcher at any time, and the drain takes
// whatever frame is in the slot when it runs.
type Delivery struct {
	sink     Sink
	dispatch Dispatcher

	mu        sync.Mutex
	slot      *Frame
	scheduled bool
	closed    bool

	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// NewDelivery creates a delivery channel feeding sink through dispatch.
// A nil dispatch runs the sink inline on the publishing goroutine.
func NewDelivery(sink Sink, dispatch Dispatcher) *Delivery {
	if dispatch == nil {
		dispatch = func(fn func()) { fn() }
	}
	return &Delivery{
		sink:     sink,
		dispatch: dispatch,
	}
}

// Publish stores frame for the sink, replacing any undelivered frame.
// It never blocks on the consumer.
func (d *Delivery) Publish(frame *Frame) {
	if frame == nil {
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	if d.slot != nil {
		d.dropped.Add(1)
	}
	d.slot = frame
	schedule := !d.scheduled
	d.scheduled = true
	d.mu.Unlock()

	d.published.Add(1)
	if schedule {
		d.dispatch(d.drain)
	}
}

// drain runs on the sink's thread.
func (d *Delivery) drain() {
	d.mu.Lock()
	frame := d.slot
	d.slot = nil
	d.scheduled = false
	closed := d.closed
	d.mu.Unlock()

	if frame == nil || closed {
		return
	}
	d.delivered.Add(1)
	d.sink.OnFrame(frame)
}

// Close stops delivery. Pending drains find nothing to deliver.
func (d *Delivery) Close() {
	d.mu.Lock()
	d.closed = true
	if d.slot != nil {
		d.dropped.Add(1)
		d.slot = nil
	}
	d.mu.Unlock()
}

// Stats returns the current counters.
func (d *Delivery) Stats() DeliveryStats {
	return DeliveryStats{
		Published: d.published.Load(),
		Delivered: d.delivered.Load(),
		Dropped:   d.dropped.Load(),
	}
}
