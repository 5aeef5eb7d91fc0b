// Package bridge turns vendor callbacks, which arrive on arbitrary
// goroutines, into an ordered channel consumed by a single device loop.
package bridge

import (
	"context"
)

// Event is one attribute change reported by the vendor client.
type Event struct {
	DeviceID string
	Attr     string
	Value    any
}

// PushFunc enqueues an event. It never blocks and never drops.
type PushFunc func(deviceID, attr string, value any)

// Filter selects the events a registration accepts.
type Filter func(deviceID string) bool

// ForDevice accepts only events for id.
func ForDevice(id string) Filter {
	return func(deviceID string) bool { return deviceID == id }
}

// Queue is an unbounded FIFO between callback producers and one consumer.
// Vendor callback volume is low and a lost motion event is not acceptable,
// so the queue grows instead of dropping.
type Queue struct {
	fifo *FIFO[Event]
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{fifo: NewFIFO[Event]()}
}

// Register starts delivering queued events on the returned channel in
// arrival order until ctx is canceled, then closes it. The push function
// is safe for concurrent use; events rejected by filter are ignored.
func (q *Queue) Register(ctx context.Context, filter Filter) (<-chan Event, PushFunc) {
	out := make(chan Event)
	push := func(deviceID, attr string, value any) {
		if filter != nil && !filter(deviceID) {
			return
		}
		q.fifo.Push(Event{DeviceID: deviceID, Attr: attr, Value: value})
	}
	go q.pump(ctx, out)
	return out, push
}

// Len returns the number of events waiting for the consumer.
func (q *Queue) Len() int {
	return q.fifo.Len()
}

func (q *Queue) pump(ctx context.Context, out chan<- Event) {
	defer func() {
		q.fifo.Close()
		close(out)
	}()

	for {
		ev, ok := q.fifo.Next(ctx)
		if !ok {
			return
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return
		}
	}
}
