package bridge

import (
	"context"
	"sync"
)

// FIFO is an unbounded multi-producer, single-consumer queue. Push never
// blocks.
type FIFO[T any] struct {
	mu     sync.Mutex
	items  []T
	notify chan struct{}
	closed bool
}

// NewFIFO creates an empty FIFO.
func NewFIFO[T any]() *FIFO[T] {
	return &FIFO[T]{notify: make(chan struct{}, 1)}
}

// Push appends v. Pushing to a closed FIFO is a no-op.
func (f *FIFO[T]) Push(v T) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.items = append(f.items, v)
	f.mu.Unlock()

	select {
	case f.notify <- struct{}{}:
	default:
	}
}

// Next blocks until an item is available or ctx is canceled.
func (f *FIFO[T]) Next(ctx context.Context) (T, bool) {
	for {
		if v, ok := f.pop(); ok {
			return v, true
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, false
		case <-f.notify:
		}
	}
}

// Len returns the number of queued items.
func (f *FIFO[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

// Close drops queued items and rejects further pushes.
func (f *FIFO[T]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.items = nil
}

func (f *FIFO[T]) pop() (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var zero T
	if len(f.items) == 0 {
		return zero, false
	}
	v := f.items[0]
	f.items[0] = zero
	f.items = f.items[1:]
	return v, true
}
