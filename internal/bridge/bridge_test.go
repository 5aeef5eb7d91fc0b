package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed early")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
		return Event{}
	}
}

func TestQueueDeliversInArrivalOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source, push := New().Register(ctx, nil)

	for i := range 100 {
		push("cam1", "motionDetected", i)
	}
	for i := range 100 {
		ev := receive(t, source)
		assert.Equal(t, i, ev.Value)
		assert.Equal(t, "cam1", ev.DeviceID)
	}
}

func TestPushNeverBlocksWithoutConsumer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := New()
	_, push := q.Register(ctx, nil)

	done := make(chan struct{})
	go func() {
		for i := range 10000 {
			push("cam1", "batteryLevel", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("push blocked with nobody reading")
	}
	// One event may already be parked in the pump waiting on the channel.
	assert.GreaterOrEqual(t, q.Len(), 9999)
}

func TestConcurrentPushNoLoss(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source, push := New().Register(ctx, nil)

	const producers, perProducer = 8, 200
	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perProducer {
				push("cam1", "attr", p*perProducer+i)
			}
		}()
	}
	wg.Wait()

	seen := make(map[int]bool)
	lastPerProducer := make(map[int]int)
	for range producers * perProducer {
		v := receive(t, source).Value.(int)
		seen[v] = true
		// Events from one producer keep their relative order.
		p := v / perProducer
		if last, ok := lastPerProducer[p]; ok {
			assert.Greater(t, v, last)
		}
		lastPerProducer[p] = v
	}
	assert.Len(t, seen, producers*perProducer)
}

func TestFilterIgnoresOtherDevices(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source, push := New().Register(ctx, ForDevice("cam1"))
	push("cam2", "motionDetected", true)
	push("cam1", "motionDetected", false)

	ev := receive(t, source)
	assert.Equal(t, "cam1", ev.DeviceID)
	assert.Equal(t, false, ev.Value)
}

func TestSourceClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	source, push := New().Register(ctx, nil)
	cancel()

	select {
	case _, ok := <-source:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("source not closed after cancel")
	}

	// Pushing after the consumer is gone is harmless.
	push("cam1", "motionDetected", true)
}

func TestFIFONextBlocksUntilPush(t *testing.T) {
	f := NewFIFO[int]()
	got := make(chan int, 1)
	go func() {
		v, ok := f.Next(context.Background())
		if ok {
			got <- v
		}
	}()

	select {
	case <-got:
		t.Fatal("Next returned before Push")
	case <-time.After(20 * time.Millisecond):
	}

	f.Push(42)
	select {
	case v := <-got:
		assert.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("Next did not return after Push")
	}
}

func TestFIFOClose(t *testing.T) {
	f := NewFIFO[string]()
	f.Push("a")
	f.Close()
	f.Push("b")
	assert.Equal(t, 0, f.Len())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok := f.Next(ctx)
	assert.False(t, ok)
}
