package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolLimitsConcurrency(t *testing.T) {
	p := New(2)
	defer p.Close()

	var running, peak atomic.Int32
	done := make(chan struct{})
	for range 6 {
		p.Go(context.Background(), "slow", func(context.Context) error {
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			running.Add(-1)
			done <- struct{}{}
			return nil
		})
	}
	for range 6 {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for tasks")
		}
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestCallReturnsValue(t *testing.T) {
	p := New(1)
	defer p.Close()

	url, err := Call(context.Background(), p, func(context.Context) (string, error) {
		return "rtsps://stream", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "rtsps://stream", url)

	boom := errors.New("boom")
	_, err = Call(context.Background(), p, func(context.Context) (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
}

func TestDoRespectsContext(t *testing.T) {
	p := New(1)
	defer p.Close()

	release := make(chan struct{})
	p.Go(context.Background(), "hold", func(context.Context) error {
		<-release
		return nil
	})
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Do(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}

func TestClosedPoolRejectsWork(t *testing.T) {
	p := New(1)
	p.Close()

	err := p.Do(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrPoolClosed)
}
