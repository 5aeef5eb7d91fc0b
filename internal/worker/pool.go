// Package worker bounds the number of concurrent blocking vendor calls.
package worker

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/smazurov/camrelay/internal/logging"
)

// ErrPoolClosed is returned for work submitted after Close.
var ErrPoolClosed = errors.New("worker pool closed")

// Pool runs functions with at most size in flight.
type Pool struct {
	sem    *semaphore.Weighted
	logger logging.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New creates a pool. size < 1 is treated as 1.
func New(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		sem:    semaphore.NewWeighted(int64(size)),
		logger: logging.GetLogger("worker"),
	}
}

// Do runs fn and waits for it. It blocks while the pool is saturated and
// returns ctx.Err() if ctx ends first.
func (p *Pool) Do(ctx context.Context, fn func(context.Context) error) error {
	if !p.enter() {
		return ErrPoolClosed
	}
	defer p.wg.Done()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn(ctx)
}

// Go runs fn in the background. Errors are logged with name.
func (p *Pool) Go(ctx context.Context, name string, fn func(context.Context) error) {
	if !p.enter() {
		p.logger.Warn("Dropping work, pool closed", "task", name)
		return
	}
	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer p.sem.Release(1)
		if err := fn(ctx); err != nil {
			p.logger.Warn("Background task failed", "task", name, "error", err)
		}
	}()
}

// Call runs fn on the pool and returns its result.
func Call[T any](ctx context.Context, p *Pool, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}

// Close rejects new work and waits for running work to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) enter() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.wg.Add(1)
	return true
}
