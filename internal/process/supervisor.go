package process

import (
	"context"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/smazurov/camrelay/internal/logging"
)

// Factory builds a fresh, unstarted Process for each run.
type Factory func() (*Process, error)

// SupervisorOptions configures a Supervisor.
type SupervisorOptions struct {
	Name    string
	Backoff time.Duration
	Logger  logging.Logger
	// OnCrash is called after every nonzero exit the supervisor did not
	// ask for, before the backoff.
	OnCrash func(exitCode int)
}

// Supervisor keeps a process running until stopped.
type Supervisor struct {
	opts    SupervisorOptions
	factory Factory

	mu       sync.Mutex
	current  *Process
	state    State
	restarts int
	lastExit int
	stopSig  os.Signal
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewSupervisor creates a stopped supervisor.
func NewSupervisor(factory Factory, opts SupervisorOptions) *Supervisor {
	if opts.Backoff <= 0 {
		opts.Backoff = 3 * time.Second
	}
	return &Supervisor{
		opts:    opts,
		factory: factory,
		state:   StateStopped,
	}
}

// Start begins supervising in the background. Calling Start on a running
// supervisor is a no-op.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.stopSig = syscall.SIGTERM
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.run(ctx)
	}()
}

// Stop signals the current process with sig and waits until the
// supervisor loop has exited.
func (s *Supervisor) Stop(sig os.Signal) {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	if sig != nil {
		s.stopSig = sig
	}
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Current returns the process currently running, or nil.
func (s *Supervisor) Current() *Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Info returns a status snapshot.
func (s *Supervisor) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := Info{
		Name:     s.opts.Name,
		State:    s.state,
		Restarts: s.restarts,
		LastExit: s.lastExit,
	}
	if s.current != nil {
		info.PID = s.current.PID()
		info.StartedAt = s.current.StartedAt()
	}
	return info
}

func (s *Supervisor) run(ctx context.Context) {
	logger := s.opts.Logger
	for {
		p, err := s.factory()
		if err == nil {
			err = p.Start()
		}
		if err != nil {
			logger.Warn("Failed to start process", "name", s.opts.Name, "error", err)
			s.setState(StateRestarting, nil)
			if !sleepCtx(ctx, s.opts.Backoff) {
				s.setState(StateStopped, nil)
				return
			}
			continue
		}
		s.setState(StateRunning, p)

		select {
		case <-ctx.Done():
			s.mu.Lock()
			sig := s.stopSig
			s.mu.Unlock()
			p.Stop(sig)
			s.setState(StateStopped, nil)
			return
		case <-p.Done():
		}

		code := p.ExitCode()
		if ctx.Err() != nil {
			s.setState(StateStopped, nil)
			return
		}

		s.mu.Lock()
		s.restarts++
		s.lastExit = code
		s.mu.Unlock()

		// A clean exit is not a crash, but the process is still expected to
		// run for the camera's lifetime.
		if code == 0 {
			logger.Info("Process exited, restarting", "name", s.opts.Name, "backoff", s.opts.Backoff)
		} else {
			logger.Warn("Process exited unexpectedly, restarting",
				"name", s.opts.Name, "exit_code", code, "backoff", s.opts.Backoff)
			if s.opts.OnCrash != nil {
				s.opts.OnCrash(code)
			}
		}

		s.setState(StateRestarting, nil)
		if !sleepCtx(ctx, s.opts.Backoff) {
			s.setState(StateStopped, nil)
			return
		}
	}
}

func (s *Supervisor) setState(state State, p *Process) {
	s.mu.Lock()
	s.state = state
	s.current = p
	s.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
