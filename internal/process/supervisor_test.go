package process

import (
	"context"
	"sync/atomic"
	"syscall"
	"testing"
	"time"
)

func commandFactory(t *testing.T, command string, starts *atomic.Int32) Factory {
	t.Helper()
	args, err := SplitArgs(command)
	if err != nil {
		t.Fatalf("SplitArgs(%q): %v", command, err)
	}
	return func() (*Process, error) {
		starts.Add(1)
		p := New("test", args, testLogger())
		p.SetTimeouts(200*time.Millisecond, 200*time.Millisecond)
		return p, nil
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestSupervisorRestartsAfterCrash(t *testing.T) {
	var starts atomic.Int32
	var exits atomic.Int32
	var lastCode atomic.Int32

	s := NewSupervisor(commandFactory(t, "sh -c 'exit 3'", &starts), SupervisorOptions{
		Name:    "proxy",
		Backoff: 20 * time.Millisecond,
		Logger:  testLogger(),
		OnCrash: func(code int) {
			exits.Add(1)
			lastCode.Store(int32(code))
		},
	})
	s.Start(context.Background())
	defer s.Stop(syscall.SIGTERM)

	waitFor(t, 2*time.Second, func() bool { return exits.Load() >= 3 })

	if lastCode.Load() != 3 {
		t.Errorf("OnCrash exit code = %d, want 3", lastCode.Load())
	}
	if starts.Load() < 3 {
		t.Errorf("expected at least 3 starts, got %d", starts.Load())
	}
	if info := s.Info(); info.Restarts < 3 || info.LastExit != 3 {
		t.Errorf("Info() = %+v, want >= 3 restarts with last exit 3", info)
	}
}

func TestSupervisorCleanExitRestartsWithoutCrash(t *testing.T) {
	var starts atomic.Int32
	var crashes atomic.Int32

	s := NewSupervisor(commandFactory(t, "sh -c 'exit 0'", &starts), SupervisorOptions{
		Name:    "idle",
		Backoff: 20 * time.Millisecond,
		Logger:  testLogger(),
		OnCrash: func(int) { crashes.Add(1) },
	})
	s.Start(context.Background())
	defer s.Stop(syscall.SIGTERM)

	waitFor(t, 2*time.Second, func() bool { return starts.Load() >= 3 })

	if crashes.Load() != 0 {
		t.Errorf("OnCrash called %d times for clean exits", crashes.Load())
	}
	if info := s.Info(); info.LastExit != 0 {
		t.Errorf("Info().LastExit = %d, want 0", info.LastExit)
	}
}

func TestSupervisorStopIsNotACrash(t *testing.T) {
	var starts atomic.Int32
	var exits atomic.Int32

	s := NewSupervisor(commandFactory(t, "sleep 10", &starts), SupervisorOptions{
		Name:    "idle",
		Backoff: 20 * time.Millisecond,
		Logger:  testLogger(),
		OnCrash:  func(int) { exits.Add(1) },
	})
	s.Start(context.Background())
	waitFor(t, time.Second, func() bool { return s.Current() != nil })

	if info := s.Info(); info.State != StateRunning || info.PID == 0 {
		t.Errorf("Info() = %+v, want running with a pid", info)
	}

	s.Stop(syscall.SIGTERM)

	if exits.Load() != 0 {
		t.Errorf("OnCrash called %d times for a requested stop", exits.Load())
	}
	if starts.Load() != 1 {
		t.Errorf("expected exactly 1 start, got %d", starts.Load())
	}
	if info := s.Info(); info.State != StateStopped {
		t.Errorf("state after Stop = %s, want %s", info.State, StateStopped)
	}

	// Stopping twice is harmless.
	s.Stop(syscall.SIGTERM)
}

func TestSupervisorRetriesStartFailure(t *testing.T) {
	var starts atomic.Int32
	s := NewSupervisor(commandFactory(t, "/nonexistent/ffmpeg", &starts), SupervisorOptions{
		Name:    "broken",
		Backoff: 10 * time.Millisecond,
		Logger:  testLogger(),
	})
	s.Start(context.Background())
	waitFor(t, time.Second, func() bool { return starts.Load() >= 3 })
	s.Stop(syscall.SIGTERM)
}

func TestSupervisorContextCancel(t *testing.T) {
	var starts atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	s := NewSupervisor(commandFactory(t, "sleep 10", &starts), SupervisorOptions{
		Name:   "proxy",
		Logger: testLogger(),
	})
	s.Start(ctx)
	waitFor(t, time.Second, func() bool { return s.Current() != nil })

	p := s.Current()
	cancel()

	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("process still running after context cancel")
	}
	s.Stop(nil)
}
