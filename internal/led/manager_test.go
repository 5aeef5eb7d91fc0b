package led

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/camrelay/internal/events"
)

// mockController records every pattern set.
type mockController struct {
	mu    sync.Mutex
	calls []Pattern
	err   error
}

func (m *mockController) Set(p Pattern) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.calls = append(m.calls, p)
	return nil
}

func (m *mockController) Calls() []Pattern {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Pattern(nil), m.calls...)
}

func publish(bus *events.Bus, camera, from, to string) {
	bus.Publish(events.StateChangedEvent{Camera: camera, From: from, To: to, Timestamp: time.Now()})
}

func waitPattern(t *testing.T, mgr *Manager, want Pattern) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if mgr.Pattern() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("pattern = %q, want %q", mgr.Pattern(), want)
}

func TestManager_StartsOff(t *testing.T) {
	ctrl := &mockController{}
	mgr := NewManager(ctrl, events.New())
	mgr.Start()
	defer mgr.Stop()

	if got := ctrl.Calls(); len(got) != 1 || got[0] != Off {
		t.Errorf("calls = %v, want [off]", got)
	}
}

func TestManager_FollowsCameraStates(t *testing.T) {
	ctrl := &mockController{}
	bus := events.New()
	mgr := NewManager(ctrl, bus)
	mgr.Start()
	defer mgr.Stop()

	publish(bus, "front_door", "idle", "connecting")
	waitPattern(t, mgr, Blink)

	publish(bus, "back_yard", "idle", "connecting")
	publish(bus, "front_door", "connecting", "streaming")
	waitPattern(t, mgr, Solid)

	publish(bus, "front_door", "streaming", "idle")
	waitPattern(t, mgr, Blink)

	publish(bus, "back_yard", "connecting", "idle")
	waitPattern(t, mgr, Off)
}

func TestManager_SkipsUnchangedPattern(t *testing.T) {
	ctrl := &mockController{}
	bus := events.New()
	mgr := NewManager(ctrl, bus)
	mgr.Start()
	defer mgr.Stop()

	publish(bus, "front_door", "idle", "streaming")
	waitPattern(t, mgr, Solid)
	publish(bus, "back_yard", "idle", "streaming")
	publish(bus, "garage", "idle", "connecting")
	time.Sleep(50 * time.Millisecond)

	want := []Pattern{Off, Solid}
	got := ctrl.Calls()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestManager_StopSwitchesOff(t *testing.T) {
	ctrl := &mockController{}
	bus := events.New()
	mgr := NewManager(ctrl, bus)
	mgr.Start()

	publish(bus, "front_door", "idle", "streaming")
	waitPattern(t, mgr, Solid)
	mgr.Stop()

	if mgr.Pattern() != Off {
		t.Errorf("pattern after stop = %q, want off", mgr.Pattern())
	}

	publish(bus, "front_door", "idle", "streaming")
	time.Sleep(50 * time.Millisecond)
	if mgr.Pattern() != Off {
		t.Error("manager still reacting after stop")
	}
}

func TestManager_ControllerErrorRetriesNextEvent(t *testing.T) {
	ctrl := &mockController{err: errors.New("read-only filesystem")}
	bus := events.New()
	mgr := NewManager(ctrl, bus)
	mgr.Start()
	defer mgr.Stop()

	publish(bus, "front_door", "idle", "streaming")
	time.Sleep(50 * time.Millisecond)
	if mgr.Pattern() == Solid {
		t.Fatal("failed Set must not be recorded")
	}

	ctrl.mu.Lock()
	ctrl.err = nil
	ctrl.mu.Unlock()

	publish(bus, "back_yard", "idle", "connecting")
	waitPattern(t, mgr, Solid)
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name   string
		states map[string]string
		want   Pattern
	}{
		{"no cameras", map[string]string{}, Off},
		{"all idle", map[string]string{"a": "idle", "b": "idle"}, Off},
		{"connecting", map[string]string{"a": "idle", "b": "connecting"}, Blink},
		{"streaming wins", map[string]string{"a": "connecting", "b": "streaming"}, Solid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := aggregate(tt.states); got != tt.want {
				t.Errorf("aggregate() = %q, want %q", got, tt.want)
			}
		})
	}
}
