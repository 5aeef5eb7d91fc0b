package led

import (
	"sync"

	"github.com/smazurov/camrelay/internal/events"
	"github.com/smazurov/camrelay/internal/logging"
)

// Manager follows camera state changes on the bus and sets the LED from
// the aggregate state.
type Manager struct {
	controller  Controller
	bus         *events.Bus
	logger      logging.Logger
	unsubscribe func()

	mu      sync.Mutex
	states  map[string]string // camera -> state
	current Pattern
}

// NewManager creates a manager. Nothing happens until Start.
func NewManager(controller Controller, bus *events.Bus) *Manager {
	return &Manager{
		controller: controller,
		bus:        bus,
		logger:     logging.GetLogger("led"),
		states:     make(map[string]string),
	}
}

// Start switches the LED off and begins listening.
func (m *Manager) Start() {
	m.mu.Lock()
	m.apply(Off)
	m.mu.Unlock()

	m.unsubscribe = m.bus.Subscribe(m.handleEvent)
	m.logger.Info("LED manager started")
}

// Stop unsubscribes and switches the LED off.
func (m *Manager) Stop() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	m.mu.Lock()
	m.apply(Off)
	m.mu.Unlock()
	m.logger.Info("LED manager stopped")
}

// Pattern returns the pattern last applied.
func (m *Manager) Pattern() Pattern {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *Manager) handleEvent(e events.StateChangedEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.states[e.Camera] = e.To
	m.logger.Debug("Camera state changed", "camera", e.Camera, "state", e.To)
	m.apply(aggregate(m.states))
}

func aggregate(states map[string]string) Pattern {
	p := Off
	for _, s := range states {
		switch s {
		case "streaming":
			return Solid
		case "connecting":
			p = Blink
		}
	}
	return p
}

// apply must be called with mu held.
func (m *Manager) apply(p Pattern) {
	if p == m.current {
		return
	}
	if err := m.controller.Set(p); err != nil {
		m.logger.Warn("Failed to set LED", "pattern", p, "error", err)
		return
	}
	m.current = p
}
