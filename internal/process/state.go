package process

import "time"

// State represents the current state of a supervised process.
type State string

// Supervisor states.
const (
	StateStopped    State = "stopped"    // Not running
	StateRunning    State = "running"    // Active
	StateRestarting State = "restarting" // Waiting out the backoff after a crash
)

// Info describes a supervised process for status reporting.
type Info struct {
	Name      string    `json:"name"`
	State     State     `json:"state"`
	PID       int       `json:"pid,omitempty"`
	StartedAt time.Time `json:"started_at,omitzero"`
	Restarts  int       `json:"restarts"`
	LastExit  int       `json:"last_exit"`
}
