package events

import "time"

// Event type constants for kelindar/event.
const (
	TypeStatus uint32 = iota + 1
	TypeMotion
	TypePicture
	TypeStateChanged
	TypeProcessCrashed
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// StatusEvent carries a device status snapshot, published on every
// heartbeat and on every status-relevant change.
type StatusEvent struct {
	Device    string         `json:"device" example:"front_door" doc:"Normalized device name"`
	Status    map[string]any `json:"status" doc:"Device specific status fields"`
	Timestamp time.Time      `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for StatusEvent.
func (e StatusEvent) Type() uint32 { return TypeStatus }

// MotionEvent reports a change of a camera's motion flag.
type MotionEvent struct {
	Camera    string    `json:"camera" example:"front_door" doc:"Camera name"`
	Motion    bool      `json:"motion" doc:"Motion currently detected"`
	Timestamp time.Time `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for MotionEvent.
func (e MotionEvent) Type() uint32 { return TypeMotion }

// PictureEvent carries a snapshot image.
type PictureEvent struct {
	Camera    string    `json:"camera" example:"front_door" doc:"Camera name"`
	Data      []byte    `json:"data" doc:"Image bytes"`
	Timestamp time.Time `json:"timestamp" doc:"Capture timestamp"`
}

// Type returns the event type identifier for PictureEvent.
func (e PictureEvent) Type() uint32 { return TypePicture }

// StateChangedEvent reports an accepted camera state transition.
type StateChangedEvent struct {
	Camera    string    `json:"camera" example:"front_door" doc:"Camera name"`
	From      string    `json:"from" example:"idle" doc:"Previous state"`
	To        string    `json:"to" example:"streaming" doc:"New state"`
	Timestamp time.Time `json:"timestamp" doc:"Transition timestamp"`
}

// Type returns the event type identifier for StateChangedEvent.
func (e StateChangedEvent) Type() uint32 { return TypeStateChanged }

// ProcessCrashedEvent reports an unexpected ffmpeg exit that will be
// restarted.
type ProcessCrashedEvent struct {
	Camera    string    `json:"camera" example:"front_door" doc:"Camera name"`
	Process   string    `json:"process" example:"proxy" doc:"proxy or idle"`
	ExitCode  int       `json:"exit_code" example:"1" doc:"Exit code of the process"`
	Timestamp time.Time `json:"timestamp" doc:"Exit timestamp"`
}

// Type returns the event type identifier for ProcessCrashedEvent.
func (e ProcessCrashedEvent) Type() uint32 { return TypeProcessCrashed }
