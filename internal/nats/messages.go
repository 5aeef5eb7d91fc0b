package nats

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DefaultPrefix is the subject prefix used when none is configured.
const DefaultPrefix = "camrelay"

// Subjects builds the subject names under one prefix.
type Subjects struct {
	Prefix string
}

func (s Subjects) prefix() string {
	if s.Prefix == "" {
		return DefaultPrefix
	}
	return strings.TrimSuffix(s.Prefix, ".")
}

// Status returns the subject for device status messages.
func (s Subjects) Status(name string) string {
	return fmt.Sprintf("%s.status.%s", s.prefix(), name)
}

// Motion returns the subject for camera motion changes.
func (s Subjects) Motion(name string) string {
	return fmt.Sprintf("%s.motion.%s", s.prefix(), name)
}

// Picture returns the subject for camera snapshots.
func (s Subjects) Picture(name string) string {
	return fmt.Sprintf("%s.picture.%s", s.prefix(), name)
}

// State returns the subject for camera state transitions.
func (s Subjects) State(name string) string {
	return fmt.Sprintf("%s.state.%s", s.prefix(), name)
}

// Crash returns the subject for ffmpeg crash reports.
func (s Subjects) Crash(name string) string {
	return fmt.Sprintf("%s.crash.%s", s.prefix(), name)
}

// Control returns the subject a device listens on for commands.
func (s Subjects) Control(name string) string {
	return fmt.Sprintf("%s.control.%s", s.prefix(), name)
}

// ControlAll matches the control subject of every device.
func (s Subjects) ControlAll() string {
	return s.prefix() + ".control.*"
}

// DeviceFromControl extracts the device name from a control subject.
func (s Subjects) DeviceFromControl(subject string) (string, bool) {
	name, ok := strings.CutPrefix(subject, s.prefix()+".control.")
	if !ok || name == "" || strings.Contains(name, ".") {
		return "", false
	}
	return name, true
}

// PictureMessage is published on the picture subject. Payload is encoded
// as base64 by encoding/json.
type PictureMessage struct {
	Filename string `json:"filename"`
	Payload  []byte `json:"payload"`
}

// NewPictureMessage names the snapshot "<unix-nanos> <camera>.jpg".
func NewPictureMessage(camera string, data []byte, at time.Time) PictureMessage {
	return PictureMessage{
		Filename: fmt.Sprintf("%d %s.jpg", at.UnixNano(), camera),
		Payload:  data,
	}
}

// Marshal serializes the message to JSON.
func (m PictureMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// StateMessage is published on the state subject.
type StateMessage struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Timestamp string `json:"timestamp"`
}

// Marshal serializes the message to JSON.
func (m StateMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// CrashMessage is published on the crash subject.
type CrashMessage struct {
	Process   string `json:"process"`
	ExitCode  int    `json:"exit_code"`
	Timestamp string `json:"timestamp"`
}

// Marshal serializes the message to JSON.
func (m CrashMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalPicture deserializes a PictureMessage from JSON.
func UnmarshalPicture(data []byte) (PictureMessage, error) {
	var m PictureMessage
	err := json.Unmarshal(data, &m)
	return m, err
}
