package natsgw

import (
	"fmt"
	"strings"
)

// Inventory is the reply to the devices request.
type Inventory struct {
	Cameras      []CameraInfo      `json:"cameras"`
	BaseStations []BaseStationInfo `json:"base_stations"`
}

// CameraInfo describes one camera and its current attributes.
type CameraInfo struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Batteries bool           `json:"batteries,omitempty"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// BaseStationInfo describes one base station and its current attributes.
type BaseStationInfo struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Modes []string       `json:"modes"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// AttrMessage is pushed by the sidecar on every attribute change.
type AttrMessage struct {
	Attr  string `json:"attr"`
	Value any    `json:"value"`
}

// Reply answers every device request. A non-empty Error fails the call.
type Reply struct {
	URL   string `json:"url,omitempty"`
	Error string `json:"error,omitempty"`
}

// ModeRequest is the body of a mode request.
type ModeRequest struct {
	Mode string `json:"mode"`
}

// SirenRequest is the body of a siren request.
type SirenRequest struct {
	On       bool `json:"on"`
	Duration int  `json:"duration,omitempty"`
	Volume   int  `json:"volume,omitempty"`
}

// Device operations.
const (
	OpStream       = "stream"
	OpSnapshot     = "snapshot"
	OpStopActivity = "stop_activity"
	OpMode         = "mode"
	OpSiren        = "siren"
)

// Subjects builds the gateway subject names under one prefix.
type Subjects struct {
	Prefix string
}

func (s Subjects) prefix() string {
	if s.Prefix == "" {
		return "vendor"
	}
	return strings.TrimSuffix(s.Prefix, ".")
}

// Devices is the inventory request subject.
func (s Subjects) Devices() string {
	return s.prefix() + ".devices"
}

// Attr is the attribute push subject of one device.
func (s Subjects) Attr(id string) string {
	return fmt.Sprintf("%s.%s.attr", s.prefix(), id)
}

// AttrAll matches the attribute pushes of every device.
func (s Subjects) AttrAll() string {
	return s.prefix() + ".*.attr"
}

// Op is the request subject for an operation on one device.
func (s Subjects) Op(id, op string) string {
	return fmt.Sprintf("%s.%s.%s", s.prefix(), id, op)
}

// DeviceFromAttr extracts the device id from an attribute subject.
func (s Subjects) DeviceFromAttr(subject string) (string, bool) {
	rest, ok := strings.CutPrefix(subject, s.prefix()+".")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, ".attr")
	if !ok || id == "" || strings.Contains(id, ".") {
		return "", false
	}
	return id, true
}
