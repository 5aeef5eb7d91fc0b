// Package cloud defines what camrelay needs from the camera cloud.
//
// Attribute changes arrive through AddAttrCallback on any goroutine.
// Every other call may block on the network and is run from the worker
// pool, never from a device's dispatch loop.
package cloud

import (
	"context"
	"errors"
)

// ErrUnknownDevice is returned when an id is not part of the inventory.
var ErrUnknownDevice = errors.New("unknown device")

// Attribute names pushed by the cloud.
const (
	AttrMotion        = "motionDetected"
	AttrActivity      = "activityState"
	AttrLastImageData = "presignedLastImageData"
	AttrLastImageURL  = "presignedLastImageUrl"
	AttrBattery       = "batteryLevel"
	AttrConnection    = "connectionState"
	AttrMode          = "activeMode"
	AttrSiren         = "sirenState"
)

// Activity values of AttrActivity.
const (
	ActivityIdle       = "idle"
	ActivityUserStream = "userStreamActive"
)

// Kind distinguishes device types in the inventory.
type Kind string

// Device kinds.
const (
	KindCamera      Kind = "camera"
	KindBaseStation Kind = "basestation"
)

// AttrCallback receives attribute changes.
type AttrCallback func(deviceID, attr string, value any)

// Device is the common part of every vendor device.
type Device interface {
	ID() string
	Name() string
	// AddAttrCallback subscribes cb to attr, or to every attribute for "*".
	AddAttrCallback(attr string, cb AttrCallback)
}

// Camera is a streaming camera.
type Camera interface {
	Device
	// GetStream starts a live session. An empty URL means the vendor
	// refused or the feed is not available; it is not an error.
	GetStream(ctx context.Context) (string, error)
	RequestSnapshot(ctx context.Context) error
	StopActivity(ctx context.Context) error
	LastImageURL() string
	IsUnavailable() bool
	HasBatteries() bool
	BatteryLevel() int
	IsOn() bool
}

// SirenOptions configure SirenOn. Zero values use the vendor defaults.
type SirenOptions struct {
	Duration int `json:"duration,omitempty"`
	Volume   int `json:"volume,omitempty"`
}

// BaseStation is a hub with an alarm mode and a siren.
type BaseStation interface {
	Device
	Mode() string
	SirenState() string
	AvailableModes() []string
	SetMode(ctx context.Context, mode string) error
	SirenOn(ctx context.Context, opts SirenOptions) error
	SirenOff(ctx context.Context) error
}

// Client is a logged-in session with the camera cloud.
type Client interface {
	Cameras(ctx context.Context) ([]Camera, error)
	BaseStations(ctx context.Context) ([]BaseStation, error)
	Close() error
}

// Connector opens a new Client. The fleet reconnects on every refresh.
type Connector func(ctx context.Context) (Client, error)

// Unavailable reports whether a camera cannot stream right now: flagged
// by the vendor, switched off, or running on an empty battery.
func Unavailable(c Camera) bool {
	if c.IsUnavailable() || !c.IsOn() {
		return true
	}
	return c.HasBatteries() && c.BatteryLevel() == 0
}
