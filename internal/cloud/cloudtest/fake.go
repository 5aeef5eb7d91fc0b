// Package cloudtest provides in-memory cloud devices for tests.
package cloudtest

import (
	"context"
	"slices"
	"sync"

	"github.com/smazurov/camrelay/internal/cloud"
)

type callbacks struct {
	mu  sync.Mutex
	cbs map[string][]cloud.AttrCallback
}

func (c *callbacks) add(attr string, cb cloud.AttrCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cbs == nil {
		c.cbs = make(map[string][]cloud.AttrCallback)
	}
	c.cbs[attr] = append(c.cbs[attr], cb)
}

func (c *callbacks) emit(id, attr string, value any) {
	c.mu.Lock()
	cbs := slices.Concat(c.cbs[attr], c.cbs["*"])
	c.mu.Unlock()
	for _, cb := range cbs {
		cb(id, attr, value)
	}
}

func (c *callbacks) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, cbs := range c.cbs {
		n += len(cbs)
	}
	return n
}

// Camera is a scriptable cloud.Camera.
type Camera struct {
	DeviceID   string
	DeviceName string

	mu           sync.Mutex
	streamURLs   []string // consumed in order, last one repeats
	streamErr    error
	unavailable  bool
	off          bool
	batteries    bool
	battery      int
	lastImageURL string

	streamCalls   int
	snapshotCalls int
	stopCalls     int

	callbacks callbacks
}

// NewCamera returns an available, mains powered camera with no stream.
func NewCamera(id, name string) *Camera {
	return &Camera{DeviceID: id, DeviceName: name, battery: 100}
}

func (c *Camera) ID() string   { return c.DeviceID }
func (c *Camera) Name() string { return c.DeviceName }

func (c *Camera) AddAttrCallback(attr string, cb cloud.AttrCallback) {
	c.callbacks.add(attr, cb)
}

// Emit delivers an attribute change to every subscribed callback.
func (c *Camera) Emit(attr string, value any) {
	c.callbacks.emit(c.DeviceID, attr, value)
}

// Subscribed returns the number of registered callbacks.
func (c *Camera) Subscribed() int {
	return c.callbacks.count()
}

// SetStreamURLs scripts the results of successive GetStream calls.
func (c *Camera) SetStreamURLs(urls ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streamURLs = urls
}

// SetStreamError makes GetStream fail.
func (c *Camera) SetStreamError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streamErr = err
}

func (c *Camera) GetStream(context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streamCalls++
	if c.streamErr != nil {
		return "", c.streamErr
	}
	if len(c.streamURLs) == 0 {
		return "", nil
	}
	url := c.streamURLs[0]
	if len(c.streamURLs) > 1 {
		c.streamURLs = c.streamURLs[1:]
	}
	return url, nil
}

func (c *Camera) RequestSnapshot(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshotCalls++
	return nil
}

func (c *Camera) StopActivity(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopCalls++
	return nil
}

// Calls returns how often GetStream, RequestSnapshot and StopActivity ran.
func (c *Camera) Calls() (stream, snapshot, stop int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streamCalls, c.snapshotCalls, c.stopCalls
}

func (c *Camera) SetLastImageURL(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastImageURL = url
}

func (c *Camera) LastImageURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastImageURL
}

func (c *Camera) SetUnavailable(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unavailable = v
}

func (c *Camera) IsUnavailable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unavailable
}

func (c *Camera) SetOn(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.off = !on
}

func (c *Camera) IsOn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.off
}

// SetBattery makes the camera battery powered at level percent.
func (c *Camera) SetBattery(level int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batteries = true
	c.battery = level
}

func (c *Camera) HasBatteries() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.batteries
}

func (c *Camera) BatteryLevel() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.battery
}

// BaseStation is a scriptable cloud.BaseStation.
type BaseStation struct {
	DeviceID   string
	DeviceName string
	Modes      []string

	mu         sync.Mutex
	mode       string
	siren      string
	sirenCalls []cloud.SirenOptions

	callbacks callbacks
}

// NewBaseStation returns a disarmed base station.
func NewBaseStation(id, name string) *BaseStation {
	return &BaseStation{
		DeviceID:   id,
		DeviceName: name,
		Modes:      []string{"armed", "disarmed", "schedule"},
		mode:       "disarmed",
		siren:      "off",
	}
}

func (b *BaseStation) ID() string   { return b.DeviceID }
func (b *BaseStation) Name() string { return b.DeviceName }

func (b *BaseStation) AddAttrCallback(attr string, cb cloud.AttrCallback) {
	b.callbacks.add(attr, cb)
}

// Emit delivers an attribute change to every subscribed callback.
func (b *BaseStation) Emit(attr string, value any) {
	b.callbacks.emit(b.DeviceID, attr, value)
}

// Subscribed returns the number of registered callbacks.
func (b *BaseStation) Subscribed() int {
	return b.callbacks.count()
}

func (b *BaseStation) Mode() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mode
}

func (b *BaseStation) SirenState() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.siren
}

func (b *BaseStation) AvailableModes() []string {
	return b.Modes
}

func (b *BaseStation) SetMode(_ context.Context, mode string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mode = mode
	return nil
}

func (b *BaseStation) SirenOn(_ context.Context, opts cloud.SirenOptions) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.siren = "on"
	b.sirenCalls = append(b.sirenCalls, opts)
	return nil
}

func (b *BaseStation) SirenOff(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.siren = "off"
	return nil
}

// SirenCalls returns the options of every SirenOn call.
func (b *BaseStation) SirenCalls() []cloud.SirenOptions {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.sirenCalls)
}

// Client serves a fixed inventory.
type Client struct {
	CameraList      []cloud.Camera
	BaseStationList []cloud.BaseStation

	mu     sync.Mutex
	closed bool
}

func (c *Client) Cameras(context.Context) ([]cloud.Camera, error) {
	return c.CameraList, nil
}

func (c *Client) BaseStations(context.Context) ([]cloud.BaseStation, error) {
	return c.BaseStationList, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Closed reports whether Close was called.
func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

var (
	_ cloud.Camera      = (*Camera)(nil)
	_ cloud.BaseStation = (*BaseStation)(nil)
	_ cloud.Client      = (*Client)(nil)
)
