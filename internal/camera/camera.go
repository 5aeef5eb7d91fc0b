// Package camera implements the per-camera state machine.
//
// A camera is idle (looping the idle video), connecting (live feed
// requested) or streaming (live feed swapped in). Vendor events, control
// commands and timer expiries are posted to a mailbox and handled one at a
// time by a single goroutine, which owns all state. Other goroutines only
// read the published View.
package camera

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/camrelay/internal/bridge"
	"github.com/smazurov/camrelay/internal/cloud"
	"github.com/smazurov/camrelay/internal/device"
	"github.com/smazurov/camrelay/internal/events"
	"github.com/smazurov/camrelay/internal/ffmpeg"
	"github.com/smazurov/camrelay/internal/logging"
	"github.com/smazurov/camrelay/internal/pictures"
	"github.com/smazurov/camrelay/internal/pipeline"
	"github.com/smazurov/camrelay/internal/worker"
)

// State is the camera state.
type State string

// Camera states.
const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateStreaming  State = "streaming"
)

// Pipeline is the media side of a camera.
type Pipeline interface {
	StartProxy(ctx context.Context) error
	ShowIdle(video string) error
	ShowLive(url string) error
	Shutdown(sig os.Signal)
	Status() pipeline.Status
}

// IdleBuilder picks or renders the idle video.
type IdleBuilder interface {
	Build(ctx context.Context, camera, lastImageURL string, res ffmpeg.Resolution) string
}

// Prober discovers the resolution of a live feed.
type Prober interface {
	Probe(ctx context.Context, url string) (ffmpeg.Resolution, error)
}

// Config holds the per-camera settings. It is read-only after New.
type Config struct {
	MotionTimeout     time.Duration
	StatusInterval    time.Duration
	DefaultResolution ffmpeg.Resolution
	PictureQueueSize  int
	// AvailabilityPoll is how often an unavailable camera is rechecked.
	AvailabilityPoll time.Duration
	// IdlePoll is how often ShutdownWhenIdle checks the state.
	IdlePoll time.Duration
	// ProbeTimeout bounds resolution discovery.
	ProbeTimeout time.Duration
}

// Deps are the collaborators of a camera.
type Deps struct {
	Pipeline Pipeline
	Idle     IdleBuilder
	Prober   Prober
	Pool     *worker.Pool
	Bus      *events.Bus
}

// Motion is one motion change.
type Motion struct {
	Camera string
	Motion bool
}

// View is a read-only snapshot of a camera.
type View struct {
	Name       string          `json:"name"`
	State      State           `json:"state"`
	Motion     bool            `json:"motion"`
	Battery    int             `json:"battery"`
	Resolution string          `json:"resolution"`
	IdleVideo  string          `json:"idle_video,omitempty"`
	Pipeline   pipeline.Status `json:"pipeline"`
}

// Camera is a device actor with a media pipeline.
type Camera struct {
	*device.Actor

	cfg      Config
	deps     Deps
	vendor   cloud.Camera
	pictures *pictures.Queue
	logger   logging.Logger

	mailbox  *bridge.FIFO[command]
	motionQ  *bridge.FIFO[Motion]
	motionOn atomic.Bool
	stopping atomic.Bool

	// Owned by the mailbox goroutine.
	state        State
	motion       bool
	timer        *time.Timer
	timerGen     uint64
	resolution   ffmpeg.Resolution
	probing      bool
	lastImageURL string
	idleVideo    string

	viewMu sync.RWMutex
	view   View
}

// New creates a camera for cam.
func New(cam cloud.Camera, cfg Config, deps Deps) *Camera {
	if cfg.MotionTimeout <= 0 {
		cfg.MotionTimeout = 60 * time.Second
	}
	if cfg.AvailabilityPoll <= 0 {
		cfg.AvailabilityPoll = 5 * time.Second
	}
	if cfg.IdlePoll <= 0 {
		cfg.IdlePoll = time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 15 * time.Second
	}
	if cfg.DefaultResolution.IsZero() {
		cfg.DefaultResolution = ffmpeg.Resolution{Width: 1280, Height: 720}
	}

	c := &Camera{
		Actor:   device.NewActor(cam, cloud.KindCamera, cfg.StatusInterval),
		cfg:     cfg,
		deps:    deps,
		vendor:  cam,
		logger:  logging.GetLogger("camera"),
		mailbox: bridge.NewFIFO[command](),
		motionQ: bridge.NewFIFO[Motion](),
	}
	c.pictures = pictures.NewQueue(c.Name(), cfg.PictureQueueSize)
	c.view = View{Name: c.Name()}
	c.SetHandler(c)
	c.logger.Info("Camera added", "camera", c.Name())
	return c
}

// Run waits for the camera to become available, starts the proxy, enters
// idle and then dispatches vendor events until ctx is canceled.
func (c *Camera) Run(ctx context.Context) error {
	if err := c.waitAvailable(ctx); err != nil {
		return err
	}
	if err := c.deps.Pipeline.StartProxy(ctx); err != nil {
		return fmt.Errorf("camera %s: %w", c.Name(), err)
	}

	go c.loop(ctx)
	c.mailbox.Push(command{kind: cmdStart})

	return c.Actor.Run(ctx)
}

func (c *Camera) waitAvailable(ctx context.Context) error {
	if !cloud.Unavailable(c.vendor) {
		return nil
	}
	c.logger.Info("Camera unavailable, waiting", "camera", c.Name())

	ticker := time.NewTicker(c.cfg.AvailabilityPoll)
	defer ticker.Stop()
	for cloud.Unavailable(c.vendor) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	c.logger.Info("Camera available", "camera", c.Name())
	return nil
}

// Post queues a vendor event for the mailbox. It never blocks.
func (c *Camera) Post(attr string, value any) {
	c.mailbox.Push(command{kind: cmdEvent, attr: attr, value: value})
}

// HandleEvent implements device.Handler by posting to the mailbox. Like
// Post it returns before the event is processed.
func (c *Camera) HandleEvent(attr string, value any) {
	c.Post(attr, value)
}

// Status returns the fields published on the status subject.
func (c *Camera) Status() map[string]any {
	v := c.View()
	return map[string]any{
		"battery": c.vendor.BatteryLevel(),
		"state":   string(v.State),
		"motion":  v.Motion,
	}
}

// State returns the current state, or "" before the camera started.
func (c *Camera) State() State {
	c.viewMu.RLock()
	defer c.viewMu.RUnlock()
	return c.view.State
}

// View returns a snapshot of the camera.
func (c *Camera) View() View {
	c.viewMu.RLock()
	v := c.view
	c.viewMu.RUnlock()
	v.Battery = c.vendor.BatteryLevel()
	v.Pipeline = c.deps.Pipeline.Status()
	return v
}

// Pictures returns the snapshot queue.
func (c *Camera) Pictures() *pictures.Queue {
	return c.pictures
}

// ListenMotion yields every motion change after the call until ctx is
// canceled.
func (c *Camera) ListenMotion(ctx context.Context) <-chan Motion {
	c.motionOn.Store(true)
	out := make(chan Motion)
	go func() {
		defer close(out)
		for {
			m, ok := c.motionQ.Next(ctx)
			if !ok {
				return
			}
			select {
			case out <- m:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Control handles START, STOP and SNAPSHOT (case-insensitive). START and
// STOP are applied asynchronously by the mailbox.
func (c *Camera) Control(ctx context.Context, payload string) error {
	action := strings.ToUpper(strings.TrimSpace(payload))
	switch action {
	case "START", "STOP":
		c.mailbox.Push(command{kind: cmdControl, action: action})
		return nil
	case "SNAPSHOT":
		// The caller's context may end with its request.
		c.deps.Pool.Go(context.WithoutCancel(ctx), "snapshot "+c.Name(), c.vendor.RequestSnapshot)
		return nil
	default:
		c.logger.Warn("Unknown control command", "camera", c.Name(), "payload", payload)
		return fmt.Errorf("%w: %q", device.ErrInvalidControl, payload)
	}
}

// ShutdownWhenIdle waits until the camera is idle and shuts it down. It
// returns ctx.Err() without shutting down if ctx ends first.
func (c *Camera) ShutdownWhenIdle(ctx context.Context) error {
	if !c.idle() {
		c.logger.Info("Camera active, waiting for idle before shutdown", "camera", c.Name())
		ticker := time.NewTicker(c.cfg.IdlePoll)
		defer ticker.Stop()
		for !c.idle() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	}
	c.Shutdown(nil)
	return nil
}

// Shutdown stops the pipeline immediately, signaling its processes with
// sig (SIGTERM when nil). Later mailbox commands are ignored.
func (c *Camera) Shutdown(sig os.Signal) {
	if c.stopping.Swap(true) {
		return
	}
	c.logger.Info("Shutting down camera", "camera", c.Name())
	c.deps.Pipeline.Shutdown(sig)
	c.motionQ.Close()
}

// idle reports whether shutdown may proceed. A camera that never started
// has nothing running and counts as idle.
func (c *Camera) idle() bool {
	s := c.State()
	return s == "" || s == StateIdle
}

var (
	errNoFeed       = errors.New("live feed unavailable")
	errSourceFailed = errors.New("live source failed")
)

var _ device.Device = (*Camera)(nil)
