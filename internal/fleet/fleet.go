// Package fleet owns the vendor session and the devices built from it.
//
// A session connects to the vendor, creates one device actor per camera
// and base station and runs them until a refresh or shutdown. A refresh
// waits for every camera to be idle, closes the session and starts a new
// one. Shutdown stops every camera immediately, in parallel.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/smazurov/camrelay/internal/basestation"
	"github.com/smazurov/camrelay/internal/camera"
	"github.com/smazurov/camrelay/internal/cloud"
	"github.com/smazurov/camrelay/internal/device"
	"github.com/smazurov/camrelay/internal/events"
	"github.com/smazurov/camrelay/internal/logging"
	"github.com/smazurov/camrelay/internal/metrics"
	"github.com/smazurov/camrelay/internal/worker"
)

// Config configures the fleet.
type Config struct {
	Camera         camera.Config
	StatusInterval time.Duration
	// RefreshSchedule is a cron spec such as "@every 1h". Empty disables
	// periodic refresh.
	RefreshSchedule string
	// RetryInterval is the pause after a failed vendor connect.
	RetryInterval time.Duration
}

// Deps are the collaborators shared by every device.
type Deps struct {
	Connect     cloud.Connector
	NewPipeline func(camera string) camera.Pipeline
	Idle        camera.IdleBuilder
	Prober      camera.Prober
	Pool        *worker.Pool
	Bus         *events.Bus
}

// Fleet runs vendor sessions until stopped.
type Fleet struct {
	cfg    Config
	deps   Deps
	logger logging.Logger

	refresh  chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	sigMu    sync.Mutex
	stopSig  os.Signal

	mu      sync.RWMutex
	devices map[string]device.Device
	order   []string
}

// New creates a fleet. Nothing connects until Run.
func New(cfg Config, deps Deps) *Fleet {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 30 * time.Second
	}
	return &Fleet{
		cfg:     cfg,
		deps:    deps,
		logger:  logging.GetLogger("fleet"),
		refresh: make(chan struct{}, 1),
		stop:    make(chan struct{}),
		stopSig: syscall.SIGTERM,
		devices: make(map[string]device.Device),
	}
}

// Run connects and runs sessions until Stop is called or ctx is canceled.
func (f *Fleet) Run(ctx context.Context) error {
	if f.cfg.RefreshSchedule != "" {
		sched := cron.New()
		if _, err := sched.AddFunc(f.cfg.RefreshSchedule, f.Refresh); err != nil {
			return fmt.Errorf("refresh schedule %q: %w", f.cfg.RefreshSchedule, err)
		}
		sched.Start()
		defer sched.Stop()
		f.logger.Info("Periodic vendor refresh enabled", "schedule", f.cfg.RefreshSchedule)
	}

	for {
		client, err := f.deps.Connect(ctx)
		if err != nil {
			f.logger.Warn("Vendor connect failed, retrying", "error", err, "retry_in", f.cfg.RetryInterval)
			select {
			case <-ctx.Done():
				return nil
			case <-f.stop:
				return nil
			case <-time.After(f.cfg.RetryInterval):
				continue
			}
		}

		again := f.session(ctx, client)
		if err := client.Close(); err != nil {
			f.logger.Warn("Vendor close failed", "error", err)
		}
		if !again {
			return nil
		}
		f.logger.Info("Periodic refresh, reconnecting")
	}
}

// session runs one vendor session. It returns true when a refresh ended it.
func (f *Fleet) session(ctx context.Context, client cloud.Client) bool {
	devices, err := f.build(ctx, client)
	if err != nil {
		f.logger.Warn("Failed to load inventory", "error", err)
	}
	f.setDevices(devices)
	defer f.clearDevices(devices)

	sctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(sctx)
	for _, d := range devices {
		f.runDevice(g, gctx, d)
	}

	refreshed := false
	select {
	case <-ctx.Done():
		f.shutdownAll(devices)
	case <-f.stop:
		f.shutdownAll(devices)
	case <-f.refresh:
		refreshed = true
		if !f.shutdownWhenIdle(ctx, devices) {
			refreshed = false
			f.shutdownAll(devices)
		}
	}

	cancel()
	_ = g.Wait()
	return refreshed
}

func (f *Fleet) build(ctx context.Context, client cloud.Client) ([]device.Device, error) {
	var devices []device.Device
	seen := make(map[string]bool)
	unique := func(dev cloud.Device) bool {
		name := device.NormalizeName(dev.Name())
		if seen[name] {
			f.logger.Warn("Duplicate device name, skipping", "device", name, "id", dev.ID())
			return false
		}
		seen[name] = true
		return true
	}

	cams, err := client.Cameras(ctx)
	if err != nil {
		return nil, fmt.Errorf("cameras: %w", err)
	}
	for _, vc := range cams {
		if !unique(vc) {
			continue
		}
		devices = append(devices, camera.New(vc, f.cfg.Camera, camera.Deps{
			Pipeline: f.deps.NewPipeline(device.NormalizeName(vc.Name())),
			Idle:     f.deps.Idle,
			Prober:   f.deps.Prober,
			Pool:     f.deps.Pool,
			Bus:      f.deps.Bus,
		}))
	}

	bases, err := client.BaseStations(ctx)
	if err != nil {
		return devices, fmt.Errorf("base stations: %w", err)
	}
	for _, vb := range bases {
		if unique(vb) {
			devices = append(devices, basestation.New(vb, f.cfg.StatusInterval, f.deps.Pool))
		}
	}
	return devices, nil
}

// runDevice starts the actor and the pumps feeding its outputs to the bus.
// A failing device never ends the session.
func (f *Fleet) runDevice(g *errgroup.Group, ctx context.Context, d device.Device) {
	g.Go(func() error {
		if err := d.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			f.logger.Warn("Device stopped", "device", d.Name(), "error", err)
		}
		return nil
	})

	g.Go(func() error {
		for st := range d.ListenStatus(ctx) {
			f.publish(events.StatusEvent{Device: st.Device, Status: st.Fields, Timestamp: time.Now()})
		}
		return nil
	})

	cam, ok := d.(*camera.Camera)
	if !ok {
		return
	}
	g.Go(func() error {
		for m := range cam.ListenMotion(ctx) {
			f.publish(events.MotionEvent{Camera: m.Camera, Motion: m.Motion, Timestamp: time.Now()})
		}
		return nil
	})
	g.Go(func() error {
		for p := range cam.Pictures().Listen(ctx) {
			f.publish(events.PictureEvent{Camera: p.Camera, Data: p.Data, Timestamp: time.Now()})
		}
		return nil
	})
}

func (f *Fleet) publish(ev events.Event) {
	if f.deps.Bus != nil {
		f.deps.Bus.Publish(ev)
	}
}

// shutdownWhenIdle waits for every device to go idle. It returns false if
// a stop or ctx ended the wait first.
func (f *Fleet) shutdownWhenIdle(ctx context.Context, devices []device.Device) bool {
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-f.stop:
			cancel()
		case <-wctx.Done():
		}
	}()

	g, gctx := errgroup.WithContext(wctx)
	for _, d := range devices {
		g.Go(func() error { return d.ShutdownWhenIdle(gctx) })
	}
	if err := g.Wait(); err != nil {
		f.logger.Info("Refresh interrupted, shutting down immediately", "error", err)
		return false
	}
	return true
}

func (f *Fleet) shutdownAll(devices []device.Device) {
	f.sigMu.Lock()
	sig := f.stopSig
	f.sigMu.Unlock()

	var wg sync.WaitGroup
	for _, d := range devices {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Shutdown(sig)
		}()
	}
	wg.Wait()
}

// Refresh asks the running session to end once every camera is idle and
// reconnect. Repeated calls before it happens collapse into one.
func (f *Fleet) Refresh() {
	select {
	case f.refresh <- struct{}{}:
	default:
	}
}

// Stop ends Run. Every camera signals its processes with sig right away.
func (f *Fleet) Stop(sig os.Signal) {
	f.stopOnce.Do(func() {
		f.sigMu.Lock()
		if sig != nil {
			f.stopSig = sig
		}
		f.logger.Info("Shutting down", "signal", f.stopSig)
		f.sigMu.Unlock()
		close(f.stop)
	})
}

func (f *Fleet) setDevices(devices []device.Device) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range devices {
		f.devices[d.Name()] = d
		f.order = append(f.order, d.Name())
	}
}

func (f *Fleet) clearDevices(devices []device.Device) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range devices {
		delete(f.devices, d.Name())
		if d.Kind() == cloud.KindCamera {
			metrics.DeleteCamera(d.Name())
		}
	}
	f.order = slices.DeleteFunc(f.order, func(name string) bool {
		_, ok := f.devices[name]
		return !ok
	})
}

// Devices returns the devices of the current session in inventory order.
func (f *Fleet) Devices() []device.Device {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]device.Device, 0, len(f.order))
	for _, name := range f.order {
		out = append(out, f.devices[name])
	}
	return out
}

// Device looks up a device by normalized name.
func (f *Fleet) Device(name string) (device.Device, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	d, ok := f.devices[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", cloud.ErrUnknownDevice, name)
	}
	return d, nil
}

// Control delivers payload to the named device.
func (f *Fleet) Control(ctx context.Context, name, payload string) error {
	d, err := f.Device(name)
	if err != nil {
		f.logger.Warn("Control for unknown device", "device", name)
		return err
	}
	return d.Control(ctx, payload)
}
