// Package device holds the per-device actor shared by cameras and base
// stations: a callback bridge registration, a status heartbeat and the
// event dispatch loop.
package device

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/smazurov/camrelay/internal/bridge"
	"github.com/smazurov/camrelay/internal/cloud"
	"github.com/smazurov/camrelay/internal/logging"
)

// ErrInvalidControl is returned for control payloads a device cannot parse.
var ErrInvalidControl = errors.New("invalid control payload")

// Status is a named status snapshot.
type Status struct {
	Device string
	Fields map[string]any
}

// Device is what the fleet, the API and the NATS bridge see of a device.
type Device interface {
	ID() string
	Name() string
	Kind() cloud.Kind
	Run(ctx context.Context) error
	ListenStatus(ctx context.Context) <-chan Status
	Control(ctx context.Context, payload string) error
	ShutdownWhenIdle(ctx context.Context) error
	Shutdown(sig os.Signal)
}

// Handler is implemented by concrete device types.
type Handler interface {
	// HandleEvent processes one vendor attribute change.
	HandleEvent(attr string, value any)
	// Status computes the current status fields.
	Status() map[string]any
}

// Poster is implemented by handlers that own a mailbox. Post must not
// block; events posted in order are handled in order.
type Poster interface {
	Post(attr string, value any)
}

// NormalizeName lowercases a vendor name and replaces spaces with
// underscores.
func NormalizeName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

// Actor is embedded by every device type.
type Actor struct {
	id             string
	name           string
	kind           cloud.Kind
	statusInterval time.Duration
	vendor         cloud.Device
	handler        Handler
	queue          *bridge.Queue
	signal         chan struct{}
	logger         logging.Logger
}

// NewActor creates an actor for dev. The handler is set with SetHandler by
// the embedding type.
func NewActor(dev cloud.Device, kind cloud.Kind, statusInterval time.Duration) *Actor {
	if statusInterval <= 0 {
		statusInterval = 120 * time.Second
	}
	return &Actor{
		id:             dev.ID(),
		name:           NormalizeName(dev.Name()),
		kind:           kind,
		statusInterval: statusInterval,
		vendor:         dev,
		queue:          bridge.New(),
		signal:         make(chan struct{}, 1),
		logger:         logging.GetLogger("device"),
	}
}

// SetHandler installs the subtype handler. Must be called before Run.
func (a *Actor) SetHandler(h Handler) {
	a.handler = h
}

// ID returns the vendor device id.
func (a *Actor) ID() string { return a.id }

// Name returns the normalized device name.
func (a *Actor) Name() string { return a.name }

// Kind returns the device kind.
func (a *Actor) Kind() cloud.Kind { return a.kind }

// TriggerStatus asks for a status publish. Multiple triggers before the
// listener runs collapse into one.
func (a *Actor) TriggerStatus() {
	select {
	case a.signal <- struct{}{}:
	default:
	}
}

// Run subscribes to vendor callbacks, starts the heartbeat and dispatches
// events until ctx is canceled.
func (a *Actor) Run(ctx context.Context) error {
	if a.handler == nil {
		return errors.New("device: no handler set")
	}

	source, push := a.queue.Register(ctx, bridge.ForDevice(a.id))
	a.vendor.AddAttrCallback("*", cloud.AttrCallback(push))

	go a.heartbeat(ctx)

	a.logger.Debug("Device running", "device", a.name, "kind", a.kind)
	for ev := range source {
		a.dispatch(ev)
	}
	return ctx.Err()
}

func (a *Actor) dispatch(ev bridge.Event) {
	a.logger.Debug("Vendor event", "device", a.name, "attr", ev.Attr)
	if p, ok := a.handler.(Poster); ok {
		p.Post(ev.Attr, ev.Value)
		return
	}
	go a.handler.HandleEvent(ev.Attr, ev.Value)
}

func (a *Actor) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(a.statusInterval)
	defer ticker.Stop()

	a.TriggerStatus()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.TriggerStatus()
		}
	}
}

// ListenStatus yields a status snapshot every time the status signal is
// set, until ctx is canceled.
func (a *Actor) ListenStatus(ctx context.Context) <-chan Status {
	out := make(chan Status)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-a.signal:
			}
			st := Status{Device: a.name, Fields: a.handler.Status()}
			select {
			case out <- st:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// ShutdownWhenIdle returns immediately for devices without media.
func (a *Actor) ShutdownWhenIdle(context.Context) error {
	return nil
}

// Shutdown is a no-op for devices without media.
func (a *Actor) Shutdown(os.Signal) {}
