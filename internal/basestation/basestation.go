// Package basestation implements the base station device: a status of
// mode and siren state, and JSON control of both.
package basestation

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/smazurov/camrelay/internal/cloud"
	"github.com/smazurov/camrelay/internal/device"
	"github.com/smazurov/camrelay/internal/logging"
	"github.com/smazurov/camrelay/internal/worker"
)

// BaseStation is a device actor for a vendor base station.
type BaseStation struct {
	*device.Actor

	vendor cloud.BaseStation
	pool   *worker.Pool
	logger logging.Logger
}

// New creates a base station for bs. Vendor calls run on pool.
func New(bs cloud.BaseStation, statusInterval time.Duration, pool *worker.Pool) *BaseStation {
	b := &BaseStation{
		Actor:  device.NewActor(bs, cloud.KindBaseStation, statusInterval),
		vendor: bs,
		pool:   pool,
		logger: logging.GetLogger("device"),
	}
	b.SetHandler(b)
	b.logger.Info("Base station added", "device", b.Name())
	return b
}

// HandleEvent publishes a fresh status when the mode or siren changes.
func (b *BaseStation) HandleEvent(attr string, _ any) {
	switch attr {
	case cloud.AttrMode, cloud.AttrSiren:
		b.TriggerStatus()
	}
}

// Status returns {"mode", "siren"}.
func (b *BaseStation) Status() map[string]any {
	return map[string]any{
		"mode":  b.vendor.Mode(),
		"siren": b.vendor.SirenState(),
	}
}

type controlPayload struct {
	Mode  *string         `json:"mode"`
	Siren json.RawMessage `json:"siren"`
}

// Control applies a JSON payload such as {"mode":"armed"} or
// {"siren":{"duration":30,"volume":8}}. The payload is validated before
// anything is sent to the vendor; the vendor calls run in the background.
func (b *BaseStation) Control(ctx context.Context, payload string) error {
	var p controlPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return b.invalid(payload, err)
	}

	var tasks []func(context.Context) error
	if p.Mode != nil {
		mode := strings.ToLower(*p.Mode)
		if !slices.Contains(b.vendor.AvailableModes(), mode) {
			return b.invalid(payload, fmt.Errorf("unknown mode %q", *p.Mode))
		}
		tasks = append(tasks, func(ctx context.Context) error {
			return b.vendor.SetMode(ctx, mode)
		})
	}
	if len(p.Siren) > 0 {
		task, err := b.sirenTask(p.Siren)
		if err != nil {
			return b.invalid(payload, err)
		}
		tasks = append(tasks, task)
	}

	ctx = context.WithoutCancel(ctx)
	for _, task := range tasks {
		b.pool.Go(ctx, "control "+b.Name(), task)
	}
	return nil
}

func (b *BaseStation) sirenTask(raw json.RawMessage) (func(context.Context) error, error) {
	var state string
	if err := json.Unmarshal(raw, &state); err == nil {
		switch state {
		case "on":
			return func(ctx context.Context) error {
				return b.vendor.SirenOn(ctx, cloud.SirenOptions{})
			}, nil
		case "off":
			return b.vendor.SirenOff, nil
		}
		return nil, fmt.Errorf("unknown siren state %q", state)
	}

	var opts cloud.SirenOptions
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&opts); err != nil {
		return nil, fmt.Errorf("siren options: %w", err)
	}
	return func(ctx context.Context) error {
		return b.vendor.SirenOn(ctx, opts)
	}, nil
}

func (b *BaseStation) invalid(payload string, err error) error {
	b.logger.Warn("Invalid control payload", "device", b.Name(), "payload", payload, "error", err)
	return fmt.Errorf("%w: %w", device.ErrInvalidControl, err)
}

var _ device.Device = (*BaseStation)(nil)
