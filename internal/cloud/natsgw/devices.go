package natsgw

import (
	"context"
	"slices"

	"github.com/smazurov/camrelay/internal/cloud"
)

// Attributes only the gateway reads.
const (
	attrPrivacy = "privacyActive"
)

// Camera is a cloud.Camera served by the sidecar.
type Camera struct {
	*node
	batteries bool
}

// GetStream asks the sidecar to start a live session.
func (c *Camera) GetStream(ctx context.Context) (string, error) {
	reply, err := c.client.call(ctx, c.id, OpStream, nil)
	return reply.URL, err
}

func (c *Camera) RequestSnapshot(ctx context.Context) error {
	_, err := c.client.call(ctx, c.id, OpSnapshot, nil)
	return err
}

func (c *Camera) StopActivity(ctx context.Context) error {
	_, err := c.client.call(ctx, c.id, OpStopActivity, nil)
	return err
}

func (c *Camera) LastImageURL() string {
	return c.str(cloud.AttrLastImageURL)
}

// IsUnavailable reports the vendor's connection state.
func (c *Camera) IsUnavailable() bool {
	return c.str(cloud.AttrConnection) == "unavailable"
}

func (c *Camera) HasBatteries() bool {
	return c.batteries
}

// BatteryLevel returns the last reported level, 100 if none was pushed.
func (c *Camera) BatteryLevel() int {
	if level, ok := c.num(cloud.AttrBattery); ok {
		return level
	}
	return 100
}

// IsOn is false while privacy mode is active.
func (c *Camera) IsOn() bool {
	return !c.flag(attrPrivacy)
}

// BaseStation is a cloud.BaseStation served by the sidecar.
type BaseStation struct {
	*node
	modes []string
}

func (b *BaseStation) Mode() string {
	return b.str(cloud.AttrMode)
}

// SirenState returns the last reported siren state, "off" if none.
func (b *BaseStation) SirenState() string {
	if s := b.str(cloud.AttrSiren); s != "" {
		return s
	}
	return "off"
}

func (b *BaseStation) AvailableModes() []string {
	return slices.Clone(b.modes)
}

func (b *BaseStation) SetMode(ctx context.Context, mode string) error {
	_, err := b.client.call(ctx, b.id, OpMode, ModeRequest{Mode: mode})
	return err
}

func (b *BaseStation) SirenOn(ctx context.Context, opts cloud.SirenOptions) error {
	_, err := b.client.call(ctx, b.id, OpSiren, SirenRequest{On: true, Duration: opts.Duration, Volume: opts.Volume})
	return err
}

func (b *BaseStation) SirenOff(ctx context.Context) error {
	_, err := b.client.call(ctx, b.id, OpSiren, SirenRequest{On: false})
	return err
}

var (
	_ cloud.Camera      = (*Camera)(nil)
	_ cloud.BaseStation = (*BaseStation)(nil)
)
