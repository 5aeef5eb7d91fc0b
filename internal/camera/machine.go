package camera

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/smazurov/camrelay/internal/cloud"
	"github.com/smazurov/camrelay/internal/events"
	"github.com/smazurov/camrelay/internal/ffmpeg"
	"github.com/smazurov/camrelay/internal/metrics"
	"github.com/smazurov/camrelay/internal/worker"
)

type cmdKind int

const (
	cmdStart cmdKind = iota
	cmdEvent
	cmdControl
	cmdTimeout
	cmdResolution
)

type command struct {
	kind       cmdKind
	attr       string
	value      any
	action     string
	gen        uint64
	resolution ffmpeg.Resolution
}

func (c *Camera) loop(ctx context.Context) {
	defer c.cancelTimer()
	for {
		cmd, ok := c.mailbox.Next(ctx)
		if !ok {
			return
		}
		if c.stopping.Load() {
			continue
		}
		c.handle(ctx, cmd)
	}
}

func (c *Camera) handle(ctx context.Context, cmd command) {
	switch cmd.kind {
	case cmdStart:
		c.enterIdle(ctx, false)
	case cmdEvent:
		c.onEvent(ctx, cmd.attr, cmd.value)
	case cmdControl:
		c.onControl(ctx, cmd.action)
	case cmdTimeout:
		if cmd.gen != c.timerGen || c.state == StateIdle {
			c.logger.Debug("Stale idle timer ignored", "camera", c.Name())
			return
		}
		c.logger.Info("Motion timeout, returning to idle", "camera", c.Name())
		c.enterIdle(ctx, true)
	case cmdResolution:
		c.resolution = cmd.resolution
		c.probing = false
		c.updateView(func(v *View) { v.Resolution = cmd.resolution.String() })
	}
}

func (c *Camera) onEvent(ctx context.Context, attr string, value any) {
	switch attr {
	case cloud.AttrMotion:
		motion := asBool(value)
		c.logger.Info("Motion", "camera", c.Name(), "motion", motion)
		c.setMotion(motion)
		if motion {
			c.cancelTimer()
			if c.state != StateStreaming {
				c.goLive(ctx)
			}
		} else if c.state != StateIdle {
			c.startTimer()
		}

	case cloud.AttrActivity:
		activity, _ := value.(string)
		switch activity {
		case cloud.ActivityIdle:
			switch c.state {
			case StateStreaming:
				c.logger.Info("Vendor session ended while streaming, requesting a new feed", "camera", c.Name())
				if err := c.requestLive(ctx); err != nil {
					c.enterIdle(ctx, false)
				}
			case StateConnecting:
				// The feed was requested by the camera itself, so once motion
				// is over it is bounded by the idle timer again.
				if c.goLive(ctx) == nil && !c.motion {
					c.startTimer()
				}
			}
		case cloud.ActivityUserStream:
			if c.state != StateStreaming {
				c.goLive(ctx)
			}
		}

	case cloud.AttrLastImageData:
		if !c.pictures.Listening() {
			return
		}
		if data, ok := asBytes(value); ok {
			c.pictures.Put(data)
		} else {
			c.logger.Warn("Snapshot data has unexpected type", "camera", c.Name(), "type", fmt.Sprintf("%T", value))
		}

	case cloud.AttrLastImageURL:
		if url, ok := value.(string); ok {
			c.lastImageURL = url
		}

	case cloud.AttrBattery, cloud.AttrConnection:
		c.TriggerStatus()
	}
}

func (c *Camera) onControl(ctx context.Context, action string) {
	c.logger.Info("Control command", "camera", c.Name(), "action", action)
	switch action {
	case "START":
		if c.state == StateIdle {
			c.goLive(ctx)
		}
	case "STOP":
		c.enterIdle(ctx, false)
	}
}

// goLive moves to connecting and tries to swap in the live feed. Without a
// feed the camera stays connecting; if motion has already ended the idle
// timer is armed so it does not stay there forever. A live source that
// fails to start sends the camera back to idle.
func (c *Camera) goLive(ctx context.Context) error {
	c.setState(StateConnecting)
	err := c.requestLive(ctx)
	switch {
	case err == nil:
	case errors.Is(err, errSourceFailed):
		c.enterIdle(ctx, false)
	case !c.motion && c.timer == nil:
		c.startTimer()
	}
	return err
}

// requestLive asks the vendor for a feed and swaps it in. It never touches
// the idle source; callers decide where a failure leaves the camera.
func (c *Camera) requestLive(ctx context.Context) error {
	url, err := worker.Call(ctx, c.deps.Pool, c.vendor.GetStream)
	if err != nil {
		c.logger.Warn("Live feed request failed", "camera", c.Name(), "error", err)
		return err
	}
	if url == "" {
		c.logger.Info("Live feed unavailable", "camera", c.Name())
		return errNoFeed
	}

	if err := c.deps.Pipeline.ShowLive(url); err != nil {
		c.logger.Warn("Failed to start live source", "camera", c.Name(), "error", err)
		return fmt.Errorf("%w: %w", errSourceFailed, err)
	}
	c.discoverResolution(ctx, url)
	c.setState(StateStreaming)
	return nil
}

func (c *Camera) enterIdle(ctx context.Context, stopActivity bool) {
	c.cancelTimer()
	if !c.setState(StateIdle) {
		return
	}
	c.showIdle(ctx)
	if stopActivity {
		c.deps.Pool.Go(ctx, "stop activity "+c.Name(), c.vendor.StopActivity)
	}
}

func (c *Camera) showIdle(ctx context.Context) {
	video := c.deps.Idle.Build(ctx, c.Name(), c.lastImageURL, c.currentResolution())
	c.idleVideo = video
	c.updateView(func(v *View) { v.IdleVideo = video })
	if err := c.deps.Pipeline.ShowIdle(video); err != nil {
		c.logger.Warn("Failed to start idle source", "camera", c.Name(), "error", err)
	}
}

// discoverResolution probes the first live feed once per camera lifetime.
// The result comes back through the mailbox.
func (c *Camera) discoverResolution(ctx context.Context, url string) {
	if !c.resolution.IsZero() || c.probing {
		return
	}
	if c.deps.Prober == nil {
		c.resolution = c.cfg.DefaultResolution
		return
	}
	c.probing = true
	go func() {
		pctx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
		defer cancel()
		res, err := c.deps.Prober.Probe(pctx, url)
		if err != nil {
			c.logger.Warn("Resolution probe failed, using default", "camera", c.Name(),
				"default", c.cfg.DefaultResolution.String(), "error", err)
			res = c.cfg.DefaultResolution
		}
		c.mailbox.Push(command{kind: cmdResolution, resolution: res})
	}()
}

func (c *Camera) currentResolution() ffmpeg.Resolution {
	if c.resolution.IsZero() {
		return c.cfg.DefaultResolution
	}
	return c.resolution
}

// setState is the only place the state changes. Re-entering the current
// state returns false and has no side effects. An accepted transition
// cancels the pending idle timer.
func (c *Camera) setState(next State) bool {
	if next == c.state {
		return false
	}
	c.cancelTimer()
	prev := c.state
	c.state = next
	c.updateView(func(v *View) { v.State = next })

	c.logger.Info("Camera state changed", "camera", c.Name(), "from", prev, "to", next)
	metrics.SetCameraState(c.Name(), string(next))
	c.TriggerStatus()
	if c.deps.Bus != nil {
		c.deps.Bus.Publish(events.StateChangedEvent{
			Camera:    c.Name(),
			From:      string(prev),
			To:        string(next),
			Timestamp: time.Now(),
		})
	}
	return true
}

func (c *Camera) setMotion(motion bool) {
	if motion == c.motion {
		return
	}
	c.motion = motion
	c.updateView(func(v *View) { v.Motion = motion })
	c.TriggerStatus()
	if c.motionOn.Load() {
		c.motionQ.Push(Motion{Camera: c.Name(), Motion: motion})
	}
}

// startTimer arms (or re-arms) the return-to-idle timer.
func (c *Camera) startTimer() {
	c.cancelTimer()
	gen := c.timerGen
	c.timer = time.AfterFunc(c.cfg.MotionTimeout, func() {
		c.mailbox.Push(command{kind: cmdTimeout, gen: gen})
	})
}

// cancelTimer stops the pending timer. Bumping the generation turns an
// expiry already queued in the mailbox into a no-op.
func (c *Camera) cancelTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerGen++
}

func (c *Camera) updateView(fn func(v *View)) {
	c.viewMu.Lock()
	fn(&c.view)
	c.viewMu.Unlock()
}

func asBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, _ := strconv.ParseBool(b)
		return parsed
	case float64:
		return b != 0
	case int:
		return b != 0
	}
	return false
}

// asBytes accepts raw bytes or a base64 string as delivered over JSON.
func asBytes(v any) ([]byte, bool) {
	switch d := v.(type) {
	case []byte:
		return d, true
	case string:
		if raw, err := base64.StdEncoding.DecodeString(d); err == nil {
			return raw, true
		}
		return []byte(d), true
	}
	return nil, false
}
