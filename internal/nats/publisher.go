package nats

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/smazurov/camrelay/internal/events"
	"github.com/smazurov/camrelay/internal/logging"
)

// Router delivers a control payload to the named device.
type Router interface {
	Control(ctx context.Context, device, payload string) error
}

// Options configures a Publisher.
type Options struct {
	URL           string
	Subjects      Subjects
	ReconnectWait time.Duration
	// ControlTimeout bounds one control dispatch.
	ControlTimeout time.Duration
}

// Publisher forwards bus events to NATS and routes control messages to
// devices. It keeps retrying while the server is unreachable; events
// published in the meantime are dropped.
type Publisher struct {
	opts   Options
	bus    *events.Bus
	router Router
	logger logging.Logger

	mu     sync.Mutex
	conn   *nats.Conn
	sub    *nats.Subscription
	unsubs []func()
}

// NewPublisher creates a publisher. Nothing connects until Start.
func NewPublisher(opts Options, bus *events.Bus, router Router) *Publisher {
	if opts.ReconnectWait <= 0 {
		opts.ReconnectWait = 5 * time.Second
	}
	if opts.ControlTimeout <= 0 {
		opts.ControlTimeout = 30 * time.Second
	}
	return &Publisher{
		opts:   opts,
		bus:    bus,
		router: router,
		logger: logging.GetLogger("nats"),
	}
}

// Start connects, subscribes to control subjects and starts forwarding
// bus events.
func (p *Publisher) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	conn, err := nats.Connect(p.opts.URL,
		nats.Name("camrelay"),
		nats.RetryOnFailedConnect(true),
		nats.ReconnectWait(p.opts.ReconnectWait),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				p.logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			p.logger.Info("NATS reconnected")
		}),
		nats.ConnectHandler(func(c *nats.Conn) {
			p.logger.Info("NATS connected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return err
	}

	sub, err := conn.Subscribe(p.opts.Subjects.ControlAll(), p.handleControl)
	if err != nil {
		conn.Close()
		return err
	}
	p.conn = conn
	p.sub = sub

	p.unsubs = append(p.unsubs,
		p.bus.Subscribe(p.onStatus),
		p.bus.Subscribe(p.onMotion),
		p.bus.Subscribe(p.onPicture),
		p.bus.Subscribe(p.onStateChanged),
		p.bus.Subscribe(p.onProcessCrashed),
	)
	p.logger.Info("NATS publisher started", "control", p.opts.Subjects.ControlAll())
	return nil
}

// Stop unsubscribes and drains the connection.
func (p *Publisher) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, unsub := range p.unsubs {
		unsub()
	}
	p.unsubs = nil

	if p.sub != nil {
		_ = p.sub.Unsubscribe()
		p.sub = nil
	}
	if p.conn != nil {
		if err := p.conn.Drain(); err != nil {
			p.conn.Close()
		}
		p.conn = nil
	}
	p.logger.Info("NATS publisher stopped")
}

// IsConnected returns true if the publisher is connected to NATS.
func (p *Publisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn != nil && p.conn.IsConnected()
}

func (p *Publisher) handleControl(msg *nats.Msg) {
	name, ok := p.opts.Subjects.DeviceFromControl(msg.Subject)
	if !ok {
		p.logger.Warn("Control on unexpected subject", "subject", msg.Subject)
		return
	}
	payload := string(msg.Data)
	p.logger.Info("Control received", "device", name, "payload", payload)

	ctx, cancel := context.WithTimeout(context.Background(), p.opts.ControlTimeout)
	defer cancel()

	reply := replyOK
	if err := p.router.Control(ctx, name, payload); err != nil {
		p.logger.Warn("Control failed", "device", name, "error", err)
		reply = replyErrPrefix + err.Error()
	}
	if msg.Reply != "" {
		if err := msg.Respond([]byte(reply)); err != nil {
			p.logger.Debug("Control reply failed", "device", name, "error", err)
		}
	}
}

func (p *Publisher) onStatus(e events.StatusEvent) {
	p.publishJSON(p.opts.Subjects.Status(e.Device), e.Status)
}

func (p *Publisher) onMotion(e events.MotionEvent) {
	p.publishJSON(p.opts.Subjects.Motion(e.Camera), e.Motion)
}

func (p *Publisher) onPicture(e events.PictureEvent) {
	p.publishJSON(p.opts.Subjects.Picture(e.Camera), NewPictureMessage(e.Camera, e.Data, e.Timestamp))
}

func (p *Publisher) onStateChanged(e events.StateChangedEvent) {
	p.publishJSON(p.opts.Subjects.State(e.Camera), StateMessage{
		From:      e.From,
		To:        e.To,
		Timestamp: e.Timestamp.Format(time.RFC3339),
	})
}

func (p *Publisher) onProcessCrashed(e events.ProcessCrashedEvent) {
	p.publishJSON(p.opts.Subjects.Crash(e.Camera), CrashMessage{
		Process:   e.Process,
		ExitCode:  e.ExitCode,
		Timestamp: e.Timestamp.Format(time.RFC3339),
	})
}

// publishJSON is a no-op while disconnected.
func (p *Publisher) publishJSON(subject string, v any) {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil || !conn.IsConnected() {
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		p.logger.Warn("Failed to marshal message", "subject", subject, "error", err)
		return
	}
	if err := conn.Publish(subject, data); err != nil {
		p.logger.Warn("Failed to publish", "subject", subject, "error", err)
	}
}
