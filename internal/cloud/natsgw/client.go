// Package natsgw reaches the camera cloud through a sidecar that speaks
// NATS. The sidecar answers an inventory request, pushes attribute
// changes and serves one request subject per device operation.
//
//	vendor.devices                 inventory (request/reply)
//	vendor.{id}.attr               attribute changes (sidecar → camrelay)
//	vendor.{id}.stream             {"url": "..."}
//	vendor.{id}.snapshot
//	vendor.{id}.stop_activity
//	vendor.{id}.mode               {"mode": "armed"}
//	vendor.{id}.siren              {"on": true, "duration": 30, "volume": 8}
//
// Attribute values are cached so accessors never touch the network.
package natsgw

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/smazurov/camrelay/internal/cloud"
	"github.com/smazurov/camrelay/internal/logging"
)

// Options configures the gateway.
type Options struct {
	URL      string
	Subjects Subjects
	// RequestTimeout applies to calls whose context has no deadline.
	RequestTimeout time.Duration
}

// Client is a cloud.Client backed by the sidecar.
type Client struct {
	conn   *nats.Conn
	opts   Options
	logger logging.Logger

	mu      sync.RWMutex
	devices map[string]*node
	sub     *nats.Subscription

	cameras      []cloud.Camera
	baseStations []cloud.BaseStation
}

// Connector returns a cloud.Connector that dials url and loads the
// inventory.
func Connector(opts Options) cloud.Connector {
	return func(ctx context.Context) (cloud.Client, error) {
		return Connect(ctx, opts)
	}
}

// Connect dials the broker, subscribes to attribute pushes and loads the
// inventory.
func Connect(ctx context.Context, opts Options) (*Client, error) {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	logger := logging.GetLogger("vendor")

	conn, err := nats.Connect(opts.URL,
		nats.Name("camrelay-vendor"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("Vendor gateway disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("Vendor gateway reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect vendor gateway: %w", err)
	}

	c := &Client{
		conn:    conn,
		opts:    opts,
		logger:  logger,
		devices: make(map[string]*node),
	}

	// Subscribe before asking for the inventory so no push is lost.
	c.sub, err = conn.Subscribe(opts.Subjects.AttrAll(), c.handleAttr)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe attributes: %w", err)
	}

	if err := c.loadInventory(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) loadInventory(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	msg, err := c.conn.RequestWithContext(ctx, c.opts.Subjects.Devices(), nil)
	if err != nil {
		return fmt.Errorf("inventory request: %w", err)
	}
	var inv Inventory
	if err := json.Unmarshal(msg.Data, &inv); err != nil {
		return fmt.Errorf("inventory reply: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, info := range inv.Cameras {
		n := newNode(c, info.ID, info.Name, info.Attrs)
		c.devices[info.ID] = n
		c.cameras = append(c.cameras, &Camera{node: n, batteries: info.Batteries})
	}
	for _, info := range inv.BaseStations {
		n := newNode(c, info.ID, info.Name, info.Attrs)
		c.devices[info.ID] = n
		c.baseStations = append(c.baseStations, &BaseStation{node: n, modes: info.Modes})
	}
	c.logger.Info("Vendor inventory loaded", "cameras", len(inv.Cameras), "base_stations", len(inv.BaseStations))
	return nil
}

// Cameras returns the cameras of the inventory.
func (c *Client) Cameras(context.Context) ([]cloud.Camera, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cameras, nil
}

// BaseStations returns the base stations of the inventory.
func (c *Client) BaseStations(context.Context) ([]cloud.BaseStation, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseStations, nil
}

// Close unsubscribes and closes the connection.
func (c *Client) Close() error {
	if c.sub != nil {
		_ = c.sub.Unsubscribe()
	}
	c.conn.Close()
	return nil
}

func (c *Client) handleAttr(msg *nats.Msg) {
	id, ok := c.opts.Subjects.DeviceFromAttr(msg.Subject)
	if !ok {
		return
	}
	var m AttrMessage
	if err := json.Unmarshal(msg.Data, &m); err != nil || m.Attr == "" {
		c.logger.Warn("Malformed attribute push", "subject", msg.Subject, "error", err)
		return
	}

	c.mu.RLock()
	n := c.devices[id]
	c.mu.RUnlock()
	if n == nil {
		c.logger.Debug("Attribute for unknown device", "device_id", id, "attr", m.Attr)
		return
	}
	n.set(m.Attr, m.Value)
}

// call sends a request for op on device id and decodes the reply.
func (c *Client) call(ctx context.Context, id, op string, body any) (Reply, error) {
	var data []byte
	if body != nil {
		var err error
		if data, err = json.Marshal(body); err != nil {
			return Reply{}, err
		}
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	msg, err := c.conn.RequestWithContext(ctx, c.opts.Subjects.Op(id, op), data)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return Reply{}, fmt.Errorf("%s %s: vendor gateway not running", op, id)
		}
		return Reply{}, fmt.Errorf("%s %s: %w", op, id, err)
	}

	var reply Reply
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &reply); err != nil {
			return Reply{}, fmt.Errorf("%s %s: bad reply: %w", op, id, err)
		}
	}
	if reply.Error != "" {
		return reply, fmt.Errorf("%s %s: %s", op, id, reply.Error)
	}
	return reply, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.opts.RequestTimeout)
}

// node is the cached attribute state shared by both device types.
type node struct {
	client *Client
	id     string
	name   string

	mu        sync.RWMutex
	attrs     map[string]any
	callbacks map[string][]cloud.AttrCallback
}

func newNode(c *Client, id, name string, attrs map[string]any) *node {
	n := &node{
		client:    c,
		id:        id,
		name:      name,
		attrs:     make(map[string]any),
		callbacks: make(map[string][]cloud.AttrCallback),
	}
	maps.Copy(n.attrs, attrs)
	return n
}

func (n *node) ID() string   { return n.id }
func (n *node) Name() string { return n.name }

// AddAttrCallback subscribes cb to attr, or to every attribute for "*".
func (n *node) AddAttrCallback(attr string, cb cloud.AttrCallback) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.callbacks[attr] = append(n.callbacks[attr], cb)
}

func (n *node) set(attr string, value any) {
	n.mu.Lock()
	n.attrs[attr] = value
	cbs := append(append([]cloud.AttrCallback(nil), n.callbacks[attr]...), n.callbacks["*"]...)
	n.mu.Unlock()

	for _, cb := range cbs {
		cb(n.id, attr, value)
	}
}

func (n *node) get(attr string) (any, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	v, ok := n.attrs[attr]
	return v, ok
}

func (n *node) str(attr string) string {
	v, _ := n.get(attr)
	s, _ := v.(string)
	return s
}

func (n *node) num(attr string) (int, bool) {
	v, ok := n.get(attr)
	if !ok {
		return 0, false
	}
	switch x := v.(type) {
	case float64:
		return int(x), true
	case int:
		return x, true
	}
	return 0, false
}

func (n *node) flag(attr string) bool {
	v, _ := n.get(attr)
	b, _ := v.(bool)
	return b
}

var _ cloud.Client = (*Client)(nil)
