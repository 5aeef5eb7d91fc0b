package nats

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	replyOK        = "ok"
	replyErrPrefix = "error: "
)

// ControlClient sends control commands to a running service.
type ControlClient struct {
	conn     *nats.Conn
	subjects Subjects
	timeout  time.Duration
}

// NewControlClient connects to url.
func NewControlClient(url string, subjects Subjects, timeout time.Duration) (*ControlClient, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	conn, err := nats.Connect(url, nats.Name("camrelay-control"))
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", url, err)
	}
	return &ControlClient{conn: conn, subjects: subjects, timeout: timeout}, nil
}

// Send delivers payload to device and waits for the service to accept it.
func (c *ControlClient) Send(device, payload string) error {
	msg, err := c.conn.Request(c.subjects.Control(device), []byte(payload), c.timeout)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return fmt.Errorf("no service listening on %s", c.subjects.Control(device))
		}
		return fmt.Errorf("control %s: %w", device, err)
	}
	if reply := string(msg.Data); reply != replyOK {
		return errors.New(strings.TrimPrefix(reply, replyErrPrefix))
	}
	return nil
}

// Close closes the connection.
func (c *ControlClient) Close() {
	c.conn.Close()
}
