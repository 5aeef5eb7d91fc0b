// Package systemd reports service readiness and watchdog liveness to
// systemd. Outside a systemd unit every call is a no-op.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/smazurov/camrelay/internal/logging"
)

// Notifier sends sd_notify messages.
type Notifier struct {
	logger logging.Logger
	notify func(state string) (bool, error)
	// watchdog returns the WatchdogSec interval, zero when disabled.
	watchdog func() (time.Duration, error)
}

// NewNotifier creates a notifier for the current process.
func NewNotifier() *Notifier {
	return &Notifier{
		logger: logging.GetLogger("systemd"),
		notify: func(state string) (bool, error) {
			return daemon.SdNotify(false, state)
		},
		watchdog: func() (time.Duration, error) {
			return daemon.SdWatchdogEnabled(false)
		},
	}
}

// Ready reports that startup finished and starts watchdog pings when the
// unit has WatchdogSec set. Pings stop with ctx.
func (n *Notifier) Ready(ctx context.Context) {
	n.send(daemon.SdNotifyReady)

	interval, err := n.watchdog()
	if err != nil {
		n.logger.Warn("Failed to read watchdog settings", "error", err)
		return
	}
	if interval <= 0 {
		return
	}
	n.logger.Info("Systemd watchdog enabled", "interval", interval)
	go n.pingWatchdog(ctx, interval/2)
}

// Stopping reports that shutdown began.
func (n *Notifier) Stopping() {
	n.send(daemon.SdNotifyStopping)
}

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(status string) {
	n.send("STATUS=" + status)
}

func (n *Notifier) pingWatchdog(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.send(daemon.SdNotifyWatchdog)
		}
	}
}

func (n *Notifier) send(state string) {
	sent, err := n.notify(state)
	if err != nil {
		n.logger.Warn("sd_notify failed", "state", state, "error", err)
		return
	}
	if sent {
		n.logger.Debug("sd_notify", "state", state)
	}
}
