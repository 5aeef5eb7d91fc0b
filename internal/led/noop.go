package led

import "github.com/smazurov/camrelay/internal/logging"

// noop stands in on machines without a usable LED.
type noop struct {
	logger logging.Logger
}

func (n noop) Set(p Pattern) error {
	n.logger.Debug("LED control not available (no-op)", "pattern", p)
	return nil
}
