package led

import (
	"fmt"
	"os"
	"path/filepath"
)

// sysfs drives an LED through /sys/class/leds/<name>.
type sysfs struct {
	path string
}

func newSysfs(path string) *sysfs {
	return &sysfs{path: path}
}

// Set writes the trigger and brightness for p. Blinking uses the kernel
// heartbeat trigger; the other patterns take manual control.
func (s *sysfs) Set(p Pattern) error {
	trigger, brightness := "none", "0"
	switch p {
	case Solid:
		brightness = "1"
	case Blink:
		trigger, brightness = "heartbeat", "1"
	case Off:
	default:
		return fmt.Errorf("unknown LED pattern %q", p)
	}

	if err := os.WriteFile(filepath.Join(s.path, "trigger"), []byte(trigger), 0o644); err != nil {
		return fmt.Errorf("failed to set LED trigger: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.path, "brightness"), []byte(brightness), 0o644); err != nil {
		return fmt.Errorf("failed to set LED brightness: %w", err)
	}
	return nil
}
