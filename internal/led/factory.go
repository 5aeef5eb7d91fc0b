package led

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/smazurov/camrelay/internal/logging"
)

const (
	deviceTreeModelPath = "/proc/device-tree/model"
	sysfsLEDPath        = "/sys/class/leds"
)

// boardLEDs maps a device tree model fragment to the LED used for
// activity on that board.
var boardLEDs = []struct {
	model string
	led   string
}{
	{"NanoPC-T6", "usr_led"},
	{"Orange Pi", "green_led"},
	{"Raspberry Pi", "ACT"},
}

// New returns a controller for the named sysfs LED. An empty name picks
// the activity LED of the detected board. Without a usable LED a no-op
// controller is returned.
func New(name string) Controller {
	logger := logging.GetLogger("led")

	if name == "" {
		model := detectBoard(deviceTreeModelPath)
		name = defaultLED(model)
		logger.Info("Detecting board for LED control", "board_model", model, "led", name)
	}
	if name == "" {
		logger.Info("No LED support detected, using no-op controller")
		return noop{logger: logger}
	}

	path := filepath.Join(sysfsLEDPath, name)
	if _, err := os.Stat(path); err != nil {
		logger.Warn("LED not found, using no-op controller", "path", path, "error", err)
		return noop{logger: logger}
	}
	return newSysfs(path)
}

func defaultLED(model string) string {
	for _, b := range boardLEDs {
		if strings.Contains(model, b.model) {
			return b.led
		}
	}
	return ""
}

// detectBoard reads the device tree model. It contains trailing NULs.
func detectBoard(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return "unknown"
	}
	return strings.TrimRight(string(data), "\x00")
}
