package led

import (
	"os"
	"path/filepath"
	"testing"
)

func fakeLED(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "usr_led")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	return dir
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestSysfsController_Set(t *testing.T) {
	tests := []struct {
		pattern        Pattern
		wantTrigger    string
		wantBrightness string
	}{
		{Solid, "none", "1"},
		{Blink, "heartbeat", "1"},
		{Off, "none", "0"},
	}

	dir := fakeLED(t)
	ctrl := newSysfs(dir)
	for _, tt := range tests {
		t.Run(string(tt.pattern), func(t *testing.T) {
			if err := ctrl.Set(tt.pattern); err != nil {
				t.Fatalf("Set() error: %v", err)
			}
			if got := readFile(t, filepath.Join(dir, "trigger")); got != tt.wantTrigger {
				t.Errorf("trigger = %q, want %q", got, tt.wantTrigger)
			}
			if got := readFile(t, filepath.Join(dir, "brightness")); got != tt.wantBrightness {
				t.Errorf("brightness = %q, want %q", got, tt.wantBrightness)
			}
		})
	}
}

func TestSysfsController_UnknownPattern(t *testing.T) {
	ctrl := newSysfs(fakeLED(t))
	if err := ctrl.Set("disco"); err == nil {
		t.Error("Set() with unknown pattern should return error")
	}
}

func TestSysfsController_MissingLED(t *testing.T) {
	ctrl := newSysfs(filepath.Join(t.TempDir(), "gone"))
	if err := ctrl.Set(Solid); err == nil {
		t.Error("Set() on a missing LED should return error")
	}
}

func TestNoopController(t *testing.T) {
	ctrl := New("definitely_not_an_led")
	if _, ok := ctrl.(noop); !ok {
		t.Fatalf("New() = %T, want noop for a missing LED", ctrl)
	}
	if err := ctrl.Set(Solid); err != nil {
		t.Errorf("Set() returned error: %v", err)
	}
}

func TestDefaultLED(t *testing.T) {
	tests := map[string]string{
		"FriendlyElec NanoPC-T6":         "usr_led",
		"Orange Pi 5 Plus":               "green_led",
		"Raspberry Pi 4 Model B Rev 1.4": "ACT",
		"unknown":                        "",
	}
	for model, want := range tests {
		if got := defaultLED(model); got != want {
			t.Errorf("defaultLED(%q) = %q, want %q", model, got, want)
		}
	}
}

func TestDetectBoard(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model")
	if err := os.WriteFile(path, []byte("Raspberry Pi 4 Model B\x00"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := detectBoard(path); got != "Raspberry Pi 4 Model B" {
		t.Errorf("detectBoard() = %q", got)
	}
	if got := detectBoard(filepath.Join(t.TempDir(), "absent")); got != "unknown" {
		t.Errorf("detectBoard() on missing file = %q, want unknown", got)
	}
}
