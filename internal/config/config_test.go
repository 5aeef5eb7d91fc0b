package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testOptions struct {
	Config string

	Output        string        `toml:"ffmpeg.output" env:"FFMPEG_OUTPUT"`
	Debug         bool          `toml:"debug" env:"DEBUG"`
	QueueSize     int           `toml:"camera.picture_queue_size" env:"CAMERA_PICTURE_QUEUE_SIZE"`
	MotionTimeout time.Duration `toml:"camera.motion_timeout" env:"CAMERA_MOTION_TIMEOUT"`
	Ratio         float64       `toml:"camera.ratio" env:"CAMERA_RATIO"`
	Tags          []string      `toml:"camera.tags" env:"CAMERA_TAGS"`
	NatsURL       string        `toml:"nats.url" env:"NATS_URL"`
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const sampleTOML = `
debug = true

[ffmpeg]
output = "rtsp://localhost:8554/{name}"

[camera]
picture_queue_size = 5
motion_timeout = 90
ratio = 2
tags = ["front", "back"]

[nats]
url = "nats://broker:4222"
`

func TestLoadConfigFromTOML(t *testing.T) {
	opts := &testOptions{Config: writeFile(t, sampleTOML)}

	require.NoError(t, LoadConfig(opts, nil))

	assert.Equal(t, "rtsp://localhost:8554/{name}", opts.Output)
	assert.True(t, opts.Debug)
	assert.Equal(t, 5, opts.QueueSize)
	assert.Equal(t, 90*time.Second, opts.MotionTimeout)
	assert.InDelta(t, 2.0, opts.Ratio, 0.0001)
	assert.Equal(t, []string{"front", "back"}, opts.Tags)
	assert.Equal(t, "nats://broker:4222", opts.NatsURL)
}

func TestLoadConfigDurationString(t *testing.T) {
	opts := &testOptions{Config: writeFile(t, "[camera]\nmotion_timeout = \"1m30s\"\n")}

	require.NoError(t, LoadConfig(opts, nil))
	assert.Equal(t, 90*time.Second, opts.MotionTimeout)
}

func TestLoadConfigEnvOverridesTOML(t *testing.T) {
	t.Setenv("CAMRELAY_FFMPEG_OUTPUT", "rtmp://relay/{name}")
	t.Setenv("CAMRELAY_CAMERA_MOTION_TIMEOUT", "30")
	t.Setenv("CAMRELAY_CAMERA_TAGS", "a, b ,c")
	t.Setenv("CAMRELAY_DEBUG", "false")

	opts := &testOptions{Config: writeFile(t, sampleTOML)}
	require.NoError(t, LoadConfig(opts, nil))

	assert.Equal(t, "rtmp://relay/{name}", opts.Output)
	assert.Equal(t, 30*time.Second, opts.MotionTimeout)
	assert.Equal(t, []string{"a", "b", "c"}, opts.Tags)
	assert.False(t, opts.Debug)
	assert.Equal(t, 5, opts.QueueSize)
}

func TestLoadConfigEnvDurationString(t *testing.T) {
	t.Setenv("CAMRELAY_CAMERA_MOTION_TIMEOUT", "2m")

	opts := &testOptions{}
	require.NoError(t, LoadConfig(opts, nil))
	assert.Equal(t, 2*time.Minute, opts.MotionTimeout)
}

func TestLoadConfigCLIFlagsWin(t *testing.T) {
	t.Setenv("CAMRELAY_NATS_URL", "nats://env:4222")

	opts := &testOptions{Config: writeFile(t, sampleTOML)}
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().StringVar(&opts.NatsURL, "nats-url", "", "")
	cmd.Flags().StringVar(&opts.Output, "output", "", "")
	require.NoError(t, cmd.Flags().Parse([]string{"--nats-url", "nats://cli:4222"}))

	require.NoError(t, LoadConfig(opts, cmd))

	assert.Equal(t, "nats://cli:4222", opts.NatsURL)
	assert.Equal(t, "rtsp://localhost:8554/{name}", opts.Output)
}

func TestLoadConfigMissingFile(t *testing.T) {
	opts := &testOptions{Config: filepath.Join(t.TempDir(), "absent.toml"), QueueSize: 10}

	require.NoError(t, LoadConfig(opts, nil))
	assert.Equal(t, 10, opts.QueueSize)
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		toml string
		env  map[string]string
	}{
		{name: "invalid toml", toml: "[camera\nbroken"},
		{name: "wrong type", toml: "[camera]\npicture_queue_size = \"many\"\n"},
		{name: "bad duration", toml: "[camera]\nmotion_timeout = \"soon\"\n"},
		{name: "bad env int", env: map[string]string{"CAMRELAY_CAMERA_PICTURE_QUEUE_SIZE": "ten"}},
		{name: "bad env bool", env: map[string]string{"CAMRELAY_DEBUG": "maybe"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			opts := &testOptions{}
			if tt.toml != "" {
				opts.Config = writeFile(t, tt.toml)
			}
			assert.Error(t, LoadConfig(opts, nil))
		})
	}
}

func TestLoadConfigRejectsNonPointer(t *testing.T) {
	assert.Error(t, LoadConfig(testOptions{}, nil))
}

func TestFlagName(t *testing.T) {
	tests := map[string]string{
		"Port":                 "port",
		"LoggingLevel":         "logging-level",
		"NatsURL":              "nats-url",
		"CameraMotionTimeout":  "camera-motion-timeout",
		"VendorRequestTimeout": "vendor-request-timeout",
	}
	for field, want := range tests {
		assert.Equal(t, want, flagName(field), field)
	}
}

func TestLookup(t *testing.T) {
	doc := map[string]any{
		"a": map[string]any{"b": map[string]any{"c": "deep"}},
		"x": "top",
	}
	assert.Equal(t, "deep", lookup(doc, "a.b.c"))
	assert.Equal(t, "top", lookup(doc, "x"))
	assert.Nil(t, lookup(doc, "x.y"))
	assert.Nil(t, lookup(doc, "missing"))
}

func TestLoadLogging(t *testing.T) {
	path := writeFile(t, `
[logging]
level = "warn"
format = "json"
camera = "debug"
nats = "error"
`)

	cfg, err := LoadLogging(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, map[string]string{"camera": "debug", "nats": "error"}, cfg.Modules)
}

func TestLoadLoggingDefaults(t *testing.T) {
	cfg, err := LoadLogging(writeFile(t, "debug = true\n"))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "text", cfg.Format)
	assert.Empty(t, cfg.Modules)

	_, err = LoadLogging(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}
