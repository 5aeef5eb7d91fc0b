package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func resetState() {
	mutex.Lock()
	moduleLoggers = make(map[string]*slog.Logger)
	moduleLevelVars = make(map[string]*slog.LevelVar)
	isInitialized = false
	globalConfig = Config{}
	mutex.Unlock()
}

func TestModuleLevelOverride(t *testing.T) {
	resetState()

	Initialize(Config{
		Level:  "info",
		Format: "text",
		Modules: map[string]string{
			"camera":   "debug",
			"pipeline": "warn",
		},
	})

	tests := []struct {
		module    string
		wantDebug bool
		wantInfo  bool
		wantWarn  bool
	}{
		{"camera", true, true, true},
		{"pipeline", false, false, true},
		{"nats", false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.module, func(t *testing.T) {
			handler := GetLogger(tt.module).Handler()
			ctx := context.Background()

			if got := handler.Enabled(ctx, slog.LevelDebug); got != tt.wantDebug {
				t.Errorf("module %q: Debug enabled = %v, want %v", tt.module, got, tt.wantDebug)
			}
			if got := handler.Enabled(ctx, slog.LevelInfo); got != tt.wantInfo {
				t.Errorf("module %q: Info enabled = %v, want %v", tt.module, got, tt.wantInfo)
			}
			if got := handler.Enabled(ctx, slog.LevelWarn); got != tt.wantWarn {
				t.Errorf("module %q: Warn enabled = %v, want %v", tt.module, got, tt.wantWarn)
			}
		})
	}
}

func TestGetLoggerBeforeInitialize(t *testing.T) {
	resetState()

	before := GetLogger("camera")
	if before.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("logger created before Initialize should default to info")
	}

	Initialize(Config{Level: "info", Format: "text", Modules: map[string]string{"camera": "debug"}})

	// The old handle shares the module LevelVar, so it follows the new level.
	if !before.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("logger created before Initialize should pick up the module level")
	}
	if !GetLogger("camera").Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("logger returned after Initialize should have debug enabled")
	}
}

func TestSetLevelsAtRuntime(t *testing.T) {
	resetState()
	Initialize(Config{Level: "info", Format: "text"})

	logger := GetLogger("ffmpeg")
	if logger.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("ffmpeg should start at info")
	}

	SetLevels(Config{Level: "warn", Modules: map[string]string{"ffmpeg": "debug"}})

	if !logger.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("ffmpeg should be at debug after SetLevels")
	}
	if GetLogger("camera").Handler().Enabled(context.Background(), slog.LevelInfo) {
		t.Error("camera should follow the new global warn level")
	}
}

func TestFanoutHandlerRespectsLevels(t *testing.T) {
	var buf bytes.Buffer

	debugHandler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	infoHandler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})

	logger := slog.New(NewFanoutHandler(debugHandler, infoHandler)).With("module", "test")
	logger.Debug("debug only message")
	logger.Info("info message")

	output := buf.String()
	if count := strings.Count(output, "debug only message"); count != 1 {
		t.Errorf("expected 1 debug line, got %d. Output: %s", count, output)
	}
	if count := strings.Count(output, "info message"); count != 2 {
		t.Errorf("expected 2 info lines, got %d. Output: %s", count, output)
	}
	if strings.Count(output, "module=test") != 3 {
		t.Errorf("attributes should reach every sink. Output: %s", output)
	}
}

type failingHandler struct{ slog.Handler }

func (failingHandler) Handle(context.Context, slog.Record) error { return errors.New("sink down") }

func TestFanoutHandlerKeepsWritingWhenOneSinkFails(t *testing.T) {
	var buf bytes.Buffer
	good := slog.NewTextHandler(&buf, nil)
	bad := failingHandler{Handler: slog.NewTextHandler(&bytes.Buffer{}, nil)}

	h := NewFanoutHandler(bad, good)
	r := slog.NewRecord(time.Time{}, slog.LevelInfo, "still delivered", 0)

	if err := h.Handle(context.Background(), r); err == nil {
		t.Error("expected the failing sink error to be reported")
	}
	if !strings.Contains(buf.String(), "still delivered") {
		t.Errorf("healthy sink should still receive the record, got %q", buf.String())
	}
}

func TestParseLevelValues(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
		isNil bool
	}{
		{"debug", slog.LevelDebug, false},
		{"DEBUG", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"invalid", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseLevel(tt.input)
			switch {
			case tt.isNil && got != nil:
				t.Errorf("parseLevel(%q) = %v, want nil", tt.input, *got)
			case !tt.isNil && got == nil:
				t.Errorf("parseLevel(%q) = nil, want %v", tt.input, tt.want)
			case !tt.isNil && *got != tt.want:
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, *got, tt.want)
			}
		})
	}
}
