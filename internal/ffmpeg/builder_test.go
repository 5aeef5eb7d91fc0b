package ffmpeg

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOutputArgs(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		want    string
		wantErr bool
	}{
		{
			name: "rtsp with placeholder",
			spec: "-c copy -f rtsp rtsp://localhost:8554/{name}",
			want: "-c copy -f rtsp rtsp://localhost:8554/front_door",
		},
		{
			name: "quoted metadata",
			spec: `-metadata title="cam {name}" -f mpegts udp://239.0.0.1:1234`,
			want: "-metadata title=cam front_door -f mpegts udp://239.0.0.1:1234",
		},
		{name: "empty", spec: "  ", wantErr: true},
		{name: "unclosed quote", spec: `-metadata "oops`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := OutputArgs(tt.spec, "front_door")
			if (err != nil) != tt.wantErr {
				t.Fatalf("OutputArgs() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if joined := strings.Join(got, " "); joined != tt.want {
				t.Errorf("OutputArgs() = %q, want %q", joined, tt.want)
			}
		})
	}
}

func TestBuilderCommands(t *testing.T) {
	b := NewBuilder("", "", false)
	output := []string{"-f", "rtsp", "rtsp://host/cam"}

	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "proxy",
			args: b.Proxy(output),
			want: "ffmpeg -hide_banner -loglevel error -i pipe: -f rtsp rtsp://host/cam",
		},
		{
			name: "idle source",
			args: b.IdleSource("/tmp/idle.ts"),
			want: "ffmpeg -hide_banner -loglevel error -re -stream_loop -1 -i /tmp/idle.ts -c copy -bsf dump_extra -f mpegts pipe:",
		},
		{
			name: "live source",
			args: b.LiveSource("rtsps://vendor/stream"),
			want: "ffmpeg -hide_banner -loglevel error -i rtsps://vendor/stream -c:v copy -c:a copy -bsf dump_extra -f mpegts pipe:",
		},
		{
			name: "idle video",
			args: b.IdleVideo("still.jpg", Resolution{Width: 640, Height: 360}, 10, "idle.ts"),
			want: "ffmpeg -hide_banner -loglevel error -y -loop 1 -i still.jpg -t 10 -r 30 -vf scale=640:360,format=yuv420p -c:v libx264 -tune stillimage -g 30 -f mpegts idle.ts",
		},
		{
			name: "probe",
			args: b.ProbeResolution("rtsps://vendor/stream"),
			want: "ffprobe -hide_banner -v error -select_streams v:0 -show_entries stream=width,height -of csv=p=0:s=x rtsps://vendor/stream",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := strings.Join(tt.args, " "); got != tt.want {
				t.Errorf("got  %q\nwant %q", got, tt.want)
			}
		})
	}
}

func TestBuilderDebugLogLevel(t *testing.T) {
	b := NewBuilder("/usr/bin/ffmpeg", "", true)
	got := strings.Join(b.LiveSource("url"), " ")
	if !strings.HasPrefix(got, "/usr/bin/ffmpeg -hide_banner -loglevel level+info ") {
		t.Errorf("debug builder should emit level-tagged logs, got %q", got)
	}
}

func TestParseResolution(t *testing.T) {
	tests := []struct {
		in      string
		want    Resolution
		wantErr bool
	}{
		{"1280x720", Resolution{1280, 720}, false},
		{" 1920X1080 ", Resolution{1920, 1080}, false},
		{"1280", Resolution{}, true},
		{"0x720", Resolution{}, true},
		{"axb", Resolution{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseResolution(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseResolution(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseResolution(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func fakeProbe(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffprobe")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestProbe(t *testing.T) {
	b := NewBuilder("", fakeProbe(t, `printf '640x480\n640x480\n'`), false)
	res, err := b.Probe(context.Background(), "rtsp://cam")
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if res.String() != "640x480" {
		t.Errorf("Probe() = %s, want 640x480", res)
	}
}

func TestProbeFailure(t *testing.T) {
	b := NewBuilder("", fakeProbe(t, "exit 1"), false)
	if _, err := b.Probe(context.Background(), "rtsp://cam"); err == nil {
		t.Error("expected error from failing ffprobe")
	}
}
