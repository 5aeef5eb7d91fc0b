package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Resolution is a video frame size.
type Resolution struct {
	Width  int
	Height int
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// IsZero reports whether the resolution is unset.
func (r Resolution) IsZero() bool {
	return r.Width == 0 && r.Height == 0
}

// ParseResolution parses "WIDTHxHEIGHT".
func ParseResolution(s string) (Resolution, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return Resolution{}, fmt.Errorf("invalid resolution %q", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil || width <= 0 {
		return Resolution{}, fmt.Errorf("invalid resolution width %q", s)
	}
	height, err := strconv.Atoi(h)
	if err != nil || height <= 0 {
		return Resolution{}, fmt.Errorf("invalid resolution height %q", s)
	}
	return Resolution{Width: width, Height: height}, nil
}

// Probe runs ffprobe against url and returns the first video stream size.
func (b Builder) Probe(ctx context.Context, url string) (Resolution, error) {
	args := b.ProbeResolution(url)
	out, err := exec.CommandContext(ctx, args[0], args[1:]...).Output()
	if err != nil {
		return Resolution{}, fmt.Errorf("ffprobe: %w", err)
	}
	// Some streams report the size twice (side data); first line wins.
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return ParseResolution(line)
}
