// Package idle produces the looping video a camera shows while no live
// feed is active.
//
// Selection order: the camera's last snapshot (when enabled and the
// download works), then the default image, rendered into a short clip at
// the camera resolution; if rendering fails the static idle video is used.
// Every fallback is logged at warning level and none is fatal.
package idle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/h2non/filetype"

	"github.com/smazurov/camrelay/internal/ffmpeg"
	"github.com/smazurov/camrelay/internal/logging"
)

// maxImageSize bounds the snapshot download.
const maxImageSize = 20 << 20

// Config configures a Generator.
type Config struct {
	Builder       ffmpeg.Builder
	WorkDir       string
	DefaultImage  string
	DefaultVideo  string
	FromLastImage bool
	// Seconds is the length of the rendered clip. Defaults to 10.
	Seconds    int
	HTTPClient *http.Client
}

// Generator builds idle videos.
type Generator struct {
	cfg    Config
	logger logging.Logger
}

// New creates a Generator.
func New(cfg Config) *Generator {
	if cfg.Seconds <= 0 {
		cfg.Seconds = 10
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	return &Generator{cfg: cfg, logger: logging.GetLogger("idle")}
}

// Build returns the idle video to loop for camera. lastImageURL may be
// empty.
func (g *Generator) Build(ctx context.Context, camera, lastImageURL string, res ffmpeg.Resolution) string {
	image := ""
	if g.cfg.FromLastImage {
		if lastImageURL == "" {
			g.logger.Warn("No last image known, using default idle image", "camera", camera)
		} else {
			path, err := g.fetchStill(ctx, camera, lastImageURL, res)
			if err != nil {
				g.logger.Warn("Last image unusable, using default idle image", "camera", camera, "error", err)
			} else {
				image = path
			}
		}
	}
	if image == "" {
		image = g.cfg.DefaultImage
	}

	if image == "" {
		g.logger.Warn("No idle image configured, using static idle video", "camera", camera)
		return g.cfg.DefaultVideo
	}

	out := filepath.Join(g.cfg.WorkDir, camera+"-idle.ts")
	if err := g.Render(ctx, image, res, out); err != nil {
		g.logger.Warn("Idle video generation failed, using static idle video", "camera", camera, "error", err)
		return g.cfg.DefaultVideo
	}
	return out
}

// Render turns image into a looping clip at out.
func (g *Generator) Render(ctx context.Context, image string, res ffmpeg.Resolution, out string) error {
	if _, err := os.Stat(image); err != nil {
		return fmt.Errorf("idle image: %w", err)
	}
	args := g.cfg.Builder.IdleVideo(image, res, g.cfg.Seconds, out)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	if fi, err := os.Stat(out); err != nil || fi.Size() == 0 {
		return errors.New("ffmpeg produced no output")
	}
	return nil
}

// fetchStill downloads the snapshot, checks it is an image and scales it
// to res. When scaling fails the original bytes are kept and ffmpeg does
// the scaling.
func (g *Generator) fetchStill(ctx context.Context, camera, url string, res ffmpeg.Resolution) (string, error) {
	data, err := g.download(ctx, url)
	if err != nil {
		return "", err
	}

	kind, err := filetype.Match(data)
	if err != nil || !filetype.IsImage(data) {
		return "", fmt.Errorf("not an image (%s)", kind.MIME.Value)
	}

	path := filepath.Join(g.cfg.WorkDir, camera+"-last.jpg")
	if err := scaleTo(data, res, path); err != nil {
		g.logger.Warn("Scaling last image failed, leaving it to ffmpeg", "camera", camera, "error", err)
		raw := filepath.Join(g.cfg.WorkDir, camera+"-last."+kind.Extension)
		if err := os.WriteFile(raw, data, 0o644); err != nil {
			return "", fmt.Errorf("write last image: %w", err)
		}
		return raw, nil
	}
	return path, nil
}

func (g *Generator) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download last image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download last image: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize))
	if err != nil {
		return nil, fmt.Errorf("read last image: %w", err)
	}
	return data, nil
}

func scaleTo(data []byte, res ffmpeg.Resolution, path string) error {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return err
	}
	if !res.IsZero() {
		img = imaging.Fill(img, res.Width, res.Height, imaging.Center, imaging.Lanczos)
	}
	return imaging.Save(img, path, imaging.JPEGQuality(90))
}
