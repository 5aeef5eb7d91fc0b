package ffmpeg

import (
	"errors"
	"strconv"
	"strings"

	"github.com/smazurov/camrelay/internal/process"
)

// Builder produces ffmpeg and ffprobe argument lists for the camera
// pipelines. Debug switches the log format to "[level] msg" lines so
// stderr can be parsed by ParseLogLevel.
type Builder struct {
	FFmpeg  string
	FFprobe string
	Debug   bool
}

// NewBuilder returns a Builder with the given binaries, defaulting to
// "ffmpeg" and "ffprobe" from PATH.
func NewBuilder(ffmpegBin, ffprobeBin string, debug bool) Builder {
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	if ffprobeBin == "" {
		ffprobeBin = "ffprobe"
	}
	return Builder{FFmpeg: ffmpegBin, FFprobe: ffprobeBin, Debug: debug}
}

func (b Builder) base() []string {
	args := []string{b.FFmpeg, "-hide_banner"}
	if b.Debug {
		return append(args, "-loglevel", "level+info")
	}
	return append(args, "-loglevel", "error")
}

// OutputArgs expands the configured output spec for one camera. The
// "{name}" placeholder is replaced before splitting.
func OutputArgs(spec, name string) ([]string, error) {
	args, err := process.SplitArgs(strings.ReplaceAll(spec, "{name}", name))
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, errors.New("empty ffmpeg output spec")
	}
	return args, nil
}

// Proxy reads mpegts from stdin and writes the camera's outbound stream.
func (b Builder) Proxy(output []string) []string {
	return append(append(b.base(), "-i", "pipe:"), output...)
}

// IdleSource loops the idle video into stdout at native rate.
func (b Builder) IdleSource(video string) []string {
	return append(b.base(),
		"-re", "-stream_loop", "-1", "-i", video,
		"-c", "copy", "-bsf", "dump_extra", "-f", "mpegts", "pipe:")
}

// LiveSource copies the camera feed into stdout without transcoding.
func (b Builder) LiveSource(url string) []string {
	return append(b.base(),
		"-i", url, "-c:v", "copy", "-c:a", "copy",
		"-bsf", "dump_extra", "-f", "mpegts", "pipe:")
}

// IdleVideo renders a still image into a short h264 clip of the given
// resolution, suitable for IdleSource.
func (b Builder) IdleVideo(image string, res Resolution, seconds int, out string) []string {
	return append(b.base(),
		"-y", "-loop", "1", "-i", image,
		"-t", strconv.Itoa(seconds), "-r", "30",
		"-vf", "scale="+strconv.Itoa(res.Width)+":"+strconv.Itoa(res.Height)+",format=yuv420p",
		"-c:v", "libx264", "-tune", "stillimage", "-g", "30",
		"-f", "mpegts", out)
}

// ProbeResolution asks ffprobe for the first video stream as "WxH".
func (b Builder) ProbeResolution(url string) []string {
	return []string{b.FFprobe, "-hide_banner", "-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "csv=p=0:s=x", url}
}
