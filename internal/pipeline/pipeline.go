// Package pipeline supervises the ffmpeg processes behind one camera.
//
// The proxy reads mpegts from the read end of a pipe and publishes the
// camera's outbound stream. It runs for the camera's whole lifetime. The
// active source (idle loop or live feed) writes into the other end and is
// swapped as the camera changes state. The parent keeps both pipe ends
// open so the proxy never sees EOF between swaps.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/smazurov/camrelay/internal/events"
	"github.com/smazurov/camrelay/internal/ffmpeg"
	"github.com/smazurov/camrelay/internal/logging"
	"github.com/smazurov/camrelay/internal/metrics"
	"github.com/smazurov/camrelay/internal/process"
)

// ErrNotStarted is returned when a source is swapped in before StartProxy.
var ErrNotStarted = errors.New("pipeline not started")

// Source identifies what currently feeds the proxy.
type Source string

// Sources.
const (
	SourceNone Source = ""
	SourceIdle Source = "idle"
	SourceLive Source = "live"
)

// Commands produces the argument lists for the three process roles.
type Commands interface {
	Proxy() []string
	IdleSource(video string) []string
	LiveSource(url string) []string
}

// FFmpegCommands builds the roles from an ffmpeg.Builder and the camera's
// output arguments.
type FFmpegCommands struct {
	Builder ffmpeg.Builder
	Output  []string
}

func (c FFmpegCommands) Proxy() []string                  { return c.Builder.Proxy(c.Output) }
func (c FFmpegCommands) IdleSource(video string) []string { return c.Builder.IdleSource(video) }
func (c FFmpegCommands) LiveSource(url string) []string   { return c.Builder.LiveSource(url) }

// Config configures a Pipeline.
type Config struct {
	Camera   string
	Commands Commands
	// Debug drains stderr through the ffmpeg log parser.
	Debug bool
	// RestartBackoff is the pause before restarting a crashed proxy or
	// idle source. Defaults to 3s.
	RestartBackoff time.Duration
	// StopTimeout bounds the wait for a signaled process before SIGKILL.
	// Defaults to 5s.
	StopTimeout time.Duration
	Bus         *events.Bus
}

// Status describes the running processes.
type Status struct {
	Proxy     process.Info `json:"proxy"`
	Source    Source       `json:"source"`
	SourcePID int          `json:"source_pid,omitempty"`
}

// Pipeline owns the pipe and the processes of one camera.
type Pipeline struct {
	cfg    Config
	logger logging.Logger

	mu     sync.Mutex
	ctx    context.Context
	reader *os.File
	writer *os.File
	proxy  *process.Supervisor
	idle   *process.Supervisor
	live   *process.Process
}

// New creates a pipeline. Nothing runs until StartProxy.
func New(cfg Config) *Pipeline {
	if cfg.RestartBackoff <= 0 {
		cfg.RestartBackoff = 3 * time.Second
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 5 * time.Second
	}
	return &Pipeline{
		cfg:    cfg,
		logger: logging.GetLogger("pipeline"),
	}
}

// StartProxy creates the pipe and starts the supervised proxy. Calling it
// again is a no-op.
func (p *Pipeline) StartProxy(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.proxy != nil {
		return nil
	}

	r, w, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("create pipe: %w", err)
	}
	p.ctx = ctx
	p.reader, p.writer = r, w

	args := p.cfg.Commands.Proxy()
	p.proxy = process.NewSupervisor(func() (*process.Process, error) {
		proc := p.newProcess("proxy", args)
		proc.SetStdio(r, nil)
		return proc, nil
	}, p.supervisorOptions("proxy"))
	p.proxy.Start(ctx)

	p.logger.Info("Proxy started", "camera", p.cfg.Camera)
	return nil
}

// ShowIdle swaps the active source for the supervised idle loop of video.
func (p *Pipeline) ShowIdle(video string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.proxy == nil {
		return ErrNotStarted
	}

	p.stopSourceLocked(syscall.SIGTERM)

	args := p.cfg.Commands.IdleSource(video)
	w := p.writer
	p.idle = process.NewSupervisor(func() (*process.Process, error) {
		proc := p.newProcess("idle", args)
		proc.SetStdio(nil, w)
		return proc, nil
	}, p.supervisorOptions("idle"))
	p.idle.Start(p.ctx)

	p.logger.Debug("Idle source active", "camera", p.cfg.Camera, "video", video)
	return nil
}

// ShowLive swaps the active source for the live feed at url. The live
// source is not restarted; its end is reported by the cloud.
func (p *Pipeline) ShowLive(url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.proxy == nil {
		return ErrNotStarted
	}

	p.stopSourceLocked(syscall.SIGTERM)

	proc := p.newProcess("live", p.cfg.Commands.LiveSource(url))
	proc.SetStdio(nil, p.writer)
	if err := proc.Start(); err != nil {
		return fmt.Errorf("start live source: %w", err)
	}
	p.live = proc

	go func() {
		<-proc.Done()
		p.logger.Debug("Live source exited", "camera", p.cfg.Camera, "exit_code", proc.ExitCode())
	}()

	p.logger.Debug("Live source active", "camera", p.cfg.Camera, "pid", proc.PID())
	return nil
}

// StopSource tears down the active source, leaving the proxy running.
func (p *Pipeline) StopSource() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopSourceLocked(syscall.SIGTERM)
}

// Source reports what currently feeds the proxy.
func (p *Pipeline) Source() Source {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.live != nil:
		return SourceLive
	case p.idle != nil:
		return SourceIdle
	default:
		return SourceNone
	}
}

// Status returns a snapshot of the processes.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	var info Status
	if p.proxy != nil {
		info.Proxy = p.proxy.Info()
	}
	switch {
	case p.live != nil:
		info.Source = SourceLive
		info.SourcePID = p.live.PID()
	case p.idle != nil:
		info.Source = SourceIdle
		info.SourcePID = p.idle.Info().PID
	}
	return info
}

// Shutdown signals the active source and the proxy with sig, waits for
// them and closes the pipe.
func (p *Pipeline) Shutdown(sig os.Signal) {
	if sig == nil {
		sig = syscall.SIGTERM
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopSourceLocked(sig)
	if p.proxy != nil {
		p.proxy.Stop(sig)
		p.proxy = nil
	}
	for _, f := range []*os.File{p.writer, p.reader} {
		if f != nil {
			f.Close()
		}
	}
	p.reader, p.writer = nil, nil
	p.logger.Info("Pipeline stopped", "camera", p.cfg.Camera)
}

func (p *Pipeline) stopSourceLocked(sig os.Signal) {
	if p.idle != nil {
		p.idle.Stop(sig)
		p.idle = nil
	}
	if p.live != nil {
		p.live.Stop(sig)
		p.live = nil
	}
}

func (p *Pipeline) newProcess(role string, args []string) *process.Process {
	proc := process.New(p.cfg.Camera+"/"+role, args, logging.GetLogger("process"))
	proc.SetTimeouts(p.cfg.StopTimeout, p.cfg.StopTimeout)
	if p.cfg.Debug {
		proc.SetLogParser(logging.GetLogger("ffmpeg"), ffmpeg.ParseLogLevel)
	}
	return proc
}

func (p *Pipeline) supervisorOptions(role string) process.SupervisorOptions {
	return process.SupervisorOptions{
		Name:    p.cfg.Camera + "/" + role,
		Backoff: p.cfg.RestartBackoff,
		Logger:  p.logger,
		OnCrash: func(code int) {
			metrics.IncProcessRestart(p.cfg.Camera, role)
			if p.cfg.Bus != nil {
				p.cfg.Bus.Publish(events.ProcessCrashedEvent{
					Camera:    p.cfg.Camera,
					Process:   role,
					ExitCode:  code,
					Timestamp: time.Now(),
				})
			}
		},
	}
}
