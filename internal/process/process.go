package process

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/smazurov/camrelay/internal/logging"
)

// ErrNotStarted is returned when signaling a process that was never started.
var ErrNotStarted = errors.New("process not started")

// LogParser parses a stderr line and returns the log level and message.
type LogParser func(line string) (level, msg string)

// Process manages the lifecycle of a single subprocess.
type Process struct {
	name   string
	args   []string
	logger logging.Logger

	stdin  io.Reader
	stdout io.Writer

	stderrLogger logging.Logger // nil = stderr discarded
	logParser    LogParser

	gracefulTimeout time.Duration // wait after the stop signal before SIGKILL
	killTimeout     time.Duration // wait after SIGKILL before giving up

	mu        sync.Mutex
	cmd       *exec.Cmd
	startedAt time.Time
	done      chan struct{}
	exitCode  int
}

// New creates a process for args. Nothing runs until Start.
func New(name string, args []string, logger logging.Logger) *Process {
	return &Process{
		name:            name,
		args:            args,
		logger:          logger,
		gracefulTimeout: 5 * time.Second,
		killTimeout:     5 * time.Second,
		done:            make(chan struct{}),
	}
}

// SetStdio wires stdin and stdout. *os.File values are handed to the child
// directly, so pipe ends are shared without a copy goroutine.
func (p *Process) SetStdio(stdin io.Reader, stdout io.Writer) {
	p.stdin = stdin
	p.stdout = stdout
}

// SetLogParser drains stderr into logger at debug level, using parser to
// split the line. Without it stderr goes to the null device.
func (p *Process) SetLogParser(logger logging.Logger, parser LogParser) {
	p.stderrLogger = logger
	p.logParser = parser
}

// SetTimeouts overrides the grace and kill timeouts used by Stop.
func (p *Process) SetTimeouts(graceful, kill time.Duration) {
	p.gracefulTimeout = graceful
	p.killTimeout = kill
}

// Name returns the process name used in logs.
func (p *Process) Name() string {
	return p.name
}

// Args returns the command line.
func (p *Process) Args() []string {
	return p.args
}

// Start launches the subprocess. It returns once the child is running.
func (p *Process) Start() error {
	if len(p.args) == 0 {
		return errors.New("empty command")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil {
		return fmt.Errorf("process %s already started", p.name)
	}

	cmd := exec.Command(p.args[0], p.args[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdin = p.stdin
	cmd.Stdout = p.stdout

	var stderr io.ReadCloser
	if p.stderrLogger != nil {
		var err error
		stderr, err = cmd.StderrPipe()
		if err != nil {
			return fmt.Errorf("stderr pipe: %w", err)
		}
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.args[0], err)
	}

	p.cmd = cmd
	p.startedAt = time.Now()
	p.logger.Debug("Process started", "name", p.name, "pid", cmd.Process.Pid)

	// Wait closes the stderr pipe, so it must not run before the drain
	// has read everything.
	stderrDone := make(chan struct{})
	if stderr != nil {
		go func() {
			defer close(stderrDone)
			p.drainStderr(stderr)
		}()
	} else {
		close(stderrDone)
	}

	go func() {
		<-stderrDone
		err := cmd.Wait()
		p.mu.Lock()
		p.exitCode = exitCodeFromError(err)
		p.mu.Unlock()
		close(p.done)
	}()

	return nil
}

// Done is closed when the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// ExitCode returns the exit code. Only meaningful after Done is closed.
func (p *Process) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

// PID returns the process id, or 0 if not started.
func (p *Process) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// StartedAt returns when the process was started.
func (p *Process) StartedAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.startedAt
}

// Running reports whether the process was started and has not exited.
func (p *Process) Running() bool {
	if p.PID() == 0 {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Signal delivers sig to the process. A process that already exited is not
// an error.
func (p *Process) Signal(sig os.Signal) error {
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return ErrNotStarted
	}
	if err := cmd.Process.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("signal %s: %w", p.name, err)
	}
	return nil
}

// Stop sends sig and waits for the process to exit, force-killing it after
// the grace timeout. Returns the exit code, 137 when killed.
func (p *Process) Stop(sig os.Signal) int {
	if err := p.Signal(sig); err != nil {
		if errors.Is(err, ErrNotStarted) {
			return 0
		}
		p.logger.Warn("Failed to signal process", "name", p.name, "error", err)
	}
	return p.waitForExit()
}

func (p *Process) waitForExit() int {
	select {
	case <-p.done:
		return p.ExitCode()
	case <-time.After(p.gracefulTimeout):
	}

	p.logger.Warn("Graceful shutdown timeout, forcing kill", "name", p.name, "timeout", p.gracefulTimeout)
	if err := p.Signal(syscall.SIGKILL); err != nil {
		p.logger.Error("Failed to kill process", "name", p.name, "error", err)
	}

	select {
	case <-p.done:
	case <-time.After(p.killTimeout):
		p.logger.Error("Process did not exit after kill signal", "name", p.name)
	}
	return 137
}

// drainStderr logs every stderr line at debug until the child closes its
// end. Read errors are logged at debug and the rest of the stream is
// discarded so the child never blocks on a full pipe.
func (p *Process) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		level, msg := "info", line
		if p.logParser != nil {
			level, msg = p.logParser(line)
		}
		p.stderrLogger.Debug(msg, "process", p.name, "severity", level)
	}
	if err := scanner.Err(); err != nil {
		if !errors.Is(err, os.ErrClosed) {
			p.logger.Debug("Stderr read ended", "name", p.name, "error", err)
		}
		_, _ = io.Copy(io.Discard, r)
	}
}

// exitCodeFromError extracts exit code from process error.
// Returns 0 for nil error, the exit code for ExitError, or 1 for other errors.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return code
		}
		// Terminated by a signal.
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return 128 + int(status.Signal())
		}
	}
	return 1
}

// SplitArgs splits a command string into arguments.
// Handles quoted strings and basic escaping.
func SplitArgs(command string) ([]string, error) {
	var args []string
	var current strings.Builder
	inQuote := false
	quoteChar := rune(0)

	runes := []rune(strings.TrimSpace(command))

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"' || r == '\'':
			switch {
			case !inQuote:
				inQuote = true
				quoteChar = r
			case r == quoteChar:
				inQuote = false
				quoteChar = 0
			default:
				current.WriteRune(r)
			}
		case r == ' ' && !inQuote:
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		case r == '\\' && i+1 < len(runes):
			i++
			current.WriteRune(runes[i])
		default:
			current.WriteRune(r)
		}
	}

	if current.Len() > 0 {
		args = append(args, current.String())
	}

	if inQuote {
		return nil, errors.New("unclosed quote in command")
	}

	return args, nil
}
