// Package monitor supervises the background health checks attached to
// buttons: ssh reachability, remote process liveness, and window snapshot
// scanning. Loops publish status values only; all structural reaction
// happens on the driver side.
package monitor

import (
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deckpilot/deckd/internal/dispatch"
)

// Status values are rendered directly on keys.
type Status string

const (
	StatusInitializing  Status = "initializing"
	StatusMonitoring    Status = "OSA_MONITORING"
	StatusConnected     Status = "connected"
	StatusBroken        Status = "BROKEN"
	StatusProcessBroken Status = "PROCESS_BROKEN"
	StatusProcessError  Status = "PROCESS_ERROR"
	StatusWindowGone    Status = "OSA_GONE"
	StatusFound         Status = "OSA_FOUND"
	StatusError         Status = "OSA_ERROR"
	StatusConfigError   Status = "error_config"
)

// ShellRunner executes one shell command line and reports its exit code.
type ShellRunner interface {
	Run(ctx context.Context, command string) (exitCode int, err error)
}

// ExecShellRunner runs commands through /bin/sh.
type ExecShellRunner struct{}

func (ExecShellRunner) Run(ctx context.Context, command string) (int, error) {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	err := cmd.Run()
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return -1, err
	}
	return 0, nil
}

// Config bounds the supervisor's timing. Zero values get defaults.
type Config struct {
	SSHInterval    time.Duration
	SSHTimeout     time.Duration
	ProcessDelay   time.Duration
	WindowDelay    time.Duration
	WindowInterval time.Duration
}

func (c *Config) fill() {
	if c.SSHInterval <= 0 {
		c.SSHInterval = 3 * time.Second
	}
	if c.SSHTimeout <= 0 {
		c.SSHTimeout = 8 * time.Second
	}
	if c.ProcessDelay <= 0 {
		c.ProcessDelay = 2 * time.Second
	}
	if c.WindowDelay <= 0 {
		c.WindowDelay = time.Second
	}
	if c.WindowInterval <= 0 {
		c.WindowInterval = 60 * time.Second
	}
}

type entry struct {
	status     Status
	generation string
}

// Supervisor keys monitor state by global button index. Starting a monitor
// mints a fresh generation token; cancelling clears it. Loops re-check
// their token before every sleep, run, and publish, so a cancelled loop can
// never overwrite a newer monitor's state.
type Supervisor struct {
	cfg     Config
	runner  ShellRunner
	windows dispatch.WindowControl
	logger  *slog.Logger

	mu     sync.Mutex
	states map[int]*entry

	// OnProcessBroken fires when a remote process probe turns terminal.
	OnProcessBroken func(idx int)
}

func New(cfg Config, runner ShellRunner, windows dispatch.WindowControl, logger *slog.Logger) *Supervisor {
	cfg.fill()
	return &Supervisor{
		cfg:     cfg,
		runner:  runner,
		windows: windows,
		logger:  logger.With("component", "monitor"),
		states:  map[int]*entry{},
	}
}

// Status returns a button's monitor status, if any monitor ever ran.
func (s *Supervisor) Status(idx int) (Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.states[idx]
	if !ok {
		return "", false
	}
	return e.status, true
}

// Snapshot copies the status table.
func (s *Supervisor) Snapshot() map[int]Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]Status, len(s.states))
	for idx, e := range s.states {
		out[idx] = e.status
	}
	return out
}

// SetStatus publishes a status outside any loop (config errors).
func (s *Supervisor) SetStatus(idx int, status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[idx] = &entry{status: status}
}

// Cancel retires a button's monitor and clears its status.
func (s *Supervisor) Cancel(idx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, idx)
}

// CancelAll retires every monitor (reload path).
func (s *Supervisor) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = map[int]*entry{}
}

func (s *Supervisor) begin(idx int, initial Status) string {
	gen := uuid.NewString()
	s.mu.Lock()
	s.states[idx] = &entry{status: initial, generation: gen}
	s.mu.Unlock()
	return gen
}

func (s *Supervisor) alive(idx int, gen string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.states[idx]
	return ok && e.generation == gen
}

// publish writes a status if the generation still owns the slot. When
// terminal is set the generation is cleared, so the status sticks but the
// loop retires.
func (s *Supervisor) publish(idx int, gen string, status Status, terminal bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.states[idx]
	if !ok || e.generation != gen {
		return false
	}
	e.status = status
	if terminal {
		e.generation = ""
	}
	return true
}

// sleep waits d but wakes within ~200ms of cancellation.
func (s *Supervisor) sleep(ctx context.Context, idx int, gen string, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for {
		if !s.alive(idx, gen) || ctx.Err() != nil {
			return false
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return s.alive(idx, gen) && ctx.Err() == nil
		}
		slice := remaining
		if slice > 200*time.Millisecond {
			slice = 200 * time.Millisecond
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(slice):
		}
	}
}

// StartSSH begins the reachability loop for a device button: run
// "<sshBase> exit" on a stagger derived from the button index, and publish
// connected or BROKEN after each probe.
func (s *Supervisor) StartSSH(ctx context.Context, idx int, sshBase string) {
	gen := s.begin(idx, StatusInitializing)
	checkCmd := sshBase + " exit"
	stagger := time.Duration(idx%5) * 100 * time.Millisecond
	go func() {
		for {
			if !s.sleep(ctx, idx, gen, s.cfg.SSHInterval+stagger) {
				return
			}
			status := StatusBroken
			runCtx, cancel := context.WithTimeout(ctx, s.cfg.SSHTimeout)
			code, err := s.runner.Run(runCtx, checkCmd)
			cancel()
			if err == nil && code == 0 {
				status = StatusConnected
			}
			if !s.publish(idx, gen, status, false) {
				return
			}
		}
	}()
}

// StartProcess begins the remote-process liveness loop. The first probe
// that fails is terminal: the status is published, OnProcessBroken fires,
// and the loop retires.
func (s *Supervisor) StartProcess(ctx context.Context, idx int, sshBase, tag string) {
	gen := s.begin(idx, StatusInitializing)
	probe := sshBase + ` "` + dispatch.RemoteProcessProbe(tag) + `"`
	stagger := time.Duration(idx%7) * 100 * time.Millisecond
	go func() {
		if !s.sleep(ctx, idx, gen, s.cfg.ProcessDelay) {
			return
		}
		for {
			status := Status("")
			runCtx, cancel := context.WithTimeout(ctx, s.cfg.SSHTimeout)
			code, err := s.runner.Run(runCtx, probe)
			cancel()
			switch {
			case err != nil:
				status = StatusProcessError
			case code != 0:
				status = StatusProcessBroken
			}
			if status != "" {
				if s.publish(idx, gen, status, true) {
					s.logger.Warn("remote process lost", "button", idx, "status", string(status))
					if s.OnProcessBroken != nil {
						s.OnProcessBroken(idx)
					}
				}
				return
			}
			if !s.sleep(ctx, idx, gen, s.cfg.SSHInterval+stagger) {
				return
			}
		}
	}()
}

// StartWindow begins the snapshot loop: poll a terminal window's content
// and go terminal on window loss, read failure, or the keyword appearing in
// text beyond the baseline snapshot.
func (s *Supervisor) StartWindow(ctx context.Context, idx int, windowID, baseline, keyword string) {
	gen := s.begin(idx, StatusMonitoring)
	baselineLen := len(baseline)
	keywordLower := strings.ToLower(keyword)
	go func() {
		if !s.sleep(ctx, idx, gen, s.cfg.WindowDelay) {
			return
		}
		for {
			if !s.sleep(ctx, idx, gen, s.cfg.WindowInterval) {
				return
			}
			content, err := s.windows.ReadWindow(ctx, windowID)
			if !s.alive(idx, gen) {
				return
			}
			if err != nil {
				s.publish(idx, gen, StatusError, true)
				s.logger.Error("window snapshot failed", "button", idx, "error", err)
				return
			}
			if content == dispatch.WindowGone {
				s.publish(idx, gen, StatusWindowGone, true)
				return
			}
			if len(content) > baselineLen {
				if keywordLower != "" && strings.Contains(strings.ToLower(content[baselineLen:]), keywordLower) {
					if s.publish(idx, gen, StatusFound, true) {
						_ = s.windows.RaiseWindow(ctx, windowID)
					}
					return
				}
			}
		}
	}()
}
