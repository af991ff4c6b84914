package dispatch

import (
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Background owns the detached processes started by background-flagged
// buttons, keyed by global button index. Processes deliberately outlive any
// press context; they are stopped by a second press, a reload, or shutdown.
type Background struct {
	mu     sync.Mutex
	procs  map[int]*backgroundProc
	logger *slog.Logger
}

type backgroundProc struct {
	cmd  *exec.Cmd
	done chan struct{}
}

func NewBackground(logger *slog.Logger) *Background {
	return &Background{
		procs:  map[int]*backgroundProc{},
		logger: logger.With("component", "background"),
	}
}

// Running reports whether a live process is tracked for the button.
func (b *Background) Running(idx int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.procs[idx]
	if !ok {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Start launches argv detached and tracks it under the button index.
func (b *Background) Start(idx int, argv []string) error {
	if len(argv) == 0 {
		return fmt.Errorf("empty background command")
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start background command: %w", err)
	}
	p := &backgroundProc{cmd: cmd, done: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		close(p.done)
	}()

	b.mu.Lock()
	b.procs[idx] = p
	b.mu.Unlock()
	b.logger.Info("background process started", "button", idx, "pid", cmd.Process.Pid)
	return nil
}

// Spawn launches argv untracked, fire and forget. Numeric-adjust presses
// use this: each press is its own short-lived process and never toggles.
func (b *Background) Spawn(argv []string) error {
	if len(argv) == 0 {
		return fmt.Errorf("empty background command")
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start background command: %w", err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// Stop terminates the button's process: SIGTERM, a 2 second grace period,
// then SIGKILL.
func (b *Background) Stop(idx int) {
	b.mu.Lock()
	p, ok := b.procs[idx]
	delete(b.procs, idx)
	b.mu.Unlock()
	if !ok {
		return
	}
	select {
	case <-p.done:
		return
	default:
	}
	_ = p.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-p.done:
	case <-time.After(2 * time.Second):
		_ = p.cmd.Process.Kill()
		<-p.done
	}
	b.logger.Info("background process stopped", "button", idx)
}

// Reap drops entries whose process has exited and returns their indices so
// the driver can redraw those keys.
func (b *Background) Reap() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	var reaped []int
	for idx, p := range b.procs {
		select {
		case <-p.done:
			delete(b.procs, idx)
			reaped = append(reaped, idx)
		default:
		}
	}
	return reaped
}

// StopAll terminates every tracked process (reload and shutdown path).
func (b *Background) StopAll() {
	b.mu.Lock()
	indices := make([]int, 0, len(b.procs))
	for idx := range b.procs {
		indices = append(indices, idx)
	}
	b.mu.Unlock()
	for _, idx := range indices {
		b.Stop(idx)
	}
}
