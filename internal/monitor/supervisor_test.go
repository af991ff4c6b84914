package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/deckpilot/deckd/internal/dispatch"
)

type scriptedShell struct {
	mu       sync.Mutex
	commands []string
	codes    []int
	calls    int32
	err      error
}

func (s *scriptedShell) Run(_ context.Context, command string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, command)
	n := int(atomic.AddInt32(&s.calls, 1)) - 1
	if s.err != nil {
		return -1, s.err
	}
	if n < len(s.codes) {
		return s.codes[n], nil
	}
	return s.codes[len(s.codes)-1], nil
}

func (s *scriptedShell) callCount() int { return int(atomic.LoadInt32(&s.calls)) }

type scriptedWindows struct {
	mu       sync.Mutex
	contents []string
	reads    int
	raised   []string
	err      error
}

func (w *scriptedWindows) ReadWindow(_ context.Context, _ string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return "", w.err
	}
	n := w.reads
	w.reads++
	if n >= len(w.contents) {
		n = len(w.contents) - 1
	}
	return w.contents[n], nil
}

func (w *scriptedWindows) SendKeystroke(context.Context, string, string) error { return nil }

func (w *scriptedWindows) WindowOutput(context.Context, string) (string, error) { return "", nil }

func (w *scriptedWindows) RaiseWindow(_ context.Context, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.raised = append(w.raised, id)
	return nil
}

func fastConfig() Config {
	return Config{
		SSHInterval:    10 * time.Millisecond,
		SSHTimeout:     time.Second,
		ProcessDelay:   5 * time.Millisecond,
		WindowDelay:    5 * time.Millisecond,
		WindowInterval: 10 * time.Millisecond,
	}
}

func newTestSupervisor(shell ShellRunner, windows dispatch.WindowControl) *Supervisor {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(fastConfig(), shell, windows, logger)
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSSHMonitorPublishesConnectivity(t *testing.T) {
	shell := &scriptedShell{codes: []int{0, 1}}
	sup := newTestSupervisor(shell, &scriptedWindows{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup.StartSSH(ctx, 2, "ssh op@cam")
	waitFor(t, func() bool {
		st, _ := sup.Status(2)
		return st == StatusConnected
	}, "connected status")
	waitFor(t, func() bool {
		st, _ := sup.Status(2)
		return st == StatusBroken
	}, "broken status")

	shell.mu.Lock()
	first := shell.commands[0]
	shell.mu.Unlock()
	if first != "ssh op@cam exit" {
		t.Fatalf("unexpected probe command %q", first)
	}
}

func TestCancelStopsLoopWithinOneInterval(t *testing.T) {
	shell := &scriptedShell{codes: []int{0}}
	sup := newTestSupervisor(shell, &scriptedWindows{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup.StartSSH(ctx, 1, "ssh op@cam")
	waitFor(t, func() bool { return shell.callCount() >= 1 }, "first probe")
	sup.Cancel(1)

	settled := shell.callCount()
	time.Sleep(100 * time.Millisecond)
	if got := shell.callCount(); got > settled+1 {
		t.Fatalf("loop kept probing after cancel: %d -> %d", settled, got)
	}
	if _, ok := sup.Status(1); ok {
		t.Fatal("cancelled monitor should have no status")
	}
}

func TestRestartedMonitorIgnoresStaleLoop(t *testing.T) {
	shell := &scriptedShell{codes: []int{0}}
	sup := newTestSupervisor(shell, &scriptedWindows{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup.StartSSH(ctx, 4, "ssh op@cam")
	// Restart immediately; the first loop's generation is dead.
	sup.StartSSH(ctx, 4, "ssh op@cam")
	waitFor(t, func() bool {
		st, _ := sup.Status(4)
		return st == StatusConnected
	}, "second generation status")
}

func TestProcessMonitorTerminalOnBrokenProbe(t *testing.T) {
	shell := &scriptedShell{codes: []int{1}}
	sup := newTestSupervisor(shell, &scriptedWindows{})
	var broken atomic.Int32
	sup.OnProcessBroken = func(idx int) { broken.Store(int32(idx + 1)) }
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup.StartProcess(ctx, 6, "ssh op@cam", "feed_loop")
	waitFor(t, func() bool {
		st, _ := sup.Status(6)
		return st == StatusProcessBroken
	}, "process broken status")
	waitFor(t, func() bool { return broken.Load() == 7 }, "broken callback")

	calls := shell.callCount()
	time.Sleep(60 * time.Millisecond)
	if shell.callCount() != calls {
		t.Fatal("terminal process monitor kept probing")
	}
}

func TestProcessMonitorErrorStatus(t *testing.T) {
	shell := &scriptedShell{err: errors.New("ssh unavailable")}
	sup := newTestSupervisor(shell, &scriptedWindows{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup.StartProcess(ctx, 3, "ssh op@cam", "tag")
	waitFor(t, func() bool {
		st, _ := sup.Status(3)
		return st == StatusProcessError
	}, "process error status")
}

func TestWindowMonitorFindsKeyword(t *testing.T) {
	windows := &scriptedWindows{contents: []string{"baseline text", "baseline text and then DONE appeared"}}
	sup := newTestSupervisor(&scriptedShell{codes: []int{0}}, windows)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup.StartWindow(ctx, 8, "501", "baseline text", "done")
	waitFor(t, func() bool {
		st, _ := sup.Status(8)
		return st == StatusFound
	}, "found status")

	windows.mu.Lock()
	raised := len(windows.raised)
	windows.mu.Unlock()
	if raised == 0 {
		t.Fatal("found window should be raised")
	}
}

func TestWindowMonitorGoneAndError(t *testing.T) {
	windows := &scriptedWindows{contents: []string{dispatch.WindowGone}}
	sup := newTestSupervisor(&scriptedShell{codes: []int{0}}, windows)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sup.StartWindow(ctx, 9, "502", "base", "kw")
	waitFor(t, func() bool {
		st, _ := sup.Status(9)
		return st == StatusWindowGone
	}, "window gone status")

	failing := &scriptedWindows{err: errors.New("automation broke")}
	sup2 := newTestSupervisor(&scriptedShell{codes: []int{0}}, failing)
	sup2.StartWindow(ctx, 1, "503", "base", "kw")
	waitFor(t, func() bool {
		st, _ := sup2.Status(1)
		return st == StatusError
	}, "window error status")
}

func TestKeywordOnlyMatchesBeyondBaseline(t *testing.T) {
	windows := &scriptedWindows{contents: []string{"keyword already here"}}
	sup := newTestSupervisor(&scriptedShell{codes: []int{0}}, windows)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup.StartWindow(ctx, 5, "504", "keyword already here", "keyword")
	time.Sleep(80 * time.Millisecond)
	if st, _ := sup.Status(5); st == StatusFound {
		t.Fatal("keyword inside baseline must not trigger")
	}
}
