package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type fakeRunner struct {
	lastStdin string
	lastArgs  []string
	stdout    string
	stderr    string
	exitCode  int
}

func (f *fakeRunner) Run(_ context.Context, stdin, name string, args ...string) (string, string, int, error) {
	f.lastStdin = stdin
	f.lastArgs = append([]string{name}, args...)
	return f.stdout, f.stderr, f.exitCode, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeTemplate(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write template: %v", err)
	}
}

func newTestOsascript(t *testing.T, runner Runner, dir string) *Osascript {
	t.Helper()
	return NewOsascript(NewTemplateSet(dir), runner, 5*time.Second, 5*time.Second, testLogger())
}

func TestRunSubstitutesPayload(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "terminal_do_script_default.applescript", `do script "{{final_script_payload_for_do_script}}"`)
	runner := &fakeRunner{stdout: "ok\n"}
	osa := newTestOsascript(t, runner, dir)

	res, err := osa.Run(context.Background(), Request{Mode: ModeDefault, Command: `echo "hi"`})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Output != "ok" {
		t.Fatalf("unexpected output %q", res.Output)
	}
	if runner.lastStdin != `do script "echo \"hi\""` {
		t.Fatalf("unexpected script %q", runner.lastStdin)
	}
}

func TestRunStagedKeystrokeNeedsStyle(t *testing.T) {
	osa := newTestOsascript(t, &fakeRunner{}, t.TempDir())
	_, err := osa.Run(context.Background(), Request{Mode: ModeStagedKeystroke, Command: "x"})
	if err == nil {
		t.Fatal("expected error without style and ssh command")
	}
}

func TestRunDeviceActivateStyle(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "terminal_activate_found_at_only.applescript",
		`{{escaped_device_label}}|{{aps_bg_color}}|{{aps_text_color}}|{{force_new_window}}`)
	runner := &fakeRunner{}
	osa := newTestOsascript(t, runner, dir)

	_, err := osa.Run(context.Background(), Request{
		Mode:           ModeDeviceActivate,
		Command:        "tail -f feed",
		Style:          &Style{Title: "Camera A", Background: "#0066CC", TextColor: "white"},
		ForceNewWindow: true,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := "Camera A|{0,26214,52428}|{65535,65535,65535}|true"
	if runner.lastStdin != want {
		t.Fatalf("unexpected script %q, want %q", runner.lastStdin, want)
	}
}

func TestRunMapsCancelAndTimeout(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "terminal_do_script_default.applescript", "x")

	osa := newTestOsascript(t, &fakeRunner{exitCode: 1, stderr: "execution error: User canceled. (-128)"}, dir)
	if _, err := osa.Run(context.Background(), Request{Mode: ModeDefault, Command: "x"}); !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}

	osa = newTestOsascript(t, &fakeRunner{exitCode: 1, stderr: "event timed out (-1712)"}, dir)
	if _, err := osa.Run(context.Background(), Request{Mode: ModeDefault, Command: "x"}); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestAskSentinelOutputs(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "system_events_dialog.applescript", `ask "{{prompt_message}}" default "{{default_answer}}"`)

	osa := newTestOsascript(t, &fakeRunner{stdout: "USER_CANCELLED_PROMPT\n"}, dir)
	if _, err := osa.Ask(context.Background(), "Value?", "1"); !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}

	osa = newTestOsascript(t, &fakeRunner{stdout: "USER_TIMEOUT_PROMPT"}, dir)
	if _, err := osa.Ask(context.Background(), "Value?", "1"); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}

	runner := &fakeRunner{stdout: "42\n"}
	osa = newTestOsascript(t, runner, dir)
	got, err := osa.Ask(context.Background(), "Value?", "7")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if got != "42" {
		t.Fatalf("unexpected answer %q", got)
	}
	if runner.lastStdin != `ask "Value?" default "7"` {
		t.Fatalf("unexpected dialog script %q", runner.lastStdin)
	}
}

func TestConfirm(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "system_events_confirm.applescript", `confirm "{{prompt_message}}"`)
	osa := newTestOsascript(t, &fakeRunner{stdout: "YES_CONFIRMED\n"}, dir)
	ok, err := osa.Confirm(context.Background(), "Run?")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !ok {
		t.Fatal("expected confirmed")
	}
	osa = newTestOsascript(t, &fakeRunner{stdout: "NO"}, dir)
	ok, err = osa.Confirm(context.Background(), "Run?")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if ok {
		t.Fatal("expected declined")
	}
}

func TestTemplateFallbackAndInvalidate(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "fancy.txt", "v1 {{x}}")
	ts := NewTemplateSet(dir)

	got, err := ts.Load("fancy", map[string]string{"x": "a"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != "v1 a" {
		t.Fatalf("unexpected content %q", got)
	}

	writeTemplate(t, dir, "fancy.txt", "v2 {{x}}")
	got, _ = ts.Load("fancy", map[string]string{"x": "a"})
	if got != "v1 a" {
		t.Fatalf("expected cached content, got %q", got)
	}
	ts.Invalidate()
	got, _ = ts.Load("fancy", map[string]string{"x": "a"})
	if got != "v2 a" {
		t.Fatalf("expected fresh content after invalidate, got %q", got)
	}

	if _, err := ts.Load("missing", nil); err == nil {
		t.Fatal("expected error for missing template")
	}
}
