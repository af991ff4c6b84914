package driver

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/deckpilot/deckd/internal/button"
	"github.com/deckpilot/deckd/internal/dispatch"
	"github.com/deckpilot/deckd/internal/session"
	"github.com/deckpilot/deckd/internal/store"
	"github.com/deckpilot/deckd/internal/vars"
)

// recordErrorKeywords flag a failed capture when found in the terminal
// output after the stop keystroke.
var recordErrorKeywords = []string{
	"failed",
	"bad output",
	"MovieSamplerCheckMovie failed",
	"-12848",
}

const recordScanLines = 15

var recordStartPattern = regexp.MustCompile(`(?s)(Will capture.*?Session start status: 0)`)

var takeDefaultPattern = regexp.MustCompile(`\{\{TAKE:([^}]+)\}\}`)

// recordPress advances the record state machine one step: OFF starts a
// capture, RECORDING stops and verifies it, ERROR is dismissed.
func (d *Driver) recordPress(ctx context.Context, idx int, b store.Button, desc button.Descriptor) {
	st := d.sess.RecordState(idx)
	switch st.Phase {
	case session.RecordError:
		d.sess.SetRecordState(idx, session.RecordState{Phase: session.RecordOff})
	case session.RecordRecording:
		d.stopRecording(ctx, idx, st)
	default:
		d.startRecording(ctx, idx, b, desc)
	}
}

// startRecording needs an active device to capture from; without one the
// button goes straight to ERROR and nothing is dispatched or logged.
func (d *Driver) startRecording(ctx context.Context, idx int, b store.Button, desc button.Descriptor) {
	activeIdx, ok := d.sess.ActiveDevice()
	if !ok {
		d.sess.SetRecordState(idx, session.RecordState{Phase: session.RecordError})
		d.logger.Warn("record pressed without an active device", "button", b.Label)
		return
	}
	active, activeDesc, found := d.buttonAt(activeIdx)
	if !found {
		d.sess.SetRecordState(idx, session.RecordState{Phase: session.RecordError})
		return
	}

	resolved := d.sess.Resolve(b.Command)
	var window string
	var req dispatch.Request
	if activeDesc.MobileSSH {
		// The active device already runs as the mobile user; type the
		// capture command straight into its window.
		window = active.Label
		req = dispatch.Request{
			Mode:        dispatch.ModeToActiveDevice,
			Command:     resolved,
			ActiveLabel: active.Label,
		}
	} else {
		window = active.Label + "-REC"
		req = dispatch.Request{
			Mode:          dispatch.ModeStagedKeystroke,
			Command:       resolved,
			Style:         &dispatch.Style{Title: window, Background: desc.Color, TextColor: button.TextColor(desc.Color)},
			SSHCommand:    dispatch.MobileSSH(d.sess.Resolve(active.Command)),
			StagedCommand: resolved,
		}
	}

	res, ok := d.runTerminal(ctx, b.Label, req)
	if !ok {
		d.sess.SetRecordState(idx, session.RecordState{Phase: session.RecordError})
		return
	}
	d.sess.SetRecordState(idx, session.RecordState{Phase: session.RecordRecording, WindowTitle: window})
	d.logRecordStart(res.Output, resolved)

	if desc.MonitorProcess {
		if base := d.sshBaseFor(active, activeDesc); base != "" {
			d.sup.StartProcess(d.monitorCtx(), idx, base, resolved)
		}
	}
}

// stopRecording sends the stop keystroke, lets the recorder settle, then
// scans the tail of the window output. A clean stop bumps TAKE.
func (d *Driver) stopRecording(ctx context.Context, idx int, st session.RecordState) {
	d.sup.Cancel(idx)

	if err := d.win.SendKeystroke(ctx, st.WindowTitle, "\r"); err != nil {
		d.sess.SetRecordState(idx, session.RecordState{Phase: session.RecordError})
		d.logger.Error("stop keystroke failed", "window", st.WindowTitle, "error", err)
		return
	}
	time.Sleep(d.opts.StopSettle)

	output, err := d.win.WindowOutput(ctx, st.WindowTitle)
	if err != nil {
		d.sess.SetRecordState(idx, session.RecordState{Phase: session.RecordError})
		d.logger.Error("record output read failed", "window", st.WindowTitle, "error", err)
		return
	}
	if line, bad := scanRecordErrors(output); bad {
		d.sess.SetRecordState(idx, session.RecordState{Phase: session.RecordError, WindowTitle: st.WindowTitle})
		d.appendRecordLog("ERR: " + line)
		d.logger.Warn("capture reported an error", "window", st.WindowTitle, "line", line)
		return
	}

	if take, ok := d.sess.Var("TAKE"); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(take)); err == nil {
			d.sess.SetVar("TAKE", strconv.Itoa(n+1))
		}
	}
	d.sess.SetRecordState(idx, session.RecordState{Phase: session.RecordOff})
}

// scanRecordErrors checks the last lines of the capture output for the
// known failure markers.
func scanRecordErrors(output string) (string, bool) {
	lines := strings.Split(output, "\n")
	if len(lines) > recordScanLines {
		lines = lines[len(lines)-recordScanLines:]
	}
	for _, line := range lines {
		lower := strings.ToLower(line)
		for _, kw := range recordErrorKeywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				return strings.TrimSpace(line), true
			}
		}
	}
	return "", false
}

// recordLongPress walks the command's variables with prompts, TAKE last.
// When SCENE moved since the previous take the suggestion resets to the
// template default instead of continuing the old count.
func (d *Driver) recordLongPress(ctx context.Context, idx int, b store.Button) {
	if d.sess.RecordState(idx).Phase == session.RecordRecording {
		return
	}

	for _, name := range vars.Names(b.Command) {
		if strings.EqualFold(name, "TAKE") {
			continue
		}
		current, _ := d.sess.Var(name)
		value, err := d.prompt.Ask(ctx, name, current)
		if err != nil {
			return
		}
		d.sess.SetVar(name, value)
	}

	suggested, _ := d.sess.Var("TAKE")
	if d.sess.SceneChanged() {
		suggested = "1"
		if m := takeDefaultPattern.FindStringSubmatch(b.Command); m != nil && isDigits(m[1]) {
			suggested = m[1]
		}
	}
	value, err := d.prompt.Ask(ctx, "TAKE", suggested)
	if err != nil {
		return
	}
	d.sess.SetVar("TAKE", value)
}

// logRecordStart writes one line per capture start: the recorder's own
// session banner when present, otherwise the command that was sent.
func (d *Driver) logRecordStart(output, resolved string) {
	line := "CMD: " + resolved
	if m := recordStartPattern.FindString(output); m != "" {
		line = "START_OUTPUT: " + m
	}
	d.appendRecordLog(line)
}

// appendRecordLog appends to the capture log. A permission error falls
// back to the user's Desktop so takes are never silently unlogged.
func (d *Driver) appendRecordLog(line string) {
	if d.opts.RecordLogPath == "" {
		return
	}
	entry := time.Now().Format("2006-01-02 15:04:05") + " " + line + "\n"
	path := d.opts.RecordLogPath
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil && os.IsPermission(err) {
		if home, herr := os.UserHomeDir(); herr == nil {
			path = filepath.Join(home, "Desktop", filepath.Base(d.opts.RecordLogPath))
			f, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		}
	}
	if err != nil {
		d.logger.Error("record log write failed", "path", path, "error", err)
		return
	}
	defer f.Close()
	if _, err := f.WriteString(entry); err != nil {
		d.logger.Error("record log write failed", "path", path, "error", err)
	}
}
