package driver

import (
	"context"
	"errors"
	"strings"

	"github.com/deckpilot/deckd/internal/button"
	"github.com/deckpilot/deckd/internal/dispatch"
	"github.com/deckpilot/deckd/internal/monitor"
	"github.com/deckpilot/deckd/internal/store"
	"github.com/deckpilot/deckd/internal/vars"
)

// handleKey routes one completed press. Numeric-adjust mode sees every
// key first; an unrelated press exits it and falls through to its normal
// action. The fixed controls come next; everything else is a button.
func (d *Driver) handleKey(ctx context.Context, slot int, long bool) {
	if n, ok := d.sess.Numeric(); ok {
		if d.handleNumericKey(ctx, slot, long, n) {
			return
		}
	}

	switch slot {
	case d.engine.LoadKey():
		if long {
			return
		}
		if err := d.Reload(ctx); err != nil {
			d.logger.Error("reload failed, keeping current state", "error", err)
		}
		return
	case d.engine.PageUpKey():
		if !long {
			d.changePage(-1)
		}
		return
	case d.engine.PageDownKey():
		if long {
			d.openConfigUI(ctx)
		} else {
			d.changePage(1)
		}
		return
	}

	idx, b, desc, ok := d.itemAt(slot)
	if !ok {
		return
	}

	if desc.Confirm {
		confirmed, err := d.prompt.Confirm(ctx, "Run "+b.Label+"?")
		if err != nil || !confirmed {
			return
		}
	}

	switch {
	case desc.Record:
		if long {
			d.recordLongPress(ctx, idx, b)
		} else {
			d.recordPress(ctx, idx, b, desc)
		}
	case desc.OSAMonitor:
		if !long {
			d.toggleWindowMonitor(ctx, idx, b, desc)
		}
	case desc.Numeric && long:
		d.enterNumeric(ctx, idx, b, desc)
	case desc.VarEdit && long:
		d.editVariables(ctx, b)
	case desc.Device:
		if !long {
			d.toggleDevice(ctx, idx, b, desc)
		}
	case desc.Background:
		d.toggleBackground(idx, b, desc)
	default:
		d.dispatchPlain(ctx, b, desc)
	}
}

func (d *Driver) itemAt(slot int) (int, store.Button, button.Descriptor, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	idx, ok := d.assign.SlotToItem[slot]
	if !ok || idx >= len(d.buttons) {
		return 0, store.Button{}, button.Descriptor{}, false
	}
	return idx, d.buttons[idx], d.descs[idx], true
}

func (d *Driver) buttonAt(idx int) (store.Button, button.Descriptor, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if idx < 0 || idx >= len(d.buttons) {
		return store.Button{}, button.Descriptor{}, false
	}
	return d.buttons[idx], d.descs[idx], true
}

func (d *Driver) openConfigUI(ctx context.Context) {
	if d.opts.WebUIURL == "" || d.opener == nil {
		return
	}
	if err := d.opener.OpenURL(ctx, d.opts.WebUIURL); err != nil {
		d.logger.Error("config ui launch failed", "error", err)
	}
}

// dispatchPlain resolves the command and runs it: new window when flagged,
// into the active device's window when one is active, otherwise into the
// frontmost session.
func (d *Driver) dispatchPlain(ctx context.Context, b store.Button, desc button.Descriptor) {
	resolved := d.sess.Resolve(b.Command)
	if strings.TrimSpace(resolved) == "" {
		return
	}
	if desc.MobileSSH && !desc.ForceLocal {
		resolved = dispatch.MobileSSH(resolved)
	}

	req := dispatch.Request{Mode: dispatch.ModeDefault, Command: resolved}
	activeIdx, activeOK := d.sess.ActiveDevice()
	switch {
	case desc.NewWindow && desc.ForceLocal:
		req.Mode = dispatch.ModeForceLocalNewWindow
	case desc.NewWindow:
		req.Mode = dispatch.ModeNewWindow
		req.Style = d.styleFor(b, desc)
	case activeOK && !desc.ForceLocal:
		if active, _, ok := d.buttonAt(activeIdx); ok {
			req.Mode = dispatch.ModeToActiveDevice
			req.ActiveLabel = active.Label
		}
	}
	d.runTerminal(ctx, b.Label, req)
}

func (d *Driver) styleFor(b store.Button, desc button.Descriptor) *dispatch.Style {
	return &dispatch.Style{
		Title:      b.Label,
		Background: desc.Color,
		TextColor:  button.TextColor(desc.Color),
	}
}

func (d *Driver) runTerminal(ctx context.Context, label string, req dispatch.Request) (dispatch.Result, bool) {
	res, err := d.term.Run(ctx, req)
	switch {
	case err == nil:
		return res, true
	case errors.Is(err, dispatch.ErrCancelled), errors.Is(err, dispatch.ErrTimeout):
		d.logger.Info("dispatch abandoned", "button", label, "reason", err)
	default:
		d.logger.Error("dispatch failed", "button", label, "error", err)
	}
	return dispatch.Result{}, false
}

// toggleDevice activates or deactivates a device button. Activation opens
// or reuses the styled device window; a command edit since the last
// activation forces a fresh window.
func (d *Driver) toggleDevice(ctx context.Context, idx int, b store.Button, desc button.Descriptor) {
	if active, ok := d.sess.ActiveDevice(); ok && active == idx {
		d.sess.ClearActiveDevice()
		return
	}

	resolved := d.sess.Resolve(b.Command)
	if desc.MobileSSH && !desc.ForceLocal {
		resolved = dispatch.MobileSSH(resolved)
	}
	mode := dispatch.ModeDeviceActivate
	if desc.NewWindow {
		mode = dispatch.ModeDeviceActivateNewWindow
	}
	req := dispatch.Request{
		Mode:           mode,
		Command:        resolved,
		Style:          d.styleFor(b, desc),
		ForceNewWindow: d.sess.TakeReinit(idx),
	}
	if _, ok := d.runTerminal(ctx, b.Label, req); !ok {
		return
	}
	d.sess.SetActiveDevice(idx)

	if desc.MonitorProcess {
		if _, running := d.sup.Status(idx); !running {
			if base := dispatch.SSHBase(resolved); base != "" {
				d.sup.StartSSH(d.monitorCtx(), idx, base)
			} else {
				d.sup.SetStatus(idx, monitor.StatusConfigError)
			}
		}
	}
}

// editVariables walks the command's placeholders with sequential prompts.
// Cancel or timeout stops the walk; values already entered stand. Device
// buttons whose command uses a changed variable need a fresh window next
// activation; a changed active device is deactivated outright.
func (d *Driver) editVariables(ctx context.Context, b store.Button) {
	changed := map[string]bool{}
	for _, name := range vars.Names(b.Command) {
		current, _ := d.sess.Var(name)
		value, err := d.prompt.Ask(ctx, name, current)
		if err != nil {
			break
		}
		if value != current {
			d.sess.SetVar(name, value)
			changed[name] = true
		}
	}
	if len(changed) == 0 {
		return
	}

	d.mu.Lock()
	buttons := d.buttons
	descs := d.descs
	d.mu.Unlock()
	activeIdx, activeOK := d.sess.ActiveDevice()
	for i, desc := range descs {
		if !desc.Device {
			continue
		}
		uses := false
		for _, name := range vars.Names(buttons[i].Command) {
			if changed[name] {
				uses = true
				break
			}
		}
		if !uses {
			continue
		}
		d.sess.MarkReinit(i)
		if activeOK && activeIdx == i {
			d.sess.ClearActiveDevice()
		}
	}
}

// toggleBackground starts or stops the button's detached process. With an
// active device and no force-local flag the command runs remotely through
// the device's ssh base.
func (d *Driver) toggleBackground(idx int, b store.Button, desc button.Descriptor) {
	if d.bg.Running(idx) {
		d.bg.Stop(idx)
		return
	}
	resolved := d.sess.Resolve(b.Command)
	if strings.TrimSpace(resolved) == "" {
		return
	}

	command := resolved
	if activeIdx, ok := d.sess.ActiveDevice(); ok && !desc.ForceLocal {
		if active, activeDesc, found := d.buttonAt(activeIdx); found {
			if base := d.sshBaseFor(active, activeDesc); base != "" {
				command = base + " " + dispatch.ShellQuote(resolved)
			}
		}
	}
	if err := d.bg.Start(idx, []string{"/bin/sh", "-c", command}); err != nil {
		d.logger.Error("background start failed", "button", b.Label, "error", err)
	}
}

// toggleWindowMonitor starts or cancels the output-keyword watch for a
// button. Starting spawns a snapshot window, parses "id::::baseline", and
// hands the pair to the supervisor.
func (d *Driver) toggleWindowMonitor(ctx context.Context, idx int, b store.Button, desc button.Descriptor) {
	if st, ok := d.sup.Status(idx); ok && (st == monitor.StatusMonitoring || st == monitor.StatusFound) {
		d.sup.Cancel(idx)
		return
	}

	// Spreadsheet exports turn keywords into floats; strip the artifact.
	keyword := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(b.MonitorKeyword), ".0"))
	if keyword == "" {
		d.sup.SetStatus(idx, monitor.StatusError)
		d.logger.Warn("monitor button has no keyword", "button", b.Label)
		return
	}

	resolved := d.sess.Resolve(b.Command)
	req := dispatch.Request{
		Mode:    dispatch.ModeSpawnSnapshot,
		Command: resolved,
		Style:   d.styleFor(b, desc),
	}
	if activeIdx, ok := d.sess.ActiveDevice(); ok {
		if active, activeDesc, found := d.buttonAt(activeIdx); found {
			ssh := d.sess.Resolve(active.Command)
			if activeDesc.MobileSSH && !activeDesc.ForceLocal {
				ssh = dispatch.MobileSSH(ssh)
			}
			req.Mode = dispatch.ModeSpawnSSHSnapshot
			req.SSHCommand = ssh
			req.StagedCommand = resolved
		}
	}

	res, ok := d.runTerminal(ctx, b.Label, req)
	if !ok {
		d.sup.SetStatus(idx, monitor.StatusError)
		return
	}
	windowID, baseline, found := strings.Cut(res.Output, "::::")
	if !found || !isDigits(windowID) {
		d.sup.SetStatus(idx, monitor.StatusError)
		d.logger.Warn("snapshot returned no window id", "button", b.Label, "output", res.Output)
		return
	}
	d.sup.StartWindow(d.monitorCtx(), idx, windowID, baseline, keyword)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
