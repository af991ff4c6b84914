package driver

import (
	"context"
	"strconv"
	"strings"

	"github.com/deckpilot/deckd/internal/button"
	"github.com/deckpilot/deckd/internal/dispatch"
	"github.com/deckpilot/deckd/internal/render"
	"github.com/deckpilot/deckd/internal/session"
	"github.com/deckpilot/deckd/internal/store"
	"github.com/deckpilot/deckd/internal/vars"
)

// enterNumeric prompts for a start value and step, then arms the adjust
// mode on the button's first placeholder variable. Anything unparseable
// aborts without touching state.
func (d *Driver) enterNumeric(ctx context.Context, idx int, b store.Button, desc button.Descriptor) {
	var name string
	for _, n := range vars.Names(b.Command) {
		if !strings.EqualFold(n, "TAKE") {
			name = n
			break
		}
	}
	if name == "" {
		return
	}

	current, _ := d.sess.Var(name)
	startStr, err := d.prompt.Ask(ctx, "START "+name, current)
	if err != nil {
		return
	}
	start, err := strconv.ParseFloat(strings.TrimSpace(startStr), 64)
	if err != nil {
		d.logger.Warn("numeric start not a number", "button", b.Label, "value", startStr)
		return
	}

	stepStr, err := d.prompt.Ask(ctx, "STEP "+name, d.sess.StepMemory(idx))
	if err != nil {
		return
	}
	step, err := strconv.ParseFloat(strings.TrimSpace(stepStr), 64)
	if err != nil {
		d.logger.Warn("numeric step not a number", "button", b.Label, "value", stepStr)
		return
	}

	d.sess.SetStepMemory(idx, render.FormatStep(step))
	d.sess.SetVar(name, render.FormatValue(start))
	d.sess.EnterNumeric(session.NumericAdjust{
		Name:       name,
		Step:       step,
		Template:   b.Command,
		OwnerKey:   idx,
		ForceLocal: desc.ForceLocal,
		MobileSSH:  desc.MobileSSH,
		Background: desc.Background,
	})
}

// handleNumericKey services a press while adjust mode is armed. The owner
// key exits the mode; the arrows step the value and dispatch the
// re-resolved template, times five on a long press. Any other key exits
// the mode and reports the press as unhandled so it still gets its normal
// action.
func (d *Driver) handleNumericKey(ctx context.Context, slot int, long bool, n session.NumericAdjust) bool {
	ownerSlot, _ := d.slotOf(n.OwnerKey)
	switch slot {
	case ownerSlot:
		d.sess.ExitNumeric()
	case d.engine.PageUpKey():
		d.numericAdjust(ctx, n, 1, long)
	case d.engine.PageDownKey():
		d.numericAdjust(ctx, n, -1, long)
	default:
		d.sess.ExitNumeric()
		return false
	}
	return true
}

func (d *Driver) slotOf(itemIdx int) (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	slot, ok := d.assign.ItemToSlot[itemIdx]
	return slot, ok
}

func (d *Driver) numericAdjust(ctx context.Context, n session.NumericAdjust, dir int, long bool) {
	mult := 1.0
	if long {
		mult = 5
	}
	current := 0.0
	if v, ok := d.sess.Var(n.Name); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			current = parsed
		}
	}
	next := current + float64(dir)*n.Step*mult
	d.sess.SetVar(n.Name, render.FormatValue(next))

	resolved := d.sess.Resolve(n.Template)
	if n.MobileSSH && !n.ForceLocal {
		resolved = dispatch.MobileSSH(resolved)
	}
	if n.Background {
		if err := d.bg.Spawn([]string{"/bin/sh", "-c", resolved}); err != nil {
			d.logger.Error("numeric background spawn failed", "error", err)
		}
		return
	}

	req := dispatch.Request{Mode: dispatch.ModeDefault, Command: resolved}
	if activeIdx, ok := d.sess.ActiveDevice(); ok && !n.ForceLocal {
		if active, _, found := d.buttonAt(activeIdx); found {
			req.Mode = dispatch.ModeToActiveDevice
			req.ActiveLabel = active.Label
		}
	}
	d.runTerminal(ctx, n.Name, req)
}
