// Package driver owns the deck's behavior: it consumes key events, runs
// the per-button state machines, rebuilds the layout, and pushes visuals
// to the device. It is the single structural writer; every other component
// either feeds it (device, HTTP API) or is driven by it.
package driver

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/deckpilot/deckd/internal/button"
	"github.com/deckpilot/deckd/internal/deck"
	"github.com/deckpilot/deckd/internal/dispatch"
	"github.com/deckpilot/deckd/internal/layout"
	"github.com/deckpilot/deckd/internal/loader"
	"github.com/deckpilot/deckd/internal/monitor"
	"github.com/deckpilot/deckd/internal/render"
	"github.com/deckpilot/deckd/internal/session"
	"github.com/deckpilot/deckd/internal/store"
)

// Options bound the driver's timing and point it at its collaterals.
type Options struct {
	PollInterval       time.Duration
	LongPressThreshold time.Duration
	// StopSettle is the pause between the stop keystroke and the output
	// scan when a recording ends.
	StopSettle    time.Duration
	WebUIURL      string
	RecordLogPath string
}

func (o *Options) fill() {
	if o.PollInterval <= 0 {
		o.PollInterval = 300 * time.Millisecond
	}
	if o.LongPressThreshold <= 0 {
		o.LongPressThreshold = time.Second
	}
	if o.StopSettle <= 0 {
		o.StopSettle = 500 * time.Millisecond
	}
}

// Deps are the collaborators the driver coordinates.
type Deps struct {
	Device     deck.Device
	Store      *store.Store
	Loader     *loader.Loader
	Terminal   dispatch.Terminal
	Prompter   dispatch.Prompter
	Windows    dispatch.WindowControl
	Opener     dispatch.Opener
	Background *dispatch.Background
	Supervisor *monitor.Supervisor
	Session    *session.Session
	Engine     *layout.Engine
}

// State is the snapshot pushed to API subscribers on structural changes.
type State struct {
	Page         int               `json:"page"`
	TotalPages   int               `json:"total_pages"`
	Variables    map[string]string `json:"variables"`
	Statuses     map[int]string    `json:"statuses"`
	ActiveDevice *int              `json:"active_device,omitempty"`
}

type Driver struct {
	opts   Options
	device deck.Device
	st     *store.Store
	loader *loader.Loader
	term   dispatch.Terminal
	prompt dispatch.Prompter
	win    dispatch.WindowControl
	opener dispatch.Opener
	bg     *dispatch.Background
	sup    *monitor.Supervisor
	sess   *session.Session
	engine *layout.Engine
	logger *slog.Logger

	runCtx   context.Context
	commands chan func()
	redraw   chan struct{}

	mu        sync.Mutex
	buttons   []store.Button
	descs     []button.Descriptor
	assign    layout.Assignment
	prevSlots map[int]int
	flash     bool
	subs      map[chan State]struct{}

	pressAt map[int]time.Time
}

func New(opts Options, deps Deps, logger *slog.Logger) *Driver {
	opts.fill()
	d := &Driver{
		opts:      opts,
		device:    deps.Device,
		st:        deps.Store,
		loader:    deps.Loader,
		term:      deps.Terminal,
		prompt:    deps.Prompter,
		win:       deps.Windows,
		opener:    deps.Opener,
		bg:        deps.Background,
		sup:       deps.Supervisor,
		sess:      deps.Session,
		engine:    deps.Engine,
		logger:    logger.With("component", "driver"),
		commands:  make(chan func(), 16),
		redraw:    make(chan struct{}, 1),
		prevSlots: map[int]int{},
		subs:      map[chan State]struct{}{},
		pressAt:   map[int]time.Time{},
	}
	d.sup.OnProcessBroken = d.onProcessBroken
	return d
}

// Run loads the button set and serves the event loop until the context
// ends. The initial load failing is fatal; later reloads log and keep the
// previous state.
func (d *Driver) Run(ctx context.Context) error {
	d.runCtx = ctx
	if err := d.Reload(ctx); err != nil {
		return err
	}
	d.renderAll()

	ticker := time.NewTicker(d.opts.PollInterval)
	defer ticker.Stop()
	defer d.bg.StopAll()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-d.device.Events():
			if !ok {
				return nil
			}
			d.handleEvent(ctx, ev)
		case f := <-d.commands:
			f()
		case <-d.redraw:
			d.renderAll()
			d.publish()
		case <-ticker.C:
			d.mu.Lock()
			d.flash = !d.flash
			d.mu.Unlock()
			if reaped := d.bg.Reap(); len(reaped) > 0 {
				d.logger.Info("background processes exited", "buttons", reaped)
			}
			d.renderAll()
		}
	}
}

func (d *Driver) handleEvent(ctx context.Context, ev deck.KeyEvent) {
	if ev.Pressed {
		d.pressAt[ev.Key] = time.Now()
		return
	}
	started, ok := d.pressAt[ev.Key]
	if !ok {
		return
	}
	delete(d.pressAt, ev.Key)
	long := time.Since(started) >= d.opts.LongPressThreshold
	d.handleKey(ctx, ev.Key, long)
	d.rebuild()
	d.renderAll()
	d.publish()
}

// Reload reruns the load script, rereads the button table, and resets all
// transient state. Nothing is mutated until the new button list is in hand.
func (d *Driver) Reload(ctx context.Context) error {
	if err := d.loader.Run(ctx); err != nil {
		return err
	}
	if err := d.st.Reopen(); err != nil {
		return err
	}
	buttons, err := d.st.ListButtons(ctx)
	if err != nil {
		return err
	}

	d.sup.CancelAll()
	d.installButtons(buttons)
	d.sess.SetPageIndex(0)
	d.rebuild()
	d.startMonitoring()
	d.logger.Info("buttons loaded", "count", len(buttons))
	return nil
}

// installButtons swaps the in-memory button list and reseeds variables.
func (d *Driver) installButtons(buttons []store.Button) {
	descs := make([]button.Descriptor, len(buttons))
	commands := make([]string, len(buttons))
	recordPresent := false
	for i, b := range buttons {
		descs[i] = button.ParseFlags(b.Flags)
		commands[i] = b.Command
		if descs[i].Record {
			recordPresent = true
		}
	}
	d.sess.Reseed(commands, recordPresent)

	d.mu.Lock()
	d.buttons = buttons
	d.descs = descs
	d.prevSlots = map[int]int{}
	d.mu.Unlock()
}

// startMonitoring launches the ssh reachability loop for every monitored
// device button. A command the ssh base cannot be extracted from is a
// config error, surfaced on the key.
func (d *Driver) startMonitoring() {
	d.mu.Lock()
	buttons := d.buttons
	descs := d.descs
	d.mu.Unlock()
	for i, desc := range descs {
		if !desc.MonitorProcess || !desc.Device {
			continue
		}
		base := d.sshBaseFor(buttons[i], desc)
		if base == "" {
			d.sup.SetStatus(i, monitor.StatusConfigError)
			d.logger.Warn("device button has no ssh base", "button", i, "label", buttons[i].Label)
			continue
		}
		d.sup.StartSSH(d.monitorCtx(), i, base)
	}
}

func (d *Driver) sshBaseFor(b store.Button, desc button.Descriptor) string {
	cmd := d.sess.Resolve(b.Command)
	if desc.MobileSSH && !desc.ForceLocal {
		cmd = dispatch.MobileSSH(cmd)
	}
	return dispatch.SSHBase(cmd)
}

func (d *Driver) monitorCtx() context.Context {
	if d.runCtx != nil {
		return d.runCtx
	}
	return context.Background()
}

// rebuild recomputes the slot assignment for the current page. Buttons in
// an active record state pin in place; sticky, device, and currently
// monitoring buttons fill first.
func (d *Driver) rebuild() {
	d.mu.Lock()
	defer d.mu.Unlock()

	recordStates := d.sess.RecordStates()
	statuses := d.sup.Snapshot()

	items := make([]layout.Item, len(d.buttons))
	for i, desc := range d.descs {
		phase := recordStates[i].Phase
		items[i] = layout.Item{
			Sticky: desc.Sticky || desc.Device ||
				(desc.OSAMonitor && (statuses[i] == monitor.StatusMonitoring || statuses[i] == monitor.StatusFound)),
			InPlace: phase == session.RecordRecording || phase == session.RecordError,
		}
	}
	d.assign = d.engine.BuildPage(layout.PageRequest{
		Items:     items,
		PrevSlots: d.prevSlots,
		Page:      d.sess.PageIndex(),
	})
	d.sess.SetPageIndex(d.assign.Page)
	d.prevSlots = make(map[int]int, len(d.assign.ItemToSlot))
	for item, slot := range d.assign.ItemToSlot {
		d.prevSlots[item] = slot
	}
}

func (d *Driver) changePage(delta int) {
	d.sess.SetPageIndex(d.sess.PageIndex() + delta)
	d.rebuild()
}

// renderAll draws every key. Per-key failures are logged and skipped so
// one bad frame never stalls the loop.
func (d *Driver) renderAll() {
	views := d.frame()
	for slot, view := range views {
		if err := d.device.SetKey(slot, render.Decide(view)); err != nil {
			d.logger.Error("key render failed", "slot", slot, "error", err)
		}
	}
}

// frame assembles the per-slot views for the current state.
func (d *Driver) frame() []render.View {
	d.mu.Lock()
	buttons := d.buttons
	descs := d.descs
	assign := d.assign
	flash := d.flash
	d.mu.Unlock()

	sessionVars := d.sess.VarsSnapshot()
	statuses := d.sup.Snapshot()
	take := sessionVars["TAKE"]
	activeIdx, activeOK := d.sess.ActiveDevice()

	var numeric *render.NumericView
	if n, ok := d.sess.Numeric(); ok {
		if ownerSlot, ok := assign.ItemToSlot[n.OwnerKey]; ok {
			value, _ := d.sess.Var(n.Name)
			numeric = &render.NumericView{
				OwnerSlot:  ownerSlot,
				OwnerColor: descs[n.OwnerKey].Color,
				Value:      value,
				Step:       n.Step,
			}
		}
	}

	views := make([]render.View, d.device.KeyCount())
	for slot := range views {
		view := render.View{
			Slot:        slot,
			Load:        d.engine.LoadKey(),
			PageUp:      d.engine.PageUpKey(),
			PageDown:    d.engine.PageDownKey(),
			Desc:        button.ParseFlags(""),
			Numeric:     numeric,
			SessionVars: sessionVars,
			Flash:       flash,
		}
		switch slot {
		case d.engine.LoadKey():
			view.Label = "LOAD"
			view.Desc = button.ParseFlags("W")
		case d.engine.PageUpKey():
			view.Label = "▲"
			view.Desc = button.ParseFlags("W")
		case d.engine.PageDownKey():
			view.Label = "▼"
			view.Desc = button.ParseFlags("W")
		default:
			if idx, ok := assign.SlotToItem[slot]; ok {
				b := buttons[idx]
				view.HasItem = true
				view.Label = b.Label
				view.Command = b.Command
				view.Desc = descs[idx]
				view.TakeValue = take
				view.ActiveDevice = activeOK && activeIdx == idx
				view.BackgroundRunning = d.bg.Running(idx)
				if st, ok := statuses[idx]; ok {
					view.MonitorStatus = st
					view.HasMonitorStatus = true
				}
				if rs := d.sess.RecordState(idx); rs.Phase != session.RecordOff {
					view.RecordPhase = string(rs.Phase)
				}
			}
		}
		views[slot] = view
	}
	return views
}

// requestRedraw asks the loop for a repaint without blocking the caller.
func (d *Driver) requestRedraw() {
	select {
	case d.redraw <- struct{}{}:
	default:
	}
}

func (d *Driver) onProcessBroken(idx int) {
	if d.sess.RecordState(idx).Phase == session.RecordRecording {
		d.sess.SetRecordState(idx, session.RecordState{Phase: session.RecordError})
		d.logger.Warn("recording process lost", "button", idx)
	}
	d.requestRedraw()
}

// do runs f on the driver goroutine and waits for it.
func (d *Driver) do(f func()) {
	done := make(chan struct{})
	select {
	case d.commands <- func() { f(); close(done) }:
	case <-time.After(5 * time.Second):
		return
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
	}
}

// Buttons returns a copy of the in-memory button list.
func (d *Driver) Buttons() []store.Button {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]store.Button, len(d.buttons))
	copy(out, d.buttons)
	return out
}

// ReplaceButtons installs an already persisted button list: monitors are
// retired (an edit can shift button indices), variables are reseeded, the
// layout rebuilt, and the deck redrawn on the driver goroutine. The page
// position survives an edit.
func (d *Driver) ReplaceButtons(buttons []store.Button) {
	d.do(func() {
		page := d.sess.PageIndex()
		d.sup.CancelAll()
		d.installButtons(buttons)
		d.sess.SetPageIndex(page)
		d.rebuild()
		d.startMonitoring()
		d.renderAll()
		d.publish()
	})
}

// RequestReload re-runs the load script on the driver goroutine, exactly
// as a LOAD key press would. Failures keep the current state.
func (d *Driver) RequestReload() {
	d.do(func() {
		if err := d.Reload(d.runCtx); err != nil {
			d.logger.Error("scheduled reload failed, keeping current state", "error", err)
			return
		}
		d.renderAll()
		d.publish()
	})
}

// MergeVariables applies a variable batch from the API and redraws.
func (d *Driver) MergeVariables(updates map[string]string) {
	d.do(func() {
		d.sess.MergeVars(updates)
		d.renderAll()
		d.publish()
	})
}

// State snapshots the driver for the API.
func (d *Driver) State() State {
	d.mu.Lock()
	assign := d.assign
	d.mu.Unlock()

	statuses := map[int]string{}
	for idx, st := range d.sup.Snapshot() {
		statuses[idx] = string(st)
	}
	state := State{
		Page:       assign.Page,
		TotalPages: assign.TotalPages,
		Variables:  d.sess.VarsSnapshot(),
		Statuses:   statuses,
	}
	if idx, ok := d.sess.ActiveDevice(); ok {
		v := idx
		state.ActiveDevice = &v
	}
	return state
}

// Subscribe registers a state listener; the returned func unsubscribes.
func (d *Driver) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 8)
	d.mu.Lock()
	d.subs[ch] = struct{}{}
	d.mu.Unlock()
	return ch, func() {
		d.mu.Lock()
		delete(d.subs, ch)
		d.mu.Unlock()
	}
}

func (d *Driver) publish() {
	state := d.State()
	d.mu.Lock()
	defer d.mu.Unlock()
	for ch := range d.subs {
		select {
		case ch <- state:
		default:
		}
	}
}
