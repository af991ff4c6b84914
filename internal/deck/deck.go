// Package deck abstracts the key-grid hardware. The driver only ever sees
// the Device interface; the USB implementation and the in-memory fake are
// interchangeable behind it.
package deck

import (
	"sync"

	"github.com/deckpilot/deckd/internal/render"
)

// KeyEvent is one key transition as reported by the hardware.
type KeyEvent struct {
	Key     int
	Pressed bool
}

// Device is a grid of pressable, drawable keys.
type Device interface {
	KeyCount() int
	Layout() (rows, cols int)
	SetKey(idx int, visual render.KeyVisual) error
	Events() <-chan KeyEvent
	Reset() error
	Close() error
}

// Fake is an in-memory device for tests: it records every SetKey call and
// lets the test inject key events.
type Fake struct {
	keys int
	cols int

	mu      sync.Mutex
	visuals map[int]render.KeyVisual
	setLog  []int
	resets  int
	closed  bool

	events chan KeyEvent
}

// NewFake builds a fake with the given key count. Counts of 15 and up get
// five columns, smaller ones three, matching the hardware geometries.
func NewFake(keys int) *Fake {
	cols := 3
	if keys >= 15 {
		cols = 5
	}
	return &Fake{
		keys:    keys,
		cols:    cols,
		visuals: map[int]render.KeyVisual{},
		events:  make(chan KeyEvent, 64),
	}
}

func (f *Fake) KeyCount() int { return f.keys }

func (f *Fake) Layout() (int, int) {
	return (f.keys + f.cols - 1) / f.cols, f.cols
}

func (f *Fake) SetKey(idx int, visual render.KeyVisual) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visuals[idx] = visual
	f.setLog = append(f.setLog, idx)
	return nil
}

func (f *Fake) Events() <-chan KeyEvent { return f.events }

func (f *Fake) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visuals = map[int]render.KeyVisual{}
	f.resets++
	return nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
	return nil
}

// Press injects a press/release pair.
func (f *Fake) Press(key int) {
	f.events <- KeyEvent{Key: key, Pressed: true}
	f.events <- KeyEvent{Key: key, Pressed: false}
}

// HoldRelease injects a press, invokes between while the key is down, then
// releases. Tests use it for long-press paths.
func (f *Fake) HoldRelease(key int, between func()) {
	f.events <- KeyEvent{Key: key, Pressed: true}
	if between != nil {
		between()
	}
	f.events <- KeyEvent{Key: key, Pressed: false}
}

// Visual returns the last visual drawn on a key.
func (f *Fake) Visual(idx int) (render.KeyVisual, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.visuals[idx]
	return v, ok
}

// SetKeyCalls returns the ordered key indexes passed to SetKey.
func (f *Fake) SetKeyCalls() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, len(f.setLog))
	copy(out, f.setLog)
	return out
}

// Resets reports how many times Reset was called.
func (f *Fake) Resets() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resets
}
