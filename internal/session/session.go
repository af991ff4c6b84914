// Package session owns the mutable state a running deck accumulates:
// variables, the active device, record and numeric modes, paging. All
// structural mutation happens on the driver goroutine; the mutex exists so
// the HTTP API and render path can take consistent snapshots.
package session

import (
	"sync"

	"github.com/deckpilot/deckd/internal/vars"
)

// RecordPhase is a record button's lifecycle position.
type RecordPhase string

const (
	RecordOff       RecordPhase = "OFF"
	RecordRecording RecordPhase = "RECORDING"
	RecordError     RecordPhase = "ERROR"
)

// RecordState tracks one record button: its phase and the window the
// recording was dispatched into.
type RecordState struct {
	Phase       RecordPhase
	WindowTitle string
}

// NumericAdjust is the transient numeric-edit mode entered by long-pressing
// a numeric button. OwnerKey is the global button index that owns the mode.
type NumericAdjust struct {
	Name       string
	Step       float64
	Template   string
	OwnerKey   int
	ForceLocal bool
	MobileSSH  bool
	Background bool
}

// Session is the aggregate. Zero value is not usable; call New.
type Session struct {
	mu sync.Mutex

	vars         vars.Map
	activeDevice *int
	numeric      *NumericAdjust
	recordStates map[int]RecordState
	reinit       map[int]bool
	stepMemory   map[int]string
	pageIndex    int
	lastScene    string
}

func New() *Session {
	return &Session{
		vars:         vars.Map{},
		recordStates: map[int]RecordState{},
		reinit:       map[int]bool{},
		stepMemory:   map[int]string{},
	}
}

// Reseed rebuilds the variable table from the button commands and drops all
// transient state. Step memory and page position survive a reload so the
// operator does not lose their place.
func (s *Session) Reseed(commands []string, recordPresent bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vars.Seed(commands, recordPresent, s.vars)
	s.activeDevice = nil
	s.numeric = nil
	s.recordStates = map[int]RecordState{}
	s.reinit = map[int]bool{}
	s.lastScene = s.vars["SCENE"]
}

// Var returns one variable's value.
func (s *Session) Var(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vars[name]
	return v, ok
}

// SetVar stores one variable.
func (s *Session) SetVar(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars[name] = value
}

// MergeVars applies a batch of updates (HTTP API path).
func (s *Session) MergeVars(updates map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range updates {
		s.vars[k] = v
	}
}

// VarsSnapshot copies the variable table.
func (s *Session) VarsSnapshot() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.vars))
	for k, v := range s.vars {
		out[k] = v
	}
	return out
}

// Resolve expands a command template against the current variables. New
// placeholders discovered during resolution are seeded into the table.
func (s *Session) Resolve(tpl string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return vars.Resolve(tpl, s.vars)
}

// ActiveDevice returns the active device's button index, if any.
func (s *Session) ActiveDevice() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeDevice == nil {
		return 0, false
	}
	return *s.activeDevice, true
}

func (s *Session) SetActiveDevice(idx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := idx
	s.activeDevice = &v
}

func (s *Session) ClearActiveDevice() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeDevice = nil
}

// Numeric returns the current numeric-adjust mode, if active.
func (s *Session) Numeric() (NumericAdjust, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.numeric == nil {
		return NumericAdjust{}, false
	}
	return *s.numeric, true
}

func (s *Session) EnterNumeric(n NumericAdjust) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := n
	s.numeric = &v
}

func (s *Session) ExitNumeric() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.numeric = nil
}

// RecordState returns a record button's state; absent entries read as OFF.
func (s *Session) RecordState(idx int) RecordState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.recordStates[idx]; ok {
		return st
	}
	return RecordState{Phase: RecordOff}
}

func (s *Session) SetRecordState(idx int, st RecordState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.Phase == RecordOff {
		delete(s.recordStates, idx)
		return
	}
	s.recordStates[idx] = st
}

// RecordStates copies the full record table.
func (s *Session) RecordStates() map[int]RecordState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]RecordState, len(s.recordStates))
	for k, v := range s.recordStates {
		out[k] = v
	}
	return out
}

// MarkReinit flags a device button whose command changed while inactive so
// its next activation opens a fresh window.
func (s *Session) MarkReinit(idx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reinit[idx] = true
}

// TakeReinit consumes the reinit flag for a button.
func (s *Session) TakeReinit(idx int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.reinit[idx] {
		return false
	}
	delete(s.reinit, idx)
	return true
}

// StepMemory returns the remembered numeric step for a key, default "1".
func (s *Session) StepMemory(idx int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.stepMemory[idx]; ok {
		return v
	}
	return "1"
}

func (s *Session) SetStepMemory(idx int, step string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stepMemory[idx] = step
}

func (s *Session) PageIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pageIndex
}

func (s *Session) SetPageIndex(idx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageIndex = idx
}

// SceneChanged reports whether SCENE moved since the last take prompt and
// records the current value.
func (s *Session) SceneChanged() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.vars["SCENE"]
	changed := current != s.lastScene
	s.lastScene = current
	return changed
}
