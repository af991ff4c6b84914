// Package dispatch holds the contracts to the outside world: the terminal
// automation layer, user prompts, window control, and background process
// management. The driver talks only to these interfaces; the osascript
// implementations live alongside so tests can swap in fakes.
package dispatch

import (
	"context"
	"errors"
)

var (
	// ErrCancelled reports that the user dismissed a prompt or script.
	ErrCancelled = errors.New("user cancelled")
	// ErrTimeout reports that a prompt or script timed out unanswered.
	ErrTimeout = errors.New("prompt timed out")
)

// Mode selects the terminal automation script a request runs through.
type Mode string

const (
	// ModeDefault runs the command in the frontmost terminal session.
	ModeDefault Mode = "default"
	// ModeDeviceActivate activates (or creates) a styled device window and
	// runs the command there.
	ModeDeviceActivate Mode = "device_activate"
	// ModeDeviceActivateNewWindow always opens a fresh styled device window.
	ModeDeviceActivateNewWindow Mode = "device_activate_new_window"
	// ModeStagedKeystroke opens a styled window, types the ssh command,
	// then types the real command into the remote session.
	ModeStagedKeystroke Mode = "staged_keystroke"
	// ModeNewWindow opens a standalone styled window for the command.
	ModeNewWindow Mode = "new_window"
	// ModeToActiveDevice types the command into the active device's window.
	ModeToActiveDevice Mode = "to_active_device"
	// ModeForceLocalNewWindow opens a plain new local window.
	ModeForceLocalNewWindow Mode = "force_local_new_window"
	// ModeSpawnSnapshot opens a styled window, runs the command, and
	// returns "id::::content" for window monitoring.
	ModeSpawnSnapshot Mode = "spawn_snapshot"
	// ModeSpawnSSHSnapshot is the staged ssh variant of ModeSpawnSnapshot.
	ModeSpawnSSHSnapshot Mode = "spawn_ssh_snapshot"
)

// Style carries the window chrome for modes that open or activate windows.
type Style struct {
	Title      string
	Background string
	TextColor  string
}

// Request is one terminal dispatch.
type Request struct {
	Mode    Mode
	Command string
	Style   *Style
	// ActiveLabel names the target window for ModeToActiveDevice.
	ActiveLabel string
	// SSHCommand is the first keystroke for staged modes.
	SSHCommand string
	// StagedCommand is the second keystroke for staged modes.
	StagedCommand string
	// ForceNewWindow makes ModeDeviceActivate skip window reuse.
	ForceNewWindow bool
}

// Result is the stdout of the automation script, trimmed.
type Result struct {
	Output string
}

// Terminal runs commands in the operator's terminal.
type Terminal interface {
	Run(ctx context.Context, req Request) (Result, error)
}

// Prompter asks the operator for input.
type Prompter interface {
	// Ask returns the entered value, ErrCancelled, or ErrTimeout.
	Ask(ctx context.Context, prompt, defaultAnswer string) (string, error)
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// WindowControl reads from and steers terminal windows.
type WindowControl interface {
	// ReadWindow returns a window's text content, or the literal
	// WindowGone marker when the window no longer exists. The
	// implementation handles focus steal and restore internally.
	ReadWindow(ctx context.Context, windowID string) (string, error)
	SendKeystroke(ctx context.Context, windowTitle, keys string) error
	WindowOutput(ctx context.Context, windowTitle string) (string, error)
	RaiseWindow(ctx context.Context, windowID string) error
}

// WindowGone is the marker ReadWindow returns for a closed window.
const WindowGone = "WINDOW_GONE"

// Opener launches URLs in the operator's browser.
type Opener interface {
	OpenURL(ctx context.Context, url string) error
}
