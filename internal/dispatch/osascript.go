package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Runner executes one external process with stdin and captures output.
// Injectable so dispatch and monitor behavior is testable without a shell.
type Runner interface {
	Run(ctx context.Context, stdin, name string, args ...string) (stdout, stderr string, exitCode int, err error)
}

// ExecRunner runs real processes.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, stdin, name string, args ...string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var out, errBuf strings.Builder
	cmd.Stdout = &out
	cmd.Stderr = &errBuf
	err := cmd.Run()
	code := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		code = exitErr.ExitCode()
		err = nil
	}
	return out.String(), errBuf.String(), code, err
}

// Osascript implements Terminal, Prompter, and WindowControl on top of the
// macOS automation bridge: templates are loaded from the scripts directory
// and piped to `osascript -`.
type Osascript struct {
	templates *TemplateSet
	runner    Runner
	timeout   time.Duration
	prompt    time.Duration
	logger    *slog.Logger
}

func NewOsascript(templates *TemplateSet, runner Runner, dispatchTimeout, promptTimeout time.Duration, logger *slog.Logger) *Osascript {
	if dispatchTimeout <= 0 {
		dispatchTimeout = 10 * time.Second
	}
	if promptTimeout <= 0 {
		promptTimeout = time.Minute
	}
	return &Osascript{
		templates: templates,
		runner:    runner,
		timeout:   dispatchTimeout,
		prompt:    promptTimeout,
		logger:    logger.With("component", "dispatch"),
	}
}

var modeTemplates = map[Mode]string{
	ModeDefault:                 "terminal_do_script_default",
	ModeDeviceActivate:          "terminal_activate_found_at_only",
	ModeDeviceActivateNewWindow: "terminal_activate_new_styled_at_n",
	ModeStagedKeystroke:         "terminal_n_for_at_staged_keystroke",
	ModeNewWindow:               "terminal_activate_standalone_n",
	ModeToActiveDevice:          "terminal_command_to_active_at_device",
	ModeForceLocalNewWindow:     "terminal_force_new_window_and_do_script",
	ModeSpawnSnapshot:           "terminal_spawn_and_snapshot",
	ModeSpawnSSHSnapshot:        "terminal_spawn_ssh_and_snapshot",
}

func (o *Osascript) Run(ctx context.Context, req Request) (Result, error) {
	name, ok := modeTemplates[req.Mode]
	if !ok {
		return Result{}, fmt.Errorf("unknown dispatch mode %q", req.Mode)
	}
	subst, err := scriptVars(req)
	if err != nil {
		return Result{}, err
	}
	script, err := o.templates.Load(name, subst)
	if err != nil {
		return Result{}, err
	}

	runCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	stdout, stderr, code, err := o.runner.Run(runCtx, script, "osascript", "-")
	if err != nil {
		return Result{}, fmt.Errorf("run osascript: %w", err)
	}
	if code != 0 {
		lower := strings.ToLower(stderr)
		switch {
		case strings.Contains(lower, "(-128)"):
			return Result{}, ErrCancelled
		case strings.Contains(lower, "(-1712)"):
			return Result{}, ErrTimeout
		default:
			o.logger.Error("automation script failed", "mode", string(req.Mode), "code", code, "stderr", strings.TrimSpace(stderr))
			return Result{}, fmt.Errorf("automation script exited %d", code)
		}
	}
	return Result{Output: strings.TrimSpace(stdout)}, nil
}

func scriptVars(req Request) (map[string]string, error) {
	cmd := strings.TrimSpace(req.Command)
	cmd = strings.ReplaceAll(strings.ReplaceAll(cmd, "“", `"`), "”", `"`)
	escaped := EscapeScriptString(cmd)
	subst := map[string]string{}

	switch req.Mode {
	case ModeStagedKeystroke:
		if req.Style == nil || req.SSHCommand == "" {
			return nil, fmt.Errorf("staged keystroke needs a style and ssh command")
		}
		subst["window_custom_title"] = EscapeScriptString(req.Style.Title)
		subst["aps_bg_color"] = apsColor(req.Style.Background)
		subst["aps_text_color"] = apsTextColor(req.Style.TextColor)
		subst["ssh_command_to_keystroke"] = EscapeScriptString(req.SSHCommand)
		subst["actual_n_command_to_keystroke"] = EscapeScriptString(req.StagedCommand)
	case ModeSpawnSSHSnapshot:
		if req.Style == nil || req.SSHCommand == "" {
			return nil, fmt.Errorf("ssh snapshot needs a style and ssh command")
		}
		subst["window_custom_title"] = EscapeScriptString(req.Style.Title)
		subst["aps_bg_color"] = apsColor(req.Style.Background)
		subst["aps_text_color"] = apsTextColor(req.Style.TextColor)
		subst["ssh_command_to_keystroke"] = EscapeScriptString(req.SSHCommand)
		subst["actual_command_to_keystroke"] = EscapeScriptString(req.StagedCommand)
	case ModeSpawnSnapshot:
		if req.Style == nil {
			return nil, fmt.Errorf("snapshot needs a style")
		}
		subst["window_custom_title"] = EscapeScriptString(req.Style.Title)
		subst["aps_bg_color"] = apsColor(req.Style.Background)
		subst["aps_text_color"] = apsTextColor(req.Style.TextColor)
		subst["initial_command_to_run"] = escaped
	case ModeDeviceActivate:
		if req.Style == nil {
			subst["final_script_payload_for_do_script"] = escaped
			break
		}
		subst["escaped_device_label"] = EscapeScriptString(req.Style.Title)
		subst["aps_bg_color"] = apsColor(req.Style.Background)
		subst["aps_text_color"] = apsTextColor(req.Style.TextColor)
		subst["final_script_payload_for_do_script"] = escaped
		if req.ForceNewWindow {
			subst["force_new_window"] = "true"
		} else {
			subst["force_new_window"] = "false"
		}
	case ModeDeviceActivateNewWindow:
		if req.Style == nil {
			subst["final_script_payload_for_do_script"] = escaped
			break
		}
		subst["escaped_device_label"] = EscapeScriptString(req.Style.Title)
		subst["aps_bg_color"] = apsColor(req.Style.Background)
		subst["aps_text_color"] = apsTextColor(req.Style.TextColor)
		subst["final_script_payload"] = escaped
	case ModeNewWindow:
		subst["final_script_payload_for_do_script"] = escaped
		if req.Style != nil {
			subst["window_custom_title"] = EscapeScriptString(req.Style.Title)
			subst["aps_bg_color"] = apsColor(req.Style.Background)
			subst["aps_text_color"] = apsTextColor(req.Style.TextColor)
		}
	case ModeToActiveDevice:
		subst["safe_target_title"] = EscapeScriptString(req.ActiveLabel)
		subst["final_script_payload_for_do_script"] = escaped
		subst["main_command_raw_for_emptiness_check"] = escaped
		subst["command_to_type_literally_content"] = escaped
	default:
		subst["final_script_payload_for_do_script"] = escaped
	}
	return subst, nil
}

// apsColor converts "#RRGGBB" to the 16-bit-per-channel tuple the
// automation scripts expect.
func apsColor(hex string) string {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 {
		return "{0,0,0}"
	}
	var r, g, b int
	if _, err := fmt.Sscanf(hex, "%02x%02x%02x", &r, &g, &b); err != nil {
		return "{0,0,0}"
	}
	return fmt.Sprintf("{%d,%d,%d}", r*257, g*257, b*257)
}

func apsTextColor(name string) string {
	if name == "black" {
		return "{0,0,0}"
	}
	return "{65535,65535,65535}"
}

// Ask shows an input dialog. Besides exit codes, the dialog script reports
// cancel and timeout as sentinel strings on stdout.
func (o *Osascript) Ask(ctx context.Context, prompt, defaultAnswer string) (string, error) {
	script, err := o.templates.Load("system_events_dialog", map[string]string{
		"prompt_message": EscapeScriptString(prompt),
		"default_answer": EscapeScriptString(defaultAnswer),
	})
	if err != nil {
		return "", err
	}
	runCtx, cancel := context.WithTimeout(ctx, o.prompt)
	defer cancel()
	stdout, stderr, code, err := o.runner.Run(runCtx, script, "osascript", "-")
	if err != nil {
		return "", fmt.Errorf("run dialog: %w", err)
	}
	if code != 0 {
		lower := strings.ToLower(stderr)
		if strings.Contains(lower, "(-128)") {
			return "", ErrCancelled
		}
		if strings.Contains(lower, "(-1712)") {
			return "", ErrTimeout
		}
		return "", fmt.Errorf("dialog exited %d: %s", code, strings.TrimSpace(stderr))
	}
	output := strings.TrimSpace(stdout)
	switch output {
	case "USER_CANCELLED_PROMPT":
		return "", ErrCancelled
	case "USER_TIMEOUT_PROMPT":
		return "", ErrTimeout
	}
	if strings.HasPrefix(output, "APPLETSCRIPT_ERROR:") {
		return "", fmt.Errorf("dialog error: %s", output)
	}
	return output, nil
}

func (o *Osascript) Confirm(ctx context.Context, prompt string) (bool, error) {
	script, err := o.templates.Load("system_events_confirm", map[string]string{
		"prompt_message": EscapeScriptString(prompt),
	})
	if err != nil {
		return false, err
	}
	runCtx, cancel := context.WithTimeout(ctx, o.prompt)
	defer cancel()
	stdout, _, _, err := o.runner.Run(runCtx, script, "osascript", "-")
	if err != nil {
		return false, fmt.Errorf("run confirm: %w", err)
	}
	return strings.TrimSpace(stdout) == "YES_CONFIRMED", nil
}

// ReadWindow steals focus, grabs a window's content by id, and restores the
// previous frontmost application. The caller sees only content or the
// WindowGone marker.
func (o *Osascript) ReadWindow(ctx context.Context, windowID string) (string, error) {
	prevApp, prevWindow := o.activeContext(ctx)
	_ = o.RaiseWindow(ctx, windowID)

	script, err := o.templates.Load("get_window_content", map[string]string{"window_id": windowID})
	if err != nil {
		return "", err
	}
	runCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	stdout, stderr, code, err := o.runner.Run(runCtx, script, "osascript", "-")

	if prevApp != "" {
		o.restoreContext(ctx, prevApp, prevWindow)
	}
	if err != nil {
		return "", fmt.Errorf("read window: %w", err)
	}
	if code != 0 {
		return "", fmt.Errorf("read window exited %d: %s", code, strings.TrimSpace(stderr))
	}
	return strings.TrimSpace(stdout), nil
}

func (o *Osascript) SendKeystroke(ctx context.Context, windowTitle, keys string) error {
	script, err := o.templates.Load("terminal_keystroke", map[string]string{
		"safe_target_title": EscapeScriptString(windowTitle),
		"keystroke_content": keys,
	})
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	if _, _, _, err := o.runner.Run(runCtx, script, "osascript", "-"); err != nil {
		return fmt.Errorf("send keystroke: %w", err)
	}
	o.logger.Info("sent keystroke", "window", windowTitle, "keys", keys)
	return nil
}

func (o *Osascript) WindowOutput(ctx context.Context, windowTitle string) (string, error) {
	script, err := o.templates.Load("terminal_check_text", map[string]string{
		"safe_target_title": EscapeScriptString(windowTitle),
	})
	if err != nil {
		return "", err
	}
	runCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	stdout, stderr, code, err := o.runner.Run(runCtx, script, "osascript", "-")
	if err != nil {
		return "", fmt.Errorf("window output: %w", err)
	}
	if code != 0 {
		return "", fmt.Errorf("window output exited %d: %s", code, strings.TrimSpace(stderr))
	}
	output := strings.TrimSpace(stdout)
	if strings.HasPrefix(output, "ERROR:") || strings.HasPrefix(output, "APPLETSCRIPT_ERROR:") {
		return "", fmt.Errorf("window output error: %s", output)
	}
	return output, nil
}

func (o *Osascript) RaiseWindow(ctx context.Context, windowID string) error {
	if windowID == "" {
		return nil
	}
	script := fmt.Sprintf(`tell application "Terminal" to set index of (first window whose id is %s) to 1`, windowID)
	runCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, _, _, err := o.runner.Run(runCtx, "", "osascript", "-e", script); err != nil {
		return fmt.Errorf("raise window: %w", err)
	}
	return nil
}

func (o *Osascript) activeContext(ctx context.Context) (app, window string) {
	runCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	stdout, _, code, err := o.runner.Run(runCtx, "",
		"osascript", "-e", `tell application "System Events" to name of first application process whose frontmost is true`)
	if err != nil || code != 0 {
		return "", ""
	}
	app = strings.TrimSpace(stdout)
	if app != "Terminal" {
		return app, ""
	}
	script, err := o.templates.Load("get_active_terminal_window", nil)
	if err != nil {
		return app, ""
	}
	winCtx, winCancel := context.WithTimeout(ctx, 2*time.Second)
	defer winCancel()
	winOut, _, winCode, winErr := o.runner.Run(winCtx, script, "osascript", "-")
	if winErr != nil || winCode != 0 {
		return app, ""
	}
	name := strings.TrimSpace(winOut)
	if name == "" || name == "NO_WINDOW" {
		return app, ""
	}
	return app, name
}

func (o *Osascript) restoreContext(ctx context.Context, app, window string) {
	runCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	script := fmt.Sprintf(`tell application "%s" to activate`, EscapeScriptString(app))
	_, _, _, _ = o.runner.Run(runCtx, "", "osascript", "-e", script)
	if app == "Terminal" && window != "" {
		if activate, err := o.templates.Load("activate_terminal_window", map[string]string{"window_name": window}); err == nil {
			actCtx, actCancel := context.WithTimeout(ctx, 2*time.Second)
			defer actCancel()
			_, _, _, _ = o.runner.Run(actCtx, activate, "osascript", "-")
		}
	}
}

// BrowserOpener launches URLs with the platform opener.
type BrowserOpener struct {
	runner Runner
}

func NewBrowserOpener(runner Runner) *BrowserOpener {
	return &BrowserOpener{runner: runner}
}

func (b *BrowserOpener) OpenURL(ctx context.Context, url string) error {
	runCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, stderr, code, err := b.runner.Run(runCtx, "", "open", url)
	if err != nil {
		return fmt.Errorf("open url: %w", err)
	}
	if code != 0 {
		return fmt.Errorf("open url exited %d: %s", code, strings.TrimSpace(stderr))
	}
	return nil
}
