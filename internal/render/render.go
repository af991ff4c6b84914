// Package render decides what each key should display. It is pure: the
// driver feeds it a per-key view of the current state and hands the
// resulting visual to the device, which owns pixel encoding.
package render

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/deckpilot/deckd/internal/button"
	"github.com/deckpilot/deckd/internal/monitor"
	"github.com/deckpilot/deckd/internal/vars"
)

const (
	arrowFontSize = 24
	loadFontSize  = 22
)

// KeyVisual is everything the device needs to draw one key.
type KeyVisual struct {
	Label      string
	Status     string
	VarsText   string
	Extra      string
	Background string
	TextColor  string
	FontSize   int
	// FlashStatus hides the status line on alternating ticks.
	FlashStatus bool
	// Ellipse draws the recording pulse disc.
	Ellipse bool
}

// NumericView describes the active numeric-adjust mode for rendering.
type NumericView struct {
	OwnerSlot  int
	OwnerColor string
	Value      string
	Step       float64
}

// View is one key's slice of driver state.
type View struct {
	Slot                   int
	Load, PageUp, PageDown int
	HasItem                bool
	Label, Command         string
	Desc                   button.Descriptor
	RecordPhase            string // "", "RECORDING", "ERROR"
	TakeValue              string
	MonitorStatus          monitor.Status
	HasMonitorStatus       bool
	ActiveDevice           bool
	BackgroundRunning      bool
	Numeric                *NumericView
	SessionVars            map[string]string
	Flash                  bool
}

const (
	red  = "#FF0000"
	blue = "#0066CC"
)

// Decide computes the visual for one key.
func Decide(v View) KeyVisual {
	out := KeyVisual{
		Label:      v.Label,
		Background: v.Desc.Color,
		FontSize:   v.Desc.FontSize,
	}
	if v.Slot == v.PageDown {
		out.Extra = "CONFIG"
	}

	if v.HasItem && v.Desc.Record {
		return decideRecord(v, out)
	}

	override := ""
	flashStatus := false

	switch {
	case v.HasItem && v.Desc.OSAMonitor:
		switch v.MonitorStatus {
		case monitor.StatusMonitoring:
			out.Status = "MONITOR..."
			flashStatus = true
		case monitor.StatusFound:
			out.Status = "FOUND"
			if !v.Flash {
				out.Background = button.Dim(out.Background)
			}
		case monitor.StatusWindowGone:
			out.Status = "WIN GONE"
			out.Background = red
		case monitor.StatusError:
			out.Status = "OSA ERROR"
			out.Background = red
		default:
			out.Status = "OSA Ready"
			out.Background = button.Dim(out.Background)
		}
		override = button.TextColor(out.Background)

	case v.HasItem && v.Desc.Device:
		if v.ActiveDevice {
			out.Background = button.Highlight(v.Desc.Color)
		} else {
			out.Background = button.Dim(v.Desc.Color)
		}
		override = button.TextColor(out.Background)
		if v.Desc.MonitorProcess && v.HasMonitorStatus {
			switch v.MonitorStatus {
			case monitor.StatusConnected:
				out.Status = "CONNECTED"
				flashStatus = true
			case monitor.StatusBroken:
				out.Status = "BROKEN"
				flashStatus = true
				if v.Flash {
					out.Background = red
				} else {
					out.Background = button.Dim(v.Desc.Color)
				}
				override = button.TextColor(out.Background)
			case monitor.StatusInitializing:
				out.Status = "INIT..."
			default:
				status := strings.ToUpper(string(v.MonitorStatus))
				if len(status) > 10 {
					status = status[:10]
				}
				out.Status = status
			}
		}

	case v.HasItem && v.Desc.Background && v.BackgroundRunning:
		if v.Flash {
			out.Background = blue
		} else {
			out.Background = button.Dim(blue)
		}
		out.Status = "RUNNING..."
		override = button.TextColor(out.Background)
	}

	if v.HasItem && v.Desc.VarEdit {
		if text := varsFooter(v.Command, v.SessionVars); text != "" {
			out.VarsText = text
		}
	}

	if v.Numeric != nil {
		n := v.Numeric
		if v.Slot == n.OwnerSlot || v.Slot == v.PageUp || v.Slot == v.PageDown {
			bright := button.Highlight(n.OwnerColor)
			switch {
			case v.Flash:
				out.Background = bright
			case v.Slot == n.OwnerSlot:
				out.Background = n.OwnerColor
			default:
				out.Background = button.Dim(bright)
			}
			override = button.TextColor(out.Background)
			switch v.Slot {
			case n.OwnerSlot:
				out.VarsText = n.Value
			case v.PageUp:
				out.VarsText = "+" + FormatStep(n.Step)
				out.Status = ""
			case v.PageDown:
				out.Status = "-" + FormatStep(n.Step)
				out.VarsText = ""
			}
		}
	}

	switch v.Slot {
	case v.Load:
		out.FontSize = loadFontSize
	case v.PageUp, v.PageDown:
		out.FontSize = arrowFontSize
	}

	if override != "" {
		out.TextColor = override
	} else {
		out.TextColor = button.TextColor(out.Background)
	}
	out.FlashStatus = flashStatus && v.Flash
	return out
}

func decideRecord(v View, out KeyVisual) KeyVisual {
	switch v.RecordPhase {
	case "ERROR":
		if v.Flash {
			out.Background = red
		} else {
			out.Background = button.Dim(red)
		}
		out.Status = "ERROR"
	case "RECORDING":
		if v.Flash {
			out.Ellipse = true
		}
	}
	out.TextColor = button.TextColor(out.Background)
	if v.RecordPhase == "RECORDING" && v.Flash {
		out.TextColor = button.TextColor(red)
	}
	out.Extra = "TAKE " + takeDisplay(v.TakeValue)
	return out
}

func takeDisplay(value string) string {
	if value == "" {
		value = "1"
	}
	if _, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		return vars.PadTake(value)
	}
	if len(value) > 3 {
		return value[:3]
	}
	return value
}

var placeholderPattern = regexp.MustCompile(`\{\{([^:}]+)(:([^}]*))?\}\}`)

func varsFooter(command string, sessionVars map[string]string) string {
	var values []string
	for _, match := range placeholderPattern.FindAllStringSubmatch(command, -1) {
		name := strings.TrimSpace(match[1])
		if value, ok := sessionVars[name]; ok {
			values = append(values, value)
		}
	}
	return strings.Join(values, " ")
}

// FormatStep renders a numeric step without trailing float noise.
func FormatStep(step float64) string {
	return strconv.FormatFloat(step, 'f', -1, 64)
}

// FormatValue renders a numeric-adjust value: integers without a decimal
// point, everything else with its natural precision.
func FormatValue(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
