package render

import (
	"testing"

	"github.com/deckpilot/deckd/internal/button"
	"github.com/deckpilot/deckd/internal/monitor"
)

func baseView(slot int, flags string) View {
	return View{
		Slot:     slot,
		Load:     0,
		PageUp:   5,
		PageDown: 10,
		HasItem:  true,
		Label:    "Play",
		Command:  "play {{SCENE:intro}}",
		Desc:     button.ParseFlags(flags),
	}
}

func TestRecordErrorFlashes(t *testing.T) {
	v := baseView(3, "*")
	v.RecordPhase = "ERROR"
	v.Flash = true
	got := Decide(v)
	if got.Background != "#FF0000" {
		t.Fatalf("error flash background %q", got.Background)
	}
	if got.Status != "ERROR" {
		t.Fatalf("status %q", got.Status)
	}

	v.Flash = false
	got = Decide(v)
	if got.Background != "#7F0000" {
		t.Fatalf("error dim background %q", got.Background)
	}
}

func TestRecordTakeFooter(t *testing.T) {
	v := baseView(3, "*")
	v.TakeValue = "12"
	if got := Decide(v); got.Extra != "TAKE 012" {
		t.Fatalf("take footer %q", got.Extra)
	}

	v.TakeValue = ""
	if got := Decide(v); got.Extra != "TAKE 001" {
		t.Fatalf("default take footer %q", got.Extra)
	}

	v.TakeValue = "ad-lib"
	if got := Decide(v); got.Extra != "TAKE ad-" {
		t.Fatalf("non-numeric take footer %q", got.Extra)
	}
}

func TestRecordingPulse(t *testing.T) {
	v := baseView(3, "*")
	v.RecordPhase = "RECORDING"
	v.Flash = true
	if got := Decide(v); !got.Ellipse {
		t.Fatal("expected recording pulse on flash tick")
	}
	v.Flash = false
	if got := Decide(v); got.Ellipse {
		t.Fatal("pulse should clear on off tick")
	}
}

func TestWindowMonitorStatuses(t *testing.T) {
	cases := []struct {
		status     monitor.Status
		wantStatus string
		wantBG     string
	}{
		{monitor.StatusMonitoring, "MONITOR...", button.DefaultColor},
		{monitor.StatusWindowGone, "WIN GONE", "#FF0000"},
		{monitor.StatusError, "OSA ERROR", "#FF0000"},
	}
	for _, tc := range cases {
		v := baseView(2, "?")
		v.MonitorStatus = tc.status
		v.HasMonitorStatus = true
		got := Decide(v)
		if got.Status != tc.wantStatus {
			t.Fatalf("%s: status %q, want %q", tc.status, got.Status, tc.wantStatus)
		}
		if got.Background != tc.wantBG {
			t.Fatalf("%s: background %q, want %q", tc.status, got.Background, tc.wantBG)
		}
	}
}

func TestWindowMonitorIdleDimmed(t *testing.T) {
	v := baseView(2, "?G")
	got := Decide(v)
	if got.Status != "OSA Ready" {
		t.Fatalf("idle status %q", got.Status)
	}
	if got.Background != button.Dim("#00FF00") {
		t.Fatalf("idle background %q", got.Background)
	}
}

func TestWindowMonitorFoundFlash(t *testing.T) {
	v := baseView(2, "?G")
	v.MonitorStatus = monitor.StatusFound
	v.HasMonitorStatus = true
	v.Flash = true
	if got := Decide(v); got.Background != "#00FF00" {
		t.Fatalf("found flash background %q", got.Background)
	}
	v.Flash = false
	if got := Decide(v); got.Background != button.Dim("#00FF00") {
		t.Fatalf("found dim background %q", got.Background)
	}
}

func TestDeviceHighlightAndDim(t *testing.T) {
	v := baseView(4, "@B")
	v.ActiveDevice = true
	if got := Decide(v); got.Background != button.Highlight("#0066CC") {
		t.Fatalf("active background %q", got.Background)
	}
	v.ActiveDevice = false
	if got := Decide(v); got.Background != button.Dim("#0066CC") {
		t.Fatalf("inactive background %q", got.Background)
	}
}

func TestDeviceConnectivityStatuses(t *testing.T) {
	v := baseView(4, "~@B")
	v.HasMonitorStatus = true

	v.MonitorStatus = monitor.StatusConnected
	v.Flash = true
	got := Decide(v)
	if got.Status != "CONNECTED" || !got.FlashStatus {
		t.Fatalf("connected visual %+v", got)
	}

	v.MonitorStatus = monitor.StatusBroken
	got = Decide(v)
	if got.Status != "BROKEN" || got.Background != "#FF0000" {
		t.Fatalf("broken flash visual %+v", got)
	}
	v.Flash = false
	if got = Decide(v); got.Background != button.Dim("#0066CC") {
		t.Fatalf("broken dim background %q", got.Background)
	}

	v.MonitorStatus = monitor.StatusInitializing
	if got = Decide(v); got.Status != "INIT..." {
		t.Fatalf("initializing status %q", got.Status)
	}

	v.MonitorStatus = monitor.StatusConfigError
	if got = Decide(v); got.Status != "ERROR_CONF" {
		t.Fatalf("truncated status %q", got.Status)
	}
}

func TestBackgroundRunning(t *testing.T) {
	v := baseView(7, "&")
	v.BackgroundRunning = true
	v.Flash = true
	got := Decide(v)
	if got.Background != "#0066CC" || got.Status != "RUNNING..." {
		t.Fatalf("running visual %+v", got)
	}
	v.Flash = false
	if got = Decide(v); got.Background != button.Dim("#0066CC") {
		t.Fatalf("running dim background %q", got.Background)
	}

	v.BackgroundRunning = false
	if got = Decide(v); got.Status != "" {
		t.Fatalf("idle background button should have no status, got %q", got.Status)
	}
}

func TestVarFooter(t *testing.T) {
	v := baseView(1, "V")
	v.Command = "set {{SCENE:intro}} at {{LEVEL:3}}"
	v.SessionVars = map[string]string{"SCENE": "outro", "LEVEL": "5"}
	if got := Decide(v); got.VarsText != "outro 5" {
		t.Fatalf("vars footer %q", got.VarsText)
	}
}

func TestNumericModeKeys(t *testing.T) {
	n := &NumericView{OwnerSlot: 6, OwnerColor: "#00FF00", Value: "2.5", Step: 0.5}

	owner := baseView(6, "#G")
	owner.Numeric = n
	got := Decide(owner)
	if got.Background != "#00FF00" || got.VarsText != "2.5" {
		t.Fatalf("owner visual %+v", got)
	}
	owner.Flash = true
	if got = Decide(owner); got.Background != button.Highlight("#00FF00") {
		t.Fatalf("owner flash background %q", got.Background)
	}

	up := baseView(5, "")
	up.HasItem = false
	up.Numeric = n
	got = Decide(up)
	if got.VarsText != "+0.5" {
		t.Fatalf("up step %q", got.VarsText)
	}
	if got.Background != button.Dim(button.Highlight("#00FF00")) {
		t.Fatalf("up background %q", got.Background)
	}

	down := baseView(10, "")
	down.HasItem = false
	down.Numeric = n
	got = Decide(down)
	if got.Status != "-0.5" {
		t.Fatalf("down step %q", got.Status)
	}

	other := baseView(2, "G")
	other.Numeric = n
	if got = Decide(other); got.Background != "#00FF00" {
		t.Fatalf("uninvolved key restyled: %q", got.Background)
	}
}

func TestFixedKeyFontsAndConfigHint(t *testing.T) {
	load := baseView(0, "")
	load.HasItem = false
	if got := Decide(load); got.FontSize != 22 {
		t.Fatalf("load font %d", got.FontSize)
	}

	up := baseView(5, "")
	up.HasItem = false
	if got := Decide(up); got.FontSize != 24 {
		t.Fatalf("page-up font %d", got.FontSize)
	}

	down := baseView(10, "")
	down.HasItem = false
	got := Decide(down)
	if got.FontSize != 24 || got.Extra != "CONFIG" {
		t.Fatalf("page-down visual %+v", got)
	}
}

func TestTextColorTracksBackground(t *testing.T) {
	v := baseView(1, "Y")
	if got := Decide(v); got.TextColor != "black" {
		t.Fatalf("yellow key text %q", got.TextColor)
	}
	v = baseView(1, "B")
	if got := Decide(v); got.TextColor != "white" {
		t.Fatalf("blue key text %q", got.TextColor)
	}
}

func TestFormatHelpers(t *testing.T) {
	if got := FormatStep(5); got != "5" {
		t.Fatalf("FormatStep(5) = %q", got)
	}
	if got := FormatStep(0.5); got != "0.5" {
		t.Fatalf("FormatStep(0.5) = %q", got)
	}
	if got := FormatValue(3); got != "3" {
		t.Fatalf("FormatValue(3) = %q", got)
	}
	if got := FormatValue(2.25); got != "2.25" {
		t.Fatalf("FormatValue(2.25) = %q", got)
	}
}
