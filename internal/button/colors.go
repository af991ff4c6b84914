package button

import "fmt"

func parseHex(hex string) (r, g, b int, ok bool) {
	if len(hex) != 7 || hex[0] != '#' {
		return 0, 0, 0, false
	}
	var pr, pg, pb int
	if _, err := fmt.Sscanf(hex[1:], "%02x%02x%02x", &pr, &pg, &pb); err != nil {
		return 0, 0, 0, false
	}
	return pr, pg, pb, true
}

// Dim halves each RGB channel. Unparseable input is returned unchanged.
func Dim(hex string) string {
	r, g, b, ok := parseHex(hex)
	if !ok {
		return hex
	}
	return fmt.Sprintf("#%02X%02X%02X", r/2, g/2, b/2)
}

// Highlight brightens a background for the active-toggle state. Colors
// already near white are darkened instead so the change stays visible.
func Highlight(hex string) string {
	r, g, b, ok := parseHex(hex)
	if !ok {
		return baseColors['W']
	}
	hr, hg, hb := clamp(r+70), clamp(g+70), clamp(b+70)
	if hr > 250 && hg > 250 && hb > 250 && hex != baseColors['W'] {
		hr, hg, hb = floor(r-70), floor(g-70), floor(b-70)
	}
	return fmt.Sprintf("#%02X%02X%02X", hr, hg, hb)
}

// TextColor picks a readable foreground ("black" or "white") for a
// background by perceived luminance.
func TextColor(hex string) string {
	r, g, b, ok := parseHex(hex)
	if !ok {
		return "white"
	}
	luminance := 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
	if luminance > 128 {
		return "black"
	}
	return "white"
}

func clamp(v int) int {
	if v > 255 {
		return 255
	}
	return v
}

func floor(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
