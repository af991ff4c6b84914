package button

import (
	"regexp"
	"strconv"
	"strings"
)

const DefaultFontSize = 13

// DefaultColor is the background used when no color letter is present.
const DefaultColor = "#000000"

// Descriptor is the decoded capability and style set of a button's flag
// string. Decoding is pure and total: any input, including empty or
// malformed strings, yields a valid descriptor.
type Descriptor struct {
	NewWindow      bool
	Device         bool
	Sticky         bool
	ForceLocal     bool
	MobileSSH      bool
	OSAMonitor     bool
	Record         bool
	Background     bool
	Confirm        bool
	MonitorProcess bool
	Numeric        bool
	VarEdit        bool

	Color    string
	FontSize int
}

// baseColors maps a flag letter to its background hex color. Letters used
// by capabilities are excluded from color scanning.
var baseColors = map[byte]string{
	'R': "#FF0000",
	'G': "#00FF00",
	'B': "#0066CC",
	'O': "#FF9900",
	'Y': "#FFFF00",
	'P': "#800080",
	'S': "#C0C0C0",
	'F': "#FF00FF",
	'W': "#FFFFFF",
	'L': "#FDF6E3",
}

var reservedLetters = map[byte]bool{
	'N': true, 'T': true, '@': true, 'D': true, '#': true, 'V': true,
	'~': true, 'K': true, 'M': true, '?': true, '*': true, '&': true, '>': true,
}

var fontSizePattern = regexp.MustCompile(`(\d+)`)

// ParseFlags decodes a compact flag string. Input is case-insensitive and
// the spreadsheet sentinel "missing value" is treated as empty.
func ParseFlags(flags string) Descriptor {
	f := strings.ToUpper(strings.TrimSpace(flags))
	d := Descriptor{Color: DefaultColor, FontSize: DefaultFontSize}
	if f == "" || f == "MISSING VALUE" {
		return d
	}

	d.NewWindow = strings.Contains(f, "N")
	d.Device = strings.Contains(f, "@")
	d.Sticky = strings.Contains(f, "T")
	d.ForceLocal = strings.Contains(f, "K")
	d.MobileSSH = strings.Contains(f, "M")
	d.OSAMonitor = strings.Contains(f, "?")
	d.Record = strings.Contains(f, "*")
	d.Background = strings.Contains(f, "&")
	d.Confirm = strings.Contains(f, ">")
	d.MonitorProcess = strings.Contains(f, "~")
	d.Numeric = strings.Contains(f, "#")
	d.VarEdit = strings.Contains(f, "V")

	// Recording sessions always go through the mobile user.
	if d.Record {
		d.MobileSSH = true
	}

	if m := fontSizePattern.FindString(f); m != "" {
		if size, err := strconv.Atoi(m); err == nil {
			d.FontSize = size
		}
	}

	colored := false
	for i := 0; i < len(f); i++ {
		c := f[i]
		if reservedLetters[c] {
			continue
		}
		if hex, ok := baseColors[c]; ok {
			d.Color = hex
			colored = true
			break
		}
	}
	if strings.Contains(f, "D") && colored {
		d.Color = Dim(d.Color)
	}
	return d
}
