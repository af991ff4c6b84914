// Package vars holds the session variable map and the command template
// resolver. Templates use {{NAME}} or {{NAME:default}} placeholders.
package vars

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Map is the session variable table. Ownership and locking live with the
// session aggregate; this package only reads and writes a plain map.
type Map map[string]string

var placeholderPattern = regexp.MustCompile(`\{\{([^:}]+)(:([^}]*))?\}\}`)

var takePattern = regexp.MustCompile(`(?i)\{\{TAKE(:[^}]*)?\}\}`)

// Seed rebuilds the variable table from a set of command templates.
// The first default seen for a name wins; names without a default get the
// empty string. TAKE defaults to "1", and is seeded even without a
// placeholder when any command is flagged as a recording button.
func Seed(commands []string, recordPresent bool, m Map) {
	for k := range m {
		delete(m, k)
	}
	for _, cmd := range commands {
		if cmd == "" {
			continue
		}
		for _, match := range placeholderPattern.FindAllStringSubmatch(cmd, -1) {
			name := strings.TrimSpace(match[1])
			def := match[3]
			if _, ok := m[name]; ok {
				continue
			}
			if strings.EqualFold(name, "TAKE") {
				if def == "" {
					def = "1"
				}
				m["TAKE"] = def
			} else {
				m[name] = def
			}
		}
	}
	if recordPresent {
		if _, ok := m["TAKE"]; !ok {
			m["TAKE"] = "1"
		}
	}
}

// Resolve substitutes every placeholder in tpl. TAKE is handled first and
// zero-padded to three digits when its value is numeric. Known variables are
// replaced by exact name; any placeholder still left is seeded into m from
// its inline default and then substituted. The result carries a cosmetic
// unescape of \" so quoted arguments survive the spreadsheet round trip.
// Resolving an already-resolved string is a no-op.
func Resolve(tpl string, m Map) string {
	out := tpl
	if take, ok := m["TAKE"]; ok {
		out = takePattern.ReplaceAllString(out, PadTake(take))
	}
	for name, value := range m {
		if strings.EqualFold(name, "TAKE") {
			continue
		}
		p := regexp.MustCompile(`\{\{` + regexp.QuoteMeta(name) + `(:[^}]*)?\}\}`)
		out = p.ReplaceAllString(out, value)
	}
	for _, match := range placeholderPattern.FindAllStringSubmatch(out, -1) {
		full := match[0]
		name := strings.TrimSpace(match[1])
		def := match[3]
		if strings.EqualFold(name, "TAKE") {
			// Only reachable when TAKE was never seeded; seed it the way
			// Seed does and pad like the first pass.
			if _, ok := m["TAKE"]; !ok {
				if def == "" {
					def = "1"
				}
				m["TAKE"] = def
			}
			out = strings.ReplaceAll(out, full, PadTake(m["TAKE"]))
			continue
		}
		if _, ok := m[name]; !ok {
			m[name] = def
			out = strings.ReplaceAll(out, full, def)
		}
	}
	return strings.ReplaceAll(out, `\"`, `"`)
}

// PadTake formats a take counter for substitution: numeric values are
// zero-padded to three digits, anything else passes through raw.
func PadTake(value string) string {
	if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		return fmt.Sprintf("%03d", n)
	}
	return value
}

// Names returns the placeholder names of tpl in template order, without
// duplicates.
func Names(tpl string) []string {
	var names []string
	seen := map[string]bool{}
	for _, match := range placeholderPattern.FindAllStringSubmatch(tpl, -1) {
		name := strings.TrimSpace(match[1])
		if seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}
