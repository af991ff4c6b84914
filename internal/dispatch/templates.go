package dispatch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// TemplateSet loads automation script templates from the scripts directory.
// Lookups try the exact name, then the .applescript and .txt variants.
// Contents are cached until Invalidate (the scripts watcher calls it).
type TemplateSet struct {
	dir string

	mu    sync.Mutex
	cache map[string]string
}

func NewTemplateSet(dir string) *TemplateSet {
	return &TemplateSet{dir: dir, cache: map[string]string{}}
}

// Load reads a template and substitutes {{key}} placeholders.
func (t *TemplateSet) Load(name string, subst map[string]string) (string, error) {
	content, err := t.read(name)
	if err != nil {
		return "", err
	}
	for key, value := range subst {
		content = strings.ReplaceAll(content, "{{"+key+"}}", value)
	}
	return content, nil
}

// Invalidate drops the cache so edited scripts take effect.
func (t *TemplateSet) Invalidate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache = map[string]string{}
}

func (t *TemplateSet) read(name string) (string, error) {
	t.mu.Lock()
	if cached, ok := t.cache[name]; ok {
		t.mu.Unlock()
		return cached, nil
	}
	t.mu.Unlock()

	for _, candidate := range candidateNames(name) {
		data, err := os.ReadFile(filepath.Join(t.dir, candidate))
		if err != nil {
			continue
		}
		content := string(data)
		t.mu.Lock()
		t.cache[name] = content
		t.mu.Unlock()
		return content, nil
	}
	return "", fmt.Errorf("script template %q not found in %s", name, t.dir)
}

func candidateNames(name string) []string {
	base := strings.TrimSuffix(strings.TrimSuffix(name, ".applescript"), ".txt")
	candidates := []string{}
	if strings.Contains(filepath.Base(name), ".") {
		candidates = append(candidates, name)
	}
	candidates = append(candidates, base+".applescript", base+".txt")
	seen := map[string]bool{}
	out := candidates[:0]
	for _, c := range candidates {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// EscapeScriptString makes a value safe to embed in a quoted automation
// script literal. Curly quotes are normalized first; they arrive from
// spreadsheet autocorrect.
func EscapeScriptString(s string) string {
	s = strings.ReplaceAll(s, "“", `"`)
	s = strings.ReplaceAll(s, "”", `"`)
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}
