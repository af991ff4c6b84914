// Package loader runs the external load script that rebuilds the button
// database from its upstream source.
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

const runTimeout = 2 * time.Minute

// Loader wraps the configured load script. An empty script path makes Run
// a no-op so the daemon can serve a hand-maintained database.
type Loader struct {
	script string
	dbPath string
	logger *slog.Logger
}

func New(script, dbPath string, logger *slog.Logger) *Loader {
	return &Loader{script: script, dbPath: dbPath, logger: logger.With("component", "loader")}
}

// Run removes the database file and invokes the load script with the
// database path, synchronously. Python scripts run under python3,
// everything else executes directly.
func (l *Loader) Run(ctx context.Context) error {
	if l.script == "" {
		l.logger.Info("no load script configured, keeping existing database")
		return nil
	}
	if err := os.Remove(l.dbPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove database: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	var cmd *exec.Cmd
	if strings.HasSuffix(l.script, ".py") {
		cmd = exec.CommandContext(runCtx, "python3", l.script, l.dbPath)
	} else {
		cmd = exec.CommandContext(runCtx, l.script, l.dbPath)
	}
	started := time.Now()
	out, err := cmd.CombinedOutput()
	if len(out) > 0 {
		l.logger.Info("load script output", "output", strings.TrimSpace(string(out)))
	}
	if err != nil {
		return fmt.Errorf("load script %s: %w", l.script, err)
	}
	l.logger.Info("load script finished", "duration", time.Since(started).Round(time.Millisecond))
	return nil
}
