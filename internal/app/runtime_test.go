package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/deckpilot/deckd/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		HTTPAddr:       "127.0.0.1:0",
		DataDir:        dir,
		DBPath:         filepath.Join(dir, "streamdeck.db"),
		ScriptsDir:     filepath.Join(dir, "scripts"),
		FakeDevice:     true,
		FakeDeviceKeys: 15,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRuntimeStartsAndStops(t *testing.T) {
	runtime, err := New(testConfig(t), testLogger())
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	defer runtime.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runtime.Run(ctx) }()

	// Let the driver finish its initial load before shutting down.
	time.Sleep(200 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runtime did not stop")
	}
}

func TestRuntimeRejectsBadReloadCron(t *testing.T) {
	cfg := testConfig(t)
	cfg.ReloadCron = "not a cron line"
	if _, err := New(cfg, testLogger()); err == nil {
		t.Fatal("bad cron expression must fail construction")
	}
}
