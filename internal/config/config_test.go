package config

import (
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("DECKD_DATA_DIR", "")
	t.Setenv("DECKD_DB_PATH", "")
	t.Setenv("DECKD_SCRIPTS_DIR", "")
	t.Setenv("DECKD_HTTP_ADDR", "")
	t.Setenv("DECKD_POLL_INTERVAL", "")
	t.Setenv("DECKD_LONG_PRESS_THRESHOLD", "")
	t.Setenv("DECKD_SSH_MONITOR_TIMEOUT", "")
	t.Setenv("DECKD_RELOAD_CRON", "")
	t.Setenv("DECKD_DEVICE_VENDOR_ID", "")
	t.Setenv("DECKD_FAKE_DEVICE", "")

	cfg := FromEnv()
	if cfg.HTTPAddr != "127.0.0.1:8765" {
		t.Fatalf("unexpected default http addr: %s", cfg.HTTPAddr)
	}
	if cfg.PollInterval != 300*time.Millisecond {
		t.Fatalf("unexpected default poll interval: %s", cfg.PollInterval)
	}
	if cfg.LongPressThreshold != time.Second {
		t.Fatalf("unexpected default long press threshold: %s", cfg.LongPressThreshold)
	}
	if cfg.SSHMonitorTimeout != 8*time.Second {
		t.Fatalf("unexpected default ssh monitor timeout: %s", cfg.SSHMonitorTimeout)
	}
	if cfg.WindowInterval != 60*time.Second {
		t.Fatalf("unexpected default window interval: %s", cfg.WindowInterval)
	}
	if cfg.ReloadCron != "" {
		t.Fatalf("expected empty default reload cron, got %s", cfg.ReloadCron)
	}
	if cfg.DeviceVendorID != 0x0fd9 {
		t.Fatalf("unexpected default vendor id: %#x", cfg.DeviceVendorID)
	}
	if cfg.FakeDevice {
		t.Fatal("expected fake device off by default")
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("DECKD_DATA_DIR", "/var/deckd")
	t.Setenv("DECKD_DB_PATH", "/var/deckd/deck.sqlite")
	t.Setenv("DECKD_SCRIPTS_DIR", "/opt/scripts")
	t.Setenv("DECKD_HTTP_ADDR", ":9900")
	t.Setenv("DECKD_POLL_INTERVAL", "150ms")
	t.Setenv("DECKD_LONG_PRESS_THRESHOLD", "2s")
	t.Setenv("DECKD_RELOAD_CRON", "0 6 * * *")
	t.Setenv("DECKD_FAKE_DEVICE", "true")
	t.Setenv("DECKD_FAKE_DEVICE_KEYS", "6")

	cfg := FromEnv()
	if cfg.DataDir != "/var/deckd" {
		t.Fatalf("expected overridden data dir, got %s", cfg.DataDir)
	}
	if cfg.DBPath != "/var/deckd/deck.sqlite" {
		t.Fatalf("expected overridden db path, got %s", cfg.DBPath)
	}
	if cfg.ScriptsDir != "/opt/scripts" {
		t.Fatalf("expected overridden scripts dir, got %s", cfg.ScriptsDir)
	}
	if cfg.HTTPAddr != ":9900" {
		t.Fatalf("expected overridden http addr, got %s", cfg.HTTPAddr)
	}
	if cfg.PollInterval != 150*time.Millisecond {
		t.Fatalf("expected overridden poll interval, got %s", cfg.PollInterval)
	}
	if cfg.LongPressThreshold != 2*time.Second {
		t.Fatalf("expected overridden long press threshold, got %s", cfg.LongPressThreshold)
	}
	if cfg.ReloadCron != "0 6 * * *" {
		t.Fatalf("expected overridden reload cron, got %s", cfg.ReloadCron)
	}
	if !cfg.FakeDevice {
		t.Fatal("expected fake device on")
	}
	if cfg.FakeDeviceKeys != 6 {
		t.Fatalf("expected 6 fake keys, got %d", cfg.FakeDeviceKeys)
	}
}

func TestFromEnvRejectsMalformedDurations(t *testing.T) {
	t.Setenv("DECKD_POLL_INTERVAL", "soon")
	t.Setenv("DECKD_LONG_PRESS_THRESHOLD", "-5s")
	cfg := FromEnv()
	if cfg.PollInterval != 300*time.Millisecond {
		t.Fatalf("malformed interval should fall back, got %s", cfg.PollInterval)
	}
	if cfg.LongPressThreshold != time.Second {
		t.Fatalf("negative threshold should fall back, got %s", cfg.LongPressThreshold)
	}
}
