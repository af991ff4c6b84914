package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Environment string
	HTTPAddr    string
	DataDir     string
	DBPath      string
	ScriptsDir  string
	LoadScript  string
	WebUIURL    string

	PollInterval       time.Duration
	LongPressThreshold time.Duration

	SSHMonitorInterval time.Duration
	SSHMonitorTimeout  time.Duration
	WindowInterval     time.Duration
	DispatchTimeout    time.Duration
	PromptTimeout      time.Duration

	RecordLogPath string
	ReloadCron    string

	DeviceVendorID int
	FakeDevice     bool
	FakeDeviceKeys int
}

func FromEnv() Config {
	dataDir := stringOrDefault("DECKD_DATA_DIR", defaultDataDir())
	dbPath := stringOrDefault("DECKD_DB_PATH", filepath.Join(dataDir, "streamdeck.db"))
	scriptsDir := stringOrDefault("DECKD_SCRIPTS_DIR", filepath.Join(dataDir, "scripts"))

	return Config{
		Environment: stringOrDefault("DECKD_ENV", "development"),
		HTTPAddr:    stringOrDefault("DECKD_HTTP_ADDR", "127.0.0.1:8765"),
		DataDir:     dataDir,
		DBPath:      dbPath,
		ScriptsDir:  scriptsDir,
		LoadScript:  stringOrDefault("DECKD_LOAD_SCRIPT", filepath.Join(dataDir, "streamdeck_db.py")),
		WebUIURL:    stringOrDefault("DECKD_WEB_UI_URL", "http://127.0.0.1:8765/"),

		PollInterval:       durationOrDefault("DECKD_POLL_INTERVAL", 300*time.Millisecond),
		LongPressThreshold: durationOrDefault("DECKD_LONG_PRESS_THRESHOLD", time.Second),

		SSHMonitorInterval: durationOrDefault("DECKD_SSH_MONITOR_INTERVAL", 3*time.Second),
		SSHMonitorTimeout:  durationOrDefault("DECKD_SSH_MONITOR_TIMEOUT", 8*time.Second),
		WindowInterval:     durationOrDefault("DECKD_WINDOW_MONITOR_INTERVAL", 60*time.Second),
		DispatchTimeout:    durationOrDefault("DECKD_DISPATCH_TIMEOUT", 10*time.Second),
		PromptTimeout:      durationOrDefault("DECKD_PROMPT_TIMEOUT", 60*time.Second),

		RecordLogPath: strings.TrimSpace(os.Getenv("DECKD_RECORD_LOG_PATH")),
		ReloadCron:    strings.TrimSpace(os.Getenv("DECKD_RELOAD_CRON")),

		DeviceVendorID: intOrDefault("DECKD_DEVICE_VENDOR_ID", 0x0fd9),
		FakeDevice:     boolOrDefault("DECKD_FAKE_DEVICE", false),
		FakeDeviceKeys: intOrDefault("DECKD_FAKE_DEVICE_KEYS", 15),
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/data/deckd"
	}
	return filepath.Join(home, ".deckd")
}

func stringOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func intOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 1 {
		return fallback
	}
	return parsed
}

func boolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func durationOrDefault(name string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
