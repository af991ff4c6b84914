// Package app assembles the daemon: store, load script, dispatcher,
// monitors, deck device, driver loop, and the local config API.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/robfig/cron/v3"

	"github.com/deckpilot/deckd/internal/config"
	"github.com/deckpilot/deckd/internal/deck"
	"github.com/deckpilot/deckd/internal/dispatch"
	"github.com/deckpilot/deckd/internal/driver"
	"github.com/deckpilot/deckd/internal/httpapi"
	"github.com/deckpilot/deckd/internal/layout"
	"github.com/deckpilot/deckd/internal/loader"
	"github.com/deckpilot/deckd/internal/monitor"
	"github.com/deckpilot/deckd/internal/session"
	"github.com/deckpilot/deckd/internal/store"
	"github.com/deckpilot/deckd/internal/watcher"
)

var reloadCronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

type Runtime struct {
	cfg        config.Config
	logger     *slog.Logger
	store      *store.Store
	device     deck.Device
	driver     *driver.Driver
	httpServer *http.Server
	watcher    *watcher.Service
	reloadCron cron.Schedule
}

func New(cfg config.Config, logger *slog.Logger) (*Runtime, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	if err := os.MkdirAll(cfg.ScriptsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create scripts directory: %w", err)
	}

	var reloadSchedule cron.Schedule
	if cfg.ReloadCron != "" {
		parsed, err := reloadCronParser.Parse(cfg.ReloadCron)
		if err != nil {
			return nil, fmt.Errorf("parse reload cron expression: %w", err)
		}
		reloadSchedule = parsed
	}

	sqlStore, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := sqlStore.AutoMigrate(context.Background()); err != nil {
		sqlStore.Close()
		return nil, err
	}

	device, err := openDevice(cfg, logger)
	if err != nil {
		sqlStore.Close()
		return nil, err
	}
	_, cols := device.Layout()
	engine := layout.NewEngine(device.KeyCount(), cols)

	templates := dispatch.NewTemplateSet(cfg.ScriptsDir)
	osa := dispatch.NewOsascript(templates, dispatch.ExecRunner{}, cfg.DispatchTimeout, cfg.PromptTimeout, logger)
	background := dispatch.NewBackground(logger)
	supervisor := monitor.New(monitor.Config{
		SSHInterval:    cfg.SSHMonitorInterval,
		SSHTimeout:     cfg.SSHMonitorTimeout,
		WindowInterval: cfg.WindowInterval,
	}, monitor.ExecShellRunner{}, osa, logger)

	drv := driver.New(driver.Options{
		PollInterval:       cfg.PollInterval,
		LongPressThreshold: cfg.LongPressThreshold,
		WebUIURL:           cfg.WebUIURL,
		RecordLogPath:      cfg.RecordLogPath,
	}, driver.Deps{
		Device:     device,
		Store:      sqlStore,
		Loader:     loader.New(cfg.LoadScript, cfg.DBPath, logger),
		Terminal:   osa,
		Prompter:   osa,
		Windows:    osa,
		Opener:     dispatch.NewBrowserOpener(dispatch.ExecRunner{}),
		Background: background,
		Supervisor: supervisor,
		Session:    session.New(),
		Engine:     engine,
	}, logger)

	scriptsWatcher, err := watcher.New(cfg.ScriptsDir, logger, templates.Invalidate)
	if err != nil {
		device.Close()
		sqlStore.Close()
		return nil, err
	}

	router := httpapi.NewRouter(httpapi.Dependencies{
		Store:   sqlStore,
		Control: drv,
		Logger:  logger.With("component", "httpapi"),
	})

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		store:      sqlStore,
		device:     device,
		driver:     drv,
		httpServer: &http.Server{Addr: cfg.HTTPAddr, Handler: router},
		watcher:    scriptsWatcher,
		reloadCron: reloadSchedule,
	}, nil
}

func openDevice(cfg config.Config, logger *slog.Logger) (deck.Device, error) {
	if cfg.FakeDevice {
		logger.Info("using fake deck device", "keys", cfg.FakeDeviceKeys)
		return deck.NewFake(cfg.FakeDeviceKeys), nil
	}
	device, err := deck.OpenUSB(uint16(cfg.DeviceVendorID), deck.ProductID15, deck.BitmapEncoder{}, logger)
	if err != nil {
		return nil, fmt.Errorf("open deck device: %w", err)
	}
	return device, nil
}
