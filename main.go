package main

import (
	"embed"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/wailsapp/wails/v3/pkg/services/notifications"

	"revix/backend"
	"revix/backend/updater"
)

// The hosted UI is built into frontend/dist and embedded into the binary.
//
//go:embed all:frontend/dist
var assets embed.FS

// Set at build time:
//
//	go build -ldflags "-X main.Version=1.4.0 -X main.buildMode=release"
var (
	Version   = "0.1.0-dev"
	buildMode = "debug"
)

func main() {
	mode := backend.ParseBuildMode(buildMode)

	// Log to stderr until the config says otherwise.
	bootLog := backend.NewLogger(backend.DefaultShellConfig.Logging, mode, nil)
	configService := backend.NewConfigService("", bootLog)
	cfg, err := configService.Load()
	if err != nil {
		bootLog.Warn("config not saved, continuing with loaded values", "path", configService.Path(), "error", err)
	}

	var out io.Writer = os.Stderr
	if cfg.Logging.File != "" {
		f, err := backend.OpenLogFile(cfg.Logging.File)
		if err != nil {
			bootLog.Warn("falling back to stderr logging", "error", err)
		} else {
			defer f.Close()
			out = f
		}
	}
	logger := backend.NewLogger(cfg.Logging, mode, out)
	slog.SetDefault(logger)
	logger.Info("starting revix", "version", Version, "config", configService.Path())

	// A missing WebView2 runtime is a window creation failure caught early:
	// the host could not create the main window, so it is fatal like one.
	if err := ensureWebView2(logger); err != nil {
		log.Fatal(err)
	}

	var source backend.Updater
	if cfg.Updates.Enabled {
		client, err := updater.New(updater.Config{
			Endpoint:       cfg.Updates.Endpoint,
			CurrentVersion: Version,
			InstallationID: cfg.Updates.InstallationID,
			CheckTimeout:   cfg.Updates.CheckTimeout,
		}, logger)
		if err != nil {
			logger.Warn("update source unavailable", "error", err)
		} else {
			source = client
		}
	}

	native := notifications.New()

	host := backend.NewWailsHost(backend.WailsHostOptions{
		Name:        "Revix",
		Description: "Revix desktop",
		Assets:      assets,
		Logger:      logger,
	})

	coordinator := backend.NewCoordinator(host, source, backend.CoordinatorConfig{
		Mode:                mode,
		Version:             Version,
		Window:              cfg.Window,
		UpdatesDisabled:     !cfg.Updates.Enabled,
		CheckTimeout:        cfg.Updates.CheckTimeout,
		RestartAfterInstall: cfg.Updates.RestartAfterInstall,
		Notifier:            native,
	}, logger)

	if err := coordinator.AddPlugin(backend.NewPlugin("config", configService)); err != nil {
		logger.Warn("config plugin not registered", "error", err)
	}
	// Registered so wails starts and stops the platform notifier.
	if err := coordinator.AddPlugin(backend.NewPlugin("native-notifications", native)); err != nil {
		logger.Warn("native notifications not registered", "error", err)
	}

	// Run blocks until the application exits. A non-nil error means the main
	// window could not be created.
	if err := coordinator.Run(); err != nil {
		log.Fatal(err)
	}
}
