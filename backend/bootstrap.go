package backend

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Events emitted to the hosted UI
const (
	EventUpdateStatus   = "updater:status"
	EventUpdateProgress = "updater:progress"
)

const MainWindowID = "main"

// CoordinatorConfig is resolved once at startup
type CoordinatorConfig struct {
	Mode    BuildMode
	Version string
	Window  WindowConfig

	UpdatesDisabled     bool
	CheckTimeout        time.Duration
	RestartAfterInstall bool

	// Notifier sends native notifications. Without one they go to the UI.
	Notifier NotificationSender
}

// Coordinator sequences startup: plugins, window, hardening, updates, event loop
type Coordinator struct {
	host Host
	cfg  CoordinatorConfig
	log  *slog.Logger

	windows  *WindowController
	injector *Injector
	updates  *UpdateOrchestrator
	plugins  *PluginRegistry
	process  *ProcessService

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	fatal error
}

// NewCoordinator wires the shell components around host. A nil updater
// leaves update checking disabled.
func NewCoordinator(host Host, updater Updater, cfg CoordinatorConfig, log *slog.Logger) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		host:     host,
		cfg:      cfg,
		log:      log.With("component", "bootstrap"),
		windows:  NewWindowController(host, log),
		injector: NewInjector(cfg.Mode, log),
		plugins:  NewPluginRegistry(),
		process:  NewProcessService(host, log),
		ctx:      ctx,
		cancel:   cancel,
	}

	c.updates = NewUpdateOrchestrator(updater, UpdateOptions{
		Disabled:     cfg.UpdatesDisabled,
		CheckTimeout: cfg.CheckTimeout,
		OnProgress: func(p UpdateProgress) {
			host.Emit(EventUpdateProgress, p)
		},
		OnStatus: func(s UpdateStatus) {
			host.Emit(EventUpdateStatus, s)
		},
		OnInstalled: c.installed,
	}, log)

	for _, p := range []Plugin{
		NewPlugin("shell", NewShellService(log)),
		NewPlugin("dialog", NewDialogService()),
		NewPlugin("notification", NewNotificationService(host, cfg.Notifier, log)),
		NewPlugin("updater", NewUpdaterService(cfg.Version, c.updates)),
		NewPlugin("process", c.process),
	} {
		// Built-in names are unique, Add cannot fail here.
		_ = c.plugins.Add(p)
	}
	return c
}

// AddPlugin registers an extra capability before Run.
func (c *Coordinator) AddPlugin(p Plugin) error {
	return c.plugins.Add(p)
}

func (c *Coordinator) Windows() *WindowController  { return c.windows }
func (c *Coordinator) Updates() *UpdateOrchestrator { return c.updates }
func (c *Coordinator) Plugins() *PluginRegistry     { return c.plugins }

// Run registers plugins, schedules Startup for when the event loop is up and
// blocks in the event loop. It returns the fatal startup error if there was
// one, so the caller can exit non-zero.
func (c *Coordinator) Run() error {
	defer c.cancel()

	if err := c.plugins.RegisterAll(c.host); err != nil {
		return err
	}
	c.log.Info("plugins registered", "plugins", c.plugins.Names())

	c.host.OnStartup(func() {
		if err := c.Startup(c.ctx); err != nil {
			c.log.Error("startup failed", "error", err)
			c.setFatal(err)
			c.host.Quit()
		}
	})

	err := c.host.Run()
	if fatal := c.Fatal(); fatal != nil {
		return fatal
	}
	if err != nil {
		return fmt.Errorf("event loop: %w", err)
	}
	c.log.Info("event loop finished")
	return nil
}

// Startup runs the main sequence: create hidden, reveal, harden (release
// only), then spawn the update task. Only window creation can fail it.
func (c *Coordinator) Startup(ctx context.Context) error {
	spec := WindowSpec{
		ID:       MainWindowID,
		Title:    c.cfg.Window.Title,
		URL:      c.cfg.Window.URL,
		Width:    c.cfg.Window.Width,
		Height:   c.cfg.Window.Height,
		DevTools: c.cfg.Mode == BuildDebug,
	}

	h, err := c.windows.Create(spec)
	if err != nil {
		return err
	}

	if err := c.windows.OnCloseRequested(h, func(h *WindowHandle) {
		c.log.Info("main window closing", "id", h.ID())
	}); err != nil {
		c.log.Warn("failed to observe window close", "error", err)
	}

	if err := c.windows.Reveal(h); err != nil {
		// Not fatal: the process keeps running and the window stays as the
		// host left it. Only creation failure aborts startup.
		c.log.Error("failed to reveal window", "id", h.ID(), "error", err)
	}

	c.injector.Inject(h, BuildHardeningScript())

	c.updates.Start(ctx)
	c.log.Info("startup complete", "version", c.cfg.Version)
	return nil
}

// Fatal returns the startup error that aborted the event loop, if any.
func (c *Coordinator) Fatal() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fatal
}

func (c *Coordinator) setFatal(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fatal == nil {
		c.fatal = err
	}
}

func (c *Coordinator) installed(info UpdateInfo) {
	if !c.cfg.RestartAfterInstall {
		c.log.Info("update installed, it will apply on next launch", "version", info.Version)
		return
	}
	if err := c.process.Relaunch(); err != nil {
		c.log.Error("failed to relaunch after update", "version", info.Version, "error", err)
	}
}
