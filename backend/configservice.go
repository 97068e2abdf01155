package backend

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	configFileName = "revix.config"
	configDirName  = "revix"
	envPrefix      = "REVIX_"
)

type WindowConfig struct {
	Title  string `json:"title" koanf:"title"`
	URL    string `json:"url" koanf:"url"`
	Width  int    `json:"width" koanf:"width"`
	Height int    `json:"height" koanf:"height"`
}

type UpdatesConfig struct {
	Enabled             bool          `json:"enabled" koanf:"enabled"`
	Endpoint            string        `json:"endpoint" koanf:"endpoint"`
	CheckTimeout        time.Duration `json:"checkTimeout" koanf:"check_timeout"`
	RestartAfterInstall bool          `json:"restartAfterInstall" koanf:"restart_after_install"`
	InstallationID      string        `json:"installationId" koanf:"installation_id"`
}

type LoggingConfig struct {
	Level  string `json:"level" koanf:"level"`
	Format string `json:"format" koanf:"format"`
	File   string `json:"file" koanf:"file"`
}

type ShellConfig struct {
	Window  WindowConfig  `json:"window" koanf:"window"`
	Updates UpdatesConfig `json:"updates" koanf:"updates"`
	Logging LoggingConfig `json:"logging" koanf:"logging"`
}

var DefaultShellConfig = ShellConfig{
	Window: WindowConfig{
		Title:  "Revix",
		URL:    "/",
		Width:  1200,
		Height: 800,
	},
	Updates: UpdatesConfig{
		Enabled:      true,
		Endpoint:     "https://releases.revix.app/desktop/{{target}}/{{arch}}/{{current_version}}",
		CheckTimeout: DefaultCheckTimeout,
	},
	Logging: LoggingConfig{
		Level:  "info",
		Format: "text",
	},
}

// ConfigService loads and persists the shell configuration. It is also
// bound to the frontend so the UI can read the effective settings.
type ConfigService struct {
	path   string
	log    *slog.Logger
	config ShellConfig
}

// NewConfigService resolves the config path: a portable revix.config in the
// working directory wins, otherwise the user config dir is used. An empty
// dir skips the portable lookup (used by tests).
func NewConfigService(dir string, log *slog.Logger) *ConfigService {
	path := ""
	if dir != "" {
		path = filepath.Join(dir, configFileName)
	} else {
		path = defaultConfigPath()
	}
	return &ConfigService{
		path:   path,
		log:    log.With("component", "config"),
		config: DefaultShellConfig,
	}
}

func (c *ConfigService) Path() string { return c.path }

// GetConfig returns the effective configuration.
func (c *ConfigService) GetConfig() ShellConfig {
	return c.config
}

// Load reads the config file, creating it with defaults when missing, then
// applies .env and REVIX_ environment overrides. A corrupt file falls back to
// defaults rather than failing startup.
func (c *ConfigService) Load() (ShellConfig, error) {
	if _, err := os.Stat(c.path); os.IsNotExist(err) {
		c.log.Info("creating default config", "path", c.path)
		c.config = DefaultShellConfig
		if err := c.save(); err != nil {
			return c.config, err
		}
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(DefaultShellConfig, "koanf"), nil); err != nil {
		return DefaultShellConfig, fmt.Errorf("failed to load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(c.path), yaml.Parser()); err != nil {
		c.log.Warn("error parsing config, using defaults", "path", c.path, "error", err)
	}

	// .env is a developer convenience; its absence is normal.
	_ = godotenv.Load()
	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil)
	if err != nil {
		c.log.Warn("error reading environment overrides", "error", err)
	}

	var cfg ShellConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		c.log.Warn("error unmarshaling config, using defaults", "error", err)
		cfg = DefaultShellConfig
	}

	cfg = sanitize(cfg)

	c.config = cfg
	if cfg.Updates.InstallationID == "" {
		c.config.Updates.InstallationID = uuid.NewString()
		if err := c.save(); err != nil {
			c.log.Warn("failed to persist installation id", "error", err)
		}
	}
	return c.config, nil
}

// UpdateConfig validates and persists cfg.
func (c *ConfigService) UpdateConfig(cfg ShellConfig) error {
	if cfg.Window.Width < 320 || cfg.Window.Height < 240 {
		return fmt.Errorf("window size must be at least 320x240")
	}
	if cfg.Updates.CheckTimeout < time.Second || cfg.Updates.CheckTimeout > 5*time.Minute {
		return fmt.Errorf("update check timeout must be between 1s and 5m")
	}
	if cfg.Updates.Enabled && cfg.Updates.Endpoint == "" {
		return fmt.Errorf("update endpoint is required when updates are enabled")
	}
	if _, ok := parseLevel(cfg.Logging.Level); !ok {
		return fmt.Errorf("unknown log level %q", cfg.Logging.Level)
	}
	if cfg.Updates.InstallationID == "" {
		cfg.Updates.InstallationID = c.config.Updates.InstallationID
	}

	c.config = cfg
	return c.save()
}

func sanitize(c ShellConfig) ShellConfig {
	d := DefaultShellConfig
	if c.Window.Title == "" {
		c.Window.Title = d.Window.Title
	}
	if c.Window.URL == "" {
		c.Window.URL = d.Window.URL
	}
	if c.Window.Width < 320 {
		c.Window.Width = d.Window.Width
	}
	if c.Window.Height < 240 {
		c.Window.Height = d.Window.Height
	}
	if c.Updates.Endpoint == "" {
		c.Updates.Enabled = false
	}
	if c.Updates.CheckTimeout < time.Second || c.Updates.CheckTimeout > 5*time.Minute {
		c.Updates.CheckTimeout = d.Updates.CheckTimeout
	}
	if _, ok := parseLevel(c.Logging.Level); !ok {
		c.Logging.Level = d.Logging.Level
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		c.Logging.Format = d.Logging.Format
	}
	return c
}

func (c *ConfigService) save() error {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(c.config, "koanf"), nil); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	b, err := k.Marshal(yaml.Parser())
	if err != nil {
		return err
	}

	if err := os.WriteFile(c.path, b, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func defaultConfigPath() string {
	if wd, err := os.Getwd(); err == nil {
		portable := filepath.Join(wd, configFileName)
		if _, err := os.Stat(portable); err == nil {
			return portable
		}
	}

	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, configDirName, configFileName)
}
