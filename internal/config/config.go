// Package config loads webmon configuration.
//
// Configuration comes from a YAML file named by the --config flag or the
// WEBMON_CONFIG environment variable. Values in the file overlay defaults
// derived from the execution mode, so an empty or missing file is valid.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eliteGoblin/focusd/web_mon/internal/infra"
)

// EnvConfigPath names the environment variable holding the config file path.
const EnvConfigPath = "WEBMON_CONFIG"

// Rule engine kinds.
const (
	EngineFile   = "file"
	EngineHosts  = "hosts"
	EngineMemory = "memory"
)

// DefaultRedirectURL is where blocked navigations are sent unless configured.
const DefaultRedirectURL = "about:blank"

// Config is the top-level webmon configuration.
type Config struct {
	// DataDir holds the encrypted store, its key, the registry and the rules file.
	DataDir string `yaml:"data_dir"`

	// SocketPath is the daemon's command socket.
	SocketPath string `yaml:"socket_path"`

	Store  StoreConfig  `yaml:"store"`
	Rules  RulesConfig  `yaml:"rules"`
	Daemon DaemonConfig `yaml:"daemon"`
	Log    LogConfig    `yaml:"log"`

	// Mode is the detected execution mode. Not read from the file.
	Mode infra.ExecMode `yaml:"-"`
}

// StoreConfig configures the schedule store.
type StoreConfig struct {
	// WatchInterval is how often the daemon polls for other processes' writes.
	WatchInterval time.Duration `yaml:"watch_interval"`
}

// RulesConfig configures the rule engine.
type RulesConfig struct {
	// Engine is one of "file", "hosts" or "memory".
	Engine string `yaml:"engine"`

	// Path is the rules file (file engine) or hosts file (hosts engine).
	// Default: <data_dir>/rules.json or /etc/hosts.
	Path string `yaml:"path"`

	RedirectURL string `yaml:"redirect_url"`
}

// DaemonConfig configures the scheduler daemon's timers.
type DaemonConfig struct {
	CheckInterval     time.Duration `yaml:"check_interval"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// LogConfig configures the daemon log file.
type LogConfig struct {
	Path       string `yaml:"path"`
	Debug      bool   `yaml:"debug"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Default returns the configuration for the current execution mode.
func Default() *Config {
	return FromExecMode(infra.DetectExecMode())
}

// FromExecMode returns defaults rooted at the paths of mode.
func FromExecMode(mode *infra.ExecModeConfig) *Config {
	return &Config{
		DataDir:    mode.DataDir,
		SocketPath: mode.SocketPath,
		Mode:       mode.Mode,
		Store: StoreConfig{
			WatchInterval: 2 * time.Second,
		},
		Rules: RulesConfig{
			Engine:      EngineFile,
			RedirectURL: DefaultRedirectURL,
		},
		Daemon: DaemonConfig{
			CheckInterval:     time.Minute,
			CleanupInterval:   24 * time.Hour,
			HeartbeatInterval: 30 * time.Second,
		},
		Log: LogConfig{
			Path:       mode.LogPath,
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load returns the configuration at path, or at $WEBMON_CONFIG when path is
// empty. With neither set, defaults are returned. A named file that does
// not exist is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyDerived()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

// applyDerived fills paths that depend on other values.
func (c *Config) applyDerived() {
	if c.Rules.Path == "" {
		switch c.Rules.Engine {
		case EngineFile:
			c.Rules.Path = filepath.Join(c.DataDir, infra.RulesFileName)
		case EngineHosts:
			c.Rules.Path = infra.DefaultHostsPath
		}
	}
	if c.Log.Path == "" {
		c.Log.Path = filepath.Join(c.DataDir, "logs", "webmon.log")
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}
	if c.SocketPath == "" {
		errs = append(errs, errors.New("socket_path is required"))
	}
	switch c.Rules.Engine {
	case EngineFile, EngineHosts, EngineMemory:
	default:
		errs = append(errs, fmt.Errorf("rules.engine must be file, hosts or memory, got %q", c.Rules.Engine))
	}
	if c.Rules.RedirectURL == "" {
		errs = append(errs, errors.New("rules.redirect_url is required"))
	}

	intervals := []struct {
		name  string
		value time.Duration
	}{
		{"store.watch_interval", c.Store.WatchInterval},
		{"daemon.check_interval", c.Daemon.CheckInterval},
		{"daemon.cleanup_interval", c.Daemon.CleanupInterval},
		{"daemon.heartbeat_interval", c.Daemon.HeartbeatInterval},
	}
	for _, iv := range intervals {
		if iv.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", iv.name))
		}
	}

	return errors.Join(errs...)
}
