// Package config resolves engine settings from an optional TOML file and
// WARDEN_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config carries every tunable of the supervision engine.
type Config struct {
	StatePath string
	LogDir    string
	// WatchLogPath is where the watch daemon writes its own log.
	WatchLogPath string

	PollInterval    time.Duration
	StopTimeout     time.Duration
	KillTimeout     time.Duration
	StabilityWindow time.Duration

	MetricsAddr string
}

// fileConfig is the TOML shape; intervals are plain seconds.
type fileConfig struct {
	StatePath          string `toml:"state_path"`
	LogDir             string `toml:"log_dir"`
	WatchLogPath       string `toml:"watch_log_path"`
	PollIntervalSec    int    `toml:"poll_interval_sec"`
	StopTimeoutSec     int    `toml:"stop_timeout_sec"`
	KillTimeoutSec     int    `toml:"kill_timeout_sec"`
	StabilityWindowSec int    `toml:"stability_window_sec"`
	MetricsAddr        string `toml:"metrics_addr"`
}

// Default returns the configuration rooted at ~/.warden.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	root := filepath.Join(home, ".warden")
	return Config{
		StatePath:       filepath.Join(root, "state.json"),
		LogDir:          filepath.Join(root, "logs"),
		WatchLogPath:    filepath.Join(root, "logs", "warden", "warden.log"),
		PollInterval:    3 * time.Second,
		StopTimeout:     5 * time.Second,
		KillTimeout:     5 * time.Second,
		StabilityWindow: 60 * time.Second,
	}
}

// Load reads path when it exists, layers it over the defaults, then applies
// environment overrides. An empty path checks ~/.warden/warden.toml.
func Load(path string) (Config, error) {
	cfg := Default()
	explicit := path != ""
	if path == "" {
		path = filepath.Join(filepath.Dir(cfg.StatePath), "warden.toml")
	}
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		var fc fileConfig
		if err := toml.Unmarshal(b, &fc); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
		merge(&cfg, fc)
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		// defaults only
	default:
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	applyEnv(&cfg)
	return cfg, nil
}

func merge(cfg *Config, fc fileConfig) {
	if fc.StatePath != "" {
		cfg.StatePath = fc.StatePath
	}
	if fc.LogDir != "" {
		cfg.LogDir = fc.LogDir
	}
	if fc.WatchLogPath != "" {
		cfg.WatchLogPath = fc.WatchLogPath
	}
	if fc.PollIntervalSec > 0 {
		cfg.PollInterval = time.Duration(fc.PollIntervalSec) * time.Second
	}
	if fc.StopTimeoutSec > 0 {
		cfg.StopTimeout = time.Duration(fc.StopTimeoutSec) * time.Second
	}
	if fc.KillTimeoutSec > 0 {
		cfg.KillTimeout = time.Duration(fc.KillTimeoutSec) * time.Second
	}
	if fc.StabilityWindowSec > 0 {
		cfg.StabilityWindow = time.Duration(fc.StabilityWindowSec) * time.Second
	}
	if fc.MetricsAddr != "" {
		cfg.MetricsAddr = fc.MetricsAddr
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("WARDEN_STATE_PATH"); v != "" {
		cfg.StatePath = v
	}
	if v := os.Getenv("WARDEN_LOG_DIR"); v != "" {
		cfg.LogDir = v
	}
	applyEnvDuration("WARDEN_POLL_INTERVAL", &cfg.PollInterval)
	applyEnvDuration("WARDEN_STOP_TIMEOUT", &cfg.StopTimeout)
	applyEnvDuration("WARDEN_KILL_TIMEOUT", &cfg.KillTimeout)
	applyEnvDuration("WARDEN_STABILITY_WINDOW", &cfg.StabilityWindow)
	if v := os.Getenv("WARDEN_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
}

func applyEnvDuration(key string, dst *time.Duration) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		*dst = d
	}
}
