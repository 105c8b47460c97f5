// Package config loads the TOML configuration file, applies defaults and
// environment overrides, and validates the result before anything else
// starts.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Version int   `toml:"version"`
	Paths   Paths `toml:"paths"`
	// ModulePath is the ordered list of directories modulepath: URIs search.
	ModulePath    []string      `toml:"module_path"`
	Fetch         Fetch         `toml:"fetch"`
	Watch         Watch         `toml:"watch"`
	DB            Database      `toml:"db"`
	Observability Observability `toml:"observability"`
	Logging       Logging       `toml:"logging"`
}

type Paths struct {
	// Root is the workspace directory analyzed and watched.
	Root string `toml:"root"`
	// CacheDir holds fetched https modules and downloaded packages.
	CacheDir string `toml:"cache_dir"`
	StateDir string `toml:"state_dir"`
}

type Fetch struct {
	Timeout time.Duration `toml:"timeout"`
	// Rate caps outbound module fetches per second.
	Rate float64 `toml:"rate"`
}

type Watch struct {
	Debounce     time.Duration `toml:"debounce"`
	ExcludeDirs  []string      `toml:"exclude_dirs"`
	ExcludeFiles []string      `toml:"exclude_files"`
}

type Database struct {
	Enabled     bool          `toml:"enabled"`
	Path        string        `toml:"path"`
	BusyTimeout time.Duration `toml:"busy_timeout"`
}

type Observability struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Load reads and validates a config file. A missing path yields the
// defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, err
		}
	}

	applyDefaults(&cfg)
	ApplyEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}
	if strings.TrimSpace(cfg.Paths.Root) == "" {
		cfg.Paths.Root = "."
	}
	if strings.TrimSpace(cfg.Paths.CacheDir) == "" {
		cfg.Paths.CacheDir = "data/cache"
	}
	if strings.TrimSpace(cfg.Paths.StateDir) == "" {
		cfg.Paths.StateDir = "data/state"
	}
	if cfg.Fetch.Timeout <= 0 {
		cfg.Fetch.Timeout = 20 * time.Second
	}
	if cfg.Fetch.Rate <= 0 {
		cfg.Fetch.Rate = 8
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 500 * time.Millisecond
	}
	if len(cfg.Watch.ExcludeDirs) == 0 {
		cfg.Watch.ExcludeDirs = []string{".git", "node_modules", ".pkl-cache"}
	}
	if strings.TrimSpace(cfg.DB.Path) == "" {
		cfg.DB.Path = "history.db"
	}
	if cfg.DB.BusyTimeout <= 0 {
		cfg.DB.BusyTimeout = 5 * time.Second
	}
	if cfg.Observability.Port == 0 {
		cfg.Observability.Port = 9472
	}
	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = "info"
	}
	if strings.TrimSpace(cfg.Logging.Format) == "" {
		cfg.Logging.Format = "text"
	}
}

func validate(cfg *Config) error {
	if cfg.Version != 1 {
		return fmt.Errorf("unsupported config version %d; supported version is 1", cfg.Version)
	}
	for i, dir := range cfg.ModulePath {
		if strings.TrimSpace(dir) == "" {
			return fmt.Errorf("module_path[%d] must not be empty", i)
		}
	}
	if cfg.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative")
	}
	if cfg.Observability.Port < 0 || cfg.Observability.Port > 65535 {
		return fmt.Errorf("observability.port must be a valid port, got %d", cfg.Observability.Port)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Format)) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be one of: text, json")
	}
	return nil
}
