package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// ApplyEnvOverrides applies environment variable overrides to the
// configuration. Pattern: PKLSENSE_[SECTION]_[KEY].
func ApplyEnvOverrides(cfg *Config) {
	setEnvString(&cfg.Paths.Root, "PKLSENSE_PATHS_ROOT")
	setEnvString(&cfg.Paths.CacheDir, "PKLSENSE_PATHS_CACHE_DIR")
	setEnvString(&cfg.Paths.StateDir, "PKLSENSE_PATHS_STATE_DIR")

	setEnvDuration(&cfg.Fetch.Timeout, "PKLSENSE_FETCH_TIMEOUT")
	setEnvFloat64(&cfg.Fetch.Rate, "PKLSENSE_FETCH_RATE")

	setEnvDuration(&cfg.Watch.Debounce, "PKLSENSE_WATCH_DEBOUNCE")

	setEnvBool(&cfg.DB.Enabled, "PKLSENSE_DB_ENABLED")
	setEnvString(&cfg.DB.Path, "PKLSENSE_DB_PATH")
	setEnvDuration(&cfg.DB.BusyTimeout, "PKLSENSE_DB_BUSY_TIMEOUT")

	setEnvBool(&cfg.Observability.Enabled, "PKLSENSE_OBSERVABILITY_ENABLED")
	setEnvInt(&cfg.Observability.Port, "PKLSENSE_OBSERVABILITY_PORT")

	setEnvString(&cfg.Logging.Level, "PKLSENSE_LOGGING_LEVEL")
	setEnvString(&cfg.Logging.Format, "PKLSENSE_LOGGING_FORMAT")
}

func setEnvString(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		slog.Debug("applying env override", "key", key)
		*target = val
	}
}

func setEnvInt(target *int, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			slog.Debug("applying env override", "key", key)
			*target = i
		}
	}
}

func setEnvBool(target *bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			slog.Debug("applying env override", "key", key)
			*target = b
		}
	}
}

func setEnvFloat64(target *float64, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			slog.Debug("applying env override", "key", key)
			*target = f
		}
	}
}

func setEnvDuration(target *time.Duration, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			slog.Debug("applying env override", "key", key)
			*target = d
		}
	}
}
