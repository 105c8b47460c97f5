package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pklsense.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Paths.Root != "." {
		t.Errorf("root = %q, want .", cfg.Paths.Root)
	}
	if cfg.Watch.Debounce != 500*time.Millisecond {
		t.Errorf("debounce = %v", cfg.Watch.Debounce)
	}
	if cfg.Fetch.Rate != 8 {
		t.Errorf("fetch rate = %v", cfg.Fetch.Rate)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
version = 1
module_path = ["/opt/pkl/modules"]

[paths]
root = "/srv/configs"

[watch]
debounce = "250ms"

[logging]
level = "debug"
format = "json"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Paths.Root != "/srv/configs" {
		t.Errorf("root = %q", cfg.Paths.Root)
	}
	if len(cfg.ModulePath) != 1 || cfg.ModulePath[0] != "/opt/pkl/modules" {
		t.Errorf("module_path = %v", cfg.ModulePath)
	}
	if cfg.Watch.Debounce != 250*time.Millisecond {
		t.Errorf("debounce = %v", cfg.Watch.Debounce)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("format = %q", cfg.Logging.Format)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"bad version", "version = 9\n"},
		{"empty module path entry", "module_path = [\"\"]\n"},
		{"bad level", "[logging]\nlevel = \"loud\"\n"},
		{"bad format", "[logging]\nformat = \"xml\"\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.content)); err == nil {
				t.Fatal("expected a validation error")
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PKLSENSE_PATHS_ROOT", "/env/root")
	t.Setenv("PKLSENSE_WATCH_DEBOUNCE", "50ms")
	t.Setenv("PKLSENSE_DB_ENABLED", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Paths.Root != "/env/root" {
		t.Errorf("root = %q", cfg.Paths.Root)
	}
	if cfg.Watch.Debounce != 50*time.Millisecond {
		t.Errorf("debounce = %v", cfg.Watch.Debounce)
	}
	if !cfg.DB.Enabled {
		t.Error("db.enabled override not applied")
	}
}
