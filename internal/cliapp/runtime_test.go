package cliapp

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseOptions(t *testing.T) {
	opts, err := parseOptions([]string{"--once", "--verbose", "--resolve", "pkl:base", "/srv/configs"})
	if err != nil {
		t.Fatalf("parseOptions: %v", err)
	}
	if !opts.once || !opts.verbose {
		t.Errorf("flags not parsed: %+v", opts)
	}
	if opts.resolve != "pkl:base" {
		t.Errorf("resolve = %q", opts.resolve)
	}
	if len(opts.args) != 1 || opts.args[0] != "/srv/configs" {
		t.Errorf("args = %v", opts.args)
	}
}

func TestRunVersion(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := Run([]string{"--version"}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit = %d, stderr = %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "pklsense v") {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestRunOnceCleanWorkspace(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "app.pkl"), []byte("port: Int = 8080\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	code := Run([]string{"--once", dir}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit = %d, stderr = %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "1 modules analyzed") {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestRunOnceReportsErrors(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.pkl"), []byte("x = missing\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	code := Run([]string{"--once", dir}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("exit = %d, want 1", code)
	}
	if !strings.Contains(stdout.String(), "unresolved reference") {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestRunResolve(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"--resolve", "pkl:base", t.TempDir()}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit = %d, stderr = %s", code, stderr.String())
	}
	if strings.TrimSpace(stdout.String()) != "pkl:base" {
		t.Fatalf("stdout = %q", stdout.String())
	}

	stdout.Reset()
	stderr.Reset()
	if code := Run([]string{"--resolve", "badscheme:whatever", t.TempDir()}, &stdout, &stderr); code != 1 {
		t.Fatalf("exit = %d, want 1", code)
	}
}
