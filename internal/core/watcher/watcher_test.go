package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherReportsPklChanges(t *testing.T) {
	dir := t.TempDir()

	changes := make(chan []string, 4)
	w, err := NewWatcher(30*time.Millisecond, nil, nil, func(paths []string) {
		changes <- paths
	})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	if err := w.Watch([]string{dir}); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "app.pkl"), []byte("x = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case paths := <-changes:
		for _, p := range paths {
			if filepath.Base(p) == "notes.txt" {
				t.Fatalf("non-Pkl file reported: %v", paths)
			}
		}
		found := false
		for _, p := range paths {
			if filepath.Base(p) == "app.pkl" {
				found = true
			}
		}
		if !found {
			t.Fatalf("app.pkl not reported: %v", paths)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no change batch arrived")
	}
}

func TestWatcherDebouncesBatches(t *testing.T) {
	dir := t.TempDir()

	changes := make(chan []string, 4)
	w, err := NewWatcher(80*time.Millisecond, nil, nil, func(paths []string) {
		changes <- paths
	})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	if err := w.Watch([]string{dir}); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	for _, name := range []string{"a.pkl", "b.pkl", "PklProject"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x = 1\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case paths := <-changes:
		if len(paths) < 2 {
			t.Fatalf("expected a coalesced batch, got %v", paths)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no change batch arrived")
	}
}

func TestNewWatcherRequiresCallback(t *testing.T) {
	if _, err := NewWatcher(time.Millisecond, nil, nil, nil); err == nil {
		t.Fatal("expected error for nil callback")
	}
}

func TestExcludePatterns(t *testing.T) {
	w, err := NewWatcher(time.Millisecond, []string{".git"}, []string{"*_gen.pkl"}, func([]string) {})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	if !w.shouldExcludeDir("/repo/.git") {
		t.Error(".git should be excluded")
	}
	if !w.shouldExcludeFile("/repo/types_gen.pkl") {
		t.Error("generated file should be excluded")
	}
	if w.shouldExcludeFile("/repo/main.pkl") {
		t.Error("main.pkl should pass the filter")
	}
	if w.shouldExcludeFile("/repo/PklProject") {
		t.Error("PklProject should pass the filter")
	}
}
