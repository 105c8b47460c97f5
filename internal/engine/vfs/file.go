// Package vfs maps URIs to lazily-loaded virtual files. One process-wide
// registry guarantees that resolving the same effective URI always returns
// the same *VirtualFile, which the rest of the engine relies on for
// identity-keyed caching.
package vfs

import (
	"sync"

	"pklsense/internal/engine/cache"
)

type Origin uint8

const (
	OriginLocal Origin = iota
	OriginStdlib
	OriginHTTPS
	OriginEphemeral
)

func (o Origin) String() string {
	switch o {
	case OriginLocal:
		return "local"
	case OriginStdlib:
		return "stdlib"
	case OriginHTTPS:
		return "https"
	case OriginEphemeral:
		return "ephemeral"
	}
	return "unknown"
}

// VirtualFile is the single handle for one URI. Content loads on first read,
// never at resolution time. Editor overlays shadow disk content until
// cleared. Every content transition bumps the modification tracker.
type VirtualFile struct {
	uri    string
	origin Origin
	reg    *Registry

	mu      sync.Mutex
	content []byte
	loaded  bool
	missing bool
	overlay bool

	tracker *cache.Tracker
}

func (f *VirtualFile) URI() string             { return f.uri }
func (f *VirtualFile) Origin() Origin          { return f.origin }
func (f *VirtualFile) Tracker() *cache.Tracker { return f.tracker }
func (f *VirtualFile) Version() int64          { return f.tracker.Count() }

// Contents returns the file's bytes, fetching them on first use. The second
// result is false when the file does not exist or fetching failed; failures
// surface as misses, not errors.
func (f *VirtualFile) Contents() ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loaded {
		return f.content, !f.missing
	}
	data, ok := f.reg.fetch(f.uri, f.origin)
	f.content = data
	f.missing = !ok
	f.loaded = true
	return f.content, ok
}

// SetOverlay installs editor-pushed content that shadows disk until cleared.
func (f *VirtualFile) SetOverlay(content []byte) {
	f.mu.Lock()
	f.content = content
	f.loaded = true
	f.missing = false
	f.overlay = true
	f.mu.Unlock()
	f.tracker.Bump()
}

// ClearOverlay reverts to on-disk content on the next read.
func (f *VirtualFile) ClearOverlay() {
	f.mu.Lock()
	f.overlay = false
	f.loaded = false
	f.content = nil
	f.mu.Unlock()
	f.tracker.Bump()
}

// Invalidate marks disk content stale after a filesystem event. An active
// overlay keeps shadowing disk, but dependents are still invalidated.
func (f *VirtualFile) Invalidate() {
	f.mu.Lock()
	if !f.overlay {
		f.loaded = false
		f.content = nil
	}
	f.mu.Unlock()
	f.tracker.Bump()
}

// HasOverlay reports whether editor content currently shadows disk.
func (f *VirtualFile) HasOverlay() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.overlay
}
