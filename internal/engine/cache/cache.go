// Package cache implements the invalidation-aware memoization layer the
// resolver stack is built on. A computed value is stored together with a
// snapshot of every modification tracker it depends on; the value stays
// valid until one of those trackers advances.
package cache

import (
	"sync"
	"sync/atomic"
)

// Tracker is a monotonic modification counter. Bumping it invalidates every
// cached value that recorded the tracker as a dependency. Bumps happen on the
// single-threaded edit path; reads are lock-free and may be stale, which only
// costs an extra recomputation.
type Tracker struct {
	count atomic.Int64
}

func NewTracker() *Tracker {
	return &Tracker{}
}

func (t *Tracker) Bump() {
	t.count.Add(1)
}

func (t *Tracker) Count() int64 {
	if t == nil {
		return 0
	}
	return t.count.Load()
}

type dep struct {
	tracker *Tracker
	seen    int64
}

type entry struct {
	value interface{}
	deps  []dep
}

func snapshot(trackers []*Tracker) []dep {
	deps := make([]dep, 0, len(trackers))
	for _, t := range trackers {
		if t == nil {
			continue
		}
		deps = append(deps, dep{tracker: t, seen: t.Count()})
	}
	return deps
}

func (e *entry) valid() bool {
	for _, d := range e.deps {
		if d.tracker.Count() != d.seen {
			return false
		}
	}
	return true
}

// Union merges tracker lists, deduplicating by identity. Order is the first
// occurrence order, which keeps dependency lists stable across rebuilds.
func Union(lists ...[]*Tracker) []*Tracker {
	seen := make(map[*Tracker]struct{})
	var out []*Tracker
	for _, list := range lists {
		for _, t := range list {
			if t == nil {
				continue
			}
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

// Store is a process-wide string-keyed memoization table. Concurrent callers
// racing on the same key converge on a single stored value: whoever stores
// first wins, later racers discard their own computation.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// Clear drops every entry. Used on workspace-level resync.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*entry)
}

func (s *Store) lookup(key string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok && e.valid() {
		return e.value, true
	}
	return nil, false
}

// storeIfStale installs the freshly computed entry unless another goroutine
// already installed a valid one in the meantime; the installed value wins.
func (s *Store) storeIfStale(key string, e *entry) interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.entries[key]; ok && prev.valid() {
		return prev.value
	}
	s.entries[key] = e
	return e.value
}

// GetOrCompute returns the cached value for key if every tracker recorded at
// computation time is unchanged, and otherwise recomputes. The dependency
// list is supplied up front.
func GetOrCompute[T any](s *Store, key string, trackers []*Tracker, compute func() T) T {
	return GetOrComputeDeps(s, key, func() (T, []*Tracker) {
		return compute(), trackers
	})
}

// GetOrComputeDeps is the variant where the computation discovers its own
// dependency set, e.g. a member table unioning its ancestors' trackers.
func GetOrComputeDeps[T any](s *Store, key string, compute func() (T, []*Tracker)) T {
	if v, ok := s.lookup(key); ok {
		return v.(T)
	}
	value, trackers := compute()
	e := &entry{value: value, deps: snapshot(trackers)}
	return s.storeIfStale(key, e).(T)
}

// NodeCache is the per-node memoization slot. The zero value is ready to use,
// so AST nodes can embed one without initialization.
type NodeCache struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func (c *NodeCache) lookup(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok && e.valid() {
		return e.value, true
	}
	return nil, false
}

func (c *NodeCache) storeIfStale(key string, e *entry) interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.entries[key]; ok && prev.valid() {
		return prev.value
	}
	if c.entries == nil {
		c.entries = make(map[string]*entry)
	}
	c.entries[key] = e
	return e.value
}

func NodeGetOrCompute[T any](c *NodeCache, key string, trackers []*Tracker, compute func() T) T {
	return NodeGetOrComputeDeps(c, key, func() (T, []*Tracker) {
		return compute(), trackers
	})
}

func NodeGetOrComputeDeps[T any](c *NodeCache, key string, compute func() (T, []*Tracker)) T {
	if v, ok := c.lookup(key); ok {
		return v.(T)
	}
	value, trackers := compute()
	e := &entry{value: value, deps: snapshot(trackers)}
	return c.storeIfStale(key, e).(T)
}
