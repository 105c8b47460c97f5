// Package resolver implements the semantic core: module resolution across
// URI schemes, flattened member tables over inheritance chains, and the
// lexical scope walk with flow-sensitive narrowing. Every entry point is a
// total function; misses come back as nil results, never as errors.
package resolver

import (
	"strings"

	"pklsense/internal/engine/cache"
	"pklsense/internal/engine/project"
	"pklsense/internal/engine/syntax"
	"pklsense/internal/engine/syntax/parse"
	"pklsense/internal/engine/vfs"
)

// Engine owns no state of its own beyond the injected registries; all
// derived data lives in the memoization store and per-node caches.
type Engine struct {
	Registry *vfs.Registry
	Store    *cache.Store
	Locator  project.Locator
}

func New(reg *vfs.Registry, store *cache.Store, locator project.Locator) *Engine {
	return &Engine{Registry: reg, Store: store, Locator: locator}
}

// Module pairs a parsed tree with its owning file. Root survives parse
// errors as a partial tree; a Module is only nil when the file itself is a
// miss.
type Module struct {
	File *vfs.VirtualFile
	Root *syntax.Node
}

func (m *Module) URI() string {
	if m == nil || m.File == nil {
		return ""
	}
	return m.File.URI()
}

func (m *Module) Tracker() *cache.Tracker {
	if m == nil || m.File == nil {
		return nil
	}
	return m.File.Tracker()
}

// ModuleForFile parses a file's current content, memoized against the
// file's modification tracker.
func (e *Engine) ModuleForFile(f *vfs.VirtualFile) *Module {
	if f == nil {
		return nil
	}
	key := "module:" + f.URI()
	return cache.GetOrCompute(e.Store, key, []*cache.Tracker{f.Tracker()}, func() *Module {
		data, ok := f.Contents()
		if !ok {
			return nil
		}
		root, _ := parse.Module(f.URI(), data)
		return &Module{File: f, Root: root}
	})
}

func (e *Engine) ModuleForURI(uri string) *Module {
	return e.ModuleForFile(e.Registry.Resolve(uri))
}

// ModuleOf maps any node back to the Module owning it.
func (e *Engine) ModuleOf(n *syntax.Node) *Module {
	root := syntax.EnclosingModule(n)
	if root == nil || root.ModuleInfo == nil {
		return nil
	}
	f := e.Registry.Resolve(root.ModuleInfo.URI)
	if f == nil {
		// Trees built outside the registry (tests, ephemeral fragments)
		// still get a module wrapper, just without invalidation.
		return &Module{Root: root}
	}
	m := e.ModuleForFile(f)
	if m == nil || m.Root != root {
		// The node belongs to an older parse; wrap it as-is so in-flight
		// queries stay internally consistent.
		return &Module{File: f, Root: root}
	}
	return m
}

// BaseModule is the universal top-level scope (pkl:base).
func (e *Engine) BaseModule() *Module {
	return e.ModuleForURI("pkl:base")
}

// Supermodule resolves the extends/amends clause. Modules without one have
// no supermodule; the base module is a separate lookup tier, not an
// implicit parent.
func (e *Engine) Supermodule(m *Module) *Module {
	if m == nil || m.Root == nil || m.Root.ModuleInfo == nil {
		return nil
	}
	if m.Root.ModuleInfo.ExtendsURI == "" {
		return nil
	}
	super := e.ResolveModule(m.Root.ModuleInfo.ExtendsURI, m)
	if super != nil && super.Root == m.Root {
		return nil
	}
	return super
}

// ShortName is the module's display name: the declared name's last segment,
// or the file name without extension.
func (m *Module) ShortName() string {
	if m == nil || m.Root == nil {
		return ""
	}
	if info := m.Root.ModuleInfo; info != nil && info.DeclaredName != "" {
		parts := strings.Split(info.DeclaredName, ".")
		return parts[len(parts)-1]
	}
	return strings.TrimSuffix(vfs.BaseName(m.URI()), ".pkl")
}

// Imports lists the module's import members.
func (m *Module) Imports() []*syntax.Node {
	if m == nil || m.Root == nil {
		return nil
	}
	var out []*syntax.Node
	for _, member := range m.Root.Members {
		if member.Kind == syntax.KindImport {
			out = append(out, member)
		}
	}
	return out
}

// ImportName is the name an import is referenced by: its alias, or the
// imported file's base name with the extension and any non-identifier
// characters stripped.
func ImportName(imp *syntax.Node) string {
	if imp.Name != "" {
		return imp.Name
	}
	base := vfs.BaseName(imp.Text)
	base = strings.TrimSuffix(base, ".pkl")
	var b strings.Builder
	for _, r := range base {
		if r == '_' || r == '$' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(b.Len() > 0 && r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ClassByName finds a directly declared class or typealias.
func (m *Module) ClassByName(name string) *syntax.Node {
	if m == nil || m.Root == nil {
		return nil
	}
	for _, member := range m.Root.Members {
		if (member.Kind == syntax.KindClass || member.Kind == syntax.KindTypeAlias) && member.Name == name {
			return member
		}
	}
	return nil
}
