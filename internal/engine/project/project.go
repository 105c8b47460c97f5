// Package project discovers PklProject files and exposes the declared
// dependency map that backs `@name` import notation. Downloading packages is
// the package manager's job; this layer only locates roots that are already
// on disk (or declared as local paths) and stays a miss otherwise.
package project

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/mod/semver"

	"pklsense/internal/engine/cache"
	"pklsense/internal/engine/syntax"
	"pklsense/internal/engine/syntax/parse"
	"pklsense/internal/engine/vfs"
)

const ProjectFileName = "PklProject"

type Dependency struct {
	Name string
	// PackageURI is the versioned package base, e.g.
	// package://example.com/birds@0.5.0, for remote dependencies.
	PackageURI string
	// Version extracted from PackageURI, validated as semver.
	Version string
	// LocalPath is set instead of PackageURI for path dependencies declared
	// relative to the PklProject directory.
	LocalPath string
}

type Project struct {
	// FileURI addresses the PklProject file, DirURI its directory.
	FileURI string
	DirURI  string
	// Dependencies keyed by declared name.
	Dependencies map[string]Dependency

	file *vfs.VirtualFile
}

func (p *Project) Tracker() *cache.Tracker {
	if p == nil || p.file == nil {
		return nil
	}
	return p.file.Tracker()
}

// Locator resolves a declared dependency to the URI of its root directory.
// Implementations return "" when the package is not available; the resolver
// treats that as an import miss.
type Locator interface {
	ResolveDependencyRoot(dep Dependency, proj *Project) string
}

// CacheLocator finds downloaded packages in the package manager's local
// cache, one directory per versioned package URI. Local-path dependencies
// resolve against the project directory without touching the cache.
type CacheLocator struct {
	CacheDir string
}

func (l CacheLocator) ResolveDependencyRoot(dep Dependency, proj *Project) string {
	if dep.LocalPath != "" {
		if proj == nil {
			return ""
		}
		root, ok := vfs.JoinURI(proj.DirURI+"/", dep.LocalPath)
		if !ok {
			return ""
		}
		return strings.TrimSuffix(root, "/")
	}
	if dep.PackageURI == "" || l.CacheDir == "" {
		return ""
	}
	dir := filepath.Join(l.CacheDir, url.QueryEscape(dep.PackageURI))
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return ""
	}
	return vfs.PathToURI(dir)
}

// Find walks up from a module's file URI looking for the nearest enclosing
// PklProject. Results are memoized per directory against the project file's
// tracker so edits to PklProject re-derive the dependency map.
func Find(reg *vfs.Registry, store *cache.Store, fileURI string) *Project {
	if !strings.HasPrefix(fileURI, "file://") {
		return nil
	}
	dir := vfs.ParentURI(fileURI)
	for {
		candidate := dir + "/" + ProjectFileName
		if path, ok := vfs.URIToPath(candidate); ok {
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return load(reg, store, candidate, dir)
			}
		}
		parent := vfs.ParentURI(dir)
		if parent == dir {
			return nil
		}
		dir = parent
	}
}

func load(reg *vfs.Registry, store *cache.Store, fileURI, dirURI string) *Project {
	file := reg.Resolve(fileURI)
	if file == nil {
		return nil
	}
	key := "project:" + fileURI
	return cache.GetOrCompute(store, key, []*cache.Tracker{file.Tracker()}, func() *Project {
		proj := &Project{
			FileURI:      fileURI,
			DirURI:       dirURI,
			Dependencies: map[string]Dependency{},
			file:         file,
		}
		data, ok := file.Contents()
		if !ok {
			return proj
		}
		tree, _ := parse.Module(fileURI, data)
		if tree != nil {
			collectDependencies(tree, proj.Dependencies)
		}
		return proj
	})
}

// collectDependencies reads the `dependencies { ["name"] { uri = "..." } }`
// block. A uri with a package scheme is a remote dependency; anything else
// is treated as a path relative to the project directory.
func collectDependencies(tree *syntax.Node, out map[string]Dependency) {
	var depsBody *syntax.Node
	for _, m := range tree.Members {
		if m.Kind == syntax.KindProperty && m.Name == "dependencies" && m.Body != nil {
			depsBody = m.Body
			break
		}
	}
	if depsBody == nil {
		return
	}
	for _, entry := range depsBody.Members {
		if entry.Kind != syntax.KindObjectElement || entry.Left == nil || entry.Left.Kind != syntax.KindStringLiteral {
			continue
		}
		name := entry.Left.Text
		uri := entryURI(entry)
		if name == "" || uri == "" {
			continue
		}
		dep := Dependency{Name: name}
		if strings.HasPrefix(uri, "package:") {
			dep.PackageURI = uri
			dep.Version = packageVersion(uri)
		} else {
			dep.LocalPath = uri
		}
		out[name] = dep
	}
}

func entryURI(entry *syntax.Node) string {
	if entry.Body == nil {
		return ""
	}
	for _, m := range entry.Body.Members {
		if m.Kind == syntax.KindProperty && m.Name == "uri" &&
			m.Value != nil && m.Value.Kind == syntax.KindStringLiteral {
			return m.Value.Text
		}
	}
	return ""
}

// packageVersion extracts and validates the @version suffix of a package
// URI. Invalid versions come back empty; the dependency stays usable since
// the cache key is the full URI.
func packageVersion(packageURI string) string {
	at := strings.LastIndex(packageURI, "@")
	if at < 0 {
		return ""
	}
	version := packageURI[at+1:]
	if !semver.IsValid("v" + version) {
		return ""
	}
	return version
}

// SplitPackageURI splits `package:...#/path` into the versioned base and the
// fragment path. The fragment must start with `/`.
func SplitPackageURI(uri string) (base, fragment string, ok bool) {
	if !strings.HasPrefix(uri, "package:") {
		return "", "", false
	}
	hash := strings.Index(uri, "#")
	if hash < 0 {
		return uri, "", true
	}
	base, fragment = uri[:hash], uri[hash+1:]
	if !strings.HasPrefix(fragment, "/") {
		return "", "", false
	}
	return base, fragment, true
}

// DependencyForPackage finds the declared dependency matching a package base
// URI, ignoring the name it was declared under.
func (p *Project) DependencyForPackage(base string) (Dependency, bool) {
	if p == nil {
		return Dependency{}, false
	}
	for _, dep := range p.Dependencies {
		if dep.PackageURI == base {
			return dep, true
		}
	}
	return Dependency{}, false
}
