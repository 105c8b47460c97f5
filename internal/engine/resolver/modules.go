package resolver

import (
	"os"
	"strings"

	"github.com/gobwas/glob"

	"pklsense/internal/engine/project"
	"pklsense/internal/engine/syntax"
	"pklsense/internal/engine/vfs"
	"pklsense/internal/shared/observability"
)

// ResolveImport resolves a single (non-glob) import member to its module.
func (e *Engine) ResolveImport(imp *syntax.Node) *Module {
	if imp == nil || imp.Kind != syntax.KindImport || imp.Mods.Has(syntax.FlagGlob) {
		return nil
	}
	return e.ResolveModule(imp.Text, e.ModuleOf(imp))
}

// ResolveImportGlob expands a glob import into the matched modules, in walk
// order.
func (e *Engine) ResolveImportGlob(imp *syntax.Node) []*Module {
	if imp == nil || imp.Kind != syntax.KindImport || !imp.Mods.Has(syntax.FlagGlob) {
		return nil
	}
	return e.ResolveModuleGlob(imp.Text, e.ModuleOf(imp))
}

// ResolveModule resolves an import target string relative to the importing
// module. Every failure mode is a nil result.
func (e *Engine) ResolveModule(target string, from *Module) *Module {
	if target == "" {
		return nil
	}
	uri := e.resolveModuleURI(target, from)
	scheme := uriScheme(target)
	if uri == "" {
		observability.ModulesResolved.WithLabelValues(scheme, "miss").Inc()
		return nil
	}
	m := e.ModuleForURI(uri)
	if m == nil {
		observability.ModulesResolved.WithLabelValues(scheme, "miss").Inc()
		return nil
	}
	observability.ModulesResolved.WithLabelValues(scheme, "hit").Inc()
	return m
}

func uriScheme(target string) string {
	switch {
	case strings.HasPrefix(target, "..."):
		return "tripledot"
	case strings.HasPrefix(target, "@"):
		return "dependency"
	}
	if i := strings.Index(target, ":"); i > 0 {
		return target[:i]
	}
	return "relative"
}

// resolveModuleURI turns an import target into the URI the registry should
// load. Absolute targets with a known scheme pass through; everything else is
// interpreted relative to the importing module.
func (e *Engine) resolveModuleURI(target string, from *Module) string {
	switch {
	case strings.HasPrefix(target, "pkl:"),
		strings.HasPrefix(target, "file://"),
		strings.HasPrefix(target, "https://"),
		strings.HasPrefix(target, "modulepath:"):
		return target
	case strings.HasPrefix(target, "package:"):
		return e.resolvePackageURI(target, from)
	case strings.HasPrefix(target, "@"):
		return e.resolveDependency(target, from)
	case strings.HasPrefix(target, "..."):
		return e.resolveTripleDot(target, from)
	}
	if from == nil || from.URI() == "" {
		return ""
	}
	uri, ok := vfs.JoinURI(from.URI(), target)
	if !ok {
		e.Registry.MarkNegative(from.URI() + "\x00" + target)
		return ""
	}
	return uri
}

// resolvePackageURI resolves an absolute package:...#/path URI through the
// importing module's project, falling back to an undeclared dependency keyed
// only by the package base so the cache locator can still find it.
func (e *Engine) resolvePackageURI(target string, from *Module) string {
	base, fragment, ok := project.SplitPackageURI(target)
	if !ok || fragment == "" {
		return ""
	}
	proj := e.projectFor(from)
	dep, found := proj.DependencyForPackage(base)
	if !found {
		dep = project.Dependency{PackageURI: base}
	}
	root := e.dependencyRoot(dep, proj)
	if root == "" {
		return ""
	}
	return root + fragment
}

// resolveDependency handles `@name` and `@name/path` notation against the
// nearest enclosing PklProject. A bare `@name` addresses the dependency's
// root module, <root>/<name>.pkl.
func (e *Engine) resolveDependency(target string, from *Module) string {
	rest := strings.TrimPrefix(target, "@")
	name := rest
	if slash := strings.Index(rest, "/"); slash >= 0 {
		name, rest = rest[:slash], rest[slash+1:]
	} else {
		rest = ""
	}
	if name == "" {
		return ""
	}
	proj := e.projectFor(from)
	if proj == nil {
		return ""
	}
	dep, ok := proj.Dependencies[name]
	if !ok {
		return ""
	}
	root := e.dependencyRoot(dep, proj)
	if root == "" {
		return ""
	}
	if rest == "" {
		return root + "/" + dep.Name + ".pkl"
	}
	return root + "/" + rest
}

func (e *Engine) dependencyRoot(dep project.Dependency, proj *project.Project) string {
	if e.Locator == nil {
		return ""
	}
	return e.Locator.ResolveDependencyRoot(dep, proj)
}

// resolveTripleDot searches ancestor directories of the importing file for
// the given path, nearest first. `...` alone re-imports the file's own name
// from an ancestor, which is how a module layers itself over a template one
// directory up. The importing file itself is never a candidate.
func (e *Engine) resolveTripleDot(target string, from *Module) string {
	if from == nil || from.URI() == "" {
		return ""
	}
	rest := strings.TrimPrefix(target, "...")
	rest = strings.TrimPrefix(rest, "/")
	if rest == "" {
		rest = vfs.BaseName(from.URI())
	}
	dir := vfs.ParentURI(from.URI())
	for {
		candidate := dir + "/" + rest
		if candidate != from.URI() && e.uriExists(candidate) {
			return candidate
		}
		parent := vfs.ParentURI(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// uriExists checks for content without forcing a parse. Local files stat the
// disk; everything else goes through the registry.
func (e *Engine) uriExists(uri string) bool {
	if path, ok := vfs.URIToPath(uri); ok {
		info, err := os.Stat(path)
		return err == nil && !info.IsDir()
	}
	f := e.Registry.Resolve(uri)
	if f == nil {
		return false
	}
	_, ok := f.Contents()
	return ok
}

// ResolveModuleGlob expands a glob pattern into modules. Only file-backed
// roots participate: relative patterns walk from the importing file's
// directory, `package:` and `@dep` patterns from the dependency root.
func (e *Engine) ResolveModuleGlob(pattern string, from *Module) []*Module {
	if pattern == "" {
		return nil
	}
	var rootURI, rel string
	switch {
	case strings.HasPrefix(pattern, "package:"):
		base, fragment, ok := project.SplitPackageURI(pattern)
		if !ok || fragment == "" {
			return nil
		}
		proj := e.projectFor(from)
		dep, found := proj.DependencyForPackage(base)
		if !found {
			dep = project.Dependency{PackageURI: base}
		}
		rootURI = e.dependencyRoot(dep, proj)
		rel = strings.TrimPrefix(fragment, "/")
	case strings.HasPrefix(pattern, "@"):
		rest := strings.TrimPrefix(pattern, "@")
		slash := strings.Index(rest, "/")
		if slash < 0 {
			return nil
		}
		name := rest[:slash]
		rel = rest[slash+1:]
		proj := e.projectFor(from)
		if proj == nil {
			return nil
		}
		dep, ok := proj.Dependencies[name]
		if !ok {
			return nil
		}
		rootURI = e.dependencyRoot(dep, proj)
	default:
		if from == nil {
			return nil
		}
		rootURI = vfs.ParentURI(from.URI())
		rel = pattern
	}
	if !strings.HasPrefix(rootURI, "file://") {
		return nil
	}

	// Anchor the walk at the pattern's literal directory prefix so `../x/*`
	// and deep prefixes do not depend on matching relative paths upward.
	prefix, rel := splitGlobPrefix(rel)
	if prefix != "" {
		joined, ok := vfs.JoinURI(rootURI+"/", prefix+"/")
		if !ok {
			return nil
		}
		rootURI = strings.TrimSuffix(joined, "/")
	}

	g, err := glob.Compile(rel, '/')
	if err != nil {
		e.Registry.MarkNegative(rootURI + "\x00" + pattern)
		return nil
	}
	var out []*Module
	for _, uri := range e.Registry.LocalFiles(rootURI) {
		relPath := strings.TrimPrefix(uri, rootURI+"/")
		if relPath == uri || !g.Match(relPath) {
			continue
		}
		if m := e.ModuleForURI(uri); m != nil {
			out = append(out, m)
		}
	}
	return out
}

// splitGlobPrefix separates the leading path segments that contain no glob
// metacharacters from the part that needs matching.
func splitGlobPrefix(pattern string) (prefix, rest string) {
	segments := strings.Split(pattern, "/")
	i := 0
	for ; i < len(segments)-1; i++ {
		if strings.ContainsAny(segments[i], "*?[{") {
			break
		}
	}
	return strings.Join(segments[:i], "/"), strings.Join(segments[i:], "/")
}

// GlobElementType computes the common module type of a glob expansion: the
// nearest module every match extends, transitively, falling back to pkl:base
// when the chains share nothing.
func (e *Engine) GlobElementType(modules []*Module) *Module {
	if len(modules) == 0 {
		return e.BaseModule()
	}
	cur := modules[0]
	for _, m := range modules[1:] {
		cur = e.commonAncestor(cur, m)
	}
	return cur
}

func (e *Engine) commonAncestor(a, b *Module) *Module {
	seen := map[*syntax.Node]bool{}
	for x := a; x != nil && x.Root != nil && !seen[x.Root]; x = e.Supermodule(x) {
		seen[x.Root] = true
		if e.inSupermoduleChain(x, b) {
			return x
		}
	}
	return e.BaseModule()
}

func (e *Engine) inSupermoduleChain(target, m *Module) bool {
	if target == nil || target.Root == nil {
		return false
	}
	seen := map[*syntax.Node]bool{}
	for y := m; y != nil && y.Root != nil && !seen[y.Root]; y = e.Supermodule(y) {
		seen[y.Root] = true
		if y.Root == target.Root {
			return true
		}
	}
	return false
}

// projectFor locates the nearest enclosing PklProject of a module's file.
func (e *Engine) projectFor(m *Module) *project.Project {
	if m == nil || m.File == nil {
		return nil
	}
	return project.Find(e.Registry, e.Store, m.File.URI())
}
