package resolver

import (
	"os"
	"path/filepath"
	"testing"

	"pklsense/internal/engine/cache"
	"pklsense/internal/engine/project"
	"pklsense/internal/engine/syntax"
	"pklsense/internal/engine/vfs"
)

func newTestEngine(t *testing.T, cfg vfs.Config) *Engine {
	t.Helper()
	return New(vfs.NewRegistry(cfg), cache.NewStore(), project.CacheLocator{})
}

func parseEphemeral(t *testing.T, e *Engine, src string) *Module {
	t.Helper()
	m := e.ModuleForFile(e.Registry.NewEphemeral([]byte(src)))
	if m == nil || m.Root == nil {
		t.Fatalf("no module for source %q", src)
	}
	return m
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func findNode(root *syntax.Node, pred func(*syntax.Node) bool) *syntax.Node {
	var out *syntax.Node
	syntax.Walk(root, func(n *syntax.Node) bool {
		if out == nil && pred(n) {
			out = n
		}
		return out == nil
	})
	return out
}

func findRef(t *testing.T, root *syntax.Node, name string) *syntax.Node {
	t.Helper()
	ref := findNode(root, func(n *syntax.Node) bool {
		return n.Kind == syntax.KindIdentRef && n.Name == name
	})
	if ref == nil {
		t.Fatalf("no reference to %q in tree", name)
	}
	return ref
}

func findAccess(t *testing.T, root *syntax.Node, name string) *syntax.Node {
	t.Helper()
	acc := findNode(root, func(n *syntax.Node) bool {
		return n.Kind == syntax.KindMemberAccess && n.Name == name
	})
	if acc == nil {
		t.Fatalf("no member access .%s in tree", name)
	}
	return acc
}

func findProperty(t *testing.T, root *syntax.Node, name string) *syntax.Node {
	t.Helper()
	prop := findNode(root, func(n *syntax.Node) bool {
		return n.Kind == syntax.KindProperty && n.Name == name
	})
	if prop == nil {
		t.Fatalf("no property %q in tree", name)
	}
	return prop
}

func TestObjectBodyShadowsModuleLocal(t *testing.T) {
	e := newTestEngine(t, vfs.Config{})
	m := parseEphemeral(t, e, `
local x = 1
foo {
  x = 2
  bar = x
}
`)
	bar := findProperty(t, m.Root, "bar")
	res := e.ResolveReference(bar.Value)
	if res.Decl == nil {
		t.Fatal("x did not resolve")
	}
	if res.Mode != ModeObject {
		t.Fatalf("mode = %v, want %v", res.Mode, ModeObject)
	}
	if res.Decl.Parent == nil || res.Decl.Parent.Kind != syntax.KindObjectBody {
		t.Fatalf("resolved to %v, want the object literal's x", res.Decl.Kind)
	}
}

func TestModuleLocalResolvesWhenUnshadowed(t *testing.T) {
	e := newTestEngine(t, vfs.Config{})
	m := parseEphemeral(t, e, `
local x = 1
bar = x
`)
	res := e.ResolveReference(findProperty(t, m.Root, "bar").Value)
	if res.Decl == nil || res.Mode != ModeModule {
		t.Fatalf("got (%v, %v), want module-level x", res.Decl, res.Mode)
	}
	if !res.Decl.Mods.Has(syntax.ModLocal) {
		t.Fatal("resolved declaration is not the local property")
	}
}

func TestLetBinding(t *testing.T) {
	e := newTestEngine(t, vfs.Config{})
	m := parseEphemeral(t, e, `x = let (y = 1) y + 2`)
	res := e.ResolveReference(findRef(t, m.Root, "y"))
	if res.Mode != ModeBinding {
		t.Fatalf("mode = %v, want %v", res.Mode, ModeBinding)
	}
	if res.Decl == nil || res.Decl.Kind != syntax.KindParameter {
		t.Fatal("let binding did not resolve to its parameter")
	}
}

func TestMethodParameterAndClassMember(t *testing.T) {
	e := newTestEngine(t, vfs.Config{})
	m := parseEphemeral(t, e, `
class Bird {
  name: String
  function greet(who: String): String = who + name
}
`)
	who := e.ResolveReference(findRef(t, m.Root, "who"))
	if who.Mode != ModeBinding {
		t.Fatalf("who: mode = %v, want %v", who.Mode, ModeBinding)
	}
	name := e.ResolveReference(findRef(t, m.Root, "name"))
	if name.Mode != ModeClass {
		t.Fatalf("name: mode = %v, want %v", name.Mode, ModeClass)
	}
	if name.Decl != findProperty(t, m.Root, "name") {
		t.Fatal("name resolved to the wrong declaration")
	}
}

func TestInheritedClassMember(t *testing.T) {
	e := newTestEngine(t, vfs.Config{})
	m := parseEphemeral(t, e, `
class Bird {
  name: String
}
class Parrot extends Bird {
  function label(): String = name
}
`)
	res := e.ResolveReference(findRef(t, m.Root, "name"))
	if res.Mode != ModeClass {
		t.Fatalf("mode = %v, want %v", res.Mode, ModeClass)
	}
	if res.Decl != findProperty(t, m.Root, "name") {
		t.Fatal("inherited member resolved to the wrong declaration")
	}
}

func TestGeneratorBindingAndIterableScope(t *testing.T) {
	e := newTestEngine(t, vfs.Config{})
	m := parseEphemeral(t, e, `
items = 3
nums {
  items = 7
  for (n in items) {
    value = n
  }
}
`)
	n := e.ResolveReference(findRef(t, m.Root, "n"))
	if n.Mode != ModeBinding || n.Decl == nil || n.Decl.Kind != syntax.KindParameter {
		t.Fatalf("generator variable: got (%v, %v)", n.Decl, n.Mode)
	}

	// The iterable is evaluated outside the object the generator populates,
	// so it must see the module's items, not the sibling entry.
	items := e.ResolveReference(findRef(t, m.Root, "items"))
	if items.Mode != ModeModule {
		t.Fatalf("iterable: mode = %v, want %v", items.Mode, ModeModule)
	}
	if items.Decl.Parent == nil || items.Decl.Parent.Kind != syntax.KindModule {
		t.Fatal("iterable resolved inside the object body")
	}
}

func TestBaseModuleTier(t *testing.T) {
	e := newTestEngine(t, vfs.Config{})
	m := parseEphemeral(t, e, `x = NaN`)
	res := e.ResolveReference(findProperty(t, m.Root, "x").Value)
	if res.Mode != ModeBase {
		t.Fatalf("mode = %v, want %v", res.Mode, ModeBase)
	}
	ty := e.TypeOf(findProperty(t, m.Root, "x").Value)
	if ty == nil || ty.Decl == nil || ty.Decl.Name != "Float" {
		t.Fatalf("NaN type = %v, want Float", ty)
	}
}

func TestInheritanceDefinitionVersusLeaf(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "parent.pkl", "port: Int = 8080\n")
	childPath := writeFile(t, dir, "child.pkl", "extends \"parent.pkl\"\nport = 9090\n")

	e := newTestEngine(t, vfs.Config{})
	child := e.ModuleForURI(vfs.PathToURI(childPath))
	if child == nil {
		t.Fatal("child module did not load")
	}
	table := e.MemberTableFor(child.Root)

	leaf, ok := table.LeafProperties["port"]
	if !ok || syntax.ModuleURI(leaf) != child.URI() {
		t.Fatal("leaf should be the child's override")
	}
	def, ok := table.Properties["port"]
	if !ok || def.TypeNode == nil {
		t.Fatal("definition should be the parent's annotated declaration")
	}

	// The type-less override still types as Int via its definition.
	ty := e.DeclaredType(leaf)
	if ty == nil || ty.Decl == nil || ty.Decl.Name != "Int" {
		t.Fatalf("override type = %v, want Int", ty)
	}
}

func TestFlowNarrowingIsTest(t *testing.T) {
	e := newTestEngine(t, vfs.Config{})
	m := parseEphemeral(t, e, `
function f(v: Int|String) = if (v is String) v.length else 0
`)
	acc := findAccess(t, m.Root, "length")

	recv := e.TypeOf(acc.Recv)
	if recv == nil || recv.Decl == nil || recv.Decl.Name != "String" {
		t.Fatalf("narrowed receiver = %v, want String", recv)
	}

	res := e.ResolveReference(acc)
	if res.Decl == nil || res.Mode != ModeQualified {
		t.Fatalf("length: got (%v, %v)", res.Decl, res.Mode)
	}
	if ty := e.TypeOf(acc); ty == nil || ty.Decl == nil || ty.Decl.Name != "Int" {
		t.Fatalf("length type = %v, want Int", ty)
	}
}

func TestFlowNarrowingNullComparison(t *testing.T) {
	e := newTestEngine(t, vfs.Config{})
	m := parseEphemeral(t, e, `
function g(s: String?) = if (s != null) s else "fallback"
`)
	ifExpr := findNode(m.Root, func(n *syntax.Node) bool {
		return n.Kind == syntax.KindIfExpr
	})
	if ifExpr == nil {
		t.Fatal("no if expression")
	}
	thenTy := e.TypeOf(ifExpr.Then)
	if thenTy == nil || thenTy.Decl == nil || thenTy.Decl.Name != "String" {
		t.Fatalf("then branch type = %v, want String stripped of Null", thenTy)
	}
	if full := e.TypeOf(findRef(t, m.Root, "s")); full != nil && !full.IsUnion() {
		// The parameter reference in the condition itself is not narrowed.
		t.Fatalf("condition reference type = %v, want String|Null", full)
	}
}

func TestFlowNarrowingNegatedCondition(t *testing.T) {
	e := newTestEngine(t, vfs.Config{})
	m := parseEphemeral(t, e, `
function h(s: String?) = if (!(s == null)) s else "fallback"
`)
	ifExpr := findNode(m.Root, func(n *syntax.Node) bool {
		return n.Kind == syntax.KindIfExpr
	})
	thenTy := e.TypeOf(ifExpr.Then)
	if thenTy == nil || thenTy.Decl == nil || thenTy.Decl.Name != "String" {
		t.Fatalf("then branch type = %v, want String", thenTy)
	}
}

func TestReferenceCycleStaysUnknown(t *testing.T) {
	e := newTestEngine(t, vfs.Config{})
	m := parseEphemeral(t, e, "x = y\ny = x\n")
	if ty := e.TypeOf(findProperty(t, m.Root, "x").Value); ty != nil {
		t.Fatalf("cyclic reference typed as %v, want unknown", ty)
	}
}

func TestAliasExpansion(t *testing.T) {
	e := newTestEngine(t, vfs.Config{})
	m := parseEphemeral(t, e, `
typealias Port = Int
typealias Loop = Loop
p: Port = 8080
l: Loop = 1
`)
	p := e.DeclaredType(findProperty(t, m.Root, "p"))
	if p == nil || p.Decl == nil || p.Decl.Name != "Int" {
		t.Fatalf("alias type = %v, want Int", p)
	}
	if l := e.DeclaredType(findProperty(t, m.Root, "l")); l != nil {
		t.Fatalf("cyclic alias typed as %v, want unknown", l)
	}
}

func TestUnresolvedReference(t *testing.T) {
	e := newTestEngine(t, vfs.Config{})
	m := parseEphemeral(t, e, `x = nothingOfTheSort`)
	res := e.ResolveReference(findProperty(t, m.Root, "x").Value)
	if res.Decl != nil || res.Mode != ModeNone {
		t.Fatalf("got (%v, %v), want a miss", res.Decl, res.Mode)
	}
}

func TestVisitUnqualifiedEnumeratesTiers(t *testing.T) {
	e := newTestEngine(t, vfs.Config{})
	m := parseEphemeral(t, e, `
local greeting = "hi"
count: Int = 1
`)
	prop := findProperty(t, m.Root, "count")
	seen := map[string]bool{}
	e.VisitUnqualified(prop, true, func(name string, decl *syntax.Node) bool {
		seen[name] = true
		return true
	})
	for _, want := range []string{"greeting", "count", "NaN"} {
		if !seen[want] {
			t.Fatalf("completion walk missed %q", want)
		}
	}
}
