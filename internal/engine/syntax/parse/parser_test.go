package parse

import (
	"testing"

	"pklsense/internal/engine/syntax"
)

func mustParse(t *testing.T, src string) *syntax.Node {
	t.Helper()
	mod, err := Module("file:///test.pkl", []byte(src))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	return mod
}

func findMember(mod *syntax.Node, name string) *syntax.Node {
	for _, m := range mod.Members {
		if m.Name == name {
			return m
		}
	}
	return nil
}

func TestModuleHeader(t *testing.T) {
	mod := mustParse(t, `module com.example.config

extends "base.pkl"

import "lib.pkl"
import* "configs/*.pkl" as all

foo = 1
`)

	if mod.ModuleInfo.DeclaredName != "com.example.config" {
		t.Errorf("declared name = %q", mod.ModuleInfo.DeclaredName)
	}
	if mod.ModuleInfo.ExtendsURI != "base.pkl" || mod.ModuleInfo.IsAmend {
		t.Errorf("extends = %q amend=%v", mod.ModuleInfo.ExtendsURI, mod.ModuleInfo.IsAmend)
	}

	var imports []*syntax.Node
	for _, m := range mod.Members {
		if m.Kind == syntax.KindImport {
			imports = append(imports, m)
		}
	}
	if len(imports) != 2 {
		t.Fatalf("got %d imports, expected 2", len(imports))
	}
	if imports[0].Text != "lib.pkl" || imports[0].Mods.Has(syntax.FlagGlob) {
		t.Errorf("first import = %q glob=%v", imports[0].Text, imports[0].Mods.Has(syntax.FlagGlob))
	}
	if !imports[1].Mods.Has(syntax.FlagGlob) || imports[1].Name != "all" {
		t.Errorf("glob import not recognized: %+v", imports[1])
	}
}

func TestTopLevelPropertyLosesNoModifier(t *testing.T) {
	mod := mustParse(t, `local x = 1`)
	prop := findMember(mod, "x")
	if prop == nil {
		t.Fatal("property x not parsed")
	}
	if !prop.Mods.Has(syntax.ModLocal) {
		t.Error("local modifier dropped on leading property")
	}
}

func TestClassWithExtendsAndMembers(t *testing.T) {
	mod := mustParse(t, `
abstract class Animal {
  name: String
  function speak(): String = "..."
}

class Dog extends Animal {
  name = "rex"
  hidden trained: Boolean = true
}
`)
	dog := findMember(mod, "Dog")
	if dog == nil || dog.Kind != syntax.KindClass {
		t.Fatal("class Dog not parsed")
	}
	if dog.Extends == nil || dog.Extends.Name != "Animal" {
		t.Fatalf("Dog extends = %+v", dog.Extends)
	}

	animal := findMember(mod, "Animal")
	if !animal.Mods.Has(syntax.ModAbstract) {
		t.Error("abstract modifier missing on Animal")
	}
	if len(animal.Members) != 2 {
		t.Fatalf("Animal has %d members, expected 2", len(animal.Members))
	}
	if animal.Members[1].Kind != syntax.KindMethod || animal.Members[1].Name != "speak" {
		t.Errorf("method speak not parsed: %+v", animal.Members[1])
	}

	var trained *syntax.Node
	for _, m := range dog.Members {
		if m.Name == "trained" {
			trained = m
		}
	}
	if trained == nil || !trained.Mods.Has(syntax.ModHidden) {
		t.Error("hidden modifier missing on trained")
	}
}

func TestUnionAndNullableTypes(t *testing.T) {
	mod := mustParse(t, `v: Int|String?`)
	prop := findMember(mod, "v")
	if prop.TypeNode.Kind != syntax.KindUnionType {
		t.Fatalf("type kind = %v", prop.TypeNode.Kind)
	}
	alts := prop.TypeNode.Members
	if len(alts) != 2 {
		t.Fatalf("union has %d alternatives", len(alts))
	}
	if alts[0].Name != "Int" {
		t.Errorf("first alternative = %q", alts[0].Name)
	}
	if alts[1].Kind != syntax.KindNullableType || alts[1].TypeNode.Name != "String" {
		t.Errorf("second alternative not String?: %+v", alts[1])
	}
}

func TestObjectBodyGenerators(t *testing.T) {
	mod := mustParse(t, `
hosts {
  for (name, port in servers) {
    label = name
  }
  when (enabled) {
    active = true
  } else {
    active = false
  }
  ["key"] = 1
  local shortcut = 2
}
`)
	body := findMember(mod, "hosts").Body
	if body == nil {
		t.Fatal("object body not parsed")
	}

	forGen := body.Members[0]
	if forGen.Kind != syntax.KindForGenerator {
		t.Fatalf("first member kind = %v", forGen.Kind)
	}
	if forGen.KeyVar.Name != "name" || forGen.ValueVar.Name != "port" {
		t.Errorf("for bindings = %q, %q", forGen.KeyVar.Name, forGen.ValueVar.Name)
	}
	if forGen.Value == nil || forGen.Value.Name != "servers" {
		t.Error("for iterable not parsed")
	}

	whenGen := body.Members[1]
	if whenGen.Kind != syntax.KindWhenGenerator || whenGen.Else == nil {
		t.Fatalf("when generator not parsed: %+v", whenGen)
	}

	if body.Members[2].Kind != syntax.KindObjectElement || body.Members[2].Left == nil {
		t.Error("entry member not parsed")
	}
	if !body.Members[3].Mods.Has(syntax.ModLocal) {
		t.Error("local object property modifier dropped")
	}
}

func TestExpressions(t *testing.T) {
	mod := mustParse(t, `
function f(v: Int|String) = if (v is String) v.length else 0
check = x != null && !(y == null)
pick = let (n = base.count) n + 1
mapper = (a, b) -> a + b
obj = new Dog { name = "fido" }
chained = value!!.text
`)

	f := findMember(mod, "f")
	ifExpr := f.Body
	if ifExpr.Kind != syntax.KindIfExpr {
		t.Fatalf("f body kind = %v", ifExpr.Kind)
	}
	if ifExpr.Cond.Op != syntax.OpIs || ifExpr.Cond.TypeNode.Name != "String" {
		t.Error("is-test not parsed")
	}
	if ifExpr.Then.Kind != syntax.KindMemberAccess || ifExpr.Then.Name != "length" {
		t.Error("member access in then-branch not parsed")
	}

	check := findMember(mod, "check").Value
	if check.Op != syntax.OpAnd {
		t.Fatalf("check op = %v", check.Op)
	}
	if check.Left.Op != syntax.OpNe || check.Left.Right.Kind != syntax.KindNullLiteral {
		t.Error("null test not parsed")
	}
	if check.Right.Op != syntax.OpNot || check.Right.Left.Kind != syntax.KindParen {
		t.Error("negated paren not parsed")
	}

	let := findMember(mod, "pick").Value
	if let.Kind != syntax.KindLetExpr || let.Params[0].Name != "n" {
		t.Fatalf("let not parsed: %+v", let)
	}
	if let.Body.Op != syntax.OpAdd {
		t.Error("let body not parsed")
	}

	lambda := findMember(mod, "mapper").Value
	if lambda.Kind != syntax.KindFunctionLiteral || len(lambda.Params) != 2 {
		t.Fatalf("lambda not parsed: %+v", lambda)
	}

	obj := findMember(mod, "obj").Value
	if obj.Kind != syntax.KindAmendExpr || obj.TypeNode.Name != "Dog" {
		t.Fatalf("new-expr not parsed: %+v", obj)
	}

	chained := findMember(mod, "chained").Value
	if chained.Kind != syntax.KindMemberAccess || chained.Recv.Op != syntax.OpNonNull {
		t.Error("!! postfix not parsed")
	}
}

func TestParentLinksAndSpans(t *testing.T) {
	mod := mustParse(t, `foo { bar = baz }`)

	var baz *syntax.Node
	syntax.Walk(mod, func(n *syntax.Node) bool {
		if n.Kind == syntax.KindIdentRef && n.Name == "baz" {
			baz = n
		}
		return true
	})
	if baz == nil {
		t.Fatal("baz reference not found")
	}
	if baz.Parent == nil || baz.Parent.Kind != syntax.KindProperty || baz.Parent.Name != "bar" {
		t.Error("parent link not wired")
	}
	if syntax.EnclosingModule(baz) != mod {
		t.Error("EnclosingModule did not reach root")
	}

	at := syntax.NodeAt(mod, syntax.Pos{Line: 1, Col: 14})
	if at == nil || at.Kind != syntax.KindIdentRef {
		t.Errorf("NodeAt(1,14) = %v", at)
	}
}

func TestParseErrorStillReturnsTree(t *testing.T) {
	mod, err := Module("file:///broken.pkl", []byte("foo = = 1\nbar = 2"))
	if err == nil {
		t.Fatal("expected parse error")
	}
	if mod == nil || findMember(mod, "bar") == nil {
		t.Error("partial tree missing trailing member")
	}
}
