package resolver

import (
	"pklsense/internal/engine/cache"
	"pklsense/internal/engine/syntax"
	"pklsense/internal/shared/observability"
)

// MemberTable is the flattened, inheritance-resolved view of a type
// definition (a class, or a module used as a type). Local members are
// excluded; they are lexical, not part of the type.
//
// Properties holds "definitions": the declaration whose explicit type
// annotation governs type inference. LeafProperties holds the most-derived
// override regardless of annotation. A type-less redeclaration replaces the
// leaf but not the definition.
type MemberTable struct {
	Properties     map[string]*syntax.Node
	LeafProperties map[string]*syntax.Node
	Methods        map[string]*syntax.Node

	order []tableEntry
	deps  []*cache.Tracker
}

type tableEntry struct {
	name     string
	isMethod bool
}

func newMemberTable() *MemberTable {
	return &MemberTable{
		Properties:     map[string]*syntax.Node{},
		LeafProperties: map[string]*syntax.Node{},
		Methods:        map[string]*syntax.Node{},
	}
}

// Deps is the union of the modification trackers of every file contributing
// to the table: the declaring file and the whole inheritance chain above it.
func (t *MemberTable) Deps() []*cache.Tracker { return t.deps }

func (t *MemberTable) clone() *MemberTable {
	out := newMemberTable()
	for k, v := range t.Properties {
		out.Properties[k] = v
	}
	for k, v := range t.LeafProperties {
		out.LeafProperties[k] = v
	}
	for k, v := range t.Methods {
		out.Methods[k] = v
	}
	out.order = append([]tableEntry(nil), t.order...)
	out.deps = append([]*cache.Tracker(nil), t.deps...)
	return out
}

func (t *MemberTable) addMethod(name string, decl *syntax.Node) {
	if _, seen := t.Methods[name]; !seen {
		t.order = append(t.order, tableEntry{name: name, isMethod: true})
	}
	t.Methods[name] = decl
}

func (t *MemberTable) addProperty(name string, decl *syntax.Node) {
	if _, seen := t.LeafProperties[name]; !seen {
		t.order = append(t.order, tableEntry{name: name, isMethod: false})
	}
	// Leaf: last declaration wins unconditionally.
	t.LeafProperties[name] = decl
	// Definition: only an annotated redeclaration (or a first declaration)
	// establishes a new definition.
	if decl.TypeNode != nil {
		t.Properties[name] = decl
		return
	}
	if _, defined := t.Properties[name]; !defined {
		t.Properties[name] = decl
	}
}

// Visit looks up one name (when name != "") or iterates every entry in
// insertion order. The visitor returning false stops the iteration; Visit
// reports whether it was stopped, which implements first-match-wins for
// callers layering several tables.
func (t *MemberTable) Visit(name string, isProperty bool, visit func(name string, decl *syntax.Node) bool) bool {
	if t == nil {
		return false
	}
	if name != "" {
		if isProperty {
			if decl, ok := t.LeafProperties[name]; ok {
				return !visit(name, decl)
			}
		} else if decl, ok := t.Methods[name]; ok {
			return !visit(name, decl)
		}
		return false
	}
	for _, entry := range t.order {
		if entry.isMethod == isProperty {
			continue
		}
		var decl *syntax.Node
		if entry.isMethod {
			decl = t.Methods[entry.name]
		} else {
			decl = t.LeafProperties[entry.name]
		}
		if !visit(entry.name, decl) {
			return true
		}
	}
	return false
}

// MemberTableFor computes (or returns the cached) flattened table for a
// class or module node. Inheritance cycles are cut by the seen set, keeping
// recursion depth bounded by the chain length.
func (e *Engine) MemberTableFor(typeDef *syntax.Node) *MemberTable {
	return e.memberTableFor(typeDef, map[*syntax.Node]bool{})
}

func (e *Engine) memberTableFor(typeDef *syntax.Node, seen map[*syntax.Node]bool) *MemberTable {
	if typeDef == nil || seen[typeDef] {
		return newMemberTable()
	}
	seen[typeDef] = true

	return cache.NodeGetOrComputeDeps(typeDef.Memo(), "memberTable", func() (*MemberTable, []*cache.Tracker) {
		observability.MemberTableBuilds.Inc()
		table := e.buildMemberTable(typeDef, seen)
		return table, table.deps
	})
}

func (e *Engine) buildMemberTable(typeDef *syntax.Node, seen map[*syntax.Node]bool) *MemberTable {
	var table *MemberTable
	if super := e.superDefinition(typeDef); super != nil && !seen[super] {
		table = e.memberTableFor(super, seen).clone()
	} else {
		table = newMemberTable()
	}

	if owner := e.ModuleOf(typeDef); owner != nil && owner.Tracker() != nil {
		table.deps = cache.Union(table.deps, []*cache.Tracker{owner.Tracker()})
	}
	if typeDef.Kind == syntax.KindModule {
		// Supermodule resolution can go through the project's dependency
		// map, so an edited PklProject invalidates the table too.
		if proj := e.projectFor(e.ModuleOf(typeDef)); proj != nil && proj.Tracker() != nil {
			table.deps = cache.Union(table.deps, []*cache.Tracker{proj.Tracker()})
		}
	}

	for _, member := range typeDef.Members {
		if member.Mods.Has(syntax.ModLocal) {
			continue
		}
		switch member.Kind {
		case syntax.KindMethod:
			table.addMethod(member.Name, member)
		case syntax.KindProperty:
			table.addProperty(member.Name, member)
		}
	}
	return table
}

// superDefinition returns the node the type inherits from: the extends
// clause target for classes (falling back to nothing for root classes), or
// the supermodule for modules.
func (e *Engine) superDefinition(typeDef *syntax.Node) *syntax.Node {
	switch typeDef.Kind {
	case syntax.KindModule:
		if super := e.Supermodule(e.ModuleOf(typeDef)); super != nil {
			return super.Root
		}
		return nil
	case syntax.KindClass:
		if typeDef.Extends == nil {
			return nil
		}
		decl := e.ResolveTypeName(typeDef.Extends.Name, e.ModuleOf(typeDef))
		if decl == typeDef {
			return nil
		}
		return decl
	}
	return nil
}
