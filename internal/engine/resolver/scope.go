package resolver

import (
	"pklsense/internal/engine/syntax"
)

// LookupMode tags the scope tier a name resolved in. Tools use it to rank
// completions and to distinguish lexical hits from implicit-this hits.
type LookupMode uint8

const (
	ModeNone LookupMode = iota
	// ModeBinding covers let/lambda/method parameters and generator variables.
	ModeBinding
	// ModeObject is a property of an enclosing object literal.
	ModeObject
	// ModeClass is a member of the enclosing class, including inherited ones.
	ModeClass
	// ModeModule is an import or member of the module's inheritance chain.
	ModeModule
	// ModeBase is a member of pkl:base.
	ModeBase
	// ModeThis is a member of the inferred receiver type of implicit `this`.
	ModeThis
	// ModeQualified is a member of an explicit receiver expression.
	ModeQualified
)

func (m LookupMode) String() string {
	switch m {
	case ModeBinding:
		return "binding"
	case ModeObject:
		return "object"
	case ModeClass:
		return "class"
	case ModeModule:
		return "module"
	case ModeBase:
		return "base"
	case ModeThis:
		return "this"
	case ModeQualified:
		return "qualified"
	}
	return "none"
}

type Result struct {
	Decl *syntax.Node
	Mode LookupMode
}

// ResolveReference resolves an identifier or member access to the
// declaration it denotes. Unresolvable references come back as the zero
// Result.
func (e *Engine) ResolveReference(ref *syntax.Node) Result {
	return e.resolveReference(ref, newTyping())
}

func (e *Engine) resolveReference(ref *syntax.Node, ty *typing) Result {
	if ref == nil {
		return Result{}
	}
	isProperty := !ref.Mods.Has(syntax.FlagCall)
	switch ref.Kind {
	case syntax.KindIdentRef:
		var found *syntax.Node
		mode := e.visitUnqualified(ref, isProperty, func(name string, decl *syntax.Node) bool {
			if name != ref.Name {
				return true
			}
			found = decl
			return false
		}, ty)
		if found == nil {
			return Result{}
		}
		return Result{Decl: found, Mode: mode}
	case syntax.KindMemberAccess:
		return e.resolveQualified(e.typeOf(ref.Recv, ty), ref.Name, isProperty)
	}
	return Result{}
}

// ResolveQualified looks a member up on an explicit receiver type. Union
// receivers resolve against each alternative, first match wins.
func (e *Engine) ResolveQualified(recv *Type, name string, isProperty bool) Result {
	return e.resolveQualified(recv, name, isProperty)
}

func (e *Engine) resolveQualified(recv *Type, name string, isProperty bool) Result {
	var found *syntax.Node
	stopped := e.visitTypeMembers(recv, isProperty, func(n string, decl *syntax.Node) bool {
		if n != name {
			return true
		}
		found = decl
		return false
	})
	if !stopped || found == nil {
		return Result{}
	}
	return Result{Decl: found, Mode: ModeQualified}
}

// VisitUnqualified enumerates every name visible at a node, innermost tier
// first: bindings, enclosing object literals, the enclosing class, the
// module chain with its imports, pkl:base, and finally the members of the
// implicit receiver. The visitor returning false stops the walk; the return
// value is the tier it stopped in.
func (e *Engine) VisitUnqualified(at *syntax.Node, isProperty bool, visit func(name string, decl *syntax.Node) bool) LookupMode {
	return e.visitUnqualified(at, isProperty, visit, newTyping())
}

func (e *Engine) visitUnqualified(at *syntax.Node, isProperty bool, visit func(name string, decl *syntax.Node) bool, ty *typing) LookupMode {
	if at == nil {
		return ModeNone
	}

	// A reference inside a generator's iterable or condition belongs to the
	// scope outside the body the generator populates, so the next object
	// body crossed on the way out is skipped.
	skipBody := false

	child := at
	for cur := at.Parent; cur != nil; child, cur = cur, cur.Parent {
		switch cur.Kind {
		case syntax.KindLetExpr, syntax.KindFunctionLiteral, syntax.KindMethod:
			if child != cur.Body || !isProperty {
				break
			}
			for _, param := range cur.Params {
				if !visit(param.Name, param) {
					return ModeBinding
				}
			}
		case syntax.KindForGenerator:
			if child == cur.Value {
				skipBody = true
				break
			}
			if child != cur.Body || !isProperty {
				break
			}
			for _, v := range []*syntax.Node{cur.KeyVar, cur.ValueVar} {
				if v != nil && !visit(v.Name, v) {
					return ModeBinding
				}
			}
		case syntax.KindWhenGenerator:
			if child == cur.Cond {
				skipBody = true
			}
		case syntax.KindObjectBody:
			if skipBody {
				skipBody = false
				break
			}
			if !isProperty {
				break
			}
			for _, member := range cur.Members {
				if member.Kind != syntax.KindProperty || member.Name == "" {
					continue
				}
				if !visit(member.Name, member) {
					return ModeObject
				}
			}
		case syntax.KindClass:
			if e.visitDefinitionMembers(cur, isProperty, visit) {
				return ModeClass
			}
		case syntax.KindModule:
			if isProperty {
				for _, member := range cur.Members {
					if member.Kind != syntax.KindImport {
						continue
					}
					if !visit(ImportName(member), member) {
						return ModeModule
					}
				}
			}
			if e.visitDefinitionMembers(cur, isProperty, visit) {
				return ModeModule
			}
		}
	}

	if base := e.BaseModule(); base != nil && base.Root != syntax.EnclosingModule(at) {
		if e.MemberTableFor(base.Root).Visit("", isProperty, visit) {
			return ModeBase
		}
	}

	if recv := e.receiverType(at, ty); recv != nil {
		if e.visitTypeMembers(recv, isProperty, visit) {
			return ModeThis
		}
	}
	return ModeNone
}

// visitDefinitionMembers enumerates a class or module as a lexical scope:
// its own local members first, then the flattened table covering non-local
// members and the whole inheritance chain.
func (e *Engine) visitDefinitionMembers(typeDef *syntax.Node, isProperty bool, visit func(name string, decl *syntax.Node) bool) bool {
	for _, member := range typeDef.Members {
		if !member.Mods.Has(syntax.ModLocal) {
			continue
		}
		if isProperty && member.Kind == syntax.KindProperty {
			if !visit(member.Name, member) {
				return true
			}
		}
		if !isProperty && member.Kind == syntax.KindMethod {
			if !visit(member.Name, member) {
				return true
			}
		}
	}
	return e.MemberTableFor(typeDef).Visit("", isProperty, visit)
}

// visitTypeMembers enumerates the members of a type's definition, walking
// union alternatives in order.
func (e *Engine) visitTypeMembers(t *Type, isProperty bool, visit func(name string, decl *syntax.Node) bool) bool {
	if t == nil {
		return false
	}
	if t.IsUnion() {
		for _, alt := range t.Alts {
			if e.visitTypeMembers(alt, isProperty, visit) {
				return true
			}
		}
		return false
	}
	if t.Decl == nil {
		return false
	}
	switch t.Decl.Kind {
	case syntax.KindClass, syntax.KindModule:
		return e.MemberTableFor(t.Decl).Visit("", isProperty, visit)
	}
	return false
}
