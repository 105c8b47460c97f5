package resolver

import (
	"strings"

	"pklsense/internal/engine/syntax"
)

// Type is the engine's static type: a class, a module used as a type, or a
// union of those. Nullable T is represented as T|Null. The zero value (nil)
// means unknown, over which every lookup is a miss rather than an error.
type Type struct {
	// Decl is a class node or a module root node for non-union types.
	Decl *syntax.Node
	// Alts is non-empty for union types; Decl is nil then.
	Alts []*Type
}

func classType(decl *syntax.Node) *Type {
	if decl == nil {
		return nil
	}
	return &Type{Decl: decl}
}

func unionOf(alts []*Type) *Type {
	var flat []*Type
	for _, a := range alts {
		if a == nil {
			continue
		}
		if len(a.Alts) > 0 {
			flat = append(flat, a.Alts...)
			continue
		}
		flat = append(flat, a)
	}
	switch len(flat) {
	case 0:
		return nil
	case 1:
		return flat[0]
	}
	return &Type{Alts: flat}
}

func (t *Type) IsUnion() bool { return t != nil && len(t.Alts) > 0 }

// ContainsClass reports whether the type (or one of its union alternatives)
// is the given declaration.
func (t *Type) ContainsClass(decl *syntax.Node) bool {
	if t == nil {
		return false
	}
	if t.Decl == decl {
		return true
	}
	for _, a := range t.Alts {
		if a.ContainsClass(decl) {
			return true
		}
	}
	return false
}

// typing carries the set of declarations currently being typed, cutting
// reference cycles (`x = y; y = x`) into an unknown type instead of
// unbounded recursion.
type typing struct {
	inProgress map[*syntax.Node]bool
}

func newTyping() *typing {
	return &typing{inProgress: map[*syntax.Node]bool{}}
}

func (ty *typing) enter(decl *syntax.Node) bool {
	if ty.inProgress[decl] {
		return false
	}
	ty.inProgress[decl] = true
	return true
}

func (ty *typing) leave(decl *syntax.Node) {
	delete(ty.inProgress, decl)
}

// WithoutNull strips Null alternatives, the narrowing effect of `!= null`
// and `!!`.
func (e *Engine) WithoutNull(t *Type) *Type {
	if t == nil || !t.IsUnion() {
		return t
	}
	nullDecl := e.stdlibClass("Null")
	var kept []*Type
	for _, a := range t.Alts {
		if a.Decl != nil && a.Decl == nullDecl {
			continue
		}
		kept = append(kept, a)
	}
	return unionOf(kept)
}

func (e *Engine) stdlibClass(name string) *syntax.Node {
	return e.BaseModule().ClassByName(name)
}

// ResolveTypeName resolves a (possibly dotted) type name in a module's
// scope: the module's own classes and aliases, then imports by name, then
// the supermodule chain, then pkl:base.
func (e *Engine) ResolveTypeName(name string, context *Module) *syntax.Node {
	if name == "" || context == nil {
		return nil
	}
	if dot := strings.Index(name, "."); dot >= 0 {
		head, rest := name[:dot], name[dot+1:]
		for _, imp := range context.Imports() {
			if ImportName(imp) != head {
				continue
			}
			if target := e.ResolveImport(imp); target != nil {
				return e.ResolveTypeName(rest, target)
			}
			return nil
		}
		return nil
	}

	seen := map[*Module]bool{}
	for m := context; m != nil && !seen[m]; m = e.Supermodule(m) {
		seen[m] = true
		if decl := m.ClassByName(name); decl != nil {
			return decl
		}
		if m == context {
			for _, imp := range context.Imports() {
				if ImportName(imp) == name {
					if target := e.ResolveImport(imp); target != nil {
						return target.Root
					}
					return nil
				}
			}
		}
	}
	if base := e.BaseModule(); base != nil && !seen[base] {
		return base.ClassByName(name)
	}
	return nil
}

// TypeFromAnnotation converts a type-annotation node into a Type, expanding
// aliases with a seen set so alias cycles terminate.
func (e *Engine) TypeFromAnnotation(ann *syntax.Node, context *Module) *Type {
	return e.typeFromAnnotation(ann, context, map[*syntax.Node]bool{})
}

func (e *Engine) typeFromAnnotation(ann *syntax.Node, context *Module, seen map[*syntax.Node]bool) *Type {
	if ann == nil {
		return nil
	}
	switch ann.Kind {
	case syntax.KindNullableType:
		inner := e.typeFromAnnotation(ann.TypeNode, context, seen)
		return unionOf([]*Type{inner, classType(e.stdlibClass("Null"))})
	case syntax.KindUnionType:
		alts := make([]*Type, 0, len(ann.Members))
		for _, m := range ann.Members {
			alts = append(alts, e.typeFromAnnotation(m, context, seen))
		}
		return unionOf(alts)
	case syntax.KindDeclaredType:
		decl := e.ResolveTypeName(ann.Name, context)
		if decl == nil {
			return nil
		}
		if decl.Kind == syntax.KindTypeAlias {
			if seen[decl] {
				return nil
			}
			seen[decl] = true
			return e.typeFromAnnotation(decl.TypeNode, e.ModuleOf(decl), seen)
		}
		return classType(decl)
	}
	return nil
}

// DeclaredType is the type of a declaration: its annotation if present,
// otherwise the annotation of the member's definition up the inheritance
// chain, otherwise the inferred type of its value expression.
func (e *Engine) DeclaredType(decl *syntax.Node) *Type {
	return e.declaredType(decl, newTyping())
}

func (e *Engine) declaredType(decl *syntax.Node, ty *typing) *Type {
	if decl == nil || !ty.enter(decl) {
		return nil
	}
	defer ty.leave(decl)

	context := e.ModuleOf(decl)
	switch decl.Kind {
	case syntax.KindProperty:
		if decl.TypeNode != nil {
			return e.TypeFromAnnotation(decl.TypeNode, context)
		}
		// A type-less override inherits its definition's annotation.
		if owner := enclosingTypeDefinition(decl); owner != nil {
			table := e.MemberTableFor(owner)
			if def, ok := table.Properties[decl.Name]; ok && def != decl && def.TypeNode != nil {
				return e.TypeFromAnnotation(def.TypeNode, e.ModuleOf(def))
			}
		}
		if decl.Value != nil {
			return e.typeOf(decl.Value, ty)
		}
		if decl.Body != nil {
			return classType(e.stdlibClass("Dynamic"))
		}
		return nil
	case syntax.KindMethod:
		if decl.TypeNode != nil {
			return e.TypeFromAnnotation(decl.TypeNode, context)
		}
		if decl.Body != nil {
			return e.typeOf(decl.Body, ty)
		}
		return nil
	case syntax.KindParameter:
		if decl.TypeNode != nil {
			return e.TypeFromAnnotation(decl.TypeNode, context)
		}
		if let := decl.Parent; let != nil && let.Kind == syntax.KindLetExpr && let.Value != nil {
			return e.typeOf(let.Value, ty)
		}
		return nil
	case syntax.KindImport:
		if decl.Mods.Has(syntax.FlagGlob) {
			// A glob import evaluates to a mapping from matched path to
			// module; GlobElementType gives the common value type.
			return classType(e.stdlibClass("Mapping"))
		}
		if target := e.ResolveImport(decl); target != nil && target.Root != nil {
			return classType(target.Root)
		}
		return nil
	case syntax.KindClass, syntax.KindModule:
		return classType(decl)
	}
	return nil
}

// enclosingTypeDefinition finds the class or module whose member table a
// declaration contributes to.
func enclosingTypeDefinition(n *syntax.Node) *syntax.Node {
	for cur := n.Parent; cur != nil; cur = cur.Parent {
		if cur.Kind == syntax.KindClass || cur.Kind == syntax.KindModule {
			return cur
		}
	}
	return nil
}

// TypeOf infers the static type of an expression, applying flow-sensitive
// narrowing for simple references. Unknown stays nil.
func (e *Engine) TypeOf(expr *syntax.Node) *Type {
	return e.typeOf(expr, newTyping())
}

func (e *Engine) typeOf(expr *syntax.Node, ty *typing) *Type {
	if expr == nil {
		return nil
	}
	switch expr.Kind {
	case syntax.KindStringLiteral:
		return classType(e.stdlibClass("String"))
	case syntax.KindIntLiteral:
		return classType(e.stdlibClass("Int"))
	case syntax.KindFloatLiteral:
		return classType(e.stdlibClass("Float"))
	case syntax.KindBoolLiteral:
		return classType(e.stdlibClass("Boolean"))
	case syntax.KindNullLiteral:
		return classType(e.stdlibClass("Null"))
	case syntax.KindParen:
		return e.typeOf(expr.Left, ty)
	case syntax.KindIdentRef:
		res := e.resolveReference(expr, ty)
		if res.Decl == nil {
			return nil
		}
		declared := e.declaredType(res.Decl, ty)
		if narrowed := e.narrowedType(expr, expr.Name, declared); narrowed != nil {
			return narrowed
		}
		return declared
	case syntax.KindMemberAccess:
		res := e.resolveReference(expr, ty)
		if res.Decl == nil {
			return nil
		}
		return e.declaredType(res.Decl, ty)
	case syntax.KindUnary:
		switch expr.Op {
		case syntax.OpNot:
			return classType(e.stdlibClass("Boolean"))
		case syntax.OpNonNull:
			return e.WithoutNull(e.typeOf(expr.Left, ty))
		case syntax.OpNeg:
			return e.typeOf(expr.Left, ty)
		}
		return nil
	case syntax.KindBinary:
		switch expr.Op {
		case syntax.OpAnd, syntax.OpOr, syntax.OpEq, syntax.OpNe,
			syntax.OpLt, syntax.OpGt, syntax.OpLe, syntax.OpGe, syntax.OpIs:
			return classType(e.stdlibClass("Boolean"))
		case syntax.OpAs:
			return e.TypeFromAnnotation(expr.TypeNode, e.ModuleOf(expr))
		case syntax.OpNullCoalesce:
			return unionOf([]*Type{e.WithoutNull(e.typeOf(expr.Left, ty)), e.typeOf(expr.Right, ty)})
		default:
			return e.typeOf(expr.Left, ty)
		}
	case syntax.KindIfExpr:
		return unionOf([]*Type{e.typeOf(expr.Then, ty), e.typeOf(expr.Else, ty)})
	case syntax.KindLetExpr:
		return e.typeOf(expr.Body, ty)
	case syntax.KindAmendExpr:
		if expr.TypeNode != nil {
			return e.TypeFromAnnotation(expr.TypeNode, e.ModuleOf(expr))
		}
		if expr.Recv != nil {
			return e.typeOf(expr.Recv, ty)
		}
		return classType(e.stdlibClass("Dynamic"))
	case syntax.KindThis:
		return e.receiverType(expr, ty)
	case syntax.KindModuleExpr:
		if m := e.ModuleOf(expr); m != nil {
			return classType(m.Root)
		}
		return nil
	}
	return nil
}

// ReceiverType is the statically inferred type of implicit `this` at a
// node: the type of the nearest enclosing object literal, or the enclosing
// class, or the module itself.
func (e *Engine) ReceiverType(n *syntax.Node) *Type {
	return e.receiverType(n, newTyping())
}

func (e *Engine) receiverType(n *syntax.Node, ty *typing) *Type {
	for cur := n.Parent; cur != nil; cur = cur.Parent {
		switch cur.Kind {
		case syntax.KindObjectBody:
			if t := e.objectBodyType(cur, ty); t != nil {
				return t
			}
		case syntax.KindClass:
			return classType(cur)
		case syntax.KindModule:
			return classType(cur)
		}
	}
	return nil
}

// objectBodyType types the object a body amends: the annotated type of the
// owning property, the class of a new-expression, or the type of the
// amended receiver. Generator bodies amend the object their generator
// populates.
func (e *Engine) objectBodyType(body *syntax.Node, ty *typing) *Type {
	owner := body.Parent
	for owner != nil && (owner.Kind == syntax.KindForGenerator || owner.Kind == syntax.KindWhenGenerator) {
		body = owner.Parent
		if body == nil {
			return nil
		}
		owner = body.Parent
	}
	if owner == nil {
		return nil
	}
	switch owner.Kind {
	case syntax.KindProperty:
		return e.declaredType(owner, ty)
	case syntax.KindAmendExpr:
		return e.typeOf(owner, ty)
	}
	return nil
}
