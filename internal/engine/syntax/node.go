// Package syntax defines the typed node tree the semantic engine works on.
// The tree is produced by a parser (the bundled subset parser in
// syntax/parse, or an external CST adapter targeting the same shapes) and is
// immutable once SetParents has run. Node identity is pointer identity;
// derived data hangs off each node's memoization slot.
package syntax

import (
	"pklsense/internal/engine/cache"
)

type Pos struct {
	Line int // 1-based
	Col  int // 1-based
}

type Span struct {
	Start Pos
	End   Pos
}

func (s Span) Contains(p Pos) bool {
	if p.Line < s.Start.Line || p.Line > s.End.Line {
		return false
	}
	if p.Line == s.Start.Line && p.Col < s.Start.Col {
		return false
	}
	if p.Line == s.End.Line && p.Col > s.End.Col {
		return false
	}
	return true
}

type NodeKind uint8

const (
	KindInvalid NodeKind = iota

	// Declarations.
	KindModule
	KindImport
	KindClass
	KindTypeAlias
	KindProperty
	KindMethod
	KindParameter

	// Object bodies and their generator members.
	KindObjectBody
	KindObjectElement
	KindForGenerator
	KindWhenGenerator

	// Type annotations.
	KindDeclaredType
	KindUnionType
	KindNullableType

	// Expressions.
	KindIdentRef
	KindMemberAccess
	KindAmendExpr
	KindLetExpr
	KindIfExpr
	KindFunctionLiteral
	KindBinary
	KindUnary
	KindParen
	KindThis
	KindModuleExpr
	KindNullLiteral
	KindBoolLiteral
	KindIntLiteral
	KindFloatLiteral
	KindStringLiteral
)

var kindNames = map[NodeKind]string{
	KindInvalid:         "invalid",
	KindModule:          "module",
	KindImport:          "import",
	KindClass:           "class",
	KindTypeAlias:       "typealias",
	KindProperty:        "property",
	KindMethod:          "method",
	KindParameter:       "parameter",
	KindObjectBody:      "objectBody",
	KindObjectElement:   "objectElement",
	KindForGenerator:    "forGenerator",
	KindWhenGenerator:   "whenGenerator",
	KindDeclaredType:    "declaredType",
	KindUnionType:       "unionType",
	KindNullableType:    "nullableType",
	KindIdentRef:        "identRef",
	KindMemberAccess:    "memberAccess",
	KindAmendExpr:       "amendExpr",
	KindLetExpr:         "letExpr",
	KindIfExpr:          "ifExpr",
	KindFunctionLiteral: "functionLiteral",
	KindBinary:          "binary",
	KindUnary:           "unary",
	KindParen:           "paren",
	KindThis:            "this",
	KindModuleExpr:      "moduleExpr",
	KindNullLiteral:     "null",
	KindBoolLiteral:     "bool",
	KindIntLiteral:      "int",
	KindFloatLiteral:    "float",
	KindStringLiteral:   "string",
}

func (k NodeKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

type Modifier uint16

const (
	ModLocal Modifier = 1 << iota
	ModHidden
	ModAbstract
	ModOpen
	ModFixed
	ModConst
	ModExternal

	// FlagGlob marks an import* clause; FlagCall marks an ident/member access
	// that is a method invocation.
	FlagGlob
	FlagCall
)

func (m Modifier) Has(flag Modifier) bool { return m&flag != 0 }

type Op uint8

const (
	OpNone Op = iota
	OpAnd
	OpOr
	OpEq
	OpNe
	OpLt
	OpGt
	OpLe
	OpGe
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpIs
	OpAs
	OpNullCoalesce
	OpNot     // unary
	OpNonNull // unary, postfix !!
	OpNeg     // unary minus
)

// ModuleInfo carries the file-level facts only module roots have.
type ModuleInfo struct {
	URI          string
	DeclaredName string // from the `module x.y.z` clause, may be empty
	ExtendsURI   string // target of the extends/amends clause, may be empty
	IsAmend      bool
}

// Node is the single node shape for every kind; which fields are meaningful
// depends on Kind. Fat nodes keep child access direct and let a Kind switch
// stay exhaustive where it matters.
type Node struct {
	Kind   NodeKind
	Span   Span
	Parent *Node

	Name     string // declaration/reference/parameter name, import alias
	Text     string // raw text: import target, string literal value
	IntVal   int64
	FloatVal float64
	BoolVal  bool
	Op       Op
	Mods     Modifier

	TypeNode *Node   // type annotation; RHS of is/as; `new T` type
	Value    *Node   // property/typealias/let value expression
	Body     *Node   // object body, or expression body for let/lambda/method
	Cond     *Node
	Then     *Node
	Else     *Node
	Left     *Node // binary LHS; unary operand
	Right    *Node
	Recv     *Node   // member access receiver; amended expression
	Extends  *Node   // class supertype clause (a DeclaredType)
	KeyVar   *Node   // for-generator key binding (Parameter)
	ValueVar *Node   // for-generator value binding (Parameter)
	Params   []*Node // method/lambda parameters
	Members  []*Node // module/class/object-body members
	Args     []*Node // call arguments or type arguments

	ModuleInfo *ModuleInfo // only on KindModule

	memo cache.NodeCache
}

// Memo exposes the per-node memoization slot.
func (n *Node) Memo() *cache.NodeCache { return &n.memo }

// Children returns the node's children in source order. The order is fixed
// per kind and matches the field layout above.
func (n *Node) Children() []*Node {
	var out []*Node
	add := func(c *Node) {
		if c != nil {
			out = append(out, c)
		}
	}
	add(n.Extends)
	for _, p := range n.Params {
		add(p)
	}
	add(n.KeyVar)
	add(n.ValueVar)
	add(n.TypeNode)
	add(n.Recv)
	add(n.Left)
	add(n.Right)
	add(n.Cond)
	add(n.Then)
	add(n.Else)
	add(n.Value)
	for _, a := range n.Args {
		add(a)
	}
	for _, m := range n.Members {
		add(m)
	}
	add(n.Body)
	return out
}

// SetParents wires parent links across the whole subtree. Parsers call this
// once on the module root; after that the tree is treated as immutable.
func SetParents(root *Node) {
	for _, c := range root.Children() {
		c.Parent = root
		SetParents(c)
	}
}

// Walk visits the subtree in depth-first source order. Returning false from
// fn prunes the node's children.
func Walk(n *Node, fn func(*Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range n.Children() {
		Walk(c, fn)
	}
}

// EnclosingModule walks up to the module root. Every node reachable from a
// parsed module has one; a detached fragment returns nil.
func EnclosingModule(n *Node) *Node {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Kind == KindModule {
			return cur
		}
	}
	return nil
}

// ModuleURI reports the URI of the module owning n, or "" for fragments.
func ModuleURI(n *Node) string {
	if mod := EnclosingModule(n); mod != nil && mod.ModuleInfo != nil {
		return mod.ModuleInfo.URI
	}
	return ""
}

// IsExpr reports whether the kind is an expression node.
func IsExpr(k NodeKind) bool {
	switch k {
	case KindIdentRef, KindMemberAccess, KindAmendExpr, KindLetExpr, KindIfExpr,
		KindFunctionLiteral, KindBinary, KindUnary, KindParen, KindThis,
		KindModuleExpr, KindNullLiteral, KindBoolLiteral, KindIntLiteral,
		KindFloatLiteral, KindStringLiteral:
		return true
	}
	return false
}

// IsTypeNode reports whether the kind is a type annotation node.
func IsTypeNode(k NodeKind) bool {
	switch k {
	case KindDeclaredType, KindUnionType, KindNullableType:
		return true
	}
	return false
}

// IsTypeDefinition reports whether the node can act as a type: a class, a
// type alias, or a module used as a type.
func IsTypeDefinition(n *Node) bool {
	switch n.Kind {
	case KindClass, KindTypeAlias, KindModule:
		return true
	}
	return false
}

// NodeAt finds the innermost node whose span contains p. Used by editor
// features to map a cursor position to a reference node.
func NodeAt(root *Node, p Pos) *Node {
	if root == nil || !root.Span.Contains(p) {
		return nil
	}
	best := root
	for _, c := range root.Children() {
		if hit := NodeAt(c, p); hit != nil {
			best = hit
			break
		}
	}
	return best
}
