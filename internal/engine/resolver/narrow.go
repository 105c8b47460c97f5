package resolver

import (
	"pklsense/internal/engine/syntax"
)

// Flow-sensitive narrowing: a reference inside a branch guarded by an
// `is`/`as`-style test or a null comparison on the same name resolves
// against the narrowed type, not the declared one. Facts are extracted from
// the guarding condition under the polarity of the branch, with De Morgan
// handling for `!`, `&&` and `||`.

type narrowKind uint8

const (
	narrowToType narrowKind = iota
	narrowNonNull
	narrowToNull
)

type narrowFact struct {
	kind     narrowKind
	typeNode *syntax.Node // for narrowToType
}

// narrowedType finds the innermost guarding condition carrying a fact about
// name and applies it to the declared type. Nil means no narrowing applies.
func (e *Engine) narrowedType(ref *syntax.Node, name string, declared *Type) *Type {
	child := ref
	for cur := ref.Parent; cur != nil; child, cur = cur, cur.Parent {
		var cond *syntax.Node
		var positive bool

		switch cur.Kind {
		case syntax.KindIfExpr:
			switch child {
			case cur.Then:
				cond, positive = cur.Cond, true
			case cur.Else:
				cond, positive = cur.Cond, false
			}
		case syntax.KindWhenGenerator:
			switch child {
			case cur.Then:
				cond, positive = cur.Cond, true
			case cur.Else:
				cond, positive = cur.Cond, false
			}
		case syntax.KindBinary:
			// Short-circuit operands: the right side of && runs only when
			// the left held; the right side of || only when it did not.
			if child == cur.Right {
				switch cur.Op {
				case syntax.OpAnd:
					cond, positive = cur.Left, true
				case syntax.OpOr:
					cond, positive = cur.Left, false
				}
			}
		case syntax.KindMethod, syntax.KindModule:
			// Facts never cross a method or module boundary.
			return nil
		}

		if cond == nil {
			continue
		}
		if fact := factFor(cond, name, positive); fact != nil {
			return e.applyFact(fact, cond, declared)
		}
	}
	return nil
}

func unwrapParens(expr *syntax.Node) *syntax.Node {
	for expr != nil && expr.Kind == syntax.KindParen {
		expr = expr.Left
	}
	return expr
}

// factFor extracts the narrowing fact cond establishes for name when the
// condition evaluated to `positive`.
func factFor(cond *syntax.Node, name string, positive bool) *narrowFact {
	cond = unwrapParens(cond)
	if cond == nil {
		return nil
	}

	switch cond.Kind {
	case syntax.KindUnary:
		if cond.Op == syntax.OpNot {
			return factFor(cond.Left, name, !positive)
		}
	case syntax.KindBinary:
		switch cond.Op {
		case syntax.OpAnd:
			// a && b held: both hold. Its negation certifies neither side.
			if positive {
				if f := factFor(cond.Left, name, true); f != nil {
					return f
				}
				return factFor(cond.Right, name, true)
			}
		case syntax.OpOr:
			// !(a || b) == !a && !b.
			if !positive {
				if f := factFor(cond.Left, name, false); f != nil {
					return f
				}
				return factFor(cond.Right, name, false)
			}
		case syntax.OpIs:
			if positive && refersTo(cond.Left, name) && cond.TypeNode != nil {
				return &narrowFact{kind: narrowToType, typeNode: cond.TypeNode}
			}
		case syntax.OpEq, syntax.OpNe:
			target, isNullTest := nullComparisonTarget(cond)
			if !isNullTest || !refersTo(target, name) {
				return nil
			}
			isNull := (cond.Op == syntax.OpEq) == positive
			if isNull {
				return &narrowFact{kind: narrowToNull}
			}
			return &narrowFact{kind: narrowNonNull}
		}
	}
	return nil
}

func refersTo(expr *syntax.Node, name string) bool {
	expr = unwrapParens(expr)
	return expr != nil && expr.Kind == syntax.KindIdentRef && expr.Name == name
}

// nullComparisonTarget returns the non-null side of `x == null`/`null == x`.
func nullComparisonTarget(cond *syntax.Node) (*syntax.Node, bool) {
	left, right := unwrapParens(cond.Left), unwrapParens(cond.Right)
	if right != nil && right.Kind == syntax.KindNullLiteral {
		return left, true
	}
	if left != nil && left.Kind == syntax.KindNullLiteral {
		return right, true
	}
	return nil, false
}

func (e *Engine) applyFact(fact *narrowFact, cond *syntax.Node, declared *Type) *Type {
	switch fact.kind {
	case narrowToType:
		return e.TypeFromAnnotation(fact.typeNode, e.ModuleOf(cond))
	case narrowNonNull:
		return e.WithoutNull(declared)
	case narrowToNull:
		return classType(e.stdlibClass("Null"))
	}
	return nil
}
