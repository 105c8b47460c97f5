// Package parse is a recursive-descent parser for the Pkl subset the
// semantic engine is exercised with: module headers, imports (including
// import*), classes, type aliases, properties, methods, object bodies with
// for/when generators, let/if/lambda expressions, and type annotations with
// unions and nullables. A production deployment plugs a full CST parser into
// the same syntax.Node shapes; this package keeps the engine self-contained.
package parse

import (
	"fmt"
	"strconv"
	"strings"

	"pklsense/internal/engine/syntax"
)

var modifierWords = map[string]syntax.Modifier{
	"local":    syntax.ModLocal,
	"hidden":   syntax.ModHidden,
	"abstract": syntax.ModAbstract,
	"open":     syntax.ModOpen,
	"fixed":    syntax.ModFixed,
	"const":    syntax.ModConst,
	"external": syntax.ModExternal,
}

type parser struct {
	toks []token
	pos  int
	errs []string
}

// Module parses src into a module tree rooted at a KindModule node. The
// returned tree is usable even when err is non-nil; err carries the first
// syntax errors encountered.
func Module(uri string, src []byte) (*syntax.Node, error) {
	p := &parser{toks: lex(src)}
	mod := p.parseModule(uri)
	syntax.SetParents(mod)
	if len(p.errs) > 0 {
		return mod, fmt.Errorf("parse %s: %s", uri, strings.Join(p.errs, "; "))
	}
	return mod, nil
}

// Expression parses a standalone expression, used for analysis-only
// snippets behind ephemeral files.
func Expression(src []byte) (*syntax.Node, error) {
	p := &parser{toks: lex(src)}
	expr := p.parseExpr()
	syntax.SetParents(expr)
	if len(p.errs) > 0 {
		return expr, fmt.Errorf("parse expression: %s", strings.Join(p.errs, "; "))
	}
	return expr, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) at(text string) bool {
	t := p.peek()
	return (t.kind == tokSym || t.kind == tokIdent) && t.text == text
}

func (p *parser) atKind(k tokKind) bool { return p.peek().kind == k }

func (p *parser) advance() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) accept(text string) bool {
	if p.at(text) {
		p.advance()
		return true
	}
	return false
}

func (p *parser) expect(text string) token {
	if p.at(text) {
		return p.advance()
	}
	t := p.peek()
	p.errorf(t, "expected %q, found %q", text, t.text)
	return t
}

func (p *parser) errorf(t token, format string, args ...interface{}) {
	loc := fmt.Sprintf("%d:%d: ", t.pos.Line, t.pos.Col)
	p.errs = append(p.errs, loc+fmt.Sprintf(format, args...))
}

func (p *parser) endPos() syntax.Pos {
	if p.pos == 0 {
		return p.peek().pos
	}
	prev := p.toks[p.pos-1]
	return syntax.Pos{Line: prev.pos.Line, Col: prev.pos.Col + len(prev.text)}
}

func (p *parser) finish(n *syntax.Node, start syntax.Pos) *syntax.Node {
	n.Span = syntax.Span{Start: start, End: p.endPos()}
	return n
}

func (p *parser) parseModule(uri string) *syntax.Node {
	start := p.peek().pos
	mod := &syntax.Node{Kind: syntax.KindModule, ModuleInfo: &syntax.ModuleInfo{URI: uri}}

	// Optional header: [modifiers] module a.b.c, then extends/amends "uri".
	// Lookahead past modifier words so `local x = 1` at the top of a file is
	// not mistaken for a header.
	j := p.pos
	for j < len(p.toks) && p.toks[j].kind == tokIdent {
		if _, ok := modifierWords[p.toks[j].text]; !ok {
			break
		}
		j++
	}
	if j < len(p.toks) && p.toks[j].kind == tokIdent && p.toks[j].text == "module" {
		mod.Mods = p.parseModifiers()
		p.advance()
		mod.ModuleInfo.DeclaredName = p.parseQualifiedIdent()
	}
	if p.at("extends") || p.at("amends") {
		mod.ModuleInfo.IsAmend = p.at("amends")
		p.advance()
		if p.atKind(tokString) {
			mod.ModuleInfo.ExtendsURI = p.advance().text
		} else {
			p.errorf(p.peek(), "expected string after extends/amends")
		}
	}

	for p.at("import") {
		mod.Members = append(mod.Members, p.parseImport())
	}

	for !p.atKind(tokEOF) {
		before := p.pos
		if m := p.parseModuleMember(); m != nil {
			mod.Members = append(mod.Members, m)
		}
		if p.pos == before {
			p.errorf(p.peek(), "unexpected token %q", p.peek().text)
			p.advance()
		}
	}
	return p.finish(mod, start)
}

func (p *parser) parseImport() *syntax.Node {
	start := p.peek().pos
	imp := &syntax.Node{Kind: syntax.KindImport}
	p.expect("import")
	if p.accept("*") {
		imp.Mods |= syntax.FlagGlob
	}
	if p.atKind(tokString) {
		imp.Text = p.advance().text
	} else {
		p.errorf(p.peek(), "expected import target string")
	}
	if p.accept("as") {
		imp.Name = p.advance().text
	}
	return p.finish(imp, start)
}

func (p *parser) parseModifiers() syntax.Modifier {
	var mods syntax.Modifier
	for p.peek().kind == tokIdent {
		flag, ok := modifierWords[p.peek().text]
		if !ok {
			break
		}
		// A modifier word directly followed by `=`, `:` or `{` is a property
		// named like a modifier, not a modifier.
		next := p.toks[p.pos+1]
		if next.kind == tokSym && (next.text == "=" || next.text == ":" || next.text == "{") {
			break
		}
		mods |= flag
		p.advance()
	}
	return mods
}

func (p *parser) parseModuleMember() *syntax.Node {
	mods := p.parseModifiers()
	switch {
	case p.at("class"):
		return p.parseClass(mods)
	case p.at("typealias"):
		return p.parseTypeAlias(mods)
	case p.at("function"):
		return p.parseMethod(mods)
	case p.peek().kind == tokIdent:
		return p.parseProperty(mods)
	}
	return nil
}

func (p *parser) parseClass(mods syntax.Modifier) *syntax.Node {
	start := p.peek().pos
	cls := &syntax.Node{Kind: syntax.KindClass, Mods: mods}
	p.expect("class")
	cls.Name = p.advance().text
	if p.accept("<") {
		// Type parameters are accepted but not modeled.
		for !p.at(">") && !p.atKind(tokEOF) {
			p.advance()
		}
		p.expect(">")
	}
	if p.accept("extends") {
		cls.Extends = p.parseTypeAtom()
	}
	if p.accept("{") {
		for !p.at("}") && !p.atKind(tokEOF) {
			before := p.pos
			memberMods := p.parseModifiers()
			var m *syntax.Node
			if p.at("function") {
				m = p.parseMethod(memberMods)
			} else if p.peek().kind == tokIdent {
				m = p.parseProperty(memberMods)
			}
			if m != nil {
				cls.Members = append(cls.Members, m)
			}
			if p.pos == before {
				p.errorf(p.peek(), "unexpected token %q in class body", p.peek().text)
				p.advance()
			}
		}
		p.expect("}")
	}
	return p.finish(cls, start)
}

func (p *parser) parseTypeAlias(mods syntax.Modifier) *syntax.Node {
	start := p.peek().pos
	alias := &syntax.Node{Kind: syntax.KindTypeAlias, Mods: mods}
	p.expect("typealias")
	alias.Name = p.advance().text
	p.expect("=")
	alias.TypeNode = p.parseType()
	return p.finish(alias, start)
}

func (p *parser) parseMethod(mods syntax.Modifier) *syntax.Node {
	start := p.peek().pos
	m := &syntax.Node{Kind: syntax.KindMethod, Mods: mods}
	p.expect("function")
	m.Name = p.advance().text
	p.expect("(")
	for !p.at(")") && !p.atKind(tokEOF) {
		m.Params = append(m.Params, p.parseParameter())
		if !p.accept(",") {
			break
		}
	}
	p.expect(")")
	if p.accept(":") {
		m.TypeNode = p.parseType()
	}
	if p.accept("=") {
		m.Body = p.parseExpr()
	}
	return p.finish(m, start)
}

func (p *parser) parseParameter() *syntax.Node {
	start := p.peek().pos
	param := &syntax.Node{Kind: syntax.KindParameter, Name: p.advance().text}
	if p.accept(":") {
		param.TypeNode = p.parseType()
	}
	return p.finish(param, start)
}

func (p *parser) parseProperty(mods syntax.Modifier) *syntax.Node {
	start := p.peek().pos
	prop := &syntax.Node{Kind: syntax.KindProperty, Mods: mods, Name: p.advance().text}
	if p.accept(":") {
		prop.TypeNode = p.parseType()
	}
	if p.accept("=") {
		prop.Value = p.parseExpr()
	} else if p.at("{") {
		prop.Body = p.parseObjectBody()
	}
	return p.finish(prop, start)
}

func (p *parser) parseObjectBody() *syntax.Node {
	start := p.peek().pos
	body := &syntax.Node{Kind: syntax.KindObjectBody}
	p.expect("{")
	for !p.at("}") && !p.atKind(tokEOF) {
		before := p.pos
		if m := p.parseObjectMember(); m != nil {
			body.Members = append(body.Members, m)
		}
		if p.pos == before {
			p.errorf(p.peek(), "unexpected token %q in object body", p.peek().text)
			p.advance()
		}
	}
	p.expect("}")
	return p.finish(body, start)
}

func (p *parser) parseObjectMember() *syntax.Node {
	switch {
	case p.at("for"):
		return p.parseForGenerator()
	case p.at("when"):
		return p.parseWhenGenerator()
	case p.at("["):
		return p.parseEntry()
	}

	// A property needs ident followed by `:`, `=` or `{`; anything else is an
	// element expression.
	if p.peek().kind == tokIdent {
		if _, isMod := modifierWords[p.peek().text]; isMod {
			next := p.toks[p.pos+1]
			if next.kind == tokIdent {
				return p.parseProperty(p.parseModifiers())
			}
		}
		next := p.toks[p.pos+1]
		if next.kind == tokSym && (next.text == "=" || next.text == ":" || next.text == "{") {
			return p.parseProperty(0)
		}
	}

	start := p.peek().pos
	elem := &syntax.Node{Kind: syntax.KindObjectElement, Value: p.parseExpr()}
	return p.finish(elem, start)
}

func (p *parser) parseForGenerator() *syntax.Node {
	start := p.peek().pos
	gen := &syntax.Node{Kind: syntax.KindForGenerator}
	p.expect("for")
	p.expect("(")
	first := p.parseBindingVar()
	if p.accept(",") {
		gen.KeyVar = first
		gen.ValueVar = p.parseBindingVar()
	} else {
		gen.ValueVar = first
	}
	p.expect("in")
	gen.Value = p.parseExpr()
	p.expect(")")
	gen.Body = p.parseObjectBody()
	return p.finish(gen, start)
}

func (p *parser) parseBindingVar() *syntax.Node {
	start := p.peek().pos
	v := &syntax.Node{Kind: syntax.KindParameter, Name: p.advance().text}
	return p.finish(v, start)
}

func (p *parser) parseWhenGenerator() *syntax.Node {
	start := p.peek().pos
	gen := &syntax.Node{Kind: syntax.KindWhenGenerator}
	p.expect("when")
	p.expect("(")
	gen.Cond = p.parseExpr()
	p.expect(")")
	gen.Then = p.parseObjectBody()
	if p.accept("else") {
		gen.Else = p.parseObjectBody()
	}
	return p.finish(gen, start)
}

func (p *parser) parseEntry() *syntax.Node {
	start := p.peek().pos
	entry := &syntax.Node{Kind: syntax.KindObjectElement}
	p.expect("[")
	entry.Left = p.parseExpr()
	p.expect("]")
	if p.accept("=") {
		entry.Value = p.parseExpr()
	} else if p.at("{") {
		entry.Body = p.parseObjectBody()
	}
	return p.finish(entry, start)
}

// Types.

func (p *parser) parseType() *syntax.Node {
	start := p.peek().pos
	p.accept("*") // default-union marker carries no meaning here
	first := p.parseTypeAtom()
	if !p.at("|") {
		return first
	}
	union := &syntax.Node{Kind: syntax.KindUnionType, Members: []*syntax.Node{first}}
	for p.accept("|") {
		p.accept("*")
		union.Members = append(union.Members, p.parseTypeAtom())
	}
	return p.finish(union, start)
}

func (p *parser) parseTypeAtom() *syntax.Node {
	start := p.peek().pos
	var atom *syntax.Node

	switch {
	case p.accept("("):
		atom = p.parseType()
		p.expect(")")
	case p.atKind(tokString):
		// String-literal type, approximated by its String supertype.
		p.advance()
		atom = &syntax.Node{Kind: syntax.KindDeclaredType, Name: "String"}
	case p.peek().kind == tokIdent:
		atom = &syntax.Node{Kind: syntax.KindDeclaredType, Name: p.parseQualifiedIdent()}
		if p.accept("<") {
			for !p.at(">") && !p.atKind(tokEOF) {
				atom.Args = append(atom.Args, p.parseType())
				if !p.accept(",") {
					break
				}
			}
			p.expect(">")
		}
	default:
		p.errorf(p.peek(), "expected type, found %q", p.peek().text)
		atom = &syntax.Node{Kind: syntax.KindDeclaredType, Name: "unknown"}
	}
	p.finish(atom, start)

	for p.accept("?") {
		atom = p.finish(&syntax.Node{Kind: syntax.KindNullableType, TypeNode: atom}, start)
	}
	return atom
}

func (p *parser) parseQualifiedIdent() string {
	name := p.advance().text
	for p.at(".") && p.toks[p.pos+1].kind == tokIdent {
		p.advance()
		name += "." + p.advance().text
	}
	return name
}

// Expressions, lowest precedence first.

func (p *parser) parseExpr() *syntax.Node {
	return p.parseNullCoalesce()
}

func (p *parser) parseNullCoalesce() *syntax.Node {
	left := p.parseOr()
	for p.at("??") {
		start := left.Span.Start
		p.advance()
		left = p.finish(&syntax.Node{Kind: syntax.KindBinary, Op: syntax.OpNullCoalesce, Left: left, Right: p.parseOr()}, start)
	}
	return left
}

func (p *parser) parseOr() *syntax.Node {
	left := p.parseAnd()
	for p.at("||") {
		start := left.Span.Start
		p.advance()
		left = p.finish(&syntax.Node{Kind: syntax.KindBinary, Op: syntax.OpOr, Left: left, Right: p.parseAnd()}, start)
	}
	return left
}

func (p *parser) parseAnd() *syntax.Node {
	left := p.parseEquality()
	for p.at("&&") {
		start := left.Span.Start
		p.advance()
		left = p.finish(&syntax.Node{Kind: syntax.KindBinary, Op: syntax.OpAnd, Left: left, Right: p.parseEquality()}, start)
	}
	return left
}

var equalityOps = map[string]syntax.Op{"==": syntax.OpEq, "!=": syntax.OpNe}
var comparisonOps = map[string]syntax.Op{"<": syntax.OpLt, ">": syntax.OpGt, "<=": syntax.OpLe, ">=": syntax.OpGe}
var additiveOps = map[string]syntax.Op{"+": syntax.OpAdd, "-": syntax.OpSub}
var multiplicativeOps = map[string]syntax.Op{"*": syntax.OpMul, "/": syntax.OpDiv}

func (p *parser) parseBinaryLevel(ops map[string]syntax.Op, next func() *syntax.Node) *syntax.Node {
	left := next()
	for {
		t := p.peek()
		op, ok := ops[t.text]
		if t.kind != tokSym || !ok {
			return left
		}
		start := left.Span.Start
		p.advance()
		left = p.finish(&syntax.Node{Kind: syntax.KindBinary, Op: op, Left: left, Right: next()}, start)
	}
}

func (p *parser) parseEquality() *syntax.Node {
	return p.parseBinaryLevel(equalityOps, p.parseComparison)
}

func (p *parser) parseComparison() *syntax.Node {
	return p.parseBinaryLevel(comparisonOps, p.parseIsAs)
}

func (p *parser) parseIsAs() *syntax.Node {
	left := p.parseAdditive()
	for p.at("is") || p.at("as") {
		op := syntax.OpIs
		if p.at("as") {
			op = syntax.OpAs
		}
		start := left.Span.Start
		p.advance()
		left = p.finish(&syntax.Node{Kind: syntax.KindBinary, Op: op, Left: left, TypeNode: p.parseType()}, start)
	}
	return left
}

func (p *parser) parseAdditive() *syntax.Node {
	return p.parseBinaryLevel(additiveOps, p.parseMultiplicative)
}

func (p *parser) parseMultiplicative() *syntax.Node {
	return p.parseBinaryLevel(multiplicativeOps, p.parseUnary)
}

func (p *parser) parseUnary() *syntax.Node {
	start := p.peek().pos
	if p.accept("!") {
		return p.finish(&syntax.Node{Kind: syntax.KindUnary, Op: syntax.OpNot, Left: p.parseUnary()}, start)
	}
	if p.accept("-") {
		return p.finish(&syntax.Node{Kind: syntax.KindUnary, Op: syntax.OpNeg, Left: p.parseUnary()}, start)
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() *syntax.Node {
	expr := p.parsePrimary()
	for {
		start := expr.Span.Start
		switch {
		case p.at(".") && p.toks[p.pos+1].kind == tokIdent:
			p.advance()
			access := &syntax.Node{Kind: syntax.KindMemberAccess, Recv: expr, Name: p.advance().text}
			if p.at("(") {
				access.Mods |= syntax.FlagCall
				access.Args = p.parseCallArgs()
			}
			expr = p.finish(access, start)
		case p.at("!!"):
			p.advance()
			expr = p.finish(&syntax.Node{Kind: syntax.KindUnary, Op: syntax.OpNonNull, Left: expr}, start)
		case p.at("{"):
			expr = p.finish(&syntax.Node{Kind: syntax.KindAmendExpr, Recv: expr, Body: p.parseObjectBody()}, start)
		default:
			return expr
		}
	}
}

func (p *parser) parseCallArgs() []*syntax.Node {
	p.expect("(")
	var args []*syntax.Node
	for !p.at(")") && !p.atKind(tokEOF) {
		args = append(args, p.parseExpr())
		if !p.accept(",") {
			break
		}
	}
	p.expect(")")
	return args
}

func (p *parser) parsePrimary() *syntax.Node {
	t := p.peek()
	start := t.pos

	switch t.kind {
	case tokInt:
		p.advance()
		n, _ := strconv.ParseInt(t.text, 10, 64)
		return p.finish(&syntax.Node{Kind: syntax.KindIntLiteral, IntVal: n, Text: t.text}, start)
	case tokFloat:
		p.advance()
		f, _ := strconv.ParseFloat(t.text, 64)
		return p.finish(&syntax.Node{Kind: syntax.KindFloatLiteral, FloatVal: f, Text: t.text}, start)
	case tokString:
		p.advance()
		return p.finish(&syntax.Node{Kind: syntax.KindStringLiteral, Text: t.text}, start)
	}

	if t.kind == tokIdent {
		switch t.text {
		case "true", "false":
			p.advance()
			return p.finish(&syntax.Node{Kind: syntax.KindBoolLiteral, BoolVal: t.text == "true"}, start)
		case "null":
			p.advance()
			return p.finish(&syntax.Node{Kind: syntax.KindNullLiteral}, start)
		case "this":
			p.advance()
			return p.finish(&syntax.Node{Kind: syntax.KindThis}, start)
		case "module":
			p.advance()
			return p.finish(&syntax.Node{Kind: syntax.KindModuleExpr}, start)
		case "new":
			p.advance()
			n := &syntax.Node{Kind: syntax.KindAmendExpr}
			if !p.at("{") {
				n.TypeNode = p.parseTypeAtom()
			}
			n.Body = p.parseObjectBody()
			return p.finish(n, start)
		case "let":
			return p.parseLet()
		case "if":
			return p.parseIf()
		}

		p.advance()
		ref := &syntax.Node{Kind: syntax.KindIdentRef, Name: t.text}
		if p.at("(") {
			ref.Mods |= syntax.FlagCall
			ref.Args = p.parseCallArgs()
		}
		return p.finish(ref, start)
	}

	if p.at("(") {
		if p.isLambdaAhead() {
			return p.parseLambda()
		}
		p.advance()
		inner := p.parseExpr()
		p.expect(")")
		return p.finish(&syntax.Node{Kind: syntax.KindParen, Left: inner}, start)
	}

	p.errorf(t, "expected expression, found %q", t.text)
	p.advance()
	return p.finish(&syntax.Node{Kind: syntax.KindInvalid}, start)
}

// isLambdaAhead scans from the current `(` to its matching `)` and reports
// whether `->` follows, distinguishing `(x) -> e` from `(e)`.
func (p *parser) isLambdaAhead() bool {
	depth := 0
	for i := p.pos; i < len(p.toks); i++ {
		t := p.toks[i]
		if t.kind == tokEOF {
			return false
		}
		if t.kind != tokSym {
			continue
		}
		switch t.text {
		case "(":
			depth++
		case ")":
			depth--
			if depth == 0 {
				next := p.toks[i+1]
				return next.kind == tokSym && next.text == "->"
			}
		}
	}
	return false
}

func (p *parser) parseLambda() *syntax.Node {
	start := p.peek().pos
	fn := &syntax.Node{Kind: syntax.KindFunctionLiteral}
	p.expect("(")
	for !p.at(")") && !p.atKind(tokEOF) {
		fn.Params = append(fn.Params, p.parseParameter())
		if !p.accept(",") {
			break
		}
	}
	p.expect(")")
	p.expect("->")
	fn.Body = p.parseExpr()
	return p.finish(fn, start)
}

func (p *parser) parseLet() *syntax.Node {
	start := p.peek().pos
	let := &syntax.Node{Kind: syntax.KindLetExpr}
	p.expect("let")
	p.expect("(")
	param := p.parseParameter()
	let.Params = []*syntax.Node{param}
	p.expect("=")
	let.Value = p.parseExpr()
	p.expect(")")
	let.Body = p.parseExpr()
	return p.finish(let, start)
}

func (p *parser) parseIf() *syntax.Node {
	start := p.peek().pos
	n := &syntax.Node{Kind: syntax.KindIfExpr}
	p.expect("if")
	p.expect("(")
	n.Cond = p.parseExpr()
	p.expect(")")
	n.Then = p.parseExpr()
	p.expect("else")
	n.Else = p.parseExpr()
	return p.finish(n, start)
}
