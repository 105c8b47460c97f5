// Package analyzer walks parsed modules and produces diagnostics from the
// resolver: unresolved imports and references, self-imports, unknown type
// names, and empty glob expansions.
package analyzer

import (
	"fmt"
	"time"

	"pklsense/internal/engine/resolver"
	"pklsense/internal/engine/syntax"
	"pklsense/internal/shared/observability"
)

type Severity uint8

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// Diagnostic codes, stable across message wording changes.
const (
	CodeUnresolvedReference = "unresolved-reference"
	CodeUnresolvedMember    = "unresolved-member"
	CodeUnresolvedImport    = "unresolved-import"
	CodeSelfImport          = "self-import"
	CodeUnknownType         = "unknown-type"
	CodeEmptyGlob           = "empty-glob"
	CodeBadSupermodule      = "unresolved-supermodule"
	CodeSelfExtends         = "self-extends"
)

type Diagnostic struct {
	URI      string
	Span     syntax.Span
	Severity Severity
	Code     string
	Message  string
}

type Analyzer struct {
	engine *resolver.Engine
}

func New(engine *resolver.Engine) *Analyzer {
	return &Analyzer{engine: engine}
}

// Analyze checks one module. The tree may be partial after a parse error;
// whatever resolved stays diagnosable.
func (a *Analyzer) Analyze(m *resolver.Module) []Diagnostic {
	if m == nil || m.Root == nil {
		return nil
	}
	start := time.Now()
	defer func() {
		observability.AnalysisDuration.Observe(time.Since(start).Seconds())
	}()

	var out []Diagnostic
	report := func(n *syntax.Node, sev Severity, code, format string, args ...interface{}) {
		out = append(out, Diagnostic{
			URI:      m.URI(),
			Span:     n.Span,
			Severity: sev,
			Code:     code,
			Message:  fmt.Sprintf(format, args...),
		})
	}

	a.checkHeader(m, report)
	for _, imp := range m.Imports() {
		a.checkImport(m, imp, report)
	}

	syntax.Walk(m.Root, func(n *syntax.Node) bool {
		switch n.Kind {
		case syntax.KindIdentRef:
			if res := a.engine.ResolveReference(n); res.Decl == nil {
				report(n, SeverityError, CodeUnresolvedReference, "unresolved reference %q", n.Name)
			}
		case syntax.KindMemberAccess:
			// Only judged when the receiver type is known; an unknown
			// receiver would make every chained access a false positive.
			if a.engine.TypeOf(n.Recv) == nil {
				return true
			}
			if res := a.engine.ResolveReference(n); res.Decl == nil {
				report(n, SeverityError, CodeUnresolvedMember, "unresolved member %q", n.Name)
			}
		case syntax.KindDeclaredType:
			if a.engine.ResolveTypeName(n.Name, m) == nil {
				report(n, SeverityError, CodeUnknownType, "unknown type %q", n.Name)
			}
		}
		return true
	})
	return out
}

type reportFunc func(n *syntax.Node, sev Severity, code, format string, args ...interface{})

func (a *Analyzer) checkHeader(m *resolver.Module, report reportFunc) {
	info := m.Root.ModuleInfo
	if info == nil || info.ExtendsURI == "" {
		return
	}
	super := a.engine.ResolveModule(info.ExtendsURI, m)
	if super == nil {
		report(m.Root, SeverityError, CodeBadSupermodule, "cannot resolve supermodule %q", info.ExtendsURI)
		return
	}
	if super.URI() == m.URI() {
		report(m.Root, SeverityError, CodeSelfExtends, "a module cannot extend itself")
	}
}

func (a *Analyzer) checkImport(m *resolver.Module, imp *syntax.Node, report reportFunc) {
	if imp.Mods.Has(syntax.FlagGlob) {
		if len(a.engine.ResolveImportGlob(imp)) == 0 {
			report(imp, SeverityWarning, CodeEmptyGlob, "glob import %q matches no modules", imp.Text)
		}
		return
	}
	target := a.engine.ResolveImport(imp)
	if target == nil {
		report(imp, SeverityError, CodeUnresolvedImport, "cannot resolve import %q", imp.Text)
		return
	}
	if target.URI() == m.URI() {
		report(imp, SeverityError, CodeSelfImport, "a module cannot import itself")
	}
}
