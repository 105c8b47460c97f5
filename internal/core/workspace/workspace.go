// Package workspace wires the registry, resolver, analyzer and history
// store together and runs full-workspace analysis passes.
package workspace

import (
	"log/slog"
	"path/filepath"
	"time"

	"pklsense/internal/core/config"
	"pklsense/internal/core/errors"
	"pklsense/internal/data/history"
	"pklsense/internal/engine/analyzer"
	"pklsense/internal/engine/cache"
	"pklsense/internal/engine/project"
	"pklsense/internal/engine/resolver"
	"pklsense/internal/engine/vfs"
	"pklsense/internal/shared/observability"
)

type Workspace struct {
	Config   *config.Config
	Registry *vfs.Registry
	Store    *cache.Store
	Engine   *resolver.Engine
	Analyzer *analyzer.Analyzer
	History  *history.Store

	rootURI string
}

func New(cfg *config.Config) (*Workspace, error) {
	root, err := filepath.Abs(cfg.Paths.Root)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeValidation, "resolve workspace root")
	}

	reg := vfs.NewRegistry(vfs.Config{
		ModulePath:   cfg.ModulePath,
		CacheDir:     cfg.Paths.CacheDir,
		FetchTimeout: cfg.Fetch.Timeout,
		FetchRate:    cfg.Fetch.Rate,
	})
	store := cache.NewStore()
	engine := resolver.New(reg, store, project.CacheLocator{CacheDir: cfg.Paths.CacheDir})

	w := &Workspace{
		Config:   cfg,
		Registry: reg,
		Store:    store,
		Engine:   engine,
		Analyzer: analyzer.New(engine),
		rootURI:  vfs.PathToURI(root),
	}

	if cfg.DB.Enabled {
		dbPath := cfg.DB.Path
		if !filepath.IsAbs(dbPath) {
			dbPath = filepath.Join(cfg.Paths.StateDir, dbPath)
		}
		store, err := history.Open(dbPath)
		if err != nil {
			return nil, errors.AddContext(
				errors.Wrap(err, errors.CodeIO, "open history store"), errors.CtxPath, dbPath)
		}
		w.History = store
	}

	return w, nil
}

func (w *Workspace) RootURI() string { return w.rootURI }

func (w *Workspace) Close() error {
	if w.History != nil {
		return w.History.Close()
	}
	return nil
}

// Report is the outcome of one full analysis pass.
type Report struct {
	Diagnostics       map[string][]analyzer.Diagnostic
	ModuleCount       int
	ErrorCount        int
	WarningCount      int
	UnresolvedImports int
	Duration          time.Duration
}

// Analyze runs the analyzer over every Pkl file under the root. A module
// whose file changed while it was being analyzed is dropped from the report;
// the pending change batch re-runs it with fresh content.
func (w *Workspace) Analyze() *Report {
	start := time.Now()
	report := &Report{Diagnostics: make(map[string][]analyzer.Diagnostic)}

	for _, uri := range w.Registry.LocalFiles(w.rootURI) {
		file := w.Registry.Resolve(uri)
		if file == nil {
			continue
		}
		before := file.Tracker().Count()

		m := w.Engine.ModuleForFile(file)
		if m == nil {
			continue
		}
		diags := w.Analyzer.Analyze(m)

		if file.Tracker().Count() != before {
			observability.BuildsSuperseded.Inc()
			slog.Debug("analysis superseded by edit", "uri", uri)
			continue
		}

		report.ModuleCount++
		if len(diags) > 0 {
			report.Diagnostics[uri] = diags
		}
		for _, d := range diags {
			switch d.Severity {
			case analyzer.SeverityError:
				report.ErrorCount++
			case analyzer.SeverityWarning:
				report.WarningCount++
			}
			if d.Code == analyzer.CodeUnresolvedImport {
				report.UnresolvedImports++
			}
		}
	}

	report.Duration = time.Since(start)
	return report
}

// OnFilesChanged invalidates the changed files and re-analyzes the
// workspace. Paths that were never interned (new files) get picked up by the
// directory listing inside Analyze.
func (w *Workspace) OnFilesChanged(paths []string) *Report {
	for _, path := range paths {
		if file := w.Registry.Resolve(vfs.PathToURI(path)); file != nil {
			file.Invalidate()
		}
	}
	report := w.Analyze()
	if err := w.RecordSnapshot(report); err != nil {
		slog.Warn("history snapshot failed", "error", err)
	}
	return report
}

// RecordSnapshot persists a report's counts when history is enabled.
func (w *Workspace) RecordSnapshot(report *Report) error {
	if w.History == nil || report == nil {
		return nil
	}
	return w.History.SaveSnapshot(w.rootURI, history.Snapshot{
		ModuleCount:       report.ModuleCount,
		ErrorCount:        report.ErrorCount,
		WarningCount:      report.WarningCount,
		UnresolvedImports: report.UnresolvedImports,
		AnalysisDuration:  report.Duration,
	})
}
