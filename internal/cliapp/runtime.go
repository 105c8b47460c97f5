package cliapp

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pklsense/internal/core/config"
	"pklsense/internal/core/watcher"
	"pklsense/internal/core/workspace"
)

// Run is the whole program behind main; it returns the process exit code.
func Run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseOptions(args)
	if err != nil {
		return 2
	}
	if opts.version {
		fmt.Fprintf(stdout, "pklsense v%s\n", versionString)
		return 0
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	if len(opts.args) > 0 {
		cfg.Paths.Root = opts.args[0]
	}

	setupLogging(cfg, opts, stderr)

	ws, err := workspace.New(cfg)
	if err != nil {
		slog.Error("failed to initialize workspace", "error", err)
		return 1
	}
	defer ws.Close()

	if opts.trend {
		return runTrend(ws, stdout, stderr)
	}
	if opts.resolve != "" {
		return runResolve(ws, opts.resolve, stdout, stderr)
	}

	if opts.metrics || cfg.Observability.Enabled {
		serveMetrics(cfg.Observability.Port)
	}

	report := ws.Analyze()
	if err := ws.RecordSnapshot(report); err != nil {
		slog.Warn("history snapshot failed", "error", err)
	}
	printReport(stdout, report)

	if opts.once || !opts.watch {
		if report.ErrorCount > 0 {
			return 1
		}
		return 0
	}

	return runWatch(ws, cfg, stdout)
}

func loadConfig(opts cliOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil && opts.configPath == defaultConfigPath && os.IsNotExist(err) {
		// No config file is fine; defaults cover the common case.
		return config.Load("")
	}
	return cfg, err
}

func setupLogging(cfg *config.Config, opts cliOptions, stderr io.Writer) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if opts.verbose {
		level = slog.LevelDebug
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Logging.Format) == "json" {
		handler = slog.NewJSONHandler(stderr, handlerOpts)
	} else {
		handler = slog.NewTextHandler(stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(handler))
}

func serveMetrics(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	go func() {
		slog.Info("metrics listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Warn("metrics server stopped", "error", err)
		}
	}()
}

func runTrend(ws *workspace.Workspace, stdout, stderr io.Writer) int {
	if ws.History == nil {
		fmt.Fprintln(stderr, "history is disabled; enable db in the config to record trends")
		return 1
	}
	trend, err := ws.History.Trend(ws.RootURI())
	if err != nil {
		fmt.Fprintf(stderr, "trend: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, trend.Summary())
	return 0
}

func runResolve(ws *workspace.Workspace, target string, stdout, stderr io.Writer) int {
	m := ws.Engine.ResolveModule(target, nil)
	if m == nil {
		fmt.Fprintf(stderr, "cannot resolve %q\n", target)
		return 1
	}
	fmt.Fprintln(stdout, m.URI())
	return 0
}

func runWatch(ws *workspace.Workspace, cfg *config.Config, stdout io.Writer) int {
	w, err := watcher.NewWatcher(cfg.Watch.Debounce, cfg.Watch.ExcludeDirs, cfg.Watch.ExcludeFiles, func(paths []string) {
		slog.Info("files changed", "count", len(paths))
		printReport(stdout, ws.OnFilesChanged(paths))
	})
	if err != nil {
		slog.Error("failed to create watcher", "error", err)
		return 1
	}
	defer w.Close()

	if err := w.Watch([]string{cfg.Paths.Root}); err != nil {
		slog.Error("failed to start watcher", "error", err)
		return 1
	}

	slog.Info("watching", "root", cfg.Paths.Root)
	select {}
}

func printReport(out io.Writer, report *workspace.Report) {
	fmt.Fprintf(out, "%d modules analyzed in %s: %d errors, %d warnings\n",
		report.ModuleCount, report.Duration.Round(time.Millisecond), report.ErrorCount, report.WarningCount)

	uris := make([]string, 0, len(report.Diagnostics))
	for uri := range report.Diagnostics {
		uris = append(uris, uri)
	}
	sort.Strings(uris)

	for _, uri := range uris {
		for _, d := range report.Diagnostics[uri] {
			fmt.Fprintf(out, "%s:%d:%d: %s: %s\n",
				uri, d.Span.Start.Line, d.Span.Start.Col, d.Severity, d.Message)
		}
	}
}
