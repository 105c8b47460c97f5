package integration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pklsense/internal/core/config"
	"pklsense/internal/core/workspace"
	"pklsense/internal/engine/analyzer"
	"pklsense/internal/engine/vfs"
)

// End-to-end: a project with a local dependency, inheritance across files,
// and live edits, driven through the workspace exactly as the CLI does.
func TestWorkspaceLifecycle(t *testing.T) {
	root := t.TempDir()

	write := func(name, content string) string {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}

	write("deps/birds/birds.pkl", "commonName: String = \"bird\"\n")
	write("deps/birds/Bird.pkl", "name: String\nlifespan: Int = 4\n")
	write("app/PklProject", `
dependencies {
  ["birds"] {
    uri = "../deps/birds"
  }
}
`)
	write("app/template.pkl", "host: String = \"localhost\"\nport: Int = 8080\n")
	write("app/prod.pkl", `extends "template.pkl"
port = 443
bird = 1
`)
	write("app/main.pkl", `import "@birds/Bird.pkl"
import "prod.pkl"

target = prod.host
span = Bird.lifespan
`)

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Paths.Root = root
	cfg.Paths.StateDir = t.TempDir()
	cfg.DB.Enabled = true

	ws, err := workspace.New(cfg)
	require.NoError(t, err)
	defer ws.Close()

	report := ws.Analyze()
	require.NoError(t, ws.RecordSnapshot(report))
	assert.Equal(t, 5, report.ModuleCount)
	assert.Zero(t, report.ErrorCount, "diagnostics: %v", report.Diagnostics)

	// Breaking the template must surface in the files that depend on it.
	templatePath := write("app/template.pkl", "port: Int = 8080\n")
	report = ws.OnFilesChanged([]string{templatePath})
	require.NotZero(t, report.ErrorCount)

	var codes []string
	for _, diags := range report.Diagnostics {
		for _, d := range diags {
			codes = append(codes, d.Code)
		}
	}
	assert.Contains(t, codes, analyzer.CodeUnresolvedMember)

	// Fixing it brings the workspace back to clean and records the trend.
	templatePath = write("app/template.pkl", "host: String = \"localhost\"\nport: Int = 8080\n")
	report = ws.OnFilesChanged([]string{templatePath})
	assert.Zero(t, report.ErrorCount, "diagnostics: %v", report.Diagnostics)

	trend, err := ws.History.Trend(ws.RootURI())
	require.NoError(t, err)
	require.True(t, trend.HasContext)
	assert.Zero(t, trend.Latest.ErrorCount)
	assert.NotZero(t, trend.Previous.ErrorCount)

	// Stdlib and wrapper URIs resolve through the same engine.
	base := ws.Engine.ResolveModule("pkl:base", nil)
	require.NotNil(t, base)
	assert.Equal(t, "pkl:base", vfs.NormalizeURI(vfs.SyntheticURI(base.URI())))
}
