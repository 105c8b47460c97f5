// Package history persists per-run analysis snapshots in sqlite so watch
// mode can show whether a workspace is getting healthier over time.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

// Snapshot is one full-workspace analysis result, reduced to counts.
type Snapshot struct {
	Timestamp         time.Time
	SchemaVersion     int
	ModuleCount       int
	ErrorCount        int
	WarningCount      int
	UnresolvedImports int
	AnalysisDuration  time.Duration
}

type Store struct {
	path string
	db   *sql.DB
	mu   sync.Mutex
}

func Open(path string) (*Store, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("history path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("history path %q is a directory, expected file", cleanPath)
	}

	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory %q: %w", dir, err)
		}
	}

	// busy_timeout + WAL reduce lock conflicts during watch-mode churn.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(2000)&_pragma=journal_mode(WAL)", cleanPath)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite history %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite history %q: %w", cleanPath, err)
	}
	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize sqlite schema %q: %w", cleanPath, err)
	}

	return &Store{path: cleanPath, db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) SaveSnapshot(workspaceKey string, snapshot Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	workspaceKey = strings.TrimSpace(workspaceKey)
	if workspaceKey == "" {
		workspaceKey = "default"
	}
	if snapshot.Timestamp.IsZero() {
		snapshot.Timestamp = time.Now().UTC()
	}
	if snapshot.SchemaVersion == 0 {
		snapshot.SchemaVersion = SchemaVersion
	}
	if snapshot.SchemaVersion != SchemaVersion {
		return fmt.Errorf("unsupported snapshot schema version %d", snapshot.SchemaVersion)
	}

	query := `
INSERT INTO snapshots (
  workspace_key, schema_version, ts_utc, module_count, error_count,
  warning_count, unresolved_import_count, analysis_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(workspace_key, ts_utc) DO UPDATE SET
  schema_version=excluded.schema_version,
  module_count=excluded.module_count,
  error_count=excluded.error_count,
  warning_count=excluded.warning_count,
  unresolved_import_count=excluded.unresolved_import_count,
  analysis_ms=excluded.analysis_ms
`
	_, err := s.db.Exec(
		query,
		workspaceKey,
		snapshot.SchemaVersion,
		snapshot.Timestamp.UTC().Format(time.RFC3339Nano),
		snapshot.ModuleCount,
		snapshot.ErrorCount,
		snapshot.WarningCount,
		snapshot.UnresolvedImports,
		snapshot.AnalysisDuration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Recent returns up to limit snapshots for a workspace, newest first.
func (s *Store) Recent(workspaceKey string, limit int) ([]Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(workspaceKey) == "" {
		workspaceKey = "default"
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(`
SELECT schema_version, ts_utc, module_count, error_count, warning_count,
       unresolved_import_count, analysis_ms
FROM snapshots
WHERE workspace_key = ?
ORDER BY ts_utc DESC
LIMIT ?`, workspaceKey, limit)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var snap Snapshot
		var ts string
		var analysisMS int64
		if err := rows.Scan(&snap.SchemaVersion, &ts, &snap.ModuleCount, &snap.ErrorCount,
			&snap.WarningCount, &snap.UnresolvedImports, &analysisMS); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			snap.Timestamp = parsed
		}
		snap.AnalysisDuration = time.Duration(analysisMS) * time.Millisecond
		out = append(out, snap)
	}
	return out, rows.Err()
}
