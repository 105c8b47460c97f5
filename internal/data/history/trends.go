package history

import "fmt"

// Trend compares the two most recent snapshots of a workspace.
type Trend struct {
	Latest     Snapshot
	Previous   Snapshot
	HasLatest  bool
	HasContext bool
}

func (s *Store) Trend(workspaceKey string) (Trend, error) {
	snaps, err := s.Recent(workspaceKey, 2)
	if err != nil {
		return Trend{}, err
	}
	trend := Trend{}
	if len(snaps) > 0 {
		trend.Latest = snaps[0]
		trend.HasLatest = true
	}
	if len(snaps) > 1 {
		trend.Previous = snaps[1]
		trend.HasContext = true
	}
	return trend, nil
}

// Summary renders a one-line delta for CLI output.
func (t Trend) Summary() string {
	if !t.HasLatest {
		return "no snapshots recorded yet"
	}
	if !t.HasContext {
		return fmt.Sprintf("%d modules, %d errors, %d warnings (first snapshot)",
			t.Latest.ModuleCount, t.Latest.ErrorCount, t.Latest.WarningCount)
	}
	return fmt.Sprintf("%d modules, %d errors (%+d), %d warnings (%+d)",
		t.Latest.ModuleCount,
		t.Latest.ErrorCount, t.Latest.ErrorCount-t.Previous.ErrorCount,
		t.Latest.WarningCount, t.Latest.WarningCount-t.Previous.WarningCount)
}
