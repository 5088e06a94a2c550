package testutil

import (
	"path/filepath"
	"testing"

	"hbk-go/internal/hbk"
	"hbk-go/internal/journal"
)

// NewTestJournal opens a migrated journal in a temporary directory.
// It is closed automatically when the test completes. A nil clock uses
// FixedClock.
func NewTestJournal(t *testing.T, clock hbk.Clock) *journal.SQLiteJournal {
	t.Helper()
	if clock == nil {
		clock = FixedClock()
	}

	j, err := journal.Open(filepath.Join(t.TempDir(), journal.FileName), clock)
	if err != nil {
		t.Fatalf("opening test journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}
