package testutil

import (
	"encoding/json"
	"testing"
	"time"

	"hbk-go/internal/hbk"
)

// Synced builds a SYNCED record with the given sizes in MB.
func Synced(id string, pinned bool, localMB, remoteMB float64) hbk.BackupRecord {
	return hbk.BackupRecord{
		ID:     id,
		Name:   "backup " + id,
		Pinned: pinned,
		Status: hbk.StatusSynced,
		Date:   time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		Local:  hbk.Copy{Present: true, SizeMB: localMB},
		Remote: hbk.Copy{Present: true, SizeMB: remoteMB},
	}
}

// LocalOnly builds a LOCAL_ONLY record.
func LocalOnly(id string, pinned bool, sizeMB float64) hbk.BackupRecord {
	return hbk.BackupRecord{
		ID:     id,
		Name:   "backup " + id,
		Pinned: pinned,
		Status: hbk.StatusLocalOnly,
		Date:   time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		Local:  hbk.Copy{Present: true, SizeMB: sizeMB},
	}
}

// RemoteOnly builds a REMOTE_ONLY record.
func RemoteOnly(id string, pinned bool, sizeMB float64) hbk.BackupRecord {
	return hbk.BackupRecord{
		ID:     id,
		Name:   "backup " + id,
		Pinned: pinned,
		Status: hbk.StatusRemoteOnly,
		Date:   time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		Remote: hbk.Copy{Present: true, SizeMB: sizeMB},
	}
}

// ListBody encodes records in the canonical schema, as a list response body.
func ListBody(t *testing.T, records ...hbk.BackupRecord) string {
	t.Helper()
	wire := make([]hbk.WireRecord, len(records))
	for i, r := range records {
		wire[i] = hbk.ToWire(r)
	}
	b, err := json.Marshal(wire)
	if err != nil {
		t.Fatalf("encoding list body: %v", err)
	}
	return string(b)
}
