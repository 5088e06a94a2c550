package fakeapi

import (
	"time"

	"hbk-go/internal/hbk"
)

// DemoRecords returns a small mixed set of backups dated relative to now,
// covering every status and both pin states.
func DemoRecords(now time.Time) []hbk.BackupRecord {
	day := 24 * time.Hour
	return []hbk.BackupRecord{
		{
			ID: "a1b2c3d4", Name: "Full Backup " + now.Add(-3*day).Format("2006-01-02"),
			Pinned: true, Status: hbk.StatusSynced, Date: now.Add(-3 * day),
			Local:  hbk.Copy{Present: true, SizeMB: 1843.2},
			Remote: hbk.Copy{Present: true, SizeMB: 1843.2},
		},
		{
			ID: "e5f6a7b8", Name: "Full Backup " + now.Add(-2*day).Format("2006-01-02"),
			Status: hbk.StatusRemoteOnly, Date: now.Add(-2 * day),
			Remote: hbk.Copy{Present: true, SizeMB: 1790.4},
		},
		{
			ID: "c9d0e1f2", Name: "Full Backup " + now.Add(-day).Format("2006-01-02"),
			Status: hbk.StatusSynced, Date: now.Add(-day),
			Local:  hbk.Copy{Present: true, SizeMB: 1802.7},
			Remote: hbk.Copy{Present: true, SizeMB: 1802.7},
		},
		{
			ID: "0a1b2c3d", Name: "Before upgrade",
			Status: hbk.StatusLocalOnly, Date: now.Add(-2 * time.Hour),
			Local: hbk.Copy{Present: true, SizeMB: 912.5},
		},
		{
			ID: "4e5f6a7b", Name: "Full Backup " + now.Format("2006-01-02"),
			Status: "FAILED", Date: now.Add(-time.Hour),
			ErrorMessage: "upload to storage timed out",
			Local:        hbk.Copy{Present: true, SizeMB: 1810},
		},
	}
}
