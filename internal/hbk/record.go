package hbk

import "time"

// Status is the backend-assigned replication state of a backup.
type Status string

const (
	StatusLocalOnly  Status = "LOCAL_ONLY"  // present on the local host only
	StatusRemoteOnly Status = "REMOTE_ONLY" // present in the remote store only
	StatusSynced     Status = "SYNCED"      // present on both tiers
)

// Tier identifies one of the two storage locations a backup may reside in.
type Tier int

const (
	Local Tier = iota
	Remote
)

func (t Tier) String() string {
	switch t {
	case Local:
		return "local"
	case Remote:
		return "remote"
	default:
		return "unknown"
	}
}

// On reports whether a backup with this status has a copy on the given tier.
// Statuses other than the three replication states (for example transitional
// server states) are on neither tier.
func (s Status) On(t Tier) bool {
	switch s {
	case StatusSynced:
		return true
	case StatusLocalOnly:
		return t == Local
	case StatusRemoteOnly:
		return t == Remote
	default:
		return false
	}
}

// Classified reports whether the status is one of the replication states.
func (s Status) Classified() bool {
	return s == StatusLocalOnly || s == StatusRemoteOnly || s == StatusSynced
}

// Copy describes a backup's presence on a single tier.
type Copy struct {
	Present bool
	SizeMB  float64
}

// BackupRecord is one backup instance as reported by the backend.
//
// Status decides which copy is meaningful: a LOCAL_ONLY record only ever
// contributes its Local copy, a REMOTE_ONLY record its Remote copy, and a
// SYNCED record both. Copies the status does not place, and copies the
// backend omitted, count as empty.
type BackupRecord struct {
	ID           string
	Name         string
	Pinned       bool
	Status       Status
	Date         time.Time
	ErrorMessage string
	Local        Copy
	Remote       Copy
}

// CopyOn returns the record's copy on t, or the zero Copy when the status
// does not place the record on that tier.
func (r BackupRecord) CopyOn(t Tier) Copy {
	if !r.Status.On(t) {
		return Copy{}
	}
	if t == Local {
		return r.Local
	}
	return r.Remote
}

// SizeOn returns the record's size in MB on t. Missing data counts as 0.
func (r BackupRecord) SizeOn(t Tier) float64 {
	c := r.CopyOn(t)
	if !c.Present {
		return 0
	}
	return c.SizeMB
}
