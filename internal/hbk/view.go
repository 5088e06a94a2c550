package hbk

import "strconv"

// View is an immutable snapshot of registry records. Every derived view is
// computed from the snapshot on each call; nothing is cached.
type View struct {
	records []BackupRecord
}

// NewView builds a View over a copy of records.
func NewView(records []BackupRecord) View {
	cp := make([]BackupRecord, len(records))
	copy(cp, records)
	return View{records: cp}
}

// Records returns a copy of the records in backend order.
func (v View) Records() []BackupRecord {
	cp := make([]BackupRecord, len(v.records))
	copy(cp, v.records)
	return cp
}

// Filter returns the records matching keep, preserving order.
func (v View) Filter(keep func(BackupRecord) bool) View {
	out := make([]BackupRecord, 0, len(v.records))
	for _, r := range v.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return View{records: out}
}

func (v View) Pinned() View {
	return v.Filter(func(r BackupRecord) bool { return r.Pinned })
}

func (v View) NonPinned() View {
	return v.Filter(func(r BackupRecord) bool { return !r.Pinned })
}

// OnTier returns the records whose status places them on t.
func (v View) OnTier(t Tier) View {
	return v.Filter(func(r BackupRecord) bool { return r.Status.On(t) })
}

// Local returns LOCAL_ONLY and SYNCED records.
func (v View) Local() View { return v.OnTier(Local) }

// Remote returns REMOTE_ONLY and SYNCED records.
func (v View) Remote() View { return v.OnTier(Remote) }

func (v View) Synced() View {
	return v.Filter(func(r BackupRecord) bool { return r.Status == StatusSynced })
}

// Unclassified returns records whose status is not a replication state,
// e.g. a backup the backend is still creating.
func (v View) Unclassified() View {
	return v.Filter(func(r BackupRecord) bool { return !r.Status.Classified() })
}

func (v View) Count() int { return len(v.records) }

// CountSplit returns the number of pinned and non-pinned records.
func (v View) CountSplit() (pinned, nonPinned int) {
	for _, r := range v.records {
		if r.Pinned {
			pinned++
		} else {
			nonPinned++
		}
	}
	return pinned, nonPinned
}

// SizeOf sums the size in MB of each record's copy on t.
func (v View) SizeOf(t Tier) float64 {
	var total float64
	for _, r := range v.records {
		total += r.SizeOn(t)
	}
	return total
}

// SizeSplit sums sizes on t separately for pinned and non-pinned records.
func (v View) SizeSplit(t Tier) (pinned, nonPinned float64) {
	for _, r := range v.records {
		if r.Pinned {
			pinned += r.SizeOn(t)
		} else {
			nonPinned += r.SizeOn(t)
		}
	}
	return pinned, nonPinned
}

// IDs returns the record IDs in order.
func (v View) IDs() []string {
	ids := make([]string, len(v.records))
	for i, r := range v.records {
		ids[i] = r.ID
	}
	return ids
}

// TierSummary aggregates the records present on one tier.
// Non-pinned figures are the ones that count against retention.
type TierSummary struct {
	Tier            Tier
	Count           int
	PinnedCount     int
	NonPinnedCount  int
	SizeMB          float64
	PinnedSizeMB    float64
	NonPinnedSizeMB float64
}

// Summary computes the aggregate figures for the records on t.
func (v View) Summary(t Tier) TierSummary {
	onTier := v.OnTier(t)
	pc, npc := onTier.CountSplit()
	ps, nps := onTier.SizeSplit(t)
	return TierSummary{
		Tier:            t,
		Count:           onTier.Count(),
		PinnedCount:     pc,
		NonPinnedCount:  npc,
		SizeMB:          onTier.SizeOf(t),
		PinnedSizeMB:    ps,
		NonPinnedSizeMB: nps,
	}
}

// FormatSize renders a size in MB for display. Values below 1000 are shown
// in MB, larger ones in GB (1 GB = 1024 MB), always with one decimal.
func FormatSize(sizeMB float64) string {
	if sizeMB < 1000 {
		return strconv.FormatFloat(sizeMB, 'f', 1, 64) + " MB"
	}
	return strconv.FormatFloat(sizeMB/1024, 'f', 1, 64) + " GB"
}
