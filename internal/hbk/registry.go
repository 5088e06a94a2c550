package hbk

import "sync"

// Registry holds the canonical, ordered list of backup records.
// Records keep the order the backend returned them in; the registry never
// re-sorts. It is safe for concurrent use: each mutation is applied
// atomically and readers always see a consistent snapshot.
type Registry struct {
	mu      sync.RWMutex
	records []BackupRecord
	logger  Logger
}

// NewRegistry creates an empty registry. A nil logger discards output.
func NewRegistry(logger Logger) *Registry {
	if logger == nil {
		logger = NewNopLogger()
	}
	return &Registry{logger: logger}
}

// ReplaceAll swaps the whole sequence. Records are taken as-is.
func (r *Registry) ReplaceAll(records []BackupRecord) {
	next := make([]BackupRecord, len(records))
	copy(next, records)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = next
}

// UpsertOne replaces the record with the same ID in place, or appends it.
func (r *Registry) UpsertOne(record BackupRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i := r.indexOf(record.ID); i >= 0 {
		r.records[i] = record
		return
	}
	r.records = append(r.records, record)
}

// RemoveOne removes the record with the given ID.
// It reports whether a record was removed.
func (r *Registry) RemoveOne(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return false
	}
	next := make([]BackupRecord, 0, len(r.records)-1)
	next = append(next, r.records[:i]...)
	next = append(next, r.records[i+1:]...)
	r.records = next
	return true
}

// SetPinned updates the pinned flag of the record with the given ID.
// It is only called after the backend accepted the change, so an unknown ID
// means the registry has diverged from the backend. That case is a logged
// no-op and SetPinned returns false.
func (r *Registry) SetPinned(id string, pinned bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		r.logger.Error("logic inconsistency: pin state change for unknown backup", "id", id, "pinned", pinned)
		return false
	}
	r.records[i].Pinned = pinned
	return true
}

// Get returns the record with the given ID.
func (r *Registry) Get(id string) (BackupRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if i := r.indexOf(id); i >= 0 {
		return r.records[i], true
	}
	return BackupRecord{}, false
}

// Len returns the number of records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Snapshot returns an immutable view of the current records.
func (r *Registry) Snapshot() View {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make([]BackupRecord, len(r.records))
	copy(records, r.records)
	return View{records: records}
}

// indexOf must be called with r.mu held.
func (r *Registry) indexOf(id string) int {
	for i := range r.records {
		if r.records[i].ID == id {
			return i
		}
	}
	return -1
}
