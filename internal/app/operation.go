package app

import "hbk-go/internal/journal"

// Operation tracks the CLI command being run. It is written to the journal
// when the app starts and finished with its outcome on Close.
type Operation struct {
	EntryID  int64 // journal row; zero until persisted
	Name     string
	BackupID string
	Status   string
	Error    string
}

// NewOperation creates a new in-memory operation that has not failed yet.
func NewOperation(name, backupID string) *Operation {
	return &Operation{
		Name:     name,
		BackupID: backupID,
		Status:   journal.StatusSuccess,
	}
}

// Persisted returns true if this operation has been saved to the journal.
func (op *Operation) Persisted() bool {
	return op.EntryID != 0
}

// Fail marks the operation as failed. The first error is kept.
func (op *Operation) Fail(err error) {
	if err == nil || op.Status == journal.StatusError {
		return
	}
	op.Status = journal.StatusError
	op.Error = err.Error()
}
