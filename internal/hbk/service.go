package hbk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/im7mortal/kmutex"
)

// maxErrorBody bounds how much of an unexpected response body is kept as
// the error message.
const maxErrorBody = 64 << 10

// BackupService is the command layer between a UI and the backend.
// Each operation performs exactly one remote call (Create additionally
// refreshes the list), reconciles the registry only when the call succeeded,
// and reports the outcome as a Result. Failures never propagate as errors
// or panics and never touch the registry.
//
// Operations naming the same backup ID are serialized from the remote call
// through reconciliation, so a pin and a delete of one backup cannot
// interleave. Operations on different IDs run concurrently. No operation is
// retried.
type BackupService struct {
	registry  *Registry
	transport Transport
	decoder   Decoder
	logger    Logger
	idgen     IDGenerator
	locks     *kmutex.Kmutex

	notifier       Notifier
	notifyDuration time.Duration
}

// NewBackupService creates a BackupService reconciling into registry.
// A nil decoder selects the canonical schema, a nil logger discards output
// and a nil idgen hands out UUIDs.
func NewBackupService(registry *Registry, transport Transport, decoder Decoder, logger Logger, idgen IDGenerator) *BackupService {
	if decoder == nil {
		decoder = CanonicalDecoder()
	}
	if logger == nil {
		logger = NewNopLogger()
	}
	if idgen == nil {
		idgen = UUIDGenerator{}
	}
	return &BackupService{
		registry:  registry,
		transport: transport,
		decoder:   decoder,
		logger:    logger,
		idgen:     idgen,
		locks:     kmutex.New(),
	}
}

// WithNotifier makes the service forward every failure to n, displayed for d.
func (s *BackupService) WithNotifier(n Notifier, d time.Duration) *BackupService {
	s.notifier = n
	s.notifyDuration = d
	return s
}

// Registry returns the registry the service reconciles into.
func (s *BackupService) Registry() *Registry { return s.registry }

// List fetches all backups and replaces the registry contents.
func (s *BackupService) List(ctx context.Context) Result {
	opID := s.idgen.New()
	resp, opErr := s.do(ctx, opID, request{op: "list", method: http.MethodGet, path: "/backups", expect: is2xx})
	if opErr != nil {
		return s.fail(opID, opErr)
	}
	defer resp.Body.Close()

	records, err := s.decoder.Decode(resp.Body)
	if err != nil {
		return s.fail(opID, &OpError{Kind: KindDecode, Op: "list", Status: resp.Status, Message: err.Error(), Err: err})
	}

	s.registry.ReplaceAll(records)
	s.logger.Info("backups listed", "op_id", opID, "count", len(records))
	return Success()
}

// Create asks the backend to start a full backup named name. The backend
// accepts the job asynchronously, so the new record is not known yet: the
// list is refreshed instead of guessing it. A failed refresh does not turn
// the accepted create into a failure.
func (s *BackupService) Create(ctx context.Context, name string) Result {
	opID := s.idgen.New()
	body, err := json.Marshal(struct {
		Name string `json:"name"`
	}{Name: name})
	if err != nil {
		return s.fail(opID, &OpError{Kind: KindTransport, Op: "create", Message: err.Error(), Err: err})
	}

	resp, opErr := s.do(ctx, opID, request{op: "create", method: http.MethodPost, path: "/backups/new/full", body: body, expect: exactly(http.StatusAccepted)})
	if opErr != nil {
		return s.fail(opID, opErr)
	}
	drain(resp)
	s.logger.Info("backup requested", "op_id", opID, "name", name)

	if r := s.List(ctx); !r.OK {
		s.logger.Warn("refresh after create failed", "op_id", opID, "error", r.Message())
	}
	return Success()
}

// Delete removes a backup from the backend and then from the registry.
func (s *BackupService) Delete(ctx context.Context, id string) Result {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	opID := s.idgen.New()
	resp, opErr := s.do(ctx, opID, request{op: "delete", id: id, method: http.MethodDelete, path: backupPath(id, ""), expect: exactly(http.StatusOK)})
	if opErr != nil {
		return s.fail(opID, opErr)
	}
	drain(resp)

	if !s.registry.RemoveOne(id) {
		s.logger.Debug("deleted backup was not in registry", "op_id", opID, "id", id)
	}
	s.logger.Info("backup deleted", "op_id", opID, "id", id)
	return Success()
}

// Pin marks a backup as pinned.
func (s *BackupService) Pin(ctx context.Context, id string) Result {
	return s.setPinned(ctx, id, true)
}

// Unpin clears a backup's pinned flag.
func (s *BackupService) Unpin(ctx context.Context, id string) Result {
	return s.setPinned(ctx, id, false)
}

func (s *BackupService) setPinned(ctx context.Context, id string, pinned bool) Result {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	op, action := "pin", "pin"
	if !pinned {
		op, action = "unpin", "unpin"
	}

	opID := s.idgen.New()
	resp, opErr := s.do(ctx, opID, request{op: op, id: id, method: http.MethodPost, path: backupPath(id, action), expect: exactly(http.StatusOK)})
	if opErr != nil {
		return s.fail(opID, opErr)
	}
	drain(resp)

	// The backend accepted the change; a missing record is a registry bug,
	// reported by SetPinned, and not a failure of the operation.
	s.registry.SetPinned(id, pinned)
	s.logger.Info("backup pin state changed", "op_id", opID, "id", id, "pinned", pinned)
	return Success()
}

// Restore asks the backend to restore a backup. The restore runs
// asynchronously on the backend; the registry is not changed.
func (s *BackupService) Restore(ctx context.Context, id string) Result {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	opID := s.idgen.New()
	resp, opErr := s.do(ctx, opID, request{op: "restore", id: id, method: http.MethodPost, path: backupPath(id, "restore"), expect: exactly(http.StatusAccepted)})
	if opErr != nil {
		return s.fail(opID, opErr)
	}
	drain(resp)
	s.logger.Info("restore requested", "op_id", opID, "id", id)
	return Success()
}

// Download streams a backup archive into w. A nil w discards the content.
// The registry is not changed.
func (s *BackupService) Download(ctx context.Context, id string, w io.Writer) Result {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	opID := s.idgen.New()
	resp, opErr := s.do(ctx, opID, request{op: "download", id: id, method: http.MethodGet, path: backupPath(id, "download"), expect: exactly(http.StatusOK)})
	if opErr != nil {
		return s.fail(opID, opErr)
	}
	defer resp.Body.Close()

	if w == nil {
		w = io.Discard
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return s.fail(opID, &OpError{Kind: KindTransport, Op: "download", ID: id, Status: resp.Status, Message: fmt.Sprintf("copying archive: %v", err), Err: err})
	}
	s.logger.Info("backup downloaded", "op_id", opID, "id", id, "bytes", n)
	return Success()
}

// Reset asks the backend to forget all tracked backups and empties the
// registry.
func (s *BackupService) Reset(ctx context.Context) Result {
	opID := s.idgen.New()
	resp, opErr := s.do(ctx, opID, request{op: "reset", method: http.MethodPost, path: "/backups/reset", expect: exactly(http.StatusOK)})
	if opErr != nil {
		return s.fail(opID, opErr)
	}
	drain(resp)

	s.registry.ReplaceAll(nil)
	s.logger.Info("backups reset", "op_id", opID)
	return Success()
}

// NextBackup returns the time until the backend's next scheduled backup.
func (s *BackupService) NextBackup(ctx context.Context) (time.Duration, Result) {
	opID := s.idgen.New()
	resp, opErr := s.do(ctx, opID, request{op: "timer", method: http.MethodGet, path: "/backups/timer", expect: is2xx})
	if opErr != nil {
		return 0, s.fail(opID, opErr)
	}
	defer resp.Body.Close()

	var body struct {
		Milliseconds int64 `json:"milliseconds"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, s.fail(opID, &OpError{Kind: KindDecode, Op: "timer", Status: resp.Status, Message: err.Error(), Err: err})
	}
	return time.Duration(body.Milliseconds) * time.Millisecond, Success()
}

func (s *BackupService) do(ctx context.Context, opID string, req request) (*Response, *OpError) {
	s.logger.Debug("calling backend", "op_id", opID, "op", req.op, "method", req.method, "path", req.path)
	return roundTrip(ctx, s.transport, req)
}

// fail logs the failure, forwards it to the notifier and wraps it in a Result.
func (s *BackupService) fail(opID string, opErr *OpError) Result {
	s.logger.Error("operation failed", "op_id", opID, "op", opErr.Op, "id", opErr.ID, "kind", string(opErr.Kind), "status", opErr.Status, "error", opErr.Message)
	if s.notifier != nil {
		s.notifier.Notify(Notification{
			Message:  opErr.Error(),
			Severity: SeverityError,
			Duration: s.notifyDuration,
		})
	}
	return Failure(opErr)
}

// request describes a single backend call.
type request struct {
	op     string
	id     string
	method string
	path   string
	body   []byte
	expect func(status int) bool
}

// roundTrip sends req and checks the response status against req.expect.
// On success the caller owns resp.Body. On failure the body has been read
// into the error message and closed.
func roundTrip(ctx context.Context, t Transport, req request) (*Response, *OpError) {
	resp, err := t.Do(ctx, req.method, req.path, req.body)
	if err != nil {
		return nil, &OpError{Kind: KindTransport, Op: req.op, ID: req.id, Message: err.Error(), Err: err}
	}
	if req.expect(resp.Status) {
		return resp, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
	return nil, &OpError{
		Kind:    KindUnexpectedStatus,
		Op:      req.op,
		ID:      req.id,
		Status:  resp.Status,
		Message: statusMessage(resp.Status, resp.StatusText, []byte(strings.TrimSpace(string(body)))),
	}
}

func is2xx(status int) bool { return status >= 200 && status < 300 }

func exactly(want int) func(int) bool {
	return func(status int) bool { return status == want }
}

// backupPath builds "/backups/{id}" or "/backups/{id}/{action}".
func backupPath(id, action string) string {
	p := "/backups/" + url.PathEscape(id)
	if action != "" {
		p += "/" + action
	}
	return p
}

func drain(resp *Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
