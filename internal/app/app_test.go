package app

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"hbk-go/internal/archive"
	"hbk-go/internal/config"
	"hbk-go/internal/fakeapi"
	"hbk-go/internal/hbk"
	"hbk-go/internal/journal"
	"hbk-go/internal/testutil"
)

type testEnv struct {
	cfg      *config.Config
	backend  *testutil.FakeBackend
	store    *archive.MemoryStore
	notifier *testutil.RecordingNotifier
	clock    *testutil.StubClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	backend := testutil.NewFakeBackend(t)
	cfg := config.NewConfig(backend.URL, t.TempDir())
	cfg.RetryMax = 0
	return &testEnv{
		cfg:      cfg,
		backend:  backend,
		store:    archive.NewMemoryStore(),
		notifier: &testutil.RecordingNotifier{},
		clock:    testutil.FixedClock(),
	}
}

// open starts an app for one command. The caller closes it.
func (e *testEnv) open(t *testing.T, operation, backupID string) *HbkApp {
	t.Helper()
	a, err := NewHbkApp(e.cfg, NewOperation(operation, backupID),
		WithNotifier(e.notifier),
		WithClock(e.clock),
		WithArchiveStore(e.store),
	)
	if err != nil {
		t.Fatalf("NewHbkApp() error = %v", err)
	}
	return a
}

func (e *testEnv) history(t *testing.T) []*journal.Entry {
	t.Helper()
	a := e.open(t, "History", "")
	defer a.Close()
	entries, err := a.History(50, "")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	return entries
}

func TestNewHbkApp_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config.Config)
	}{
		{name: "missing base url", modify: func(c *config.Config) { c.BaseURL = "" }},
		{name: "unknown schema", modify: func(c *config.Config) { c.Schema = "nope" }},
		{name: "unknown journal", modify: func(c *config.Config) { c.Journal.Type = "postgres" }},
		{name: "bad base url scheme", modify: func(c *config.Config) { c.BaseURL = "ftp://example.com" }},
		{name: "unknown encryption", modify: func(c *config.Config) { c.Encryption.Type = "gpg" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.NewConfig("http://localhost:8099", t.TempDir())
			tt.modify(cfg)
			a, err := NewHbkApp(cfg, NewOperation("List", ""))
			if err == nil {
				a.Close()
				t.Fatal("NewHbkApp() expected error")
			}
		})
	}
}

func TestHbkApp_ListAndSummary(t *testing.T) {
	env := newTestEnv(t)
	env.backend.Seed(
		testutil.Synced("a", true, 1000, 1100),
		testutil.LocalOnly("b", false, 500),
		testutil.RemoteOnly("c", false, 300),
	)

	a := env.open(t, "Summary", "")
	defer a.Close()

	view, err := a.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if got := strings.Join(view.IDs(), ","); got != "a,b,c" {
		t.Errorf("IDs() = %q, want a,b,c", got)
	}

	summaries, err := a.Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("len(Summary()) = %d, want 2", len(summaries))
	}
	local, remote := summaries[0], summaries[1]
	if local.Count != 2 || local.PinnedCount != 1 || local.SizeMB != 1500 {
		t.Errorf("local summary = %+v", local)
	}
	if remote.Count != 2 || remote.NonPinnedCount != 1 || remote.SizeMB != 1400 {
		t.Errorf("remote summary = %+v", remote)
	}
}

func TestHbkApp_CommandsAreJournaled(t *testing.T) {
	env := newTestEnv(t)
	env.backend.Seed(testutil.Synced("a", false, 10, 10))
	ctx := context.Background()

	a := env.open(t, "Pin", "a")
	if err := a.Pin(ctx, "a"); err != nil {
		t.Fatalf("Pin() error = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	env.backend.Fail(http.MethodDelete, "/backups/:id", http.StatusInternalServerError, "disk busy")
	a = env.open(t, "Delete", "a")
	err := a.Delete(ctx, "a")
	if err == nil {
		t.Fatal("Delete() expected error")
	}
	var opErr *hbk.OpError
	if !errors.As(err, &opErr) || opErr.Kind != hbk.KindUnexpectedStatus {
		t.Errorf("Delete() error = %v, want unexpected status OpError", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	entries := env.history(t)
	// Newest first; the History command itself is still running.
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(entries))
	}
	del, pin := entries[1], entries[2]
	if pin.Operation != "Pin" || pin.BackupID != "a" || pin.Status != journal.StatusSuccess || !pin.FinishedAt.Valid {
		t.Errorf("pin entry = %+v", pin)
	}
	if del.Operation != "Delete" || del.Status != journal.StatusError || !strings.Contains(del.Error, "disk busy") {
		t.Errorf("delete entry = %+v", del)
	}
	if entries[0].Status != journal.StatusRunning {
		t.Errorf("current entry status = %q, want %q", entries[0].Status, journal.StatusRunning)
	}

	if sent := env.notifier.Sent(); len(sent) != 1 || sent[0].Severity != hbk.SeverityError {
		t.Errorf("notifications = %+v, want one error", sent)
	}
}

func TestHbkApp_IDCommandsReconcileAgainstBackend(t *testing.T) {
	env := newTestEnv(t)
	env.backend.Seed(testutil.Synced("a", false, 10, 10))
	ctx := context.Background()

	a := env.open(t, "Pin", "a")
	if err := a.Pin(ctx, "a"); err != nil {
		t.Fatalf("Pin() error = %v", err)
	}
	if rec, ok := a.registry.Get("a"); !ok || !rec.Pinned {
		t.Errorf("registry record = %+v, %v; want pinned", rec, ok)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	logData, err := os.ReadFile(filepath.Join(env.cfg.LogDir, "hbk.log"))
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	if strings.Contains(string(logData), "inconsistency") {
		t.Errorf("successful pin logged an inconsistency:\n%s", logData)
	}

	t.Run("unknown id", func(t *testing.T) {
		a := env.open(t, "Unpin", "zzz")
		defer a.Close()
		err := a.Unpin(ctx, "zzz")
		if !errors.Is(err, ErrUnknownBackup) {
			t.Fatalf("Unpin() error = %v, want ErrUnknownBackup", err)
		}
		if recs := env.backend.Records(); len(recs) != 1 || !recs[0].Pinned {
			t.Errorf("backend records = %+v", recs)
		}
	})
}

func TestHbkApp_CreateAndReset(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.open(t, "Create", "")
	defer a.Close()

	if err := a.Create(ctx, "before upgrade"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if n := len(env.backend.Records()); n != 1 {
		t.Fatalf("backend holds %d records, want 1", n)
	}
	if err := a.Reset(ctx); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	view, err := a.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if view.Count() != 0 {
		t.Errorf("Count() after reset = %d, want 0", view.Count())
	}
}

func TestHbkApp_NextBackup(t *testing.T) {
	env := newTestEnv(t)
	env.backend.SetNextBackup(90 * time.Minute)
	a := env.open(t, "NextBackup", "")
	defer a.Close()

	d, err := a.NextBackup(context.Background())
	if err != nil {
		t.Fatalf("NextBackup() error = %v", err)
	}
	if d != 90*time.Minute {
		t.Errorf("NextBackup() = %v, want 1h30m", d)
	}
}

func TestHbkApp_Download(t *testing.T) {
	env := newTestEnv(t)
	env.backend.Seed(testutil.Synced("2024/01/15", false, 1, 1))
	a := env.open(t, "Download", "2024/01/15")
	defer a.Close()

	loc, err := a.Download(context.Background(), "2024/01/15", "")
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if loc != "memory:2024_01_15.tar" {
		t.Errorf("Download() location = %q", loc)
	}

	var buf bytes.Buffer
	if err := env.store.Get(context.Background(), "2024_01_15.tar", &buf); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !bytes.Equal(buf.Bytes(), fakeapi.Archive("2024/01/15")) {
		t.Errorf("stored archive = %q", buf.Bytes())
	}
}

func TestHbkApp_DownloadFailureStoresNothing(t *testing.T) {
	env := newTestEnv(t)
	a := env.open(t, "Download", "missing")
	defer a.Close()

	if _, err := a.Download(context.Background(), "missing", ""); err == nil {
		t.Fatal("Download() expected error")
	}
	if names := env.store.Names(); len(names) != 0 {
		t.Errorf("store holds %v after failed download", names)
	}
}

func TestHbkApp_EncryptedDownloadRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Encryption.Type = "age"
	env.backend.Seed(testutil.LocalOnly("abc", false, 1))
	ctx := context.Background()

	keys := env.open(t, "KeysInit", "")
	if err := keys.InitKeys("hunter2"); err != nil {
		t.Fatalf("InitKeys() error = %v", err)
	}
	keys.Close()

	a := env.open(t, "Download", "abc")
	defer a.Close()
	if _, err := a.Download(ctx, "abc", ""); err != nil {
		t.Fatalf("Download() error = %v", err)
	}

	var stored bytes.Buffer
	if err := env.store.Get(ctx, "abc.tar.enc", &stored); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if bytes.Contains(stored.Bytes(), fakeapi.Archive("abc")) {
		t.Error("stored archive is not encrypted")
	}

	var plain bytes.Buffer
	if err := a.Decrypt(ctx, "abc.tar.enc", "hunter2", &plain); err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if !bytes.Equal(plain.Bytes(), fakeapi.Archive("abc")) {
		t.Errorf("Decrypt() = %q", plain.Bytes())
	}
	if err := a.Decrypt(ctx, "abc.tar.enc", "wrong", &plain); err == nil {
		t.Error("Decrypt() with wrong passphrase expected error")
	}
}

func TestHbkApp_KeysRequireEncryption(t *testing.T) {
	env := newTestEnv(t)
	a := env.open(t, "KeysInit", "")
	defer a.Close()

	if err := a.InitKeys("pass"); err == nil {
		t.Error("InitKeys() with encryption disabled expected error")
	}
	if err := a.Decrypt(context.Background(), "x.tar", "pass", &bytes.Buffer{}); err == nil {
		t.Error("Decrypt() with encryption disabled expected error")
	}
}

func TestHbkApp_Settings(t *testing.T) {
	env := newTestEnv(t)
	env.backend.SetSettings(map[string]any{"backupInterval": 3, "storageBackend": "S3"})
	ctx := context.Background()
	a := env.open(t, "SettingsSet", "")
	defer a.Close()

	got, err := a.UpdateSettings(ctx, []string{"backupsInHA=4", "backupNameFormat=Full {date}"})
	if err != nil {
		t.Fatalf("UpdateSettings() error = %v", err)
	}
	opts, err := got.Options()
	if err != nil {
		t.Fatalf("Options() error = %v", err)
	}
	if opts.BackupsInHA != 4 || opts.BackupInterval != 3 || opts.BackupNameFormat != "Full {date}" || opts.StorageBackend != "S3" {
		t.Errorf("Options() = %+v", opts)
	}

	fetched, err := a.Settings(ctx)
	if err != nil {
		t.Fatalf("Settings() error = %v", err)
	}
	if fetched["backupNameFormat"] != "Full {date}" {
		t.Errorf("backend settings = %v", fetched)
	}

	for _, bad := range [][]string{{"noequals"}, {"=4"}, {"backupsInHA=lots"}} {
		if _, err := a.UpdateSettings(ctx, bad); err == nil {
			t.Errorf("UpdateSettings(%q) expected error", bad)
		}
	}
}

func TestHbkApp_ExportHistory(t *testing.T) {
	env := newTestEnv(t)
	a := env.open(t, "HistoryExport", "")
	defer a.Close()

	dest := filepath.Join(t.TempDir(), "export.db")
	if err := a.ExportHistory(dest); err != nil {
		t.Fatalf("ExportHistory() error = %v", err)
	}
	if _, err := os.Stat(dest); err != nil {
		t.Errorf("export not written: %v", err)
	}
}

func TestHbkApp_ArchiveName(t *testing.T) {
	env := newTestEnv(t)
	a := env.open(t, "Download", "")
	defer a.Close()

	tests := []struct {
		id   string
		want string
	}{
		{id: "abc", want: "abc.tar"},
		{id: "2024/01/15", want: "2024_01_15.tar"},
		{id: "../etc", want: "backup.._etc.tar"},
	}
	for _, tt := range tests {
		if got := a.ArchiveName(tt.id); got != tt.want {
			t.Errorf("ArchiveName(%q) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

func TestParseSettingValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{in: "4", want: int64(4)},
		{in: "2.5", want: 2.5},
		{in: "true", want: true},
		{in: "S3", want: "S3"},
	}
	for _, tt := range tests {
		if got := parseSettingValue(tt.in); got != tt.want {
			t.Errorf("parseSettingValue(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}
