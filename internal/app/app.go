package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"hbk-go/internal/archive"
	"hbk-go/internal/config"
	"hbk-go/internal/encryption"
	"hbk-go/internal/hbk"
	"hbk-go/internal/journal"
	"hbk-go/internal/notify"
	"hbk-go/internal/transport"
)

// HbkApp is the application layer between the CLI and BackupService.
// It constructs all dependencies from config, journals the command being
// run, and releases the journal and log file on Close.
type HbkApp struct {
	cfg       *config.Config
	clock     hbk.Clock
	registry  *hbk.Registry
	service   *hbk.BackupService
	settings  *hbk.ConfigStore
	journal   *journal.SQLiteJournal
	encryptor encryption.Encryptor
	store     archive.Store
	logger    hbk.Logger
	op        *Operation
	logFile   *os.File
}

// Option overrides a dependency NewHbkApp would otherwise build from config.
type Option func(*appOptions)

type appOptions struct {
	transport hbk.Transport
	notifier  hbk.Notifier
	clock     hbk.Clock
	idgen     hbk.IDGenerator
	store     archive.Store
	logEcho   io.Writer
}

// WithTransport replaces the HTTP transport.
func WithTransport(t hbk.Transport) Option {
	return func(o *appOptions) { o.transport = t }
}

// WithNotifier replaces the terminal notifier.
func WithNotifier(n hbk.Notifier) Option {
	return func(o *appOptions) { o.notifier = n }
}

// WithClock sets the clock used for journal timestamps.
func WithClock(c hbk.Clock) Option {
	return func(o *appOptions) { o.clock = c }
}

// WithIDGenerator sets the generator for operation ids.
func WithIDGenerator(g hbk.IDGenerator) Option {
	return func(o *appOptions) { o.idgen = g }
}

// WithArchiveStore replaces the download destination.
func WithArchiveStore(s archive.Store) Option {
	return func(o *appOptions) { o.store = s }
}

// WithLogEcho copies warnings and errors to w in addition to the log file.
// Pass nil to log to the file only.
func WithLogEcho(w io.Writer) Option {
	return func(o *appOptions) { o.logEcho = w }
}

// NewHbkApp creates a fully wired HbkApp from the given config.
// op identifies the CLI command being run and is journaled immediately.
// The caller must call Close when done.
func NewHbkApp(cfg *config.Config, op *Operation, opts ...Option) (*HbkApp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	o := appOptions{
		clock: hbk.RealClock{},
		idgen: hbk.UUIDGenerator{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	schemaName := cfg.Schema
	if schemaName == "" {
		schemaName = "canonical"
	}
	decoder, err := hbk.LookupDecoder(schemaName)
	if err != nil {
		return nil, fmt.Errorf("selecting schema: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	opID := o.idgen.New()
	slogger, logFile, err := newLogger(cfg.LogDir, opID, o.logEcho)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	tr := o.transport
	if tr == nil {
		ht, err := transport.New(transport.Options{
			BaseURL:  cfg.BaseURL,
			Timeout:  cfg.Timeout.Duration,
			RetryMax: cfg.RetryMax,
			Logger:   logger,
		})
		if err != nil {
			logFile.Close()
			return nil, fmt.Errorf("creating transport: %w", err)
		}
		tr = ht
	}

	j, err := journal.NewFromConfig(cfg.Journal, o.clock)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	if err := j.CheckMigrations(); err != nil {
		j.Close()
		logFile.Close()
		return nil, fmt.Errorf("journal schema out of date: %w", err)
	}

	entry, err := j.Start(opID, op.Name, op.BackupID)
	if err != nil {
		j.Close()
		logFile.Close()
		return nil, fmt.Errorf("journaling operation: %w", err)
	}
	op.EntryID = entry.ID

	registry := hbk.NewRegistry(logger)
	svc := hbk.NewBackupService(registry, tr, decoder, logger, o.idgen)

	n := o.notifier
	if n == nil && cfg.Notify.Enabled {
		n = notify.NewTerminal(os.Stderr, false)
	}
	if n != nil {
		svc = svc.WithNotifier(n, cfg.Notify.Duration.Duration)
	}

	logger.Debug("app started", "operation", op.Name, "schema", decoder.Name(), "base_url", cfg.BaseURL)

	return &HbkApp{
		cfg:       cfg,
		clock:     o.clock,
		registry:  registry,
		service:   svc,
		settings:  hbk.NewConfigStore(tr, logger, o.idgen),
		journal:   j,
		encryptor: enc,
		store:     o.store,
		logger:    logger,
		op:        op,
		logFile:   logFile,
	}, nil
}

// check converts a failed Result into an error and records it on the
// operation.
func (a *HbkApp) check(r hbk.Result) error {
	if r.OK {
		return nil
	}
	var err error = r.Err
	if r.Err == nil {
		err = errors.New("operation failed")
	}
	a.op.Fail(err)
	return err
}

// fail records a failure that happened outside the service.
func (a *HbkApp) fail(err error) error {
	a.op.Fail(err)
	return err
}

// List refreshes the registry from the backend and returns a snapshot.
func (a *HbkApp) List(ctx context.Context) (hbk.View, error) {
	if err := a.check(a.service.List(ctx)); err != nil {
		return hbk.View{}, err
	}
	return a.registry.Snapshot(), nil
}

// Summary refreshes the registry and summarises both tiers.
func (a *HbkApp) Summary(ctx context.Context) ([]hbk.TierSummary, error) {
	view, err := a.List(ctx)
	if err != nil {
		return nil, err
	}
	return []hbk.TierSummary{view.Summary(hbk.Local), view.Summary(hbk.Remote)}, nil
}

// Create asks the backend for a new full backup named name.
func (a *HbkApp) Create(ctx context.Context, name string) error {
	return a.check(a.service.Create(ctx, name))
}

// ErrUnknownBackup is returned when a command names a backup the backend
// does not list.
var ErrUnknownBackup = errors.New("unknown backup")

// lookup loads the registry so the service reconciles against the
// backend's records, and checks that id is one of them.
func (a *HbkApp) lookup(ctx context.Context, id string) error {
	if err := a.check(a.service.List(ctx)); err != nil {
		return err
	}
	if _, ok := a.registry.Get(id); !ok {
		return a.fail(fmt.Errorf("%w %q", ErrUnknownBackup, id))
	}
	return nil
}

// Delete removes a backup from every tier.
func (a *HbkApp) Delete(ctx context.Context, id string) error {
	if err := a.lookup(ctx, id); err != nil {
		return err
	}
	return a.check(a.service.Delete(ctx, id))
}

// Pin protects a backup from retention.
func (a *HbkApp) Pin(ctx context.Context, id string) error {
	if err := a.lookup(ctx, id); err != nil {
		return err
	}
	return a.check(a.service.Pin(ctx, id))
}

// Unpin returns a backup to normal retention.
func (a *HbkApp) Unpin(ctx context.Context, id string) error {
	if err := a.lookup(ctx, id); err != nil {
		return err
	}
	return a.check(a.service.Unpin(ctx, id))
}

// Restore asks the backend to restore a backup on the local host.
func (a *HbkApp) Restore(ctx context.Context, id string) error {
	return a.check(a.service.Restore(ctx, id))
}

// Reset clears the backend's tracking state.
func (a *HbkApp) Reset(ctx context.Context) error {
	return a.check(a.service.Reset(ctx))
}

// NextBackup returns the time until the next scheduled backup.
func (a *HbkApp) NextBackup(ctx context.Context) (time.Duration, error) {
	d, r := a.service.NextBackup(ctx)
	if err := a.check(r); err != nil {
		return 0, err
	}
	return d, nil
}

var archiveNameReplacer = strings.NewReplacer("/", "_", "\\", "_", ":", "_")

// ArchiveName is the default name a downloaded backup is stored under.
func (a *HbkApp) ArchiveName(id string) string {
	name := archiveNameReplacer.Replace(id) + ".tar"
	if strings.HasPrefix(name, ".") {
		name = "backup" + name
	}
	if a.encryptor != nil {
		name += ".enc"
	}
	return name
}

// Download fetches a backup archive into the configured store, encrypting
// it when encryption is enabled. It returns where the archive was stored.
// An empty name selects ArchiveName(id).
func (a *HbkApp) Download(ctx context.Context, id, name string) (string, error) {
	if name == "" {
		name = a.ArchiveName(id)
	}
	store, err := a.archiveStore(ctx)
	if err != nil {
		return "", a.fail(err)
	}

	w, err := store.Create(ctx, name)
	if err != nil {
		return "", a.fail(fmt.Errorf("creating archive: %w", err))
	}

	var sink io.Writer = w
	var ew io.WriteCloser
	if a.encryptor != nil {
		ew, err = a.encryptor.NewWriter(w)
		if err != nil {
			w.Abort()
			return "", a.fail(fmt.Errorf("starting encryption: %w", err))
		}
		sink = ew
	}

	if err := a.check(a.service.Download(ctx, id, sink)); err != nil {
		w.Abort()
		return "", err
	}
	if ew != nil {
		if err := ew.Close(); err != nil {
			w.Abort()
			return "", a.fail(fmt.Errorf("finishing encryption: %w", err))
		}
	}
	if err := w.Commit(); err != nil {
		return "", a.fail(fmt.Errorf("storing archive: %w", err))
	}

	loc := store.Location(name)
	a.logger.Info("archive stored", "id", id, "location", loc, "encrypted", a.encryptor != nil)
	return loc, nil
}

// Decrypt writes the plaintext of a stored archive to out.
func (a *HbkApp) Decrypt(ctx context.Context, name, passphrase string, out io.Writer) error {
	if a.encryptor == nil {
		return a.fail(fmt.Errorf("encryption is disabled in the config"))
	}
	store, err := a.archiveStore(ctx)
	if err != nil {
		return a.fail(err)
	}
	dc, err := a.encryptor.Unlock(passphrase)
	if err != nil {
		return a.fail(fmt.Errorf("unlocking key: %w", err))
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(store.Get(ctx, name, pw))
	}()
	err = dc.Decrypt(pr, out)
	pr.Close()
	if err != nil {
		return a.fail(err)
	}
	return nil
}

// InitKeys creates the encryption key pair.
func (a *HbkApp) InitKeys(passphrase string) error {
	if a.encryptor == nil {
		return a.fail(fmt.Errorf("encryption is disabled in the config"))
	}
	if err := a.encryptor.Setup(passphrase); err != nil {
		return a.fail(fmt.Errorf("creating keys: %w", err))
	}
	return nil
}

func (a *HbkApp) archiveStore(ctx context.Context) (archive.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	s, err := archive.NewStoreFromConfig(ctx, a.cfg.Download)
	if err != nil {
		return nil, fmt.Errorf("creating download store: %w", err)
	}
	a.store = s
	return s, nil
}

// Settings fetches the backend's add-on settings.
func (a *HbkApp) Settings(ctx context.Context) (hbk.Settings, error) {
	if err := a.check(a.settings.Fetch(ctx)); err != nil {
		return nil, err
	}
	return a.settings.Settings(), nil
}

// UpdateSettings merges key=value pairs into the backend's settings and
// saves them. Values that parse as integers, floats or booleans are sent
// as such. It returns the saved settings.
func (a *HbkApp) UpdateSettings(ctx context.Context, pairs []string) (hbk.Settings, error) {
	updates := hbk.Settings{}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, a.fail(fmt.Errorf("invalid setting %q, want key=value", p))
		}
		updates[k] = parseSettingValue(v)
	}

	current, err := a.Settings(ctx)
	if err != nil {
		return nil, err
	}
	if current == nil {
		current = hbk.Settings{}
	}
	for k, v := range updates {
		current[k] = v
	}
	if _, err := current.Options(); err != nil {
		return nil, a.fail(fmt.Errorf("invalid settings: %w", err))
	}

	if err := a.check(a.settings.Save(ctx, current)); err != nil {
		return nil, err
	}
	return a.settings.Settings(), nil
}

func parseSettingValue(v string) any {
	if i, err := strconv.ParseInt(v, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return v
}

// History returns the most recent journal entries, optionally for one
// backup id.
func (a *HbkApp) History(limit int, backupID string) ([]*journal.Entry, error) {
	entries, err := a.journal.List(limit, backupID)
	if err != nil {
		return nil, a.fail(err)
	}
	return entries, nil
}

// ExportHistory writes a consistent copy of the journal database to dest.
func (a *HbkApp) ExportHistory(dest string) error {
	if err := a.journal.ExportTo(dest); err != nil {
		return a.fail(err)
	}
	return nil
}

// Now returns the app clock's current time.
func (a *HbkApp) Now() time.Time { return a.clock.Now() }

// Close finishes the journal entry for this command with its outcome and
// closes the journal and the log file.
func (a *HbkApp) Close() error {
	var firstErr error

	if a.op.Persisted() {
		if err := a.journal.Finish(a.op.EntryID, a.op.Status, a.op.Error); err != nil {
			firstErr = fmt.Errorf("finishing journal entry: %w", err)
		}
	}

	if err := a.journal.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing journal: %w", err)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
