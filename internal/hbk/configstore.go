package hbk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/mitchellh/mapstructure"
)

// Settings is the backend's key/value configuration object.
type Settings map[string]any

// AddonOptions are the settings keys this client understands.
type AddonOptions struct {
	BackupNameFormat string `mapstructure:"backupNameFormat"`
	BackupInterval   int    `mapstructure:"backupInterval"`   // days between scheduled backups
	BackupsInHA      int    `mapstructure:"backupsInHA"`      // non-pinned backups kept on the local tier
	BackupsInStorage int    `mapstructure:"backupsInStorage"` // non-pinned backups kept on the remote tier
	StorageBackend   string `mapstructure:"storageBackend"`
}

// Options decodes the known keys. Unknown keys are ignored and numeric
// values sent as JSON numbers or strings are accepted.
func (s Settings) Options() (AddonOptions, error) {
	var opts AddonOptions
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &opts,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return AddonOptions{}, fmt.Errorf("creating settings decoder: %w", err)
	}
	if err := dec.Decode(map[string]any(s)); err != nil {
		return AddonOptions{}, fmt.Errorf("decoding settings: %w", err)
	}
	return opts, nil
}

func (s Settings) clone() Settings {
	if s == nil {
		return nil
	}
	cp := make(Settings, len(s))
	for k, v := range s {
		cp[k] = v
	}
	return cp
}

// ConfigStore proxies the backend configuration object and keeps the last
// value known to be stored on the backend. It uses the same Result contract
// as BackupService.
type ConfigStore struct {
	transport Transport
	logger    Logger
	idgen     IDGenerator

	mu       sync.RWMutex
	settings Settings
}

// NewConfigStore creates an empty ConfigStore. Nil logger and idgen are
// defaulted as in NewBackupService.
func NewConfigStore(transport Transport, logger Logger, idgen IDGenerator) *ConfigStore {
	if logger == nil {
		logger = NewNopLogger()
	}
	if idgen == nil {
		idgen = UUIDGenerator{}
	}
	return &ConfigStore{transport: transport, logger: logger, idgen: idgen}
}

// Settings returns a copy of the cached settings.
func (c *ConfigStore) Settings() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings.clone()
}

// Fetch loads the settings from the backend.
func (c *ConfigStore) Fetch(ctx context.Context) Result {
	opID := c.idgen.New()
	resp, opErr := roundTrip(ctx, c.transport, request{op: "config fetch", method: http.MethodGet, path: "/config", expect: is2xx})
	if opErr != nil {
		return c.fail(opID, opErr)
	}
	defer resp.Body.Close()

	var settings Settings
	if err := json.NewDecoder(resp.Body).Decode(&settings); err != nil {
		return c.fail(opID, &OpError{Kind: KindDecode, Op: "config fetch", Status: resp.Status, Message: err.Error(), Err: err})
	}

	c.mu.Lock()
	c.settings = settings
	c.mu.Unlock()
	c.logger.Info("settings fetched", "op_id", opID, "keys", len(settings))
	return Success()
}

// Save stores settings on the backend. The cache is only replaced once the
// backend confirmed the write.
func (c *ConfigStore) Save(ctx context.Context, settings Settings) Result {
	opID := c.idgen.New()
	body, err := json.Marshal(settings)
	if err != nil {
		return c.fail(opID, &OpError{Kind: KindTransport, Op: "config save", Message: err.Error(), Err: err})
	}

	resp, opErr := roundTrip(ctx, c.transport, request{op: "config save", method: http.MethodPost, path: "/config", body: body, expect: exactly(http.StatusOK)})
	if opErr != nil {
		return c.fail(opID, opErr)
	}
	drain(resp)

	c.mu.Lock()
	c.settings = settings.clone()
	c.mu.Unlock()
	c.logger.Info("settings saved", "op_id", opID, "keys", len(settings))
	return Success()
}

func (c *ConfigStore) fail(opID string, opErr *OpError) Result {
	c.logger.Error("operation failed", "op_id", opID, "op", opErr.Op, "kind", string(opErr.Kind), "status", opErr.Status, "error", opErr.Message)
	return Failure(opErr)
}
