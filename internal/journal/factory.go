package journal

import (
	"fmt"
	"os"
	"path/filepath"

	"hbk-go/internal/config"
	"hbk-go/internal/hbk"
)

// FileName is the journal database name inside the configured data dir.
const FileName = "journal.db"

// NewFromConfig opens the journal selected by cfg.Type.
func NewFromConfig(cfg config.JournalConfig, clock hbk.Clock) (*SQLiteJournal, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite journal")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
		return Open(filepath.Join(cfg.DataDir, FileName), clock)
	case "memory":
		return Open(":memory:", clock)
	default:
		return nil, fmt.Errorf("unknown journal type: %s", cfg.Type)
	}
}
