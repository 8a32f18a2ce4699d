package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// FileLedger keeps the ledger as a flat JSON object on disk, the same layout
// as processed_messages.json: {"<channel id>": <last message id>}.
type FileLedger struct {
	path   string
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]int64
}

var _ LedgerRepository = (*FileLedger)(nil)

func NewFileLedger(path string, logger *slog.Logger) *FileLedger {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileLedger{
		path:    path,
		logger:  logger,
		entries: map[string]int64{},
	}
}

// Load never fails on a missing or malformed file; both yield an empty ledger.
func (l *FileLedger) Load(ctx context.Context) (map[string]int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = map[string]int64{}

	raw, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		l.logger.Info("ledger file not found, starting empty", "path", l.path)
		return copyEntries(l.entries), nil
	}
	if err != nil {
		l.logger.Warn("ledger file unreadable, starting empty", "path", l.path, "error", err)
		return copyEntries(l.entries), nil
	}

	var entries map[string]int64
	if err := json.Unmarshal(raw, &entries); err != nil {
		l.logger.Warn("ledger file malformed, starting empty", "path", l.path, "error", err)
		return copyEntries(l.entries), nil
	}
	if entries != nil {
		l.entries = entries
	}

	return copyEntries(l.entries), nil
}

func (l *FileLedger) Save(ctx context.Context, channelKey string, messageID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if messageID > l.entries[channelKey] {
		l.entries[channelKey] = messageID
	}

	b, err := json.Marshal(l.entries)
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}
	return writeFileAtomic(l.path, b)
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp ledger: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp ledger: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}

func copyEntries(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
