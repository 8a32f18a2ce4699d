package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/LeventeLantos/meme-forwarder/internal/repo"
)

// Ledger is the in-memory view of the forwarding watermarks, written through
// to a LedgerRepository on every change.
type Ledger struct {
	repo   repo.LedgerRepository
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]int64
}

// NewLedger loads the stored watermarks. A load failure is logged and the
// ledger starts empty.
func NewLedger(ctx context.Context, r repo.LedgerRepository, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}

	entries, err := r.Load(ctx)
	if err != nil {
		logger.Warn("ledger load failed, starting empty", "error", err)
		entries = nil
	}
	if entries == nil {
		entries = map[string]int64{}
	}

	logger.Info("ledger loaded", "channels", len(entries))

	return &Ledger{
		repo:    r,
		logger:  logger,
		entries: entries,
	}
}

// LastSeen returns the watermark for key, 0 when the channel has none.
func (l *Ledger) LastSeen(key string) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.entries[key]
}

// Record raises the watermark for key to id and persists it. The watermark
// never moves backwards. A persist error is returned but the in-memory value
// stays advanced.
func (l *Ledger) Record(ctx context.Context, key string, id int64) error {
	l.mu.Lock()
	if id > l.entries[key] {
		l.entries[key] = id
	}
	value := l.entries[key]
	l.mu.Unlock()

	if err := l.repo.Save(ctx, key, value); err != nil {
		return fmt.Errorf("persist watermark for %s: %w", key, err)
	}
	return nil
}

func (l *Ledger) Snapshot() map[string]int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]int64, len(l.entries))
	for k, v := range l.entries {
		out[k] = v
	}
	return out
}
