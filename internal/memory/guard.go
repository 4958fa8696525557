package memory

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/syedmehfooz47/Friday2/internal/chatlog"
)

// Guard wraps a memory store and makes all operations non-fatal. If the
// underlying store fails, operations return defaults and log warnings
// instead of propagating errors, so the session keeps running when the
// memory file is temporarily unwritable.
//
// IsDegraded reports whether the most recent operation failed; readiness
// checks can surface it without the failure ever reaching the audio path.
//
// All methods are safe for concurrent use.
type Guard struct {
	store    *FileStore
	log      *slog.Logger
	degraded atomic.Bool
}

var _ Syncer = (*Guard)(nil)

// NewGuard creates a Guard wrapping the given store.
func NewGuard(store *FileStore, log *slog.Logger) *Guard {
	if log == nil {
		log = slog.Default()
	}
	return &Guard{store: store, log: log}
}

// Sync writes the records to the underlying store. On failure the error is
// logged and swallowed; the store is marked degraded. On success the
// degraded flag clears.
func (g *Guard) Sync(ctx context.Context, records []chatlog.Record) error {
	if err := g.store.Sync(ctx, records); err != nil {
		g.degraded.Store(true)
		g.log.Warn("memory sync failed, continuing without", "err", err)
		return nil
	}
	g.degraded.Store(false)
	return nil
}

// Recall reads the most recent entries. On failure an empty slice is
// returned and the store is marked degraded.
func (g *Guard) Recall(limit int) ([]Entry, error) {
	entries, err := g.store.Recall(limit)
	if err != nil {
		g.degraded.Store(true)
		g.log.Warn("memory recall failed, returning empty", "err", err)
		return []Entry{}, nil
	}
	g.degraded.Store(false)
	return entries, nil
}

// IsDegraded reports whether the most recent store operation failed.
func (g *Guard) IsDegraded() bool {
	return g.degraded.Load()
}
