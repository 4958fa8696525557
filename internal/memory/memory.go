// Package memory implements best-effort long-term memory for the assistant.
//
// Session transcript records are periodically synced into a JSON snapshot
// file. Sync failures are logged and swallowed by callers: memory is a
// secondary channel and must never disturb the live session.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/syedmehfooz47/Friday2/internal/chatlog"
)

// Entry is one remembered conversation item.
type Entry struct {
	ID        string       `json:"id"`
	Timestamp time.Time    `json:"timestamp"`
	Role      chatlog.Role `json:"role"`
	Content   string       `json:"content"`
}

// Syncer persists conversation records into long-term memory.
type Syncer interface {
	// Sync stores any records not yet remembered. Already-synced records
	// are skipped, so callers may pass the full session history each time.
	Sync(ctx context.Context, records []chatlog.Record) error
}

// Compile-time assertion.
var _ Syncer = (*FileStore)(nil)

// FileStore is a Syncer backed by a single JSON snapshot file.
type FileStore struct {
	path string

	mu      sync.Mutex
	entries []Entry
	seen    map[string]struct{}
	loaded  bool
}

// NewFileStore creates a store backed by the snapshot file at path. The file
// is loaded lazily on first use.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, seen: make(map[string]struct{})}
}

// seenKey identifies a record for dedup purposes.
func seenKey(role chatlog.Role, content string) string {
	return string(role) + "\x00" + content
}

// loadLocked reads the snapshot file once. Caller holds mu.
func (s *FileStore) loadLocked() error {
	if s.loaded {
		return nil
	}
	s.loaded = true

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("memory: read %q: %w", s.path, err)
	}
	if err := json.Unmarshal(data, &s.entries); err != nil {
		return fmt.Errorf("memory: parse %q: %w", s.path, err)
	}
	for _, e := range s.entries {
		s.seen[seenKey(e.Role, e.Content)] = struct{}{}
	}
	return nil
}

// Sync stores records not seen before and writes the snapshot to disk.
func (s *FileStore) Sync(ctx context.Context, records []chatlog.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return err
	}

	added := 0
	for _, rec := range records {
		if rec.Content == "" {
			continue
		}
		key := seenKey(rec.Role, rec.Content)
		if _, ok := s.seen[key]; ok {
			continue
		}
		s.seen[key] = struct{}{}
		s.entries = append(s.entries, Entry{
			ID:        uuid.NewString(),
			Timestamp: rec.Timestamp,
			Role:      rec.Role,
			Content:   rec.Content,
		})
		added++
	}
	if added == 0 {
		return nil
	}
	return s.writeLocked()
}

// writeLocked serialises the snapshot atomically via a temp file rename.
// Caller holds mu.
func (s *FileStore) writeLocked() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("memory: marshal: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("memory: write %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("memory: rename %q: %w", tmp, err)
	}
	return nil
}

// Recall returns at most limit most recent entries, oldest first. A limit of
// zero or less returns everything.
func (s *FileStore) Recall(limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return nil, err
	}

	entries := s.entries
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out, nil
}
