package memory_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/syedmehfooz47/Friday2/internal/chatlog"
	"github.com/syedmehfooz47/Friday2/internal/memory"
)

func TestGuard_SwallowsSyncFailure(t *testing.T) {
	t.Parallel()
	// A directory as the store path makes every write fail.
	store := memory.NewFileStore(t.TempDir())
	guard := memory.NewGuard(store, nil)

	records := []chatlog.Record{
		{Timestamp: time.Now().UTC(), Role: chatlog.RoleUser, Content: "hello"},
	}
	if err := guard.Sync(context.Background(), records); err != nil {
		t.Fatalf("Sync should swallow the failure, got: %v", err)
	}
	if !guard.IsDegraded() {
		t.Error("guard should be degraded after a failed sync")
	}
}

func TestGuard_RecoversAfterSuccess(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "memory.json")
	store := memory.NewFileStore(path)
	guard := memory.NewGuard(store, nil)

	records := []chatlog.Record{
		{Timestamp: time.Now().UTC(), Role: chatlog.RoleUser, Content: "remember this"},
	}
	if err := guard.Sync(context.Background(), records); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if guard.IsDegraded() {
		t.Error("guard should not be degraded after a successful sync")
	}

	entries, err := guard.Recall(10)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(entries) != 1 || entries[0].Content != "remember this" {
		t.Errorf("entries = %v", entries)
	}
}
