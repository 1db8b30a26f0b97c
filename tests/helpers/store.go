// Package helpers provides shared test fixtures.
package helpers

import (
	"path/filepath"
	"testing"
	"time"

	"chatrelay/store"
)

// NewTestSQLiteStore opens a throwaway database file. A file DSN is used
// because :memory: gives each pooled connection its own empty database.
func NewTestSQLiteStore(t *testing.T, ttl time.Duration) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"), ttl)
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}

func NewTestMemoryStore(t *testing.T, ttl time.Duration) *store.MemoryStore {
	t.Helper()
	return store.NewMemoryStore(ttl)
}
