// Package session manages session lifecycle on top of the storage backend.
package session

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"chatrelay/domain"
	"chatrelay/store"
)

// Manager orchestrates get-or-create, expiry eviction and cleanup of
// sessions. It is storage-agnostic; expiry eviction itself happens inside
// the store's self-healing reads.
type Manager struct {
	store store.Store
	ttl   time.Duration
}

// NewManager creates a manager with the configured expiry window.
func NewManager(s store.Store, ttl time.Duration) *Manager {
	return &Manager{store: s, ttl: ttl}
}

// GetOrCreate resolves a session by id, generating a fresh identifier when
// none is given. An expired session is evicted by the read and replaced with
// a fresh one under the same id.
func (m *Manager) GetOrCreate(ctx context.Context, id string) (*domain.Session, error) {
	if id == "" {
		id = uuid.New().String()
	}

	session, err := m.store.GetSession(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrSessionExpired) {
		return nil, err
	}
	if session != nil {
		return session, nil
	}

	return m.store.CreateSession(ctx, id, domain.NewExpiry(time.Now(), m.ttl))
}

// Refresh extends a session's expiry to now plus the configured window.
// Refresh is best-effort: failures are logged and never fail the caller's
// request.
func (m *Manager) Refresh(ctx context.Context, id string) {
	if err := m.store.RefreshSession(ctx, id, domain.NewExpiry(time.Now(), m.ttl)); err != nil {
		log.Printf("WARN: failed to refresh session %s: %v", id, err)
	}
}

// Delete removes a session explicitly and reports whether one existed.
// Failures are logged and reported as false.
func (m *Manager) Delete(ctx context.Context, id string) bool {
	session, err := m.store.GetSession(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrSessionExpired) {
		log.Printf("WARN: failed to look up session %s for deletion: %v", id, err)
		return false
	}
	if session == nil {
		return false
	}
	if err := m.store.DeleteSession(ctx, id); err != nil {
		log.Printf("WARN: failed to delete session %s: %v", id, err)
		return false
	}
	return true
}

// CleanupExpired sweeps expired sessions and returns the number removed.
// Intended to run on a recurring schedule; failures are logged and reported
// as zero.
func (m *Manager) CleanupExpired(ctx context.Context) int {
	count, err := m.store.DeleteExpiredSessions(ctx)
	if err != nil {
		log.Printf("WARN: failed to clean up expired sessions: %v", err)
		return 0
	}
	return count
}

// Stats returns a read-only diagnostic aggregate over stored sessions.
func (m *Manager) Stats(ctx context.Context) (*domain.SessionStats, error) {
	return m.store.SessionStats(ctx)
}
