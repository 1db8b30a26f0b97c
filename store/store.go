// Package store defines the storage interface and its two backends.
package store

import (
	"context"
	"time"

	"chatrelay/domain"
)

// Store is the uniform contract over the durable (SQLite) and volatile
// (in-memory) session backends.
type Store interface {
	// CreateSession creates a brand-new session with the given expiry.
	CreateSession(ctx context.Context, id string, expiresAt time.Time) (*domain.Session, error)

	// GetSession returns the session with its messages in insertion order.
	// An unknown id returns (nil, nil). A session whose expiry has passed is
	// removed as part of the read and reported as domain.ErrSessionExpired.
	GetSession(ctx context.Context, id string) (*domain.Session, error)

	// DeleteSession removes a session and its messages. Deleting an unknown
	// id is not an error.
	DeleteSession(ctx context.Context, id string) error

	// AddMessage appends a message to a session, auto-creating the session
	// with the default expiry window if it does not exist. It returns the
	// stored message with its assigned id and timestamp.
	AddMessage(ctx context.Context, sessionID string, msg *domain.Message) (*domain.Message, error)

	// RefreshSession extends a session's expiry to the given instant.
	RefreshSession(ctx context.Context, id string, expiresAt time.Time) error

	// DeleteExpiredSessions removes every session whose expiry has passed
	// and returns the number removed. Safe to call concurrently with
	// normal traffic.
	DeleteExpiredSessions(ctx context.Context) (int, error)

	// SessionStats returns aggregate counts over stored sessions.
	SessionStats(ctx context.Context) (*domain.SessionStats, error)

	// Close releases backend resources.
	Close() error
}
