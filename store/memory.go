package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatrelay/domain"
)

// MemoryStore implements Store with an in-process map. It is the availability
// fallback when the durable backend is unreachable; contents do not survive a
// process restart. Expiry is checked against the wall clock at read time.
type MemoryStore struct {
	mu       sync.RWMutex
	ttl      time.Duration
	sessions map[string]*memSession
}

type memSession struct {
	session  domain.Session
	messages []domain.Message
}

// NewMemoryStore creates an empty in-memory store. ttl is the default expiry
// window applied when AddMessage auto-creates a session.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:      ttl,
		sessions: make(map[string]*memSession),
	}
}

// CreateSession creates a new session.
func (s *MemoryStore) CreateSession(ctx context.Context, id string, expiresAt time.Time) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := domain.Session{
		ID:        id,
		CreatedAt: time.Now(),
		ExpiresAt: expiresAt,
	}
	s.sessions[id] = &memSession{session: session}
	return &session, nil
}

// GetSession retrieves a session with its messages in insertion order. An
// expired session is deleted as part of the read and reported as
// domain.ErrSessionExpired. Callers receive copies of stored state.
func (s *MemoryStore) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ms, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	if ms.session.Expired(time.Now()) {
		delete(s.sessions, id)
		return nil, domain.ErrSessionExpired
	}

	session := ms.session
	session.Messages = copyMessages(ms.messages)
	return &session, nil
}

// DeleteSession removes a session. Deleting an unknown id is not an error.
func (s *MemoryStore) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// AddMessage appends a message, auto-creating the session with the default
// expiry window if it does not exist.
func (s *MemoryStore) AddMessage(ctx context.Context, sessionID string, msg *domain.Message) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	ms, ok := s.sessions[sessionID]
	if ok && ms.session.Expired(now) {
		delete(s.sessions, sessionID)
		ok = false
	}
	if !ok {
		ms = &memSession{session: domain.Session{
			ID:        sessionID,
			CreatedAt: now,
			ExpiresAt: domain.NewExpiry(now, s.ttl),
		}}
		s.sessions[sessionID] = ms
	}

	stored := *msg
	stored.ID = "msg_" + uuid.New().String()[:8]
	stored.SessionID = sessionID
	stored.CreatedAt = now
	stored.Attachments = make([]domain.Attachment, len(msg.Attachments))
	for i, att := range msg.Attachments {
		att.ID = "att_" + uuid.New().String()[:8]
		stored.Attachments[i] = att
	}

	ms.messages = append(ms.messages, stored)
	result := stored
	result.Attachments = append([]domain.Attachment(nil), stored.Attachments...)
	return &result, nil
}

// RefreshSession extends a session's expiry.
func (s *MemoryStore) RefreshSession(ctx context.Context, id string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ms, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("session %s not found", id)
	}
	ms.session.ExpiresAt = expiresAt
	return nil
}

// DeleteExpiredSessions removes every session whose expiry has passed.
func (s *MemoryStore) DeleteExpiredSessions(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	count := 0
	for id, ms := range s.sessions {
		if ms.session.Expired(now) {
			delete(s.sessions, id)
			count++
		}
	}
	return count, nil
}

// SessionStats returns aggregate session counts.
func (s *MemoryStore) SessionStats(ctx context.Context) (*domain.SessionStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	stats := &domain.SessionStats{Total: len(s.sessions)}
	for _, ms := range s.sessions {
		if ms.session.Expired(now) {
			stats.Expired++
		} else {
			stats.Active++
		}
	}
	return stats, nil
}

// Close is a no-op for the in-memory backend.
func (s *MemoryStore) Close() error {
	return nil
}

func copyMessages(messages []domain.Message) []domain.Message {
	if messages == nil {
		return nil
	}
	out := make([]domain.Message, len(messages))
	for i, msg := range messages {
		out[i] = msg
		out[i].Attachments = append([]domain.Attachment(nil), msg.Attachments...)
	}
	return out
}
