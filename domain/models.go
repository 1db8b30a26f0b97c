// Package domain defines the core domain models for the chat relay.
package domain

import "time"

// Message roles. No third value is ever stored.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Session represents a conversation session with an expiry instant and an
// ordered message history.
type Session struct {
	ID        string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Messages  []Message `json:"messages,omitempty"`
}

// Expired reports whether the session's expiry instant has passed. The
// comparison is strictly greater-than: a session expiring at exactly now
// is still live.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// NewExpiry returns the absolute expiry instant for a session anchored at now.
func NewExpiry(now time.Time, ttl time.Duration) time.Time {
	return now.Add(ttl)
}

// Message represents a single turn in a session.
type Message struct {
	ID          string       `json:"message_id"`
	SessionID   string       `json:"session_id"`
	Role        string       `json:"role"` // user or assistant
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Attachment is an inline binary payload carried by a message. It has no
// lifecycle of its own.
type Attachment struct {
	ID        string `json:"attachment_id"`
	Data      string `json:"data"` // base64-encoded payload
	MediaType string `json:"media_type"`
	ByteSize  int64  `json:"byte_size"`
}

// SessionStats is a read-only diagnostic aggregate over stored sessions.
type SessionStats struct {
	Total   int `json:"total"`
	Active  int `json:"active"`
	Expired int `json:"expired"`
}
