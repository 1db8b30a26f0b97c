package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"chatrelay/domain"
)

// SQLiteStore implements Store using SQLite. Expiry filtering happens in SQL
// against unix-millisecond timestamps so comparisons are timezone-safe.
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
}

// NewSQLiteStore opens (or creates) the database at dsn and runs migrations.
// ttl is the default expiry window applied when AddMessage auto-creates a
// session.
func NewSQLiteStore(dsn string, ttl time.Duration) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", foreignKeysDSN(dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db, ttl: ttl}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// foreignKeysDSN appends the driver's _foreign_keys connection parameter so
// session deletes cascade to messages on every pooled connection. A bare
// PRAGMA would only cover the connection that ran it.
func foreignKeysDSN(dsn string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&_foreign_keys=on"
	}
	return dsn + "?_foreign_keys=on"
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			expires_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at)`,
		`CREATE TABLE IF NOT EXISTS messages (
			message_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS attachments (
			attachment_id TEXT PRIMARY KEY,
			message_id TEXT NOT NULL,
			data TEXT NOT NULL,
			media_type TEXT NOT NULL,
			byte_size INTEGER NOT NULL,
			FOREIGN KEY (message_id) REFERENCES messages(message_id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attachments_message ON attachments(message_id)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	return nil
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSession creates a new session.
func (s *SQLiteStore) CreateSession(ctx context.Context, id string, expiresAt time.Time) (*domain.Session, error) {
	session := &domain.Session{
		ID:        id,
		CreatedAt: time.Now(),
		ExpiresAt: expiresAt,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, created_at, expires_at) VALUES (?, ?, ?)`,
		session.ID, session.CreatedAt, expiresAt.UnixMilli())
	if err != nil {
		return nil, err
	}
	return session, nil
}

// GetSession retrieves a session with its messages in insertion order. An
// expired session is deleted as part of the read and reported as
// domain.ErrSessionExpired.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	session, err := s.getSessionRow(ctx, id)
	if err != nil || session == nil {
		return nil, err
	}
	if session.Expired(time.Now()) {
		if err := s.DeleteSession(ctx, id); err != nil {
			return nil, err
		}
		return nil, domain.ErrSessionExpired
	}

	messages, err := s.getMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	session.Messages = messages
	return session, nil
}

// getSessionRow loads the bare session record without expiry handling.
func (s *SQLiteStore) getSessionRow(ctx context.Context, id string) (*domain.Session, error) {
	var session domain.Session
	var expiresAtMs int64
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, created_at, expires_at FROM sessions WHERE session_id = ?`,
		id).Scan(&session.ID, &session.CreatedAt, &expiresAtMs)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	session.ExpiresAt = time.UnixMilli(expiresAtMs)
	return &session, nil
}

// getMessages loads a session's messages with their attachments. rowid breaks
// created_at ties so rapid appends keep insertion order.
func (s *SQLiteStore) getMessages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, session_id, role, content, created_at FROM messages
		 WHERE session_id = ? ORDER BY created_at ASC, rowid ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	index := make(map[string]int)
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, err
		}
		index[msg.ID] = len(messages)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	attRows, err := s.db.QueryContext(ctx,
		`SELECT a.attachment_id, a.message_id, a.data, a.media_type, a.byte_size
		 FROM attachments a JOIN messages m ON a.message_id = m.message_id
		 WHERE m.session_id = ? ORDER BY a.rowid ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer attRows.Close()

	for attRows.Next() {
		var att domain.Attachment
		var messageID string
		if err := attRows.Scan(&att.ID, &messageID, &att.Data, &att.MediaType, &att.ByteSize); err != nil {
			return nil, err
		}
		if i, ok := index[messageID]; ok {
			messages[i].Attachments = append(messages[i].Attachments, att)
		}
	}
	return messages, attRows.Err()
}

// DeleteSession removes a session; messages and attachments cascade.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, id)
	return err
}

// AddMessage appends a message, auto-creating the session with the default
// expiry window if it does not exist. An expired session is replaced rather
// than appended to.
func (s *SQLiteStore) AddMessage(ctx context.Context, sessionID string, msg *domain.Message) (*domain.Message, error) {
	now := time.Now()
	session, err := s.getSessionRow(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session != nil && session.Expired(now) {
		if err := s.DeleteSession(ctx, sessionID); err != nil {
			return nil, err
		}
		session = nil
	}
	if session == nil {
		if _, err := s.CreateSession(ctx, sessionID, domain.NewExpiry(now, s.ttl)); err != nil {
			return nil, err
		}
	}

	stored := *msg
	stored.ID = "msg_" + uuid.New().String()[:8]
	stored.SessionID = sessionID
	stored.CreatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (message_id, session_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		stored.ID, stored.SessionID, stored.Role, stored.Content, stored.CreatedAt); err != nil {
		return nil, err
	}

	stored.Attachments = make([]domain.Attachment, len(msg.Attachments))
	for i, att := range msg.Attachments {
		att.ID = "att_" + uuid.New().String()[:8]
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO attachments (attachment_id, message_id, data, media_type, byte_size) VALUES (?, ?, ?, ?, ?)`,
			att.ID, stored.ID, att.Data, att.MediaType, att.ByteSize); err != nil {
			return nil, err
		}
		stored.Attachments[i] = att
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &stored, nil
}

// RefreshSession extends a session's expiry.
func (s *SQLiteStore) RefreshSession(ctx context.Context, id string, expiresAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET expires_at = ? WHERE session_id = ?`,
		expiresAt.UnixMilli(), id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("session %s not found", id)
	}
	return nil
}

// DeleteExpiredSessions removes every session whose expiry has passed.
func (s *SQLiteStore) DeleteExpiredSessions(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at < ?`, time.Now().UnixMilli())
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// SessionStats returns aggregate session counts.
func (s *SQLiteStore) SessionStats(ctx context.Context) (*domain.SessionStats, error) {
	var stats domain.SessionStats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN expires_at < ? THEN 1 ELSE 0 END), 0) FROM sessions`,
		time.Now().UnixMilli()).Scan(&stats.Total, &stats.Expired)
	if err != nil {
		return nil, err
	}
	stats.Active = stats.Total - stats.Expired
	return &stats, nil
}
