package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	_ "github.com/lib/pq"           // postgres driver
	_ "modernc.org/sqlite"          // embedded sqlite driver
	"github.com/cratos-run/cratos/pkg/models"
)

// SQLStore persists sessions and messages in a relational database. A
// postgres:// DSN selects lib/pq; anything else is treated as a sqlite
// file path. The schema is created idempotently at open; changes must be
// additive.
type SQLStore struct {
	db       *sql.DB
	postgres bool
}

const sessionSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id               TEXT PRIMARY KEY,
	session_key      TEXT NOT NULL,
	title            TEXT NOT NULL DEFAULT '',
	owner_user_id    TEXT NOT NULL DEFAULT '',
	agent_id         TEXT NOT NULL DEFAULT '',
	channel          TEXT NOT NULL DEFAULT '',
	channel_id       TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL DEFAULT 'idle',
	metadata         TEXT NOT NULL DEFAULT '{}',
	created_at       TIMESTAMP NOT NULL,
	updated_at       TIMESTAMP NOT NULL,
	last_accessed_at TIMESTAMP NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_key ON sessions(session_key);

CREATE TABLE IF NOT EXISTS messages (
	id           TEXT PRIMARY KEY,
	session_id   TEXT NOT NULL,
	channel      TEXT NOT NULL DEFAULT '',
	channel_id   TEXT NOT NULL DEFAULT '',
	direction    TEXT NOT NULL DEFAULT '',
	role         TEXT NOT NULL,
	content      TEXT NOT NULL,
	tool_calls   TEXT NOT NULL DEFAULT '[]',
	tool_results TEXT NOT NULL DEFAULT '[]',
	metadata     TEXT NOT NULL DEFAULT '{}',
	created_at   TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at);
`

// OpenSQLStore opens (and migrates) the session store at url.
func OpenSQLStore(url string, maxConns int, connMaxLifetime time.Duration) (*SQLStore, error) {
	driver := "sqlite"
	postgres := strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://")
	if postgres {
		driver = "postgres"
	}
	db, err := sql.Open(driver, url)
	if err != nil {
		return nil, err
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}
	if connMaxLifetime > 0 {
		db.SetConnMaxLifetime(connMaxLifetime)
	}
	if _, err := db.Exec(sessionSchema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLStore{db: db, postgres: postgres}, nil
}

// DB exposes the underlying handle so other components (scheduler,
// memory) can share one database file/cluster.
func (s *SQLStore) DB() *sql.DB { return s.db }

// rebind converts ?-style placeholders to $n for postgres.
func (s *SQLStore) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$")
			b.WriteString(itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits [8]byte
	i := len(digits)
	for n > 0 {
		i--
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	return string(digits[i:])
}

func (s *SQLStore) Create(ctx context.Context, session *models.Session) error {
	meta, err := json.Marshal(orEmptyMap(session.Metadata))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO sessions (id, session_key, title, owner_user_id, agent_id, channel, channel_id, status, metadata, created_at, updated_at, last_accessed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		session.ID, session.Key, session.Title, session.OwnerUserID, session.AgentID,
		string(session.Channel), session.ChannelID, string(session.Status), string(meta),
		session.CreatedAt, session.UpdatedAt, session.LastAccessedAt)
	return err
}

func (s *SQLStore) Get(ctx context.Context, id string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, session_key, title, owner_user_id, agent_id, channel, channel_id, status, metadata, created_at, updated_at, last_accessed_at
		FROM sessions WHERE id = ?`), id)
	return scanSession(row)
}

func (s *SQLStore) GetByKey(ctx context.Context, key string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, session_key, title, owner_user_id, agent_id, channel, channel_id, status, metadata, created_at, updated_at, last_accessed_at
		FROM sessions WHERE session_key = ?`), key)
	return scanSession(row)
}

func scanSession(row *sql.Row) (*models.Session, error) {
	var session models.Session
	var channel, status, meta string
	err := row.Scan(&session.ID, &session.Key, &session.Title, &session.OwnerUserID, &session.AgentID,
		&channel, &session.ChannelID, &status, &meta,
		&session.CreatedAt, &session.UpdatedAt, &session.LastAccessedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	session.Channel = models.ChannelType(channel)
	session.Status = models.SessionStatus(status)
	_ = json.Unmarshal([]byte(meta), &session.Metadata)
	return &session, nil
}

func (s *SQLStore) Update(ctx context.Context, session *models.Session) error {
	meta, err := json.Marshal(orEmptyMap(session.Metadata))
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE sessions SET title = ?, status = ?, metadata = ?, updated_at = ?, last_accessed_at = ?
		WHERE id = ?`),
		session.Title, string(session.Status), string(meta), session.UpdatedAt, session.LastAccessedAt, session.ID)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context, ownerUserID string) ([]*models.Session, error) {
	query := `SELECT id, session_key, title, owner_user_id, agent_id, channel, channel_id, status, metadata, created_at, updated_at, last_accessed_at FROM sessions`
	args := []any{}
	if ownerUserID != "" {
		query += ` WHERE owner_user_id = ?`
		args = append(args, ownerUserID)
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		var session models.Session
		var channel, status, meta string
		if err := rows.Scan(&session.ID, &session.Key, &session.Title, &session.OwnerUserID, &session.AgentID,
			&channel, &session.ChannelID, &status, &meta,
			&session.CreatedAt, &session.UpdatedAt, &session.LastAccessedAt); err != nil {
			return nil, err
		}
		session.Channel = models.ChannelType(channel)
		session.Status = models.SessionStatus(status)
		_ = json.Unmarshal([]byte(meta), &session.Metadata)
		out = append(out, &session)
	}
	return out, rows.Err()
}

func (s *SQLStore) AppendMessage(ctx context.Context, sessionID string, msg *models.Message) error {
	toolCalls, err := json.Marshal(orEmptySlice(msg.ToolCalls))
	if err != nil {
		return err
	}
	toolResults, err := json.Marshal(orEmptySlice(msg.ToolResults))
	if err != nil {
		return err
	}
	meta, err := json.Marshal(orEmptyMap(msg.Metadata))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO messages (id, session_id, channel, channel_id, direction, role, content, tool_calls, tool_results, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		msg.ID, sessionID, string(msg.Channel), msg.ChannelID, string(msg.Direction), string(msg.Role),
		msg.Content, string(toolCalls), string(toolResults), string(meta), msg.CreatedAt)
	return err
}

func (s *SQLStore) GetHistory(ctx context.Context, sessionID string, limit int) ([]*models.Message, error) {
	query := `SELECT id, session_id, channel, channel_id, direction, role, content, tool_calls, tool_results, metadata, created_at
		FROM messages WHERE session_id = ? ORDER BY created_at DESC`
	args := []any{sessionID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		var msg models.Message
		var channel, direction, role, toolCalls, toolResults, meta string
		if err := rows.Scan(&msg.ID, &msg.SessionID, &channel, &msg.ChannelID, &direction, &role,
			&msg.Content, &toolCalls, &toolResults, &meta, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.Channel = models.ChannelType(channel)
		msg.Direction = models.Direction(direction)
		msg.Role = models.Role(role)
		_ = json.Unmarshal([]byte(toolCalls), &msg.ToolCalls)
		_ = json.Unmarshal([]byte(toolResults), &msg.ToolResults)
		_ = json.Unmarshal([]byte(meta), &msg.Metadata)
		out = append(out, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Rows come back newest-first for the LIMIT; history reads oldest-first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *SQLStore) Close() error { return s.db.Close() }

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func orEmptySlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
