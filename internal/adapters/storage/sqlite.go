// Package storage provides core.Storage implementations: SQLite for
// production, in-memory for tests.
package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pingup/pingup/internal/core"
	_ "modernc.org/sqlite"
)

//go:embed migrations/001_initial_schema.sql
var migrationV1 string

// SQLite stores domain records in a single SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens the domain database at dbPath, creating it and its
// schema if needed.
func NewSQLite(dbPath string) (*SQLite, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating storage directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening domain database: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) migrate() error {
	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		version = 0
	}
	if version < 1 {
		if _, err := s.db.Exec(migrationV1); err != nil {
			return fmt.Errorf("applying migration v1: %w", err)
		}
	}
	return nil
}

// GetUser implements core.Storage.
func (s *SQLite) GetUser(ctx context.Context, id string) (*core.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, full_name, username, profile_picture, created_at, updated_at
		FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// GetUserByUsername implements core.Storage.
func (s *SQLite) GetUserByUsername(ctx context.Context, username string) (*core.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, full_name, username, profile_picture, created_at, updated_at
		FROM users WHERE username = ?`, username)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*core.User, error) {
	var (
		u       core.User
		created int64
		updated int64
	)
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.Username, &u.ProfilePicture, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt = fromMillis(created)
	u.UpdatedAt = fromMillis(updated)
	return &u, nil
}

// PutUser implements core.Storage as an upsert keyed by user ID.
func (s *SQLite) PutUser(ctx context.Context, u *core.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, full_name, username, profile_picture, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			email = excluded.email,
			full_name = excluded.full_name,
			username = excluded.username,
			profile_picture = excluded.profile_picture,
			updated_at = excluded.updated_at`,
		u.ID, u.Email, u.FullName, u.Username, u.ProfilePicture,
		toMillis(u.CreatedAt), toMillis(u.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upserting user %s: %w", u.ID, err)
	}
	return nil
}

// DeleteUser implements core.Storage. Deleting an absent user succeeds.
func (s *SQLite) DeleteUser(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	return err
}

// SaveMessage implements core.Storage.
func (s *SQLite) SaveMessage(ctx context.Context, m *core.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, from_user_id, to_user_id, text, message_type, media_url, seen, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.FromUserID, m.ToUserID, m.Text, string(m.MessageType), m.MediaURL,
		boolToInt(m.Seen), toMillis(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// RecentMessages implements core.Storage: newest first.
func (s *SQLite) RecentMessages(ctx context.Context, toUserID string) ([]*core.Message, error) {
	return s.queryMessages(ctx, `
		SELECT id, from_user_id, to_user_id, text, message_type, media_url, seen, created_at
		FROM messages WHERE to_user_id = ? ORDER BY created_at DESC`, toUserID)
}

// ChatMessages implements core.Storage: both directions, oldest first.
func (s *SQLite) ChatMessages(ctx context.Context, userID, otherUserID string) ([]*core.Message, error) {
	return s.queryMessages(ctx, `
		SELECT id, from_user_id, to_user_id, text, message_type, media_url, seen, created_at
		FROM messages
		WHERE (from_user_id = ? AND to_user_id = ?) OR (from_user_id = ? AND to_user_id = ?)
		ORDER BY created_at`, userID, otherUserID, otherUserID, userID)
}

func (s *SQLite) queryMessages(ctx context.Context, query string, args ...any) ([]*core.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var out []*core.Message
	for rows.Next() {
		var (
			m       core.Message
			msgType string
			seen    int
			created int64
		)
		if err := rows.Scan(&m.ID, &m.FromUserID, &m.ToUserID, &m.Text, &msgType,
			&m.MediaURL, &seen, &created); err != nil {
			return nil, err
		}
		m.MessageType = core.MessageType(msgType)
		m.Seen = seen != 0
		m.CreatedAt = fromMillis(created)
		out = append(out, &m)
	}
	return out, rows.Err()
}

// GetConnection implements core.Storage.
func (s *SQLite) GetConnection(ctx context.Context, id string) (*core.ConnectionRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, from_user_id, to_user_id, status, created_at
		FROM connection_requests WHERE id = ?`, id)
	return scanConnection(row)
}

// FindConnection implements core.Storage: the request between two
// users in either direction, if any.
func (s *SQLite) FindConnection(ctx context.Context, userA, userB string) (*core.ConnectionRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, from_user_id, to_user_id, status, created_at
		FROM connection_requests
		WHERE (from_user_id = ? AND to_user_id = ?) OR (from_user_id = ? AND to_user_id = ?)
		LIMIT 1`, userA, userB, userB, userA)
	return scanConnection(row)
}

func scanConnection(row *sql.Row) (*core.ConnectionRequest, error) {
	var (
		c       core.ConnectionRequest
		status  string
		created int64
	)
	err := row.Scan(&c.ID, &c.FromUserID, &c.ToUserID, &status, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrConnectionNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Status = core.ConnectionStatus(status)
	c.CreatedAt = fromMillis(created)
	return &c, nil
}

// SaveConnection implements core.Storage as an upsert keyed by ID.
func (s *SQLite) SaveConnection(ctx context.Context, c *core.ConnectionRequest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO connection_requests (id, from_user_id, to_user_id, status, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET status = excluded.status`,
		c.ID, c.FromUserID, c.ToUserID, string(c.Status), toMillis(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("saving connection request: %w", err)
	}
	return nil
}

// ConnectionsOf implements core.Storage.
func (s *SQLite) ConnectionsOf(ctx context.Context, userID string) ([]*core.ConnectionRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, from_user_id, to_user_id, status, created_at
		FROM connection_requests
		WHERE from_user_id = ? OR to_user_id = ?
		ORDER BY created_at DESC`, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("querying connections: %w", err)
	}
	defer rows.Close()

	var out []*core.ConnectionRequest
	for rows.Next() {
		var (
			c       core.ConnectionRequest
			status  string
			created int64
		)
		if err := rows.Scan(&c.ID, &c.FromUserID, &c.ToUserID, &status, &created); err != nil {
			return nil, err
		}
		c.Status = core.ConnectionStatus(status)
		c.CreatedAt = fromMillis(created)
		out = append(out, &c)
	}
	return out, rows.Err()
}

// CountRecentConnections implements core.Storage.
func (s *SQLite) CountRecentConnections(ctx context.Context, fromUserID string, withinHours int) (int, error) {
	cutoff := time.Now().Add(-time.Duration(withinHours) * time.Hour)
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM connection_requests
		WHERE from_user_id = ? AND created_at >= ?`,
		fromUserID, toMillis(cutoff)).Scan(&n)
	return n, err
}

// SaveStory implements core.Storage.
func (s *SQLite) SaveStory(ctx context.Context, st *core.Story) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stories (id, user_id, content, media_url, media_type, background_color, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.UserID, st.Content, st.MediaURL, string(st.MediaType),
		st.BackgroundColor, toMillis(st.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting story: %w", err)
	}
	return nil
}

// GetStory implements core.Storage.
func (s *SQLite) GetStory(ctx context.Context, id string) (*core.Story, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, content, media_url, media_type, background_color, created_at
		FROM stories WHERE id = ?`, id)
	var (
		st        core.Story
		mediaType string
		created   int64
	)
	err := row.Scan(&st.ID, &st.UserID, &st.Content, &st.MediaURL, &mediaType,
		&st.BackgroundColor, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrStoryNotFound
	}
	if err != nil {
		return nil, err
	}
	st.MediaType = core.StoryMediaType(mediaType)
	st.CreatedAt = fromMillis(created)
	return &st, nil
}

// StoriesFeed implements core.Storage: the user's own stories plus
// stories from accepted connections, newest first.
func (s *SQLite) StoriesFeed(ctx context.Context, userID string) ([]*core.Story, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT st.id, st.user_id, st.content, st.media_url, st.media_type, st.background_color, st.created_at
		FROM stories st
		WHERE st.user_id = ?
		   OR st.user_id IN (
			SELECT CASE WHEN from_user_id = ? THEN to_user_id ELSE from_user_id END
			FROM connection_requests
			WHERE status = 'accepted' AND (from_user_id = ? OR to_user_id = ?))
		ORDER BY st.created_at DESC`, userID, userID, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("querying stories: %w", err)
	}
	defer rows.Close()

	var out []*core.Story
	for rows.Next() {
		var (
			st        core.Story
			mediaType string
			created   int64
		)
		if err := rows.Scan(&st.ID, &st.UserID, &st.Content, &st.MediaURL, &mediaType,
			&st.BackgroundColor, &created); err != nil {
			return nil, err
		}
		st.MediaType = core.StoryMediaType(mediaType)
		st.CreatedAt = fromMillis(created)
		out = append(out, &st)
	}
	return out, rows.Err()
}

// DeleteStory implements core.Storage. Deleting an absent story
// succeeds: retried expiry steps and external TTL sweeps may both
// target the same record.
func (s *SQLite) DeleteStory(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM stories WHERE id = ?", id)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
