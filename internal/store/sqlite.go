package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaFS embed.FS

// SQLite persists messages in a single SQLite database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if necessary) the message database at path and
// applies the schema. The returned store serializes writes through a single
// connection, which preserves per-channel insertion order.
func OpenSQLite(path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("store path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA busy_timeout = 5000")

	s := &SQLite{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate(ctx context.Context) error {
	b, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append implements Store.
func (s *SQLite) Append(ctx context.Context, msg Message) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	if msg.Time.IsZero() {
		msg.Time = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (channel, nick, text, at) VALUES (?, ?, ?, ?)`,
		msg.Channel, msg.Nick, msg.Text, msg.Time.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// History implements Store.
func (s *SQLite) History(ctx context.Context, channel string, limit int) ([]Message, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}

	query := `SELECT nick, text, at FROM messages WHERE channel = ? ORDER BY id`
	args := []any{channel}
	if limit > 0 {
		query = `SELECT nick, text, at FROM (
			SELECT id, nick, text, at FROM messages WHERE channel = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		var at int64
		if err := rows.Scan(&m.Nick, &m.Text, &at); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		m.Channel = channel
		m.Time = time.UnixMilli(at)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return msgs, nil
}
