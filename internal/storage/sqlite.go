package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStore keeps events in the `history` table and contacts in `contacts`.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create db directory %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite is single-writer; one shared connection serializes callers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			action TEXT NOT NULL,
			details TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_history_user_id ON history(user_id, id);
		CREATE INDEX IF NOT EXISTS idx_history_created_at ON history(created_at);

		CREATE TABLE IF NOT EXISTS contacts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			contact TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to init schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Append(ctx context.Context, userID int64, kind Kind, detail string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO history (user_id, action, details, created_at) VALUES (?, ?, ?, ?)`,
		userID, string(kind), detail, formatTime(s.now()),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FetchRecent(ctx context.Context, userID int64, kinds []Kind, limit int) ([]Event, error) {
	if limit <= 0 {
		return nil, nil
	}
	query := `SELECT id, user_id, action, details, created_at FROM history WHERE user_id = ?`
	args := []any{userID}
	if len(kinds) > 0 {
		placeholders := make([]string, len(kinds))
		for i, k := range kinds {
			placeholders[i] = "?"
			args = append(args, string(k))
		}
		query += ` AND action IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	return s.query(ctx, query, args...)
}

func (s *SQLiteStore) FetchAll(ctx context.Context, userID int64) ([]Event, error) {
	return s.query(ctx,
		`SELECT id, user_id, action, details, created_at FROM history WHERE user_id = ? ORDER BY id ASC`,
		userID,
	)
}

func (s *SQLiteStore) FetchSince(ctx context.Context, since time.Time) ([]Event, error) {
	return s.query(ctx,
		`SELECT id, user_id, action, details, created_at FROM history WHERE created_at >= ? ORDER BY id ASC`,
		formatTime(since),
	)
}

func (s *SQLiteStore) SaveContact(ctx context.Context, userID int64, name, contact string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contacts (user_id, name, contact, created_at) VALUES (?, ?, ?, ?)`,
		userID, name, contact, formatTime(s.now()),
	)
	if err != nil {
		return fmt.Errorf("insert contact: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ContactsSince(ctx context.Context, since time.Time) ([]Contact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, name, contact, created_at FROM contacts WHERE created_at >= ? ORDER BY id ASC`,
		formatTime(since),
	)
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	defer rows.Close()
	var out []Contact
	for rows.Next() {
		var c Contact
		var created string
		if err := rows.Scan(&c.UserID, &c.Name, &c.Contact, &created); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		if c.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...any) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var kind, created string
		if err := rows.Scan(&ev.ID, &ev.UserID, &kind, &ev.Detail, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Kind = Kind(kind)
		if ev.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("event %d: %w", ev.ID, err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
