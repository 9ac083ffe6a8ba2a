package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/pders01/rdt/internal/model"
)

// SQLiteStore is the SQLite backend, selected with database.driver = "sqlite".
type SQLiteStore struct {
	conn *sql.DB
}

// NewSQLiteStore opens or creates a database at path. ":memory:" gives a
// private in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection keeps ":memory:" a single database and serializes writers.
	conn.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := conn.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("set wal mode: %w", err)
		}
	}
	s := &SQLiteStore{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS drafts (
		id TEXT PRIMARY KEY,
		target_id TEXT NOT NULL UNIQUE,
		text TEXT NOT NULL DEFAULT '',
		modified DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS subreddits (
		name TEXT PRIMARY KEY COLLATE NOCASE,
		display_name TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		icon_url TEXT NOT NULL DEFAULT '',
		subscribers INTEGER NOT NULL DEFAULT 0,
		subscribed INTEGER NOT NULL DEFAULT 0,
		favorited INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.conn.Exec(schema)
	return err
}

// --- Drafts ---

func (s *SQLiteStore) FindDraft(targetID string) (model.Draft, error) {
	var d model.Draft
	err := s.conn.QueryRow(
		`SELECT id, target_id, text, modified FROM drafts WHERE target_id = ?`, targetID,
	).Scan(&d.ID, &d.TargetID, &d.Text, &d.Modified)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Draft{}, model.ErrNotFound
	}
	if err != nil {
		return model.Draft{}, persistErr("finding draft", err)
	}
	return d, nil
}

// CreateDraft stores an empty draft for targetID. An existing draft is
// returned unchanged.
func (s *SQLiteStore) CreateDraft(targetID string) (model.Draft, error) {
	d := model.Draft{
		ID:       uuid.NewString(),
		TargetID: targetID,
		Modified: time.Now().UTC(),
	}
	_, err := s.conn.Exec(
		`INSERT OR IGNORE INTO drafts (id, target_id, text, modified) VALUES (?, ?, '', ?)`,
		d.ID, d.TargetID, d.Modified,
	)
	if err != nil {
		return model.Draft{}, persistErr("creating draft", err)
	}
	return s.FindDraft(targetID)
}

// UpdateDraftText writes text into the target's draft, creating it if it
// has gone missing.
func (s *SQLiteStore) UpdateDraftText(targetID, text string) error {
	_, err := s.conn.Exec(`
		INSERT INTO drafts (id, target_id, text, modified) VALUES (?, ?, ?, ?)
		ON CONFLICT(target_id) DO UPDATE SET text = excluded.text, modified = excluded.modified`,
		uuid.NewString(), targetID, text, time.Now().UTC(),
	)
	if err != nil {
		return persistErr("updating draft", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteDraft(targetID string) error {
	if _, err := s.conn.Exec(`DELETE FROM drafts WHERE target_id = ?`, targetID); err != nil {
		return persistErr("deleting draft", err)
	}
	return nil
}

// ListDrafts returns all drafts, most recently modified first.
func (s *SQLiteStore) ListDrafts() ([]model.Draft, error) {
	rows, err := s.conn.Query(`SELECT id, target_id, text, modified FROM drafts ORDER BY modified DESC`)
	if err != nil {
		return nil, persistErr("listing drafts", err)
	}
	defer rows.Close()

	var drafts []model.Draft
	for rows.Next() {
		var d model.Draft
		if err := rows.Scan(&d.ID, &d.TargetID, &d.Text, &d.Modified); err != nil {
			return nil, persistErr("listing drafts", err)
		}
		drafts = append(drafts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("listing drafts", err)
	}
	return drafts, nil
}

func (s *SQLiteStore) ClearDrafts() (int, error) {
	res, err := s.conn.Exec(`DELETE FROM drafts`)
	if err != nil {
		return 0, persistErr("clearing drafts", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, persistErr("clearing drafts", err)
	}
	return int(n), nil
}

// --- Subreddits ---

// SaveSubreddits replaces the cached subscription list.
func (s *SQLiteStore) SaveSubreddits(subs []model.Subreddit) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return persistErr("saving subreddits", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM subreddits`); err != nil {
		return persistErr("saving subreddits", err)
	}
	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO subreddits
			(name, display_name, title, icon_url, subscribers, subscribed, favorited)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return persistErr("saving subreddits", err)
	}
	defer stmt.Close()

	for _, sub := range subs {
		_, err := stmt.Exec(sub.Name, sub.DisplayName, sub.Title, sub.IconURL,
			sub.Subscribers, sub.State.Subscribed, sub.State.Favorited)
		if err != nil {
			return persistErr("saving subreddits", err)
		}
	}
	_, err = tx.Exec(`INSERT OR REPLACE INTO metadata (key, value) VALUES ('subreddits_refreshed_at', ?)`,
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return persistErr("saving subreddits", err)
	}
	if err := tx.Commit(); err != nil {
		return persistErr("saving subreddits", err)
	}
	return nil
}

// LoadSubreddits returns the cached subscription list ordered by name.
func (s *SQLiteStore) LoadSubreddits() ([]model.Subreddit, error) {
	rows, err := s.conn.Query(`
		SELECT name, display_name, title, icon_url, subscribers, subscribed, favorited
		FROM subreddits ORDER BY lower(name)`)
	if err != nil {
		return nil, persistErr("loading subreddits", err)
	}
	defer rows.Close()

	var subs []model.Subreddit
	for rows.Next() {
		var sub model.Subreddit
		if err := rows.Scan(&sub.Name, &sub.DisplayName, &sub.Title, &sub.IconURL,
			&sub.Subscribers, &sub.State.Subscribed, &sub.State.Favorited); err != nil {
			return nil, persistErr("loading subreddits", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("loading subreddits", err)
	}
	return subs, nil
}

func (s *SQLiteStore) SubredditsRefreshedAt() (time.Time, error) {
	var raw string
	err := s.conn.QueryRow(`SELECT value FROM metadata WHERE key = 'subreddits_refreshed_at'`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, persistErr("reading metadata", err)
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, persistErr("reading metadata", err)
	}
	return t, nil
}
