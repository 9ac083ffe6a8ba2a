package storage

import (
	"fmt"
	"time"

	"github.com/pders01/rdt/internal/model"
)

// Backend is the persistence surface the rest of the client relies on.
// Both the bbolt and the SQLite store satisfy it.
type Backend interface {
	FindDraft(targetID string) (model.Draft, error)
	CreateDraft(targetID string) (model.Draft, error)
	UpdateDraftText(targetID, text string) error
	DeleteDraft(targetID string) error
	ListDrafts() ([]model.Draft, error)
	ClearDrafts() (int, error)

	SaveSubreddits(subs []model.Subreddit) error
	LoadSubreddits() ([]model.Subreddit, error)
	SubredditsRefreshedAt() (time.Time, error)

	Close() error
}

// Open returns the backend selected by driver.
func Open(driver, path string, timeout time.Duration) (Backend, error) {
	switch driver {
	case "", "bolt":
		return NewStore(path, timeout)
	case "sqlite":
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
}

func persistErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", model.ErrPersistence, op, err)
}
