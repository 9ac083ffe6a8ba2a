package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/pders01/rdt/internal/model"
)

var (
	draftsBucket     = []byte("drafts")
	subredditsBucket = []byte("subreddits")
	metaBucket       = []byte("metadata")

	refreshedKey = []byte("subreddits_refreshed_at")
)

// Store is the bbolt backend. Drafts are keyed by target fullname, so a
// target can never own more than one draft.
type Store struct {
	db *bolt.DB
}

func NewStore(dbPath string, timeout time.Duration) (*Store, error) {
	if timeout <= 0 {
		timeout = time.Second
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{draftsBucket, subredditsBucket, metaBucket} {
			if _, createErr := tx.CreateBucketIfNotExists(bucket); createErr != nil {
				return createErr
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) FindDraft(targetID string) (model.Draft, error) {
	var draft model.Draft
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(draftsBucket).Get([]byte(targetID))
		if data == nil {
			return model.ErrNotFound
		}
		return json.Unmarshal(data, &draft)
	})
	if errors.Is(err, model.ErrNotFound) {
		return model.Draft{}, err
	}
	if err != nil {
		return model.Draft{}, persistErr("finding draft", err)
	}
	return draft, nil
}

// CreateDraft stores an empty draft for targetID. An existing draft is
// returned unchanged.
func (s *Store) CreateDraft(targetID string) (model.Draft, error) {
	var draft model.Draft
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(draftsBucket)
		if data := b.Get([]byte(targetID)); data != nil {
			return json.Unmarshal(data, &draft)
		}
		draft = model.Draft{
			ID:       uuid.NewString(),
			TargetID: targetID,
			Modified: time.Now(),
		}
		data, err := json.Marshal(draft)
		if err != nil {
			return err
		}
		return b.Put([]byte(targetID), data)
	})
	if err != nil {
		return model.Draft{}, persistErr("creating draft", err)
	}
	return draft, nil
}

// UpdateDraftText writes text into the target's draft, creating it if it
// has gone missing.
func (s *Store) UpdateDraftText(targetID, text string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(draftsBucket)
		draft := model.Draft{ID: uuid.NewString(), TargetID: targetID}
		if data := b.Get([]byte(targetID)); data != nil {
			if err := json.Unmarshal(data, &draft); err != nil {
				return err
			}
		}
		draft.Text = text
		draft.Modified = time.Now()

		data, err := json.Marshal(draft)
		if err != nil {
			return err
		}
		return b.Put([]byte(targetID), data)
	})
	if err != nil {
		return persistErr("updating draft", err)
	}
	return nil
}

// DeleteDraft removes the target's draft. Deleting a missing draft is not
// an error.
func (s *Store) DeleteDraft(targetID string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(draftsBucket).Delete([]byte(targetID))
	})
	if err != nil {
		return persistErr("deleting draft", err)
	}
	return nil
}

// ListDrafts returns all drafts, most recently modified first.
func (s *Store) ListDrafts() ([]model.Draft, error) {
	var drafts []model.Draft
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(draftsBucket).ForEach(func(_ []byte, v []byte) error {
			var draft model.Draft
			if err := json.Unmarshal(v, &draft); err != nil {
				return nil
			}
			drafts = append(drafts, draft)
			return nil
		})
	})
	if err != nil {
		return nil, persistErr("listing drafts", err)
	}
	sort.Slice(drafts, func(i, j int) bool {
		return drafts[i].Modified.After(drafts[j].Modified)
	})
	return drafts, nil
}

// ClearDrafts deletes every draft and reports how many were removed.
func (s *Store) ClearDrafts() (int, error) {
	var n int
	err := s.db.Update(func(tx *bolt.Tx) error {
		n = tx.Bucket(draftsBucket).Stats().KeyN
		if err := tx.DeleteBucket(draftsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(draftsBucket)
		return err
	})
	if err != nil {
		return 0, persistErr("clearing drafts", err)
	}
	return n, nil
}

// SaveSubreddits replaces the cached subscription list.
func (s *Store) SaveSubreddits(subs []model.Subreddit) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(subredditsBucket); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
		b, err := tx.CreateBucket(subredditsBucket)
		if err != nil {
			return err
		}
		for _, sub := range subs {
			data, err := json.Marshal(sub)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(strings.ToLower(sub.Name)), data); err != nil {
				return err
			}
		}
		stamp, err := time.Now().MarshalBinary()
		if err != nil {
			return err
		}
		return tx.Bucket(metaBucket).Put(refreshedKey, stamp)
	})
	if err != nil {
		return persistErr("saving subreddits", err)
	}
	return nil
}

// LoadSubreddits returns the cached subscription list ordered by name.
func (s *Store) LoadSubreddits() ([]model.Subreddit, error) {
	var subs []model.Subreddit
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(subredditsBucket).ForEach(func(_ []byte, v []byte) error {
			var sub model.Subreddit
			if err := json.Unmarshal(v, &sub); err != nil {
				return nil
			}
			subs = append(subs, sub)
			return nil
		})
	})
	if err != nil {
		return nil, persistErr("loading subreddits", err)
	}
	return subs, nil
}

// SubredditsRefreshedAt reports when the subscription cache was last
// written. The zero time means never.
func (s *Store) SubredditsRefreshedAt() (time.Time, error) {
	var t time.Time
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(metaBucket).Get(refreshedKey)
		if data == nil {
			return nil
		}
		return t.UnmarshalBinary(data)
	})
	if err != nil {
		return time.Time{}, persistErr("reading metadata", err)
	}
	return t, nil
}
