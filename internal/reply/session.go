// Package reply manages the lifecycle of one reply draft: restore on open,
// debounced saves while editing, and cleanup when the editor closes.
package reply

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pders01/rdt/internal/debuglog"
	"github.com/pders01/rdt/internal/event"
	"github.com/pders01/rdt/internal/model"
)

// ErrClosed is returned when acting on a session that has already ended.
var ErrClosed = errors.New("reply session closed")

const defaultDebounce = 500 * time.Millisecond

// DraftStore persists drafts keyed by target.
type DraftStore interface {
	FindDraft(targetID string) (model.Draft, error)
	CreateDraft(targetID string) (model.Draft, error)
	UpdateDraftText(targetID, text string) error
	DeleteDraft(targetID string) error
}

// Replier sends the finished reply.
type Replier interface {
	Reply(ctx context.Context, parentFullname, text string) error
}

// State is where a session is in its lifecycle.
type State int

const (
	Editing State = iota
	Submitted
	AbandonedEmpty
	AbandonedNonEmpty
	Discarded
)

func (s State) String() string {
	switch s {
	case Editing:
		return "editing"
	case Submitted:
		return "submitted"
	case AbandonedEmpty:
		return "abandoned-empty"
	case AbandonedNonEmpty:
		return "abandoned"
	case Discarded:
		return "discarded"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type Options struct {
	// Debounce is how long text must settle before it is saved. Zero uses
	// the default; negative saves on every change.
	Debounce time.Duration
	Bus      *event.Bus
}

// Session binds one editor to the draft for its target.
type Session struct {
	store    DraftStore
	client   Replier
	target   string
	debounce time.Duration
	bus      *event.Bus

	// mu is held across store writes so a close cannot interleave with a
	// save in progress.
	mu    sync.Mutex
	text  string
	gen   uint64
	timer *time.Timer
	state State
	wg    sync.WaitGroup
}

// Open starts a session for targetID, restoring its draft or creating an
// empty one. Store failures are logged and the session opens empty.
func Open(store DraftStore, client Replier, targetID string, opts Options) *Session {
	d := opts.Debounce
	if d == 0 {
		d = defaultDebounce
	}
	s := &Session{
		store:    store,
		client:   client,
		target:   targetID,
		debounce: d,
		bus:      opts.Bus,
	}

	draft, err := store.FindDraft(targetID)
	switch {
	case err == nil:
		s.text = draft.Text
	case errors.Is(err, model.ErrNotFound):
		if _, err := store.CreateDraft(targetID); err != nil {
			debuglog.Warnf("reply %s: creating draft: %v", targetID, err)
		}
	default:
		debuglog.Warnf("reply %s: loading draft: %v", targetID, err)
	}
	return s
}

func (s *Session) Target() string {
	return s.target
}

func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetText records an edit and restarts the save timer. Edits after the
// session ends are ignored.
func (s *Session) SetText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Editing || text == s.text {
		return
	}
	s.text = text
	s.gen++
	s.stopTimerLocked()

	if s.debounce < 0 {
		s.saveLocked()
		return
	}
	gen := s.gen
	s.timer = time.AfterFunc(s.debounce, func() { s.flush(gen) })
}

// flush writes the text if no newer edit or close has happened since gen.
func (s *Session) flush(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Editing || gen != s.gen {
		return
	}
	s.timer = nil
	s.saveLocked()
}

func (s *Session) saveLocked() {
	if err := s.store.UpdateDraftText(s.target, s.text); err != nil {
		debuglog.Warnf("reply %s: saving draft: %v", s.target, err)
	}
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// endLocked moves to a terminal state and invalidates any pending save.
func (s *Session) endLocked(st State) {
	s.state = st
	s.gen++
	s.stopTimerLocked()
}

// Submit sends the current text in the background and ends the session
// immediately. On success the draft is deleted; on failure the sent text is
// written back to the draft and a notice is published. Empty text is
// rejected and leaves the session open.
func (s *Session) Submit(ctx context.Context) (<-chan error, error) {
	s.mu.Lock()
	if s.state != Editing {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if strings.TrimSpace(s.text) == "" {
		s.mu.Unlock()
		return nil, model.ErrEmptyReply
	}
	if s.client == nil {
		s.mu.Unlock()
		return nil, model.ErrReadOnly
	}
	text := s.text
	s.endLocked(Submitted)
	s.wg.Add(1)
	s.mu.Unlock()

	result := make(chan error, 1)
	go func() {
		defer s.wg.Done()
		err := s.client.Reply(ctx, s.target, text)
		if err != nil {
			debuglog.Errorf("reply %s: send failed: %v", s.target, err)
			if saveErr := s.store.UpdateDraftText(s.target, text); saveErr != nil {
				debuglog.Warnf("reply %s: keeping draft: %v", s.target, saveErr)
			}
			s.bus.Notify(event.NoticeError, fmt.Sprintf("Reply failed, draft kept: %v", err))
		} else {
			if delErr := s.store.DeleteDraft(s.target); delErr != nil {
				debuglog.Warnf("reply %s: deleting draft: %v", s.target, delErr)
			}
			s.bus.Notify(event.NoticeSuccess, "Reply sent")
		}
		result <- err
	}()
	return result, nil
}

// Close abandons the session. A draft with no text at all is deleted;
// otherwise the last saved text stands, whitespace included.
func (s *Session) Close() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Editing {
		return s.state
	}
	if s.text == "" {
		s.endLocked(AbandonedEmpty)
		s.deleteLocked()
	} else {
		s.endLocked(AbandonedNonEmpty)
	}
	return s.state
}

// Discard deletes the draft whatever it holds and ends the session.
func (s *Session) Discard() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Editing {
		return s.state
	}
	s.endLocked(Discarded)
	s.deleteLocked()
	return s.state
}

func (s *Session) deleteLocked() {
	if err := s.store.DeleteDraft(s.target); err != nil {
		debuglog.Warnf("reply %s: deleting draft: %v", s.target, err)
	}
}

// Wait blocks until a background submit has finished.
func (s *Session) Wait() {
	s.wg.Wait()
}
