package reply

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/rdt/internal/event"
	"github.com/pders01/rdt/internal/model"
	"github.com/pders01/rdt/internal/storage"
)

const debounce = 20 * time.Millisecond

func newStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.NewStore(filepath.Join(t.TempDir(), "drafts.db"), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

type fakeReplier struct {
	mu   sync.Mutex
	err  error
	sent []string
}

func (f *fakeReplier) Reply(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return f.err
}

func draftText(t *testing.T, s DraftStore, target string) (string, bool) {
	t.Helper()
	d, err := s.FindDraft(target)
	if errors.Is(err, model.ErrNotFound) {
		return "", false
	}
	require.NoError(t, err)
	return d.Text, true
}

func TestOpen_CreatesDraftEagerly(t *testing.T) {
	store := newStore(t)
	s := Open(store, &fakeReplier{}, "t3_a", Options{Debounce: debounce})

	assert.Equal(t, "", s.Text())
	assert.Equal(t, Editing, s.State())
	text, ok := draftText(t, store, "t3_a")
	assert.True(t, ok)
	assert.Empty(t, text)
}

func TestOpen_RestoresExistingDraft(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.UpdateDraftText("t3_a", "hello"))

	s := Open(store, &fakeReplier{}, "t3_a", Options{Debounce: debounce})
	assert.Equal(t, "hello", s.Text())
}

func TestSetText_DebouncesToLastValue(t *testing.T) {
	store := &recordingStore{DraftStore: newStore(t)}
	s := Open(store, &fakeReplier{}, "t3_a", Options{Debounce: 50 * time.Millisecond})

	for _, text := range []string{"h", "he", "hel", "hell", "hello"} {
		s.SetText(text)
	}
	assert.Empty(t, store.writes(), "nothing is saved before the text settles")

	require.Eventually(t, func() bool { return len(store.writes()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"hello"}, store.writes())

	text, _ := draftText(t, store, "t3_a")
	assert.Equal(t, "hello", text)
}

func TestSession_ReopenRestoresSettledText(t *testing.T) {
	store := newStore(t)

	s := Open(store, &fakeReplier{}, "t3_a", Options{Debounce: debounce})
	s.SetText("hello")
	require.Eventually(t, func() bool {
		text, _ := draftText(t, store, "t3_a")
		return text == "hello"
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, AbandonedNonEmpty, s.Close())

	again := Open(store, &fakeReplier{}, "t3_a", Options{Debounce: debounce})
	assert.Equal(t, "hello", again.Text())
}

func TestClose_EmptyDeletesDraft(t *testing.T) {
	store := newStore(t)
	s := Open(store, &fakeReplier{}, "t3_a", Options{Debounce: debounce})

	assert.Equal(t, AbandonedEmpty, s.Close())
	_, ok := draftText(t, store, "t3_a")
	assert.False(t, ok)
}

func TestClose_CancelsPendingSave(t *testing.T) {
	store := &recordingStore{DraftStore: newStore(t)}
	s := Open(store, &fakeReplier{}, "t3_a", Options{Debounce: debounce})

	s.SetText("typed then cleared")
	s.SetText("")
	assert.Equal(t, AbandonedEmpty, s.Close())

	time.Sleep(3 * debounce)
	assert.Empty(t, store.writes(), "no write may land after close")
	_, ok := draftText(t, store, "t3_a")
	assert.False(t, ok)
}

func TestClose_NonEmptyKeepsLastSavedText(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.UpdateDraftText("t3_a", "saved"))
	s := Open(store, &fakeReplier{}, "t3_a", Options{Debounce: time.Hour})

	s.SetText("saved plus unsaved")
	assert.Equal(t, AbandonedNonEmpty, s.Close())

	text, ok := draftText(t, store, "t3_a")
	assert.True(t, ok)
	assert.Equal(t, "saved", text)
}

func TestClose_WhitespaceIsNotEmpty(t *testing.T) {
	store := newStore(t)
	s := Open(store, &fakeReplier{}, "t3_a", Options{Debounce: debounce})

	s.SetText("  \n")
	require.Eventually(t, func() bool {
		d, err := store.FindDraft("t3_a")
		return err == nil && d.Text == "  \n"
	}, time.Second, debounce/4)

	assert.Equal(t, AbandonedNonEmpty, s.Close())
	text, ok := draftText(t, store, "t3_a")
	assert.True(t, ok)
	assert.Equal(t, "  \n", text)
}

func TestDiscard_DeletesRegardlessOfText(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.UpdateDraftText("t3_a", "old"))
	s := Open(store, &fakeReplier{}, "t3_a", Options{Debounce: debounce})

	assert.Equal(t, Discarded, s.Discard())
	_, ok := draftText(t, store, "t3_a")
	assert.False(t, ok)

	s.SetText("ignored")
	assert.Equal(t, "old", s.Text())
	assert.Equal(t, Discarded, s.Close())
}

func TestSubmit_SuccessDeletesDraft(t *testing.T) {
	store := newStore(t)
	bus := event.NewBus()
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	replier := &fakeReplier{}
	s := Open(store, replier, "t3_a", Options{Debounce: time.Hour, Bus: bus})
	s.SetText("full text, not yet saved")

	result, err := s.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Submitted, s.State(), "session ends before the send resolves")

	require.NoError(t, <-result)
	assert.Equal(t, []string{"full text, not yet saved"}, replier.sent)
	_, ok := draftText(t, store, "t3_a")
	assert.False(t, ok)

	ev := <-events
	assert.Equal(t, event.Notice{Kind: event.NoticeSuccess, Text: "Reply sent"}, ev)
}

func TestSubmit_FailureKeepsDraft(t *testing.T) {
	store := newStore(t)
	bus := event.NewBus()
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	replier := &fakeReplier{err: errors.New("rate limited")}
	s := Open(store, replier, "t3_a", Options{Debounce: time.Hour, Bus: bus})
	s.SetText("please keep me")

	result, err := s.Submit(context.Background())
	require.NoError(t, err)
	assert.EqualError(t, <-result, "rate limited")
	s.Wait()

	again := Open(store, replier, "t3_a", Options{Debounce: debounce})
	assert.Equal(t, "please keep me", again.Text())

	notice, ok := (<-events).(event.Notice)
	require.True(t, ok)
	assert.Equal(t, event.NoticeError, notice.Kind)
	assert.Contains(t, notice.Text, "draft kept")
}

func TestSubmit_Rejections(t *testing.T) {
	store := newStore(t)

	s := Open(store, &fakeReplier{}, "t3_a", Options{Debounce: debounce})
	s.SetText("   ")
	_, err := s.Submit(context.Background())
	assert.ErrorIs(t, err, model.ErrEmptyReply)
	assert.Equal(t, Editing, s.State(), "empty submit leaves the session open")

	readOnly := Open(store, nil, "t3_b", Options{Debounce: debounce})
	readOnly.SetText("hi")
	_, err = readOnly.Submit(context.Background())
	assert.ErrorIs(t, err, model.ErrReadOnly)

	s.Discard()
	_, err = s.Submit(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestOpen_StoreFailuresAreSwallowed(t *testing.T) {
	store := brokenStore{}
	s := Open(store, &fakeReplier{}, "t3_a", Options{Debounce: -1})

	s.SetText("still editable")
	assert.Equal(t, "still editable", s.Text())
	assert.Equal(t, AbandonedNonEmpty, s.Close())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "editing", Editing.String())
	assert.Equal(t, "discarded", Discarded.String())
	assert.Equal(t, "State(9)", State(9).String())
}

// recordingStore logs every text write.
type recordingStore struct {
	DraftStore
	mu    sync.Mutex
	texts []string
}

func (r *recordingStore) UpdateDraftText(target, text string) error {
	r.mu.Lock()
	r.texts = append(r.texts, text)
	r.mu.Unlock()
	return r.DraftStore.UpdateDraftText(target, text)
}

func (r *recordingStore) writes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}

var errDisk = errors.New("disk full")

type brokenStore struct{}

func (brokenStore) FindDraft(string) (model.Draft, error)   { return model.Draft{}, errDisk }
func (brokenStore) CreateDraft(string) (model.Draft, error) { return model.Draft{}, errDisk }
func (brokenStore) UpdateDraftText(string, string) error    { return errDisk }
func (brokenStore) DeleteDraft(string) error                { return errDisk }
