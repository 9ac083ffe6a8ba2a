package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/rdt/internal/event"
	"github.com/pders01/rdt/internal/model"
)

type fetchCall struct {
	subreddit string
	sort      model.Sort
	after     string
}

// scriptedLister answers fetches from a map keyed by sort and cursor.
// A gate channel, when set, holds the response until released.
type scriptedLister struct {
	mu      sync.Mutex
	pages   map[string]model.Listing
	errs    map[string]error
	gates   map[string]chan struct{}
	calls   []fetchCall
	started chan fetchCall
}

func newScriptedLister() *scriptedLister {
	return &scriptedLister{
		pages:   map[string]model.Listing{},
		errs:    map[string]error{},
		gates:   map[string]chan struct{}{},
		started: make(chan fetchCall, 16),
	}
}

func pageKey(sort model.Sort, after string) string {
	return string(sort) + "|" + after
}

func (s *scriptedLister) set(sort model.Sort, after string, l model.Listing) {
	s.mu.Lock()
	s.pages[pageKey(sort, after)] = l
	s.mu.Unlock()
}

func (s *scriptedLister) fail(sort model.Sort, after string, err error) {
	s.mu.Lock()
	s.errs[pageKey(sort, after)] = err
	s.mu.Unlock()
}

func (s *scriptedLister) gate(sort model.Sort, after string) chan struct{} {
	ch := make(chan struct{})
	s.mu.Lock()
	s.gates[pageKey(sort, after)] = ch
	s.mu.Unlock()
	return ch
}

func (s *scriptedLister) FetchListing(ctx context.Context, subreddit string, sort model.Sort, after string) (model.Listing, error) {
	call := fetchCall{subreddit, sort, after}
	k := pageKey(sort, after)
	s.mu.Lock()
	s.calls = append(s.calls, call)
	gate := s.gates[k]
	page, err := s.pages[k], s.errs[k]
	s.mu.Unlock()
	s.started <- call

	if gate != nil {
		<-gate
	}
	if err != nil {
		return model.Listing{}, err
	}
	return page, nil
}

func (s *scriptedLister) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func items(ids ...string) []model.FeedItem {
	out := make([]model.FeedItem, len(ids))
	for i, id := range ids {
		out[i] = model.FeedItem{ID: id, Title: "post " + id}
	}
	return out
}

func ids(items []model.FeedItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestLoader_ReplaceCommitsFirstPage(t *testing.T) {
	lister := newScriptedLister()
	lister.set(model.SortHot, "", model.Listing{Items: items("a", "b"), After: "b"})
	l := NewLoader("golang", model.SortHot, lister)

	require.NoError(t, l.Load(context.Background(), Replace))

	page := l.Snapshot()
	assert.Equal(t, []string{"a", "b"}, ids(page.Items))
	assert.Equal(t, "b", page.After)
	assert.True(t, page.Loaded)
	assert.False(t, page.Loading)
	assert.NoError(t, page.Err)
	assert.False(t, page.Exhausted())
}

func TestLoader_AppendConcatenatesWithoutDuplicates(t *testing.T) {
	lister := newScriptedLister()
	lister.set(model.SortHot, "", model.Listing{Items: items("a", "b", "c"), After: "c"})
	lister.set(model.SortHot, "c", model.Listing{Items: items("c", "d", "e"), After: ""})
	l := NewLoader("golang", model.SortHot, lister)

	require.NoError(t, l.Load(context.Background(), Replace))
	require.NoError(t, l.Load(context.Background(), Append))

	page := l.Snapshot()
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, ids(page.Items))
	assert.Empty(t, page.After)
	assert.True(t, page.Exhausted())
}

func TestLoader_ReplaceAfterAppendEqualsFirstPage(t *testing.T) {
	lister := newScriptedLister()
	lister.set(model.SortHot, "", model.Listing{Items: items("a", "b"), After: "b"})
	lister.set(model.SortHot, "b", model.Listing{Items: items("c"), After: "c"})
	l := NewLoader("golang", model.SortHot, lister)

	require.NoError(t, l.Load(context.Background(), Replace))
	require.NoError(t, l.Load(context.Background(), Append))
	require.Len(t, l.Snapshot().Items, 3)

	lister.set(model.SortHot, "", model.Listing{Items: items("x", "a"), After: "a"})
	require.NoError(t, l.Load(context.Background(), Replace))

	page := l.Snapshot()
	assert.Equal(t, []string{"x", "a"}, ids(page.Items))
	assert.Equal(t, "a", page.After)
}

func TestLoader_AppendNoOps(t *testing.T) {
	t.Run("before first load", func(t *testing.T) {
		lister := newScriptedLister()
		l := NewLoader("golang", model.SortHot, lister)

		require.NoError(t, l.Load(context.Background(), Append))
		assert.Equal(t, 0, lister.callCount())
	})

	t.Run("at end of feed", func(t *testing.T) {
		lister := newScriptedLister()
		lister.set(model.SortHot, "", model.Listing{Items: items("a"), After: ""})
		l := NewLoader("golang", model.SortHot, lister)
		require.NoError(t, l.Load(context.Background(), Replace))

		require.NoError(t, l.Load(context.Background(), Append))
		assert.Equal(t, 1, lister.callCount())
	})

	t.Run("while loading", func(t *testing.T) {
		lister := newScriptedLister()
		lister.set(model.SortHot, "", model.Listing{Items: items("a"), After: "a"})
		l := NewLoader("golang", model.SortHot, lister)
		require.NoError(t, l.Load(context.Background(), Replace))
		<-lister.started

		release := lister.gate(model.SortHot, "a")
		done := make(chan error, 1)
		go func() { done <- l.Load(context.Background(), Append) }()
		<-lister.started
		assert.True(t, l.Snapshot().Loading)

		require.NoError(t, l.Load(context.Background(), Append))
		assert.Equal(t, 2, lister.callCount())

		close(release)
		require.NoError(t, <-done)
	})
}

func TestLoader_FailureLeavesStateUnchanged(t *testing.T) {
	lister := newScriptedLister()
	lister.set(model.SortHot, "", model.Listing{Items: items("a", "b"), After: "b"})
	boom := fmt.Errorf("timeout: %w", model.ErrNetwork)
	lister.fail(model.SortHot, "b", boom)
	l := NewLoader("golang", model.SortHot, lister)

	require.NoError(t, l.Load(context.Background(), Replace))
	err := l.Load(context.Background(), Append)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrNetwork)

	page := l.Snapshot()
	assert.Equal(t, []string{"a", "b"}, ids(page.Items))
	assert.Equal(t, "b", page.After)
	assert.False(t, page.Loading)
	assert.ErrorIs(t, page.Err, model.ErrNetwork)

	// A failed replace also keeps the previous page.
	lister.fail(model.SortHot, "", boom)
	require.Error(t, l.Load(context.Background(), Replace))
	assert.Equal(t, []string{"a", "b"}, ids(l.Snapshot().Items))
}

func TestLoader_ReplaceSupersedesInFlightAppend(t *testing.T) {
	lister := newScriptedLister()
	lister.set(model.SortHot, "", model.Listing{Items: items("a"), After: "a"})
	l := NewLoader("golang", model.SortHot, lister)
	require.NoError(t, l.Load(context.Background(), Replace))
	<-lister.started

	lister.set(model.SortHot, "a", model.Listing{Items: items("stale"), After: "stale"})
	release := lister.gate(model.SortHot, "a")
	done := make(chan error, 1)
	go func() { done <- l.Load(context.Background(), Append) }()
	<-lister.started

	lister.set(model.SortHot, "", model.Listing{Items: items("fresh"), After: "fresh"})
	require.NoError(t, l.Load(context.Background(), Replace))

	close(release)
	assert.ErrorIs(t, <-done, ErrSuperseded)

	page := l.Snapshot()
	assert.Equal(t, []string{"fresh"}, ids(page.Items))
	assert.Equal(t, "fresh", page.After)
}

func TestLoader_SetSortDiscardsLateResponse(t *testing.T) {
	lister := newScriptedLister()
	lister.set(model.SortHot, "", model.Listing{Items: items("a"), After: "a"})
	lister.set(model.SortNew, "", model.Listing{Items: items("n1", "n2"), After: "n2"})
	l := NewLoader("golang", model.SortHot, lister)
	require.NoError(t, l.Load(context.Background(), Replace))
	<-lister.started

	lister.set(model.SortHot, "a", model.Listing{Items: items("hot-2"), After: ""})
	release := lister.gate(model.SortHot, "a")
	done := make(chan error, 1)
	go func() { done <- l.Load(context.Background(), Append) }()
	<-lister.started

	require.NoError(t, l.SetSort(context.Background(), model.SortNew))
	close(release)
	assert.ErrorIs(t, <-done, ErrSuperseded)

	page := l.Snapshot()
	assert.Equal(t, model.SortNew, page.Sort)
	assert.Equal(t, []string{"n1", "n2"}, ids(page.Items))
}

func TestLoader_SetSortClearsImmediately(t *testing.T) {
	lister := newScriptedLister()
	lister.set(model.SortHot, "", model.Listing{Items: items("a"), After: "a"})
	l := NewLoader("golang", model.SortHot, lister)
	require.NoError(t, l.Load(context.Background(), Replace))
	<-lister.started

	release := lister.gate(model.SortTop, "")
	done := make(chan error, 1)
	go func() { done <- l.SetSort(context.Background(), model.SortTop) }()
	<-lister.started

	page := l.Snapshot()
	assert.Empty(t, page.Items)
	assert.True(t, page.Loading)
	assert.Equal(t, model.SortTop, page.Sort)

	close(release)
	require.NoError(t, <-done)
}

func TestLoader_NearEnd(t *testing.T) {
	lister := newScriptedLister()
	lister.set(model.SortHot, "", model.Listing{Items: items("0", "1", "2", "3", "4", "5", "6", "7"), After: "7"})
	l := NewLoader("golang", model.SortHot, lister)

	assert.False(t, l.NearEnd(0), "nothing loaded")
	require.NoError(t, l.Load(context.Background(), Replace))

	assert.False(t, l.NearEnd(0))
	assert.False(t, l.NearEnd(5))
	assert.True(t, l.NearEnd(6))
	assert.True(t, l.NearEnd(7))

	lister.set(model.SortHot, "", model.Listing{Items: items("0", "1"), After: ""})
	require.NoError(t, l.Load(context.Background(), Replace))
	assert.False(t, l.NearEnd(1), "no cursor")
}

func TestLoader_Threshold(t *testing.T) {
	lister := newScriptedLister()
	lister.set(model.SortHot, "", model.Listing{Items: items("0", "1", "2", "3"), After: "3"})
	l := NewLoader("golang", model.SortHot, lister, WithThreshold(0.5))
	require.NoError(t, l.Load(context.Background(), Replace))

	assert.False(t, l.NearEnd(1))
	assert.True(t, l.NearEnd(2))
}

func TestLoader_Mutate(t *testing.T) {
	bus := event.NewBus()
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	lister := newScriptedLister()
	lister.set(model.SortHot, "", model.Listing{Items: items("a", "b")})
	l := NewLoader("golang", model.SortHot, lister, WithBus(bus))
	require.NoError(t, l.Load(context.Background(), Replace))

	got, ok := l.Mutate("b", func(it *model.FeedItem) { it.Seen = true })
	require.True(t, ok)
	assert.True(t, got.Seen)

	it, ok := l.Item("b")
	require.True(t, ok)
	assert.True(t, it.Seen)

	_, ok = l.Mutate("zzz", func(it *model.FeedItem) { it.Seen = true })
	assert.False(t, ok)

	var sawItemChanged bool
	timeout := time.After(time.Second)
	for !sawItemChanged {
		select {
		case ev := <-events:
			if ic, ok := ev.(event.ItemChanged); ok {
				assert.Equal(t, "b", ic.ItemID)
				sawItemChanged = true
			}
		case <-timeout:
			t.Fatal("expected ItemChanged event")
		}
	}
}

type fakeAbout struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeAbout) About(_ context.Context, name string) (model.Subreddit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	if f.err != nil {
		return model.Subreddit{}, f.err
	}
	return model.Subreddit{Name: name, Title: "About " + name}, nil
}

func TestLoader_RefreshSkipsAboutForPseudoFeeds(t *testing.T) {
	about := &fakeAbout{}
	lister := newScriptedLister()
	lister.set(model.SortBest, "", model.Listing{Items: items("a")})

	home := NewLoader(model.FeedHome, model.SortBest, lister, WithAbout(about))
	require.NoError(t, home.Refresh(context.Background()))
	assert.Empty(t, about.calls)
	assert.Nil(t, home.Snapshot().Info)

	golang := NewLoader("golang", model.SortBest, lister, WithAbout(about))
	require.NoError(t, golang.Refresh(context.Background()))
	assert.Equal(t, []string{"golang"}, about.calls)
	require.NotNil(t, golang.Snapshot().Info)
	assert.Equal(t, "About golang", golang.Snapshot().Info.Title)
}

func TestLoader_RefreshToleratesAboutFailure(t *testing.T) {
	about := &fakeAbout{err: errors.New("forbidden")}
	lister := newScriptedLister()
	lister.set(model.SortBest, "", model.Listing{Items: items("a")})

	l := NewLoader("golang", model.SortBest, lister, WithAbout(about))
	require.NoError(t, l.Refresh(context.Background()))
	assert.Len(t, l.Snapshot().Items, 1)
}
