package subreddits

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/rdt/internal/model"
	"github.com/pders01/rdt/internal/storage"
)

type fakeSource struct {
	subs []model.Subreddit
	err  error
}

func (f fakeSource) MySubreddits(context.Context) ([]model.Subreddit, error) {
	return f.subs, f.err
}

func sub(name string, fav bool) model.Subreddit {
	return model.Subreddit{Name: name, State: model.SubscriptionState{Subscribed: true, Favorited: fav}}
}

func names(subs []model.Subreddit) []string {
	out := make([]string, len(subs))
	for i, s := range subs {
		out[i] = s.Name
	}
	return out
}

func newCache(t *testing.T) storage.Backend {
	t.Helper()
	s, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRefreshPersistsAndReloads(t *testing.T) {
	cache := newCache(t)
	src := fakeSource{subs: []model.Subreddit{sub("golang", true), sub("AskReddit", false)}}

	d := New(cache, src, nil)
	require.NoError(t, d.Refresh(context.Background()))
	assert.Equal(t, []string{"AskReddit", "golang"}, names(d.All()))

	fresh := New(cache, nil, nil)
	require.NoError(t, fresh.LoadCached())
	assert.Equal(t, []string{"AskReddit", "golang"}, names(fresh.All()))
}

func TestRefreshFailureKeepsList(t *testing.T) {
	d := New(newCache(t), fakeSource{subs: []model.Subreddit{sub("golang", false)}}, nil)
	require.NoError(t, d.Refresh(context.Background()))

	d.source = fakeSource{err: errors.New("offline")}
	require.Error(t, d.Refresh(context.Background()))
	assert.Len(t, d.All(), 1)
}

func TestRefreshWithoutSource(t *testing.T) {
	d := New(newCache(t), nil, nil)
	assert.ErrorIs(t, d.Refresh(context.Background()), model.ErrReadOnly)
}

func TestFavoritesSortedCaseInsensitively(t *testing.T) {
	d := New(newCache(t), fakeSource{subs: []model.Subreddit{
		sub("zig", true), sub("Apple", true), sub("banana", true), sub("cars", false),
	}}, nil)
	require.NoError(t, d.Refresh(context.Background()))

	assert.Equal(t, []string{"Apple", "banana", "zig"}, names(d.Favorites()))
}

func TestGroups(t *testing.T) {
	d := New(newCache(t), fakeSource{subs: []model.Subreddit{
		sub("golang", false), sub("Gaming", false), sub("askscience", false), sub("AskReddit", false), sub("rust", false),
	}}, nil)
	require.NoError(t, d.Refresh(context.Background()))

	groups := d.Groups()
	require.Len(t, groups, 3)
	assert.Equal(t, "A", groups[0].Letter)
	assert.Equal(t, []string{"AskReddit", "askscience"}, names(groups[0].Subreddits))
	assert.Equal(t, "G", groups[1].Letter)
	assert.Equal(t, []string{"Gaming", "golang"}, names(groups[1].Subreddits))
	assert.Equal(t, "R", groups[2].Letter)
}

func TestFilter(t *testing.T) {
	d := New(newCache(t), fakeSource{subs: []model.Subreddit{
		sub("golang", false), sub("GoPro", false), sub("rust", false),
	}}, nil)
	require.NoError(t, d.Refresh(context.Background()))

	assert.Equal(t, []string{"golang", "GoPro"}, names(d.Filter("GO")))
	assert.Len(t, d.Filter(""), 3)
	assert.Empty(t, d.Filter("python"))
}

func TestSubscriptionStore(t *testing.T) {
	cache := newCache(t)
	d := New(cache, fakeSource{subs: []model.Subreddit{sub("golang", false)}}, nil)
	require.NoError(t, d.Refresh(context.Background()))

	st, ok := d.State("GoLang")
	require.True(t, ok)
	assert.True(t, st.Subscribed)

	_, ok = d.State("rust")
	assert.False(t, ok)

	d.SetState("rust", model.SubscriptionState{Subscribed: true})
	st, ok = d.State("rust")
	require.True(t, ok)
	assert.True(t, st.Subscribed)

	d.SetState("golang", model.SubscriptionState{})
	_, ok = d.Get("golang")
	assert.True(t, ok, "entry stays until the server confirms")

	d.Confirmed("golang", model.SubscriptionState{})
	_, ok = d.Get("golang")
	assert.False(t, ok)

	cached, err := cache.LoadSubreddits()
	require.NoError(t, err)
	assert.Equal(t, []string{"rust"}, names(cached))
}

func TestConfirmedFavoriteWithoutSubscription(t *testing.T) {
	cache := newCache(t)
	d := New(cache, nil, nil)

	fav := model.SubscriptionState{Favorited: true}
	d.SetState("golang", fav)
	d.Confirmed("golang", fav)

	st, ok := d.State("golang")
	require.True(t, ok, "a confirmed favorite stays listed")
	assert.Equal(t, fav, st)
	require.Len(t, d.Favorites(), 1)
	assert.Empty(t, d.Groups(), "unsubscribed favorites are not grouped")

	cached, err := cache.LoadSubreddits()
	require.NoError(t, err)
	assert.Equal(t, []string{"golang"}, names(cached))

	d.SetState("golang", model.SubscriptionState{})
	d.Confirmed("golang", model.SubscriptionState{})
	_, ok = d.State("golang")
	assert.False(t, ok)
}
