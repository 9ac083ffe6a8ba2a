package reddit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/rdt/internal/config"
	"github.com/pders01/rdt/internal/model"
)

// fakeReddit serves the token endpoint and records API calls.
type fakeReddit struct {
	mu         sync.Mutex
	tokenCalls int32
	forms      map[string]url.Values
	queries    map[string]url.Values
	handlers   map[string]http.HandlerFunc
}

func newFakeReddit() *fakeReddit {
	return &fakeReddit{
		forms:    map[string]url.Values{},
		queries:  map[string]url.Values{},
		handlers: map[string]http.HandlerFunc{},
	}
}

func (f *fakeReddit) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/v1/access_token" {
		atomic.AddInt32(&f.tokenCalls, 1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "id" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = r.ParseForm()
		f.mu.Lock()
		f.forms["token"] = r.PostForm
		f.mu.Unlock()
		fmt.Fprint(w, `{"access_token":"tok","token_type":"bearer","expires_in":3600}`)
		return
	}

	if r.Header.Get("Authorization") != "Bearer tok" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	_ = r.ParseForm()
	f.mu.Lock()
	f.forms[r.URL.Path] = r.PostForm
	f.queries[r.URL.Path] = r.URL.Query()
	h := f.handlers[r.URL.Path]
	f.mu.Unlock()
	if h == nil {
		fmt.Fprint(w, `{}`)
		return
	}
	h(w, r)
}

func (f *fakeReddit) form(path string) url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.forms[path]
}

func (f *fakeReddit) query(path string) url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[path]
}

func (f *fakeReddit) handle(path string, h http.HandlerFunc) {
	f.mu.Lock()
	f.handlers[path] = h
	f.mu.Unlock()
}

func testClient(t *testing.T, f *fakeReddit) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	cfg := config.TestConfig()
	cfg.Reddit.ClientID = "id"
	cfg.Reddit.ClientSecret = "secret"
	cfg.Reddit.Username = "alice"
	cfg.Reddit.Password = "pw"
	cfg.Reddit.BaseURL = srv.URL
	cfg.Reddit.AuthURL = srv.URL

	c, err := NewClient(cfg.Reddit, cfg.Feed, srv.Client())
	require.NoError(t, err)
	return c
}

const listingJSON = `{"kind":"Listing","data":{"after":"t3_b","children":[
 {"kind":"t3","data":{"name":"t3_a","title":"First &amp; best","author":"bob","subreddit":"golang",
  "ups":10,"downs":0,"likes":true,"created_utc":1700000000,"thumbnail":"self","num_comments":3}},
 {"kind":"t3","data":{"name":"t3_b","title":"Second","author":"eve","subreddit":"golang",
  "ups":5,"downs":1,"likes":null,"created_utc":1700000100,"thumbnail":"https://img/x.jpg"}},
 {"kind":"t1","data":{"name":"t1_c"}}
]}}`

func TestNewClient_RequiresClientID(t *testing.T) {
	cfg := config.TestConfig()
	_, err := NewClient(cfg.Reddit, cfg.Feed, nil)
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestFetchListing(t *testing.T) {
	f := newFakeReddit()
	f.handle("/r/golang/hot", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, listingJSON)
	})
	c := testClient(t, f)

	listing, err := c.FetchListing(context.Background(), "golang", model.SortHot, "t3_z")
	require.NoError(t, err)

	require.Len(t, listing.Items, 2)
	assert.Equal(t, "t3_b", listing.After)

	first := listing.Items[0]
	assert.Equal(t, "t3_a", first.ID)
	assert.Equal(t, "First & best", first.Title)
	assert.Equal(t, model.DirUp, first.Vote.Dir)
	assert.Equal(t, 10, first.Vote.Score())
	assert.Empty(t, first.Thumbnail)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), first.Created)

	second := listing.Items[1]
	assert.Equal(t, model.DirNone, second.Vote.Dir)
	assert.Equal(t, "https://img/x.jpg", second.Thumbnail)

	q := f.query("/r/golang/hot")
	assert.Equal(t, "t3_z", q.Get("after"))
	assert.Equal(t, "25", q.Get("limit"))
	assert.Empty(t, q.Get("t"))

	assert.Equal(t, "password", f.form("token").Get("grant_type"))
	assert.Equal(t, "alice", f.form("token").Get("username"))
}

func TestFetchListing_Paths(t *testing.T) {
	tests := []struct {
		subreddit string
		sort      model.Sort
		path      string
	}{
		{"home", model.SortBest, "/best"},
		{"popular", model.SortHot, "/r/popular/hot"},
		{"all", model.SortNew, "/r/all/new"},
		{"saved", model.SortHot, "/user/alice/saved"},
		{"golang", model.SortTop, "/r/golang/top"},
	}
	for _, tt := range tests {
		t.Run(tt.subreddit, func(t *testing.T) {
			f := newFakeReddit()
			var hit atomic.Bool
			f.handle(tt.path, func(w http.ResponseWriter, _ *http.Request) {
				hit.Store(true)
				fmt.Fprint(w, `{"kind":"Listing","data":{"children":[]}}`)
			})
			c := testClient(t, f)

			listing, err := c.FetchListing(context.Background(), tt.subreddit, tt.sort, "")
			require.NoError(t, err)
			assert.True(t, hit.Load(), "expected request to %s", tt.path)
			assert.Empty(t, listing.After)
		})
	}
}

func TestFetchListing_TimeRange(t *testing.T) {
	f := newFakeReddit()
	c := testClient(t, f)
	c.SetTimeRange("week")

	_, err := c.FetchListing(context.Background(), "golang", model.SortTop, "")
	require.NoError(t, err)
	assert.Equal(t, "week", f.query("/r/golang/top").Get("t"))
}

func TestFetchListing_ServerError(t *testing.T) {
	f := newFakeReddit()
	f.handle("/r/golang/hot", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "busy")
	})
	c := testClient(t, f)

	_, err := c.FetchListing(context.Background(), "golang", model.SortHot, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrNetwork))

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusServiceUnavailable, reqErr.StatusCode)
	assert.True(t, reqErr.Temporary())
}

func TestTokenIsCached(t *testing.T) {
	f := newFakeReddit()
	c := testClient(t, f)

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Vote(context.Background(), "t3_a", model.DirUp))
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.tokenCalls))
}

func TestUnauthorizedRefreshesToken(t *testing.T) {
	f := newFakeReddit()
	var calls int32
	f.handle("/api/vote", func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{}`)
	})
	c := testClient(t, f)

	require.NoError(t, c.Vote(context.Background(), "t3_a", model.DirDown))
	assert.Equal(t, int32(2), atomic.LoadInt32(&f.tokenCalls))
}

func TestVote(t *testing.T) {
	f := newFakeReddit()
	c := testClient(t, f)

	require.NoError(t, c.Vote(context.Background(), "t3_a", model.DirDown))
	form := f.form("/api/vote")
	assert.Equal(t, "t3_a", form.Get("id"))
	assert.Equal(t, "-1", form.Get("dir"))
}

func TestReply(t *testing.T) {
	f := newFakeReddit()
	c := testClient(t, f)

	require.NoError(t, c.Reply(context.Background(), "t3_a", "hello"))
	form := f.form("/api/comment")
	assert.Equal(t, "t3_a", form.Get("thing_id"))
	assert.Equal(t, "hello", form.Get("text"))
}

func TestReply_APIErrors(t *testing.T) {
	f := newFakeReddit()
	f.handle("/api/comment", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"json":{"errors":[["RATELIMIT","you are doing that too much","ratelimit"]]}}`)
	})
	c := testClient(t, f)

	err := c.Reply(context.Background(), "t3_a", "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrNetwork)
	assert.Contains(t, err.Error(), "RATELIMIT")
}

func TestSubscriptionAndFavorite(t *testing.T) {
	f := newFakeReddit()
	c := testClient(t, f)

	require.NoError(t, c.SetSubscription(context.Background(), "golang", false))
	assert.Equal(t, "unsub", f.form("/api/subscribe").Get("action"))
	assert.Equal(t, "golang", f.form("/api/subscribe").Get("sr_name"))

	require.NoError(t, c.SetFavorite(context.Background(), "golang", true))
	assert.Equal(t, "true", f.form("/api/favorite").Get("make_favorite"))
}

func TestAbout(t *testing.T) {
	f := newFakeReddit()
	f.handle("/r/golang/about", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"kind":"t5","data":{"display_name":"golang","title":"The Go Programming Language",
			"subscribers":250000,"user_is_subscriber":true,"user_has_favorited":false}}`)
	})
	c := testClient(t, f)

	sub, err := c.About(context.Background(), "golang")
	require.NoError(t, err)
	assert.Equal(t, "golang", sub.Name)
	assert.Equal(t, 250000, sub.Subscribers)
	assert.True(t, sub.State.Subscribed)

	_, err = c.About(context.Background(), "popular")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestMySubreddits_FollowsCursor(t *testing.T) {
	f := newFakeReddit()
	f.handle("/subreddits/mine/subscriber", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("after") == "" {
			fmt.Fprint(w, `{"kind":"Listing","data":{"after":"t5_2","children":[
				{"kind":"t5","data":{"display_name":"golang","user_is_subscriber":true}}]}}`)
			return
		}
		fmt.Fprint(w, `{"kind":"Listing","data":{"after":null,"children":[
			{"kind":"t5","data":{"display_name":"rust","user_is_subscriber":true,"user_has_favorited":true}}]}}`)
	})
	c := testClient(t, f)

	subs, err := c.MySubreddits(context.Background())
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "golang", subs[0].Name)
	assert.True(t, subs[1].State.Favorited)
}

func TestRetryAfterDefersRequests(t *testing.T) {
	f := newFakeReddit()
	f.handle("/api/vote", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "30")
		fmt.Fprint(w, `{}`)
	})
	c := testClient(t, f)
	require.NoError(t, c.Vote(context.Background(), "t3_a", model.DirUp))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.Vote(ctx, "t3_a", model.DirUp)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRequestErrorMessage(t *testing.T) {
	err := &RequestError{Op: "vote", StatusCode: 403, Body: "forbidden", Err: io.EOF}
	assert.Equal(t, `reddit vote: status 403, body: "forbidden": EOF`, err.Error())
	assert.False(t, err.Temporary())
}
