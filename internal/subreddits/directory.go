// Package subreddits keeps the viewer's subscription list: cached locally,
// refreshed from Reddit, and updated as subscriptions are toggled.
package subreddits

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/pders01/rdt/internal/debuglog"
	"github.com/pders01/rdt/internal/event"
	"github.com/pders01/rdt/internal/model"
)

// Cache persists the subscription list between runs.
type Cache interface {
	SaveSubreddits(subs []model.Subreddit) error
	LoadSubreddits() ([]model.Subreddit, error)
}

// Source lists the viewer's subscriptions.
type Source interface {
	MySubreddits(ctx context.Context) ([]model.Subreddit, error)
}

// Group is the subreddits whose names share a first letter.
type Group struct {
	Letter     string
	Subreddits []model.Subreddit
}

type Directory struct {
	cache  Cache
	source Source
	bus    *event.Bus

	mu   sync.RWMutex
	subs map[string]model.Subreddit
}

// New creates an empty directory. source may be nil for anonymous use.
func New(cache Cache, source Source, bus *event.Bus) *Directory {
	return &Directory{
		cache:  cache,
		source: source,
		bus:    bus,
		subs:   make(map[string]model.Subreddit),
	}
}

func key(name string) string {
	return strings.ToLower(name)
}

// LoadCached fills the directory from the local cache.
func (d *Directory) LoadCached() error {
	subs, err := d.cache.LoadSubreddits()
	if err != nil {
		return fmt.Errorf("loading cached subreddits: %w", err)
	}
	d.replace(subs)
	debuglog.Infof("subreddits: %d loaded from cache", len(subs))
	return nil
}

// Refresh replaces the list with the server's and caches it.
func (d *Directory) Refresh(ctx context.Context) error {
	if d.source == nil {
		return model.ErrReadOnly
	}
	subs, err := d.source.MySubreddits(ctx)
	if err != nil {
		return fmt.Errorf("fetching subscriptions: %w", err)
	}
	d.replace(subs)
	d.persist()
	debuglog.Infof("subreddits: refreshed %d subscriptions", len(subs))
	return nil
}

func (d *Directory) replace(subs []model.Subreddit) {
	m := make(map[string]model.Subreddit, len(subs))
	for _, s := range subs {
		m[key(s.Name)] = s
	}
	d.mu.Lock()
	d.subs = m
	d.mu.Unlock()
	d.bus.Publish(event.SubscriptionChanged{})
}

func (d *Directory) persist() {
	if err := d.cache.SaveSubreddits(d.All()); err != nil {
		debuglog.Warnf("subreddits: caching list: %v", err)
	}
}

// All returns every subreddit ordered by name, ignoring case.
func (d *Directory) All() []model.Subreddit {
	d.mu.RLock()
	out := make([]model.Subreddit, 0, len(d.subs))
	for _, s := range d.subs {
		out = append(out, s)
	}
	d.mu.RUnlock()

	sortByName(out)
	return out
}

func sortByName(subs []model.Subreddit) {
	sort.Slice(subs, func(i, j int) bool {
		return strings.ToLower(subs[i].Name) < strings.ToLower(subs[j].Name)
	})
}

// Favorites returns favorited subreddits ordered by name.
func (d *Directory) Favorites() []model.Subreddit {
	var favs []model.Subreddit
	for _, s := range d.All() {
		if s.State.Favorited {
			favs = append(favs, s)
		}
	}
	return favs
}

// Groups buckets subscribed subreddits by the upper-cased first letter of
// their name.
func (d *Directory) Groups() []Group {
	index := map[string]int{}
	var groups []Group
	for _, s := range d.All() {
		if !s.State.Subscribed {
			continue
		}
		letter := firstLetter(s.Name)
		i, ok := index[letter]
		if !ok {
			i = len(groups)
			index[letter] = i
			groups = append(groups, Group{Letter: letter})
		}
		groups[i].Subreddits = append(groups[i].Subreddits, s)
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Letter < groups[j].Letter })
	return groups
}

func firstLetter(name string) string {
	r, _ := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return "#"
	}
	return string(unicode.ToUpper(r))
}

// Filter returns subreddits whose name contains query, ignoring case. An
// empty query matches everything.
func (d *Directory) Filter(query string) []model.Subreddit {
	query = strings.ToLower(strings.TrimSpace(query))
	all := d.All()
	if query == "" {
		return all
	}
	var out []model.Subreddit
	for _, s := range all {
		if strings.Contains(strings.ToLower(s.Name), query) {
			out = append(out, s)
		}
	}
	return out
}

// Get looks a subreddit up by name.
func (d *Directory) Get(name string) (model.Subreddit, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.subs[key(name)]
	return s, ok
}

// State implements the optimistic subscription store.
func (d *Directory) State(name string) (model.SubscriptionState, bool) {
	s, ok := d.Get(name)
	return s.State, ok
}

// SetState records a local, unconfirmed change.
func (d *Directory) SetState(name string, st model.SubscriptionState) {
	d.mu.Lock()
	s, ok := d.subs[key(name)]
	if !ok {
		s = model.Subreddit{Name: name, DisplayName: name}
	}
	s.State = st
	d.subs[key(name)] = s
	d.mu.Unlock()

	d.bus.Publish(event.SubscriptionChanged{Name: name})
}

// Confirmed records st as accepted by the server and updates the cache.
// An entry is dropped only once it is neither subscribed nor favorited.
func (d *Directory) Confirmed(name string, st model.SubscriptionState) {
	d.mu.Lock()
	if !st.Subscribed && !st.Favorited {
		delete(d.subs, key(name))
	} else {
		s, ok := d.subs[key(name)]
		if !ok {
			s = model.Subreddit{Name: name, DisplayName: name}
		}
		s.State = st
		d.subs[key(name)] = s
	}
	d.mu.Unlock()

	d.bus.Publish(event.SubscriptionChanged{Name: name})
	d.persist()
}
