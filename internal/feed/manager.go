package feed

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pders01/rdt/internal/config"
	"github.com/pders01/rdt/internal/debuglog"
	"github.com/pders01/rdt/internal/event"
	"github.com/pders01/rdt/internal/model"
)

// Manager keeps one Loader per listing source.
type Manager struct {
	lister  Lister
	about   AboutFetcher
	bus     *event.Bus
	indexer Indexer
	config  *config.Config
	mu      sync.RWMutex
	loaders map[string]*Loader
}

// NewManager creates a registry. about may be nil when metadata is
// unavailable, as with anonymous browsing.
func NewManager(lister Lister, about AboutFetcher, bus *event.Bus, cfg *config.Config) *Manager {
	return &Manager{
		lister:  lister,
		about:   about,
		bus:     bus,
		config:  cfg,
		loaders: make(map[string]*Loader),
	}
}

// SetIndexer feeds pages committed by loaders created afterwards to ix. If
// ix also has OnFeedDropped it is called from Drop.
func (m *Manager) SetIndexer(ix Indexer) {
	m.mu.Lock()
	m.indexer = ix
	m.mu.Unlock()
}

func key(subreddit string) string {
	return strings.ToLower(subreddit)
}

// Loader returns the loader for subreddit, creating it with the configured
// default sort on first use.
func (m *Manager) Loader(subreddit string) *Loader {
	k := key(subreddit)

	m.mu.RLock()
	l, ok := m.loaders[k]
	m.mu.RUnlock()
	if ok {
		return l
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.loaders[k]; ok {
		return l
	}

	sortMode, err := model.ParseSort(m.config.Feed.DefaultSort)
	if err != nil {
		sortMode = model.SortBest
	}
	opts := []LoaderOption{
		WithBus(m.bus),
		WithThreshold(m.config.Feed.PrefetchThreshold),
	}
	if m.about != nil {
		opts = append(opts, WithAbout(m.about))
	}
	if m.indexer != nil {
		opts = append(opts, WithIndexer(m.indexer))
	}
	l = NewLoader(subreddit, sortMode, m.lister, opts...)
	m.loaders[k] = l
	return l
}

// Subreddits lists the sources with a loader, sorted.
func (m *Manager) Subreddits() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.loaders))
	for _, l := range m.loaders {
		names = append(names, l.Subreddit())
	}
	sort.Strings(names)
	return names
}

// Drop forgets a loader, abandoning its in-flight load.
func (m *Manager) Drop(subreddit string) {
	m.mu.Lock()
	l, ok := m.loaders[key(subreddit)]
	delete(m.loaders, key(subreddit))
	ix := m.indexer
	m.mu.Unlock()
	if ok {
		l.Cancel()
	}
	if d, isDropper := ix.(interface{ OnFeedDropped(string) }); isDropper {
		d.OnFeedDropped(subreddit)
	}
}

func (m *Manager) all() []*Loader {
	m.mu.RLock()
	defer m.mu.RUnlock()

	loaders := make([]*Loader, 0, len(m.loaders))
	for _, l := range m.loaders {
		loaders = append(loaders, l)
	}
	return loaders
}

// Item finds a loaded item by ID in any listing.
func (m *Manager) Item(id string) (model.FeedItem, bool) {
	for _, l := range m.all() {
		if it, ok := l.Item(id); ok {
			return it, true
		}
	}
	return model.FeedItem{}, false
}

// LoadedItems returns every loaded post once, even when it appears in
// several listings.
func (m *Manager) LoadedItems() []model.FeedItem {
	seen := make(map[string]bool)
	var out []model.FeedItem
	for _, l := range m.all() {
		for _, it := range l.Snapshot().Items {
			if seen[it.ID] {
				continue
			}
			seen[it.ID] = true
			out = append(out, it)
		}
	}
	return out
}

// Mutate applies fn to every loaded copy of the item. The same post can be
// listed in several feeds at once.
func (m *Manager) Mutate(id string, fn func(*model.FeedItem)) (model.FeedItem, bool) {
	var (
		out   model.FeedItem
		found bool
	)
	for _, l := range m.all() {
		if it, ok := l.Mutate(id, fn); ok && !found {
			out, found = it, true
		}
	}
	return out, found
}

// RefreshAll refreshes every loader with at most feed.max_concurrent_refresh
// in flight. Individual failures are joined; a failing feed does not stop
// the others.
func (m *Manager) RefreshAll(ctx context.Context) error {
	loaders := m.all()
	if len(loaders) == 0 {
		return nil
	}

	limit := m.config.Feed.MaxConcurrentRefresh
	if limit <= 0 {
		limit = 5
	}

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(limit)
	for _, l := range loaders {
		g.Go(func() error {
			err := l.Refresh(ctx)
			if err != nil && !errors.Is(err, ErrSuperseded) {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(errs) > 0 {
		debuglog.Warnf("refresh: %d of %d feeds failed", len(errs), len(loaders))
		return fmt.Errorf("refresh errors: %w", errors.Join(errs...))
	}
	return nil
}
