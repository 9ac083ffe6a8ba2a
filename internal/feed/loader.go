// Package feed holds paginated listing state for subreddits and pseudo
// feeds, and a registry that refreshes many of them at once.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pders01/rdt/internal/debuglog"
	"github.com/pders01/rdt/internal/event"
	"github.com/pders01/rdt/internal/model"
)

// ErrSuperseded is returned by a load whose response arrived after a newer
// load or sort change took over. Its result was discarded.
var ErrSuperseded = errors.New("load superseded")

const defaultThreshold = 0.75

// Lister fetches one page of a listing.
type Lister interface {
	FetchListing(ctx context.Context, subreddit string, sort model.Sort, after string) (model.Listing, error)
}

// AboutFetcher fetches subreddit metadata.
type AboutFetcher interface {
	About(ctx context.Context, name string) (model.Subreddit, error)
}

// Indexer is told about every page a loader commits.
type Indexer interface {
	OnItemsLoaded(subreddit string, items []model.FeedItem)
}

// Mode selects how a load treats existing items.
type Mode int

const (
	// Replace fetches the first page and swaps it in when it arrives.
	Replace Mode = iota
	// Append fetches the page after the cursor and adds unseen items.
	Append
)

func (m Mode) String() string {
	if m == Append {
		return "append"
	}
	return "replace"
}

// Page is a point-in-time copy of a loader's state.
type Page struct {
	Subreddit string
	Sort      model.Sort
	Items     []model.FeedItem
	After     string
	Loaded    bool
	Loading   bool
	Err       error
	Info      *model.Subreddit
}

// Exhausted reports whether the last page has been reached.
func (p Page) Exhausted() bool {
	return p.Loaded && p.After == ""
}

// Loader owns the paginated state of one listing. All state is guarded by
// mu; network calls run outside it and commit only if their request token
// is still current.
type Loader struct {
	subreddit string
	lister    Lister
	about     AboutFetcher
	bus       *event.Bus
	indexer   Indexer
	threshold float64

	mu      sync.Mutex
	sort    model.Sort
	items   []model.FeedItem
	index   map[string]int
	after   string
	loaded  bool
	loading bool
	err     error
	seq     uint64
	cancel  context.CancelFunc
	info    *model.Subreddit
}

type LoaderOption func(*Loader)

// WithAbout enables subreddit metadata refresh on Refresh.
func WithAbout(a AboutFetcher) LoaderOption {
	return func(l *Loader) { l.about = a }
}

// WithBus publishes state changes on b.
func WithBus(b *event.Bus) LoaderOption {
	return func(l *Loader) { l.bus = b }
}

// WithIndexer feeds committed pages to ix.
func WithIndexer(ix Indexer) LoaderOption {
	return func(l *Loader) { l.indexer = ix }
}

// WithThreshold sets the fraction of loaded items after which NearEnd
// reports true. Values outside (0, 1] are ignored.
func WithThreshold(f float64) LoaderOption {
	return func(l *Loader) {
		if f > 0 && f <= 1 {
			l.threshold = f
		}
	}
}

func NewLoader(subreddit string, sort model.Sort, lister Lister, opts ...LoaderOption) *Loader {
	if sort == "" {
		sort = model.SortBest
	}
	l := &Loader{
		subreddit: subreddit,
		lister:    lister,
		threshold: defaultThreshold,
		sort:      sort,
		index:     make(map[string]int),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Loader) Subreddit() string {
	return l.subreddit
}

// Load fetches a page. Append is a no-op before the first successful load,
// after the last page, and while any load is in flight. Replace supersedes
// whatever is in flight.
func (l *Loader) Load(ctx context.Context, mode Mode) error {
	l.mu.Lock()
	var after string
	switch mode {
	case Append:
		if !l.loaded || l.after == "" || l.loading {
			l.mu.Unlock()
			return nil
		}
		after = l.after
	default:
		l.supersedeLocked()
	}
	l.seq++
	seq := l.seq
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.loading = true
	sort := l.sort
	l.mu.Unlock()
	defer cancel()

	l.publish(event.FeedChanged{Subreddit: l.subreddit})
	debuglog.Debugf("feed %s: %s load sort=%s after=%q", l.subreddit, mode, sort, after)

	listing, err := l.lister.FetchListing(ctx, l.subreddit, sort, after)

	l.mu.Lock()
	if seq != l.seq {
		l.mu.Unlock()
		debuglog.Debugf("feed %s: discarding superseded %s response", l.subreddit, mode)
		return ErrSuperseded
	}
	l.loading = false
	l.cancel = nil
	if err != nil {
		l.err = err
		l.mu.Unlock()
		l.publish(event.FeedChanged{Subreddit: l.subreddit})
		debuglog.Warnf("feed %s: %s load failed: %v", l.subreddit, mode, err)
		return fmt.Errorf("loading %s: %w", l.subreddit, err)
	}

	if mode == Append {
		l.appendLocked(listing.Items)
	} else {
		l.items = l.items[:0:0]
		l.index = make(map[string]int, len(listing.Items))
		l.appendLocked(listing.Items)
	}
	l.after = listing.After
	l.loaded = true
	l.err = nil
	count := len(l.items)
	l.mu.Unlock()

	debuglog.Debugf("feed %s: committed %d items, cursor=%q", l.subreddit, count, listing.After)
	if l.indexer != nil {
		l.indexer.OnItemsLoaded(l.subreddit, listing.Items)
	}
	l.publish(event.FeedChanged{Subreddit: l.subreddit})
	return nil
}

// appendLocked adds items whose IDs are not already present, in order.
func (l *Loader) appendLocked(items []model.FeedItem) {
	for _, it := range items {
		if _, dup := l.index[it.ID]; dup {
			continue
		}
		l.index[it.ID] = len(l.items)
		l.items = append(l.items, it)
	}
}

// supersedeLocked invalidates the in-flight request, if any.
func (l *Loader) supersedeLocked() {
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.seq++
	l.loading = false
}

// SetSort clears the list and reloads it in the new order.
func (l *Loader) SetSort(ctx context.Context, sort model.Sort) error {
	l.mu.Lock()
	l.supersedeLocked()
	l.sort = sort
	l.items = nil
	l.index = make(map[string]int)
	l.after = ""
	l.loaded = false
	l.err = nil
	l.mu.Unlock()

	l.publish(event.FeedChanged{Subreddit: l.subreddit})
	return l.Load(ctx, Replace)
}

// Refresh reloads the first page and, for real subreddits, the metadata.
// A metadata failure is logged and does not fail the refresh.
func (l *Loader) Refresh(ctx context.Context) error {
	if l.about != nil && !model.IsPseudoFeed(l.subreddit) {
		info, err := l.about.About(ctx, l.subreddit)
		if err != nil {
			debuglog.Warnf("feed %s: about failed: %v", l.subreddit, err)
		} else {
			l.mu.Lock()
			l.info = &info
			l.mu.Unlock()
		}
	}
	return l.Load(ctx, Replace)
}

// NearEnd reports whether index falls in the trailing part of the loaded
// items such that the next page should be requested.
func (l *Loader) NearEnd(index int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.items)
	if n == 0 || l.after == "" || l.loading {
		return false
	}
	return index >= int(float64(n)*l.threshold)
}

// Snapshot copies the current state.
func (l *Loader) Snapshot() Page {
	l.mu.Lock()
	defer l.mu.Unlock()

	items := make([]model.FeedItem, len(l.items))
	copy(items, l.items)
	var info *model.Subreddit
	if l.info != nil {
		cp := *l.info
		info = &cp
	}
	return Page{
		Subreddit: l.subreddit,
		Sort:      l.sort,
		Items:     items,
		After:     l.after,
		Loaded:    l.loaded,
		Loading:   l.loading,
		Err:       l.err,
		Info:      info,
	}
}

// Item returns the loaded item with id.
func (l *Loader) Item(id string) (model.FeedItem, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	i, ok := l.index[id]
	if !ok {
		return model.FeedItem{}, false
	}
	return l.items[i], true
}

// Mutate applies fn to the item with id in place and returns the result.
func (l *Loader) Mutate(id string, fn func(*model.FeedItem)) (model.FeedItem, bool) {
	l.mu.Lock()
	i, ok := l.index[id]
	if !ok {
		l.mu.Unlock()
		return model.FeedItem{}, false
	}
	fn(&l.items[i])
	out := l.items[i]
	l.mu.Unlock()

	l.publish(event.ItemChanged{Subreddit: l.subreddit, ItemID: id})
	return out, true
}

// Cancel abandons any in-flight load.
func (l *Loader) Cancel() {
	l.mu.Lock()
	l.supersedeLocked()
	l.mu.Unlock()
}

func (l *Loader) publish(ev event.Event) {
	l.bus.Publish(ev)
}
