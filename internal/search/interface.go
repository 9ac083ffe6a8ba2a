package search

import "github.com/pders01/rdt/internal/model"

// Searcher defines the minimal search API used by the TUI.
type Searcher interface {
	Search(query string, limit int) ([]*Result, error)
	SearchInItem(item *model.FeedItem, query string) ([]*Result, error)
}

// UpdateListener can be implemented by search engines that maintain
// an external index and want to be notified about newly loaded posts.
type UpdateListener interface {
	OnItemsLoaded(subreddit string, items []model.FeedItem)
}

// DropListener can be implemented to get notified when a feed is dropped.
type DropListener interface {
	OnFeedDropped(subreddit string)
}

// DebugStatser provides lightweight stats for visibility/debugging.
type DebugStatser interface {
	DocCount() (int, error)
}

// ItemSource lists every post currently loaded in any feed.
type ItemSource interface {
	LoadedItems() []model.FeedItem
}

// Result is a search hit with relevance scoring.
type Result struct {
	Item    model.FeedItem
	Score   float64
	Matches []Match
}

// Match represents where text was found
type Match struct {
	Field  string // "title", "selftext", "author"
	Text   string
	Weight float64
}
