package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pders01/rdt/internal/debuglog"
	"github.com/pders01/rdt/internal/event"
	"github.com/pders01/rdt/internal/feed"
	"github.com/pders01/rdt/internal/media"
	"github.com/pders01/rdt/internal/model"
	"github.com/pders01/rdt/internal/optimistic"
	"github.com/pders01/rdt/internal/reply"
	"github.com/pders01/rdt/internal/search"
)

const (
	statusTTL      = 4 * time.Second
	searchDebounce = 200 * time.Millisecond
	searchLimit    = 20
)

var timeNow = time.Now

type busMsg struct {
	ev event.Event
}

type feedLoadedMsg struct {
	subreddit string
	mode      feed.Mode
	err       error
}

type postRenderedMsg struct {
	id      string
	content string
}

type searchDebounceFireMsg struct {
	seq   int
	query string
}

type searchResultsMsg struct {
	seq   int
	items []list.Item
}

type refreshedMsg struct {
	feeds  int
	errors int
	docs   int
}

type outcomeMsg struct {
	outcome optimistic.Outcome
}

type replySentMsg struct {
	session *reply.Session
	err     error
}

type clearStatusMsg struct {
	seq int
}

type errorMsg struct {
	err error
}

// waitForEvent blocks on the bus subscription and hands the next event to
// Update, which re-arms it.
func (a *App) waitForEvent() tea.Cmd {
	ch := a.events
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return busMsg{ev: ev}
	}
}

// setStatus shows text until it expires or is replaced.
func (a *App) setStatus(text string, kind StatusKind) tea.Cmd {
	a.statusSeq++
	seq := a.statusSeq
	a.status = text
	a.statusKind = kind
	return tea.Tick(statusTTL, func(time.Time) tea.Msg { return clearStatusMsg{seq: seq} })
}

func isQuietLoadErr(err error) bool {
	return errors.Is(err, feed.ErrSuperseded) || errors.Is(err, context.Canceled)
}

// openFeed switches the post list to subreddit, loading its first page if
// nothing is loaded yet.
func (a *App) openFeed(subreddit string) tea.Cmd {
	a.subreddit = subreddit
	a.view = ViewPosts
	a.current = nil
	a.postList.ResetSelected()
	a.syncPosts()
	if !a.page.Loaded && !a.page.Loading {
		return a.loadFeed(feed.Replace)
	}
	return nil
}

func (a *App) loadFeed(mode feed.Mode) tea.Cmd {
	l := a.deps.Feeds.Loader(a.subreddit)
	ctx := a.ctx
	return func() tea.Msg {
		err := l.Load(ctx, mode)
		return feedLoadedMsg{subreddit: l.Subreddit(), mode: mode, err: err}
	}
}

// loadMoreIfNearEnd requests the next page once the cursor enters the
// trailing part of the list.
func (a *App) loadMoreIfNearEnd() tea.Cmd {
	it, ok := a.selectedPost()
	if !ok {
		return nil
	}
	idx := a.pageIndex(it.ID)
	if idx < 0 || !a.deps.Feeds.Loader(a.subreddit).NearEnd(idx) {
		return nil
	}
	return a.loadFeed(feed.Append)
}

func (a *App) refreshFeed() tea.Cmd {
	l := a.deps.Feeds.Loader(a.subreddit)
	ctx := a.ctx
	return func() tea.Msg {
		err := l.Refresh(ctx)
		return feedLoadedMsg{subreddit: l.Subreddit(), mode: feed.Replace, err: err}
	}
}

func (a *App) cycleSort() tea.Cmd {
	l := a.deps.Feeds.Loader(a.subreddit)
	next := l.Snapshot().Sort.Next()
	ctx := a.ctx
	load := func() tea.Msg {
		err := l.SetSort(ctx, next)
		return feedLoadedMsg{subreddit: l.Subreddit(), mode: feed.Replace, err: err}
	}
	return tea.Batch(a.setStatus(MsgSorted(next), StatusInfo), load)
}

// refreshAll reloads the subscription directory and every open feed.
func (a *App) refreshAll() tea.Cmd {
	ctx := a.ctx
	dir := a.deps.Directory
	feeds := a.deps.Feeds
	searcher := a.deps.Search
	return func() tea.Msg {
		var errs int
		if dir != nil {
			err := retryOperation(func() error { return dir.Refresh(ctx) })
			if err != nil && !errors.Is(err, model.ErrReadOnly) {
				debuglog.Warnf("refresh subscriptions: %v", err)
				errs++
			}
		}
		if err := feeds.RefreshAll(ctx); err != nil {
			debuglog.Warnf("refresh feeds: %v", err)
			errs++
		}
		docs := -1
		if ds, ok := searcher.(search.DebugStatser); ok {
			if n, err := ds.DocCount(); err == nil {
				docs = n
			}
		}
		return refreshedMsg{feeds: len(feeds.Subreddits()), errors: errs, docs: docs}
	}
}

func (a *App) vote(it model.FeedItem, dir model.Direction) tea.Cmd {
	return waitOutcome(a.deps.Mutator.Vote(a.ctx, it.ID, dir))
}

func (a *App) toggleSubscription(name string) tea.Cmd {
	if name == "" {
		return nil
	}
	if model.IsPseudoFeed(name) {
		return a.setStatus(MsgPseudoFeed, StatusWarn)
	}
	return waitOutcome(a.deps.Mutator.ToggleSubscription(a.ctx, name))
}

func (a *App) toggleFavorite(name string) tea.Cmd {
	if name == "" {
		return nil
	}
	if model.IsPseudoFeed(name) {
		return a.setStatus(MsgPseudoFeed, StatusWarn)
	}
	return waitOutcome(a.deps.Mutator.ToggleFavorite(a.ctx, name))
}

func waitOutcome(ch <-chan optimistic.Outcome) tea.Cmd {
	return func() tea.Msg {
		return outcomeMsg{outcome: <-ch}
	}
}

// handleOutcome reports mutations that never reached the server. Reverts
// after a failed request are announced on the bus by the mutator.
func (a *App) handleOutcome(o optimistic.Outcome) tea.Cmd {
	switch {
	case o.Err == nil:
		return nil
	case errors.Is(o.Err, model.ErrReadOnly):
		return a.setStatus(MsgReadOnly, StatusWarn)
	case !o.Reverted:
		return a.setStatus(o.Err.Error(), StatusError)
	}
	return nil
}

// openReader shows it in the reader and marks it seen.
func (a *App) openReader(it model.FeedItem) tea.Cmd {
	if a.deps.Mutator != nil {
		if seen, ok := a.deps.Mutator.MarkSeen(it.ID); ok {
			it = seen
		}
	}
	a.current = &it
	a.previousView = a.view
	a.view = ViewReader
	a.renderingPost = true
	return a.renderPost(it)
}

func (a *App) renderPost(it model.FeedItem) tea.Cmd {
	kind := media.TypeSelf
	player := ""
	if a.deps.Launcher != nil {
		kind = a.deps.Launcher.Detector().Classify(it)
		if kind != media.TypeSelf {
			player, _ = a.deps.Launcher.Resolve(it.URL)
		}
	}
	return func() tea.Msg {
		var content strings.Builder
		content.WriteString(fmt.Sprintf("# %s\n\n", it.Title))
		content.WriteString(fmt.Sprintf("*r/%s • u/%s • %d points • %d comments",
			it.Subreddit, it.Author, it.Vote.Score(), it.NumComments))
		if !it.Created.IsZero() {
			content.WriteString(" • " + model.TimeSince(it.Created, timeNow()))
		}
		content.WriteString("*\n\n")

		if kind != media.TypeSelf {
			content.WriteString(fmt.Sprintf("**%s:** [%s](%s)", kind, truncateMiddle(it.URL, 60), it.URL))
			if player != "" {
				content.WriteString(fmt.Sprintf(" (opens in %s)", player))
			}
			content.WriteString("\n\n")
		}

		content.WriteString("---\n\n")
		if it.SelfText != "" {
			content.WriteString(it.SelfText)
		}

		r, err := a.getRenderer()
		if err != nil {
			return postRenderedMsg{id: it.ID, content: "Error initializing renderer: " + err.Error()}
		}
		rendered, err := r.Render(content.String())
		if err != nil {
			return postRenderedMsg{id: it.ID, content: fmt.Sprintf("# Error\n\nFailed to render post: %s\n\nPress Escape to go back.", err.Error())}
		}
		return postRenderedMsg{id: it.ID, content: rendered}
	}
}

func (a *App) openItem(it model.FeedItem) tea.Cmd {
	launcher := a.deps.Launcher
	if launcher == nil {
		return nil
	}
	return func() tea.Msg {
		err := launcher.OpenItem(it)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, media.ErrNothingToOpen):
			return errorMsg{err: errors.New(MsgNothingToOpen)}
		default:
			return errorMsg{err: fmt.Errorf("failed to open %s: %w", it.URL, err)}
		}
	}
}

func (a *App) performSearch(query string) tea.Cmd {
	seq := a.searchSeq
	from := a.searchFrom
	current := a.current
	dir := a.deps.Directory
	searcher := a.deps.Search
	return func() tea.Msg {
		var items []list.Item
		switch {
		case from == ViewSubs:
			if dir == nil {
				break
			}
			for _, s := range search.RankSubreddits(dir.All(), query) {
				items = append(items, subItem{sub: s})
			}
		case searcher == nil:
		default:
			var results []*search.Result
			var err error
			if from == ViewReader && current != nil {
				results, err = searcher.SearchInItem(current, query)
			} else {
				results, err = searcher.Search(query, searchLimit)
			}
			if err != nil {
				return errorMsg{err: wrapErr("search", err)}
			}
			for _, r := range results {
				items = append(items, resultItem{result: r})
			}
		}
		return searchResultsMsg{seq: seq, items: items}
	}
}

// retryOperation retries a network operation with exponential backoff.
func retryOperation(operation func() error) error {
	const maxRetries = 3
	backoff := 100 * time.Millisecond

	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		err = operation()
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, model.ErrReadOnly) {
			return err
		}
		if attempt < maxRetries-1 {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	return err
}
