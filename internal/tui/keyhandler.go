package tui

import (
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pders01/rdt/internal/config"
	"github.com/pders01/rdt/internal/model"
	"github.com/pders01/rdt/internal/reply"
	"github.com/pders01/rdt/internal/search"
	"github.com/pders01/rdt/internal/validation"
)

type KeyHandler struct {
	app  *App
	keys config.KeyBindings
}

func NewKeyHandler(app *App, cfg *config.Config) *KeyHandler {
	return &KeyHandler{app: app, keys: cfg.Keys.Bindings}
}

func (kh *KeyHandler) HandleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if kh.isInTextInputMode() {
		return kh.handleTextInputMode(msg)
	}

	if model, cmd, handled := kh.handleCustomKeys(key); handled {
		return model, cmd
	}

	return kh.delegateToCharm(msg)
}

func (kh *KeyHandler) isInTextInputMode() bool {
	switch kh.app.view {
	case ViewReply, ViewGoto:
		return true
	case ViewSearch:
		return kh.app.searchInput.Focused()
	default:
		return false
	}
}

func (kh *KeyHandler) handleTextInputMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	switch key {
	case "ctrl+c":
		return kh.app, tea.Quit
	case "esc":
		return kh.navigateBack()
	}

	switch kh.app.view {
	case ViewReply:
		return kh.handleReplyKeys(msg)

	case ViewGoto:
		if key == "enter" {
			return kh.handleGotoEnter()
		}
		var cmd tea.Cmd
		kh.app.gotoInput, cmd = kh.app.gotoInput.Update(msg)
		return kh.app, cmd

	case ViewSearch:
		switch key {
		case "enter":
			if len(kh.app.searchList.Items()) > 0 {
				kh.app.searchList.Select(0)
				return kh.selectSearchResult(kh.app.searchList.SelectedItem())
			}
			return kh.app, nil
		case "tab", "down":
			if len(kh.app.searchList.Items()) > 0 {
				kh.app.searchInput.Blur()
				kh.app.searchList.Select(0)
			}
			return kh.app, nil
		}
		return kh.delegateToSearchInput(msg)
	}
	return kh.app, nil
}

// delegateToSearchInput passes the key to the search box and schedules a
// debounced search when the query changed.
func (kh *KeyHandler) delegateToSearchInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	prev := kh.sanitizeSearchInput(kh.app.searchInput.Value())
	var cmd tea.Cmd
	kh.app.searchInput, cmd = kh.app.searchInput.Update(msg)

	query := kh.sanitizeSearchInput(kh.app.searchInput.Value())
	if query == prev {
		return kh.app, cmd
	}
	kh.app.searchSeq++
	seq := kh.app.searchSeq
	if query == "" {
		kh.app.searchList.SetItems([]list.Item{})
		return kh.app, cmd
	}
	return kh.app, tea.Batch(cmd, tea.Tick(searchDebounce, func(time.Time) tea.Msg {
		return searchDebounceFireMsg{seq: seq, query: query}
	}))
}

func (kh *KeyHandler) handleReplyKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	a := kh.app
	switch msg.String() {
	case kh.keys.Send:
		done, err := a.session.Submit(a.ctx)
		switch {
		case errors.Is(err, model.ErrEmptyReply):
			return a, a.setStatus(MsgEmptyReply, StatusWarn)
		case errors.Is(err, model.ErrReadOnly):
			return a, a.setStatus(MsgReadOnly, StatusWarn)
		case err != nil:
			return a, a.setStatus(wrapErr("reply", err).Error(), StatusError)
		}
		session := a.session
		a.sending = append(a.sending, session)
		kh.leaveReply()
		return a, tea.Batch(a.setStatus(MsgSending, StatusInfo), func() tea.Msg {
			return replySentMsg{session: session, err: <-done}
		})

	case kh.keys.Discard:
		a.session.Discard()
		kh.leaveReply()
		return a, a.setStatus(MsgDraftDiscard, StatusInfo)
	}

	var cmd tea.Cmd
	a.editor, cmd = a.editor.Update(msg)
	if v := a.editor.Value(); v != a.session.Text() {
		a.session.SetText(v)
	}
	return a, cmd
}

func (kh *KeyHandler) leaveReply() {
	a := kh.app
	a.session = nil
	a.editor.Blur()
	a.editor.Reset()
	a.view = a.previousView
}

func (kh *KeyHandler) handleGotoEnter() (tea.Model, tea.Cmd) {
	a := kh.app
	name, err := validation.SubredditFromInput(a.gotoInput.Value())
	if err != nil {
		return a, a.setStatus(err.Error(), StatusWarn)
	}
	a.gotoInput.Blur()
	a.gotoInput.Reset()
	return a, a.openFeed(name)
}

// handleCustomKeys handles only our custom action keys
func (kh *KeyHandler) handleCustomKeys(key string) (tea.Model, tea.Cmd, bool) {
	a := kh.app

	switch key {
	case "ctrl+c", kh.keys.Quit:
		return a, tea.Quit, true
	case kh.keys.Back:
		model, cmd := kh.navigateBack()
		return model, cmd, true
	case kh.keys.Search:
		if a.view != ViewSearch {
			model, cmd := kh.enterSearchMode()
			return model, cmd, true
		}
	case kh.keys.Goto:
		a.previousView = a.view
		a.view = ViewGoto
		a.gotoInput.Reset()
		return a, a.gotoInput.Focus(), true
	}

	switch a.view {
	case ViewSubs:
		return kh.handleSubsCustomKeys(key)
	case ViewPosts, ViewReader:
		return kh.handlePostCustomKeys(key)
	case ViewSearch:
		return kh.handleSearchResultKeys(key)
	default:
		return a, nil, false
	}
}

func (kh *KeyHandler) handleSubsCustomKeys(key string) (tea.Model, tea.Cmd, bool) {
	a := kh.app
	switch key {
	case kh.keys.Refresh:
		return a, tea.Batch(a.setStatus(MsgRefreshing, StatusInfo), a.refreshAll()), true
	case kh.keys.Subscribe:
		return a, a.toggleSubscription(a.targetSubreddit()), true
	case kh.keys.Favorite:
		return a, a.toggleFavorite(a.targetSubreddit()), true
	}
	return a, nil, false
}

// handlePostCustomKeys covers the post list and the reader; actions apply
// to the selected or open post.
func (kh *KeyHandler) handlePostCustomKeys(key string) (tea.Model, tea.Cmd, bool) {
	a := kh.app
	switch key {
	case kh.keys.Upvote, kh.keys.Downvote:
		it, ok := a.targetPost()
		if !ok {
			return a, nil, true
		}
		dir := model.DirUp
		if key == kh.keys.Downvote {
			dir = model.DirDown
		}
		return a, a.vote(it, dir), true

	case kh.keys.ToggleSeen:
		if it, ok := a.targetPost(); ok {
			a.deps.Mutator.ToggleSeen(it.ID)
			a.syncPosts()
		}
		return a, nil, true

	case kh.keys.Reply:
		it, ok := a.targetPost()
		if !ok {
			return a, nil, true
		}
		return a, kh.startReply(it), true

	case kh.keys.Open:
		if it, ok := a.targetPost(); ok {
			return a, a.openItem(it), true
		}
		return a, nil, true

	case kh.keys.Sort:
		if a.view == ViewPosts {
			return a, a.cycleSort(), true
		}

	case kh.keys.Refresh:
		if a.view == ViewPosts {
			return a, tea.Batch(a.setStatus(MsgRefreshing, StatusInfo), a.refreshFeed()), true
		}

	case kh.keys.Subscribe:
		return a, a.toggleSubscription(a.subreddit), true

	case kh.keys.Favorite:
		return a, a.toggleFavorite(a.subreddit), true
	}
	return a, nil, false
}

// handleSearchResultKeys applies once focus has moved from the search box
// to the result list.
func (kh *KeyHandler) handleSearchResultKeys(key string) (tea.Model, tea.Cmd, bool) {
	a := kh.app
	switch key {
	case "tab", "shift+tab":
		a.searchList.ResetSelected()
		return a, a.searchInput.Focus(), true
	case "up", "k":
		if a.searchList.Index() == 0 {
			return a, a.searchInput.Focus(), true
		}
	case "enter":
		model, cmd := kh.selectSearchResult(a.searchList.SelectedItem())
		return model, cmd, true
	}
	return a, nil, false
}

func (kh *KeyHandler) startReply(target model.FeedItem) tea.Cmd {
	a := kh.app
	a.current = &target
	a.session = reply.Open(a.deps.Drafts, a.deps.Replier, target.ID, reply.Options{
		Debounce: a.config.Reply.Debounce,
		Bus:      a.deps.Bus,
	})
	a.editor.Reset()
	a.editor.SetValue(a.session.Text())
	a.previousView = a.view
	a.view = ViewReply
	return tea.Batch(a.editor.Focus(), textarea.Blink)
}

// delegateToCharm lets Charm handle all keys we don't intercept
func (kh *KeyHandler) delegateToCharm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	a := kh.app
	var cmd tea.Cmd

	switch a.view {
	case ViewSubs:
		a.subList, cmd = a.subList.Update(msg)
		if msg.String() == "enter" {
			if i, ok := a.subList.SelectedItem().(subItem); ok {
				return a, a.openFeed(i.sub.Name)
			}
		}
		return a, cmd

	case ViewPosts:
		a.postList, cmd = a.postList.Update(msg)
		if msg.String() == "enter" {
			if it, ok := a.selectedPost(); ok {
				a.cameFromSearch = false
				return a, a.openReader(it)
			}
		}
		return a, tea.Batch(cmd, a.loadMoreIfNearEnd())

	case ViewReader:
		a.viewport, cmd = a.viewport.Update(msg)
		return a, cmd

	case ViewSearch:
		a.searchList, cmd = a.searchList.Update(msg)
		return a, cmd
	}
	return a, nil
}

func (kh *KeyHandler) selectSearchResult(item list.Item) (tea.Model, tea.Cmd) {
	a := kh.app
	switch i := item.(type) {
	case subItem:
		kh.resetSearch()
		return a, a.openFeed(i.sub.Name)
	case resultItem:
		it := i.result.Item
		if latest, ok := a.deps.Feeds.Item(it.ID); ok {
			it = latest
		}
		a.cameFromSearch = true
		a.searchInput.Blur()
		return a, a.openReader(it)
	}
	return a, nil
}

func (kh *KeyHandler) resetSearch() {
	a := kh.app
	a.searchSeq++
	a.searchInput.Reset()
	a.searchInput.Blur()
	a.searchList.SetItems([]list.Item{})
}

// navigateBack implements smart back navigation
func (kh *KeyHandler) navigateBack() (tea.Model, tea.Cmd) {
	a := kh.app
	switch a.view {
	case ViewReply:
		st := a.session.Close()
		kh.leaveReply()
		if st == reply.AbandonedNonEmpty {
			return a, a.setStatus(MsgDraftKept, StatusInfo)
		}
		return a, nil

	case ViewGoto:
		a.gotoInput.Blur()
		a.view = a.previousView
		return a, nil

	case ViewSearch:
		a.view = a.searchFrom
		kh.resetSearch()
		return a, nil

	case ViewReader:
		if a.cameFromSearch {
			a.cameFromSearch = false
			a.view = ViewSearch
			return a, nil
		}
		a.current = nil
		a.view = ViewPosts
		return a, nil

	case ViewPosts:
		a.view = ViewSubs
		a.syncSubs()
		return a, nil

	default:
		return a, nil
	}
}

// enterSearchMode transitions to search view
func (kh *KeyHandler) enterSearchMode() (tea.Model, tea.Cmd) {
	a := kh.app
	a.searchFrom = a.view
	a.view = ViewSearch
	kh.resetSearch()
	focus := a.searchInput.Focus()

	switch a.searchFrom {
	case ViewSubs:
		a.searchInput.Placeholder = "Search subreddits..."
	case ViewReader:
		a.searchInput.Placeholder = "Search this post..."
	default:
		a.searchInput.Placeholder = "Search loaded posts..."
	}

	if ds, ok := a.deps.Search.(search.DebugStatser); ok && a.searchFrom != ViewSubs {
		if n, err := ds.DocCount(); err == nil {
			return a, tea.Batch(focus, a.setStatus(MsgSearchIndex(n), StatusInfo))
		}
	}
	return a, focus
}

// sanitizeSearchInput sanitizes and limits search input length
func (kh *KeyHandler) sanitizeSearchInput(input string) string {
	input = strings.TrimSpace(input)

	if len(input) > 256 {
		input = input[:256]
	}

	input = strings.ReplaceAll(input, "\n", " ")
	input = strings.ReplaceAll(input, "\r", " ")
	input = strings.ReplaceAll(input, "\t", " ")

	for strings.Contains(input, "  ") {
		input = strings.ReplaceAll(input, "  ", " ")
	}

	return strings.TrimSpace(input)
}

// GetHelpForCurrentView returns only our custom help text (Charm handles the rest)
func (kh *KeyHandler) GetHelpForCurrentView() []string {
	k := kh.keys
	switch kh.app.view {
	case ViewSubs:
		return []string{"enter: open", k.Goto + ": go to", k.Subscribe + ": subscribe", k.Favorite + ": favorite", k.Refresh + ": refresh", k.Search + ": search", k.Quit + ": quit"}

	case ViewPosts:
		return []string{"enter: read", k.Upvote + "/" + k.Downvote + ": vote", k.Reply + ": reply", k.Open + ": open", k.Sort + ": sort", k.ToggleSeen + ": seen", k.Refresh + ": refresh", k.Back + ": back"}

	case ViewReader:
		return []string{k.Upvote + "/" + k.Downvote + ": vote", k.Reply + ": reply", k.Open + ": open", k.Search + ": find", k.Back + ": back"}

	case ViewReply:
		return []string{k.Send + ": send", k.Discard + ": discard", k.Back + ": close (draft kept)"}

	case ViewGoto:
		return []string{"enter: open", "esc: cancel"}

	case ViewSearch:
		return []string{"enter: select", "tab: switch focus", "esc: back"}

	default:
		return []string{}
	}
}
