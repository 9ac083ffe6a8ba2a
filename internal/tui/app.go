package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/pders01/rdt/internal/config"
	"github.com/pders01/rdt/internal/event"
	"github.com/pders01/rdt/internal/feed"
	"github.com/pders01/rdt/internal/media"
	"github.com/pders01/rdt/internal/model"
	"github.com/pders01/rdt/internal/optimistic"
	"github.com/pders01/rdt/internal/reply"
	"github.com/pders01/rdt/internal/search"
	"github.com/pders01/rdt/internal/subreddits"
)

// Deps are the core services the UI drives. Replier must be a nil
// interface, not a typed nil, when browsing anonymously.
type Deps struct {
	Feeds     *feed.Manager
	Mutator   *optimistic.Mutator
	Directory *subreddits.Directory
	Drafts    reply.DraftStore
	Replier   reply.Replier
	Search    search.Searcher
	Launcher  *media.Launcher
	Bus       *event.Bus
}

type App struct {
	config     *config.Config
	deps       Deps
	keyHandler *KeyHandler

	ctx         context.Context
	cancel      context.CancelFunc
	events      <-chan event.Event
	unsubscribe func()

	subList     list.Model
	postList    list.Model
	searchList  list.Model
	searchInput textinput.Model
	gotoInput   textinput.Model
	editor      textarea.Model
	viewport    viewport.Model

	view           View
	previousView   View
	searchFrom     View
	cameFromSearch bool
	startIn        string

	subreddit string
	page      feed.Page
	current   *model.FeedItem
	session   *reply.Session
	// sending holds submitted sessions whose reply may still be in flight.
	sending []*reply.Session

	searchSeq  int
	statusSeq  int
	status     string
	statusKind StatusKind

	width           int
	height          int
	glamourRenderer *glamour.TermRenderer
	rendererWidth   int
	renderingPost   bool
}

func NewApp(deps Deps, cfg *config.Config) *App {
	ApplyTheme(cfg.UI.Colors)

	subList := newList("› subreddits")
	postList := newList("› posts")
	searchList := newList("› search results")

	si := textinput.New()
	si.Placeholder = "Search loaded posts..."
	si.CharLimit = 256

	gi := textinput.New()
	gi.Placeholder = "r/golang or a reddit URL"
	gi.CharLimit = 256

	ed := textarea.New()
	ed.Placeholder = "Write a reply..."
	ed.ShowLineNumbers = false
	ed.CharLimit = 10000

	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		config:       cfg,
		deps:         deps,
		ctx:          ctx,
		cancel:       cancel,
		subList:      subList,
		postList:     postList,
		searchList:   searchList,
		searchInput:  si,
		gotoInput:    gi,
		editor:       ed,
		viewport:     viewport.New(0, 0),
		view:         ViewSubs,
		previousView: ViewSubs,
	}
	if deps.Bus != nil {
		app.events, app.unsubscribe = deps.Bus.Subscribe()
	}
	app.keyHandler = NewKeyHandler(app, cfg)
	app.syncSubs()
	return app
}

func newList(title string) list.Model {
	l := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	l.Title = title
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	return l
}

// StartIn opens subreddit as soon as the program starts.
func (a *App) StartIn(subreddit string) {
	a.startIn = subreddit
}

// Close ends any open reply session, waits for submitted replies and
// pending mutations, then releases the event subscription.
func (a *App) Close() {
	if a.session != nil {
		a.session.Close()
		a.session.Wait()
		a.session = nil
	}
	for _, s := range a.sending {
		s.Wait()
	}
	a.sending = nil
	if a.deps.Mutator != nil {
		a.deps.Mutator.Wait()
	}
	if a.unsubscribe != nil {
		a.unsubscribe()
		a.unsubscribe = nil
	}
	a.cancel()
}

func (a *App) getRenderer() (*glamour.TermRenderer, error) {
	wordWrapWidth := (a.width * 9) / 10
	if limit := a.config.UI.WrapWidth; limit > 0 && wordWrapWidth > limit {
		wordWrapWidth = limit
	}
	if wordWrapWidth < 40 {
		wordWrapWidth = 40
	}
	if a.width > 0 && a.width < 50 {
		wordWrapWidth = a.width - 4
		if wordWrapWidth < 20 {
			wordWrapWidth = 20
		}
	}

	if a.glamourRenderer == nil || abs(a.rendererWidth-wordWrapWidth) > 10 {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(wordWrapWidth),
		)
		if err != nil {
			return nil, err
		}
		a.glamourRenderer = r
		a.rendererWidth = wordWrapWidth
	}

	return a.glamourRenderer, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func (a *App) Init() tea.Cmd {
	cmds := []tea.Cmd{tea.EnterAltScreen, a.waitForEvent()}
	if a.startIn != "" {
		cmds = append(cmds, a.openFeed(a.startIn))
	}
	return tea.Batch(cmds...)
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.subList.SetSize(msg.Width, msg.Height-3)
		a.postList.SetSize(msg.Width, msg.Height-4)
		searchListHeight := msg.Height - 10
		if searchListHeight < 5 {
			searchListHeight = 5
		}
		a.searchList.SetSize(msg.Width, searchListHeight)
		a.viewport.Width = msg.Width
		a.viewport.Height = msg.Height - 3

		inputWidth := msg.Width - 8
		if inputWidth < 20 {
			inputWidth = msg.Width
		}
		a.gotoInput.Width = inputWidth
		a.editor.SetWidth(inputWidth)
		a.editor.SetHeight(max(msg.Height-10, 3))
		return a, nil

	case tea.KeyMsg:
		return a.keyHandler.HandleKey(msg)

	case busMsg:
		return a, tea.Batch(a.handleEvent(msg.ev), a.waitForEvent())

	case feedLoadedMsg:
		if msg.err != nil && !isQuietLoadErr(msg.err) {
			return a, a.setStatus(wrapErr("r/"+msg.subreddit, msg.err).Error(), StatusError)
		}
		if strings.EqualFold(msg.subreddit, a.subreddit) {
			a.syncPosts()
		}
		return a, nil

	case postRenderedMsg:
		if a.view == ViewReader && a.current != nil && a.current.ID == msg.id {
			a.viewport.SetContent(msg.content)
			a.viewport.GotoTop()
			a.renderingPost = false
		}
		return a, nil

	case searchDebounceFireMsg:
		if msg.seq == a.searchSeq && a.view == ViewSearch {
			return a, a.performSearch(msg.query)
		}
		return a, nil

	case searchResultsMsg:
		if a.view == ViewSearch && msg.seq == a.searchSeq {
			a.searchList.SetItems(msg.items)
			a.searchList.ResetSelected()
			if len(msg.items) == 0 {
				return a, a.setStatus(MsgNoResults, StatusInfo)
			}
			return a, a.setStatus(MsgResultsCount(len(msg.items)), StatusInfo)
		}
		return a, nil

	case refreshedMsg:
		a.syncSubs()
		a.syncPosts()
		kind := StatusSuccess
		if msg.errors > 0 {
			kind = StatusWarn
		}
		return a, a.setStatus(MsgRefreshSummary(msg.feeds, msg.errors, msg.docs), kind)

	case outcomeMsg:
		return a, a.handleOutcome(msg.outcome)

	case replySentMsg:
		for i, s := range a.sending {
			if s == msg.session {
				a.sending = append(a.sending[:i], a.sending[i+1:]...)
				break
			}
		}
		if a.deps.Bus == nil {
			if msg.err != nil {
				return a, a.setStatus(wrapErr("reply", msg.err).Error(), StatusError)
			}
			return a, a.setStatus("Reply sent", StatusSuccess)
		}
		return a, nil

	case clearStatusMsg:
		if msg.seq == a.statusSeq {
			a.status = ""
		}
		return a, nil

	case errorMsg:
		return a, a.setStatus(msg.err.Error(), StatusError)
	}

	switch a.view {
	case ViewReader:
		var cmd tea.Cmd
		a.viewport, cmd = a.viewport.Update(msg)
		cmds = append(cmds, cmd)
	case ViewReply:
		var cmd tea.Cmd
		a.editor, cmd = a.editor.Update(msg)
		cmds = append(cmds, cmd)
	case ViewSearch:
		var cmd tea.Cmd
		a.searchInput, cmd = a.searchInput.Update(msg)
		cmds = append(cmds, cmd)
	case ViewGoto:
		var cmd tea.Cmd
		a.gotoInput, cmd = a.gotoInput.Update(msg)
		cmds = append(cmds, cmd)
	}

	return a, tea.Batch(cmds...)
}

// handleEvent folds a core notification into the visible state.
func (a *App) handleEvent(ev event.Event) tea.Cmd {
	switch ev := ev.(type) {
	case event.FeedChanged:
		if strings.EqualFold(ev.Subreddit, a.subreddit) {
			a.syncPosts()
		}
	case event.ItemChanged:
		if strings.EqualFold(ev.Subreddit, a.subreddit) {
			a.syncPosts()
		}
		if a.current != nil && a.current.ID == ev.ItemID {
			if it, ok := a.deps.Feeds.Item(ev.ItemID); ok {
				a.current = &it
				if a.view == ViewReader {
					return a.renderPost(it)
				}
			}
		}
	case event.SubscriptionChanged:
		a.syncSubs()
	case event.Notice:
		return a.setStatus(ev.Text, statusKindOf(ev.Kind))
	}
	return nil
}

// syncPosts copies the current loader's page into the post list, keeping
// the cursor where it was.
func (a *App) syncPosts() {
	if a.subreddit == "" || a.deps.Feeds == nil {
		return
	}
	a.page = a.deps.Feeds.Loader(a.subreddit).Snapshot()
	items := make([]list.Item, 0, len(a.page.Items))
	for _, it := range a.page.Items {
		if it.Over18 && !a.config.UI.ShowNSFW {
			continue
		}
		items = append(items, postItem{item: it, showSub: model.IsPseudoFeed(a.subreddit)})
	}
	a.postList.SetItems(items)
	a.postList.Title = a.postsTitle()
}

func (a *App) postsTitle() string {
	title := "› " + model.Subreddit{Name: a.subreddit}.Label() + " · " + string(a.page.Sort)
	switch {
	case a.page.Loading:
		title += " · " + MsgLoading
	case a.page.Exhausted():
		title += " · end"
	}
	return title
}

// syncSubs rebuilds the subreddit list: built-in feeds, then favorites,
// then subscriptions grouped by first letter.
func (a *App) syncSubs() {
	var items []list.Item
	for _, name := range model.PseudoFeeds {
		items = append(items, subItem{sub: model.Subreddit{Name: name}})
	}
	if d := a.deps.Directory; d != nil {
		favorites := map[string]bool{}
		for _, s := range d.Favorites() {
			favorites[strings.ToLower(s.Name)] = true
			items = append(items, subItem{sub: s, group: "★"})
		}
		for _, g := range d.Groups() {
			for _, s := range g.Subreddits {
				if favorites[strings.ToLower(s.Name)] {
					continue
				}
				items = append(items, subItem{sub: s, group: g.Letter})
			}
		}
	}
	a.subList.SetItems(items)
}

// pageIndex maps a post ID to its position in the loader's items, which
// differs from the list index when NSFW posts are hidden.
func (a *App) pageIndex(id string) int {
	for i, it := range a.page.Items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func (a *App) selectedPost() (model.FeedItem, bool) {
	if i, ok := a.postList.SelectedItem().(postItem); ok {
		return i.item, true
	}
	return model.FeedItem{}, false
}

// targetPost is the post keyed actions apply to: the one open in the
// reader, else the list selection.
func (a *App) targetPost() (model.FeedItem, bool) {
	if a.view == ViewReader && a.current != nil {
		return *a.current, true
	}
	if a.view == ViewPosts {
		return a.selectedPost()
	}
	return model.FeedItem{}, false
}

// targetSubreddit is the subreddit subscribe and favorite act on.
func (a *App) targetSubreddit() string {
	if a.view == ViewSubs {
		if i, ok := a.subList.SelectedItem().(subItem); ok {
			return i.sub.Name
		}
		return ""
	}
	return a.subreddit
}

func (a *App) View() string {
	var content string
	bodyHeight := a.height - 3

	switch a.view {
	case ViewSubs:
		if len(a.subList.Items()) <= len(model.PseudoFeeds) && a.height > 20 {
			content = lipgloss.JoinVertical(lipgloss.Top,
				a.subList.View(),
				renderCentered(a.width, 9, GetWelcomeMessage()),
			)
		} else {
			content = a.subList.View()
		}

	case ViewPosts:
		sub := ""
		if a.page.Info != nil {
			sub = a.page.Info.Title
		}
		if a.page.Err != nil {
			sub = "✗ " + a.page.Err.Error()
		}
		if len(a.postList.Items()) == 0 && a.page.Loading {
			content = renderCentered(a.width, bodyHeight, renderMuted(MsgLoading))
		} else {
			content = lipgloss.JoinVertical(lipgloss.Top, renderMuted(truncateEnd(sub, a.width-2)), a.postList.View())
		}

	case ViewReader:
		if a.renderingPost {
			content = renderCentered(a.width, bodyHeight, renderMuted(MsgLoading))
		} else {
			content = clampLines(a.viewport.View(), a.width)
		}

	case ViewReply:
		title := "› reply"
		if a.current != nil {
			title = "› reply to: " + a.current.Title
		}
		content = lipgloss.JoinVertical(lipgloss.Top,
			renderHeader(title, "", a.width),
			"",
			renderInputFrame(a.editor.View(), a.editor.Focused(), a.editor.Width()),
		)

	case ViewGoto:
		content = renderCentered(a.width, bodyHeight, lipgloss.JoinVertical(
			lipgloss.Center,
			TitleStyle.Render("› go to subreddit"),
			"",
			renderInputFrame(a.gotoInput.View(), a.gotoInput.Focused(), a.gotoInput.Width),
			"",
			renderHelp("Enter: open • Esc: cancel"),
		))

	case ViewSearch:
		searchInputWidth := a.width - 8
		if searchInputWidth < 10 {
			searchInputWidth = a.width - 4
		}
		a.searchInput.Width = searchInputWidth

		searchHeader := "› search"
		switch {
		case a.searchFrom == ViewSubs:
			searchHeader = "› search subreddits"
		case a.searchFrom == ViewReader && a.current != nil:
			searchHeader = "› search in post: " + a.current.Title
		}

		helpText := "No results • Tab/↑: search box • Esc: back"
		switch {
		case a.searchInput.Focused():
			helpText = "Type to search • Tab/↓: results • Esc: back"
		case len(a.searchList.Items()) > 0:
			helpText = "↑↓: navigate • Enter: select • Tab/↑: search box • Esc: back"
		}

		content = ContentWrapper(a.width, bodyHeight).Render(lipgloss.JoinVertical(
			lipgloss.Top,
			renderHeader(searchHeader, "", a.width),
			"",
			renderInputFrame(a.searchInput.View(), a.searchInput.Focused(), searchInputWidth),
			renderMuted(helpText),
			"",
			a.searchList.View(),
		))
	}

	separatorWidth := a.width - 2
	if separatorWidth < 0 {
		separatorWidth = 0
	}
	separator := SeparatorStyle.Render("─" + strings.Repeat("─", separatorWidth))

	return lipgloss.JoinVertical(lipgloss.Top, content, separator, a.getCustomStatusBar())
}

func (a *App) getCustomStatusBar() string {
	style := lipgloss.NewStyle().Width(a.width).Padding(0, 1)
	if a.status != "" {
		text := a.status
		if a.statusKind == StatusError {
			text = "✗ " + text
		}
		return style.Render(a.statusKind.style().Render(truncateEnd(text, a.width-2)))
	}
	commands := a.keyHandler.GetHelpForCurrentView()
	return style.Foreground(MutedColor).Render(truncateEnd(strings.Join(commands, " • "), a.width-2))
}

type subItem struct {
	sub   model.Subreddit
	group string
}

func (i subItem) Title() string {
	label := i.sub.Label()
	if i.sub.State.Favorited {
		label = "★ " + label
	}
	return label
}

func (i subItem) Description() string {
	if model.IsPseudoFeed(i.sub.Name) {
		return "built-in feed"
	}
	parts := []string{}
	if i.group != "" && i.group != "★" {
		parts = append(parts, i.group)
	}
	if i.sub.Title != "" {
		parts = append(parts, i.sub.Title)
	}
	if i.sub.Subscribers > 0 {
		parts = append(parts, compactCount(i.sub.Subscribers)+" members")
	}
	return strings.Join(parts, " • ")
}

func (i subItem) FilterValue() string { return i.sub.Name }

type postItem struct {
	item    model.FeedItem
	showSub bool
}

func (i postItem) Title() string {
	style := UnseenItemStyle
	if i.item.Seen {
		style = SeenItemStyle
	}
	return fmt.Sprintf("%s  %s", renderScore(i.item.Vote), style.Render(i.item.Title))
}

func (i postItem) Description() string {
	parts := []string{}
	if i.showSub && i.item.Subreddit != "" {
		parts = append(parts, "r/"+i.item.Subreddit)
	}
	if i.item.Author != "" {
		parts = append(parts, "u/"+i.item.Author)
	}
	if !i.item.Created.IsZero() {
		parts = append(parts, model.TimeSince(i.item.Created, timeNow()))
	}
	parts = append(parts, fmt.Sprintf("%d comments", i.item.NumComments))
	if i.item.Over18 {
		parts = append(parts, "nsfw")
	}
	return renderMeta(parts)
}

func (i postItem) FilterValue() string { return i.item.Title }

type resultItem struct {
	result *search.Result
}

func (i resultItem) Title() string {
	return fmt.Sprintf("%s  %s", SubredditStyle.Render("r/"+i.result.Item.Subreddit), i.result.Item.Title)
}

func (i resultItem) Description() string {
	if len(i.result.Matches) == 0 {
		return "u/" + i.result.Item.Author
	}
	m := i.result.Matches[0]
	return fmt.Sprintf("%s: %s", m.Field, m.Text)
}

func (i resultItem) FilterValue() string { return i.result.Item.Title }
