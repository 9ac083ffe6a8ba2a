package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/pders01/rdt/internal/config"
	"github.com/pders01/rdt/internal/debuglog"
	"github.com/pders01/rdt/internal/event"
	"github.com/pders01/rdt/internal/feed"
	"github.com/pders01/rdt/internal/media"
	"github.com/pders01/rdt/internal/model"
	"github.com/pders01/rdt/internal/optimistic"
	"github.com/pders01/rdt/internal/reddit"
	"github.com/pders01/rdt/internal/reply"
	"github.com/pders01/rdt/internal/search"
	"github.com/pders01/rdt/internal/storage"
	"github.com/pders01/rdt/internal/subreddits"
	"github.com/pders01/rdt/internal/tui"
	"github.com/pders01/rdt/internal/validation"
)

// Version is the version of the application, set at build time
var Version = "dev"

const subscriptionTTL = 6 * time.Hour

var timeNow = time.Now

var (
	configPath string
	dbPath     string
	quiet      bool
	anonymous  bool

	feedSort  string
	feedPages int
)

var rootCmd = &cobra.Command{
	Use:   "rdt [subreddit]",
	Short: "A terminal Reddit client",
	Long: `rdt browses Reddit from the terminal. Votes and subscriptions apply
instantly and reply drafts are saved as you type.

Without credentials rdt browses anonymously through Reddit's public feeds.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runTUI,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("rdt %s\n", Version)
		fmt.Println("Terminal Reddit client")
		fmt.Println("github.com/pders01/rdt")
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configGenCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write the default configuration file",
	Run: func(cmd *cobra.Command, args []string) {
		path, err := validation.NewSecurePathHandler().ConfigPath("")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid config path: %v\n", err)
			os.Exit(1)
		}
		if err := config.GenerateDefaultConfig(path); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Generated default configuration at: %s\n", path)
	},
}

var feedCmd = &cobra.Command{
	Use:   "feed <subreddit>",
	Short: "Print a subreddit's posts without starting the UI",
	Args:  cobra.ExactArgs(1),
	RunE:  runFeed,
}

var draftsCmd = &cobra.Command{
	Use:   "drafts",
	Short: "Inspect saved reply drafts",
}

var draftsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved reply drafts",
	RunE:  runDraftsList,
}

var draftsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every saved reply draft",
	RunE:  runDraftsClear,
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh the cached subscription list",
	RunE:  runRefresh,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "path to database file (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&anonymous, "anonymous", false, "browse without logging in")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "skip startup banner")

	feedCmd.Flags().StringVarP(&feedSort, "sort", "s", "", "listing sort (best, hot, new, rising, top, controversial)")
	feedCmd.Flags().IntVarP(&feedPages, "pages", "p", 1, "number of pages to load")

	configCmd.AddCommand(configGenCmd)
	draftsCmd.AddCommand(draftsListCmd, draftsClearCmd)
	rootCmd.AddCommand(versionCmd, configCmd, feedCmd, draftsCmd, refreshCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration, applies flag overrides, resolves the
// file locations and starts debug logging.
func loadConfig() (*config.Config, error) {
	paths := validation.NewSecurePathHandler()
	custom := validation.NewPermissivePathHandler()

	if configPath != "" {
		p, err := custom.ConfigPath(configPath)
		if err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}
		configPath = p
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if dbPath != "" {
		if cfg.Database.Path, err = custom.DBPath(dbPath); err != nil {
			return nil, fmt.Errorf("invalid database path: %w", err)
		}
	} else if cfg.Database.Path, err = paths.DBPath(cfg.Database.Path); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}
	if cfg.Database.Path != ":memory:" {
		if _, err := custom.EnsureDirectory(filepath.Dir(cfg.Database.Path)); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	if anonymous {
		cfg.Reddit.ClientID = ""
	}

	level := debuglog.ParseLogLevel(cfg.Log.Level)
	if level != debuglog.LevelOff {
		logPath, err := paths.LogPath(cfg.Log.Path)
		if err != nil {
			return nil, fmt.Errorf("invalid log path: %w", err)
		}
		if err := debuglog.Setup(level, logPath); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// services is the wired core shared by the UI and the subcommands.
type services struct {
	cfg      *config.Config
	store    storage.Backend
	bus      *event.Bus
	feeds    *feed.Manager
	dir      *subreddits.Directory
	mutator  *optimistic.Mutator
	searcher search.Searcher
	index    *search.BleveEngine
	replier  reply.Replier
}

// openServices connects storage and the Reddit client. Without credentials
// the listing source falls back to the public RSS feeds and every
// mutation reports read-only.
func openServices(cfg *config.Config) (*services, error) {
	store, err := storage.Open(cfg.Database.Driver, cfg.Database.Path, cfg.Database.Timeout)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &services{cfg: cfg, store: store, bus: event.NewBus()}

	var (
		lister  feed.Lister
		about   feed.AboutFetcher
		voter   optimistic.Voter
		subsAPI optimistic.SubscriptionAPI
		source  subreddits.Source
	)
	client, err := reddit.NewClient(cfg.Reddit, cfg.Feed, nil)
	switch {
	case err == nil:
		lister, about, voter, subsAPI, source = client, client, client, client, client
		s.replier = client
		debuglog.Infof("logged in as %s", cfg.Reddit.Username)
	case errors.Is(err, reddit.ErrNoCredentials):
		rss, err := reddit.NewRSSLister(cfg.Reddit, cfg.Feed, nil)
		if err != nil {
			store.Close()
			return nil, err
		}
		lister = rss
		debuglog.Infof("no credentials configured, browsing anonymously")
	default:
		store.Close()
		return nil, err
	}

	s.feeds = feed.NewManager(lister, about, s.bus, cfg)
	if index, err := search.NewBleveEngine(); err != nil {
		debuglog.Warnf("search index unavailable, scanning loaded posts: %v", err)
		s.searcher = search.NewEngine(s.feeds)
	} else {
		s.index = index
		s.searcher = index
		s.feeds.SetIndexer(index)
	}

	s.dir = subreddits.New(store, source, s.bus)
	if err := s.dir.LoadCached(); err != nil {
		debuglog.Warnf("%v", err)
	}
	s.mutator = optimistic.New(s.feeds, voter, subsAPI, s.dir, s.bus)
	return s, nil
}

func (s *services) Close() {
	s.mutator.Wait()
	if s.index != nil {
		s.index.Close()
	}
	if err := s.store.Close(); err != nil {
		debuglog.Warnf("closing database: %v", err)
	}
}

// refreshIfStale reloads the subscription list when the cached copy is
// older than subscriptionTTL.
func (s *services) refreshIfStale(ctx context.Context) {
	at, err := s.store.SubredditsRefreshedAt()
	if err == nil && timeNow().Sub(at) < subscriptionTTL {
		return
	}
	if err := s.dir.Refresh(ctx); err != nil && !errors.Is(err, context.Canceled) {
		debuglog.Warnf("refreshing subscriptions: %v", err)
		s.bus.Notify(event.NoticeWarn, "Could not refresh subscriptions")
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runTUI(cmd *cobra.Command, args []string) error {
	var start string
	if len(args) == 1 {
		name, err := validation.SubredditFromInput(args[0])
		if err != nil {
			return err
		}
		start = name
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer debuglog.Close()

	if !quiet {
		tui.ShowBanner(Version)
	}

	s, err := openServices(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	if s.replier != nil {
		ctx, cancel := context.WithCancel(context.Background())
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.refreshIfStale(ctx)
		}()
		defer func() {
			cancel()
			wg.Wait()
		}()
	}

	app := tui.NewApp(tui.Deps{
		Feeds:     s.feeds,
		Mutator:   s.mutator,
		Directory: s.dir,
		Drafts:    s.store,
		Replier:   s.replier,
		Search:    s.searcher,
		Launcher:  media.NewLauncher(cfg),
		Bus:       s.bus,
	}, cfg)
	if start != "" {
		app.StartIn(start)
	}
	defer app.Close()

	p := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return err
	}
	return nil
}

func runFeed(cmd *cobra.Command, args []string) error {
	name, err := validation.SubredditFromInput(args[0])
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer debuglog.Close()

	s, err := openServices(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := signalContext()
	defer cancel()

	loader := s.feeds.Loader(name)
	if feedSort != "" {
		sort, err := model.ParseSort(feedSort)
		if err != nil {
			return err
		}
		if err := loader.SetSort(ctx, sort); err != nil {
			return err
		}
	} else if err := loader.Load(ctx, feed.Replace); err != nil {
		return err
	}
	for page := 1; page < feedPages && !loader.Snapshot().Exhausted(); page++ {
		if err := loader.Load(ctx, feed.Append); err != nil {
			return err
		}
	}

	return printPage(cmd, loader.Snapshot(), cfg.UI.ShowNSFW)
}

func printPage(cmd *cobra.Command, page feed.Page, showNSFW bool) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s · %s\n\n", model.Subreddit{Name: page.Subreddit}.Label(), page.Sort)
	now := timeNow()
	for _, it := range page.Items {
		if it.Over18 && !showNSFW {
			continue
		}
		fmt.Fprintf(out, "%6d  %s\n", it.Vote.Score(), it.Title)
		meta := []string{"u/" + it.Author, fmt.Sprintf("%d comments", it.NumComments)}
		if !it.Created.IsZero() {
			meta = append(meta, model.TimeSince(it.Created, now))
		}
		if model.IsPseudoFeed(page.Subreddit) {
			meta = append([]string{"r/" + it.Subreddit}, meta...)
		}
		fmt.Fprintf(out, "        %s\n", strings.Join(meta, " • "))
	}
	if page.Exhausted() {
		fmt.Fprintln(out, "\n(end of feed)")
	}
	return nil
}

func runDraftsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer debuglog.Close()

	store, err := storage.Open(cfg.Database.Driver, cfg.Database.Path, cfg.Database.Timeout)
	if err != nil {
		return err
	}
	defer store.Close()

	drafts, err := store.ListDrafts()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(drafts) == 0 {
		fmt.Fprintln(out, "No saved drafts")
		return nil
	}
	now := timeNow()
	for _, d := range drafts {
		text := strings.ReplaceAll(strings.TrimSpace(d.Text), "\n", " ")
		if r := []rune(text); len(r) > 60 {
			text = string(r[:59]) + "…"
		}
		fmt.Fprintf(out, "%-12s %-10s %s\n", d.TargetID, model.TimeSince(d.Modified, now), text)
	}
	return nil
}

func runDraftsClear(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer debuglog.Close()

	store, err := storage.Open(cfg.Database.Driver, cfg.Database.Path, cfg.Database.Timeout)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.ClearDrafts()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d drafts\n", n)
	return nil
}

func runRefresh(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer debuglog.Close()

	s, err := openServices(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if err := s.dir.Refresh(ctx); err != nil {
		if errors.Is(err, model.ErrReadOnly) {
			return fmt.Errorf("refreshing subscriptions needs reddit credentials: %w", err)
		}
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cached %d subscriptions\n", len(s.dir.All()))
	return nil
}
