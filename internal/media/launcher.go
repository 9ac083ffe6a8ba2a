package media

import (
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/pders01/rdt/internal/config"
	"github.com/pders01/rdt/internal/debuglog"
	"github.com/pders01/rdt/internal/model"
)

// ErrNothingToOpen is returned for self posts, which have no external link.
var ErrNothingToOpen = errors.New("post has no link to open")

type Launcher struct {
	videoPlayer   string
	imageViewer   string
	defaultOpener string
	registry      *PlayerRegistry
	detector      *TypeDetector

	// lookPath and start are replaced in tests.
	lookPath func(string) (string, error)
	start    func(*exec.Cmd) error
}

// NewLauncher picks the first installed player per content type from the
// configured lists. User player definitions are read from players.toml next
// to the config file.
func NewLauncher(cfg *config.Config) *Launcher {
	return newLauncher(cfg, exec.LookPath)
}

func newLauncher(cfg *config.Config, lookPath func(string) (string, error)) *Launcher {
	registry, err := NewPlayerRegistry(filepath.Join(filepath.Dir(config.DefaultPath()), "players.toml"))
	if err != nil {
		debuglog.Warnf("media: player table: %v", err)
		registry = &PlayerRegistry{players: make(map[string]PlayerDefinition)}
	}
	detector, err := NewTypeDetector()
	if err != nil {
		debuglog.Warnf("media: type table: %v", err)
		detector = &TypeDetector{config: &mediaFile{}}
	}

	l := &Launcher{
		defaultOpener: cfg.Media.DefaultOpener,
		registry:      registry,
		detector:      detector,
		lookPath:      lookPath,
		start:         startDetached,
	}
	if l.defaultOpener == "" {
		l.defaultOpener = detector.GetDefaultOpener()
	}

	var players config.MediaPlayers
	switch runtime.GOOS {
	case "linux":
		players = cfg.Media.Linux
	case "windows":
		players = cfg.Media.Windows
	default:
		players = cfg.Media.Darwin
	}
	l.videoPlayer = l.findCommand(players.Video...)
	l.imageViewer = l.findCommand(players.Image...)
	if l.videoPlayer == "" {
		l.videoPlayer = l.defaultOpener
	}
	if l.imageViewer == "" {
		l.imageViewer = l.defaultOpener
	}
	return l
}

// Detector exposes the classifier used by Open.
func (l *Launcher) Detector() *TypeDetector {
	return l.detector
}

// Resolve returns the program that would open url and the detected type.
func (l *Launcher) Resolve(url string) (string, Type) {
	t := l.detector.DetectType(url)
	switch t {
	case TypeVideo:
		return l.videoPlayer, t
	case TypeImage:
		return l.imageViewer, t
	default:
		return l.defaultOpener, t
	}
}

// OpenItem opens the post's link. Self posts have nothing to open.
func (l *Launcher) OpenItem(item model.FeedItem) error {
	if l.detector.Classify(item) == TypeSelf {
		return ErrNothingToOpen
	}
	return l.Open(item.URL)
}

// Open starts the configured program for url without waiting for it.
func (l *Launcher) Open(url string) error {
	player, t := l.Resolve(url)
	if player == "" {
		return fmt.Errorf("no application found to open %s", t)
	}

	cmd, err := l.registry.GetCommand(player, t, url)
	if err != nil {
		debuglog.Debugf("media: %v, running %s plainly", err, player)
		cmd = exec.Command(player, url)
	}
	debuglog.Infof("media: opening %s with %s", t, player)
	if err := l.start(cmd); err != nil {
		return fmt.Errorf("failed to start %s: %w", player, err)
	}
	return nil
}

func startDetached(cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() {
		_ = cmd.Wait()
	}()
	return nil
}

func (l *Launcher) findCommand(commands ...string) string {
	for _, c := range commands {
		if _, err := l.lookPath(c); err == nil {
			return c
		}
	}
	return ""
}
