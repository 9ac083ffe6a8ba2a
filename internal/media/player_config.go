package media

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/pelletier/go-toml/v2"

	"github.com/pders01/rdt/internal/debuglog"
)

// PlayerDefinition defines how a media player should be invoked
type PlayerDefinition struct {
	Description string      `toml:"description"`
	Platforms   []string    `toml:"platforms"`
	Video       *PlayerArgs `toml:"video,omitempty"`
	Image       *PlayerArgs `toml:"image,omitempty"`
}

// PlayerArgs holds the arguments for one content type.
type PlayerArgs struct {
	Args        []string `toml:"args,omitempty"`
	ArgsDarwin  []string `toml:"args_darwin,omitempty"`
	ArgsLinux   []string `toml:"args_linux,omitempty"`
	ArgsWindows []string `toml:"args_windows,omitempty"`
}

type playersFile struct {
	Players map[string]PlayerDefinition `toml:"players"`
}

// PlayerRegistry manages player definitions
type PlayerRegistry struct {
	players map[string]PlayerDefinition
}

// NewPlayerRegistry builds a registry from the embedded table, then merges
// definitions from each readable override file in order.
func NewPlayerRegistry(overrides ...string) (*PlayerRegistry, error) {
	f, err := parseMediaFile(mediaTOML)
	if err != nil {
		return nil, err
	}
	r := &PlayerRegistry{players: f.Players}
	if r.players == nil {
		r.players = make(map[string]PlayerDefinition)
	}
	for _, p := range overrides {
		r.merge(p)
	}
	return r, nil
}

func (r *PlayerRegistry) merge(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	var user playersFile
	if err := toml.Unmarshal(data, &user); err != nil {
		debuglog.Warnf("media: ignoring %s: %v", path, err)
		return
	}
	for name, def := range user.Players {
		r.players[name] = def
	}
}

// Player returns the definition for name.
func (r *PlayerRegistry) Player(name string) (PlayerDefinition, bool) {
	def, ok := r.players[name]
	return def, ok
}

// GetCommand builds the command for a specific player and content type.
// Players without a definition are run with just the URL.
func (r *PlayerRegistry) GetCommand(playerName string, t Type, url string) (*exec.Cmd, error) {
	player, exists := r.players[playerName]
	if !exists {
		return exec.Command(playerName, url), nil
	}

	if !supports(player.Platforms, runtime.GOOS) {
		return nil, fmt.Errorf("%s not supported on %s", playerName, runtime.GOOS)
	}

	var cfg *PlayerArgs
	switch t {
	case TypeVideo:
		cfg = player.Video
	case TypeImage:
		cfg = player.Image
	}
	if cfg == nil {
		return nil, fmt.Errorf("%s doesn't support %s", playerName, t)
	}

	args := append(append([]string(nil), argsFor(cfg, runtime.GOOS)...), url)
	return exec.Command(playerName, args...), nil
}

func supports(platforms []string, goos string) bool {
	for _, p := range platforms {
		if p == goos {
			return true
		}
	}
	return false
}

// argsFor returns the platform specific args, falling back to the generic ones.
func argsFor(cfg *PlayerArgs, goos string) []string {
	switch goos {
	case "darwin":
		if len(cfg.ArgsDarwin) > 0 {
			return cfg.ArgsDarwin
		}
	case "linux":
		if len(cfg.ArgsLinux) > 0 {
			return cfg.ArgsLinux
		}
	case "windows":
		if len(cfg.ArgsWindows) > 0 {
			return cfg.ArgsWindows
		}
	}
	return cfg.Args
}
