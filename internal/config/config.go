package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/pders01/rdt/internal/validation"
)

type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Reddit   RedditConfig   `mapstructure:"reddit"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Reply    ReplyConfig    `mapstructure:"reply"`
	Log      LogConfig      `mapstructure:"log"`
	UI       UIConfig       `mapstructure:"ui"`
	Media    MediaConfig    `mapstructure:"media"`
	Keys     KeyConfig      `mapstructure:"keys"`
}

type DatabaseConfig struct {
	// Driver selects the draft store backend: "bolt" or "sqlite".
	Driver  string        `mapstructure:"driver"`
	Path    string        `mapstructure:"path"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type RedditConfig struct {
	ClientID          string        `mapstructure:"client_id"`
	ClientSecret      string        `mapstructure:"client_secret"`
	Username          string        `mapstructure:"username"`
	Password          string        `mapstructure:"password"`
	UserAgent         string        `mapstructure:"user_agent"`
	BaseURL           string        `mapstructure:"base_url"`
	AuthURL           string        `mapstructure:"auth_url"`
	PublicURL         string        `mapstructure:"public_url"`
	HTTPTimeout       time.Duration `mapstructure:"http_timeout"`
	RequestsPerMinute float64       `mapstructure:"requests_per_minute"`
	Burst             int           `mapstructure:"burst"`
	// Anonymous browses public RSS listings without credentials. Voting,
	// replying and subscriptions are unavailable.
	Anonymous bool `mapstructure:"anonymous"`
}

type FeedConfig struct {
	DefaultSort          string  `mapstructure:"default_sort"`
	TimeRange            string  `mapstructure:"time_range"`
	PageSize             int     `mapstructure:"page_size"`
	PrefetchThreshold    float64 `mapstructure:"prefetch_threshold"`
	MaxConcurrentRefresh int     `mapstructure:"max_concurrent_refresh"`
}

type ReplyConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	Path  string `mapstructure:"path"`
}

type UIConfig struct {
	Colors    UIColors `mapstructure:"colors"`
	ShowNSFW  bool     `mapstructure:"show_nsfw"`
	WrapWidth int      `mapstructure:"wrap_width"`
}

type UIColors struct {
	Primary   string `mapstructure:"primary"`
	Secondary string `mapstructure:"secondary"`
	Accent    string `mapstructure:"accent"`
	Text      string `mapstructure:"text"`
	Muted     string `mapstructure:"muted"`
	Upvote    string `mapstructure:"upvote"`
	Downvote  string `mapstructure:"downvote"`
	Error     string `mapstructure:"error"`
	Success   string `mapstructure:"success"`
}

type MediaConfig struct {
	Darwin        MediaPlayers `mapstructure:"darwin"`
	Linux         MediaPlayers `mapstructure:"linux"`
	Windows       MediaPlayers `mapstructure:"windows"`
	DefaultOpener string       `mapstructure:"default_opener"`
}

type MediaPlayers struct {
	Video []string `mapstructure:"video"`
	Image []string `mapstructure:"image"`
}

type KeyConfig struct {
	Bindings KeyBindings `mapstructure:"bindings"`
}

type KeyBindings struct {
	Quit       string `mapstructure:"quit"`
	Back       string `mapstructure:"back"`
	Upvote     string `mapstructure:"upvote"`
	Downvote   string `mapstructure:"downvote"`
	ToggleSeen string `mapstructure:"toggle_seen"`
	Reply      string `mapstructure:"reply"`
	Send       string `mapstructure:"send"`
	Discard    string `mapstructure:"discard"`
	Sort       string `mapstructure:"sort"`
	Refresh    string `mapstructure:"refresh"`
	Favorite   string `mapstructure:"favorite"`
	Subscribe  string `mapstructure:"subscribe"`
	Search     string `mapstructure:"search"`
	Open       string `mapstructure:"open"`
	Goto       string `mapstructure:"goto"`
}

func defaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Database: DatabaseConfig{
			Driver:  "bolt",
			Path:    filepath.Join(homeDir, ".rdt", "rdt.db"),
			Timeout: 1 * time.Second,
		},
		Reddit: RedditConfig{
			UserAgent:         "rdt/1.0 (https://github.com/pders01/rdt)",
			BaseURL:           "https://oauth.reddit.com/",
			AuthURL:           "https://www.reddit.com/",
			PublicURL:         "https://www.reddit.com/",
			HTTPTimeout:       30 * time.Second,
			RequestsPerMinute: 60,
			Burst:             10,
		},
		Feed: FeedConfig{
			DefaultSort:          "best",
			TimeRange:            "day",
			PageSize:             25,
			PrefetchThreshold:    0.75,
			MaxConcurrentRefresh: 5,
		},
		Reply: ReplyConfig{
			Debounce: 500 * time.Millisecond,
		},
		Log: LogConfig{
			Level: "off",
		},
		UI: UIConfig{
			Colors: UIColors{
				Primary:   "#FF4500",
				Secondary: "#4ECDC4",
				Accent:    "#95E1D3",
				Text:      "#EAEAEA",
				Muted:     "#94A3B8",
				Upvote:    "#FF8B60",
				Downvote:  "#9494FF",
				Error:     "#F87171",
				Success:   "#4ADE80",
			},
			WrapWidth: 100,
		},
		Media: MediaConfig{
			Darwin: MediaPlayers{
				Video: []string{"iina", "mpv", "vlc"},
				Image: []string{"open"},
			},
			Linux: MediaPlayers{
				Video: []string{"mpv", "vlc"},
				Image: []string{"feh", "eog", "xdg-open"},
			},
			Windows: MediaPlayers{
				Video: []string{"mpv", "vlc"},
				Image: []string{"start"},
			},
			DefaultOpener: getDefaultOpener(),
		},
		Keys: KeyConfig{
			Bindings: KeyBindings{
				Quit:       "q",
				Back:       "esc",
				Upvote:     "u",
				Downvote:   "d",
				ToggleSeen: "m",
				Reply:      "r",
				Send:       "ctrl+s",
				Discard:    "ctrl+d",
				Sort:       "s",
				Refresh:    "ctrl+r",
				Favorite:   "f",
				Subscribe:  "x",
				Search:     "/",
				Open:       "o",
				Goto:       "g",
			},
		},
	}
}

func getDefaultOpener() string {
	switch runtime.GOOS {
	case "darwin":
		return "open"
	case "linux":
		return "xdg-open"
	case "windows":
		return "start"
	default:
		return "open"
	}
}

// DefaultPath is the config file location used when none is given.
func DefaultPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config", "rdt", "config.toml")
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	if err := setDefaults(v, defaultConfig()); err != nil {
		return nil, err
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(filepath.Dir(DefaultPath()))
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("RDT")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Credentials are commonly kept out of the file.
	if id := os.Getenv("RDT_CLIENT_ID"); id != "" {
		config.Reddit.ClientID = id
	}
	if secret := os.Getenv("RDT_CLIENT_SECRET"); secret != "" {
		config.Reddit.ClientSecret = secret
	}
	if pw := os.Getenv("RDT_PASSWORD"); pw != "" {
		config.Reddit.Password = pw
	}

	expandPaths(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// setDefaults registers every leaf key so a file that sets part of a
// section keeps the defaults for the rest.
func setDefaults(v *viper.Viper, cfg *Config) error {
	sections, err := sectionMap(cfg)
	if err != nil {
		return fmt.Errorf("encoding defaults: %w", err)
	}
	var walk func(prefix string, m map[string]interface{})
	walk = func(prefix string, m map[string]interface{}) {
		for k, val := range m {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if nested, ok := val.(map[string]interface{}); ok {
				walk(key, nested)
				continue
			}
			v.SetDefault(key, val)
		}
	}
	walk("", sections)
	return nil
}

// Validate checks value ranges and normalizes the API endpoints.
func (c *Config) Validate() error {
	endpoints := validation.NewEndpointValidator()
	for _, ep := range []struct {
		key string
		val *string
	}{
		{"reddit.base_url", &c.Reddit.BaseURL},
		{"reddit.auth_url", &c.Reddit.AuthURL},
		{"reddit.public_url", &c.Reddit.PublicURL},
	} {
		normalized, err := endpoints.ValidateAndNormalize(*ep.val)
		if err != nil {
			return fmt.Errorf("%s: %w", ep.key, err)
		}
		*ep.val = normalized
	}

	switch c.Database.Driver {
	case "bolt", "sqlite":
	default:
		return fmt.Errorf("database.driver must be bolt or sqlite, got %q", c.Database.Driver)
	}
	if c.Feed.PrefetchThreshold <= 0 || c.Feed.PrefetchThreshold > 1 {
		return fmt.Errorf("feed.prefetch_threshold must be in (0, 1], got %v", c.Feed.PrefetchThreshold)
	}
	if c.Feed.PageSize < 1 || c.Feed.PageSize > 100 {
		return fmt.Errorf("feed.page_size must be between 1 and 100, got %d", c.Feed.PageSize)
	}
	if c.Reply.Debounce < 0 {
		return fmt.Errorf("reply.debounce must not be negative")
	}
	return nil
}

// expandPath expands ~ to home directory and converts to absolute path
func expandPath(path string) string {
	if path == "" || path == ":memory:" {
		return path
	}

	if len(path) >= 2 && path[:2] == "~/" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[2:])
	}

	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}

	return path
}

func expandPaths(cfg *Config) {
	cfg.Database.Path = expandPath(cfg.Database.Path)
	cfg.Log.Path = expandPath(cfg.Log.Path)
}

func Save(config *Config, path string) error {
	v := viper.New()

	// Durations as strings keep the TOML readable.
	v.Set("database", map[string]interface{}{
		"driver":  config.Database.Driver,
		"path":    config.Database.Path,
		"timeout": config.Database.Timeout.String(),
	})
	v.Set("reddit", map[string]interface{}{
		"client_id":           config.Reddit.ClientID,
		"username":            config.Reddit.Username,
		"user_agent":          config.Reddit.UserAgent,
		"base_url":            config.Reddit.BaseURL,
		"auth_url":            config.Reddit.AuthURL,
		"public_url":          config.Reddit.PublicURL,
		"http_timeout":        config.Reddit.HTTPTimeout.String(),
		"requests_per_minute": config.Reddit.RequestsPerMinute,
		"burst":               config.Reddit.Burst,
		"anonymous":           config.Reddit.Anonymous,
	})
	v.Set("reply", map[string]interface{}{
		"debounce": config.Reply.Debounce.String(),
	})
	for key, section := range map[string]interface{}{
		"feed":  config.Feed,
		"log":   config.Log,
		"ui":    config.UI,
		"media": config.Media,
		"keys":  config.Keys,
	} {
		m, err := sectionMap(section)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", key, err)
		}
		v.Set(key, m)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	return v.WriteConfigAs(path)
}

// sectionMap flattens a section into a map keyed by its mapstructure tags so
// that the written file reads back through Load.
func sectionMap(section interface{}) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := mapstructure.Decode(section, &out); err != nil {
		return nil, err
	}
	for k, val := range out {
		switch nested := val.(type) {
		case DatabaseConfig, RedditConfig, FeedConfig, ReplyConfig, LogConfig,
			UIConfig, UIColors, MediaConfig, MediaPlayers, KeyConfig, KeyBindings:
			m, err := sectionMap(nested)
			if err != nil {
				return nil, err
			}
			out[k] = m
		}
	}
	return out, nil
}

func GenerateDefaultConfig(path string) error {
	return Save(defaultConfig(), path)
}
