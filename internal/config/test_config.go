package config

import "time"

// TestConfig returns a config suitable for testing
func TestConfig() *Config {
	d := defaultConfig()
	return &Config{
		Database: DatabaseConfig{
			Driver:  "sqlite",
			Path:    ":memory:",
			Timeout: 1 * time.Second,
		},
		Reddit: RedditConfig{
			UserAgent:         "rdt-test/1.0",
			BaseURL:           d.Reddit.BaseURL,
			AuthURL:           d.Reddit.AuthURL,
			PublicURL:         d.Reddit.PublicURL,
			HTTPTimeout:       5 * time.Second,
			RequestsPerMinute: 6000,
			Burst:             100,
		},
		Feed: FeedConfig{
			DefaultSort:          "hot",
			TimeRange:            "day",
			PageSize:             25,
			PrefetchThreshold:    0.75,
			MaxConcurrentRefresh: 2,
		},
		Reply: ReplyConfig{
			Debounce: 20 * time.Millisecond,
		},
		Log:   LogConfig{Level: "off"},
		UI:    d.UI,
		Media: d.Media,
		Keys:  d.Keys,
	}
}
