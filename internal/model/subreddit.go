package model

import "strings"

// SubscriptionState is the viewer's relationship with a subreddit.
type SubscriptionState struct {
	Subscribed bool `json:"subscribed"`
	Favorited  bool `json:"favorited"`
}

// Subreddit is a community the viewer can browse.
type Subreddit struct {
	Name        string            `json:"name"`
	DisplayName string            `json:"display_name"`
	Title       string            `json:"title"`
	IconURL     string            `json:"icon_url"`
	Subscribers int               `json:"subscribers"`
	State       SubscriptionState `json:"state"`
}

// Label returns the name shown in lists.
func (s Subreddit) Label() string {
	if IsPseudoFeed(s.Name) {
		return strings.ToUpper(s.Name[:1]) + s.Name[1:]
	}
	name := s.DisplayName
	if name == "" {
		name = s.Name
	}
	return "r/" + name
}

// Pseudo feeds are listing sources without subreddit metadata.
const (
	FeedHome    = "home"
	FeedPopular = "popular"
	FeedAll     = "all"
	FeedSaved   = "saved"
)

// PseudoFeeds lists the built-in feeds in display order.
var PseudoFeeds = []string{FeedHome, FeedPopular, FeedAll, FeedSaved}

// IsPseudoFeed reports whether name is one of the built-in feeds.
func IsPseudoFeed(name string) bool {
	for _, f := range PseudoFeeds {
		if strings.EqualFold(f, name) {
			return true
		}
	}
	return false
}
