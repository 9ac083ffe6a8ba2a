package reddit

import (
	"encoding/json"
	"html"
	"strings"
	"time"

	"github.com/pders01/rdt/internal/model"
)

// thing is the kind/data envelope Reddit wraps every object in.
type thing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type listingData struct {
	After    string  `json:"after"`
	Before   string  `json:"before"`
	Children []thing `json:"children"`
}

type listingResponse struct {
	Kind string      `json:"kind"`
	Data listingData `json:"data"`
}

type linkData struct {
	Name        string  `json:"name"`
	Title       string  `json:"title"`
	Author      string  `json:"author"`
	Subreddit   string  `json:"subreddit"`
	SelfText    string  `json:"selftext"`
	URL         string  `json:"url"`
	Permalink   string  `json:"permalink"`
	Thumbnail   string  `json:"thumbnail"`
	NumComments int     `json:"num_comments"`
	Over18      bool    `json:"over_18"`
	CreatedUTC  float64 `json:"created_utc"`
	Ups         int     `json:"ups"`
	Downs       int     `json:"downs"`
	Likes       *bool   `json:"likes"`
	Visited     bool    `json:"visited"`
}

type subredditData struct {
	Name             string `json:"display_name"`
	Title            string `json:"title"`
	IconImg          string `json:"icon_img"`
	CommunityIcon    string `json:"community_icon"`
	Subscribers      int    `json:"subscribers"`
	UserIsSubscriber bool   `json:"user_is_subscriber"`
	UserHasFavorited bool   `json:"user_has_favorited"`
}

func (l linkData) toItem() model.FeedItem {
	dir := model.DirNone
	if l.Likes != nil {
		if *l.Likes {
			dir = model.DirUp
		} else {
			dir = model.DirDown
		}
	}
	return model.FeedItem{
		ID:          l.Name,
		Title:       html.UnescapeString(l.Title),
		Author:      l.Author,
		Subreddit:   l.Subreddit,
		SelfText:    l.SelfText,
		URL:         l.URL,
		Permalink:   l.Permalink,
		Thumbnail:   thumbnailURL(l.Thumbnail),
		NumComments: l.NumComments,
		Over18:      l.Over18,
		Created:     time.Unix(int64(l.CreatedUTC), 0).UTC(),
		Seen:        l.Visited,
		Vote:        model.VoteState{Ups: l.Ups, Downs: l.Downs, Dir: dir},
	}
}

// thumbnailURL drops Reddit's placeholder values such as "self" and "nsfw".
func thumbnailURL(s string) string {
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return s
	}
	return ""
}

func (s subredditData) toSubreddit() model.Subreddit {
	icon := s.IconImg
	if icon == "" {
		// community_icon carries query-string escapes.
		icon = html.UnescapeString(s.CommunityIcon)
	}
	return model.Subreddit{
		Name:        s.Name,
		DisplayName: s.Name,
		Title:       s.Title,
		IconURL:     icon,
		Subscribers: s.Subscribers,
		State: model.SubscriptionState{
			Subscribed: s.UserIsSubscriber,
			Favorited:  s.UserHasFavorited,
		},
	}
}

// links decodes the t3 children of a listing, skipping anything else.
func (l listingData) links() []model.FeedItem {
	items := make([]model.FeedItem, 0, len(l.Children))
	for _, child := range l.Children {
		if child.Kind != "t3" {
			continue
		}
		var ld linkData
		if err := json.Unmarshal(child.Data, &ld); err != nil {
			continue
		}
		items = append(items, ld.toItem())
	}
	return items
}

func (l listingData) subreddits() []model.Subreddit {
	subs := make([]model.Subreddit, 0, len(l.Children))
	for _, child := range l.Children {
		if child.Kind != "t5" {
			continue
		}
		var sd subredditData
		if err := json.Unmarshal(child.Data, &sd); err != nil {
			continue
		}
		subs = append(subs, sd.toSubreddit())
	}
	return subs
}
