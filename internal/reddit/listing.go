package reddit

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/pders01/rdt/internal/model"
)

// maxSubredditPages bounds MySubreddits against a misbehaving cursor.
const maxSubredditPages = 50

// listingPath maps a subreddit or pseudo feed plus sort to an API path.
func (c *Client) listingPath(subreddit string, sort model.Sort) string {
	switch strings.ToLower(subreddit) {
	case model.FeedHome, "":
		return string(sort)
	case model.FeedSaved:
		return "user/" + url.PathEscape(c.username) + "/saved"
	default:
		return "r/" + url.PathEscape(subreddit) + "/" + string(sort)
	}
}

// FetchListing fetches one page of posts. An empty after requests the first
// page.
func (c *Client) FetchListing(ctx context.Context, subreddit string, sort model.Sort, after string) (model.Listing, error) {
	q := url.Values{}
	q.Set("raw_json", "1")
	if c.pageSize > 0 {
		q.Set("limit", strconv.Itoa(c.pageSize))
	}
	if after != "" {
		q.Set("after", after)
	}
	if sort.Ranged() {
		if t := c.currentTimeRange(); t != "" {
			q.Set("t", t)
		}
	}

	var resp listingResponse
	if err := c.get(ctx, "listing", c.listingPath(subreddit, sort), q, &resp); err != nil {
		return model.Listing{}, err
	}
	return model.Listing{Items: resp.Data.links(), After: resp.Data.After}, nil
}

// About fetches subreddit metadata.
func (c *Client) About(ctx context.Context, name string) (model.Subreddit, error) {
	if model.IsPseudoFeed(name) {
		return model.Subreddit{}, fmt.Errorf("%s has no about page: %w", name, model.ErrNotFound)
	}
	var resp thing
	if err := c.get(ctx, "about", "r/"+url.PathEscape(name)+"/about", url.Values{"raw_json": {"1"}}, &resp); err != nil {
		return model.Subreddit{}, err
	}
	subs := listingData{Children: []thing{resp}}.subreddits()
	if len(subs) == 0 {
		return model.Subreddit{}, fmt.Errorf("about %s: %w", name, model.ErrNotFound)
	}
	return subs[0], nil
}

// MySubreddits returns every subreddit the viewer subscribes to, following
// the cursor across pages.
func (c *Client) MySubreddits(ctx context.Context) ([]model.Subreddit, error) {
	var all []model.Subreddit
	after := ""
	for page := 0; page < maxSubredditPages; page++ {
		q := url.Values{"limit": {"100"}, "raw_json": {"1"}}
		if after != "" {
			q.Set("after", after)
		}
		var resp listingResponse
		if err := c.get(ctx, "subscriptions", "subreddits/mine/subscriber", q, &resp); err != nil {
			return nil, err
		}
		all = append(all, resp.Data.subreddits()...)
		after = resp.Data.After
		if after == "" {
			break
		}
	}
	return all, nil
}
