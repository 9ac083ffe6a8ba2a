package reddit

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/pders01/rdt/internal/config"
	"github.com/pders01/rdt/internal/debuglog"
	"github.com/pders01/rdt/internal/model"
)

// RSSLister serves listings from Reddit's public Atom feeds. It needs no
// credentials, reports no vote state, and cannot list saved posts.
type RSSLister struct {
	client    *http.Client
	parser    *gofeed.Parser
	baseURL   *url.URL
	userAgent string
	pageSize  int
	timeRange string
}

func NewRSSLister(cfg config.RedditConfig, feed config.FeedConfig, httpClient *http.Client) (*RSSLister, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	base, err := url.Parse(cfg.PublicURL)
	if err != nil {
		return nil, fmt.Errorf("parsing public URL: %w", err)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	return &RSSLister{
		client:    httpClient,
		parser:    gofeed.NewParser(),
		baseURL:   base,
		userAgent: cfg.UserAgent,
		pageSize:  feed.PageSize,
		timeRange: feed.TimeRange,
	}, nil
}

func (r *RSSLister) feedURL(subreddit string, sort model.Sort, after string) (string, error) {
	var path string
	switch strings.ToLower(subreddit) {
	case model.FeedHome, "":
		path = string(sort) + "/.rss"
	case model.FeedSaved:
		return "", fmt.Errorf("saved posts require login: %w", ErrNoCredentials)
	default:
		path = "r/" + url.PathEscape(subreddit) + "/" + string(sort) + "/.rss"
	}
	u, err := r.baseURL.Parse(path)
	if err != nil {
		return "", err
	}
	q := url.Values{}
	if r.pageSize > 0 {
		q.Set("limit", strconv.Itoa(r.pageSize))
	}
	if after != "" {
		q.Set("after", after)
	}
	if sort.Ranged() && r.timeRange != "" {
		q.Set("t", r.timeRange)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (r *RSSLister) FetchListing(ctx context.Context, subreddit string, sort model.Sort, after string) (model.Listing, error) {
	feedURL, err := r.feedURL(subreddit, sort, after)
	if err != nil {
		return model.Listing{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return model.Listing{}, &RequestError{Op: "rss", Err: err}
	}
	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Accept", "application/atom+xml, application/rss+xml, application/xml, text/xml")

	resp, err := r.client.Do(req)
	if err != nil {
		return model.Listing{}, &RequestError{Op: "rss", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return model.Listing{}, &RequestError{Op: "rss", StatusCode: resp.StatusCode}
	}

	feed, err := r.parser.Parse(resp.Body)
	if err != nil {
		return model.Listing{}, &RequestError{Op: "rss", StatusCode: resp.StatusCode, Err: fmt.Errorf("parsing feed: %w", err)}
	}

	items := make([]model.FeedItem, 0, len(feed.Items))
	for _, entry := range feed.Items {
		item, ok := entryToItem(entry)
		if !ok {
			continue
		}
		items = append(items, item)
	}

	listing := model.Listing{Items: items}
	if len(items) > 0 && (r.pageSize == 0 || len(items) >= r.pageSize) {
		listing.After = items[len(items)-1].ID
	}
	return listing, nil
}

func entryToItem(entry *gofeed.Item) (model.FeedItem, bool) {
	id := entry.GUID
	if !strings.HasPrefix(id, "t3_") {
		return model.FeedItem{}, false
	}

	item := model.FeedItem{
		ID:        id,
		Title:     entry.Title,
		Permalink: permalinkPath(entry.Link),
		URL:       entry.Link,
	}
	if entry.Author != nil {
		item.Author = strings.TrimPrefix(entry.Author.Name, "/u/")
	}
	if len(entry.Categories) > 0 {
		item.Subreddit = entry.Categories[0]
	}
	switch {
	case entry.PublishedParsed != nil:
		item.Created = *entry.PublishedParsed
	case entry.UpdatedParsed != nil:
		item.Created = *entry.UpdatedParsed
	default:
		item.Created = time.Now()
	}

	content := entry.Content
	if content == "" {
		content = entry.Description
	}
	applyContent(&item, content)
	return item, true
}

// applyContent pulls the outbound link, thumbnail and self text out of the
// HTML body Reddit puts in each entry.
func applyContent(item *model.FeedItem, body string) {
	if body == "" {
		return
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		debuglog.Warnf("rss: parsing entry %s: %v", item.ID, err)
		return
	}

	doc.Find("a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.TrimSpace(s.Text()) == "[link]" {
			if href, ok := s.Attr("href"); ok {
				item.URL = href
			}
			return false
		}
		return true
	})
	if src, ok := doc.Find("img").First().Attr("src"); ok {
		item.Thumbnail = src
	}

	md := doc.Find("div.md").First()
	if md.Length() == 0 {
		return
	}
	inner, err := md.Html()
	if err != nil {
		return
	}
	text, err := htmltomarkdown.ConvertString(inner)
	if err != nil {
		debuglog.Warnf("rss: converting entry %s: %v", item.ID, err)
		return
	}
	item.SelfText = strings.TrimSpace(text)
}

func permalinkPath(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return link
	}
	return u.Path
}
