// Package reddit talks to the Reddit API on behalf of the feed loader,
// the optimistic mutator and reply sessions.
package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pders01/rdt/internal/config"
	"github.com/pders01/rdt/internal/debuglog"
)

const (
	defaultRequestsPerMinute = 60
	defaultBurst             = 10
)

// ErrNoCredentials is returned when an authenticated client is requested
// without an OAuth client ID.
var ErrNoCredentials = errors.New("reddit client_id is not configured")

// Client is an OAuth client for the subset of the API the core needs.
type Client struct {
	http      *http.Client
	baseURL   *url.URL
	userAgent string
	username  string
	pageSize  int
	timeRange string
	auth      *authenticator

	limiter        *rate.Limiter
	mu             sync.Mutex
	forceWaitUntil time.Time
}

// NewClient builds a client from configuration. A nil httpClient gets one
// with the configured timeout.
func NewClient(cfg config.RedditConfig, feed config.FeedConfig, httpClient *http.Client) (*Client, error) {
	if cfg.ClientID == "" {
		return nil, ErrNoCredentials
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	auth, err := newAuthenticator(httpClient, cfg.AuthURL, cfg.ClientID, cfg.ClientSecret,
		cfg.Username, cfg.Password, cfg.UserAgent)
	if err != nil {
		return nil, err
	}

	return &Client{
		http:      httpClient,
		baseURL:   base,
		userAgent: cfg.UserAgent,
		username:  cfg.Username,
		pageSize:  feed.PageSize,
		timeRange: feed.TimeRange,
		auth:      auth,
		limiter:   buildLimiter(cfg.RequestsPerMinute, cfg.Burst),
	}, nil
}

func buildLimiter(perMinute float64, burst int) *rate.Limiter {
	if perMinute <= 0 {
		perMinute = defaultRequestsPerMinute
	}
	if burst <= 0 {
		burst = defaultBurst
	}
	return rate.NewLimiter(rate.Limit(perMinute/60.0), burst)
}

// SetTimeRange changes the window used for top and controversial listings.
func (c *Client) SetTimeRange(t string) {
	c.mu.Lock()
	c.timeRange = t
	c.mu.Unlock()
}

func (c *Client) currentTimeRange() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeRange
}

// get issues a GET against path with query and decodes the JSON body into v.
func (c *Client) get(ctx context.Context, op, path string, query url.Values, v any) error {
	return c.do(ctx, op, http.MethodGet, path, query, nil, v)
}

// post submits form to path and decodes the JSON body into v when non-nil.
func (c *Client) post(ctx context.Context, op, path string, form url.Values, v any) error {
	return c.do(ctx, op, http.MethodPost, path, nil, form, v)
}

func (c *Client) do(ctx context.Context, op, method, path string, query, form url.Values, v any) error {
	u, err := c.baseURL.Parse(path)
	if err != nil {
		return &RequestError{Op: op, Err: err}
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	// A 401 usually means the token expired early; retry once with a new one.
	for attempt := 0; ; attempt++ {
		if err := c.waitForRateLimit(ctx); err != nil {
			return &RequestError{Op: op, Err: err}
		}
		token, err := c.auth.Token(ctx)
		if err != nil {
			return err
		}

		var body io.Reader
		if form != nil {
			body = strings.NewReader(form.Encode())
		}
		req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
		if err != nil {
			return &RequestError{Op: op, Err: err}
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("User-Agent", c.userAgent)
		if form != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}

		debuglog.Debugf("reddit %s %s %s", op, method, u.Path)
		resp, err := c.http.Do(req)
		if err != nil {
			return &RequestError{Op: op, Err: err}
		}

		c.applyRateHeaders(resp)
		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			c.auth.Invalidate()
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			debuglog.WithFields(debuglog.Fields{"op": op, "status": resp.StatusCode}).Warnf("reddit %s %s failed", method, u.Path)
			return &RequestError{Op: op, StatusCode: resp.StatusCode, Body: string(data)}
		}
		if readErr != nil {
			return &RequestError{Op: op, StatusCode: resp.StatusCode, Err: readErr}
		}
		if v != nil && len(data) > 0 {
			if err := json.Unmarshal(data, v); err != nil {
				return &RequestError{Op: op, StatusCode: resp.StatusCode, Body: string(data), Err: err}
			}
		}
		return nil
	}
}

func (c *Client) waitForRateLimit(ctx context.Context) error {
	if err := c.waitForForcedDelay(ctx); err != nil {
		return err
	}
	return c.limiter.Wait(ctx)
}

func (c *Client) waitForForcedDelay(ctx context.Context) error {
	c.mu.Lock()
	until := c.forceWaitUntil
	c.mu.Unlock()

	d := time.Until(until)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// applyRateHeaders honours Retry-After and pauses when Reddit reports the
// request budget is spent.
func (c *Client) applyRateHeaders(resp *http.Response) {
	if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
		if seconds, err := strconv.ParseFloat(retryAfter, 64); err == nil && seconds > 0 {
			c.deferRequests(time.Duration(seconds * float64(time.Second)))
		}
	}

	remaining, errRemaining := strconv.ParseFloat(resp.Header.Get("X-Ratelimit-Remaining"), 64)
	reset, errReset := strconv.ParseFloat(resp.Header.Get("X-Ratelimit-Reset"), 64)
	if errRemaining != nil || errReset != nil || reset <= 0 {
		return
	}
	if remaining <= 1 {
		debuglog.Warnf("reddit rate limit exhausted, pausing %.0fs", reset)
		c.deferRequests(time.Duration(reset * float64(time.Second)))
	}
}

func (c *Client) deferRequests(d time.Duration) {
	until := time.Now().Add(d)
	c.mu.Lock()
	if until.After(c.forceWaitUntil) {
		c.forceWaitUntil = until
	}
	c.mu.Unlock()
}
