package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const tokenPath = "api/v1/access_token"

// expiryMargin renews tokens slightly before Reddit expires them.
const expiryMargin = time.Minute

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
	Error       string `json:"error"`
}

// authenticator obtains and caches bearer tokens. With a username and
// password it uses the password grant, otherwise client credentials.
type authenticator struct {
	client       *http.Client
	tokenURL     *url.URL
	clientID     string
	clientSecret string
	userAgent    string
	form         url.Values

	mu      sync.Mutex
	token   string
	expires time.Time
	now     func() time.Time
}

func newAuthenticator(client *http.Client, authURL, clientID, clientSecret, username, password, userAgent string) (*authenticator, error) {
	base, err := url.Parse(authURL)
	if err != nil {
		return nil, fmt.Errorf("parsing auth URL: %w", err)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	tokenURL, err := base.Parse(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("resolving token endpoint: %w", err)
	}

	form := url.Values{}
	if username != "" && password != "" {
		form.Set("grant_type", "password")
		form.Set("username", username)
		form.Set("password", password)
	} else {
		form.Set("grant_type", "client_credentials")
	}

	return &authenticator{
		client:       client,
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		userAgent:    userAgent,
		form:         form,
		now:          time.Now,
	}, nil
}

// Token returns a valid access token, fetching a new one when the cached
// token is missing or about to expire.
func (a *authenticator) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token != "" && a.now().Before(a.expires) {
		return a.token, nil
	}

	tok, err := a.fetch(ctx)
	if err != nil {
		return "", err
	}
	a.token = tok.AccessToken
	a.expires = a.now().Add(time.Duration(tok.ExpiresIn)*time.Second - expiryMargin)
	return a.token, nil
}

// Invalidate drops the cached token so the next call re-authenticates.
func (a *authenticator) Invalidate() {
	a.mu.Lock()
	a.token = ""
	a.mu.Unlock()
}

func (a *authenticator) fetch(ctx context.Context) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.tokenURL.String(), strings.NewReader(a.form.Encode()))
	if err != nil {
		return nil, &RequestError{Op: "auth", Err: err}
	}
	req.SetBasicAuth(a.clientID, a.clientSecret)
	req.Header.Set("User-Agent", a.userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &RequestError{Op: "auth", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RequestError{Op: "auth", StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &RequestError{Op: "auth", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, &RequestError{Op: "auth", StatusCode: resp.StatusCode, Body: string(body), Err: err}
	}
	if tok.AccessToken == "" {
		return nil, &RequestError{
			Op:         "auth",
			StatusCode: resp.StatusCode,
			Body:       string(body),
			Err:        fmt.Errorf("access token was empty in response"),
		}
	}
	return &tok, nil
}
