package validation

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// EndpointValidator checks the API endpoints configured for the client.
type EndpointValidator struct {
	// RequireHTTPS rejects plain http unless the host is local.
	RequireHTTPS   bool
	AllowLocalhost bool
	MaxLength      int
}

func NewEndpointValidator() *EndpointValidator {
	return &EndpointValidator{
		RequireHTTPS:   true,
		AllowLocalhost: true,
		MaxLength:      2048,
	}
}

// ValidateAndNormalize validates an endpoint and returns it with a trailing
// slash so relative API paths resolve beneath it.
func (v *EndpointValidator) ValidateAndNormalize(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("URL cannot be empty")
	}
	if len(input) > v.MaxLength {
		return "", fmt.Errorf("URL too long (max %d characters)", v.MaxLength)
	}
	if strings.ContainsAny(input, "<>\"'` ") {
		return "", fmt.Errorf("URL contains invalid characters")
	}

	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("URL must use http or https protocol")
	}
	if u.Host == "" {
		return "", fmt.Errorf("URL must have a valid hostname")
	}
	if strings.Contains(u.Path, "..") {
		return "", fmt.Errorf("directory traversal patterns not allowed in URL path")
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return "", fmt.Errorf("endpoint must not carry a query or fragment")
	}

	local := isLocalhost(u.Hostname())
	if local && !v.AllowLocalhost {
		return "", fmt.Errorf("localhost URLs are not permitted")
	}
	if v.RequireHTTPS && u.Scheme == "http" && !local {
		return "", fmt.Errorf("%s must use https", u.Host)
	}

	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u.String(), nil
}

func isLocalhost(hostname string) bool {
	if hostname == "localhost" || strings.HasSuffix(hostname, ".localhost") {
		return true
	}
	ip := net.ParseIP(hostname)
	return ip != nil && ip.IsLoopback()
}

// SubredditFromInput accepts what people type or paste to name a listing:
// "golang", "r/golang", "/r/golang/" or a reddit.com URL such as
// "https://www.reddit.com/r/golang/top/". It returns the validated name.
func SubredditFromInput(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", fmt.Errorf("subreddit cannot be empty")
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return "", fmt.Errorf("invalid URL format: %w", err)
		}
		host := strings.ToLower(u.Hostname())
		if host != "reddit.com" && !strings.HasSuffix(host, ".reddit.com") {
			return "", fmt.Errorf("%s is not a reddit URL", u.Host)
		}
		s = u.Path
	}

	s = strings.Trim(s, "/")
	parts := strings.Split(s, "/")
	if len(parts) >= 2 && strings.EqualFold(parts[0], "r") {
		s = parts[1]
	} else if len(parts) == 1 {
		s = parts[0]
	} else {
		return "", fmt.Errorf("%q does not name a subreddit", input)
	}
	return SubredditName(s)
}
