package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pders01/rdt/internal/model"
)

var (
	subredditPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_]{1,20}$`)
	fullnamePattern  = regexp.MustCompile(`^t[1-6]_[a-z0-9]{1,13}$`)
)

// SubredditName validates a bare subreddit name. Pseudo feeds are accepted
// and returned in canonical lower case.
func SubredditName(name string) (string, error) {
	if model.IsPseudoFeed(name) {
		return strings.ToLower(name), nil
	}
	if !subredditPattern.MatchString(name) {
		return "", fmt.Errorf("invalid subreddit name %q", name)
	}
	return name, nil
}

// Fullname validates a thing fullname such as "t3_abc123".
func Fullname(id string) error {
	if !fullnamePattern.MatchString(id) {
		return fmt.Errorf("invalid fullname %q", id)
	}
	return nil
}
