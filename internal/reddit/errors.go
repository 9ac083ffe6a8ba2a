package reddit

import (
	"fmt"
	"strings"

	"github.com/pders01/rdt/internal/model"
)

// RequestError describes a failed call to Reddit. It matches
// model.ErrNetwork under errors.Is.
type RequestError struct {
	Op         string
	StatusCode int
	// Body holds the raw response body when the server answered.
	Body string
	Err  error
}

func (e *RequestError) Error() string {
	var sb strings.Builder
	sb.WriteString("reddit")
	if e.Op != "" {
		fmt.Fprintf(&sb, " %s", e.Op)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&sb, ": status %d", e.StatusCode)
	}
	if e.Body != "" {
		body := e.Body
		if len(body) > 200 {
			body = body[:200] + "..."
		}
		fmt.Fprintf(&sb, ", body: %q", body)
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	return sb.String()
}

func (e *RequestError) Unwrap() error { return e.Err }

func (e *RequestError) Is(target error) bool {
	return target == model.ErrNetwork
}

// Temporary reports whether retrying later could succeed.
func (e *RequestError) Temporary() bool {
	return e.StatusCode == 0 || e.StatusCode == 429 || e.StatusCode >= 500
}
