package reddit

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/pders01/rdt/internal/model"
	"github.com/pders01/rdt/internal/validation"
)

// apiResponse is the envelope api_type=json endpoints answer with.
type apiResponse struct {
	JSON struct {
		Errors [][]any `json:"errors"`
	} `json:"json"`
}

func (r apiResponse) err(op string) error {
	if len(r.JSON.Errors) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(r.JSON.Errors))
	for _, e := range r.JSON.Errors {
		parts := make([]string, 0, len(e))
		for _, p := range e {
			parts = append(parts, fmt.Sprint(p))
		}
		msgs = append(msgs, strings.Join(parts, ": "))
	}
	return &RequestError{Op: op, StatusCode: 200, Err: errors.New(strings.Join(msgs, "; "))}
}

// Vote records the viewer's vote on a thing. DirNone clears it.
func (c *Client) Vote(ctx context.Context, fullname string, dir model.Direction) error {
	if err := validation.Fullname(fullname); err != nil {
		return err
	}
	form := url.Values{
		"id":  {fullname},
		"dir": {strconv.Itoa(int(dir))},
	}
	return c.post(ctx, "vote", "api/vote", form, nil)
}

// Reply posts text as a comment on the parent thing.
func (c *Client) Reply(ctx context.Context, parentFullname, text string) error {
	if err := validation.Fullname(parentFullname); err != nil {
		return err
	}
	form := url.Values{
		"api_type": {"json"},
		"thing_id": {parentFullname},
		"text":     {text},
	}
	var resp apiResponse
	if err := c.post(ctx, "reply", "api/comment", form, &resp); err != nil {
		return err
	}
	return resp.err("reply")
}

// SetSubscription subscribes to or unsubscribes from a subreddit.
func (c *Client) SetSubscription(ctx context.Context, name string, subscribed bool) error {
	action := "unsub"
	if subscribed {
		action = "sub"
	}
	form := url.Values{
		"action":  {action},
		"sr_name": {name},
	}
	return c.post(ctx, "subscribe", "api/subscribe", form, nil)
}

// SetFavorite adds or removes a subreddit from the viewer's favorites.
func (c *Client) SetFavorite(ctx context.Context, name string, favorite bool) error {
	form := url.Values{
		"api_type":      {"json"},
		"make_favorite": {strconv.FormatBool(favorite)},
		"sr_name":       {name},
	}
	var resp apiResponse
	if err := c.post(ctx, "favorite", "api/favorite", form, &resp); err != nil {
		return err
	}
	return resp.err("favorite")
}
