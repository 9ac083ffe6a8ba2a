package model

import "time"

// Direction is the viewer's vote on an item.
type Direction int

const (
	DirNone Direction = 0
	DirUp   Direction = 1
	DirDown Direction = -1
)

func (d Direction) String() string {
	switch d {
	case DirUp:
		return "up"
	case DirDown:
		return "down"
	default:
		return "none"
	}
}

// VoteState is the part of an item the vote mutation touches.
type VoteState struct {
	Ups   int       `json:"ups"`
	Downs int       `json:"downs"`
	Dir   Direction `json:"dir"`
}

// Score returns the displayed score.
func (v VoteState) Score() int {
	return v.Ups - v.Downs
}

// Toward returns the state after the viewer requests dir. Requesting the
// current direction again clears the vote.
func (v VoteState) Toward(dir Direction) VoteState {
	next := dir
	if v.Dir == dir {
		next = DirNone
	}

	out := v
	switch v.Dir {
	case DirUp:
		out.Ups--
	case DirDown:
		out.Downs--
	}
	switch next {
	case DirUp:
		out.Ups++
	case DirDown:
		out.Downs++
	}
	out.Dir = next
	return out
}

// FeedItem is a single post in a listing.
type FeedItem struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	Subreddit   string    `json:"subreddit"`
	SelfText    string    `json:"selftext"`
	URL         string    `json:"url"`
	Permalink   string    `json:"permalink"`
	Thumbnail   string    `json:"thumbnail"`
	NumComments int       `json:"num_comments"`
	Over18      bool      `json:"over_18"`
	Created     time.Time `json:"created"`
	Seen        bool      `json:"seen"`
	Vote        VoteState `json:"vote"`
}

// Listing is one page returned by a listing fetch. An empty After means the
// feed is exhausted.
type Listing struct {
	Items []FeedItem
	After string
}
