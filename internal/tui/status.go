package tui

import (
	"fmt"

	"github.com/pders01/rdt/internal/model"
)

// Canonical short status messages used across the app.
const (
	MsgRefreshing    = "Refreshing…"
	MsgLoading       = "Loading…"
	MsgSending       = "Sending reply…"
	MsgNoResults     = "No results"
	MsgDraftKept     = "Draft kept"
	MsgDraftDiscard  = "Draft discarded"
	MsgReadOnly      = "Log in to vote, reply or subscribe"
	MsgEmptyReply    = "Reply is empty"
	MsgNothingToOpen = "Nothing to open for a text post"
	MsgPseudoFeed    = "Built-in feeds cannot be subscribed to"
)

func MsgSorted(s model.Sort) string {
	return fmt.Sprintf("Sorted by %s", s)
}

func MsgResultsCount(n int) string {
	if n == 1 {
		return "1 result"
	}
	return fmt.Sprintf("%d results", n)
}

func MsgRefreshSummary(feeds, errors, docCount int) string {
	base := fmt.Sprintf("Refreshed %d feeds", feeds)
	if errors > 0 {
		base += fmt.Sprintf(" • %d errors", errors)
	}
	if docCount >= 0 {
		base += fmt.Sprintf(" • idx: %d docs", docCount)
	}
	return base
}

func MsgSearchIndex(docs int) string {
	return fmt.Sprintf("Search • idx: %d docs", docs)
}
