package model

import "errors"

var (
	// ErrNetwork marks failures of calls to the Reddit API.
	ErrNetwork = errors.New("network failure")

	// ErrPersistence marks failures of the local draft and cache store.
	ErrPersistence = errors.New("persistence failure")

	// ErrNotFound indicates a missing record.
	ErrNotFound = errors.New("not found")

	// ErrReadOnly marks actions that need a logged-in client.
	ErrReadOnly = errors.New("action requires login")

	// ErrEmptyReply indicates an attempt to send a reply with no text.
	ErrEmptyReply = errors.New("reply cannot be empty")
)
