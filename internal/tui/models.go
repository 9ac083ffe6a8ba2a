package tui

type View int

const (
	ViewSubs View = iota
	ViewPosts
	ViewReader
	ViewReply
	ViewSearch
	ViewGoto
)
