package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/pders01/rdt/internal/event"
)

// StatusKind indicates severity for status messages.
type StatusKind int

const (
	StatusInfo StatusKind = iota
	StatusSuccess
	StatusWarn
	StatusError
)

func statusKindOf(k event.NoticeKind) StatusKind {
	switch k {
	case event.NoticeSuccess:
		return StatusSuccess
	case event.NoticeWarn:
		return StatusWarn
	case event.NoticeError:
		return StatusError
	default:
		return StatusInfo
	}
}

func (k StatusKind) style() lipgloss.Style {
	switch k {
	case StatusSuccess:
		return StatusSuccessStyle
	case StatusWarn:
		return StatusWarnStyle
	case StatusError:
		return StatusErrorStyle
	default:
		return StatusInfoStyle
	}
}
