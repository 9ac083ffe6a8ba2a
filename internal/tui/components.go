package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/pders01/rdt/internal/model"
)

// renderHeader returns a consistently styled header with an optional muted
// subtitle, truncated to width.
func renderHeader(title, subtitle string, width int) string {
	title = truncateEnd(title, width-2)
	subtitle = truncateEnd(subtitle, width-2)
	rows := []string{HeaderStyle.Render(title)}
	if subtitle != "" {
		rows = append(rows, renderMuted(subtitle))
	}
	return lipgloss.JoinVertical(lipgloss.Top, rows...)
}

// renderInputFrame draws a rounded border around a rendered input view.
func renderInputFrame(inputView string, focused bool, contentWidth int) string {
	borderColor := MutedColor
	if focused {
		borderColor = AccentColor
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(borderColor).
		Padding(0, 1).
		Width(contentWidth + 4).
		Render(inputView)
}

// renderCentered centers content within the given box.
func renderCentered(width, height int, content string) string {
	return lipgloss.NewStyle().
		Width(width).
		Height(height).
		Align(lipgloss.Center, lipgloss.Center).
		Render(content)
}

func renderMuted(text string) string {
	return lipgloss.NewStyle().Foreground(MutedColor).Render(text)
}

func renderHelp(text string) string {
	return HelpStyle.Render(text)
}

// renderScore shows the viewer's vote as an arrow beside the score.
func renderScore(v model.VoteState) string {
	arrow := " "
	switch v.Dir {
	case model.DirUp:
		arrow = UpvoteStyle.Render("▲")
	case model.DirDown:
		arrow = DownvoteStyle.Render("▼")
	}
	return fmt.Sprintf("%s %5s", arrow, compactCount(v.Score()))
}

// renderMeta joins post metadata and indents it under the title column.
func renderMeta(parts []string) string {
	return strings.Repeat(" ", 9) + strings.Join(parts, " • ")
}
