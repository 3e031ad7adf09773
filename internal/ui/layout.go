package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mail-export/internal/theme"
)

// folderPaneShare is the fraction of the width given to the folder tree.
const folderPaneShare = 0.3

// Layout manages the multi-panel terminal layout dimensions.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	StatusBarHeight int
}

// NewLayout creates a Layout with the given terminal dimensions.
// HeaderHeight and StatusBarHeight default to 1.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		StatusBarHeight: 1,
	}
}

// ContentWidth returns the full available width.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight returns the height available for the main content area,
// accounting for the header and status bar.
func (l Layout) ContentHeight() int {
	return l.Height - l.HeaderHeight - l.StatusBarHeight
}

// SplitWidths returns the folder pane and message pane widths for the
// browse view. Both are at least 10 columns.
func SplitWidths(width int) (left, right int) {
	left = int(float64(width) * folderPaneShare)
	if left < 10 {
		left = 10
	}
	right = width - left
	if right < 10 {
		right = 10
	}
	return left, right
}

// RenderHeader renders the top header bar with a title and session status.
func (l Layout) RenderHeader(title string, status string) string {
	titleRendered := theme.HeaderStyle.Render(title)

	statusRendered := theme.HeaderStyle.
		Align(lipgloss.Right).
		Render(status)

	gap := l.Width -
		lipgloss.Width(titleRendered) -
		lipgloss.Width(statusRendered)
	if gap < 0 {
		gap = 0
	}

	filler := lipgloss.NewStyle().
		Width(gap).
		Background(theme.HeaderStyle.GetBackground()).
		Render("")

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		titleRendered,
		filler,
		statusRendered,
	)
}

// RenderStatusBar renders the bottom status bar with a message on the
// left and, when given, a right-aligned widget such as a progress bar.
func (l Layout) RenderStatusBar(text string, right string) string {
	rendered := theme.StatusBarStyle.Render(text)
	rightRendered := ""
	if right != "" {
		rightRendered = theme.StatusBarStyle.Render(right)
	}

	gap := l.Width - lipgloss.Width(rendered) - lipgloss.Width(rightRendered)
	if gap < 0 {
		gap = 0
	}

	filler := lipgloss.NewStyle().
		Width(gap).
		Background(theme.StatusBarStyle.GetBackground()).
		Render("")

	return lipgloss.JoinHorizontal(lipgloss.Top, rendered, filler, rightRendered)
}

// RenderWithFrame composes a full terminal view by vertically joining
// the header, content area, and status bar.
func (l Layout) RenderWithFrame(
	header string,
	content string,
	statusBar string,
) string {
	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		content,
		statusBar,
	)
}
