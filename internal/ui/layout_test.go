package ui

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
)

func TestContentHeight(t *testing.T) {
	l := NewLayout(100, 40)
	assert.Equal(t, 38, l.ContentHeight())
	assert.Equal(t, 100, l.ContentWidth())
}

func TestSplitWidths(t *testing.T) {
	left, right := SplitWidths(100)
	assert.Equal(t, 30, left)
	assert.Equal(t, 70, right)

	left, right = SplitWidths(12)
	assert.Equal(t, 10, left)
	assert.Equal(t, 10, right)
}

func TestRenderStatusBarFillsWidth(t *testing.T) {
	l := NewLayout(60, 10)
	bar := l.RenderStatusBar("Connected", "50%")
	assert.Equal(t, 60, lipgloss.Width(bar))
	assert.Contains(t, bar, "Connected")
	assert.Contains(t, bar, "50%")
}

func TestRenderHeaderFillsWidth(t *testing.T) {
	l := NewLayout(50, 10)
	header := l.RenderHeader("Mail Export", "ready")
	assert.Equal(t, 50, lipgloss.Width(header))
}
