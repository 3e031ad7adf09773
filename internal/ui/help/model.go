package help

import (
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mail-export/internal/keys"
	"github.com/nhle/mail-export/internal/model"
	"github.com/nhle/mail-export/internal/theme"
)

// Model is the help overlay view.
type Model struct {
	keys       *keys.KeyMap
	help       help.Model
	configPath string
	width      int
	height     int
}

// New creates a new help view model. configPath is shown so users know
// where export defaults live.
func New(keys *keys.KeyMap, configPath string, width, height int) Model {
	h := help.New()
	h.Width = width
	return Model{
		keys:       keys,
		help:       h,
		configPath: configPath,
		width:      width,
		height:     height,
	}
}

// View renders the help overlay.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	title := titleStyle.Render("Keyboard Shortcuts")

	m.help.Width = m.width - 4
	m.help.ShowAll = true
	helpText := m.help.View(m.keys)

	formats := make([]string, len(model.AllFormats))
	for i, f := range model.AllFormats {
		formats[i] = theme.FormatStyle(f).Render(f.String())
	}
	footer := lipgloss.JoinVertical(lipgloss.Left,
		"",
		"Export formats: "+strings.Join(formats, " "),
		theme.HelpStyle.Render("Defaults are read from "+m.configPath),
	)

	content := lipgloss.JoinVertical(lipgloss.Left, title, helpText, footer)

	return theme.DetailPanelStyle.
		Width(m.width - 4).
		Height(m.height - 4).
		Render(content)
}

// SetSize updates the help view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.help.Width = width - 4
}
