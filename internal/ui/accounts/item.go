package accounts

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mail-export/internal/model"
	"github.com/nhle/mail-export/internal/theme"
)

// AccountItem wraps a model.Account so it can be used in a bubbles/list.
type AccountItem struct {
	Account model.Account
}

// FilterValue returns the string used for fuzzy filtering.
func (i AccountItem) FilterValue() string { return i.Account.DisplayName }

// Title returns the account label for the list.
func (i AccountItem) Title() string { return i.Account.Label() }

// Description returns the server address.
func (i AccountItem) Description() string { return i.Account.Address() }

// ItemDelegate implements list.ItemDelegate for rendering accounts.
type ItemDelegate struct {
	// active is the ID of the connected account, shared by reference
	// with the Model so updates are visible.
	active *string
}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single account line.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	ai, ok := item.(AccountItem)
	if !ok {
		return
	}
	acct := ai.Account

	marker := "○"
	if d.active != nil && *d.active != "" && *d.active == acct.ID {
		marker = theme.CheckStyle.Render("●")
	}

	security := "plain"
	if acct.UseEncryption {
		security = "ssl"
	}
	securityBadge := lipgloss.NewStyle().
		Foreground(theme.ColorGray).
		Render(security)

	updated := lipgloss.NewStyle().
		Foreground(theme.ColorGray).
		Render(relativeTime(acct.UpdatedAt))

	line := fmt.Sprintf("%s %s  %s %s  %s",
		marker, acct.Label(), acct.Address(), securityBadge, updated)

	if index == m.Index() {
		line = theme.SelectedItemStyle.Render(line)
	} else {
		line = theme.ListItemStyle.Render(line)
	}

	fmt.Fprint(w, line)
}

// relativeTime returns a human-friendly relative time string.
func relativeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return fmt.Sprintf("%dw ago", int(d.Hours()/24/7))
	}
}
