package accounts

import (
	"context"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mail-export/internal/keys"
	"github.com/nhle/mail-export/internal/model"
	"github.com/nhle/mail-export/internal/store"
	"github.com/nhle/mail-export/internal/theme"
)

// LoadedMsg is sent when accounts have been loaded from the store.
type LoadedMsg struct {
	Accounts []model.Account
	Err      error
}

// ConnectRequestMsg asks the parent to connect to the chosen account.
type ConnectRequestMsg struct {
	Account model.Account
}

// AddRequestMsg asks the parent to open the account form.
type AddRequestMsg struct{}

// DeleteRequestMsg asks the parent to delete the chosen account.
type DeleteRequestMsg struct {
	Account model.Account
}

// Model is the account list view.
type Model struct {
	list   list.Model
	store  store.Store
	keys   *keys.KeyMap
	active *string
	err    error
	width  int
	height int
}

// New creates a new account list model.
func New(s store.Store, k *keys.KeyMap, width, height int) Model {
	active := new(string)
	l := list.New([]list.Item{}, ItemDelegate{active: active}, width, height-2)
	l.Title = "Accounts"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle

	return Model{
		list:   l,
		store:  s,
		keys:   k,
		active: active,
		width:  width,
		height: height,
	}
}

// Init returns a command that loads the saved accounts.
func (m Model) Init() tea.Cmd {
	return m.Load()
}

// Update handles messages for the account list.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case LoadedMsg:
		m.err = msg.Err
		items := make([]list.Item, len(msg.Accounts))
		for i, acct := range msg.Accounts {
			items[i] = AccountItem{Account: acct}
		}
		cmd := m.list.SetItems(items)
		return m, cmd

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Select):
			acct, ok := m.Selected()
			if !ok {
				return m, nil
			}
			return m, func() tea.Msg { return ConnectRequestMsg{Account: acct} }

		case key.Matches(msg, m.keys.AddAccount):
			return m, func() tea.Msg { return AddRequestMsg{} }

		case key.Matches(msg, m.keys.DeleteAccount):
			acct, ok := m.Selected()
			if !ok {
				return m, nil
			}
			return m, func() tea.Msg { return DeleteRequestMsg{Account: acct} }
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// Selected returns the highlighted account.
func (m Model) Selected() (model.Account, bool) {
	item, ok := m.list.SelectedItem().(AccountItem)
	if !ok {
		return model.Account{}, false
	}
	return item.Account, true
}

// SetActive marks the connected account. An empty id clears the mark.
func (m *Model) SetActive(id string) {
	*m.active = id
}

// View renders the account list.
func (m Model) View() string {
	if m.err != nil {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Render(theme.ErrorStyle.Render("Could not load accounts: " + m.err.Error()))
	}

	if len(m.list.Items()) == 0 {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render("No accounts yet.\n\nPress a to add one.")
	}

	return m.list.View()
}

// Load returns a tea.Cmd that reads all accounts from the store.
func (m Model) Load() tea.Cmd {
	s := m.store
	return func() tea.Msg {
		accts, err := s.GetAccounts(context.Background())
		return LoadedMsg{Accounts: accts, Err: err}
	}
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-2)
}
