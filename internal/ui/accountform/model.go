package accountform

import (
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mail-export/internal/model"
	"github.com/nhle/mail-export/internal/theme"
)

// SubmittedMsg is dispatched when the form is completed.
type SubmittedMsg struct {
	Account model.Account
}

// CancelMsg is dispatched when the user aborts the form.
type CancelMsg struct{}

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	displayName string
	host        string
	port        string
	username    string
	secret      string
	useSSL      bool
}

// Model is the Bubble Tea model for the add-account form.
type Model struct {
	form   *huh.Form
	fb     *formBindings
	width  int
	height int
}

// New creates a new account form model.
func New(width, height int) Model {
	return Model{
		fb:     &formBindings{},
		width:  width,
		height: height,
	}
}

// Start resets the bindings and builds a fresh form.
func (m *Model) Start() tea.Cmd {
	*m.fb = formBindings{
		port:   strconv.Itoa(model.DefaultIMAPPort),
		useSSL: true,
	}
	m.form = m.buildForm()
	return m.form.Init()
}

// Update handles messages for the form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		acct := m.account()
		m.form = nil
		return m, func() tea.Msg { return SubmittedMsg{Account: acct} }
	}
	if m.form.State == huh.StateAborted {
		m.form = nil
		return m, func() tea.Msg { return CancelMsg{} }
	}

	return m, cmd
}

// View renders the form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	content := titleStyle.Render("Add Account") + "\n" + m.form.View()

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(content)
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *Model) buildForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Display Name").
				Placeholder("Work mail").
				Value(&m.fb.displayName).
				Validate(validateRequired("Display name")),
			huh.NewInput().
				Title("Server").
				Placeholder("imap.example.com").
				Value(&m.fb.host).
				Validate(validateRequired("Server")),
			huh.NewInput().
				Title("Port").
				Value(&m.fb.port).
				Validate(ValidatePort),
			huh.NewInput().
				Title("Username").
				Value(&m.fb.username).
				Validate(validateRequired("Username")),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&m.fb.secret).
				Validate(validateRequired("Password")),
			huh.NewConfirm().
				Title("Use SSL").
				Value(&m.fb.useSSL),
		),
	).WithWidth(m.formWidth()).WithHeight(m.formHeight())
}

func (m Model) account() model.Account {
	acct := model.NewAccount(
		strings.TrimSpace(m.fb.displayName),
		strings.TrimSpace(m.fb.host),
		strings.TrimSpace(m.fb.username),
		m.fb.secret,
	)
	if port, err := strconv.Atoi(strings.TrimSpace(m.fb.port)); err == nil {
		acct.Port = port
	}
	acct.UseEncryption = m.fb.useSSL
	return acct
}

func (m Model) formWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	if w > 100 {
		w = 100
	}
	return w
}

func (m Model) formHeight() int {
	h := m.height - 4
	if h < 10 {
		h = 10
	}
	return h
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

// ValidatePort accepts a TCP port number.
func ValidatePort(s string) error {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("port must be a number between 1 and 65535")
	}
	return nil
}
