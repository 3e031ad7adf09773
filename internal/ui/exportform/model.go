package exportform

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

// Options are the choices made in the export dialog.
type Options struct {
	Formats           model.FormatSet
	Directory         string
	PreserveStructure bool
	SkipExisting      bool
	Concurrency       int
}

// SubmittedMsg is dispatched when the user confirms the export.
type SubmittedMsg struct {
	Options Options
}

// CancelMsg is dispatched when the user aborts the dialog.
type CancelMsg struct{}

// concurrencyChoices are the pool sizes offered in the dialog.
var concurrencyChoices = []int{1, 2, 4, 8}

type formBindings struct {
	formats     []string
	directory   string
	preserve    bool
	skip        bool
	concurrency int
}

// Model is the export options dialog.
type Model struct {
	form     *huh.Form
	fb       *formBindings
	selected int
	width    int
	height   int
}

// New creates a new export dialog model.
func New(width, height int) Model {
	return Model{
		fb:     &formBindings{},
		width:  width,
		height: height,
	}
}

// Start opens the dialog for count selected messages, prefilled from
// the configured defaults.
func (m *Model) Start(defaults model.ExportConfig, count int) tea.Cmd {
	*m.fb = formBindings{
		formats:     defaults.FormatSet().Names(),
		directory:   defaults.Directory,
		preserve:    defaults.PreserveStructure,
		skip:        defaults.SkipExisting,
		concurrency: defaults.Concurrency,
	}
	m.selected = count
	m.form = m.buildForm()
	return m.form.Init()
}

// Update handles messages for the dialog.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		opts := m.options()
		m.form = nil
		return m, func() tea.Msg { return SubmittedMsg{Options: opts} }
	}
	if m.form.State == huh.StateAborted {
		m.form = nil
		return m, func() tea.Msg { return CancelMsg{} }
	}

	return m, cmd
}

// View renders the dialog.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	title := titleStyle.Render(fmt.Sprintf("Download %d selected emails", m.selected))

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(title + "\n" + m.form.View())
}

// SetSize updates the dialog dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *Model) buildForm() *huh.Form {
	formatOpts := make([]huh.Option[string], len(model.AllFormats))
	for i, f := range model.AllFormats {
		name := strings.ToLower(f.String())
		formatOpts[i] = huh.NewOption(f.String(), name)
	}

	concurrencyOpts := make([]huh.Option[int], len(concurrencyChoices))
	for i, n := range concurrencyChoices {
		label := strconv.Itoa(n) + " connections"
		if n == 1 {
			label = "1 connection (sequential)"
		}
		concurrencyOpts[i] = huh.NewOption(label, n)
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Formats").
				Options(formatOpts...).
				Value(&m.fb.formats).
				Validate(validateFormats),
			huh.NewInput().
				Title("Directory").
				Value(&m.fb.directory).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("directory is required")
					}
					return nil
				}),
			huh.NewConfirm().
				Title("Preserve folder structure").
				Value(&m.fb.preserve),
			huh.NewConfirm().
				Title("Skip existing files").
				Value(&m.fb.skip),
			huh.NewSelect[int]().
				Title("Connections").
				Options(concurrencyOpts...).
				Value(&m.fb.concurrency),
		),
	).WithWidth(m.formWidth()).WithHeight(m.formHeight())
}

func (m Model) options() Options {
	formats, _ := model.ParseFormats(m.fb.formats)
	concurrency := m.fb.concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return Options{
		Formats:           formats,
		Directory:         strings.TrimSpace(m.fb.directory),
		PreserveStructure: m.fb.preserve,
		SkipExisting:      m.fb.skip,
		Concurrency:       concurrency,
	}
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
	if h < 12 {
		h = 12
	}
	return h
}

func validateFormats(names []string) error {
	if len(names) == 0 {
		return fmt.Errorf("select at least one format")
	}
	_, err := model.ParseFormats(names)
	return err
}
