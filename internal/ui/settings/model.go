package settings

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

// SavedMsg signals the configuration was written to disk. Err is set
// when writing failed.
type SavedMsg struct {
	Config *model.AppConfig
	Path   string
	Err    error
}

// DoneMsg signals the settings view was closed without saving.
type DoneMsg struct{}

var logLevels = []string{"debug", "info", "warn", "error"}

// formBindings holds the values huh binds to.
type formBindings struct {
	directory   string
	formats     []string
	preserve    bool
	skip        bool
	concurrency string
	logLevel    string
	dialTimeout string
}

// Model edits the export defaults and session settings and writes them
// to the config file.
type Model struct {
	form *huh.Form
	fb   *formBindings
	base *model.AppConfig
	path string

	width, height int
}

// New creates a settings view writing to path.
func New(path string, width, height int) Model {
	return Model{
		fb:     &formBindings{},
		path:   path,
		width:  width,
		height: height,
	}
}

// Start opens the form prefilled from cfg.
func (m *Model) Start(cfg *model.AppConfig) tea.Cmd {
	if cfg == nil {
		cfg = model.DefaultAppConfig()
	}
	m.base = cfg
	*m.fb = formBindings{
		directory:   cfg.Export.Directory,
		formats:     cfg.Export.FormatSet().Names(),
		preserve:    cfg.Export.PreserveStructure,
		skip:        cfg.Export.SkipExisting,
		concurrency: strconv.Itoa(cfg.Export.Concurrency),
		logLevel:    cfg.Log.Level,
		dialTimeout: strconv.Itoa(cfg.Session.DialTimeoutSec),
	}
	m.form = m.buildForm()
	return m.form.Init()
}

// Update handles messages for the settings form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		m.form = nil
		return m, save(m.path, m.config())
	case huh.StateAborted:
		m.form = nil
		return m, func() tea.Msg { return DoneMsg{} }
	}

	return m, cmd
}

// View renders the settings form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)
	pathStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)

	return lipgloss.NewStyle().
		Padding(1, 2).
		Width(m.width).
		Height(m.height).
		Render(titleStyle.Render("Settings") + "\n" +
			pathStyle.Render(m.path) + "\n\n" +
			m.form.View())
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *Model) buildForm() *huh.Form {
	formatOpts := make([]huh.Option[string], len(model.AllFormats))
	for i, f := range model.AllFormats {
		formatOpts[i] = huh.NewOption(f.String(), strings.ToLower(f.String()))
	}
	levelOpts := make([]huh.Option[string], len(logLevels))
	for i, l := range logLevels {
		levelOpts[i] = huh.NewOption(l, l)
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Export directory").
				Value(&m.fb.directory).
				Validate(validateRequired("directory")),
			huh.NewMultiSelect[string]().
				Title("Default formats").
				Options(formatOpts...).
				Value(&m.fb.formats).
				Validate(func(names []string) error {
					if len(names) == 0 {
						return fmt.Errorf("select at least one format")
					}
					return nil
				}),
			huh.NewConfirm().
				Title("Preserve folder structure").
				Value(&m.fb.preserve),
			huh.NewConfirm().
				Title("Skip existing files").
				Value(&m.fb.skip),
			huh.NewInput().
				Title("Connections per export").
				Value(&m.fb.concurrency).
				Validate(validateNumber("connections", 1, model.MaxConcurrency)),
		).Title("Export"),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Log level").
				Description("Applies on restart").
				Options(levelOpts...).
				Value(&m.fb.logLevel),
			huh.NewInput().
				Title("Connect timeout (seconds)").
				Value(&m.fb.dialTimeout).
				Validate(validateNumber("timeout", 1, 600)),
		).Title("Session"),
	).WithWidth(m.formWidth())
}

// config returns a copy of the base configuration with the form
// values applied.
func (m Model) config() *model.AppConfig {
	cfg := *m.base
	cfg.Export.Directory = strings.TrimSpace(m.fb.directory)
	cfg.Export.Formats = append([]string(nil), m.fb.formats...)
	cfg.Export.PreserveStructure = m.fb.preserve
	cfg.Export.SkipExisting = m.fb.skip
	if n, err := strconv.Atoi(strings.TrimSpace(m.fb.concurrency)); err == nil {
		cfg.Export.Concurrency = n
	}
	cfg.Log.Level = m.fb.logLevel
	if n, err := strconv.Atoi(strings.TrimSpace(m.fb.dialTimeout)); err == nil {
		cfg.Session.DialTimeoutSec = n
	}
	return &cfg
}

func save(path string, cfg *model.AppConfig) tea.Cmd {
	return func() tea.Msg {
		err := model.SaveConfig(path, cfg)
		return SavedMsg{Config: cfg, Path: path, Err: err}
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

// --- Validators ---

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validateNumber(fieldName string, lo, hi int) func(string) error {
	return func(s string) error {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("%s must be a number", fieldName)
		}
		if n < lo || n > hi {
			return fmt.Errorf("%s must be between %d and %d", fieldName, lo, hi)
		}
		return nil
	}
}
