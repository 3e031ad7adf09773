package app

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/nhle/mail-export/internal/export"
	"github.com/nhle/mail-export/internal/keys"
	"github.com/nhle/mail-export/internal/model"
	"github.com/nhle/mail-export/internal/store"
	appsync "github.com/nhle/mail-export/internal/sync"
	"github.com/nhle/mail-export/internal/theme"
	"github.com/nhle/mail-export/internal/ui"
	"github.com/nhle/mail-export/internal/ui/accountform"
	"github.com/nhle/mail-export/internal/ui/accounts"
	"github.com/nhle/mail-export/internal/ui/browse"
	"github.com/nhle/mail-export/internal/ui/command"
	"github.com/nhle/mail-export/internal/ui/exportform"
	helpview "github.com/nhle/mail-export/internal/ui/help"
	"github.com/nhle/mail-export/internal/ui/preview"
	"github.com/nhle/mail-export/internal/ui/settings"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewAccounts ViewState = iota
	ViewAccountForm
	ViewBrowse
	ViewPreview
	ViewExport
	ViewHelp
	ViewCommand
	ViewSettings
)

// Options configures the root model.
type Options struct {
	Store      store.Store
	Driver     *appsync.Driver
	Config     *model.AppConfig
	ConfigPath string
	Logger     zerolog.Logger
}

// Model is the root Bubble Tea model that manages view routing,
// layout, and the driver that talks to the mail server.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	store        store.Store
	driver       *appsync.Driver
	cfg          *model.AppConfig
	log          zerolog.Logger
	keys         *keys.KeyMap

	accountsView accounts.Model
	accountForm  accountform.Model
	browseView   browse.Model
	previewView  preview.Model
	exportForm   exportform.Model
	helpView     helpview.Model
	commandView  command.Model
	settingsView settings.Model

	spinner  spinner.Model
	progress progress.Model

	account   *model.Account
	state     model.SessionState
	status    string
	statusErr bool
	busy      bool
	percent   float64
	ready     bool
}

// New creates a new root application model.
func New(opts Options) Model {
	k := keys.DefaultKeyMap()
	cfg := opts.Config
	if cfg == nil {
		cfg = model.DefaultAppConfig()
	}

	return Model{
		currentView:  ViewAccounts,
		store:        opts.Store,
		driver:       opts.Driver,
		cfg:          cfg,
		log:          opts.Logger.With().Str("component", "ui").Logger(),
		keys:         k,
		accountsView: accounts.New(opts.Store, k, 80, 24),
		accountForm:  accountform.New(80, 24),
		browseView:   browse.New(k, 80, 24),
		previewView:  preview.New(k, 80, 24),
		exportForm:   exportform.New(80, 24),
		helpView:     helpview.New(k, opts.ConfigPath, 80, 24),
		commandView:  command.New(80, 24),
		settingsView: settings.New(opts.ConfigPath, 80, 24),
		spinner:      spinner.New(spinner.WithSpinner(spinner.Dot)),
		progress:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(30)),
		status:       "Select an account and press enter to connect",
	}
}

// Init loads the accounts and starts listening to the driver.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.accountsView.Init(),
		m.driver.Start(),
		m.spinner.Tick,
	)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		contentWidth := m.layout.ContentWidth()
		contentHeight := m.layout.ContentHeight()
		m.accountsView.SetSize(contentWidth, contentHeight)
		m.accountForm.SetSize(contentWidth, contentHeight)
		m.browseView.SetSize(contentWidth, contentHeight)
		m.previewView.SetSize(contentWidth, contentHeight)
		m.exportForm.SetSize(contentWidth, contentHeight)
		m.helpView.SetSize(contentWidth, contentHeight)
		m.commandView.SetSize(contentWidth, contentHeight)
		m.settingsView.SetSize(contentWidth, contentHeight)
		// Forward to active view so huh forms can calculate their layout.
		return m.updateActiveView(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	// === Driver results ===

	case appsync.StatusMsg:
		m.setStatus(msg.Text, false)
		m.state = msg.State
		m.busy = msg.State == model.SessionConnecting || msg.State == model.SessionSelectingFolder
		return m, m.driver.WaitForNext()

	case appsync.ProgressMsg:
		m.busy = true
		m.percent = msg.Percent()
		label := msg.Label
		if msg.Kind == appsync.KindExport {
			label = fmt.Sprintf("Exporting %d/%d: %s", msg.Done, msg.Total, msg.Label)
		} else if msg.Total > 0 {
			label = fmt.Sprintf("Loading %s %d/%d", msg.Label, msg.Done, msg.Total)
		}
		m.setStatus(label, false)
		return m, m.driver.WaitForNext()

	case appsync.ConnectedMsg:
		acct := msg.Account
		m.account = &acct
		m.accountsView.SetActive(acct.ID)
		m.browseView.Reset()
		m.currentView = ViewBrowse
		return m, m.driver.WaitForNext()

	case appsync.FoldersMsg:
		m.browseView.SetFolders(msg.Root)
		return m, m.driver.WaitForNext()

	case appsync.FolderLoadedMsg:
		m.busy = false
		m.browseView.SetMessages(msg.Result)
		return m, m.driver.WaitForNext()

	case appsync.PreviewMsg:
		m.browseView.AttachRaw(msg.Message.Key(), msg.Raw)
		m.previewView.SetMessage(msg.Message, msg.Text)
		return m, m.driver.WaitForNext()

	case appsync.ExportDoneMsg:
		m.busy = false
		m.handleExportDone(msg)
		return m, m.driver.WaitForNext()

	case appsync.FailedMsg:
		m.busy = false
		m.setStatus(fmt.Sprintf("%s failed: %v", msg.Kind, msg.Err), true)
		switch msg.Kind {
		case appsync.KindConnect:
			m.account = nil
			m.accountsView.SetActive("")
			m.currentView = ViewAccounts
		case appsync.KindPreview:
			if m.currentView == ViewPreview {
				m.currentView = ViewBrowse
			}
		}
		return m, m.driver.WaitForNext()

	// === Accounts ===

	case accounts.ConnectRequestMsg:
		m.setStatus("Loading credentials for "+msg.Account.DisplayName+"...", false)
		return m, m.loadSecret(msg.Account)

	case secretLoadedMsg:
		if msg.err != nil {
			m.setStatus("No password stored for "+msg.account.DisplayName+": "+msg.err.Error(), true)
			return m, nil
		}
		m.busy = true
		m.driver.Submit(appsync.ConnectCmd{Account: msg.account})
		return m, nil

	case accounts.AddRequestMsg:
		m.previousView = m.currentView
		m.currentView = ViewAccountForm
		cmd := m.accountForm.Start()
		return m, cmd

	case accounts.DeleteRequestMsg:
		if m.account != nil && m.account.ID == msg.Account.ID {
			m.setStatus("Disconnect before deleting the active account", true)
			return m, nil
		}
		return m, m.deleteAccount(msg.Account)

	case accountform.SubmittedMsg:
		m.currentView = ViewAccounts
		return m, m.saveAccount(msg.Account)

	case accountform.CancelMsg:
		m.currentView = ViewAccounts
		return m, nil

	case accountSavedResultMsg:
		if msg.err != nil {
			m.setStatus(msg.err.Error(), true)
		} else {
			m.setStatus("Saved account "+msg.account.DisplayName, false)
		}
		return m, m.accountsView.Load()

	case accountDeletedResultMsg:
		if msg.err != nil {
			m.setStatus("Deleting "+msg.name+": "+msg.err.Error(), true)
		} else {
			m.setStatus("Deleted account "+msg.name, false)
		}
		return m, m.accountsView.Load()

	// === Browse ===

	case browse.LoadFolderRequestMsg:
		m.busy = true
		m.percent = 0
		m.driver.Submit(appsync.LoadFolderCmd{Folder: msg.Folder})
		return m, nil

	case browse.PreviewRequestMsg:
		m.previousView = m.currentView
		m.currentView = ViewPreview
		m.previewView.SetLoading(true)
		m.driver.Submit(appsync.PreviewCmd{Message: msg.Message})
		return m, nil

	case browse.DownloadRequestMsg:
		m.previousView = m.currentView
		m.currentView = ViewExport
		cmd := m.exportForm.Start(m.cfg.Export, m.browseView.SelectionLen())
		return m, cmd

	case browse.BackMsg:
		m.disconnect()
		return m, nil

	case preview.BackMsg:
		m.currentView = ViewBrowse
		return m, nil

	case exportform.SubmittedMsg:
		m.currentView = ViewBrowse
		m.startExport(msg.Options)
		return m, nil

	case exportform.CancelMsg:
		m.currentView = ViewBrowse
		return m, nil

	case settings.SavedMsg:
		m.currentView = m.previousView
		if msg.Err != nil {
			m.setStatus("Saving settings: "+msg.Err.Error(), true)
			return m, nil
		}
		m.cfg = msg.Config
		m.log.Info().Str("path", msg.Path).Msg("settings saved")
		m.setStatus("Settings saved to "+msg.Path, false)
		return m, nil

	case settings.DoneMsg:
		m.currentView = m.previousView
		return m, nil

	case command.CommandMsg:
		m.currentView = m.previousView
		cmd := m.executeCommand(string(msg))
		return m, cmd

	case command.CancelMsg:
		m.currentView = m.previousView
		return m, nil

	case tea.KeyMsg:
		// Global keys that work regardless of current view
		switch msg.String() {
		case "ctrl+c":
			m.driver.Stop()
			return m, tea.Quit

		case "q":
			if m.acceptsGlobalKeys() {
				m.driver.Stop()
				return m, tea.Quit
			}

		case "?":
			if m.currentView == ViewHelp {
				m.currentView = m.previousView
				return m, nil
			}
			if m.acceptsGlobalKeys() || m.currentView == ViewPreview {
				m.previousView = m.currentView
				m.currentView = ViewHelp
				return m, nil
			}

		case ":":
			if m.acceptsGlobalKeys() {
				m.previousView = m.currentView
				m.currentView = ViewCommand
				cmd := m.commandView.Focus()
				return m, cmd
			}

		case "s":
			if m.acceptsGlobalKeys() {
				cmd := m.openSettings()
				return m, cmd
			}

		case "esc":
			if m.currentView == ViewHelp {
				m.currentView = m.previousView
				return m, nil
			}
		}
	}

	// Delegate to active sub-view
	return m.updateActiveView(msg)
}

// acceptsGlobalKeys reports whether single-letter global keys apply,
// which is not the case while text is being typed.
func (m Model) acceptsGlobalKeys() bool {
	switch m.currentView {
	case ViewAccounts:
		return true
	case ViewBrowse:
		return !m.browseView.Searching()
	default:
		return false
	}
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewAccounts:
		m.accountsView, cmd = m.accountsView.Update(msg)
	case ViewAccountForm:
		m.accountForm, cmd = m.accountForm.Update(msg)
	case ViewBrowse:
		m.browseView, cmd = m.browseView.Update(msg)
	case ViewPreview:
		m.previewView, cmd = m.previewView.Update(msg)
	case ViewExport:
		m.exportForm, cmd = m.exportForm.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	case ViewSettings:
		m.settingsView, cmd = m.settingsView.Update(msg)
	}

	return m, cmd
}

// startExport submits an export of the current selection.
func (m *Model) startExport(opts exportform.Options) {
	msgs := m.browseView.SelectedMessages()
	if len(msgs) == 0 {
		m.setStatus("No emails selected", true)
		return
	}

	root := opts.Directory
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}

	m.busy = true
	m.percent = 0
	m.setStatus(fmt.Sprintf("Exporting %d emails to %s...", len(msgs), root), false)
	m.driver.Submit(appsync.ExportCmd{
		Request: export.Request{
			Messages:                msgs,
			Formats:                 opts.Formats,
			Root:                    root,
			PreserveFolderStructure: opts.PreserveStructure,
			SkipExisting:            opts.SkipExisting,
		},
		Concurrency: opts.Concurrency,
	})
}

func (m *Model) handleExportDone(msg appsync.ExportDoneMsg) {
	if msg.Err != nil {
		m.setStatus("Export failed: "+msg.Err.Error(), true)
		return
	}

	summary := msg.Report.Summary() + " to " + msg.Run.Root
	if n := len(msg.Report.Failures); n > 0 {
		first := msg.Report.Failures[0]
		m.log.Warn().Int("failures", n).Msg("export finished with failures")
		m.setStatus(summary+" (first failure: "+first.Error()+")", true)
		return
	}
	m.setStatus(summary, false)
}

// openSettings shows the settings form for the current configuration.
func (m *Model) openSettings() tea.Cmd {
	m.previousView = m.currentView
	m.currentView = ViewSettings
	return m.settingsView.Start(m.cfg)
}

// disconnect drops the session and returns to the account list.
func (m *Model) disconnect() {
	m.driver.Submit(appsync.DisconnectCmd{})
	m.account = nil
	m.accountsView.SetActive("")
	m.browseView.Reset()
	m.busy = false
	m.currentView = ViewAccounts
}

// executeCommand handles a command string from the command palette.
func (m *Model) executeCommand(cmd string) tea.Cmd {
	switch cmd {
	case "refresh":
		if m.account == nil {
			return m.accountsView.Load()
		}
		if folder := m.browseView.ActiveFolder(); folder != "" {
			m.driver.Submit(appsync.LoadFolderCmd{Folder: folder})
		} else {
			m.driver.Submit(appsync.ListFoldersCmd{})
		}
		return nil
	case "disconnect", "accounts":
		if m.account != nil {
			m.disconnect()
		}
		m.currentView = ViewAccounts
		return nil
	case "select all":
		m.browseView.SelectAllVisible()
		return nil
	case "clear selection", "deselect all":
		m.browseView.ClearSelection()
		return nil
	case "download", "export":
		if m.browseView.SelectionLen() == 0 {
			m.setStatus("No emails selected", true)
			return nil
		}
		m.previousView = ViewBrowse
		m.currentView = ViewExport
		return m.exportForm.Start(m.cfg.Export, m.browseView.SelectionLen())
	case "settings":
		return m.openSettings()
	case "quit", "q":
		m.driver.Stop()
		return tea.Quit
	default:
		m.setStatus("Unknown command: "+cmd, true)
		return nil
	}
}

func (m *Model) setStatus(text string, isErr bool) {
	m.status = text
	m.statusErr = isErr
	if isErr {
		m.log.Error().Msg(text)
	}
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := m.layout.RenderHeader("Mail Export", m.sessionStatus())
	content := m.renderContent()
	statusBar := m.layout.RenderStatusBar(m.statusText(), m.statusWidget())

	return m.layout.RenderWithFrame(header, content, statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewAccounts:
		return m.accountsView.View()
	case ViewAccountForm:
		return m.accountForm.View()
	case ViewBrowse:
		return m.browseView.View()
	case ViewPreview:
		return m.previewView.View()
	case ViewExport:
		return m.exportForm.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	case ViewSettings:
		return m.settingsView.View()
	default:
		return ""
	}
}

// sessionStatus describes the connection for the header.
func (m Model) sessionStatus() string {
	if m.account == nil {
		return theme.StateStyle(m.state).Render(m.state.String())
	}
	parts := []string{m.account.Label(), m.state.String()}
	if n := m.browseView.SelectionLen(); n > 0 {
		parts = append(parts, fmt.Sprintf("%d selected", n))
	}
	return strings.Join(parts, " · ")
}

func (m Model) statusText() string {
	text := m.status
	if text == "" {
		text = m.keyHints()
	}
	if m.busy {
		text = m.spinner.View() + " " + text
	}
	if m.statusErr {
		return theme.ErrorStyle.Render(text)
	}
	return text
}

func (m Model) statusWidget() string {
	if m.busy && m.percent > 0 {
		return m.progress.ViewAs(m.percent)
	}
	return m.keyHints()
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	switch m.currentView {
	case ViewAccounts:
		return "enter connect | a add | x delete | s settings | q quit"
	case ViewAccountForm, ViewExport, ViewSettings:
		return "enter submit | esc cancel"
	case ViewBrowse:
		if m.browseView.Searching() {
			return "enter apply | tab field | esc clear"
		}
		return "space select | d download | p preview | / search | ? help"
	case ViewPreview:
		return "esc back | j/k scroll"
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return "enter execute | esc back"
	default:
		return "? help"
	}
}
