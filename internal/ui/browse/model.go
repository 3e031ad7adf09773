package browse

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mail-export/internal/catalog"
	"github.com/nhle/mail-export/internal/index"
	"github.com/nhle/mail-export/internal/keys"
	"github.com/nhle/mail-export/internal/model"
	"github.com/nhle/mail-export/internal/theme"
	"github.com/nhle/mail-export/internal/ui"
)

// LoadFolderRequestMsg asks the parent to load a folder's headers.
type LoadFolderRequestMsg struct {
	Folder string
}

// PreviewRequestMsg asks the parent to show a message.
type PreviewRequestMsg struct {
	Message model.EmailMessage
}

// DownloadRequestMsg asks the parent to open the export dialog for the
// current selection.
type DownloadRequestMsg struct{}

// BackMsg asks the parent to return to the account list.
type BackMsg struct{}

type pane int

const (
	paneFolders pane = iota
	paneMessages
)

const checkMark = "✓"

// Model is the folder tree and message table view.
type Model struct {
	keys *keys.KeyMap

	folders      []catalog.Entry
	folderCursor int
	activeFolder string

	index     *index.Index
	selection *index.Selection
	visible   []model.EmailMessage
	table     table.Model

	searchMode  bool
	searchInput textinput.Model
	searchField index.Field
	searchTerm  string
	note        string

	focus  pane
	width  int
	height int
}

// New creates an empty browse view.
func New(k *keys.KeyMap, width, height int) Model {
	t := table.New(
		table.WithColumns(columns(width)),
		table.WithFocused(false),
		table.WithHeight(height-4),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(theme.ColorBorder).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(theme.ColorWhite).
		Background(theme.ColorBlue)
	t.SetStyles(styles)

	si := textinput.New()
	si.Placeholder = "search emails..."
	si.Prompt = "/ "
	si.Width = width - 20

	m := Model{
		keys:        k,
		index:       index.New(),
		selection:   index.NewSelection(),
		table:       t,
		searchInput: si,
		width:       width,
		height:      height,
	}
	m.SetSize(width, height)
	return m
}

// Update handles messages for the browse view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		var cmd tea.Cmd
		if m.searchMode {
			m.searchInput, cmd = m.searchInput.Update(msg)
		}
		return m, cmd
	}

	if m.searchMode {
		return m.handleSearchKeys(keyMsg)
	}
	return m.handleNormalKeys(keyMsg)
}

func (m Model) handleSearchKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case msg.Type == tea.KeyEnter:
		m.searchMode = false
		m.searchInput.Blur()
		m.applySearch(m.searchInput.Value())
		return m, nil

	case msg.Type == tea.KeyEsc:
		m.searchMode = false
		m.searchInput.Blur()
		m.searchInput.Reset()
		m.applySearch("")
		return m, nil

	case key.Matches(msg, m.keys.CycleField):
		m.searchField = nextField(m.searchField)
		m.applySearch(m.searchInput.Value())
		return m, nil
	}

	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	m.applySearch(m.searchInput.Value())
	return m, cmd
}

func (m Model) handleNormalKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		return m, func() tea.Msg { return BackMsg{} }

	case key.Matches(msg, m.keys.NextPane):
		m.setFocus(1 - m.focus)
		return m, nil

	case key.Matches(msg, m.keys.Search):
		m.searchMode = true
		m.searchInput.SetValue(m.searchTerm)
		m.searchInput.CursorEnd()
		cmd := m.searchInput.Focus()
		return m, cmd

	case key.Matches(msg, m.keys.SelectAll):
		m.SelectAllVisible()
		return m, nil

	case key.Matches(msg, m.keys.ClearSelection):
		m.ClearSelection()
		return m, nil

	case key.Matches(msg, m.keys.Download):
		if m.selection.Len() == 0 {
			m.note = "No emails selected"
			return m, nil
		}
		return m, func() tea.Msg { return DownloadRequestMsg{} }

	case key.Matches(msg, m.keys.Refresh):
		if m.activeFolder == "" {
			return m, nil
		}
		folder := m.activeFolder
		return m, func() tea.Msg { return LoadFolderRequestMsg{Folder: folder} }
	}

	if m.focus == paneFolders {
		return m.handleFolderKeys(msg)
	}
	return m.handleMessageKeys(msg)
}

func (m Model) handleFolderKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.folderCursor > 0 {
			m.folderCursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.folderCursor < len(m.folders)-1 {
			m.folderCursor++
		}
	case key.Matches(msg, m.keys.Select):
		if m.folderCursor >= len(m.folders) {
			return m, nil
		}
		folder := m.folders[m.folderCursor].Node.Mailbox
		if folder == "" {
			return m, nil
		}
		return m, func() tea.Msg { return LoadFolderRequestMsg{Folder: folder} }
	}
	return m, nil
}

func (m Model) handleMessageKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Toggle):
		if cur, ok := m.current(); ok {
			m.selection.Toggle(cur.Key())
			m.refreshRows()
		}
		return m, nil

	case key.Matches(msg, m.keys.Preview), key.Matches(msg, m.keys.Select):
		cur, ok := m.current()
		if !ok {
			return m, nil
		}
		return m, func() tea.Msg { return PreviewRequestMsg{Message: cur} }
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// SetFolders replaces the folder tree. The cursor is kept on the same
// path when it still exists.
func (m *Model) SetFolders(root *model.FolderNode) {
	var cursorPath string
	if m.folderCursor < len(m.folders) {
		cursorPath = m.folders[m.folderCursor].Node.Path
	}

	m.folders = catalog.Flatten(root)
	m.folderCursor = 0
	for i, e := range m.folders {
		if e.Node.Path == cursorPath {
			m.folderCursor = i
			break
		}
	}
}

// SetMessages replaces the message table with a freshly loaded folder.
// The selection is kept so it can span folders.
func (m *Model) SetMessages(result index.LoadResult) {
	m.index.Replace(result.Folder, result.Messages)
	m.activeFolder = result.Folder
	m.note = ""
	m.refreshRows()
	m.table.GotoTop()
	m.setFocus(paneMessages)
}

// AttachRaw records fetched content so later previews and exports of
// the message do not fetch it again.
func (m *Model) AttachRaw(key model.MessageKey, raw []byte) {
	m.index.AttachRaw(key, raw)
}

// SelectAllVisible adds every message matching the current search.
func (m *Model) SelectAllVisible() {
	m.selection.SelectAll(m.visible)
	m.refreshRows()
}

// ClearSelection empties the selection.
func (m *Model) ClearSelection() {
	m.selection.Clear()
	m.refreshRows()
}

// SelectedMessages resolves the selection, across every loaded folder.
func (m Model) SelectedMessages() []model.EmailMessage {
	return m.index.Resolve(m.selection)
}

// SelectionLen returns the number of selected messages.
func (m Model) SelectionLen() int {
	return m.selection.Len()
}

// ActiveFolder returns the mailbox shown in the table.
func (m Model) ActiveFolder() string {
	return m.activeFolder
}

// Visible returns the messages currently listed.
func (m Model) Visible() []model.EmailMessage {
	return m.visible
}

// Reset clears folders, messages and selection, as after a disconnect.
func (m *Model) Reset() {
	m.folders = nil
	m.folderCursor = 0
	m.activeFolder = ""
	m.index = index.New()
	m.selection = index.NewSelection()
	m.searchTerm = ""
	m.searchInput.Reset()
	m.searchMode = false
	m.note = ""
	m.refreshRows()
	m.setFocus(paneFolders)
}

// Searching reports whether the search input has focus.
func (m Model) Searching() bool {
	return m.searchMode
}

func (m *Model) applySearch(term string) {
	m.searchTerm = term
	m.refreshRows()
}

func (m *Model) refreshRows() {
	res := index.Filter(m.index.Current(), m.searchTerm, m.searchField)
	m.visible = res.Messages
	m.note = res.Note

	rows := make([]table.Row, len(m.visible))
	for i, msg := range m.visible {
		mark := ""
		if m.selection.Contains(msg.Key()) {
			mark = checkMark
		}
		rows[i] = table.Row{mark, msg.Subject, msg.Sender, msg.Date, sizeLabel(msg.SizeBytes)}
	}
	m.table.SetRows(rows)
	if c := m.table.Cursor(); c >= len(rows) && len(rows) > 0 {
		m.table.SetCursor(len(rows) - 1)
	}
}

func (m Model) current() (model.EmailMessage, bool) {
	c := m.table.Cursor()
	if c < 0 || c >= len(m.visible) {
		return model.EmailMessage{}, false
	}
	return m.visible[c], true
}

func (m *Model) setFocus(p pane) {
	m.focus = p
	if p == paneMessages {
		m.table.Focus()
	} else {
		m.table.Blur()
	}
}

// View renders the two panes side by side, with the search bar above
// the table.
func (m Model) View() string {
	leftWidth, rightWidth := ui.SplitWidths(m.width)

	leftStyle, rightStyle := theme.PanelStyle, theme.PanelStyle
	if m.focus == paneFolders {
		leftStyle = theme.FocusedPanelStyle
	} else {
		rightStyle = theme.FocusedPanelStyle
	}

	left := leftStyle.
		Width(leftWidth - 2).
		Height(m.height - 2).
		Render(m.renderFolders(leftWidth-2, m.height-2))

	right := rightStyle.
		Width(rightWidth - 2).
		Height(m.height - 2).
		Render(lipgloss.JoinVertical(lipgloss.Left,
			m.renderTitle(),
			m.renderSearch(),
			m.renderTable(),
		))

	return lipgloss.JoinHorizontal(lipgloss.Top, left, right)
}

func (m Model) renderFolders(width, height int) string {
	if len(m.folders) == 0 {
		return lipgloss.NewStyle().
			Foreground(theme.ColorGray).
			Render("No folders")
	}

	start := 0
	if m.folderCursor >= height {
		start = m.folderCursor - height + 1
	}

	var lines []string
	for i := start; i < len(m.folders) && len(lines) < height; i++ {
		e := m.folders[i]
		name := strings.Repeat("  ", e.Depth) + e.Node.Name
		if e.Node.Mailbox != "" && e.Node.Mailbox == m.activeFolder {
			name += " " + theme.CheckStyle.Render("●")
		}
		if e.Node.Mailbox == "" {
			name = lipgloss.NewStyle().Foreground(theme.ColorGray).Render(name)
		}

		line := lipgloss.NewStyle().MaxWidth(width).Render(name)
		if i == m.folderCursor {
			line = theme.SelectedItemStyle.Render(line)
		} else {
			line = theme.ListItemStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderTitle() string {
	if m.activeFolder == "" {
		return theme.HelpStyle.Render("Choose a folder and press enter")
	}
	title := fmt.Sprintf("%s · %d emails · %d selected",
		m.activeFolder, m.index.Len(), m.selection.Len())
	if m.searchTerm != "" {
		title += fmt.Sprintf(" · %d shown", len(m.visible))
	}
	return lipgloss.NewStyle().Bold(true).Render(title)
}

func (m Model) renderSearch() string {
	field := theme.HelpStyle.Render("[" + m.searchField.String() + "]")

	var line string
	switch {
	case m.searchMode:
		line = m.searchInput.View() + " " + field
	case m.searchTerm != "":
		line = "/ " + m.searchTerm + " " + field
	default:
		line = theme.HelpStyle.Render("/ search")
	}

	if m.note != "" {
		line += "  " + lipgloss.NewStyle().Foreground(theme.ColorYellow).Render(m.note)
	}
	return line
}

func (m Model) renderTable() string {
	if m.activeFolder != "" && len(m.visible) == 0 {
		return lipgloss.NewStyle().
			Foreground(theme.ColorGray).
			Render("No emails")
	}
	return m.table.View()
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height

	_, rightWidth := ui.SplitWidths(width)
	m.table.SetColumns(columns(rightWidth - 4))
	m.table.SetWidth(rightWidth - 4)
	m.table.SetHeight(max(3, height-6))
	m.searchInput.Width = max(10, rightWidth-20)
}

// columns sizes the table columns to width: subject gets half of what
// remains after the fixed columns, sender and date share the rest.
func columns(width int) []table.Column {
	const checkWidth, sizeWidth = 2, 9
	flex := width - checkWidth - sizeWidth - 10
	if flex < 30 {
		flex = 30
	}
	subject := flex / 2
	sender := flex / 4
	date := flex - subject - sender

	return []table.Column{
		{Title: checkMark, Width: checkWidth},
		{Title: "Subject", Width: subject},
		{Title: "From", Width: sender},
		{Title: "Date", Width: date},
		{Title: "Size", Width: sizeWidth},
	}
}

func nextField(f index.Field) index.Field {
	for i, candidate := range index.Fields {
		if candidate == f {
			return index.Fields[(i+1)%len(index.Fields)]
		}
	}
	return index.FieldAll
}

func sizeLabel(n int64) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%d B", n)
	case n < 1024*1024:
		return fmt.Sprintf("%d KB", n/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(n)/(1024*1024))
	}
}
