package browse

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mail-export/internal/catalog"
	"github.com/nhle/mail-export/internal/index"
	"github.com/nhle/mail-export/internal/keys"
	"github.com/nhle/mail-export/internal/model"
	"github.com/nhle/mail-export/internal/session"
)

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

var (
	space = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	enter = tea.KeyMsg{Type: tea.KeyEnter}
	tab   = tea.KeyMsg{Type: tea.KeyTab}
	esc   = tea.KeyMsg{Type: tea.KeyEsc}
	down  = tea.KeyMsg{Type: tea.KeyDown}
)

func loaded(folder string, subjects ...string) index.LoadResult {
	msgs := make([]model.EmailMessage, len(subjects))
	for i, s := range subjects {
		msgs[i] = model.EmailMessage{
			UID:     string(rune('1' + i)),
			Subject: s,
			Sender:  "sender@example.com",
			Folder:  folder,
		}
	}
	return index.LoadResult{Folder: folder, Messages: msgs}
}

func newModel(t *testing.T) Model {
	t.Helper()
	return New(keys.DefaultKeyMap(), 120, 30)
}

// exec runs cmd and returns its message, or nil.
func exec(cmd tea.Cmd) tea.Msg {
	if cmd == nil {
		return nil
	}
	return cmd()
}

func TestToggleSelectionSurvivesFolderSwitch(t *testing.T) {
	m := newModel(t)
	m.SetMessages(loaded("INBOX", "Invoice", "Lunch"))

	m, _ = m.Update(space)
	m, _ = m.Update(down)
	m, _ = m.Update(space)
	assert.Equal(t, 2, m.SelectionLen())

	m, _ = m.Update(space)
	assert.Equal(t, 1, m.SelectionLen())

	m.SetMessages(loaded("Archive", "Old"))
	m, _ = m.Update(space)

	selected := m.SelectedMessages()
	require.Len(t, selected, 2)
	assert.Equal(t, "INBOX", selected[0].Folder)
	assert.Equal(t, "Archive", selected[1].Folder)
}

func TestSearchFiltersViewOnly(t *testing.T) {
	m := newModel(t)
	m.SetMessages(loaded("INBOX", "Invoice March", "Lunch", "invoice April"))

	m, _ = m.Update(runes("/"))
	require.True(t, m.Searching())
	for _, r := range "invoice" {
		m, _ = m.Update(runes(string(r)))
	}
	m, _ = m.Update(enter)

	assert.False(t, m.Searching())
	require.Len(t, m.Visible(), 2)

	m, _ = m.Update(runes("A"))
	assert.Equal(t, 2, m.SelectionLen())

	m, _ = m.Update(runes("/"))
	m, _ = m.Update(esc)
	assert.Len(t, m.Visible(), 3)
	assert.Equal(t, 2, m.SelectionLen())

	m, _ = m.Update(runes("N"))
	assert.Equal(t, 0, m.SelectionLen())
}

func TestSearchFieldCycles(t *testing.T) {
	m := newModel(t)
	m.SetMessages(loaded("INBOX", "Hello"))

	m, _ = m.Update(runes("/"))
	for _, want := range []index.Field{index.FieldSubject, index.FieldFrom, index.FieldTo, index.FieldBody, index.FieldAll} {
		m, _ = m.Update(tab)
		assert.Equal(t, want, m.searchField)
	}
}

func TestBodySearchShowsNote(t *testing.T) {
	m := newModel(t)
	m.SetMessages(loaded("INBOX", "One", "Two"))
	m.searchField = index.FieldBody
	m.applySearch("anything")

	assert.Len(t, m.Visible(), 2)
	assert.NotEmpty(t, m.note)
}

func TestFolderEnterRequestsLoad(t *testing.T) {
	m := newModel(t)
	m.SetFolders(catalog.Build([]session.FolderDescriptor{
		{Name: "INBOX", Delim: '/'},
		{Name: "Work", Delim: '/'},
		{Name: "Work/Projects", Delim: '/'},
	}))

	m, _ = m.Update(down)
	m, _ = m.Update(down)
	_, cmd := m.Update(enter)

	assert.Equal(t, LoadFolderRequestMsg{Folder: "Work/Projects"}, exec(cmd))
}

func TestSetFoldersKeepsCursorPath(t *testing.T) {
	m := newModel(t)
	descs := []session.FolderDescriptor{
		{Name: "INBOX", Delim: '/'},
		{Name: "Sent", Delim: '/'},
	}
	m.SetFolders(catalog.Build(descs))
	m, _ = m.Update(down)

	m.SetFolders(catalog.Build(append([]session.FolderDescriptor{{Name: "Archive", Delim: '/'}}, descs...)))
	assert.Equal(t, "Sent", m.folders[m.folderCursor].Node.Path)
}

func TestDownloadNeedsSelection(t *testing.T) {
	m := newModel(t)
	m.SetMessages(loaded("INBOX", "One"))

	m, cmd := m.Update(runes("d"))
	assert.Nil(t, cmd)
	assert.Equal(t, "No emails selected", m.note)

	m, _ = m.Update(space)
	_, cmd = m.Update(runes("d"))
	assert.Equal(t, DownloadRequestMsg{}, exec(cmd))
}

func TestPreviewRequest(t *testing.T) {
	m := newModel(t)
	m.SetMessages(loaded("INBOX", "One", "Two"))

	m, _ = m.Update(down)
	_, cmd := m.Update(runes("p"))

	msg, ok := exec(cmd).(PreviewRequestMsg)
	require.True(t, ok)
	assert.Equal(t, "Two", msg.Message.Subject)
}

func TestRefreshReloadsActiveFolder(t *testing.T) {
	m := newModel(t)
	_, cmd := m.Update(runes("r"))
	assert.Nil(t, cmd)

	m.SetMessages(loaded("Sent"))
	_, cmd = m.Update(runes("r"))
	assert.Equal(t, LoadFolderRequestMsg{Folder: "Sent"}, exec(cmd))
}

func TestResetClearsEverything(t *testing.T) {
	m := newModel(t)
	m.SetMessages(loaded("INBOX", "One"))
	m, _ = m.Update(space)

	m.Reset()
	assert.Equal(t, 0, m.SelectionLen())
	assert.Empty(t, m.Visible())
	assert.Equal(t, "", m.ActiveFolder())
}

func TestColumnsFillWidth(t *testing.T) {
	total := 0
	for _, c := range columns(100) {
		total += c.Width
	}
	assert.Equal(t, 90, total)
}
