package app

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mail-export/internal/index"
	"github.com/nhle/mail-export/internal/model"
	"github.com/nhle/mail-export/internal/session"
	appsync "github.com/nhle/mail-export/internal/sync"
	"github.com/nhle/mail-export/internal/ui/accounts"
	"github.com/nhle/mail-export/internal/ui/browse"
	"github.com/nhle/mail-export/internal/ui/settings"
	"github.com/nhle/mail-export/tests/testutil"
)

func newApp(t *testing.T) Model {
	t.Helper()

	d := appsync.New(appsync.Options{
		Manager: session.NewManager(session.Options{Logger: zerolog.Nop()}),
		Logger:  zerolog.Nop(),
	})
	t.Cleanup(d.Stop)

	m := New(Options{
		Store:  testutil.NewTestStore(t),
		Driver: d,
		Logger: zerolog.Nop(),
	})
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return updated.(Model)
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	updated, _ := m.Update(msg)
	return updated.(Model)
}

func TestConnectedSwitchesToBrowse(t *testing.T) {
	m := newApp(t)
	acct := model.NewAccount("Work", "imap.example.com", "bob", "pw")
	acct.ID = "a1"

	m = update(t, m, appsync.ConnectedMsg{Account: acct})
	assert.Equal(t, ViewBrowse, m.currentView)
	require.NotNil(t, m.account)
	assert.Contains(t, m.sessionStatus(), "Work (bob)")
}

func TestConnectFailureReturnsToAccounts(t *testing.T) {
	m := newApp(t)
	m.currentView = ViewBrowse

	m = update(t, m, appsync.FailedMsg{Kind: appsync.KindConnect, Err: errors.New("refused")})
	assert.Equal(t, ViewAccounts, m.currentView)
	assert.True(t, m.statusErr)
	assert.Contains(t, m.status, "refused")
}

func TestAddAccountOpensForm(t *testing.T) {
	m := newApp(t)

	m = update(t, m, accounts.AddRequestMsg{})
	assert.Equal(t, ViewAccountForm, m.currentView)
}

func TestDownloadOpensExportDialog(t *testing.T) {
	m := newApp(t)
	m.currentView = ViewBrowse
	m.browseView.SetMessages(index.LoadResult{
		Folder:   "INBOX",
		Messages: []model.EmailMessage{{UID: "1", Folder: "INBOX", Subject: "Hi"}},
	})
	m.browseView.SelectAllVisible()

	m = update(t, m, browse.DownloadRequestMsg{})
	assert.Equal(t, ViewExport, m.currentView)
}

func TestCommandPalette(t *testing.T) {
	m := newApp(t)
	m.currentView = ViewBrowse

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(":")})
	assert.Equal(t, ViewCommand, m.currentView)

	cmd := m.executeCommand("bogus")
	assert.Nil(t, cmd)
	assert.Contains(t, m.status, "Unknown command")

	m.executeCommand("download")
	assert.Equal(t, "No emails selected", m.status)
}

func TestBrowseBackDisconnects(t *testing.T) {
	m := newApp(t)
	acct := model.NewAccount("Work", "imap.example.com", "bob", "pw")
	m = update(t, m, appsync.ConnectedMsg{Account: acct})

	m = update(t, m, browse.BackMsg{})
	assert.Equal(t, ViewAccounts, m.currentView)
	assert.Nil(t, m.account)
	assert.Equal(t, []appsync.Kind{appsync.KindDisconnect}, m.driver.Pending())
}

func TestExportDoneSummary(t *testing.T) {
	m := newApp(t)

	m.handleExportDone(appsync.ExportDoneMsg{})
	assert.False(t, m.statusErr)
	assert.Contains(t, m.status, "0 of 0 messages exported")
}

func TestViewRenders(t *testing.T) {
	m := newApp(t)
	view := m.View()
	assert.Contains(t, view, "Mail Export")
}

func TestSettingsSavedUpdatesConfig(t *testing.T) {
	m := newApp(t)

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	assert.Equal(t, ViewSettings, m.currentView)

	cfg := model.DefaultAppConfig()
	cfg.Export.Formats = []string{"mbox"}
	m = update(t, m, settings.SavedMsg{Config: cfg, Path: "/tmp/config.yaml"})
	assert.Equal(t, ViewAccounts, m.currentView)
	assert.Equal(t, []string{"mbox"}, m.cfg.Export.Formats)
	assert.Contains(t, m.status, "Settings saved")

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	m = update(t, m, settings.SavedMsg{Err: errors.New("read-only")})
	assert.True(t, m.statusErr)
	assert.Equal(t, []string{"mbox"}, m.cfg.Export.Formats)
}
