package app

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/mail-export/internal/credential"
	"github.com/nhle/mail-export/internal/model"
)

// accountSavedResultMsg is sent after an account and its secret are stored.
type accountSavedResultMsg struct {
	account model.Account
	err     error
}

// accountDeletedResultMsg is sent after an account is removed.
type accountDeletedResultMsg struct {
	name string
	err  error
}

// secretLoadedMsg carries an account ready to connect.
type secretLoadedMsg struct {
	account model.Account
	err     error
}

// saveAccount persists acct and stores its secret in the keyring. The
// secret is never written to the database.
func (m *Model) saveAccount(acct model.Account) tea.Cmd {
	s := m.store
	log := m.log
	return func() tea.Msg {
		saved, err := s.UpsertAccount(context.Background(), acct)
		if err != nil {
			return accountSavedResultMsg{err: err}
		}
		if err := credential.Set(saved.SecretKey(), acct.Secret); err != nil {
			log.Warn().Err(err).Str("account", saved.DisplayName).Msg("storing secret")
			return accountSavedResultMsg{account: saved, err: fmt.Errorf("account saved, but the password could not be stored: %w", err)}
		}
		return accountSavedResultMsg{account: saved}
	}
}

// deleteAccount removes acct and its secret.
func (m *Model) deleteAccount(acct model.Account) tea.Cmd {
	s := m.store
	log := m.log
	return func() tea.Msg {
		if err := s.DeleteAccount(context.Background(), acct.ID); err != nil {
			return accountDeletedResultMsg{name: acct.DisplayName, err: err}
		}
		if err := credential.Delete(acct.SecretKey()); err != nil {
			log.Warn().Err(err).Str("account", acct.DisplayName).Msg("deleting secret")
		}
		return accountDeletedResultMsg{name: acct.DisplayName}
	}
}

// loadSecret reads the account secret so the account can be connected.
func (m *Model) loadSecret(acct model.Account) tea.Cmd {
	return func() tea.Msg {
		err := credential.LoadSecret(&acct)
		return secretLoadedMsg{account: acct, err: err}
	}
}
