package accountform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePort(t *testing.T) {
	assert.NoError(t, ValidatePort("993"))
	assert.NoError(t, ValidatePort(" 143 "))
	assert.Error(t, ValidatePort("0"))
	assert.Error(t, ValidatePort("70000"))
	assert.Error(t, ValidatePort("imap"))
}

func TestAccountFromBindings(t *testing.T) {
	m := New(80, 24)
	m.Start()
	m.fb.displayName = " Work "
	m.fb.host = "imap.example.com"
	m.fb.port = "143"
	m.fb.username = "bob"
	m.fb.secret = "pw"
	m.fb.useSSL = false

	acct := m.account()
	assert.Equal(t, "Work", acct.DisplayName)
	assert.Equal(t, 143, acct.Port)
	assert.Equal(t, "pw", acct.Secret)
	assert.False(t, acct.UseEncryption)
}

func TestStartResetsDefaults(t *testing.T) {
	m := New(80, 24)
	m.fb.host = "old"
	m.Start()
	assert.Equal(t, "", m.fb.host)
	assert.Equal(t, "993", m.fb.port)
	assert.True(t, m.fb.useSSL)
}
