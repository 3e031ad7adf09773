package credential

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mail-export/internal/model"
)

func useArrayKeyring(t *testing.T) {
	t.Helper()
	ring := keyring.NewArrayKeyring(nil)
	prev := opener
	opener = func() (keyring.Keyring, error) { return ring, nil }
	t.Cleanup(func() { opener = prev })
}

func TestSetGetDelete(t *testing.T) {
	useArrayKeyring(t)
	t.Setenv(EnvSecret, "")

	require.NoError(t, Set("account-1", "hunter2"))

	got, err := Get("account-1")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", got)

	require.NoError(t, Delete("account-1"))
	_, err = Get("account-1")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, Delete("account-1"), "deleting twice is fine")
}

func TestEnvOverride(t *testing.T) {
	useArrayKeyring(t)
	t.Setenv(EnvSecret, "from-env")

	got, err := Get("anything")
	require.NoError(t, err)
	assert.Equal(t, "from-env", got)
}

func TestLoadSecret(t *testing.T) {
	useArrayKeyring(t)
	t.Setenv(EnvSecret, "")

	acct := model.NewAccount("Work", "imap.example", "me", "")
	acct.ID = "abc"
	require.NoError(t, Set(acct.SecretKey(), "pw"))

	require.NoError(t, LoadSecret(&acct))
	assert.Equal(t, "pw", acct.Secret)
}
