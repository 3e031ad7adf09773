package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mail-export/internal/model"
	"github.com/nhle/mail-export/internal/store"
	"github.com/nhle/mail-export/tests/testutil"
)

func TestUpsertAndGetAccounts(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	work, err := s.UpsertAccount(ctx, model.NewAccount("Work", "imap.work.example", "me@work.example", "secret"))
	require.NoError(t, err)
	require.NotEmpty(t, work.ID)

	home := model.NewAccount("Home", "imap.home.example", "me@home.example", "")
	home.Port = 143
	home.UseEncryption = false
	home, err = s.UpsertAccount(ctx, home)
	require.NoError(t, err)

	accounts, err := s.GetAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "Home", accounts[0].DisplayName)
	assert.Equal(t, 143, accounts[0].Port)
	assert.False(t, accounts[0].UseEncryption)
	assert.Equal(t, "Work", accounts[1].DisplayName)
	assert.True(t, accounts[1].UseEncryption)
	assert.Empty(t, accounts[1].Secret, "secrets are not persisted")

	got, err := s.GetAccount(ctx, home.ID)
	require.NoError(t, err)
	assert.Equal(t, "imap.home.example", got.Host)
}

func TestUpsertAccountUpdatesInPlace(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	acct, err := s.UpsertAccount(ctx, model.NewAccount("Work", "old.example", "me", ""))
	require.NoError(t, err)

	acct.Host = "new.example"
	_, err = s.UpsertAccount(ctx, acct)
	require.NoError(t, err)

	accounts, err := s.GetAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "new.example", accounts[0].Host)
}

func TestUpsertAccountValidation(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertAccount(ctx, model.NewAccount(" ", "host", "u", ""))
	require.Error(t, err)

	_, err = s.UpsertAccount(ctx, model.NewAccount("Name", "", "u", ""))
	require.Error(t, err)

	_, err = s.UpsertAccount(ctx, model.NewAccount("Dup", "a", "u", ""))
	require.NoError(t, err)
	_, err = s.UpsertAccount(ctx, model.NewAccount("Dup", "b", "u", ""))
	require.Error(t, err, "display names are unique")
}

func TestFindAccount(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	acct, err := s.UpsertAccount(ctx, model.NewAccount("Work", "imap.example", "me", ""))
	require.NoError(t, err)

	byName, err := s.FindAccount(ctx, "Work")
	require.NoError(t, err)
	assert.Equal(t, acct.ID, byName.ID)

	byID, err := s.FindAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, "Work", byID.DisplayName)

	_, err = s.FindAccount(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteAccount(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	acct, err := s.UpsertAccount(ctx, model.NewAccount("Work", "imap.example", "me", ""))
	require.NoError(t, err)
	_, err = s.RecordExportRun(ctx, model.ExportRun{AccountID: acct.ID, Root: "/tmp/out", Formats: "EML"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteAccount(ctx, acct.ID))

	_, err = s.GetAccount(ctx, acct.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	runs, err := s.GetExportRuns(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, runs, "history is removed with the account")

	require.ErrorIs(t, s.DeleteAccount(ctx, acct.ID), store.ErrNotFound)
}

func TestExportRuns(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	acct, err := s.UpsertAccount(ctx, model.NewAccount("Work", "imap.example", "me", ""))
	require.NoError(t, err)

	base := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := s.RecordExportRun(ctx, model.ExportRun{
			AccountID:  acct.ID,
			Root:       "/exports",
			Formats:    "EML,JSON",
			Total:      10 + i,
			Succeeded:  9 + i,
			Failed:     1,
			StartedAt:  base.Add(time.Duration(i) * time.Hour),
			FinishedAt: base.Add(time.Duration(i)*time.Hour + time.Minute),
		})
		require.NoError(t, err)
	}

	runs, err := s.GetExportRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, 12, runs[0].Total)
	assert.Equal(t, 11, runs[1].Total)
	assert.Equal(t, "EML,JSON", runs[0].Formats)
	assert.Equal(t, time.Minute, runs[0].Duration())
	assert.True(t, runs[0].StartedAt.Equal(base.Add(2*time.Hour)))
}

func TestExportRunRequiresAccount(t *testing.T) {
	s := testutil.NewTestStore(t)

	_, err := s.RecordExportRun(context.Background(), model.ExportRun{AccountID: "nope", Root: "/x", Formats: "EML"})
	require.Error(t, err)
}
