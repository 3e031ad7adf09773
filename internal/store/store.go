package store

import (
	"context"
	"errors"

	"github.com/nhle/mail-export/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface for accounts and export
// history. Account secrets are not part of it; see package credential.
type Store interface {
	// === Accounts ===

	UpsertAccount(ctx context.Context, acct model.Account) (model.Account, error)
	GetAccounts(ctx context.Context) ([]model.Account, error)
	GetAccount(ctx context.Context, id string) (*model.Account, error)
	FindAccount(ctx context.Context, ref string) (*model.Account, error)
	DeleteAccount(ctx context.Context, id string) error

	// === Export history ===

	RecordExportRun(ctx context.Context, run model.ExportRun) (model.ExportRun, error)
	GetExportRuns(ctx context.Context, limit int) ([]model.ExportRun, error)

	Close() error
}
