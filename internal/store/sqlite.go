package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/mail-export/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Every connection to ":memory:" gets its own database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys.
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

const accountColumns = `id, display_name, host, port, username, use_encryption, created_at, updated_at`

// UpsertAccount inserts a new account or updates an existing one. An
// account without an ID is assigned a new UUID. The secret is ignored.
func (s *SQLiteStore) UpsertAccount(
	ctx context.Context,
	acct model.Account,
) (model.Account, error) {
	if strings.TrimSpace(acct.DisplayName) == "" {
		return acct, fmt.Errorf("account name must not be empty")
	}
	if strings.TrimSpace(acct.Host) == "" {
		return acct, fmt.Errorf("account host must not be empty")
	}
	if acct.ID == "" {
		acct.ID = uuid.New().String()
	}
	if acct.Port == 0 {
		acct.Port = model.DefaultIMAPPort
	}

	now := time.Now().UTC()
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = now
	}
	acct.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_name = excluded.display_name,
			host = excluded.host,
			port = excluded.port,
			username = excluded.username,
			use_encryption = excluded.use_encryption,
			updated_at = excluded.updated_at`,
		acct.ID, acct.DisplayName, acct.Host, acct.Port, acct.Username,
		boolToInt(acct.UseEncryption), acct.CreatedAt, acct.UpdatedAt,
	)
	if err != nil {
		return acct, fmt.Errorf("upserting account %s: %w", acct.DisplayName, err)
	}

	return acct, nil
}

// GetAccounts retrieves all accounts ordered by name.
func (s *SQLiteStore) GetAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT "+accountColumns+" FROM accounts ORDER BY display_name")
	if err != nil {
		return nil, fmt.Errorf("querying accounts: %w", err)
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acct)
	}

	return accounts, rows.Err()
}

// GetAccount retrieves a single account by its ID.
func (s *SQLiteStore) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	row := s.db.QueryRowxContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE id = ?", id)

	acct, err := scanAccount(row)
	if err != nil {
		return nil, fmt.Errorf("getting account %s: %w", id, err)
	}
	return &acct, nil
}

// FindAccount retrieves an account by ID or by display name.
func (s *SQLiteStore) FindAccount(ctx context.Context, ref string) (*model.Account, error) {
	row := s.db.QueryRowxContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE id = ? OR display_name = ? LIMIT 1", ref, ref)

	acct, err := scanAccount(row)
	if err != nil {
		return nil, fmt.Errorf("finding account %q: %w", ref, err)
	}
	return &acct, nil
}

// DeleteAccount removes an account and its export history.
func (s *SQLiteStore) DeleteAccount(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM accounts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting account %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	return nil
}

// RecordExportRun stores the summary of a finished export.
func (s *SQLiteStore) RecordExportRun(
	ctx context.Context,
	run model.ExportRun,
) (model.ExportRun, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now().UTC()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = run.FinishedAt
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO export_runs (
			id, account_id, root, formats,
			total, succeeded, skipped, failed, error,
			started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.AccountID, run.Root, run.Formats,
		run.Total, run.Succeeded, run.Skipped, run.Failed, run.Error,
		run.StartedAt.UTC(), run.FinishedAt.UTC(),
	)
	if err != nil {
		return run, fmt.Errorf("recording export run: %w", err)
	}
	return run, nil
}

// GetExportRuns retrieves the most recent export runs, newest first.
// A non-positive limit returns every run.
func (s *SQLiteStore) GetExportRuns(ctx context.Context, limit int) ([]model.ExportRun, error) {
	query := `
		SELECT id, account_id, root, formats,
			total, succeeded, skipped, failed, error,
			started_at, finished_at
		FROM export_runs
		ORDER BY started_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying export runs: %w", err)
	}
	defer rows.Close()

	var runs []model.ExportRun
	for rows.Next() {
		var run model.ExportRun
		err := rows.Scan(
			&run.ID, &run.AccountID, &run.Root, &run.Formats,
			&run.Total, &run.Succeeded, &run.Skipped, &run.Failed, &run.Error,
			&run.StartedAt, &run.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning export run row: %w", err)
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// rowScanner is satisfied by both *sqlx.Rows and *sqlx.Row.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanAccount scans an account row selected with accountColumns.
func scanAccount(row rowScanner) (model.Account, error) {
	var (
		acct          model.Account
		useEncryption int
	)

	err := row.Scan(
		&acct.ID, &acct.DisplayName, &acct.Host, &acct.Port, &acct.Username,
		&useEncryption, &acct.CreatedAt, &acct.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Account{}, ErrNotFound
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("scanning account row: %w", err)
	}

	acct.UseEncryption = useEncryption != 0
	return acct, nil
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
