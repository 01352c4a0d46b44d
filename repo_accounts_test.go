package accounts_test

import (
	"context"
	"database/sql"
	"testing"

	accounts "github.com/goliatone/go-accounts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const (
	sqliteCreateAccounts = `CREATE TABLE accounts (
    id TEXT NOT NULL PRIMARY KEY,
    username TEXT NOT NULL UNIQUE,
    email TEXT NOT NULL UNIQUE,
    phone_number TEXT,
    password_hash TEXT,
    status TEXT DEFAULT 'unverified',
    is_email_verified BOOLEAN DEFAULT FALSE,
    secondary_email TEXT,
    is_secondary_email_verified BOOLEAN DEFAULT FALSE,
    refresh_epoch INTEGER DEFAULT 0,
    login_attempts INTEGER DEFAULT 0,
    login_attempt_at TIMESTAMP NULL,
    loggedin_at TIMESTAMP NULL,
    metadata TEXT,
    archived_at TIMESTAMP NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP,
    deleted_at TIMESTAMP NULL
);`
	sqliteCreateConsumedTokens = `CREATE TABLE consumed_tokens (
    nonce TEXT NOT NULL PRIMARY KEY,
    consumed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`
)

func setupAccountsRepo(t *testing.T) (accounts.Accounts, *bun.DB, func()) {
	t.Helper()

	db, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())

	_, err = bunDB.Exec(sqliteCreateAccounts)
	require.NoError(t, err)
	_, err = bunDB.Exec(sqliteCreateConsumedTokens)
	require.NoError(t, err)

	cleanup := func() {
		_ = bunDB.Close()
		_ = db.Close()
	}

	return accounts.NewAccountsRepository(bunDB), bunDB, cleanup
}

func TestAccountsRepositoryCreateAppliesDefaults(t *testing.T) {
	repo, _, cleanup := setupAccountsRepo(t)
	defer cleanup()

	ctx := context.Background()

	created, err := repo.Create(ctx, &accounts.Account{
		Username:     "ada",
		Email:        "ada@example.com",
		PasswordHash: "not-a-real-hash",
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, accounts.AccountStatusUnverified, created.Status)
	assert.NotNil(t, created.CreatedAt)
}

func TestAccountsRepositoryCreateDuplicate(t *testing.T) {
	repo, _, cleanup := setupAccountsRepo(t)
	defer cleanup()

	ctx := context.Background()

	_, err := repo.Create(ctx, &accounts.Account{Username: "ada", Email: "ada@example.com"})
	require.NoError(t, err)

	_, err = repo.Create(ctx, &accounts.Account{Username: "ada2", Email: "ada@example.com"})
	require.Error(t, err)
	assert.ErrorIs(t, err, accounts.ErrIdentifierTaken)

	_, err = repo.Create(ctx, &accounts.Account{Username: "ada", Email: "other@example.com"})
	require.Error(t, err)
	assert.ErrorIs(t, err, accounts.ErrIdentifierTaken)
}

func TestAccountsRepositoryGetByIdentifier(t *testing.T) {
	repo, _, cleanup := setupAccountsRepo(t)
	defer cleanup()

	ctx := context.Background()

	created, err := repo.Create(ctx, &accounts.Account{
		Username: "grace",
		Email:    "grace@example.com",
	})
	require.NoError(t, err)

	tests := []struct {
		name       string
		identifier string
	}{
		{"by email", "grace@example.com"},
		{"by email case-insensitive", "GRACE@Example.COM"},
		{"by username", "grace"},
		{"by id", created.ID.String()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found, err := repo.GetByIdentifier(ctx, tt.identifier)
			require.NoError(t, err)
			assert.Equal(t, created.ID, found.ID)
		})
	}

	_, err = repo.GetByIdentifier(ctx, "nobody@example.com")
	require.Error(t, err)
}

func TestAccountsRepositorySave(t *testing.T) {
	repo, _, cleanup := setupAccountsRepo(t)
	defer cleanup()

	ctx := context.Background()

	created, err := repo.Create(ctx, &accounts.Account{Username: "linus", Email: "linus@example.com"})
	require.NoError(t, err)

	created.Status = accounts.AccountStatusVerified
	created.EmailVerified = true
	saved, err := repo.Save(ctx, created)
	require.NoError(t, err)
	assert.NotNil(t, saved.UpdatedAt)

	found, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, accounts.AccountStatusVerified, found.Status)
	assert.True(t, found.EmailVerified)
}

func TestAccountsRepositoryDeleteIsHard(t *testing.T) {
	repo, _, cleanup := setupAccountsRepo(t)
	defer cleanup()

	ctx := context.Background()

	created, err := repo.Create(ctx, &accounts.Account{Username: "gone", Email: "gone@example.com"})
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, created.ID))

	_, err = repo.GetByID(ctx, created.ID)
	require.Error(t, err)
}

func TestAccountsRepositoryMarkTokenConsumed(t *testing.T) {
	repo, _, cleanup := setupAccountsRepo(t)
	defer cleanup()

	ctx := context.Background()

	ok, err := repo.MarkTokenConsumed(ctx, "nonce-1")
	require.NoError(t, err)
	assert.True(t, ok, "first redemption wins")

	ok, err = repo.MarkTokenConsumed(ctx, "nonce-1")
	require.NoError(t, err)
	assert.False(t, ok, "replay loses the insert race")

	consumed, err := repo.IsTokenConsumed(ctx, "nonce-1")
	require.NoError(t, err)
	assert.True(t, consumed)

	consumed, err = repo.IsTokenConsumed(ctx, "nonce-2")
	require.NoError(t, err)
	assert.False(t, consumed)
}

func TestAccountsRepositoryTrackLogins(t *testing.T) {
	repo, _, cleanup := setupAccountsRepo(t)
	defer cleanup()

	ctx := context.Background()

	created, err := repo.Create(ctx, &accounts.Account{Username: "marie", Email: "marie@example.com"})
	require.NoError(t, err)

	require.NoError(t, repo.TrackAttemptedLogin(ctx, created))
	require.NoError(t, repo.TrackAttemptedLogin(ctx, created))

	found, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, found.LoginAttempts)
	require.NotNil(t, found.LoginAttemptAt)

	require.NoError(t, repo.TrackSuccessfulLogin(ctx, found))

	found, err = repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, found.LoginAttempts)
	assert.Nil(t, found.LoginAttemptAt)
	assert.NotNil(t, found.LoggedInAt)
}

func TestRepositoryManagerRunInTx(t *testing.T) {
	_, bunDB, cleanup := setupAccountsRepo(t)
	defer cleanup()

	manager := accounts.NewRepositoryManager(bunDB)
	require.NoError(t, manager.Validate())

	ctx := context.Background()

	var id uuid.UUID
	err := manager.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		created, err := manager.Accounts().CreateTx(ctx, tx, &accounts.Account{
			Username: "txuser",
			Email:    "txuser@example.com",
		})
		if err != nil {
			return err
		}
		id = created.ID
		return nil
	})
	require.NoError(t, err)

	found, err := manager.Accounts().GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "txuser@example.com", found.Email)

	err = manager.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := manager.Accounts().CreateTx(ctx, tx, &accounts.Account{
			Username: "rollback",
			Email:    "rollback@example.com",
		})
		if err != nil {
			return err
		}
		return assert.AnError
	})
	require.Error(t, err)

	_, err = manager.Accounts().GetByIdentifier(ctx, "rollback@example.com")
	require.Error(t, err, "the failed transaction rolled the insert back")
}
