package accounts

import (
	"context"
	"database/sql"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Accounts is the bun-backed reference implementation of CredentialStore,
// with transaction-aware variants for callers that compose larger units
// of work.
type Accounts interface {
	CredentialStore

	GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Account, error)
	GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string) (*Account, error)
	CreateTx(ctx context.Context, tx bun.IDB, account *Account) (*Account, error)
	SaveTx(ctx context.Context, tx bun.IDB, account *Account) (*Account, error)
	MarkTokenConsumedTx(ctx context.Context, tx bun.IDB, nonce string) (bool, error)
}

type accountsRepo struct {
	repo repository.Repository[*Account]
	db   *bun.DB
}

var _ Accounts = (*accountsRepo)(nil)

func NewAccountsRepository(db *bun.DB) Accounts {
	repo := repository.NewRepository[*Account](db, repository.ModelHandlers[*Account]{
		NewRecord: func() *Account { return &Account{} },
		GetID: func(a *Account) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Account, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &accountsRepo{repo: repo, db: db}
}

func (a *accountsRepo) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	return a.GetByIDTx(ctx, a.db, id)
}

func (a *accountsRepo) GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Account, error) {
	record, err := a.repo.GetByIDTx(ctx, tx, id.String())
	if err != nil {
		return nil, translateRepoError(err, map[string]any{"id": id.String()})
	}
	return record, nil
}

func (a *accountsRepo) GetByIdentifier(ctx context.Context, identifier string) (*Account, error) {
	return a.GetByIdentifierTx(ctx, a.db, identifier)
}

func (a *accountsRepo) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string) (*Account, error) {
	for _, opt := range resolveAccountIdentifier(identifier) {
		record := &Account{}
		q := tx.NewSelect().Model(record)

		err := q.
			Where(fmt.Sprintf("LOWER(?TableAlias.%s) = LOWER(?)", opt.column), opt.value).
			Limit(1).
			Scan(ctx)

		if err != nil {
			if repository.IsRecordNotFound(err) || err == sql.ErrNoRows {
				continue
			}
			return nil, translateRepoError(err, nil)
		}

		return record, nil
	}

	return nil, errors.New("account not found", errors.CategoryNotFound).
		WithCode(errors.CodeNotFound).
		WithMetadata(map[string]any{"identifier": identifier})
}

func (a *accountsRepo) Create(ctx context.Context, account *Account) (*Account, error) {
	return a.CreateTx(ctx, a.db, account)
}

func (a *accountsRepo) CreateTx(ctx context.Context, tx bun.IDB, account *Account) (*Account, error) {
	prepareAccountDefaults(account)
	record, err := a.repo.CreateTx(ctx, tx, account)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrIdentifierTaken
		}
		return nil, translateRepoError(err, nil)
	}
	return record, nil
}

func (a *accountsRepo) Save(ctx context.Context, account *Account) (*Account, error) {
	return a.SaveTx(ctx, a.db, account)
}

func (a *accountsRepo) SaveTx(ctx context.Context, tx bun.IDB, account *Account) (*Account, error) {
	now := time.Now()
	account.UpdatedAt = &now
	record, err := a.repo.UpdateTx(ctx, tx, account, repository.UpdateByID(account.ID.String()))
	if err != nil {
		return nil, translateRepoError(err, map[string]any{"id": account.ID.String()})
	}
	return record, nil
}

func (a *accountsRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := a.db.NewDelete().
		Model((*Account)(nil)).
		Where("?TableAlias.id = ?", id).
		ForceDelete().
		Exec(ctx)
	if err != nil {
		return translateRepoError(err, map[string]any{"id": id.String()})
	}
	return nil
}

func (a *accountsRepo) MarkTokenConsumed(ctx context.Context, nonce string) (bool, error) {
	return a.MarkTokenConsumedTx(ctx, a.db, nonce)
}

// MarkTokenConsumedTx relies on the nonce primary key for the
// check-and-set: the losing insert of two concurrent calls conflicts
// and reports zero rows.
func (a *accountsRepo) MarkTokenConsumedTx(ctx context.Context, tx bun.IDB, nonce string) (bool, error) {
	now := time.Now()
	record := &ConsumedToken{
		Nonce:      nonce,
		ConsumedAt: &now,
	}

	res, err := tx.NewInsert().
		Model(record).
		On("CONFLICT (nonce) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, translateRepoError(err, map[string]any{"nonce": nonce})
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, translateRepoError(err, nil)
	}

	return rows > 0, nil
}

func (a *accountsRepo) IsTokenConsumed(ctx context.Context, nonce string) (bool, error) {
	exists, err := a.db.NewSelect().
		Model((*ConsumedToken)(nil)).
		Where("?TableAlias.nonce = ?", nonce).
		Exists(ctx)
	if err != nil {
		return false, translateRepoError(err, map[string]any{"nonce": nonce})
	}
	return exists, nil
}

func (a *accountsRepo) TrackAttemptedLogin(ctx context.Context, account *Account) error {
	now := time.Now()
	_, err := a.db.NewRaw(`
		UPDATE "accounts" AS "acc"
		SET
			"login_attempts" = ?,
			"login_attempt_at" = ?
		WHERE
			("acc".id = ?)
			AND "acc"."deleted_at" IS NULL;
	`, account.LoginAttempts+1, now, account.ID).Exec(ctx)
	if err != nil {
		return translateRepoError(err, map[string]any{"id": account.ID.String()})
	}

	account.LoginAttempts++
	account.LoginAttemptAt = &now
	return nil
}

func (a *accountsRepo) TrackSuccessfulLogin(ctx context.Context, account *Account) error {
	// The ORM update path skips zero values, so it cannot reset the
	// attempt counters. Raw SQL it is.
	loggedInAt := time.Now()
	_, err := a.db.NewRaw(`
		UPDATE "accounts" AS "acc"
		SET
			"loggedin_at" = ?,
			"login_attempt_at" = NULL,
			"login_attempts" = 0
		WHERE
			("acc".id = ?)
			AND "acc"."deleted_at" IS NULL;
	`, loggedInAt, account.ID).Exec(ctx)
	if err != nil {
		return translateRepoError(err, map[string]any{"id": account.ID.String()})
	}

	account.LoggedInAt = &loggedInAt
	account.LoginAttempts = 0
	account.LoginAttemptAt = nil
	return nil
}

func prepareAccountDefaults(record *Account) {
	if record == nil {
		return
	}

	record.EnsureStatus()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	if record.CreatedAt == nil {
		now := time.Now()
		record.CreatedAt = &now
	}
}

type identifierOption struct {
	column string
	value  string
}

func resolveAccountIdentifier(identifier string) []identifierOption {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return nil
	}

	options := make([]identifierOption, 0, 3)

	if isUUID(trimmed) {
		options = append(options, identifierOption{
			column: "id",
			value:  trimmed,
		})
	}

	if isEmail(trimmed) {
		options = append(options, identifierOption{
			column: "email",
			value:  trimmed,
		})
	}

	options = append(options, identifierOption{
		column: "username",
		value:  trimmed,
	})

	return options
}

func isEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

func isUUID(identifier string) bool {
	_, err := uuid.Parse(identifier)
	return err == nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}

func translateRepoError(err error, metadata map[string]any) error {
	if repository.IsRecordNotFound(err) {
		e := errors.New("account not found", errors.CategoryNotFound).
			WithCode(errors.CodeNotFound)
		if metadata != nil {
			e = e.WithMetadata(metadata)
		}
		return e
	}
	return errors.Wrap(err, errors.CategoryInternal, "persistence failure")
}
