package accounts

import (
	"context"

	"github.com/goliatone/go-errors"
)

// AccountProvider verifies credentials against the store. It owns the parts
// of login that must not leak account existence: unknown identifiers burn a
// dummy hash comparison and surface the same error as a wrong password.
type AccountProvider struct {
	store  CredentialStore
	cfg    Config
	logger Logger
}

// NewAccountProvider will create a new AccountProvider.
func NewAccountProvider(store CredentialStore, cfg Config) *AccountProvider {
	return &AccountProvider{
		store:  store,
		cfg:    cfg,
		logger: defLogger{},
	}
}

func (p *AccountProvider) WithLogger(l Logger) *AccountProvider {
	if l != nil {
		p.logger = l
	}
	return p
}

// VerifyCredentials resolves the identifier and compares the password.
// Credential correctness is reported before any status policy: a wrong
// password on an unverified account still yields ErrMismatchedHashAndPassword.
// Only an account with no usable password at all short-circuits to
// ErrNotVerified, because there is nothing to verify against.
func (p *AccountProvider) VerifyCredentials(ctx context.Context, identifier, password string) (*Account, error) {
	account, err := p.store.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, CompareDummyPassword(password)
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to retrieve account during verification")
	}

	account.EnsureStatus()

	// Deleted accounts are indistinguishable from missing ones.
	if account.IsDeleted() {
		return nil, CompareDummyPassword(password)
	}

	if !account.HasUsablePassword() {
		if account.Status == AccountStatusUnverified {
			return nil, ErrNotVerified
		}
		return nil, CompareDummyPassword(password)
	}

	if account.LoginAttemptAt != nil {
		expired, err := IsOutsideThresholdPeriod(*account.LoginAttemptAt, p.cfg.GetLoginCooldownPeriod())
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to calculate login attempt cooldown")
		}

		if expired {
			account.LoginAttempts = 0
		}
	}

	// too many attempts in the window, cool off
	if account.LoginAttempts > p.cfg.GetMaxLoginAttempts() {
		return nil, ErrTooManyLoginAttempts
	}

	if err := ComparePasswordAndHash(password, account.PasswordHash); err != nil {
		if err2 := p.store.TrackAttemptedLogin(ctx, account); err2 != nil {
			return nil, errors.Wrap(err2, errors.CategoryInternal, "failed to track login attempt")
		}

		return nil, ErrMismatchedHashAndPassword
	}

	if err := p.store.TrackSuccessfulLogin(ctx, account); err != nil {
		p.logger.Error("failed to track successful login", "error", err)
	}

	return account, nil
}

// FindByIdentifier resolves an account without checking credentials.
func (p *AccountProvider) FindByIdentifier(ctx context.Context, identifier string) (*Account, error) {
	account, err := p.store.GetByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}

	account.EnsureStatus()
	return account, nil
}
