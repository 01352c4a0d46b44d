package accounts

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AccountStatus is the lifecycle status of an account.
type AccountStatus string

const (
	// AccountStatusUnverified is the status after registration, before the
	// primary email has been verified.
	AccountStatusUnverified AccountStatus = "unverified"
	// AccountStatusVerified is a fully usable account.
	AccountStatusVerified AccountStatus = "verified"
	// AccountStatusArchived excludes the account from authentication while
	// retaining the record.
	AccountStatusArchived AccountStatus = "archived"
	// AccountStatusDeleted is the absorbing terminal status used by soft
	// deletes. Hard deletes remove the record instead.
	AccountStatusDeleted AccountStatus = "deleted"
)

// Account is the identity unit managed by the engine.
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:acc"`

	ID           uuid.UUID     `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Username     string        `bun:"username,notnull,unique" json:"username,omitempty"`
	Email        string        `bun:"email,notnull,unique" json:"email,omitempty"`
	Phone        string        `bun:"phone_number" json:"phone_number,omitempty"`
	PasswordHash string        `bun:"password_hash" json:"password_hash,omitempty"`
	Status       AccountStatus `bun:"status" json:"status,omitempty"`

	EmailVerified          bool   `bun:"is_email_verified" json:"is_email_verified,omitempty"`
	SecondaryEmail         string `bun:"secondary_email,nullzero" json:"secondary_email,omitempty"`
	SecondaryEmailVerified bool   `bun:"is_secondary_email_verified" json:"is_secondary_email_verified,omitempty"`

	// RefreshEpoch invalidates outstanding refresh tokens when bumped;
	// refresh tokens embed a fingerprint derived from it.
	RefreshEpoch int `bun:"refresh_epoch" json:"refresh_epoch,omitempty"`

	LoginAttempts  int            `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt *time.Time     `bun:"login_attempt_at" json:"login_attempt_at,omitempty"`
	LoggedInAt     *time.Time     `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	Metadata       map[string]any `bun:"metadata" json:"metadata,omitempty"`

	ArchivedAt *time.Time `bun:"archived_at,nullzero" json:"archived_at,omitempty"`
	CreatedAt  *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt  *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt  *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// EnsureStatus backfills the zero value for records created before the
// status column existed.
func (a *Account) EnsureStatus() {
	if a.Status == "" {
		a.Status = AccountStatusUnverified
	}
}

// IsVerified reports whether the primary email has been verified.
func (a *Account) IsVerified() bool {
	a.EnsureStatus()
	return a.Status == AccountStatusVerified && a.EmailVerified
}

// IsArchived reports whether the account has been archived.
func (a *Account) IsArchived() bool {
	return a.Status == AccountStatusArchived
}

// IsDeleted reports whether the account has been soft deleted.
func (a *Account) IsDeleted() bool {
	return a.Status == AccountStatusDeleted || a.DeletedAt != nil
}

// HasUsablePassword reports whether the account can authenticate with a
// password at all. Accounts created through external flows may not have one
// until a PASSWORD_SET token is redeemed.
func (a *Account) HasUsablePassword() bool {
	return a.PasswordHash != ""
}

// AddMetadata will append information to the metadata attribute.
func (a *Account) AddMetadata(key string, val any) *Account {
	if a.Metadata == nil {
		a.Metadata = make(map[string]any)
	}
	a.Metadata[key] = val
	return a
}

// ConsumedToken records a spent single-purpose token nonce. The nonce is the
// primary key so concurrent redemptions collapse into one insert winner.
type ConsumedToken struct {
	bun.BaseModel `bun:"table:consumed_tokens,alias:ctk"`

	Nonce      string     `bun:"nonce,pk" json:"nonce,omitempty"`
	ConsumedAt *time.Time `bun:"consumed_at,nullzero,default:current_timestamp" json:"consumed_at,omitempty"`
}

// AccountIdentity adapts an Account into the Identity interface.
type AccountIdentity struct {
	account *Account
}

// NewIdentityFromAccount returns an Identity adapter for the given account.
func NewIdentityFromAccount(account *Account) Identity {
	if account == nil {
		return nil
	}
	return AccountIdentity{account: account}
}

// ID returns the account id as a string.
func (i AccountIdentity) ID() string {
	if i.account == nil {
		return ""
	}
	return i.account.ID.String()
}

// Username returns the account username.
func (i AccountIdentity) Username() string {
	if i.account == nil {
		return ""
	}
	return i.account.Username
}

// Email returns the primary email address.
func (i AccountIdentity) Email() string {
	if i.account == nil {
		return ""
	}
	return i.account.Email
}

// Status returns the lifecycle status.
func (i AccountIdentity) Status() AccountStatus {
	if i.account == nil {
		return ""
	}
	return i.account.Status
}

var _ Identity = AccountIdentity{}
