package accounts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Identity holds the attributes of an authenticated identity.
type Identity interface {
	ID() string
	Username() string
	Email() string
	Status() AccountStatus
}

// Config holds the immutable engine configuration. It is loaded once at
// startup and passed explicitly into each constructor.
type Config interface {
	// GetSigningKeys returns the signing keys in rotation order. The first
	// key signs new tokens; every key is accepted during verification so
	// tokens minted under a prior key survive a rotation grace window.
	GetSigningKeys() []string
	GetIssuer() string
	GetAudience() []string

	GetAccessTokenTTL() time.Duration
	GetRefreshTokenTTL() time.Duration
	// GetPurposeTTL returns the TTL for single-purpose credential tokens.
	GetPurposeTTL(purpose TokenPurpose) time.Duration

	GetAllowDeleteAccount() bool
	GetAllowLoginNotVerified() bool
	GetRestoreArchivedOnLogin() bool
	GetPermanentDelete() bool

	GetMaxLoginAttempts() int
	GetLoginCooldownPeriod() string
}

// CredentialStore is the contract the persistence collaborator must satisfy.
// All operations are atomic at single-account granularity; the engine never
// assumes cross-account transactions. Absence is reported via a not-found
// error (errors.IsNotFound), never as a fault.
type CredentialStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	// GetByIdentifier resolves an account by email or username,
	// case-insensitively.
	GetByIdentifier(ctx context.Context, identifier string) (*Account, error)
	Create(ctx context.Context, account *Account) (*Account, error)
	Save(ctx context.Context, account *Account) (*Account, error)
	// Delete removes an account record permanently.
	Delete(ctx context.Context, id uuid.UUID) error

	// MarkTokenConsumed records a token nonce as spent. It must be an
	// atomic check-and-set: exactly one of two concurrent calls for the
	// same nonce returns true.
	MarkTokenConsumed(ctx context.Context, nonce string) (bool, error)
	IsTokenConsumed(ctx context.Context, nonce string) (bool, error)

	TrackAttemptedLogin(ctx context.Context, account *Account) error
	TrackSuccessfulLogin(ctx context.Context, account *Account) error
}

// TokenDelivery hands minted tokens to the (external) delivery collaborator.
// Delivery failures are logged by callers, never surfaced, so a delivery
// error cannot leak whether an account exists.
type TokenDelivery interface {
	Deliver(ctx context.Context, recipient string, purpose TokenPurpose, token string) error
}

// TokenDeliveryFunc adapts a function to the TokenDelivery interface.
type TokenDeliveryFunc func(ctx context.Context, recipient string, purpose TokenPurpose, token string) error

// Deliver implements TokenDelivery.
func (f TokenDeliveryFunc) Deliver(ctx context.Context, recipient string, purpose TokenPurpose, token string) error {
	if f == nil {
		return nil
	}
	return f(ctx, recipient, purpose, token)
}

type noopTokenDelivery struct{}

func (noopTokenDelivery) Deliver(context.Context, string, TokenPurpose, string) error {
	return nil
}

func normalizeTokenDelivery(d TokenDelivery) TokenDelivery {
	if d == nil {
		return noopTokenDelivery{}
	}
	return d
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] ACCOUNTS "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] ACCOUNTS "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] ACCOUNTS "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] ACCOUNTS "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
