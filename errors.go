package accounts

import (
	"strings"

	"github.com/goliatone/go-errors"
)

// Text codes surfaced to transport bindings. These are stable identifiers;
// the human readable message lives on the error itself.
const (
	TextCodeUnauthenticated    = "UNAUTHENTICATED"
	TextCodeInvalidCreds       = "INVALID_PASSWORD"
	TextCodeNotVerified        = "NOT_VERIFIED"
	TextCodeAlreadyArchived    = "ALREADY_ARCHIVED"
	TextCodeNotAllowed         = "NOT_ALLOWED"
	TextCodeIdentifierTaken    = "IDENTIFIER_TAKEN"
	TextCodePasswordMismatch   = "PASSWORD_MISMATCH"
	TextCodeTokenExpired       = "EXPIRED_TOKEN"
	TextCodeTokenInvalid       = "INVALID_TOKEN"
	TextCodeTokenConsumed      = "ALREADY_CONSUMED"
	TextCodeTokenStateChanged  = "STATE_CHANGED"
	TextCodePurposeMismatch    = "PURPOSE_MISMATCH"
	TextCodeTokenRevoked       = "REVOKED"
	TextCodeTooManyAttempts    = "TOO_MANY_LOGIN_ATTEMPTS"
	TextCodeEmptyPassword      = "EMPTY_PASSWORD"
	TextCodePasswordAlreadySet = "PASSWORD_ALREADY_SET"
	TextCodeSecondaryRequired  = "SECONDARY_EMAIL_REQUIRED"
	TextCodeInvalidTransition  = "INVALID_ACCOUNT_STATE_TRANSITION"
	TextCodeTerminalState      = "TERMINAL_ACCOUNT_STATE"
)

// ErrIdentityNotFound is returned when no account matches an identifier.
var ErrIdentityNotFound = errors.New("identity not found", errors.CategoryNotFound).
	WithCode(errors.CodeNotFound)

// ErrUnauthenticated is returned when an operation requires a current
// identity and none is present in the request context.
var ErrUnauthenticated = errors.New("you are not authenticated", errors.CategoryAuth).
	WithTextCode(TextCodeUnauthenticated).
	WithCode(errors.CodeUnauthorized)

// ErrMismatchedHashAndPassword covers both a wrong password and an unknown
// identifier. The two cases must be indistinguishable to the caller.
var ErrMismatchedHashAndPassword = errors.New("the credentials provided are invalid", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(errors.CodeUnauthorized)

// ErrNotVerified is returned for operations that require a verified account.
var ErrNotVerified = errors.New("the account is not verified", errors.CategoryAuthz).
	WithTextCode(TextCodeNotVerified).
	WithCode(errors.CodeForbidden)

// ErrAlreadyArchived is returned when an archived account tries to
// authenticate and auto-restore is disabled.
var ErrAlreadyArchived = errors.New("the account is archived", errors.CategoryConflict).
	WithTextCode(TextCodeAlreadyArchived).
	WithCode(errors.CodeConflict)

// ErrIdentifierTaken is returned on registration uniqueness conflicts.
var ErrIdentifierTaken = errors.New("an account with this identifier already exists", errors.CategoryConflict).
	WithTextCode(TextCodeIdentifierTaken).
	WithCode(errors.CodeConflict)

// ErrPasswordMismatch is returned when the two password fields differ.
var ErrPasswordMismatch = errors.New("the two password fields do not match", errors.CategoryValidation).
	WithTextCode(TextCodePasswordMismatch).
	WithCode(errors.CodeBadRequest)

// ErrTokenExpired is returned when a credential token is past its TTL.
var ErrTokenExpired = errors.New("the token has expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrTokenMalformed covers structural and cryptographic token failures.
var ErrTokenMalformed = errors.New("the token is invalid", errors.CategoryAuth).
	WithTextCode(TextCodeTokenInvalid).
	WithCode(errors.CodeUnauthorized)

// ErrTokenPurposeMismatch is returned when a token is presented for an
// operation it was not minted for.
var ErrTokenPurposeMismatch = errors.New("the token was issued for a different purpose", errors.CategoryAuth).
	WithTextCode(TextCodePurposeMismatch).
	WithCode(errors.CodeUnauthorized)

// ErrTokenConsumed is returned on a second redemption of a one-shot token.
var ErrTokenConsumed = errors.New("the token has already been used", errors.CategoryConflict).
	WithTextCode(TextCodeTokenConsumed).
	WithCode(errors.CodeConflict)

// ErrTokenStateChanged is returned when the account state a token was bound
// to at mint time no longer matches.
var ErrTokenStateChanged = errors.New("the account state changed since the token was issued", errors.CategoryConflict).
	WithTextCode(TextCodeTokenStateChanged).
	WithCode(errors.CodeConflict)

// ErrTokenRevoked is returned for refresh tokens invalidated by a password
// rotation or a revoke-all.
var ErrTokenRevoked = errors.New("the refresh token has been revoked", errors.CategoryAuth).
	WithTextCode(TextCodeTokenRevoked).
	WithCode(errors.CodeUnauthorized)

// ErrTooManyLoginAttempts is returned while the login cooldown is active.
var ErrTooManyLoginAttempts = errors.New("too many login attempts, try again later", errors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyAttempts)

// ErrNoEmptyString rejects empty passwords before hashing.
var ErrNoEmptyString = errors.New("password must not be empty", errors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(errors.CodeBadRequest)

// ErrPasswordAlreadySet rejects a PASSWORD_SET token for an account that
// already has a usable credential.
var ErrPasswordAlreadySet = errors.New("a password has already been set for this account", errors.CategoryConflict).
	WithTextCode(TextCodePasswordAlreadySet).
	WithCode(errors.CodeConflict)

// ErrSecondaryEmailRequired is returned when swapping emails without a
// verified secondary email.
var ErrSecondaryEmailRequired = errors.New("a verified secondary email is required", errors.CategoryValidation).
	WithTextCode(TextCodeSecondaryRequired).
	WithCode(errors.CodeBadRequest)

// Policy errors raised when a feature gate disables a flow.
var (
	ErrSignupDisabled = errors.New("registration is disabled", errors.CategoryAuthz).
				WithTextCode(TextCodeNotAllowed).
				WithCode(errors.CodeForbidden)

	ErrPasswordResetDisabled = errors.New("password reset is disabled", errors.CategoryAuthz).
					WithTextCode(TextCodeNotAllowed).
					WithCode(errors.CodeForbidden)

	ErrDeleteAccountDisabled = errors.New("account deletion is disabled", errors.CategoryAuthz).
					WithTextCode(TextCodeNotAllowed).
					WithCode(errors.CodeForbidden)

	ErrSecondaryEmailDisabled = errors.New("secondary email management is disabled", errors.CategoryAuthz).
					WithTextCode(TextCodeNotAllowed).
					WithCode(errors.CodeForbidden)
)

// IsTokenExpiredError will check for expired tokens, including legacy
// string-matched errors from JWT middleware.
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTokenExpired) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for malformed token errors.
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTokenMalformed) {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}

// IsPolicyError reports whether the error comes from a disabled feature.
func IsPolicyError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == TextCodeNotAllowed
}
