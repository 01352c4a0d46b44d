package accounts

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenPurpose names the single operation a credential token authorizes.
type TokenPurpose string

const (
	PurposeVerifyPrimary   TokenPurpose = "verify_primary"
	PurposeVerifySecondary TokenPurpose = "verify_secondary"
	PurposePasswordReset   TokenPurpose = "password_reset"
	PurposePasswordSet     TokenPurpose = "password_set"
	PurposeArchiveUndo     TokenPurpose = "archive_undo"
	PurposeRefresh         TokenPurpose = "refresh"
	PurposeAccess          TokenPurpose = "access"
)

// IsValid checks if the purpose is one of the predefined purposes.
func (p TokenPurpose) IsValid() bool {
	switch p {
	case PurposeVerifyPrimary, PurposeVerifySecondary, PurposePasswordReset,
		PurposePasswordSet, PurposeArchiveUndo, PurposeRefresh, PurposeAccess:
		return true
	default:
		return false
	}
}

// OneShot reports whether redeeming a token of this purpose must consume
// its nonce. Access and refresh tokens are reusable until expiry or
// revocation; everything else is single-use.
func (p TokenPurpose) OneShot() bool {
	switch p {
	case PurposeAccess, PurposeRefresh:
		return false
	default:
		return true
	}
}

// CredentialClaims is the claim set carried by every token the engine mints.
type CredentialClaims struct {
	jwt.RegisteredClaims
	TokenPurpose TokenPurpose   `json:"purpose,omitempty"`
	Fingerprint  string         `json:"fp,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// Purpose returns the purpose claim.
func (c *CredentialClaims) Purpose() TokenPurpose {
	return c.TokenPurpose
}

// Nonce returns the unique token identifier used for one-time consumption
// tracking.
func (c *CredentialClaims) Nonce() string {
	return c.RegisteredClaims.ID
}

// SubjectID parses the subject claim as the account id.
func (c *CredentialClaims) SubjectID() (uuid.UUID, error) {
	return uuid.Parse(c.RegisteredClaims.Subject)
}

// Expires returns the expiration time.
func (c *CredentialClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAtTime returns the issued at time.
func (c *CredentialClaims) IssuedAtTime() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

// ExtraString returns a string claim from the extension payload.
func (c *CredentialClaims) ExtraString(key string) string {
	if c.Extra == nil {
		return ""
	}
	if v, ok := c.Extra[key].(string); ok {
		return v
	}
	return ""
}

// ensureTokenID assigns a random jti when the caller did not provide one.
func ensureTokenID(claims *jwt.RegisteredClaims) {
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
}
