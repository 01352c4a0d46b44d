package accounts

import "time"

// SimpleConfig is a plain-struct Config implementation. Load it once at
// startup and pass it into constructors; the engine never reads ambient
// global state.
type SimpleConfig struct {
	SigningKeys []string
	Issuer      string
	Audience    []string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	PurposeTTLs     map[TokenPurpose]time.Duration

	AllowDeleteAccount     bool
	AllowLoginNotVerified  bool
	RestoreArchivedOnLogin bool
	PermanentDelete        bool

	MaxLoginAttempts    int
	LoginCooldownPeriod string
}

// DefaultConfig returns a config with production-shaped TTLs. Signing keys
// must still be provided by the caller.
func DefaultConfig(signingKeys ...string) *SimpleConfig {
	return &SimpleConfig{
		SigningKeys:         signingKeys,
		AccessTokenTTL:      15 * time.Minute,
		RefreshTokenTTL:     7 * 24 * time.Hour,
		MaxLoginAttempts:    5,
		LoginCooldownPeriod: "24h",
		PurposeTTLs: map[TokenPurpose]time.Duration{
			PurposeVerifyPrimary:   2 * 24 * time.Hour,
			PurposeVerifySecondary: 2 * 24 * time.Hour,
			PurposePasswordReset:   time.Hour,
			PurposePasswordSet:     2 * 24 * time.Hour,
			PurposeArchiveUndo:     30 * 24 * time.Hour,
		},
	}
}

func (c *SimpleConfig) GetSigningKeys() []string { return c.SigningKeys }
func (c *SimpleConfig) GetIssuer() string        { return c.Issuer }
func (c *SimpleConfig) GetAudience() []string    { return c.Audience }

func (c *SimpleConfig) GetAccessTokenTTL() time.Duration {
	if c.AccessTokenTTL > 0 {
		return c.AccessTokenTTL
	}
	return 15 * time.Minute
}

func (c *SimpleConfig) GetRefreshTokenTTL() time.Duration {
	if c.RefreshTokenTTL > 0 {
		return c.RefreshTokenTTL
	}
	return 7 * 24 * time.Hour
}

// GetPurposeTTL returns the TTL for single-purpose tokens. Access and
// refresh purposes resolve to their dedicated TTLs so the codec has a
// single lookup path.
func (c *SimpleConfig) GetPurposeTTL(purpose TokenPurpose) time.Duration {
	switch purpose {
	case PurposeAccess:
		return c.GetAccessTokenTTL()
	case PurposeRefresh:
		return c.GetRefreshTokenTTL()
	}

	if ttl, ok := c.PurposeTTLs[purpose]; ok && ttl > 0 {
		return ttl
	}

	return 24 * time.Hour
}

func (c *SimpleConfig) GetAllowDeleteAccount() bool     { return c.AllowDeleteAccount }
func (c *SimpleConfig) GetAllowLoginNotVerified() bool  { return c.AllowLoginNotVerified }
func (c *SimpleConfig) GetRestoreArchivedOnLogin() bool { return c.RestoreArchivedOnLogin }
func (c *SimpleConfig) GetPermanentDelete() bool        { return c.PermanentDelete }

func (c *SimpleConfig) GetMaxLoginAttempts() int {
	if c.MaxLoginAttempts > 0 {
		return c.MaxLoginAttempts
	}
	return 5
}

func (c *SimpleConfig) GetLoginCooldownPeriod() string {
	if c.LoginCooldownPeriod != "" {
		return c.LoginCooldownPeriod
	}
	return "24h"
}

var _ Config = (*SimpleConfig)(nil)
