package accounts

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// TokenCodec mints and verifies the signed, typed, time-bound tokens used
// across the engine. Signing uses HS256 with the first configured key; every
// configured key is accepted during verification so rotations have a grace
// window.
type TokenCodec struct {
	signingKeys [][]byte
	issuer      string
	audience    jwt.ClaimStrings
	cfg         Config
	now         func() time.Time
	logger      Logger
}

// CodecOption customizes TokenCodec construction.
type CodecOption func(*TokenCodec)

// WithCodecClock injects a custom clock (useful for tests).
func WithCodecClock(clock func() time.Time) CodecOption {
	return func(tc *TokenCodec) {
		if clock != nil {
			tc.now = clock
		}
	}
}

// WithCodecLogger overrides the logger.
func WithCodecLogger(logger Logger) CodecOption {
	return func(tc *TokenCodec) {
		if logger != nil {
			tc.logger = logger
		}
	}
}

// NewTokenCodec creates a codec from the engine configuration.
func NewTokenCodec(cfg Config, opts ...CodecOption) *TokenCodec {
	keys := make([][]byte, 0, len(cfg.GetSigningKeys()))
	for _, k := range cfg.GetSigningKeys() {
		if k != "" {
			keys = append(keys, []byte(k))
		}
	}

	var aud jwt.ClaimStrings
	if len(cfg.GetAudience()) > 0 {
		aud = make(jwt.ClaimStrings, len(cfg.GetAudience()))
		copy(aud, cfg.GetAudience())
	}

	tc := &TokenCodec{
		signingKeys: keys,
		issuer:      cfg.GetIssuer(),
		audience:    aud,
		cfg:         cfg,
		now:         time.Now,
		logger:      defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(tc)
		}
	}

	return tc
}

// MintOptions controls how Mint issues a token.
type MintOptions struct {
	// TTL overrides the per-purpose TTL from configuration.
	TTL time.Duration
	// Fingerprint binds the token to mutable account state at mint time.
	Fingerprint string
	// Extra sets the extension payload.
	Extra map[string]any
	// IssuedAt overrides the issuance time. Zero uses the codec clock.
	IssuedAt time.Time
}

// Mint issues a signed token for the given subject and purpose.
func (tc *TokenCodec) Mint(subject uuid.UUID, purpose TokenPurpose, opts MintOptions) (string, time.Time, error) {
	if len(tc.signingKeys) == 0 {
		return "", time.Time{}, errors.New("token codec has no signing keys", errors.CategoryInternal)
	}
	if !purpose.IsValid() {
		return "", time.Time{}, errors.New("unknown token purpose", errors.CategoryBadInput).
			WithMetadata(map[string]any{"purpose": purpose})
	}

	ttl := opts.TTL
	if ttl == 0 {
		ttl = tc.cfg.GetPurposeTTL(purpose)
	}
	if ttl <= 0 {
		return "", time.Time{}, errors.New("token TTL must be positive", errors.CategoryBadInput).
			WithMetadata(map[string]any{"purpose": purpose})
	}

	issuedAt := opts.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = tc.now()
	}
	expiresAt := issuedAt.Add(ttl)

	claims := &CredentialClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tc.issuer,
			Subject:   subject.String(),
			Audience:  tc.audience,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		TokenPurpose: purpose,
		Fingerprint:  opts.Fingerprint,
	}

	if len(opts.Extra) > 0 {
		claims.Extra = make(map[string]any, len(opts.Extra))
		for k, v := range opts.Extra {
			claims.Extra[k] = v
		}
	}

	ensureTokenID(&claims.RegisteredClaims)

	token, err := tc.SignClaims(claims)
	if err != nil {
		return "", time.Time{}, err
	}

	return token, expiresAt, nil
}

// SignClaims signs arbitrary credential claims using the active signing key.
func (tc *TokenCodec) SignClaims(claims *CredentialClaims) (string, error) {
	if claims == nil {
		return "", errors.New("claims must not be nil", errors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(tc.signingKeys[0])
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign token")
	}

	return signedString, nil
}

// Verify parses tokenString, checks signature, expiry, and purpose, and
// returns the structured claims. Failures are distinct: ErrTokenExpired,
// ErrTokenPurposeMismatch, and ErrTokenMalformed for structural or
// cryptographic problems.
func (tc *TokenCodec) Verify(tokenString string, expected TokenPurpose) (*CredentialClaims, error) {
	parserOptions := make([]jwt.ParserOption, 0, 2)
	if tc.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(tc.issuer))
	}
	if len(tc.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(tc.audience...))
	}
	parserOptions = append(parserOptions, jwt.WithTimeFunc(tc.now))

	var lastErr error
	for _, key := range tc.signingKeys {
		signingKey := key
		token, err := jwt.ParseWithClaims(tokenString, &CredentialClaims{}, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				tc.logger.Error("token codec encountered unexpected signing method", "alg", t.Header["alg"])
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return signingKey, nil
		}, parserOptions...)

		if err != nil {
			// A prior key in the rotation window may still verify.
			if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
				lastErr = err
				continue
			}
			if errors.Is(err, jwt.ErrTokenExpired) {
				return nil, ErrTokenExpired
			}
			return nil, errors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
				WithTextCode(ErrTokenMalformed.TextCode)
		}

		claims, ok := token.Claims.(*CredentialClaims)
		if !ok || !token.Valid {
			tc.logger.Error("token codec could not decode claims")
			return nil, ErrTokenMalformed
		}

		if claims.Purpose() != expected {
			return nil, ErrTokenPurposeMismatch.WithMetadata(map[string]any{
				"expected": expected,
				"purpose":  claims.Purpose(),
			})
		}

		return claims, nil
	}

	if lastErr != nil {
		return nil, errors.Wrap(lastErr, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
			WithTextCode(ErrTokenMalformed.TextCode)
	}

	return nil, ErrTokenMalformed
}

// CheckFingerprint re-derives the expected state fingerprint for the claims'
// purpose and compares it against the one embedded at mint time. Divergence
// means the bound state changed: refresh tokens report ErrTokenRevoked,
// everything else ErrTokenStateChanged.
func (tc *TokenCodec) CheckFingerprint(claims *CredentialClaims, account *Account) error {
	if claims == nil {
		return ErrTokenMalformed
	}

	expected := FingerprintForPurpose(account, claims.Purpose())
	if expected == "" && claims.Fingerprint == "" {
		return nil
	}

	if claims.Fingerprint == expected {
		return nil
	}

	if claims.Purpose() == PurposeRefresh {
		return ErrTokenRevoked
	}

	return ErrTokenStateChanged
}
