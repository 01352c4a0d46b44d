package accounts_test

import (
	"testing"
	"time"

	accounts "github.com/goliatone/go-accounts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenCodecMintAndVerify(t *testing.T) {
	codec := accounts.NewTokenCodec(testConfig())
	subject := uuid.New()

	token, expiresAt, err := codec.Mint(subject, accounts.PurposeVerifyPrimary, accounts.MintOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(2*24*time.Hour), expiresAt, time.Minute)

	claims, err := codec.Verify(token, accounts.PurposeVerifyPrimary)
	require.NoError(t, err)

	id, err := claims.SubjectID()
	require.NoError(t, err)
	assert.Equal(t, subject, id)
	assert.Equal(t, accounts.PurposeVerifyPrimary, claims.Purpose())
	assert.NotEmpty(t, claims.Nonce(), "every minted token carries a nonce")
}

func TestTokenCodecVerifyPurposeMismatch(t *testing.T) {
	codec := accounts.NewTokenCodec(testConfig())

	token, _, err := codec.Mint(uuid.New(), accounts.PurposePasswordReset, accounts.MintOptions{})
	require.NoError(t, err)

	_, err = codec.Verify(token, accounts.PurposeVerifyPrimary)
	require.ErrorIs(t, err, accounts.ErrTokenPurposeMismatch)
}

func TestTokenCodecVerifyExpired(t *testing.T) {
	cfg := testConfig()

	past := time.Now().Add(-48 * time.Hour)
	minting := accounts.NewTokenCodec(cfg, accounts.WithCodecClock(func() time.Time { return past }))

	token, _, err := minting.Mint(uuid.New(), accounts.PurposePasswordReset, accounts.MintOptions{TTL: time.Hour})
	require.NoError(t, err)

	codec := accounts.NewTokenCodec(cfg)
	_, err = codec.Verify(token, accounts.PurposePasswordReset)
	require.ErrorIs(t, err, accounts.ErrTokenExpired)
	assert.True(t, accounts.IsTokenExpiredError(err))
}

func TestTokenCodecVerifyGarbage(t *testing.T) {
	codec := accounts.NewTokenCodec(testConfig())

	_, err := codec.Verify("not-a-token", accounts.PurposeAccess)
	require.Error(t, err)
	assert.True(t, accounts.IsMalformedError(err))
}

func TestTokenCodecRejectsForeignSignature(t *testing.T) {
	codec := accounts.NewTokenCodec(testConfig())

	otherCfg := testConfig()
	otherCfg.SigningKeys = []string{"a-completely-different-key"}
	other := accounts.NewTokenCodec(otherCfg)

	token, _, err := other.Mint(uuid.New(), accounts.PurposeAccess, accounts.MintOptions{})
	require.NoError(t, err)

	_, err = codec.Verify(token, accounts.PurposeAccess)
	require.Error(t, err)
	assert.Equal(t, accounts.TextCodeTokenInvalid, accounts.TextCode(err))
}

func TestTokenCodecKeyRotationGrace(t *testing.T) {
	oldCfg := testConfig()
	oldCfg.SigningKeys = []string{"old-key"}
	oldCodec := accounts.NewTokenCodec(oldCfg)

	token, _, err := oldCodec.Mint(uuid.New(), accounts.PurposeAccess, accounts.MintOptions{})
	require.NoError(t, err)

	rotatedCfg := testConfig()
	rotatedCfg.SigningKeys = []string{"new-key", "old-key"}
	rotated := accounts.NewTokenCodec(rotatedCfg)

	claims, err := rotated.Verify(token, accounts.PurposeAccess)
	require.NoError(t, err, "tokens signed by a previous key verify during the rotation window")
	assert.Equal(t, accounts.PurposeAccess, claims.Purpose())

	fresh, _, err := rotated.Mint(uuid.New(), accounts.PurposeAccess, accounts.MintOptions{})
	require.NoError(t, err)

	_, err = oldCodec.Verify(fresh, accounts.PurposeAccess)
	require.Error(t, err, "new signatures do not verify against the retired key alone")
}

func TestTokenCodecExtraPayloadRoundTrip(t *testing.T) {
	codec := accounts.NewTokenCodec(testConfig())

	token, _, err := codec.Mint(uuid.New(), accounts.PurposeVerifySecondary, accounts.MintOptions{
		Extra: map[string]any{"secondary_email": "alt@example.com"},
	})
	require.NoError(t, err)

	claims, err := codec.Verify(token, accounts.PurposeVerifySecondary)
	require.NoError(t, err)
	assert.Equal(t, "alt@example.com", claims.ExtraString("secondary_email"))
}

func TestCheckFingerprintDetectsPasswordRotation(t *testing.T) {
	codec := accounts.NewTokenCodec(testConfig())

	account := &accounts.Account{
		ID:           uuid.New(),
		PasswordHash: "hash-at-mint-time",
	}

	token, _, err := codec.Mint(account.ID, accounts.PurposePasswordReset, accounts.MintOptions{
		Fingerprint: accounts.PasswordFingerprint(account),
	})
	require.NoError(t, err)

	claims, err := codec.Verify(token, accounts.PurposePasswordReset)
	require.NoError(t, err)
	require.NoError(t, codec.CheckFingerprint(claims, account))

	account.PasswordHash = "rotated-hash"
	err = codec.CheckFingerprint(claims, account)
	require.ErrorIs(t, err, accounts.ErrTokenStateChanged)
}

func TestCheckFingerprintRefreshReportsRevoked(t *testing.T) {
	codec := accounts.NewTokenCodec(testConfig())

	account := &accounts.Account{
		ID:           uuid.New(),
		PasswordHash: "hash",
		RefreshEpoch: 0,
	}

	token, _, err := codec.Mint(account.ID, accounts.PurposeRefresh, accounts.MintOptions{
		Fingerprint: accounts.RefreshFingerprint(account),
	})
	require.NoError(t, err)

	claims, err := codec.Verify(token, accounts.PurposeRefresh)
	require.NoError(t, err)
	require.NoError(t, codec.CheckFingerprint(claims, account))

	account.RefreshEpoch++
	err = codec.CheckFingerprint(claims, account)
	require.ErrorIs(t, err, accounts.ErrTokenRevoked)
}

func TestTokenPurposeOneShot(t *testing.T) {
	oneShot := []accounts.TokenPurpose{
		accounts.PurposeVerifyPrimary,
		accounts.PurposeVerifySecondary,
		accounts.PurposePasswordReset,
		accounts.PurposePasswordSet,
		accounts.PurposeArchiveUndo,
	}
	for _, p := range oneShot {
		assert.True(t, p.OneShot(), "purpose %s should be one shot", p)
	}

	assert.False(t, accounts.PurposeAccess.OneShot())
	assert.False(t, accounts.PurposeRefresh.OneShot())
}
