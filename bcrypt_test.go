package accounts_test

import (
	"testing"

	accounts "github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPasswordRoundTrip(t *testing.T) {
	hash, err := accounts.HashPassword("s3cret password")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret password", hash)

	require.NoError(t, accounts.ComparePasswordAndHash("s3cret password", hash))
	assert.ErrorIs(t,
		accounts.ComparePasswordAndHash("wrong", hash),
		accounts.ErrMismatchedHashAndPassword,
	)
}

func TestHashPasswordRejectsEmptyString(t *testing.T) {
	_, err := accounts.HashPassword("")
	assert.ErrorIs(t, err, accounts.ErrNoEmptyString)
}

func TestCompareDummyPasswordAlwaysFails(t *testing.T) {
	assert.ErrorIs(t, accounts.CompareDummyPassword("anything"), accounts.ErrMismatchedHashAndPassword)
	assert.ErrorIs(t, accounts.CompareDummyPassword(""), accounts.ErrMismatchedHashAndPassword)
}

func TestRandomPasswordHashIsUsable(t *testing.T) {
	h := accounts.RandomPasswordHash()
	require.NotEmpty(t, h)
	assert.ErrorIs(t, accounts.ComparePasswordAndHash("guess", h), accounts.ErrMismatchedHashAndPassword)
}
