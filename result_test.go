package accounts_test

import (
	"context"
	"errors"
	"testing"

	accounts "github.com/goliatone/go-accounts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultFailure(t *testing.T) {
	result := accounts.Failure("email", accounts.ErrIdentifierTaken)
	assert.False(t, result.Success)
	assert.True(t, result.HasErrors())
	assert.Len(t, result.Errors["email"], 1)

	// empty field lands under the non-field bucket
	result = accounts.Failure("", accounts.ErrUnauthenticated)
	assert.Contains(t, result.Errors, accounts.NonFieldErrors)
}

func TestResultAddError(t *testing.T) {
	result := accounts.OK()
	assert.True(t, result.Success)
	assert.False(t, result.HasErrors())

	result.AddError("password1", "too short")
	result.AddError("password1", "too common")
	assert.False(t, result.Success)
	assert.Equal(t, []string{"too short", "too common"}, result.Errors["password1"])
}

func TestTextCode(t *testing.T) {
	assert.NotEmpty(t, accounts.TextCode(accounts.ErrTokenExpired))
	assert.Empty(t, accounts.TextCode(errors.New("plain infrastructure error")))
	assert.Empty(t, accounts.TextCode(nil))
}

func TestAccountContextRoundTrip(t *testing.T) {
	account := &accounts.Account{Email: "ctx@example.com"}
	ctx := accounts.WithContext(context.Background(), account)

	got, ok := accounts.FromContext(ctx)
	assert.True(t, ok)
	assert.Same(t, account, got)

	_, ok = accounts.FromContext(context.Background())
	assert.False(t, ok)
}

func TestClaimsContextRoundTrip(t *testing.T) {
	codec := accounts.NewTokenCodec(testConfig())
	subject := uuid.New()

	token, _, err := codec.Mint(subject, accounts.PurposeAccess, accounts.MintOptions{})
	require.NoError(t, err)
	claims, err := codec.Verify(token, accounts.PurposeAccess)
	require.NoError(t, err)

	ctx := accounts.WithClaimsContext(context.Background(), claims)

	got, ok := accounts.GetClaims(ctx)
	require.True(t, ok)
	assert.Same(t, claims, got)
	assert.Equal(t, accounts.PurposeAccess, got.Purpose())

	id, err := got.SubjectID()
	require.NoError(t, err)
	assert.Equal(t, subject, id)

	_, ok = accounts.GetClaims(context.Background())
	assert.False(t, ok)
}
