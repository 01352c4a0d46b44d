package accounts

import (
	"context"
)

var accountCtxKey = &contextKey{"account"}
var claimsCtxKey = &contextKey{"claims"}

type contextKey struct {
	name string
}

// WithContext sets the current Account in the given context. The transport
// binding resolves the bearer token and stores the account here; the
// orchestrators only ever read it back.
func WithContext(ctx context.Context, account *Account) context.Context {
	return context.WithValue(ctx, accountCtxKey, account)
}

// FromContext finds the current account from the context.
func FromContext(ctx context.Context) (*Account, bool) {
	raw, ok := ctx.Value(accountCtxKey).(*Account)
	return raw, ok
}

// WithClaimsContext sets the CredentialClaims in the given context.
func WithClaimsContext(ctx context.Context, claims *CredentialClaims) context.Context {
	return context.WithValue(ctx, claimsCtxKey, claims)
}

// GetClaims extracts the CredentialClaims from the context.
func GetClaims(ctx context.Context) (*CredentialClaims, bool) {
	raw, ok := ctx.Value(claimsCtxKey).(*CredentialClaims)
	return raw, ok
}

// requireAccount resolves the ambient identity or fails with
// ErrUnauthenticated before any other validation runs.
func requireAccount(ctx context.Context) (*Account, error) {
	account, ok := FromContext(ctx)
	if !ok || account == nil {
		return nil, ErrUnauthenticated
	}
	return account, nil
}
