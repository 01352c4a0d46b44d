package accounts_test

import (
	"context"
	"testing"

	accounts "github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeleteAccountHandlerSoftDelete(t *testing.T) {
	store := newMemoryStore()
	cfg := testConfig()
	cfg.AllowDeleteAccount = true
	sm := accounts.NewAccountStateMachine(store)
	account := seedVerifiedAccount(store, "marie@example.com", "correct horse battery")
	sink := &captureSink{}

	handler := accounts.NewDeleteAccountHandler(store, sm, cfg).WithActivitySink(sink)
	ctx := accounts.WithContext(context.Background(), account)

	result, err := handler.Execute(ctx, accounts.DeleteAccountMessage{Password: "correct horse battery"})
	require.NoError(t, err)
	require.True(t, result.Success, "errors: %v", result.Errors)

	stored := store.stored(account.ID)
	require.NotNil(t, stored, "soft delete keeps the record")
	assert.Equal(t, accounts.AccountStatusDeleted, stored.Status)
	assert.NotNil(t, stored.DeletedAt)
	assert.Contains(t, sink.types(), accounts.ActivityEventDeleted)
}

func TestDeleteAccountHandlerPermanentDelete(t *testing.T) {
	store := newMemoryStore()
	cfg := testConfig()
	cfg.AllowDeleteAccount = true
	cfg.PermanentDelete = true
	sm := accounts.NewAccountStateMachine(store)
	account := seedVerifiedAccount(store, "marie@example.com", "correct horse battery")

	handler := accounts.NewDeleteAccountHandler(store, sm, cfg)
	ctx := accounts.WithContext(context.Background(), account)

	result, err := handler.Execute(ctx, accounts.DeleteAccountMessage{Password: "correct horse battery"})
	require.NoError(t, err)
	require.True(t, result.Success, "errors: %v", result.Errors)

	_, err = store.GetByID(context.Background(), account.ID)
	require.Error(t, err, "permanent delete removes the record entirely")
}

func TestDeleteAccountHandlerDisabledByConfig(t *testing.T) {
	store := newMemoryStore()
	cfg := testConfig()
	cfg.AllowDeleteAccount = false
	sm := accounts.NewAccountStateMachine(store)
	account := seedVerifiedAccount(store, "marie@example.com", "correct horse battery")

	handler := accounts.NewDeleteAccountHandler(store, sm, cfg)
	ctx := accounts.WithContext(context.Background(), account)

	result, err := handler.Execute(ctx, accounts.DeleteAccountMessage{Password: "correct horse battery"})
	require.NoError(t, err)
	require.False(t, result.Success)
	assert.Contains(t, result.Errors, accounts.NonFieldErrors)

	stored := store.stored(account.ID)
	assert.Equal(t, accounts.AccountStatusVerified, stored.Status)
}

func TestDeleteAccountHandlerRequiresVerifiedAccount(t *testing.T) {
	store := newMemoryStore()
	cfg := testConfig()
	cfg.AllowDeleteAccount = true
	sm := accounts.NewAccountStateMachine(store)
	account := seedUnverifiedAccount(store, "pending@example.com")

	handler := accounts.NewDeleteAccountHandler(store, sm, cfg)
	ctx := accounts.WithContext(context.Background(), account)

	result, err := handler.Execute(ctx, accounts.DeleteAccountMessage{Password: "registration password"})
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Contains(t, result.Errors, accounts.NonFieldErrors)
	assert.Contains(t, result.Errors[accounts.NonFieldErrors][0], "not verified")

	stored := store.stored(account.ID)
	require.NotNil(t, stored, "a rejected deletion leaves the account in place")
	assert.Equal(t, accounts.AccountStatusUnverified, stored.Status)
	assert.Nil(t, stored.DeletedAt)
}

func TestDeleteAccountHandlerGateDenied(t *testing.T) {
	store := newMemoryStore()
	cfg := testConfig()
	cfg.AllowDeleteAccount = true
	sm := accounts.NewAccountStateMachine(store)
	account := seedVerifiedAccount(store, "marie@example.com", "correct horse battery")
	gate := &stubFeatureGate{enabled: map[string]bool{
		accounts.FeatureAccountsDelete: false,
	}}

	handler := accounts.NewDeleteAccountHandler(store, sm, cfg).WithFeatureGate(gate)
	ctx := accounts.WithContext(context.Background(), account)

	result, err := handler.Execute(ctx, accounts.DeleteAccountMessage{Password: "correct horse battery"})
	require.NoError(t, err)
	require.False(t, result.Success)
	assert.Contains(t, result.Errors, accounts.NonFieldErrors)
	assert.Contains(t, gate.calls, accounts.FeatureAccountsDelete)
}

func TestDeleteAccountHandlerChecksPasswordBeforePolicy(t *testing.T) {
	store := newMemoryStore()
	cfg := testConfig()
	cfg.AllowDeleteAccount = false
	sm := accounts.NewAccountStateMachine(store)
	account := seedVerifiedAccount(store, "marie@example.com", "correct horse battery")

	handler := accounts.NewDeleteAccountHandler(store, sm, cfg)
	ctx := accounts.WithContext(context.Background(), account)

	result, err := handler.Execute(ctx, accounts.DeleteAccountMessage{Password: "wrong"})
	require.NoError(t, err)
	require.False(t, result.Success)
	assert.Contains(t, result.Errors, "password",
		"a wrong password reports as a password error even when deletion is disabled")
}

func TestDeleteAccountHandlerRequiresAuthentication(t *testing.T) {
	store := newMemoryStore()
	cfg := testConfig()
	cfg.AllowDeleteAccount = true
	sm := accounts.NewAccountStateMachine(store)

	handler := accounts.NewDeleteAccountHandler(store, sm, cfg)

	result, err := handler.Execute(context.Background(), accounts.DeleteAccountMessage{Password: "whatever"})
	require.NoError(t, err)
	require.False(t, result.Success)
	assert.Contains(t, result.Errors, accounts.NonFieldErrors)
}

func TestDeleteAccountHandlerArchivedAccountCanDelete(t *testing.T) {
	store := newMemoryStore()
	cfg := testConfig()
	cfg.AllowDeleteAccount = true
	sm := accounts.NewAccountStateMachine(store)
	account := seedVerifiedAccount(store, "marie@example.com", "correct horse battery")

	_, err := sm.Transition(context.Background(), accounts.ActorRef{}, account, accounts.AccountStatusArchived)
	require.NoError(t, err)

	handler := accounts.NewDeleteAccountHandler(store, sm, cfg)
	ctx := accounts.WithContext(context.Background(), store.stored(account.ID))

	result, err := handler.Execute(ctx, accounts.DeleteAccountMessage{Password: "correct horse battery"})
	require.NoError(t, err)
	require.True(t, result.Success, "errors: %v", result.Errors)

	stored := store.stored(account.ID)
	assert.Equal(t, accounts.AccountStatusDeleted, stored.Status)
}
