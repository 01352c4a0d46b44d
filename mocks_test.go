package accounts_test

import (
	"context"
	"strings"
	"sync"
	"time"

	accounts "github.com/goliatone/go-accounts"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-featuregate/gate"
	"github.com/google/uuid"
)

// memoryStore is an in-memory CredentialStore. Reads and writes copy the
// record so tests observe persisted state, not shared pointers.
type memoryStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*accounts.Account
	consumed map[string]bool

	saveErr   error
	deleteErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		accounts: map[uuid.UUID]*accounts.Account{},
		consumed: map[string]bool{},
	}
}

func notFoundErr() error {
	return errors.New("account not found", errors.CategoryNotFound).
		WithCode(errors.CodeNotFound)
}

func copyAccount(a *accounts.Account) *accounts.Account {
	if a == nil {
		return nil
	}
	clone := *a
	return &clone
}

func (m *memoryStore) seed(a *accounts.Account) *accounts.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	m.accounts[a.ID] = copyAccount(a)
	return a
}

func (m *memoryStore) stored(id uuid.UUID) *accounts.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyAccount(m.accounts[id])
}

func (m *memoryStore) GetByID(ctx context.Context, id uuid.UUID) (*accounts.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[id]; ok {
		return copyAccount(a), nil
	}
	return nil, notFoundErr()
}

func (m *memoryStore) GetByIdentifier(ctx context.Context, identifier string) (*accounts.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	needle := strings.ToLower(strings.TrimSpace(identifier))
	for _, a := range m.accounts {
		if strings.ToLower(a.Email) == needle || strings.ToLower(a.Username) == needle {
			return copyAccount(a), nil
		}
	}
	return nil, notFoundErr()
}

func (m *memoryStore) Create(ctx context.Context, account *accounts.Account) (*accounts.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if strings.EqualFold(a.Email, account.Email) || strings.EqualFold(a.Username, account.Username) {
			return nil, accounts.ErrIdentifierTaken
		}
	}
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	m.accounts[account.ID] = copyAccount(account)
	return copyAccount(account), nil
}

func (m *memoryStore) Save(ctx context.Context, account *accounts.Account) (*accounts.Account, error) {
	if m.saveErr != nil {
		return nil, m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[account.ID]; !ok {
		return nil, notFoundErr()
	}
	m.accounts[account.ID] = copyAccount(account)
	return copyAccount(account), nil
}

func (m *memoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.accounts, id)
	return nil
}

func (m *memoryStore) MarkTokenConsumed(ctx context.Context, nonce string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.consumed[nonce] {
		return false, nil
	}
	m.consumed[nonce] = true
	return true, nil
}

func (m *memoryStore) IsTokenConsumed(ctx context.Context, nonce string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consumed[nonce], nil
}

func (m *memoryStore) TrackAttemptedLogin(ctx context.Context, account *accounts.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.accounts[account.ID]
	if !ok {
		return notFoundErr()
	}
	now := time.Now()
	stored.LoginAttempts++
	stored.LoginAttemptAt = &now
	account.LoginAttempts = stored.LoginAttempts
	account.LoginAttemptAt = &now
	return nil
}

func (m *memoryStore) TrackSuccessfulLogin(ctx context.Context, account *accounts.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.accounts[account.ID]
	if !ok {
		return notFoundErr()
	}
	now := time.Now()
	stored.LoggedInAt = &now
	stored.LoginAttempts = 0
	stored.LoginAttemptAt = nil
	account.LoggedInAt = &now
	account.LoginAttempts = 0
	account.LoginAttemptAt = nil
	return nil
}

var _ accounts.CredentialStore = (*memoryStore)(nil)

// stubFeatureGate records lookups and answers from a fixed map. Unlisted
// keys are enabled.
type stubFeatureGate struct {
	enabled map[string]bool
	calls   []string
	err     error
}

func (s *stubFeatureGate) Enabled(ctx context.Context, key string, opts ...gate.ResolveOption) (bool, error) {
	s.calls = append(s.calls, key)
	if s.err != nil {
		return false, s.err
	}
	if s.enabled == nil {
		return true, nil
	}
	enabled, ok := s.enabled[key]
	if !ok {
		return true, nil
	}
	return enabled, nil
}

// captureDelivery records every token handed to the delivery collaborator.
type captureDelivery struct {
	mu        sync.Mutex
	delivered []deliveredToken
	err       error
}

type deliveredToken struct {
	Recipient string
	Purpose   accounts.TokenPurpose
	Token     string
}

func (c *captureDelivery) Deliver(ctx context.Context, recipient string, purpose accounts.TokenPurpose, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.delivered = append(c.delivered, deliveredToken{
		Recipient: recipient,
		Purpose:   purpose,
		Token:     token,
	})
	return nil
}

func (c *captureDelivery) last() (deliveredToken, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.delivered) == 0 {
		return deliveredToken{}, false
	}
	return c.delivered[len(c.delivered)-1], true
}

// captureSink records activity events.
type captureSink struct {
	mu     sync.Mutex
	events []accounts.ActivityEvent
}

func (c *captureSink) Record(ctx context.Context, event accounts.ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captureSink) types() []accounts.ActivityEventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]accounts.ActivityEventType, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.EventType)
	}
	return out
}

func testConfig() *accounts.SimpleConfig {
	cfg := accounts.DefaultConfig("test-signing-key")
	cfg.Issuer = "go-accounts-test"
	return cfg
}

func mustHash(password string) string {
	h, err := accounts.HashPassword(password)
	if err != nil {
		panic(err)
	}
	return h
}

func seedVerifiedAccount(store *memoryStore, email, password string) *accounts.Account {
	return store.seed(&accounts.Account{
		ID:            uuid.New(),
		Email:         email,
		Username:      email,
		PasswordHash:  mustHash(password),
		Status:        accounts.AccountStatusVerified,
		EmailVerified: true,
	})
}
