package accounts

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// TokenPair is the session credential pair issued at login. Access is
// short-lived and stateless; Refresh is longer-lived and revocable.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// SessionManager mints token pairs at login, rotates access tokens on
// refresh, and revokes outstanding refresh tokens.
type SessionManager struct {
	provider     *AccountProvider
	store        CredentialStore
	codec        *TokenCodec
	stateMachine AccountStateMachine
	cfg          Config
	logger       Logger
	activitySink ActivitySink
}

// NewSessionManager returns a new SessionManager.
func NewSessionManager(store CredentialStore, cfg Config) *SessionManager {
	return &SessionManager{
		provider:     NewAccountProvider(store, cfg),
		store:        store,
		codec:        NewTokenCodec(cfg),
		stateMachine: NewAccountStateMachine(store),
		cfg:          cfg,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}
}

func (s *SessionManager) WithLogger(logger Logger) *SessionManager {
	if logger != nil {
		s.logger = logger
		s.provider = s.provider.WithLogger(logger)
	}
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *SessionManager) WithActivitySink(sink ActivitySink) *SessionManager {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// WithTokenCodec overrides the codec, e.g. to inject a test clock.
func (s *SessionManager) WithTokenCodec(codec *TokenCodec) *SessionManager {
	if codec != nil {
		s.codec = codec
	}
	return s
}

// WithStateMachine overrides the state machine used for archived-account
// auto-restore.
func (s *SessionManager) WithStateMachine(sm AccountStateMachine) *SessionManager {
	if sm != nil {
		s.stateMachine = sm
	}
	return s
}

// TokenCodec returns the codec used by this SessionManager.
func (s *SessionManager) TokenCodec() *TokenCodec {
	return s.codec
}

// Login verifies the credentials and the account status, then issues an
// Access/Refresh token pair. Credential failures are reported before status
// policy; unknown identifiers are indistinguishable from wrong passwords.
func (s *SessionManager) Login(ctx context.Context, identifier, password string) (*TokenPair, error) {
	account, err := s.provider.VerifyCredentials(ctx, identifier, password)
	if err != nil {
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"identifier": identifier,
			"error":      err.Error(),
		})
		return nil, err
	}

	if account, err = s.ensureLoginableStatus(ctx, account); err != nil {
		s.logger.Warn("Login blocked due to account status", "status", account.Status, "error", err)
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, s.actorFromAccount(account), account.ID.String(), map[string]any{
			"identifier": identifier,
			"error":      err.Error(),
			"status":     account.Status,
		})
		return nil, err
	}

	pair, err := s.IssuePair(ctx, account)
	if err != nil {
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, s.actorFromAccount(account), account.ID.String(), map[string]any{
			"identifier": identifier,
			"error":      err.Error(),
		})
		return nil, err
	}

	s.emitAuthEvent(ctx, ActivityEventLoginSuccess, s.actorFromAccount(account), account.ID.String(), map[string]any{
		"identifier": identifier,
	})

	return pair, nil
}

// IssuePair mints a fresh Access/Refresh pair for an account that already
// passed credential and status checks.
func (s *SessionManager) IssuePair(ctx context.Context, account *Account) (*TokenPair, error) {
	access, accessExp, err := s.codec.Mint(account.ID, PurposeAccess, MintOptions{})
	if err != nil {
		return nil, err
	}

	refresh, refreshExp, err := s.codec.Mint(account.ID, PurposeRefresh, MintOptions{
		Fingerprint: RefreshFingerprint(account),
	})
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Refresh validates a refresh token and mints a new access token. Revoking
// never reaches back into access tokens already issued; the exposure window
// is bounded by the access TTL.
func (s *SessionManager) Refresh(ctx context.Context, refreshToken string) (string, time.Time, error) {
	claims, err := s.codec.Verify(refreshToken, PurposeRefresh)
	if err != nil {
		return "", time.Time{}, err
	}

	subject, err := claims.SubjectID()
	if err != nil {
		return "", time.Time{}, ErrTokenMalformed
	}

	account, err := s.store.GetByID(ctx, subject)
	if err != nil {
		if errors.IsNotFound(err) {
			return "", time.Time{}, ErrTokenRevoked
		}
		return "", time.Time{}, errors.Wrap(err, errors.CategoryInternal, "failed to load account during refresh")
	}

	account.EnsureStatus()
	if account.IsDeleted() || account.IsArchived() {
		return "", time.Time{}, ErrTokenRevoked
	}

	if err := s.codec.CheckFingerprint(claims, account); err != nil {
		return "", time.Time{}, err
	}

	access, accessExp, err := s.codec.Mint(account.ID, PurposeAccess, MintOptions{})
	if err != nil {
		return "", time.Time{}, err
	}

	return access, accessExp, nil
}

// RevokeAll invalidates every outstanding refresh token for the account by
// bumping its refresh epoch. Access tokens already issued stay valid until
// their own expiry.
func (s *SessionManager) RevokeAll(ctx context.Context, accountID uuid.UUID) error {
	account, err := s.store.GetByID(ctx, accountID)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to load account for revocation")
	}

	account.RefreshEpoch++
	if _, err := s.store.Save(ctx, account); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to persist refresh revocation")
	}

	s.emitAuthEvent(ctx, ActivityEventTokensRevoked, s.actorFromAccount(account), account.ID.String(), nil)

	return nil
}

// AccountFromAccessToken resolves the account behind a raw access token.
// Transport middleware uses this to populate the request context.
func (s *SessionManager) AccountFromAccessToken(ctx context.Context, accessToken string) (*Account, error) {
	claims, err := s.codec.Verify(accessToken, PurposeAccess)
	if err != nil {
		return nil, err
	}

	subject, err := claims.SubjectID()
	if err != nil {
		return nil, ErrTokenMalformed
	}

	account, err := s.store.GetByID(ctx, subject)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, err
	}

	return account, nil
}

func (s *SessionManager) ensureLoginableStatus(ctx context.Context, account *Account) (*Account, error) {
	account.EnsureStatus()

	switch account.Status {
	case AccountStatusUnverified:
		if s.cfg.GetAllowLoginNotVerified() {
			return account, nil
		}
		return account, ErrNotVerified
	case AccountStatusArchived:
		if !s.cfg.GetRestoreArchivedOnLogin() {
			return account, ErrAlreadyArchived
		}
		restored, err := s.stateMachine.Transition(ctx, s.actorFromAccount(account), account, AccountStatusVerified,
			WithTransitionReason("login restore"))
		if err != nil {
			return account, err
		}
		return restored, nil
	default:
		return account, nil
	}
}

func (s *SessionManager) emitAuthEvent(ctx context.Context, eventType ActivityEventType, actor ActorRef, accountID string, metadata map[string]any) {
	sink := normalizeActivitySink(s.activitySink)
	event := ActivityEvent{
		EventType: eventType,
		Actor:     actor,
		AccountID: accountID,
		Metadata:  metadata,
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	if err := sink.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error: %v", err)
	}
}

func (s *SessionManager) actorFromAccount(account *Account) ActorRef {
	if account == nil {
		return ActorRef{Type: "unknown"}
	}

	return ActorRef{
		ID:   account.ID.String(),
		Type: "user",
	}
}
