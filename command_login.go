package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type LoginMessage struct {
	Identifier string `json:"identifier" doc:"Email or username"`
	Password   string `json:"password"`
	OnResponse func(resp *LoginResponse)
}

func (e LoginMessage) Type() string { return "accounts.login" }

type LoginResponse struct {
	Pair *TokenPair
}

// LoginHandler wraps SessionManager.Login into the uniform envelope.
type LoginHandler struct {
	sessions *SessionManager
}

// NewLoginHandler creates a handler backed by the given session manager.
func NewLoginHandler(sessions *SessionManager) *LoginHandler {
	return &LoginHandler{sessions: sessions}
}

func (h *LoginHandler) Execute(ctx context.Context, event LoginMessage) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during login",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *LoginHandler) execute(ctx context.Context, event LoginMessage) (Result, error) {
	pair, err := h.sessions.Login(ctx, event.Identifier, event.Password)
	if err != nil {
		return recoverDomain(NonFieldErrors, err)
	}

	if event.OnResponse != nil {
		event.OnResponse(&LoginResponse{Pair: pair})
	}

	return OK(), nil
}

type RefreshTokenMessage struct {
	RefreshToken string `json:"refresh_token"`
	OnResponse   func(resp *RefreshTokenResponse)
}

func (e RefreshTokenMessage) Type() string { return "accounts.token.refresh" }

type RefreshTokenResponse struct {
	AccessToken string
	ExpiresAt   time.Time
}

// RefreshTokenHandler mints a new access token from a refresh token.
type RefreshTokenHandler struct {
	sessions *SessionManager
}

// NewRefreshTokenHandler creates a handler backed by the given session manager.
func NewRefreshTokenHandler(sessions *SessionManager) *RefreshTokenHandler {
	return &RefreshTokenHandler{sessions: sessions}
}

func (h *RefreshTokenHandler) Execute(ctx context.Context, event RefreshTokenMessage) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during token refresh",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RefreshTokenHandler) execute(ctx context.Context, event RefreshTokenMessage) (Result, error) {
	access, expiresAt, err := h.sessions.Refresh(ctx, event.RefreshToken)
	if err != nil {
		return recoverDomain(NonFieldErrors, err)
	}

	if event.OnResponse != nil {
		event.OnResponse(&RefreshTokenResponse{
			AccessToken: access,
			ExpiresAt:   expiresAt,
		})
	}

	return OK(), nil
}

type RevokeRefreshTokensMessage struct{}

func (e RevokeRefreshTokensMessage) Type() string { return "accounts.token.revoke_all" }

// RevokeRefreshTokensHandler invalidates every outstanding refresh token
// for the currently authenticated account. Already-issued access tokens
// remain valid until their own expiry.
type RevokeRefreshTokensHandler struct {
	sessions *SessionManager
}

// NewRevokeRefreshTokensHandler creates a handler backed by the given session manager.
func NewRevokeRefreshTokensHandler(sessions *SessionManager) *RevokeRefreshTokensHandler {
	return &RevokeRefreshTokensHandler{sessions: sessions}
}

func (h *RevokeRefreshTokensHandler) Execute(ctx context.Context, event RevokeRefreshTokensMessage) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during token revocation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RevokeRefreshTokensHandler) execute(ctx context.Context, _ RevokeRefreshTokensMessage) (Result, error) {
	account, err := requireAccount(ctx)
	if err != nil {
		return recoverDomain(NonFieldErrors, err)
	}

	if err := h.sessions.RevokeAll(ctx, account.ID); err != nil {
		return Result{}, err
	}

	return OK(), nil
}
