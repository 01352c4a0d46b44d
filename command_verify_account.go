package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type VerifyAccountMessage struct {
	Token string `json:"token" doc:"Primary email verification token"`
}

func (e VerifyAccountMessage) Type() string { return "accounts.verify" }

// VerifyAccountHandler redeems a VERIFY_PRIMARY token. Consumption is an
// atomic check-and-set on the token nonce, so two concurrent redemptions of
// the same token produce exactly one success.
type VerifyAccountHandler struct {
	store        CredentialStore
	codec        *TokenCodec
	stateMachine AccountStateMachine
	activity     ActivitySink
	logger       Logger
}

// NewVerifyAccountHandler creates a handler with sane defaults.
func NewVerifyAccountHandler(store CredentialStore, codec *TokenCodec) *VerifyAccountHandler {
	return &VerifyAccountHandler{
		store:        store,
		codec:        codec,
		stateMachine: NewAccountStateMachine(store),
		activity:     noopActivitySink{},
		logger:       defLogger{},
	}
}

func (h *VerifyAccountHandler) WithStateMachine(sm AccountStateMachine) *VerifyAccountHandler {
	if sm != nil {
		h.stateMachine = sm
	}
	return h
}

func (h *VerifyAccountHandler) WithActivitySink(sink ActivitySink) *VerifyAccountHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *VerifyAccountHandler) WithLogger(logger Logger) *VerifyAccountHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *VerifyAccountHandler) Execute(ctx context.Context, event VerifyAccountMessage) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account verification",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerifyAccountHandler) execute(ctx context.Context, event VerifyAccountMessage) (Result, error) {
	claims, err := h.codec.Verify(event.Token, PurposeVerifyPrimary)
	if err != nil {
		return recoverDomain("token", err)
	}

	subject, err := claims.SubjectID()
	if err != nil {
		return Failure("token", ErrTokenMalformed), nil
	}

	account, err := h.store.GetByID(ctx, subject)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return Failure("token", ErrTokenMalformed), nil
		}
		return Result{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load account for verification")
	}

	account.EnsureStatus()
	if account.Status != AccountStatusUnverified {
		return Failure("token", ErrTokenConsumed), nil
	}

	ok, err := h.store.MarkTokenConsumed(ctx, claims.Nonce())
	if err != nil {
		return Result{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume verification token")
	}
	if !ok {
		return Failure("token", ErrTokenConsumed), nil
	}

	if _, err := h.stateMachine.Transition(ctx, ActorRef{ID: account.ID.String(), Type: "user"}, account, AccountStatusVerified,
		WithTransitionReason("primary email verified")); err != nil {
		return Result{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mark account verified")
	}

	h.recordActivity(ctx, account)

	return OK(), nil
}

func (h *VerifyAccountHandler) recordActivity(ctx context.Context, account *Account) {
	event := ActivityEvent{
		EventType:  ActivityEventVerified,
		Actor:      ActorRef{ID: account.ID.String(), Type: "user"},
		AccountID:  account.ID.String(),
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during verification: %v", err)
	}
}

type ResendActivationMessage struct {
	Email string `json:"email"`
}

func (e ResendActivationMessage) Type() string { return "accounts.verify.resend" }

// ResendActivationHandler mints a fresh VERIFY_PRIMARY token. It reports
// success for unknown and already-verified emails alike so the response
// cannot be used to probe for accounts.
type ResendActivationHandler struct {
	store    CredentialStore
	codec    *TokenCodec
	delivery TokenDelivery
	logger   Logger
}

// NewResendActivationHandler creates a handler with sane defaults.
func NewResendActivationHandler(store CredentialStore, codec *TokenCodec) *ResendActivationHandler {
	return &ResendActivationHandler{
		store:    store,
		codec:    codec,
		delivery: noopTokenDelivery{},
		logger:   defLogger{},
	}
}

func (h *ResendActivationHandler) WithDelivery(d TokenDelivery) *ResendActivationHandler {
	h.delivery = normalizeTokenDelivery(d)
	return h
}

func (h *ResendActivationHandler) WithLogger(logger Logger) *ResendActivationHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ResendActivationHandler) Execute(ctx context.Context, event ResendActivationMessage) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during activation resend",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ResendActivationHandler) execute(ctx context.Context, event ResendActivationMessage) (Result, error) {
	account, err := h.store.GetByIdentifier(ctx, event.Email)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return OK(), nil
		}
		return Result{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up account for activation resend")
	}

	account.EnsureStatus()
	if account.Status != AccountStatusUnverified {
		return OK(), nil
	}

	token, _, err := h.codec.Mint(account.ID, PurposeVerifyPrimary, MintOptions{})
	if err != nil {
		h.logger.Error("failed to mint verification token", "error", err)
		return OK(), nil
	}

	if err := h.delivery.Deliver(ctx, account.Email, PurposeVerifyPrimary, token); err != nil {
		h.logger.Error("failed to deliver verification token", "error", err)
	}

	return OK(), nil
}
