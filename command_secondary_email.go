package accounts

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-featuregate/gate"
)

type SecondaryEmailRequestMessage struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (e SecondaryEmailRequestMessage) Type() string { return "accounts.secondary_email.request" }

// SecondaryEmailHandler manages the lifecycle of an account's secondary
// address: request, verify, swap with the primary, and removal. The
// candidate address is never persisted before it is proven; it rides in
// the verification token instead.
type SecondaryEmailHandler struct {
	store       CredentialStore
	codec       *TokenCodec
	delivery    TokenDelivery
	featureGate gate.FeatureGate
	activity    ActivitySink
	logger      Logger
}

func NewSecondaryEmailHandler(store CredentialStore, codec *TokenCodec) *SecondaryEmailHandler {
	return &SecondaryEmailHandler{
		store:    store,
		codec:    codec,
		delivery: noopTokenDelivery{},
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

func (h *SecondaryEmailHandler) WithDelivery(d TokenDelivery) *SecondaryEmailHandler {
	h.delivery = normalizeTokenDelivery(d)
	return h
}

func (h *SecondaryEmailHandler) WithFeatureGate(fg gate.FeatureGate) *SecondaryEmailHandler {
	h.featureGate = fg
	return h
}

func (h *SecondaryEmailHandler) WithActivitySink(sink ActivitySink) *SecondaryEmailHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *SecondaryEmailHandler) WithLogger(logger Logger) *SecondaryEmailHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *SecondaryEmailHandler) Execute(ctx context.Context, event SecondaryEmailRequestMessage) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during secondary email request",
		)
	default:
		return h.executeRequest(ctx, event)
	}
}

func (h *SecondaryEmailHandler) executeRequest(ctx context.Context, event SecondaryEmailRequestMessage) (Result, error) {
	if err := requireFeatureGate(ctx, h.featureGate, FeatureAccountsSecondaryEmail, ErrSecondaryEmailDisabled); err != nil {
		return recoverDomain(NonFieldErrors, err)
	}

	account, err := requireAccount(ctx)
	if err != nil {
		return recoverDomain(NonFieldErrors, err)
	}

	account.EnsureStatus()
	if !account.IsVerified() {
		return Failure(NonFieldErrors, ErrNotVerified), nil
	}

	if err := ComparePasswordAndHash(event.Password, account.PasswordHash); err != nil {
		return Failure("password", ErrMismatchedHashAndPassword), nil
	}

	email := strings.ToLower(strings.TrimSpace(event.Email))
	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		out := OK()
		out.AddError("email", err.Error())
		return out, nil
	}

	if email == strings.ToLower(account.Email) {
		return Failure("email", ErrIdentifierTaken), nil
	}

	token, _, err := h.codec.Mint(account.ID, PurposeVerifySecondary, MintOptions{
		Extra: map[string]any{"secondary_email": email},
	})
	if err != nil {
		return Result{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mint secondary email token")
	}

	if err := h.delivery.Deliver(ctx, email, PurposeVerifySecondary, token); err != nil {
		h.logger.Error("failed to deliver secondary email token", "error", err)
	}

	return OK(), nil
}

type SecondaryEmailVerifyMessage struct {
	Token string `json:"token"`
}

func (e SecondaryEmailVerifyMessage) Type() string { return "accounts.secondary_email.verify" }

func (h *SecondaryEmailHandler) ExecuteVerify(ctx context.Context, event SecondaryEmailVerifyMessage) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during secondary email verification",
		)
	default:
		return h.executeVerify(ctx, event)
	}
}

func (h *SecondaryEmailHandler) executeVerify(ctx context.Context, event SecondaryEmailVerifyMessage) (Result, error) {
	claims, err := h.codec.Verify(event.Token, PurposeVerifySecondary)
	if err != nil {
		return recoverDomain("token", err)
	}

	email := claims.ExtraString("secondary_email")
	if email == "" {
		return Failure("token", ErrTokenMalformed), nil
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
		return Result{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load account for secondary email verification")
	}

	account.EnsureStatus()
	if !account.IsVerified() {
		return Failure("token", ErrTokenStateChanged), nil
	}

	ok, err := h.store.MarkTokenConsumed(ctx, claims.Nonce())
	if err != nil {
		return Result{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume secondary email token")
	}
	if !ok {
		return Failure("token", ErrTokenConsumed), nil
	}

	account.SecondaryEmail = email
	account.SecondaryEmailVerified = true
	if _, err := h.store.Save(ctx, account); err != nil {
		return Result{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist secondary email")
	}

	h.recordActivity(ctx, account, "secondary email verified")

	return OK(), nil
}

type SwapEmailsMessage struct {
	Password string `json:"password"`
}

func (e SwapEmailsMessage) Type() string { return "accounts.secondary_email.swap" }

func (h *SecondaryEmailHandler) ExecuteSwap(ctx context.Context, event SwapEmailsMessage) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during email swap",
		)
	default:
		return h.executeSwap(ctx, event)
	}
}

func (h *SecondaryEmailHandler) executeSwap(ctx context.Context, event SwapEmailsMessage) (Result, error) {
	account, err := requireAccount(ctx)
	if err != nil {
		return recoverDomain(NonFieldErrors, err)
	}

	if err := ComparePasswordAndHash(event.Password, account.PasswordHash); err != nil {
		return Failure("password", ErrMismatchedHashAndPassword), nil
	}

	if account.SecondaryEmail == "" || !account.SecondaryEmailVerified {
		return Failure(NonFieldErrors, ErrSecondaryEmailRequired), nil
	}

	account.Email, account.SecondaryEmail = account.SecondaryEmail, account.Email
	if _, err := h.store.Save(ctx, account); err != nil {
		return Result{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist email swap")
	}

	h.recordActivity(ctx, account, "emails swapped")

	return OK(), nil
}

type RemoveSecondaryEmailMessage struct {
	Password string `json:"password"`
}

func (e RemoveSecondaryEmailMessage) Type() string { return "accounts.secondary_email.remove" }

func (h *SecondaryEmailHandler) ExecuteRemove(ctx context.Context, event RemoveSecondaryEmailMessage) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during secondary email removal",
		)
	default:
		return h.executeRemove(ctx, event)
	}
}

func (h *SecondaryEmailHandler) executeRemove(ctx context.Context, event RemoveSecondaryEmailMessage) (Result, error) {
	account, err := requireAccount(ctx)
	if err != nil {
		return recoverDomain(NonFieldErrors, err)
	}

	if err := ComparePasswordAndHash(event.Password, account.PasswordHash); err != nil {
		return Failure("password", ErrMismatchedHashAndPassword), nil
	}

	account.SecondaryEmail = ""
	account.SecondaryEmailVerified = false
	if _, err := h.store.Save(ctx, account); err != nil {
		return Result{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to remove secondary email")
	}

	h.recordActivity(ctx, account, "secondary email removed")

	return OK(), nil
}

func (h *SecondaryEmailHandler) recordActivity(ctx context.Context, account *Account, reason string) {
	event := ActivityEvent{
		EventType:  ActivityEventStatusChanged,
		Actor:      ActorRef{ID: account.ID.String(), Type: "user"},
		AccountID:  account.ID.String(),
		OccurredAt: time.Now(),
		Metadata:   map[string]any{"reason": reason},
	}
	if err := h.activity.Record(ctx, event); err != nil {
		h.logger.Error("failed to record secondary email activity", "error", err)
	}
}
