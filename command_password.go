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

type PasswordChangeMessage struct {
	OldPassword  string `json:"old_password"`
	NewPassword1 string `json:"new_password_1"`
	NewPassword2 string `json:"new_password_2"`
}

func (e PasswordChangeMessage) Type() string { return "accounts.password.change" }

// PasswordChangeHandler rotates the password of the authenticated account.
// Rotating the hash invalidates every outstanding password-bound token.
type PasswordChangeHandler struct {
	store    CredentialStore
	activity ActivitySink
	logger   Logger
}

func NewPasswordChangeHandler(store CredentialStore) *PasswordChangeHandler {
	return &PasswordChangeHandler{
		store:    store,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

func (h *PasswordChangeHandler) WithActivitySink(sink ActivitySink) *PasswordChangeHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *PasswordChangeHandler) WithLogger(logger Logger) *PasswordChangeHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *PasswordChangeHandler) Execute(ctx context.Context, event PasswordChangeMessage) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password change",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *PasswordChangeHandler) execute(ctx context.Context, event PasswordChangeMessage) (Result, error) {
	account, err := requireAccount(ctx)
	if err != nil {
		return recoverDomain(NonFieldErrors, err)
	}

	if err := ComparePasswordAndHash(event.OldPassword, account.PasswordHash); err != nil {
		return Failure("oldPassword", ErrMismatchedHashAndPassword), nil
	}

	if err := validation.Validate(event.NewPassword1, validation.Required, validation.Length(8, 128)); err != nil {
		out := OK()
		out.AddError("newPassword1", err.Error())
		return out, nil
	}

	if event.NewPassword1 != event.NewPassword2 {
		return Failure("newPassword2", ErrPasswordMismatch), nil
	}

	hash, err := HashPassword(event.NewPassword1)
	if err != nil {
		return Result{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash new password")
	}

	account.PasswordHash = hash
	if _, err := h.store.Save(ctx, account); err != nil {
		return Result{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist new password")
	}

	h.recordActivity(ctx, account, ActivityEventPasswordChanged)

	return OK(), nil
}

func (h *PasswordChangeHandler) recordActivity(ctx context.Context, account *Account, eventType ActivityEventType) {
	event := ActivityEvent{
		EventType:  eventType,
		Actor:      ActorRef{ID: account.ID.String(), Type: "user"},
		AccountID:  account.ID.String(),
		OccurredAt: time.Now(),
	}
	if err := h.activity.Record(ctx, event); err != nil {
		h.logger.Error("failed to record password activity", "error", err)
	}
}

type PasswordResetInitMessage struct {
	Email string `json:"email"`
}

func (e PasswordResetInitMessage) Type() string { return "accounts.password.reset.init" }

// PasswordResetInitHandler mints a reset token bound to the current
// password hash and hands it to the delivery collaborator. Unknown
// addresses succeed silently so the operation cannot be used to probe
// which emails hold an account.
type PasswordResetInitHandler struct {
	store       CredentialStore
	codec       *TokenCodec
	delivery    TokenDelivery
	featureGate gate.FeatureGate
	activity    ActivitySink
	logger      Logger
}

func NewPasswordResetInitHandler(store CredentialStore, codec *TokenCodec) *PasswordResetInitHandler {
	return &PasswordResetInitHandler{
		store:    store,
		codec:    codec,
		delivery: noopTokenDelivery{},
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

func (h *PasswordResetInitHandler) WithDelivery(d TokenDelivery) *PasswordResetInitHandler {
	h.delivery = normalizeTokenDelivery(d)
	return h
}

func (h *PasswordResetInitHandler) WithFeatureGate(fg gate.FeatureGate) *PasswordResetInitHandler {
	h.featureGate = fg
	return h
}

func (h *PasswordResetInitHandler) WithActivitySink(sink ActivitySink) *PasswordResetInitHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *PasswordResetInitHandler) WithLogger(logger Logger) *PasswordResetInitHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *PasswordResetInitHandler) Execute(ctx context.Context, event PasswordResetInitMessage) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *PasswordResetInitHandler) execute(ctx context.Context, event PasswordResetInitMessage) (Result, error) {
	if err := requirePasswordResetGate(ctx, h.featureGate, false); err != nil {
		return recoverDomain(NonFieldErrors, err)
	}

	if err := validation.Validate(event.Email, validation.Required, is.Email); err != nil {
		out := OK()
		out.AddError("email", err.Error())
		return out, nil
	}

	account, err := h.store.GetByIdentifier(ctx, strings.ToLower(strings.TrimSpace(event.Email)))
	if err != nil {
		if goerrors.IsNotFound(err) {
			return OK(), nil
		}
		return Result{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up account for password reset")
	}

	account.EnsureStatus()
	if account.IsDeleted() {
		return OK(), nil
	}

	purpose := PurposePasswordReset
	if !account.HasUsablePassword() {
		purpose = PurposePasswordSet
	}

	token, _, err := h.codec.Mint(account.ID, purpose, MintOptions{
		Fingerprint: PasswordFingerprint(account),
	})
	if err != nil {
		h.logger.Error("failed to mint password reset token", "error", err)
		return OK(), nil
	}

	if err := h.delivery.Deliver(ctx, account.Email, purpose, token); err != nil {
		h.logger.Error("failed to deliver password reset token", "error", err)
	}

	return OK(), nil
}

type PasswordResetConfirmMessage struct {
	Token        string `json:"token"`
	NewPassword1 string `json:"new_password_1"`
	NewPassword2 string `json:"new_password_2"`
}

func (e PasswordResetConfirmMessage) Type() string { return "accounts.password.reset.confirm" }

// PasswordResetConfirmHandler redeems a reset token. Tokens minted
// before a later password change carry a stale fingerprint and are
// rejected, so only the newest outstanding reset link works.
type PasswordResetConfirmHandler struct {
	store       CredentialStore
	codec       *TokenCodec
	featureGate gate.FeatureGate
	activity    ActivitySink
	logger      Logger
}

func NewPasswordResetConfirmHandler(store CredentialStore, codec *TokenCodec) *PasswordResetConfirmHandler {
	return &PasswordResetConfirmHandler{
		store:    store,
		codec:    codec,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

func (h *PasswordResetConfirmHandler) WithFeatureGate(fg gate.FeatureGate) *PasswordResetConfirmHandler {
	h.featureGate = fg
	return h
}

func (h *PasswordResetConfirmHandler) WithActivitySink(sink ActivitySink) *PasswordResetConfirmHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *PasswordResetConfirmHandler) WithLogger(logger Logger) *PasswordResetConfirmHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *PasswordResetConfirmHandler) Execute(ctx context.Context, event PasswordResetConfirmMessage) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset confirmation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *PasswordResetConfirmHandler) execute(ctx context.Context, event PasswordResetConfirmMessage) (Result, error) {
	if err := requirePasswordResetGate(ctx, h.featureGate, true); err != nil {
		return recoverDomain(NonFieldErrors, err)
	}

	if event.NewPassword1 != event.NewPassword2 {
		return Failure("newPassword2", ErrPasswordMismatch), nil
	}

	if err := validation.Validate(event.NewPassword1, validation.Required, validation.Length(8, 128)); err != nil {
		out := OK()
		out.AddError("newPassword1", err.Error())
		return out, nil
	}

	claims, err := h.codec.Verify(event.Token, PurposePasswordReset)
	if err != nil && goerrors.Is(err, ErrTokenPurposeMismatch) {
		claims, err = h.codec.Verify(event.Token, PurposePasswordSet)
	}
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
		return Result{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load account for password reset")
	}

	account.EnsureStatus()
	if account.IsDeleted() {
		return Failure("token", ErrTokenMalformed), nil
	}

	if claims.Purpose() == PurposePasswordSet && account.HasUsablePassword() {
		return Failure("token", ErrPasswordAlreadySet), nil
	}

	if err := h.codec.CheckFingerprint(claims, account); err != nil {
		return recoverDomain("token", err)
	}

	ok, err := h.store.MarkTokenConsumed(ctx, claims.Nonce())
	if err != nil {
		return Result{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume password reset token")
	}
	if !ok {
		return Failure("token", ErrTokenConsumed), nil
	}

	hash, err := HashPassword(event.NewPassword1)
	if err != nil {
		return Result{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash new password")
	}

	account.PasswordHash = hash
	// Proving control of the reset email doubles as address verification.
	if account.Status == AccountStatusUnverified {
		account.Status = AccountStatusVerified
		account.EmailVerified = true
	}

	if _, err := h.store.Save(ctx, account); err != nil {
		return Result{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist reset password")
	}

	h.recordActivity(ctx, account)

	return OK(), nil
}

func (h *PasswordResetConfirmHandler) recordActivity(ctx context.Context, account *Account) {
	event := ActivityEvent{
		EventType:  ActivityEventPasswordResetSuccess,
		Actor:      ActorRef{ID: account.ID.String(), Type: "user"},
		AccountID:  account.ID.String(),
		OccurredAt: time.Now(),
	}
	if err := h.activity.Record(ctx, event); err != nil {
		h.logger.Error("failed to record password reset activity", "error", err)
	}
}
