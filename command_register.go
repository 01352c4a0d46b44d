package accounts

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-featuregate/gate"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/nyaruka/phonenumbers"
)

type RegisterMessage struct {
	Email     string `json:"email"`
	Username  string `json:"username"`
	Phone     string `json:"phone"`
	Password1 string `json:"password1"`
	Password2 string `json:"password2"`
	UseHashid bool
}

func (e RegisterMessage) Type() string { return "accounts.register" }

// RegisterHandler creates a new unverified account and hands a
// VERIFY_PRIMARY token to the delivery collaborator. Delivery failures are
// logged, never surfaced, so registration output cannot reveal whether the
// email reached anyone.
type RegisterHandler struct {
	store       CredentialStore
	codec       *TokenCodec
	delivery    TokenDelivery
	featureGate gate.FeatureGate
	activity    ActivitySink
	logger      Logger
}

// NewRegisterHandler creates a handler with sane defaults.
func NewRegisterHandler(store CredentialStore, codec *TokenCodec) *RegisterHandler {
	return &RegisterHandler{
		store:    store,
		codec:    codec,
		delivery: noopTokenDelivery{},
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

func (h *RegisterHandler) WithDelivery(d TokenDelivery) *RegisterHandler {
	h.delivery = normalizeTokenDelivery(d)
	return h
}

func (h *RegisterHandler) WithFeatureGate(fg gate.FeatureGate) *RegisterHandler {
	h.featureGate = fg
	return h
}

func (h *RegisterHandler) WithActivitySink(sink ActivitySink) *RegisterHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *RegisterHandler) WithLogger(logger Logger) *RegisterHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RegisterHandler) Execute(ctx context.Context, event RegisterMessage) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterHandler) execute(ctx context.Context, event RegisterMessage) (Result, error) {
	if err := requireFeatureGate(ctx, h.featureGate, gate.FeatureUsersSignup, ErrSignupDisabled); err != nil {
		return recoverDomain(NonFieldErrors, err)
	}

	out := Result{Success: true}
	h.validateInput(event, &out)
	if out.HasErrors() {
		return out, nil
	}

	if event.Password1 != event.Password2 {
		return Failure("password2", ErrPasswordMismatch), nil
	}

	if taken, err := h.identifierTaken(ctx, event.Email); err != nil {
		return Result{}, err
	} else if taken {
		return Failure("email", ErrIdentifierTaken), nil
	}

	username := getUsername(event.Username, event.Email)
	if taken, err := h.identifierTaken(ctx, username); err != nil {
		return Result{}, err
	} else if taken {
		return Failure("username", ErrIdentifierTaken), nil
	}

	hash, err := HashPassword(event.Password1)
	if err != nil {
		if goerrors.Is(err, ErrNoEmptyString) {
			return Failure("password1", ErrNoEmptyString), nil
		}
		return Result{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	account := &Account{
		Email:        strings.ToLower(strings.TrimSpace(event.Email)),
		Username:     username,
		Phone:        event.Phone,
		PasswordHash: hash,
		Status:       AccountStatusUnverified,
	}
	if event.UseHashid {
		if id, err := hashid.NewUUID(account.Email); err == nil {
			account.ID = id
		}
	}

	created, err := h.store.Create(ctx, account)
	if err != nil {
		if goerrors.Is(err, ErrIdentifierTaken) {
			return Failure("email", ErrIdentifierTaken), nil
		}
		return Result{}, goerrors.Wrap(err, goerrors.CategoryInternal, "could not create account")
	}
	if created != nil {
		account = created
	}

	h.deliverVerification(ctx, account)

	h.recordActivity(ctx, account)

	return OK(), nil
}

func (h *RegisterHandler) validateInput(event RegisterMessage, out *Result) {
	if err := validation.Validate(event.Email, validation.Required, is.Email); err != nil {
		out.AddError("email", err.Error())
	}
	if event.Username != "" {
		if err := validation.Validate(event.Username, validation.Length(3, 150)); err != nil {
			out.AddError("username", err.Error())
		}
	}
	if err := validation.Validate(event.Password1, validation.Required, validation.Length(8, 128)); err != nil {
		out.AddError("password1", err.Error())
	}
	if event.Phone != "" {
		num, err := phonenumbers.Parse(event.Phone, "ZZ")
		if err != nil || !phonenumbers.IsValidNumber(num) {
			out.AddError("phone", "invalid phone number")
		}
	}
}

func (h *RegisterHandler) identifierTaken(ctx context.Context, identifier string) (bool, error) {
	_, err := h.store.GetByIdentifier(ctx, identifier)
	if err == nil {
		return true, nil
	}
	if goerrors.IsNotFound(err) {
		return false, nil
	}
	return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check identifier uniqueness")
}

func (h *RegisterHandler) deliverVerification(ctx context.Context, account *Account) {
	token, _, err := h.codec.Mint(account.ID, PurposeVerifyPrimary, MintOptions{})
	if err != nil {
		h.logger.Error("failed to mint verification token", "error", err)
		return
	}

	if err := h.delivery.Deliver(ctx, account.Email, PurposeVerifyPrimary, token); err != nil {
		h.logger.Error("failed to deliver verification token", "error", err)
	}
}

func (h *RegisterHandler) recordActivity(ctx context.Context, account *Account) {
	event := ActivityEvent{
		EventType: ActivityEventRegistered,
		Actor:     ActorRef{ID: account.ID.String(), Type: "user"},
		AccountID: account.ID.String(),
		Metadata: map[string]any{
			"username": account.Username,
		},
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during registration: %v", err)
	}
}

func getUsername(username, email string) string {
	if username != "" {
		return username
	}

	if strings.Contains(email, "@") {
		username = strings.Split(email, "@")[0]
	}

	return username
}
