package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-featuregate/gate"
)

type DeleteAccountMessage struct {
	Password string `json:"password"`
}

func (e DeleteAccountMessage) Type() string { return "accounts.delete" }

// DeleteAccountHandler removes the authenticated account. Depending on
// configuration the record is hard-deleted or transitioned into the
// terminal deleted state, which keeps it for bookkeeping but makes it
// invisible to login and token refresh.
type DeleteAccountHandler struct {
	store        CredentialStore
	stateMachine AccountStateMachine
	cfg          Config
	featureGate  gate.FeatureGate
	activity     ActivitySink
	logger       Logger
}

func NewDeleteAccountHandler(store CredentialStore, sm AccountStateMachine, cfg Config) *DeleteAccountHandler {
	return &DeleteAccountHandler{
		store:        store,
		stateMachine: sm,
		cfg:          cfg,
		featureGate:  NewConfigFeatureGate(cfg),
		activity:     noopActivitySink{},
		logger:       defLogger{},
	}
}

func (h *DeleteAccountHandler) WithFeatureGate(fg gate.FeatureGate) *DeleteAccountHandler {
	h.featureGate = fg
	return h
}

func (h *DeleteAccountHandler) WithActivitySink(sink ActivitySink) *DeleteAccountHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *DeleteAccountHandler) WithLogger(logger Logger) *DeleteAccountHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *DeleteAccountHandler) Execute(ctx context.Context, event DeleteAccountMessage) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account deletion",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *DeleteAccountHandler) execute(ctx context.Context, event DeleteAccountMessage) (Result, error) {
	account, err := requireAccount(ctx)
	if err != nil {
		return recoverDomain(NonFieldErrors, err)
	}

	if err := ComparePasswordAndHash(event.Password, account.PasswordHash); err != nil {
		return Failure("password", ErrMismatchedHashAndPassword), nil
	}

	account.EnsureStatus()
	if !account.IsVerified() && !account.IsArchived() {
		return Failure(NonFieldErrors, ErrNotVerified), nil
	}

	// The default gate answers from cfg, so the AllowDeleteAccount flag
	// flows through the same check as an injected gate.
	if err := requireFeatureGate(ctx, h.featureGate, FeatureAccountsDelete, ErrDeleteAccountDisabled); err != nil {
		return recoverDomain(NonFieldErrors, err)
	}

	if h.cfg.GetPermanentDelete() {
		if err := h.store.Delete(ctx, account.ID); err != nil {
			return Result{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete account")
		}
	} else {
		if _, err := h.stateMachine.Transition(ctx, ActorRef{ID: account.ID.String(), Type: "user"}, account, AccountStatusDeleted,
			WithTransitionReason("self delete")); err != nil {
			return Result{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mark account deleted")
		}
	}

	h.recordActivity(ctx, account)

	return OK(), nil
}

func (h *DeleteAccountHandler) recordActivity(ctx context.Context, account *Account) {
	event := ActivityEvent{
		EventType:  ActivityEventDeleted,
		Actor:      ActorRef{ID: account.ID.String(), Type: "user"},
		AccountID:  account.ID.String(),
		OccurredAt: time.Now(),
		Metadata:   map[string]any{"permanent": h.cfg.GetPermanentDelete()},
	}
	if err := h.activity.Record(ctx, event); err != nil {
		h.logger.Error("failed to record deletion activity", "error", err)
	}
}
