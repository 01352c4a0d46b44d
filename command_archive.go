package accounts

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
)

type ArchiveAccountMessage struct {
	Password string `json:"password"`
}

func (e ArchiveAccountMessage) Type() string { return "accounts.archive" }

// ArchiveAccountHandler parks the authenticated account. Archival bumps
// the refresh epoch so every outstanding refresh token dies with it, and
// mints an undo token bound to the current password hash so the link
// stops working if the password changes while archived.
type ArchiveAccountHandler struct {
	store        CredentialStore
	codec        *TokenCodec
	stateMachine AccountStateMachine
	delivery     TokenDelivery
	logger       Logger
}

func NewArchiveAccountHandler(store CredentialStore, codec *TokenCodec, sm AccountStateMachine) *ArchiveAccountHandler {
	return &ArchiveAccountHandler{
		store:        store,
		codec:        codec,
		stateMachine: sm,
		delivery:     noopTokenDelivery{},
		logger:       defLogger{},
	}
}

func (h *ArchiveAccountHandler) WithDelivery(d TokenDelivery) *ArchiveAccountHandler {
	h.delivery = normalizeTokenDelivery(d)
	return h
}

func (h *ArchiveAccountHandler) WithLogger(logger Logger) *ArchiveAccountHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ArchiveAccountHandler) Execute(ctx context.Context, event ArchiveAccountMessage) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account archival",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ArchiveAccountHandler) execute(ctx context.Context, event ArchiveAccountMessage) (Result, error) {
	account, err := requireAccount(ctx)
	if err != nil {
		return recoverDomain(NonFieldErrors, err)
	}

	if err := ComparePasswordAndHash(event.Password, account.PasswordHash); err != nil {
		return Failure("password", ErrMismatchedHashAndPassword), nil
	}

	account.EnsureStatus()
	if account.IsArchived() {
		return Failure(NonFieldErrors, ErrAlreadyArchived), nil
	}
	if !account.IsVerified() {
		return Failure(NonFieldErrors, ErrNotVerified), nil
	}

	// Epoch bump first so the persisted record carries it through Transition.
	account.RefreshEpoch++

	if _, err := h.stateMachine.Transition(ctx, ActorRef{ID: account.ID.String(), Type: "user"}, account, AccountStatusArchived,
		WithTransitionReason("self archive")); err != nil {
		return Result{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to archive account")
	}

	h.deliverUndo(ctx, account)

	return OK(), nil
}

func (h *ArchiveAccountHandler) deliverUndo(ctx context.Context, account *Account) {
	token, _, err := h.codec.Mint(account.ID, PurposeArchiveUndo, MintOptions{
		Fingerprint: PasswordFingerprint(account),
	})
	if err != nil {
		h.logger.Error("failed to mint archive undo token", "error", err)
		return
	}

	if err := h.delivery.Deliver(ctx, account.Email, PurposeArchiveUndo, token); err != nil {
		h.logger.Error("failed to deliver archive undo token", "error", err)
	}
}

type ArchiveUndoMessage struct {
	Token string `json:"token"`
}

func (e ArchiveUndoMessage) Type() string { return "accounts.archive.undo" }

// ArchiveUndoHandler restores an archived account from an undo token.
type ArchiveUndoHandler struct {
	store        CredentialStore
	codec        *TokenCodec
	stateMachine AccountStateMachine
	logger       Logger
}

func NewArchiveUndoHandler(store CredentialStore, codec *TokenCodec, sm AccountStateMachine) *ArchiveUndoHandler {
	return &ArchiveUndoHandler{
		store:        store,
		codec:        codec,
		stateMachine: sm,
		logger:       defLogger{},
	}
}

func (h *ArchiveUndoHandler) WithLogger(logger Logger) *ArchiveUndoHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ArchiveUndoHandler) Execute(ctx context.Context, event ArchiveUndoMessage) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during archive undo",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ArchiveUndoHandler) execute(ctx context.Context, event ArchiveUndoMessage) (Result, error) {
	claims, err := h.codec.Verify(event.Token, PurposeArchiveUndo)
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
		return Result{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load account for archive undo")
	}

	account.EnsureStatus()
	if !account.IsArchived() {
		return Failure("token", ErrTokenStateChanged), nil
	}

	if err := h.codec.CheckFingerprint(claims, account); err != nil {
		return recoverDomain("token", err)
	}

	ok, err := h.store.MarkTokenConsumed(ctx, claims.Nonce())
	if err != nil {
		return Result{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume archive undo token")
	}
	if !ok {
		return Failure("token", ErrTokenConsumed), nil
	}

	if _, err := h.stateMachine.Transition(ctx, ActorRef{ID: account.ID.String(), Type: "user"}, account, AccountStatusVerified,
		WithTransitionReason("archive undo")); err != nil {
		return Result{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to restore account")
	}

	return OK(), nil
}
