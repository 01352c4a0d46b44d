// Package accounts is a transport-agnostic account credential lifecycle
// engine: registration, email verification, token issuance and refresh,
// password reset/change, and account archival or deletion.
//
// Account lifecycle:
//   - Accounts carry an AccountStatus field persisted via Bun. Statuses cover
//     unverified, verified, archived, and deleted flows so every binding can
//     rely on the same invariants.
//   - AccountStateMachine centralizes the transition graph, timestamps,
//     hooks, and persistence. Orchestrators invoke Transition with ActorRef
//     metadata whenever an account changes state.
//
// Credential tokens:
//   - TokenCodec mints and verifies single-purpose, time-bound, signed
//     tokens (verification, password reset, archive undo, refresh, access).
//     Tokens bound to mutable account state embed a fingerprint of that
//     state at mint time, so a password-reset token self-invalidates the
//     moment the password actually changes.
//
// Mutation orchestrators:
//   - One handler per user-facing action (Register, VerifyAccount, Login,
//     DeleteAccount, ...). Handlers compose the state machine, the codec,
//     and the CredentialStore, and recover every domain failure into a
//     uniform Result envelope; only infrastructure errors escape.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by the session
//     manager and the state machine. Sinks run best-effort (errors are
//     logged) so you can forward to a database or queue without blocking
//     authentication.
package accounts
