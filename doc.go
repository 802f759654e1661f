// Package authsession provides an impersonation-safe authentication session
// manager: a single shared identity state machine with durable persistence,
// a derived signed session bundle, and a best-effort background profile
// refresh that can never overwrite a newer identity with stale data.
//
// The package is designed around one [Manager] instance per running
// application, built through [Builder.Build]. Consumers observe state via
// [Manager.Snapshot] or push notifications from [Manager.Subscribe] rather
// than polling the backing store.
//
// # Architecture boundaries
//
// authsession is the public surface. It exposes [Manager], [Builder],
// [Config], and value types (User, Session, State). Persistence lives in
// store/, session bundle signing in token/, and the remote identity
// endpoint client in identity/.
//
// # Concurrency contract
//
// All state transitions are serialized on an internal mutex. Every
// asynchronous identity-affecting operation captures the epoch counter
// before suspending and re-checks it before committing any write; a
// mismatch means the operation was superseded and its result is discarded
// unconditionally. [Manager.Impersonate] additionally cancels the in-flight
// refresh request rather than merely ignoring its result.
//
// # What this package must NOT do
//
//   - Surface refresh or persistence failures as panics or user-facing
//     errors; failures are absorbed and reflected only through observable
//     state.
//   - Write any storage key other than its reserved set (user,
//     originalUser, authToken, shoots).
//   - Perform network I/O outside the background refresh started by
//     [Manager.Start].
package authsession
