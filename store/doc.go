// Package store provides the persistent key-value store backing the
// session manager — the durable, cross-reload analog of browser local
// storage.
//
// Two implementations are provided: [RedisStore] for shared deployments
// and [MemoryStore] for tests and single-process use. Values are opaque
// strings; all serialization happens in the caller.
//
// # What this package must NOT do
//
//   - Interpret the values it stores.
//   - Apply TTLs; the reserved session keys are durable until explicitly
//     deleted.
//   - Import the authsession root package (no import cycles).
package store
