// Package token derives the signed session bundle embedded in the
// manager's Session value.
//
// The bundle is advisory: its HS256 signature uses an injected demo-grade
// secret, the 3600-second lifetime is not server-enforced, and nothing
// validates it on the API side. It exists so dependent components receive
// a self-describing bearer credential bound to the current identity.
//
// # What this package must NOT do
//
//   - Embed a signing secret; the secret is always injected via [Config].
//   - Import the authsession root package (no import cycles).
package token
