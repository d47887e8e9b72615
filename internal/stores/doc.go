// Package stores provides Redis-backed, short-lived records for the
// second-factor flows: login challenges, pending TOTP enrollments, device
// trust tokens and the per-user TOTP replay counter.
//
// # Design
//
// Each store persists a versioned, binary-encoded record with a TTL.
// Expiry that matters for security is judged against a caller-supplied
// clock and the ExpiresAt field, with the Redis TTL only bounding storage.
// Mutations use WATCH/MULTI optimistic transactions or Lua scripts so that
// concurrent callers cannot both win the same transition.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for transient
// records. It does NOT generate tokens or secrets and does NOT make
// authentication decisions; those belong to internal/flows.
//
// # What this package must NOT do
//
//   - Import goGuard or any sibling internal package.
//   - Store plaintext device tokens or unsealed TOTP secrets.
package stores
