// Package internal contains helpers that are private to goGuard: random
// identifiers, device token generation and hashing.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: orchestrators for every Engine operation
//   - limiters: Redis counters for lockout and TOTP attempt throttling
//   - stores: Redis records for challenges, enrollments, device trust and TOTP replay
//
// # What this package must NOT do
//
//   - Export types that appear in the public goGuard API.
//   - Be imported by any package outside the goGuard module.
package internal
