// Package totp implements time-based one-time passwords for goGuard.
//
// # Behavior
//
// Codes are 6 decimal digits computed per RFC 6238 over HMAC-SHA1 with a
// 30-second step. Verification accepts the current step and a configurable
// number of neighbouring steps (default one on each side) and reports which
// step matched, so callers can enforce single use of a step.
//
// # Architecture boundaries
//
// The package is pure computation. It never stores secrets, never tracks
// used steps, and never decides lockout consequences. Callers own replay
// protection and persistence.
//
// # What this package must NOT do
//
//   - Import goGuard or any internal package.
//   - Log or otherwise expose secrets or candidate codes.
//   - Accept a candidate that is not exactly six ASCII digits.
package totp
