// Package goGuard provides the account-security core of an authentication
// service: TOTP two-factor enrollment and verification, single-use recovery
// codes, remember-device tokens, failed-login lockout, the two-step login
// state machine and a TOTP-gated configuration reveal.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goGuard is the public surface. It exposes [Engine], [Builder], [Config],
// the store interfaces ([CredentialStore], [LockoutStore],
// [AccountAdminStore], [ConfigCatalog], [SecretCipher]) and value types
// (LoginResult, TOTPSetup, RevealResult, etc.). Flow orchestration, redis
// record encoding, attempt limiting and audit dispatch live under internal/
// and are never exported.
//
// Durable state (users, sealed TOTP secrets, recovery code hashes, lockout
// counters) belongs to the CredentialStore. Short-lived state (login
// challenges, pending enrollments, device tokens, the TOTP replay counter)
// lives in redis with a TTL.
//
// # What this package must NOT do
//
//   - Log or return TOTP secrets, recovery codes, device tokens or passwords
//     outside the single response that creates them.
//   - Reveal whether an email belongs to an account before the password is
//     verified.
//   - Perform I/O outside of Engine methods (construction via Builder is
//     allocation-only until Build).
//   - Import any sub-package that re-imports goGuard (no import cycles).
package goGuard
