// Package limiters provides Redis counters that back account-security policy.
//
// # Limiters
//
//   - [LockoutLimiter]: per-user failed-attempt count and lockout window,
//     updated by a single Lua script so concurrent failures are never lost.
//   - [AttemptLimiter]: per-user, per-purpose throttle for wrong TOTP codes
//     during secret reveal and authenticator setup. Its methods are nil-safe.
//
// # Architecture boundaries
//
// Each limiter owns its own Redis key namespace and error types. Thresholds
// come from Config structs supplied at construction time.
//
// # What this package must NOT do
//
//   - Import goGuard or any sibling internal package.
//   - Decide consequences beyond counting; flow functions decide what a
//     count means for a request.
package limiters
