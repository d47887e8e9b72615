// Package middleware authenticates HTTP requests carrying a goGuard session
// cookie and tags request contexts with the client address for audit.
//
// # Guards
//
//   - [Guard] with an explicit [Mode].
//   - [RequireJWTOnly] checks the signed cookie only, no Redis call.
//   - [RequireStrict] also loads the Redis session record, so a logout
//     takes effect immediately.
//
// The token is read from the session cookie first and from an
// "Authorization: Bearer" header second. A verified request carries a
// [Principal] retrievable with [PrincipalFromContext].
//
// [ClientContext] copies the remote address and User-Agent into the
// context with goGuard.WithClientIP and goGuard.WithUserAgent, which the
// engine attaches to audit events.
package middleware
