// Package session stores signed-in sessions in Redis for the HTTP layer.
//
// A session is created once the login state machine reaches Authenticated
// and is referenced by the sid claim of the session cookie. Logout deletes
// the record; an administrative lock or a two-factor reset deletes every
// session of the user.
//
// # Binary encoding
//
// Records are a compact binary blob with a leading format byte. Decode
// accepts every format it has ever written; new formats only append fields.
//
// # What this package must NOT do
//
//   - Import goGuard or jwt.
//   - Decide whether a login is allowed.
//   - Store raw client addresses or user agents (only their SHA-256).
package session
