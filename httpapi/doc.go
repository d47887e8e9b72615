// Package httpapi is the HTTP surface of goGuard: the two-step login, TOTP
// enrollment, recovery codes, logout and the administrator console, routed
// with chi.
//
// Successful logins get a Redis session record and a signed session
// cookie. The pending two-factor challenge and the remember-device token
// travel in their own HttpOnly cookies. Engine errors are mapped to status
// codes in one place, statusFor.
package httpapi
