package middleware

import "net/http"

// RequireJWTOnly accepts any request whose cookie verifies, skipping Redis.
// A logged-out cookie stays valid until it expires.
func RequireJWTOnly(v *Verifier) func(http.Handler) http.Handler {
	return Guard(v, ModeJWTOnly)
}
