package middleware

import "net/http"

func RequireStrict(v *Verifier) func(http.Handler) http.Handler {
	return Guard(v, ModeStrict)
}
