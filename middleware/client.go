package middleware

import (
	"net"
	"net/http"

	goGuard "github.com/MrEthical07/goGuard"
)

// ClientContext tags the request context with the client IP and
// User-Agent. Place it after a real-IP middleware when behind a proxy.
func ClientContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := goGuard.WithClientIP(r.Context(), remoteIP(r.RemoteAddr))
		ctx = goGuard.WithUserAgent(ctx, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func remoteIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
