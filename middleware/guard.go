package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/session"
)

// DefaultCookieName is the session cookie set by httpapi.
const DefaultCookieName = "goguard_session"

// Mode selects how much of the session a guard verifies.
type Mode uint8

const (
	ModeJWTOnly Mode = iota
	ModeStrict
)

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID    string
	SessionID string
	// Method is the AMR claim: pwd, otp, rc or dev.
	Method    string
	ExpiresAt time.Time
}

// Verifier holds what the guards need to authenticate a request.
// Sessions and Lifetime are only used by ModeStrict.
type Verifier struct {
	Signer     *jwt.Signer
	Sessions   *session.Store
	CookieName string
	Lifetime   time.Duration
}

var errNoToken = errors.New("no session token")

type principalContextKey struct{}

// PrincipalFromContext returns the caller set by a guard.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*Principal)
	return p, ok
}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

func Guard(v *Verifier, mode Mode) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil || v.Signer == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			p, err := v.Authenticate(r, mode)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// Authenticate verifies the request's token and, in ModeStrict, that its
// session record still exists for the same user.
func (v *Verifier) Authenticate(r *http.Request, mode Mode) (*Principal, error) {
	token, ok := v.token(r)
	if !ok {
		return nil, errNoToken
	}
	claims, err := v.Signer.Parse(token)
	if err != nil {
		return nil, err
	}

	p := &Principal{UserID: claims.UID, SessionID: claims.SID, Method: claims.AMR}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	if mode != ModeStrict {
		return p, nil
	}

	if v.Sessions == nil {
		return nil, session.ErrSessionNotFound
	}
	sess, err := v.Sessions.Get(r.Context(), claims.SID, v.Lifetime)
	if err != nil {
		return nil, err
	}
	if sess.UserID != claims.UID {
		return nil, session.ErrSessionNotFound
	}
	return p, nil
}

func (v *Verifier) token(r *http.Request) (string, bool) {
	name := v.CookieName
	if name == "" {
		name = DefaultCookieName
	}
	if c, err := r.Cookie(name); err == nil && c.Value != "" {
		return c.Value, true
	}
	return bearerToken(r.Header.Get("Authorization"))
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
