package httpapi

import (
	"crypto/sha256"
	"net/http"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/session"
	"github.com/google/uuid"
)

// startSession stores a session for an authenticated login result and
// sets the session cookie. Remembered logins get a persistent cookie.
func (s *Server) startSession(w http.ResponseWriter, r *http.Request, res *goGuard.LoginResult, method session.Method) error {
	ttl := s.cfg.SessionTTL
	if res.Persistent {
		ttl = s.cfg.PersistentSessionTTL
	}

	now := time.Now()
	sess := &session.Session{
		SessionID:     uuid.NewString(),
		UserID:        res.UserID,
		Method:        method,
		Persistent:    res.Persistent,
		IPHash:        sha256.Sum256([]byte(goGuard.ClientIPFromContext(r.Context()))),
		UserAgentHash: sha256.Sum256([]byte(r.UserAgent())),
		CreatedAt:     now.Unix(),
		ExpiresAt:     now.Add(ttl).Unix(),
	}
	if err := s.sessions.Save(r.Context(), sess, ttl); err != nil {
		return goGuard.ErrBackendUnavailable
	}

	token, expires, err := s.signer.Issue(sess.UserID, sess.SessionID, method.String(), ttl)
	if err != nil {
		return err
	}

	cookie := s.cookie(s.cfg.SessionCookie, token)
	if res.Persistent {
		cookie.Expires = expires
	}
	http.SetCookie(w, cookie)
	return nil
}

func (s *Server) cookie(name, value string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (s *Server) clearCookie(w http.ResponseWriter, name string) {
	c := s.cookie(name, "")
	c.MaxAge = -1
	http.SetCookie(w, c)
}

func (s *Server) setDeviceCookie(w http.ResponseWriter, token string, expires time.Time) {
	c := s.cookie(s.cfg.DeviceCookie, token)
	c.Expires = expires
	http.SetCookie(w, c)
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

// fingerprint binds remember-device tokens to the browser.
func fingerprint(r *http.Request) string {
	return r.UserAgent()
}

func methodOf(res *goGuard.LoginResult, secondStep bool) session.Method {
	switch {
	case res.DeviceTrusted:
		return session.MethodRememberedDevice
	case res.UsedRecoveryCode:
		return session.MethodRecoveryCode
	case secondStep:
		return session.MethodTOTP
	default:
		return session.MethodPassword
	}
}
