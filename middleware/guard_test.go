package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestVerifier(t *testing.T) (*Verifier, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	signer, err := jwt.NewSigner(jwt.Config{
		TTL:           time.Hour,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "goguard-test",
	})
	if err != nil {
		t.Fatalf("NewSigner failed: %v", err)
	}

	v := &Verifier{Signer: signer, Sessions: session.NewStore(rdb, "gs", 0)}
	return v, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func issueSession(t *testing.T, v *Verifier, uid, sid string) string {
	t.Helper()

	now := time.Now()
	err := v.Sessions.Save(context.Background(), &session.Session{
		SessionID: sid,
		UserID:    uid,
		Method:    session.MethodTOTP,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(time.Hour).Unix(),
	}, time.Hour)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	token, _, err := v.Signer.Issue(uid, sid, session.MethodTOTP.String(), 0)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	return token
}

func principalEcho(t *testing.T, want string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok || p.UserID != want || p.Method != "otp" {
			t.Errorf("unexpected principal %+v", p)
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestGuardAcceptsCookieAndBearer(t *testing.T) {
	v, done := newTestVerifier(t)
	defer done()
	token := issueSession(t, v, "u-alice", "sid-1")
	h := RequireStrict(v)(principalEcho(t, "u-alice"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: token})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("cookie: expected 204, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("bearer: expected 204, got %d", rec.Code)
	}
}

func TestGuardRejectsMissingAndTamperedTokens(t *testing.T) {
	v, done := newTestVerifier(t)
	defer done()
	token := issueSession(t, v, "u-alice", "sid-1")
	h := RequireJWTOnly(v)(principalEcho(t, "u-alice"))

	for name, header := range map[string]string{
		"missing":  "",
		"no token": "Bearer ",
		"basic":    "Basic abc",
		"tampered": "Bearer " + token + "x",
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", name, rec.Code)
		}
	}
}

func TestStrictGuardHonorsLogout(t *testing.T) {
	v, done := newTestVerifier(t)
	defer done()
	token := issueSession(t, v, "u-alice", "sid-1")
	if err := v.Sessions.Delete(context.Background(), "sid-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	serve := func(h http.Handler) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	if code := serve(RequireStrict(v)(principalEcho(t, "u-alice"))); code != http.StatusUnauthorized {
		t.Fatalf("strict: expected 401 after logout, got %d", code)
	}
	if code := serve(RequireJWTOnly(v)(principalEcho(t, "u-alice"))); code != http.StatusNoContent {
		t.Fatalf("jwt-only: expected 204 until expiry, got %d", code)
	}
}

func TestStrictGuardRejectsSessionOfOtherUser(t *testing.T) {
	v, done := newTestVerifier(t)
	defer done()
	issueSession(t, v, "u-bob", "sid-bob")
	forged, _, err := v.Signer.Issue("u-alice", "sid-bob", "otp", 0)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	rec := httptest.NewRecorder()
	RequireStrict(v)(principalEcho(t, "u-alice")).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestGuardWithoutVerifier(t *testing.T) {
	rec := httptest.NewRecorder()
	Guard(nil, ModeStrict)(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestClientContextTagsAuditFields(t *testing.T) {
	var gotIP, gotUA string
	h := ClientContext(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIP = goGuard.ClientIPFromContext(r.Context())
		gotUA = goGuard.UserAgentFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:52100"
	req.Header.Set("User-Agent", "test-agent")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if gotIP != "203.0.113.7" || gotUA != "test-agent" {
		t.Fatalf("unexpected client context %q %q", gotIP, gotUA)
	}
	if remoteIP("not-an-addr") != "not-an-addr" {
		t.Fatal("unparseable address should pass through")
	}
}
