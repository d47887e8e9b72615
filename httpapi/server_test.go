package httpapi

import (
	"bytes"
	"context"
	"encoding/base32"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/configcatalog"
	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/password"
	"github.com/MrEthical07/goGuard/secretbox"
	"github.com/MrEthical07/goGuard/session"
	"github.com/MrEthical07/goGuard/store/gormstore"
	"github.com/MrEthical07/goGuard/totp"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testServer struct {
	url   string
	clock *clock
	store *gormstore.Store
}

func newTestServer(t *testing.T, mutate func(*Config)) *testServer {
	t.Helper()
	ctx := context.Background()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true, Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, gormstore.Migrate(ctx, db, quiet))
	sqlDB.SetMaxOpenConns(1)

	hasher, err := password.NewHasher(password.Config{Memory: 8192, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	require.NoError(t, err)
	store, err := gormstore.New(db, hasher)
	require.NoError(t, err)
	for _, u := range []gormstore.NewUser{
		{ID: "u-alice", Email: "alice@example.com", Password: "correct-password-123", EmailConfirmed: true},
		{ID: "u-admin", Email: "admin@example.com", Password: "admin-password-789", EmailConfirmed: true, Roles: []string{goGuard.RoleAdministrator}},
	} {
		_, err := store.CreateUser(ctx, u)
		require.NoError(t, err)
	}

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Admin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "Admin", "appsettings.json"),
		[]byte(`{"JwtSecret": "s3cr3t", "Banner": "hello"}`), 0o600))
	catalog := configcatalog.New(root, configcatalog.DefaultFiles())

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	key, err := secretbox.GenerateKey()
	require.NoError(t, err)
	box, err := secretbox.New(key, "totp")
	require.NoError(t, err)

	clk := &clock{now: time.Now().Truncate(30 * time.Second).Add(time.Second)}
	cfg := goGuard.DefaultConfig()
	cfg.TOTP.QRCodeSize = 0
	engine, err := goGuard.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(store).
		WithAdminStore(store).
		WithConfigCatalog(catalog).
		WithCipher(box).
		WithLogger(quiet).
		WithClock(clk.Now).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	signer, err := jwt.NewSigner(jwt.Config{
		TTL:           time.Hour,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "goguard-test",
	})
	require.NoError(t, err)

	srvCfg := DefaultConfig()
	srvCfg.CookieSecure = false
	srvCfg.RequestsPerMinute = 0
	srvCfg.AuthRequestsPerMinute = 0
	if mutate != nil {
		mutate(&srvCfg)
	}
	api := New(engine, signer, session.NewStore(rdb, "gs", time.Hour), quiet, srvCfg)
	ts := httptest.NewServer(api.Routes())
	t.Cleanup(ts.Close)

	return &testServer{url: ts.URL, clock: clk, store: store}
}

type client struct {
	t    *testing.T
	http *http.Client
	base string
}

func (ts *testServer) client(t *testing.T) *client {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &client{t: t, http: &http.Client{Jar: jar}, base: ts.url}
}

func (c *client) do(method, path string, body any) (int, map[string]any) {
	c.t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.base+path, rd)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "test-agent")

	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(c.t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func (c *client) login(email, pw string) (int, map[string]any) {
	return c.do(http.MethodPost, "/login", map[string]any{"email": email, "password": pw})
}

func codeFor(t *testing.T, sharedKey string, at time.Time) string {
	t.Helper()
	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).
		DecodeString(strings.ToUpper(strings.ReplaceAll(sharedKey, " ", "")))
	require.NoError(t, err)
	code, err := totp.New(totp.Config{}).ComputeCode(raw, at)
	require.NoError(t, err)
	return code
}

// enroll runs TOTP setup for the signed-in client and returns the shared
// key and recovery codes. The clock moves one step past the setup code.
func (ts *testServer) enroll(t *testing.T, c *client) (string, []any) {
	t.Helper()
	status, body := c.do(http.MethodPost, "/2fa/setup/initiate", nil)
	require.Equal(t, http.StatusOK, status, body)
	key := body["sharedKey"].(string)
	assert.True(t, strings.HasPrefix(body["authenticatorUri"].(string), "otpauth://totp/"))

	status, body = c.do(http.MethodPost, "/2fa/setup/verify", map[string]any{"code": codeFor(t, key, ts.clock.Now())})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, true, body["success"])
	codes := body["recoveryCodes"].([]any)
	require.Len(t, codes, 8)

	ts.clock.Advance(30 * time.Second)
	return key, codes
}

func TestPasswordOnlyLoginAndLogout(t *testing.T) {
	ts := newTestServer(t, nil)
	c := ts.client(t)

	status, body := c.login("ALICE@example.com", "correct-password-123")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, false, body["requiresTwoFactor"])

	status, body = c.do(http.MethodGet, "/2fa/status", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["enabled"])

	status, _ = c.do(http.MethodPost, "/logout", nil)
	require.Equal(t, http.StatusNoContent, status)

	status, _ = c.do(http.MethodGet, "/2fa/status", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestLoginRejectionsAreGeneric(t *testing.T) {
	ts := newTestServer(t, nil)
	c := ts.client(t)

	status, wrong := c.login("alice@example.com", "wrong-password-123")
	require.Equal(t, http.StatusUnauthorized, status)
	status, unknown := c.login("nobody@example.com", "wrong-password-123")
	require.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, wrong, unknown)

	for i := 0; i < 4; i++ {
		c.login("alice@example.com", "wrong-password-123")
	}
	status, body := c.login("alice@example.com", "correct-password-123")
	require.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "account temporarily locked", body["error"])
	assert.NotContains(t, body, "lockedUntil")
}

func TestTwoFactorLoginRememberDeviceAndRecovery(t *testing.T) {
	ts := newTestServer(t, nil)
	c := ts.client(t)

	status, _ := c.login("alice@example.com", "correct-password-123")
	require.Equal(t, http.StatusOK, status)
	key, codes := ts.enroll(t, c)
	status, _ = c.do(http.MethodPost, "/logout", nil)
	require.Equal(t, http.StatusNoContent, status)

	status, body := c.login("alice@example.com", "correct-password-123")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, true, body["requiresTwoFactor"])

	code := codeFor(t, key, ts.clock.Now())
	status, body = c.do(http.MethodPost, "/2fa/verify", map[string]any{
		"code":            code[:3] + " " + code[3:],
		"rememberMachine": true,
	})
	require.Equal(t, http.StatusOK, status, body)

	status, body = c.do(http.MethodGet, "/2fa/status", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["enabled"])
	assert.Equal(t, float64(1), body["trustedDevices"])

	// The remember-device cookie skips the second step.
	c.do(http.MethodPost, "/logout", nil)
	status, body = c.login("alice@example.com", "correct-password-123")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["deviceTrusted"])

	// A fresh browser falls back to a recovery code.
	other := ts.client(t)
	status, _ = other.login("alice@example.com", "correct-password-123")
	require.Equal(t, http.StatusOK, status)
	status, _ = other.do(http.MethodPost, "/2fa/recovery", map[string]any{"code": codes[0]})
	require.Equal(t, http.StatusOK, status)

	status, body = other.do(http.MethodGet, "/2fa/status", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(7), body["recoveryCodesLeft"])

	// Spent codes do not work twice.
	third := ts.client(t)
	third.login("alice@example.com", "correct-password-123")
	status, _ = third.do(http.MethodPost, "/2fa/recovery", map[string]any{"code": codes[0]})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestVerifyWithoutChallenge(t *testing.T) {
	ts := newTestServer(t, nil)
	status, _ := ts.client(t).do(http.MethodPost, "/2fa/verify", map[string]any{"code": "123456"})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestDisableAndRegenerateRequirePassword(t *testing.T) {
	ts := newTestServer(t, nil)
	c := ts.client(t)
	c.login("alice@example.com", "correct-password-123")
	ts.enroll(t, c)

	status, _ := c.do(http.MethodPost, "/recovery-codes/regenerate", map[string]any{"password": "nope-nope-nope"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body := c.do(http.MethodPost, "/recovery-codes/regenerate", map[string]any{"password": "correct-password-123"})
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["recoveryCodes"], 8)

	status, _ = c.do(http.MethodPost, "/2fa/disable", map[string]any{"password": "correct-password-123"})
	require.Equal(t, http.StatusOK, status)

	status, body = c.do(http.MethodGet, "/2fa/status", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["enabled"])

	status, _ = c.do(http.MethodPost, "/recovery-codes/regenerate", map[string]any{"password": "correct-password-123"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAdminConsole(t *testing.T) {
	ts := newTestServer(t, nil)

	alice := ts.client(t)
	alice.login("alice@example.com", "correct-password-123")
	status, _ := alice.do(http.MethodGet, "/admin/security-report", nil)
	assert.Equal(t, http.StatusForbidden, status)

	admin := ts.client(t)
	status, _ = admin.login("admin@example.com", "admin-password-789")
	require.Equal(t, http.StatusOK, status)
	key, _ := ts.enroll(t, admin)

	status, _ = admin.do(http.MethodPost, "/admin/reveal-config", map[string]any{
		"serviceName": "Payroll", "key": "JwtSecret", "totpCode": "123456",
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = admin.do(http.MethodPost, "/admin/reveal-config", map[string]any{
		"serviceName": "Admin", "key": "JwtSecret", "totpCode": "000000",
	})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body := admin.do(http.MethodPost, "/admin/reveal-config", map[string]any{
		"serviceName": "Admin", "key": "JwtSecret", "totpCode": codeFor(t, key, ts.clock.Now()),
	})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "s3cr3t", body["value"])

	ts.clock.Advance(30 * time.Second)
	status, _ = admin.do(http.MethodPost, "/admin/reveal-config", map[string]any{
		"serviceName": "Admin", "key": "Missing", "totpCode": codeFor(t, key, ts.clock.Now()),
	})
	assert.Equal(t, http.StatusNotFound, status)

	status, body = admin.do(http.MethodPost, "/admin/users/u-admin/lock", nil)
	assert.Equal(t, http.StatusBadRequest, status, body)

	status, body = admin.do(http.MethodPost, "/admin/users/u-alice/lock", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "lockedUntil")

	status, _ = ts.client(t).login("alice@example.com", "correct-password-123")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = admin.do(http.MethodPost, "/admin/users/u-alice/unlock", nil)
	require.Equal(t, http.StatusNoContent, status)
	status, _ = ts.client(t).login("alice@example.com", "correct-password-123")
	assert.Equal(t, http.StatusOK, status)

	status, _ = admin.do(http.MethodDelete, "/admin/users/u-admin/roles/"+goGuard.RoleAdministrator, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = admin.do(http.MethodPost, "/admin/users/u-alice/roles", map[string]any{"role": "Support"})
	assert.Equal(t, http.StatusNoContent, status)

	status, body = admin.do(http.MethodGet, "/admin/security-report", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "Warnings")
}

func TestAuthEndpointsAreRateLimited(t *testing.T) {
	ts := newTestServer(t, func(c *Config) { c.AuthRequestsPerMinute = 2 })
	c := ts.client(t)

	c.login("alice@example.com", "wrong-password-123")
	c.login("alice@example.com", "wrong-password-123")
	status, _ := c.login("alice@example.com", "correct-password-123")
	assert.Equal(t, http.StatusTooManyRequests, status)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{goGuard.ErrInvalidCredentials, http.StatusUnauthorized},
		{&goGuard.LockoutError{Until: time.Now()}, http.StatusUnauthorized},
		{goGuard.ErrInvalidTOTPCode, http.StatusUnauthorized},
		{goGuard.ErrRecoveryCodeInvalid, http.StatusUnauthorized},
		{goGuard.ErrChallengeExpired, http.StatusUnauthorized},
		{goGuard.ErrEmailNotConfirmed, http.StatusForbidden},
		{goGuard.ErrSecretNotFound, http.StatusNotFound},
		{fmt.Errorf("lookup: %w", goGuard.ErrSecretNotFound), http.StatusNotFound},
		{goGuard.ErrUnsupportedService, http.StatusBadRequest},
		{goGuard.ErrSelfModificationForbidden, http.StatusBadRequest},
		{goGuard.ErrLastAdministratorForbidden, http.StatusBadRequest},
		{goGuard.ErrInvalidCodeFormat, http.StatusBadRequest},
		{errBadRequest, http.StatusBadRequest},
		{goGuard.ErrRevealRateLimited, http.StatusTooManyRequests},
		{goGuard.ErrBackendUnavailable, http.StatusServiceUnavailable},
		{io.EOF, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}
