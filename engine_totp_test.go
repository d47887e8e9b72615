package goGuard

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestTOTPSetupReturnsSecretAndURI(t *testing.T) {
	cfg := testConfig()
	cfg.TOTP.QRCodeSize = 128
	env, done := newTestEnv(t, cfg)
	defer done()

	setup, err := env.engine.BeginTOTPSetup(context.Background(), "u-alice")
	if err != nil {
		t.Fatalf("BeginTOTPSetup failed: %v", err)
	}
	if !strings.HasPrefix(setup.AuthenticatorURI, "otpauth://totp/") {
		t.Fatalf("unexpected URI %q", setup.AuthenticatorURI)
	}
	if !strings.Contains(setup.AuthenticatorURI, "issuer=goGuard") {
		t.Fatalf("issuer missing from URI %q", setup.AuthenticatorURI)
	}
	if setup.SharedKey != strings.ToLower(setup.SharedKey) || !strings.Contains(setup.SharedKey, " ") {
		t.Fatalf("shared key not formatted for manual entry: %q", setup.SharedKey)
	}
	if !strings.HasPrefix(setup.QRCodeDataURI, "data:image/png;base64,") {
		t.Fatalf("unexpected QR data URI prefix")
	}
	if len(env.pendingSecret(t, "u-alice")) < 20 {
		t.Fatal("secret shorter than 160 bits")
	}

	status, err := env.engine.TwoFactorStatus(context.Background(), "u-alice")
	if err != nil {
		t.Fatalf("TwoFactorStatus failed: %v", err)
	}
	if status.Enabled {
		t.Fatal("two-factor must stay off until confirmation")
	}
}

func TestTOTPConfirmEnablesAndReturnsRecoveryCodes(t *testing.T) {
	env, done := newTestEnv(t, testConfig())
	defer done()
	ctx := context.Background()

	_, codes := env.enableTOTP(t, "u-alice")
	if len(codes) != 8 {
		t.Fatalf("expected 8 recovery codes, got %d", len(codes))
	}

	status, err := env.engine.TwoFactorStatus(ctx, "u-alice")
	if err != nil {
		t.Fatalf("TwoFactorStatus failed: %v", err)
	}
	if !status.Enabled || status.RecoveryCodesLeft != 8 {
		t.Fatalf("unexpected status %+v", status)
	}

	if _, err := env.engine.BeginTOTPSetup(ctx, "u-alice"); !errors.Is(err, ErrTwoFactorAlreadyEnabled) {
		t.Fatalf("expected ErrTwoFactorAlreadyEnabled, got %v", err)
	}
}

func TestTOTPConfirmWithoutSetup(t *testing.T) {
	env, done := newTestEnv(t, testConfig())
	defer done()

	_, err := env.engine.ConfirmTOTPSetup(context.Background(), "u-alice", "123456")
	if !errors.Is(err, ErrSetupNotStarted) {
		t.Fatalf("expected ErrSetupNotStarted, got %v", err)
	}
}

func TestTOTPConfirmAfterEnrollmentExpiry(t *testing.T) {
	env, done := newTestEnv(t, testConfig())
	defer done()
	ctx := context.Background()

	if _, err := env.engine.BeginTOTPSetup(ctx, "u-alice"); err != nil {
		t.Fatalf("BeginTOTPSetup failed: %v", err)
	}
	secret := env.pendingSecret(t, "u-alice")
	env.clock.Advance(10 * time.Minute)

	_, err := env.engine.ConfirmTOTPSetup(ctx, "u-alice", env.code(t, secret, 0))
	if !errors.Is(err, ErrSetupNotStarted) {
		t.Fatalf("expected ErrSetupNotStarted, got %v", err)
	}
}

func TestTOTPConfirmWrongCodeIsRateLimited(t *testing.T) {
	env, done := newTestEnv(t, testConfig())
	defer done()
	ctx := context.Background()

	if _, err := env.engine.BeginTOTPSetup(ctx, "u-alice"); err != nil {
		t.Fatalf("BeginTOTPSetup failed: %v", err)
	}
	secret := env.pendingSecret(t, "u-alice")
	wrong := wrongCode(env.code(t, secret, 0))

	for i := 1; i < 5; i++ {
		if _, err := env.engine.ConfirmTOTPSetup(ctx, "u-alice", wrong); !errors.Is(err, ErrInvalidTOTPCode) {
			t.Fatalf("attempt %d: expected ErrInvalidTOTPCode, got %v", i, err)
		}
	}
	if _, err := env.engine.ConfirmTOTPSetup(ctx, "u-alice", wrong); !errors.Is(err, ErrSetupRateLimited) {
		t.Fatalf("expected ErrSetupRateLimited, got %v", err)
	}
	if _, err := env.engine.ConfirmTOTPSetup(ctx, "u-alice", env.code(t, secret, 0)); !errors.Is(err, ErrSetupRateLimited) {
		t.Fatalf("limited user must stay limited, got %v", err)
	}
}

func TestVerifyTOTPSkewWindow(t *testing.T) {
	env, done := newTestEnv(t, testConfig())
	defer done()
	ctx := context.Background()

	secret, _ := env.enableTOTP(t, "u-alice")
	env.clock.Advance(5 * time.Minute)

	if err := env.engine.VerifyTOTP(ctx, "u-alice", env.code(t, secret, -3)); !errors.Is(err, ErrInvalidTOTPCode) {
		t.Fatalf("three steps back: expected ErrInvalidTOTPCode, got %v", err)
	}
	if err := env.engine.VerifyTOTP(ctx, "u-alice", env.code(t, secret, -1)); err != nil {
		t.Fatalf("one step back: %v", err)
	}
	if err := env.engine.VerifyTOTP(ctx, "u-alice", env.code(t, secret, 1)); err != nil {
		t.Fatalf("one step ahead: %v", err)
	}
}

func TestVerifyTOTPReplayRejected(t *testing.T) {
	env, done := newTestEnv(t, testConfig())
	defer done()
	ctx := context.Background()

	secret, _ := env.enableTOTP(t, "u-alice")
	code := env.code(t, secret, 0)

	if err := env.engine.VerifyTOTP(ctx, "u-alice", code); err != nil {
		t.Fatalf("first use: %v", err)
	}
	if err := env.engine.VerifyTOTP(ctx, "u-alice", code); !errors.Is(err, ErrInvalidTOTPCode) {
		t.Fatalf("replay: expected ErrInvalidTOTPCode, got %v", err)
	}
	// An earlier step inside the skew window is behind the claimed step.
	if err := env.engine.VerifyTOTP(ctx, "u-alice", env.code(t, secret, -1)); !errors.Is(err, ErrInvalidTOTPCode) {
		t.Fatalf("older step: expected ErrInvalidTOTPCode, got %v", err)
	}
}

func TestTOTPReplayAcrossLoginAndReveal(t *testing.T) {
	catalog := memoryCatalog{"Admin": {"JwtSecret": "s3cr3t"}}
	env, done := newTestEnv(t, testConfig(), withCatalog(catalog))
	defer done()
	ctx := context.Background()

	secret, _ := env.enableTOTP(t, "u-admin")
	code := env.code(t, secret, 0)

	res, err := env.engine.Login(ctx, LoginRequest{Email: "admin@example.com", Password: "admin-password-789"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := env.engine.CompleteTwoFactor(ctx, TwoFactorRequest{ChallengeID: res.ChallengeID, Code: code}); err != nil {
		t.Fatalf("CompleteTwoFactor failed: %v", err)
	}

	_, err = env.engine.Reveal(ctx, "u-admin", "Admin", "JwtSecret", code)
	if !errors.Is(err, ErrInvalidTOTPCode) {
		t.Fatalf("code spent on login must not reveal, got %v", err)
	}
}

func TestTOTPReplayOffAllowsReuse(t *testing.T) {
	cfg := testConfig()
	cfg.TOTP.EnforceReplayProtection = false
	env, done := newTestEnv(t, cfg)
	defer done()
	ctx := context.Background()

	secret, _ := env.enableTOTP(t, "u-alice")
	code := env.code(t, secret, 0)
	for i := 0; i < 2; i++ {
		if err := env.engine.VerifyTOTP(ctx, "u-alice", code); err != nil {
			t.Fatalf("use %d: %v", i+1, err)
		}
	}
}

func TestVerifyTOTPFormatAndState(t *testing.T) {
	env, done := newTestEnv(t, testConfig())
	defer done()
	ctx := context.Background()

	if err := env.engine.VerifyTOTP(ctx, "u-alice", "123456"); !errors.Is(err, ErrTwoFactorNotEnabled) {
		t.Fatalf("expected ErrTwoFactorNotEnabled, got %v", err)
	}
	env.enableTOTP(t, "u-alice")
	for _, code := range []string{"12345", "1234567", "12a456", ""} {
		if err := env.engine.VerifyTOTP(ctx, "u-alice", code); !errors.Is(err, ErrInvalidCodeFormat) {
			t.Fatalf("code %q: expected ErrInvalidCodeFormat, got %v", code, err)
		}
	}
	if err := env.engine.VerifyTOTP(ctx, "ghost", "123456"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestDisableTwoFactorClearsEverything(t *testing.T) {
	env, done := newTestEnv(t, testConfig())
	defer done()
	ctx := context.Background()

	env.enableTOTP(t, "u-alice")
	if _, _, err := env.engine.IssueDeviceToken(ctx, "u-alice", ""); err != nil {
		t.Fatalf("IssueDeviceToken failed: %v", err)
	}

	if err := env.engine.DisableTwoFactor(ctx, "u-alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	st, _ := env.engine.LockoutState(ctx, "u-alice")
	if st.FailedCount != 0 {
		t.Fatal("re-authentication failures must not count toward lockout")
	}

	if err := env.engine.DisableTwoFactor(ctx, "u-alice", "correct-password-123"); err != nil {
		t.Fatalf("DisableTwoFactor failed: %v", err)
	}
	status, err := env.engine.TwoFactorStatus(ctx, "u-alice")
	if err != nil {
		t.Fatalf("TwoFactorStatus failed: %v", err)
	}
	if status.Enabled || status.RecoveryCodesLeft != 0 || status.TrustedDevices != 0 {
		t.Fatalf("expected everything cleared, got %+v", status)
	}

	res, err := env.engine.Login(ctx, LoginRequest{Email: "alice@example.com", Password: "correct-password-123"})
	if err != nil || res.State != LoginAuthenticated {
		t.Fatalf("login after disable: %+v %v", res, err)
	}
}
