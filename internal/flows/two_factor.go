package flows

import (
	"context"
	"time"
)

// TOTPSecret is a generated secret in the forms enrollment needs.
type TOTPSecret struct {
	Raw    []byte
	Base32 string
	URI    string
}

// TOTPSetupResult is returned when enrollment starts.
type TOTPSetupResult struct {
	SharedKey        string
	AuthenticatorURI string
	QRCodeDataURI    string
	ExpiresAt        time.Time
}

// TwoFactorStatusResult defines the status display values.
type TwoFactorStatusResult struct {
	Enabled           bool
	RecoveryCodesLeft int
	TrustedDevices    int
}

type TwoFactorMetrics struct {
	TOTPEnabled       int
	TOTPDisabled      int
	ReplayRejected    int
	CodesGenerated    int
	RateLimitHit      int
	SetupCodeRejected int
}

type TwoFactorEvents struct {
	TOTPSetupRequested string
	TOTPEnabled        string
	TOTPDisabled       string
	TOTPSetupFailure   string
	CodesGenerated     string
}

type TwoFactorErrors struct {
	EngineNotReady     error
	Unavailable        error
	UserNotFound       error
	InvalidCredentials error
	InvalidCodeFormat  error
	InvalidTOTPCode    error
	NotEnabled         error
	AlreadyEnabled     error
	SetupNotStarted    error
	SetupRateLimited   error
}

type TwoFactorDeps struct {
	EnrollmentTTL  time.Duration
	EnforceReplay  bool
	RecoveryCount  int
	RecoveryLength int

	Now func() time.Time

	GetUser        func(context.Context, string) (TwoFactorUser, error)
	VerifyPassword func(context.Context, string, string) (bool, error)

	GenerateSecret func(accountName string) (TOTPSecret, error)
	FormatKey      func(string) string
	QRCode         func(string) (string, error)
	Verify         func(secret []byte, code string, now time.Time) (bool, int64, error)
	IsFormatError  func(error) bool

	Seal func([]byte) ([]byte, error)
	Open func([]byte) ([]byte, error)

	SaveEnrollment      func(context.Context, string, []byte, time.Time, time.Duration) error
	GetEnrollment       func(context.Context, string, time.Time) ([]byte, error)
	DeleteEnrollment    func(context.Context, string) error
	IsEnrollmentMissing func(error) bool

	ClaimStep   func(context.Context, string, int64) (bool, error)
	ResetReplay func(context.Context, string) error

	EnableTwoFactor  func(context.Context, string, []byte, [][32]byte, time.Time) error
	DisableTwoFactor func(context.Context, string) error
	RevokeAllDevices func(context.Context, string) (int, error)
	CountCodes       func(context.Context, string) (int, error)
	CountDevices     func(context.Context, string, time.Time) (int, error)

	CheckSetupLimiter  func(context.Context, string) error
	RecordSetupFailure func(context.Context, string) error
	ResetSetupLimiter  func(context.Context, string) error
	IsRateLimited      func(error) bool

	RandomIndex func(int) (int, error)

	MetricInc func(int)
	EmitAudit AuditFunc

	Metrics TwoFactorMetrics
	Events  TwoFactorEvents
	Errors  TwoFactorErrors
}

// RunVerifyTOTP checks code against the sealed secret of user. With replay
// protection on, the matching time step is claimed for the user and cannot
// verify again.
func RunVerifyTOTP(ctx context.Context, user TwoFactorUser, code string, deps TwoFactorDeps) error {
	normalizeTwoFactorDeps(&deps)

	if deps.Verify == nil || deps.Open == nil {
		return deps.Errors.EngineNotReady
	}
	if !user.TwoFactorEnabled || len(user.SealedSecret) == 0 {
		return deps.Errors.NotEnabled
	}

	secret, err := deps.Open(user.SealedSecret)
	if err != nil {
		return wrapUnavailable(deps.Errors.Unavailable, err)
	}
	defer clear(secret)

	return verifyAndClaim(ctx, user.UserID, secret, code, deps)
}

func verifyAndClaim(ctx context.Context, userID string, secret []byte, code string, deps TwoFactorDeps) error {
	ok, step, err := deps.Verify(secret, code, deps.Now())
	if err != nil {
		if deps.IsFormatError(err) {
			return deps.Errors.InvalidCodeFormat
		}
		return wrapUnavailable(deps.Errors.Unavailable, err)
	}
	if !ok {
		return deps.Errors.InvalidTOTPCode
	}

	if deps.EnforceReplay && deps.ClaimStep != nil {
		claimed, err := deps.ClaimStep(ctx, userID, step)
		if err != nil {
			return wrapUnavailable(deps.Errors.Unavailable, err)
		}
		if !claimed {
			deps.MetricInc(deps.Metrics.ReplayRejected)
			return deps.Errors.InvalidTOTPCode
		}
	}
	return nil
}

// RunBeginTOTPSetup generates a pending secret for userID. The secret only
// becomes active once RunConfirmTOTPSetup accepts a code for it.
func RunBeginTOTPSetup(ctx context.Context, userID string, deps TwoFactorDeps) (TOTPSetupResult, error) {
	normalizeTwoFactorDeps(&deps)

	if deps.GetUser == nil || deps.GenerateSecret == nil || deps.Seal == nil || deps.SaveEnrollment == nil {
		return TOTPSetupResult{}, deps.Errors.EngineNotReady
	}
	if userID == "" {
		return TOTPSetupResult{}, deps.Errors.UserNotFound
	}

	user, err := deps.GetUser(ctx, userID)
	if err != nil {
		return TOTPSetupResult{}, err
	}
	if user.TwoFactorEnabled {
		return TOTPSetupResult{}, deps.Errors.AlreadyEnabled
	}

	accountName := user.Email
	if accountName == "" {
		accountName = user.UserID
	}
	secret, err := deps.GenerateSecret(accountName)
	if err != nil {
		return TOTPSetupResult{}, wrapUnavailable(deps.Errors.Unavailable, err)
	}
	defer clear(secret.Raw)

	sealed, err := deps.Seal(secret.Raw)
	if err != nil {
		return TOTPSetupResult{}, wrapUnavailable(deps.Errors.Unavailable, err)
	}

	expiresAt := deps.Now().Add(deps.EnrollmentTTL)
	if err := deps.SaveEnrollment(ctx, user.UserID, sealed, expiresAt, deps.EnrollmentTTL); err != nil {
		return TOTPSetupResult{}, wrapUnavailable(deps.Errors.Unavailable, err)
	}

	result := TOTPSetupResult{
		SharedKey:        deps.FormatKey(secret.Base32),
		AuthenticatorURI: secret.URI,
		ExpiresAt:        expiresAt,
	}
	if deps.QRCode != nil {
		qr, err := deps.QRCode(secret.URI)
		if err != nil {
			return TOTPSetupResult{}, wrapUnavailable(deps.Errors.Unavailable, err)
		}
		result.QRCodeDataURI = qr
	}

	deps.EmitAudit(ctx, deps.Events.TOTPSetupRequested, true, user.UserID, "", nil, nil)
	return result, nil
}

// RunConfirmTOTPSetup verifies code against the pending secret, then enables
// two-factor authentication and stores a fresh recovery code batch in one
// store call. The plaintext codes are returned once.
func RunConfirmTOTPSetup(ctx context.Context, userID, code string, deps TwoFactorDeps) ([]string, error) {
	normalizeTwoFactorDeps(&deps)

	if deps.GetUser == nil || deps.GetEnrollment == nil || deps.EnableTwoFactor == nil || deps.Open == nil || deps.Verify == nil {
		return nil, deps.Errors.EngineNotReady
	}
	if userID == "" {
		return nil, deps.Errors.UserNotFound
	}

	user, err := deps.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.TwoFactorEnabled {
		return nil, deps.Errors.AlreadyEnabled
	}

	if err := deps.CheckSetupLimiter(ctx, user.UserID); err != nil {
		if deps.IsRateLimited(err) {
			deps.MetricInc(deps.Metrics.RateLimitHit)
			return nil, deps.Errors.SetupRateLimited
		}
		return nil, wrapUnavailable(deps.Errors.Unavailable, err)
	}

	now := deps.Now()
	sealed, err := deps.GetEnrollment(ctx, user.UserID, now)
	if err != nil {
		if deps.IsEnrollmentMissing(err) {
			return nil, deps.Errors.SetupNotStarted
		}
		return nil, wrapUnavailable(deps.Errors.Unavailable, err)
	}
	secret, err := deps.Open(sealed)
	if err != nil {
		return nil, wrapUnavailable(deps.Errors.Unavailable, err)
	}
	defer clear(secret)

	if err := verifyAndClaim(ctx, user.UserID, secret, code, deps); err != nil {
		if err == deps.Errors.InvalidTOTPCode {
			deps.MetricInc(deps.Metrics.SetupCodeRejected)
			deps.EmitAudit(ctx, deps.Events.TOTPSetupFailure, false, user.UserID, "", err, nil)
			if lerr := deps.RecordSetupFailure(ctx, user.UserID); lerr != nil && deps.IsRateLimited(lerr) {
				deps.MetricInc(deps.Metrics.RateLimitHit)
				return nil, deps.Errors.SetupRateLimited
			}
		}
		return nil, err
	}

	batch, err := NewRecoveryCodeBatch(user.UserID, deps.RecoveryCount, deps.RecoveryLength, deps.RandomIndex)
	if err != nil {
		return nil, wrapUnavailable(deps.Errors.Unavailable, err)
	}
	if err := deps.EnableTwoFactor(ctx, user.UserID, sealed, batch.Hashes, now); err != nil {
		return nil, wrapUnavailable(deps.Errors.Unavailable, err)
	}

	if deps.DeleteEnrollment != nil {
		_ = deps.DeleteEnrollment(ctx, user.UserID)
	}
	_ = deps.ResetSetupLimiter(ctx, user.UserID)

	deps.MetricInc(deps.Metrics.TOTPEnabled)
	deps.MetricInc(deps.Metrics.CodesGenerated)
	deps.EmitAudit(ctx, deps.Events.TOTPEnabled, true, user.UserID, "", nil, nil)
	deps.EmitAudit(ctx, deps.Events.CodesGenerated, true, user.UserID, "", nil, nil)
	return batch.Plain, nil
}

// RunDisableTwoFactor turns two-factor authentication off after re-checking
// the password. The secret and recovery codes go in one store call; trusted
// devices and the replay counter are dropped afterwards.
func RunDisableTwoFactor(ctx context.Context, userID, password string, deps TwoFactorDeps) error {
	normalizeTwoFactorDeps(&deps)

	if deps.GetUser == nil || deps.VerifyPassword == nil || deps.DisableTwoFactor == nil {
		return deps.Errors.EngineNotReady
	}
	if userID == "" {
		return deps.Errors.UserNotFound
	}
	if password == "" {
		return deps.Errors.InvalidCredentials
	}

	user, err := deps.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	ok, err := deps.VerifyPassword(ctx, user.UserID, password)
	if err != nil {
		return wrapUnavailable(deps.Errors.Unavailable, err)
	}
	if !ok {
		return deps.Errors.InvalidCredentials
	}
	if !user.TwoFactorEnabled {
		return deps.Errors.NotEnabled
	}

	if err := deps.DisableTwoFactor(ctx, user.UserID); err != nil {
		return wrapUnavailable(deps.Errors.Unavailable, err)
	}

	var cleanupErr error
	if deps.RevokeAllDevices != nil {
		if _, err := deps.RevokeAllDevices(ctx, user.UserID); err != nil {
			cleanupErr = err
		}
	}
	if deps.ResetReplay != nil {
		if err := deps.ResetReplay(ctx, user.UserID); err != nil && cleanupErr == nil {
			cleanupErr = err
		}
	}

	deps.MetricInc(deps.Metrics.TOTPDisabled)
	deps.EmitAudit(ctx, deps.Events.TOTPDisabled, true, user.UserID, "", cleanupErr, nil)
	if cleanupErr != nil {
		return wrapUnavailable(deps.Errors.Unavailable, cleanupErr)
	}
	return nil
}

// RunTwoFactorStatus collects the values shown on the security settings page.
func RunTwoFactorStatus(ctx context.Context, userID string, deps TwoFactorDeps) (TwoFactorStatusResult, error) {
	normalizeTwoFactorDeps(&deps)

	if deps.GetUser == nil || deps.CountCodes == nil {
		return TwoFactorStatusResult{}, deps.Errors.EngineNotReady
	}
	if userID == "" {
		return TwoFactorStatusResult{}, deps.Errors.UserNotFound
	}

	user, err := deps.GetUser(ctx, userID)
	if err != nil {
		return TwoFactorStatusResult{}, err
	}
	status := TwoFactorStatusResult{Enabled: user.TwoFactorEnabled}
	if !user.TwoFactorEnabled {
		return status, nil
	}

	if status.RecoveryCodesLeft, err = deps.CountCodes(ctx, user.UserID); err != nil {
		return TwoFactorStatusResult{}, wrapUnavailable(deps.Errors.Unavailable, err)
	}
	if deps.CountDevices != nil {
		if status.TrustedDevices, err = deps.CountDevices(ctx, user.UserID, deps.Now()); err != nil {
			return TwoFactorStatusResult{}, wrapUnavailable(deps.Errors.Unavailable, err)
		}
	}
	return status, nil
}

func normalizeTwoFactorDeps(deps *TwoFactorDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.FormatKey == nil {
		deps.FormatKey = func(s string) string { return s }
	}
	if deps.IsFormatError == nil {
		deps.IsFormatError = func(error) bool { return false }
	}
	if deps.IsEnrollmentMissing == nil {
		deps.IsEnrollmentMissing = func(error) bool { return false }
	}
	if deps.CheckSetupLimiter == nil {
		deps.CheckSetupLimiter = func(context.Context, string) error { return nil }
	}
	if deps.RecordSetupFailure == nil {
		deps.RecordSetupFailure = func(context.Context, string) error { return nil }
	}
	if deps.ResetSetupLimiter == nil {
		deps.ResetSetupLimiter = func(context.Context, string) error { return nil }
	}
	if deps.IsRateLimited == nil {
		deps.IsRateLimited = func(error) bool { return false }
	}
	if deps.RandomIndex == nil {
		deps.RandomIndex = cryptoRandomIndex
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
}
