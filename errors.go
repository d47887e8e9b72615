package goGuard

import (
	"errors"
	"time"
)

var (
	// ErrInvalidCredentials is returned for a wrong password and for an unknown
	// account alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is matched by every *LockoutError.
	ErrAccountLocked     = errors.New("account locked")
	ErrTwoFactorRequired = errors.New("two-factor authentication required")
	// ErrInvalidCodeFormat is returned when a TOTP code is not exactly 6 digits.
	ErrInvalidCodeFormat = errors.New("code must be exactly 6 digits")
	// ErrInvalidTOTPCode covers wrong, stale and replayed codes.
	ErrInvalidTOTPCode = errors.New("invalid totp code")
	// ErrRecoveryCodeInvalid covers unknown, already used and foreign recovery codes.
	ErrRecoveryCodeInvalid = errors.New("invalid recovery code")
	// ErrChallengeExpired is returned for expired, unknown or exhausted two-factor challenges.
	ErrChallengeExpired   = errors.New("two-factor challenge expired")
	ErrDeviceTokenInvalid = errors.New("device token expired or invalid")
	// ErrSecretNotFound is returned by Reveal for keys absent from the service configuration.
	ErrSecretNotFound     = errors.New("configuration key not found")
	ErrUnsupportedService = errors.New("unsupported service")
	// ErrSelfModificationForbidden is returned when an administrator targets their own account.
	ErrSelfModificationForbidden = errors.New("cannot modify own account")
	// ErrLastAdministratorForbidden protects the final holder of the administrator role.
	ErrLastAdministratorForbidden = errors.New("cannot remove the last administrator")

	// ErrBackendUnavailable wraps store and redis failures.
	ErrBackendUnavailable      = errors.New("security backend unavailable")
	ErrEngineNotReady          = errors.New("engine not initialized")
	ErrTwoFactorNotEnabled     = errors.New("two-factor authentication not enabled")
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor authentication already enabled")
	// ErrSetupNotStarted is returned when a TOTP setup is confirmed without a pending enrollment.
	ErrSetupNotStarted   = errors.New("totp setup not started or expired")
	ErrUserNotFound      = errors.New("user not found")
	ErrRevealRateLimited = errors.New("secret reveal rate limited")
	// ErrSetupRateLimited is returned after too many wrong setup confirmations.
	ErrSetupRateLimited = errors.New("totp setup rate limited")
	// ErrUnauthenticated is returned when an operation is invoked without a caller identity.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrEmailNotConfirmed is only returned after the password was verified.
	ErrEmailNotConfirmed = errors.New("email not confirmed")
	// ErrDeviceTrustDisabled is returned by IssueDeviceToken when device trust is off.
	ErrDeviceTrustDisabled = errors.New("device trust disabled")
	ErrInvalidRequest      = errors.New("invalid request")
)

// LockoutError reports an active lockout and when it ends.
type LockoutError struct {
	Until time.Time
}

func (e *LockoutError) Error() string {
	if e == nil || e.Until.IsZero() {
		return ErrAccountLocked.Error()
	}
	return ErrAccountLocked.Error() + " until " + e.Until.UTC().Format(time.RFC3339)
}

// Is reports whether target is ErrAccountLocked.
func (e *LockoutError) Is(target error) bool {
	return target == ErrAccountLocked
}

// LockedUntil extracts the lockout end from err. It returns false when err
// does not carry a lockout.
func LockedUntil(err error) (time.Time, bool) {
	var le *LockoutError
	if errors.As(err, &le) && le != nil {
		return le.Until, true
	}
	return time.Time{}, false
}

func lockoutError(until time.Time) error {
	return &LockoutError{Until: until}
}
