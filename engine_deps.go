package goGuard

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goGuard/internal"
	"github.com/MrEthical07/goGuard/internal/flows"
	"github.com/MrEthical07/goGuard/internal/limiters"
	"github.com/MrEthical07/goGuard/internal/stores"
	"github.com/MrEthical07/goGuard/totp"
)

// buildDeps binds every flow to the engine's stores once. Flows that call
// other flows go through e.deps at call time.
func (e *Engine) buildDeps() flows.Deps {
	cfg := e.config
	return flows.Deps{
		Lockout:       e.lockoutDeps(cfg),
		RecoveryCodes: e.recoveryCodeDeps(cfg),
		DeviceTrust:   e.deviceTrustDeps(cfg),
		TwoFactor:     e.twoFactorDeps(cfg),
		Login:         e.loginDeps(cfg),
		Reveal:        e.revealDeps(cfg),
		Admin:         e.adminDeps(cfg),
	}
}

func (e *Engine) lockoutDeps(cfg Config) flows.LockoutDeps {
	return flows.LockoutDeps{
		Enabled:       cfg.Lockout.Enabled,
		Threshold:     cfg.Lockout.Threshold,
		Duration:      cfg.Lockout.Duration,
		Now:           e.now,
		RecordFailure: e.lockout.RecordFailure,
		State:         e.lockout.State,
		Reset:         e.lockout.Reset,
		UserExists:    e.userExists,
		MetricInc:     e.flowMetricInc,
		EmitAudit:     e.emitAudit,
		Metrics: flows.LockoutMetrics{
			AccountLocked:  int(MetricAccountLocked),
			LockoutCleared: int(MetricLockoutCleared),
		},
		Events: flows.LockoutEvents{
			AccountLocked:       auditEventAccountLocked,
			LockoutClearedAdmin: auditEventLockoutClearedAdmin,
		},
		Errors: flows.LockoutErrors{
			EngineNotReady:            ErrEngineNotReady,
			Unavailable:               ErrBackendUnavailable,
			UserNotFound:              ErrUserNotFound,
			SelfModificationForbidden: ErrSelfModificationForbidden,
		},
	}
}

func (e *Engine) recoveryCodeDeps(cfg Config) flows.RecoveryCodeDeps {
	return flows.RecoveryCodeDeps{
		Count:          cfg.RecoveryCodes.Count,
		Length:         cfg.RecoveryCodes.Length,
		Now:            e.now,
		GetUser:        e.twoFactorUser,
		VerifyPassword: e.credentials.VerifyPassword,
		ReplaceCodes:   e.credentials.ReplaceRecoveryCodes,
		ConsumeCode:    e.credentials.ConsumeRecoveryCode,
		CountCodes:     e.credentials.CountRecoveryCodes,
		MetricInc:      e.flowMetricInc,
		EmitAudit:      e.emitAudit,
		Metrics: flows.RecoveryCodeMetrics{
			Used:      int(MetricRecoveryCodeUsed),
			Failed:    int(MetricRecoveryCodeFailed),
			Generated: int(MetricRecoveryCodesGenerated),
		},
		Events: flows.RecoveryCodeEvents{
			Generated: auditEventRecoveryCodesGenerated,
			Used:      auditEventRecoveryCodeUsed,
			Failed:    auditEventRecoveryCodeFailed,
		},
		Errors: flows.RecoveryCodeErrors{
			EngineNotReady:      ErrEngineNotReady,
			Unavailable:         ErrBackendUnavailable,
			UserNotFound:        ErrUserNotFound,
			InvalidCredentials:  ErrInvalidCredentials,
			TwoFactorNotEnabled: ErrTwoFactorNotEnabled,
			Invalid:             ErrRecoveryCodeInvalid,
		},
	}
}

func (e *Engine) deviceTrustDeps(cfg Config) flows.DeviceTrustDeps {
	return flows.DeviceTrustDeps{
		Enabled:                 cfg.DeviceTrust.Enabled,
		TTL:                     cfg.DeviceTrust.TTL,
		RequireFingerprintMatch: cfg.DeviceTrust.RequireFingerprintMatch,
		Now:                     e.now,
		NewToken:                internal.NewDeviceToken,
		HashToken:               internal.HashDeviceToken,
		HashFingerprint:         internal.HashFingerprint,
		Save: func(ctx context.Context, hash [32]byte, record flows.DeviceRecord, ttl time.Duration) error {
			return e.devices.Save(ctx, hash, &stores.DeviceTrust{
				UserID:      record.UserID,
				IssuedAt:    record.IssuedAt.UnixMilli(),
				ExpiresAt:   record.ExpiresAt.UnixMilli(),
				Fingerprint: record.Fingerprint,
			}, ttl)
		},
		Get: func(ctx context.Context, hash [32]byte) (flows.DeviceRecord, error) {
			record, err := e.devices.Get(ctx, hash)
			if err != nil {
				return flows.DeviceRecord{}, err
			}
			return flows.DeviceRecord{
				UserID:      record.UserID,
				IssuedAt:    time.UnixMilli(record.IssuedAt),
				ExpiresAt:   time.UnixMilli(record.ExpiresAt),
				Fingerprint: record.Fingerprint,
			}, nil
		},
		Delete:    e.devices.Delete,
		DeleteAll: e.devices.DeleteAll,
		IsMissing: func(err error) bool {
			return errors.Is(err, stores.ErrDeviceNotFound)
		},
		MetricInc: e.flowMetricInc,
		EmitAudit: e.emitAudit,
		Metrics: flows.DeviceTrustMetrics{
			Trusted:  int(MetricDeviceTrusted),
			Accepted: int(MetricDeviceTrustAccepted),
			Revoked:  int(MetricDeviceRevoked),
		},
		Events: flows.DeviceTrustEvents{
			Trusted:    auditEventDeviceTrusted,
			Revoked:    auditEventDeviceRevoked,
			RevokedAll: auditEventDeviceRevokedAll,
		},
		Errors: flows.DeviceTrustErrors{
			EngineNotReady: ErrEngineNotReady,
			Unavailable:    ErrBackendUnavailable,
			UserNotFound:   ErrUserNotFound,
			Invalid:        ErrDeviceTokenInvalid,
			Disabled:       ErrDeviceTrustDisabled,
		},
	}
}

func (e *Engine) twoFactorDeps(cfg Config) flows.TwoFactorDeps {
	deps := flows.TwoFactorDeps{
		EnrollmentTTL:  cfg.TOTP.EnrollmentTTL,
		EnforceReplay:  cfg.TOTP.EnforceReplayProtection,
		RecoveryCount:  cfg.RecoveryCodes.Count,
		RecoveryLength: cfg.RecoveryCodes.Length,
		Now:            e.now,
		GetUser:        e.twoFactorUser,
		VerifyPassword: e.credentials.VerifyPassword,
		GenerateSecret: func(accountName string) (flows.TOTPSecret, error) {
			secret, err := e.totp.GenerateSecret(accountName)
			if err != nil {
				return flows.TOTPSecret{}, err
			}
			return flows.TOTPSecret{Raw: secret.Raw, Base32: secret.Base32, URI: secret.URI}, nil
		},
		FormatKey: totp.FormatSharedKey,
		Verify:    e.totp.Verify,
		IsFormatError: func(err error) bool {
			return errors.Is(err, totp.ErrInvalidCodeFormat)
		},
		Seal: e.cipher.Seal,
		Open: e.cipher.Open,
		SaveEnrollment: func(ctx context.Context, userID string, sealed []byte, expiresAt time.Time, ttl time.Duration) error {
			return e.enrollments.Save(ctx, userID, &stores.Enrollment{
				SealedSecret: sealed,
				ExpiresAt:    expiresAt.UnixMilli(),
			}, ttl)
		},
		GetEnrollment: func(ctx context.Context, userID string, now time.Time) ([]byte, error) {
			record, err := e.enrollments.Get(ctx, userID, now)
			if err != nil {
				return nil, err
			}
			return record.SealedSecret, nil
		},
		DeleteEnrollment: e.enrollments.Delete,
		IsEnrollmentMissing: func(err error) bool {
			return errors.Is(err, stores.ErrEnrollmentNotFound)
		},
		ClaimStep: func(ctx context.Context, userID string, step int64) (bool, error) {
			return e.replay.Claim(ctx, userID, step, e.replayRetention())
		},
		ResetReplay:      e.replay.Reset,
		EnableTwoFactor:  e.credentials.EnableTwoFactor,
		DisableTwoFactor: e.credentials.DisableTwoFactor,
		RevokeAllDevices: func(ctx context.Context, userID string) (int, error) {
			return flows.RunRevokeAllDeviceTokens(ctx, userID, e.deps.DeviceTrust)
		},
		CountCodes:         e.credentials.CountRecoveryCodes,
		CountDevices:       e.devices.CountActive,
		CheckSetupLimiter:  e.setupLimiter.Check,
		RecordSetupFailure: e.setupLimiter.RecordFailure,
		ResetSetupLimiter:  e.setupLimiter.Reset,
		IsRateLimited:      isRateLimited,
		MetricInc:          e.flowMetricInc,
		EmitAudit:          e.emitAudit,
		Metrics: flows.TwoFactorMetrics{
			TOTPEnabled:       int(MetricTOTPEnabled),
			TOTPDisabled:      int(MetricTOTPDisabled),
			ReplayRejected:    int(MetricTOTPReplayRejected),
			CodesGenerated:    int(MetricRecoveryCodesGenerated),
			RateLimitHit:      int(MetricRateLimitHit),
			SetupCodeRejected: int(MetricTwoFactorFailure),
		},
		Events: flows.TwoFactorEvents{
			TOTPSetupRequested: auditEventTOTPSetupRequested,
			TOTPEnabled:        auditEventTOTPEnabled,
			TOTPDisabled:       auditEventTOTPDisabled,
			TOTPSetupFailure:   auditEventTOTPSetupFailure,
			CodesGenerated:     auditEventRecoveryCodesGenerated,
		},
		Errors: flows.TwoFactorErrors{
			EngineNotReady:     ErrEngineNotReady,
			Unavailable:        ErrBackendUnavailable,
			UserNotFound:       ErrUserNotFound,
			InvalidCredentials: ErrInvalidCredentials,
			InvalidCodeFormat:  ErrInvalidCodeFormat,
			InvalidTOTPCode:    ErrInvalidTOTPCode,
			NotEnabled:         ErrTwoFactorNotEnabled,
			AlreadyEnabled:     ErrTwoFactorAlreadyEnabled,
			SetupNotStarted:    ErrSetupNotStarted,
			SetupRateLimited:   ErrSetupRateLimited,
		},
	}
	if size := cfg.TOTP.QRCodeSize; size > 0 {
		deps.QRCode = func(uri string) (string, error) {
			return totp.QRCodeDataURI(uri, size)
		}
	}
	return deps
}

func (e *Engine) loginDeps(cfg Config) flows.LoginDeps {
	var equalize func(context.Context, string)
	if eq, ok := e.credentials.(PasswordEqualizer); ok {
		equalize = eq.EqualizePassword
	}

	return flows.LoginDeps{
		ChallengeTTL:          cfg.Login.ChallengeTTL,
		ChallengeMaxAttempts:  cfg.Login.ChallengeMaxAttempts,
		RequireConfirmedEmail: cfg.Login.RequireConfirmedEmail,
		DeviceTrustEnabled:    cfg.DeviceTrust.Enabled,
		Now:                   e.now,
		FindByEmail:           e.twoFactorUserByEmail,
		FindByID:              e.twoFactorUser,
		IsUserNotFound:        isUserNotFound,
		VerifyPassword:        e.credentials.VerifyPassword,
		EqualizePassword:      equalize,
		CheckLocked: func(ctx context.Context, userID string) (time.Time, bool, error) {
			return flows.RunCheckLocked(ctx, userID, e.deps.Lockout)
		},
		RecordFailure: func(ctx context.Context, userID string) (flows.LockoutDecision, error) {
			return flows.RunRecordFailure(ctx, userID, e.deps.Lockout)
		},
		RecordSuccess: func(ctx context.Context, userID string) error {
			return flows.RunRecordSuccess(ctx, userID, e.deps.Lockout)
		},
		ValidateDevice: func(ctx context.Context, userID, token, fingerprint string) error {
			return flows.RunValidateDeviceToken(ctx, userID, token, fingerprint, e.deps.DeviceTrust)
		},
		IsDeviceInvalid: func(err error) bool {
			return errors.Is(err, ErrDeviceTokenInvalid)
		},
		IssueDevice: func(ctx context.Context, userID, fingerprint string) (string, time.Time, error) {
			return flows.RunIssueDeviceToken(ctx, userID, fingerprint, e.deps.DeviceTrust)
		},
		NewChallengeID:   internal.NewChallengeID,
		ValidChallengeID: internal.ValidChallengeID,
		SaveChallenge: func(ctx context.Context, id string, challenge flows.LoginChallenge, ttl time.Duration) error {
			return e.challenges.Save(ctx, id, &stores.Challenge{
				UserID:     challenge.UserID,
				Persistent: challenge.Persistent,
				ExpiresAt:  challenge.ExpiresAt.UnixMilli(),
			}, ttl)
		},
		GetChallenge: func(ctx context.Context, id string, now time.Time) (flows.LoginChallenge, error) {
			record, err := e.challenges.Get(ctx, id, now)
			if err != nil {
				return flows.LoginChallenge{}, err
			}
			return flows.LoginChallenge{
				UserID:     record.UserID,
				Persistent: record.Persistent,
				ExpiresAt:  time.UnixMilli(record.ExpiresAt),
			}, nil
		},
		DeleteChallenge:        e.challenges.Delete,
		RecordChallengeFailure: e.challenges.RecordFailure,
		IsChallengeGone: func(err error) bool {
			return errors.Is(err, stores.ErrChallengeNotFound) || errors.Is(err, stores.ErrChallengeExpired)
		},
		IsTOTPFormat: func(code string) bool {
			return totp.ValidateFormat(code) == nil
		},
		VerifyTOTP: e.verifyTOTPUser,
		ConsumeRecoveryCode: func(ctx context.Context, userID, code string) error {
			return flows.RunConsumeRecoveryCode(ctx, userID, code, e.deps.RecoveryCodes)
		},
		MetricInc: e.flowMetricInc,
		EmitAudit: e.emitAudit,
		Metrics: flows.LoginMetrics{
			LoginSuccess:      int(MetricLoginSuccess),
			LoginFailure:      int(MetricLoginFailure),
			LoginLocked:       int(MetricLoginLocked),
			TwoFactorRequired: int(MetricTwoFactorRequired),
			TwoFactorSuccess:  int(MetricTwoFactorSuccess),
			TwoFactorFailure:  int(MetricTwoFactorFailure),
			ChallengeExpired:  int(MetricChallengeExpired),
		},
		Events: flows.LoginEvents{
			LoginSuccess:      auditEventLoginSuccess,
			LoginFailure:      auditEventLoginFailure,
			TwoFactorRequired: auditEventTwoFactorRequired,
			TwoFactorSuccess:  auditEventTwoFactorSuccess,
			TwoFactorFailure:  auditEventTwoFactorFailure,
			DeviceTrustFailed: auditEventDeviceTrustFailed,
		},
		Errors: flows.LoginErrors{
			EngineNotReady:      ErrEngineNotReady,
			Unavailable:         ErrBackendUnavailable,
			InvalidCredentials:  ErrInvalidCredentials,
			EmailNotConfirmed:   ErrEmailNotConfirmed,
			ChallengeExpired:    ErrChallengeExpired,
			InvalidCodeFormat:   ErrInvalidCodeFormat,
			InvalidTOTPCode:     ErrInvalidTOTPCode,
			RecoveryCodeInvalid: ErrRecoveryCodeInvalid,
			Locked:              lockoutError,
		},
	}
}

func (e *Engine) revealDeps(cfg Config) flows.RevealDeps {
	services := make(map[string]struct{}, len(cfg.Reveal.Services))
	for _, s := range cfg.Reveal.Services {
		services[s] = struct{}{}
	}

	deps := flows.RevealDeps{
		Now: e.now,
		IsSupported: func(service string) bool {
			_, ok := services[service]
			return ok
		},
		GetUser:        e.twoFactorUser,
		IsUserNotFound: isUserNotFound,
		VerifyTOTP:     e.verifyTOTPUser,
		IsNotFound: func(err error) bool {
			return errors.Is(err, ErrSecretNotFound)
		},
		Open:          e.cipher.Open,
		CheckLimiter:  e.revealLimiter.Check,
		RecordFailure: e.revealLimiter.RecordFailure,
		ResetLimiter:  e.revealLimiter.Reset,
		IsRateLimited: isRateLimited,
		MetricInc:     e.flowMetricInc,
		EmitAudit:     e.emitAudit,
		Metrics: flows.RevealMetrics{
			Revealed:     int(MetricSecretRevealed),
			Failed:       int(MetricSecretRevealFailed),
			RateLimitHit: int(MetricRateLimitHit),
		},
		Events: flows.RevealEvents{
			Revealed: auditEventSecretRevealed,
			Failed:   auditEventSecretRevealFailed,
		},
		Errors: flows.RevealErrors{
			EngineNotReady:      ErrEngineNotReady,
			Unavailable:         ErrBackendUnavailable,
			Unauthenticated:     ErrUnauthenticated,
			UnsupportedService:  ErrUnsupportedService,
			NotFound:            ErrSecretNotFound,
			InvalidRequest:      ErrInvalidRequest,
			InvalidCodeFormat:   ErrInvalidCodeFormat,
			InvalidTOTPCode:     ErrInvalidTOTPCode,
			TwoFactorNotEnabled: ErrTwoFactorNotEnabled,
			RateLimited:         ErrRevealRateLimited,
		},
	}
	if e.catalog != nil {
		deps.Lookup = e.catalog.Lookup
		deps.Entries = func(ctx context.Context, service string) ([]flows.CatalogEntry, error) {
			entries, err := e.catalog.Entries(ctx, service)
			if err != nil {
				return nil, err
			}
			out := make([]flows.CatalogEntry, len(entries))
			for i, entry := range entries {
				out[i] = flows.CatalogEntry(entry)
			}
			return out, nil
		}
	}
	return deps
}

func (e *Engine) adminDeps(cfg Config) flows.AdminDeps {
	deps := flows.AdminDeps{
		AdministratorRole: cfg.Admin.AdministratorRole,
		LockDuration:      cfg.Lockout.AdminLockDuration,
		Now:               e.now,
		UserExists:        e.userExists,
		SetLockoutEnd:     e.lockout.Lock,
		Unlock: func(ctx context.Context, actorID, targetID string) error {
			return flows.RunAdminUnlock(ctx, actorID, targetID, e.deps.Lockout)
		},
		MetricInc: e.flowMetricInc,
		EmitAudit: e.emitAudit,
		Metrics: flows.AdminMetrics{
			AdminAction:   int(MetricAdminAction),
			AccountLocked: int(MetricAccountLocked),
		},
		Events: flows.AdminEvents{
			LockUser:   auditEventAdminLockUser,
			UnlockUser: auditEventAdminUnlockUser,
			AssignRole: auditEventAdminAssignRole,
			RemoveRole: auditEventAdminRemoveRole,
		},
		Errors: flows.AdminErrors{
			EngineNotReady:             ErrEngineNotReady,
			Unavailable:                ErrBackendUnavailable,
			UserNotFound:               ErrUserNotFound,
			InvalidRequest:             ErrInvalidRequest,
			SelfModificationForbidden:  ErrSelfModificationForbidden,
			LastAdministratorForbidden: ErrLastAdministratorForbidden,
		},
	}
	if e.admin != nil {
		deps.UserRoles = e.admin.UserRoles
		deps.AddRole = e.admin.AddRole
		deps.RemoveRole = e.admin.RemoveRole
		deps.CountUsersInRole = e.admin.CountUsersInRole
		deps.RemoveRoleUnlessLast = e.admin.RemoveRoleUnlessLast
		if _, durable := e.lockout.(storeLockout); durable {
			if ls, ok := e.admin.(AdministratorLockoutStore); ok {
				deps.LockUnlessLastHolder = ls.LockUnlessLastHolder
			}
		}
	}
	deps.Serialize = &e.adminMu
	return deps
}

// verifyTOTPUser is the single TOTP check shared by login, reveal and the
// public VerifyTOTP, so one replay counter covers all of them.
func (e *Engine) verifyTOTPUser(ctx context.Context, user flows.TwoFactorUser, code string) error {
	return flows.RunVerifyTOTP(ctx, user, code, e.deps.TwoFactor)
}

func isRateLimited(err error) bool {
	return errors.Is(err, limiters.ErrAttemptsExceeded)
}
