package goGuard

import (
	"context"
	"errors"
)

const (
	auditEventLoginSuccess           = "login_success"
	auditEventLoginFailure           = "login_failure"
	auditEventAccountLocked          = "account_locked"
	auditEventTwoFactorRequired      = "two_factor_required"
	auditEventTwoFactorSuccess       = "two_factor_success"
	auditEventTwoFactorFailure       = "two_factor_failure"
	auditEventTOTPSetupRequested     = "totp_setup_requested"
	auditEventTOTPSetupFailure       = "totp_setup_failure"
	auditEventTOTPEnabled            = "totp_enabled"
	auditEventTOTPDisabled           = "totp_disabled"
	auditEventRecoveryCodesGenerated = "recovery_codes_generated"
	auditEventRecoveryCodeUsed       = "recovery_code_used"
	auditEventRecoveryCodeFailed     = "recovery_code_failed"
	auditEventDeviceTrusted          = "device_trusted"
	auditEventDeviceTrustFailed      = "device_trust_failed"
	auditEventDeviceRevoked          = "device_revoked"
	auditEventDeviceRevokedAll       = "device_revoked_all"
	auditEventLockoutClearedAdmin    = "lockout_cleared_admin"
	auditEventSecretRevealed         = "secret_revealed"
	auditEventSecretRevealFailed     = "secret_reveal_failed"
	auditEventAdminLockUser          = "admin_lock_user"
	auditEventAdminUnlockUser        = "admin_unlock_user"
	auditEventAdminAssignRole        = "admin_assign_role"
	auditEventAdminRemoveRole        = "admin_remove_role"
)

// AuditErrorCode is the stable error label recorded on failed audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials  AuditErrorCode = "invalid_credentials"
	auditErrAccountLocked       AuditErrorCode = "account_locked"
	auditErrEmailNotConfirmed   AuditErrorCode = "email_not_confirmed"
	auditErrInvalidCodeFormat   AuditErrorCode = "invalid_code_format"
	auditErrTOTPInvalid         AuditErrorCode = "totp_invalid"
	auditErrRecoveryCodeInvalid AuditErrorCode = "recovery_code_invalid"
	auditErrChallengeExpired    AuditErrorCode = "challenge_expired"
	auditErrDeviceTokenInvalid  AuditErrorCode = "device_token_invalid"
	auditErrSecretNotFound      AuditErrorCode = "secret_not_found"
	auditErrUnsupportedService  AuditErrorCode = "unsupported_service"
	auditErrSelfModification    AuditErrorCode = "self_modification"
	auditErrLastAdministrator   AuditErrorCode = "last_administrator"
	auditErrRateLimited         AuditErrorCode = "rate_limited"
	auditErrUserNotFound        AuditErrorCode = "user_not_found"
	auditErrTwoFactorNotEnabled AuditErrorCode = "two_factor_not_enabled"
	auditErrSetupNotStarted     AuditErrorCode = "setup_not_started"
	auditErrUnavailable         AuditErrorCode = "backend_unavailable"
	auditErrInternal            AuditErrorCode = "internal_error"
)

// emitAudit matches flows.AuditFunc. The client IP and user agent are
// taken from ctx.
func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	actorID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}
	if ua := UserAgentFromContext(ctx); ua != "" {
		if metadata == nil {
			metadata = make(map[string]string, 1)
		}
		metadata["user_agent"] = ua
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		ActorID:   actorID,
		IP:        ClientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrEmailNotConfirmed):
		return auditErrEmailNotConfirmed
	case errors.Is(err, ErrInvalidCodeFormat):
		return auditErrInvalidCodeFormat
	case errors.Is(err, ErrInvalidTOTPCode):
		return auditErrTOTPInvalid
	case errors.Is(err, ErrRecoveryCodeInvalid):
		return auditErrRecoveryCodeInvalid
	case errors.Is(err, ErrChallengeExpired):
		return auditErrChallengeExpired
	case errors.Is(err, ErrDeviceTokenInvalid):
		return auditErrDeviceTokenInvalid
	case errors.Is(err, ErrSecretNotFound):
		return auditErrSecretNotFound
	case errors.Is(err, ErrUnsupportedService):
		return auditErrUnsupportedService
	case errors.Is(err, ErrSelfModificationForbidden):
		return auditErrSelfModification
	case errors.Is(err, ErrLastAdministratorForbidden):
		return auditErrLastAdministrator
	case errors.Is(err, ErrRevealRateLimited),
		errors.Is(err, ErrSetupRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrTwoFactorNotEnabled):
		return auditErrTwoFactorNotEnabled
	case errors.Is(err, ErrSetupNotStarted):
		return auditErrSetupNotStarted
	case errors.Is(err, ErrBackendUnavailable),
		errors.Is(err, ErrEngineNotReady):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
