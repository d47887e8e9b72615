package httpapi

import (
	"errors"
	"net/http"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
)

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, goGuard.ErrAccountLocked),
		errors.Is(err, goGuard.ErrInvalidCredentials),
		errors.Is(err, goGuard.ErrInvalidTOTPCode),
		errors.Is(err, goGuard.ErrRecoveryCodeInvalid),
		errors.Is(err, goGuard.ErrChallengeExpired),
		errors.Is(err, goGuard.ErrDeviceTokenInvalid),
		errors.Is(err, goGuard.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, goGuard.ErrEmailNotConfirmed):
		return http.StatusForbidden
	case errors.Is(err, goGuard.ErrSecretNotFound),
		errors.Is(err, goGuard.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, goGuard.ErrRevealRateLimited),
		errors.Is(err, goGuard.ErrSetupRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, goGuard.ErrInvalidCodeFormat),
		errors.Is(err, goGuard.ErrUnsupportedService),
		errors.Is(err, goGuard.ErrSelfModificationForbidden),
		errors.Is(err, goGuard.ErrLastAdministratorForbidden),
		errors.Is(err, goGuard.ErrInvalidRequest),
		errors.Is(err, goGuard.ErrTwoFactorNotEnabled),
		errors.Is(err, goGuard.ErrTwoFactorAlreadyEnabled),
		errors.Is(err, goGuard.ErrSetupNotStarted),
		errors.Is(err, goGuard.ErrDeviceTrustDisabled),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, goGuard.ErrBackendUnavailable),
		errors.Is(err, goGuard.ErrEngineNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

var errBadRequest = errors.New("malformed request body")

type errorResponse struct {
	Error       string     `json:"error"`
	LockedUntil *time.Time `json:"lockedUntil,omitempty"`
}

// writeError renders err. The lockout end is disclosed only when
// discloseLockout is set, i.e. to the account holder; anonymous callers
// get a generic message. Server errors are logged and never echoed.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, discloseLockout bool) {
	status := statusFor(err)
	body := errorResponse{Error: err.Error()}

	if until, ok := goGuard.LockedUntil(err); ok {
		body.Error = "account temporarily locked"
		if discloseLockout {
			u := until.UTC()
			body.LockedUntil = &u
		}
	}

	switch {
	case status >= http.StatusInternalServerError:
		s.logger.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path, "status", status, "error", err)
		body.Error = http.StatusText(status)
	case errors.Is(err, goGuard.ErrInvalidCredentials):
		body.Error = "invalid email or password"
	}
	writeJSON(w, status, body)
}
