package flows

import (
	"context"
	"strconv"
	"time"
)

// DeviceRecord is the stored form of a remember-device token.
type DeviceRecord struct {
	UserID      string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Fingerprint [32]byte
}

type DeviceTrustMetrics struct {
	Trusted  int
	Accepted int
	Revoked  int
}

type DeviceTrustEvents struct {
	Trusted    string
	Revoked    string
	RevokedAll string
}

type DeviceTrustErrors struct {
	EngineNotReady error
	Unavailable    error
	UserNotFound   error
	Invalid        error
	Disabled       error
}

type DeviceTrustDeps struct {
	Enabled                 bool
	TTL                     time.Duration
	RequireFingerprintMatch bool

	Now func() time.Time

	NewToken        func() (string, [32]byte, error)
	HashToken       func(string) ([32]byte, error)
	HashFingerprint func(string) [32]byte

	Save      func(context.Context, [32]byte, DeviceRecord, time.Duration) error
	Get       func(context.Context, [32]byte) (DeviceRecord, error)
	Delete    func(context.Context, string, [32]byte) (bool, error)
	DeleteAll func(context.Context, string) (int, error)
	IsMissing func(error) bool

	MetricInc func(int)
	EmitAudit AuditFunc

	Metrics DeviceTrustMetrics
	Events  DeviceTrustEvents
	Errors  DeviceTrustErrors
}

// RunIssueDeviceToken stores a new token for userID valid for TTL from now
// and returns the plaintext token and its expiry.
func RunIssueDeviceToken(ctx context.Context, userID, fingerprint string, deps DeviceTrustDeps) (string, time.Time, error) {
	normalizeDeviceTrustDeps(&deps)

	if !deps.Enabled {
		return "", time.Time{}, deps.Errors.Disabled
	}
	if deps.NewToken == nil || deps.Save == nil {
		return "", time.Time{}, deps.Errors.EngineNotReady
	}
	if userID == "" {
		return "", time.Time{}, deps.Errors.UserNotFound
	}

	token, hash, err := deps.NewToken()
	if err != nil {
		return "", time.Time{}, wrapUnavailable(deps.Errors.Unavailable, err)
	}

	now := deps.Now()
	record := DeviceRecord{
		UserID:      userID,
		IssuedAt:    now,
		ExpiresAt:   now.Add(deps.TTL),
		Fingerprint: deps.HashFingerprint(fingerprint),
	}
	if err := deps.Save(ctx, hash, record, deps.TTL); err != nil {
		return "", time.Time{}, wrapUnavailable(deps.Errors.Unavailable, err)
	}

	deps.MetricInc(deps.Metrics.Trusted)
	deps.EmitAudit(ctx, deps.Events.Trusted, true, userID, "", nil, func() map[string]string {
		return map[string]string{"expires_at": record.ExpiresAt.UTC().Format(time.RFC3339)}
	})
	return token, record.ExpiresAt, nil
}

// RunValidateDeviceToken returns nil when token exists, belongs to userID
// and now is before its expiry. Validation never extends the expiry.
func RunValidateDeviceToken(ctx context.Context, userID, token, fingerprint string, deps DeviceTrustDeps) error {
	normalizeDeviceTrustDeps(&deps)

	if !deps.Enabled || token == "" || userID == "" {
		return deps.Errors.Invalid
	}
	if deps.HashToken == nil || deps.Get == nil {
		return deps.Errors.EngineNotReady
	}

	hash, err := deps.HashToken(token)
	if err != nil {
		return deps.Errors.Invalid
	}
	record, err := deps.Get(ctx, hash)
	if err != nil {
		if deps.IsMissing(err) {
			return deps.Errors.Invalid
		}
		return wrapUnavailable(deps.Errors.Unavailable, err)
	}
	if record.UserID != userID {
		return deps.Errors.Invalid
	}
	if !deps.Now().Before(record.ExpiresAt) {
		if deps.Delete != nil {
			_, _ = deps.Delete(ctx, userID, hash)
		}
		return deps.Errors.Invalid
	}
	if deps.RequireFingerprintMatch && record.Fingerprint != ([32]byte{}) {
		if deps.HashFingerprint(fingerprint) != record.Fingerprint {
			return deps.Errors.Invalid
		}
	}

	deps.MetricInc(deps.Metrics.Accepted)
	return nil
}

// RunRevokeDeviceToken removes token if it belongs to userID. Revoking an
// unknown or foreign token is a no-op.
func RunRevokeDeviceToken(ctx context.Context, userID, token string, deps DeviceTrustDeps) error {
	normalizeDeviceTrustDeps(&deps)

	if deps.HashToken == nil || deps.Delete == nil {
		return deps.Errors.EngineNotReady
	}
	if userID == "" {
		return deps.Errors.UserNotFound
	}

	hash, err := deps.HashToken(token)
	if err != nil {
		return nil
	}
	removed, err := deps.Delete(ctx, userID, hash)
	if err != nil {
		return wrapUnavailable(deps.Errors.Unavailable, err)
	}
	if removed {
		deps.MetricInc(deps.Metrics.Revoked)
		deps.EmitAudit(ctx, deps.Events.Revoked, true, userID, "", nil, nil)
	}
	return nil
}

// RunRevokeAllDeviceTokens removes every token of userID and returns how
// many were removed.
func RunRevokeAllDeviceTokens(ctx context.Context, userID string, deps DeviceTrustDeps) (int, error) {
	normalizeDeviceTrustDeps(&deps)

	if deps.DeleteAll == nil {
		return 0, deps.Errors.EngineNotReady
	}
	if userID == "" {
		return 0, deps.Errors.UserNotFound
	}

	n, err := deps.DeleteAll(ctx, userID)
	if err != nil {
		return 0, wrapUnavailable(deps.Errors.Unavailable, err)
	}
	deps.MetricInc(deps.Metrics.Revoked)
	deps.EmitAudit(ctx, deps.Events.RevokedAll, true, userID, "", nil, func() map[string]string {
		return map[string]string{"count": strconv.Itoa(n)}
	})
	return n, nil
}

func normalizeDeviceTrustDeps(deps *DeviceTrustDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.HashFingerprint == nil {
		deps.HashFingerprint = func(string) [32]byte { return [32]byte{} }
	}
	if deps.IsMissing == nil {
		deps.IsMissing = func(error) bool { return false }
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
}
