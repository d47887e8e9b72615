package internaldefs

import (
	"strconv"
	"strings"

	goGuard "github.com/MrEthical07/goGuard"
	internalmetrics "github.com/MrEthical07/goGuard/internal/metrics"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   goGuard.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   goGuard.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter fed by Engine.AuditDropped.
const AuditDroppedName = "goguard_audit_dropped_total"

var CounterDefs = []CounterDef{
	{ID: goGuard.MetricLoginSuccess, Name: "goguard_login_success_total", Help: "Logins that reached the authenticated state."},
	{ID: goGuard.MetricLoginFailure, Name: "goguard_login_failure_total", Help: "Rejected password checks."},
	{ID: goGuard.MetricLoginLocked, Name: "goguard_login_locked_total", Help: "Login attempts refused by an active lockout."},
	{ID: goGuard.MetricTwoFactorRequired, Name: "goguard_two_factor_required_total", Help: "Issued two-factor challenges."},
	{ID: goGuard.MetricTwoFactorSuccess, Name: "goguard_two_factor_success_total", Help: "Completed second steps."},
	{ID: goGuard.MetricTwoFactorFailure, Name: "goguard_two_factor_failure_total", Help: "Rejected second steps."},
	{ID: goGuard.MetricChallengeExpired, Name: "goguard_challenge_expired_total", Help: "Second steps presented with an expired challenge."},
	{ID: goGuard.MetricTOTPReplayRejected, Name: "goguard_totp_replay_rejected_total", Help: "TOTP codes refused because their time step was already used."},
	{ID: goGuard.MetricRecoveryCodeUsed, Name: "goguard_recovery_code_used_total", Help: "Redeemed recovery codes."},
	{ID: goGuard.MetricRecoveryCodeFailed, Name: "goguard_recovery_code_failed_total", Help: "Rejected recovery codes."},
	{ID: goGuard.MetricRecoveryCodesGenerated, Name: "goguard_recovery_codes_generated_total", Help: "Recovery code sets generated."},
	{ID: goGuard.MetricDeviceTrusted, Name: "goguard_device_trusted_total", Help: "Issued device remember tokens."},
	{ID: goGuard.MetricDeviceTrustAccepted, Name: "goguard_device_trust_accepted_total", Help: "Logins that skipped the second factor on a remembered device."},
	{ID: goGuard.MetricDeviceRevoked, Name: "goguard_device_revoked_total", Help: "Forget-devices operations."},
	{ID: goGuard.MetricAccountLocked, Name: "goguard_account_locked_total", Help: "Lockout windows opened."},
	{ID: goGuard.MetricLockoutCleared, Name: "goguard_lockout_cleared_total", Help: "Administrative unlocks."},
	{ID: goGuard.MetricTOTPEnabled, Name: "goguard_totp_enabled_total", Help: "Confirmed authenticator enrollments."},
	{ID: goGuard.MetricTOTPDisabled, Name: "goguard_totp_disabled_total", Help: "Two-factor disable operations."},
	{ID: goGuard.MetricSecretRevealed, Name: "goguard_secret_revealed_total", Help: "Configuration values revealed."},
	{ID: goGuard.MetricSecretRevealFailed, Name: "goguard_secret_reveal_failed_total", Help: "Refused configuration reveals."},
	{ID: goGuard.MetricRateLimitHit, Name: "goguard_rate_limit_hit_total", Help: "Requests refused by an attempt limiter."},
	{ID: goGuard.MetricAdminAction, Name: "goguard_admin_action_total", Help: "Administrative account changes."},
}

var HistogramDefs = []HistogramDef{
	{ID: goGuard.MetricLoginLatency, Name: "goguard_login_latency_seconds", Help: "Login latency."},
}

// HistogramBounds are the finite bucket upper bounds in seconds.
var HistogramBounds = func() []float64 {
	out := make([]float64, len(internalmetrics.BucketUpperBounds))
	for i, d := range internalmetrics.BucketUpperBounds {
		out[i] = d.Seconds()
	}
	return out
}()

// BoundSuffix renders bucket i as an instrument-safe suffix ("0_005",
// ..., "inf").
func BoundSuffix(i int) string {
	if i >= len(HistogramBounds) {
		return "inf"
	}
	return strings.ReplaceAll(strconv.FormatFloat(HistogramBounds[i], 'f', -1, 64), ".", "_")
}

// NormalizeBuckets pads or truncates raw to BucketCount entries.
func NormalizeBuckets(raw []uint64) [internalmetrics.BucketCount]uint64 {
	var out [internalmetrics.BucketCount]uint64
	copy(out[:], raw)
	return out
}

func CumulativeBuckets(raw [internalmetrics.BucketCount]uint64) [internalmetrics.BucketCount]uint64 {
	var out [internalmetrics.BucketCount]uint64
	var running uint64
	for i := range raw {
		running += raw[i]
		out[i] = running
	}
	return out
}
