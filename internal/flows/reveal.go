package flows

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"
)

// SealedValuePrefix marks a catalog value stored sealed, as enc:<base64>.
const SealedValuePrefix = "enc:"

// CatalogEntry is one configuration value of a service.
type CatalogEntry struct {
	Key      string
	Value    string
	Source   string
	Category string
	Redacted bool
}

// RevealOutput is a disclosed configuration value.
type RevealOutput struct {
	Service    string
	Key        string
	Value      string
	RevealedAt time.Time
}

type RevealMetrics struct {
	Revealed     int
	Failed       int
	RateLimitHit int
}

type RevealEvents struct {
	Revealed string
	Failed   string
}

type RevealErrors struct {
	EngineNotReady      error
	Unavailable         error
	Unauthenticated     error
	UnsupportedService  error
	NotFound            error
	InvalidRequest      error
	InvalidCodeFormat   error
	InvalidTOTPCode     error
	TwoFactorNotEnabled error
	RateLimited         error
}

type RevealDeps struct {
	Now func() time.Time

	IsSupported func(string) bool

	GetUser        func(context.Context, string) (TwoFactorUser, error)
	IsUserNotFound func(error) bool
	VerifyTOTP     func(context.Context, TwoFactorUser, string) error

	Lookup     func(context.Context, string, string) (string, error)
	Entries    func(context.Context, string) ([]CatalogEntry, error)
	IsNotFound func(error) bool
	Open       func([]byte) ([]byte, error)

	CheckLimiter  func(context.Context, string) error
	RecordFailure func(context.Context, string) error
	ResetLimiter  func(context.Context, string) error
	IsRateLimited func(error) bool

	MetricInc func(int)
	EmitAudit AuditFunc

	Metrics RevealMetrics
	Events  RevealEvents
	Errors  RevealErrors
}

// RunReveal discloses one configuration value to actorID after checking a
// TOTP code against the actor's own secret.
func RunReveal(ctx context.Context, actorID, service, key, code string, deps RevealDeps) (RevealOutput, error) {
	normalizeRevealDeps(&deps)

	if deps.GetUser == nil || deps.VerifyTOTP == nil || deps.Lookup == nil {
		return RevealOutput{}, deps.Errors.EngineNotReady
	}
	if actorID == "" {
		return RevealOutput{}, deps.Errors.Unauthenticated
	}
	if !deps.IsSupported(service) {
		return RevealOutput{}, deps.Errors.UnsupportedService
	}
	if strings.TrimSpace(key) == "" {
		return RevealOutput{}, deps.Errors.InvalidRequest
	}

	if err := deps.CheckLimiter(ctx, actorID); err != nil {
		if deps.IsRateLimited(err) {
			deps.MetricInc(deps.Metrics.RateLimitHit)
			return RevealOutput{}, deps.Errors.RateLimited
		}
		return RevealOutput{}, wrapUnavailable(deps.Errors.Unavailable, err)
	}

	user, err := deps.GetUser(ctx, actorID)
	if err != nil {
		if deps.IsUserNotFound(err) {
			return RevealOutput{}, deps.Errors.Unauthenticated
		}
		return RevealOutput{}, err
	}
	if !user.TwoFactorEnabled {
		return RevealOutput{}, deps.Errors.TwoFactorNotEnabled
	}

	auditMeta := func() map[string]string {
		return map[string]string{"service": service, "key": key}
	}

	if err := deps.VerifyTOTP(ctx, user, code); err != nil {
		if errors.Is(err, deps.Errors.InvalidTOTPCode) {
			deps.MetricInc(deps.Metrics.Failed)
			deps.EmitAudit(ctx, deps.Events.Failed, false, actorID, actorID, err, auditMeta)
			if lerr := deps.RecordFailure(ctx, actorID); lerr != nil && !deps.IsRateLimited(lerr) {
				return RevealOutput{}, wrapUnavailable(deps.Errors.Unavailable, lerr)
			}
		}
		return RevealOutput{}, err
	}
	_ = deps.ResetLimiter(ctx, actorID)

	raw, err := deps.Lookup(ctx, service, key)
	if err != nil {
		if deps.IsNotFound(err) {
			deps.MetricInc(deps.Metrics.Failed)
			deps.EmitAudit(ctx, deps.Events.Failed, false, actorID, actorID, deps.Errors.NotFound, auditMeta)
			return RevealOutput{}, deps.Errors.NotFound
		}
		return RevealOutput{}, wrapUnavailable(deps.Errors.Unavailable, err)
	}

	value, err := unsealValue(raw, deps.Open)
	if err != nil {
		return RevealOutput{}, wrapUnavailable(deps.Errors.Unavailable, err)
	}

	out := RevealOutput{
		Service:    service,
		Key:        key,
		Value:      value,
		RevealedAt: deps.Now(),
	}
	deps.MetricInc(deps.Metrics.Revealed)
	deps.EmitAudit(ctx, deps.Events.Revealed, true, actorID, actorID, nil, auditMeta)
	return out, nil
}

// RunListConfiguration lists the configuration of service with sensitive
// and sealed values redacted.
func RunListConfiguration(ctx context.Context, actorID, service string, deps RevealDeps) ([]CatalogEntry, error) {
	normalizeRevealDeps(&deps)

	if deps.Entries == nil {
		return nil, deps.Errors.EngineNotReady
	}
	if actorID == "" {
		return nil, deps.Errors.Unauthenticated
	}
	if !deps.IsSupported(service) {
		return nil, deps.Errors.UnsupportedService
	}

	entries, err := deps.Entries(ctx, service)
	if err != nil {
		return nil, wrapUnavailable(deps.Errors.Unavailable, err)
	}
	out := make([]CatalogEntry, len(entries))
	for i, e := range entries {
		if IsSensitiveKey(e.Key) || strings.HasPrefix(e.Value, SealedValuePrefix) {
			e.Value = RedactedValue
			e.Redacted = true
		}
		out[i] = e
	}
	return out, nil
}

// RedactedValue replaces sensitive values in listings.
const RedactedValue = "***REDACTED***"

var sensitiveKeyMarkers = []string{"KEY", "PASSWORD", "PASS", "TOKEN", "SECRET", "CONNECTIONSTRING", "HASH"}

// IsSensitiveKey reports whether key names a value that is only shown
// through a reveal. Case and underscores are ignored.
func IsSensitiveKey(key string) bool {
	k := strings.ToUpper(strings.ReplaceAll(key, "_", ""))
	for _, marker := range sensitiveKeyMarkers {
		if strings.Contains(k, marker) {
			return true
		}
	}
	return false
}

func unsealValue(raw string, open func([]byte) ([]byte, error)) (string, error) {
	encoded, ok := strings.CutPrefix(raw, SealedValuePrefix)
	if !ok {
		return raw, nil
	}
	if open == nil {
		return "", errors.New("sealed value without cipher")
	}
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	plain, err := open(sealed)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func normalizeRevealDeps(deps *RevealDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.IsSupported == nil {
		deps.IsSupported = func(string) bool { return false }
	}
	if deps.IsUserNotFound == nil {
		deps.IsUserNotFound = func(error) bool { return false }
	}
	if deps.IsNotFound == nil {
		deps.IsNotFound = func(error) bool { return false }
	}
	if deps.CheckLimiter == nil {
		deps.CheckLimiter = func(context.Context, string) error { return nil }
	}
	if deps.RecordFailure == nil {
		deps.RecordFailure = func(context.Context, string) error { return nil }
	}
	if deps.ResetLimiter == nil {
		deps.ResetLimiter = func(context.Context, string) error { return nil }
	}
	if deps.IsRateLimited == nil {
		deps.IsRateLimited = func(error) bool { return false }
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
}
