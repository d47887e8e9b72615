package goGuard

import (
	"github.com/MrEthical07/goGuard/internal/flows"
	"github.com/MrEthical07/goGuard/internal/security"
)

// SecurityReport is the effective security posture of an Engine.
type SecurityReport = security.Report

// SecurityReport summarizes the policy the engine runs with and lists
// settings weaker than the defaults.
func (e *Engine) SecurityReport() SecurityReport {
	cfg := e.config
	_, durable := e.lockout.(storeLockout)

	return security.BuildReport(security.ReportInput{
		TOTPPeriod:              cfg.TOTP.Period,
		TOTPSkew:                cfg.TOTP.Skew,
		TOTPSecretSize:          cfg.TOTP.SecretSize,
		ReplayProtection:        cfg.TOTP.EnforceReplayProtection,
		SetupMaxAttempts:        cfg.TOTP.SetupMaxAttempts,
		QRCodeSize:              cfg.TOTP.QRCodeSize,
		EnrollmentTTL:           cfg.TOTP.EnrollmentTTL,
		RecoveryCodeCount:       cfg.RecoveryCodes.Count,
		RecoveryCodeLength:      cfg.RecoveryCodes.Length,
		RecoveryAlphabetSize:    len(flows.RecoveryCodeAlphabet),
		LockoutEnabled:          cfg.Lockout.Enabled,
		LockoutThreshold:        cfg.Lockout.Threshold,
		LockoutDuration:         cfg.Lockout.Duration,
		DurableLockoutCounter:   durable,
		DeviceTrustEnabled:      cfg.DeviceTrust.Enabled,
		DeviceTrustTTL:          cfg.DeviceTrust.TTL,
		RequireFingerprintMatch: cfg.DeviceTrust.RequireFingerprintMatch,
		ChallengeTTL:            cfg.Login.ChallengeTTL,
		ChallengeMaxAttempts:    cfg.Login.ChallengeMaxAttempts,
		RequireConfirmedEmail:   cfg.Login.RequireConfirmedEmail,
		CatalogConfigured:       e.catalog != nil,
		RevealMaxAttempts:       cfg.Reveal.MaxAttempts,
		AuditEnabled:            cfg.Audit.Enabled,
		AuditDropIfFull:         cfg.Audit.DropIfFull,
	})
}
