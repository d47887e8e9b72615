package security

import (
	"math/bits"
	"time"
)

type TOTPReport struct {
	Period            time.Duration
	Skew              uint
	SecretBits        int
	ReplayProtection  bool
	SetupMaxAttempts  int
	QRCodeRendering   bool
	EnrollmentTTL     time.Duration
	RecoveryCodeCount int
	RecoveryCodeBits  int
}

type LockoutReport struct {
	Enabled        bool
	Threshold      int
	Duration       time.Duration
	DurableCounter bool
}

type Report struct {
	TOTP                  TOTPReport
	Lockout               LockoutReport
	DeviceTrustEnabled    bool
	DeviceTrustTTL        time.Duration
	FingerprintBinding    bool
	ChallengeTTL          time.Duration
	ChallengeMaxAttempts  int
	RequireConfirmedEmail bool
	RevealEnabled         bool
	RevealMaxAttempts     int
	AuditEnabled          bool
	AuditMayDrop          bool
	Warnings              []string
}

type ReportInput struct {
	TOTPPeriod              time.Duration
	TOTPSkew                uint
	TOTPSecretSize          int
	ReplayProtection        bool
	SetupMaxAttempts        int
	QRCodeSize              int
	EnrollmentTTL           time.Duration
	RecoveryCodeCount       int
	RecoveryCodeLength      int
	RecoveryAlphabetSize    int
	LockoutEnabled          bool
	LockoutThreshold        int
	LockoutDuration         time.Duration
	DurableLockoutCounter   bool
	DeviceTrustEnabled      bool
	DeviceTrustTTL          time.Duration
	RequireFingerprintMatch bool
	ChallengeTTL            time.Duration
	ChallengeMaxAttempts    int
	RequireConfirmedEmail   bool
	CatalogConfigured       bool
	RevealMaxAttempts       int
	AuditEnabled            bool
	AuditDropIfFull         bool
}

func BuildReport(in ReportInput) Report {
	r := Report{
		TOTP: TOTPReport{
			Period:            in.TOTPPeriod,
			Skew:              in.TOTPSkew,
			SecretBits:        in.TOTPSecretSize * 8,
			ReplayProtection:  in.ReplayProtection,
			SetupMaxAttempts:  in.SetupMaxAttempts,
			QRCodeRendering:   in.QRCodeSize > 0,
			EnrollmentTTL:     in.EnrollmentTTL,
			RecoveryCodeCount: in.RecoveryCodeCount,
			RecoveryCodeBits:  entropyBits(in.RecoveryCodeLength, in.RecoveryAlphabetSize),
		},
		Lockout: LockoutReport{
			Enabled:        in.LockoutEnabled,
			Threshold:      in.LockoutThreshold,
			Duration:       in.LockoutDuration,
			DurableCounter: in.DurableLockoutCounter,
		},
		DeviceTrustEnabled:    in.DeviceTrustEnabled,
		DeviceTrustTTL:        in.DeviceTrustTTL,
		FingerprintBinding:    in.RequireFingerprintMatch,
		ChallengeTTL:          in.ChallengeTTL,
		ChallengeMaxAttempts:  in.ChallengeMaxAttempts,
		RequireConfirmedEmail: in.RequireConfirmedEmail,
		RevealEnabled:         in.CatalogConfigured,
		RevealMaxAttempts:     in.RevealMaxAttempts,
		AuditEnabled:          in.AuditEnabled,
		AuditMayDrop:          in.AuditEnabled && in.AuditDropIfFull,
	}
	r.Warnings = warnings(in, r)
	return r
}

func warnings(in ReportInput, r Report) []string {
	var w []string
	if !in.LockoutEnabled {
		w = append(w, "lockout disabled: password guessing is only bounded by transport rate limits")
	}
	if in.LockoutEnabled && in.LockoutThreshold > 10 {
		w = append(w, "lockout threshold above 10 failures")
	}
	if !in.ReplayProtection {
		w = append(w, "TOTP replay protection disabled: an observed code stays valid for its whole window")
	}
	if in.TOTPSkew > 1 {
		w = append(w, "TOTP skew above one step widens the guessing window")
	}
	if r.TOTP.SecretBits < 160 {
		w = append(w, "TOTP secret shorter than 160 bits")
	}
	if r.TOTP.RecoveryCodeBits < 40 {
		w = append(w, "recovery codes carry less than 40 bits of entropy")
	}
	if in.DeviceTrustEnabled && !in.RequireFingerprintMatch {
		w = append(w, "remember-device tokens are not bound to a client fingerprint")
	}
	if !in.AuditEnabled {
		w = append(w, "audit disabled")
	}
	return w
}

// entropyBits counts whole bits per character.
func entropyBits(length, alphabet int) int {
	if length <= 0 || alphabet <= 1 {
		return 0
	}
	return length * (bits.Len(uint(alphabet)) - 1)
}
