package security

import (
	"strings"
	"testing"
	"time"
)

func strongInput() ReportInput {
	return ReportInput{
		TOTPPeriod:              30 * time.Second,
		TOTPSkew:                1,
		TOTPSecretSize:          20,
		ReplayProtection:        true,
		SetupMaxAttempts:        5,
		QRCodeSize:              256,
		RecoveryCodeCount:       8,
		RecoveryCodeLength:      10,
		RecoveryAlphabetSize:    32,
		LockoutEnabled:          true,
		LockoutThreshold:        5,
		LockoutDuration:         15 * time.Minute,
		DeviceTrustEnabled:      true,
		RequireFingerprintMatch: true,
		AuditEnabled:            true,
	}
}

func TestBuildReportStrongPolicyHasNoWarnings(t *testing.T) {
	r := BuildReport(strongInput())
	if len(r.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", r.Warnings)
	}
	if r.TOTP.SecretBits != 160 {
		t.Fatalf("expected 160 secret bits, got %d", r.TOTP.SecretBits)
	}
	if r.TOTP.RecoveryCodeBits != 50 {
		t.Fatalf("expected 50 recovery code bits, got %d", r.TOTP.RecoveryCodeBits)
	}
	if !r.TOTP.QRCodeRendering {
		t.Fatal("QR rendering should be reported")
	}
}

func TestBuildReportWarnings(t *testing.T) {
	in := strongInput()
	in.LockoutEnabled = false
	in.ReplayProtection = false
	in.TOTPSkew = 3
	in.TOTPSecretSize = 10
	in.RecoveryCodeLength = 4
	in.RequireFingerprintMatch = false
	in.AuditEnabled = false

	r := BuildReport(in)
	joined := strings.Join(r.Warnings, "\n")
	for _, want := range []string{"lockout disabled", "replay", "skew", "160 bits", "entropy", "fingerprint", "audit disabled"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("missing warning %q in %v", want, r.Warnings)
		}
	}
}

func TestEntropyBits(t *testing.T) {
	cases := []struct{ length, alphabet, want int }{
		{10, 32, 50},
		{10, 36, 50},
		{6, 10, 18},
		{0, 32, 0},
		{10, 1, 0},
	}
	for _, tc := range cases {
		if got := entropyBits(tc.length, tc.alphabet); got != tc.want {
			t.Fatalf("entropyBits(%d, %d) = %d, want %d", tc.length, tc.alphabet, got, tc.want)
		}
	}
}
