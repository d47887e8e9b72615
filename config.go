package goGuard

import (
	"errors"
	"strings"
	"time"
)

// Config holds every policy knob of the engine. Start from DefaultConfig and
// override fields; Build rejects a Config that fails Validate.
type Config struct {
	TOTP          TOTPConfig
	RecoveryCodes RecoveryCodeConfig
	DeviceTrust   DeviceTrustConfig
	Lockout       LockoutConfig
	Login         LoginConfig
	Reveal        RevealConfig
	Admin         AdminConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
	Redis         RedisConfig
}

/*
====================================
TOTP CONFIG
====================================
*/

// TOTPConfig controls code verification and enrollment.
//
// Digits is fixed at 6 by the totp package and is not configurable.
type TOTPConfig struct {
	Issuer string
	Period time.Duration
	// Skew is the number of steps accepted on each side of the current one.
	Skew uint
	// SecretSize is the raw secret length in bytes. 20 bytes is 160 bits.
	SecretSize int
	// EnrollmentTTL bounds how long a started setup waits for confirmation.
	EnrollmentTTL time.Duration
	// EnforceReplayProtection makes every accepted time step single-use per
	// user across login, setup confirmation and secret reveal.
	EnforceReplayProtection bool
	// QRCodeSize is the PNG edge in pixels. Zero disables QR rendering.
	QRCodeSize int
	// SetupMaxAttempts limits wrong confirmation codes per SetupCooldown.
	SetupMaxAttempts int
	SetupCooldown    time.Duration
}

/*
====================================
RECOVERY CODE CONFIG
====================================
*/

// RecoveryCodeConfig sizes generated recovery code sets.
type RecoveryCodeConfig struct {
	Count  int
	Length int
}

/*
====================================
DEVICE TRUST CONFIG
====================================
*/

// DeviceTrustConfig controls remember-this-device tokens. TTL is fixed from
// issuance and never slides.
type DeviceTrustConfig struct {
	Enabled bool
	TTL     time.Duration
	// RequireFingerprintMatch rejects a token presented with a fingerprint
	// other than the one it was issued with.
	RequireFingerprintMatch bool
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

type LockoutConfig struct {
	// Enabled controls failure counting. Lockouts already set, including
	// administrative ones, are honored either way.
	Enabled   bool
	Threshold int
	Duration  time.Duration
	// AdminLockDuration is the window applied by Engine.LockUser.
	AdminLockDuration time.Duration
}

/*
====================================
LOGIN CONFIG
====================================
*/

// LoginConfig controls the two-step login protocol.
type LoginConfig struct {
	ChallengeTTL time.Duration
	// ChallengeMaxAttempts is the number of wrong codes after which a
	// challenge is destroyed.
	ChallengeMaxAttempts  int
	RequireConfirmedEmail bool
}

/*
====================================
REVEAL CONFIG
====================================
*/

// RevealConfig controls the TOTP-gated configuration reveal.
type RevealConfig struct {
	// Services lists the service names accepted by Reveal and
	// ListConfiguration. Matching is exact.
	Services    []string
	MaxAttempts int
	Cooldown    time.Duration
}

/*
====================================
ADMIN CONFIG
====================================
*/

type AdminConfig struct {
	AdministratorRole string
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher. With DropIfFull,
// events are dropped instead of blocking the caller when the buffer is
// full.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
REDIS CONFIG
====================================
*/

// RedisConfig controls key naming of every redis-backed record.
type RedisConfig struct {
	// KeyPrefix is prepended to every store prefix, e.g. "app1:" gives
	// "app1:gtc:<challenge>".
	KeyPrefix string
}

// DefaultServices are the service names accepted by Reveal out of the box.
var DefaultServices = []string{
	"WebAdminApp",
	"Admin",
	"WebClientApp",
	"Library",
	"Assets",
	"Media",
	"Game",
	"Auth",
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the production defaults: lockout after 5 failures
// for 15 minutes, 30 second TOTP steps with one step of skew, 8 recovery
// codes of 10 characters, 30 day device trust and 5 minute challenges.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		TOTP: TOTPConfig{
			Issuer:                  "goGuard",
			Period:                  30 * time.Second,
			Skew:                    1,
			SecretSize:              20,
			EnrollmentTTL:           10 * time.Minute,
			EnforceReplayProtection: true,
			QRCodeSize:              256,
			SetupMaxAttempts:        5,
			SetupCooldown:           time.Minute,
		},
		RecoveryCodes: RecoveryCodeConfig{
			Count:  8,
			Length: 10,
		},
		DeviceTrust: DeviceTrustConfig{
			Enabled: true,
			TTL:     30 * 24 * time.Hour,
		},
		Lockout: LockoutConfig{
			Enabled:           true,
			Threshold:         5,
			Duration:          15 * time.Minute,
			AdminLockDuration: 100 * 365 * 24 * time.Hour,
		},
		Login: LoginConfig{
			ChallengeTTL:         5 * time.Minute,
			ChallengeMaxAttempts: 5,
		},
		Reveal: RevealConfig{
			Services:    append([]string(nil), DefaultServices...),
			MaxAttempts: 5,
			Cooldown:    time.Minute,
		},
		Admin: AdminConfig{
			AdministratorRole: RoleAdministrator,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Reveal.Services = append([]string(nil), cfg.Reveal.Services...)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks cfg for values the engine cannot run with. It returns the
// first problem found.
func (c *Config) Validate() error {
	// TOTP
	if c.TOTP.Period <= 0 {
		return errors.New("TOTP Period must be > 0")
	}
	if c.TOTP.Period%time.Second != 0 {
		return errors.New("TOTP Period must be a whole number of seconds")
	}
	if c.TOTP.Skew > 3 {
		return errors.New("TOTP Skew must be <= 3")
	}
	if c.TOTP.SecretSize < 20 {
		return errors.New("TOTP SecretSize must be >= 20 bytes")
	}
	if strings.TrimSpace(c.TOTP.Issuer) == "" {
		return errors.New("TOTP Issuer must not be empty")
	}
	if strings.Contains(c.TOTP.Issuer, ":") {
		return errors.New("TOTP Issuer must not contain ':'")
	}
	if c.TOTP.EnrollmentTTL <= 0 {
		return errors.New("TOTP EnrollmentTTL must be > 0")
	}
	if c.TOTP.QRCodeSize < 0 {
		return errors.New("TOTP QRCodeSize must be >= 0")
	}
	if c.TOTP.SetupMaxAttempts <= 0 {
		return errors.New("TOTP SetupMaxAttempts must be > 0")
	}
	if c.TOTP.SetupCooldown <= 0 {
		return errors.New("TOTP SetupCooldown must be > 0")
	}

	// Recovery codes
	if c.RecoveryCodes.Count <= 0 {
		return errors.New("RecoveryCodes Count must be > 0")
	}
	if c.RecoveryCodes.Length < 8 {
		return errors.New("RecoveryCodes Length must be >= 8")
	}

	// Device trust
	if c.DeviceTrust.Enabled && c.DeviceTrust.TTL <= 0 {
		return errors.New("DeviceTrust TTL must be > 0")
	}

	// Lockout
	if c.Lockout.Enabled {
		if c.Lockout.Threshold <= 0 {
			return errors.New("Lockout Threshold must be > 0")
		}
		if c.Lockout.Duration <= 0 {
			return errors.New("Lockout Duration must be > 0")
		}
	}
	if c.Lockout.AdminLockDuration <= 0 {
		return errors.New("Lockout AdminLockDuration must be > 0")
	}

	// Login
	if c.Login.ChallengeTTL <= 0 {
		return errors.New("Login ChallengeTTL must be > 0")
	}
	if c.Login.ChallengeMaxAttempts <= 0 {
		return errors.New("Login ChallengeMaxAttempts must be > 0")
	}
	if c.Login.ChallengeMaxAttempts > 65535 {
		return errors.New("Login ChallengeMaxAttempts must be <= 65535")
	}

	// Reveal
	if c.Reveal.MaxAttempts <= 0 {
		return errors.New("Reveal MaxAttempts must be > 0")
	}
	if c.Reveal.Cooldown <= 0 {
		return errors.New("Reveal Cooldown must be > 0")
	}
	for _, s := range c.Reveal.Services {
		if strings.TrimSpace(s) == "" {
			return errors.New("Reveal Services must not contain empty names")
		}
	}

	// Admin
	if strings.TrimSpace(c.Admin.AdministratorRole) == "" {
		return errors.New("Admin AdministratorRole must not be empty")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}
