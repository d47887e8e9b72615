package goGuard

import (
	"context"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/goGuard/internal/audit"
)

// RoleAdministrator is the default administrator role name.
const RoleAdministrator = "Administrator"

// UserCredential is the durable account view the engine works with.
// TOTPSecret is sealed by the engine's SecretCipher and is non-empty exactly
// when TwoFactorEnabled is true.
type UserCredential struct {
	UserID            string
	Email             string
	EmailConfirmed    bool
	TwoFactorEnabled  bool
	TOTPSecret        []byte
	FailedAccessCount int
	LockoutEnd        time.Time
}

// CredentialStore is the durable user store. Password hashing is owned by
// the store; the engine only asks whether a password matches.
//
// FindByEmail and FindByID return ErrUserNotFound (possibly wrapped) for
// unknown accounts. Any other error is treated as a backend failure.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (*UserCredential, error)
	FindByID(ctx context.Context, userID string) (*UserCredential, error)
	VerifyPassword(ctx context.Context, userID, password string) (bool, error)

	// EnableTwoFactor stores the sealed secret, replaces all recovery codes
	// with hashes and sets TwoFactorEnabled, in one transaction.
	EnableTwoFactor(ctx context.Context, userID string, sealedSecret []byte, codeHashes [][32]byte, now time.Time) error
	// DisableTwoFactor clears the secret and deletes all recovery codes, in
	// one transaction.
	DisableTwoFactor(ctx context.Context, userID string) error

	// ReplaceRecoveryCodes deletes every existing code of userID and inserts
	// codeHashes atomically.
	ReplaceRecoveryCodes(ctx context.Context, userID string, codeHashes [][32]byte, now time.Time) error
	// ConsumeRecoveryCode marks the unused code with codeHash owned by userID
	// as used, as a single conditional update. It reports whether a row
	// changed; concurrent callers with the same code see true at most once.
	ConsumeRecoveryCode(ctx context.Context, userID string, codeHash [32]byte, usedAt time.Time) (bool, error)
	CountRecoveryCodes(ctx context.Context, userID string) (int, error)
}

// PasswordEqualizer is implemented by credential stores that can spend the
// cost of one password verification without an account. Login calls it for
// unknown emails so both rejections take the same time.
type PasswordEqualizer interface {
	EqualizePassword(ctx context.Context, password string)
}

// LockoutStore is implemented by credential stores that can count failed
// attempts atomically next to the user row. When the CredentialStore passed
// to the Builder also implements LockoutStore, it is used instead of the
// redis counters.
type LockoutStore interface {
	// RecordFailedAccess increments the failure count and, once it reaches
	// threshold with no active lockout at now, sets the lockout end to
	// now+duration. An active lockout is never extended.
	RecordFailedAccess(ctx context.Context, userID string, threshold int, duration time.Duration, now time.Time) (LockoutState, error)
	ResetFailedAccess(ctx context.Context, userID string) error
	LockoutState(ctx context.Context, userID string) (LockoutState, error)
	SetLockoutEnd(ctx context.Context, userID string, until time.Time) error
}

// LockoutState is the failure counter view of an account. LockedUntil is
// zero when no lockout was ever set or the last one was cleared.
type LockoutState struct {
	FailedCount int
	LockedUntil time.Time
}

// LockoutDecision is the outcome of one recorded failure.
type LockoutDecision struct {
	Locked            bool
	Until             time.Time
	RemainingAttempts int
}

// AccountAdminStore provides role membership for administrative operations.
type AccountAdminStore interface {
	UserRoles(ctx context.Context, userID string) ([]string, error)
	AddRole(ctx context.Context, userID, role string) error
	// RemoveRole is a no-op for roles the user does not hold.
	RemoveRole(ctx context.Context, userID, role string) error
	// RemoveRoleUnlessLast removes role from userID unless no other holder
	// of role is free of an active lockout at now. The check and the delete
	// are atomic. It reports false when refused.
	RemoveRoleUnlessLast(ctx context.Context, userID, role string, now time.Time) (bool, error)
	CountUsersInRole(ctx context.Context, role string) (int, error)
}

// AdministratorLockoutStore is implemented by admin stores that also keep
// lockout ends. LockUnlessLastHolder sets the lockout end of a holder of
// role only while another holder is free of an active lockout at now, in
// one transaction. The engine uses it only when lockout state comes from a
// LockoutStore.
type AdministratorLockoutStore interface {
	LockUnlessLastHolder(ctx context.Context, userID, role string, until, now time.Time) (bool, error)
}

// ConfigCatalog resolves configuration values for Reveal and
// ListConfiguration. Lookup returns ErrSecretNotFound (possibly wrapped)
// for an unknown key.
type ConfigCatalog interface {
	Entries(ctx context.Context, service string) ([]ConfigEntry, error)
	Lookup(ctx context.Context, service, key string) (string, error)
}

// SecretCipher seals TOTP secrets and configuration values at rest.
type SecretCipher interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

// LoginState is the state a login attempt ended in.
type LoginState uint8

const (
	// LoginRejected covers bad credentials and unknown accounts alike.
	LoginRejected LoginState = iota
	LoginLocked
	// LoginTwoFactorRequired carries a ChallengeID for the second step.
	LoginTwoFactorRequired
	LoginAuthenticated
)

func (s LoginState) String() string {
	switch s {
	case LoginRejected:
		return "rejected"
	case LoginLocked:
		return "locked"
	case LoginTwoFactorRequired:
		return "two_factor_required"
	case LoginAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// LoginRequest is the first login step. DeviceToken is the remember-device
// token the client holds, if any.
type LoginRequest struct {
	Email       string
	Password    string
	RememberMe  bool
	DeviceToken string
	Fingerprint string
}

// TwoFactorMethod selects how the second-step code is interpreted.
type TwoFactorMethod uint8

const (
	// TwoFactorAuto tries the code as TOTP first and as a recovery code second.
	TwoFactorAuto TwoFactorMethod = iota
	// TwoFactorTOTP only accepts a TOTP code.
	TwoFactorTOTP
	// TwoFactorRecovery only accepts a recovery code.
	TwoFactorRecovery
)

// TwoFactorRequest is the second login step.
type TwoFactorRequest struct {
	ChallengeID    string
	Code           string
	Method         TwoFactorMethod
	RememberDevice bool
	Fingerprint    string
}

// LoginResult is returned for the non-error login outcomes:
// LoginAuthenticated and LoginTwoFactorRequired. Rejections are returned
// as errors; use LoginStateOf to classify them.
type LoginResult struct {
	State              LoginState
	UserID             string
	Persistent         bool
	ChallengeID        string
	ChallengeExpiresAt time.Time
	// DeviceTrusted is true when a remember-device token skipped the second factor.
	DeviceTrusted bool
	// DeviceToken is set when a new remember-device token was issued.
	DeviceToken          string
	DeviceTokenExpiresAt time.Time
	UsedRecoveryCode     bool
}

// LoginStateOf maps a login error to the state it represents.
func LoginStateOf(err error) LoginState {
	if _, ok := LockedUntil(err); ok {
		return LoginLocked
	}
	return LoginRejected
}

// TOTPSetup is returned when enrollment starts. SharedKey is the Base32
// secret in lowercase groups of four for manual entry.
type TOTPSetup struct {
	SharedKey        string
	AuthenticatorURI string
	QRCodeDataURI    string
	ExpiresAt        time.Time
}

// TwoFactorStatus summarizes a user's second-factor setup.
type TwoFactorStatus struct {
	Enabled           bool
	RecoveryCodesLeft int
	TrustedDevices    int
}

// ConfigEntry is one configuration value as listed to administrators.
// Redacted entries carry RedactedValue instead of the value.
type ConfigEntry struct {
	Key      string
	Value    string
	Source   string
	Category string
	Redacted bool
}

// RedactedValue replaces sensitive values in ListConfiguration.
const RedactedValue = "***REDACTED***"

// RevealResult is a disclosed configuration value.
type RevealResult struct {
	Service    string
	Key        string
	Value      string
	RevealedAt time.Time
}

// AuditEvent is a security event delivered to the AuditSink.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the engine's dispatcher.
type AuditSink = internalaudit.Sink

// AuditSinkFunc adapts a function to AuditSink.
type AuditSinkFunc = internalaudit.SinkFunc

// NoOpSink discards audit events.
type NoOpSink = internalaudit.NoOpSink

// MultiSink fans events out to several sinks.
type MultiSink = internalaudit.MultiSink

// ChannelSink delivers audit events to a buffered channel.
type ChannelSink = internalaudit.ChannelSink

// LogSink writes audit events as slog records.
type LogSink = internalaudit.LogSink

// NewChannelSink creates a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewLogSink creates a LogSink on logger, or slog.Default when nil.
func NewLogSink(logger *slog.Logger) *LogSink {
	return internalaudit.NewLogSink(logger)
}
