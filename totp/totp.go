package totp

import (
	"crypto/subtle"
	"encoding/base32"
	"errors"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
	pqtotp "github.com/pquerna/otp/totp"
)

const (
	// CodeDigits is the fixed length of every code.
	CodeDigits = 6
	// DefaultPeriod is the step length in seconds.
	DefaultPeriod = 30
	// DefaultSkew is the number of steps accepted on each side of the current step.
	DefaultSkew = 1
	// MinSecretBytes is the smallest accepted secret (160 bits).
	MinSecretBytes = 20
)

var b32NoPadding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Config controls secret generation and verification.
type Config struct {
	Issuer     string
	Period     uint
	Skew       uint
	SecretSize uint
}

// Engine generates secrets and computes or verifies codes. It holds no
// mutable state and is safe for concurrent use.
type Engine struct {
	config Config
}

// Secret is a freshly generated shared secret in the forms a caller needs
// during enrollment.
type Secret struct {
	Raw    []byte
	Base32 string
	URI    string
}

// New returns an Engine. A zero Period or Issuer takes its default and
// SecretSize is raised to MinSecretBytes. Skew is used as given, so zero
// accepts the current step only; pass DefaultSkew for one step of drift.
func New(cfg Config) *Engine {
	if cfg.Period == 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.SecretSize < MinSecretBytes {
		cfg.SecretSize = MinSecretBytes
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "goGuard"
	}
	return &Engine{config: cfg}
}

// Period returns the step length in use.
func (e *Engine) Period() time.Duration {
	return time.Duration(e.config.Period) * time.Second
}

// Step returns the time-step counter that contains t.
func (e *Engine) Step(t time.Time) int64 {
	return t.Unix() / int64(e.config.Period)
}

// GenerateSecret creates a random secret of at least 160 bits and the
// otpauth:// provisioning URI for accountName.
func (e *Engine) GenerateSecret(accountName string) (*Secret, error) {
	if strings.TrimSpace(accountName) == "" {
		return nil, ErrMissingAccountName
	}
	key, err := pqtotp.Generate(pqtotp.GenerateOpts{
		Issuer:      e.config.Issuer,
		AccountName: accountName,
		Period:      e.config.Period,
		SecretSize:  e.config.SecretSize,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, err
	}
	raw, err := b32NoPadding.DecodeString(key.Secret())
	if err != nil {
		return nil, err
	}
	return &Secret{
		Raw:    raw,
		Base32: key.Secret(),
		URI:    key.URL(),
	}, nil
}

// ComputeCode returns the zero-padded code for the step containing t.
func (e *Engine) ComputeCode(secret []byte, t time.Time) (string, error) {
	if len(secret) == 0 {
		return "", ErrEmptySecret
	}
	return e.codeAt(secret, e.Step(t))
}

// Verify reports whether code matches the step containing t or one of its
// neighbours within the configured skew. On success it also returns the
// matched step so the caller can reject later reuse of that step.
//
// A candidate that is not exactly six ASCII digits fails with
// ErrInvalidCodeFormat before the secret is used.
func (e *Engine) Verify(secret []byte, code string, t time.Time) (bool, int64, error) {
	if err := ValidateFormat(code); err != nil {
		return false, 0, err
	}
	if len(secret) == 0 {
		return false, 0, ErrEmptySecret
	}

	base := e.Step(t)
	skew := int64(e.config.Skew)
	for offset := -skew; offset <= skew; offset++ {
		step := base + offset
		if step < 0 {
			continue
		}
		generated, err := e.codeAt(secret, step)
		if err != nil {
			return false, 0, err
		}
		if subtle.ConstantTimeCompare([]byte(generated), []byte(code)) == 1 {
			return true, step, nil
		}
	}
	return false, 0, nil
}

func (e *Engine) codeAt(secret []byte, step int64) (string, error) {
	code, err := hotp.GenerateCodeCustom(b32NoPadding.EncodeToString(secret), uint64(step), hotp.ValidateOpts{
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", errors.Join(ErrEmptySecret, err)
	}
	return code, nil
}

// ValidateFormat checks that code is exactly six ASCII digits. Callers are
// expected to strip presentation formatting first.
func ValidateFormat(code string) error {
	if len(code) != CodeDigits {
		return ErrInvalidCodeFormat
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return ErrInvalidCodeFormat
		}
	}
	return nil
}

// Normalize strips spaces and hyphens an authenticator app or user may
// insert while typing a code.
func Normalize(code string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '\t':
			return -1
		}
		return r
	}, code)
}

// FormatSharedKey renders a base32 secret for manual entry: lowercase,
// grouped by four.
func FormatSharedKey(secretBase32 string) string {
	lower := strings.ToLower(secretBase32)
	var b strings.Builder
	b.Grow(len(lower) + len(lower)/4)
	for i := 0; i < len(lower); i++ {
		if i > 0 && i%4 == 0 {
			b.WriteByte(' ')
		}
		b.WriteByte(lower[i])
	}
	return b.String()
}
