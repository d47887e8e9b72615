package flows

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"math/big"
	"strings"
	"time"
)

// RecoveryCodeAlphabet omits characters that are easy to misread (0, O, 1, I).
const RecoveryCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

type RecoveryCodeMetrics struct {
	Used      int
	Failed    int
	Generated int
}

type RecoveryCodeEvents struct {
	Generated string
	Used      string
	Failed    string
}

type RecoveryCodeErrors struct {
	EngineNotReady      error
	Unavailable         error
	UserNotFound        error
	InvalidCredentials  error
	TwoFactorNotEnabled error
	Invalid             error
}

// TwoFactorUser is the slice of a credential the two-factor flows need.
type TwoFactorUser struct {
	UserID           string
	Email            string
	EmailConfirmed   bool
	TwoFactorEnabled bool
	SealedSecret     []byte
}

type RecoveryCodeDeps struct {
	Count  int
	Length int

	Now func() time.Time

	GetUser        func(context.Context, string) (TwoFactorUser, error)
	VerifyPassword func(context.Context, string, string) (bool, error)
	ReplaceCodes   func(context.Context, string, [][32]byte, time.Time) error
	ConsumeCode    func(context.Context, string, [32]byte, time.Time) (bool, error)
	CountCodes     func(context.Context, string) (int, error)

	RandomIndex func(int) (int, error)

	MetricInc func(int)
	EmitAudit AuditFunc

	Metrics RecoveryCodeMetrics
	Events  RecoveryCodeEvents
	Errors  RecoveryCodeErrors
}

// RecoveryCodeBatch is a freshly generated set: Plain for the user, Hashes
// for the store. Plain[i] hashes to Hashes[i].
type RecoveryCodeBatch struct {
	Plain  []string
	Hashes [][32]byte
}

// RunRegenerateRecoveryCodes replaces every recovery code of userID after
// re-checking the password. The new codes are returned once.
func RunRegenerateRecoveryCodes(ctx context.Context, userID, password string, deps RecoveryCodeDeps) ([]string, error) {
	normalizeRecoveryCodeDeps(&deps)

	if deps.GetUser == nil || deps.VerifyPassword == nil || deps.ReplaceCodes == nil {
		return nil, deps.Errors.EngineNotReady
	}
	if userID == "" {
		return nil, deps.Errors.UserNotFound
	}

	user, err := deps.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ok, err := deps.VerifyPassword(ctx, user.UserID, password)
	if err != nil {
		return nil, wrapUnavailable(deps.Errors.Unavailable, err)
	}
	if !ok {
		return nil, deps.Errors.InvalidCredentials
	}
	if !user.TwoFactorEnabled {
		return nil, deps.Errors.TwoFactorNotEnabled
	}

	batch, err := NewRecoveryCodeBatch(user.UserID, deps.Count, deps.Length, deps.RandomIndex)
	if err != nil {
		return nil, wrapUnavailable(deps.Errors.Unavailable, err)
	}
	if err := deps.ReplaceCodes(ctx, user.UserID, batch.Hashes, deps.Now()); err != nil {
		return nil, wrapUnavailable(deps.Errors.Unavailable, err)
	}

	deps.MetricInc(deps.Metrics.Generated)
	deps.EmitAudit(ctx, deps.Events.Generated, true, user.UserID, "", nil, nil)
	return batch.Plain, nil
}

// RunConsumeRecoveryCode spends one unused code of userID. Unknown, used and
// foreign codes all yield Errors.Invalid.
func RunConsumeRecoveryCode(ctx context.Context, userID, code string, deps RecoveryCodeDeps) error {
	normalizeRecoveryCodeDeps(&deps)

	if deps.ConsumeCode == nil {
		return deps.Errors.EngineNotReady
	}
	if userID == "" {
		return deps.Errors.UserNotFound
	}

	canonical := CanonicalizeRecoveryCode(code)
	if len(canonical) != deps.Length || !inAlphabet(canonical) {
		deps.MetricInc(deps.Metrics.Failed)
		deps.EmitAudit(ctx, deps.Events.Failed, false, userID, "", deps.Errors.Invalid, nil)
		return deps.Errors.Invalid
	}

	ok, err := deps.ConsumeCode(ctx, userID, RecoveryCodeHash(userID, canonical), deps.Now())
	if err != nil {
		return wrapUnavailable(deps.Errors.Unavailable, err)
	}
	if !ok {
		deps.MetricInc(deps.Metrics.Failed)
		deps.EmitAudit(ctx, deps.Events.Failed, false, userID, "", deps.Errors.Invalid, nil)
		return deps.Errors.Invalid
	}

	deps.MetricInc(deps.Metrics.Used)
	deps.EmitAudit(ctx, deps.Events.Used, true, userID, "", nil, nil)
	return nil
}

// RunRemainingRecoveryCodes returns the number of unused codes of userID.
func RunRemainingRecoveryCodes(ctx context.Context, userID string, deps RecoveryCodeDeps) (int, error) {
	normalizeRecoveryCodeDeps(&deps)

	if deps.CountCodes == nil {
		return 0, deps.Errors.EngineNotReady
	}
	if userID == "" {
		return 0, deps.Errors.UserNotFound
	}
	n, err := deps.CountCodes(ctx, userID)
	if err != nil {
		return 0, wrapUnavailable(deps.Errors.Unavailable, err)
	}
	return n, nil
}

// NewRecoveryCodeBatch generates count codes of length characters for userID.
func NewRecoveryCodeBatch(userID string, count, length int, randomIndex func(int) (int, error)) (RecoveryCodeBatch, error) {
	batch := RecoveryCodeBatch{
		Plain:  make([]string, 0, count),
		Hashes: make([][32]byte, 0, count),
	}
	seen := make(map[string]struct{}, count)
	for len(batch.Plain) < count {
		raw, err := NewRecoveryCode(length, randomIndex)
		if err != nil {
			return RecoveryCodeBatch{}, err
		}
		if _, dup := seen[raw]; dup {
			continue
		}
		seen[raw] = struct{}{}
		batch.Plain = append(batch.Plain, FormatRecoveryCode(raw))
		batch.Hashes = append(batch.Hashes, RecoveryCodeHash(userID, raw))
	}
	return batch, nil
}

func NewRecoveryCode(length int, randomIndex func(int) (int, error)) (string, error) {
	if randomIndex == nil {
		randomIndex = cryptoRandomIndex
	}
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := randomIndex(len(RecoveryCodeAlphabet))
		if err != nil {
			return "", err
		}
		b.WriteByte(RecoveryCodeAlphabet[n])
	}
	return b.String(), nil
}

// FormatRecoveryCode splits a code in two halves for display: ABCDE-FGHJK.
func FormatRecoveryCode(code string) string {
	if len(code) < 8 {
		return code
	}
	mid := len(code) / 2
	return code[:mid] + "-" + code[mid:]
}

// CanonicalizeRecoveryCode uppercases and strips whitespace and hyphens.
func CanonicalizeRecoveryCode(code string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', '-':
			return -1
		}
		if r >= 'a' && r <= 'z' {
			return r - 'a' + 'A'
		}
		return r
	}, code)
}

// RecoveryCodeHash binds a canonical code to its owner, so an identical code
// of another user never matches.
func RecoveryCodeHash(userID, canonicalCode string) [32]byte {
	data := make([]byte, 0, len(userID)+1+len(canonicalCode))
	data = append(data, userID...)
	data = append(data, 0)
	data = append(data, canonicalCode...)
	return sha256.Sum256(data)
}

func inAlphabet(code string) bool {
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(RecoveryCodeAlphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}

func cryptoRandomIndex(max int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}

func normalizeRecoveryCodeDeps(deps *RecoveryCodeDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.RandomIndex == nil {
		deps.RandomIndex = cryptoRandomIndex
	}
}
