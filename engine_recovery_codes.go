package goGuard

import (
	"context"

	"github.com/MrEthical07/goGuard/internal/flows"
)

// RegenerateRecoveryCodes replaces every recovery code of userID after
// re-checking the password. Old codes stop working immediately.
func (e *Engine) RegenerateRecoveryCodes(ctx context.Context, userID, password string) ([]string, error) {
	codes, err := flows.RunRegenerateRecoveryCodes(ctx, userID, password, e.deps.RecoveryCodes)
	if err != nil {
		e.logFailure(ctx, "regenerate_recovery_codes", err)
		return nil, err
	}
	return codes, nil
}

// ConsumeRecoveryCode spends one recovery code of userID. Case, spaces and
// hyphens are ignored. Unknown, already used and foreign codes all return
// ErrRecoveryCodeInvalid; of two concurrent calls with the same code at most
// one succeeds.
func (e *Engine) ConsumeRecoveryCode(ctx context.Context, userID, code string) error {
	err := flows.RunConsumeRecoveryCode(ctx, userID, code, e.deps.RecoveryCodes)
	e.logFailure(ctx, "consume_recovery_code", err)
	return err
}

// RemainingRecoveryCodes counts the unused codes of userID.
func (e *Engine) RemainingRecoveryCodes(ctx context.Context, userID string) (int, error) {
	return flows.RunRemainingRecoveryCodes(ctx, userID, e.deps.RecoveryCodes)
}
