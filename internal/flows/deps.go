package flows

import (
	"context"
	"fmt"
)

// AuditFunc emits one audit event: type, success, subject user, acting
// user, cause and lazily built metadata.
type AuditFunc func(ctx context.Context, eventType string, success bool, userID, actorID string, err error, metadata func() map[string]string)

// Deps groups the dependency sets the engine builds once at construction.
type Deps struct {
	Lockout       LockoutDeps
	RecoveryCodes RecoveryCodeDeps
	DeviceTrust   DeviceTrustDeps
	TwoFactor     TwoFactorDeps
	Login         LoginDeps
	Reveal        RevealDeps
	Admin         AdminDeps
}

func noopAudit(context.Context, string, bool, string, string, error, func() map[string]string) {}

// wrapUnavailable tags err with the unavailable sentinel while keeping the
// cause in the message.
func wrapUnavailable(sentinel, err error) error {
	if err == nil {
		return nil
	}
	if sentinel == nil {
		return err
	}
	return fmt.Errorf("%w: %v", sentinel, err)
}
