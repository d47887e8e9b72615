package goGuard

import (
	"context"
	"strings"
	"time"

	"github.com/MrEthical07/goGuard/internal/flows"
)

// LockUser locks targetID for Lockout.AdminLockDuration and returns the
// lockout end. Administrators cannot lock themselves or the last
// administrator.
func (e *Engine) LockUser(ctx context.Context, actorID, targetID string) (time.Time, error) {
	until, err := flows.RunLockUser(ctx, actorID, targetID, e.deps.Admin)
	e.logFailure(ctx, "lock_user", err)
	return until, err
}

// UnlockUser is AdminUnlock with an admin audit record.
func (e *Engine) UnlockUser(ctx context.Context, actorID, targetID string) error {
	err := flows.RunUnlockUser(ctx, actorID, targetID, e.deps.Admin)
	e.logFailure(ctx, "unlock_user", err)
	return err
}

// AssignRole grants role to targetID. Granting an existing role succeeds.
func (e *Engine) AssignRole(ctx context.Context, actorID, targetID, role string) error {
	err := flows.RunAssignRole(ctx, actorID, targetID, role, e.deps.Admin)
	e.logFailure(ctx, "assign_role", err)
	return err
}

// RemoveRole removes role from targetID. Removing the administrator role
// fails with ErrLastAdministratorForbidden when no other administrator
// without an active lockout would remain; removing a role the user does
// not hold succeeds.
func (e *Engine) RemoveRole(ctx context.Context, actorID, targetID, role string) error {
	err := flows.RunRemoveRole(ctx, actorID, targetID, role, e.deps.Admin)
	e.logFailure(ctx, "remove_role", err)
	return err
}

// IsAdministrator reports whether userID holds Admin.AdministratorRole.
func (e *Engine) IsAdministrator(ctx context.Context, userID string) (bool, error) {
	if e.admin == nil {
		return false, ErrEngineNotReady
	}
	if userID == "" {
		return false, ErrUnauthenticated
	}
	roles, err := e.admin.UserRoles(ctx, userID)
	if err != nil {
		return false, wrapBackend(err)
	}
	for _, r := range roles {
		if strings.EqualFold(r, e.config.Admin.AdministratorRole) {
			return true, nil
		}
	}
	return false, nil
}
