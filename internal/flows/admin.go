package flows

import (
	"context"
	"strings"
	"sync"
	"time"
)

type AdminMetrics struct {
	AdminAction   int
	AccountLocked int
}

type AdminEvents struct {
	LockUser   string
	UnlockUser string
	AssignRole string
	RemoveRole string
}

type AdminErrors struct {
	EngineNotReady             error
	Unavailable                error
	UserNotFound               error
	InvalidRequest             error
	SelfModificationForbidden  error
	LastAdministratorForbidden error
}

// AdminDeps binds the role store and the lockout backend for administrative
// account changes. The guards run before any write.
//
// RemoveRoleUnlessLast and LockUnlessLastHolder check and write in one store
// operation and require another administrator without an active lockout.
// Without them the guard falls back to CountUsersInRole and the write, run
// back to back while Serialize is held.
type AdminDeps struct {
	AdministratorRole string
	LockDuration      time.Duration

	Now func() time.Time

	UserExists       func(context.Context, string) error
	UserRoles        func(context.Context, string) ([]string, error)
	AddRole          func(context.Context, string, string) error
	RemoveRole       func(context.Context, string, string) error
	CountUsersInRole func(context.Context, string) (int, error)
	SetLockoutEnd    func(context.Context, string, time.Time) error
	Unlock           func(context.Context, string, string) error

	RemoveRoleUnlessLast func(context.Context, string, string, time.Time) (bool, error)
	LockUnlessLastHolder func(context.Context, string, string, time.Time, time.Time) (bool, error)
	Serialize            sync.Locker

	MetricInc func(int)
	EmitAudit AuditFunc

	Metrics AdminMetrics
	Events  AdminEvents
	Errors  AdminErrors
}

// RunLockUser locks targetID for LockDuration. Locking the last
// administrator is refused so the console cannot lock itself out.
func RunLockUser(ctx context.Context, actorID, targetID string, deps AdminDeps) (time.Time, error) {
	normalizeAdminDeps(&deps)

	if deps.SetLockoutEnd == nil || deps.UserRoles == nil || deps.CountUsersInRole == nil {
		return time.Time{}, deps.Errors.EngineNotReady
	}
	if err := guardTarget(ctx, actorID, targetID, deps); err != nil {
		return time.Time{}, err
	}

	roles, err := deps.UserRoles(ctx, targetID)
	if err != nil {
		return time.Time{}, wrapUnavailable(deps.Errors.Unavailable, err)
	}
	until := deps.Now().Add(deps.LockDuration)
	if hasRole(roles, deps.AdministratorRole) {
		if err := lockAdministrator(ctx, targetID, until, deps); err != nil {
			return time.Time{}, err
		}
	} else if err := deps.SetLockoutEnd(ctx, targetID, until); err != nil {
		return time.Time{}, wrapUnavailable(deps.Errors.Unavailable, err)
	}

	deps.MetricInc(deps.Metrics.AdminAction)
	deps.MetricInc(deps.Metrics.AccountLocked)
	deps.EmitAudit(ctx, deps.Events.LockUser, true, targetID, actorID, nil, func() map[string]string {
		return map[string]string{"until": until.UTC().Format(time.RFC3339)}
	})
	return until, nil
}

// RunUnlockUser clears the lockout of targetID through the lockout flow.
func RunUnlockUser(ctx context.Context, actorID, targetID string, deps AdminDeps) error {
	normalizeAdminDeps(&deps)

	if deps.Unlock == nil {
		return deps.Errors.EngineNotReady
	}
	if err := deps.Unlock(ctx, actorID, targetID); err != nil {
		return err
	}
	deps.MetricInc(deps.Metrics.AdminAction)
	deps.EmitAudit(ctx, deps.Events.UnlockUser, true, targetID, actorID, nil, nil)
	return nil
}

// RunAssignRole adds role to targetID.
func RunAssignRole(ctx context.Context, actorID, targetID, role string, deps AdminDeps) error {
	normalizeAdminDeps(&deps)

	if deps.AddRole == nil {
		return deps.Errors.EngineNotReady
	}
	role = strings.TrimSpace(role)
	if role == "" {
		return deps.Errors.InvalidRequest
	}
	if err := guardTarget(ctx, actorID, targetID, deps); err != nil {
		return err
	}
	if err := deps.AddRole(ctx, targetID, role); err != nil {
		return wrapUnavailable(deps.Errors.Unavailable, err)
	}

	deps.MetricInc(deps.Metrics.AdminAction)
	deps.EmitAudit(ctx, deps.Events.AssignRole, true, targetID, actorID, nil, func() map[string]string {
		return map[string]string{"role": role}
	})
	return nil
}

// RunRemoveRole removes role from targetID. Removing the administrator role
// is refused when no other usable administrator would remain.
func RunRemoveRole(ctx context.Context, actorID, targetID, role string, deps AdminDeps) error {
	normalizeAdminDeps(&deps)

	if deps.RemoveRole == nil || deps.UserRoles == nil || deps.CountUsersInRole == nil {
		return deps.Errors.EngineNotReady
	}
	role = strings.TrimSpace(role)
	if role == "" {
		return deps.Errors.InvalidRequest
	}
	if err := guardTarget(ctx, actorID, targetID, deps); err != nil {
		return err
	}

	roles, err := deps.UserRoles(ctx, targetID)
	if err != nil {
		return wrapUnavailable(deps.Errors.Unavailable, err)
	}
	if !hasRole(roles, role) {
		return nil
	}
	if strings.EqualFold(role, deps.AdministratorRole) {
		if err := removeAdministrator(ctx, targetID, deps); err != nil {
			return err
		}
	} else if err := deps.RemoveRole(ctx, targetID, role); err != nil {
		return wrapUnavailable(deps.Errors.Unavailable, err)
	}

	deps.MetricInc(deps.Metrics.AdminAction)
	deps.EmitAudit(ctx, deps.Events.RemoveRole, true, targetID, actorID, nil, func() map[string]string {
		return map[string]string{"role": role}
	})
	return nil
}

func guardTarget(ctx context.Context, actorID, targetID string, deps AdminDeps) error {
	if targetID == "" {
		return deps.Errors.UserNotFound
	}
	if actorID == targetID {
		return deps.Errors.SelfModificationForbidden
	}
	if deps.UserExists != nil {
		return deps.UserExists(ctx, targetID)
	}
	return nil
}

func lockAdministrator(ctx context.Context, targetID string, until time.Time, deps AdminDeps) error {
	if deps.Serialize != nil {
		deps.Serialize.Lock()
		defer deps.Serialize.Unlock()
	}
	if deps.LockUnlessLastHolder != nil {
		ok, err := deps.LockUnlessLastHolder(ctx, targetID, deps.AdministratorRole, until, deps.Now())
		if err != nil {
			return wrapUnavailable(deps.Errors.Unavailable, err)
		}
		if !ok {
			return deps.Errors.LastAdministratorForbidden
		}
		return nil
	}
	if err := guardLastAdministrator(ctx, deps); err != nil {
		return err
	}
	if err := deps.SetLockoutEnd(ctx, targetID, until); err != nil {
		return wrapUnavailable(deps.Errors.Unavailable, err)
	}
	return nil
}

func removeAdministrator(ctx context.Context, targetID string, deps AdminDeps) error {
	if deps.Serialize != nil {
		deps.Serialize.Lock()
		defer deps.Serialize.Unlock()
	}
	if deps.RemoveRoleUnlessLast != nil {
		ok, err := deps.RemoveRoleUnlessLast(ctx, targetID, deps.AdministratorRole, deps.Now())
		if err != nil {
			return wrapUnavailable(deps.Errors.Unavailable, err)
		}
		if !ok {
			return deps.Errors.LastAdministratorForbidden
		}
		return nil
	}
	if err := guardLastAdministrator(ctx, deps); err != nil {
		return err
	}
	if err := deps.RemoveRole(ctx, targetID, deps.AdministratorRole); err != nil {
		return wrapUnavailable(deps.Errors.Unavailable, err)
	}
	return nil
}

func guardLastAdministrator(ctx context.Context, deps AdminDeps) error {
	n, err := deps.CountUsersInRole(ctx, deps.AdministratorRole)
	if err != nil {
		return wrapUnavailable(deps.Errors.Unavailable, err)
	}
	if n <= 1 {
		return deps.Errors.LastAdministratorForbidden
	}
	return nil
}

func hasRole(roles []string, role string) bool {
	for _, r := range roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

func normalizeAdminDeps(deps *AdminDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
}
