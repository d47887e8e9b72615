package flows

import (
	"context"
	"time"
)

// LockoutState mirrors the root LockoutState.
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

type LockoutMetrics struct {
	AccountLocked  int
	LockoutCleared int
}

type LockoutEvents struct {
	AccountLocked       string
	LockoutClearedAdmin string
}

type LockoutErrors struct {
	EngineNotReady            error
	Unavailable               error
	UserNotFound              error
	SelfModificationForbidden error
}

// LockoutDeps binds a lockout backend. The backend is either the credential
// store or the redis counters; both honor the never-extend rule.
type LockoutDeps struct {
	Enabled   bool
	Threshold int
	Duration  time.Duration

	Now func() time.Time

	RecordFailure func(context.Context, string, time.Time) (LockoutState, error)
	State         func(context.Context, string) (LockoutState, error)
	Reset         func(context.Context, string) error
	UserExists    func(context.Context, string) error

	MetricInc func(int)
	EmitAudit AuditFunc

	Metrics LockoutMetrics
	Events  LockoutEvents
	Errors  LockoutErrors
}

// RunCheckLocked reports the active lockout end for userID. An elapsed
// lockout reads as not locked without touching the stored count.
func RunCheckLocked(ctx context.Context, userID string, deps LockoutDeps) (time.Time, bool, error) {
	normalizeLockoutDeps(&deps)

	if deps.State == nil {
		return time.Time{}, false, deps.Errors.EngineNotReady
	}
	if userID == "" {
		return time.Time{}, false, nil
	}

	state, err := deps.State(ctx, userID)
	if err != nil {
		return time.Time{}, false, wrapUnavailable(deps.Errors.Unavailable, err)
	}
	if state.LockedUntil.After(deps.Now()) {
		return state.LockedUntil, true, nil
	}
	return time.Time{}, false, nil
}

// RunRecordFailure counts one failed authentication for userID.
func RunRecordFailure(ctx context.Context, userID string, deps LockoutDeps) (LockoutDecision, error) {
	normalizeLockoutDeps(&deps)

	if !deps.Enabled {
		return LockoutDecision{RemainingAttempts: -1}, nil
	}
	if deps.RecordFailure == nil {
		return LockoutDecision{}, deps.Errors.EngineNotReady
	}
	if userID == "" {
		return LockoutDecision{}, nil
	}

	now := deps.Now()
	state, err := deps.RecordFailure(ctx, userID, now)
	if err != nil {
		return LockoutDecision{}, wrapUnavailable(deps.Errors.Unavailable, err)
	}

	if state.LockedUntil.After(now) {
		if openedAt(state, now, deps.Duration) {
			deps.MetricInc(deps.Metrics.AccountLocked)
			deps.EmitAudit(ctx, deps.Events.AccountLocked, true, userID, "", nil, func() map[string]string {
				return map[string]string{"until": state.LockedUntil.UTC().Format(time.RFC3339)}
			})
		}
		return LockoutDecision{Locked: true, Until: state.LockedUntil}, nil
	}

	remaining := deps.Threshold - state.FailedCount
	if remaining < 0 {
		remaining = 0
	}
	return LockoutDecision{RemainingAttempts: remaining}, nil
}

// RunRecordSuccess clears the failure count and any lockout of userID.
func RunRecordSuccess(ctx context.Context, userID string, deps LockoutDeps) error {
	normalizeLockoutDeps(&deps)

	if deps.Reset == nil {
		return deps.Errors.EngineNotReady
	}
	if userID == "" {
		return nil
	}
	if err := deps.Reset(ctx, userID); err != nil {
		return wrapUnavailable(deps.Errors.Unavailable, err)
	}
	return nil
}

// RunAdminUnlock force-clears the lockout of targetID on behalf of actorID.
func RunAdminUnlock(ctx context.Context, actorID, targetID string, deps LockoutDeps) error {
	normalizeLockoutDeps(&deps)

	if deps.Reset == nil {
		return deps.Errors.EngineNotReady
	}
	if targetID == "" {
		return deps.Errors.UserNotFound
	}
	if actorID == targetID {
		return deps.Errors.SelfModificationForbidden
	}
	if deps.UserExists != nil {
		if err := deps.UserExists(ctx, targetID); err != nil {
			return err
		}
	}
	if err := deps.Reset(ctx, targetID); err != nil {
		return wrapUnavailable(deps.Errors.Unavailable, err)
	}

	deps.MetricInc(deps.Metrics.LockoutCleared)
	deps.EmitAudit(ctx, deps.Events.LockoutClearedAdmin, true, targetID, actorID, nil, nil)
	return nil
}

// openedAt reports whether the window in state was opened by the failure
// recorded at now. Backends store millisecond precision.
func openedAt(state LockoutState, now time.Time, duration time.Duration) bool {
	return state.LockedUntil.UnixMilli() == now.Add(duration).UnixMilli()
}

func normalizeLockoutDeps(deps *LockoutDeps) {
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
