package goGuard

import (
	"context"
	"time"

	"github.com/MrEthical07/goGuard/internal/flows"
	"github.com/MrEthical07/goGuard/internal/limiters"
)

// lockoutBackend stores failure counts and lockout ends. Both
// implementations increment atomically and never extend an active window.
type lockoutBackend interface {
	RecordFailure(ctx context.Context, userID string, now time.Time) (flows.LockoutState, error)
	State(ctx context.Context, userID string) (flows.LockoutState, error)
	Reset(ctx context.Context, userID string) error
	Lock(ctx context.Context, userID string, until time.Time) error
}

// storeLockout keeps the counters on the user row of a LockoutStore.
type storeLockout struct {
	store     LockoutStore
	threshold int
	duration  time.Duration
}

func (l storeLockout) RecordFailure(ctx context.Context, userID string, now time.Time) (flows.LockoutState, error) {
	st, err := l.store.RecordFailedAccess(ctx, userID, l.threshold, l.duration, now)
	return flows.LockoutState(st), err
}

func (l storeLockout) State(ctx context.Context, userID string) (flows.LockoutState, error) {
	st, err := l.store.LockoutState(ctx, userID)
	return flows.LockoutState(st), err
}

func (l storeLockout) Reset(ctx context.Context, userID string) error {
	return l.store.ResetFailedAccess(ctx, userID)
}

func (l storeLockout) Lock(ctx context.Context, userID string, until time.Time) error {
	return l.store.SetLockoutEnd(ctx, userID, until)
}

// redisLockout keeps the counters in redis for stores without LockoutStore.
type redisLockout struct {
	limiter *limiters.LockoutLimiter
}

func (l redisLockout) RecordFailure(ctx context.Context, userID string, now time.Time) (flows.LockoutState, error) {
	st, err := l.limiter.RecordFailure(ctx, userID, now)
	return flows.LockoutState(st), err
}

func (l redisLockout) State(ctx context.Context, userID string) (flows.LockoutState, error) {
	st, err := l.limiter.State(ctx, userID)
	return flows.LockoutState(st), err
}

func (l redisLockout) Reset(ctx context.Context, userID string) error {
	return l.limiter.Reset(ctx, userID)
}

func (l redisLockout) Lock(ctx context.Context, userID string, until time.Time) error {
	return l.limiter.Lock(ctx, userID, until)
}

// RecordFailure counts one failed authentication for userID. Once the
// threshold is reached the returned decision is Locked with the window end.
// A failure during an active lockout is counted but does not move its end.
func (e *Engine) RecordFailure(ctx context.Context, userID string) (LockoutDecision, error) {
	d, err := flows.RunRecordFailure(ctx, userID, e.deps.Lockout)
	if err != nil {
		return LockoutDecision{}, err
	}
	return LockoutDecision(d), nil
}

// RecordSuccess resets the failure count of userID and clears any lockout.
func (e *Engine) RecordSuccess(ctx context.Context, userID string) error {
	return flows.RunRecordSuccess(ctx, userID, e.deps.Lockout)
}

// CheckLocked returns the end of the active lockout of userID. An elapsed
// lockout reports false; the failure count is left for the next success to
// clear.
func (e *Engine) CheckLocked(ctx context.Context, userID string) (time.Time, bool, error) {
	return flows.RunCheckLocked(ctx, userID, e.deps.Lockout)
}

// LockoutState returns the raw counter view of userID.
func (e *Engine) LockoutState(ctx context.Context, userID string) (LockoutState, error) {
	st, err := e.lockout.State(ctx, userID)
	if err != nil {
		return LockoutState{}, wrapBackend(err)
	}
	return LockoutState(st), nil
}

// AdminUnlock force-clears the failure count and lockout of targetID.
// An administrator cannot unlock their own account.
func (e *Engine) AdminUnlock(ctx context.Context, actorID, targetID string) error {
	return flows.RunAdminUnlock(ctx, actorID, targetID, e.deps.Lockout)
}
