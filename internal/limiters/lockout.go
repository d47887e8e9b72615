package limiters

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockoutConfig holds the threshold and duration for account lockout.
// Prefix defaults to "glo".
type LockoutConfig struct {
	Prefix    string
	Threshold int
	Duration  time.Duration
}

var (
	// ErrLockoutUnavailable indicates the lockout backend is unreachable.
	ErrLockoutUnavailable = errors.New("lockout backend unavailable")
)

// recordFailureScript increments the failure count and, once the threshold
// is reached, opens a lockout window unless one is already active. An
// active window is never extended.
var recordFailureScript = redis.NewScript(`
local count = redis.call('HINCRBY', KEYS[1], 'count', 1)
local lockedUntil = redis.call('HGET', KEYS[1], 'until')
if not lockedUntil then
  lockedUntil = '0'
end
if count >= tonumber(ARGV[2]) and tonumber(lockedUntil) <= tonumber(ARGV[1]) then
  lockedUntil = ARGV[3]
  redis.call('HSET', KEYS[1], 'until', lockedUntil)
end
return {count, lockedUntil}
`)

// LockoutState is the raw counter view. LockedUntil is zero when no window
// was ever opened or the last one was cleared.
type LockoutState struct {
	FailedCount int
	LockedUntil time.Time
}

// LockoutLimiter keeps failed-attempt counters and lockout windows in Redis
// for deployments whose credential store cannot do atomic increments.
type LockoutLimiter struct {
	redis  redis.UniversalClient
	config LockoutConfig
}

// NewLockoutLimiter creates a new lockout limiter.
func NewLockoutLimiter(redisClient redis.UniversalClient, cfg LockoutConfig) *LockoutLimiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "glo"
	}
	return &LockoutLimiter{redis: redisClient, config: cfg}
}

func (l *LockoutLimiter) key(userID string) string {
	return l.config.Prefix + ":" + userID
}

// RecordFailure atomically counts one failure at now and returns the
// resulting state.
func (l *LockoutLimiter) RecordFailure(ctx context.Context, userID string, now time.Time) (LockoutState, error) {
	if userID == "" {
		return LockoutState{}, nil
	}

	candidate := now.Add(l.config.Duration).UnixMilli()
	vals, err := recordFailureScript.Run(ctx, l.redis, []string{l.key(userID)},
		now.UnixMilli(), l.config.Threshold, candidate).Slice()
	if err != nil {
		return LockoutState{}, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	if len(vals) != 2 {
		return LockoutState{}, fmt.Errorf("%w: unexpected script reply", ErrLockoutUnavailable)
	}
	count, _ := vals[0].(int64)
	return toState(count, parseInt(vals[1])), nil
}

// State returns the current counter and window without modifying them.
func (l *LockoutLimiter) State(ctx context.Context, userID string) (LockoutState, error) {
	if userID == "" {
		return LockoutState{}, nil
	}

	vals, err := l.redis.HMGet(ctx, l.key(userID), "count", "until").Result()
	if err != nil {
		return LockoutState{}, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return toState(parseInt(vals[0]), parseInt(vals[1])), nil
}

// Reset clears the counter and any window (successful login or admin unlock).
func (l *LockoutLimiter) Reset(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}

	if err := l.redis.Del(ctx, l.key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}

// Lock opens a window ending at until regardless of the counter.
func (l *LockoutLimiter) Lock(ctx context.Context, userID string, until time.Time) error {
	if userID == "" {
		return nil
	}

	if err := l.redis.HSet(ctx, l.key(userID), "until", until.UnixMilli()).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}

func toState(count, untilMs int64) LockoutState {
	st := LockoutState{FailedCount: int(count)}
	if untilMs > 0 {
		st.LockedUntil = time.UnixMilli(untilMs)
	}
	return st
}

func parseInt(v interface{}) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
