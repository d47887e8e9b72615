package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrAttemptsExceeded    = errors.New("too many failed attempts")
	ErrAttemptsUnavailable = errors.New("attempt limiter unavailable")
)

// The window starts at the first failure and is not extended by later ones.
var recordAttemptScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// AttemptConfig configures one AttemptLimiter. Zero values mean 5 attempts
// per minute.
type AttemptConfig struct {
	// Prefix keeps purposes (reveal, setup) in separate counters.
	Prefix      string
	MaxAttempts int
	Window      time.Duration
}

// AttemptLimiter counts wrong codes per user for one purpose.
type AttemptLimiter struct {
	redis  redis.UniversalClient
	prefix string
	max    int64
	window time.Duration
}

func NewAttemptLimiter(rdb redis.UniversalClient, cfg AttemptConfig) *AttemptLimiter {
	l := &AttemptLimiter{redis: rdb, prefix: cfg.Prefix, max: int64(cfg.MaxAttempts), window: cfg.Window}
	if l.prefix == "" {
		l.prefix = "att"
	}
	if l.max <= 0 {
		l.max = 5
	}
	if l.window <= 0 {
		l.window = time.Minute
	}
	return l
}

func (l *AttemptLimiter) key(userID string) string {
	return l.prefix + ":" + userID
}

// Check returns ErrAttemptsExceeded while userID is over the limit.
func (l *AttemptLimiter) Check(ctx context.Context, userID string) error {
	if l == nil {
		return nil
	}
	n, err := l.redis.Get(ctx, l.key(userID)).Int64()
	switch {
	case errors.Is(err, redis.Nil):
		return nil
	case err != nil:
		return fmt.Errorf("%w: %v", ErrAttemptsUnavailable, err)
	case n >= l.max:
		return ErrAttemptsExceeded
	}
	return nil
}

// RecordFailure counts one wrong code and returns ErrAttemptsExceeded when
// it is the one that reaches the limit.
func (l *AttemptLimiter) RecordFailure(ctx context.Context, userID string) error {
	if l == nil {
		return nil
	}
	n, err := recordAttemptScript.Run(ctx, l.redis, []string{l.key(userID)}, l.window.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAttemptsUnavailable, err)
	}
	if n >= l.max {
		return ErrAttemptsExceeded
	}
	return nil
}

// RetryAfter is the time left in the current window, zero when no failure
// is being counted.
func (l *AttemptLimiter) RetryAfter(ctx context.Context, userID string) (time.Duration, error) {
	if l == nil {
		return 0, nil
	}
	ttl, err := l.redis.PTTL(ctx, l.key(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrAttemptsUnavailable, err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

func (l *AttemptLimiter) Reset(ctx context.Context, userID string) error {
	if l == nil {
		return nil
	}
	if err := l.redis.Del(ctx, l.key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrAttemptsUnavailable, err)
	}
	return nil
}
