package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrReplayBackend = errors.New("totp replay backend unavailable")

// advanceStepScript moves the last-used step forward only if the candidate
// is strictly newer. It returns 1 when the step was claimed.
var advanceStepScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '-1')
local step = tonumber(ARGV[1])
if step <= current then
  return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
return 1
`)

// ReplayGuard records the newest TOTP step each user has spent. A step can
// be claimed once; any step at or below the recorded one is refused.
type ReplayGuard struct {
	redis  redis.UniversalClient
	prefix string
}

func NewReplayGuard(redisClient redis.UniversalClient, prefix string) *ReplayGuard {
	if prefix == "" {
		prefix = "gtr"
	}
	return &ReplayGuard{redis: redisClient, prefix: prefix}
}

func (g *ReplayGuard) key(userID string) string {
	return g.prefix + ":" + userID
}

// Claim atomically marks step as used for userID. It returns false when the
// step, or a later one, was already claimed. retention must outlive the
// window in which step could still verify.
func (g *ReplayGuard) Claim(ctx context.Context, userID string, step int64, retention time.Duration) (bool, error) {
	if retention <= 0 {
		retention = time.Minute
	}
	res, err := advanceStepScript.Run(ctx, g.redis, []string{g.key(userID)}, step, retention.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrReplayBackend, err)
	}
	return res == 1, nil
}

// Reset forgets the recorded step, used when a user's secret is removed.
func (g *ReplayGuard) Reset(ctx context.Context, userID string) error {
	if err := g.redis.Del(ctx, g.key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrReplayBackend, err)
	}
	return nil
}
