package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Compile-time interface check.
var _ Limiter = (*RedisLimiter)(nil)

// RedisLimiter implements a sliding window over a Redis sorted set per key.
// Each request is a unique member scored by its timestamp, so simultaneous
// requests never collapse into one entry; members older than the window are
// pruned before counting.
type RedisLimiter struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisLimiter creates a limiter on the given client.
func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client, now: time.Now}
}

// Allow implements [Limiter]. Prune, insert and count run in one
// transactional pipeline, so concurrent requests each see a count that
// already includes every admitted competitor and the limit cannot be
// over-admitted between a check and a later write.
func (l *RedisLimiter) Allow(ctx context.Context, key string, p Policy) (Decision, error) {
	now := l.now()
	cutoff := now.Add(-p.Window)
	member := uuid.NewString()

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(cutoff.UnixNano(), 10))
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: member,
	})
	countCmd := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, p.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("ratelimit: record request: %w", err)
	}

	// The count includes the entry just added.
	count := int(countCmd.Val())
	if count > p.Limit {
		// Take the rejected entry back out so denied traffic does not
		// extend the window for everyone else.
		if err := l.client.ZRem(ctx, key, member).Err(); err != nil {
			return Decision{}, fmt.Errorf("ratelimit: rollback rejected entry: %w", err)
		}
		retryAfter, err := l.oldestExpiry(ctx, key, p, now)
		if err != nil {
			return Decision{}, err
		}
		return Decision{Allowed: false, RetryAfter: retryAfter}, nil
	}

	return Decision{Allowed: true, Remaining: p.Limit - count}, nil
}

// oldestExpiry computes when the oldest request in the window ages out, which
// is the earliest moment a retry can succeed.
func (l *RedisLimiter) oldestExpiry(ctx context.Context, key string, p Policy, now time.Time) (time.Duration, error) {
	oldest, err := l.client.ZRangeWithScores(ctx, key, 0, 0).Result()
	if err != nil {
		return 0, fmt.Errorf("ratelimit: oldest entry: %w", err)
	}
	if len(oldest) == 0 {
		return p.Window, nil
	}
	at := time.Unix(0, int64(oldest[0].Score))
	retryAfter := at.Add(p.Window).Sub(now)
	if retryAfter < time.Second {
		retryAfter = time.Second
	}
	return retryAfter, nil
}
