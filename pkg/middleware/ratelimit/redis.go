package ratelimit

import (
	"context"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ratelimit:"

// slidingWindow keeps one sorted set member per accepted request, scored by
// its time in milliseconds. It returns 0 when the request is accepted and the
// wait in milliseconds otherwise.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

if redis.call('ZCARD', key) < limit then
	redis.call('ZADD', key, now, ARGV[4])
	redis.call('PEXPIRE', key, window)
	return 0
end

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if oldest[2] == nil then
	return window
end

return tonumber(oldest[2]) + window - now
`)

// RedisLimiter shares the sliding window between service instances.
type RedisLimiter struct {
	client redis.Scripter
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRedis(client redis.Scripter, cfg Config) *RedisLimiter {
	l := &RedisLimiter{
		client: client,
		limit:  cfg.RequestsPerMinute,
		window: cfg.Window,
		now:    time.Now,
	}
	if l.window <= 0 {
		l.window = defaultWindow
	}

	return l
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	const op = "ratelimit.RedisLimiter.Allow"

	member, err := gonanoid.New()
	if err != nil {
		return false, 0, fmt.Errorf("%s: failed to generate member: %w", op, err)
	}

	wait, err := slidingWindow.Run(ctx, l.client,
		[]string{keyPrefix + key},
		l.now().UnixMilli(),
		l.window.Milliseconds(),
		l.limit,
		member,
	).Int64()
	if err != nil {
		return false, 0, fmt.Errorf("%s: failed to run script: %w", op, err)
	}

	if wait > 0 {
		return false, time.Duration(wait) * time.Millisecond, nil
	}

	return true, 0, nil
}
