package rateLimit

import (
	"context"
	"time"

	redisadapter "github.com/showgrid/seatbooking/internal/adapters/redis"
)

type RateLimiter struct {
	redis *redisadapter.SeatCache
}

func NewRateLimiter(redis *redisadapter.SeatCache) *RateLimiter {
	return &RateLimiter{redis: redis}
}

func (rl *RateLimiter) Allow(ctx context.Context, key string, rate int, period time.Duration) bool {
	fullKey := "rl:" + key

	pipe := rl.redis.Client().Pipeline()
	incr := pipe.Incr(ctx, fullKey)
	pipe.Expire(ctx, fullKey, period)

	_, err := pipe.Exec(ctx)
	if err != nil {
		// fail open: a cache outage must not take booking down with it
		return true
	}

	return incr.Val() <= int64(rate)
}
