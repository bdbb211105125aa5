// Package limiter throttles credential-guessing with a fixed redis window.
package limiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrRateLimited      = errors.New("too many login attempts, try again later")
	errRedisUnavailable = errors.New("limiter redis unavailable")
)

type Login struct {
	redis  *redis.Client
	max    int
	window time.Duration
}

// NewLogin builds a login limiter. A nil redis client disables throttling,
// mirroring how the service treats redis as optional at startup.
func NewLogin(redisClient *redis.Client, maxAttempts int, window time.Duration) *Login {
	return &Login{redis: redisClient, max: maxAttempts, window: window}
}

// Allow counts one attempt for the email and, when known, the client IP.
// Exceeding the window's budget on either key returns ErrRateLimited.
func (l *Login) Allow(ctx context.Context, email, ip string) error {
	if l == nil || l.redis == nil {
		return nil
	}
	if err := l.enforceKey(ctx, "login:email:"+email); err != nil {
		return err
	}
	if ip != "" {
		if err := l.enforceKey(ctx, "login:ip:"+ip); err != nil {
			return err
		}
	}
	return nil
}

func (l *Login) enforceKey(ctx context.Context, key string) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", errRedisUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.window).Err(); err != nil {
			return fmt.Errorf("%w: %v", errRedisUnavailable, err)
		}
	}
	if count > int64(l.max) {
		return ErrRateLimited
	}
	return nil
}
