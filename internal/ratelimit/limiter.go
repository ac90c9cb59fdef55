package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/courierdesk/gateway/internal/database"
	"github.com/redis/go-redis/v9"
)

// Decision is the outcome of a rate limit check
type Decision struct {
	Allowed          bool
	Remaining        int
	LockoutRemaining time.Duration
}

// Limiter counts failed logins per (email, IP) in Redis and locks the
// pair out once maxAttempts failures land inside window.
type Limiter struct {
	client          redis.Cmdable
	keys            database.Keyspace
	window          time.Duration
	maxAttempts     int
	lockoutDuration time.Duration
}

// NewLimiter creates a new rate limiter
func NewLimiter(client redis.Cmdable, keys database.Keyspace, window time.Duration, maxAttempts int, lockoutDuration time.Duration) *Limiter {
	return &Limiter{
		client:          client,
		keys:            keys,
		window:          window,
		maxAttempts:     maxAttempts,
		lockoutDuration: lockoutDuration,
	}
}

func (l *Limiter) attemptKey(email, ipAddress string) string {
	return l.keys.Key("ratelimit", "login", ipAddress, email)
}

func (l *Limiter) lockoutKey(email, ipAddress string) string {
	return l.keys.Key("ratelimit", "lockout", ipAddress, email)
}

// Check reports whether another login attempt is allowed. It does not
// count the attempt; call RecordFailure or RecordSuccess afterwards.
func (l *Limiter) Check(ctx context.Context, email, ipAddress string) (Decision, error) {
	lockoutKey := l.lockoutKey(email, ipAddress)

	ttl, err := l.client.PTTL(ctx, lockoutKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Decision{}, fmt.Errorf("failed to check lockout status: %w", err)
	}
	if ttl > 0 {
		return Decision{LockoutRemaining: ttl}, nil
	}

	count, err := l.client.Get(ctx, l.attemptKey(email, ipAddress)).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Decision{}, fmt.Errorf("failed to get attempt count: %w", err)
	}

	remaining := l.maxAttempts - count
	if remaining <= 0 {
		return Decision{LockoutRemaining: l.lockoutDuration}, l.lock(ctx, email, ipAddress)
	}
	return Decision{Allowed: true, Remaining: remaining}, nil
}

// lock starts a lockout and resets the failure counter in one round trip
func (l *Limiter) lock(ctx context.Context, email, ipAddress string) error {
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, l.lockoutKey(email, ipAddress), "1", l.lockoutDuration)
		pipe.Del(ctx, l.attemptKey(email, ipAddress))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set lockout: %w", err)
	}
	return nil
}

// RecordFailure counts a failed attempt. The window starts at the first
// failure; reaching maxAttempts starts the lockout immediately.
func (l *Limiter) RecordFailure(ctx context.Context, email, ipAddress string) error {
	key := l.attemptKey(email, ipAddress)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to increment attempt counter: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return fmt.Errorf("failed to set expiry: %w", err)
		}
	}
	if count >= int64(l.maxAttempts) {
		return l.lock(ctx, email, ipAddress)
	}
	return nil
}

// RecordSuccess clears the failure counter after a successful login
func (l *Limiter) RecordSuccess(ctx context.Context, email, ipAddress string) error {
	if err := l.client.Del(ctx, l.attemptKey(email, ipAddress)).Err(); err != nil {
		return fmt.Errorf("failed to clear attempt counter: %w", err)
	}
	return nil
}

// Clear lifts a lockout (operator action)
func (l *Limiter) Clear(ctx context.Context, email, ipAddress string) error {
	if err := l.client.Del(ctx, l.lockoutKey(email, ipAddress), l.attemptKey(email, ipAddress)).Err(); err != nil {
		return fmt.Errorf("failed to clear lockout: %w", err)
	}
	return nil
}
