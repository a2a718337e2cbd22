package auth

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/clinicpos/clinicpos/internal/platform/apperr"
)

// LoginThrottle locks a login key out after repeated failed logins. Keys
// come from LoginKey.
type LoginThrottle interface {
	// Check returns a TooManyRequests error while key is locked out.
	Check(ctx context.Context, key string) error
	Fail(ctx context.Context, key string)
	Reset(ctx context.Context, key string)
}

// LoginKey scopes failed attempts to a username seen from one client
// address.
func LoginKey(username, clientIP string) string {
	if clientIP == "" {
		return username
	}
	return username + "|" + clientIP
}

// NoopThrottle never locks anyone out.
type NoopThrottle struct{}

func (NoopThrottle) Check(context.Context, string) error { return nil }
func (NoopThrottle) Fail(context.Context, string)        {}
func (NoopThrottle) Reset(context.Context, string)       {}

// counterStore is the subset of redis commands the throttle needs.
type counterStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Set(ctx context.Context, key string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

type redisCounterStore struct {
	client *redis.Client
}

func (s redisCounterStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	return n > 0, err
}

func (s redisCounterStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		s.client.Expire(ctx, key, ttl)
	}
	return n, nil
}

func (s redisCounterStore) Set(ctx context.Context, key string, ttl time.Duration) error {
	return s.client.Set(ctx, key, "locked", ttl).Err()
}

func (s redisCounterStore) Del(ctx context.Context, keys ...string) error {
	return s.client.Del(ctx, keys...).Err()
}

// RedisLoginThrottle counts failures per login key in redis. Redis outages
// are logged and never block a login.
type RedisLoginThrottle struct {
	store       counterStore
	maxAttempts int
	lockout     time.Duration
	logger      zerolog.Logger
}

func NewRedisLoginThrottle(client *redis.Client, maxAttempts int, lockout time.Duration, logger zerolog.Logger) *RedisLoginThrottle {
	return newLoginThrottle(redisCounterStore{client: client}, maxAttempts, lockout, logger)
}

func newLoginThrottle(store counterStore, maxAttempts int, lockout time.Duration, logger zerolog.Logger) *RedisLoginThrottle {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if lockout <= 0 {
		lockout = 15 * time.Minute
	}
	return &RedisLoginThrottle{store: store, maxAttempts: maxAttempts, lockout: lockout, logger: logger}
}

func attemptsKey(key string) string { return "login_attempts:" + key }
func lockoutKey(key string) string   { return "lockout:" + key }

func (t *RedisLoginThrottle) Check(ctx context.Context, key string) error {
	locked, err := t.store.Exists(ctx, lockoutKey(key))
	if err != nil {
		t.logger.Warn().Err(err).Msg("login throttle unavailable")
		return nil
	}
	if locked {
		return apperr.TooManyRequests("too many failed login attempts, try again later")
	}
	return nil
}

func (t *RedisLoginThrottle) Fail(ctx context.Context, key string) {
	n, err := t.store.Incr(ctx, attemptsKey(key), t.lockout)
	if err != nil {
		t.logger.Warn().Err(err).Msg("login throttle unavailable")
		return
	}
	if n >= int64(t.maxAttempts) {
		if err := t.store.Set(ctx, lockoutKey(key), t.lockout); err != nil {
			t.logger.Warn().Err(err).Msg("login throttle: set lockout")
			return
		}
		_ = t.store.Del(ctx, attemptsKey(key))
		t.logger.Info().Str("key", key).Dur("lockout", t.lockout).Msg("login locked out")
	}
}

func (t *RedisLoginThrottle) Reset(ctx context.Context, key string) {
	if err := t.store.Del(ctx, attemptsKey(key), lockoutKey(key)); err != nil {
		t.logger.Warn().Err(err).Msg("login throttle: reset")
	}
}
