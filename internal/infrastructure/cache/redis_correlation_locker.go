package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/varejo/backend/internal/domain/shared"
)

// releaseScript deletes the lock key only when it still holds our
// token, so an expired lock reacquired by another holder is never
// released by us.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisCorrelationLocker serializes operations per correlation key
// across instances using SET NX with a TTL. The TTL bounds how long a
// crashed holder can block other writers.
type RedisCorrelationLocker struct {
	client        *redis.Client
	keyPrefix     string
	ttl           time.Duration
	retryInterval time.Duration
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisCorrelationLocker creates a new Redis-based locker
func NewRedisCorrelationLocker(cfg RedisConfig, ttl time.Duration) (*RedisCorrelationLocker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisCorrelationLockerWithClient(client, "", ttl), nil
}

// NewRedisCorrelationLockerWithClient creates a locker with an existing
// Redis client. Useful for testing or sharing a client across
// components.
func NewRedisCorrelationLockerWithClient(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisCorrelationLocker {
	if keyPrefix == "" {
		keyPrefix = "ledger:lock:"
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisCorrelationLocker{
		client:        client,
		keyPrefix:     keyPrefix,
		ttl:           ttl,
		retryInterval: 50 * time.Millisecond,
	}
}

// Lock acquires the lock for the given key, polling until available or
// the context is cancelled.
func (l *RedisCorrelationLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.keyPrefix + key
	token := uuid.NewString()

	for {
		acquired, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if acquired {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retryInterval):
		}
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err()
	}, nil
}

// Close closes the Redis client
func (l *RedisCorrelationLocker) Close() error {
	return l.client.Close()
}

// Ensure RedisCorrelationLocker implements CorrelationLocker
var _ shared.CorrelationLocker = (*RedisCorrelationLocker)(nil)
