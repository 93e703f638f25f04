package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/uplink-support/ticketd/internal/config"
)

// Redis wraps the go-redis client. Beyond connectivity it provides the
// short-lived lease used to serialize ticket creation per user and a
// small cache for aggregate stats.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to Redis using the provided configuration.
func NewRedis(cfg config.RedisConfig, logger *zap.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn("unable to reach redis", zap.Error(err))
	} else {
		logger.Info("connected to redis")
	}

	return &Redis{Client: client}
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	return r.Client.Ping(ctx).Err()
}

// AcquireLease claims key for ttl. It returns false when another
// holder has the lease. A nil client grants the lease so the service
// degrades to the database constraint alone.
func (r *Redis) AcquireLease(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if r == nil || r.Client == nil {
		return true, nil
	}
	return r.Client.SetNX(ctx, key, "1", ttl).Result()
}

// ReleaseLease drops a held lease early. Expiry covers holders that
// crash before releasing.
func (r *Redis) ReleaseLease(ctx context.Context, key string) {
	if r == nil || r.Client == nil {
		return
	}
	_ = r.Client.Del(ctx, key).Err()
}

// CacheGet reads a cached value; ok is false on miss or when no client
// is configured.
func (r *Redis) CacheGet(ctx context.Context, key string) (string, bool) {
	if r == nil || r.Client == nil {
		return "", false
	}
	val, err := r.Client.Get(ctx, key).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

// CacheSet stores a value with a TTL; failures are ignored, the cache
// is advisory.
func (r *Redis) CacheSet(ctx context.Context, key, value string, ttl time.Duration) {
	if r == nil || r.Client == nil {
		return
	}
	_ = r.Client.Set(ctx, key, value, ttl).Err()
}
