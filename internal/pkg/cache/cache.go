package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nusapay/qrisgate/internal/pkg/env"
)

var client *redis.Client

// SetupCache connects to Redis. A missing server is logged, not fatal: the
// paid cache and counters degrade to misses while the gateway keeps serving.
func SetupCache() {
	addr := fmt.Sprintf("%s:%s", env.GetEnv("CACHE_HOST", "localhost"), env.GetEnv("CACHE_PORT", "6379"))
	client = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       env.GetEnvInt("CACHE_DB", 0),
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		log.Printf("cache: redis unreachable at %s: %v", addr, err)
		return
	}
	log.Printf("cache: connected to redis at %s", addr)
}

// GetClient returns the Redis client, connecting lazily if needed.
func GetClient() *redis.Client {
	if client == nil {
		SetupCache()
	}
	return client
}

// Set stores a value under key with a TTL.
func Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return GetClient().Set(ctx, key, value, ttl).Err()
}

// Get retrieves the string value under key.
func Get(ctx context.Context, key string) (string, error) {
	return GetClient().Get(ctx, key).Result()
}

// Delete removes the value under key.
func Delete(ctx context.Context, key string) error {
	return GetClient().Del(ctx, key).Err()
}
