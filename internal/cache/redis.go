package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/extra/redisotel/v8"
	"github.com/go-redis/redis/v8"

	"github.com/bandmate/bandmate/internal/telemetry"
)

// ErrCacheMiss is returned when a key is absent.
var ErrCacheMiss = errors.New("cache: key not found")

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
}

// RedisClientInterface defines the Redis client surface used by the service,
// kept narrow so tests can stub it
type RedisClientInterface interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// RedisService provides the hot-cache operations the system needs:
// JSON value caching and counter-based rate limiting.
type RedisService struct {
	client RedisClientInterface

	hits   uint64
	misses uint64
	sets   uint64
}

// Stats holds cache performance counters.
type Stats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Sets   uint64 `json:"sets"`
}

// HitRate calculates the cache hit rate.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0.0
	}
	return float64(s.Hits) / float64(total)
}

// NewRedisService connects to Redis and verifies the connection.
func NewRedisService(config *RedisConfig) (*RedisService, error) {
	ctx := telemetry.WithCorrelationID(context.Background(), telemetry.NewCorrelationID())
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"operation": "redis_connection",
		"service":   "cache",
	})

	if config == nil {
		config = ConfigFromEnv()
	}

	logger = logger.WithFields(map[string]interface{}{
		"host":      config.Host,
		"port":      config.Port,
		"db":        config.DB,
		"pool_size": config.PoolSize,
	})

	logger.Info("Establishing Redis connection")

	rdb := redis.NewClient(&redis.Options{
		Addr:       fmt.Sprintf("%s:%d", config.Host, config.Port),
		Password:   config.Password,
		DB:         config.DB,
		PoolSize:   config.PoolSize,
		MaxRetries: 3,
	})
	rdb.AddHook(redisotel.NewTracingHook())

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Error("Failed to connect to Redis")
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis connected successfully")
	return &RedisService{client: rdb}, nil
}

// NewRedisServiceWithClient wraps an existing client (used by tests).
func NewRedisServiceWithClient(client RedisClientInterface) *RedisService {
	return &RedisService{client: client}
}

// ConfigFromEnv reads Redis configuration from environment variables.
func ConfigFromEnv() *RedisConfig {
	port, _ := strconv.Atoi(getEnv("REDIS_PORT", "6379"))
	db, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	poolSize, _ := strconv.Atoi(getEnv("REDIS_POOL_SIZE", "10"))

	return &RedisConfig{
		Host:     getEnv("REDIS_HOST", "localhost"),
		Port:     port,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
		PoolSize: poolSize,
	}
}

// SetJSON stores a JSON-encoded value under key with a TTL. A TTL of
// zero means no expiry.
func (r *RedisService) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value for %s: %w", key, err)
	}
	if err := r.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache key %s: %w", key, err)
	}
	atomic.AddUint64(&r.sets, 1)
	return nil
}

// GetJSON loads a JSON-encoded value into dest. Returns ErrCacheMiss
// when the key is absent.
func (r *RedisService) GetJSON(ctx context.Context, key string, dest interface{}) error {
	raw, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		atomic.AddUint64(&r.misses, 1)
		return ErrCacheMiss
	}
	if err != nil {
		return fmt.Errorf("failed to get cache key %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return fmt.Errorf("failed to decode cache value for %s: %w", key, err)
	}
	atomic.AddUint64(&r.hits, 1)
	return nil
}

// Delete removes a key.
func (r *RedisService) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete cache key %s: %w", key, err)
	}
	return nil
}

// IncrementWindow increments a counter key and sets the window TTL on
// first use. It returns the counter value, which rate limiters compare
// against their budget.
func (r *RedisService) IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s: %w", key, err)
	}
	if count == 1 {
		if err := r.client.Expire(ctx, key, window).Err(); err != nil {
			return count, fmt.Errorf("failed to set window on %s: %w", key, err)
		}
	}
	return count, nil
}

// GetStats returns a snapshot of the cache counters.
func (r *RedisService) GetStats() Stats {
	return Stats{
		Hits:   atomic.LoadUint64(&r.hits),
		Misses: atomic.LoadUint64(&r.misses),
		Sets:   atomic.LoadUint64(&r.sets),
	}
}

// HealthCheck reports whether Redis responds to a ping.
func (r *RedisService) HealthCheck(ctx context.Context) bool {
	return r.client.Ping(ctx).Err() == nil
}

// Close closes the underlying client.
func (r *RedisService) Close() error {
	return r.client.Close()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
