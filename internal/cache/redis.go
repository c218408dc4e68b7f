package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/raaihank/pii-sentinel/internal/privacy"
)

// EntityCache stores annotator output in Redis, keyed by a digest of the
// annotated text. Neither the text nor the entity spans' content is stored.
type EntityCache struct {
	client *redis.Client
	config *Config
	logger *zap.Logger
	stats  *cacheStats
}

// cacheStats tracks cache performance metrics
type cacheStats struct {
	hits   atomic.Int64
	misses atomic.Int64
}

// NewEntityCache creates a new Redis-based entity cache
func NewEntityCache(config *Config, logger *zap.Logger) (*EntityCache, error) {
	// Parse Redis URL
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Configure connection pool
	if config.MaxConnections > 0 {
		opts.PoolSize = config.MaxConnections
	}
	opts.MinIdleConns = config.MinIdleConns

	client := redis.NewClient(opts)

	cache := &EntityCache{
		client: client,
		config: config,
		logger: logger,
		stats:  &cacheStats{},
	}

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := cache.ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Entity cache initialized successfully",
		zap.String("redis_url", maskRedisURL(config.RedisURL)),
		zap.Int("max_connections", opts.PoolSize),
		zap.Duration("default_ttl", config.DefaultTTL))

	return cache, nil
}

// ping tests the Redis connection
func (ec *EntityCache) ping(ctx context.Context) error {
	_, err := ec.client.Ping(ctx).Result()
	return err
}

// Get returns the cached entities of text. Lookup failures are logged and
// reported as misses.
func (ec *EntityCache) Get(ctx context.Context, text string) ([]privacy.Entity, bool) {
	cacheKey := ec.key(text)

	cachedData, err := ec.client.Get(ctx, cacheKey).Result()
	if errors.Is(err, redis.Nil) {
		ec.stats.misses.Add(1)
		return nil, false
	} else if err != nil {
		ec.stats.misses.Add(1)
		ec.logger.Warn("Cache lookup failed", zap.Error(err))
		return nil, false
	}

	var cached CachedEntities
	if err := json.Unmarshal([]byte(cachedData), &cached); err != nil {
		ec.stats.misses.Add(1)
		ec.logger.Warn("Failed to unmarshal cached entities", zap.Error(err))
		// Delete corrupted cache entry
		ec.client.Del(ctx, cacheKey)
		return nil, false
	}

	ec.stats.hits.Add(1)
	ec.logger.Debug("Cache hit", zap.Int("entities", len(cached.Entities)))
	return cached.Entities, true
}

// Store caches the entities of text with the default TTL
func (ec *EntityCache) Store(ctx context.Context, text string, entities []privacy.Entity) error {
	cached := CachedEntities{
		Entities: entities,
		CachedAt: time.Now(),
		TTL:      int64(ec.config.DefaultTTL.Seconds()),
	}

	data, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to marshal entities for caching: %w", err)
	}

	if err := ec.client.Set(ctx, ec.key(text), data, ec.config.DefaultTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache entities: %w", err)
	}

	return nil
}

// GetStats returns cache performance statistics
func (ec *EntityCache) GetStats(ctx context.Context) (*CacheStats, error) {
	stats := &CacheStats{
		Hits:   ec.stats.hits.Load(),
		Misses: ec.stats.misses.Load(),
	}

	// Calculate hit rate
	total := stats.Hits + stats.Misses
	if total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}

	keys, err := ec.client.DBSize(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get Redis key count: %w", err)
	}
	stats.TotalKeys = keys

	return stats, nil
}

// Clear removes all cached entries under the key prefix
func (ec *EntityCache) Clear(ctx context.Context) error {
	pattern := ec.config.KeyPrefix + ":ent:*"

	// Use SCAN to find all keys with our prefix
	iter := ec.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string

	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}

	// Delete keys in batches
	batchSize := 100
	for i := 0; i < len(keys); i += batchSize {
		end := min(i+batchSize, len(keys))
		if err := ec.client.Del(ctx, keys[i:end]...).Err(); err != nil {
			return fmt.Errorf("failed to delete cache keys: %w", err)
		}
	}

	ec.logger.Info("Cache cleared", zap.Int("deleted_keys", len(keys)))
	return nil
}

// Close closes the Redis connection
func (ec *EntityCache) Close() error {
	if ec.client != nil {
		return ec.client.Close()
	}
	return nil
}

// key derives the cache key from a SHA-256 digest of the text
func (ec *EntityCache) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%s:ent:%s", ec.config.KeyPrefix, hex.EncodeToString(sum[:]))
}

// maskRedisURL masks sensitive information in Redis URL for logging
func maskRedisURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}
