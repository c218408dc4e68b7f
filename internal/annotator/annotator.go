// Package annotator connects the privacy engine to an external named-entity
// recognition service, optionally through a Redis cache.
package annotator

import (
	"fmt"

	"github.com/raaihank/pii-sentinel/internal/cache"
	"github.com/raaihank/pii-sentinel/internal/config"
	"github.com/raaihank/pii-sentinel/internal/logger"
	"github.com/raaihank/pii-sentinel/internal/metrics"
	"github.com/raaihank/pii-sentinel/internal/privacy"
)

// New builds the configured annotator. It returns a nil annotator when
// annotation is disabled. The returned close function is never nil.
func New(cfg config.AnnotatorConfig, m *metrics.Metrics, log *logger.Logger) (privacy.Annotator, func() error, error) {
	noop := func() error { return nil }
	if log == nil {
		log = logger.NewNop()
	}
	if !cfg.Enabled {
		return nil, noop, nil
	}

	client, err := NewClient(cfg, m, log.WithComponent("annotator"))
	if err != nil {
		return nil, noop, fmt.Errorf("failed to create annotator client: %w", err)
	}

	if !cfg.Cache.Enabled {
		return client, noop, nil
	}

	entityCache, err := NewCache(cfg.Cache, log)
	if err != nil {
		return nil, noop, err
	}

	return NewCaching(client, entityCache, m, log.WithComponent("annotator")), entityCache.Close, nil
}

// NewCache connects the Redis cache of annotator results.
func NewCache(cfg config.CacheConfig, log *logger.Logger) (*cache.EntityCache, error) {
	entityCache, err := cache.NewEntityCache(&cache.Config{
		RedisURL:       cfg.RedisURL,
		MaxConnections: cfg.MaxConnections,
		MinIdleConns:   cfg.MinIdleConns,
		DefaultTTL:     cfg.DefaultTTL,
		KeyPrefix:      cfg.KeyPrefix,
	}, log.WithComponent("cache").Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create entity cache: %w", err)
	}
	return entityCache, nil
}
