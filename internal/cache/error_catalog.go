// Package cache keeps the error-code reference table close at hand, in Redis
// when one is configured.
package cache

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"nach-reprocessing/internal/domain"
)

const errorCatalogKey = "nach:error_config"

// NewRedisClient returns nil when addr is empty or the server does not answer
// a ping. Callers treat a nil client as "caching disabled".
func NewRedisClient(ctx context.Context, addr string, logger *slog.Logger) *redis.Client {
	if addr == "" {
		logger.Warn("REDIS_ADDR not set, error catalog caching disabled")
		return nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("Failed to connect to Redis", "redis_addr", addr, "error", err)
		rdb.Close()
		return nil
	}

	logger.Info("Connected to Redis", "redis_addr", addr)
	return rdb
}

// ErrorCatalog serves the read-only error-code table, through a TTL-bound
// Redis copy when a client is set.
type ErrorCatalog struct {
	source domain.ErrorConfigRepository
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewErrorCatalog(source domain.ErrorConfigRepository, rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *ErrorCatalog {
	return &ErrorCatalog{
		source: source,
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

func (c *ErrorCatalog) List(ctx context.Context) ([]domain.ErrorConfig, error) {
	if c.rdb != nil {
		cached, err := c.rdb.Get(ctx, errorCatalogKey).Bytes()
		if err == nil {
			var configs []domain.ErrorConfig
			if json.Unmarshal(cached, &configs) == nil {
				c.logger.Debug("Error catalog loaded from cache", "entries", len(configs))
				return configs, nil
			}
			c.logger.Warn("Failed to unmarshal cached error catalog")
		} else if !stderrors.Is(err, redis.Nil) {
			c.logger.Error("Redis GET command failed", "key", errorCatalogKey, "error", err)
		}
	}

	configs, err := c.source.ListErrorConfigs(ctx)
	if err != nil {
		return nil, err
	}

	if c.rdb != nil {
		if data, err := json.Marshal(configs); err == nil {
			if err := c.rdb.Set(ctx, errorCatalogKey, data, c.ttl).Err(); err != nil {
				c.logger.Error("Redis SET command failed", "key", errorCatalogKey, "error", err)
			}
		}
	}
	return configs, nil
}

// Lookup returns nil without error when code is not in the catalog.
func (c *ErrorCatalog) Lookup(ctx context.Context, code string) (*domain.ErrorConfig, error) {
	configs, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range configs {
		if configs[i].Code == code {
			return &configs[i], nil
		}
	}
	return nil, nil
}

// Invalidate drops the cached copy so the next List reads the database.
func (c *ErrorCatalog) Invalidate(ctx context.Context) error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Del(ctx, errorCatalogKey).Err()
}
