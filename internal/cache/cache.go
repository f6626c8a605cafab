// Package cache keeps successful connector responses in redis so repeated searches
// do not spend provider quota.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spigell/job-aggregator/internal/connector"
	"github.com/spigell/job-aggregator/internal/listing"
)

const keyPrefix = "jobagg:search"

// Commands is the part of the redis client the cache needs.
type Commands interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Connector decorates another connector with a read-through redis cache.
type Connector struct {
	next   connector.Connector
	rdb    Commands
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisClient parses redisURL and verifies connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return client, nil
}

// Wrap returns next unchanged when rdb is nil or ttl is not positive.
func Wrap(next connector.Connector, rdb Commands, ttl time.Duration, logger *zap.Logger) connector.Connector {
	if rdb == nil || ttl <= 0 {
		return next
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{
		next:   next,
		rdb:    rdb,
		ttl:    ttl,
		logger: logger.With(zap.String("source", string(next.Source()))),
	}
}

// Key is the redis key a search is cached under.
func Key(source listing.Source, criteria listing.SearchCriteria) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, source, criteria.CacheKey())
}

func (c *Connector) Source() listing.Source {
	return c.next.Source()
}

func (c *Connector) Search(ctx context.Context, criteria listing.SearchCriteria) (*connector.Response, error) {
	key := Key(c.next.Source(), criteria)

	if resp, ok := c.lookup(ctx, key); ok {
		return resp, nil
	}

	resp, err := c.next.Search(ctx, criteria)
	if err != nil {
		return nil, err
	}

	c.store(ctx, key, resp)
	return resp, nil
}

func (c *Connector) lookup(ctx context.Context, key string) (*connector.Response, bool) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("cache lookup failed, calling provider", zap.Error(err))
		return nil, false
	}

	var resp connector.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		c.logger.Warn("cached response is corrupted, calling provider", zap.Error(err))
		return nil, false
	}

	c.logger.Debug("cache hit", zap.String("key", key), zap.Int("listings", len(resp.Listings)))
	return &resp, true
}

func (c *Connector) store(ctx context.Context, key string, resp *connector.Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		c.logger.Warn("failed to encode response for cache", zap.Error(err))
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("failed to store response in cache", zap.Error(err))
	}
}
