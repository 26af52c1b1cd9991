// Package cache provides a Redis-backed result cache for the pair
// co-occurrence query, the only operation expensive enough to be worth
// caching. Caching is strictly best-effort: a cold or unavailable Redis
// only costs recomputation.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/aaqwq/groupscope/internal/analysis"
	"github.com/aaqwq/groupscope/pkg/config"
	pkgredis "github.com/aaqwq/groupscope/pkg/redis"
)

const keyPrefix = "pairs:"

type PairCache struct {
	client *pkgredis.Client
	cfg    config.RedisConfig
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

func New(client *pkgredis.Client, cfg config.RedisConfig) *PairCache {
	return &PairCache{
		client: client,
		cfg:    cfg,
		logger: slog.Default().With("component", "pair-cache"),
	}
}

func (c *PairCache) Get(ctx context.Context, owner string, threshold int) ([]analysis.Pair, bool) {
	key := buildKey(owner, threshold)
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}
	var pairs []analysis.Pair
	if err := json.Unmarshal([]byte(data), &pairs); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	c.logger.Debug("cache hit", "owner", owner, "threshold", threshold)
	return pairs, true
}

func (c *PairCache) Set(ctx context.Context, owner string, threshold int, pairs []analysis.Pair) {
	key := buildKey(owner, threshold)
	data, err := json.Marshal(pairs)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.cfg.CacheTTL); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached pair list or computes and stores it.
// Concurrent callers for the same key share a single computation.
func (c *PairCache) GetOrCompute(
	ctx context.Context,
	owner string,
	threshold int,
	computeFn func() ([]analysis.Pair, error),
) ([]analysis.Pair, bool, error) {
	if pairs, ok := c.Get(ctx, owner, threshold); ok {
		return pairs, true, nil
	}
	key := buildKey(owner, threshold)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if pairs, ok := c.Get(ctx, owner, threshold); ok {
			return pairs, nil
		}
		pairs, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, owner, threshold, pairs)
		return pairs, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]analysis.Pair), false, nil
}

// InvalidateOwner drops all cached results for one owner. Called whenever
// the owner's dataset is replaced or deleted.
func (c *PairCache) InvalidateOwner(ctx context.Context, owner string) error {
	pattern := keyPrefix + owner + ":*"
	deleted, err := c.client.FlushByPattern(ctx, pattern)
	if err != nil {
		return fmt.Errorf("invalidating cache for %s: %w", owner, err)
	}
	c.logger.Info("cache invalidated", "owner", owner, "keys_deleted", deleted)
	return nil
}

func (c *PairCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func buildKey(owner string, threshold int) string {
	return fmt.Sprintf("%s%s:t=%d", keyPrefix, owner, threshold)
}
