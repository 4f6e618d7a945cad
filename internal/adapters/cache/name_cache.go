// Package cache は Redis を使った表示名キャッシュです。
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/ogurasousui/nearest-leader/internal/core/person"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "nearest-leader:name:"

type store interface {
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// NameCache は person.NameResolver をキャッシュで包むデコレーターです。
// キャッシュの障害時は委譲先の結果をそのまま返します。
type NameCache struct {
	store    store
	delegate person.NameResolver
	ttl      time.Duration
	logger   *zap.Logger
}

// NewNameCache は NameCache を生成します。
func NewNameCache(client *redis.Client, delegate person.NameResolver, ttl time.Duration, logger *zap.Logger) *NameCache {
	return newNameCache(client, delegate, ttl, logger)
}

func newNameCache(s store, delegate person.NameResolver, ttl time.Duration, logger *zap.Logger) *NameCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NameCache{store: s, delegate: delegate, ttl: ttl, logger: logger}
}

// ResolveNames はキャッシュにない識別番号のみを委譲先で解決します。
func (c *NameCache) ResolveNames(ctx context.Context, ids []string, correlationID string) (map[string]string, error) {
	ids = person.DistinctIDs(ids)
	result := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	misses := ids
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = cacheKey(id)
	}

	values, err := c.store.MGet(ctx, keys...).Result()
	if err != nil {
		c.logger.Warn("name cache read failed", zap.String("correlation_id", correlationID), zap.Error(err))
	} else {
		misses = make([]string, 0, len(ids))
		for i, id := range ids {
			if i < len(values) {
				if name, ok := values[i].(string); ok && name != "" {
					result[id] = name
					continue
				}
			}
			misses = append(misses, id)
		}
	}

	if len(misses) == 0 {
		return result, nil
	}

	resolved, err := c.delegate.ResolveNames(ctx, misses, correlationID)
	if err != nil {
		return nil, err
	}

	for id, name := range resolved {
		result[id] = name
		if err := c.store.Set(ctx, cacheKey(id), name, c.ttl).Err(); err != nil {
			c.logger.Warn("name cache write failed", zap.String("correlation_id", correlationID), zap.Error(err))
		}
	}
	return result, nil
}

func cacheKey(id string) string {
	sum := sha256.Sum256([]byte(id))
	return keyPrefix + hex.EncodeToString(sum[:])
}
