package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	ProductCachePrefix     = "product:detail:v"
	ProductListCachePrefix = "products:v"
	CacheVersionKey        = "products:version"

	DefaultTTL = 10 * time.Minute
)

// RedisClient is the subset of go-redis used by CacheManager.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
}

// CacheManager caches product reads in Redis. Every key embeds the current
// version, so bumping the version invalidates all of them at once. A nil
// manager, or one without a client, never hits and never fails.
type CacheManager struct {
	redis RedisClient
	ttl   time.Duration
}

func NewCacheManager(client RedisClient, ttl time.Duration) *CacheManager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &CacheManager{redis: client, ttl: ttl}
}

func (cm *CacheManager) enabled() bool {
	return cm != nil && cm.redis != nil
}

// GetProduct loads a cached product response into dst.
func (cm *CacheManager) GetProduct(ctx context.Context, id string, dst interface{}) bool {
	if !cm.enabled() {
		return false
	}
	version, err := cm.version(ctx)
	if err != nil {
		return false
	}
	return cm.get(ctx, fmt.Sprintf("%s%d:%s", ProductCachePrefix, version, id), dst)
}

func (cm *CacheManager) SetProduct(ctx context.Context, id string, value interface{}) {
	if !cm.enabled() {
		return
	}
	version, err := cm.version(ctx)
	if err != nil {
		return
	}
	cm.set(ctx, fmt.Sprintf("%s%d:%s", ProductCachePrefix, version, id), value)
}

// GetProductList loads a cached list page into dst.
func (cm *CacheManager) GetProductList(ctx context.Context, page, perPage int, dst interface{}) bool {
	if !cm.enabled() {
		return false
	}
	version, err := cm.version(ctx)
	if err != nil {
		return false
	}
	return cm.get(ctx, listKey(version, page, perPage), dst)
}

func (cm *CacheManager) SetProductList(ctx context.Context, page, perPage int, value interface{}) {
	if !cm.enabled() {
		return
	}
	version, err := cm.version(ctx)
	if err != nil {
		return
	}
	cm.set(ctx, listKey(version, page, perPage), value)
}

// Invalidate drops every cached product read by bumping the version.
func (cm *CacheManager) Invalidate(ctx context.Context) error {
	if !cm.enabled() {
		return nil
	}
	v, err := cm.redis.Incr(ctx, CacheVersionKey).Result()
	if err != nil {
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}
	zap.L().Debug("product cache invalidated", zap.Int64("version", v))
	return nil
}

func (cm *CacheManager) get(ctx context.Context, key string, dst interface{}) bool {
	raw, err := cm.redis.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zap.L().Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		zap.L().Warn("failed to unmarshal cached value", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (cm *CacheManager) set(ctx context.Context, key string, value interface{}) {
	b, err := json.Marshal(value)
	if err != nil {
		zap.L().Warn("failed to marshal value for cache", zap.String("key", key), zap.Error(err))
		return
	}
	if err := cm.redis.Set(ctx, key, b, cm.ttl).Err(); err != nil {
		zap.L().Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// version returns the current cache version, initialising it to 1.
func (cm *CacheManager) version(ctx context.Context) (int64, error) {
	v, err := cm.redis.Get(ctx, CacheVersionKey).Int64()
	if err == nil && v > 0 {
		return v, nil
	}
	if errors.Is(err, redis.Nil) {
		if err := cm.redis.Set(ctx, CacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err == nil {
		err = fmt.Errorf("invalid cache version %d", v)
	}
	return 0, err
}

func listKey(version int64, page, perPage int) string {
	return fmt.Sprintf("%s%d:p:%d:l:%d", ProductListCachePrefix, version, page, perPage)
}
