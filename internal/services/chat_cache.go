package services

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/babynest/backend/pkg/logger"
)

const (
	partnersCacheTTL = 10 * time.Minute
	// Outlives any cached list so a lost version cannot revive an old entry.
	partnersVersionTTL = 24 * time.Hour
)

// PartnerCache memoizes previous-partner lookups per user. Callers read
// Version before computing a list and hand it back to Set; a list computed
// before an Invalidate is never served.
type PartnerCache interface {
	Get(ctx context.Context, userID string) ([]string, bool)
	Version(ctx context.Context, userID string) (int64, bool)
	Set(ctx context.Context, userID string, version int64, partners []string)
	Invalidate(ctx context.Context, userID string)
}

type cachedPartners struct {
	Version  int64    `json:"version"`
	Partners []string `json:"partners"`
}

// RedisPartnerCache keeps partner lists under cache:chat:partners:<user> and
// the invalidation counter under cache:chat:partners_version:<user>.
// Redis errors degrade to a cache miss.
type RedisPartnerCache struct {
	cache *RedisCache
}

func NewRedisPartnerCache(cache *RedisCache) *RedisPartnerCache {
	return &RedisPartnerCache{cache: cache}
}

func partnersKey(userID string) string {
	return CacheKey("chat:partners", userID)
}

func partnersVersionKey(userID string) string {
	return CacheKey("chat:partners_version", userID)
}

func (p *RedisPartnerCache) Version(ctx context.Context, userID string) (int64, bool) {
	v, err := p.cache.client.Get(ctx, CacheKeyPrefix+partnersVersionKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, true
	}
	if err != nil {
		logger.Warn("chat_cache: partner version lookup failed", "user", userID, "error", err)
		return 0, false
	}
	return v, true
}

func (p *RedisPartnerCache) Get(ctx context.Context, userID string) ([]string, bool) {
	var entry cachedPartners
	ok, err := p.cache.Get(ctx, partnersKey(userID), &entry)
	if err != nil {
		logger.Warn("chat_cache: partner lookup failed", "user", userID, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	current, ok := p.Version(ctx, userID)
	if !ok || current != entry.Version {
		return nil, false
	}
	return entry.Partners, true
}

func (p *RedisPartnerCache) Set(ctx context.Context, userID string, version int64, partners []string) {
	entry := cachedPartners{Version: version, Partners: partners}
	if err := p.cache.Set(ctx, partnersKey(userID), entry, partnersCacheTTL); err != nil {
		logger.Warn("chat_cache: partner store failed", "user", userID, "error", err)
	}
}

// Invalidate bumps the version first so a concurrent Set is ignored even if
// it lands after the delete.
func (p *RedisPartnerCache) Invalidate(ctx context.Context, userID string) {
	versionKey := CacheKeyPrefix + partnersVersionKey(userID)
	_, err := p.cache.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, versionKey)
		pipe.Expire(ctx, versionKey, partnersVersionTTL)
		pipe.Del(ctx, CacheKeyPrefix+partnersKey(userID))
		return nil
	})
	if err != nil {
		logger.Warn("chat_cache: partner invalidate failed", "user", userID, "error", err)
	}
}
