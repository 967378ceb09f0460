package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/soundtrace/soundtrace/internal/metrics"
	"github.com/soundtrace/soundtrace/internal/models"
)

// PostingCache is the optional Redis-backed layer in front of
// index.Store.Lookup, keyed by hash and populated on miss.
type PostingCache struct {
	redis *RedisClient
	ttl   time.Duration
}

// NewPostingCache wraps an already-connected RedisClient. ttl of zero uses
// a one-hour default.
func NewPostingCache(redis *RedisClient, ttl time.Duration) *PostingCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &PostingCache{redis: redis, ttl: ttl}
}

func postingCacheKey(hash uint32) string {
	return fmt.Sprintf("posting:%d", hash)
}

// Get returns the cached postings for hash, or (nil, false) on a cache
// miss. A malformed cache entry is treated as a miss rather than an error,
// since the index store remains the source of truth.
func (pc *PostingCache) Get(ctx context.Context, hash uint32) ([]models.Posting, bool) {
	raw, err := pc.redis.Get(ctx, postingCacheKey(hash))
	if err != nil {
		metrics.Get().CacheMissesTotal.WithLabelValues("postings").Inc()
		return nil, false
	}

	var postings []models.Posting
	if err := json.Unmarshal([]byte(raw), &postings); err != nil {
		metrics.Get().CacheMissesTotal.WithLabelValues("postings").Inc()
		return nil, false
	}

	metrics.Get().CacheHitsTotal.WithLabelValues("postings").Inc()
	return postings, true
}

// Set populates the cache for hash with its current postings.
func (pc *PostingCache) Set(ctx context.Context, hash uint32, postings []models.Posting) error {
	blob, err := json.Marshal(postings)
	if err != nil {
		return err
	}
	return pc.redis.SetEx(ctx, postingCacheKey(hash), blob, pc.ttl)
}

// Invalidate drops the cached entry for hash, used when new postings are
// inserted for an existing hash (rare: postings are append-only, but a
// stale cache entry should never outlive a real write).
func (pc *PostingCache) Invalidate(ctx context.Context, hash uint32) error {
	return pc.redis.Del(ctx, postingCacheKey(hash))
}
