package datasources

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const cacheKeyPrefix = "signalrun:fetch"

// FetchCache memoizes gateway responses in Redis with a single TTL. It is an
// optimization only: any cache failure degrades to a direct fetch, so a cold
// or unreachable Redis never changes scoring output, only latency.
type FetchCache struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

// NewFetchCache wraps a Redis client. A zero ttl disables caching entirely.
func NewFetchCache(rdb redis.UniversalClient, ttl time.Duration) *FetchCache {
	return &FetchCache{rdb: rdb, ttl: ttl}
}

// Get loads a memoized response into out. Returns false on miss, expired
// entry, disabled cache, or any Redis/decode failure.
func (c *FetchCache) Get(ctx context.Context, category, request string, out interface{}) bool {
	if c == nil || c.ttl == 0 {
		return false
	}

	payload, err := c.rdb.Get(ctx, c.key(category, request)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("category", category).Msg("Fetch cache read failed")
		}
		return false
	}
	if err := json.Unmarshal(payload, out); err != nil {
		log.Warn().Err(err).Str("category", category).Msg("Fetch cache entry undecodable, ignoring")
		return false
	}
	return true
}

// Set stores a response. Failures are logged and swallowed.
func (c *FetchCache) Set(ctx context.Context, category, request string, val interface{}) {
	if c == nil || c.ttl == 0 {
		return
	}

	payload, err := json.Marshal(val)
	if err != nil {
		log.Warn().Err(err).Str("category", category).Msg("Fetch cache marshal failed")
		return
	}
	if err := c.rdb.Set(ctx, c.key(category, request), payload, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("category", category).Msg("Fetch cache write failed")
	}
}

func (c *FetchCache) key(category, request string) string {
	sum := sha256.Sum256([]byte(request))
	return fmt.Sprintf("%s:%s:%s", cacheKeyPrefix, category, hex.EncodeToString(sum[:8]))
}
