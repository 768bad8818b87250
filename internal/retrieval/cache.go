package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// QueryCache memoizes retrieval responses in Redis, keyed by the full query
// shape. Entries are scoped per language so indexing or deletion in one
// language invalidates only that language's entries.
type QueryCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

// NewQueryCache wraps a Redis client. A nil client yields a disabled cache
// whose methods are no-ops, so callers never branch on enablement.
func NewQueryCache(client *redis.Client, ttl time.Duration, logger *logrus.Logger) *QueryCache {
	if logger == nil {
		logger = logrus.New()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &QueryCache{client: client, ttl: ttl, logger: logger}
}

// Enabled reports whether a backing store is configured.
func (c *QueryCache) Enabled() bool {
	return c != nil && c.client != nil
}

func (c *QueryCache) key(lang, query string, topK int, filters Filters) string {
	// Filters must hash identically regardless of map iteration order.
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d", lang, query, topK)
	for _, k := range keys {
		encoded, _ := json.Marshal(filters[k])
		fmt.Fprintf(h, "|%s=%s", k, encoded)
	}
	return "regrag:query:" + lang + ":" + hex.EncodeToString(h.Sum(nil))
}

// Get returns a cached response, or false on miss or any Redis error.
func (c *QueryCache) Get(ctx context.Context, lang, query string, topK int, filters Filters) (*RetrieveResponse, bool) {
	if !c.Enabled() {
		return nil, false
	}

	raw, err := c.client.Get(ctx, c.key(lang, query, topK, filters)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.WithError(err).Debug("Query cache read failed")
		}
		return nil, false
	}

	var resp RetrieveResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		c.logger.WithError(err).Debug("Query cache entry corrupt, ignoring")
		return nil, false
	}
	return &resp, true
}

// Set stores a response. Failures are logged and swallowed; the cache is an
// optimization, never a dependency.
func (c *QueryCache) Set(ctx context.Context, lang, query string, topK int, filters Filters, resp *RetrieveResponse) {
	if !c.Enabled() || resp == nil {
		return
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key(lang, query, topK, filters), raw, c.ttl).Err(); err != nil {
		c.logger.WithError(err).Debug("Query cache write failed")
	}
}

// InvalidateLanguage deletes every cached entry for a language. Called when
// that language's corpus changes.
func (c *QueryCache) InvalidateLanguage(ctx context.Context, lang string) {
	if !c.Enabled() {
		return
	}

	pattern := "regrag:query:" + lang + ":*"
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			c.logger.WithError(err).Debug("Query cache scan failed during invalidation")
			return
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				c.logger.WithError(err).Debug("Query cache delete failed during invalidation")
				return
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
}
