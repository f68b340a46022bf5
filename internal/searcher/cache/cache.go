// Package cache memoises search responses in Redis. Concurrent identical
// queries are collapsed with singleflight, and the whole cache is dropped
// whenever a crawl or a single-page re-index changes the index.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/redis"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "search:"

// Backend is the subset of the Redis client the cache needs. Get must
// return pkgredis.ErrMiss for absent keys.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Source is the engine behind the cache.
type Source interface {
	searcher.Searcher
	Lemmas(text string) []string
	Normalize(q searcher.Query) searcher.Query
}

type QueryCache struct {
	source  Source
	backend Backend
	ttl     time.Duration
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(source Source, backend Backend, ttl time.Duration) *QueryCache {
	return &QueryCache{
		source:  source,
		backend: backend,
		ttl:     ttl,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// Search serves q from the cache or computes it once for all concurrent
// callers. Errors are never cached.
func (c *QueryCache) Search(ctx context.Context, q searcher.Query) (*searcher.Response, error) {
	start := time.Now()
	q = c.source.Normalize(q)
	if q.Text == "" {
		return c.source.Search(ctx, q)
	}
	key := c.buildKey(q)
	if resp, ok := c.get(ctx, key); ok {
		metrics.Default.SearchLatency.WithLabelValues("hit").Observe(time.Since(start).Seconds())
		return resp, nil
	}

	val, err, shared := c.group.Do(key, func() (interface{}, error) {
		if resp, ok := c.get(ctx, key); ok {
			return resp, nil
		}
		resp, err := c.source.Search(ctx, q)
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, resp)
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("search shared with a concurrent caller", "key", key)
	}
	return val.(*searcher.Response), nil
}

func (c *QueryCache) get(ctx context.Context, key string) (*searcher.Response, bool) {
	data, err := c.backend.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, pkgredis.ErrMiss) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	var resp searcher.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	metrics.Default.CacheHitsTotal.Inc()
	c.logger.Debug("cache hit", "key", key)
	return &resp, true
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	metrics.Default.CacheMissesTotal.Inc()
}

func (c *QueryCache) set(ctx context.Context, key string, resp *searcher.Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.backend.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// Invalidate drops every cached response.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.backend.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// buildKey hashes the sorted query lemmas together with the site and the
// paging window, so word order and inflection do not split entries.
func (c *QueryCache) buildKey(q searcher.Query) string {
	lemmas := c.source.Lemmas(q.Text)
	sort.Strings(lemmas)
	normalized := strings.Join(lemmas, ",")
	if normalized == "" {
		normalized = "raw:" + strings.ToLower(q.Text)
	}
	raw := fmt.Sprintf("%s|site=%s|offset=%d|limit=%d", normalized, strings.TrimSuffix(q.Site, "/"), q.Offset, q.Limit)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
