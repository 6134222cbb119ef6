package api

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	previewCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "emojid_preview_cache_hits_total",
		Help: "Preview byte cache hits.",
	})
	previewCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "emojid_preview_cache_misses_total",
		Help: "Preview byte cache misses.",
	})
)

// previewCache is a per-instance expirable LRU of preview image bytes,
// keyed by absolute file path.
type previewCache struct {
	cache *expirable.LRU[string, []byte]
}

func newPreviewCache(maxEntries int, ttl time.Duration) *previewCache {
	return &previewCache{cache: expirable.NewLRU[string, []byte](maxEntries, nil, ttl)}
}

func (c *previewCache) Get(path string) ([]byte, bool) {
	b, ok := c.cache.Get(path)
	if ok {
		previewCacheHitsTotal.Inc()
		return b, true
	}
	previewCacheMissesTotal.Inc()
	return nil, false
}

func (c *previewCache) Set(path string, data []byte) {
	c.cache.Add(path, data)
}

func (c *previewCache) Invalidate(path string) {
	c.cache.Remove(path)
}
