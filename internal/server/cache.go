package server

import (
	"time"

	"github.com/patrickmn/go-cache"

	"hcahps/internal/analytics"
)

// reportCache keeps rendered reports keyed by id and parameters
type reportCache struct {
	cache *cache.Cache
}

func newReportCache(ttl time.Duration) *reportCache {
	return &reportCache{
		cache: cache.New(ttl, 2*ttl),
	}
}

func (c *reportCache) get(key string) (*analytics.Report, bool) {
	v, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	return v.(*analytics.Report), true
}

func (c *reportCache) set(key string, r *analytics.Report) {
	c.cache.SetDefault(key, r)
}

func (c *reportCache) len() int {
	return c.cache.ItemCount()
}
