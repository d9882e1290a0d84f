package schema

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Cached wraps a Describer with a TTL cache keyed by table name. A zero TTL
// disables caching and every call goes to the wrapped Describer.
type Cached struct {
	inner Describer
	ttl   time.Duration

	cache *ttlcache.Cache[string, *Descriptor]
}

func NewCached(inner Describer, ttl time.Duration) *Cached {
	return &Cached{
		inner: inner,
		ttl:   ttl,
		cache: ttlcache.New(ttlcache.WithTTL[string, *Descriptor](ttl)),
	}
}

func (c *Cached) Describe(ctx context.Context, table string) (*Descriptor, error) {
	if c.ttl <= 0 {
		return c.inner.Describe(ctx, table)
	}

	if item := c.cache.Get(table); item != nil {
		return item.Value().Clone(), nil
	}

	desc, err := c.inner.Describe(ctx, table)
	if err != nil {
		return nil, err
	}

	c.cache.Set(table, desc.Clone(), c.ttl)
	return desc, nil
}
