package service

import (
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jellydator/ttlcache/v3"
)

// resultCache memoizes query results per distribution generation. A refresh
// bumps the generation, so entries built against an older index are never
// looked up again and simply expire.
type resultCache struct {
	items *ttlcache.Cache[uint64, any]
}

func newResultCache(ttl time.Duration, size uint64) *resultCache {
	if ttl <= 0 {
		return nil
	}
	opts := []ttlcache.Option[uint64, any]{
		ttlcache.WithTTL[uint64, any](ttl),
		ttlcache.WithDisableTouchOnHit[uint64, any](),
	}
	if size > 0 {
		opts = append(opts, ttlcache.WithCapacity[uint64, any](size))
	}
	c := &resultCache{items: ttlcache.New(opts...)}
	go c.items.Start()
	return c
}

// key hashes the call identity. Parts are NUL separated so ("ab","c") and
// ("a","bc") differ.
func key(distro string, generation uint64, method string, args ...string) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(distro)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(strconv.FormatUint(generation, 10))
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(method)
	for _, a := range args {
		_, _ = h.Write([]byte{0})
		_, _ = h.WriteString(a)
	}
	return h.Sum64()
}

func (c *resultCache) get(k uint64) (any, bool) {
	if c == nil {
		return nil, false
	}
	item := c.items.Get(k)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

func (c *resultCache) set(k uint64, v any) {
	if c == nil {
		return
	}
	c.items.Set(k, v, ttlcache.DefaultTTL)
}

func (c *resultCache) len() int {
	if c == nil {
		return 0
	}
	return c.items.Len()
}

func (c *resultCache) stop() {
	if c == nil {
		return
	}
	c.items.Stop()
}
