package geo

import (
	"context"
	"errors"
	"io"
	"log"
	"net/netip"
	"time"

	"github.com/aceteam-ai/vpswatch/internal/store"
)

// DefaultTTL is how long a successful lookup is reused.
const DefaultTTL = 24 * time.Hour

// cacheEntry is the stored form of a lookup. FetchedAt lets the cache
// enforce the TTL itself on stores with coarse expiry.
type cacheEntry struct {
	Info
	FetchedAt int64 `json:"fetchedAt"` // unix millis
}

// Cache is a read-through geolocation cache.
type Cache struct {
	store  store.Store
	lookup Lookuper
	ttl    time.Duration
	now    func() time.Time
	logger *log.Logger
}

// CacheConfig holds configuration for the cache.
type CacheConfig struct {
	Store  store.Store
	Lookup Lookuper

	// TTL overrides the entry lifetime (default: 24h)
	TTL time.Duration

	// Now overrides the clock (default: time.Now)
	Now func() time.Time

	// Logger receives lookup and cache failures (default: discarded)
	Logger *log.Logger
}

// NewCache creates a geo cache.
func NewCache(cfg CacheConfig) *Cache {
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	return &Cache{
		store:  cfg.Store,
		lookup: cfg.Lookup,
		ttl:    cfg.TTL,
		now:    cfg.Now,
		logger: cfg.Logger,
	}
}

// Get returns the geolocation of ip. The boolean is false when no
// enrichment is available: non-public addresses, lookup failures and
// rate limiting all degrade to false. Failures are never cached.
func (c *Cache) Get(ctx context.Context, ip string) (Info, bool) {
	if !IsPublic(ip) {
		return Info{}, false
	}

	now := c.now()
	key := store.GeoKey(ip)

	var entry cacheEntry
	err := store.GetJSON(ctx, c.store, key, &entry)
	switch {
	case err == nil && now.Sub(time.UnixMilli(entry.FetchedAt)) < c.ttl:
		return entry.Info, true
	case err != nil && !errors.Is(err, store.ErrNotFound):
		c.logger.Printf("cache read for %s failed: %v", ip, err)
	}

	info, err := c.lookup.Lookup(ctx, ip)
	if err != nil {
		c.logger.Printf("lookup for %s failed: %v", ip, err)
		return Info{}, false
	}

	entry = cacheEntry{Info: info, FetchedAt: now.UnixMilli()}
	if err := store.SetJSON(ctx, c.store, key, entry, c.ttl); err != nil {
		c.logger.Printf("cache write for %s failed: %v", ip, err)
	}
	return info, true
}

// IsPublic reports whether ip is a globally routable unicast address.
// Private (RFC 1918, IPv6 ULA), loopback, link-local, unspecified,
// multicast and unparsable addresses are not.
func IsPublic(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	return addr.IsGlobalUnicast() && !addr.IsPrivate()
}
