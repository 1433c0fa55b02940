package geo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aceteam-ai/vpswatch/internal/store"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeLookuper counts calls and returns a fixed answer or error.
type fakeLookuper struct {
	calls int
	info  Info
	err   error
}

func (f *fakeLookuper) Lookup(_ context.Context, ip string) (Info, error) {
	f.calls++
	if f.err != nil {
		return Info{}, f.err
	}
	info := f.info
	info.IP = ip
	return info, nil
}

func newTestCache(l Lookuper) (*Cache, *fakeClock, *store.Memory) {
	clock := &fakeClock{t: time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)}
	mem := store.NewMemoryWithClock(clock.Now)
	return NewCache(CacheConfig{Store: mem, Lookup: l, Now: clock.Now}), clock, mem
}

var tokyo = Info{Country: "Japan", CountryCode: "JP", City: "Tokyo", Region: "Tokyo", ISP: "Vultr Holdings LLC"}

func TestCacheSkipsNonPublicAddresses(t *testing.T) {
	l := &fakeLookuper{info: tokyo}
	c, _, mem := newTestCache(l)

	for _, ip := range []string{"10.1.2.3", "172.16.0.9", "192.168.1.1", "127.0.0.1", "169.254.1.1", "fd00::1", "::1", "0.0.0.0", "not-an-ip", ""} {
		if _, ok := c.Get(context.Background(), ip); ok {
			t.Errorf("Get(%q) returned enrichment", ip)
		}
	}
	if l.calls != 0 {
		t.Errorf("lookup calls = %d, want 0", l.calls)
	}
	if mem.Len() != 0 {
		t.Errorf("cache entries = %d, want 0", mem.Len())
	}
}

func TestCacheHitAndExpiry(t *testing.T) {
	ctx := context.Background()
	l := &fakeLookuper{info: tokyo}
	c, clock, _ := newTestCache(l)

	info, ok := c.Get(ctx, "203.0.113.7")
	if !ok || info.City != "Tokyo" || info.IP != "203.0.113.7" {
		t.Fatalf("first Get = %+v, %v", info, ok)
	}
	if l.calls != 1 {
		t.Fatalf("calls = %d, want 1", l.calls)
	}

	clock.Advance(23 * time.Hour)
	if info, ok = c.Get(ctx, "203.0.113.7"); !ok || info.CountryCode != "JP" {
		t.Errorf("cached Get = %+v, %v", info, ok)
	}
	if l.calls != 1 {
		t.Errorf("calls = %d, want 1 (cache hit)", l.calls)
	}

	clock.Advance(2 * time.Hour)
	if _, ok = c.Get(ctx, "203.0.113.7"); !ok {
		t.Error("Get after expiry should succeed")
	}
	if l.calls != 2 {
		t.Errorf("calls = %d, want 2 (fresh lookup after 24h)", l.calls)
	}
}

func TestCacheRespectsFetchedAt(t *testing.T) {
	ctx := context.Background()
	l := &fakeLookuper{info: tokyo}
	c, clock, mem := newTestCache(l)

	// Entry written without a store TTL, as a backend with coarse expiry might.
	old := cacheEntry{Info: tokyo, FetchedAt: clock.Now().Add(-25 * time.Hour).UnixMilli()}
	store.SetJSON(ctx, mem, store.GeoKey("198.51.100.1"), old, 0)

	c.Get(ctx, "198.51.100.1")
	if l.calls != 1 {
		t.Errorf("calls = %d, want 1 (stale entry refetched)", l.calls)
	}
}

func TestCacheDoesNotCacheFailures(t *testing.T) {
	ctx := context.Background()
	l := &fakeLookuper{err: errors.New("timeout")}
	c, _, mem := newTestCache(l)

	if _, ok := c.Get(ctx, "203.0.113.7"); ok {
		t.Error("Get should fail when lookup fails")
	}
	if mem.Len() != 0 {
		t.Errorf("cache entries = %d, want 0", mem.Len())
	}

	l.err = nil
	l.info = tokyo
	if _, ok := c.Get(ctx, "203.0.113.7"); !ok {
		t.Error("retry after failure should succeed")
	}
	if l.calls != 2 {
		t.Errorf("calls = %d, want 2", l.calls)
	}
}

func TestIsPublic(t *testing.T) {
	tests := []struct {
		ip   string
		want bool
	}{
		{"8.8.8.8", true},
		{"203.0.113.7", true},
		{"2001:4860:4860::8888", true},
		{"::ffff:8.8.8.8", true},
		{"10.0.0.1", false},
		{"172.31.255.255", false},
		{"172.32.0.1", true},
		{"192.168.0.1", false},
		{"127.0.0.1", false},
		{"169.254.0.1", false},
		{"fe80::1", false},
		{"fc00::1", false},
		{"224.0.0.1", false},
		{"::ffff:10.0.0.1", false},
		{"garbage", false},
	}
	for _, tt := range tests {
		if got := IsPublic(tt.ip); got != tt.want {
			t.Errorf("IsPublic(%q) = %v, want %v", tt.ip, got, tt.want)
		}
	}
}
