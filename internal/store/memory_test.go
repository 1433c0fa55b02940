package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestMemoryGetSet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, err := m.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
	}

	if err := m.Set(ctx, "k", []byte("v1"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := m.Set(ctx, "k", []byte("v2"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := m.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "v2" {
		t.Errorf("Get = %q, want v2 (set must fully replace)", got)
	}
}

func TestMemoryTTL(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)}
	m := NewMemoryWithClock(clock.Now)

	m.Set(ctx, "k", []byte("v"), 20*time.Second)

	clock.Advance(19 * time.Second)
	if _, err := m.Get(ctx, "k"); err != nil {
		t.Fatalf("Get before expiry: %v", err)
	}

	clock.Advance(time.Second)
	if _, err := m.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get at expiry error = %v, want ErrNotFound", err)
	}
	if m.Len() != 0 {
		t.Errorf("Len = %d, want 0", m.Len())
	}
}

func TestMemorySetResetsTTL(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)}
	m := NewMemoryWithClock(clock.Now)

	m.Set(ctx, "k", []byte("a"), 20*time.Second)
	clock.Advance(15 * time.Second)
	m.Set(ctx, "k", []byte("b"), 20*time.Second)
	clock.Advance(15 * time.Second)

	got, err := m.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "b" {
		t.Errorf("Get = %q, want b", got)
	}
}

func TestMemoryBulkGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.Set(ctx, "a", []byte("1"), 0)
	m.Set(ctx, "c", []byte("3"), 0)

	got, err := m.BulkGet(ctx, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("BulkGet: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if string(got[0]) != "1" || got[1] != nil || string(got[2]) != "3" {
		t.Errorf("BulkGet = %q", got)
	}
}

func TestMemoryValuesAreCopied(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	buf := []byte("abc")
	m.Set(ctx, "k", buf, 0)
	buf[0] = 'x'

	got, _ := m.Get(ctx, "k")
	got[1] = 'y'

	again, _ := m.Get(ctx, "k")
	if string(again) != "abc" {
		t.Errorf("stored value mutated: %q", again)
	}
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	type doc struct {
		Name string `json:"name"`
		N    int    `json:"n"`
	}

	if err := SetJSON(ctx, m, "doc", doc{Name: "x", N: 3}, 0); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}

	var out doc
	if err := GetJSON(ctx, m, "doc", &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if out.Name != "x" || out.N != 3 {
		t.Errorf("GetJSON = %+v", out)
	}

	m.Set(ctx, "bad", []byte("{not json"), 0)
	if err := GetJSON(ctx, m, "bad", &out); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("GetJSON(bad) error = %v, want decode error", err)
	}
}

func TestKeys(t *testing.T) {
	if got := NodeKey("n1"); got != "vps:node:n1" {
		t.Errorf("NodeKey = %q", got)
	}
	if got := TrafficKey("n1"); got != "vps:traffic:n1" {
		t.Errorf("TrafficKey = %q", got)
	}
	if got := GeoKey("1.2.3.4"); got != "vps:geo:1.2.3.4" {
		t.Errorf("GeoKey = %q", got)
	}
}
