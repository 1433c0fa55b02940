package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

// setupMiniredis starts a miniredis instance and returns a connected store.
func setupMiniredis(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })

	s, err := NewRedis(RedisConfig{URL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	return mr, s
}

func TestNewRedisInvalidURL(t *testing.T) {
	if _, err := NewRedis(RedisConfig{URL: "not-a-valid-url"}); err == nil {
		t.Error("NewRedis() should return error for invalid URL")
	}
}

func TestRedisGetSet(t *testing.T) {
	mr, s := setupMiniredis(t)
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
	}

	if err := s.Set(ctx, NodeKey("n1"), []byte(`{"id":"n1"}`), 20*time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := s.Get(ctx, NodeKey("n1"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != `{"id":"n1"}` {
		t.Errorf("Get = %q", got)
	}

	if ttl := mr.TTL(NodeKey("n1")); ttl != 20*time.Second {
		t.Errorf("TTL = %v, want 20s", ttl)
	}

	mr.FastForward(21 * time.Second)
	if _, err := s.Get(ctx, NodeKey("n1")); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after expiry error = %v, want ErrNotFound", err)
	}
}

func TestRedisSetWithoutTTL(t *testing.T) {
	mr, s := setupMiniredis(t)
	ctx := context.Background()

	if err := s.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if ttl := mr.TTL("k"); ttl != 0 {
		t.Errorf("TTL = %v, want none", ttl)
	}
}

func TestRedisBulkGet(t *testing.T) {
	mr, s := setupMiniredis(t)
	ctx := context.Background()

	mr.Set(NodeKey("a"), "1")
	mr.Set(NodeKey("c"), "3")

	got, err := s.BulkGet(ctx, []string{NodeKey("a"), NodeKey("b"), NodeKey("c")})
	if err != nil {
		t.Fatalf("BulkGet: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if string(got[0]) != "1" || got[1] != nil || string(got[2]) != "3" {
		t.Errorf("BulkGet = %q", got)
	}

	empty, err := s.BulkGet(ctx, nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("BulkGet(nil) = %v, %v", empty, err)
	}
}

func TestRedisUnavailable(t *testing.T) {
	mr, s := setupMiniredis(t)
	ctx := context.Background()

	mr.Close()

	if err := s.Ping(ctx); err == nil {
		t.Error("Ping should fail after server shutdown")
	}
	if _, err := s.Get(ctx, "k"); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("Get error = %v, want connection error", err)
	}
	if err := s.Set(ctx, "k", []byte("v"), 0); err == nil {
		t.Error("Set should fail after server shutdown")
	}
}
