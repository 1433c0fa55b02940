// Package store provides the key-value persistence used by the vpswatch backend.
//
// Every piece of server state (node snapshots, the node index, traffic
// baselines and geo cache entries) is a JSON document under a single key with
// an optional TTL. Backends only need three operations, so the same core logic
// runs against Redis, SQLite or process memory:
//
//	Get(key)            -> value | ErrNotFound
//	Set(key, value, ttl)
//	BulkGet(keys)       -> values in key order, nil for missing keys
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned by Get when the key is missing or expired.
var ErrNotFound = errors.New("store: key not found")

// Key layout shared by every backend.
const (
	NodeKeyPrefix    = "vps:node:"
	NodeIndexKey     = "vps:nodes:list"
	TrafficKeyPrefix = "vps:traffic:"
	GeoKeyPrefix     = "vps:geo:"
)

// NodeKey returns the snapshot key for a node.
func NodeKey(nodeID string) string { return NodeKeyPrefix + nodeID }

// TrafficKey returns the traffic baseline key for a node.
func TrafficKey(nodeID string) string { return TrafficKeyPrefix + nodeID }

// GeoKey returns the geo cache key for an IP address.
func GeoKey(ip string) string { return GeoKeyPrefix + ip }

// Store is a TTL-bearing key-value store.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set replaces the value under key. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// BulkGet returns one entry per key, in order. Missing or expired keys
	// yield a nil entry. Implementations use a single round trip.
	BulkGet(ctx context.Context, keys []string) ([][]byte, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend connection.
	Close() error
}

// GetJSON reads key and decodes it into v.
func GetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, data, ttl)
}

// Open creates a store from a URL:
//
//	memory (or empty)        in-process map
//	redis://host:port/db     Redis (rediss:// for TLS)
//	sqlite:///path/to/file   SQLite database file
func Open(ctx context.Context, rawURL string) (Store, error) {
	switch {
	case rawURL == "" || rawURL == "memory":
		return NewMemory(), nil
	case strings.HasPrefix(rawURL, "redis://"), strings.HasPrefix(rawURL, "rediss://"):
		return NewRedis(RedisConfig{URL: rawURL})
	case strings.HasPrefix(rawURL, "sqlite://"):
		path := strings.TrimPrefix(rawURL, "sqlite://")
		if path == "" {
			return nil, fmt.Errorf("sqlite store URL has no path: %q", rawURL)
		}
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unsupported store URL %q (want memory, redis:// or sqlite://)", rawURL)
	}
}

// Backend returns a short name for the kind of store behind s.
func Backend(s Store) string {
	switch s.(type) {
	case *Memory:
		return "memory"
	case *Redis:
		return "redis"
	case *SQLite:
		return "sqlite"
	default:
		return "custom"
	}
}
