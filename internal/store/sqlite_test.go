package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func tempDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "store_test.db")
}

func openTestSQLite(t *testing.T) (*SQLite, *fakeClock) {
	t.Helper()
	s, err := OpenSQLite(tempDBPath(t))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	clock := &fakeClock{t: time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)}
	s.now = clock.Now
	return s, clock
}

func TestOpenSQLiteCreatesFile(t *testing.T) {
	path := tempDBPath(t)
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Fatal("database file should exist after OpenSQLite")
	}
}

func TestSQLiteGetSet(t *testing.T) {
	s, _ := openTestSQLite(t)
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
	}

	s.Set(ctx, "k", []byte("v1"), time.Minute)
	s.Set(ctx, "k", []byte("v2"), time.Minute)

	got, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "v2" {
		t.Errorf("Get = %q, want v2", got)
	}
}

func TestSQLiteTTLAndPurge(t *testing.T) {
	s, clock := openTestSQLite(t)
	ctx := context.Background()

	s.Set(ctx, "short", []byte("a"), 20*time.Second)
	s.Set(ctx, "long", []byte("b"), 24*time.Hour)
	s.Set(ctx, "forever", []byte("c"), 0)

	clock.Advance(30 * time.Second)

	if _, err := s.Get(ctx, "short"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(short) error = %v, want ErrNotFound", err)
	}
	if _, err := s.Get(ctx, "long"); err != nil {
		t.Errorf("Get(long): %v", err)
	}

	n, err := s.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if n != 1 {
		t.Errorf("purged = %d, want 1", n)
	}

	clock.Advance(48 * time.Hour)
	if _, err := s.Get(ctx, "forever"); err != nil {
		t.Errorf("Get(forever): %v", err)
	}
}

func TestSQLiteBulkGet(t *testing.T) {
	s, clock := openTestSQLite(t)
	ctx := context.Background()

	s.Set(ctx, "a", []byte("1"), 0)
	s.Set(ctx, "b", []byte("2"), time.Second)
	s.Set(ctx, "c", []byte("3"), 0)
	clock.Advance(2 * time.Second)

	got, err := s.BulkGet(ctx, []string{"c", "b", "missing", "a"})
	if err != nil {
		t.Fatalf("BulkGet: %v", err)
	}
	want := []string{"3", "", "", "1"}
	for i, w := range want {
		if string(got[i]) != w {
			t.Errorf("BulkGet[%d] = %q, want %q", i, got[i], w)
		}
	}
	if got[1] != nil || got[2] != nil {
		t.Error("expired and missing keys should be nil")
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	path := tempDBPath(t)
	ctx := context.Background()

	s1, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	s1.Set(ctx, TrafficKey("n1"), []byte(`{"cycleKey":"2024-1-1"}`), 45*24*time.Hour)
	s1.Close()

	s2, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	got, err := s2.Get(ctx, TrafficKey("n1"))
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if string(got) != `{"cycleKey":"2024-1-1"}` {
		t.Errorf("Get = %q", got)
	}
}
