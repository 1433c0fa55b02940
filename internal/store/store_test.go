package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func TestOpen(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	dbPath := filepath.Join(t.TempDir(), "kv.db")

	tests := []struct {
		name        string
		url         string
		wantBackend string
		wantErr     bool
	}{
		{name: "empty defaults to memory", url: "", wantBackend: "memory"},
		{name: "memory", url: "memory", wantBackend: "memory"},
		{name: "redis", url: "redis://" + mr.Addr(), wantBackend: "redis"},
		{name: "sqlite", url: "sqlite://" + dbPath, wantBackend: "sqlite"},
		{name: "sqlite without path", url: "sqlite://", wantErr: true},
		{name: "unknown scheme", url: "postgres://localhost/db", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(context.Background(), tt.url)
			if tt.wantErr {
				if err == nil {
					t.Error("Open() should return error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			defer s.Close()

			if got := Backend(s); got != tt.wantBackend {
				t.Errorf("Backend() = %q, want %q", got, tt.wantBackend)
			}
		})
	}
}
