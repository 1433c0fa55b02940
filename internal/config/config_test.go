package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aceteam-ai/vpswatch/internal/traffic"
)

func mapEnv(m map[string]string) Getenv {
	return func(key string) string { return m[key] }
}

func TestServerDefaults(t *testing.T) {
	cfg, err := ServerFromEnv(mapEnv(nil))
	if err != nil {
		t.Fatalf("ServerFromEnv() error = %v", err)
	}
	if cfg.Addr != ":3000" || cfg.StoreURL != "memory" || cfg.Token != "" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.RefreshInterval != 2*time.Second || cfg.SnapshotTTL != 20*time.Second {
		t.Errorf("intervals = %v %v", cfg.RefreshInterval, cfg.SnapshotTTL)
	}
	if cfg.GeoRatePerMinute != 45 || cfg.ReportRPS != 5 || cfg.ReportBurst != 10 {
		t.Errorf("limits = %d %v %d", cfg.GeoRatePerMinute, cfg.ReportRPS, cfg.ReportBurst)
	}
	if cfg.Location != time.Local {
		t.Errorf("Location = %v", cfg.Location)
	}
}

func TestServerFromEnv(t *testing.T) {
	cfg, err := ServerFromEnv(mapEnv(map[string]string{
		"HTTP_ADDR":        "127.0.0.1:8080",
		"REDIS_URL":        "redis://cache:6379/0",
		"VPS_AUTH_TOKEN":   "legacy",
		"VPS_SERVERS":      "a:A",
		"REFRESH_INTERVAL": "5000",
		"SNAPSHOT_TTL":     "30",
		"TIMEZONE":         "UTC",
		"STATIC_DIR":       "/srv/www",
	}))
	if err != nil {
		t.Fatalf("ServerFromEnv() error = %v", err)
	}
	if cfg.StoreURL != "redis://cache:6379/0" {
		t.Errorf("StoreURL = %q, want REDIS_URL fallback", cfg.StoreURL)
	}
	if cfg.Token != "legacy" {
		t.Errorf("Token = %q", cfg.Token)
	}
	if cfg.RefreshInterval != 5*time.Second || cfg.SnapshotTTL != 30*time.Second {
		t.Errorf("intervals = %v %v", cfg.RefreshInterval, cfg.SnapshotTTL)
	}
	if cfg.Location.String() != "UTC" {
		t.Errorf("Location = %v", cfg.Location)
	}
	if cfg.Addr != "127.0.0.1:8080" || cfg.Servers != "a:A" || cfg.StaticDir != "/srv/www" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestServerStorePrecedence(t *testing.T) {
	cfg, _ := ServerFromEnv(mapEnv(map[string]string{
		"STORE_URL":      "sqlite:///var/lib/vpswatch.db",
		"REDIS_URL":      "redis://ignored",
		"API_TOKEN":      "primary",
		"VPS_AUTH_TOKEN": "legacy",
	}))
	if cfg.StoreURL != "sqlite:///var/lib/vpswatch.db" || cfg.Token != "primary" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestServerInvalid(t *testing.T) {
	tests := map[string]string{
		"REFRESH_INTERVAL":  "soon",
		"SNAPSHOT_TTL":      "-5s",
		"TIMEZONE":          "Mars/Olympus",
		"REPORT_RATE_LIMIT": "fast",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			_, err := ServerFromEnv(mapEnv(map[string]string{key: value}))
			if err == nil || !strings.Contains(err.Error(), key) {
				t.Errorf("error = %v, want one naming %s", err, key)
			}
		})
	}
	if _, err := ServerFromEnv(mapEnv(map[string]string{"REFRESH_INTERVAL": "0"})); err == nil {
		t.Error("zero REFRESH_INTERVAL should fail")
	}
}

func TestAgentFromEnv(t *testing.T) {
	cfg, err := AgentFromEnv(mapEnv(map[string]string{
		"SERVER_URL":        "https://status.example.com/",
		"API_TOKEN":         "tok",
		"NODE_ID":           "hk-1",
		"COUNTRY_CODE":      "hk",
		"INTERVAL":          "10s",
		"TRAFFIC_RESET_DAY": "15",
		"MONTHLY_TOTAL":     "2TB",
		"STUN_SERVERS":      "stun.a:3478, stun.b:19302,",
	}))
	if err != nil {
		t.Fatalf("AgentFromEnv() error = %v", err)
	}
	if cfg.ServerURL != "https://status.example.com" || cfg.Token != "tok" || cfg.NodeID != "hk-1" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.CountryCode != "HK" || cfg.Protocol != "KVM" {
		t.Errorf("identity = %q %q", cfg.CountryCode, cfg.Protocol)
	}
	if cfg.Interval != 10*time.Second || cfg.TrafficResetDay != 15 || cfg.MonthlyTotal != 2*traffic.TiB {
		t.Errorf("cycle = %v %d %d", cfg.Interval, cfg.TrafficResetDay, cfg.MonthlyTotal)
	}
	if len(cfg.STUNServers) != 2 || cfg.STUNServers[1] != "stun.b:19302" {
		t.Errorf("STUNServers = %v", cfg.STUNServers)
	}
}

func TestAgentDefaults(t *testing.T) {
	cfg, err := AgentFromEnv(mapEnv(nil))
	if err != nil {
		t.Fatalf("AgentFromEnv() error = %v", err)
	}
	if cfg.Interval != 5*time.Second || cfg.TrafficResetDay != 1 || cfg.MonthlyTotal != 0 {
		t.Errorf("cfg = %+v", cfg)
	}
	if !strings.HasPrefix(cfg.NodeID, "node-") || len(cfg.NodeID) != len("node-")+8 {
		t.Errorf("NodeID = %q", cfg.NodeID)
	}
}

func TestAgentInvalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"TRAFFIC_RESET_DAY", "29"},
		{"TRAFFIC_RESET_DAY", "0"},
		{"TRAFFIC_RESET_DAY", "first"},
		{"MONTHLY_TOTAL", "lots"},
		{"INTERVAL", "often"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			if _, err := AgentFromEnv(mapEnv(map[string]string{tt.key: tt.value})); err == nil {
				t.Errorf("AgentFromEnv() should reject %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("VPSWATCH_TEST_KEY=from-file\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VPSWATCH_TEST_KEY", "")
	os.Unsetenv("VPSWATCH_TEST_KEY")

	LoadDotEnv(path)
	if got := os.Getenv("VPSWATCH_TEST_KEY"); got != "from-file" {
		t.Errorf("VPSWATCH_TEST_KEY = %q", got)
	}

	t.Setenv("VPSWATCH_TEST_KEY", "from-env")
	LoadDotEnv(path)
	if got := os.Getenv("VPSWATCH_TEST_KEY"); got != "from-env" {
		t.Errorf("existing variable overwritten: %q", got)
	}
}

func TestNodeIDFrom(t *testing.T) {
	a := nodeIDFrom("machine", "host")
	if a != nodeIDFrom("machine", "host") {
		t.Error("node id should be stable")
	}
	if a == nodeIDFrom("machine", "other") {
		t.Error("node id should depend on hostname")
	}
	if r := nodeIDFrom("", ""); !strings.HasPrefix(r, "node-") || len(r) != 13 {
		t.Errorf("random node id = %q", r)
	}
}

func TestReadMachineID(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty")
	full := filepath.Join(dir, "full")
	os.WriteFile(empty, []byte("\n"), 0644)
	os.WriteFile(full, []byte("abc123\n"), 0644)

	if got := readMachineID([]string{filepath.Join(dir, "missing"), empty, full}); got != "abc123" {
		t.Errorf("readMachineID() = %q", got)
	}
	if got := readMachineID(nil); got != "" {
		t.Errorf("readMachineID(nil) = %q", got)
	}
}
