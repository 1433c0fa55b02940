// Package config loads vpswatch settings from the environment.
//
// An optional .env file in the working directory is read first; variables
// already set in the environment win over it. Command-line flags override
// both (see cmd/).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/aceteam-ai/vpswatch/internal/traffic"
)

// Getenv looks up an environment variable. os.Getenv in production.
type Getenv func(key string) string

// LoadDotEnv reads .env files into the process environment. Missing files
// are not an error.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		godotenv.Load()
		return
	}
	for _, p := range paths {
		godotenv.Load(p)
	}
}

// Server is the backend configuration.
type Server struct {
	Addr     string
	StoreURL string
	Token    string

	// Servers is the inline server list (VPS_SERVERS)
	Servers string

	// ServersFile is a YAML server list (VPS_SERVERS_FILE)
	ServersFile string

	RefreshInterval time.Duration
	SnapshotTTL     time.Duration

	// Location sets where traffic-cycle day boundaries fall
	Location *time.Location

	GeoEndpoint      string
	GeoRatePerMinute int

	ReportRPS   float64
	ReportBurst int

	StaticDir string
}

// LoadServer reads .env and the environment.
func LoadServer() (*Server, error) {
	LoadDotEnv()
	return ServerFromEnv(os.Getenv)
}

// ServerFromEnv builds the backend configuration from getenv.
func ServerFromEnv(getenv Getenv) (*Server, error) {
	e := env{getenv}
	cfg := &Server{
		Addr:        e.str("HTTP_ADDR", ":3000"),
		StoreURL:    e.str("STORE_URL", e.str("REDIS_URL", "memory")),
		Token:       e.str("API_TOKEN", e.str("VPS_AUTH_TOKEN", "")),
		Servers:     e.str("VPS_SERVERS", ""),
		ServersFile: e.str("VPS_SERVERS_FILE", ""),
		GeoEndpoint: e.str("GEO_ENDPOINT", ""),
		StaticDir:   e.str("STATIC_DIR", ""),
		Location:    time.Local,
	}

	var err error
	refreshMS, err := e.integer("REFRESH_INTERVAL", 2000)
	if err != nil {
		return nil, err
	}
	if refreshMS <= 0 {
		return nil, fmt.Errorf("REFRESH_INTERVAL must be positive, got %d", refreshMS)
	}
	cfg.RefreshInterval = time.Duration(refreshMS) * time.Millisecond

	if cfg.SnapshotTTL, err = e.duration("SNAPSHOT_TTL", 20*time.Second); err != nil {
		return nil, err
	}
	if cfg.GeoRatePerMinute, err = e.integer("GEO_RATE_PER_MINUTE", 45); err != nil {
		return nil, err
	}
	if cfg.ReportRPS, err = e.float("REPORT_RATE_LIMIT", 5); err != nil {
		return nil, err
	}
	if cfg.ReportBurst, err = e.integer("REPORT_RATE_BURST", 10); err != nil {
		return nil, err
	}

	if tz := e.str("TIMEZONE", ""); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("invalid TIMEZONE %q: %w", tz, err)
		}
		cfg.Location = loc
	}
	return cfg, nil
}

// Agent is the reporting agent configuration.
type Agent struct {
	ServerURL   string
	Token       string
	NodeID      string
	Name        string
	Location    string
	CountryCode string
	Protocol    string
	ExpireDate  string

	Interval        time.Duration
	TrafficResetDay int
	MonthlyTotal    uint64

	// LatencyTargets is "CT=host,CU=host,CM=host"; empty uses defaults
	LatencyTargets string

	STUNServers []string
}

// LoadAgent reads .env and the environment.
func LoadAgent() (*Agent, error) {
	LoadDotEnv()
	return AgentFromEnv(os.Getenv)
}

// AgentFromEnv builds the agent configuration from getenv. An invalid
// TRAFFIC_RESET_DAY is an error, never clamped.
func AgentFromEnv(getenv Getenv) (*Agent, error) {
	e := env{getenv}
	cfg := &Agent{
		ServerURL:      strings.TrimRight(e.str("SERVER_URL", "http://localhost:3000"), "/"),
		Token:          e.str("API_TOKEN", e.str("VPS_AUTH_TOKEN", "")),
		NodeID:         e.str("NODE_ID", ""),
		Name:           e.str("NODE_NAME", ""),
		Location:       e.str("LOCATION", ""),
		CountryCode:    strings.ToUpper(e.str("COUNTRY_CODE", "")),
		Protocol:       e.str("PROTOCOL", "KVM"),
		ExpireDate:     e.str("EXPIRE_DATE", ""),
		LatencyTargets: e.str("LATENCY_TARGETS", ""),
	}
	if cfg.NodeID == "" {
		cfg.NodeID = DefaultNodeID()
	}

	var err error
	if cfg.Interval, err = e.duration("INTERVAL", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.TrafficResetDay, err = e.integer("TRAFFIC_RESET_DAY", traffic.DefaultResetDay); err != nil {
		return nil, err
	}
	if !traffic.ValidResetDay(cfg.TrafficResetDay) {
		return nil, fmt.Errorf("TRAFFIC_RESET_DAY: %w: got %d", traffic.ErrInvalidResetDay, cfg.TrafficResetDay)
	}
	if raw := e.str("MONTHLY_TOTAL", ""); raw != "" {
		n, ok := traffic.ParseSizeStrict(raw)
		if !ok {
			return nil, fmt.Errorf("invalid MONTHLY_TOTAL %q (want e.g. 1TB, 500GB)", raw)
		}
		cfg.MonthlyTotal = n
	}
	if raw := e.str("STUN_SERVERS", ""); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				cfg.STUNServers = append(cfg.STUNServers, s)
			}
		}
	}
	return cfg, nil
}

type env struct {
	get Getenv
}

func (e env) str(key, def string) string {
	if v := strings.TrimSpace(e.get(key)); v != "" {
		return v
	}
	return def
}

func (e env) integer(key string, def int) (int, error) {
	raw := e.str(key, "")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func (e env) float(key string, def float64) (float64, error) {
	raw := e.str(key, "")
	if raw == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return f, nil
}

// duration accepts Go durations ("20s", "1m") or plain seconds ("20").
func (e env) duration(key string, def time.Duration) (time.Duration, error) {
	raw := e.str(key, "")
	if raw == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("%s must be positive, got %q", key, raw)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %q", key, raw)
	}
	return d, nil
}
