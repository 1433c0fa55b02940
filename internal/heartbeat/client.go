// Package heartbeat provides periodic status reporting from an agent to the
// vpswatch backend.
//
// The client runs as a blocking loop and posts a full report every interval.
// The backend keeps only the latest report per node, with a short TTL, so a
// node that stops reporting drops to offline on its own.
//
// Architecture:
//
//	VPS Node                              vpswatch backend
//	┌─────────────┐   POST /api/report    ┌─────────────┐
//	│  Heartbeat  │ ───────────────────▶  │  snapshot   │
//	│  Client     │                       │  + traffic  │
//	│  (5s)       │  ◀─────────────────── │  baseline   │
//	└─────────────┘   {success, geo}      └─────────────┘
package heartbeat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aceteam-ai/vpswatch/internal/api"
	"github.com/aceteam-ai/vpswatch/internal/status"
)

// HostCollector gathers the metrics sent with each report.
type HostCollector interface {
	Collect(ctx context.Context) (*status.Host, error)
}

// Client sends periodic reports to the backend.
type Client struct {
	endpoint        string
	interval        time.Duration
	apiToken        string
	nodeID          string
	name            string
	location        string
	countryCode     string
	trafficResetDay int
	monthlyTotal    uint64
	collector       HostCollector
	httpClient      *http.Client
	logFn           func(level, msg string)

	mu      sync.Mutex
	lastGeo *api.GeoResult
}

// ClientConfig holds configuration for the heartbeat client.
type ClientConfig struct {
	// BaseURL is the backend base URL (e.g., "https://status.example.com")
	BaseURL string

	// NodeID identifies this node to the backend
	NodeID string

	// Name, Location and CountryCode describe the node. Left empty, the
	// backend derives them from the node's IP address.
	Name        string
	Location    string
	CountryCode string

	// TrafficResetDay is the day of month the traffic cycle restarts (1-28)
	TrafficResetDay int

	// MonthlyTotal is the traffic quota in bytes (0 lets the backend decide)
	MonthlyTotal uint64

	// Interval is the time between reports (default: 5s)
	Interval time.Duration

	// APIToken is the shared secret sent as X-API-Token
	APIToken string

	// Timeout is the HTTP request timeout (default: 10s)
	Timeout time.Duration

	// LogFn is an optional callback for logging (if nil, prints to stdout)
	LogFn func(level, msg string)
}

// NewClient creates a new heartbeat client.
func NewClient(cfg ClientConfig, collector HostCollector) *Client {
	if cfg.Interval == 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Client{
		endpoint:        strings.TrimRight(cfg.BaseURL, "/") + "/api/report",
		interval:        cfg.Interval,
		apiToken:        cfg.APIToken,
		nodeID:          cfg.NodeID,
		name:            cfg.Name,
		location:        cfg.Location,
		countryCode:     strings.ToUpper(cfg.CountryCode),
		trafficResetDay: cfg.TrafficResetDay,
		monthlyTotal:    cfg.MonthlyTotal,
		collector:       collector,
		logFn:           cfg.LogFn,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// log outputs a message - uses logFn callback if set, otherwise prints to stdout.
func (c *Client) log(level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if c.logFn != nil {
		c.logFn(level, msg)
	} else {
		fmt.Printf("%s\n", msg)
	}
}

// Start begins sending periodic reports.
// This method blocks until the context is cancelled.
func (c *Client) Start(ctx context.Context) error {
	if err := c.sendReport(ctx); err != nil {
		c.log("warning", "   - ⚠️ Initial report failed: %v", err)
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.sendReport(ctx); err != nil {
				c.log("warning", "   - ⚠️ Report failed: %v", err)
			}
		}
	}
}

// Report builds the body of the next report.
func (c *Client) Report(ctx context.Context) (*status.Report, error) {
	h, err := c.collector.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to collect status: %w", err)
	}
	if c.monthlyTotal > 0 {
		h.Network.MonthlyTotal = c.monthlyTotal
	}
	h.Network.ResetDay = c.trafficResetDay

	return &status.Report{
		NodeID:          c.nodeID,
		Name:            c.name,
		Location:        c.location,
		CountryCode:     c.countryCode,
		TrafficResetDay: c.trafficResetDay,
		Host:            *h,
	}, nil
}

// sendReport collects status and posts it to the backend.
func (c *Client) sendReport(ctx context.Context) error {
	report, err := c.Report(ctx)
	if err != nil {
		return err
	}
	return c.Send(ctx, report)
}

// Send posts a report built by Report.
func (c *Client) Send(ctx context.Context, report *status.Report) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiToken != "" {
		req.Header.Set("X-API-Token", c.apiToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send report: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != "" {
			return fmt.Errorf("report returned status %d: %s", resp.StatusCode, e.Error)
		}
		return fmt.Errorf("report returned status %d", resp.StatusCode)
	}

	var result api.ReportResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && result.Geo != nil {
		c.noteGeo(*result.Geo)
	}
	return nil
}

// noteGeo logs the backend-derived identity when it changes.
func (c *Client) noteGeo(g api.GeoResult) {
	c.mu.Lock()
	changed := c.lastGeo == nil || *c.lastGeo != g
	c.lastGeo = &g
	c.mu.Unlock()

	if changed {
		c.log("info", "   - Backend located node as %s (%s, %s)", g.Name, g.Location, g.CountryCode)
	}
}

// SendOnce sends a single report and returns.
func (c *Client) SendOnce(ctx context.Context) error {
	return c.sendReport(ctx)
}

// Endpoint returns the report endpoint URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Interval returns the configured report interval.
func (c *Client) Interval() time.Duration {
	return c.interval
}

// Geo returns the identity the backend last derived for this node, if any.
func (c *Client) Geo() (api.GeoResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastGeo == nil {
		return api.GeoResult{}, false
	}
	return *c.lastGeo, true
}
