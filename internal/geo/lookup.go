// Package geo resolves public IP addresses to country, city and ISP so that
// nodes without operator-supplied identity still get a sensible name and
// location.
//
// Lookups go through a read-through Cache backed by the shared store. The
// upstream is ip-api.com's free JSON endpoint, which allows 45 requests per
// minute per client; the client enforces that budget locally.
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultEndpoint is the ip-api.com JSON endpoint.
const DefaultEndpoint = "http://ip-api.com/json/"

// DefaultRatePerMinute matches ip-api.com's free tier.
const DefaultRatePerMinute = 45

const lookupFields = "status,message,country,countryCode,regionName,city,isp"

// ErrRateLimited is returned when the local request budget is exhausted.
var ErrRateLimited = errors.New("geo lookup rate limit exceeded")

// Info is the geolocation of one IP address.
type Info struct {
	IP          string `json:"ip"`
	Country     string `json:"country"`
	CountryCode string `json:"countryCode"`
	City        string `json:"city"`
	Region      string `json:"region"`
	ISP         string `json:"isp"`
}

// Lookuper resolves an IP to its geolocation.
type Lookuper interface {
	Lookup(ctx context.Context, ip string) (Info, error)
}

// Client queries ip-api.com.
type Client struct {
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// ClientConfig holds configuration for the lookup client.
type ClientConfig struct {
	// Endpoint is the base URL the IP is appended to (default: ip-api.com)
	Endpoint string

	// RatePerMinute caps outgoing lookups (default: 45)
	RatePerMinute int

	// Timeout is the HTTP request timeout (default: 5s)
	Timeout time.Duration
}

// NewClient creates a new lookup client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if !strings.HasSuffix(cfg.Endpoint, "/") {
		cfg.Endpoint += "/"
	}
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = DefaultRatePerMinute
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}

	perRequest := time.Minute / time.Duration(cfg.RatePerMinute)
	return &Client{
		endpoint:   cfg.Endpoint,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Every(perRequest), cfg.RatePerMinute),
	}
}

type ipAPIResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	Country     string `json:"country"`
	CountryCode string `json:"countryCode"`
	RegionName  string `json:"regionName"`
	City        string `json:"city"`
	ISP         string `json:"isp"`
}

// Lookup implements Lookuper.
func (c *Client) Lookup(ctx context.Context, ip string) (Info, error) {
	if !c.limiter.Allow() {
		return Info{}, ErrRateLimited
	}

	endpoint := c.endpoint + url.PathEscape(ip) + "?fields=" + lookupFields
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Info{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Info{}, fmt.Errorf("geo lookup for %s: %w", ip, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Info{}, fmt.Errorf("geo lookup for %s returned status %d", ip, resp.StatusCode)
	}

	var body ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Info{}, fmt.Errorf("failed to decode geo response: %w", err)
	}
	if body.Status != "success" {
		return Info{}, fmt.Errorf("geo lookup for %s failed: %s", ip, body.Message)
	}

	return Info{
		IP:          ip,
		Country:     body.Country,
		CountryCode: body.CountryCode,
		City:        body.City,
		Region:      body.RegionName,
		ISP:         body.ISP,
	}, nil
}
