// Package latency measures round-trip times from a node to reference hosts
// on the major Chinese carrier networks (CT, CU, CM).
package latency

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	probing "github.com/prometheus-community/pro-bing"

	"github.com/aceteam-ai/vpswatch/internal/status"
)

// Unreachable is reported for a target that did not answer.
const Unreachable = -1

// Target is a carrier code and the host probed for it.
type Target struct {
	Code string
	Host string
}

// DefaultTargets are public resolvers operated by each carrier.
var DefaultTargets = []Target{
	{Code: "CT", Host: "202.96.209.133"},
	{Code: "CU", Host: "210.22.97.1"},
	{Code: "CM", Host: "211.136.112.200"},
}

var errNoReply = errors.New("no reply")

// ParseTargets parses "CT=host,CU=host,CM=host". An empty string yields
// DefaultTargets.
func ParseTargets(value string) ([]Target, error) {
	if strings.TrimSpace(value) == "" {
		return DefaultTargets, nil
	}
	var targets []Target
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		code, host, ok := strings.Cut(item, "=")
		code = strings.ToUpper(strings.TrimSpace(code))
		host = strings.TrimSpace(host)
		if !ok || code == "" || host == "" {
			return nil, fmt.Errorf("invalid latency target %q (want CODE=host)", item)
		}
		targets = append(targets, Target{Code: code, Host: host})
	}
	return targets, nil
}

// PingFunc measures the average round trip to host.
type PingFunc func(ctx context.Context, host string) (time.Duration, error)

// Prober probes every target concurrently.
type Prober struct {
	targets []Target
	ping    PingFunc
}

// ProberConfig holds configuration for the prober.
type ProberConfig struct {
	Targets []Target

	// Count is the number of echo requests per target (default: 3)
	Count int

	// Timeout bounds the probe of one target (default: 3s)
	Timeout time.Duration

	// Privileged uses raw ICMP sockets instead of unprivileged UDP pings
	Privileged bool

	// Ping overrides the ICMP implementation
	Ping PingFunc
}

// NewProber creates a prober.
func NewProber(cfg ProberConfig) *Prober {
	if cfg.Targets == nil {
		cfg.Targets = DefaultTargets
	}
	if cfg.Count <= 0 {
		cfg.Count = 3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.Ping == nil {
		cfg.Ping = icmpPing(cfg.Count, cfg.Timeout, cfg.Privileged)
	}
	return &Prober{targets: cfg.Targets, ping: cfg.Ping}
}

// Targets returns the probed targets.
func (p *Prober) Targets() []Target {
	return p.targets
}

// Probe returns the round trip in milliseconds per carrier code, rounded to
// one decimal. Unreachable targets report -1.
func (p *Prober) Probe(ctx context.Context) status.Latency {
	out := make(status.Latency, len(p.targets))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, target := range p.targets {
		wg.Add(1)
		go func(target Target) {
			defer wg.Done()
			ms := float64(Unreachable)
			if rtt, err := p.ping(ctx, target.Host); err == nil {
				ms = math.Round(float64(rtt)/float64(time.Millisecond)*10) / 10
			}
			mu.Lock()
			out[target.Code] = ms
			mu.Unlock()
		}(target)
	}
	wg.Wait()
	return out
}

func icmpPing(count int, timeout time.Duration, privileged bool) PingFunc {
	return func(ctx context.Context, host string) (time.Duration, error) {
		pinger, err := probing.NewPinger(host)
		if err != nil {
			return 0, fmt.Errorf("resolve %s: %w", host, err)
		}
		pinger.Count = count
		pinger.Timeout = timeout
		pinger.Interval = 200 * time.Millisecond
		pinger.SetPrivileged(privileged)

		if err := pinger.RunWithContext(ctx); err != nil {
			return 0, fmt.Errorf("ping %s: %w", host, err)
		}
		stats := pinger.Statistics()
		if stats.PacketsRecv == 0 {
			return 0, errNoReply
		}
		return stats.AvgRtt, nil
	}
}

// Grade buckets a latency for display.
type Grade string

const (
	GradeGood    Grade = "good"
	GradeMedium  Grade = "medium"
	GradePoor    Grade = "poor"
	GradeOffline Grade = "offline"
)

// GradeOf grades a round trip in milliseconds. Negative means unreachable.
func GradeOf(ms float64) Grade {
	switch {
	case ms < 0:
		return GradeOffline
	case ms < 50:
		return GradeGood
	case ms < 150:
		return GradeMedium
	default:
		return GradePoor
	}
}
