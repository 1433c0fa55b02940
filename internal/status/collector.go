package status

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
)

// Collector gathers host metrics for agent reports. It remembers the
// previous interface counters so it can derive current transfer rates.
type Collector struct {
	protocol   string
	expireDate string
	cpuSample  time.Duration
	diskPath   string

	publicIP func(ctx context.Context) string
	ipv6     func() string
	latency  func(ctx context.Context) Latency

	counters func(ctx context.Context) (up, down uint64, err error)
	now      func() time.Time

	mu   sync.Mutex
	last *counterSample
}

type counterSample struct {
	up, down uint64
	at       time.Time
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	// Protocol is the virtualization type reported as-is (default: KVM)
	Protocol string

	// ExpireDate is the operator-supplied expiry, e.g. "2025-12-31"
	ExpireDate string

	// CPUSampleInterval is how long CPU usage is measured (default: 100ms)
	CPUSampleInterval time.Duration

	// DiskPath is the filesystem whose usage is reported (default: /)
	DiskPath string

	// PublicIP resolves the node's public IPv4 address (optional)
	PublicIP func(ctx context.Context) string

	// IPv6 returns a global IPv6 address if the host has one (optional)
	IPv6 func() string

	// Latency probes ISP round-trip times (optional)
	Latency func(ctx context.Context) Latency
}

// NewCollector creates a new host collector.
func NewCollector(cfg CollectorConfig) *Collector {
	if cfg.Protocol == "" {
		cfg.Protocol = DefaultProtocol
	}
	if cfg.CPUSampleInterval == 0 {
		cfg.CPUSampleInterval = 100 * time.Millisecond
	}
	if cfg.DiskPath == "" {
		cfg.DiskPath = "/"
	}
	return &Collector{
		protocol:   cfg.Protocol,
		expireDate: cfg.ExpireDate,
		cpuSample:  cfg.CPUSampleInterval,
		diskPath:   cfg.DiskPath,
		publicIP:   cfg.PublicIP,
		ipv6:       cfg.IPv6,
		latency:    cfg.Latency,
		counters:   InterfaceTotals,
		now:        time.Now,
	}
}

// Collect gathers all host metrics. Individual probes that fail leave their
// fields zeroed; only a failure to read interface counters is returned.
func (c *Collector) Collect(ctx context.Context) (*Host, error) {
	h := &Host{
		Protocol:   c.protocol,
		ExpireDate: c.expireDate,
	}

	c.collectSystem(ctx, h)

	if err := c.collectNetwork(ctx, h); err != nil {
		return h, err
	}

	if c.publicIP != nil {
		h.IPAddress = c.publicIP(ctx)
	}
	if c.ipv6 != nil {
		h.IPv6Address = c.ipv6()
	}
	if c.latency != nil {
		h.Latency = c.latency(ctx)
	}

	return h, nil
}

// collectSystem gathers CPU, memory, disk, load, uptime and OS.
func (c *Collector) collectSystem(ctx context.Context, h *Host) {
	// CPU
	if percentages, err := cpu.PercentWithContext(ctx, c.cpuSample, false); err == nil && len(percentages) > 0 {
		h.CPU.Usage = percentages[0]
	}
	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
		h.CPU.Model = strings.TrimSpace(infos[0].ModelName)
	}
	if cores, err := cpu.CountsWithContext(ctx, true); err == nil {
		h.CPU.Cores = cores
	}

	// Memory
	if v, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		h.Memory = Usage{Total: v.Total, Used: v.Used, Usage: v.UsedPercent}
	}

	// Disk
	if d, err := disk.UsageWithContext(ctx, c.diskPath); err == nil {
		h.Disk = Usage{Total: d.Total, Used: d.Used, Usage: d.UsedPercent}
	}

	// Load
	if l, err := load.AvgWithContext(ctx); err == nil {
		h.Load = []float64{l.Load1, l.Load5, l.Load15}
	}

	// Host
	if info, err := host.InfoWithContext(ctx); err == nil {
		h.Uptime = info.Uptime
		h.OS = describeOS(info)
	}
}

// collectNetwork reads cumulative counters and derives rates from the
// previous sample. The first sample has zero rates.
func (c *Collector) collectNetwork(ctx context.Context, h *Host) error {
	up, down, err := c.counters(ctx)
	if err != nil {
		return fmt.Errorf("failed to read interface counters: %w", err)
	}
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	h.Network.TotalUpload = up
	h.Network.TotalDownload = down

	if c.last != nil {
		if dt := now.Sub(c.last.at).Seconds(); dt > 0 {
			h.Network.CurrentUpload = rate(up, c.last.up, dt)
			h.Network.CurrentDownload = rate(down, c.last.down, dt)
		}
	}
	c.last = &counterSample{up: up, down: down, at: now}
	return nil
}

// Prime takes an initial counter sample so the first report has rates.
func (c *Collector) Prime(ctx context.Context) error {
	var h Host
	return c.collectNetwork(ctx, &h)
}

func rate(cur, prev uint64, seconds float64) float64 {
	if cur < prev {
		return 0
	}
	return float64(cur-prev) / seconds
}

// InterfaceTotals sums bytes sent and received across all non-loopback
// interfaces.
func InterfaceTotals(ctx context.Context) (up, down uint64, err error) {
	stats, err := net.IOCountersWithContext(ctx, true)
	if err != nil {
		return 0, 0, err
	}
	for _, s := range stats {
		if isLoopback(s.Name) {
			continue
		}
		up += s.BytesSent
		down += s.BytesRecv
	}
	return up, down, nil
}

func isLoopback(name string) bool {
	return name == "lo" || strings.HasPrefix(name, "lo0") || strings.HasPrefix(strings.ToLower(name), "loopback")
}

func describeOS(info *host.InfoStat) string {
	if info.Platform == "" {
		return info.OS
	}
	platform := strings.ToUpper(info.Platform[:1]) + info.Platform[1:]
	if info.PlatformVersion == "" {
		return platform
	}
	return platform + " " + info.PlatformVersion
}

// GetSystemUptime returns the host system uptime in seconds.
func GetSystemUptime() (uint64, error) {
	return host.Uptime()
}
