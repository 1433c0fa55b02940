// Package publicip discovers the addresses an agent reports for its node.
//
// The public IPv4 address is taken from a local interface when the host has
// one (typical for a VPS). Behind NAT it falls back to a STUN binding
// request, whose result is cached.
package publicip

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/pion/stun/v3"
)

// DefaultSTUNServers are queried in order when no interface address is public.
var DefaultSTUNServers = []string{
	"stun.l.google.com:19302",
	"stun.cloudflare.com:3478",
}

// Resolver finds the node's public addresses.
type Resolver struct {
	servers  []string
	timeout  time.Duration
	cacheTTL time.Duration

	addrs func() ([]net.Addr, error)
	probe func(ctx context.Context, servers []string, timeout time.Duration) (string, error)
	now   func() time.Time

	mu       sync.Mutex
	cached   string
	cachedAt time.Time
}

// Config holds configuration for the resolver.
type Config struct {
	// STUNServers are host:port pairs (default: DefaultSTUNServers)
	STUNServers []string

	// Timeout bounds each STUN request (default: 3s)
	Timeout time.Duration

	// CacheTTL is how long a STUN result is reused (default: 10m)
	CacheTTL time.Duration
}

// NewResolver creates a resolver.
func NewResolver(cfg Config) *Resolver {
	if len(cfg.STUNServers) == 0 {
		cfg.STUNServers = DefaultSTUNServers
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	return &Resolver{
		servers:  cfg.STUNServers,
		timeout:  cfg.Timeout,
		cacheTTL: cfg.CacheTTL,
		addrs:    net.InterfaceAddrs,
		probe:    Probe,
		now:      time.Now,
	}
}

// IPv4 returns the node's public IPv4 address, or "" when none can be found.
func (r *Resolver) IPv4(ctx context.Context) string {
	if addrs, err := r.addrs(); err == nil {
		if v4, _ := FromAddrs(addrs); v4 != "" {
			return v4
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached != "" && r.now().Sub(r.cachedAt) < r.cacheTTL {
		return r.cached
	}

	ip, err := r.probe(ctx, r.servers, r.timeout)
	if err != nil {
		// Keep serving a stale answer rather than nothing.
		return r.cached
	}
	r.cached = ip
	r.cachedAt = r.now()
	return ip
}

// IPv6 returns a global IPv6 address of the host, or "".
func (r *Resolver) IPv6() string {
	addrs, err := r.addrs()
	if err != nil {
		return ""
	}
	_, v6 := FromAddrs(addrs)
	return v6
}

// FromAddrs picks the first public IPv4 and IPv6 address from interface
// addresses.
func FromAddrs(addrs []net.Addr) (v4, v6 string) {
	for _, a := range addrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		default:
			continue
		}
		addr, ok := netip.AddrFromSlice(ip)
		if !ok {
			continue
		}
		addr = addr.Unmap()
		if !IsPublic(addr) {
			continue
		}
		if addr.Is4() && v4 == "" {
			v4 = addr.String()
		}
		if addr.Is6() && v6 == "" {
			v6 = addr.String()
		}
	}
	return v4, v6
}

// IsPublic reports whether addr is globally routable.
func IsPublic(addr netip.Addr) bool {
	if !addr.IsGlobalUnicast() || addr.IsPrivate() {
		return false
	}
	// 100.64.0.0/10 carrier-grade NAT
	if addr.Is4() {
		b := addr.As4()
		if b[0] == 100 && b[1]&0xc0 == 64 {
			return false
		}
	}
	return true
}

// Probe asks each STUN server in turn for this host's mapped IPv4 address
// and returns the first answer.
func Probe(ctx context.Context, servers []string, timeout time.Duration) (string, error) {
	if len(servers) == 0 {
		return "", fmt.Errorf("no STUN servers provided")
	}

	var lastErr error
	for _, server := range servers {
		ip, err := probeServer(ctx, server, timeout)
		if err == nil {
			return ip, nil
		}
		lastErr = fmt.Errorf("%s: %w", server, err)
	}
	return "", lastErr
}

func probeServer(ctx context.Context, server string, timeout time.Duration) (string, error) {
	uriStr := strings.TrimSpace(server)
	if uriStr == "" {
		return "", fmt.Errorf("empty STUN server")
	}
	if !strings.HasPrefix(uriStr, "stun:") {
		uriStr = "stun:" + uriStr
	}

	uri, err := stun.ParseURI(uriStr)
	if err != nil {
		return "", err
	}

	client, err := stun.DialURI(uri, &stun.DialConfig{})
	if err != nil {
		return "", err
	}
	defer client.Close()

	msg := stun.MustBuild(stun.TransactionID, stun.BindingRequest)
	result := make(chan stun.XORMappedAddress, 1)
	fail := make(chan error, 1)

	go func() {
		var addr stun.XORMappedAddress
		err := client.Do(msg, func(res stun.Event) {
			if res.Error != nil {
				fail <- res.Error
				return
			}
			if err := addr.GetFrom(res.Message); err != nil {
				fail <- err
				return
			}
			result <- addr
		})
		if err != nil {
			fail <- err
		}
	}()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	select {
	case addr := <-result:
		return addr.IP.String(), nil
	case err := <-fail:
		return "", err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
