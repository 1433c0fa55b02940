package status

import (
	"time"

	"github.com/aceteam-ai/vpswatch/internal/traffic"
)

// NewView classifies a snapshot at now and shapes it for display. Offline
// nodes get zeroed usage percentages and current rates; the snapshot itself
// is not modified. When the returned state is StatePruned the view should
// not be served.
func NewView(s Snapshot, now time.Time) (NodeView, State) {
	state := Classify(s.ReportedAt(), now)

	v := NodeView{
		ID:            s.ID,
		Name:          orDefault(s.Name, s.ID),
		CountryCode:   orDefault(s.CountryCode, DefaultCountryCode),
		Location:      orDefault(s.Location, DefaultLocation),
		ExpireDate:    s.ExpireDate,
		Status:        state,
		IPAddress:     MaskIPv4(s.IPAddress),
		IPv6Supported: s.IPv6Address != "",
		Protocol:      orDefault(s.Protocol, DefaultProtocol),
		OS:            SimplifyOS(s.OS),
		Uptime:        s.Uptime,
		Load:          normalizeLoad(s.Load),
		CPU: CPU{
			Model: orDefault(s.CPU.Model, DefaultCPUModel),
			Cores: s.CPU.Cores,
			Usage: s.CPU.Usage,
		},
		Memory:     s.Memory,
		Disk:       s.Disk,
		Network:    s.Network,
		Latency:    s.Latency,
		LastUpdate: s.LastUpdate,
	}
	if v.CPU.Cores <= 0 {
		v.CPU.Cores = 1
	}
	if v.Network.MonthlyTotal == 0 {
		v.Network.MonthlyTotal = traffic.DefaultMonthlyTotal
	}
	v.Network.ResetDay = ResetDay(s.TrafficResetDay, s.Network.ResetDay)
	if len(v.Latency) == 0 {
		v.Latency = nil
	}

	if state != StateOnline {
		v.CPU.Usage = 0
		v.Memory.Usage = 0
		v.Disk.Usage = 0
		v.Network.CurrentUpload = 0
		v.Network.CurrentDownload = 0
	}
	return v, state
}

// Placeholder returns an offline, zeroed view for a node that has no live
// snapshot. Callers fill in identity from configuration.
func Placeholder(id string) NodeView {
	return NodeView{
		ID:          id,
		Name:        id,
		CountryCode: DefaultCountryCode,
		Location:    DefaultLocation,
		Status:      StateOffline,
		IPAddress:   "-",
		Protocol:    DefaultProtocol,
		OS:          DefaultOS,
		Load:        []float64{0, 0, 0},
		CPU:         CPU{Model: DefaultCPUModel, Cores: 1},
		Network: Network{
			MonthlyTotal: traffic.DefaultMonthlyTotal,
			ResetDay:     traffic.DefaultResetDay,
		},
	}
}

// ResetDay picks the first valid reset day from the candidates, in
// precedence order, falling back to the default.
func ResetDay(candidates ...int) int {
	for _, d := range candidates {
		if traffic.ValidResetDay(d) {
			return d
		}
	}
	return traffic.DefaultResetDay
}

func normalizeLoad(load []float64) []float64 {
	out := []float64{0, 0, 0}
	copy(out, load)
	return out
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
