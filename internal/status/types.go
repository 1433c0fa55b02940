// Package status defines the node report format and turns stored snapshots
// into the views served to dashboards.
//
// Architecture:
//   - Collector gathers host metrics on the agent side
//   - Report is the body an agent posts to the backend
//   - Snapshot is what the backend stores per node (a Report plus server fields)
//   - NodeView is the classified, display-ready record returned by /api/nodes
package status

import "time"

// Host holds the metrics an agent measures about its machine. The backend
// passes these through untouched apart from view shaping.
type Host struct {
	IPAddress   string    `json:"ipAddress,omitempty"`
	IPv6Address string    `json:"ipv6Address,omitempty"`
	Protocol    string    `json:"protocol,omitempty"`
	ExpireDate  string    `json:"expireDate,omitempty"`
	OS          string    `json:"os,omitempty"`
	Uptime      uint64    `json:"uptime"`
	Load        []float64 `json:"load,omitempty"`
	CPU         CPU       `json:"cpu"`
	Memory      Usage     `json:"memory"`
	Disk        Usage     `json:"disk"`
	Network     Network   `json:"network"`
	Latency     Latency   `json:"latency,omitempty"`
}

// CPU describes processor load.
type CPU struct {
	Model string  `json:"model,omitempty"`
	Cores int     `json:"cores,omitempty"`
	Usage float64 `json:"usage"`
}

// Usage describes a capacity-bound resource in bytes.
type Usage struct {
	Total uint64  `json:"total"`
	Used  uint64  `json:"used"`
	Usage float64 `json:"usage"` // percent
}

// Network carries interface counters and traffic-cycle figures.
type Network struct {
	CurrentUpload   float64 `json:"currentUpload"`   // bytes/s
	CurrentDownload float64 `json:"currentDownload"` // bytes/s
	TotalUpload     uint64  `json:"totalUpload"`
	TotalDownload   uint64  `json:"totalDownload"`

	// CycleUsed is derived by the backend, never taken from the agent.
	CycleUsed    uint64 `json:"monthlyUsed"`
	MonthlyTotal uint64 `json:"monthlyTotal,omitempty"`
	ResetDay     int    `json:"resetDay,omitempty"`
}

// Latency maps an ISP code (CT, CU, CM) to round-trip milliseconds.
// Negative values mean unreachable.
type Latency map[string]float64

// Report is the body of POST /api/report.
type Report struct {
	NodeID          string `json:"nodeId"`
	Name            string `json:"name,omitempty"`
	Location        string `json:"location,omitempty"`
	CountryCode     string `json:"countryCode,omitempty"`
	TrafficResetDay int    `json:"trafficResetDay,omitempty"`
	Host
}

// Snapshot is the latest report of a node as stored by the backend.
type Snapshot struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Location        string `json:"location"`
	CountryCode     string `json:"countryCode"`
	TrafficResetDay int    `json:"trafficResetDay,omitempty"`
	LastUpdate      int64  `json:"lastUpdate"` // unix millis
	Host
}

// ReportedAt returns LastUpdate as a time.
func (s Snapshot) ReportedAt() time.Time {
	return time.UnixMilli(s.LastUpdate)
}

// NodeView is a node as served to dashboards.
type NodeView struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	CountryCode   string    `json:"countryCode"`
	Location      string    `json:"location"`
	ExpireDate    string    `json:"expireDate"`
	Status        State     `json:"status"`
	IPAddress     string    `json:"ipAddress"`
	IPv6Supported bool      `json:"ipv6Supported"`
	Protocol      string    `json:"protocol"`
	OS            string    `json:"os"`
	Uptime        uint64    `json:"uptime"`
	Load          []float64 `json:"load"`
	CPU           CPU       `json:"cpu"`
	Memory        Usage     `json:"memory"`
	Disk          Usage     `json:"disk"`
	Network       Network   `json:"network"`
	Latency       Latency   `json:"latency"`
	LastUpdate    int64     `json:"lastUpdate"`
}

// Defaults applied to stored snapshots and served views.
const (
	DefaultLocation    = "Unknown"
	DefaultCountryCode = "US"
	DefaultProtocol    = "KVM"
	DefaultCPUModel    = "Unknown"
	DefaultOS          = "Unknown"
)
