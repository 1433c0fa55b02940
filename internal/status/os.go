package status

import (
	"strings"
)

// distros is checked in order against the lowercased OS string.
var distros = []struct {
	match string
	name  string
}{
	{"debian", "Debian"},
	{"ubuntu", "Ubuntu"},
	{"centos", "CentOS"},
	{"rocky", "Rocky"},
	{"alma", "AlmaLinux"},
	{"fedora", "Fedora"},
	{"arch", "Arch"},
	{"alpine", "Alpine"},
	{"darwin", "macOS"},
	{"macos", "macOS"},
	{"windows", "Windows"},
}

// SimplifyOS reduces an OS description such as "Ubuntu 22.04.3 LTS" or
// "Linux 5.15.0-91-generic" to a distribution name.
func SimplifyOS(os string) string {
	if os == "" || os == DefaultOS {
		return DefaultOS
	}
	lower := strings.ToLower(os)
	for _, d := range distros {
		if strings.Contains(lower, d.match) {
			return d.name
		}
	}
	if strings.HasPrefix(lower, "linux") {
		return "Linux"
	}
	if first := strings.Fields(os); len(first) > 0 {
		return first[0]
	}
	return DefaultOS
}

// MaskIPv4 hides the middle octets of an IPv4 address: 203.0.113.7 becomes
// 203.x.x.7. Missing addresses render as "-" and anything else as x.x.x.x.
func MaskIPv4(ip string) string {
	if ip == "" || ip == "-" {
		return "-"
	}
	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return "x.x.x.x"
	}
	return parts[0] + ".x.x." + parts[3]
}
