package traffic

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	GiB uint64 = 1 << 30
	TiB uint64 = 1 << 40

	// DefaultMonthlyTotal is the quota assumed when none is configured.
	DefaultMonthlyTotal = TiB
)

var sizePattern = regexp.MustCompile(`(?i)^(\d+(?:\.\d+)?)\s*(TB?|GB?)?$`)

// ParseSize parses a monthly quota such as "3TB", "500g" or "1024" into
// bytes. Units are binary and a bare number means GiB. Empty or malformed
// input returns DefaultMonthlyTotal.
func ParseSize(value string) uint64 {
	n, ok := ParseSizeStrict(value)
	if !ok {
		return DefaultMonthlyTotal
	}
	return n
}

// ParseSizeStrict is ParseSize without the fallback.
func ParseSizeStrict(value string) (uint64, bool) {
	m := sizePattern.FindStringSubmatch(strings.TrimSpace(value))
	if m == nil {
		return 0, false
	}
	num, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}

	unit := GiB
	if strings.HasPrefix(strings.ToUpper(m[2]), "T") {
		unit = TiB
	}
	return uint64(math.Round(num * float64(unit))), true
}

var byteUnits = []string{"B", "KB", "MB", "GB", "TB", "PB"}

// FormatBytes renders n with binary units and up to two decimals,
// e.g. "1.5 GB".
func FormatBytes(n uint64) string {
	if n == 0 {
		return "0 B"
	}
	v := float64(n)
	i := 0
	for v >= 1024 && i < len(byteUnits)-1 {
		v /= 1024
		i++
	}
	return strconv.FormatFloat(roundTo(v, 2), 'f', -1, 64) + " " + byteUnits[i]
}

var rateUnits = []string{"B/s", "K/s", "M/s", "G/s"}

// FormatRate renders a bytes-per-second figure, e.g. "12.5M/s".
func FormatRate(bps float64) string {
	if bps <= 0 {
		return "0B/s"
	}
	i := 0
	for bps >= 1024 && i < len(rateUnits)-1 {
		bps /= 1024
		i++
	}
	return strconv.FormatFloat(roundTo(bps, 1), 'f', -1, 64) + rateUnits[i]
}

// FormatUptime renders seconds as "3d 4h", "4h 12m" or "12m".
func FormatUptime(seconds uint64) string {
	days := seconds / 86400
	hours := seconds % 86400 / 3600
	minutes := seconds % 3600 / 60
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
