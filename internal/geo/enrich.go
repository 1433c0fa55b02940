package geo

import "strings"

// Identity is the display identity of a node.
type Identity struct {
	Name        string `json:"name"`
	Location    string `json:"location"`
	CountryCode string `json:"countryCode"`
}

// NeedsLookup reports whether a report with this identity should be
// enriched: it has an address and is missing a location or country.
func NeedsLookup(ip string, id Identity) bool {
	if ip == "" || ip == "-" {
		return false
	}
	return id.Location == "" || id.Location == "Unknown" || id.CountryCode == ""
}

// Apply fills the fields of id that are unset or still at their defaults
// from info. Operator and agent supplied values are kept.
func Apply(id Identity, nodeID string, info Info) Identity {
	if id.CountryCode == "" || id.CountryCode == "US" {
		if info.CountryCode != "" {
			id.CountryCode = info.CountryCode
		}
	}
	if id.Location == "" || id.Location == "Unknown" {
		id.Location = firstNonEmpty(info.City, info.Region, info.Country)
	}
	if id.Name == "" || id.Name == nodeID {
		if info.City != "" {
			id.Name = strings.TrimSpace(info.City + " " + firstWord(info.ISP))
		} else if info.Country != "" {
			id.Name = info.Country + " VPS"
		}
	}
	return id
}

func firstWord(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		return f[0]
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
