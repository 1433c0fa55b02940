// Package fleet holds the operator's static list of known nodes and merges
// it with live snapshots into the served node list.
//
// Configured values always win over what agents report, so a node's display
// name, country, location, expiry, quota and reset day can be pinned from the
// server side. Configured nodes that are not reporting still appear, as
// offline placeholders.
package fleet

import (
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aceteam-ai/vpswatch/internal/status"
	"github.com/aceteam-ai/vpswatch/internal/traffic"
)

// Entry is one configured node. Zero values mean "not configured" and let
// agent-reported values through.
type Entry struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	CountryCode  string `yaml:"countryCode"`
	Location     string `yaml:"location"`
	ExpireDate   string `yaml:"expireDate"`
	ResetDay     int    `yaml:"resetDay"`
	MonthlyTotal uint64 `yaml:"-"`

	// Quota is the raw quota string from YAML, e.g. "2TB".
	Quota string `yaml:"monthlyTotal"`
}

// Config is an ordered set of configured nodes.
type Config struct {
	entries []Entry
	byID    map[string]int
}

// New builds a Config from entries. Later entries with a duplicate id
// replace earlier ones in place.
func New(entries ...Entry) *Config {
	c := &Config{byID: make(map[string]int)}
	for _, e := range entries {
		c.add(e)
	}
	return c
}

func (c *Config) add(e Entry) {
	if i, ok := c.byID[e.ID]; ok {
		c.entries[i] = e
		return
	}
	c.byID[e.ID] = len(c.entries)
	c.entries = append(c.entries, e)
}

// Entries returns the configured nodes in configuration order.
func (c *Config) Entries() []Entry {
	if c == nil {
		return nil
	}
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len returns the number of configured nodes.
func (c *Config) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// Lookup returns the entry for id.
func (c *Config) Lookup(id string) (Entry, bool) {
	if c == nil {
		return Entry{}, false
	}
	i, ok := c.byID[id]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i], true
}

// ResetDay picks the reset day used to account traffic for id: configured,
// then the reported candidates in order, then the default.
func (c *Config) ResetDay(id string, reported ...int) int {
	var configured int
	if e, ok := c.Lookup(id); ok {
		configured = e.ResetDay
	}
	return status.ResetDay(append([]int{configured}, reported...)...)
}

// Extend returns a Config with other's entries after c's. Entries in other
// replace same-id entries of c.
func (c *Config) Extend(other *Config) *Config {
	out := New(c.Entries()...)
	for _, e := range other.Entries() {
		out.add(e)
	}
	return out
}

// ParseServers parses the inline server list:
//
//	id:name:countryCode:location:expireDate:resetDay:monthlyTotal,...
//
// Only id and name are required. Entries without them are skipped, and an
// out-of-range reset day or malformed quota is dropped with a warning.
func ParseServers(value string, logger *log.Logger) *Config {
	logger = orDiscard(logger)
	c := New()
	if strings.TrimSpace(value) == "" {
		return c
	}

	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.Split(item, ":")
		for len(parts) < 7 {
			parts = append(parts, "")
		}
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		e := Entry{
			ID:          parts[0],
			Name:        parts[1],
			CountryCode: strings.ToUpper(parts[2]),
			Location:    parts[3],
			ExpireDate:  parts[4],
			Quota:       parts[6],
		}
		if parts[5] != "" {
			day, err := strconv.Atoi(parts[5])
			if err != nil {
				logger.Printf("server %q: ignoring reset day %q: %v", e.ID, parts[5], err)
			} else {
				e.ResetDay = day
			}
		}

		if e, ok := validate(e, logger); ok {
			c.add(e)
		}
	}
	return c
}

type fileConfig struct {
	Servers []Entry `yaml:"servers"`
}

// LoadFile reads a YAML server list:
//
//	servers:
//	  - id: hk-1
//	    name: Hong Kong
//	    countryCode: HK
//	    monthlyTotal: 1TB
func LoadFile(path string, logger *log.Logger) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read server list: %w", err)
	}
	return ParseYAML(data, logger)
}

// ParseYAML parses a YAML server list. See LoadFile.
func ParseYAML(data []byte, logger *log.Logger) (*Config, error) {
	logger = orDiscard(logger)

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse server list: %w", err)
	}

	c := New()
	for _, e := range fc.Servers {
		e.ID = strings.TrimSpace(e.ID)
		e.Name = strings.TrimSpace(e.Name)
		e.CountryCode = strings.ToUpper(strings.TrimSpace(e.CountryCode))
		if e, ok := validate(e, logger); ok {
			c.add(e)
		}
	}
	return c, nil
}

// validate applies per-entry fallbacks. It reports false for entries that
// must be skipped.
func validate(e Entry, logger *log.Logger) (Entry, bool) {
	if e.ID == "" || e.Name == "" {
		logger.Printf("skipping server entry without id or name: %+v", e)
		return e, false
	}
	if e.ResetDay != 0 && !traffic.ValidResetDay(e.ResetDay) {
		logger.Printf("server %q: reset day %d out of range 1-28, ignoring", e.ID, e.ResetDay)
		e.ResetDay = 0
	}
	if e.Quota != "" {
		if n, ok := traffic.ParseSizeStrict(e.Quota); ok {
			e.MonthlyTotal = n
		} else {
			logger.Printf("server %q: invalid monthly total %q, ignoring", e.ID, e.Quota)
		}
	}
	return e, true
}

func orDiscard(logger *log.Logger) *log.Logger {
	if logger == nil {
		return log.New(io.Discard, "", 0)
	}
	return logger
}
