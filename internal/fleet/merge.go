package fleet

import (
	"time"

	"github.com/aceteam-ai/vpswatch/internal/status"
)

// Merge builds the served node list from live snapshots and the configured
// fleet. Order is deterministic:
//
//  1. configured nodes, in configuration order, as their live view or as a
//     placeholder when they have no live, unpruned snapshot
//  2. unconfigured live nodes, in the order given (node index order)
//
// Pruned snapshots are dropped. Duplicate ids in live keep the first.
func Merge(cfg *Config, live []status.Snapshot, now time.Time) []status.NodeView {
	views := make(map[string]status.NodeView, len(live))
	order := make([]string, 0, len(live))
	for _, snap := range live {
		if _, seen := views[snap.ID]; seen {
			continue
		}
		v, state := status.NewView(snap, now)
		if state == status.StatePruned {
			continue
		}
		views[snap.ID] = v
		order = append(order, snap.ID)
	}

	out := make([]status.NodeView, 0, cfg.Len()+len(order))
	for _, e := range cfg.Entries() {
		if v, ok := views[e.ID]; ok {
			out = append(out, Overlay(v, e))
		} else {
			out = append(out, PlaceholderFor(e))
		}
	}
	for _, id := range order {
		if _, configured := cfg.Lookup(id); configured {
			continue
		}
		out = append(out, views[id])
	}
	return out
}

// Overlay applies configured values on top of a live view.
func Overlay(v status.NodeView, e Entry) status.NodeView {
	if e.Name != "" {
		v.Name = e.Name
	}
	if e.CountryCode != "" {
		v.CountryCode = e.CountryCode
	}
	if e.Location != "" {
		v.Location = e.Location
	}
	if e.ExpireDate != "" {
		v.ExpireDate = e.ExpireDate
	}
	if e.MonthlyTotal > 0 {
		v.Network.MonthlyTotal = e.MonthlyTotal
	}
	if e.ResetDay != 0 {
		v.Network.ResetDay = e.ResetDay
	}
	return v
}

// PlaceholderFor returns the offline placeholder of a configured node.
func PlaceholderFor(e Entry) status.NodeView {
	v := Overlay(status.Placeholder(e.ID), e)
	if e.Location == "" {
		v.Location = e.Name
	}
	return v
}

// Placeholders returns a placeholder for every configured node. It is the
// node list served when the store is unavailable.
func Placeholders(cfg *Config) []status.NodeView {
	out := make([]status.NodeView, 0, cfg.Len())
	for _, e := range cfg.Entries() {
		out = append(out, PlaceholderFor(e))
	}
	return out
}
