package status

import "time"

// State is the display status derived from report age.
type State string

const (
	StateOnline  State = "online"
	StateOffline State = "offline"

	// StatePruned nodes are left out of listings.
	StatePruned State = "pruned"
)

// Staleness thresholds. These are fixed; agents report every few seconds.
const (
	OnlineThreshold = 15 * time.Second
	PruneThreshold  = 60 * time.Second
)

// Classify derives a node's state from the time of its last report.
func Classify(lastUpdate, now time.Time) State {
	age := now.Sub(lastUpdate)
	switch {
	case age < OnlineThreshold:
		return StateOnline
	case age < PruneThreshold:
		return StateOffline
	default:
		return StatePruned
	}
}
