// Package traffic derives per-cycle traffic usage from the cumulative byte
// counters that agents report.
//
// Agents only know their interface totals since boot. The accountant keeps a
// baseline per node, captured on the first report of each billing cycle, and
// reports usage as the distance from that baseline:
//
//	cycle start    resetDay of this month, or of the previous month
//	               when today is before resetDay
//	baseline       {cycleKey, baseUpload, baseDownload}, rewritten only
//	               when the computed cycleKey changes
//	used           max(0, up-baseUp) + max(0, down-baseDown)
package traffic

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/aceteam-ai/vpswatch/internal/store"
)

const (
	// MinResetDay and MaxResetDay bound the billing reset day. Days past 28
	// would skip February.
	MinResetDay = 1
	MaxResetDay = 28

	// DefaultResetDay is used when neither the operator nor the agent set one.
	DefaultResetDay = 1

	// BaselineTTL keeps a baseline alive across a full cycle plus slack.
	BaselineTTL = 45 * 24 * time.Hour
)

// ErrInvalidResetDay is returned for reset days outside [MinResetDay, MaxResetDay].
var ErrInvalidResetDay = errors.New("reset day must be between 1 and 28")

// ValidResetDay reports whether day can be used as a billing reset day.
func ValidResetDay(day int) bool {
	return day >= MinResetDay && day <= MaxResetDay
}

// CycleStart returns midnight on the first day of the billing cycle that
// contains now, in now's location.
func CycleStart(resetDay int, now time.Time) time.Time {
	y, m, d := now.Date()
	if d < resetDay {
		// time.Date normalizes month 0 to December of the previous year
		m--
	}
	return time.Date(y, m, resetDay, 0, 0, 0, 0, now.Location())
}

// CycleKey encodes a cycle start date as "<year>-<month>-<day>" without zero
// padding. It is an equality key, not a display format.
func CycleKey(start time.Time) string {
	y, m, d := start.Date()
	return fmt.Sprintf("%d-%d-%d", y, int(m), d)
}

// Window returns the first and last calendar day of the cycle containing now.
func Window(resetDay int, now time.Time) (start, end time.Time) {
	start = CycleStart(resetDay, now)
	end = start.AddDate(0, 1, -1)
	return start, end
}

// Baseline is the persisted counter snapshot for one node and cycle.
type Baseline struct {
	CycleKey     string `json:"cycleKey"`
	BaseUpload   uint64 `json:"baseUpload"`
	BaseDownload uint64 `json:"baseDownload"`
}

// Usage is the result of accounting a single report.
type Usage struct {
	CycleKey string
	Used     uint64

	// Rebased is set when this report wrote a new baseline.
	Rebased bool
}

// Accountant computes cycle usage against baselines held in a store.
type Accountant struct {
	store    store.Store
	location *time.Location
	now      func() time.Time
	ttl      time.Duration
	logger   *log.Logger
}

// AccountantConfig holds configuration for the accountant.
type AccountantConfig struct {
	Store store.Store

	// Location determines where day boundaries fall (default: time.Local)
	Location *time.Location

	// Now overrides the clock (default: time.Now)
	Now func() time.Time

	// BaselineTTL overrides the baseline lifetime (default: 45 days)
	BaselineTTL time.Duration

	// Logger receives baseline read/write failures (default: discarded)
	Logger *log.Logger
}

// NewAccountant creates an accountant.
func NewAccountant(cfg AccountantConfig) *Accountant {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.BaselineTTL == 0 {
		cfg.BaselineTTL = BaselineTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	return &Accountant{
		store:    cfg.Store,
		location: cfg.Location,
		now:      cfg.Now,
		ttl:      cfg.BaselineTTL,
		logger:   cfg.Logger,
	}
}

// Account records a report of cumulative counters and returns the bytes
// used in the current cycle. The only error is ErrInvalidResetDay; store
// failures degrade to re-baselining.
func (a *Accountant) Account(ctx context.Context, nodeID string, totalUp, totalDown uint64, resetDay int) (Usage, error) {
	if !ValidResetDay(resetDay) {
		return Usage{}, fmt.Errorf("%w: got %d", ErrInvalidResetDay, resetDay)
	}

	key := CycleKey(CycleStart(resetDay, a.now().In(a.location)))
	usage := Usage{CycleKey: key}

	var base Baseline
	err := store.GetJSON(ctx, a.store, store.TrafficKey(nodeID), &base)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		a.logger.Printf("baseline read for %s failed, re-baselining: %v", nodeID, err)
	}

	if err != nil || base.CycleKey != key {
		base = Baseline{CycleKey: key, BaseUpload: totalUp, BaseDownload: totalDown}
		usage.Rebased = true
		if werr := store.SetJSON(ctx, a.store, store.TrafficKey(nodeID), base, a.ttl); werr != nil {
			a.logger.Printf("baseline write for %s failed: %v", nodeID, werr)
		}
	}

	usage.Used = delta(totalUp, base.BaseUpload) + delta(totalDown, base.BaseDownload)
	return usage, nil
}

// Baseline returns the stored baseline for a node.
func (a *Accountant) Baseline(ctx context.Context, nodeID string) (Baseline, error) {
	var base Baseline
	if err := store.GetJSON(ctx, a.store, store.TrafficKey(nodeID), &base); err != nil {
		return Baseline{}, err
	}
	return base, nil
}

// delta returns cur-base, floored at zero.
func delta(cur, base uint64) uint64 {
	if cur < base {
		return 0
	}
	return cur - base
}
