package specs

import (
	"time"

	"github.com/google/uuid"
)

// UnitStatsSpec holds lifetime totals for one unit of measure.
//
// Totals are decimal strings: they are cumulative over the life of the process
// and are not bounded by the per-bucket quantity range.
type UnitStatsSpec struct {
	// Sum of quantities removed from the aggregator.
	Drained string `json:"drained"`

	// Sum of quantities the sink confirmed.
	Delivered string `json:"delivered"`

	// Sum of quantities dropped after a failed submission.
	Dropped string `json:"dropped"`

	// Sum of amounts discarded by overflow clamping.
	Clamped string `json:"clamped"`
}

// StatsSpec is a point-in-time view of an accountant.
type StatsSpec struct {
	// Number of accumulator slots currently held in memory.
	LiveSlots int `json:"liveSlots"`

	// Lifetime totals keyed by unit.
	Units map[string]UnitStatsSpec `json:"units"`
}

// FlushReportSpec summarizes one flush cycle.
type FlushReportSpec struct {
	// Unique identifier of the cycle, carried in logs and message headers.
	ID uuid.UUID `json:"id"`

	// Drain watermark: every bucket ending at or before At was drained.
	At time.Time `json:"at"`

	// Number of usage records drained.
	Drained int `json:"drained"`

	// Number of records accepted by the sink.
	Delivered int `json:"delivered"`

	// Number of records dropped after the retry.
	Dropped int `json:"dropped"`

	// Number of records submitted but not confirmed before the cycle's
	// deadline.
	Unconfirmed int `json:"unconfirmed"`

	// Wall time spent in the cycle.
	Duration time.Duration `json:"duration"`
}
