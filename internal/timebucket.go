package internal

import (
	"fmt"
	"math"
	"time"
)

// DefaultGranularity is used when no granularity is configured.
const DefaultGranularity = 60 * time.Second

// TimeBucket is the half-open interval [start, start+granularity).
type TimeBucket struct {
	start time.Time
	end   time.Time
}

// NewTimeBucket returns the bucket containing ts, aligned to granularity.
func NewTimeBucket(ts time.Time, granularity time.Duration) (TimeBucket, error) {
	if granularity <= 0 {
		return TimeBucket{}, fmt.Errorf("granularity must be positive, got %s", granularity)
	}
	if ts.IsZero() {
		return TimeBucket{}, &InvalidInputError{Field: "timestamp", Reason: "is required"}
	}
	if ts.Before(minBucketTime) || ts.After(maxBucketTime) {
		return TimeBucket{}, &InvalidInputError{Field: "timestamp", Reason: "is outside the supported range"}
	}
	start, ok := alignToEpoch(ts.UnixNano(), int64(granularity))
	if !ok {
		return TimeBucket{}, &InvalidInputError{Field: "timestamp", Reason: "is outside the supported range"}
	}
	begin := time.Unix(0, start).UTC()
	return TimeBucket{start: begin, end: begin.Add(granularity)}, nil
}

// Bucket starts are stored as unix nanoseconds.
var (
	minBucketTime = time.Unix(0, math.MinInt64).UTC()
	maxBucketTime = time.Unix(0, math.MaxInt64).UTC()
)

// alignToEpoch floors ns to a multiple of granularity counted from the unix
// epoch. It reports false when the bucket start or end does not fit in int64.
func alignToEpoch(ns, granularity int64) (int64, bool) {
	offset := ns % granularity
	if offset < 0 {
		offset += granularity
	}
	if ns < math.MinInt64+offset {
		return 0, false
	}
	start := ns - offset
	if start > math.MaxInt64-granularity {
		return 0, false
	}
	return start, true
}

func (b TimeBucket) Start() time.Time {
	return b.start
}

func (b TimeBucket) End() time.Time {
	return b.end
}

func (b TimeBucket) Contains(ts time.Time) bool {
	return !ts.Before(b.start) && ts.Before(b.end)
}

// ClosedAt reports whether no timestamp at or after now can fall in the bucket.
func (b TimeBucket) ClosedAt(now time.Time) bool {
	return !b.end.After(now)
}
