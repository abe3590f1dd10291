package specs

import "time"

// Record accumulates amount of unit consumed by feature on resource at the
// given time.
//
// Process:
//  1. Validate identifiers (non-empty, bounded length) and amount (non-negative)
//  2. Truncate timestamp to the granularity to find the time bucket
//  3. If that bucket was already drained, use the live bucket instead
//  4. Saturating-add amount into the (resource, feature, unit, bucket) slot
//
// Never blocks on I/O. Returns an error wrapping ErrInvalidInput for rejected
// input, and ErrStopped after shutdown. Overflow is clamped and reported, not
// returned.
//
// The signature uses only primitive types.
// See internal.Aggregator.Record for the reference implementation.
type Record func(resource, feature, unit string, amount int64, timestamp time.Time) error

// Drain atomically removes every accumulator slot whose bucket ended at or
// before now and returns them as usage records ordered by bucket start, then
// resource, feature and unit.
//
// Buckets still open at now are left untouched. Draining twice with no writes
// in between returns nothing the second time.
//
// See internal.Aggregator.Drain for the reference implementation.
type Drain func(now time.Time) []UsageRecordSpec

// Format serializes a usage record into a Sink payload following MessageSpec.
//
// See internal.Format for the reference implementation.
type Format func(record UsageRecordSpec) ([]byte, error)
