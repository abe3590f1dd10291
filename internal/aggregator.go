package internal

import (
	"hash/maphash"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chrisconley/accountant/specs"
)

const shardCount = 32

// OverflowHook is called once for every Record that clamped a slot.
type OverflowHook func(key BucketKey, excess int64)

// Aggregator accumulates usage into time-bucketed slots keyed by
// (resource, feature, unit, bucket start).
//
// Slots are spread over shards by (resource, feature, unit) so writers to
// different series rarely contend. Within a shard, increments to an existing
// slot run under the read lock with a CAS; inserts and drains take the write
// lock. A drain therefore never observes a half-applied increment, and every
// increment lands either before the slot is removed or in a fresh slot.
type Aggregator struct {
	granularity         time.Duration
	maxIdentifierLength int
	onOverflow          OverflowHook

	seed   maphash.Seed
	shards [shardCount]shard
	closed atomic.Bool
}

type shard struct {
	mu    sync.RWMutex
	slots map[BucketKey]*slot
	// watermark is the latest drain time. Buckets ending at or before it have
	// been emitted and cannot be reopened.
	watermark time.Time
	closed    bool
}

type slot struct {
	quantity atomic.Int64
}

type series struct {
	resource, feature, unit string
}

func NewAggregator(config AccountantConfig, onOverflow OverflowHook) *Aggregator {
	a := &Aggregator{
		granularity:         config.Granularity(),
		maxIdentifierLength: config.MaxIdentifierLength(),
		onOverflow:          onOverflow,
		seed:                maphash.MakeSeed(),
	}
	for i := range a.shards {
		a.shards[i].slots = make(map[BucketKey]*slot)
	}
	return a
}

func (a *Aggregator) Granularity() time.Duration {
	return a.granularity
}

// Record adds amount to the slot for the bucket containing ts.
//
// If that bucket has already been drained the amount is added to the live
// bucket instead, so drained records are never reopened.
func (a *Aggregator) Record(resource, feature, unit string, amount int64, ts time.Time) error {
	if a.closed.Load() {
		return specs.ErrStopped
	}

	resourceID, err := NewResourceID(resource, a.maxIdentifierLength)
	if err != nil {
		return err
	}
	appFeature, err := NewAppFeature(feature, a.maxIdentifierLength)
	if err != nil {
		return err
	}
	usageUnit, err := NewUsageUnit(unit, a.maxIdentifierLength)
	if err != nil {
		return err
	}
	quantity, err := NewQuantity(amount)
	if err != nil {
		return err
	}
	bucket, err := NewTimeBucket(ts, a.granularity)
	if err != nil {
		return err
	}

	key := NewBucketKey(resourceID, appFeature, usageUnit, bucket)
	sh := &a.shards[a.shardIndex(key)]

	key, clamped, excess, err := sh.add(key, quantity.ToInt64(), a.granularity)
	if err != nil {
		return err
	}
	if clamped && a.onOverflow != nil {
		a.onOverflow(key, excess)
	}
	return nil
}

func (a *Aggregator) shardIndex(key BucketKey) int {
	h := maphash.Comparable(a.seed, series{key.resource, key.feature, key.unit})
	return int(h % shardCount)
}

func (sh *shard) add(key BucketKey, amount int64, granularity time.Duration) (BucketKey, bool, int64, error) {
	sh.mu.RLock()
	if sh.closed {
		sh.mu.RUnlock()
		return key, false, 0, specs.ErrStopped
	}
	live := sh.liveKey(key, granularity)
	if s, ok := sh.slots[live]; ok {
		clamped, excess := s.add(amount)
		sh.mu.RUnlock()
		return live, clamped, excess, nil
	}
	sh.mu.RUnlock()

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.closed {
		return key, false, 0, specs.ErrStopped
	}
	// The watermark may have moved while the lock was released.
	live = sh.liveKey(key, granularity)
	s, ok := sh.slots[live]
	if !ok {
		s = &slot{}
		sh.slots[live] = s
	}
	clamped, excess := s.add(amount)
	return live, clamped, excess, nil
}

// liveKey moves key into the bucket containing the watermark when its own
// bucket has already been drained.
func (sh *shard) liveKey(key BucketKey, granularity time.Duration) BucketKey {
	if sh.watermark.IsZero() {
		return key
	}
	if key.BucketStart().Add(granularity).After(sh.watermark) {
		return key
	}
	if start, ok := alignToEpoch(sh.watermark.UnixNano(), int64(granularity)); ok {
		key.bucketStart = start
	}
	return key
}

func (s *slot) add(amount int64) (bool, int64) {
	for {
		old := s.quantity.Load()
		sum, clamped, excess := saturatingAdd(old, amount)
		if s.quantity.CompareAndSwap(old, sum) {
			return clamped, excess
		}
	}
}

// Drain removes and returns every slot whose bucket ended at or before now,
// ordered by BucketKey.
func (a *Aggregator) Drain(now time.Time) []UsageRecord {
	now = now.UTC()
	var records []UsageRecord
	for i := range a.shards {
		records = a.shards[i].drain(records, now, a.granularity, false)
	}
	sortRecords(records)
	return records
}

// DrainAll removes every slot, including open buckets, and closes the
// aggregator. Subsequent Record calls return specs.ErrStopped.
func (a *Aggregator) DrainAll() []UsageRecord {
	a.closed.Store(true)
	var records []UsageRecord
	for i := range a.shards {
		records = a.shards[i].drain(records, time.Time{}, a.granularity, true)
	}
	sortRecords(records)
	return records
}

func (sh *shard) drain(records []UsageRecord, now time.Time, granularity time.Duration, all bool) []UsageRecord {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if all {
		sh.closed = true
	} else if now.After(sh.watermark) {
		sh.watermark = now
	}
	for key, s := range sh.slots {
		end := key.BucketStart().Add(granularity)
		if !all && end.After(sh.watermark) {
			continue
		}
		records = append(records, newUsageRecord(key, granularity, s.quantity.Load()))
		delete(sh.slots, key)
	}
	return records
}

// Len returns the number of live slots.
func (a *Aggregator) Len() int {
	n := 0
	for i := range a.shards {
		sh := &a.shards[i]
		sh.mu.RLock()
		n += len(sh.slots)
		sh.mu.RUnlock()
	}
	return n
}

func sortRecords(records []UsageRecord) {
	slices.SortFunc(records, func(a, b UsageRecord) int {
		return a.Key().Compare(b.Key())
	})
}
