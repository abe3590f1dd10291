package internal

import (
	"fmt"
	"time"

	"github.com/chrisconley/accountant/specs"
)

// UsageRecord is the immutable result of draining one accumulator slot.
type UsageRecord struct {
	resource ResourceID
	feature  AppFeature
	unit     UsageUnit
	bucket   TimeBucket
	quantity Quantity
}

func NewUsageRecord(spec specs.UsageRecordSpec) (UsageRecord, error) {
	resource, err := NewResourceID(spec.Resource, DefaultMaxIdentifierLength)
	if err != nil {
		return UsageRecord{}, fmt.Errorf("invalid resource: %w", err)
	}

	feature, err := NewAppFeature(spec.Feature, DefaultMaxIdentifierLength)
	if err != nil {
		return UsageRecord{}, fmt.Errorf("invalid feature: %w", err)
	}

	unit, err := NewUsageUnit(spec.Unit, DefaultMaxIdentifierLength)
	if err != nil {
		return UsageRecord{}, fmt.Errorf("invalid unit: %w", err)
	}

	if spec.BucketStart.IsZero() {
		return UsageRecord{}, fmt.Errorf("bucket start is required")
	}
	if !spec.BucketEnd.After(spec.BucketStart) {
		return UsageRecord{}, fmt.Errorf("bucket end must be after bucket start")
	}

	quantity, err := NewQuantity(spec.Quantity)
	if err != nil {
		return UsageRecord{}, fmt.Errorf("invalid quantity: %w", err)
	}

	return UsageRecord{
		resource: resource,
		feature:  feature,
		unit:     unit,
		bucket:   TimeBucket{start: spec.BucketStart.UTC(), end: spec.BucketEnd.UTC()},
		quantity: quantity,
	}, nil
}

func newUsageRecord(key BucketKey, granularity time.Duration, quantity int64) UsageRecord {
	start := key.BucketStart()
	return UsageRecord{
		resource: ResourceID{value: key.resource},
		feature:  AppFeature{value: key.feature},
		unit:     UsageUnit{value: key.unit},
		bucket:   TimeBucket{start: start, end: start.Add(granularity)},
		quantity: Quantity{value: quantity},
	}
}

func (r UsageRecord) Resource() ResourceID {
	return r.resource
}

func (r UsageRecord) Feature() AppFeature {
	return r.feature
}

func (r UsageRecord) Unit() UsageUnit {
	return r.unit
}

func (r UsageRecord) Bucket() TimeBucket {
	return r.bucket
}

func (r UsageRecord) Quantity() Quantity {
	return r.quantity
}

func (r UsageRecord) Key() BucketKey {
	return NewBucketKey(r.resource, r.feature, r.unit, r.bucket)
}

func (r UsageRecord) ToSpec() specs.UsageRecordSpec {
	return specs.UsageRecordSpec{
		Resource:    r.resource.ToString(),
		Feature:     r.feature.ToString(),
		Unit:        r.unit.ToString(),
		BucketStart: r.bucket.Start(),
		BucketEnd:   r.bucket.End(),
		Quantity:    r.quantity.ToInt64(),
	}
}
