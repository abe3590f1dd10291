package internal

import (
	"strings"
	"time"
)

// BucketKey identifies one accumulator slot. It is comparable and used as a
// map key directly.
type BucketKey struct {
	resource    string
	feature     string
	unit        string
	bucketStart int64 // unix nanoseconds, UTC
}

func NewBucketKey(resource ResourceID, feature AppFeature, unit UsageUnit, bucket TimeBucket) BucketKey {
	return BucketKey{
		resource:    resource.ToString(),
		feature:     feature.ToString(),
		unit:        unit.ToString(),
		bucketStart: bucket.Start().UnixNano(),
	}
}

func (k BucketKey) Resource() string {
	return k.resource
}

func (k BucketKey) Feature() string {
	return k.feature
}

func (k BucketKey) Unit() string {
	return k.unit
}

func (k BucketKey) BucketStart() time.Time {
	return time.Unix(0, k.bucketStart).UTC()
}

// Less orders keys by bucket start, then resource, feature and unit.
func (k BucketKey) Less(other BucketKey) bool {
	return k.Compare(other) < 0
}

func (k BucketKey) Compare(other BucketKey) int {
	switch {
	case k.bucketStart < other.bucketStart:
		return -1
	case k.bucketStart > other.bucketStart:
		return 1
	}
	if c := strings.Compare(k.resource, other.resource); c != 0 {
		return c
	}
	if c := strings.Compare(k.feature, other.feature); c != 0 {
		return c
	}
	return strings.Compare(k.unit, other.unit)
}
