package specs

import "time"

// UsageRecordSpec represents the finalized usage of one shared resource by one
// application feature over one time bucket.
//
// A usage record is produced when an accumulator slot is drained. It is never
// mutated after creation: late usage for the same resource, feature and unit is
// accumulated into a new slot and emitted as a separate record.
type UsageRecordSpec struct {
	// Identifier of the shared infrastructure resource being consumed.
	//
	// Opaque and operator-defined. It has to match the shared resource identifier
	// declared for the resource downstream. Examples: "kafka-topic-events",
	// "blob-storage", "generic_metrics_indexer_consumer".
	Resource string `json:"resource"`

	// Identifier of the product feature the usage is attributed to.
	//
	// Opaque and operator-defined. Examples: "transactions", "spans", "search".
	Feature string `json:"feature"`

	// Unit of measure for Quantity.
	//
	// Carried through unchanged. See the Unit* constants for the units known to
	// downstream consumers; other values are accepted as long as they validate.
	Unit string `json:"unit"`

	// Inclusive start of the time bucket, aligned to the accountant granularity.
	BucketStart time.Time `json:"bucketStart"`

	// Exclusive end of the time bucket. Always BucketStart + granularity.
	BucketEnd time.Time `json:"bucketEnd"`

	// Total amount recorded for the bucket.
	//
	// Non-negative. Accumulation saturates at the maximum int64 value; a clamped
	// total is reported through the overflow signal rather than wrapping.
	Quantity int64 `json:"quantity"`
}
