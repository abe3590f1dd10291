package specs

// MessageSpec is the transport payload submitted to a Sink, one per usage record.
//
// The field names are the stable wire schema consumed downstream and must not
// change. Payloads are JSON-encoded.
type MessageSpec struct {
	// Start of the usage bucket in seconds since the Unix epoch (UTC).
	Timestamp int64 `json:"timestamp"`

	// Identifier of the shared resource. See UsageRecordSpec.Resource.
	SharedResourceID string `json:"shared_resource_id"`

	// Identifier of the product feature. See UsageRecordSpec.Feature.
	AppFeature string `json:"app_feature"`

	// Unit of measure of Amount. See the Unit* constants.
	UsageUnit string `json:"usage_unit"`

	// Non-negative amount of usage accumulated in the bucket.
	Amount int64 `json:"amount"`
}
