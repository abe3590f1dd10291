package internal

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/chrisconley/accountant/specs"
)

// Format serializes a usage record into the sink payload.
func Format(record UsageRecord) ([]byte, error) {
	message := ToMessage(record)
	payload, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("failed to encode usage message: %w", err)
	}
	return payload, nil
}

// FormatSpec implements specs.Format.
func FormatSpec(spec specs.UsageRecordSpec) ([]byte, error) {
	record, err := NewUsageRecord(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid usage record: %w", err)
	}
	return Format(record)
}

func ToMessage(record UsageRecord) specs.MessageSpec {
	return specs.MessageSpec{
		Timestamp:        record.Bucket().Start().Unix(),
		SharedResourceID: record.Resource().ToString(),
		AppFeature:       record.Feature().ToString(),
		UsageUnit:        record.Unit().ToString(),
		Amount:           record.Quantity().ToInt64(),
	}
}

// ParseMessage decodes and validates a payload produced by Format.
func ParseMessage(payload []byte) (specs.MessageSpec, error) {
	var message specs.MessageSpec
	if err := json.Unmarshal(payload, &message); err != nil {
		return specs.MessageSpec{}, fmt.Errorf("failed to decode usage message: %w", err)
	}
	if message.SharedResourceID == "" {
		return specs.MessageSpec{}, fmt.Errorf("shared_resource_id is required")
	}
	if message.AppFeature == "" {
		return specs.MessageSpec{}, fmt.Errorf("app_feature is required")
	}
	if message.UsageUnit == "" {
		return specs.MessageSpec{}, fmt.Errorf("usage_unit is required")
	}
	if message.Amount < 0 {
		return specs.MessageSpec{}, fmt.Errorf("amount cannot be negative")
	}
	return message, nil
}

// RecordFromPayload rebuilds the record a payload was formatted from.
func RecordFromPayload(payload []byte, granularity time.Duration) (UsageRecord, error) {
	message, err := ParseMessage(payload)
	if err != nil {
		return UsageRecord{}, err
	}
	start := time.Unix(message.Timestamp, 0).UTC()
	return NewUsageRecord(specs.UsageRecordSpec{
		Resource:    message.SharedResourceID,
		Feature:     message.AppFeature,
		Unit:        message.UsageUnit,
		BucketStart: start,
		BucketEnd:   start.Add(granularity),
		Quantity:    message.Amount,
	})
}
