package internal

import (
	"testing"
	"time"

	"github.com/chrisconley/accountant/specs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecord(t *testing.T, quantity int64) UsageRecord {
	t.Helper()
	record, err := NewUsageRecord(specs.UsageRecordSpec{
		Resource:    "blob-storage",
		Feature:     "search",
		Unit:        specs.UnitBytes,
		BucketStart: t0,
		BucketEnd:   t0.Add(time.Minute),
		Quantity:    quantity,
	})
	require.NoError(t, err)
	return record
}

func TestFormat(t *testing.T) {
	t.Run("encodes the bucket start as epoch seconds", func(t *testing.T) {
		payload, err := Format(newTestRecord(t, 1024))

		require.NoError(t, err)
		assert.JSONEq(t, `{
			"timestamp": 1704067200,
			"shared_resource_id": "blob-storage",
			"app_feature": "search",
			"usage_unit": "bytes",
			"amount": 1024
		}`, string(payload))
	})

	t.Run("is deterministic", func(t *testing.T) {
		a, err := Format(newTestRecord(t, 7))
		require.NoError(t, err)
		b, err := Format(newTestRecord(t, 7))
		require.NoError(t, err)

		assert.Equal(t, a, b)
	})
}

func TestFormatSpec(t *testing.T) {
	t.Run("with invalid record returns error", func(t *testing.T) {
		_, err := FormatSpec(specs.UsageRecordSpec{Feature: "search", Unit: "bytes", BucketStart: t0, BucketEnd: t0.Add(time.Minute)})

		assert.ErrorContains(t, err, "invalid usage record: invalid resource")
	})
}

func TestParseMessage(t *testing.T) {
	t.Run("reads back a formatted payload", func(t *testing.T) {
		payload, err := Format(newTestRecord(t, 1024))
		require.NoError(t, err)

		message, err := ParseMessage(payload)

		require.NoError(t, err)
		assert.Equal(t, ToMessage(newTestRecord(t, 1024)), message)
	})

	t.Run("rejects malformed payloads", func(t *testing.T) {
		cases := map[string]string{
			"not json":         `{`,
			"missing resource": `{"timestamp":1,"app_feature":"f","usage_unit":"u","amount":1}`,
			"missing feature":  `{"timestamp":1,"shared_resource_id":"r","usage_unit":"u","amount":1}`,
			"missing unit":     `{"timestamp":1,"shared_resource_id":"r","app_feature":"f","amount":1}`,
			"negative amount":  `{"timestamp":1,"shared_resource_id":"r","app_feature":"f","usage_unit":"u","amount":-1}`,
		}
		for name, payload := range cases {
			t.Run(name, func(t *testing.T) {
				_, err := ParseMessage([]byte(payload))

				assert.Error(t, err)
			})
		}
	})
}

func TestNewUsageRecord(t *testing.T) {
	t.Run("round trips through its spec", func(t *testing.T) {
		record := newTestRecord(t, 5)

		again, err := NewUsageRecord(record.ToSpec())

		require.NoError(t, err)
		assert.Equal(t, record, again)
		assert.Equal(t, newTestKey(t, "blob-storage", "search", specs.UnitBytes, t0), record.Key())
	})

	t.Run("with inverted bucket returns error", func(t *testing.T) {
		_, err := NewUsageRecord(specs.UsageRecordSpec{
			Resource:    "blob-storage",
			Feature:     "search",
			Unit:        specs.UnitBytes,
			BucketStart: t0,
			BucketEnd:   t0,
		})

		assert.ErrorContains(t, err, "bucket end must be after bucket start")
	})

	t.Run("with negative quantity returns error", func(t *testing.T) {
		_, err := NewUsageRecord(specs.UsageRecordSpec{
			Resource:    "blob-storage",
			Feature:     "search",
			Unit:        specs.UnitBytes,
			BucketStart: t0,
			BucketEnd:   t0.Add(time.Minute),
			Quantity:    -1,
		})

		assert.ErrorIs(t, err, specs.ErrInvalidInput)
	})
}
