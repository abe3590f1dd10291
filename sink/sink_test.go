package sink

import (
	"testing"
	"time"

	"github.com/chrisconley/accountant/internal"
	"github.com/chrisconley/accountant/specs"
	"github.com/stretchr/testify/require"
)

var bucketStart = time.Date(2023, 10, 8, 22, 15, 0, 0, time.UTC)

func newPayload(t *testing.T, resource string, quantity int64) []byte {
	t.Helper()
	payload, err := internal.FormatSpec(specs.UsageRecordSpec{
		Resource:    resource,
		Feature:     "search",
		Unit:        specs.UnitBytes,
		BucketStart: bucketStart,
		BucketEnd:   bucketStart.Add(time.Minute),
		Quantity:    quantity,
	})
	require.NoError(t, err)
	return payload
}
