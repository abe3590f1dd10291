package benchmarks

import (
	"testing"
	"time"

	"github.com/chrisconley/accountant/internal"
	"github.com/chrisconley/accountant/specs"
)

func realisticRecord(b *testing.B) internal.UsageRecord {
	b.Helper()
	record, err := internal.NewUsageRecord(specs.UsageRecordSpec{
		Resource:    "kafka-topic-events",
		Feature:     "ingest-transactions",
		Unit:        specs.UnitBytesSec,
		BucketStart: benchStart,
		BucketEnd:   benchStart.Add(time.Minute),
		Quantity:    1_572_864,
	})
	if err != nil {
		b.Fatal(err)
	}
	return record
}

// Benchmark serializing one drained record
func BenchmarkMessage_Format(b *testing.B) {
	record := realisticRecord(b)
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_, _ = internal.Format(record)
	}
}

// Benchmark decoding a payload the way the postgres sink does
func BenchmarkMessage_Parse(b *testing.B) {
	payload, err := internal.Format(realisticRecord(b))
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_, _ = internal.ParseMessage(payload)
	}
}

// Report the wire size of a realistic message
func BenchmarkMessage_JSONSize(b *testing.B) {
	payload, err := internal.Format(realisticRecord(b))
	if err != nil {
		b.Fatal(err)
	}
	b.ReportMetric(float64(len(payload)), "bytes/msg")
}
