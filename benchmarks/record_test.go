package benchmarks

import (
	"fmt"
	"testing"
	"time"

	"github.com/chrisconley/accountant/accountant"
	"github.com/chrisconley/accountant/internal"
	"github.com/chrisconley/accountant/sink"
	"github.com/chrisconley/accountant/specs"
)

var benchStart = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func newAggregator(b *testing.B) *internal.Aggregator {
	b.Helper()
	config, err := internal.NewAccountantConfig(specs.AccountantConfigSpec{Granularity: time.Minute})
	if err != nil {
		b.Fatal(err)
	}
	return internal.NewAggregator(config, nil)
}

// Benchmark the hot path on a slot that already exists
func BenchmarkAggregator_Record_SameKey(b *testing.B) {
	a := newAggregator(b)
	ts := benchStart.Add(10 * time.Second)
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = a.Record("blob-storage", "search", specs.UnitBytes, 1024, ts)
	}
}

// Benchmark contended increments of a single slot
func BenchmarkAggregator_Record_SameKey_Parallel(b *testing.B) {
	a := newAggregator(b)
	ts := benchStart.Add(10 * time.Second)
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = a.Record("blob-storage", "search", specs.UnitBytes, 1, ts)
		}
	})
}

// Benchmark writers spread over many series, as in a busy service
func BenchmarkAggregator_Record_ManyKeys_Parallel(b *testing.B) {
	a := newAggregator(b)
	ts := benchStart.Add(10 * time.Second)
	features := make([]string, 256)
	for i := range features {
		features[i] = fmt.Sprintf("feature-%03d", i)
	}
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_ = a.Record("blob-storage", features[i%len(features)], specs.UnitBytes, 1, ts)
			i++
		}
	})
}

// Benchmark draining a bucket with 1000 live slots
func BenchmarkAggregator_Drain_1000Keys(b *testing.B) {
	a := newAggregator(b)
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		b.StopTimer()
		bucket := benchStart.Add(time.Duration(i) * time.Minute)
		for k := 0; k < 1000; k++ {
			_ = a.Record("blob-storage", fmt.Sprintf("feature-%d", k), specs.UnitBytes, 1, bucket)
		}
		b.StartTimer()

		_ = a.Drain(bucket.Add(time.Minute))
	}
}

// Benchmark the public API including the clock read
func BenchmarkAccountant_Record(b *testing.B) {
	acc, err := accountant.New(sink.NewMemory(), specs.AccountantConfigSpec{}, accountant.WithTicks(make(chan time.Time)))
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = acc.Shutdown(time.Second) })
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = acc.Record("blob-storage", "search", specs.UnitBytes, 1024)
		}
	})
}
