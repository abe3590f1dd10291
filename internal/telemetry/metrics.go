// Package telemetry exposes accountant activity as Prometheus metrics.
package telemetry

import (
	"errors"
	"fmt"

	"github.com/chrisconley/accountant/internal"
	"github.com/chrisconley/accountant/internal/infra"
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metric names.
const (
	MetricInputsRejectedTotal       = "usage_accountant_inputs_rejected_total"
	MetricOverflowClampedTotal      = "usage_accountant_overflow_clamped_total"
	MetricRecordsDeliveredTotal     = "usage_accountant_records_delivered_total"
	MetricRecordsDroppedTotal       = "usage_accountant_records_dropped_total"
	MetricRecordsUnconfirmedTotal   = "usage_accountant_records_unconfirmed_total"
	MetricAmountDeliveredTotal      = "usage_accountant_amount_delivered_total"
	MetricFlushesTotal              = "usage_accountant_flushes_total"
	MetricFlushDurationSeconds      = "usage_accountant_flush_duration_seconds"
	MetricSinkDeliveryFailuresTotal = "usage_accountant_sink_delivery_failures_total"
	MetricShutdownTimeoutsTotal     = "usage_accountant_shutdown_timeouts_total"
	MetricLiveSlots                 = "usage_accountant_live_slots"
)

// Metrics turns bus events into Prometheus series. Labels are limited to the
// unit and the rejected field: resources and features are unbounded.
type Metrics struct {
	inputsRejected   *prometheus.CounterVec
	overflowClamped  *prometheus.CounterVec
	recordsDelivered *prometheus.CounterVec
	recordsDropped   *prometheus.CounterVec
	unconfirmed      prometheus.Counter
	amountDelivered  *prometheus.CounterVec
	flushes          prometheus.Counter
	flushDuration    prometheus.Histogram
	sinkFailures     prometheus.Counter
	shutdownTimeouts prometheus.Counter
	liveSlots        prometheus.GaugeFunc
}

// NewMetrics creates the collectors and registers them with reg. liveSlots is
// sampled at scrape time.
func NewMetrics(reg prometheus.Registerer, liveSlots func() float64) (*Metrics, error) {
	m := &Metrics{
		inputsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricInputsRejectedTotal,
			Help: "Record calls rejected for invalid input, by offending field.",
		}, []string{"field"}),
		overflowClamped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricOverflowClampedTotal,
			Help: "Record calls that saturated a usage slot.",
		}, []string{"unit"}),
		recordsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRecordsDeliveredTotal,
			Help: "Usage records confirmed by the sink.",
		}, []string{"unit"}),
		recordsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRecordsDroppedTotal,
			Help: "Usage records dropped after a failed submission and retry.",
		}, []string{"unit"}),
		unconfirmed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRecordsUnconfirmedTotal,
			Help: "Usage records the sink did not confirm before the flush deadline.",
		}),
		amountDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricAmountDeliveredTotal,
			Help: "Sum of usage amounts confirmed by the sink.",
		}, []string{"unit"}),
		flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricFlushesTotal,
			Help: "Completed flush cycles.",
		}),
		flushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricFlushDurationSeconds,
			Help:    "Duration of flush cycles.",
			Buckets: prometheus.DefBuckets,
		}),
		sinkFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricSinkDeliveryFailuresTotal,
			Help: "Asynchronous delivery failures reported by the sink.",
		}),
		shutdownTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricShutdownTimeoutsTotal,
			Help: "Shutdowns whose final flush missed the deadline.",
		}),
	}
	if liveSlots == nil {
		liveSlots = func() float64 { return 0 }
	}
	m.liveSlots = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: MetricLiveSlots,
		Help: "Accumulator slots currently held in memory.",
	}, liveSlots)

	collectors := []prometheus.Collector{
		m.inputsRejected,
		m.overflowClamped,
		m.recordsDelivered,
		m.recordsDropped,
		m.unconfirmed,
		m.amountDelivered,
		m.flushes,
		m.flushDuration,
		m.sinkFailures,
		m.shutdownTimeouts,
		m.liveSlots,
	}
	var errs []error
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("register usage metrics: %w", err)
	}
	return m, nil
}

// Subscribe feeds m from every event published on bus.
func (m *Metrics) Subscribe(bus *infra.Bus) {
	bus.SubscribeAll(m.observe)
}

func (m *Metrics) observe(e infra.Event) {
	switch ev := e.(type) {
	case internal.InputRejectedEvent:
		m.inputsRejected.WithLabelValues(ev.Err.Field).Inc()
	case internal.OverflowClampedEvent:
		m.overflowClamped.WithLabelValues(ev.Key.Unit()).Inc()
	case internal.RecordDeliveredEvent:
		unit := ev.Record.Unit().ToString()
		m.recordsDelivered.WithLabelValues(unit).Inc()
		m.amountDelivered.WithLabelValues(unit).Add(float64(ev.Record.Quantity().ToInt64()))
	case internal.RecordDroppedEvent:
		m.recordsDropped.WithLabelValues(ev.Record.Unit().ToString()).Inc()
	case internal.FlushCompletedEvent:
		m.flushes.Inc()
		m.flushDuration.Observe(ev.Report.Duration.Seconds())
		m.unconfirmed.Add(float64(ev.Report.Unconfirmed))
	case internal.SinkDeliveryFailedEvent:
		m.sinkFailures.Inc()
	case internal.ShutdownTimedOutEvent:
		m.shutdownTimeouts.Inc()
	}
}
