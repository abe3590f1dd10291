// Package accountant is the producer-side API for recording shared resource
// usage per application feature.
//
// Usage is summed in memory into time buckets keyed by (resource, feature,
// unit) and a background loop delivers every closed bucket to a sink as one
// JSON message. Record never performs I/O.
package accountant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chrisconley/accountant/internal"
	"github.com/chrisconley/accountant/internal/infra"
	"github.com/chrisconley/accountant/internal/telemetry"
	"github.com/chrisconley/accountant/sink"
	"github.com/chrisconley/accountant/specs"
	"go.uber.org/zap"
)

type Accountant struct {
	config     internal.AccountantConfig
	aggregator *internal.Aggregator
	flusher    *internal.Flusher
	bus        *infra.Bus
	tally      *internal.Tally
	logger     *zap.Logger
	now        func() time.Time
}

// New creates an accountant delivering to s. Call Start to begin periodic
// flushing and Shutdown to deliver what is left.
func New(s specs.Sink, cfg specs.AccountantConfigSpec, opts ...Option) (*Accountant, error) {
	return build(s, cfg, infra.NewBus(), newOptions(opts))
}

// NewWithKafka creates an accountant that owns a Kafka sink built from
// kafkaCfg. The sink is closed by Shutdown.
func NewWithKafka(cfg specs.AccountantConfigSpec, kafkaCfg specs.KafkaSinkConfigSpec, opts ...Option) (*Accountant, error) {
	o := newOptions(opts)
	bus := infra.NewBus()
	k, err := sink.NewKafka(kafkaCfg,
		sink.WithKafkaLogger(o.logger),
		sink.WithDeliveryErrorHandler(func(err error) {
			bus.Publish(internal.SinkDeliveryFailedEvent{Err: err})
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid kafka sink config: %w", err)
	}
	a, err := build(k, cfg, bus, o)
	if err != nil {
		_ = k.Close()
		return nil, err
	}
	return a, nil
}

func build(s specs.Sink, cfg specs.AccountantConfigSpec, bus *infra.Bus, o options) (*Accountant, error) {
	if s == nil {
		return nil, fmt.Errorf("sink is required")
	}
	config, err := internal.NewAccountantConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid accountant config: %w", err)
	}

	a := &Accountant{
		config: config,
		bus:    bus,
		tally:  internal.NewTally(),
		logger: o.logger,
		now:    o.now,
	}
	a.aggregator = internal.NewAggregator(config, a.overflowed)

	var trigger internal.Trigger
	if o.ticks != nil {
		trigger = internal.NewChanTrigger(o.ticks)
	} else {
		trigger = internal.NewTickerTrigger(config.FlushInterval())
	}
	a.flusher, err = internal.NewFlusher(internal.FlusherParams{
		Aggregator:   a.aggregator,
		Sink:         s,
		Trigger:      trigger,
		Bus:          bus,
		Tally:        a.tally,
		Logger:       o.logger,
		FlushTimeout: config.FlushTimeout(),
		Now:          o.now,
	})
	if err != nil {
		trigger.Stop()
		return nil, err
	}

	if o.registerer != nil {
		metrics, err := telemetry.NewMetrics(o.registerer, func() float64 {
			return float64(a.aggregator.Len())
		})
		if err != nil {
			trigger.Stop()
			return nil, err
		}
		metrics.Subscribe(bus)
	}
	if o.onError != nil {
		a.forwardErrors(o.onError)
	}
	return a, nil
}

func (a *Accountant) forwardErrors(handle func(error)) {
	a.bus.SubscribeAll(func(e infra.Event) {
		switch ev := e.(type) {
		case internal.InputRejectedEvent:
			// Under the reject policy the caller already has the error.
			if a.config.InvalidInputPolicy().IsDrop() {
				handle(ev.Err)
			}
		case internal.OverflowClampedEvent:
			handle(fmt.Errorf("%w: %s/%s/%s at %s clamped, %d discarded", specs.ErrOverflow,
				ev.Key.Resource(), ev.Key.Feature(), ev.Key.Unit(), ev.Key.BucketStart().Format(time.RFC3339), ev.Excess))
		case internal.RecordDroppedEvent:
			handle(&internal.DeliveryError{Record: ev.Record, Err: ev.Err})
		case internal.SinkDeliveryFailedEvent:
			handle(ev.Err)
		case internal.ShutdownTimedOutEvent:
			handle(ev.Err)
		}
	})
}

func (a *Accountant) overflowed(key internal.BucketKey, excess int64) {
	a.tally.AddClamped(key.Unit(), excess)
	a.bus.Publish(internal.OverflowClampedEvent{Key: key, Excess: excess})
	a.logger.Warn("usage quantity clamped",
		zap.String("resource", key.Resource()),
		zap.String("feature", key.Feature()),
		zap.String("unit", key.Unit()),
		zap.Time("bucket_start", key.BucketStart()),
		zap.Int64("excess", excess),
	)
}

// Start launches the background flush loop.
func (a *Accountant) Start() error {
	return a.flusher.Start()
}

// Record adds amount of unit consumed on resource by feature now.
func (a *Accountant) Record(resource, feature, unit string, amount int64) error {
	return a.RecordAt(resource, feature, unit, amount, a.now())
}

// RecordAt is Record with an explicit timestamp. Usage for a bucket that was
// already flushed is counted in the current bucket.
func (a *Accountant) RecordAt(resource, feature, unit string, amount int64, ts time.Time) error {
	err := a.aggregator.Record(resource, feature, unit, amount, ts)
	var invalid *internal.InvalidInputError
	if !errors.As(err, &invalid) {
		return err
	}

	a.bus.Publish(internal.InputRejectedEvent{
		Err:      invalid,
		Resource: resource,
		Feature:  feature,
		Unit:     unit,
		Amount:   amount,
	})
	if !a.config.InvalidInputPolicy().IsDrop() {
		return err
	}
	a.logger.Warn("usage input dropped",
		zap.String("resource", resource),
		zap.String("feature", feature),
		zap.String("unit", unit),
		zap.Int64("amount", amount),
		zap.Error(err),
	)
	return nil
}

// Flush delivers every bucket closed at the current time without waiting for
// the next tick.
func (a *Accountant) Flush(ctx context.Context) (specs.FlushReportSpec, error) {
	report, err := a.flusher.FlushAt(ctx, a.now())
	return report.ToSpec(), err
}

// Shutdown stops the flush loop, delivers every bucket including the current
// one and waits up to timeout for the sink to confirm. A non-positive timeout
// uses the configured shutdown timeout. On timeout the returned error wraps
// specs.ErrShutdownTimeout and reports the unflushed record count.
func (a *Accountant) Shutdown(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = a.config.ShutdownTimeout()
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return a.flusher.Shutdown(ctx)
}

func (a *Accountant) Stats() specs.StatsSpec {
	return specs.StatsSpec{
		LiveSlots: a.aggregator.Len(),
		Units:     a.tally.ToSpec(),
	}
}
