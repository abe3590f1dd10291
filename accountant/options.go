package accountant

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type options struct {
	logger     *zap.Logger
	now        func() time.Time
	ticks      <-chan time.Time
	registerer prometheus.Registerer
	onError    func(error)
}

type Option func(*options)

func newOptions(opts []Option) options {
	o := options{
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock replaces time.Now for Record and for the final shutdown drain.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithTicks drives the flush loop from c instead of a ticker at the flush
// interval. Each value received is used as the drain time.
func WithTicks(c <-chan time.Time) Option {
	return func(o *options) {
		o.ticks = c
	}
}

// WithMetrics registers the accountant's Prometheus collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithErrorHandler receives every error the accountant cannot return to a
// caller: dropped records, asynchronous sink failures, overflow clamps,
// shutdown timeouts, and inputs discarded under the drop policy.
func WithErrorHandler(fn func(error)) Option {
	return func(o *options) {
		o.onError = fn
	}
}
