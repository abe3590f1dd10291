package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chrisconley/accountant/internal/infra"
	"github.com/chrisconley/accountant/specs"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type FlusherState int32

const (
	Idle FlusherState = iota
	Scheduled
	Flushing
	Stopped
)

func (s FlusherState) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Scheduled:
		return "Scheduled"
	case Flushing:
		return "Flushing"
	case Stopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// FlushReport summarizes one flush cycle.
type FlushReport struct {
	ID        uuid.UUID
	At        time.Time
	Drained   int
	Delivered int
	Dropped   int

	// Unconfirmed records were submitted but the sink could not confirm them
	// before the cycle's deadline.
	Unconfirmed int
	Duration    time.Duration
}

func (r FlushReport) ToSpec() specs.FlushReportSpec {
	return specs.FlushReportSpec{
		ID:          r.ID,
		At:          r.At,
		Drained:     r.Drained,
		Delivered:   r.Delivered,
		Dropped:     r.Dropped,
		Unconfirmed: r.Unconfirmed,
		Duration:    r.Duration,
	}
}

// Flusher periodically drains closed buckets from an Aggregator and submits
// them to a Sink. Record never waits on it.
type Flusher struct {
	aggregator   *Aggregator
	sink         specs.Sink
	trigger      Trigger
	bus          *infra.Bus
	tally        *Tally
	logger       *zap.Logger
	flushTimeout time.Duration
	now          func() time.Time

	state flusherState

	// lifecycle guards Start and Shutdown; cycle serializes flush cycles.
	lifecycle  sync.Mutex
	cycle      sync.Mutex
	started    bool
	stop       chan struct{}
	done       chan struct{}
	loopCtx    context.Context
	cancelLoop context.CancelFunc
}

type flusherState struct {
	v atomic.Int32
}

func (s *flusherState) Load() FlusherState {
	return FlusherState(s.v.Load())
}

func (s *flusherState) Swap(state FlusherState) FlusherState {
	return FlusherState(s.v.Swap(int32(state)))
}

func (s *flusherState) CompareAndSwap(old, state FlusherState) bool {
	return s.v.CompareAndSwap(int32(old), int32(state))
}

type FlusherParams struct {
	Aggregator   *Aggregator
	Sink         specs.Sink
	Trigger      Trigger
	Bus          *infra.Bus
	Tally        *Tally
	Logger       *zap.Logger
	FlushTimeout time.Duration
	Now          func() time.Time
}

func NewFlusher(params FlusherParams) (*Flusher, error) {
	if params.Aggregator == nil {
		return nil, fmt.Errorf("aggregator is required")
	}
	if params.Sink == nil {
		return nil, fmt.Errorf("sink is required")
	}
	if params.Trigger == nil {
		return nil, fmt.Errorf("trigger is required")
	}

	f := &Flusher{
		aggregator:   params.Aggregator,
		sink:         params.Sink,
		trigger:      params.Trigger,
		bus:          params.Bus,
		tally:        params.Tally,
		logger:       params.Logger,
		flushTimeout: params.FlushTimeout,
		now:          params.Now,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	if f.bus == nil {
		f.bus = infra.NewBus()
	}
	if f.tally == nil {
		f.tally = NewTally()
	}
	if f.logger == nil {
		f.logger = zap.NewNop()
	}
	if f.flushTimeout <= 0 {
		f.flushTimeout = DefaultFlushTimeout
	}
	if f.now == nil {
		f.now = time.Now
	}
	f.loopCtx, f.cancelLoop = context.WithCancel(context.Background())
	return f, nil
}

func (f *Flusher) State() FlusherState {
	return f.state.Load()
}

// Start arms the trigger and launches the flush loop.
func (f *Flusher) Start() error {
	f.lifecycle.Lock()
	defer f.lifecycle.Unlock()

	switch f.state.Load() {
	case Stopped:
		return specs.ErrStopped
	case Idle:
	default:
		return nil
	}

	f.state.Swap(Scheduled)
	f.started = true
	go f.loop()
	f.logger.Info("usage flusher started", zap.Duration("granularity", f.aggregator.Granularity()))
	return nil
}

func (f *Flusher) loop() {
	defer close(f.done)
	ticks := f.trigger.C()
	for {
		select {
		case <-f.stop:
			return
		case t, ok := <-ticks:
			if !ok {
				// Trigger exhausted; only shutdown remains.
				ticks = nil
				continue
			}
			_, _ = f.FlushAt(f.loopCtx, t)
		}
	}
}

// FlushAt drains every bucket closed at now, submits the records and waits up
// to the flush timeout for the sink to confirm them. Records the sink could
// not take or deliver are resubmitted once, then dropped and reported; the
// returned error joins one DeliveryError per dropped record and notes records
// left unconfirmed.
func (f *Flusher) FlushAt(ctx context.Context, now time.Time) (FlushReport, error) {
	f.cycle.Lock()
	defer f.cycle.Unlock()

	if f.state.Load() == Stopped {
		return FlushReport{}, specs.ErrStopped
	}
	if f.state.CompareAndSwap(Scheduled, Flushing) {
		defer f.state.CompareAndSwap(Flushing, Scheduled)
	}

	ctx, cancel := context.WithTimeout(ctx, f.flushTimeout)
	defer cancel()

	begin := time.Now()
	records := f.aggregator.Drain(now)
	report, err := f.deliver(ctx, records, now)
	report.Duration = time.Since(begin)

	f.bus.Publish(FlushCompletedEvent{Report: report})
	f.logger.Debug("usage flush completed",
		zap.String("flush_id", report.ID.String()),
		zap.Time("at", report.At),
		zap.Int("drained", report.Drained),
		zap.Int("delivered", report.Delivered),
		zap.Int("dropped", report.Dropped),
		zap.Int("unconfirmed", report.Unconfirmed),
		zap.Duration("duration", report.Duration),
	)
	return report, err
}

// submission is a payload handed to the sink and the record it encodes.
type submission struct {
	payload []byte
	record  UsageRecord
}

// cycle accumulates the outcome of one delivery pass.
type cycle struct {
	f      *Flusher
	ctx    context.Context
	report FlushReport
	errs   []error
}

// deliver submits records, then flushes the sink. Payloads the sink reports
// as failed get one more submit and flush before they are dropped.
func (f *Flusher) deliver(ctx context.Context, records []UsageRecord, at time.Time) (FlushReport, error) {
	c := &cycle{f: f, report: FlushReport{ID: uuid.New(), At: at, Drained: len(records)}}
	c.ctx = specs.ContextWithFlushID(ctx, c.report.ID)

	pending := make(map[string]UsageRecord, len(records))
	for _, record := range records {
		f.tally.AddDrained(record.Unit().ToString(), record.Quantity().ToInt64())

		payload, err := Format(record)
		if err == nil {
			err = f.submit(c.ctx, payload)
		}
		if err != nil {
			c.drop(record, err)
			continue
		}
		pending[string(payload)] = record
	}

	failed, _ := c.confirm(pending)
	if len(failed) == 0 {
		return c.report, errors.Join(c.errs...)
	}

	f.logger.Warn("usage delivery failed, resubmitting", zap.Int("records", len(failed)))
	retried := make(map[string]UsageRecord, len(failed))
	for _, s := range failed {
		if err := f.sink.Submit(c.ctx, s.payload); err != nil {
			c.drop(s.record, fmt.Errorf("resubmit failed: %w", err))
			continue
		}
		retried[string(s.payload)] = s.record
	}
	failed, err := c.confirm(retried)
	for _, s := range failed {
		c.drop(s.record, fmt.Errorf("delivery failed after retry: %w", err))
	}
	return c.report, errors.Join(c.errs...)
}

// submit hands one payload to the sink, re-submitting once on failure.
func (f *Flusher) submit(ctx context.Context, payload []byte) error {
	err := f.sink.Submit(ctx, payload)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}

	f.logger.Warn("usage submit failed, retrying", zap.Error(err))
	if retryErr := f.sink.Submit(ctx, payload); retryErr != nil {
		return fmt.Errorf("submit failed after retry: %w", retryErr)
	}
	return nil
}

// confirm flushes the sink and settles the pending submissions. Payloads the
// sink reports as failed are returned together with the sink error; they may
// include payloads left unconfirmed by an earlier cycle.
func (c *cycle) confirm(pending map[string]UsageRecord) ([]submission, error) {
	err := c.f.sink.Flush(c.ctx)
	if err == nil {
		c.delivered(pending)
		return nil, nil
	}

	var undelivered *specs.UndeliveredError
	if !errors.As(err, &undelivered) {
		c.unconfirmed(pending, err)
		return nil, err
	}

	var failed []submission
	for _, payload := range undelivered.Payloads {
		record, ok := pending[string(payload)]
		if ok {
			delete(pending, string(payload))
		} else {
			var parseErr error
			record, parseErr = RecordFromPayload(payload, c.f.aggregator.Granularity())
			if parseErr != nil {
				c.f.logger.Error("undelivered usage payload is unreadable",
					zap.ByteString("payload", payload), zap.Error(parseErr))
				continue
			}
		}
		failed = append(failed, submission{payload: payload, record: record})
	}
	if undelivered.Unconfirmed > 0 {
		c.unconfirmed(pending, err)
	} else {
		c.delivered(pending)
	}

	slices.SortFunc(failed, func(a, b submission) int {
		return a.record.Key().Compare(b.record.Key())
	})
	return failed, err
}

func (c *cycle) delivered(pending map[string]UsageRecord) {
	for _, record := range sortedRecords(pending) {
		c.report.Delivered++
		c.f.tally.AddDelivered(record.Unit().ToString(), record.Quantity().ToInt64())
		c.f.bus.Publish(RecordDeliveredEvent{FlushID: c.report.ID, Record: record})
	}
}

func (c *cycle) unconfirmed(pending map[string]UsageRecord, err error) {
	if len(pending) == 0 {
		return
	}
	c.report.Unconfirmed += len(pending)
	c.errs = append(c.errs, fmt.Errorf("%d usage records unconfirmed: %w", len(pending), err))
	c.f.logger.Warn("usage records unconfirmed",
		zap.String("flush_id", c.report.ID.String()),
		zap.Int("records", len(pending)),
		zap.Error(err),
	)
}

func (c *cycle) drop(record UsageRecord, err error) {
	unit := record.Unit().ToString()
	amount := record.Quantity().ToInt64()
	c.report.Dropped++
	c.f.tally.AddDropped(unit, amount)
	c.f.bus.Publish(RecordDroppedEvent{FlushID: c.report.ID, Record: record, Err: err})
	c.f.logger.Error("usage record dropped",
		zap.String("flush_id", c.report.ID.String()),
		zap.String("resource", record.Resource().ToString()),
		zap.String("feature", record.Feature().ToString()),
		zap.String("unit", unit),
		zap.Time("bucket_start", record.Bucket().Start()),
		zap.Int64("amount", amount),
		zap.Error(err),
	)
	c.errs = append(c.errs, &DeliveryError{Record: record, Err: err})
}

func sortedRecords(byPayload map[string]UsageRecord) []UsageRecord {
	records := make([]UsageRecord, 0, len(byPayload))
	for _, record := range byPayload {
		records = append(records, record)
	}
	sortRecords(records)
	return records
}

// Shutdown stops the loop, drains every remaining bucket including open ones,
// submits them and waits for the sink to confirm delivery. If ctx ends first
// it returns a ShutdownTimeoutError with the number of records dropped or left
// unconfirmed. The sink is closed with the same deadline.
func (f *Flusher) Shutdown(ctx context.Context) error {
	f.lifecycle.Lock()
	prev := f.state.Swap(Stopped)
	if prev == Stopped {
		f.lifecycle.Unlock()
		return nil
	}
	f.trigger.Stop()
	if f.started {
		close(f.stop)
		select {
		case <-f.done:
		case <-ctx.Done():
			f.cancelLoop()
			<-f.done
		}
	}
	f.cancelLoop()
	f.lifecycle.Unlock()

	f.cycle.Lock()
	defer f.cycle.Unlock()

	begin := time.Now()
	records := f.aggregator.DrainAll()
	report, deliverErr := f.deliver(ctx, records, f.now())
	report.Duration = time.Since(begin)
	f.bus.Publish(FlushCompletedEvent{Report: report})

	closeErr := f.closeSink(ctx)

	unflushed := report.Dropped + report.Unconfirmed
	if ctx.Err() != nil && unflushed > 0 {
		err := &ShutdownTimeoutError{Unflushed: unflushed, Err: errors.Join(deliverErr, closeErr)}
		f.bus.Publish(ShutdownTimedOutEvent{Unflushed: unflushed, Err: err})
		f.logger.Error("usage shutdown timed out", zap.Int("unflushed", unflushed), zap.Error(err))
		return err
	}

	f.logger.Info("usage flusher stopped",
		zap.String("flush_id", report.ID.String()),
		zap.Int("drained", report.Drained),
		zap.Int("delivered", report.Delivered),
		zap.Int("dropped", report.Dropped),
	)
	return errors.Join(deliverErr, closeErr)
}

// contextCloser is implemented by sinks whose Close can be bounded.
type contextCloser interface {
	CloseContext(ctx context.Context) error
}

func (f *Flusher) closeSink(ctx context.Context) error {
	switch s := f.sink.(type) {
	case contextCloser:
		return s.CloseContext(ctx)
	case io.Closer:
		return s.Close()
	}
	return nil
}
