package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chrisconley/accountant/specs"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	DefaultBatchSize    = 100
	DefaultBatchTimeout = 10 * time.Millisecond
	DefaultQueueSize    = 10000
	DefaultWriteTimeout = 10 * time.Second

	// FlushIDHeader carries the id of the flush cycle a message belongs to.
	FlushIDHeader = "flush_id"
)

// Writer is the subset of kafka.Writer the sink needs. Tests inject a fake.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaOption func(*Kafka)

func WithKafkaLogger(logger *zap.Logger) KafkaOption {
	return func(k *Kafka) {
		if logger != nil {
			k.logger = logger
		}
	}
}

// WithDeliveryErrorHandler registers fn to be called from the delivery worker
// for every failed batch.
func WithDeliveryErrorHandler(fn func(error)) KafkaOption {
	return func(k *Kafka) {
		k.onError = fn
	}
}

// Kafka produces payloads to a topic asynchronously. Submit only enqueues; a
// single worker writes batches. Payloads of failed batches are kept until the
// next Flush, which returns them in a *specs.UndeliveredError.
type Kafka struct {
	writer       Writer
	batchSize    int
	writeTimeout time.Duration
	logger       *zap.Logger
	onError      func(error)

	queue chan kafka.Message
	stop  chan struct{}
	done  chan struct{}

	// writes is the parent of every write context; CloseContext cancels it
	// when its deadline passes.
	writes       context.Context
	cancelWrites context.CancelFunc

	mu       sync.Mutex
	inFlight int
	idle     chan struct{}
	failed   [][]byte
	lastErr  error
	closed   bool
	closeErr error
	once     sync.Once
}

// NewKafka builds a kafka.Writer from cfg and starts the delivery worker.
func NewKafka(cfg specs.KafkaSinkConfigSpec, opts ...KafkaOption) (*Kafka, error) {
	cfg = withKafkaDefaults(cfg)
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one kafka broker is required")
	}
	acks, err := parseRequiredAcks(cfg.RequiredAcks)
	if err != nil {
		return nil, err
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: acks,
		WriteTimeout: cfg.WriteTimeout,
	}
	return NewKafkaWithWriter(w, cfg, opts...), nil
}

// NewKafkaWithWriter allows injecting a test writer. Only the batching and
// queue settings of cfg are used.
func NewKafkaWithWriter(w Writer, cfg specs.KafkaSinkConfigSpec, opts ...KafkaOption) *Kafka {
	cfg = withKafkaDefaults(cfg)
	k := &Kafka{
		writer:       w,
		batchSize:    cfg.BatchSize,
		writeTimeout: cfg.WriteTimeout,
		logger:       zap.NewNop(),
		queue:        make(chan kafka.Message, cfg.QueueSize),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	k.writes, k.cancelWrites = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(k)
	}
	go k.run()
	return k
}

func withKafkaDefaults(cfg specs.KafkaSinkConfigSpec) specs.KafkaSinkConfigSpec {
	if cfg.Topic == "" {
		cfg.Topic = specs.DefaultTopic
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = DefaultBatchTimeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	return cfg
}

func parseRequiredAcks(value string) (kafka.RequiredAcks, error) {
	switch strings.ToLower(value) {
	case "", "all":
		return kafka.RequireAll, nil
	case "one":
		return kafka.RequireOne, nil
	case "none":
		return kafka.RequireNone, nil
	default:
		return 0, fmt.Errorf("unknown required acks %q", value)
	}
}

// Submit enqueues payload. It blocks while the queue is full and fails with
// ErrSinkUnavailable if ctx ends first.
func (k *Kafka) Submit(ctx context.Context, payload []byte) error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return specs.ErrStopped
	}
	k.begin()
	k.mu.Unlock()

	msg := kafka.Message{Value: append([]byte(nil), payload...)}
	if id, ok := specs.FlushIDFromContext(ctx); ok {
		msg.Headers = []kafka.Header{{Key: FlushIDHeader, Value: []byte(id.String())}}
	}

	select {
	case k.queue <- msg:
		return nil
	case <-ctx.Done():
		k.finish(1, nil, nil)
		return fmt.Errorf("%w: queue full: %w", specs.ErrSinkUnavailable, ctx.Err())
	}
}

// Flush waits until every submitted message has been written or failed. It
// returns a *specs.UndeliveredError holding the payloads that failed since the
// previous Flush, and counting those still in flight if ctx ended first.
func (k *Kafka) Flush(ctx context.Context) error {
	k.mu.Lock()
	idle := k.idle
	pending := k.inFlight
	k.mu.Unlock()

	var waitErr error
	if pending > 0 {
		select {
		case <-idle:
		case <-ctx.Done():
			waitErr = ctx.Err()
		}
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if waitErr == nil && len(k.failed) == 0 {
		return nil
	}
	err := &specs.UndeliveredError{Payloads: k.failed, Err: k.lastErr}
	if waitErr != nil {
		err.Unconfirmed = k.inFlight
		err.Err = errors.Join(k.lastErr,
			fmt.Errorf("%w: %d messages unconfirmed: %w", specs.ErrSinkUnavailable, k.inFlight, waitErr))
	}
	k.failed, k.lastErr = nil, nil
	return err
}

// Close stops accepting payloads, waits for the queue to drain and closes the
// writer.
func (k *Kafka) Close() error {
	return k.CloseContext(context.Background())
}

// CloseContext is Close bounded by ctx. When ctx ends first the write in
// progress is cancelled, queued messages are abandoned and the returned error
// counts every message that was not delivered.
func (k *Kafka) CloseContext(ctx context.Context) error {
	k.once.Do(func() {
		k.mu.Lock()
		k.closed = true
		idle := k.idle
		pending := k.inFlight
		k.mu.Unlock()

		var waitErr error
		if pending > 0 {
			select {
			case <-idle:
			case <-ctx.Done():
				waitErr = ctx.Err()
			}
		}

		k.cancelWrites()
		close(k.stop)
		<-k.done

		k.mu.Lock()
		lost := k.inFlight + len(k.failed)
		k.mu.Unlock()

		k.closeErr = k.writer.Close()
		if waitErr != nil {
			k.logger.Error("kafka sink closed before delivery completed", zap.Int("messages", lost), zap.Error(waitErr))
			k.closeErr = errors.Join(
				fmt.Errorf("%w: %d messages abandoned: %w", specs.ErrSinkUnavailable, lost, waitErr),
				k.closeErr,
			)
		}
	})
	return k.closeErr
}

// begin must be called with mu held.
func (k *Kafka) begin() {
	if k.inFlight == 0 {
		k.idle = make(chan struct{})
	}
	k.inFlight++
}

// finish settles n in-flight messages. Failed messages are kept for the next
// Flush.
func (k *Kafka) finish(n int, failed []kafka.Message, err error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err != nil {
		for _, msg := range failed {
			k.failed = append(k.failed, msg.Value)
		}
		k.lastErr = err
	}
	k.inFlight -= n
	if k.inFlight == 0 {
		close(k.idle)
	}
}

func (k *Kafka) run() {
	defer close(k.done)
	batch := make([]kafka.Message, 0, k.batchSize)
	for {
		select {
		case <-k.stop:
			return
		case msg := <-k.queue:
			batch = append(batch[:0], msg)
		fill:
			for len(batch) < k.batchSize {
				select {
				case next := <-k.queue:
					batch = append(batch, next)
				default:
					break fill
				}
			}
			k.write(batch)
		}
	}
}

func (k *Kafka) write(batch []kafka.Message) {
	ctx, cancel := context.WithTimeout(k.writes, k.writeTimeout)
	defer cancel()

	err := k.writer.WriteMessages(ctx, batch...)
	if err != nil {
		err = fmt.Errorf("%w: write %d messages: %w", specs.ErrSinkUnavailable, len(batch), err)
		k.logger.Error("kafka delivery failed", zap.Int("messages", len(batch)), zap.Error(err))
		if k.onError != nil {
			k.onError(err)
		}
	}
	k.finish(len(batch), batch, err)
}
