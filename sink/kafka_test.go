package sink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chrisconley/accountant/specs"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWriter records batches. Writes block while gate is non-nil and open.
type fakeWriter struct {
	mu      sync.Mutex
	batches [][]kafka.Message
	fail    error
	gate    chan struct{}
	closed  bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.batches = append(f.batches, append([]kafka.Message(nil), msgs...))
	return nil
}

func (f *fakeWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeWriter) messages() []kafka.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []kafka.Message
	for _, b := range f.batches {
		out = append(out, b...)
	}
	return out
}

func TestKafka(t *testing.T) {
	t.Run("flush waits until submitted payloads are written", func(t *testing.T) {
		fw := &fakeWriter{}
		k := NewKafkaWithWriter(fw, specs.KafkaSinkConfigSpec{BatchSize: 2})
		defer k.Close()
		ctx := context.Background()

		for _, resource := range []string{"a", "b", "c"} {
			require.NoError(t, k.Submit(ctx, newPayload(t, resource, 1)))
		}
		require.NoError(t, k.Flush(ctx))

		msgs := fw.messages()
		require.Len(t, msgs, 3)
		for _, batch := range fw.batches {
			assert.LessOrEqual(t, len(batch), 2)
		}
	})

	t.Run("tags messages with the flush id", func(t *testing.T) {
		fw := &fakeWriter{}
		k := NewKafkaWithWriter(fw, specs.KafkaSinkConfigSpec{})
		defer k.Close()
		id := uuid.New()

		require.NoError(t, k.Submit(specs.ContextWithFlushID(context.Background(), id), newPayload(t, "a", 1)))
		require.NoError(t, k.Flush(context.Background()))

		msgs := fw.messages()
		require.Len(t, msgs, 1)
		require.Len(t, msgs[0].Headers, 1)
		assert.Equal(t, FlushIDHeader, msgs[0].Headers[0].Key)
		assert.Equal(t, id.String(), string(msgs[0].Headers[0].Value))
	})

	t.Run("reports delivery failures to the handler and the next flush", func(t *testing.T) {
		boom := errors.New("broker down")
		fw := &fakeWriter{fail: boom}
		var handled []error
		var mu sync.Mutex
		k := NewKafkaWithWriter(fw, specs.KafkaSinkConfigSpec{}, WithDeliveryErrorHandler(func(err error) {
			mu.Lock()
			defer mu.Unlock()
			handled = append(handled, err)
		}))
		defer k.Close()
		ctx := context.Background()

		payload := newPayload(t, "a", 1)
		require.NoError(t, k.Submit(ctx, payload))
		err := k.Flush(ctx)

		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.ErrorIs(t, err, specs.ErrSinkUnavailable)
		var undelivered *specs.UndeliveredError
		require.ErrorAs(t, err, &undelivered)
		assert.Equal(t, [][]byte{payload}, undelivered.Payloads)
		assert.Zero(t, undelivered.Unconfirmed)
		mu.Lock()
		assert.Len(t, handled, 1)
		mu.Unlock()

		assert.NoError(t, k.Flush(ctx), "failures are reported once")
	})

	t.Run("flush gives up when the context ends", func(t *testing.T) {
		fw := &fakeWriter{gate: make(chan struct{})}
		k := NewKafkaWithWriter(fw, specs.KafkaSinkConfigSpec{})
		require.NoError(t, k.Submit(context.Background(), newPayload(t, "a", 1)))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		err := k.Flush(ctx)

		assert.ErrorIs(t, err, specs.ErrSinkUnavailable)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		var undelivered *specs.UndeliveredError
		require.ErrorAs(t, err, &undelivered)
		assert.Equal(t, 1, undelivered.Unconfirmed)

		close(fw.gate)
		require.NoError(t, k.Close())
	})

	t.Run("submit fails when the queue stays full", func(t *testing.T) {
		fw := &fakeWriter{gate: make(chan struct{})}
		k := NewKafkaWithWriter(fw, specs.KafkaSinkConfigSpec{QueueSize: 1, BatchSize: 1})
		ctx := context.Background()

		// One message is held by the blocked writer, one fills the queue.
		require.NoError(t, k.Submit(ctx, newPayload(t, "a", 1)))
		require.Eventually(t, func() bool { return len(k.queue) == 0 }, time.Second, time.Millisecond)
		require.NoError(t, k.Submit(ctx, newPayload(t, "b", 1)))

		short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		err := k.Submit(short, newPayload(t, "c", 1))

		assert.ErrorIs(t, err, specs.ErrSinkUnavailable)

		close(fw.gate)
		require.NoError(t, k.Flush(ctx))
		assert.Len(t, fw.messages(), 2)
		require.NoError(t, k.Close())
	})

	t.Run("close with a deadline abandons a stalled queue", func(t *testing.T) {
		fw := &fakeWriter{gate: make(chan struct{})}
		k := NewKafkaWithWriter(fw, specs.KafkaSinkConfigSpec{BatchSize: 1, WriteTimeout: time.Minute})
		for _, resource := range []string{"a", "b", "c"} {
			require.NoError(t, k.Submit(context.Background(), newPayload(t, resource, 1)))
		}
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		begin := time.Now()
		err := k.CloseContext(ctx)

		assert.Less(t, time.Since(begin), 5*time.Second)
		assert.ErrorIs(t, err, specs.ErrSinkUnavailable)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.ErrorContains(t, err, "3 messages abandoned")
		assert.True(t, fw.closed)
		assert.Empty(t, fw.messages())
	})

	t.Run("close drains the queue and closes the writer", func(t *testing.T) {
		fw := &fakeWriter{}
		k := NewKafkaWithWriter(fw, specs.KafkaSinkConfigSpec{})

		require.NoError(t, k.Submit(context.Background(), newPayload(t, "a", 1)))
		require.NoError(t, k.Close())

		assert.Len(t, fw.messages(), 1)
		assert.True(t, fw.closed)
		assert.ErrorIs(t, k.Submit(context.Background(), newPayload(t, "b", 1)), specs.ErrStopped)
		assert.NoError(t, k.Close())
	})
}

func TestNewKafka(t *testing.T) {
	t.Run("requires a broker", func(t *testing.T) {
		_, err := NewKafka(specs.KafkaSinkConfigSpec{})

		assert.ErrorContains(t, err, "broker")
	})

	t.Run("rejects unknown acks", func(t *testing.T) {
		_, err := NewKafka(specs.KafkaSinkConfigSpec{Brokers: []string{"localhost:9092"}, RequiredAcks: "some"})

		assert.ErrorContains(t, err, "unknown required acks")
	})

	t.Run("parses required acks", func(t *testing.T) {
		cases := map[string]kafka.RequiredAcks{
			"":     kafka.RequireAll,
			"all":  kafka.RequireAll,
			"ONE":  kafka.RequireOne,
			"none": kafka.RequireNone,
		}
		for value, want := range cases {
			got, err := parseRequiredAcks(value)
			require.NoError(t, err)
			assert.Equal(t, want, got, value)
		}
	})
}
