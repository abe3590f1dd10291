package infra

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type testDeliveredEvent struct {
	Resource string
	Amount   int64
}

func (e testDeliveredEvent) EventType() EventType {
	return RecordDelivered
}

type testDroppedEvent struct {
	Resource string
	Reason   string
}

func (e testDroppedEvent) EventType() EventType {
	return RecordDropped
}

func TestEventTypeEnum(t *testing.T) {
	t.Run("EventType.String() returns correct values", func(t *testing.T) {
		// Arrange & Act & Assert
		assert.Equal(t, "InputRejected", InputRejected.String())
		assert.Equal(t, "RecordDelivered", RecordDelivered.String())
		assert.Equal(t, "ShutdownTimedOut", ShutdownTimedOut.String())
		assert.Equal(t, "SinkDeliveryFailed", SinkDeliveryFailed.String())
		assert.Equal(t, "Unknown", EventType(999).String())
	})
}

func TestBusWithEnumEventTypes(t *testing.T) {
	t.Run("can subscribe to and publish events using enum types", func(t *testing.T) {
		// Arrange
		bus := NewBus()
		var receivedEvents []Event

		handler := func(e Event) {
			receivedEvents = append(receivedEvents, e)
		}

		bus.Subscribe(RecordDelivered, handler)
		bus.Subscribe(RecordDropped, handler)

		// Act
		bus.Publish(testDeliveredEvent{Resource: "blob-storage", Amount: 1024})
		bus.Publish(testDroppedEvent{Resource: "blob-storage", Reason: "broker down"})

		// Assert
		assert.Len(t, receivedEvents, 2)
		assert.Equal(t, RecordDelivered, receivedEvents[0].EventType())
		assert.Equal(t, RecordDropped, receivedEvents[1].EventType())
	})

	t.Run("handlers only receive events they subscribed to", func(t *testing.T) {
		// Arrange
		bus := NewBus()
		var delivered []Event
		var dropped []Event

		bus.Subscribe(RecordDelivered, func(e Event) { delivered = append(delivered, e) })
		bus.Subscribe(RecordDropped, func(e Event) { dropped = append(dropped, e) })

		// Act
		bus.Publish(testDeliveredEvent{Resource: "blob-storage", Amount: 1024})
		bus.Publish(testDroppedEvent{Resource: "queue", Reason: "rejected"})

		// Assert
		assert.Len(t, delivered, 1)
		assert.Len(t, dropped, 1)
		assert.Equal(t, "queue", dropped[0].(testDroppedEvent).Resource)
	})

	t.Run("subscribe all receives every event type", func(t *testing.T) {
		// Arrange
		bus := NewBus()
		var received []Event
		bus.SubscribeAll(func(e Event) { received = append(received, e) })

		// Act
		bus.Publish(testDeliveredEvent{})
		bus.Publish(testDroppedEvent{})

		// Assert
		assert.Len(t, received, 2)
	})

	t.Run("publishing without subscribers is a no-op", func(t *testing.T) {
		bus := NewBus()

		assert.NotPanics(t, func() { bus.Publish(testDeliveredEvent{}) })
	})

	t.Run("subscribing while publishing is safe", func(t *testing.T) {
		bus := NewBus()
		var mu sync.Mutex
		count := 0
		var wg sync.WaitGroup

		for i := 0; i < 4; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				bus.Subscribe(RecordDelivered, func(Event) {
					mu.Lock()
					count++
					mu.Unlock()
				})
			}()
			go func() {
				defer wg.Done()
				bus.Publish(testDeliveredEvent{})
			}()
		}
		wg.Wait()

		count = 0
		bus.Publish(testDeliveredEvent{})
		assert.Equal(t, 4, count)
	})
}
