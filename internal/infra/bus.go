package infra

import "sync"

// EventType represents the type of event in the system
type EventType int

const (
	InputRejected EventType = iota
	OverflowClamped
	RecordDelivered
	RecordDropped
	FlushCompleted
	ShutdownTimedOut
	SinkDeliveryFailed
)

// String returns the string representation of the EventType
func (et EventType) String() string {
	switch et {
	case InputRejected:
		return "InputRejected"
	case OverflowClamped:
		return "OverflowClamped"
	case RecordDelivered:
		return "RecordDelivered"
	case RecordDropped:
		return "RecordDropped"
	case FlushCompleted:
		return "FlushCompleted"
	case ShutdownTimedOut:
		return "ShutdownTimedOut"
	case SinkDeliveryFailed:
		return "SinkDeliveryFailed"
	default:
		return "Unknown"
	}
}

type Event interface{ EventType() EventType }
type Handler func(Event)

// Bus dispatches events synchronously on the publishing goroutine. Handlers
// must not block; they run on the flush loop and, for rejections and
// overflows, on the caller of Record.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Handler
}

func NewBus() *Bus { return &Bus{subs: map[EventType][]Handler{}} }

func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	handlers := b.subs[e.EventType()]
	b.mu.RUnlock()
	for _, h := range handlers {
		h(e)
	}
}

func (b *Bus) Subscribe(evt EventType, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	// Copy so a concurrent Publish keeps iterating its own snapshot.
	handlers := make([]Handler, 0, len(b.subs[evt])+1)
	handlers = append(handlers, b.subs[evt]...)
	b.subs[evt] = append(handlers, h)
}

// SubscribeAll registers h for every event type.
func (b *Bus) SubscribeAll(h Handler) {
	for evt := InputRejected; evt <= SinkDeliveryFailed; evt++ {
		b.Subscribe(evt, h)
	}
}
