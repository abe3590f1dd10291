package specs

import (
	"context"
	"fmt"
)

// Sink accepts serialized usage payloads and delivers them to durable storage,
// typically a message broker.
//
// Submit may buffer. Flush blocks until everything submitted so far has been
// confirmed by the destination or ctx is done. A sink that confirms
// asynchronously reports what it could not deliver with an *UndeliveredError
// so the caller can resubmit or account for the payloads. Implementations wrap
// ErrSinkUnavailable or ErrSinkRejected so failures can be classified.
//
// A Sink that also implements io.Closer is closed by the accountant at the end
// of shutdown. One that implements CloseContext(context.Context) error is
// closed with the shutdown deadline instead.
type Sink interface {
	Submit(ctx context.Context, payload []byte) error
	Flush(ctx context.Context) error
}

// UndeliveredError is returned by Sink.Flush for payloads accepted by Submit
// but not delivered.
type UndeliveredError struct {
	// Payloads whose delivery failed since the previous Flush. Each can be
	// submitted again.
	Payloads [][]byte

	// Number of payloads still outstanding when ctx ended. Their outcome is
	// unknown; failures among them are reported by a later Flush.
	Unconfirmed int

	Err error
}

func (e *UndeliveredError) Error() string {
	return fmt.Sprintf("%d payloads undelivered, %d unconfirmed: %v", len(e.Payloads), e.Unconfirmed, e.Err)
}

func (e *UndeliveredError) Unwrap() error {
	return e.Err
}
