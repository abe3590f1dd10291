package specs

import "errors"

// Error taxonomy shared by the accountant, the aggregation engine and sinks.
// Concrete errors wrap one of these so callers can classify with errors.Is.
var (
	// ErrInvalidInput is returned for empty or malformed identifiers and
	// negative amounts. State is never mutated for a rejected input.
	ErrInvalidInput = errors.New("invalid usage input")

	// ErrOverflow marks a quantity that was clamped at the maximum value.
	ErrOverflow = errors.New("usage quantity overflow")

	// ErrSinkUnavailable is wrapped by sinks when the transport cannot be
	// reached or does not answer in time.
	ErrSinkUnavailable = errors.New("sink unavailable")

	// ErrSinkRejected is wrapped by sinks when the destination refused a payload.
	ErrSinkRejected = errors.New("sink rejected payload")

	// ErrShutdownTimeout is returned when the final flush did not complete
	// before the shutdown deadline.
	ErrShutdownTimeout = errors.New("shutdown timed out")

	// ErrStopped is returned by operations invoked after shutdown.
	ErrStopped = errors.New("accountant stopped")
)
