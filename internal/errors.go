package internal

import (
	"fmt"

	"github.com/chrisconley/accountant/specs"
)

// InvalidInputError describes a rejected Record call.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("%s: %s %s", specs.ErrInvalidInput, e.Field, e.Reason)
}

func (e *InvalidInputError) Unwrap() error {
	return specs.ErrInvalidInput
}

// DeliveryError reports a usage record that could not be handed to the sink.
type DeliveryError struct {
	Record UsageRecord
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s/%s/%s@%s: %v",
		e.Record.Resource().ToString(),
		e.Record.Feature().ToString(),
		e.Record.Unit().ToString(),
		e.Record.Bucket().Start().Format("2006-01-02T15:04:05Z07:00"),
		e.Err,
	)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// ShutdownTimeoutError is returned when the final flush missed its deadline.
type ShutdownTimeoutError struct {
	Unflushed int
	Err       error
}

func (e *ShutdownTimeoutError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %d records unflushed: %v", specs.ErrShutdownTimeout, e.Unflushed, e.Err)
	}
	return fmt.Sprintf("%s: %d records unflushed", specs.ErrShutdownTimeout, e.Unflushed)
}

func (e *ShutdownTimeoutError) Unwrap() []error {
	if e.Err != nil {
		return []error{specs.ErrShutdownTimeout, e.Err}
	}
	return []error{specs.ErrShutdownTimeout}
}
