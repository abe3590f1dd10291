package internal

import (
	"github.com/chrisconley/accountant/internal/infra"
	"github.com/google/uuid"
)

type InputRejectedEvent struct {
	Err      *InvalidInputError
	Resource string
	Feature  string
	Unit     string
	Amount   int64
}

func (e InputRejectedEvent) EventType() infra.EventType { return infra.InputRejected }

// OverflowClampedEvent is published once per Record call that saturated a slot.
type OverflowClampedEvent struct {
	Key    BucketKey
	Excess int64
}

func (e OverflowClampedEvent) EventType() infra.EventType { return infra.OverflowClamped }

type RecordDeliveredEvent struct {
	FlushID uuid.UUID
	Record  UsageRecord
}

func (e RecordDeliveredEvent) EventType() infra.EventType { return infra.RecordDelivered }

type RecordDroppedEvent struct {
	FlushID uuid.UUID
	Record  UsageRecord
	Err     error
}

func (e RecordDroppedEvent) EventType() infra.EventType { return infra.RecordDropped }

type FlushCompletedEvent struct {
	Report FlushReport
}

func (e FlushCompletedEvent) EventType() infra.EventType { return infra.FlushCompleted }

type ShutdownTimedOutEvent struct {
	Unflushed int
	Err       error
}

func (e ShutdownTimedOutEvent) EventType() infra.EventType { return infra.ShutdownTimedOut }

// SinkDeliveryFailedEvent carries failures a sink only learns about after
// Submit returned, such as an asynchronous produce error.
type SinkDeliveryFailedEvent struct {
	Err error
}

func (e SinkDeliveryFailedEvent) EventType() infra.EventType { return infra.SinkDeliveryFailed }
