package specs

import (
	"context"

	"github.com/google/uuid"
)

type flushIDKey struct{}

// ContextWithFlushID tags ctx with the flush cycle a Submit belongs to. Sinks
// may forward it, e.g. as a message header, to correlate deliveries.
func ContextWithFlushID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, flushIDKey{}, id)
}

// FlushIDFromContext returns the flush cycle identifier set by ContextWithFlushID.
func FlushIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(flushIDKey{}).(uuid.UUID)
	return id, ok
}
