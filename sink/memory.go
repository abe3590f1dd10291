// Package sink provides the destinations usage payloads can be delivered to.
package sink

import (
	"context"
	"fmt"
	"sync"

	"github.com/chrisconley/accountant/internal"
	"github.com/chrisconley/accountant/specs"
)

// Memory keeps every accepted payload in memory. It is meant for tests and
// local runs.
type Memory struct {
	mu       sync.Mutex
	payloads [][]byte
	failures int
	failErr  error
	closed   bool
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Submit(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", specs.ErrSinkUnavailable, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return specs.ErrStopped
	}
	if m.failures > 0 {
		m.failures--
		return m.failErr
	}
	m.payloads = append(m.payloads, append([]byte(nil), payload...))
	return nil
}

func (m *Memory) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", specs.ErrSinkUnavailable, err)
	}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// FailNext makes the next n Submit calls return err. A nil err fails with
// ErrSinkUnavailable.
func (m *Memory) FailNext(n int, err error) {
	if err == nil {
		err = specs.ErrSinkUnavailable
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = n
	m.failErr = err
}

// Payloads returns a copy of the accepted payloads in submission order.
func (m *Memory) Payloads() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.payloads))
	copy(out, m.payloads)
	return out
}

// Messages decodes every accepted payload.
func (m *Memory) Messages() ([]specs.MessageSpec, error) {
	payloads := m.Payloads()
	messages := make([]specs.MessageSpec, 0, len(payloads))
	for _, payload := range payloads {
		message, err := internal.ParseMessage(payload)
		if err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	return messages, nil
}

func (m *Memory) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
