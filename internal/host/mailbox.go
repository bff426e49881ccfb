package host

import (
	"context"
	"fmt"
	"sync"

	"firestige.xyz/lansim/internal/core"
)

// Mailbox holds at most one undelivered payload per transport port. A second
// payload for the same port waits until the first is taken.
type Mailbox struct {
	mu    sync.Mutex
	slots map[uint16]chan []byte
}

// NewMailbox creates an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{slots: make(map[uint16]chan []byte)}
}

// slot returns the one-deep queue for port, creating it on first use.
func (m *Mailbox) slot(port uint16) chan []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.slots[port]
	if !ok {
		ch = make(chan []byte, 1)
		m.slots[port] = ch
	}
	return ch
}

// Put stores payload for port, blocking while an earlier payload for the
// same port is still pending. As with port.Channel, a free slot is filled
// even when ctx is already done; ctx only ends a wait.
func (m *Mailbox) Put(ctx context.Context, port uint16, payload []byte) error {
	ch := m.slot(port)
	select {
	case ch <- payload:
		return nil
	default:
	}

	select {
	case ch <- payload:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: mailbox port %d: %w", core.ErrInterrupted, port, ctx.Err())
	}
}

// Take removes and returns the pending payload for port without blocking.
func (m *Mailbox) Take(port uint16) ([]byte, bool) {
	m.mu.Lock()
	ch, ok := m.slots[port]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	select {
	case payload := <-ch:
		return payload, true
	default:
		return nil, false
	}
}

// Pending reports whether a payload is waiting on port.
func (m *Mailbox) Pending(port uint16) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.slots[port]
	return ok && len(ch) > 0
}

// Len returns the number of ports holding a payload.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, ch := range m.slots {
		n += len(ch)
	}
	return n
}
