// Package port implements the link between a host's network card and one
// port of the switch.
package port

import (
	"context"
	"fmt"

	"firestige.xyz/lansim/internal/core"
)

// Channel is a single-slot hand-off buffer. The attached host is its only
// writer and the switch forwarding loop its only reader, so at most one
// packet is ever in transit on a link.
type Channel struct {
	slot chan []byte
}

// NewChannel creates an empty channel.
func NewChannel() *Channel {
	return &Channel{slot: make(chan []byte, 1)}
}

// Put stores pkt, blocking while the previous packet has not been taken.
// There is no timeout; the wait ends only when the slot drains or ctx is done.
// A free slot always wins: ctx is only consulted once Put has to wait, so a
// cancelled ctx interrupts a waiting Put and never a Put that can proceed.
func (c *Channel) Put(ctx context.Context, pkt []byte) error {
	select {
	case c.slot <- pkt:
		return nil
	default:
	}

	select {
	case c.slot <- pkt:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: put packet: %w", core.ErrInterrupted, ctx.Err())
	}
}

// Take removes the pending packet and returns a copy of it. It never blocks.
func (c *Channel) Take() ([]byte, bool) {
	select {
	case pkt := <-c.slot:
		out := make([]byte, len(pkt))
		copy(out, pkt)
		return out, true
	default:
		return nil, false
	}
}

// Pending reports whether a packet is waiting in the slot.
func (c *Channel) Pending() bool {
	return len(c.slot) > 0
}
