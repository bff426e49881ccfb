package port

import (
	"context"
	"net/netip"
	"sync"

	"firestige.xyz/lansim/internal/core"
)

// NetworkCard is the host side of a cable plugged into a switch port.
type NetworkCard interface {
	// Address returns the card's fixed network address.
	Address() netip.Addr
	// DeliverFromNetwork hands a packet arriving from the switch to the host.
	DeliverFromNetwork(ctx context.Context, pkt []byte) error
}

// Port is one numbered port on the front of a switch.
type Port struct {
	number  int
	channel *Channel

	mu   sync.RWMutex
	card NetworkCard
	addr netip.Addr
}

// New creates port number n with nothing attached.
func New(n int) *Port {
	return &Port{number: n, channel: NewChannel()}
}

func (p *Port) Number() int       { return p.number }
func (p *Port) Channel() *Channel { return p.channel }

// Connect attaches card to the port and records its address.
func (p *Port) Connect(card NetworkCard) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.card = card
	p.addr = card.Address()
}

// Address returns the address of the attached card, if any.
func (p *Port) Address() (netip.Addr, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.addr, p.card != nil
}

// Attached reports whether a card is plugged in.
func (p *Port) Attached() bool {
	_, ok := p.Address()
	return ok
}

// SendToNetwork is used by the attached host to push a packet into the switch.
func (p *Port) SendToNetwork(ctx context.Context, pkt []byte) error {
	return p.channel.Put(ctx, pkt)
}

// TakeIncoming is used by the switch to poll the port.
func (p *Port) TakeIncoming() ([]byte, bool) {
	return p.channel.Take()
}

// SendToHost passes pkt on to the attached card. It blocks as long as the
// card does.
func (p *Port) SendToHost(ctx context.Context, pkt []byte) error {
	p.mu.RLock()
	card := p.card
	p.mu.RUnlock()
	if card == nil {
		return core.ErrNotConnected
	}
	return card.DeliverFromNetwork(ctx, pkt)
}
