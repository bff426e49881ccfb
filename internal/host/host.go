// Package host models a computer on the simulated LAN: the operating system
// calls applications use, and the network card the switch delivers to.
package host

import (
	"context"
	"fmt"
	"net/netip"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"firestige.xyz/lansim/internal/core"
	"firestige.xyz/lansim/internal/log"
	"firestige.xyz/lansim/internal/metrics"
	"firestige.xyz/lansim/internal/packet"
	"firestige.xyz/lansim/internal/port"
)

// OS is the set of services a host offers to its applications.
type OS interface {
	Hostname() string
	Send(ctx context.Context, payload []byte, dst netip.Addr, srcPort, dstPort int) error
	Recv(port int) ([]byte, bool)
}

var (
	_ OS               = (*Host)(nil)
	_ port.NetworkCard = (*Host)(nil)
)

// Host is a computer with a single network card.
type Host struct {
	name    string
	addr    netip.Addr
	logger  log.Logger
	mailbox *Mailbox

	mu   sync.Mutex
	port *port.Port

	sent     prometheus.Counter
	received prometheus.Counter
	ignored  prometheus.Counter
	pending  prometheus.Gauge
}

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the logger used by the host.
func WithLogger(l log.Logger) Option {
	return func(h *Host) { h.logger = l }
}

// New creates a host. addr must be an IPv4 address.
func New(name string, addr netip.Addr, opts ...Option) (*Host, error) {
	addr, err := core.CheckAddress(addr)
	if err != nil {
		return nil, fmt.Errorf("host %q: %w", name, err)
	}
	h := &Host{
		name:     name,
		addr:     addr,
		logger:   log.GetLogger(),
		mailbox:  NewMailbox(),
		sent:     metrics.HostPacketsTotal.WithLabelValues(name, metrics.DirectionSent),
		received: metrics.HostPacketsTotal.WithLabelValues(name, metrics.DirectionReceived),
		ignored:  metrics.HostPacketsTotal.WithLabelValues(name, metrics.DirectionIgnored),
		pending:  metrics.MailboxPending.WithLabelValues(name),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.WithField("host", name)
	return h, nil
}

func (h *Host) Hostname() string    { return h.name }
func (h *Host) Address() netip.Addr { return h.addr }

// ConnectPort plugs the host's cable into a switch port.
func (h *Host) ConnectPort(p *port.Port) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.port = p
}

// Send frames payload and pushes it into the attached switch port, blocking
// until the port has room. If either srcPort or dstPort is outside
// 0..65535, Send is a silent no-op: it returns nil and nothing is framed.
func (h *Host) Send(ctx context.Context, payload []byte, dst netip.Addr, srcPort, dstPort int) error {
	if !core.ValidTransportPort(dstPort) || !core.ValidTransportPort(srcPort) {
		h.ignored.Inc()
		if h.logger.IsTraceEnabled() {
			h.logger.Tracef("ignoring send %d -> %s:%d: transport port out of range", srcPort, dst, dstPort)
		}
		return nil
	}

	h.mu.Lock()
	p := h.port
	pkt, err := packet.Encode(packet.Header{
		Src:     h.addr,
		Dst:     dst,
		SrcPort: uint16(srcPort),
		DstPort: uint16(dstPort),
	}, payload)
	h.mu.Unlock()

	if err != nil {
		return fmt.Errorf("send to %s: %w", dst, err)
	}
	if p == nil {
		return fmt.Errorf("send to %s: %w", dst, core.ErrNotConnected)
	}

	// The hand-off may block; no host lock is held here.
	if err := p.SendToNetwork(ctx, pkt); err != nil {
		return fmt.Errorf("send to %s: %w", dst, err)
	}
	h.sent.Inc()
	if h.logger.IsDebugEnabled() {
		h.logger.Debugf("sent %d bytes %d -> %s:%d", len(payload), srcPort, dst, dstPort)
	}
	return nil
}

// Recv returns the payload waiting on port, if any. It never blocks;
// applications poll.
func (h *Host) Recv(port int) ([]byte, bool) {
	if !core.ValidTransportPort(port) {
		return nil, false
	}
	payload, ok := h.mailbox.Take(uint16(port))
	if ok {
		h.pending.Dec()
	}
	return payload, ok
}

// DeliverFromNetwork stores the payload of pkt in the mailbox slot named by
// its destination port, waiting while that slot is occupied.
func (h *Host) DeliverFromNetwork(ctx context.Context, pkt []byte) error {
	dstPort, err := packet.DestinationPort(pkt)
	if err != nil {
		return fmt.Errorf("host %s: %w", h.name, err)
	}
	body, _ := packet.Payload(pkt)
	payload := make([]byte, len(body))
	copy(payload, body)

	// Counted before Put so a Recv racing the hand-off never drives the
	// gauge below zero.
	h.pending.Inc()
	if err := h.mailbox.Put(ctx, dstPort, payload); err != nil {
		h.pending.Dec()
		return fmt.Errorf("host %s: %w", h.name, err)
	}
	h.received.Inc()
	if h.logger.IsDebugEnabled() {
		h.logger.Debugf("received %d bytes on port %d", len(payload), dstPort)
	}
	return nil
}

// Mailbox exposes the host's receive mailbox.
func (h *Host) Mailbox() *Mailbox {
	return h.mailbox
}
