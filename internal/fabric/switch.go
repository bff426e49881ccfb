// Package fabric implements the network switch: a fixed set of ports, an
// address-learning forwarding table and a single forwarding loop.
package fabric

import (
	"context"
	"fmt"
	"net/netip"
	"runtime"
	"sync"
	"time"

	"firestige.xyz/lansim/internal/core"
	"firestige.xyz/lansim/internal/log"
	"firestige.xyz/lansim/internal/metrics"
	"firestige.xyz/lansim/internal/packet"
	"firestige.xyz/lansim/internal/port"
)

// DefaultPollInterval is the pause between two scans of the ports.
const DefaultPollInterval = 100 * time.Millisecond

// State is the power state of a switch.
type State int32

const (
	StateUnpowered State = iota
	StatePowered
)

func (s State) String() string {
	switch s {
	case StateUnpowered:
		return "unpowered"
	case StatePowered:
		return "powered"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Mirror receives a copy of every packet the forwarding loop routes or
// drops, together with the final outcome (one of the metrics.Result*
// values). Routed packets are mirrored once the host has accepted,
// rejected or abandoned them, before the outcome is counted in Stats.
type Mirror interface {
	Mirror(result string, pkt []byte)
}

// cable is implemented by cards that want to learn which port they are
// plugged into.
type cable interface {
	ConnectPort(p *port.Port)
}

// Switch is an Ethernet-like switch with a fixed number of ports.
type Switch struct {
	ports        []*port.Port
	pollInterval time.Duration
	mirror       Mirror
	logger       log.Logger
	stats        Stats

	mu    sync.Mutex
	state State
	// table is written once by PowerUp and only read afterwards.
	table map[netip.Addr]int
	done  chan struct{}
}

// Option configures a Switch.
type Option func(*Switch)

// WithPollInterval sets the pause between port scans. Zero scans
// continuously, yielding the processor between scans.
func WithPollInterval(d time.Duration) Option {
	return func(s *Switch) { s.pollInterval = d }
}

// WithMirror copies routed and dropped packets to m.
func WithMirror(m Mirror) Option {
	return func(s *Switch) { s.mirror = m }
}

// WithLogger sets the logger used by the switch.
func WithLogger(l log.Logger) Option {
	return func(s *Switch) { s.logger = l }
}

// New creates a switch with numPorts empty ports.
func New(numPorts int, opts ...Option) (*Switch, error) {
	if numPorts < 1 {
		return nil, fmt.Errorf("%w: switch needs at least one port, got %d", core.ErrConfigInvalid, numPorts)
	}
	s := &Switch{
		ports:        make([]*port.Port, numPorts),
		pollInterval: DefaultPollInterval,
		logger:       log.GetLogger(),
		table:        make(map[netip.Addr]int),
		done:         make(chan struct{}),
	}
	for i := range s.ports {
		s.ports[i] = port.New(i)
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pollInterval < 0 {
		return nil, fmt.Errorf("%w: negative poll interval %s", core.ErrConfigInvalid, s.pollInterval)
	}
	s.logger = s.logger.WithField("component", "switch")
	return s, nil
}

// NumPorts returns the number of ports on the switch.
func (s *Switch) NumPorts() int {
	return len(s.ports)
}

// Port returns port i.
func (s *Switch) Port(i int) (*port.Port, error) {
	if i < 0 || i >= len(s.ports) {
		return nil, fmt.Errorf("%w: %d (switch has %d ports)", core.ErrPortOutOfRange, i, len(s.ports))
	}
	return s.ports[i], nil
}

// ConnectHost plugs card into port i. Cards connected after PowerUp are not
// in the forwarding table; the loop still polls them and reaches them
// through its fallback scan.
func (s *Switch) ConnectHost(i int, card port.NetworkCard) error {
	p, err := s.Port(i)
	if err != nil {
		return fmt.Errorf("connect host: %w", err)
	}
	addr, err := core.CheckAddress(card.Address())
	if err != nil {
		return fmt.Errorf("connect host: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p.Attached() {
		return fmt.Errorf("connect host %s: %w: %d", addr, core.ErrPortInUse, i)
	}
	for _, other := range s.ports {
		if a, ok := other.Address(); ok && a == addr {
			return fmt.Errorf("connect host %s: %w on port %d", addr, core.ErrDuplicateAddr, other.Number())
		}
	}

	p.Connect(card)
	if c, ok := card.(cable); ok {
		c.ConnectPort(p)
	}
	if s.state == StatePowered {
		s.logger.WithField("port", i).Infof("host %s plugged into a powered switch", addr)
	}
	return nil
}

// PowerUp learns the address behind every attached port and starts the
// forwarding loop. The loop runs until ctx is done.
func (s *Switch) PowerUp(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StatePowered {
		return core.ErrAlreadyPowered
	}
	for i, p := range s.ports {
		addr, ok := p.Address()
		if !ok {
			continue
		}
		s.table[addr] = i
	}
	s.state = StatePowered

	s.logger.WithField("hosts", len(s.table)).Infof("switch powered up with %d ports", len(s.ports))
	go s.run(ctx)
	return nil
}

// State returns the current power state.
func (s *Switch) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed when the forwarding loop has exited.
func (s *Switch) Done() <-chan struct{} {
	return s.done
}

// Table returns a copy of the forwarding table.
func (s *Switch) Table() map[netip.Addr]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[netip.Addr]int, len(s.table))
	for addr, i := range s.table {
		out[addr] = i
	}
	return out
}

// Stats returns the current packet counters.
func (s *Switch) Stats() Snapshot {
	return s.stats.Snapshot()
}

// run is the forwarding loop.
func (s *Switch) run(ctx context.Context) {
	defer close(s.done)
	defer s.logger.Info("forwarding loop stopped")

	var tick <-chan time.Time
	if s.pollInterval > 0 {
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		if tick != nil {
			select {
			case <-ctx.Done():
				return
			case <-tick:
			}
		} else {
			select {
			case <-ctx.Done():
				return
			default:
				runtime.Gosched()
			}
		}
		s.poll(ctx)
	}
}

// poll drains each attached port once, in index order.
func (s *Switch) poll(ctx context.Context) {
	for _, p := range s.ports {
		if !p.Attached() {
			continue
		}
		pkt, ok := p.TakeIncoming()
		if !ok {
			continue
		}
		s.forward(ctx, p, pkt)
		if ctx.Err() != nil {
			return
		}
	}
}

// forward routes one packet. A table miss falls back to scanning the
// attached ports; if nothing matches the packet is dropped silently.
func (s *Switch) forward(ctx context.Context, from *port.Port, pkt []byte) {
	s.stats.Received.Add(1)

	dst, err := packet.DestinationAddress(pkt)
	if err != nil {
		s.stats.count(metrics.ResultMalformed)
		s.logger.WithError(err).WithField("port", from.Number()).Warn("cannot decode packet, skipping")
		return
	}

	if i, ok := s.table[dst]; ok {
		s.deliver(ctx, s.ports[i], pkt, metrics.ResultForwarded)
		return
	}

	if to := s.scan(dst); to != nil {
		s.deliver(ctx, to, pkt, metrics.ResultFallback)
		return
	}

	s.mirrorPacket(metrics.ResultDropped, pkt)
	s.stats.count(metrics.ResultDropped)
	if s.logger.IsDebugEnabled() {
		s.logger.WithField("port", from.Number()).Debugf("no route to %s, packet dropped", dst)
	}
}

// scan looks for dst among the attached ports, first match wins.
func (s *Switch) scan(dst netip.Addr) *port.Port {
	for _, p := range s.ports {
		if addr, ok := p.Address(); ok && addr == dst {
			return p
		}
	}
	return nil
}

// deliver hands pkt to the host behind to. It holds the forwarding loop for
// as long as the host's mailbox is full.
func (s *Switch) deliver(ctx context.Context, to *port.Port, pkt []byte, result string) {
	start := time.Now()
	err := to.SendToHost(ctx, pkt)
	metrics.SwitchDeliverSeconds.Observe(time.Since(start).Seconds())

	if err != nil {
		if ctx.Err() != nil {
			s.mirrorPacket(metrics.ResultAborted, pkt)
			s.stats.count(metrics.ResultAborted)
			s.logger.WithError(err).WithField("port", to.Number()).Warn("delivery abandoned, switch shutting down")
			return
		}
		s.mirrorPacket(metrics.ResultDropped, pkt)
		s.stats.count(metrics.ResultDropped)
		s.logger.WithError(err).WithField("port", to.Number()).Warn("host rejected packet")
		return
	}
	s.mirrorPacket(result, pkt)
	s.stats.count(result)
}

func (s *Switch) mirrorPacket(result string, pkt []byte) {
	if s.mirror != nil {
		s.mirror.Mirror(result, pkt)
	}
}
