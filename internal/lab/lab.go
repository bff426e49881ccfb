// Package lab wires a switch and its hosts together from configuration and
// drives scripted traffic through them.
package lab

import (
	"context"
	"fmt"
	"net/netip"

	"firestige.xyz/lansim/internal/config"
	"firestige.xyz/lansim/internal/core"
	"firestige.xyz/lansim/internal/fabric"
	"firestige.xyz/lansim/internal/host"
	"firestige.xyz/lansim/internal/log"
	"firestige.xyz/lansim/internal/tap"
)

// Lab is a switch with its hosts plugged in.
type Lab struct {
	cfg    config.Config
	sw     *fabric.Switch
	hosts  map[string]*host.Host
	byAddr map[netip.Addr]*host.Host
	order  []string
	tap    *tap.Tap
	logger log.Logger
}

// Build creates the switch, the hosts and, if enabled, the pcap tap
// described by cfg. The switch is not powered until Start.
func Build(cfg config.Config) (*Lab, error) {
	l := &Lab{
		cfg:    cfg,
		hosts:  make(map[string]*host.Host, len(cfg.Hosts)),
		byAddr: make(map[netip.Addr]*host.Host, len(cfg.Hosts)),
		logger: log.GetLogger().WithField("component", "lab"),
	}

	opts := []fabric.Option{fabric.WithPollInterval(cfg.Switch.PollInterval)}
	if cfg.Tap.Enabled {
		t, err := tap.Open(cfg.Tap.Path, cfg.Tap.Filter)
		if err != nil {
			return nil, fmt.Errorf("build lab: %w", err)
		}
		l.tap = t
		opts = append(opts, fabric.WithMirror(t))
	}

	sw, err := fabric.New(cfg.Switch.Ports, opts...)
	if err != nil {
		l.Close()
		return nil, fmt.Errorf("build lab: %w", err)
	}
	l.sw = sw

	for _, hc := range cfg.Hosts {
		h, err := host.New(hc.Name, hc.Address)
		if err != nil {
			l.Close()
			return nil, fmt.Errorf("build lab: %w", err)
		}
		if err := sw.ConnectHost(hc.Port, h); err != nil {
			l.Close()
			return nil, fmt.Errorf("build lab: host %q: %w", hc.Name, err)
		}
		l.hosts[hc.Name] = h
		l.byAddr[h.Address()] = h
		l.order = append(l.order, hc.Name)
	}

	l.logger.Infof("lab built: %d hosts on a %d-port switch", len(l.hosts), sw.NumPorts())
	return l, nil
}

// Start powers the switch up. Forwarding stops when ctx is done.
func (l *Lab) Start(ctx context.Context) error {
	return l.sw.PowerUp(ctx)
}

// Host returns the host called name.
func (l *Lab) Host(name string) (*host.Host, error) {
	h, ok := l.hosts[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrHostNotFound, name)
	}
	return h, nil
}

// Hosts returns the host names in configuration order.
func (l *Lab) Hosts() []string {
	return append([]string(nil), l.order...)
}

// Switch returns the lab's switch.
func (l *Lab) Switch() *fabric.Switch {
	return l.sw
}

// Tap returns the pcap tap, or nil when mirroring is off.
func (l *Lab) Tap() *tap.Tap {
	return l.tap
}

// Close releases the tap file.
func (l *Lab) Close() error {
	if l.tap == nil {
		return nil
	}
	return l.tap.Close()
}
