package config

import (
	"fmt"
	"net/netip"

	"firestige.xyz/lansim/internal/core"
)

// HostConfig describes one computer and the switch port its cable is in.
type HostConfig struct {
	Name    string     `mapstructure:"name" yaml:"name"`
	Address netip.Addr `mapstructure:"address" yaml:"address"`
	Port    int        `mapstructure:"port" yaml:"port"`
}

func (cfg *Config) validateHosts() error {
	names := make(map[string]bool, len(cfg.Hosts))
	addrs := make(map[netip.Addr]string, len(cfg.Hosts))
	ports := make(map[int]string, len(cfg.Hosts))

	for i := range cfg.Hosts {
		h := &cfg.Hosts[i]
		if h.Name == "" {
			return fmt.Errorf("%w: hosts[%d].name is required", core.ErrConfigInvalid, i)
		}
		if names[h.Name] {
			return fmt.Errorf("%w: duplicate host name %q", core.ErrConfigInvalid, h.Name)
		}
		names[h.Name] = true

		addr, err := core.CheckAddress(h.Address)
		if err != nil {
			return fmt.Errorf("%w: host %q: %w", core.ErrConfigInvalid, h.Name, err)
		}
		h.Address = addr
		if other, ok := addrs[addr]; ok {
			return fmt.Errorf("%w: hosts %q and %q share address %s", core.ErrConfigInvalid, other, h.Name, addr)
		}
		addrs[addr] = h.Name

		if h.Port < 0 || h.Port >= cfg.Switch.Ports {
			return fmt.Errorf("%w: host %q: port %d outside 0..%d", core.ErrConfigInvalid, h.Name, h.Port, cfg.Switch.Ports-1)
		}
		if other, ok := ports[h.Port]; ok {
			return fmt.Errorf("%w: hosts %q and %q share switch port %d", core.ErrConfigInvalid, other, h.Name, h.Port)
		}
		ports[h.Port] = h.Name
	}
	return nil
}
