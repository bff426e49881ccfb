package config

import (
	"fmt"
	"net/netip"
	"time"

	"firestige.xyz/lansim/internal/core"
)

// ScenarioConfig is a list of messages to push through the network.
type ScenarioConfig struct {
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Steps   []Step        `mapstructure:"steps" yaml:"steps"`
}

// Step sends one payload from a named host.
// Transport ports outside 0..65535 are accepted here: the host drops
// such sends silently, and a scenario may exercise exactly that.
type Step struct {
	From    string     `mapstructure:"from" yaml:"from"`
	To      netip.Addr `mapstructure:"to" yaml:"to"`
	SrcPort int        `mapstructure:"src_port" yaml:"src_port"`
	DstPort int        `mapstructure:"dst_port" yaml:"dst_port"`
	Payload string     `mapstructure:"payload" yaml:"payload"`
}

// Validate checks every step against the configured hosts.
func (sc *ScenarioConfig) Validate(hosts []HostConfig) error {
	if sc.Timeout <= 0 {
		return fmt.Errorf("%w: scenario.timeout must be positive", core.ErrConfigInvalid)
	}

	known := make(map[string]bool, len(hosts))
	for _, h := range hosts {
		known[h.Name] = true
	}

	for i := range sc.Steps {
		step := &sc.Steps[i]
		if !known[step.From] {
			return fmt.Errorf("%w: scenario.steps[%d]: %w: %q", core.ErrConfigInvalid, i, core.ErrHostNotFound, step.From)
		}
		addr, err := core.CheckAddress(step.To)
		if err != nil {
			return fmt.Errorf("%w: scenario.steps[%d]: %w", core.ErrConfigInvalid, i, err)
		}
		step.To = addr
	}
	return nil
}
