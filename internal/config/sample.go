package config

import (
	"fmt"
	"net/netip"
	"time"

	"gopkg.in/yaml.v3"
)

// Sample returns a small two-host configuration with every default filled in.
func Sample() *Config {
	cfg, err := Load("")
	if err != nil {
		// The built-in defaults always validate.
		panic(err)
	}
	cfg.Switch.Ports = 2
	cfg.Hosts = []HostConfig{
		{Name: "alice", Address: netip.MustParseAddr("10.0.0.1"), Port: 0},
		{Name: "bob", Address: netip.MustParseAddr("10.0.0.2"), Port: 1},
	}
	cfg.Scenario = ScenarioConfig{
		Timeout: 5 * time.Second,
		Steps: []Step{
			{From: "alice", To: netip.MustParseAddr("10.0.0.2"), SrcPort: 10, DstPort: 20, Payload: "hello bob"},
			{From: "bob", To: netip.MustParseAddr("10.0.0.1"), SrcPort: 20, DstPort: 10, Payload: "hello alice"},
		},
	}
	return cfg
}

// Marshal renders cfg as a YAML document under the `lansim:` root key,
// readable again by Load.
func Marshal(cfg *Config) ([]byte, error) {
	out, err := yaml.Marshal(configRoot{Lansim: *cfg})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return out, nil
}
