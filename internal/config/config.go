// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"firestige.xyz/lansim/internal/core"
)

// Config represents the top-level configuration.
// Maps to the `lansim:` root key in YAML.
type Config struct {
	Switch   SwitchConfig   `mapstructure:"switch" yaml:"switch"`
	Hosts    []HostConfig   `mapstructure:"hosts" yaml:"hosts"`
	Scenario ScenarioConfig `mapstructure:"scenario" yaml:"scenario"`
	Tap      TapConfig      `mapstructure:"tap" yaml:"tap"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

// ─── Switch ───

// SwitchConfig describes the simulated switch.
type SwitchConfig struct {
	Ports        int           `mapstructure:"ports" yaml:"ports"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"` // 0 = poll continuously
}

// ─── Tap ───

// TapConfig configures the pcap mirror of switched traffic.
type TapConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
	Filter  string `mapstructure:"filter" yaml:"filter"` // e.g. "dst 10.0.0.2 and port 20"
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level" yaml:"level"`   // trace / debug / info / warn / error
	Format  string           `mapstructure:"format" yaml:"format"` // json / text
	Pattern string           `mapstructure:"pattern" yaml:"pattern"`
	Time    string           `mapstructure:"time" yaml:"time"`
	Outputs LogOutputsConfig `mapstructure:"outputs" yaml:"outputs"`
}

// LogOutputsConfig contains extra log destinations; stdout is always on.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file" yaml:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled" yaml:"enabled"`
	Path     string         `mapstructure:"path" yaml:"path"`
	Rotation RotationConfig `mapstructure:"rotation" yaml:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days" yaml:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool `mapstructure:"compress" yaml:"compress"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `lansim: ...`.
type configRoot struct {
	Lansim Config `mapstructure:"lansim" yaml:"lansim"`
}

// Load loads configuration from file. An empty path yields the defaults
// plus any LANSIM_* environment overrides (e.g. LANSIM_LOG_LEVEL).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var root configRoot
	if err := v.Unmarshal(&root, viper.DecodeHook(decodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Lansim

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// decodeHook lets YAML strings populate durations and netip.Addr fields.
func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	)
}

// setDefaults sets default values for configuration.
// All keys use the "lansim." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Switch defaults
	v.SetDefault("lansim.switch.ports", 4)
	v.SetDefault("lansim.switch.poll_interval", "100ms")

	// Scenario defaults
	v.SetDefault("lansim.scenario.timeout", "5s")

	// Tap defaults
	v.SetDefault("lansim.tap.enabled", false)
	v.SetDefault("lansim.tap.path", "lansim.pcap")

	// Metrics defaults
	v.SetDefault("lansim.metrics.enabled", false)
	v.SetDefault("lansim.metrics.listen", ":9092")
	v.SetDefault("lansim.metrics.path", "/metrics")

	// Log defaults
	v.SetDefault("lansim.log.level", "info")
	v.SetDefault("lansim.log.format", "text")
	v.SetDefault("lansim.log.pattern", "%time [%level] %field %msg\n")
	v.SetDefault("lansim.log.time", "2006-01-02 15:04:05.000")
	v.SetDefault("lansim.log.outputs.file.enabled", false)
	v.SetDefault("lansim.log.outputs.file.path", "lansim.log")
	v.SetDefault("lansim.log.outputs.file.rotation.max_size_mb", 10)
	v.SetDefault("lansim.log.outputs.file.rotation.max_age_days", 7)
	v.SetDefault("lansim.log.outputs.file.rotation.max_backups", 3)
	v.SetDefault("lansim.log.outputs.file.rotation.compress", false)
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *Config) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("%w: invalid log level: %s (must be trace/debug/info/warn/error)", core.ErrConfigInvalid, cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("%w: invalid log format: %s (must be json/text)", core.ErrConfigInvalid, cfg.Log.Format)
	}
	if cfg.Log.Outputs.File.Enabled && cfg.Log.Outputs.File.Path == "" {
		return fmt.Errorf("%w: log.outputs.file.path is required when file output is enabled", core.ErrConfigInvalid)
	}

	// ── Switch validation ──
	if cfg.Switch.Ports < 1 {
		return fmt.Errorf("%w: switch.ports must be at least 1, got %d", core.ErrConfigInvalid, cfg.Switch.Ports)
	}
	if cfg.Switch.PollInterval < 0 {
		return fmt.Errorf("%w: switch.poll_interval must not be negative", core.ErrConfigInvalid)
	}

	// ── Hosts ──
	if err := cfg.validateHosts(); err != nil {
		return err
	}

	// ── Scenario ──
	if err := cfg.Scenario.Validate(cfg.Hosts); err != nil {
		return err
	}

	// ── Tap ──
	if cfg.Tap.Enabled && cfg.Tap.Path == "" {
		return fmt.Errorf("%w: tap.path is required when tap.enabled=true", core.ErrConfigInvalid)
	}

	// ── Metrics ──
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return fmt.Errorf("%w: metrics.listen is required when metrics.enabled=true", core.ErrConfigInvalid)
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	return nil
}
