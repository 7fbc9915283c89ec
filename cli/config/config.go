// Package config handles YAML scenario file loading for assay run.
package config

import (
	"fmt"
	"time"
)

// Config represents an assay scenario YAML file.
// All values act as defaults for assay run flags; CLI flags always
// override config values.
type Config struct {
	Scenario   string            `yaml:"scenario"`
	Limits     LimitsConfig      `yaml:"limits"`
	Evaluation string            `yaml:"evaluation"`
	Features   FeaturesConfig    `yaml:"features"`
	Multiplier *MultiplierConfig `yaml:"multiplier,omitempty"`
	Gates      []GateConfig      `yaml:"gates,omitempty"`
	Audit      AuditConfig       `yaml:"audit"`
	Storage    StorageConfig     `yaml:"storage"`
	Adapter    AdapterConfig     `yaml:"adapter"`
}

// LimitsConfig holds the velocity limits. Empty strings and nil
// pointers mean unlimited; validation of present values happens at
// scenario build.
type LimitsConfig struct {
	DailyAttempts *int64 `yaml:"daily_attempts,omitempty"`
	DailyAmount   string `yaml:"daily_amount,omitempty"`
	WeeklyAmount  string `yaml:"weekly_amount,omitempty"`
}

// FeaturesConfig toggles feature tags.
type FeaturesConfig struct {
	// PrimeID enables the is_prime_id tag.
	PrimeID bool `yaml:"prime_id"`
}

// MultiplierConfig holds the optional risk multiplier.
type MultiplierConfig struct {
	Factor string `yaml:"factor"`
	// Tag restricts the multiplier to tagged events; empty applies it
	// to every event.
	Tag string `yaml:"tag,omitempty"`
}

// GateConfig is one scenario global gate definition.
type GateConfig struct {
	Name           string `yaml:"name"`
	Tag            string `yaml:"tag,omitempty"`
	AmountCap      string `yaml:"amount_cap,omitempty"`
	DailyAcceptCap *int64 `yaml:"daily_accept_cap,omitempty"`
}

// AuditConfig holds audit stream defaults.
type AuditConfig struct {
	Enabled bool `yaml:"enabled"`
	// Encoding selects the audit encoding: jsonl (default) or frame.
	Encoding string `yaml:"encoding,omitempty"`
	// FlushCount overrides the audit sink batch size.
	FlushCount int `yaml:"flush_count,omitempty"`
}

// StorageConfig holds audit storage defaults.
type StorageConfig struct {
	// Backend selects fs (filesystem) or s3.
	Backend     string `yaml:"backend,omitempty"`
	Path        string `yaml:"path,omitempty"`
	Region      string `yaml:"region,omitempty"`
	Endpoint    string `yaml:"endpoint,omitempty"`
	S3PathStyle bool   `yaml:"s3_path_style,omitempty"`
}

// AdapterConfig holds notification adapter defaults.
type AdapterConfig struct {
	Type    string            `yaml:"type,omitempty"`
	URL     string            `yaml:"url,omitempty"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s",
// "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}
