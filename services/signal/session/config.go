// Copyright (C) 2026 Meridian Score (engineering@meridianscore.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/meridianscore/meridian/pkg/logging"
)

// configValidate is the validator instance for session configuration.
var configValidate = validator.New()

// Duration is a time.Duration that additionally unmarshals from YAML
// strings like "30s" or "1h". Bare integers are taken as nanoseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw any
	if err := value.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case int:
		*d = Duration(v)
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration value %v", raw)
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// TimeoutConfig holds per-collector budgets.
type TimeoutConfig struct {
	DigitalFootprint Duration `json:"digital_footprint" yaml:"digital_footprint"`
	DeviceProfile    Duration `json:"device_profile" yaml:"device_profile"`
	Location         Duration `json:"location" yaml:"location"`
	Utility          Duration `json:"utility" yaml:"utility"`
}

// RemoteConfig holds the scoring backend client settings.
type RemoteConfig struct {
	// URL of the scoring endpoint. Empty disables remote scoring and
	// every assessment uses the local fallback path.
	URL string `json:"url" yaml:"url" validate:"omitempty,url"`

	// Timeout bounds one scoring request.
	Timeout Duration `json:"timeout" yaml:"timeout"`

	// RequestsPerSecond limits outbound scoring calls.
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" validate:"gte=0"`
}

// Config is the session configuration.
//
// Thread Safety: Safe to read concurrently. Not safe to modify after
// the session is created.
type Config struct {
	// StorePath is the directory for the persistent store. Required
	// unless InMemoryStore is set.
	StorePath string `json:"store_path" yaml:"store_path"`

	// InMemoryStore disables disk persistence. For testing.
	InMemoryStore bool `json:"in_memory_store" yaml:"in_memory_store"`

	// RefreshInterval is the background refresh tick interval.
	RefreshInterval Duration `json:"refresh_interval" yaml:"refresh_interval"`

	// Timeouts holds per-collector budgets.
	Timeouts TimeoutConfig `json:"timeouts" yaml:"timeouts"`

	// Weights is the per-source weight table. Nil uses the built-in
	// defaults. When set, values must sum to 1.0 (±0.001).
	Weights map[string]float64 `json:"weights" yaml:"weights"`

	// Remote configures the scoring backend client.
	Remote RemoteConfig `json:"remote" yaml:"remote"`

	// Logging configures the logger the session constructs when none is
	// injected through Deps. Ignored when Deps.Logger is set.
	Logging logging.Config `json:"logging" yaml:"logging"`

	// PreserveRemoteAssessment, when set, stops a background refresh
	// cycle from overwriting the cache while the latest assessment is
	// remote-authoritative. Explicit cycles always write.
	PreserveRemoteAssessment bool `json:"preserve_remote_assessment" yaml:"preserve_remote_assessment"`
}

// DefaultConfig returns production defaults with persistence rooted at
// the given path.
func DefaultConfig(storePath string) Config {
	cfg := Config{StorePath: storePath}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued fields with defaults.
func (c *Config) ApplyDefaults() {
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = Duration(time.Hour)
	}
	if c.Timeouts.DigitalFootprint <= 0 {
		c.Timeouts.DigitalFootprint = Duration(5 * time.Second)
	}
	if c.Timeouts.DeviceProfile <= 0 {
		c.Timeouts.DeviceProfile = Duration(5 * time.Second)
	}
	if c.Timeouts.Location <= 0 {
		// Location fixes are slow; they get the largest budget.
		c.Timeouts.Location = Duration(15 * time.Second)
	}
	if c.Timeouts.Utility <= 0 {
		c.Timeouts.Utility = Duration(5 * time.Second)
	}
	if c.Remote.Timeout <= 0 {
		c.Remote.Timeout = Duration(10 * time.Second)
	}
	if c.Remote.RequestsPerSecond <= 0 {
		c.Remote.RequestsPerSecond = 1
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if !c.InMemoryStore && c.StorePath == "" {
		return errors.New("store_path is required unless in_memory_store is set")
	}
	if c.Weights != nil {
		var sum float64
		for id, w := range c.Weights {
			if w < 0 || w > 1 {
				return fmt.Errorf("weight for %q must be in [0,1], got %v", id, w)
			}
			sum += w
		}
		if sum < 0.999 || sum > 1.001 {
			return fmt.Errorf("weights must sum to 1.0, got %v", sum)
		}
	}
	return nil
}

// LoadConfig reads a YAML config file, applies defaults, and validates.
func LoadConfig(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
