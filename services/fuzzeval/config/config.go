// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates report configuration.
//
// A configuration starts from one of the built-in presets and is overlaid
// by an optional YAML file. Fields absent from the file keep the preset
// value; lists present in the file replace the preset list.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/fuzzeval/pkg/validation"
	"github.com/AleutianAI/fuzzeval/services/fuzzeval/dataset"
	"github.com/AleutianAI/fuzzeval/services/fuzzeval/metrics"
)

// ErrInvalidConfig indicates a configuration that failed validation.
var ErrInvalidConfig = errors.New("invalid config")

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("metric", validateMetric)
}

// validateMetric accepts only known metric names.
func validateMetric(fl validator.FieldLevel) bool {
	return metrics.Name(fl.Field().String()).Known()
}

// Config is the full report configuration.
type Config struct {
	// Report names the preset this configuration was built from.
	Report string `yaml:"report" validate:"omitempty,oneof=bugs coverage overhead execs"`

	// Fuzzers maps raw fuzzer ids to display labels, in column order.
	// Unmapped fuzzers are dropped. Empty keeps every fuzzer as-is.
	Fuzzers dataset.Labels `yaml:"fuzzers" validate:"dive"`

	// Targets is the ordered list of target name prefixes used to match
	// input file names. Empty accepts any target present in the data.
	Targets []string `yaml:"targets" validate:"dive,required"`

	// ExcludeTargets are dropped before any metric is computed.
	ExcludeTargets []string `yaml:"exclude_targets" validate:"dive,required"`

	// Window is the trailing trial window. Zero keeps every trial.
	Window int `yaml:"window" validate:"gte=0"`

	// Alpha is the significance level.
	Alpha float64 `yaml:"alpha" validate:"gt=0,lt=1"`

	Bootstrap BootstrapConfig `yaml:"bootstrap"`

	// Admission maps a metric to the minimum trial runtime it requires.
	Admission map[string]time.Duration `yaml:"admission" validate:"dive,keys,metric,endkeys,gte=0"`

	// TrialsPerCampaign is the trial count used by bug consistency.
	TrialsPerCampaign int `yaml:"trials_per_campaign" validate:"gte=1"`

	// Parallelism bounds concurrently bootstrapped groups. Zero means
	// GOMAXPROCS.
	Parallelism int `yaml:"parallelism" validate:"gte=0"`

	Logging LoggingConfig `yaml:"logging"`
}

// BootstrapConfig configures resampling.
type BootstrapConfig struct {
	Iterations      int     `yaml:"iterations" validate:"gte=1"`
	ConfidenceLevel float64 `yaml:"confidence_level" validate:"gt=0,lt=1"`
	Seed            uint64  `yaml:"seed"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`
	Dir   string `yaml:"dir"`
}

// Default returns the configuration shared by every preset.
func Default() *Config {
	return &Config{
		Window: 10,
		Alpha:  0.05,
		Bootstrap: BootstrapConfig{
			Iterations:      9999,
			ConfidenceLevel: 0.95,
		},
		Admission: map[string]time.Duration{
			string(metrics.ExecsPerSec): metrics.DefaultExecsFloor,
		},
		TrialsPerCampaign: 10,
		Logging:           LoggingConfig{Level: "info"},
	}
}

// Load builds a configuration from a preset and an optional YAML file.
//
// Inputs:
//   - preset: A preset name, or "" for Default.
//   - path: A YAML file to overlay. Empty skips the file.
//
// Outputs:
//   - *Config: The validated configuration.
//   - error: Unknown preset, unreadable or malformed file, or
//     ErrInvalidConfig.
func Load(preset, path string) (*Config, error) {
	cfg := Default()
	if preset != "" {
		p, err := Preset(preset)
		if err != nil {
			return nil, err
		}
		cfg = p
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read the config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse the config file %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field constraint.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	for _, ids := range [][]string{c.Targets, c.ExcludeTargets, c.Fuzzers.IDs()} {
		if err := validation.ValidateIdentifiers(ids); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	seen := make(map[string]bool, len(c.Fuzzers))
	for _, l := range c.Fuzzers {
		if seen[l.Label] {
			return fmt.Errorf("%w: duplicate fuzzer label %q", ErrInvalidConfig, l.Label)
		}
		seen[l.Label] = true
	}
	return nil
}

// AdmissionFloors returns Admission keyed by metric name.
func (c *Config) AdmissionFloors() map[metrics.Name]time.Duration {
	out := make(map[metrics.Name]time.Duration, len(c.Admission))
	for k, v := range c.Admission {
		out[metrics.Name(k)] = v
	}
	return out
}

// Excluded reports whether target is in ExcludeTargets.
func (c *Config) Excluded(target string) bool {
	return slices.Contains(c.ExcludeTargets, target)
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
