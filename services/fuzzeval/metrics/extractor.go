// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/fuzzeval/services/fuzzeval/dataset"
)

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// DefaultExecsFloor is the minimum runtime a trial needs before its
// execs_per_sec is trusted.
const DefaultExecsFloor = 20 * time.Hour

// Config configures an Extractor.
type Config struct {
	// AdmissionFloors maps a metric to the minimum trial runtime it requires.
	// A trial below the floor of any requested metric is excluded entirely.
	AdmissionFloors map[Name]time.Duration

	// Logger receives filtered-trial warnings.
	Logger *slog.Logger
}

// DefaultConfig returns the standard admission floors.
func DefaultConfig() *Config {
	return &Config{
		AdmissionFloors: map[Name]time.Duration{
			ExecsPerSec: DefaultExecsFloor,
		},
		Logger: slog.Default(),
	}
}

// Option configures an Extractor.
type Option func(*Config)

// WithAdmissionFloor sets the minimum runtime for one metric. A zero or
// negative floor removes it.
func WithAdmissionFloor(name Name, floor time.Duration) Option {
	return func(c *Config) {
		if floor <= 0 {
			delete(c.AdmissionFloors, name)
			return
		}
		c.AdmissionFloors[name] = floor
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// -----------------------------------------------------------------------------
// Extractor
// -----------------------------------------------------------------------------

// Extractor derives per-trial metrics from a normalized table.
//
// Thread Safety: Safe for concurrent use. Configuration is immutable after
// construction.
type Extractor struct {
	floors map[Name]time.Duration
	logger *slog.Logger
}

// NewExtractor creates an Extractor.
//
// Inputs:
//   - opts: Configuration options applied over DefaultConfig.
//
// Outputs:
//   - *Extractor: The new extractor. Never nil.
func NewExtractor(opts ...Option) *Extractor {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}
	return &Extractor{
		floors: config.AdmissionFloors,
		logger: config.Logger,
	}
}

// Extract computes the requested metrics for every trial in the table.
//
// Description:
//
//	Trials are visited in table order. For each trial the admission floors
//	of the requested metrics are checked first; a trial below the largest
//	applicable floor, or whose runtime cannot be determined, is excluded
//	from every metric and reported in Result.Filtered. Otherwise each
//	metric rule runs independently. A rule that fails its precondition
//	yields an Absence instead of a value.
//
// Inputs:
//   - ctx: Checked between trials for cancellation.
//   - table: The normalized table. Must not be nil.
//   - names: Metrics to compute. Empty means All().
//
// Outputs:
//   - *Result: Metrics, absences and filtered trials.
//   - error: ErrUnknownMetric for an unrecognised name, or ctx.Err().
func (e *Extractor) Extract(ctx context.Context, table *dataset.Table, names ...Name) (*Result, error) {
	if len(names) == 0 {
		names = All()
	}
	for _, n := range names {
		if !n.Known() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, n)
		}
	}

	gate, floor := e.floor(names)
	res := &Result{}

	for trial, recs := range table.All() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if floor > 0 {
			rt, known := runtime(recs)
			if !known || rt < floor {
				f := &FilteredTrial{Trial: trial, Metric: gate, Runtime: rt, RuntimeKnown: known, Floor: floor}
				e.logger.Warn("trial filtered",
					slog.String("trial", trial.String()),
					slog.String("metric", string(gate)),
					slog.Bool("runtime_known", known),
					slog.Float64("runtime_hours", rt.Hours()),
					slog.Float64("floor_hours", floor.Hours()),
				)
				res.Filtered = append(res.Filtered, f)
				continue
			}
		}

		for _, n := range names {
			v, err := rules[n](recs)
			if err != nil {
				if !errors.Is(err, ErrInsufficientData) {
					err = fmt.Errorf("%w: %w", ErrInsufficientData, err)
				}
				res.Absent = append(res.Absent, &Absence{Trial: trial, Metric: n, Cause: err})
				continue
			}
			res.Metrics = append(res.Metrics, TrialMetric{Trial: trial, Name: n, Value: v})
		}
	}

	e.logger.Debug("metrics extracted",
		slog.Int("trials", table.Len()),
		slog.Int("values", len(res.Metrics)),
		slog.Int("absent", len(res.Absent)),
		slog.Int("filtered", len(res.Filtered)),
	)
	return res, nil
}

// floor returns the strictest admission floor among names and the metric
// that imposes it.
func (e *Extractor) floor(names []Name) (Name, time.Duration) {
	var gate Name
	var floor time.Duration
	for _, n := range names {
		if f, ok := e.floors[n]; ok && f > floor {
			gate, floor = n, f
		}
	}
	return gate, floor
}
