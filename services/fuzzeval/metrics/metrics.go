// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package metrics derives per-trial scalar metrics from long-form records.
//
// Each metric has its own extraction rule and validity precondition. A
// trial that fails a precondition has the metric absent (reported as an
// Absence wrapping ErrInsufficientData), never zero. Admission floors are
// trial-level: a trial below a requested metric's minimum runtime is
// excluded entirely and reported as a FilteredTrial.
package metrics

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/AleutianAI/fuzzeval/services/fuzzeval/dataset"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrInsufficientData indicates a trial lacks the data a metric needs.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrFilteredTrial indicates a trial failed an admission precondition.
	ErrFilteredTrial = errors.New("trial filtered")

	// ErrUnknownMetric indicates a metric name outside the known set.
	ErrUnknownMetric = errors.New("unknown metric")

	// ErrNonIncreasingTime indicates consecutive coverage snapshots whose
	// elapsed time does not increase, which would divide by zero.
	ErrNonIncreasingTime = fmt.Errorf("%w: non-increasing time between snapshots", ErrInsufficientData)
)

// -----------------------------------------------------------------------------
// Names
// -----------------------------------------------------------------------------

// Name identifies a derived metric.
type Name string

const (
	// BugCount is the number of distinct bugs a trial triggered.
	BugCount Name = "bug_count"

	// Coverage is the edge count at the latest snapshot.
	Coverage Name = "coverage"

	// AUC is the rate-weighted accumulation of coverage over time.
	AUC Name = "auc"

	// Overhead is the final cumulative scheduler plus queue-update overhead.
	Overhead Name = "overhead"

	// UpdateTime is the mean per-update overhead in milliseconds.
	UpdateTime Name = "update_time"

	// UpdateCount is the number of queue updates logged.
	UpdateCount Name = "update_count"

	// UpdateVariance is the population variance of per-update overhead.
	UpdateVariance Name = "update_variance"

	// ExecsPerSec is the execution speed reported at the end of a trial.
	ExecsPerSec Name = "execs_per_sec"
)

// All returns every known metric name.
func All() []Name {
	return []Name{BugCount, Coverage, AUC, Overhead, UpdateTime, UpdateCount, UpdateVariance, ExecsPerSec}
}

// ParseName validates a metric name.
func ParseName(s string) (Name, error) {
	n := Name(s)
	if _, ok := rules[n]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownMetric, s)
	}
	return n, nil
}

// Known reports whether n is in the fixed metric set.
func (n Name) Known() bool {
	_, ok := rules[n]
	return ok
}

// -----------------------------------------------------------------------------
// Results
// -----------------------------------------------------------------------------

// TrialMetric is one derived scalar for a trial.
type TrialMetric struct {
	Trial dataset.TrialKey
	Name  Name
	Value float64
}

// Absence records a metric that is undefined for a trial.
type Absence struct {
	Trial  dataset.TrialKey
	Metric Name
	Cause  error
}

// Error implements error.
func (a *Absence) Error() string {
	return fmt.Sprintf("%s %s absent: %v", a.Trial, a.Metric, a.Cause)
}

// Unwrap exposes the cause, which always matches ErrInsufficientData.
func (a *Absence) Unwrap() error {
	return a.Cause
}

// FilteredTrial records a trial excluded by an admission floor.
type FilteredTrial struct {
	Trial dataset.TrialKey

	// Metric is the requested metric whose floor excluded the trial.
	Metric Name

	// Runtime is last_update - start_time. Zero when RuntimeKnown is false.
	Runtime time.Duration

	// RuntimeKnown is false when the trial lacks start_time or last_update.
	RuntimeKnown bool

	// Floor is the minimum runtime that was required.
	Floor time.Duration
}

// Error implements error.
func (f *FilteredTrial) Error() string {
	if !f.RuntimeKnown {
		return fmt.Sprintf("%s: %s: runtime unknown, %s requires %s", ErrFilteredTrial, f.Trial, f.Metric, f.Floor)
	}
	return fmt.Sprintf("%s: %s: runtime %.2fh < %.2fh required by %s",
		ErrFilteredTrial, f.Trial, f.Runtime.Hours(), f.Floor.Hours(), f.Metric)
}

// Unwrap returns ErrFilteredTrial.
func (f *FilteredTrial) Unwrap() error {
	return ErrFilteredTrial
}

// Result is the output of one extraction pass.
type Result struct {
	// Metrics holds the defined metrics in trial order, then request order.
	Metrics []TrialMetric

	// Absent holds metrics whose precondition failed.
	Absent []*Absence

	// Filtered holds trials excluded by an admission floor.
	Filtered []*FilteredTrial
}

// Trials returns the admitted trials of the pass, sorted. A trial is
// admitted when it passed the admission floor, whether or not any of its
// metrics is defined.
func (r *Result) Trials() []dataset.TrialKey {
	seen := make(map[dataset.TrialKey]bool)
	var out []dataset.TrialKey
	add := func(k dataset.TrialKey) {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	for _, m := range r.Metrics {
		add(m.Trial)
	}
	for _, a := range r.Absent {
		add(a.Trial)
	}
	slices.SortFunc(out, dataset.TrialKey.Compare)
	return out
}

// Values returns the metric values of one name, keyed by trial, in order.
func (r *Result) Values(name Name) []TrialMetric {
	var out []TrialMetric
	for _, m := range r.Metrics {
		if m.Name == name {
			out = append(out, m)
		}
	}
	return out
}
