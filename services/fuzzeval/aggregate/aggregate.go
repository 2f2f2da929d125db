// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/fuzzeval/services/fuzzeval/dataset"
	"github.com/AleutianAI/fuzzeval/services/fuzzeval/metrics"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrStatisticNotApplicable indicates a statistic that is not defined
	// for the requested metric.
	ErrStatisticNotApplicable = errors.New("statistic not applicable to metric")

	// ErrNonPositiveValue indicates a geometric mean over a value <= 0.
	ErrNonPositiveValue = errors.New("geometric mean requires positive values")

	// ErrUnknownStatistic indicates a statistic name outside the known set.
	ErrUnknownStatistic = errors.New("unknown statistic")
)

// -----------------------------------------------------------------------------
// Types
// -----------------------------------------------------------------------------

// Statistic is a point estimator.
type Statistic string

const (
	Mean   Statistic = "mean"
	GMean  Statistic = "gmean"
	Median Statistic = "median"
)

// ParseStatistic validates a statistic name.
func ParseStatistic(s string) (Statistic, error) {
	switch st := Statistic(s); st {
	case Mean, GMean, Median:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatistic, s)
}

// gmeanMetrics are the metrics whose values are strictly positive rates or
// counts, for which a geometric mean is meaningful.
var gmeanMetrics = map[metrics.Name]bool{
	metrics.Overhead:    true,
	metrics.ExecsPerSec: true,
	metrics.UpdateCount: true,
}

// Applicable reports whether s may summarize metric m.
func (s Statistic) Applicable(m metrics.Name) bool {
	if s == GMean {
		return gmeanMetrics[m]
	}
	return s == Mean || s == Median
}

// Pooling selects how SummarizeAcrossTargets combines targets.
type Pooling int

const (
	// PoolTrials summarizes every windowed trial value of a fuzzer together.
	PoolTrials Pooling = iota

	// PoolTargetMeans reduces each target to the mean of its window first,
	// then summarizes those per-target means.
	PoolTargetMeans
)

// String returns the pooling mode name.
func (p Pooling) String() string {
	switch p {
	case PoolTrials:
		return "trials"
	case PoolTargetMeans:
		return "target_means"
	default:
		return fmt.Sprintf("Pooling(%d)", int(p))
	}
}

// SummaryStat is the summary of one metric for one group.
type SummaryStat struct {
	// Group is the (target, fuzzer) summarized. Target is empty for
	// cross-target summaries.
	Group dataset.GroupKey

	Metric    metrics.Name
	Statistic Statistic

	// N is the number of values after windowing.
	N int

	// Estimate is unset when N is 0 or Err is set.
	Estimate dataset.Value

	// StdErr is the standard deviation of the bootstrap distribution.
	// Unset when N < 2.
	StdErr dataset.Value

	// Lower and Upper are percentile bootstrap bounds. Unset when N < 2.
	Lower dataset.Value
	Upper dataset.Value

	// Err explains why the cell is empty, for example ErrNonPositiveValue.
	Err error
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config configures an Aggregator.
type Config struct {
	// Window is the number of trailing trials kept per group. Zero keeps all.
	Window int

	// Iterations is the number of bootstrap resamples.
	Iterations int

	// ConfidenceLevel is the two-sided bootstrap interval coverage.
	ConfidenceLevel float64

	// Seed is mixed with each group's identity to seed its resampling.
	Seed uint64

	// Parallelism bounds concurrently summarized groups.
	Parallelism int

	Logger *slog.Logger
}

// DefaultConfig returns the standard configuration.
func DefaultConfig() *Config {
	return &Config{
		Window:          10,
		Iterations:      9999,
		ConfidenceLevel: 0.95,
		Seed:            0,
		Parallelism:     runtime.GOMAXPROCS(0),
		Logger:          slog.Default(),
	}
}

// Option configures an Aggregator.
type Option func(*Config)

// WithWindow sets the trailing window size.
func WithWindow(n int) Option {
	return func(c *Config) {
		if n >= 0 {
			c.Window = n
		}
	}
}

// WithIterations sets the bootstrap resample count.
func WithIterations(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.Iterations = n
		}
	}
}

// WithConfidenceLevel sets the bootstrap interval level.
func WithConfidenceLevel(level float64) Option {
	return func(c *Config) {
		if level > 0 && level < 1 {
			c.ConfidenceLevel = level
		}
	}
}

// WithSeed sets the base bootstrap seed.
func WithSeed(seed uint64) Option {
	return func(c *Config) {
		c.Seed = seed
	}
}

// WithParallelism bounds concurrent groups.
func WithParallelism(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.Parallelism = n
		}
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
// Aggregator
// -----------------------------------------------------------------------------

// Aggregator summarizes trial metrics per group.
//
// Thread Safety: Safe for concurrent use.
type Aggregator struct {
	config *Config
	logger *slog.Logger
}

// NewAggregator creates an Aggregator.
//
// Inputs:
//   - opts: Configuration options applied over DefaultConfig.
//
// Outputs:
//   - *Aggregator: The new aggregator. Never nil.
func NewAggregator(opts ...Option) *Aggregator {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}
	return &Aggregator{config: config, logger: config.Logger}
}

// Window applies the configured trailing window to extraction results.
func (a *Aggregator) Window(results ...*metrics.Result) *Window {
	return TrailingWindow(a.config.Window, results...)
}

// Summarize computes one SummaryStat per (target, fuzzer) of the window.
//
// Description:
//
//	Every group of the window gets a SummaryStat, including groups with
//	no value of metric, which come back with N = 0 and no estimate.
//	Groups are bootstrapped in parallel up to Config.Parallelism; the
//	output is ordered by group.
//
// Inputs:
//   - ctx: Cancels outstanding groups.
//   - w: The windowed metrics. See TrailingWindow.
//   - metric: The metric to summarize.
//   - st: The point estimator.
//
// Outputs:
//   - []SummaryStat: One per group in (target, fuzzer) order.
//   - error: ErrStatisticNotApplicable, or ctx.Err().
func (a *Aggregator) Summarize(ctx context.Context, w *Window, metric metrics.Name, st Statistic) ([]SummaryStat, error) {
	if !st.Applicable(metric) {
		return nil, fmt.Errorf("%w: %s of %s", ErrStatisticNotApplicable, st, metric)
	}

	groups := w.values(metric)
	jobs := make([]job, len(w.Groups))
	for i, g := range w.Groups {
		jobs[i] = job{group: g, values: groups[g]}
	}
	return a.run(ctx, jobs, metric, st)
}

// SummarizeAcrossTargets computes one SummaryStat per fuzzer over all targets.
//
// Description:
//
//	With PoolTrials every windowed trial value of the fuzzer is summarized
//	together. With PoolTargetMeans each target's window is first reduced
//	to its arithmetic mean and the statistic is taken over those means;
//	targets without a value are skipped. Every fuzzer of the window gets
//	a SummaryStat. The returned Group has an empty Target.
//
// Inputs:
//   - ctx: Cancels outstanding fuzzers.
//   - w: The windowed metrics.
//   - metric: The metric to summarize.
//   - st: The point estimator.
//   - pooling: How targets are combined.
//
// Outputs:
//   - []SummaryStat: One per fuzzer in lexical order.
//   - error: ErrStatisticNotApplicable, or ctx.Err().
func (a *Aggregator) SummarizeAcrossTargets(ctx context.Context, w *Window, metric metrics.Name, st Statistic, pooling Pooling) ([]SummaryStat, error) {
	if !st.Applicable(metric) {
		return nil, fmt.Errorf("%w: %s of %s", ErrStatisticNotApplicable, st, metric)
	}

	groups := w.values(metric)
	pooled := make(map[string][]float64)
	var fuzzers []string
	for _, g := range w.Groups {
		if _, ok := pooled[g.Fuzzer]; !ok {
			pooled[g.Fuzzer] = nil
			fuzzers = append(fuzzers, g.Fuzzer)
		}
		vals := groups[g]
		if len(vals) == 0 {
			continue
		}
		switch pooling {
		case PoolTargetMeans:
			pooled[g.Fuzzer] = append(pooled[g.Fuzzer], estimate(Mean, vals))
		default:
			pooled[g.Fuzzer] = append(pooled[g.Fuzzer], vals...)
		}
	}
	slices.Sort(fuzzers)

	jobs := make([]job, len(fuzzers))
	for i, f := range fuzzers {
		jobs[i] = job{group: dataset.GroupKey{Fuzzer: f}, values: pooled[f], tag: pooling.String()}
	}
	return a.run(ctx, jobs, metric, st)
}

type job struct {
	group  dataset.GroupKey
	values []float64
	tag    string
}

func (a *Aggregator) run(ctx context.Context, jobs []job, metric metrics.Name, st Statistic) ([]SummaryStat, error) {
	out := make([]SummaryStat, len(jobs))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, a.config.Parallelism))

	for i, j := range jobs {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			out[i] = a.summarize(j, metric, st)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	a.logger.Debug("groups summarized",
		slog.String("metric", string(metric)),
		slog.String("statistic", string(st)),
		slog.Int("groups", len(out)),
	)
	return out, nil
}

func (a *Aggregator) summarize(j job, metric metrics.Name, st Statistic) SummaryStat {
	s := SummaryStat{Group: j.group, Metric: metric, Statistic: st, N: len(j.values)}
	if s.N == 0 {
		return s
	}
	if st == GMean {
		for _, v := range j.values {
			if v <= 0 {
				s.Err = fmt.Errorf("%w: %s has %g", ErrNonPositiveValue, j.group, v)
				return s
			}
		}
	}

	s.Estimate = dataset.Some(estimate(st, j.values))
	if s.N < 2 {
		return s
	}

	rng := newGroupRand(a.config.Seed, j.group, metric, st, j.tag)
	ci := bootstrap(j.values, st, a.config.Iterations, a.config.ConfidenceLevel, rng)
	s.StdErr = dataset.Some(ci.stdErr)
	s.Lower = dataset.Some(ci.lower)
	s.Upper = dataset.Some(ci.upper)
	return s
}

// -----------------------------------------------------------------------------
// Windowing
// -----------------------------------------------------------------------------

// Window is the trailing window of one or more extraction passes.
type Window struct {
	// Metrics holds the values of windowed trials in input order.
	Metrics []metrics.TrialMetric

	// Groups lists every (target, fuzzer) with an admitted trial, sorted.
	// A group whose windowed trials all lack a metric is still listed.
	Groups []dataset.GroupKey
}

// TrailingWindow keeps, for each (target, fuzzer) of each result, the n
// admitted trials with the highest trial indices. n <= 0 keeps everything.
//
// Description:
//
//	Trials are windowed before their values are looked at. A trial whose
//	metric is absent still takes its slot, so an older trial is never
//	pulled back in to replace it. Trials filtered by an admission floor
//	are not admitted and take no slot. Each result is windowed on its
//	own because each extraction pass has its own admission floor.
//
// Inputs:
//   - n: Trials kept per group.
//   - results: Extraction passes over the same table.
//
// Outputs:
//   - *Window: Never nil.
func TrailingWindow(n int, results ...*metrics.Result) *Window {
	w := &Window{}
	seen := make(map[dataset.GroupKey]bool)

	for _, res := range results {
		trials := res.Trials()
		keep := make(map[dataset.TrialKey]bool, len(trials))
		for start := 0; start < len(trials); {
			g := trials[start].Group()
			end := start
			for end < len(trials) && trials[end].Group() == g {
				end++
			}
			from := start
			if n > 0 && end-start > n {
				from = end - n
			}
			for _, k := range trials[from:end] {
				keep[k] = true
			}
			if !seen[g] {
				seen[g] = true
				w.Groups = append(w.Groups, g)
			}
			start = end
		}

		for _, m := range res.Metrics {
			if keep[m.Trial] {
				w.Metrics = append(w.Metrics, m)
			}
		}
	}

	slices.SortFunc(w.Groups, dataset.GroupKey.Compare)
	return w
}

func (w *Window) values(metric metrics.Name) map[dataset.GroupKey][]float64 {
	groups := make(map[dataset.GroupKey][]float64)
	for _, m := range w.Metrics {
		if m.Name == metric {
			groups[m.Trial.Group()] = append(groups[m.Trial.Group()], m.Value)
		}
	}
	return groups
}
