// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package significance groups fuzzers into co-best classes per target using
// pairwise two-sided Mann-Whitney U tests.
package significance

import (
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/aclements/go-moremath/stats"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/AleutianAI/fuzzeval/services/fuzzeval/dataset"
	"github.com/AleutianAI/fuzzeval/services/fuzzeval/metrics"
)

// DefaultAlpha is the significance level below which two samples differ.
const DefaultAlpha = 0.05

// SkipReason explains why a pair was not tested.
type SkipReason string

const (
	// SkipNone marks a tested pair.
	SkipNone SkipReason = ""

	// SkipZeroSum marks a pair where either sample sums to exactly zero.
	SkipZeroSum SkipReason = "zero_sum"

	// SkipTestError marks a pair the U test rejected, such as an empty sample.
	SkipTestError SkipReason = "test_error"
)

// PairResult is the outcome of testing fuzzer B against fuzzer A on one
// target.
type PairResult struct {
	Target string
	Metric metrics.Name
	A      string
	B      string

	// U is the Mann-Whitney U statistic. Zero when skipped.
	U float64

	// P is the two-sided p-value. Zero when skipped.
	P float64

	// Indistinguishable is true when the pair was tested and P > alpha.
	Indistinguishable bool

	Skipped SkipReason
}

// EquivalenceClass is the set of fuzzers statistically tied with the best
// fuzzer on one target.
type EquivalenceClass struct {
	Target string
	Metric metrics.Name

	// Best has the highest mean. Ties go to the first fuzzer in order.
	Best     string
	BestMean float64

	// Members always contains Best, followed by the fuzzers
	// indistinguishable from it in fuzzer order.
	Members []string
}

// Contains reports whether fuzzer is in the class.
func (c EquivalenceClass) Contains(fuzzer string) bool {
	return slices.Contains(c.Members, fuzzer)
}

// Result holds every class and the pair results behind them.
type Result struct {
	Classes []EquivalenceClass
	Pairs   []PairResult
}

// Class returns the class for target, if any.
func (r *Result) Class(target string) (EquivalenceClass, bool) {
	for _, c := range r.Classes {
		if c.Target == target {
			return c, true
		}
	}
	return EquivalenceClass{}, false
}

// -----------------------------------------------------------------------------
// Tester
// -----------------------------------------------------------------------------

// Option configures a Tester.
type Option func(*Tester)

// WithAlpha sets the significance level.
func WithAlpha(alpha float64) Option {
	return func(t *Tester) {
		if alpha > 0 && alpha < 1 {
			t.alpha = alpha
		}
	}
}

// WithLabels orders fuzzers by their configured label order instead of
// lexically. The order decides ties for best.
func WithLabels(labels dataset.Labels) Option {
	return func(t *Tester) {
		t.labels = labels
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tester) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// Tester runs pairwise significance tests.
//
// Thread Safety: Safe for concurrent use.
type Tester struct {
	alpha  float64
	labels dataset.Labels
	logger *slog.Logger
}

// NewTester creates a Tester with DefaultAlpha.
func NewTester(opts ...Option) *Tester {
	t := &Tester{alpha: DefaultAlpha, logger: slog.Default()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Alpha returns the configured significance level.
func (t *Tester) Alpha() float64 {
	return t.alpha
}

// Test builds equivalence classes for one metric.
//
// Description:
//
//	Values are grouped per (target, fuzzer). The input should already be
//	windowed. For every target and every ordered fuzzer pair (A, B),
//	including A = B, a two-sided U test is run unless either sample sums to
//	exactly zero. The best fuzzer is the one with the highest mean; its
//	class holds itself and every B whose pair (best, B) has P > alpha.
//
// Inputs:
//   - ms: Trial metrics; only metric is used.
//   - metric: The metric to test.
//
// Outputs:
//   - *Result: Classes in target order and every pair result. Never nil.
func (t *Tester) Test(ms []metrics.TrialMetric, metric metrics.Name) *Result {
	samples := make(map[dataset.GroupKey][]float64)
	byTarget := make(map[string][]string)
	for _, m := range ms {
		if m.Name != metric {
			continue
		}
		g := m.Trial.Group()
		if _, ok := samples[g]; !ok {
			byTarget[g.Target] = append(byTarget[g.Target], g.Fuzzer)
		}
		samples[g] = append(samples[g], m.Value)
	}

	targets := make([]string, 0, len(byTarget))
	for target := range byTarget {
		targets = append(targets, target)
	}
	slices.Sort(targets)

	res := &Result{}
	for _, target := range targets {
		fuzzers := byTarget[target]
		t.labels.SortFuzzers(fuzzers)

		get := func(f string) []float64 {
			return samples[dataset.GroupKey{Target: target, Fuzzer: f}]
		}

		indist := make(map[[2]string]bool)
		for _, a := range fuzzers {
			for _, b := range fuzzers {
				pr := t.pair(get(a), get(b))
				pr.Target, pr.Metric, pr.A, pr.B = target, metric, a, b
				if pr.Skipped == SkipZeroSum {
					t.logger.Debug("pair skipped",
						slog.String("target", target),
						slog.String("a", a),
						slog.String("b", b),
						slog.String("reason", string(pr.Skipped)),
					)
				}
				indist[[2]string{a, b}] = pr.Indistinguishable
				res.Pairs = append(res.Pairs, pr)
			}
		}

		best, bestMean := fuzzers[0], stat.Mean(get(fuzzers[0]), nil)
		for _, f := range fuzzers[1:] {
			if m := stat.Mean(get(f), nil); m > bestMean {
				best, bestMean = f, m
			}
		}

		class := EquivalenceClass{Target: target, Metric: metric, Best: best, BestMean: bestMean, Members: []string{best}}
		for _, f := range fuzzers {
			if f != best && indist[[2]string{best, f}] {
				class.Members = append(class.Members, f)
			}
		}
		res.Classes = append(res.Classes, class)
	}
	return res
}

// pair tests one ordered pair.
//
// A sample summing to exactly zero is skipped even when it is not all
// zeros, so mixed-sign samples that cancel are never tested. Bug counts and
// coverage are non-negative, where a zero sum means no data.
func (t *Tester) pair(a, b []float64) PairResult {
	if floats.Sum(a) == 0 || floats.Sum(b) == 0 {
		return PairResult{Skipped: SkipZeroSum}
	}

	if allEqual(a, b) {
		return PairResult{U: float64(len(a)*len(b)) / 2, P: 1, Indistinguishable: true}
	}

	u, p, err := uTest(a, b)
	if err != nil {
		t.logger.Warn("mann-whitney test failed", slog.String("error", fmt.Sprint(err)))
		return PairResult{Skipped: SkipTestError}
	}
	return PairResult{U: u, P: p, Indistinguishable: p > t.alpha}
}

// exactLimit is the largest sample size for which the exact U distribution
// is used, and only when neither sample has ties.
const exactLimit = 8

// uTest runs a two-sided Mann-Whitney U test and returns U for a and the
// p-value.
//
// The exact distribution is used when either sample has at most exactLimit
// values and no value repeats across both samples. Otherwise the normal
// approximation with tie and continuity correction is used.
func uTest(a, b []float64) (float64, float64, error) {
	r, err := stats.MannWhitneyUTest(a, b, stats.LocationDiffers)
	if err != nil {
		return 0, 0, err
	}

	n1, n2 := len(a), len(b)
	u1 := r.U
	u2 := float64(n1*n2) - u1
	ties := tieTerm(a, b)

	if ties == 0 && min(n1, n2) <= exactLimit {
		if u1 == u2 {
			return u1, 1, nil
		}
		d := stats.UDist{N1: n1, N2: n2}
		return u1, min(1, 2*d.CDF(math.Min(u1, u2))), nil
	}

	n := float64(n1 + n2)
	sigma := math.Sqrt(float64(n1*n2) / 12 * ((n + 1) - ties/(n*(n-1))))
	if sigma == 0 {
		return 0, 0, stats.ErrSamplesEqual
	}
	z := (math.Max(u1, u2) - float64(n1*n2)/2 - 0.5) / sigma
	return u1, min(1, 2*stats.StdNormal.CDF(-z)), nil
}

// tieTerm returns the sum of t^3 - t over every run of t equal values in
// the pooled sample. Zero means no ties.
func tieTerm(a, b []float64) float64 {
	pooled := slices.Concat(a, b)
	slices.Sort(pooled)

	var sum float64
	for i := 0; i < len(pooled); {
		j := i
		for j < len(pooled) && pooled[j] == pooled[i] {
			j++
		}
		t := float64(j - i)
		sum += t*t*t - t
		i = j
	}
	return sum
}

// allEqual reports whether every value in both samples is the same, where
// the U test's p-value is undefined.
func allEqual(a, b []float64) bool {
	if len(a) == 0 {
		return false
	}
	v := a[0]
	for _, xs := range [][]float64{a, b} {
		for _, x := range xs {
			if x != v {
				return false
			}
		}
	}
	return true
}
