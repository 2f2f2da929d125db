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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/AleutianAI/fuzzeval/services/fuzzeval/dataset"
	"github.com/AleutianAI/fuzzeval/services/fuzzeval/metrics"
)

func tm(target, fuzzer string, trial int, name metrics.Name, v float64) metrics.TrialMetric {
	return metrics.TrialMetric{
		Trial: dataset.TrialKey{Target: target, Fuzzer: fuzzer, Trial: trial},
		Name:  name,
		Value: v,
	}
}

func series(target, fuzzer string, name metrics.Name, vals ...float64) []metrics.TrialMetric {
	out := make([]metrics.TrialMetric, len(vals))
	for i, v := range vals {
		out[i] = tm(target, fuzzer, i, name, v)
	}
	return out
}

// result wraps ms as one extraction pass. absent adds admitted trials
// whose metrics are all undefined.
func result(ms []metrics.TrialMetric, absent ...dataset.TrialKey) *metrics.Result {
	res := &metrics.Result{Metrics: ms}
	for _, k := range absent {
		res.Absent = append(res.Absent, &metrics.Absence{Trial: k, Metric: metrics.Overhead, Cause: metrics.ErrInsufficientData})
	}
	return res
}

func fastAggregator(opts ...Option) *Aggregator {
	return NewAggregator(append([]Option{WithIterations(2000), WithSeed(7)}, opts...)...)
}

// summarize windows ms with agg's window and summarizes metric.
func summarize(agg *Aggregator, ms []metrics.TrialMetric, metric metrics.Name, st Statistic) ([]SummaryStat, error) {
	return agg.Summarize(context.Background(), agg.Window(result(ms)), metric, st)
}

// -----------------------------------------------------------------------------
// Window Tests
// -----------------------------------------------------------------------------

func TestTrailingWindow(t *testing.T) {
	var ms []metrics.TrialMetric
	for i := 11; i >= 0; i-- {
		ms = append(ms, tm("lua", "FAST", i, metrics.BugCount, float64(i)))
	}
	ms = append(ms, tm("lua", "RARE", 0, metrics.BugCount, 1))

	w := TrailingWindow(10, result(ms))

	var fast []int
	for _, m := range w.Metrics {
		if m.Trial.Fuzzer == "FAST" {
			fast = append(fast, m.Trial.Trial)
		}
	}
	assert.ElementsMatch(t, []int{2, 3, 4, 5, 6, 7, 8, 9, 10, 11}, fast)
	assert.Len(t, w.Metrics, 11)
	assert.Equal(t, []dataset.GroupKey{{Target: "lua", Fuzzer: "FAST"}, {Target: "lua", Fuzzer: "RARE"}}, w.Groups)

	t.Run("zero keeps all", func(t *testing.T) {
		assert.Len(t, TrailingWindow(0, result(ms)).Metrics, len(ms))
	})

	t.Run("idempotent", func(t *testing.T) {
		assert.Equal(t, w, TrailingWindow(10, result(w.Metrics)))
	})
}

func TestTrailingWindow_AbsentTrialKeepsItsSlot(t *testing.T) {
	// Trial 0 is an outlier that falls outside the window; trial 10 is
	// admitted but its log was empty.
	var ms []metrics.TrialMetric
	ms = append(ms, tm("zlib", "FAST", 0, metrics.Overhead, 1000))
	for i := 1; i <= 9; i++ {
		ms = append(ms, tm("zlib", "FAST", i, metrics.Overhead, 10))
	}
	newest := dataset.TrialKey{Target: "zlib", Fuzzer: "FAST", Trial: 10}

	agg := fastAggregator()
	w := agg.Window(result(ms, newest))
	for _, m := range w.Metrics {
		assert.NotEqual(t, 0, m.Trial.Trial)
	}

	got, err := agg.Summarize(context.Background(), w, metrics.Overhead, GMean)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 9, got[0].N)
	v, ok := got[0].Estimate.Get()
	require.True(t, ok)
	assert.InDelta(t, 10, v, 1e-9)
}

func TestTrailingWindow_PassesAreIndependent(t *testing.T) {
	coverage := series("zlib", "FAST", metrics.Coverage, 1, 2, 3)
	execs := []metrics.TrialMetric{tm("zlib", "FAST", 0, metrics.ExecsPerSec, 500)}

	w := TrailingWindow(2, result(coverage), result(execs))

	var trials []int
	for _, m := range w.Metrics {
		if m.Name == metrics.Coverage {
			trials = append(trials, m.Trial.Trial)
		}
	}
	assert.Equal(t, []int{1, 2}, trials)
	assert.Contains(t, w.Metrics, execs[0], "a pass with fewer admitted trials keeps its own window")
	assert.Len(t, w.Groups, 1)
}

// -----------------------------------------------------------------------------
// Summarize Tests
// -----------------------------------------------------------------------------

func TestSummarize_PointEstimates(t *testing.T) {
	ms := series("zlib", "FAST", metrics.Overhead, 1, 2, 4, 8)
	agg := fastAggregator()

	tests := []struct {
		st   Statistic
		want float64
	}{
		{Mean, 3.75},
		{GMean, math.Pow(64, 0.25)},
		{Median, 3},
	}
	for _, tc := range tests {
		t.Run(string(tc.st), func(t *testing.T) {
			got, err := summarize(agg, ms, metrics.Overhead, tc.st)
			require.NoError(t, err)
			require.Len(t, got, 1)

			s := got[0]
			assert.Equal(t, 4, s.N)
			v, ok := s.Estimate.Get()
			require.True(t, ok)
			assert.InDelta(t, tc.want, v, 1e-9)
			assert.True(t, s.StdErr.Set)
			assert.LessOrEqual(t, s.Lower.V, s.Upper.V)
		})
	}
}

func TestSummarize_SingleValueHasNoInterval(t *testing.T) {
	ms := series("zlib", "FAST", metrics.Coverage, 42)

	got, err := summarize(fastAggregator(), ms, metrics.Coverage, Mean)
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, dataset.Some(42), got[0].Estimate)
	assert.False(t, got[0].StdErr.Set)
	assert.False(t, got[0].Lower.Set)
	assert.False(t, got[0].Upper.Set)
}

func TestSummarize_ConstantSampleHasZeroWidthInterval(t *testing.T) {
	ms := series("zlib", "FAST", metrics.Coverage, 5, 5, 5)

	got, err := summarize(fastAggregator(), ms, metrics.Coverage, Mean)
	require.NoError(t, err)
	assert.Equal(t, dataset.Some(0), got[0].StdErr)
	assert.Equal(t, dataset.Some(5), got[0].Lower)
	assert.Equal(t, dataset.Some(5), got[0].Upper)
}

func TestSummarize_WindowApplied(t *testing.T) {
	vals := make([]float64, 12)
	vals[0], vals[1] = 1000, 1000
	for i := 2; i < 12; i++ {
		vals[i] = 1
	}
	ms := series("zlib", "FAST", metrics.Coverage, vals...)

	got, err := summarize(fastAggregator(), ms, metrics.Coverage, Mean)
	require.NoError(t, err)
	assert.Equal(t, 10, got[0].N)
	assert.Equal(t, dataset.Some(1), got[0].Estimate)
}

func TestSummarize_GroupsOrderedAndSeparate(t *testing.T) {
	var ms []metrics.TrialMetric
	ms = append(ms, series("zlib", "RARE", metrics.Coverage, 3, 4)...)
	ms = append(ms, series("bloaty", "FAST", metrics.Coverage, 1, 2)...)
	ms = append(ms, series("zlib", "FAST", metrics.Coverage, 5, 6)...)
	ms = append(ms, series("zlib", "FAST", metrics.AUC, 100, 200)...)

	got, err := summarize(fastAggregator(), ms, metrics.Coverage, Mean)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, dataset.GroupKey{Target: "bloaty", Fuzzer: "FAST"}, got[0].Group)
	assert.Equal(t, dataset.GroupKey{Target: "zlib", Fuzzer: "FAST"}, got[1].Group)
	assert.Equal(t, dataset.GroupKey{Target: "zlib", Fuzzer: "RARE"}, got[2].Group)
	assert.Equal(t, dataset.Some(5.5), got[1].Estimate)
}

func TestSummarize_GroupWithoutValuesKeepsRow(t *testing.T) {
	ms := series("zlib", "FAST", metrics.AUC, 100, 200)
	lua := dataset.TrialKey{Target: "lua", Fuzzer: "FAST", Trial: 0}
	agg := fastAggregator()
	w := agg.Window(result(ms, lua))

	got, err := agg.Summarize(context.Background(), w, metrics.AUC, Mean)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, lua.Group(), got[0].Group)
	assert.Equal(t, 0, got[0].N)
	assert.False(t, got[0].Estimate.Set)
	assert.False(t, got[0].StdErr.Set)
	assert.NoError(t, got[0].Err)

	pooled, err := agg.SummarizeAcrossTargets(context.Background(), agg.Window(result(nil, lua)), metrics.AUC, Mean, PoolTargetMeans)
	require.NoError(t, err)
	require.Len(t, pooled, 1)
	assert.Equal(t, "FAST", pooled[0].Group.Fuzzer)
	assert.Equal(t, 0, pooled[0].N)
	assert.False(t, pooled[0].Estimate.Set)
}

func TestSummarize_GMeanRules(t *testing.T) {
	agg := fastAggregator()

	t.Run("not applicable", func(t *testing.T) {
		ms := series("zlib", "FAST", metrics.Coverage, 1, 2)
		_, err := summarize(agg, ms, metrics.Coverage, GMean)
		assert.True(t, errors.Is(err, ErrStatisticNotApplicable))
	})

	t.Run("non-positive value", func(t *testing.T) {
		ms := series("zlib", "FAST", metrics.ExecsPerSec, 100, 0, 300)
		got, err := summarize(agg, ms, metrics.ExecsPerSec, GMean)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.ErrorIs(t, got[0].Err, ErrNonPositiveValue)
		assert.False(t, got[0].Estimate.Set)
		assert.False(t, got[0].StdErr.Set)
	})
}

func TestSummarize_Deterministic(t *testing.T) {
	var ms []metrics.TrialMetric
	for _, target := range []string{"a", "b", "c", "d", "e"} {
		ms = append(ms, series(target, "FAST", metrics.AUC, 3, 1, 4, 1, 5, 9, 2, 6)...)
	}

	serial, err := summarize(fastAggregator(WithParallelism(1)), ms, metrics.AUC, Median)
	require.NoError(t, err)
	parallel, err := summarize(fastAggregator(WithParallelism(8)), ms, metrics.AUC, Median)
	require.NoError(t, err)
	assert.Equal(t, serial, parallel)

	other, err := summarize(fastAggregator(WithSeed(8)), ms, metrics.AUC, Median)
	require.NoError(t, err)
	assert.Equal(t, serial[0].Estimate, other[0].Estimate)
}

func TestSummarize_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	agg := fastAggregator()
	_, err := agg.Summarize(ctx, agg.Window(result(series("a", "F", metrics.AUC, 1, 2))), metrics.AUC, Mean)
	assert.ErrorIs(t, err, context.Canceled)
}

// -----------------------------------------------------------------------------
// Across-target Tests
// -----------------------------------------------------------------------------

func TestSummarizeAcrossTargets(t *testing.T) {
	var ms []metrics.TrialMetric
	ms = append(ms, series("libpng", "FAST", metrics.ExecsPerSec, 100, 300)...)
	ms = append(ms, series("zlib", "FAST", metrics.ExecsPerSec, 1000, 1000, 1000, 1000)...)
	ms = append(ms, series("zlib", "RARE", metrics.ExecsPerSec, 50)...)
	agg := fastAggregator()

	t.Run("target means", func(t *testing.T) {
		got, err := agg.SummarizeAcrossTargets(context.Background(), agg.Window(result(ms)), metrics.ExecsPerSec, Mean, PoolTargetMeans)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, dataset.GroupKey{Fuzzer: "FAST"}, got[0].Group)
		assert.Equal(t, 2, got[0].N)
		assert.Equal(t, dataset.Some(600), got[0].Estimate)
		assert.Equal(t, "RARE", got[1].Group.Fuzzer)
		assert.Equal(t, 1, got[1].N)
	})

	t.Run("pooled trials", func(t *testing.T) {
		got, err := agg.SummarizeAcrossTargets(context.Background(), agg.Window(result(ms)), metrics.ExecsPerSec, Median, PoolTrials)
		require.NoError(t, err)
		assert.Equal(t, 6, got[0].N)
		assert.Equal(t, dataset.Some(1000), got[0].Estimate)
	})

	t.Run("gmean of target means", func(t *testing.T) {
		got, err := agg.SummarizeAcrossTargets(context.Background(), agg.Window(result(ms)), metrics.ExecsPerSec, GMean, PoolTargetMeans)
		require.NoError(t, err)
		v, ok := got[0].Estimate.Get()
		require.True(t, ok)
		assert.InDelta(t, math.Sqrt(200*1000), v, 1e-9)
	})
}

func TestParseStatistic(t *testing.T) {
	st, err := ParseStatistic("gmean")
	require.NoError(t, err)
	assert.Equal(t, GMean, st)
	_, err = ParseStatistic("mode")
	assert.ErrorIs(t, err, ErrUnknownStatistic)
}

// -----------------------------------------------------------------------------
// Property Tests
// -----------------------------------------------------------------------------

func TestSummarize_Properties(t *testing.T) {
	agg := NewAggregator(WithIterations(500), WithParallelism(1))

	rapid.Check(t, func(t *rapid.T) {
		xs := rapid.SliceOfN(rapid.Float64Range(1, 1e6), 2, 15).Draw(t, "xs")
		st := rapid.SampledFrom([]Statistic{Mean, Median, GMean}).Draw(t, "statistic")
		ms := series("target", "fuzzer", metrics.Overhead, xs...)

		got, err := summarize(agg, ms, metrics.Overhead, st)
		if err != nil {
			t.Fatalf("summarize: %v", err)
		}
		s := got[0]
		if s.StdErr.V < 0 {
			t.Fatalf("negative standard error %g", s.StdErr.V)
		}
		if s.Lower.V > s.Upper.V {
			t.Fatalf("inverted interval [%g, %g]", s.Lower.V, s.Upper.V)
		}

		again, _ := summarize(agg, ms, metrics.Overhead, st)
		if again[0] != s {
			t.Fatalf("summary not reproducible: %+v vs %+v", again[0], s)
		}
	})
}

func TestSummarize_IntervalShrinksWithN(t *testing.T) {
	agg := NewAggregator(WithIterations(2000), WithSeed(1), WithWindow(0))

	rapid.Check(t, func(t *rapid.T) {
		xs := rapid.SliceOfN(rapid.Float64Range(0, 1000), 3, 8).Draw(t, "xs")

		var big []float64
		for range 16 {
			big = append(big, xs...)
		}

		small, err := summarize(agg, series("t", "f", metrics.AUC, xs...), metrics.AUC, Mean)
		if err != nil {
			t.Fatal(err)
		}
		large, err := summarize(agg, series("t", "f", metrics.AUC, big...), metrics.AUC, Mean)
		if err != nil {
			t.Fatal(err)
		}
		if large[0].StdErr.V > small[0].StdErr.V {
			t.Fatalf("stderr grew with N: %g -> %g", small[0].StdErr.V, large[0].StdErr.V)
		}
	})
}
