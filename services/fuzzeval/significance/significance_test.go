// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package significance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/fuzzeval/services/fuzzeval/dataset"
	"github.com/AleutianAI/fuzzeval/services/fuzzeval/metrics"
)

func sample(target, fuzzer string, vals ...float64) []metrics.TrialMetric {
	out := make([]metrics.TrialMetric, len(vals))
	for i, v := range vals {
		out[i] = metrics.TrialMetric{
			Trial: dataset.TrialKey{Target: target, Fuzzer: fuzzer, Trial: i},
			Name:  metrics.BugCount,
			Value: v,
		}
	}
	return out
}

func join(parts ...[]metrics.TrialMetric) []metrics.TrialMetric {
	var out []metrics.TrialMetric
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestTest_IdenticalSamplesShareClass(t *testing.T) {
	ms := join(
		sample("lua", "FAST", 1, 1, 1, 1, 1),
		sample("lua", "RARE", 1, 1, 1, 1, 1),
	)

	res := NewTester().Test(ms, metrics.BugCount)
	require.Len(t, res.Classes, 1)

	c := res.Classes[0]
	assert.Equal(t, "FAST", c.Best, "ties go to the first fuzzer")
	assert.Equal(t, []string{"FAST", "RARE"}, c.Members)
	assert.Len(t, res.Pairs, 4)
	for _, p := range res.Pairs {
		assert.Equal(t, 1.0, p.P)
		assert.True(t, p.Indistinguishable)
	}
}

func TestTest_ZeroSumSkipped(t *testing.T) {
	ms := join(
		sample("sqlite3", "FAST", 2, 3, 2, 3, 2),
		sample("sqlite3", "LIN", 0, 0, 0, 0, 0),
	)

	res := NewTester().Test(ms, metrics.BugCount)
	c, ok := res.Class("sqlite3")
	require.True(t, ok)
	assert.Equal(t, "FAST", c.Best)
	assert.Equal(t, []string{"FAST"}, c.Members)
	assert.False(t, c.Contains("LIN"))

	skipped := 0
	for _, p := range res.Pairs {
		if p.A == "LIN" || p.B == "LIN" {
			assert.Equal(t, SkipZeroSum, p.Skipped)
			assert.False(t, p.Indistinguishable)
			skipped++
		}
	}
	assert.Equal(t, 3, skipped)
}

func TestTest_ZeroSumAppliesToMixedSigns(t *testing.T) {
	ms := join(
		sample("t", "A", -1, 1, -2, 2),
		sample("t", "B", 1, 2, 3, 4),
	)

	res := NewTester().Test(ms, metrics.BugCount)
	for _, p := range res.Pairs {
		if p.A == "A" || p.B == "A" {
			assert.Equal(t, SkipZeroSum, p.Skipped)
		}
	}
}

func TestTest_DistinctSamplesSeparated(t *testing.T) {
	ms := join(
		sample("libpng", "FAST", 1, 2, 3, 4, 5),
		sample("libpng", "RARE", 100, 101, 102, 103, 104),
		sample("libpng", "EXPLORE", 99, 101, 102, 104, 105),
	)

	res := NewTester().Test(ms, metrics.BugCount)
	c := res.Classes[0]
	assert.Equal(t, "EXPLORE", c.Best)
	assert.InDelta(t, 102.2, c.BestMean, 1e-9)
	assert.True(t, c.Contains("RARE"))
	assert.False(t, c.Contains("FAST"))

	for _, p := range res.Pairs {
		if p.A == "EXPLORE" && p.B == "FAST" {
			assert.Less(t, p.P, DefaultAlpha)
			assert.Equal(t, SkipNone, p.Skipped)
		}
	}
}

func TestTest_LabelOrderBreaksTies(t *testing.T) {
	ms := join(
		sample("lua", "FAST", 4, 4, 4),
		sample("lua", "RARE", 4, 4, 4),
	)
	labels := dataset.Labels{{ID: "r", Label: "RARE"}, {ID: "f", Label: "FAST"}}

	res := NewTester(WithLabels(labels)).Test(ms, metrics.BugCount)
	assert.Equal(t, "RARE", res.Classes[0].Best)
	assert.Equal(t, []string{"RARE", "FAST"}, res.Classes[0].Members)
}

func TestTest_TargetsIndependent(t *testing.T) {
	ms := join(
		sample("b", "FAST", 1, 2, 3),
		sample("a", "FAST", 5, 6, 7),
		sample("a", "RARE", 5, 6, 8),
	)
	ms = append(ms, metrics.TrialMetric{
		Trial: dataset.TrialKey{Target: "a", Fuzzer: "X", Trial: 0},
		Name:  metrics.Coverage,
		Value: 1000,
	})

	res := NewTester().Test(ms, metrics.BugCount)
	require.Len(t, res.Classes, 2)
	assert.Equal(t, "a", res.Classes[0].Target)
	assert.Equal(t, "RARE", res.Classes[0].Best)
	assert.False(t, res.Classes[0].Contains("X"))
	assert.Equal(t, "b", res.Classes[1].Target)
	assert.Equal(t, []string{"FAST"}, res.Classes[1].Members)
}

func TestUTest_TiedSamplesUseNormalApproximation(t *testing.T) {
	// Reference values from scipy.stats.mannwhitneyu with default arguments.
	x := []float64{5, 5, 3, 1, 7, 6, 0, 1, 1, 0}
	y := []float64{5, 4, 4, 3, 8, 9, 9, 4, 9, 3}

	u, p, err := uTest(x, y)
	require.NoError(t, err)
	assert.Equal(t, 24.0, u)
	assert.InDelta(t, 0.052014, p, 1e-6)

	res := NewTester().Test(join(
		sample("lua", "FAST", y...),
		sample("lua", "RARE", x...),
	), metrics.BugCount)
	assert.Equal(t, []string{"FAST", "RARE"}, res.Classes[0].Members)
}

func TestUTest_SmallSampleWithoutTiesIsExact(t *testing.T) {
	x := []float64{1, 2, 3}
	y := []float64{4, 5, 6, 7, 8, 9, 10, 11, 12, 13}

	u, p, err := uTest(x, y)
	require.NoError(t, err)
	assert.Equal(t, 0.0, u)
	assert.InDelta(t, 2.0/286, p, 1e-12)
}

func TestUTest_EqualMediansGiveOne(t *testing.T) {
	_, p, err := uTest([]float64{1, 4}, []float64{2, 3})
	require.NoError(t, err)
	assert.Equal(t, 1.0, p)

	_, p, err = uTest([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9}, []float64{9, 8, 7, 6, 5, 4, 3, 2, 1})
	require.NoError(t, err)
	assert.Equal(t, 1.0, p)
}

func TestWithAlpha(t *testing.T) {
	assert.Equal(t, 0.01, NewTester(WithAlpha(0.01)).Alpha())
	assert.Equal(t, DefaultAlpha, NewTester(WithAlpha(2)).Alpha())
}
