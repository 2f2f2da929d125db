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
	"math/rand/v2"
	"slices"

	"github.com/aclements/go-moremath/stats"
	"github.com/cespare/xxhash/v2"
	"gonum.org/v1/gonum/stat"

	"github.com/AleutianAI/fuzzeval/services/fuzzeval/dataset"
	"github.com/AleutianAI/fuzzeval/services/fuzzeval/metrics"
)

// estimate applies a point estimator to xs. For GMean every value must be
// positive; callers check this first.
func estimate(st Statistic, xs []float64) float64 {
	switch st {
	case GMean:
		return stat.GeometricMean(xs, nil)
	case Median:
		return stats.Sample{Xs: xs}.Quantile(0.5)
	default:
		return stat.Mean(xs, nil)
	}
}

// newGroupRand returns the resampling stream for one group. The stream
// depends only on the base seed and the group identity.
func newGroupRand(seed uint64, g dataset.GroupKey, metric metrics.Name, st Statistic, tag string) *rand.Rand {
	d := xxhash.New()
	for _, part := range []string{g.Target, g.Fuzzer, string(metric), string(st), tag} {
		_, _ = d.WriteString(part)
		_, _ = d.Write([]byte{0})
	}
	return rand.New(rand.NewPCG(seed, d.Sum64()))
}

type interval struct {
	stdErr, lower, upper float64
}

// bootstrap resamples xs with replacement iterations times and returns the
// standard deviation (ddof=1) and percentile bounds of the resampled
// statistic.
func bootstrap(xs []float64, st Statistic, iterations int, level float64, rng *rand.Rand) interval {
	n := len(xs)
	boot := make([]float64, iterations)
	sample := make([]float64, n)

	for i := range boot {
		for j := range sample {
			sample[j] = xs[rng.IntN(n)]
		}
		boot[i] = estimate(st, sample)
	}

	slices.Sort(boot)
	alpha := (1 - level) / 2
	return interval{
		stdErr: stat.StdDev(boot, nil),
		lower:  stat.Quantile(alpha, stat.Empirical, boot, nil),
		upper:  stat.Quantile(1-alpha, stat.Empirical, boot, nil),
	}
}
