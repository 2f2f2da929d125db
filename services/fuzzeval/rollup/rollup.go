// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rollup summarizes bug survival records across fuzzers.
//
// All rollups read records of dimension triggered, keyed by bug, whose value
// is the number of seconds until the bug first triggered in that trial. An
// unset value means the trial never triggered the bug.
package rollup

import (
	"slices"

	"github.com/AleutianAI/fuzzeval/services/fuzzeval/dataset"
)

// DefaultTrialsPerCampaign is the number of trials each campaign runs.
const DefaultTrialsPerCampaign = 10

// Config configures Summarize.
type Config struct {
	// TrialsPerCampaign divides Consistency.
	TrialsPerCampaign int

	// Labels orders fuzzers. Unlisted fuzzers follow in lexical order.
	Labels dataset.Labels
}

// DefaultConfig returns the standard configuration.
func DefaultConfig() Config {
	return Config{TrialsPerCampaign: DefaultTrialsPerCampaign}
}

// Rollup is the cross-fuzzer bug summary.
type Rollup struct {
	// Targets lists every target with survival records, in order.
	Targets []string

	// Fuzzers lists every fuzzer in display order.
	Fuzzers []string

	// Counts is the number of triggering trials, summed over bugs, per
	// (target, fuzzer). A pair with no records is missing from the map.
	Counts map[dataset.GroupKey]int

	// Best lists, per target, the fuzzers with the highest count.
	Best map[string][]string

	// BestTally counts per fuzzer the targets where it is best.
	BestTally map[string]int

	// Totals counts per fuzzer every (target, bug, trial) that triggered.
	Totals map[string]int

	// Unique counts per fuzzer the distinct bugs triggered on each target,
	// summed over targets.
	Unique map[string]int

	// Fastest counts per fuzzer the (target, bug) pairs it triggered in the
	// minimum time. Every tied fuzzer is credited.
	Fastest map[string]int

	// Missed counts per fuzzer the bugs some fuzzer triggered on a target
	// that this fuzzer never did.
	Missed map[string]int

	// Consistency is Totals / Unique / TrialsPerCampaign. Unset when Unique
	// is zero.
	Consistency map[string]dataset.Value
}

// Count returns the count of one (target, fuzzer) pair.
func (r *Rollup) Count(target, fuzzer string) (int, bool) {
	n, ok := r.Counts[dataset.GroupKey{Target: target, Fuzzer: fuzzer}]
	return n, ok
}

type bugKey struct {
	target, bug string
}

// Summarize computes every rollup from the survival records in t.
//
// Inputs:
//   - t: The normalized table. Records of other dimensions are ignored.
//   - cfg: TrialsPerCampaign <= 0 falls back to the default.
//
// Outputs:
//   - *Rollup: Never nil. Empty when t has no survival records.
func Summarize(t *dataset.Table, cfg Config) *Rollup {
	if cfg.TrialsPerCampaign <= 0 {
		cfg.TrialsPerCampaign = DefaultTrialsPerCampaign
	}

	r := &Rollup{
		Counts:      make(map[dataset.GroupKey]int),
		Best:        make(map[string][]string),
		BestTally:   make(map[string]int),
		Totals:      make(map[string]int),
		Unique:      make(map[string]int),
		Fastest:     make(map[string]int),
		Missed:      make(map[string]int),
		Consistency: make(map[string]dataset.Value),
	}

	// fastest time per (target, bug) and the fuzzers achieving it
	minTime := make(map[bugKey]float64)
	minFuzzers := make(map[bugKey][]string)
	// bugs each fuzzer triggered, per target
	hit := make(map[string]map[bugKey]struct{})
	// bugs any fuzzer triggered
	union := make(map[bugKey]struct{})

	fuzzerSet := make(map[string]struct{})

	for trial, recs := range t.All() {
		for _, rec := range recs {
			if rec.Dimension != dataset.DimTriggered || rec.Key.Bug == "" {
				continue
			}
			g := trial.Group()
			if _, ok := r.Counts[g]; !ok {
				r.Counts[g] = 0
				if n := len(r.Targets); n == 0 || r.Targets[n-1] != g.Target {
					r.Targets = append(r.Targets, g.Target)
				}
			}
			fuzzerSet[g.Fuzzer] = struct{}{}

			secs, ok := rec.Value.Get()
			if !ok {
				continue
			}
			bk := bugKey{target: g.Target, bug: rec.Key.Bug}
			r.Counts[g]++
			r.Totals[g.Fuzzer]++
			union[bk] = struct{}{}
			if hit[g.Fuzzer] == nil {
				hit[g.Fuzzer] = make(map[bugKey]struct{})
			}
			hit[g.Fuzzer][bk] = struct{}{}

			switch best, seen := minTime[bk]; {
			case !seen || secs < best:
				minTime[bk] = secs
				minFuzzers[bk] = []string{g.Fuzzer}
			case secs == best && !slices.Contains(minFuzzers[bk], g.Fuzzer):
				minFuzzers[bk] = append(minFuzzers[bk], g.Fuzzer)
			}
		}
	}

	r.Fuzzers = fuzzerOrder(fuzzerSet, cfg.Labels)

	for _, fuzzers := range minFuzzers {
		for _, f := range fuzzers {
			r.Fastest[f]++
		}
	}

	for _, f := range r.Fuzzers {
		r.Unique[f] = len(hit[f])
		for bk := range union {
			if _, ok := hit[f][bk]; !ok {
				r.Missed[f]++
			}
		}
		if r.Unique[f] > 0 {
			r.Consistency[f] = dataset.Some(float64(r.Totals[f]) / float64(r.Unique[f]) / float64(cfg.TrialsPerCampaign))
		} else {
			r.Consistency[f] = dataset.None()
		}
	}

	for _, target := range r.Targets {
		best, top := []string(nil), -1
		for _, f := range r.Fuzzers {
			n, ok := r.Count(target, f)
			switch {
			case !ok:
			case n > top:
				best, top = []string{f}, n
			case n == top:
				best = append(best, f)
			}
		}
		r.Best[target] = best
		for _, f := range best {
			r.BestTally[f]++
		}
	}

	return r
}

func fuzzerOrder(set map[string]struct{}, labels dataset.Labels) []string {
	out := make([]string, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	slices.Sort(out)
	labels.SortFuzzers(out)
	return out
}
