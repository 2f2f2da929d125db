// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"fmt"

	"github.com/AleutianAI/fuzzeval/services/fuzzeval/aggregate"
	"github.com/AleutianAI/fuzzeval/services/fuzzeval/dataset"
	"github.com/AleutianAI/fuzzeval/services/fuzzeval/metrics"
	"github.com/AleutianAI/fuzzeval/services/fuzzeval/render"
)

// DocumentOptions controls how a Report is laid out.
type DocumentOptions struct {
	// ScalePerDay converts the pooled overhead mean to seconds per 24 hour
	// trial. Per-target overhead grids stay in microseconds.
	ScalePerDay bool

	// Pairs adds the p-value of every tested pair.
	Pairs bool

	// Audit adds the counts of filtered trials, absent metrics, rejected
	// trials and dropped fuzzers.
	Audit bool
}

// Document lays the report out for a render.Writer.
func (r *Report) Document(opts DocumentOptions) *render.Document {
	doc := &render.Document{Title: r.Plan.Report, RunID: r.RunID}

	for _, t := range r.Summaries {
		est := render.SummaryGrid(t.Spec.String(), t.Stats, r.Targets, r.Fuzzers, render.FieldEstimate)
		se := render.SummaryGrid(t.Spec.String()+" stderr", t.Stats, r.Targets, r.Fuzzers, render.FieldStdErr)
		doc.Grids = append(doc.Grids, est, se)
	}
	for _, t := range r.Pooled {
		g := render.FuzzerGrid(t.Spec.String(), t.Stats, r.Fuzzers)
		if opts.ScalePerDay && t.Spec.Metric == metrics.Overhead && t.Spec.Statistic == aggregate.Mean {
			g.Title += " (s/day)"
			g.Apply(render.ScaleOverheadPerDay, 0, 1, 2, 3)
		}
		doc.Grids = append(doc.Grids, g)
	}
	if r.Rollup != nil {
		doc.Grids = append(doc.Grids, render.CountGrid(r.Rollup))
		doc.Tallies = append(doc.Tallies, render.RollupTallies(r.Rollup)...)
	}

	for i, res := range r.Significance {
		name := r.Plan.Significance[i]
		doc.Tallies = append(doc.Tallies, render.ClassTally(fmt.Sprintf("Best %s (equivalence class)", name), res))
		if opts.Pairs {
			doc.Tallies = append(doc.Tallies, render.PairTally(fmt.Sprintf("%s p-values", name), res))
		}
	}

	if opts.Audit {
		doc.Tallies = append(doc.Tallies, r.auditTally())
	}
	return doc
}

func (r *Report) auditTally() render.Tally {
	count := func(key string, n int) render.Item {
		return render.Item{Key: key, Value: dataset.Some(float64(n))}
	}
	return render.Tally{
		Title: "Audit",
		Items: []render.Item{
			count("filtered trials", len(r.Filtered)),
			count("absent metrics", len(r.Absent)),
			count("rejected trials", len(r.Rejected)),
			count("dropped fuzzers", len(r.DroppedFuzzers)),
			count("excluded targets", len(r.ExcludedTargets)),
		},
	}
}
