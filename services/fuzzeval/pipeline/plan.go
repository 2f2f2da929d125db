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
	"github.com/AleutianAI/fuzzeval/services/fuzzeval/config"
	"github.com/AleutianAI/fuzzeval/services/fuzzeval/metrics"
)

// SummarySpec asks for one statistic of one metric per (target, fuzzer).
type SummarySpec struct {
	Metric    metrics.Name
	Statistic aggregate.Statistic
}

func (s SummarySpec) String() string {
	return fmt.Sprintf("%s %s", s.Metric, s.Statistic)
}

// PooledSpec asks for one statistic of one metric per fuzzer across
// targets.
type PooledSpec struct {
	Metric    metrics.Name
	Statistic aggregate.Statistic
	Pooling   aggregate.Pooling
}

func (s PooledSpec) String() string {
	return fmt.Sprintf("%s %s over %s", s.Metric, s.Statistic, s.Pooling)
}

// Plan lists what a report computes.
type Plan struct {
	Report string

	// Families are extracted in separate passes so the admission floor of
	// one family never filters trials of another.
	Families [][]metrics.Name

	PerTarget    []SummarySpec
	Pooled       []PooledSpec
	Significance []metrics.Name

	// Rollup enables the cross-fuzzer bug rollups.
	Rollup bool
}

// PlanFor returns the built-in plan of a report.
func PlanFor(report string) (Plan, error) {
	switch report {
	case config.ReportBugs:
		return Plan{
			Report:       report,
			Families:     [][]metrics.Name{{metrics.BugCount}},
			PerTarget:    []SummarySpec{{metrics.BugCount, aggregate.Mean}},
			Significance: []metrics.Name{metrics.BugCount},
			Rollup:       true,
		}, nil

	case config.ReportCoverage:
		return Plan{
			Report:   report,
			Families: [][]metrics.Name{{metrics.Coverage, metrics.AUC}},
			PerTarget: []SummarySpec{
				{metrics.Coverage, aggregate.Mean},
				{metrics.AUC, aggregate.Mean},
			},
			Significance: []metrics.Name{metrics.Coverage, metrics.AUC},
		}, nil

	case config.ReportOverhead:
		return Plan{
			Report: report,
			Families: [][]metrics.Name{{
				metrics.Overhead, metrics.UpdateTime, metrics.UpdateVariance, metrics.UpdateCount,
			}},
			PerTarget: []SummarySpec{{metrics.Overhead, aggregate.GMean}},
			Pooled: []PooledSpec{
				{metrics.Overhead, aggregate.Mean, aggregate.PoolTrials},
				{metrics.UpdateTime, aggregate.Mean, aggregate.PoolTrials},
				{metrics.UpdateVariance, aggregate.Mean, aggregate.PoolTrials},
				{metrics.UpdateCount, aggregate.GMean, aggregate.PoolTrials},
			},
		}, nil

	case config.ReportExecs:
		return Plan{
			Report:    report,
			Families:  [][]metrics.Name{{metrics.ExecsPerSec}},
			PerTarget: []SummarySpec{{metrics.ExecsPerSec, aggregate.Mean}},
			Pooled: []PooledSpec{
				{metrics.ExecsPerSec, aggregate.Mean, aggregate.PoolTargetMeans},
				{metrics.ExecsPerSec, aggregate.Median, aggregate.PoolTargetMeans},
				{metrics.ExecsPerSec, aggregate.GMean, aggregate.PoolTargetMeans},
			},
		}, nil
	}
	return Plan{}, fmt.Errorf("%w: no plan for report %q", config.ErrInvalidConfig, report)
}
