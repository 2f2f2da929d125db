// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Attribute keys shared by spans and metrics.
const (
	AttrReport = attribute.Key("fuzzeval.report")
	AttrStage  = attribute.Key("fuzzeval.stage")
	AttrMetric = attribute.Key("fuzzeval.metric")
	AttrTarget = attribute.Key("fuzzeval.target")
	AttrReason = attribute.Key("fuzzeval.reason")
)

// Metrics contains the instruments recorded by a pipeline run.
//
// Description:
//
//	Counters follow the audit trail of a run: trials in, trials filtered,
//	cells absent, records rejected and pairs skipped. All metrics use the
//	"fuzzeval_" prefix.
//
// Thread Safety: Safe for concurrent use after creation.
type Metrics struct {
	// TrialsTotal counts trials that reached extraction, by report.
	TrialsTotal metric.Int64Counter

	// TrialsFiltered counts trials excluded by an admission floor, by metric.
	TrialsFiltered metric.Int64Counter

	// MetricsAbsent counts (trial, metric) cells without a value, by metric.
	MetricsAbsent metric.Int64Counter

	// RecordsRejected counts trial groups withheld for conflicting
	// observations.
	RecordsRejected metric.Int64Counter

	// FuzzersDropped counts fuzzer ids with no configured label.
	FuzzersDropped metric.Int64Counter

	// PairsSkipped counts significance pairs not tested, by reason.
	PairsSkipped metric.Int64Counter

	// GroupsSummarized counts bootstrapped groups, by metric.
	GroupsSummarized metric.Int64Counter

	// StageDuration records each pipeline stage in seconds.
	StageDuration metric.Float64Histogram
}

// NewMetrics registers every instrument with meter.
//
// Outputs:
//   - *Metrics: Never nil on success.
//   - error: Non-nil if an instrument cannot be created.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.TrialsTotal, "fuzzeval_trials_total", "Trials that reached metric extraction", "{trial}"},
		{&m.TrialsFiltered, "fuzzeval_trials_filtered_total", "Trials excluded by an admission floor", "{trial}"},
		{&m.MetricsAbsent, "fuzzeval_metrics_absent_total", "Trial metrics without a value", "{metric}"},
		{&m.RecordsRejected, "fuzzeval_records_rejected_total", "Trial groups withheld for conflicting observations", "{trial}"},
		{&m.FuzzersDropped, "fuzzeval_fuzzers_dropped_total", "Fuzzer ids without a configured label", "{fuzzer}"},
		{&m.PairsSkipped, "fuzzeval_pairs_skipped_total", "Significance pairs not tested", "{pair}"},
		{&m.GroupsSummarized, "fuzzeval_groups_summarized_total", "Groups reduced to a summary statistic", "{group}"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", c.name, err)
		}
	}

	m.StageDuration, err = meter.Float64Histogram(
		"fuzzeval_stage_duration_seconds",
		metric.WithDescription("Pipeline stage duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300),
	)
	if err != nil {
		return nil, fmt.Errorf("create stage_duration: %w", err)
	}

	return m, nil
}
