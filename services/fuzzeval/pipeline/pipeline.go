// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline runs a report from raw observations to results.
//
// # Stages
//
//	observations ─► relabel ─► exclude ─► normalize ─► extract (per family)
//	                                                        │
//	                     ┌──────────────────────────────────┤ window
//	                     ▼                   ▼              ▼
//	                 summarize          significance     rollup
//	                     └───────────────────┴──────────────┘
//	                                         ▼
//	                                      Report
//
// Every stage runs in its own span and records its duration. Data problems
// (conflicting observations, filtered trials, absent metrics, unmapped
// fuzzers) never fail a run; they are collected on the Report, logged and
// counted.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/fuzzeval/services/fuzzeval/aggregate"
	"github.com/AleutianAI/fuzzeval/services/fuzzeval/config"
	"github.com/AleutianAI/fuzzeval/services/fuzzeval/dataset"
	"github.com/AleutianAI/fuzzeval/services/fuzzeval/metrics"
	"github.com/AleutianAI/fuzzeval/services/fuzzeval/rollup"
	"github.com/AleutianAI/fuzzeval/services/fuzzeval/significance"
	"github.com/AleutianAI/fuzzeval/services/fuzzeval/telemetry"
)

// -----------------------------------------------------------------------------
// Report
// -----------------------------------------------------------------------------

// SummaryTable holds the per-group summaries of one SummarySpec.
type SummaryTable struct {
	Spec  SummarySpec
	Stats []aggregate.SummaryStat
}

// PooledTable holds the per-fuzzer summaries of one PooledSpec.
type PooledTable struct {
	Spec  PooledSpec
	Stats []aggregate.SummaryStat
}

// Report is the outcome of one run.
type Report struct {
	RunID string
	Plan  Plan

	// Fuzzers is the display column order. Targets lists the targets that
	// reached extraction; each gets a row in every per-target grid.
	Fuzzers []string
	Targets []string

	Summaries    []SummaryTable
	Pooled       []PooledTable
	Significance []*significance.Result
	Rollup       *rollup.Rollup

	// Audit trail.
	Filtered        []*metrics.FilteredTrial
	Absent          []*metrics.Absence
	Rejected        []*dataset.InconsistentObservationError
	DroppedFuzzers  []string
	ExcludedTargets []string
}

// -----------------------------------------------------------------------------
// Pipeline
// -----------------------------------------------------------------------------

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithTracer sets the tracer. The default is the global tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(p *Pipeline) {
		if tracer != nil {
			p.tracer = tracer
		}
	}
}

// WithMetrics sets the instruments. The default registers them with the
// global meter.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// Pipeline runs one report plan under one configuration.
//
// Thread Safety: Run may be called concurrently.
type Pipeline struct {
	cfg     *config.Config
	plan    Plan
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *telemetry.Metrics

	extractor  *metrics.Extractor
	aggregator *aggregate.Aggregator
	tester     *significance.Tester
}

// New builds a Pipeline.
//
// Inputs:
//   - cfg: A validated configuration.
//   - plan: What to compute. See PlanFor.
//
// Outputs:
//   - *Pipeline: Ready to Run.
//   - error: A statistic the plan asks for does not apply to its metric, or
//     instruments cannot be registered.
func New(cfg *config.Config, plan Plan, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		cfg:    cfg,
		plan:   plan,
		logger: slog.Default(),
		tracer: otel.Tracer(telemetry.ScopeName),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		m, err := telemetry.NewMetrics(otel.Meter(telemetry.ScopeName))
		if err != nil {
			return nil, err
		}
		p.metrics = m
	}

	for _, s := range plan.PerTarget {
		if !s.Statistic.Applicable(s.Metric) {
			return nil, fmt.Errorf("%w: %s", aggregate.ErrStatisticNotApplicable, s)
		}
	}
	for _, s := range plan.Pooled {
		if !s.Statistic.Applicable(s.Metric) {
			return nil, fmt.Errorf("%w: %s", aggregate.ErrStatisticNotApplicable, s)
		}
	}

	extractorOpts := []metrics.Option{metrics.WithLogger(p.logger)}
	for _, n := range metrics.All() {
		extractorOpts = append(extractorOpts, metrics.WithAdmissionFloor(n, cfg.AdmissionFloors()[n]))
	}
	p.extractor = metrics.NewExtractor(extractorOpts...)

	p.aggregator = aggregate.NewAggregator(
		aggregate.WithWindow(cfg.Window),
		aggregate.WithIterations(cfg.Bootstrap.Iterations),
		aggregate.WithConfidenceLevel(cfg.Bootstrap.ConfidenceLevel),
		aggregate.WithSeed(cfg.Bootstrap.Seed),
		aggregate.WithParallelism(cfg.Parallelism),
		aggregate.WithLogger(p.logger),
	)
	p.tester = significance.NewTester(
		significance.WithAlpha(cfg.Alpha),
		significance.WithLabels(cfg.Fuzzers),
		significance.WithLogger(p.logger),
	)
	return p, nil
}

// stage runs fn inside a span and records its duration.
func (p *Pipeline) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := p.tracer.Start(ctx, "fuzzeval."+name, trace.WithAttributes(telemetry.AttrStage.String(name)))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	p.metrics.StageDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(telemetry.AttrStage.String(name), telemetry.AttrReport.String(p.plan.Report)))

	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("%s: %w", name, err)
	}
	telemetry.SetSpanOK(span)
	return nil
}

// Run computes the report.
//
// Description:
//
//	Observations are relabelled and filtered by the configuration, then
//	normalized. Each metric family is extracted separately. The trailing
//	window is taken over the admitted trials of each family, so a trial
//	with an absent metric still occupies its slot. The windowed metrics
//	feed the summaries and the significance tests.
//
// Inputs:
//   - ctx: Cancels the run between stages and between trials.
//   - obs: Raw loader output.
//
// Outputs:
//   - *Report: Results and audit trail.
//   - error: Structurally invalid observations or ctx.Err(). Data problems
//     are reported on the Report instead.
func (p *Pipeline) Run(ctx context.Context, obs []dataset.Observation) (*Report, error) {
	rep := &Report{RunID: uuid.NewString(), Plan: p.plan}
	reportAttr := telemetry.AttrReport.String(p.plan.Report)

	ctx, span := p.tracer.Start(ctx, "fuzzeval.run", trace.WithAttributes(
		reportAttr,
		attribute.String("fuzzeval.run_id", rep.RunID),
		attribute.Int("fuzzeval.observations", len(obs)),
	))
	defer span.End()
	logger := telemetry.LoggerWithTrace(ctx, p.logger.With(slog.String("run_id", rep.RunID)))

	var table *dataset.Table
	var window *aggregate.Window

	stages := []struct {
		name string
		fn   func(ctx context.Context) error
	}{
		{"relabel", func(ctx context.Context) error {
			obs, rep.DroppedFuzzers = p.cfg.Fuzzers.Relabel(obs)
			for _, id := range rep.DroppedFuzzers {
				logger.Warn("dropping fuzzer without a configured label", slog.String("fuzzer", id))
			}
			p.metrics.FuzzersDropped.Add(ctx, int64(len(rep.DroppedFuzzers)), metric.WithAttributes(reportAttr))
			return nil
		}},
		{"exclude", func(ctx context.Context) error {
			obs, rep.ExcludedTargets = p.exclude(obs)
			for _, t := range rep.ExcludedTargets {
				logger.Info("excluding target", slog.String("target", t))
			}
			return nil
		}},
		{"normalize", func(ctx context.Context) error {
			var err error
			table, err = dataset.Normalize(obs)
			if err != nil {
				return err
			}
			rep.Rejected = table.Rejected()
			for _, r := range rep.Rejected {
				logger.Warn("withholding trial with conflicting observations", slog.String("error", r.Error()))
			}
			p.metrics.RecordsRejected.Add(ctx, int64(len(rep.Rejected)), metric.WithAttributes(reportAttr))
			rep.Targets = table.Targets()
			rep.Fuzzers = p.fuzzerOrder(table)
			return nil
		}},
		{"extract", func(ctx context.Context) error {
			results, err := p.extract(ctx, table, rep)
			if err != nil {
				return err
			}
			window = p.aggregator.Window(results...)
			p.metrics.TrialsTotal.Add(ctx, int64(table.Len()), metric.WithAttributes(reportAttr))
			return nil
		}},
		{"summarize", func(ctx context.Context) error {
			return p.summarize(ctx, window, rep)
		}},
		{"significance", func(ctx context.Context) error {
			for _, m := range p.plan.Significance {
				res := p.tester.Test(window.Metrics, m)
				for _, pr := range res.Pairs {
					if pr.Skipped != significance.SkipNone {
						p.metrics.PairsSkipped.Add(ctx, 1, metric.WithAttributes(
							reportAttr, telemetry.AttrMetric.String(string(m)), telemetry.AttrReason.String(string(pr.Skipped))))
					}
				}
				rep.Significance = append(rep.Significance, res)
			}
			return nil
		}},
		{"rollup", func(ctx context.Context) error {
			if p.plan.Rollup {
				rep.Rollup = rollup.Summarize(table, rollup.Config{
					TrialsPerCampaign: p.cfg.TrialsPerCampaign,
					Labels:            p.cfg.Fuzzers,
				})
			}
			return nil
		}},
	}

	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		if err := p.stage(ctx, s.name, s.fn); err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
	}

	logger.Info("report computed",
		slog.String("report", p.plan.Report),
		slog.Int("trials", table.Len()),
		slog.Int("filtered", len(rep.Filtered)),
		slog.Int("absent", len(rep.Absent)),
		slog.Int("rejected", len(rep.Rejected)),
	)
	telemetry.SetSpanOK(span)
	return rep, nil
}

func (p *Pipeline) exclude(obs []dataset.Observation) ([]dataset.Observation, []string) {
	if len(p.cfg.ExcludeTargets) == 0 {
		return obs, nil
	}
	out := obs[:0:0]
	var excluded []string
	for _, o := range obs {
		if p.cfg.Excluded(o.Trial.Target) {
			if !slices.Contains(excluded, o.Trial.Target) {
				excluded = append(excluded, o.Trial.Target)
			}
			continue
		}
		out = append(out, o)
	}
	return out, excluded
}

// fuzzerOrder returns the fuzzers present in the table, configured labels
// first.
func (p *Pipeline) fuzzerOrder(table *dataset.Table) []string {
	out := table.Fuzzers()
	p.cfg.Fuzzers.SortFuzzers(out)
	return out
}

func (p *Pipeline) extract(ctx context.Context, table *dataset.Table, rep *Report) ([]*metrics.Result, error) {
	var results []*metrics.Result
	for _, family := range p.plan.Families {
		res, err := p.extractor.Extract(ctx, table, family...)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
		rep.Absent = append(rep.Absent, res.Absent...)
		rep.Filtered = append(rep.Filtered, res.Filtered...)

		for _, f := range res.Filtered {
			p.metrics.TrialsFiltered.Add(ctx, 1, metric.WithAttributes(
				telemetry.AttrReport.String(p.plan.Report),
				telemetry.AttrMetric.String(string(f.Metric)),
				telemetry.AttrTarget.String(f.Trial.Target)))
		}
		for _, a := range res.Absent {
			p.metrics.MetricsAbsent.Add(ctx, 1, metric.WithAttributes(
				telemetry.AttrReport.String(p.plan.Report),
				telemetry.AttrMetric.String(string(a.Metric)),
				telemetry.AttrTarget.String(a.Trial.Target)))
		}
	}
	return results, nil
}

func (p *Pipeline) summarize(ctx context.Context, w *aggregate.Window, rep *Report) error {
	for _, s := range p.plan.PerTarget {
		stats, err := p.aggregator.Summarize(ctx, w, s.Metric, s.Statistic)
		if err != nil {
			return err
		}
		p.metrics.GroupsSummarized.Add(ctx, int64(len(stats)), metric.WithAttributes(telemetry.AttrMetric.String(string(s.Metric))))
		rep.Summaries = append(rep.Summaries, SummaryTable{Spec: s, Stats: stats})
	}
	for _, s := range p.plan.Pooled {
		stats, err := p.aggregator.SummarizeAcrossTargets(ctx, w, s.Metric, s.Statistic, s.Pooling)
		if err != nil {
			return err
		}
		p.metrics.GroupsSummarized.Add(ctx, int64(len(stats)), metric.WithAttributes(telemetry.AttrMetric.String(string(s.Metric))))
		rep.Pooled = append(rep.Pooled, PooledTable{Spec: s, Stats: stats})
	}
	return nil
}
