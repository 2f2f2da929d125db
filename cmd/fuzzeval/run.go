// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/fuzzeval/pkg/logging"
	"github.com/AleutianAI/fuzzeval/services/fuzzeval/config"
	"github.com/AleutianAI/fuzzeval/services/fuzzeval/loader"
	"github.com/AleutianAI/fuzzeval/services/fuzzeval/pipeline"
	"github.com/AleutianAI/fuzzeval/services/fuzzeval/render"
	"github.com/AleutianAI/fuzzeval/services/fuzzeval/telemetry"
)

// shutdownTimeout bounds exporter flushing after the report is written.
const shutdownTimeout = 5 * time.Second

// runReport loads, computes and renders one report.
func runReport(cmd *cobra.Command, r report, input string, opts *options) (err error) {
	ctx := cmd.Context()

	cfg, err := loadConfig(cmd, r.name, opts)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg, r.name, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, logger.Close()) }()
	log := logger.Slog()

	tel, err := telemetry.Init(ctx, telemetryConfig(opts, cmd.ErrOrStderr()))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		err = errors.Join(err, tel.Shutdown(sctx))
	}()

	format, err := render.ParseFormat(opts.format)
	if err != nil {
		return err
	}

	src, closeSrc, err := openSource(ctx, input, r.kind, opts.saKey)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, closeSrc()) }()

	ld := loader.New(src,
		loader.WithTargets(cfg.Targets),
		loader.WithFuzzers(cfg.Fuzzers.IDs()),
		loader.WithLogger(log),
	)
	obs, skipped, err := ld.Load(ctx, r.kind)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", src, err)
	}
	log.Info("input loaded",
		slog.String("source", src.String()),
		slog.Int("observations", len(obs)),
		slog.Int("skipped_files", len(skipped)),
	)

	plan, err := pipeline.PlanFor(r.name)
	if err != nil {
		return err
	}
	metrics, err := telemetry.NewMetrics(tel.Meter())
	if err != nil {
		return err
	}
	p, err := pipeline.New(cfg, plan,
		pipeline.WithLogger(log),
		pipeline.WithTracer(tel.Tracer()),
		pipeline.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}
	rep, err := p.Run(ctx, obs)
	if err != nil {
		return err
	}

	if err := writeReport(cmd, rep, format, opts); err != nil {
		return err
	}

	if opts.metricsOut != "" {
		if err := tel.WriteTextfile(opts.metricsOut); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	return nil
}

// loadConfig loads the report preset, overlays the config file, then
// applies explicitly set flags.
func loadConfig(cmd *cobra.Command, name string, opts *options) (*config.Config, error) {
	cfg, err := config.Load(name, opts.configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("seed") {
		cfg.Bootstrap.Seed = opts.seed
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = opts.logLevel
	}
	if flags.Changed("log-json") {
		cfg.Logging.JSON = opts.logJSON
	}
	if flags.Changed("log-dir") {
		cfg.Logging.Dir = opts.logDir
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, service string, w io.Writer) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	return logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: service,
		JSON:    cfg.Logging.JSON,
		Output:  w,
	}), nil
}

func telemetryConfig(opts *options, w io.Writer) telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.Stdout = w
	switch {
	case opts.otlpEndpoint != "":
		tc.TraceExporter = telemetry.ExporterOTLP
		tc.OTLPEndpoint = opts.otlpEndpoint
	case opts.trace:
		tc.TraceExporter = telemetry.ExporterStdout
	}
	if opts.trace {
		tc.MetricExporter = telemetry.ExporterStdout
	}
	return tc
}

func writeReport(cmd *cobra.Command, rep *pipeline.Report, format render.Format, opts *options) (err error) {
	var out io.Writer = cmd.OutOrStdout()
	if opts.output != "" {
		f, ferr := os.Create(opts.output)
		if ferr != nil {
			return fmt.Errorf("failed to create %s: %w", opts.output, ferr)
		}
		defer func() { err = errors.Join(err, f.Close()) }()
		out = f
	}

	var renderOpts []render.Option
	if opts.missing != "" {
		renderOpts = append(renderOpts, render.WithMissing(opts.missing))
	}
	w, err := render.New(render.Resolve(format, out), renderOpts...)
	if err != nil {
		return err
	}

	doc := rep.Document(pipeline.DocumentOptions{
		ScalePerDay: opts.scalePerDay,
		Pairs:       opts.pairs,
		Audit:       opts.audit,
	})
	return w.Write(out, doc)
}
