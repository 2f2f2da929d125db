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
	"github.com/spf13/cobra"

	"github.com/AleutianAI/fuzzeval/services/fuzzeval/config"
	"github.com/AleutianAI/fuzzeval/services/fuzzeval/loader"
)

// options holds every flag. One value is shared by the root and its report
// commands.
type options struct {
	configPath   string
	format       string
	output       string
	missing      string
	seed         uint64
	logLevel     string
	logJSON      bool
	logDir       string
	trace        bool
	otlpEndpoint string
	metricsOut   string
	saKey        string
	scalePerDay  bool
	pairs        bool
	audit        bool
}

// report describes one report command.
type report struct {
	name  string
	kind  loader.Kind
	short string
	long  string
}

var reports = []report{
	{
		name:  config.ReportBugs,
		kind:  loader.KindSurvival,
		short: "Bugs triggered per target and fuzzer",
		long: `Reads a survival CSV (one row per target, bug and fuzzer with a
triggered_N column per trial) and reports the mean bug count per target,
the statistically best fuzzers, and the cross-fuzzer bug rollups.`,
	},
	{
		name:  config.ReportCoverage,
		kind:  loader.KindCoverage,
		short: "Final edge coverage and coverage AUC",
		long: `Reads coverage snapshot CSVs (benchmark, fuzzer, trial_id, time,
edges_covered; optionally gzipped) and reports final coverage and the
coverage AUC per target, with the statistically best fuzzers.`,
	},
	{
		name:  config.ReportOverhead,
		kind:  loader.KindOverhead,
		short: "Scheduler overhead",
		long: `Reads per-trial overhead logs named <target>-<fuzzer>_trial-<N>_log.csv.gz
and reports the geometric mean overhead per target plus update time,
update variance and update count per fuzzer.`,
	},
	{
		name:  config.ReportExecs,
		kind:  loader.KindFuzzerStats,
		short: "Execution speed",
		long: `Reads fuzzer_stats files named <target>-<fuzzer>-trial-<N> and reports
executions per second per target, and mean, median and geometric mean of
the per-target means per fuzzer. Trials shorter than the admission floor
(20h by default) are excluded.`,
	},
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "fuzzeval",
		Short: "Statistics for fuzzing campaign results",
		Long: `fuzzeval turns raw fuzzing campaign output into report tables:
point estimates with bootstrap confidence intervals, Mann-Whitney
equivalence classes, and cross-fuzzer bug rollups.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "YAML file overlaid on the report preset")
	pf.StringVarP(&opts.format, "format", "f", "auto", "Output format: auto, latex, json or text")
	pf.StringVarP(&opts.output, "output", "o", "", "Write the report to a file instead of stdout")
	pf.StringVar(&opts.missing, "missing", "", "Marker for empty cells (format default when unset)")
	pf.Uint64Var(&opts.seed, "seed", 0, "Bootstrap seed (overrides the config)")
	pf.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn or error (overrides the config)")
	pf.BoolVar(&opts.logJSON, "log-json", false, "Write logs as JSON")
	pf.StringVar(&opts.logDir, "log-dir", "", "Also write JSON logs to this directory")
	pf.BoolVar(&opts.trace, "trace", false, "Print spans and metric snapshots to stderr")
	pf.StringVar(&opts.otlpEndpoint, "otlp-endpoint", "", "Export spans to this OTLP gRPC endpoint")
	pf.StringVar(&opts.metricsOut, "metrics-out", "", "Write run metrics to this Prometheus textfile")
	pf.StringVar(&opts.saKey, "sa-key", "", "Service account key for gs:// inputs (default credentials when unset)")

	for _, r := range reports {
		root.AddCommand(newReportCmd(r, opts))
	}
	return root
}

func newReportCmd(r report, opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   r.name + " <input>",
		Short: r.short,
		Long: r.long + `

<input> is a file, a directory, or a gs://bucket/prefix URL.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, r, args[0], opts)
		},
	}
	cmd.Flags().BoolVar(&opts.pairs, "pairs", false, "Include the p-value of every tested fuzzer pair")
	cmd.Flags().BoolVar(&opts.audit, "audit", false, "Include counts of filtered, absent and rejected data")
	if r.name == config.ReportOverhead {
		cmd.Flags().BoolVar(&opts.scalePerDay, "scale-per-day", false, "Report the pooled overhead mean as seconds per 24h trial")
	}
	return cmd
}
