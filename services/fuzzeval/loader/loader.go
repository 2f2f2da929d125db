// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package loader turns campaign output files into raw observations.
//
// Four layouts are understood: a bug survival CSV, coverage snapshot CSVs,
// per-trial scheduler overhead logs and per-trial AFL fuzzer_stats files.
// Per-trial layouts carry the target, fuzzer and trial in the file name and
// are resolved with a Matcher. Files that cannot be resolved or read are
// skipped and reported, never fatal.
package loader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/AleutianAI/fuzzeval/services/fuzzeval/dataset"
)

// Kind selects an input layout.
type Kind string

const (
	KindSurvival    Kind = "survival"
	KindCoverage    Kind = "coverage"
	KindOverhead    Kind = "overhead"
	KindFuzzerStats Kind = "fuzzer_stats"
)

// Skip records an input file that contributed nothing.
type Skip struct {
	Name   string
	Reason error
}

// Option configures a Loader.
type Option func(*Loader)

// WithTargets sets the target prefixes for per-trial file names.
func WithTargets(targets []string) Option {
	return func(l *Loader) {
		l.targets = targets
	}
}

// WithFuzzers sets the fuzzer id prefixes for per-trial file names.
func WithFuzzers(fuzzers []string) Option {
	return func(l *Loader) {
		l.fuzzers = fuzzers
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// Loader reads observations from a Source.
//
// Thread Safety: Safe for concurrent use if the Source is.
type Loader struct {
	source  Source
	targets []string
	fuzzers []string
	logger  *slog.Logger
}

// New creates a Loader over src.
func New(src Source, opts ...Option) *Loader {
	l := &Loader{source: src, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads every file of the source as the given layout.
//
// Outputs:
//   - []dataset.Observation: Observations of every readable file, in file
//     order.
//   - []Skip: Files skipped because their name did not resolve, they were
//     empty, or they failed to parse.
//   - error: Listing failure, unknown kind, or ctx.Err().
func (l *Loader) Load(ctx context.Context, kind Kind) ([]dataset.Observation, []Skip, error) {
	lay, err := l.parser(kind)
	if err != nil {
		return nil, nil, err
	}

	names, err := l.source.List(ctx)
	if err != nil {
		return nil, nil, err
	}

	var out []dataset.Observation
	var skipped []Skip
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		obs, err := l.loadFile(ctx, name, lay)
		if err != nil {
			l.logger.Info("skipping file",
				slog.String("source", l.source.String()),
				slog.String("file", name),
				slog.String("reason", err.Error()),
			)
			skipped = append(skipped, Skip{Name: name, Reason: err})
			continue
		}
		out = append(out, obs...)
	}

	l.logger.Debug("files loaded",
		slog.String("kind", string(kind)),
		slog.Int("files", len(names)),
		slog.Int("skipped", len(skipped)),
		slog.Int("observations", len(out)),
	)
	return out, skipped, nil
}

// layout resolves a file name to its trial, then parses its content. Layouts
// whose files hold many trials ignore the resolved key.
type layout struct {
	resolve func(name string) (dataset.TrialKey, error)
	parse   func(trial dataset.TrialKey, r io.Reader) ([]dataset.Observation, error)
}

func anyName(string) (dataset.TrialKey, error) {
	return dataset.TrialKey{}, nil
}

func (l *Loader) parser(kind Kind) (layout, error) {
	switch kind {
	case KindSurvival:
		return layout{
			resolve: anyName,
			parse: func(_ dataset.TrialKey, r io.Reader) ([]dataset.Observation, error) {
				return ParseSurvival(r)
			},
		}, nil
	case KindCoverage:
		return layout{
			resolve: func(name string) (dataset.TrialKey, error) {
				if !strings.HasSuffix(name, ".csv") && !strings.HasSuffix(name, ".csv.gz") {
					return dataset.TrialKey{}, fmt.Errorf("%w: %s: not a csv file", ErrUnmatchedName, name)
				}
				return dataset.TrialKey{}, nil
			},
			parse: func(_ dataset.TrialKey, r io.Reader) ([]dataset.Observation, error) {
				return ParseCoverage(r)
			},
		}, nil
	case KindOverhead:
		m := Matcher{Targets: l.targets, Fuzzers: l.fuzzers, Trial: OverheadTrialPattern}
		return layout{
			resolve: func(name string) (dataset.TrialKey, error) {
				if !strings.HasSuffix(name, ".csv.gz") {
					return dataset.TrialKey{}, fmt.Errorf("%w: %s: not a .csv.gz log", ErrUnmatchedName, name)
				}
				return m.Match(name)
			},
			parse: func(trial dataset.TrialKey, r io.Reader) ([]dataset.Observation, error) {
				return ParseOverhead(r, trial)
			},
		}, nil
	case KindFuzzerStats:
		m := Matcher{Targets: l.targets, Fuzzers: l.fuzzers, Trial: StatsTrialPattern}
		return layout{resolve: m.Match, parse: func(trial dataset.TrialKey, r io.Reader) ([]dataset.Observation, error) {
			return ParseFuzzerStats(r, trial)
		}}, nil
	}
	return layout{}, fmt.Errorf("unknown input kind %q", kind)
}

// loadFile resolves the name before opening, so unmatched files are never
// read.
func (l *Loader) loadFile(ctx context.Context, name string, lay layout) ([]dataset.Observation, error) {
	trial, err := lay.resolve(name)
	if err != nil {
		return nil, err
	}

	rc, err := l.source.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	r, err := Decompress(rc)
	if err != nil {
		return nil, err
	}
	if c, ok := r.(io.Closer); ok {
		defer c.Close()
	}
	return lay.parse(trial, r)
}
