// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package loader

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/AleutianAI/fuzzeval/services/fuzzeval/dataset"
)

var (
	// StatsTrialPattern extracts the trial from fuzzer_stats file names such
	// as "openssl_x509-aflpp_overhead-trial-3".
	StatsTrialPattern = regexp.MustCompile(`-trial-(\d+)`)

	// OverheadTrialPattern extracts the trial from overhead log names such
	// as "zlib_zlib_uncompress_fuzzer-aflpp_overhead_trial-2_log.csv.gz".
	OverheadTrialPattern = regexp.MustCompile(`_trial-(\d+)_`)
)

// Matcher maps a file name to the trial it holds.
//
// The target is the first listed target the name starts with. The fuzzer is
// the first listed fuzzer that the remainder starts with, after skipping the
// one separator character following the target. The trial is the first
// capture group of Trial.
type Matcher struct {
	Targets []string
	Fuzzers []string
	Trial   *regexp.Regexp
}

// Match resolves a base file name.
//
// Outputs:
//   - dataset.TrialKey: Target and Fuzzer are the matched raw ids.
//   - error: ErrUnmatchedName when any part cannot be resolved.
func (m Matcher) Match(name string) (dataset.TrialKey, error) {
	target, ok := firstPrefix(m.Targets, name)
	if !ok {
		return dataset.TrialKey{}, fmt.Errorf("%w: %s: no target prefix", ErrUnmatchedName, name)
	}
	rest := ""
	if len(name) > len(target)+1 {
		rest = name[len(target)+1:]
	}
	fuzzer, ok := firstPrefix(m.Fuzzers, rest)
	if !ok {
		return dataset.TrialKey{}, fmt.Errorf("%w: %s: no fuzzer prefix", ErrUnmatchedName, name)
	}
	sub := m.Trial.FindStringSubmatch(name)
	if len(sub) < 2 {
		return dataset.TrialKey{}, fmt.Errorf("%w: %s: no trial number", ErrUnmatchedName, name)
	}
	trial, err := strconv.Atoi(sub[1])
	if err != nil {
		return dataset.TrialKey{}, fmt.Errorf("%w: %s: %w", ErrUnmatchedName, name, err)
	}
	return dataset.TrialKey{Target: target, Fuzzer: fuzzer, Trial: trial}, nil
}

func firstPrefix(candidates []string, s string) (string, bool) {
	for _, c := range candidates {
		if c != "" && strings.HasPrefix(s, c) {
			return c, true
		}
	}
	return "", false
}
