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
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/AleutianAI/fuzzeval/services/fuzzeval/dataset"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrUnmatchedName indicates a file name without a known target,
	// fuzzer or trial.
	ErrUnmatchedName = errors.New("unmatched file name")

	// ErrMissingColumn indicates a CSV header without a required column.
	ErrMissingColumn = errors.New("missing column")

	// ErrMalformedRecord indicates an unparsable row or line.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrEmptyFile indicates an input with no content.
	ErrEmptyFile = errors.New("empty file")
)

// -----------------------------------------------------------------------------
// Compression
// -----------------------------------------------------------------------------

// Decompress returns r unchanged unless it starts with the gzip magic bytes.
func Decompress(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if bytes.Equal(magic, []byte{0x1f, 0x8b}) {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		return zr, nil
	}
	return br, nil
}

// -----------------------------------------------------------------------------
// Survival CSV
// -----------------------------------------------------------------------------

const triggeredPrefix = "triggered_"

// ParseSurvival reads a bug survival table.
//
// Description:
//
//	The header must contain program, bug and fuzzer plus one or more
//	triggered_N columns numbered from 0. Each triggered_N cell is trial N's
//	time to trigger in seconds; an empty or NaN cell means the trial never
//	triggered the bug. The program column is used as the target. Other
//	columns, such as reached_N, are ignored.
//
// Outputs:
//   - []dataset.Observation: One per (row, trial column).
//   - error: ErrMissingColumn or ErrMalformedRecord.
func ParseSurvival(r io.Reader) ([]dataset.Observation, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyFile
		}
		return nil, fmt.Errorf("%w: header: %w", ErrMalformedRecord, err)
	}
	cols, err := columns(header, "program", "bug", "fuzzer")
	if err != nil {
		return nil, err
	}

	trialCols := make(map[int]int)
	for i, h := range header {
		if n, ok := strings.CutPrefix(h, triggeredPrefix); ok {
			trial, err := strconv.Atoi(n)
			if err != nil || trial < 0 {
				return nil, fmt.Errorf("%w: column %q", ErrMalformedRecord, h)
			}
			trialCols[trial] = i
		}
	}
	if len(trialCols) == 0 {
		return nil, fmt.Errorf("%w: %s0", ErrMissingColumn, triggeredPrefix)
	}
	for i := range len(trialCols) {
		if _, ok := trialCols[i]; !ok {
			return nil, fmt.Errorf("%w: %s%d", ErrMissingColumn, triggeredPrefix, i)
		}
	}

	var rows []dataset.WideRow
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrMalformedRecord, line, err)
		}
		row := dataset.WideRow{
			Target:    rec[cols["program"]],
			Fuzzer:    rec[cols["fuzzer"]],
			Key:       dataset.Key{Bug: rec[cols["bug"]]},
			Dimension: dataset.DimTriggered,
			Trials:    make([]dataset.Value, len(trialCols)),
		}
		for trial, col := range trialCols {
			v, err := parseValue(rec[col])
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %w", ErrMalformedRecord, line, err)
			}
			row.Trials[trial] = v
		}
		rows = append(rows, row)
	}
	return dataset.Melt(rows), nil
}

// -----------------------------------------------------------------------------
// Coverage CSV
// -----------------------------------------------------------------------------

// ParseCoverage reads a coverage snapshot table.
//
// Description:
//
//	The header must contain benchmark, fuzzer, trial_id, time and
//	edges_covered. Rows of one trial are numbered in file order to form
//	the snapshot steps.
func ParseCoverage(r io.Reader) ([]dataset.Observation, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyFile
		}
		return nil, fmt.Errorf("%w: header: %w", ErrMalformedRecord, err)
	}
	cols, err := columns(header, "benchmark", "fuzzer", "trial_id", "time", "edges_covered")
	if err != nil {
		return nil, err
	}

	steps := make(map[dataset.TrialKey]int)
	var out []dataset.Observation
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrMalformedRecord, line, err)
		}
		trial, err := strconv.Atoi(rec[cols["trial_id"]])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: trial_id: %w", ErrMalformedRecord, line, err)
		}
		k := dataset.TrialKey{Target: rec[cols["benchmark"]], Fuzzer: rec[cols["fuzzer"]], Trial: trial}
		key := dataset.Key{Step: steps[k]}
		steps[k]++

		for _, dim := range []dataset.Dimension{dataset.DimTime, dataset.DimEdgesCovered} {
			v, err := parseValue(rec[cols[string(dim)]])
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %s: %w", ErrMalformedRecord, line, dim, err)
			}
			out = append(out, dataset.Observation{Trial: k, Key: key, Dimension: dim, Value: v})
		}
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Overhead log
// -----------------------------------------------------------------------------

var overheadColumns = []dataset.Dimension{dataset.DimTime, dataset.DimOverhead, dataset.DimUpdateOverhead}

// ParseOverhead reads a headerless scheduler overhead log of
// time,overhead,update_overhead rows for one trial. An empty log yields a
// single unset row so the trial is still present with its metrics absent.
func ParseOverhead(r io.Reader, trial dataset.TrialKey) ([]dataset.Observation, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(overheadColumns)

	var out []dataset.Observation
	for step := 0; ; step++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s row %d: %w", ErrMalformedRecord, trial, step+1, err)
		}
		for i, dim := range overheadColumns {
			v, err := parseValue(rec[i])
			if err != nil {
				return nil, fmt.Errorf("%w: %s row %d: %w", ErrMalformedRecord, trial, step+1, err)
			}
			out = append(out, dataset.Observation{Trial: trial, Key: dataset.Key{Step: step}, Dimension: dim, Value: v})
		}
	}
	if len(out) == 0 {
		for _, dim := range overheadColumns {
			out = append(out, dataset.Observation{Trial: trial, Dimension: dim, Value: dataset.None()})
		}
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// fuzzer_stats
// -----------------------------------------------------------------------------

var statsKeys = map[string]dataset.Dimension{
	"start_time":    dataset.DimStartTime,
	"last_update":   dataset.DimLastUpdate,
	"execs_per_sec": dataset.DimExecsPerSec,
}

// ParseFuzzerStats reads an AFL fuzzer_stats file of "key : value" lines
// and returns start_time, last_update and execs_per_sec for one trial.
// Keys that are missing are simply not reported.
func ParseFuzzerStats(r io.Reader, trial dataset.TrialKey) ([]dataset.Observation, error) {
	sc := bufio.NewScanner(r)
	var out []dataset.Observation
	lines := 0
	for sc.Scan() {
		lines++
		key, val, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		dim, ok := statsKeys[strings.TrimSpace(key)]
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s %s: %w", ErrMalformedRecord, trial, dim, err)
		}
		out = append(out, dataset.Observation{Trial: trial, Dimension: dim, Value: dataset.Some(v)})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if lines == 0 {
		return nil, ErrEmptyFile
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func columns(header []string, required ...string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	var missing []error
	for _, name := range required {
		if _, ok := idx[name]; !ok {
			missing = append(missing, fmt.Errorf("%w: %s", ErrMissingColumn, name))
		}
	}
	return idx, errors.Join(missing...)
}

// parseValue treats an empty, NA or NaN cell as unset.
func parseValue(s string) (dataset.Value, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "na", "nan":
		return dataset.None(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return dataset.None(), err
	}
	return dataset.Some(v), nil
}
