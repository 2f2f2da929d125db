// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package metrics

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/AleutianAI/fuzzeval/services/fuzzeval/dataset"
)

// rule computes one metric from the records of a single trial.
type rule func(recs []dataset.LongRecord) (float64, error)

var rules = map[Name]rule{
	BugCount:       bugCount,
	Coverage:       finalCoverage,
	AUC:            coverageAUC,
	Overhead:       finalOverhead,
	UpdateTime:     updateTime,
	UpdateCount:    updateCount,
	UpdateVariance: updateVariance,
	ExecsPerSec:    execsPerSec,
}

// row is the set of dimensions recorded at one step of a trial.
type row struct {
	step   int
	values map[dataset.Dimension]dataset.Value
}

func (r row) get(d dataset.Dimension) (float64, bool) {
	return r.values[d].Get()
}

// stepRows folds step-keyed records into rows, in step order. Records keyed
// by bug are ignored.
func stepRows(recs []dataset.LongRecord, dims ...dataset.Dimension) []row {
	var rows []row
	for _, r := range recs {
		if r.Key.Bug != "" || !hasDim(dims, r.Dimension) {
			continue
		}
		if n := len(rows); n == 0 || rows[n-1].step != r.Key.Step {
			rows = append(rows, row{step: r.Key.Step, values: make(map[dataset.Dimension]dataset.Value, len(dims))})
		}
		rows[len(rows)-1].values[r.Dimension] = r.Value
	}
	return rows
}

func hasDim(dims []dataset.Dimension, d dataset.Dimension) bool {
	for _, x := range dims {
		if x == d {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------
// Bugs
// -----------------------------------------------------------------------------

// bugCount counts distinct bugs with a set trigger time. A bug counts once
// per trial however many records mark it.
func bugCount(recs []dataset.LongRecord) (float64, error) {
	seen := make(map[string]struct{})
	found := false
	for _, r := range recs {
		if r.Dimension != dataset.DimTriggered || r.Key.Bug == "" {
			continue
		}
		found = true
		if r.Value.Set {
			seen[r.Key.Bug] = struct{}{}
		}
	}
	if !found {
		return 0, fmt.Errorf("%w: no survival records", ErrInsufficientData)
	}
	return float64(len(seen)), nil
}

// -----------------------------------------------------------------------------
// Coverage
// -----------------------------------------------------------------------------

type point struct {
	time, edges float64
}

func coverageSeries(recs []dataset.LongRecord) []point {
	var pts []point
	for _, r := range stepRows(recs, dataset.DimTime, dataset.DimEdgesCovered) {
		t, okT := r.get(dataset.DimTime)
		e, okE := r.get(dataset.DimEdgesCovered)
		if okT && okE {
			pts = append(pts, point{time: t, edges: e})
		}
	}
	return pts
}

// finalCoverage returns the edge count at the snapshot with the greatest
// elapsed time. The first such snapshot wins on ties.
func finalCoverage(recs []dataset.LongRecord) (float64, error) {
	pts := coverageSeries(recs)
	if len(pts) == 0 {
		return 0, fmt.Errorf("%w: no coverage snapshots", ErrInsufficientData)
	}
	best := 0
	for i, p := range pts {
		if p.time > pts[best].time {
			best = i
		}
	}
	return pts[best].edges, nil
}

// coverageAUC accumulates edges[i] / (time[i] - time[i-1]) for i >= 1.
//
// This is a rate-weighted sum, not a trapezoid integral, and the first
// snapshot's coverage never enters the numerator. Published results depend
// on this exact form.
// TODO(fuzzeval): confirm with the report authors whether the index offset
// is intended before changing it.
func coverageAUC(recs []dataset.LongRecord) (float64, error) {
	pts := coverageSeries(recs)
	if len(pts) < 2 {
		return 0, fmt.Errorf("%w: auc needs 2 snapshots, have %d", ErrInsufficientData, len(pts))
	}
	var sum float64
	for i := 1; i < len(pts); i++ {
		dt := pts[i].time - pts[i-1].time
		if dt <= 0 {
			return 0, fmt.Errorf("%w: %g -> %g", ErrNonIncreasingTime, pts[i-1].time, pts[i].time)
		}
		sum += pts[i].edges / dt
	}
	return sum, nil
}

// -----------------------------------------------------------------------------
// Scheduler overhead
// -----------------------------------------------------------------------------

// overheadRows returns the log rows that carry at least one value. A log
// with no such rows is empty.
func overheadRows(recs []dataset.LongRecord) ([]row, error) {
	var rows []row
	for _, r := range stepRows(recs, dataset.DimOverhead, dataset.DimUpdateOverhead) {
		if r.values[dataset.DimOverhead].Set || r.values[dataset.DimUpdateOverhead].Set {
			rows = append(rows, r)
		}
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty overhead log", ErrInsufficientData)
	}
	return rows, nil
}

// updateDeltas returns overhead[i] - overhead[i-1] with a leading zero.
func updateDeltas(recs []dataset.LongRecord) ([]float64, error) {
	rows, err := overheadRows(recs)
	if err != nil {
		return nil, err
	}
	deltas := make([]float64, len(rows))
	prev := 0.0
	for i, r := range rows {
		o, ok := r.get(dataset.DimOverhead)
		if !ok {
			return nil, fmt.Errorf("%w: overhead unset at step %d", ErrInsufficientData, r.step)
		}
		deltas[i] = o - prev
		prev = o
	}
	return deltas, nil
}

func finalOverhead(recs []dataset.LongRecord) (float64, error) {
	rows, err := overheadRows(recs)
	if err != nil {
		return 0, err
	}
	last := rows[len(rows)-1]
	o, okO := last.get(dataset.DimOverhead)
	u, okU := last.get(dataset.DimUpdateOverhead)
	if !okO || !okU {
		return 0, fmt.Errorf("%w: final overhead row incomplete at step %d", ErrInsufficientData, last.step)
	}
	return o + u, nil
}

func updateTime(recs []dataset.LongRecord) (float64, error) {
	deltas, err := updateDeltas(recs)
	if err != nil {
		return 0, err
	}
	return stat.Mean(deltas, nil) * 1000, nil
}

func updateVariance(recs []dataset.LongRecord) (float64, error) {
	deltas, err := updateDeltas(recs)
	if err != nil {
		return 0, err
	}
	return stat.PopVariance(deltas, nil), nil
}

func updateCount(recs []dataset.LongRecord) (float64, error) {
	rows, err := overheadRows(recs)
	if err != nil {
		return 0, err
	}
	return float64(len(rows)), nil
}

// -----------------------------------------------------------------------------
// Execution speed
// -----------------------------------------------------------------------------

func execsPerSec(recs []dataset.LongRecord) (float64, error) {
	for _, r := range recs {
		if r.Dimension == dataset.DimExecsPerSec && r.Value.Set {
			return r.Value.V, nil
		}
	}
	return 0, fmt.Errorf("%w: execs_per_sec not reported", ErrInsufficientData)
}

// runtime returns last_update - start_time.
func runtime(recs []dataset.LongRecord) (time.Duration, bool) {
	var start, last dataset.Value
	for _, r := range recs {
		switch r.Dimension {
		case dataset.DimStartTime:
			start = r.Value
		case dataset.DimLastUpdate:
			last = r.Value
		}
	}
	if !start.Set || !last.Set {
		return 0, false
	}
	return time.Duration((last.V - start.V) * float64(time.Second)), true
}
