// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package render lays report results out as grids and tallies and writes
// them as LaTeX, JSON or terminal text.
//
// Builders in this file know the result types; the writers only see the
// abstract Document, so a new output format never touches the statistics.
package render

import (
	"fmt"
	"slices"
	"strings"

	"github.com/AleutianAI/fuzzeval/services/fuzzeval/aggregate"
	"github.com/AleutianAI/fuzzeval/services/fuzzeval/dataset"
	"github.com/AleutianAI/fuzzeval/services/fuzzeval/rollup"
	"github.com/AleutianAI/fuzzeval/services/fuzzeval/significance"
)

// DefaultPrecision is the number of decimals printed for summary cells.
const DefaultPrecision = 2

// -----------------------------------------------------------------------------
// Document model
// -----------------------------------------------------------------------------

// Document is one rendered report.
type Document struct {
	Title   string
	RunID   string
	Grids   []Grid
	Tallies []Tally
}

// Grid is a labelled table of optional numbers. Rows are usually targets and
// columns fuzzers.
type Grid struct {
	Title string

	// Corner is the header of the row label column.
	Corner  string
	Columns []string
	Rows    []Row

	// Precision is the default number of decimals. Digits overrides it per
	// column when non-nil.
	Precision int
	Digits    []int
}

// Row is one grid row. Cells line up with Grid.Columns.
type Row struct {
	Label string
	Cells []dataset.Value
}

// Tally is a titled list of per-key results, such as per-fuzzer totals.
type Tally struct {
	Title string
	Items []Item
}

// Item is a tally entry. Text is used when Value is unset and Text is not
// empty.
type Item struct {
	Key       string
	Value     dataset.Value
	Text      string
	Precision int
}

func (g *Grid) digits(col int) int {
	if col < len(g.Digits) {
		return g.Digits[col]
	}
	return g.Precision
}

// Apply replaces every set cell of the given columns with fn of it. No
// columns means every column.
func (g *Grid) Apply(fn func(dataset.Value) dataset.Value, cols ...int) {
	for i := range g.Rows {
		cells := g.Rows[i].Cells
		for j, v := range cells {
			if v.Set && (len(cols) == 0 || slices.Contains(cols, j)) {
				cells[j] = fn(v)
			}
		}
	}
}

// ScaleOverheadPerDay converts a microsecond overhead total into seconds
// spent per 24 hour trial.
func ScaleOverheadPerDay(v dataset.Value) dataset.Value {
	if !v.Set {
		return v
	}
	return dataset.Some(v.V / 1e6 * 86400)
}

// -----------------------------------------------------------------------------
// Builders
// -----------------------------------------------------------------------------

// Field selects which part of a SummaryStat fills a cell.
type Field int

const (
	FieldEstimate Field = iota
	FieldStdErr
	FieldLower
	FieldUpper
)

func (f Field) of(s aggregate.SummaryStat) dataset.Value {
	switch f {
	case FieldStdErr:
		return s.StdErr
	case FieldLower:
		return s.Lower
	case FieldUpper:
		return s.Upper
	default:
		return s.Estimate
	}
}

func (f Field) String() string {
	switch f {
	case FieldStdErr:
		return "stderr"
	case FieldLower:
		return "lower"
	case FieldUpper:
		return "upper"
	default:
		return "estimate"
	}
}

// SummaryGrid pivots per-group summaries into a target by fuzzer grid.
//
// Description:
//
//	Rows are the given targets and columns the given fuzzers, both in the
//	given order. A target or fuzzer without stats keeps its row or column
//	of unset cells, so missing data shows as a gap. Groups outside the
//	listed targets and fuzzers are left out.
func SummaryGrid(title string, stats []aggregate.SummaryStat, targets, fuzzers []string, field Field) Grid {
	col := make(map[string]int, len(fuzzers))
	for i, f := range fuzzers {
		col[f] = i
	}
	row := make(map[string]int, len(targets))
	for i, t := range targets {
		row[t] = i
	}

	g := Grid{
		Title:     title,
		Corner:    "target",
		Columns:   slices.Clone(fuzzers),
		Precision: DefaultPrecision,
		Rows:      make([]Row, len(targets)),
	}
	for i, t := range targets {
		g.Rows[i] = Row{Label: t, Cells: make([]dataset.Value, len(fuzzers))}
	}
	for _, s := range stats {
		i, ok := row[s.Group.Target]
		j, listed := col[s.Group.Fuzzer]
		if !ok || !listed {
			continue
		}
		g.Rows[i].Cells[j] = field.of(s)
	}
	return g
}

// FuzzerGrid lays cross-target summaries out one fuzzer per row with the
// estimate, its interval and the number of pooled values. A listed fuzzer
// without a summary keeps an empty row.
func FuzzerGrid(title string, stats []aggregate.SummaryStat, fuzzers []string) Grid {
	byFuzzer := make(map[string]aggregate.SummaryStat, len(stats))
	statName := "estimate"
	for _, s := range stats {
		byFuzzer[s.Group.Fuzzer] = s
		statName = string(s.Statistic)
	}

	g := Grid{
		Title:     title,
		Corner:    "fuzzer",
		Columns:   []string{statName, "stderr", "lower", "upper", "n"},
		Precision: DefaultPrecision,
		Digits:    []int{DefaultPrecision, DefaultPrecision, DefaultPrecision, DefaultPrecision, 0},
	}
	for _, f := range fuzzers {
		s, ok := byFuzzer[f]
		if !ok {
			g.Rows = append(g.Rows, Row{Label: f, Cells: make([]dataset.Value, len(g.Columns))})
			continue
		}
		g.Rows = append(g.Rows, Row{
			Label: f,
			Cells: []dataset.Value{s.Estimate, s.StdErr, s.Lower, s.Upper, dataset.Some(float64(s.N))},
		})
	}
	return g
}

// CountGrid is the per-target triggered bug count table. A fuzzer with no
// survival records on a target has an unset cell, never zero.
func CountGrid(r *rollup.Rollup) Grid {
	g := Grid{
		Title:   "Bugs triggered",
		Corner:  "target",
		Columns: slices.Clone(r.Fuzzers),
	}
	for _, t := range r.Targets {
		row := Row{Label: t, Cells: make([]dataset.Value, len(r.Fuzzers))}
		for j, f := range r.Fuzzers {
			if n, ok := r.Count(t, f); ok {
				row.Cells[j] = dataset.Some(float64(n))
			}
		}
		g.Rows = append(g.Rows, row)
	}
	return g
}

// RollupTallies returns the cross-fuzzer bug tallies in report order.
func RollupTallies(r *rollup.Rollup) []Tally {
	count := func(title string, m map[string]int) Tally {
		t := Tally{Title: title}
		for _, f := range r.Fuzzers {
			t.Items = append(t.Items, Item{Key: f, Value: dataset.Some(float64(m[f]))})
		}
		return t
	}

	best := Tally{Title: "Best (per target)"}
	for _, t := range r.Targets {
		best.Items = append(best.Items, Item{Key: t, Text: strings.Join(r.Best[t], ", ")})
	}

	consistency := Tally{Title: "Consistency"}
	for _, f := range r.Fuzzers {
		consistency.Items = append(consistency.Items, Item{Key: f, Value: r.Consistency[f], Precision: DefaultPrecision})
	}

	return []Tally{
		count("Totals", r.Totals),
		best,
		count("Best", r.BestTally),
		count("Unique", r.Unique),
		count("Fastest", r.Fastest),
		count("Missed", r.Missed),
		consistency,
	}
}

// ClassTally lists each target's equivalence class, best fuzzer first.
func ClassTally(title string, res *significance.Result) Tally {
	t := Tally{Title: title}
	for _, c := range res.Classes {
		t.Items = append(t.Items, Item{Key: c.Target, Text: strings.Join(c.Members, ", ")})
	}
	return t
}

// PairTally lists the p-value of every tested pair. Skipped pairs carry the
// skip reason instead.
func PairTally(title string, res *significance.Result) Tally {
	t := Tally{Title: title}
	for _, p := range res.Pairs {
		it := Item{Key: fmt.Sprintf("%s: %s vs %s", p.Target, p.A, p.B), Precision: 4}
		if p.Skipped != significance.SkipNone {
			it.Text = "skipped (" + string(p.Skipped) + ")"
		} else {
			it.Value = dataset.Some(p.P)
		}
		t.Items = append(t.Items, it)
	}
	return t
}
