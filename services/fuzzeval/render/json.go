// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package render

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"

	"github.com/AleutianAI/fuzzeval/services/fuzzeval/dataset"
)

// JSONWriter writes the Document as a single JSON object. Unset cells are
// null.
type JSONWriter struct {
	Indent string
}

type jsonDocument struct {
	Title   string      `json:"title,omitempty"`
	RunID   string      `json:"run_id,omitempty"`
	Grids   []jsonGrid  `json:"grids"`
	Tallies []jsonTally `json:"tallies"`
}

type jsonGrid struct {
	Title   string    `json:"title,omitempty"`
	Corner  string    `json:"corner"`
	Columns []string  `json:"columns"`
	Rows    []jsonRow `json:"rows"`
}

type jsonRow struct {
	Label string     `json:"label"`
	Cells []*float64 `json:"cells"`
}

type jsonTally struct {
	Title string     `json:"title"`
	Items []jsonItem `json:"items"`
}

type jsonItem struct {
	Key   string   `json:"key"`
	Value *float64 `json:"value"`
	Text  string   `json:"text,omitempty"`
}

func nullable(v dataset.Value) *float64 {
	if !v.Set {
		return nil
	}
	x := v.V
	return &x
}

// Write implements Writer.
func (jw *JSONWriter) Write(w io.Writer, doc *Document) error {
	out := jsonDocument{
		Title:   doc.Title,
		RunID:   doc.RunID,
		Grids:   make([]jsonGrid, 0, len(doc.Grids)),
		Tallies: make([]jsonTally, 0, len(doc.Tallies)),
	}
	for _, g := range doc.Grids {
		jg := jsonGrid{Title: g.Title, Corner: g.Corner, Columns: g.Columns, Rows: make([]jsonRow, 0, len(g.Rows))}
		for _, r := range g.Rows {
			jr := jsonRow{Label: r.Label, Cells: make([]*float64, len(r.Cells))}
			for j, v := range r.Cells {
				jr.Cells[j] = nullable(v)
			}
			jg.Rows = append(jg.Rows, jr)
		}
		out.Grids = append(out.Grids, jg)
	}
	for _, t := range doc.Tallies {
		jt := jsonTally{Title: t.Title, Items: make([]jsonItem, 0, len(t.Items))}
		for _, it := range t.Items {
			jt.Items = append(jt.Items, jsonItem{Key: it.Key, Value: nullable(it.Value), Text: it.Text})
		}
		out.Tallies = append(out.Tallies, jt)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", jw.Indent)
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}
