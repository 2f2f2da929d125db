// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dataset

import "slices"

// Label maps a raw fuzzer identifier to its display label.
type Label struct {
	ID    string `yaml:"id" json:"id" validate:"required"`
	Label string `yaml:"label" json:"label" validate:"required"`
}

// Labels is an ordered fuzzer mapping. Order determines column order in
// rendered tables. It is plain configuration and carries no global state, so
// independent report configurations can run side by side.
type Labels []Label

// Lookup returns the label for a raw fuzzer id.
func (ls Labels) Lookup(id string) (string, bool) {
	for _, l := range ls {
		if l.ID == id {
			return l.Label, true
		}
	}
	return "", false
}

// Names returns the display labels in configured order.
func (ls Labels) Names() []string {
	out := make([]string, len(ls))
	for i, l := range ls {
		out[i] = l.Label
	}
	return out
}

// IDs returns the raw identifiers in configured order.
func (ls Labels) IDs() []string {
	out := make([]string, len(ls))
	for i, l := range ls {
		out[i] = l.ID
	}
	return out
}

// Index returns the position of a display label, or -1.
func (ls Labels) Index(label string) int {
	return slices.IndexFunc(ls, func(l Label) bool { return l.Label == label })
}

// Relabel renames every observation's fuzzer to its display label.
//
// Observations whose fuzzer is not mapped are dropped; the distinct dropped
// ids are returned in first-seen order so the caller can report each one
// once. An empty Labels keeps every observation unchanged.
func (ls Labels) Relabel(obs []Observation) ([]Observation, []string) {
	if len(ls) == 0 {
		return obs, nil
	}
	out := make([]Observation, 0, len(obs))
	var dropped []string
	for _, o := range obs {
		label, ok := ls.Lookup(o.Trial.Fuzzer)
		if !ok {
			if !slices.Contains(dropped, o.Trial.Fuzzer) {
				dropped = append(dropped, o.Trial.Fuzzer)
			}
			continue
		}
		o.Trial.Fuzzer = label
		out = append(out, o)
	}
	return out, dropped
}

// SortFuzzers orders fuzzer labels by configured position. Unknown labels go
// last in lexical order.
func (ls Labels) SortFuzzers(fuzzers []string) {
	slices.SortStableFunc(fuzzers, func(a, b string) int {
		ia, ib := ls.Index(a), ls.Index(b)
		switch {
		case ia >= 0 && ib >= 0:
			return ia - ib
		case ia >= 0:
			return -1
		case ib >= 0:
			return 1
		}
		if a < b {
			return -1
		}
		if a > b {
			return 1
		}
		return 0
	})
}
