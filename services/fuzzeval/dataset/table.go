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

import (
	"errors"
	"fmt"
	"iter"
	"slices"
)

// Table is an immutable long-form record set grouped by trial.
//
// Thread Safety: Safe for concurrent reads.
type Table struct {
	trials   []TrialKey
	records  map[TrialKey][]LongRecord
	rejected []*InconsistentObservationError
}

// Normalize builds a Table from raw observations.
//
// Description:
//
//	Every (target, fuzzer, trial) present in the input is kept, even when
//	all of its values are unset. Identical duplicates collapse to a single
//	record. A duplicate with a conflicting value withholds the entire trial
//	from the Table and is reported through Rejected; the rest of the input
//	is unaffected.
//
// Inputs:
//   - obs: Observations in any order. Not modified.
//
// Outputs:
//   - *Table: The normalized table. Never nil.
//   - error: Joined ErrInvalidObservation errors for observations with an
//     empty target or fuzzer, a negative trial, or an unknown dimension.
//     Those observations are skipped; the Table is still usable.
func Normalize(obs []Observation) (*Table, error) {
	var invalid []error
	seen := make(map[RecordID]Value, len(obs))
	order := make(map[TrialKey][]RecordID)
	conflicts := make(map[TrialKey]*InconsistentObservationError)
	var rejected []*InconsistentObservationError

	for _, o := range obs {
		if err := validate(o); err != nil {
			invalid = append(invalid, err)
			continue
		}
		id := o.ID()
		prev, dup := seen[id]
		if !dup {
			seen[id] = o.Value
			order[o.Trial] = append(order[o.Trial], id)
			continue
		}
		if prev.Equal(o.Value) {
			continue
		}
		conflict := &InconsistentObservationError{ID: id, First: prev, Second: o.Value}
		rejected = append(rejected, conflict)
		if _, ok := conflicts[o.Trial]; !ok {
			conflicts[o.Trial] = conflict
		}
	}

	t := &Table{
		records:  make(map[TrialKey][]LongRecord, len(order)),
		rejected: rejected,
	}
	for trial, ids := range order {
		if _, bad := conflicts[trial]; bad {
			continue
		}
		recs := make([]LongRecord, 0, len(ids))
		for _, id := range ids {
			recs = append(recs, LongRecord{
				Trial:     id.Trial,
				Key:       id.Key,
				Dimension: id.Dimension,
				Value:     seen[id],
			})
		}
		slices.SortFunc(recs, compareRecords)
		t.records[trial] = recs
		t.trials = append(t.trials, trial)
	}
	slices.SortFunc(t.trials, TrialKey.Compare)
	slices.SortFunc(t.rejected, func(a, b *InconsistentObservationError) int {
		return a.ID.Trial.Compare(b.ID.Trial)
	})

	return t, errors.Join(invalid...)
}

func validate(o Observation) error {
	switch {
	case o.Trial.Target == "":
		return fmt.Errorf("%w: empty target", ErrInvalidObservation)
	case o.Trial.Fuzzer == "":
		return fmt.Errorf("%w: empty fuzzer for target %q", ErrInvalidObservation, o.Trial.Target)
	case o.Trial.Trial < 0:
		return fmt.Errorf("%w: negative trial %d for %s", ErrInvalidObservation, o.Trial.Trial, o.Trial.Group())
	case !o.Dimension.Known():
		return fmt.Errorf("%w: unknown dimension %q", ErrInvalidObservation, o.Dimension)
	}
	return nil
}

// Len returns the number of trials in the table.
func (t *Table) Len() int {
	return len(t.trials)
}

// Trials returns every trial in (target, fuzzer, trial) order.
func (t *Table) Trials() []TrialKey {
	return slices.Clone(t.trials)
}

// Records returns the records of one trial ordered by key, then dimension.
// The returned slice must not be modified.
func (t *Table) Records(k TrialKey) []LongRecord {
	return t.records[k]
}

// All iterates trials in order with their records.
func (t *Table) All() iter.Seq2[TrialKey, []LongRecord] {
	return func(yield func(TrialKey, []LongRecord) bool) {
		for _, k := range t.trials {
			if !yield(k, t.records[k]) {
				return
			}
		}
	}
}

// Groups returns the distinct (target, fuzzer) pairs in order.
func (t *Table) Groups() []GroupKey {
	var out []GroupKey
	for _, k := range t.trials {
		g := k.Group()
		if n := len(out); n == 0 || out[n-1] != g {
			out = append(out, g)
		}
	}
	return out
}

// Targets returns the distinct targets in order.
func (t *Table) Targets() []string {
	var out []string
	for _, k := range t.trials {
		if n := len(out); n == 0 || out[n-1] != k.Target {
			out = append(out, k.Target)
		}
	}
	return out
}

// Fuzzers returns the distinct fuzzers in lexical order.
func (t *Table) Fuzzers() []string {
	set := make(map[string]struct{})
	for _, k := range t.trials {
		set[k.Fuzzer] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	slices.Sort(out)
	return out
}

// Rejected returns the conflicting duplicates found during normalization.
func (t *Table) Rejected() []*InconsistentObservationError {
	return slices.Clone(t.rejected)
}
