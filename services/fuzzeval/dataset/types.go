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
	"cmp"
	"errors"
	"fmt"
	"strconv"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrInconsistentObservation indicates two observations share an identity
	// but disagree on the value.
	ErrInconsistentObservation = errors.New("inconsistent observation")

	// ErrInvalidObservation indicates an observation that cannot be keyed.
	ErrInvalidObservation = errors.New("invalid observation")
)

// InconsistentObservationError describes a conflicting duplicate.
type InconsistentObservationError struct {
	// ID is the shared record identity.
	ID RecordID

	// First is the value that was seen first.
	First Value

	// Second is the conflicting value.
	Second Value
}

// Error implements error.
func (e *InconsistentObservationError) Error() string {
	return fmt.Sprintf("%s: %s: %s vs %s", ErrInconsistentObservation, e.ID, e.First, e.Second)
}

// Unwrap returns ErrInconsistentObservation.
func (e *InconsistentObservationError) Unwrap() error {
	return ErrInconsistentObservation
}

// -----------------------------------------------------------------------------
// Keys
// -----------------------------------------------------------------------------

// GroupKey identifies one fuzzer's campaign on one target.
type GroupKey struct {
	Target string
	Fuzzer string
}

// String returns "target/fuzzer".
func (g GroupKey) String() string {
	return g.Target + "/" + g.Fuzzer
}

// Compare orders group keys by target, then fuzzer.
func (g GroupKey) Compare(o GroupKey) int {
	if c := cmp.Compare(g.Target, o.Target); c != 0 {
		return c
	}
	return cmp.Compare(g.Fuzzer, o.Fuzzer)
}

// TrialKey identifies one independent run of a fuzzer against a target.
type TrialKey struct {
	Target string
	Fuzzer string
	Trial  int
}

// Group returns the (target, fuzzer) part of the key.
func (k TrialKey) Group() GroupKey {
	return GroupKey{Target: k.Target, Fuzzer: k.Fuzzer}
}

// String returns "target/fuzzer#trial".
func (k TrialKey) String() string {
	return k.Target + "/" + k.Fuzzer + "#" + strconv.Itoa(k.Trial)
}

// Compare orders trial keys by target, fuzzer, then trial index.
func (k TrialKey) Compare(o TrialKey) int {
	if c := k.Group().Compare(o.Group()); c != 0 {
		return c
	}
	return cmp.Compare(k.Trial, o.Trial)
}

// Key locates one measurement slot inside a trial.
//
// Survival records set Bug. Time-series samples and per-trial log rows set
// Step, the 0-based row order of the source.
type Key struct {
	Bug  string
	Step int
}

// String returns the bug identifier or "step N".
func (k Key) String() string {
	if k.Bug != "" {
		return k.Bug
	}
	return "step " + strconv.Itoa(k.Step)
}

// Compare orders keys by step, then bug.
func (k Key) Compare(o Key) int {
	if c := cmp.Compare(k.Step, o.Step); c != 0 {
		return c
	}
	return cmp.Compare(k.Bug, o.Bug)
}

// -----------------------------------------------------------------------------
// Dimensions
// -----------------------------------------------------------------------------

// Dimension names a measured column.
type Dimension string

const (
	// DimTime is elapsed campaign time in seconds at a coverage snapshot.
	DimTime Dimension = "time"

	// DimEdgesCovered is the number of distinct edges covered at a snapshot.
	DimEdgesCovered Dimension = "edges_covered"

	// DimOverhead is the cumulative scheduler overhead column of a log row.
	DimOverhead Dimension = "overhead"

	// DimUpdateOverhead is the queue-update overhead column of a log row.
	DimUpdateOverhead Dimension = "update_overhead"

	// DimTriggered is the time in seconds at which a bug was triggered.
	DimTriggered Dimension = "triggered"

	// DimExecsPerSec is the execution speed reported by fuzzer_stats.
	DimExecsPerSec Dimension = "execs_per_sec"

	// DimStartTime is the campaign start as a Unix timestamp.
	DimStartTime Dimension = "start_time"

	// DimLastUpdate is the last fuzzer_stats update as a Unix timestamp.
	DimLastUpdate Dimension = "last_update"
)

var knownDimensions = map[Dimension]struct{}{
	DimTime:           {},
	DimEdgesCovered:   {},
	DimOverhead:       {},
	DimUpdateOverhead: {},
	DimTriggered:      {},
	DimExecsPerSec:    {},
	DimStartTime:      {},
	DimLastUpdate:     {},
}

// Known reports whether d is a recognised dimension.
func (d Dimension) Known() bool {
	_, ok := knownDimensions[d]
	return ok
}

// -----------------------------------------------------------------------------
// Values
// -----------------------------------------------------------------------------

// Value is an optional number. The zero Value is unset.
type Value struct {
	V   float64
	Set bool
}

// Some returns a set Value.
func Some(v float64) Value {
	return Value{V: v, Set: true}
}

// None returns an unset Value.
func None() Value {
	return Value{}
}

// Get returns the number and whether it is set.
func (v Value) Get() (float64, bool) {
	return v.V, v.Set
}

// Equal reports whether two values are both unset or both set to the same
// number.
func (v Value) Equal(o Value) bool {
	if v.Set != o.Set {
		return false
	}
	return !v.Set || v.V == o.V
}

// String formats the value, using "NA" when unset.
func (v Value) String() string {
	if !v.Set {
		return "NA"
	}
	return strconv.FormatFloat(v.V, 'g', -1, 64)
}

// -----------------------------------------------------------------------------
// Records
// -----------------------------------------------------------------------------

// Observation is one raw measurement produced by a loader.
type Observation struct {
	Trial     TrialKey
	Key       Key
	Dimension Dimension
	Value     Value
}

// ID returns the identity the observation normalizes to.
func (o Observation) ID() RecordID {
	return RecordID{Trial: o.Trial, Key: o.Key, Dimension: o.Dimension}
}

// RecordID is the identity of a LongRecord.
type RecordID struct {
	Trial     TrialKey
	Key       Key
	Dimension Dimension
}

// String returns a human-readable identity.
func (id RecordID) String() string {
	return fmt.Sprintf("%s [%s] %s", id.Trial, id.Key, id.Dimension)
}

// LongRecord is the canonical normalized unit.
type LongRecord struct {
	Trial     TrialKey
	Key       Key
	Dimension Dimension
	Value     Value
}

// ID returns the record identity.
func (r LongRecord) ID() RecordID {
	return RecordID{Trial: r.Trial, Key: r.Key, Dimension: r.Dimension}
}

// compareRecords orders records inside a trial by key, then dimension.
func compareRecords(a, b LongRecord) int {
	if c := a.Key.Compare(b.Key); c != 0 {
		return c
	}
	return cmp.Compare(a.Dimension, b.Dimension)
}

// WideRow is a source row holding one value per trial column, such as a
// survival table row with triggered_0 .. triggered_9.
type WideRow struct {
	Target    string
	Fuzzer    string
	Key       Key
	Dimension Dimension

	// Trials holds the value of trial i at index i.
	Trials []Value
}

// Melt converts wide rows to one Observation per trial column.
func Melt(rows []WideRow) []Observation {
	n := 0
	for _, r := range rows {
		n += len(r.Trials)
	}
	out := make([]Observation, 0, n)
	for _, r := range rows {
		for trial, v := range r.Trials {
			out = append(out, Observation{
				Trial:     TrialKey{Target: r.Target, Fuzzer: r.Fuzzer, Trial: trial},
				Key:       r.Key,
				Dimension: r.Dimension,
				Value:     v,
			})
		}
	}
	return out
}
