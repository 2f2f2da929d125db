// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dataset defines the canonical long-form record set that every
// fuzzeval stage consumes.
//
// # Architecture
//
// Loaders emit Observations in whatever shape their source uses. Wide rows
// (one column per trial, as in a bug survival table) are first melted, then
// Normalize builds an immutable Table keyed by explicit typed keys:
//
//	┌────────────┐   Melt    ┌──────────────┐  Normalize  ┌───────────────┐
//	│  WideRow   │ ────────► │ Observation  │ ──────────► │ Table         │
//	│ (per bug)  │           │ (trial,key,  │             │  TrialKey ──► │
//	└────────────┘           │  dim, value) │             │  []LongRecord │
//	                         └──────────────┘             └───────────────┘
//
// # Identity
//
// A LongRecord is identified by (TrialKey, Key, Dimension). Key is either a
// bug identifier (survival data) or a 0-based Step (time series and per-trial
// log rows). At most one record exists per identity; a conflicting duplicate
// withholds the whole trial from the Table and is reported through
// Table.Rejected.
//
// # Missing Values
//
// Value carries an explicit Set flag. An unset value is never coerced to
// zero, and a trial whose values are all unset is still present in the
// Table so downstream grids show a visible gap rather than dropping it.
//
// # Thread Safety
//
// Table is immutable after Normalize returns and is safe for concurrent
// reads.
package dataset
