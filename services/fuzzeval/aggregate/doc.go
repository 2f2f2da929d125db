// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package aggregate reduces per-trial metrics to per-group summary statistics.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────────────┐
//	│                            AGGREGATOR                                │
//	├──────────────────────────────────────────────────────────────────────┤
//	│                                                                      │
//	│   metrics.Result ──► TrailingWindow ──► group by (target, fuzzer)   │
//	│                    (last N trials)           │                       │
//	│                                              ▼                       │
//	│                           ┌──── point estimate (mean/gmean/median)  │
//	│                           │                                          │
//	│                           └──── percentile bootstrap                │
//	│                                 • seeded per group                  │
//	│                                 • StdErr, Lower, Upper              │
//	│                                              │                       │
//	│                                              ▼                       │
//	│                                        []SummaryStat                 │
//	└──────────────────────────────────────────────────────────────────────┘
//
// # Determinism
//
// Each group's resampling stream is seeded from Config.Seed and a hash of
// the group identity, so summaries are identical for the same input no
// matter how many groups run in parallel.
//
// # Missing data
//
// A group with no value keeps its row with N = 0 and nothing set. A group
// with one value has an estimate but no interval. A group whose
// values cannot support the statistic, such as a geometric mean over a
// zero, has every numeric field unset and Err set. Neither case is ever
// rendered as zero.
//
// # Thread Safety
//
// Aggregator is safe for concurrent use.
package aggregate
