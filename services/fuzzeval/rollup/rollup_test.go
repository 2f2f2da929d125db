// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rollup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/fuzzeval/services/fuzzeval/dataset"
)

func survival(target, fuzzer, bug string, trials ...dataset.Value) dataset.WideRow {
	return dataset.WideRow{
		Target:    target,
		Fuzzer:    fuzzer,
		Key:       dataset.Key{Bug: bug},
		Dimension: dataset.DimTriggered,
		Trials:    trials,
	}
}

func repeat(v dataset.Value, n int) []dataset.Value {
	out := make([]dataset.Value, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func table(t *testing.T, rows ...dataset.WideRow) *dataset.Table {
	t.Helper()
	tbl, err := dataset.Normalize(dataset.Melt(rows))
	require.NoError(t, err)
	return tbl
}

var (
	some = dataset.Some
	na   = dataset.None()
)

func TestSummarize_PerfectConsistency(t *testing.T) {
	tbl := table(t, survival("lua", "FAST", "LUA001", repeat(some(60), 10)...))

	r := Summarize(tbl, DefaultConfig())
	assert.Equal(t, 10, r.Totals["FAST"])
	assert.Equal(t, 1, r.Unique["FAST"])
	assert.Equal(t, dataset.Some(1.0), r.Consistency["FAST"])
	assert.Equal(t, 0, r.Missed["FAST"])
	assert.Equal(t, 1, r.Fastest["FAST"])
}

func TestSummarize_Rollups(t *testing.T) {
	tbl := table(t,
		// lua: FAST triggers both bugs, RARE one of them
		survival("lua", "FAST", "LUA001", some(10), some(20), na),
		survival("lua", "FAST", "LUA002", na, some(500), na),
		survival("lua", "RARE", "LUA001", some(10), na, na),
		survival("lua", "RARE", "LUA002", na, na, na),
		// sqlite3: neither finds SQL001, RARE finds SQL002
		survival("sqlite3", "FAST", "SQL001", na, na, na),
		survival("sqlite3", "RARE", "SQL002", some(90), some(80), some(100)),
		// pdf: only FAST ran, found nothing
		survival("pdf", "FAST", "PDF010", na, na, na),
	)

	r := Summarize(tbl, Config{TrialsPerCampaign: 3})

	assert.Equal(t, []string{"lua", "pdf", "sqlite3"}, r.Targets)
	assert.Equal(t, []string{"FAST", "RARE"}, r.Fuzzers)

	t.Run("counts", func(t *testing.T) {
		n, ok := r.Count("lua", "FAST")
		assert.True(t, ok)
		assert.Equal(t, 3, n)

		n, ok = r.Count("pdf", "FAST")
		assert.True(t, ok, "a fuzzer with records but no triggers counts zero")
		assert.Equal(t, 0, n)

		_, ok = r.Count("pdf", "RARE")
		assert.False(t, ok, "a fuzzer with no records is absent")
	})

	t.Run("best", func(t *testing.T) {
		assert.Equal(t, []string{"FAST"}, r.Best["lua"])
		assert.Equal(t, []string{"FAST"}, r.Best["pdf"])
		assert.Equal(t, []string{"RARE"}, r.Best["sqlite3"])
		assert.Equal(t, 2, r.BestTally["FAST"])
		assert.Equal(t, 1, r.BestTally["RARE"])
	})

	t.Run("totals and unique", func(t *testing.T) {
		assert.Equal(t, 3, r.Totals["FAST"])
		assert.Equal(t, 4, r.Totals["RARE"])
		assert.Equal(t, 2, r.Unique["FAST"])
		assert.Equal(t, 2, r.Unique["RARE"])
	})

	t.Run("fastest credits ties", func(t *testing.T) {
		// LUA001 tie at 10s, LUA002 FAST only, SQL002 RARE only
		assert.Equal(t, 2, r.Fastest["FAST"])
		assert.Equal(t, 2, r.Fastest["RARE"])
	})

	t.Run("missed", func(t *testing.T) {
		assert.Equal(t, 1, r.Missed["FAST"], "SQL002")
		assert.Equal(t, 1, r.Missed["RARE"], "LUA002")
	})

	t.Run("consistency", func(t *testing.T) {
		v, ok := r.Consistency["FAST"].Get()
		require.True(t, ok)
		assert.InDelta(t, 3.0/2.0/3.0, v, 1e-12)
	})
}

func TestSummarize_ConsistencyUnsetWithoutTriggers(t *testing.T) {
	tbl := table(t, survival("lua", "COE", "LUA001", na, na))

	r := Summarize(tbl, DefaultConfig())
	assert.False(t, r.Consistency["COE"].Set)
	assert.Equal(t, 0, r.Missed["COE"])
	assert.Equal(t, []string{"COE"}, r.Best["lua"])
}

func TestSummarize_LabelOrder(t *testing.T) {
	tbl := table(t,
		survival("lua", "FAST", "LUA001", some(1)),
		survival("lua", "EXPLORE", "LUA001", some(1)),
		survival("lua", "zzz", "LUA001", some(1)),
	)
	labels := dataset.Labels{{ID: "e", Label: "EXPLORE"}, {ID: "f", Label: "FAST"}}

	r := Summarize(tbl, Config{Labels: labels})
	assert.Equal(t, []string{"EXPLORE", "FAST", "zzz"}, r.Fuzzers)
	assert.Equal(t, []string{"EXPLORE", "FAST", "zzz"}, r.Best["lua"])
	assert.Equal(t, 1, r.Fastest["zzz"])
}

func TestSummarize_IgnoresOtherDimensions(t *testing.T) {
	obs := []dataset.Observation{{
		Trial:     dataset.TrialKey{Target: "zlib", Fuzzer: "FAST"},
		Key:       dataset.Key{Step: 0},
		Dimension: dataset.DimEdgesCovered,
		Value:     dataset.Some(100),
	}}
	tbl, err := dataset.Normalize(obs)
	require.NoError(t, err)

	r := Summarize(tbl, DefaultConfig())
	assert.Empty(t, r.Targets)
	assert.Empty(t, r.Fuzzers)
}
