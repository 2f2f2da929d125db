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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func obs(target, fuzzer string, trial int, key Key, dim Dimension, v Value) Observation {
	return Observation{
		Trial:     TrialKey{Target: target, Fuzzer: fuzzer, Trial: trial},
		Key:       key,
		Dimension: dim,
		Value:     v,
	}
}

// -----------------------------------------------------------------------------
// Melt Tests
// -----------------------------------------------------------------------------

func TestMelt(t *testing.T) {
	rows := []WideRow{
		{
			Target:    "libpng_read_fuzzer",
			Fuzzer:    "FAST",
			Key:       Key{Bug: "PNG001"},
			Dimension: DimTriggered,
			Trials:    []Value{Some(30), None(), Some(45)},
		},
	}

	got := Melt(rows)
	require.Len(t, got, 3)

	assert.Equal(t, TrialKey{Target: "libpng_read_fuzzer", Fuzzer: "FAST", Trial: 0}, got[0].Trial)
	assert.Equal(t, Some(30), got[0].Value)
	assert.Equal(t, 1, got[1].Trial.Trial)
	assert.False(t, got[1].Value.Set)
	assert.Equal(t, "PNG001", got[2].Key.Bug)
	assert.Equal(t, DimTriggered, got[2].Dimension)
}

// -----------------------------------------------------------------------------
// Normalize Tests
// -----------------------------------------------------------------------------

func TestNormalize(t *testing.T) {
	t.Run("orders trials and records", func(t *testing.T) {
		in := []Observation{
			obs("zlib", "FAST", 1, Key{Step: 1}, DimTime, Some(10)),
			obs("zlib", "FAST", 1, Key{Step: 0}, DimTime, Some(0)),
			obs("bloaty", "RARE", 0, Key{Step: 0}, DimEdgesCovered, Some(5)),
			obs("zlib", "FAST", 0, Key{Step: 0}, DimTime, Some(0)),
		}

		table, err := Normalize(in)
		require.NoError(t, err)
		assert.Equal(t, 3, table.Len())

		trials := table.Trials()
		assert.Equal(t, "bloaty", trials[0].Target)
		assert.Equal(t, TrialKey{Target: "zlib", Fuzzer: "FAST", Trial: 0}, trials[1])
		assert.Equal(t, TrialKey{Target: "zlib", Fuzzer: "FAST", Trial: 1}, trials[2])

		recs := table.Records(trials[2])
		require.Len(t, recs, 2)
		assert.Equal(t, 0, recs[0].Key.Step)
		assert.Equal(t, 1, recs[1].Key.Step)

		assert.Equal(t, []GroupKey{{"bloaty", "RARE"}, {"zlib", "FAST"}}, table.Groups())
		assert.Equal(t, []string{"bloaty", "zlib"}, table.Targets())
		assert.Equal(t, []string{"FAST", "RARE"}, table.Fuzzers())
	})

	t.Run("keeps trials whose values are all unset", func(t *testing.T) {
		in := []Observation{
			obs("lua", "COE", 3, Key{Bug: "LUA002"}, DimTriggered, None()),
			obs("lua", "COE", 3, Key{Bug: "LUA004"}, DimTriggered, None()),
		}

		table, err := Normalize(in)
		require.NoError(t, err)
		require.Equal(t, 1, table.Len())

		recs := table.Records(TrialKey{Target: "lua", Fuzzer: "COE", Trial: 3})
		require.Len(t, recs, 2)
		for _, r := range recs {
			assert.False(t, r.Value.Set, "unset values must not become zero")
		}
	})

	t.Run("identical duplicates collapse", func(t *testing.T) {
		in := []Observation{
			obs("sqlite3", "FAST", 0, Key{Bug: "SQL002"}, DimTriggered, Some(100)),
			obs("sqlite3", "FAST", 0, Key{Bug: "SQL002"}, DimTriggered, Some(100)),
		}

		table, err := Normalize(in)
		require.NoError(t, err)
		assert.Len(t, table.Records(in[0].Trial), 1)
		assert.Empty(t, table.Rejected())
	})

	t.Run("conflicting duplicate withholds only its trial", func(t *testing.T) {
		in := []Observation{
			obs("sqlite3", "FAST", 0, Key{Bug: "SQL002"}, DimTriggered, Some(100)),
			obs("sqlite3", "FAST", 0, Key{Bug: "SQL002"}, DimTriggered, Some(250)),
			obs("sqlite3", "FAST", 1, Key{Bug: "SQL002"}, DimTriggered, Some(90)),
		}

		table, err := Normalize(in)
		require.NoError(t, err)

		assert.Equal(t, 1, table.Len())
		assert.Nil(t, table.Records(in[0].Trial))
		assert.NotNil(t, table.Records(in[2].Trial))

		rejected := table.Rejected()
		require.Len(t, rejected, 1)
		assert.True(t, errors.Is(rejected[0], ErrInconsistentObservation))
		assert.Equal(t, Some(100), rejected[0].First)
		assert.Equal(t, Some(250), rejected[0].Second)
	})

	t.Run("set versus unset is a conflict", func(t *testing.T) {
		in := []Observation{
			obs("x509", "LIN", 2, Key{Bug: "SSL009"}, DimTriggered, Some(7)),
			obs("x509", "LIN", 2, Key{Bug: "SSL009"}, DimTriggered, None()),
		}

		table, err := Normalize(in)
		require.NoError(t, err)
		assert.Equal(t, 0, table.Len())
		assert.Len(t, table.Rejected(), 1)
	})

	t.Run("invalid observations are reported and skipped", func(t *testing.T) {
		in := []Observation{
			obs("", "FAST", 0, Key{}, DimTime, Some(1)),
			obs("lua", "", 0, Key{}, DimTime, Some(1)),
			obs("lua", "FAST", -1, Key{}, DimTime, Some(1)),
			obs("lua", "FAST", 0, Key{}, Dimension("bogus"), Some(1)),
			obs("lua", "FAST", 0, Key{}, DimTime, Some(1)),
		}

		table, err := Normalize(in)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidObservation))
		assert.Equal(t, 1, table.Len())
	})
}

func TestTable_All(t *testing.T) {
	in := []Observation{
		obs("a", "F", 0, Key{}, DimTime, Some(1)),
		obs("a", "F", 1, Key{}, DimTime, Some(2)),
		obs("b", "F", 0, Key{}, DimTime, Some(3)),
	}
	table, err := Normalize(in)
	require.NoError(t, err)

	var seen []TrialKey
	for k, recs := range table.All() {
		seen = append(seen, k)
		assert.Len(t, recs, 1)
	}
	assert.Equal(t, table.Trials(), seen)

	t.Run("early break", func(t *testing.T) {
		count := 0
		for range table.All() {
			count++
			break
		}
		assert.Equal(t, 1, count)
	})
}

// -----------------------------------------------------------------------------
// Value Tests
// -----------------------------------------------------------------------------

func TestValue(t *testing.T) {
	assert.True(t, None().Equal(Value{}))
	assert.True(t, Some(1).Equal(Some(1)))
	assert.False(t, Some(0).Equal(None()))
	assert.Equal(t, "NA", None().String())
	assert.Equal(t, "2.5", Some(2.5).String())

	v, ok := Some(3).Get()
	assert.True(t, ok)
	assert.Equal(t, 3.0, v)
}

func TestKeys(t *testing.T) {
	k := TrialKey{Target: "lua", Fuzzer: "FAST", Trial: 4}
	assert.Equal(t, "lua/FAST#4", k.String())
	assert.Equal(t, GroupKey{Target: "lua", Fuzzer: "FAST"}, k.Group())
	assert.Equal(t, "LUA001", Key{Bug: "LUA001"}.String())
	assert.Equal(t, "step 3", Key{Step: 3}.String())
	assert.Negative(t, Key{Step: 1}.Compare(Key{Step: 2}))
}
