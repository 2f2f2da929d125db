// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/fuzzeval/services/fuzzeval/metrics"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fuzzeval.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10, cfg.Window)
	assert.Equal(t, 0.05, cfg.Alpha)
	assert.Equal(t, 9999, cfg.Bootstrap.Iterations)
	assert.Equal(t, 20*time.Hour, cfg.AdmissionFloors()[metrics.ExecsPerSec])
}

func TestPresets(t *testing.T) {
	for _, name := range Presets() {
		t.Run(name, func(t *testing.T) {
			cfg, err := Preset(name)
			require.NoError(t, err)
			require.NoError(t, cfg.Validate())
			assert.Equal(t, name, cfg.Report)
			assert.NotEmpty(t, cfg.Fuzzers)
		})
	}

	t.Run("copies are independent", func(t *testing.T) {
		a, _ := Preset(ReportBugs)
		a.Fuzzers[0].Label = "changed"
		b, _ := Preset(ReportBugs)
		assert.Equal(t, "EXPLORE", b.Fuzzers[0].Label)
	})

	t.Run("coverage excludes libpcap", func(t *testing.T) {
		cfg, _ := Preset(ReportCoverage)
		assert.True(t, cfg.Excluded("libpcap_fuzz_both"))
		assert.False(t, cfg.Excluded("zlib_zlib_uncompress_fuzzer"))
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := Preset("latency")
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
window: 5
alpha: 0.01
fuzzers:
  - id: aflplusplus_lto
    label: FAST
bootstrap:
  iterations: 500
  seed: 42
admission:
  execs_per_sec: 12h
logging:
  level: debug
`)

	cfg, err := Load(ReportBugs, path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Window)
	assert.Equal(t, 0.01, cfg.Alpha)
	assert.Len(t, cfg.Fuzzers, 1)
	assert.Equal(t, 500, cfg.Bootstrap.Iterations)
	assert.Equal(t, 0.95, cfg.Bootstrap.ConfidenceLevel, "unset fields keep the preset value")
	assert.Equal(t, uint64(42), cfg.Bootstrap.Seed)
	assert.Equal(t, 12*time.Hour, cfg.AdmissionFloors()[metrics.ExecsPerSec])
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.NotEmpty(t, cfg.Targets)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"alpha out of range", "alpha: 1.5"},
		{"negative window", "window: -1"},
		{"unknown admission metric", "admission:\n  speed: 1h"},
		{"negative floor", "admission:\n  execs_per_sec: -1h"},
		{"empty label", "fuzzers:\n  - id: x\n    label: \"\""},
		{"duplicate label", "fuzzers:\n  - {id: a, label: X}\n  - {id: b, label: X}"},
		{"bad level", "logging:\n  level: verbose"},
		{"target with path separator", "targets: [zlib/../x]"},
		{"fuzzer id with space", "fuzzers:\n  - {id: afl fast, label: X}"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load("", writeConfig(t, tc.body))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := Load("", writeConfig(t, "window: [1"))
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load("", filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg, err := Preset(ReportOverhead)
	require.NoError(t, err)
	data, err := cfg.Marshal()
	require.NoError(t, err)

	loaded, err := Load("", writeConfig(t, string(data)))
	require.NoError(t, err)
	assert.Equal(t, cfg.Report, loaded.Report)
	assert.Equal(t, cfg.Fuzzers, loaded.Fuzzers)
	assert.Equal(t, cfg.Targets, loaded.Targets)
	assert.Equal(t, cfg.Admission, loaded.Admission)
	assert.Equal(t, cfg.Bootstrap, loaded.Bootstrap)
}
