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
	"fmt"
	"slices"

	"github.com/AleutianAI/fuzzeval/services/fuzzeval/dataset"
)

// Preset names.
const (
	ReportBugs     = "bugs"
	ReportCoverage = "coverage"
	ReportOverhead = "overhead"
	ReportExecs    = "execs"
)

// Presets returns the preset names in display order.
func Presets() []string {
	return []string{ReportBugs, ReportCoverage, ReportOverhead, ReportExecs}
}

// Preset returns a fresh copy of a built-in report configuration.
func Preset(name string) (*Config, error) {
	build, ok := presets[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown preset %q", ErrInvalidConfig, name)
	}
	cfg := Default()
	cfg.Report = name
	build(cfg)
	return cfg, nil
}

var presets = map[string]func(*Config){
	ReportBugs: func(c *Config) {
		c.Fuzzers = slices.Clone(magmaFuzzers)
		c.Targets = slices.Clone(magmaTargets)
	},
	ReportCoverage: func(c *Config) {
		c.Fuzzers = slices.Clone(coverageFuzzers)
		c.ExcludeTargets = []string{"libpcap_fuzz_both"}
	},
	ReportOverhead: func(c *Config) {
		c.Fuzzers = slices.Clone(overheadFuzzers)
		c.Targets = slices.Clone(fuzzbenchTargets)
	},
	ReportExecs: func(c *Config) {
		c.Fuzzers = identity(execsFuzzers)
		c.Targets = slices.Clone(fuzzbenchTargets)
	},
}

func identity(ids []string) dataset.Labels {
	out := make(dataset.Labels, len(ids))
	for i, id := range ids {
		out[i] = dataset.Label{ID: id, Label: id}
	}
	return out
}

// -----------------------------------------------------------------------------
// Label tables
// -----------------------------------------------------------------------------

var magmaFuzzers = dataset.Labels{
	{ID: "aflplusplus_explore_lto", Label: "EXPLORE"},
	{ID: "aflplusplus_lto", Label: "FAST"},
	{ID: "aflplusplus_coe_lto", Label: "COE"},
	{ID: "aflplusplus_quad_lto", Label: "QUAD"},
	{ID: "aflplusplus_lin_lto", Label: "LIN"},
	{ID: "aflplusplus_exploit_lto", Label: "EXPLOIT"},
	{ID: "aflplusplus_mmopt_lto", Label: "MMOPT"},
	{ID: "aflplusplus_rare_lto", Label: "RARE"},
	{ID: "k_scheduler", Label: `\texttt{K-Sched}`},
	{ID: "tortoisefuzz", Label: "Tortoise"},
	{ID: "aflplusplus_rl_none", Label: `\algoworare`},
	{ID: "aflplusplus_rl_without_sqrt", Label: `\algowrare`},
	{ID: "aflplusplus_rl_sample", Label: `\algosample`},
}

var magmaTargets = []string{
	"libpng_read_fuzzer",
	"sndfile_fuzzer",
	"tiff_read_rgba_fuzzer",
	"tiffcp",
	"libxml2_xml_read_memory_fuzzer",
	"xmllint",
	"lua",
	"asn1",
	"client",
	"server",
	"x509",
	"exif",
	"pdf_fuzzer",
	"pdfimages",
	"pdftoppm",
	"sqlite3_fuzz",
}

var coverageFuzzers = dataset.Labels{
	{ID: "rlexp_afl_qemu_explore", Label: "EXPLORE"},
	{ID: "aflplusplus_qemu", Label: "FAST"},
	{ID: "rlexp_afl_qemu_coe", Label: "COE"},
	{ID: "rlexp_afl_qemu_quad", Label: "QUAD"},
	{ID: "rlexp_afl_qemu_lin", Label: "LIN"},
	{ID: "rlexp_afl_qemu_exploit", Label: "EXPLOIT"},
	{ID: "rlexp_afl_qemu_mmopt", Label: "MMOPT"},
	{ID: "rlexp_afl_qemu_rare", Label: "RARE"},
	{ID: "aflhier", Label: "afl-hier"},
	{ID: "rl_fuzzing_none", Label: `\algoworare`},
	{ID: "rl_fuzzing_without_sqrt", Label: `\algowrare`},
	{ID: "rl_fuzzing_sample", Label: `\algosample`},
}

var overheadFuzzers = dataset.Labels{
	{ID: "aflpp_explore_overhead", Label: "EXPLORE"},
	{ID: "aflpp_overhead", Label: "FAST"},
	{ID: "aflpp_coe_overhead", Label: "COE"},
	{ID: "aflpp_quad_overhead", Label: "QUAD"},
	{ID: "aflpp_lin_overhead", Label: "LIN"},
	{ID: "aflpp_exploit_overhead", Label: "EXPLOIT"},
	{ID: "aflpp_mmopt_overhead", Label: "MMOPT"},
	{ID: "aflpp_rare_overhead", Label: "RARE"},
	{ID: "aflhier_overhead", Label: `\aflhier`},
	{ID: "ecofuzz", Label: "EcoFuzz"},
	{ID: "rl_fuzzing_none_qemu_overhead", Label: `\algoworare`},
	{ID: "rl_fuzzing_without_sqrt_qemu_overhead", Label: `\algowrare`},
	{ID: "rl_fuzzing_sample_qemu_overhead", Label: `\algosample`},
}

var execsFuzzers = []string{
	"aflpp_explore_overhead",
	"aflpp_overhead",
	"aflpp_coe_overhead",
	"aflpp_quad_overhead",
	"aflpp_lin_overhead",
	"aflpp_exploit_overhead",
	"aflpp_mmopt_overhead",
	"aflpp_rare_overhead",
	"aflhier_overhead",
	"ecofuzz_overhead",
	"rl_fuzzing_none_qemu_overhead",
	"rl_fuzzing_without_sqrt_qemu_overhead",
	"rl_fuzzing_sample_qemu_overhead",
}

var fuzzbenchTargets = []string{
	"bloaty_fuzz_target",
	"curl_curl_fuzzer_http",
	"freetype2-2017",
	"harfbuzz-1.3.2",
	"jsoncpp_jsoncpp_fuzzer",
	"lcms-2017-03-21",
	"libjpeg-turbo-07-2017",
	"libpng-1.2.56",
	"mbedtls_fuzz_dtlsclient",
	"openssl_x509",
	"openthread-2019-12-23",
	"php_php-fuzz-parser",
	"proj4-2017-08-14",
	"re2-2014-12-09",
	"sqlite3_ossfuzz",
	"systemd_fuzz-link-parser",
	"vorbis-2017-12-11",
	"woff2-2016-05-06",
	"zlib_zlib_uncompress_fuzzer",
}
