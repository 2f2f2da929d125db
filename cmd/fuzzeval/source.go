// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/AleutianAI/fuzzeval/services/fuzzeval/loader"
)

// openSource picks a loader source for a path or gs:// URL. Coverage
// directories are read one level deep. The returned close func is never nil.
func openSource(ctx context.Context, input string, kind loader.Kind, saKey string) (loader.Source, func() error, error) {
	noop := func() error { return nil }

	if strings.HasPrefix(input, "gs://") {
		bucket, prefix, err := loader.ParseGCSURL(input)
		if err != nil {
			return nil, noop, err
		}
		src, err := loader.NewGCSSource(ctx, bucket, prefix, saKey)
		if err != nil {
			return nil, noop, err
		}
		return src, src.Close, nil
	}

	info, err := os.Stat(input)
	if err != nil {
		return nil, noop, fmt.Errorf("failed to open input: %w", err)
	}
	if info.IsDir() {
		return loader.DirSource{Dir: input, Nested: kind == loader.KindCoverage}, noop, nil
	}
	return loader.FileSource{Path: input}, noop, nil
}
