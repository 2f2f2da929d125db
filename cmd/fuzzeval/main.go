// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command fuzzeval computes fuzzing campaign reports.
//
// Usage:
//
//	fuzzeval bugs survival.csv
//	fuzzeval coverage --format json ./coverage/
//	fuzzeval overhead --scale-per-day ./logs/
//	fuzzeval execs --config execs.yaml gs://bucket/fuzzer_stats/
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fuzzeval: %v\n", err)
		os.Exit(1)
	}
}
