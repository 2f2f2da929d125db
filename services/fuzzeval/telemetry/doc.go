// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry provides OpenTelemetry-based observability for fuzzeval
// batch runs.
//
// OTel is the abstraction layer: pipeline stages use the OTel tracer and
// meter APIs directly and the exporters are picked by configuration.
//
// # Traces
//
// Spans go to stdout (pretty printed JSON) or to an OTLP gRPC collector.
// The default is no trace export.
//
// # Metrics
//
// A batch tool is never scraped, so the OTel Prometheus exporter registers
// into a private prometheus.Registry and the registry is written once at the
// end of the run in node-exporter textfile format. The stdout exporter can
// additionally print metric snapshots.
//
// # Usage
//
//	p, err := telemetry.Init(ctx, telemetry.DefaultConfig())
//	if err != nil {
//	    return fmt.Errorf("init telemetry: %w", err)
//	}
//	defer p.Shutdown(context.Background())
//
//	m, err := telemetry.NewMetrics(p.Meter())
//	...
//	if err := p.WriteTextfile("/var/lib/node_exporter/fuzzeval.prom"); err != nil {
//	    ...
//	}
//
// # Thread Safety
//
// Init is called once at startup. Provider and Metrics are safe for
// concurrent use.
package telemetry
