// Package telemetry is a low-overhead in-process capture pipeline for
// logs, metrics and spans. Instrumented code appends compact binary
// events to per-stream blocks; sealed blocks are compressed and
// shipped to a collector over HTTP from a background worker, so the
// hot path never waits on the network.
//
// Initialize once per process:
//
//	if err := telemetry.Init(telemetry.Options{BaseURL: "http://collector:8080/v1"}); err != nil {
//		log.Fatal(err)
//	}
//	defer telemetry.Shutdown()
//
// Instrumentation points are described once by package-level
// descriptors and are cheap to hit:
//
//	var descStart = telemetry.NewLogDesc(telemetry.LevelInfo, "service started", "app", "main.go", 12)
//
//	telemetry.Log(descStart)
//
// Span recording uses an explicit per-goroutine stream handle; see
// NewSpanStream.
package telemetry
