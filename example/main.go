package main

import (
	"log"
	"math/rand"
	"time"

	telemetry "github.com/legion-labs/telemetry-go"
)

var (
	descStarted   = telemetry.NewLogDesc(telemetry.LevelInfo, "example started", "example", "main.go", 20)
	descFrameSlow = telemetry.NewLogDesc(telemetry.LevelWarn, "slow frame: %v", "example", "main.go", 21)
	descFrameTime = telemetry.NewMetricDesc("frame-time", "ticks", "example", "main.go", 22)
	descFrame     = telemetry.NewSpanDesc("frame", "example", "main.go", 23)
	descSimulate  = telemetry.NewSpanDesc("simulate", "example", "main.go", 24)
)

func main() {
	err := telemetry.Init(telemetry.Options{
		BaseURL:       "http://localhost:8080/v1/ingestion",
		FlushInterval: 10 * time.Second,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer telemetry.Shutdown()

	telemetry.Log(descStarted)

	spans := telemetry.NewSpanStream("main")
	defer spans.Close()
	for i := 0; i < 120; i++ {
		spans.BeginSpan(descFrame)
		start := time.Now()

		spans.BeginSpan(descSimulate)
		work := time.Duration(rand.Intn(20)) * time.Millisecond
		time.Sleep(work)
		spans.EndSpan(descSimulate)

		spans.EndSpan(descFrame)

		elapsed := time.Since(start)
		telemetry.IntMetric(descFrameTime, uint64(elapsed.Nanoseconds()))
		if elapsed > 16*time.Millisecond {
			telemetry.LogString(descFrameSlow, elapsed.String())
		}
	}
}
