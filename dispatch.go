package telemetry

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/legion-labs/telemetry-go/internal/procinfo"
	"github.com/legion-labs/telemetry-go/internal/sink"
	"github.com/legion-labs/telemetry-go/internal/stream"
	"github.com/legion-labs/telemetry-go/internal/wire"
	"github.com/legion-labs/telemetry-go/transit"
)

// Options configures the telemetry pipeline at Init time.
type Options struct {
	// BaseURL is the collector endpoint root. Empty means no shipping:
	// events are recorded and discarded, instrumentation stays callable.
	BaseURL string
	// FlushInterval is how long buffered events may sit before the
	// monitor forces them out. Zero means the 60s default.
	FlushInterval time.Duration
	// BlockCapacity is the byte capacity of each event block.
	// Zero means the 1 MiB default.
	BlockCapacity int
	// Compression names the block payload codec: "lz4" (default) or
	// "zstd".
	Compression string
	// MaxQueueSize bounds the sink's job queue; payloads beyond it are
	// dropped. Zero means the sink's default.
	MaxQueueSize int
}

const (
	defaultFlushInterval = 60 * time.Second
	defaultBlockCapacity = 1 << 20
)

// dispatch is the process-wide pipeline: the sink, the always-on log
// and metric streams, and the flush monitor. Span streams register
// with it but are owned by their creating goroutines.
type dispatch struct {
	processID string
	capacity  int
	sink      sink.Sink
	codecName string

	logStream    *stream.Stream
	metricStream *stream.Stream

	monitor *sink.Monitor
	cancel  context.CancelFunc
	done    chan struct{}

	spanMu      sync.Mutex
	spanStreams []*SpanStream
}

var (
	gmu sync.Mutex
	g   *dispatch
)

// Init starts the process-wide pipeline: collects process metadata,
// ships the process and built-in stream registrations, and starts the
// flush monitor. Calling Init twice without Shutdown is an error.
func Init(opts Options) error {
	gmu.Lock()
	defer gmu.Unlock()
	if g != nil {
		return fmt.Errorf("telemetry: already initialized")
	}

	if opts.FlushInterval <= 0 {
		opts.FlushInterval = defaultFlushInterval
	}
	if opts.BlockCapacity <= 0 {
		opts.BlockCapacity = defaultBlockCapacity
	}

	codec, err := wire.ForName(opts.Compression)
	if err != nil {
		return err
	}

	var snk sink.Sink
	if opts.BaseURL == "" {
		snk = sink.NullSink{}
	} else {
		snk = sink.NewHTTPSink(opts.BaseURL, codec, opts.MaxQueueSize)
	}

	d := &dispatch{
		processID: uuid.NewString(),
		capacity:  opts.BlockCapacity,
		sink:      snk,
		codecName: codec.Name(),
		done:      make(chan struct{}),
	}

	snk.OnStartup(procinfo.Collect(d.processID))

	d.logStream = stream.New(stream.Config{
		ProcessID:     d.processID,
		BlockCapacity: d.capacity,
		Schema:        LogObjectsSchema,
		Tags:          []string{"log"},
		Properties:    map[string]string{"compression": d.codecName},
		Handoff:       func(b *stream.SealedBlock) { snk.OnBlock(b, ExtractLogDeps) },
	})
	snk.OnInitStream(wire.StreamInfo{
		StreamID:     d.logStream.ID(),
		ProcessID:    d.processID,
		DepsSchema:   LogDepsSchema,
		ObjectSchema: LogObjectsSchema,
		Tags:         d.logStream.Tags(),
		Properties:   d.logStream.Properties(),
	})

	d.metricStream = stream.New(stream.Config{
		ProcessID:     d.processID,
		BlockCapacity: d.capacity,
		Schema:        MetricsObjectsSchema,
		Tags:          []string{"metrics"},
		Properties:    map[string]string{"compression": d.codecName},
		Handoff:       func(b *stream.SealedBlock) { snk.OnBlock(b, ExtractMetricDeps) },
	})
	snk.OnInitStream(wire.StreamInfo{
		StreamID:     d.metricStream.ID(),
		ProcessID:    d.processID,
		DepsSchema:   MetricsDepsSchema,
		ObjectSchema: MetricsObjectsSchema,
		Tags:         d.metricStream.Tags(),
		Properties:   d.metricStream.Properties(),
	})

	d.monitor = sink.NewMonitor(opts.FlushInterval, snk.IsBusy, d.flushAll, d.rotateNearFull)
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	go func() {
		defer close(d.done)
		d.monitor.Run(ctx, time.Second)
	}()

	g = d
	return nil
}

// Shutdown flushes every stream, stops the monitor and drains the
// sink. The pipeline can be initialized again afterwards.
func Shutdown() {
	gmu.Lock()
	d := g
	g = nil
	gmu.Unlock()
	if d == nil {
		return
	}

	d.cancel()
	<-d.done
	d.flushAll()
	d.sink.Close()
}

// flushAll forces every stream's buffered events out to the sink.
func (d *dispatch) flushAll() {
	d.logStream.MarkFull()
	d.metricStream.MarkFull()
	for _, ss := range d.snapshotSpanStreams() {
		ss.MarkFull()
	}
}

// nearFullThreshold is the used-capacity fraction past which the
// monitor rotates a block ahead of the flush interval, trading a
// little batching for never hitting the capacity error mid-emit.
const nearFullThreshold = 0.8

// rotateNearFull runs on every monitor tick and ships blocks that are
// close to capacity without waiting for the flush interval.
func (d *dispatch) rotateNearFull() {
	if d.logStream.IsFull(nearFullThreshold) {
		d.logStream.MarkFull()
	}
	if d.metricStream.IsFull(nearFullThreshold) {
		d.metricStream.MarkFull()
	}
	for _, ss := range d.snapshotSpanStreams() {
		if ss.s.IsFull(nearFullThreshold) {
			ss.MarkFull()
		}
	}
}

func (d *dispatch) snapshotSpanStreams() []*SpanStream {
	d.spanMu.Lock()
	defer d.spanMu.Unlock()
	return append([]*SpanStream(nil), d.spanStreams...)
}

func current() *dispatch {
	gmu.Lock()
	defer gmu.Unlock()
	return g
}

// Log records a static log event; the message is the descriptor's
// static string.
func Log(desc *LogDesc) {
	d := current()
	if d == nil {
		return
	}
	d.emitLog(LogStaticEvent{Desc: desc, Time: transit.Now()})
}

// LogString records a log event with a runtime-built message.
func LogString(desc *LogDesc, msg string) {
	d := current()
	if d == nil {
		return
	}
	d.emitLog(LogStringEvent{Desc: desc, Time: transit.Now(), Msg: msg})
}

// IntMetric records one integer measurement.
func IntMetric(desc *MetricDesc, value uint64) {
	d := current()
	if d == nil {
		return
	}
	d.emitMetric(IntegerMetricEvent{Desc: desc, Value: value, Time: transit.Now()})
}

// FloatMetric records one floating-point measurement.
func FloatMetric(desc *MetricDesc, value float64) {
	d := current()
	if d == nil {
		return
	}
	d.emitMetric(FloatMetricEvent{Desc: desc, Value: value, Time: transit.Now()})
}

func (d *dispatch) emitLog(r transit.Record) {
	if err := d.logStream.Emit(r); err != nil {
		log.Printf("telemetry: dropping log event: %v", err)
	}
}

func (d *dispatch) emitMetric(r transit.Record) {
	if err := d.metricStream.Emit(r); err != nil {
		log.Printf("telemetry: dropping metric event: %v", err)
	}
}

// FlushLogStream seals and ships the log stream's current block.
func FlushLogStream() {
	if d := current(); d != nil {
		d.logStream.MarkFull()
	}
}

// FlushMetricStream seals and ships the metric stream's current block.
func FlushMetricStream() {
	if d := current(); d != nil {
		d.metricStream.MarkFull()
	}
}
