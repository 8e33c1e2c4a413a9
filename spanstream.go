package telemetry

import (
	"log"
	"strconv"

	"github.com/legion-labs/telemetry-go/internal/stream"
	"github.com/legion-labs/telemetry-go/internal/wire"
	"github.com/legion-labs/telemetry-go/transit"
)

// SpanStream records begin/end span pairs for one goroutine. There is
// no implicit per-goroutine stream: the goroutine that wants span
// telemetry creates a handle and threads it through its call stack.
// SpanStream methods are not safe for concurrent use; the owning
// goroutine is the only producer.
type SpanStream struct {
	d  *dispatch
	s  *stream.Stream
	id uint64
}

// NewSpanStream registers a span stream for the calling goroutine.
// name labels the stream (typically the goroutine's role, "render" or
// "worker-3") and lands in the stream's properties. Returns nil when
// the pipeline is not initialized; a nil handle's methods are no-ops.
func NewSpanStream(name string) *SpanStream {
	d := current()
	if d == nil {
		return nil
	}

	seq := transit.NextID()
	s := stream.New(stream.Config{
		ProcessID:     d.processID,
		BlockCapacity: d.capacity,
		Schema:        SpanObjectsSchema,
		Tags:          []string{"cpu"},
		Properties: map[string]string{
			"compression": d.codecName,
			"thread-name": name,
			"thread-id":   strconv.FormatUint(seq, 10),
		},
		Handoff: func(b *stream.SealedBlock) { d.sink.OnBlock(b, ExtractSpanDeps) },
	})
	d.sink.OnInitStream(wire.StreamInfo{
		StreamID:     s.ID(),
		ProcessID:    d.processID,
		DepsSchema:   SpanDepsSchema,
		ObjectSchema: SpanObjectsSchema,
		Tags:         s.Tags(),
		Properties:   s.Properties(),
	})

	ss := &SpanStream{d: d, s: s, id: seq}
	d.spanMu.Lock()
	d.spanStreams = append(d.spanStreams, ss)
	d.spanMu.Unlock()
	return ss
}

// BeginSpan records entry into the descriptor's scope.
func (ss *SpanStream) BeginSpan(desc *SpanDesc) {
	if ss == nil {
		return
	}
	ss.emit(BeginSpanEvent{Desc: desc, Time: transit.Now()})
}

// EndSpan records exit from the descriptor's scope. Pair it with the
// BeginSpan of the same descriptor, innermost first.
func (ss *SpanStream) EndSpan(desc *SpanDesc) {
	if ss == nil {
		return
	}
	ss.emit(EndSpanEvent{Desc: desc, Time: transit.Now()})
}

func (ss *SpanStream) emit(r transit.Record) {
	if err := ss.s.Emit(r); err != nil {
		log.Printf("telemetry: dropping span event: %v", err)
	}
}

// MarkFull forces the stream's current block out to the sink.
func (ss *SpanStream) MarkFull() {
	if ss == nil {
		return
	}
	ss.s.MarkFull()
}

// Close ships the stream's remaining events and removes it from the
// flush monitor's registry. Call it when the owning goroutine is done
// recording; a long-lived process that churns short-lived goroutines
// would otherwise accumulate dead registrations. The handle must not
// be used after Close.
func (ss *SpanStream) Close() {
	if ss == nil {
		return
	}
	ss.s.MarkFull()
	ss.d.spanMu.Lock()
	for i, reg := range ss.d.spanStreams {
		if reg == ss {
			ss.d.spanStreams = append(ss.d.spanStreams[:i], ss.d.spanStreams[i+1:]...)
			break
		}
	}
	ss.d.spanMu.Unlock()
}

// ID returns the underlying stream id.
func (ss *SpanStream) ID() string {
	if ss == nil {
		return ""
	}
	return ss.s.ID()
}
