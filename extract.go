package telemetry

import (
	"encoding/binary"
	"fmt"

	"github.com/legion-labs/telemetry-go/internal/stream"
	"github.com/legion-labs/telemetry-go/transit"
)

// Dependency extraction walks a sealed block's events and collects the
// descriptors and interned strings they reference into a self-contained
// queue, each at most once. The dedup scope is the block: a descriptor
// used in many blocks ships once per block, which keeps every block
// decodable on its own. Strings a descriptor references are emitted
// before the descriptor itself.
//
// Extraction never mutates the source block and runs on the sink's
// worker goroutine.

// ExtractLogDeps collects the dependencies of a log stream block.
func ExtractLogDeps(blk *stream.SealedBlock) (*transit.Queue, error) {
	x := newExtraction(LogDepsSchema)
	err := blk.Queue.ForEach(func(tag uint8, payload []byte) error {
		id := binary.LittleEndian.Uint64(payload[:8])
		if x.seenDesc(id) {
			return nil
		}
		v, ok := logDescs.Load(id)
		if !ok {
			return fmt.Errorf("telemetry: block %s references unknown log descriptor %d", blk.ID, id)
		}
		d := v.(*LogDesc)
		x.pushString(d.fmtStr)
		x.pushString(d.target)
		x.pushString(d.file)
		return x.queue.Push(logDescDep{d})
	})
	if err != nil {
		return nil, err
	}
	return x.queue, nil
}

// ExtractMetricDeps collects the dependencies of a metric stream block.
func ExtractMetricDeps(blk *stream.SealedBlock) (*transit.Queue, error) {
	x := newExtraction(MetricsDepsSchema)
	err := blk.Queue.ForEach(func(tag uint8, payload []byte) error {
		id := binary.LittleEndian.Uint64(payload[:8])
		if x.seenDesc(id) {
			return nil
		}
		v, ok := metricDescs.Load(id)
		if !ok {
			return fmt.Errorf("telemetry: block %s references unknown metric descriptor %d", blk.ID, id)
		}
		d := v.(*MetricDesc)
		x.pushString(d.name)
		x.pushString(d.unit)
		x.pushString(d.target)
		x.pushString(d.file)
		return x.queue.Push(metricDescDep{d})
	})
	if err != nil {
		return nil, err
	}
	return x.queue, nil
}

// ExtractSpanDeps collects the dependencies of a span stream block.
func ExtractSpanDeps(blk *stream.SealedBlock) (*transit.Queue, error) {
	x := newExtraction(SpanDepsSchema)
	err := blk.Queue.ForEach(func(tag uint8, payload []byte) error {
		id := binary.LittleEndian.Uint64(payload[:8])
		if x.seenDesc(id) {
			return nil
		}
		v, ok := spanDescs.Load(id)
		if !ok {
			return fmt.Errorf("telemetry: block %s references unknown span descriptor %d", blk.ID, id)
		}
		d := v.(*SpanDesc)
		x.pushString(d.name)
		x.pushString(d.target)
		x.pushString(d.file)
		return x.queue.Push(spanDescDep{d})
	})
	if err != nil {
		return nil, err
	}
	return x.queue, nil
}

// extraction is one pass's working state: an unbounded output queue
// plus the ids already emitted during this pass.
type extraction struct {
	queue       *transit.Queue
	seenStrings map[uint64]struct{}
	seenDescs   map[uint64]struct{}
}

func newExtraction(schema transit.Schema) *extraction {
	return &extraction{
		queue:       transit.NewQueue(0, schema),
		seenStrings: make(map[uint64]struct{}),
		seenDescs:   make(map[uint64]struct{}),
	}
}

// seenDesc records the descriptor id and reports whether it was
// already emitted in this pass.
func (x *extraction) seenDesc(id uint64) bool {
	if _, ok := x.seenDescs[id]; ok {
		return true
	}
	x.seenDescs[id] = struct{}{}
	return false
}

func (x *extraction) pushString(s *transit.StaticString) {
	if _, ok := x.seenStrings[s.ID()]; ok {
		return
	}
	x.seenStrings[s.ID()] = struct{}{}
	// Unbounded queue: Push cannot fail on capacity.
	_ = x.queue.Push(staticStringDep{s})
}
