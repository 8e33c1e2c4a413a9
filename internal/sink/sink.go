// Package sink ships process, stream and block payloads out of the
// process. Every sink accepts work without blocking the caller: slow
// or unreachable backends cost dropped telemetry, never stalled
// instrumented code.
package sink

import (
	"github.com/legion-labs/telemetry-go/internal/procinfo"
	"github.com/legion-labs/telemetry-go/internal/stream"
	"github.com/legion-labs/telemetry-go/internal/wire"
	"github.com/legion-labs/telemetry-go/transit"
)

// DepExtractor produces the dependency queue for a sealed block. It
// runs on the sink's worker goroutine, off the instrumented hot path.
type DepExtractor func(*stream.SealedBlock) (*transit.Queue, error)

// Sink receives telemetry payloads in order: process metadata first,
// then stream registrations, then sealed blocks. Implementations must
// never block the caller.
type Sink interface {
	OnStartup(info procinfo.ProcessInfo)
	OnInitStream(info wire.StreamInfo)
	OnBlock(blk *stream.SealedBlock, extract DepExtractor)
	// IsBusy reports whether shipped work is still in flight.
	IsBusy() bool
	// Close drains queued work and releases the sink's resources.
	Close()
}

// NullSink discards everything. Used when no collector endpoint is
// configured so instrumentation stays callable.
type NullSink struct{}

func (NullSink) OnStartup(procinfo.ProcessInfo)            {}
func (NullSink) OnInitStream(wire.StreamInfo)              {}
func (NullSink) OnBlock(*stream.SealedBlock, DepExtractor) {}
func (NullSink) IsBusy() bool                              { return false }
func (NullSink) Close()                                    {}

