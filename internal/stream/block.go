// Package stream manages event blocks and the per-producer streams
// that own them: block open/seal lifecycle, transparent rotation on
// capacity overflow, and ordered hand-off of sealed blocks for
// shipping.
package stream

import (
	"github.com/google/uuid"

	"github.com/legion-labs/telemetry-go/transit"
)

// Block is an open, bounded-capacity batch of events. It owns exactly
// one transit queue plus block metadata; the begin time is recorded at
// creation, the end time at sealing.
type Block struct {
	id       string
	streamID string
	queue    *transit.Queue
	begin    transit.DualTime
	sealed   bool
}

// NewBlock opens an empty block for the given stream.
func NewBlock(streamID string, capacity int, schema transit.Schema) *Block {
	return &Block{
		id:       uuid.NewString(),
		streamID: streamID,
		queue:    transit.NewQueue(capacity, schema),
		begin:    transit.DualNow(),
	}
}

// Append delegates to the inner queue. On transit.ErrCapacityExceeded
// the caller must seal this block, open a new one and retry.
func (b *Block) Append(r transit.Record) error {
	return b.queue.Push(r)
}

// IsFull reports whether the queue's used capacity exceeds the given
// fraction. Used to rotate near-full blocks proactively instead of
// waiting for a hard capacity error.
func (b *Block) IsFull(threshold float64) bool {
	cap := b.queue.Capacity()
	if cap == 0 {
		return false
	}
	return float64(b.queue.LenBytes()) >= threshold*float64(cap)
}

// Empty reports whether no events have been recorded yet.
func (b *Block) Empty() bool { return b.queue.Count() == 0 }

// ID returns the block's generated unique id.
func (b *Block) ID() string { return b.id }

// Seal records the end time and converts the block to its immutable,
// ready-to-ship form. Sealing a block twice is a programming error and
// panics.
func (b *Block) Seal() *SealedBlock {
	if b.sealed {
		panic("stream: block sealed twice")
	}
	b.sealed = true
	return &SealedBlock{
		ID:       b.id,
		StreamID: b.streamID,
		Begin:    b.begin,
		End:      transit.DualNow(),
		Queue:    b.queue,
	}
}

// SealedBlock is an immutable batch of events awaiting shipment. The
// shipping pipeline takes ownership; nothing appends to it afterwards.
type SealedBlock struct {
	ID       string
	StreamID string
	Begin    transit.DualTime
	End      transit.DualTime
	Queue    *transit.Queue
}

// Count returns the number of events in the block.
func (b *SealedBlock) Count() int { return b.Queue.Count() }
