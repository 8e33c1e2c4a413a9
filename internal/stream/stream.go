package stream

import (
	"sync"

	"github.com/google/uuid"

	"github.com/legion-labs/telemetry-go/transit"
)

// Config describes a stream at creation time.
type Config struct {
	ProcessID string
	// BlockCapacity is the reserved byte capacity of each block's
	// event queue.
	BlockCapacity int
	// Schema is the record schema of the stream's event queue.
	Schema transit.Schema
	// Tags classify the stream for filtering at query time
	// (e.g. "log", "metrics", "cpu").
	Tags []string
	// Properties are free-form key/value pairs (thread name, codec).
	Properties map[string]string
	// Handoff, when set, receives each sealed block as soon as it is
	// rotated out. It is called under the stream's lock so that blocks
	// of one stream reach the sink in creation order; it must hand the
	// block to an asynchronous shipper and return without blocking.
	// When nil, sealed blocks accumulate until DrainSealed is called.
	Handoff func(*SealedBlock)
}

// Stream is one producer channel's ordered sequence of blocks. It owns
// the single open block; sealed blocks are handed off (or drained) in
// creation order. One goroutine produces into a stream at a time;
// the internal lock exists so that the flush monitor can force
// rotation from its own goroutine.
type Stream struct {
	id         string
	processID  string
	capacity   int
	schema     transit.Schema
	tags       []string
	properties map[string]string
	handoff    func(*SealedBlock)

	mu      sync.Mutex
	current *Block
	pending []*SealedBlock
}

// New creates a stream with a fresh open block.
func New(cfg Config) *Stream {
	s := &Stream{
		id:         uuid.NewString(),
		processID:  cfg.ProcessID,
		capacity:   cfg.BlockCapacity,
		schema:     cfg.Schema,
		tags:       cfg.Tags,
		properties: cfg.Properties,
		handoff:    cfg.Handoff,
	}
	s.current = NewBlock(s.id, s.capacity, s.schema)
	return s
}

// ID returns the stream's process-unique id.
func (s *Stream) ID() string { return s.id }

// ProcessID returns the owning process id.
func (s *Stream) ProcessID() string { return s.processID }

// Tags returns the stream's classification tags.
func (s *Stream) Tags() []string { return s.tags }

// Properties returns the stream's key/value properties.
func (s *Stream) Properties() map[string]string { return s.properties }

// Schema returns the record schema of the stream's event queues.
func (s *Stream) Schema() transit.Schema { return s.schema }

// Emit appends an event to the current block, transparently rotating
// to a fresh block when capacity is exhausted. The error path is only
// reachable when a single record is larger than a whole block; the
// current block is then left as it was, never shipped empty.
func (s *Stream) Emit(r transit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.current.Append(r)
	if err != transit.ErrCapacityExceeded {
		return err
	}
	if s.current.Empty() {
		// Rotation cannot help: the record does not fit a whole block.
		return err
	}

	s.rotateLocked()
	return s.current.Append(r)
}

// MarkFull forces rotation of the current block even if capacity is
// not exhausted. Empty blocks are not rotated: there is nothing to
// ship and the open block's time range simply keeps extending.
func (s *Stream) MarkFull() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.current.Empty() {
		s.rotateLocked()
	}
}

// IsFull reports whether the current block's used capacity exceeds the
// given fraction.
func (s *Stream) IsFull(threshold float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.IsFull(threshold)
}

// DrainSealed returns and clears the blocks awaiting shipment, in
// block creation order. Only meaningful when no Handoff was configured.
func (s *Stream) DrainSealed() []*SealedBlock {
	s.mu.Lock()
	defer s.mu.Unlock()
	drained := s.pending
	s.pending = nil
	return drained
}

// rotateLocked seals the current block, opens its successor and hands
// the sealed block off. The caller holds s.mu; running the handoff
// under the lock is what keeps one stream's blocks in creation order
// at the sink, and is safe because the handoff only enqueues.
func (s *Stream) rotateLocked() {
	sealed := s.current.Seal()
	s.current = NewBlock(s.id, s.capacity, s.schema)
	if s.handoff == nil {
		s.pending = append(s.pending, sealed)
		return
	}
	s.handoff(sealed)
}
