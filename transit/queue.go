package transit

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrCapacityExceeded is returned by Push when appending a record
// would exceed the queue's reserved capacity. Callers are expected to
// seal the surrounding block and retry on a fresh one; the queue never
// grows past its capacity and never drops records silently.
var ErrCapacityExceeded = errors.New("transit: queue capacity exceeded")

// Record is an event that can serialize itself into a queue. The
// payload layout must match the variant's UserDefinedType in the
// queue's schema; the queue itself does not validate field layouts.
type Record interface {
	// TypeIndex is the record's tag: its variant's index in the schema.
	TypeIndex() uint8
	// PayloadSize is the encoded payload length in bytes, excluding
	// the tag and any length prefix.
	PayloadSize() int
	// AppendPayload appends the encoded payload to dst.
	AppendPayload(dst []byte) []byte
}

// Queue is an append-only buffer of heterogeneous records. It is a
// byte-exact memory image: Bytes() can be compressed and transmitted
// with no per-record re-serialization. A capacity of zero makes the
// queue unbounded (used for dependency queues, whose size is bounded
// by the block they are extracted from).
//
// A Queue is not safe for concurrent use; ownership follows the block
// that holds it.
type Queue struct {
	schema   Schema
	buf      []byte
	capacity int
	count    int
}

// NewQueue returns an empty queue for records of the given schema.
func NewQueue(capacity int, schema Schema) *Queue {
	var buf []byte
	if capacity > 0 {
		buf = make([]byte, 0, capacity)
	}
	return &Queue{schema: schema, buf: buf, capacity: capacity}
}

// Push appends one record. It fails with ErrCapacityExceeded when the
// encoded record would not fit; the queue is left unchanged in that
// case.
func (q *Queue) Push(r Record) error {
	size := r.PayloadSize()
	dynamic := q.schema.Dynamic(r.TypeIndex())

	needed := 1 + size
	if dynamic {
		needed += 4
	}
	if q.capacity > 0 && len(q.buf)+needed > q.capacity {
		return ErrCapacityExceeded
	}

	q.buf = append(q.buf, r.TypeIndex())
	if dynamic {
		q.buf = binary.LittleEndian.AppendUint32(q.buf, uint32(size))
	}
	q.buf = r.AppendPayload(q.buf)
	q.count++
	return nil
}

// ForEach replays every record in original write order, passing each
// record's type tag and raw payload to fn. Iteration stops at the
// first error.
func (q *Queue) ForEach(fn func(tag uint8, payload []byte) error) error {
	offset := 0
	for offset < len(q.buf) {
		tag := q.buf[offset]
		if int(tag) >= len(q.schema) {
			return fmt.Errorf("transit: invalid type tag %d at offset %d", tag, offset)
		}
		offset++

		size := q.schema[tag].Size
		if size == 0 {
			if offset+4 > len(q.buf) {
				return fmt.Errorf("transit: truncated length prefix at offset %d", offset)
			}
			size = int(binary.LittleEndian.Uint32(q.buf[offset:]))
			offset += 4
		}
		if offset+size > len(q.buf) {
			return fmt.Errorf("transit: truncated record at offset %d", offset)
		}
		if err := fn(tag, q.buf[offset:offset+size]); err != nil {
			return err
		}
		offset += size
	}
	return nil
}

// Bytes returns the raw memory image of the queue. The slice aliases
// the queue's buffer and must not be modified.
func (q *Queue) Bytes() []byte { return q.buf }

// LenBytes returns the number of encoded bytes in the queue.
func (q *Queue) LenBytes() int { return len(q.buf) }

// Count returns the number of records written.
func (q *Queue) Count() int { return q.count }

// Capacity returns the reserved capacity in bytes (zero = unbounded).
func (q *Queue) Capacity() int { return q.capacity }

// Schema returns the queue's record schema.
func (q *Queue) Schema() Schema { return q.schema }
