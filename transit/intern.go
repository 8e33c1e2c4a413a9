package transit

import (
	"sync"
	"sync/atomic"
)

// idCounter allocates process-unique identities. Interned strings and
// event descriptors draw from the same counter so that their ids never
// collide inside a block's dependency set (the consumer resolves both
// through a single id-keyed table).
var idCounter atomic.Uint64

// NextID returns a fresh process-unique identity.
func NextID() uint64 {
	return idCounter.Add(1)
}

// StaticString is an interned string literal: a stable process-unique
// id plus the literal's bytes. Instances live for the remainder of the
// process and are never mutated.
type StaticString struct {
	id    uint64
	value string
}

// ID returns the string's process-unique identity.
func (s *StaticString) ID() uint64 { return s.id }

// Value returns the literal.
func (s *StaticString) Value() string { return s.value }

var internTable sync.Map // string -> *StaticString

// Intern returns the canonical StaticString for the given literal,
// creating it on first use. Repeated calls with the same value return
// the same instance, so the id is stable for the process lifetime.
// Lookups of already-interned strings take no lock.
func Intern(value string) *StaticString {
	if existing, ok := internTable.Load(value); ok {
		return existing.(*StaticString)
	}
	entry := &StaticString{id: NextID(), value: value}
	actual, _ := internTable.LoadOrStore(value, entry)
	return actual.(*StaticString)
}
