// Package transit implements the binary transport format for telemetry
// events: a heterogeneous, append-only byte queue that stores
// differently-typed records inline (preserving chronological
// interleaving), the user-defined-type descriptors that let a consumer
// decode those records, and the process-wide interned string table.
//
// Records are framed as [type tag (1 byte)][payload]. Variants with a
// fixed payload size declare it in their type descriptor and carry no
// per-record length; dynamically-sized variants declare size 0 and are
// framed as [type tag][payload length (uint32 LE)][payload]. All fixed
// fields are little-endian; references to out-of-band dependencies
// (interned strings, event descriptors) are 8-byte ids.
package transit
