package transit

// Member describes one field of a user-defined record type: its name,
// wire type, byte offset and size inside the record payload, and
// whether the field is an 8-byte reference into the dependency set.
type Member struct {
	Name        string
	TypeName    string
	Offset      int
	Size        int
	IsReference bool
}

// UserDefinedType describes the wire shape of one record variant.
// Size is the fixed payload size in bytes; a Size of zero marks a
// dynamically-sized variant whose records carry an explicit length.
type UserDefinedType struct {
	Name        string
	Size        int
	IsReference bool
	Members     []Member
}

// Schema is the ordered set of record variants a queue may contain.
// A record's type tag is its index into the schema; the indices are
// part of the wire contract between producer and consumer.
type Schema []UserDefinedType

// Dynamic reports whether the variant at the given type tag carries a
// per-record length prefix.
func (s Schema) Dynamic(tag uint8) bool {
	return s[tag].Size == 0
}
