package telemetry

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/legion-labs/telemetry-go/transit"
)

// Level is a log event's severity. Lower values are more severe.
type Level uint32

const (
	LevelFatal Level = 1 + iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

// Descriptors hold the static part of an instrumentation point: the
// interned strings and call-site metadata shared by every event the
// point emits. Events reference descriptors by id; the descriptor
// itself ships once per block through the dependency section.
//
// Descriptors are registered at creation and live for the remainder of
// the process. Create them once (typically in a package-level var) and
// reuse them on the hot path.

// LogDesc describes a log instrumentation point.
type LogDesc struct {
	id     uint64
	level  Level
	fmtStr *transit.StaticString
	target *transit.StaticString
	file   *transit.StaticString
	line   uint32
}

var logDescs sync.Map // uint64 -> *LogDesc

// NewLogDesc registers a log descriptor. fmtStr is the static message
// (or format template), target the subsystem name.
func NewLogDesc(level Level, fmtStr, target, file string, line uint32) *LogDesc {
	d := &LogDesc{
		id:     transit.NextID(),
		level:  level,
		fmtStr: transit.Intern(fmtStr),
		target: transit.Intern(target),
		file:   transit.Intern(file),
		line:   line,
	}
	logDescs.Store(d.id, d)
	return d
}

// ID returns the descriptor's process-unique identity.
func (d *LogDesc) ID() uint64 { return d.id }

// Level returns the severity of events emitted through this descriptor.
func (d *LogDesc) Level() Level { return d.level }

// MetricDesc describes one named metric. Unit is a free-form label
// ("ticks", "bytes", "count").
type MetricDesc struct {
	id     uint64
	name   *transit.StaticString
	unit   *transit.StaticString
	target *transit.StaticString
	file   *transit.StaticString
	line   uint32
}

var metricDescs sync.Map // uint64 -> *MetricDesc

// NewMetricDesc registers a metric descriptor.
func NewMetricDesc(name, unit, target, file string, line uint32) *MetricDesc {
	d := &MetricDesc{
		id:     transit.NextID(),
		name:   transit.Intern(name),
		unit:   transit.Intern(unit),
		target: transit.Intern(target),
		file:   transit.Intern(file),
		line:   line,
	}
	metricDescs.Store(d.id, d)
	return d
}

// ID returns the descriptor's process-unique identity.
func (d *MetricDesc) ID() uint64 { return d.id }

// SpanDesc describes a named scope measured by begin/end span pairs.
type SpanDesc struct {
	id     uint64
	name   *transit.StaticString
	target *transit.StaticString
	file   *transit.StaticString
	line   uint32
}

var spanDescs sync.Map // uint64 -> *SpanDesc

// NewSpanDesc registers a span descriptor.
func NewSpanDesc(name, target, file string, line uint32) *SpanDesc {
	d := &SpanDesc{
		id:     transit.NextID(),
		name:   transit.Intern(name),
		target: transit.Intern(target),
		file:   transit.Intern(file),
		line:   line,
	}
	spanDescs.Store(d.id, d)
	return d
}

// ID returns the descriptor's process-unique identity.
func (d *SpanDesc) ID() uint64 { return d.id }

// Name returns the span's interned name.
func (d *SpanDesc) Name() string { return d.name.Value() }

// Event records. Each implements transit.Record; the payload layouts
// below must stay in lockstep with the schema definitions at the end
// of this file, since consumers parse blocks by those schemas alone.

// LogStaticEvent is a log event whose full message is the descriptor's
// static string. Nothing but the descriptor reference and the
// timestamp crosses the wire.
type LogStaticEvent struct {
	Desc *LogDesc
	Time int64
}

func (e LogStaticEvent) TypeIndex() uint8 { return 0 }
func (e LogStaticEvent) PayloadSize() int { return 16 }
func (e LogStaticEvent) AppendPayload(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, e.Desc.id)
	return binary.LittleEndian.AppendUint64(dst, uint64(e.Time))
}

// LogStringEvent is a log event carrying a runtime-built message. The
// descriptor still supplies severity and call site; the message bytes
// ride in the payload.
type LogStringEvent struct {
	Desc *LogDesc
	Time int64
	Msg  string
}

func (e LogStringEvent) TypeIndex() uint8 { return 1 }
func (e LogStringEvent) PayloadSize() int { return 16 + len(e.Msg) }
func (e LogStringEvent) AppendPayload(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, e.Desc.id)
	dst = binary.LittleEndian.AppendUint64(dst, uint64(e.Time))
	return append(dst, e.Msg...)
}

// IntegerMetricEvent records one integer measurement.
type IntegerMetricEvent struct {
	Desc  *MetricDesc
	Value uint64
	Time  int64
}

func (e IntegerMetricEvent) TypeIndex() uint8 { return 0 }
func (e IntegerMetricEvent) PayloadSize() int { return 24 }
func (e IntegerMetricEvent) AppendPayload(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, e.Desc.id)
	dst = binary.LittleEndian.AppendUint64(dst, e.Value)
	return binary.LittleEndian.AppendUint64(dst, uint64(e.Time))
}

// FloatMetricEvent records one floating-point measurement.
type FloatMetricEvent struct {
	Desc  *MetricDesc
	Value float64
	Time  int64
}

func (e FloatMetricEvent) TypeIndex() uint8 { return 1 }
func (e FloatMetricEvent) PayloadSize() int { return 24 }
func (e FloatMetricEvent) AppendPayload(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, e.Desc.id)
	dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(e.Value))
	return binary.LittleEndian.AppendUint64(dst, uint64(e.Time))
}

// BeginSpanEvent marks entry into a named scope.
type BeginSpanEvent struct {
	Desc *SpanDesc
	Time int64
}

func (e BeginSpanEvent) TypeIndex() uint8 { return 0 }
func (e BeginSpanEvent) PayloadSize() int { return 16 }
func (e BeginSpanEvent) AppendPayload(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, e.Desc.id)
	return binary.LittleEndian.AppendUint64(dst, uint64(e.Time))
}

// EndSpanEvent marks exit from a named scope.
type EndSpanEvent struct {
	Desc *SpanDesc
	Time int64
}

func (e EndSpanEvent) TypeIndex() uint8 { return 1 }
func (e EndSpanEvent) PayloadSize() int { return 16 }
func (e EndSpanEvent) AppendPayload(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, e.Desc.id)
	return binary.LittleEndian.AppendUint64(dst, uint64(e.Time))
}

// Dependency records, shipped in a block's dependency section so the
// consumer can resolve every reference id in the event section without
// any other context.

type staticStringDep struct {
	s *transit.StaticString
}

func (d staticStringDep) TypeIndex() uint8 { return 0 }
func (d staticStringDep) PayloadSize() int { return 8 + len(d.s.Value()) }
func (d staticStringDep) AppendPayload(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, d.s.ID())
	return append(dst, d.s.Value()...)
}

type logDescDep struct {
	d *LogDesc
}

func (d logDescDep) TypeIndex() uint8 { return 1 }
func (d logDescDep) PayloadSize() int { return 40 }
func (d logDescDep) AppendPayload(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, d.d.id)
	dst = binary.LittleEndian.AppendUint64(dst, d.d.fmtStr.ID())
	dst = binary.LittleEndian.AppendUint64(dst, d.d.target.ID())
	dst = binary.LittleEndian.AppendUint64(dst, d.d.file.ID())
	dst = binary.LittleEndian.AppendUint32(dst, d.d.line)
	return binary.LittleEndian.AppendUint32(dst, uint32(d.d.level))
}

type metricDescDep struct {
	d *MetricDesc
}

func (d metricDescDep) TypeIndex() uint8 { return 1 }
func (d metricDescDep) PayloadSize() int { return 44 }
func (d metricDescDep) AppendPayload(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, d.d.id)
	dst = binary.LittleEndian.AppendUint64(dst, d.d.name.ID())
	dst = binary.LittleEndian.AppendUint64(dst, d.d.unit.ID())
	dst = binary.LittleEndian.AppendUint64(dst, d.d.target.ID())
	dst = binary.LittleEndian.AppendUint64(dst, d.d.file.ID())
	return binary.LittleEndian.AppendUint32(dst, d.d.line)
}

type spanDescDep struct {
	d *SpanDesc
}

func (d spanDescDep) TypeIndex() uint8 { return 1 }
func (d spanDescDep) PayloadSize() int { return 36 }
func (d spanDescDep) AppendPayload(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, d.d.id)
	dst = binary.LittleEndian.AppendUint64(dst, d.d.name.ID())
	dst = binary.LittleEndian.AppendUint64(dst, d.d.target.ID())
	dst = binary.LittleEndian.AppendUint64(dst, d.d.file.ID())
	return binary.LittleEndian.AppendUint32(dst, d.d.line)
}

// Wire schemas, shipped verbatim in the stream registration so the
// consumer can parse event and dependency sections. The type tag of a
// record is its index in the schema slice.

var stringDepUDT = transit.UserDefinedType{
	Name: "StaticStringDependency",
	Size: 0, // dynamic: id followed by the literal's utf-8 bytes
	Members: []transit.Member{
		{Name: "id", TypeName: "u64", Offset: 0, Size: 8},
	},
}

// LogObjectsSchema describes the event section of log stream blocks.
var LogObjectsSchema = transit.Schema{
	{
		Name: "LogStaticEvent",
		Size: 16,
		Members: []transit.Member{
			{Name: "desc", TypeName: "LogDescDependency", Offset: 0, Size: 8, IsReference: true},
			{Name: "time", TypeName: "i64", Offset: 8, Size: 8},
		},
	},
	{
		Name: "LogStringEvent",
		Size: 0, // dynamic: fixed head then the message's utf-8 bytes
		Members: []transit.Member{
			{Name: "desc", TypeName: "LogDescDependency", Offset: 0, Size: 8, IsReference: true},
			{Name: "time", TypeName: "i64", Offset: 8, Size: 8},
			{Name: "msg", TypeName: "utf8", Offset: 16, Size: 0},
		},
	},
}

// LogDepsSchema describes the dependency section of log stream blocks.
var LogDepsSchema = transit.Schema{
	stringDepUDT,
	{
		Name: "LogDescDependency",
		Size: 40,
		Members: []transit.Member{
			{Name: "id", TypeName: "u64", Offset: 0, Size: 8},
			{Name: "fmt_str", TypeName: "StaticStringDependency", Offset: 8, Size: 8, IsReference: true},
			{Name: "target", TypeName: "StaticStringDependency", Offset: 16, Size: 8, IsReference: true},
			{Name: "file", TypeName: "StaticStringDependency", Offset: 24, Size: 8, IsReference: true},
			{Name: "line", TypeName: "u32", Offset: 32, Size: 4},
			{Name: "level", TypeName: "u32", Offset: 36, Size: 4},
		},
	},
}

// MetricsObjectsSchema describes the event section of metric stream
// blocks.
var MetricsObjectsSchema = transit.Schema{
	{
		Name: "IntegerMetricEvent",
		Size: 24,
		Members: []transit.Member{
			{Name: "desc", TypeName: "MetricDescDependency", Offset: 0, Size: 8, IsReference: true},
			{Name: "value", TypeName: "u64", Offset: 8, Size: 8},
			{Name: "time", TypeName: "i64", Offset: 16, Size: 8},
		},
	},
	{
		Name: "FloatMetricEvent",
		Size: 24,
		Members: []transit.Member{
			{Name: "desc", TypeName: "MetricDescDependency", Offset: 0, Size: 8, IsReference: true},
			{Name: "value", TypeName: "f64", Offset: 8, Size: 8},
			{Name: "time", TypeName: "i64", Offset: 16, Size: 8},
		},
	},
}

// MetricsDepsSchema describes the dependency section of metric stream
// blocks.
var MetricsDepsSchema = transit.Schema{
	stringDepUDT,
	{
		Name: "MetricDescDependency",
		Size: 44,
		Members: []transit.Member{
			{Name: "id", TypeName: "u64", Offset: 0, Size: 8},
			{Name: "name", TypeName: "StaticStringDependency", Offset: 8, Size: 8, IsReference: true},
			{Name: "unit", TypeName: "StaticStringDependency", Offset: 16, Size: 8, IsReference: true},
			{Name: "target", TypeName: "StaticStringDependency", Offset: 24, Size: 8, IsReference: true},
			{Name: "file", TypeName: "StaticStringDependency", Offset: 32, Size: 8, IsReference: true},
			{Name: "line", TypeName: "u32", Offset: 40, Size: 4},
		},
	},
}

// SpanObjectsSchema describes the event section of span stream blocks.
var SpanObjectsSchema = transit.Schema{
	{
		Name: "BeginSpanEvent",
		Size: 16,
		Members: []transit.Member{
			{Name: "span_desc", TypeName: "SpanDescDependency", Offset: 0, Size: 8, IsReference: true},
			{Name: "time", TypeName: "i64", Offset: 8, Size: 8},
		},
	},
	{
		Name: "EndSpanEvent",
		Size: 16,
		Members: []transit.Member{
			{Name: "span_desc", TypeName: "SpanDescDependency", Offset: 0, Size: 8, IsReference: true},
			{Name: "time", TypeName: "i64", Offset: 8, Size: 8},
		},
	},
}

// SpanDepsSchema describes the dependency section of span stream
// blocks.
var SpanDepsSchema = transit.Schema{
	stringDepUDT,
	{
		Name: "SpanDescDependency",
		Size: 36,
		Members: []transit.Member{
			{Name: "id", TypeName: "u64", Offset: 0, Size: 8},
			{Name: "name", TypeName: "StaticStringDependency", Offset: 8, Size: 8, IsReference: true},
			{Name: "target", TypeName: "StaticStringDependency", Offset: 16, Size: 8, IsReference: true},
			{Name: "file", TypeName: "StaticStringDependency", Offset: 24, Size: 8, IsReference: true},
			{Name: "line", TypeName: "u32", Offset: 32, Size: 4},
		},
	},
}
