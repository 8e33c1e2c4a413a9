package telemetry

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestLogStringEvent_Payload(t *testing.T) {
	desc := NewLogDesc(LevelError, "request failed: %s", "http", "client.go", 88)
	ev := LogStringEvent{Desc: desc, Time: 1234, Msg: "timeout"}

	if ev.PayloadSize() != 16+len("timeout") {
		t.Fatalf("payload size = %d", ev.PayloadSize())
	}
	payload := ev.AppendPayload(nil)
	if got := binary.LittleEndian.Uint64(payload[0:8]); got != desc.ID() {
		t.Errorf("desc id = %d, want %d", got, desc.ID())
	}
	if got := int64(binary.LittleEndian.Uint64(payload[8:16])); got != 1234 {
		t.Errorf("time = %d", got)
	}
	if string(payload[16:]) != "timeout" {
		t.Errorf("msg = %q", payload[16:])
	}
}

func TestFloatMetricEvent_Payload(t *testing.T) {
	desc := NewMetricDesc("frame-ms", "ms", "renderer", "frame.go", 3)
	ev := FloatMetricEvent{Desc: desc, Value: 16.6, Time: 99}

	payload := ev.AppendPayload(nil)
	if len(payload) != 24 {
		t.Fatalf("payload = %d bytes", len(payload))
	}
	if got := math.Float64frombits(binary.LittleEndian.Uint64(payload[8:16])); got != 16.6 {
		t.Errorf("value = %v", got)
	}
	if got := int64(binary.LittleEndian.Uint64(payload[16:24])); got != 99 {
		t.Errorf("time = %d", got)
	}
}

func TestDescriptorIDsAreUnique(t *testing.T) {
	a := NewSpanDesc("ids-a", "t", "f.go", 1)
	b := NewSpanDesc("ids-b", "t", "f.go", 2)
	c := NewMetricDesc("ids-c", "count", "t", "f.go", 3)
	if a.ID() == b.ID() || b.ID() == c.ID() || a.ID() == c.ID() {
		t.Errorf("descriptor ids collide: %d %d %d", a.ID(), b.ID(), c.ID())
	}
}

func TestSchemasMatchRecordSizes(t *testing.T) {
	cases := []struct {
		name string
		udt  string
		size int
		rec  interface{ PayloadSize() int }
	}{
		{"log static", LogObjectsSchema[0].Name, LogObjectsSchema[0].Size, LogStaticEvent{Desc: &LogDesc{}}},
		{"int metric", MetricsObjectsSchema[0].Name, MetricsObjectsSchema[0].Size, IntegerMetricEvent{Desc: &MetricDesc{}}},
		{"float metric", MetricsObjectsSchema[1].Name, MetricsObjectsSchema[1].Size, FloatMetricEvent{Desc: &MetricDesc{}}},
		{"begin span", SpanObjectsSchema[0].Name, SpanObjectsSchema[0].Size, BeginSpanEvent{Desc: &SpanDesc{}}},
		{"end span", SpanObjectsSchema[1].Name, SpanObjectsSchema[1].Size, EndSpanEvent{Desc: &SpanDesc{}}},
	}
	for _, tc := range cases {
		if tc.size != tc.rec.PayloadSize() {
			t.Errorf("%s: schema %s declares %d bytes, record emits %d",
				tc.name, tc.udt, tc.size, tc.rec.PayloadSize())
		}
	}
}

func TestLevelOrdering(t *testing.T) {
	if !(LevelFatal < LevelError && LevelError < LevelWarn && LevelWarn < LevelInfo &&
		LevelInfo < LevelDebug && LevelDebug < LevelTrace) {
		t.Error("severity must increase from fatal to trace")
	}
}
