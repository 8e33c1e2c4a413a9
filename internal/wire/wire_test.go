package wire

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"testing"
	"time"

	"github.com/legion-labs/telemetry-go/internal/procinfo"
	"github.com/legion-labs/telemetry-go/internal/stream"
	"github.com/legion-labs/telemetry-go/transit"
)

func TestCodec_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	compressible := bytes.Repeat([]byte("telemetry "), 1000)
	random := make([]byte, 4096)
	rng.Read(random)

	inputs := map[string][]byte{
		"empty":        nil,
		"one byte":     {0x42},
		"compressible": compressible,
		"random":       random,
	}

	for _, name := range []string{"lz4", "zstd"} {
		codec, err := ForName(name)
		if err != nil {
			t.Fatalf("ForName(%q): %v", name, err)
		}
		for label, input := range inputs {
			compressed, err := codec.Compress(input)
			if err != nil {
				t.Fatalf("%s compress %s: %v", name, label, err)
			}
			if len(input) == 0 && len(compressed) != 0 {
				t.Errorf("%s: empty input must compress to zero bytes", name)
			}
			out, err := codec.Decompress(compressed)
			if err != nil {
				t.Fatalf("%s decompress %s: %v", name, label, err)
			}
			if !bytes.Equal(out, input) {
				t.Errorf("%s: %s did not round-trip", name, label)
			}
		}
	}
}

func TestForName_Unknown(t *testing.T) {
	if _, err := ForName("snappy"); err == nil {
		t.Fatal("expected error for unknown codec")
	}
}

func TestProcessRequest_RoundTrip(t *testing.T) {
	start, _ := time.Parse(timeFormat, "2026-03-01T10:30:00Z")
	info := procinfo.ProcessInfo{
		ProcessID:       "proc-1",
		ParentProcessID: "",
		Exe:             "/usr/bin/editor",
		Username:        "jdoe",
		Realname:        "J. Doe",
		Computer:        "workstation",
		Distro:          "linux Ubuntu 22.04",
		CPUBrand:        "TestCPU 3.5GHz",
		TscFrequency:    transit.TicksPerSecond,
		StartTime:       transit.DualTime{Wall: start, Ticks: 12345},
	}

	body, err := FormatProcessRequest(info)
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	decoded, err := DecodeProcessRequest(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if decoded.ProcessID != info.ProcessID || decoded.Exe != info.Exe ||
		decoded.CPUBrand != info.CPUBrand || decoded.TscFrequency != info.TscFrequency {
		t.Errorf("decoded = %+v", decoded)
	}
	if decoded.StartTime.Ticks != 12345 {
		t.Errorf("start_ticks = %d, want 12345", decoded.StartTime.Ticks)
	}
	if !decoded.StartTime.Wall.Equal(start) {
		t.Errorf("start_time = %v, want %v", decoded.StartTime.Wall, start)
	}
}

func TestStreamRequest_RoundTrip(t *testing.T) {
	si := StreamInfo{
		StreamID:  "stream-1",
		ProcessID: "proc-1",
		DepsSchema: transit.Schema{
			{Name: "StaticStringDependency", Size: 0},
		},
		ObjectSchema: transit.Schema{
			{Name: "BeginSpanEvent", Size: 16, Members: []transit.Member{
				{Name: "span_desc", TypeName: "SpanDescDependency", Offset: 0, Size: 8, IsReference: true},
				{Name: "time", TypeName: "i64", Offset: 8, Size: 8},
			}},
		},
		Tags:       []string{"cpu"},
		Properties: map[string]string{"thread-name": "render", "compression": "lz4"},
	}

	body, err := FormatStreamRequest(si)
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	decoded, err := DecodeStreamRequest(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if decoded.StreamID != "stream-1" || decoded.ProcessID != "proc-1" {
		t.Errorf("identity = %q / %q", decoded.StreamID, decoded.ProcessID)
	}
	if len(decoded.Tags) != 1 || decoded.Tags[0] != "cpu" {
		t.Errorf("tags = %v", decoded.Tags)
	}
	if decoded.Properties["thread-name"] != "render" {
		t.Errorf("properties = %v", decoded.Properties)
	}
	if len(decoded.ObjectSchema) != 1 {
		t.Fatalf("objects_metadata has %d entries", len(decoded.ObjectSchema))
	}
	udt := decoded.ObjectSchema[0]
	if udt.Name != "BeginSpanEvent" || udt.Size != 16 || len(udt.Members) != 2 {
		t.Errorf("udt = %+v", udt)
	}
	if !udt.Members[0].IsReference || udt.Members[0].Offset != 0 || udt.Members[1].Offset != 8 {
		t.Errorf("members = %+v", udt.Members)
	}
}

var blockSchema = transit.Schema{
	{Name: "Sample", Size: 8, Members: []transit.Member{
		{Name: "value", TypeName: "u64", Offset: 0, Size: 8},
	}},
}

type sampleRec uint64

func (r sampleRec) TypeIndex() uint8 { return 0 }
func (r sampleRec) PayloadSize() int { return 8 }
func (r sampleRec) AppendPayload(dst []byte) []byte {
	return binary.LittleEndian.AppendUint64(dst, uint64(r))
}

func TestBlockRequest_RoundTrip(t *testing.T) {
	blk := stream.NewBlock("stream-1", 1024, blockSchema)
	for i := 0; i < 5; i++ {
		if err := blk.Append(sampleRec(i)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	sealed := blk.Seal()

	codec, _ := ForName("lz4")
	body, err := FormatBlockRequest(sealed, nil, codec)
	if err != nil {
		t.Fatalf("format: %v", err)
	}

	header, deps, events, err := DecodeBlockRequest(body, codec)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if header.BlockID != sealed.ID || header.StreamID != "stream-1" {
		t.Errorf("header identity = %+v", header)
	}
	if header.NbObjects != 5 {
		t.Errorf("nb_objects = %d, want 5", header.NbObjects)
	}
	if header.EndTicks < header.BeginTicks {
		t.Errorf("ticks range inverted: %d..%d", header.BeginTicks, header.EndTicks)
	}
	if len(deps) != 0 {
		t.Errorf("expected empty dependency section, got %d bytes", len(deps))
	}
	if !bytes.Equal(events, sealed.Queue.Bytes()) {
		t.Error("event payload did not survive compression round-trip")
	}
}

func TestBlockRequest_TrailingGarbage(t *testing.T) {
	blk := stream.NewBlock("stream-1", 1024, blockSchema)
	sealed := blk.Seal()

	codec, _ := ForName("lz4")
	body, err := FormatBlockRequest(sealed, nil, codec)
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	if _, _, _, err := DecodeBlockRequest(append(body, 0xff), codec); err == nil {
		t.Fatal("expected error for trailing bytes")
	}
}
