package wire

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"time"

	"github.com/valyala/fastjson"

	"github.com/legion-labs/telemetry-go/internal/procinfo"
	"github.com/legion-labs/telemetry-go/transit"
)

// Decode helpers for the consuming side of the wire format. The
// ingestion endpoint (and this module's own tests) parse uploads with
// these instead of mirroring the encoder structs.

var parsers fastjson.ParserPool

// DecodeProcessRequest parses a process upload body.
func DecodeProcessRequest(body []byte) (procinfo.ProcessInfo, error) {
	p := parsers.Get()
	defer parsers.Put(p)

	v, err := p.ParseBytes(body)
	if err != nil {
		return procinfo.ProcessInfo{}, fmt.Errorf("wire: parsing process request: %w", err)
	}

	freq, err := intField(v, "tsc_frequency")
	if err != nil {
		return procinfo.ProcessInfo{}, err
	}
	startTicks, err := intField(v, "start_ticks")
	if err != nil {
		return procinfo.ProcessInfo{}, err
	}
	startTime, err := time.Parse(timeFormat, string(v.GetStringBytes("start_time")))
	if err != nil {
		return procinfo.ProcessInfo{}, fmt.Errorf("wire: parsing start_time: %w", err)
	}

	return procinfo.ProcessInfo{
		ProcessID:       string(v.GetStringBytes("process_id")),
		ParentProcessID: string(v.GetStringBytes("parent_process_id")),
		Exe:             string(v.GetStringBytes("exe")),
		Username:        string(v.GetStringBytes("username")),
		Realname:        string(v.GetStringBytes("realname")),
		Computer:        string(v.GetStringBytes("computer")),
		Distro:          string(v.GetStringBytes("distro")),
		CPUBrand:        string(v.GetStringBytes("cpu_brand")),
		TscFrequency:    freq,
		StartTime:       transit.DualTime{Wall: startTime, Ticks: startTicks},
	}, nil
}

// DecodeStreamRequest parses a stream upload body.
func DecodeStreamRequest(body []byte) (StreamInfo, error) {
	p := parsers.Get()
	defer parsers.Put(p)

	v, err := p.ParseBytes(body)
	if err != nil {
		return StreamInfo{}, fmt.Errorf("wire: parsing stream request: %w", err)
	}

	deps, err := decodeSchema(v.GetArray("dependencies_metadata"))
	if err != nil {
		return StreamInfo{}, fmt.Errorf("wire: dependencies_metadata: %w", err)
	}
	objects, err := decodeSchema(v.GetArray("objects_metadata"))
	if err != nil {
		return StreamInfo{}, fmt.Errorf("wire: objects_metadata: %w", err)
	}

	var tags []string
	for _, tag := range v.GetArray("tags") {
		tags = append(tags, string(tag.GetStringBytes()))
	}

	props := map[string]string{}
	if obj := v.GetObject("properties"); obj != nil {
		obj.Visit(func(key []byte, value *fastjson.Value) {
			props[string(key)] = string(value.GetStringBytes())
		})
	}

	return StreamInfo{
		StreamID:     string(v.GetStringBytes("stream_id")),
		ProcessID:    string(v.GetStringBytes("process_id")),
		DepsSchema:   deps,
		ObjectSchema: objects,
		Tags:         tags,
		Properties:   props,
	}, nil
}

func decodeSchema(udts []*fastjson.Value) (transit.Schema, error) {
	var schema transit.Schema
	for _, udt := range udts {
		size, err := intField(udt, "size")
		if err != nil {
			return nil, err
		}
		entry := transit.UserDefinedType{
			Name:        string(udt.GetStringBytes("name")),
			Size:        int(size),
			IsReference: udt.GetBool("is_reference"),
		}
		for _, m := range udt.GetArray("members") {
			offset, err := intField(m, "offset")
			if err != nil {
				return nil, err
			}
			msize, err := intField(m, "size")
			if err != nil {
				return nil, err
			}
			entry.Members = append(entry.Members, transit.Member{
				Name:        string(m.GetStringBytes("name")),
				TypeName:    string(m.GetStringBytes("type_name")),
				Offset:      int(offset),
				Size:        int(msize),
				IsReference: m.GetBool("is_reference"),
			})
		}
		schema = append(schema, entry)
	}
	return schema, nil
}

// DecodeBlockRequest parses a block upload body and decompresses both
// payload sections with the given codec. An incomplete body or
// trailing garbage is an error.
func DecodeBlockRequest(body []byte, codec Codec) (BlockHeader, []byte, []byte, error) {
	offset := 0
	headerBytes, err := readChunk(body, &offset)
	if err != nil {
		return BlockHeader{}, nil, nil, fmt.Errorf("wire: block header chunk: %w", err)
	}
	depChunk, err := readChunk(body, &offset)
	if err != nil {
		return BlockHeader{}, nil, nil, fmt.Errorf("wire: dependency chunk: %w", err)
	}
	eventChunk, err := readChunk(body, &offset)
	if err != nil {
		return BlockHeader{}, nil, nil, fmt.Errorf("wire: event chunk: %w", err)
	}
	if offset != len(body) {
		return BlockHeader{}, nil, nil, fmt.Errorf("wire: %d trailing bytes after block request", len(body)-offset)
	}

	header, err := decodeBlockHeader(headerBytes)
	if err != nil {
		return BlockHeader{}, nil, nil, err
	}

	deps, err := codec.Decompress(depChunk)
	if err != nil {
		return BlockHeader{}, nil, nil, fmt.Errorf("wire: dependencies: %w", err)
	}
	events, err := codec.Decompress(eventChunk)
	if err != nil {
		return BlockHeader{}, nil, nil, fmt.Errorf("wire: events: %w", err)
	}
	return header, deps, events, nil
}

func decodeBlockHeader(headerBytes []byte) (BlockHeader, error) {
	p := parsers.Get()
	defer parsers.Put(p)

	v, err := p.ParseBytes(headerBytes)
	if err != nil {
		return BlockHeader{}, fmt.Errorf("wire: parsing block header: %w", err)
	}

	beginTicks, err := intField(v, "begin_ticks")
	if err != nil {
		return BlockHeader{}, err
	}
	endTicks, err := intField(v, "end_ticks")
	if err != nil {
		return BlockHeader{}, err
	}
	nbObjects, err := intField(v, "nb_objects")
	if err != nil {
		return BlockHeader{}, err
	}
	beginTime, err := time.Parse(timeFormat, string(v.GetStringBytes("begin_time")))
	if err != nil {
		return BlockHeader{}, fmt.Errorf("wire: parsing begin_time: %w", err)
	}
	endTime, err := time.Parse(timeFormat, string(v.GetStringBytes("end_time")))
	if err != nil {
		return BlockHeader{}, fmt.Errorf("wire: parsing end_time: %w", err)
	}

	return BlockHeader{
		BlockID:    string(v.GetStringBytes("block_id")),
		StreamID:   string(v.GetStringBytes("stream_id")),
		BeginTime:  beginTime,
		BeginTicks: beginTicks,
		EndTime:    endTime,
		EndTicks:   endTicks,
		NbObjects:  int(nbObjects),
	}, nil
}

// intField reads a stringified integer field, the wire protocol's
// representation for all integral values.
func intField(v *fastjson.Value, name string) (int64, error) {
	raw := v.GetStringBytes(name)
	if raw == nil {
		return 0, fmt.Errorf("wire: missing field %q", name)
	}
	parsed, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("wire: parsing field %q: %w", name, err)
	}
	return parsed, nil
}

func readChunk(body []byte, offset *int) ([]byte, error) {
	if *offset+4 > len(body) {
		return nil, fmt.Errorf("truncated length prefix at offset %d", *offset)
	}
	size := int(binary.LittleEndian.Uint32(body[*offset:]))
	*offset += 4
	if *offset+size > len(body) {
		return nil, fmt.Errorf("chunk of %d bytes exceeds body at offset %d", size, *offset)
	}
	chunk := body[*offset : *offset+size]
	*offset += size
	return chunk, nil
}
