// Package wire serializes process, stream and block upload requests
// into the format consumed by the telemetry ingestion endpoint, and
// provides the matching decode helpers for consumers.
//
// Process and stream requests are plain JSON documents. A block
// request is binary: a length-prefixed JSON header followed by two
// length-prefixed compressed sections (dependencies, then events).
// All length prefixes are uint32 little-endian; integral JSON fields
// are transmitted as strings.
package wire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/legion-labs/telemetry-go/internal/procinfo"
	"github.com/legion-labs/telemetry-go/internal/stream"
	"github.com/legion-labs/telemetry-go/transit"
)

// timeFormat is the wall-clock format of the wire protocol.
const timeFormat = "2006-01-02T15:04:05Z"

type udtMemberJSON struct {
	Name        string `json:"name"`
	TypeName    string `json:"type_name"`
	Offset      string `json:"offset"`
	Size        string `json:"size"`
	IsReference bool   `json:"is_reference"`
}

type udtJSON struct {
	Name        string          `json:"name"`
	Size        string          `json:"size"`
	IsReference bool            `json:"is_reference"`
	Members     []udtMemberJSON `json:"members"`
}

func schemaToJSON(schema transit.Schema) []udtJSON {
	udts := make([]udtJSON, 0, len(schema))
	for _, udt := range schema {
		members := make([]udtMemberJSON, 0, len(udt.Members))
		for _, m := range udt.Members {
			members = append(members, udtMemberJSON{
				Name:        m.Name,
				TypeName:    m.TypeName,
				Offset:      strconv.Itoa(m.Offset),
				Size:        strconv.Itoa(m.Size),
				IsReference: m.IsReference,
			})
		}
		udts = append(udts, udtJSON{
			Name:        udt.Name,
			Size:        strconv.Itoa(udt.Size),
			IsReference: udt.IsReference,
			Members:     members,
		})
	}
	return udts
}

type processJSON struct {
	ProcessID       string `json:"process_id"`
	ParentProcessID string `json:"parent_process_id"`
	Exe             string `json:"exe"`
	Username        string `json:"username"`
	Realname        string `json:"realname"`
	Computer        string `json:"computer"`
	Distro          string `json:"distro"`
	CPUBrand        string `json:"cpu_brand"`
	TscFrequency    string `json:"tsc_frequency"`
	StartTime       string `json:"start_time"`
	StartTicks      string `json:"start_ticks"`
}

// FormatProcessRequest serializes the once-per-process upload.
func FormatProcessRequest(info procinfo.ProcessInfo) ([]byte, error) {
	return json.Marshal(processJSON{
		ProcessID:       info.ProcessID,
		ParentProcessID: info.ParentProcessID,
		Exe:             info.Exe,
		Username:        info.Username,
		Realname:        info.Realname,
		Computer:        info.Computer,
		Distro:          info.Distro,
		CPUBrand:        info.CPUBrand,
		TscFrequency:    strconv.FormatInt(info.TscFrequency, 10),
		StartTime:       info.StartTime.Wall.UTC().Format(timeFormat),
		StartTicks:      strconv.FormatInt(info.StartTime.Ticks, 10),
	})
}

// StreamInfo is the once-per-stream upload: identity, the type
// descriptors needed to decode the stream's dependency and event
// queues, and the stream's tags and properties.
type StreamInfo struct {
	StreamID     string
	ProcessID    string
	DepsSchema   transit.Schema
	ObjectSchema transit.Schema
	Tags         []string
	Properties   map[string]string
}

type streamJSON struct {
	StreamID             string            `json:"stream_id"`
	ProcessID            string            `json:"process_id"`
	DependenciesMetadata []udtJSON         `json:"dependencies_metadata"`
	ObjectsMetadata      []udtJSON         `json:"objects_metadata"`
	Tags                 []string          `json:"tags"`
	Properties           map[string]string `json:"properties"`
}

// FormatStreamRequest serializes a stream upload.
func FormatStreamRequest(si StreamInfo) ([]byte, error) {
	tags := si.Tags
	if tags == nil {
		tags = []string{}
	}
	props := si.Properties
	if props == nil {
		props = map[string]string{}
	}
	return json.Marshal(streamJSON{
		StreamID:             si.StreamID,
		ProcessID:            si.ProcessID,
		DependenciesMetadata: schemaToJSON(si.DepsSchema),
		ObjectsMetadata:      schemaToJSON(si.ObjectSchema),
		Tags:                 tags,
		Properties:           props,
	})
}

type blockHeaderJSON struct {
	BlockID    string `json:"block_id"`
	StreamID   string `json:"stream_id"`
	BeginTime  string `json:"begin_time"`
	BeginTicks string `json:"begin_ticks"`
	EndTime    string `json:"end_time"`
	EndTicks   string `json:"end_ticks"`
	NbObjects  string `json:"nb_objects"`
}

// FormatBlockRequest serializes a sealed block and its extracted
// dependency queue into the binary block upload. Layout, in order:
// length-prefixed JSON header, length-prefixed compressed dependency
// bytes, length-prefixed compressed event bytes.
func FormatBlockRequest(blk *stream.SealedBlock, deps *transit.Queue, codec Codec) ([]byte, error) {
	header, err := json.Marshal(blockHeaderJSON{
		BlockID:    blk.ID,
		StreamID:   blk.StreamID,
		BeginTime:  blk.Begin.Wall.UTC().Format(timeFormat),
		BeginTicks: strconv.FormatInt(blk.Begin.Ticks, 10),
		EndTime:    blk.End.Wall.UTC().Format(timeFormat),
		EndTicks:   strconv.FormatInt(blk.End.Ticks, 10),
		NbObjects:  strconv.Itoa(blk.Count()),
	})
	if err != nil {
		return nil, fmt.Errorf("wire: encoding block header: %w", err)
	}

	var depBytes []byte
	if deps != nil {
		depBytes = deps.Bytes()
	}
	compressedDeps, err := codec.Compress(depBytes)
	if err != nil {
		return nil, fmt.Errorf("wire: compressing dependencies: %w", err)
	}
	compressedEvents, err := codec.Compress(blk.Queue.Bytes())
	if err != nil {
		return nil, fmt.Errorf("wire: compressing events: %w", err)
	}

	out := make([]byte, 0, 12+len(header)+len(compressedDeps)+len(compressedEvents))
	out = appendChunk(out, header)
	out = appendChunk(out, compressedDeps)
	out = appendChunk(out, compressedEvents)
	return out, nil
}

func appendChunk(dst, chunk []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(chunk)))
	return append(dst, chunk...)
}

// BlockHeader is the decoded metadata of a block upload.
type BlockHeader struct {
	BlockID    string
	StreamID   string
	BeginTime  time.Time
	BeginTicks int64
	EndTime    time.Time
	EndTicks   int64
	NbObjects  int
}
