package sink

import (
	"encoding/binary"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/legion-labs/telemetry-go/internal/procinfo"
	"github.com/legion-labs/telemetry-go/internal/stream"
	"github.com/legion-labs/telemetry-go/internal/wire"
	"github.com/legion-labs/telemetry-go/transit"
)

var testSchema = transit.Schema{
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

func noDeps(*stream.SealedBlock) (*transit.Queue, error) { return nil, nil }

func TestHTTPSink_ShipsInOrder(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	var blockBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.Path)
		if r.URL.Path == "/block" {
			blockBody = body
		}
		mu.Unlock()
	}))
	defer srv.Close()

	codec, _ := wire.ForName("lz4")
	s := NewHTTPSink(srv.URL, codec, 16)

	s.OnStartup(procinfo.ProcessInfo{ProcessID: "p1", TscFrequency: transit.TicksPerSecond, StartTime: transit.DualNow()})
	s.OnInitStream(wire.StreamInfo{StreamID: "s1", ProcessID: "p1", ObjectSchema: testSchema})

	blk := stream.NewBlock("s1", 256, testSchema)
	if err := blk.Append(sampleRec(7)); err != nil {
		t.Fatal(err)
	}
	s.OnBlock(blk.Seal(), noDeps)
	s.Close()

	mu.Lock()
	defer mu.Unlock()
	want := []string{"PUT /process", "PUT /stream", "PUT /block"}
	if len(paths) != len(want) {
		t.Fatalf("requests = %v", paths)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("request %d = %q, want %q", i, paths[i], want[i])
		}
	}

	header, _, events, err := wire.DecodeBlockRequest(blockBody, codec)
	if err != nil {
		t.Fatalf("decoding shipped block: %v", err)
	}
	if header.NbObjects != 1 {
		t.Errorf("nb_objects = %d", header.NbObjects)
	}
	if len(events) != 9 { // tag byte + u64 payload
		t.Errorf("event bytes = %d", len(events))
	}
}

func TestHTTPSink_DropsWhenSaturated(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()

	codec, _ := wire.ForName("lz4")
	s := NewHTTPSink(srv.URL, codec, 1)

	// First fills the worker, second fills the queue, the rest drop.
	for i := 0; i < 5; i++ {
		blk := stream.NewBlock("s1", 256, testSchema)
		s.OnBlock(blk.Seal(), noDeps)
	}

	deadline := time.After(2 * time.Second)
	for s.Dropped() == 0 {
		select {
		case <-deadline:
			t.Fatal("no payload was dropped under saturation")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	if !s.IsBusy() {
		t.Error("sink with in-flight work should report busy")
	}
	close(release)
	s.Close()
}

func TestHTTPSink_PayloadsAfterCloseAreDropped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	codec, _ := wire.ForName("lz4")
	s := NewHTTPSink(srv.URL, codec, 4)
	s.Close()

	// A producer that grabbed the sink just before shutdown may still
	// deliver; that must degrade to a drop, never a panic.
	blk := stream.NewBlock("s1", 256, testSchema)
	blk.Append(sampleRec(1))
	s.OnBlock(blk.Seal(), noDeps)
	s.OnStartup(procinfo.ProcessInfo{ProcessID: "late"})

	if got := s.Dropped(); got != 2 {
		t.Fatalf("dropped = %d, want 2", got)
	}
	if s.IsBusy() {
		t.Error("closed sink must not report busy")
	}
	s.Close() // idempotent
}

func TestMonitor_FiresOnBoundaryTick(t *testing.T) {
	fired := 0
	m := NewMonitor(60*time.Second, func() bool { return false }, func() { fired++ }, nil)

	base := time.Now()
	m.mu.Lock()
	m.last = base
	m.mu.Unlock()

	// One tick per second: nothing until the 60s boundary, which fires.
	for s := 1; s <= 60; s++ {
		got := m.Tick(base.Add(time.Duration(s) * time.Second))
		if s < 60 && got {
			t.Fatalf("fired early at %ds", s)
		}
		if s == 60 && !got {
			t.Fatal("did not fire on the boundary tick")
		}
	}
	if fired != 1 {
		t.Fatalf("flush ran %d times, want 1", fired)
	}

	// Interval restarts from the fired tick.
	if m.Tick(base.Add(119 * time.Second)) {
		t.Error("fired before the second interval elapsed")
	}
	if !m.Tick(base.Add(120 * time.Second)) {
		t.Error("did not fire after the second interval")
	}
}

func TestMonitor_PressureRunsEveryTick(t *testing.T) {
	pressure := 0
	fired := 0
	// Busy sink and a delay that never elapses: the flush gate stays
	// shut, the pressure pass still runs each tick.
	m := NewMonitor(time.Hour, func() bool { return true }, func() { fired++ }, func() { pressure++ })

	base := time.Now()
	for s := 1; s <= 10; s++ {
		m.Tick(base.Add(time.Duration(s) * time.Second))
	}
	if pressure != 10 {
		t.Errorf("pressure pass ran %d times, want 10", pressure)
	}
	if fired != 0 {
		t.Errorf("flush ran %d times, want 0", fired)
	}
}

func TestMonitor_BusySinkDefersWithoutReset(t *testing.T) {
	busy := true
	fired := 0
	m := NewMonitor(60*time.Second, func() bool { return busy }, func() { fired++ }, nil)

	base := time.Now()
	m.mu.Lock()
	m.last = base
	m.mu.Unlock()

	if m.Tick(base.Add(60 * time.Second)) {
		t.Fatal("fired while sink was busy")
	}
	busy = false
	// The next tick fires immediately; the elapsed time was not reset.
	if !m.Tick(base.Add(61 * time.Second)) {
		t.Fatal("did not fire once the sink went idle")
	}
	if fired != 1 {
		t.Fatalf("flush ran %d times, want 1", fired)
	}
}
