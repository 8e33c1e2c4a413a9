package sink

import (
	"bytes"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/legion-labs/telemetry-go/internal/procinfo"
	"github.com/legion-labs/telemetry-go/internal/stream"
	"github.com/legion-labs/telemetry-go/internal/wire"
)

// HTTPSink ships payloads to a collector over HTTP PUT. A single
// worker goroutine drains a bounded job queue; when the queue is full
// new payloads are dropped and counted rather than blocking the
// caller.
type HTTPSink struct {
	baseURL string
	codec   wire.Codec
	client  *http.Client

	mu      sync.Mutex
	closed  bool
	jobs    chan func()
	queued  atomic.Int64
	dropped atomic.Int64
	wg      sync.WaitGroup
}

// NewHTTPSink starts the worker goroutine. baseURL is the collector
// root; process, stream and block payloads go to baseURL/process,
// /stream and /block respectively.
func NewHTTPSink(baseURL string, codec wire.Codec, queueSize int) *HTTPSink {
	if queueSize <= 0 {
		queueSize = 1024
	}
	s := &HTTPSink{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		codec:   codec,
		client:  &http.Client{Timeout: 30 * time.Second},
		jobs:    make(chan func(), queueSize),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *HTTPSink) run() {
	defer s.wg.Done()
	for job := range s.jobs {
		job()
		s.queued.Add(-1)
	}
}

// enqueue hands a job to the worker without ever blocking. Returns
// false when the job was dropped: queue saturated, or the sink
// already closed. A producer racing Shutdown must land here, not on a
// closed-channel panic.
func (s *HTTPSink) enqueue(job func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.dropped.Add(1)
		return false
	}
	s.queued.Add(1)
	select {
	case s.jobs <- job:
		return true
	default:
		s.queued.Add(-1)
		s.dropped.Add(1)
		return false
	}
}

func (s *HTTPSink) OnStartup(info procinfo.ProcessInfo) {
	if !s.enqueue(func() {
		body, err := wire.FormatProcessRequest(info)
		if err != nil {
			log.Printf("telemetry: encoding process info: %v", err)
			return
		}
		s.put("/process", "application/json", body)
	}) {
		log.Printf("telemetry: sink queue full, dropped process info")
	}
}

func (s *HTTPSink) OnInitStream(info wire.StreamInfo) {
	if !s.enqueue(func() {
		body, err := wire.FormatStreamRequest(info)
		if err != nil {
			log.Printf("telemetry: encoding stream %s: %v", info.StreamID, err)
			return
		}
		s.put("/stream", "application/json", body)
	}) {
		log.Printf("telemetry: sink queue full, dropped stream %s", info.StreamID)
	}
}

func (s *HTTPSink) OnBlock(blk *stream.SealedBlock, extract DepExtractor) {
	if !s.enqueue(func() {
		depQueue, err := extract(blk)
		if err != nil {
			log.Printf("telemetry: extracting dependencies for block %s: %v", blk.ID, err)
			return
		}
		body, err := wire.FormatBlockRequest(blk, depQueue, s.codec)
		if err != nil {
			log.Printf("telemetry: encoding block %s: %v", blk.ID, err)
			return
		}
		s.put("/block", "application/octet-stream", body)
	}) {
		log.Printf("telemetry: sink queue full, dropped block %s (%d events)", blk.ID, blk.Count())
	}
}

// IsBusy reports whether the worker still has queued or in-flight
// payloads. The flush monitor checks this before forcing a flush.
func (s *HTTPSink) IsBusy() bool { return s.queued.Load() > 0 }

// Dropped returns the number of payloads discarded because the queue
// was saturated.
func (s *HTTPSink) Dropped() int64 { return s.dropped.Load() }

// Close drains the remaining queue and stops the worker. Payloads
// arriving after Close are dropped with a log line, never a panic.
// Close is idempotent.
func (s *HTTPSink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.jobs)
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *HTTPSink) put(path, contentType string, body []byte) {
	req, err := http.NewRequest(http.MethodPut, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		log.Printf("telemetry: building request for %s: %v", path, err)
		return
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := s.client.Do(req)
	if err != nil {
		log.Printf("telemetry: sending %s: %v", path, err)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		log.Printf("telemetry: %s returned status %d", path, resp.StatusCode)
	}
}
