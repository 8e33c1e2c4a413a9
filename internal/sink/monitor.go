package sink

import (
	"context"
	"sync"
	"time"
)

// Monitor periodically forces buffered streams out of the process so
// a quiet application still delivers its telemetry. A flush fires when
// the configured delay has elapsed since the last one and the sink is
// not already working through a backlog; the check lands on the next
// tick, never mid-interval. Independently of the flush gate, an
// optional pressure pass runs on every tick so near-full streams
// rotate early instead of waiting for the full interval.
type Monitor struct {
	delay    time.Duration
	busy     func() bool
	flush    func()
	pressure func()

	mu   sync.Mutex
	last time.Time
}

// NewMonitor returns a monitor whose first flush is due delay after
// construction. pressure may be nil; when set it runs on every tick.
func NewMonitor(delay time.Duration, busy func() bool, flush, pressure func()) *Monitor {
	return &Monitor{
		delay:    delay,
		busy:     busy,
		flush:    flush,
		pressure: pressure,
		last:     time.Now(),
	}
}

// Tick runs the pressure pass, then evaluates the flush condition at
// the given instant. When the sink is busy the flush is deferred to a
// later tick without resetting the interval. Returns whether a flush
// fired.
func (m *Monitor) Tick(now time.Time) bool {
	if m.pressure != nil {
		m.pressure()
	}

	m.mu.Lock()
	if m.busy() || now.Sub(m.last) < m.delay {
		m.mu.Unlock()
		return false
	}
	m.last = now
	m.mu.Unlock()

	m.flush()
	return true
}

// Run ticks at the given interval until the context is cancelled.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Tick(now)
		}
	}
}
