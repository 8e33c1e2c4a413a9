package transit

import "time"

// Event timestamps are "ticks": monotonic nanoseconds elapsed since
// process start. The process upload reports TicksPerSecond together
// with a (wall clock, ticks) calibration pair so the server can
// translate every event timestamp back to wall-clock time.

// TicksPerSecond is the tick frequency reported as tsc_frequency.
const TicksPerSecond = int64(time.Second / time.Nanosecond)

var processStart = time.Now()

// Now returns the current monotonic tick count.
func Now() int64 {
	return time.Since(processStart).Nanoseconds()
}

// DualTime pairs a wall-clock instant with the matching tick count.
type DualTime struct {
	Wall  time.Time
	Ticks int64
}

// DualNow captures the current instant on both clocks.
func DualNow() DualTime {
	return DualTime{Wall: time.Now().UTC(), Ticks: Now()}
}
