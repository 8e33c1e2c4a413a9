// Package procinfo identifies the producing process: ids, executable,
// user and host identity, CPU brand, and the clock calibration pair
// that lets the server translate monotonic event timestamps back to
// wall-clock time. Collected once at startup, immutable afterwards.
package procinfo

import (
	"os"
	"os/user"
	"runtime"
	"strings"

	"github.com/legion-labs/telemetry-go/transit"
)

// ParentProcessEnv carries the parent's telemetry process id into
// child processes. Read at startup, then overwritten with our own id
// so that spawned children link back to us.
const ParentProcessEnv = "TELEMETRY_PARENT_PROCESS"

// ProcessInfo describes the producing process. Sent to the ingestion
// endpoint once, before any stream or block data.
type ProcessInfo struct {
	ProcessID       string
	ParentProcessID string
	Exe             string
	Username        string
	Realname        string
	Computer        string
	Distro          string
	CPUBrand        string
	TscFrequency    int64
	StartTime       transit.DualTime
}

// Collect gathers process identity for the given generated process id.
// Every field is best-effort: a sandboxed process without /proc or a
// resolvable user still produces a usable record.
func Collect(processID string) ProcessInfo {
	info := ProcessInfo{
		ProcessID:       processID,
		ParentProcessID: os.Getenv(ParentProcessEnv),
		Distro:          distro(),
		CPUBrand:        cpuBrand(),
		TscFrequency:    transit.TicksPerSecond,
		StartTime:       transit.DualNow(),
	}
	os.Setenv(ParentProcessEnv, processID)

	if exe, err := os.Executable(); err == nil {
		info.Exe = exe
	}
	if host, err := os.Hostname(); err == nil {
		info.Computer = host
	}
	if u, err := user.Current(); err == nil {
		info.Username = u.Username
		info.Realname = u.Name
	}
	return info
}

// distro names the platform, e.g. "linux Ubuntu 22.04.4 LTS".
func distro() string {
	name := runtime.GOOS
	if pretty := osReleaseName(); pretty != "" {
		name += " " + pretty
	}
	return name
}

func osReleaseName() string {
	data, err := os.ReadFile("/etc/os-release")
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		if rest, ok := strings.CutPrefix(line, "PRETTY_NAME="); ok {
			return strings.Trim(rest, `"`)
		}
	}
	return ""
}

// cpuBrand reads the CPU model string from /proc/cpuinfo where
// available; "unknown" elsewhere. The field is informational only.
func cpuBrand() string {
	data, err := os.ReadFile("/proc/cpuinfo")
	if err != nil {
		return "unknown"
	}
	for _, line := range strings.Split(string(data), "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		if strings.TrimSpace(key) == "model name" {
			return strings.TrimSpace(value)
		}
	}
	return "unknown"
}
