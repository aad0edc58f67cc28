package httpapi

import (
	"runtime"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// runtimeMemStats captures the single allocation figure GET /api/health
// reports (spec.md §4.9).
type runtimeMemStats struct {
	allocBytes uint64
}

func (m *runtimeMemStats) read() {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	m.allocBytes = stats.Alloc
}

// humanizeUptime renders process uptime with go-humanize's RelTime,
// e.g. "3 hours".
func humanizeUptime(bootTime time.Time) string {
	return strings.TrimSpace(humanize.RelTime(bootTime, time.Now(), "", ""))
}
