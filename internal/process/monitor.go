package process

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// procSample is one /proc snapshot of a running process.
type procSample struct {
	rssBytes int64
	cpuTicks int64 // utime + stime
}

// clockTicksPerSecond is the kernel's USER_HZ; fixed at 100 on Linux.
const clockTicksPerSecond = 100

// sampleProc reads resident memory and accumulated CPU ticks for a pid
// from /proc. Reading /proc directly avoids shelling out to ps and parsing
// its output.
func sampleProc(pid int) (procSample, error) {
	var s procSample

	statm, err := os.ReadFile(fmt.Sprintf("/proc/%d/statm", pid))
	if err != nil {
		return s, fmt.Errorf("read statm: %w", err)
	}
	fields := strings.Fields(string(statm))
	if len(fields) < 2 {
		return s, fmt.Errorf("malformed statm: %q", statm)
	}
	rssPages, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return s, fmt.Errorf("parse rss pages: %w", err)
	}
	s.rssBytes = rssPages * int64(os.Getpagesize())

	stat, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return s, fmt.Errorf("read stat: %w", err)
	}
	// comm may contain spaces; fields are fixed after the closing paren.
	raw := string(stat)
	idx := strings.LastIndexByte(raw, ')')
	if idx < 0 {
		return s, fmt.Errorf("malformed stat: %q", raw)
	}
	rest := strings.Fields(raw[idx+1:])
	// rest[0] is state; utime and stime are fields 14 and 15 of the full
	// line, which is rest[11] and rest[12] here.
	if len(rest) < 13 {
		return s, fmt.Errorf("short stat line: %q", raw)
	}
	utime, err := strconv.ParseInt(rest[11], 10, 64)
	if err != nil {
		return s, fmt.Errorf("parse utime: %w", err)
	}
	stime, err := strconv.ParseInt(rest[12], 10, 64)
	if err != nil {
		return s, fmt.Errorf("parse stime: %w", err)
	}
	s.cpuTicks = utime + stime
	return s, nil
}

// cpuPercent converts a tick delta over an interval to a percentage.
func cpuPercent(deltaTicks int64, intervalSeconds float64) float64 {
	if intervalSeconds <= 0 {
		return 0
	}
	return float64(deltaTicks) / clockTicksPerSecond / intervalSeconds * 100
}
