package output

import (
	"fmt"
	"regexp"
	"strings"
)

var logEntryRe = regexp.MustCompile(`^\[?(\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}[^\]\s]*)\]?\s*\[?(ERROR|WARN|WARNING|INFO|DEBUG|TRACE)?\]?:?\s*(.*)$`)

// parseLog splits a log artifact into timestamped entries grouped by level,
// surfacing error and warning lines for the reporting layer.
func parseLog(content []byte) (*LogOutput, string) {
	out := &LogOutput{}

	for _, line := range strings.Split(string(content), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		entry := LogEntry{Message: line}
		if m := logEntryRe.FindStringSubmatch(line); m != nil {
			entry.Timestamp = m[1]
			entry.Level = normalizeLevel(m[2])
			entry.Message = m[3]
		} else {
			entry.Level = sniffLevel(line)
		}
		out.Entries = append(out.Entries, entry)

		switch entry.Level {
		case "error":
			out.Errors = append(out.Errors, entry.Message)
		case "warning":
			out.Warnings = append(out.Warnings, entry.Message)
		}
	}

	summary := fmt.Sprintf("%d entries (%d errors, %d warnings)",
		len(out.Entries), len(out.Errors), len(out.Warnings))
	return out, summary
}

func normalizeLevel(level string) string {
	switch strings.ToUpper(level) {
	case "ERROR":
		return "error"
	case "WARN", "WARNING":
		return "warning"
	case "INFO":
		return "info"
	case "DEBUG", "TRACE":
		return "debug"
	default:
		return ""
	}
}

var levelTokenRe = regexp.MustCompile(`\b(ERROR|WARN|WARNING|INFO|DEBUG|TRACE)\b`)

func sniffLevel(line string) string {
	if m := levelTokenRe.FindString(line); m != "" {
		return normalizeLevel(m)
	}
	return ""
}
