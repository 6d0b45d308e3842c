package output

import (
	"encoding/json"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	diffHeaderRe = regexp.MustCompile(`(?m)^(diff --git |--- |\+\+\+ |@@ -\d)`)
	mdPatternRe  = regexp.MustCompile("(?m)^(#{1,6} |\\* |- |> |```)")
	logLineRe    = regexp.MustCompile(`(?m)^\[?\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}`)
	logLevelRe   = regexp.MustCompile(`(?mi)\b(ERROR|WARN|WARNING|INFO|DEBUG|TRACE)\b`)
)

// classify determines the Kind of an artifact: extension first, content
// sniffing when the extension is missing or ambiguous.
func classify(name string, content []byte) Kind {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		if json.Valid(content) {
			return jsonKind(content)
		}
		return KindRaw
	case ".md", ".markdown":
		return KindMarkdown
	case ".diff", ".patch":
		return KindDiff
	case ".log":
		return KindLog
	}
	return sniff(content)
}

// sniff classifies by content alone, most-specific format first.
func sniff(content []byte) Kind {
	trimmed := strings.TrimSpace(string(content))
	if trimmed == "" {
		return KindRaw
	}
	if (strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")) && json.Valid(content) {
		return jsonKind(content)
	}
	if diffHeaderRe.MatchString(trimmed) {
		return KindDiff
	}
	if logLineRe.MatchString(trimmed) && logLevelRe.MatchString(trimmed) {
		return KindLog
	}
	if mdPatternRe.MatchString(trimmed) {
		return KindMarkdown
	}
	return KindRaw
}

// jsonKind distinguishes the object-shaped canonical result from other
// valid JSON shapes (trajectories are arrays, for example).
func jsonKind(content []byte) Kind {
	if strings.HasPrefix(strings.TrimSpace(string(content)), "{") {
		return KindJSON
	}
	return KindStructured
}
