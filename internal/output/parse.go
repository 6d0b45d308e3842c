package output

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// maxArtifactBytes is the per-file read ceiling; larger files are truncated
// with a marker rather than rejected.
const maxArtifactBytes = 50 << 20

const truncationMarker = "\n[truncated: artifact exceeded size ceiling]"

// priorityPatterns orders artifact filenames from most to least canonical.
// The first match becomes the primary output.
var priorityPatterns = []string{
	"result.json",
	"output.json",
	"analysis.json",
	"summary.md",
	"*.diff",
	"*.patch",
	"*.log",
	"trajectory.json",
	"trace.json",
}

// ProcessInfo is the slice of the process result the parser records.
type ProcessInfo struct {
	ExitCode int
}

// ParseDir enumerates known artifacts in outputDir, parses each by
// classified kind, and consolidates them into a Report. Parsing never
// fails a job: unreadable or unparsable artifacts degrade to raw entries.
func ParseDir(proc ProcessInfo, outputDir string) *Report {
	report := &Report{
		Metadata: Metadata{
			OutputDir: outputDir,
			ExitCode:  proc.ExitCode,
			ParsedAt:  time.Now().UTC(),
		},
	}

	names := enumerate(outputDir)
	report.Metadata.FileCount = len(names)

	for _, name := range names {
		out := parseFile(outputDir, name)
		report.Outputs = append(report.Outputs, out)
	}

	report.Primary = selectPrimary(report.Outputs)

	for i := range report.Outputs {
		o := &report.Outputs[i]
		switch o.Kind {
		case KindDiff, KindJSON, KindStructured:
			report.Artifacts = append(report.Artifacts, Artifact{Name: o.Name, Kind: o.Kind, Summary: o.Summary})
		case KindMarkdown:
			if o.Markdown != nil && len(o.Markdown.CodeBlocks) > 0 {
				report.Artifacts = append(report.Artifacts, Artifact{Name: o.Name, Kind: o.Kind, Summary: o.Summary})
			}
		}
	}

	return report
}

// enumerate lists regular files in priority order, then the remainder
// alphabetically.
func enumerate(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	present := make(map[string]bool)
	for _, e := range entries {
		if e.Type().IsRegular() {
			present[e.Name()] = true
		}
	}

	var ordered []string
	taken := make(map[string]bool)
	for _, pattern := range priorityPatterns {
		var matches []string
		for name := range present {
			if taken[name] {
				continue
			}
			if ok, _ := filepath.Match(pattern, name); ok {
				matches = append(matches, name)
			}
		}
		sort.Strings(matches)
		for _, name := range matches {
			taken[name] = true
			ordered = append(ordered, name)
		}
	}

	var rest []string
	for name := range present {
		if !taken[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(ordered, rest...)
}

// parseFile reads one artifact under the size ceiling and dispatches to the
// kind-specific parser.
func parseFile(dir, name string) Output {
	path := filepath.Join(dir, name)
	out := Output{Name: name, Kind: KindRaw}

	info, err := os.Stat(path)
	if err != nil {
		out.Summary = "unreadable artifact"
		return out
	}
	out.SizeBytes = info.Size()

	content, truncated, err := readCapped(path, maxArtifactBytes)
	if err != nil {
		out.Summary = "unreadable artifact"
		return out
	}
	out.Truncated = truncated

	kind := classify(name, content)
	if truncated && (kind == KindJSON || kind == KindStructured) {
		// A truncated JSON document no longer parses; keep the raw text.
		kind = KindRaw
	}

	switch kind {
	case KindJSON, KindStructured:
		parsed, summary := parseJSON(content)
		if parsed == nil {
			break
		}
		out.Kind = kind
		out.JSON = parsed
		out.Summary = summary
	case KindMarkdown:
		parsed, summary := parseMarkdown(content)
		out.Kind = KindMarkdown
		out.Markdown = parsed
		out.Summary = summary
	case KindDiff:
		parsed, summary := parseDiff(content)
		out.Kind = KindDiff
		out.Diff = parsed
		out.Summary = summary
	case KindLog:
		parsed, summary := parseLog(content)
		out.Kind = KindLog
		out.Log = parsed
		out.Summary = summary
	}

	if out.Kind == KindRaw {
		raw := string(content)
		if truncated {
			raw += truncationMarker
		}
		out.Raw = raw
		if out.Summary == "" {
			out.Summary = firstLine(raw)
		}
	}
	return out
}

// selectPrimary picks the first priority-named output, falling back to the
// first structured (non-raw) one.
func selectPrimary(outputs []Output) *Output {
	for _, pattern := range priorityPatterns {
		for i := range outputs {
			if ok, _ := filepath.Match(pattern, outputs[i].Name); ok && outputs[i].Kind != KindRaw {
				return &outputs[i]
			}
		}
	}
	for i := range outputs {
		if outputs[i].Kind != KindRaw {
			return &outputs[i]
		}
	}
	return nil
}

func readCapped(path string, limit int64) ([]byte, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, false, err
	}
	if info.Size() <= limit {
		data, err := os.ReadFile(path)
		return data, false, err
	}

	buf := make([]byte, limit)
	n, err := io.ReadFull(f, buf)
	if err != nil && n == 0 {
		return nil, false, err
	}
	return buf[:n], true, nil
}

func firstLine(s string) string {
	line := strings.TrimSpace(s)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	if len(line) > 120 {
		line = line[:120]
	}
	return line
}
