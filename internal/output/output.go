package output

import "time"

// Kind tags the parsed format of one output artifact.
type Kind string

const (
	KindJSON       Kind = "json"       // object-shaped JSON result
	KindStructured Kind = "structured" // other valid JSON (arrays, scalars)
	KindMarkdown   Kind = "markdown"
	KindDiff       Kind = "diff"
	KindLog        Kind = "log"
	KindRaw        Kind = "raw" // unclassifiable or failed parse
)

// Output is a tagged union: exactly the payload matching Kind is non-nil,
// so consumers can switch exhaustively instead of probing an untyped map.
type Output struct {
	Name      string `json:"name"`
	Kind      Kind   `json:"kind"`
	Summary   string `json:"summary"`
	Truncated bool   `json:"truncated,omitempty"`
	SizeBytes int64  `json:"size_bytes"`

	JSON     *JSONOutput     `json:"json,omitempty"`
	Markdown *MarkdownOutput `json:"markdown,omitempty"`
	Diff     *DiffOutput     `json:"diff,omitempty"`
	Log      *LogOutput      `json:"log,omitempty"`
	Raw      string          `json:"raw,omitempty"`
}

// JSONOutput holds structured data plus extracted summary and metrics.
type JSONOutput struct {
	Data    interface{}        `json:"data"`
	Summary string             `json:"summary,omitempty"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
}

// MarkdownOutput holds the section structure of a markdown report.
type MarkdownOutput struct {
	Sections    []Section   `json:"sections"`
	CodeBlocks  []CodeBlock `json:"code_blocks,omitempty"`
	ActionItems []string    `json:"action_items,omitempty"`
}

// Section is one heading-delimited region of a markdown document.
type Section struct {
	Heading string `json:"heading"`
	Level   int    `json:"level"`
	Body    string `json:"body"`
}

// CodeBlock is one fenced code block.
type CodeBlock struct {
	Lang string `json:"lang,omitempty"`
	Code string `json:"code"`
}

// DiffOutput holds a parsed unified diff. Text retains the full diff
// content so downstream scanning sees line bodies, not just paths and
// counts.
type DiffOutput struct {
	Files []DiffFile `json:"files"`
	Stats DiffStats  `json:"stats"`
	Text  string     `json:"text,omitempty"`
}

// DiffFile is one file's change within a diff.
type DiffFile struct {
	Path       string `json:"path"`
	OldPath    string `json:"old_path,omitempty"`
	ChangeType string `json:"change_type"` // added|deleted|renamed|modified
	Additions  int    `json:"additions"`
	Deletions  int    `json:"deletions"`
	Hunks      int    `json:"hunks"`
}

// DiffStats aggregates a whole diff.
type DiffStats struct {
	Files     int `json:"files"`
	Additions int `json:"additions"`
	Deletions int `json:"deletions"`
}

// LogOutput holds a parsed log artifact split by level.
type LogOutput struct {
	Entries  []LogEntry `json:"entries"`
	Errors   []string   `json:"errors,omitempty"`
	Warnings []string   `json:"warnings,omitempty"`
}

// LogEntry is one recognized log line.
type LogEntry struct {
	Timestamp string `json:"timestamp,omitempty"`
	Level     string `json:"level,omitempty"`
	Message   string `json:"message"`
}

// Artifact is a compact reference to a reportable output, aggregated for
// the downstream reporting layer.
type Artifact struct {
	Name    string `json:"name"`
	Kind    Kind   `json:"kind"`
	Summary string `json:"summary"`
}

// Report is the consolidated result of parsing a process's output directory.
type Report struct {
	Primary   *Output    `json:"primary,omitempty"`
	Outputs   []Output   `json:"outputs"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
	Metadata  Metadata   `json:"metadata"`
}

// Metadata describes the parse itself.
type Metadata struct {
	OutputDir string    `json:"output_dir"`
	FileCount int       `json:"file_count"`
	ExitCode  int       `json:"exit_code"`
	ParsedAt  time.Time `json:"parsed_at"`
}

// ByName returns the output with the given artifact name, or nil.
func (r *Report) ByName(name string) *Output {
	for i := range r.Outputs {
		if r.Outputs[i].Name == name {
			return &r.Outputs[i]
		}
	}
	return nil
}
