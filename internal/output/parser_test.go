package output

import (
	"strings"
	"testing"
)

const twoFileDiff = `diff --git a/file1.go b/file1.go
--- a/file1.go
+++ b/file1.go
@@ -1,4 +1,6 @@
 package main
+import "fmt"
+func helper() {}
+func main() {}
-func old() {}
@@ -10,1 +12,1 @@
 // trailing
diff --git a/file2.go b/file2.go
--- a/file2.go
+++ b/file2.go
@@ -5,3 +5,1 @@
 keep
-gone1
-gone2
`

func TestParseDiffTwoFiles(t *testing.T) {
	d, summary := parseDiff([]byte(twoFileDiff))

	if d.Stats.Files != 2 {
		t.Fatalf("expected 2 files, got %d", d.Stats.Files)
	}
	if d.Stats.Additions != 3 {
		t.Errorf("expected 3 additions, got %d", d.Stats.Additions)
	}
	if d.Stats.Deletions != 3 {
		t.Errorf("expected 3 deletions, got %d", d.Stats.Deletions)
	}
	if summary != "2 files changed, +3/-3" {
		t.Errorf("unexpected summary: %q", summary)
	}
	if d.Text != twoFileDiff {
		t.Error("parsed diff must retain the full diff text")
	}

	f1 := d.Files[0]
	if f1.Path != "file1.go" || f1.Additions != 3 || f1.Deletions != 1 {
		t.Errorf("file1: %+v", f1)
	}
	if f1.Hunks != 2 {
		t.Errorf("file1 hunks = %d", f1.Hunks)
	}
	if f1.ChangeType != "modified" {
		t.Errorf("file1 change type = %s", f1.ChangeType)
	}
	f2 := d.Files[1]
	if f2.Path != "file2.go" || f2.Additions != 0 || f2.Deletions != 2 {
		t.Errorf("file2: %+v", f2)
	}
}

// Round-trip: summed per-file additions/deletions equal the aggregate.
func TestParseDiffRoundTrip(t *testing.T) {
	d, _ := parseDiff([]byte(twoFileDiff))
	var adds, dels int
	for _, f := range d.Files {
		adds += f.Additions
		dels += f.Deletions
	}
	if adds != d.Stats.Additions || dels != d.Stats.Deletions {
		t.Errorf("per-file sums (+%d/-%d) != stats (+%d/-%d)",
			adds, dels, d.Stats.Additions, d.Stats.Deletions)
	}
	if len(d.Files) != d.Stats.Files {
		t.Errorf("file entries %d != stats files %d", len(d.Files), d.Stats.Files)
	}
}

func TestParseDiffChangeTypes(t *testing.T) {
	input := `diff --git a/new.go b/new.go
--- /dev/null
+++ b/new.go
@@ -0,0 +1,2 @@
+line1
+line2
diff --git a/dead.go b/dead.go
--- a/dead.go
+++ /dev/null
@@ -1,1 +0,0 @@
-line1
diff --git a/old.go b/renamed.go
rename from old.go
rename to renamed.go
`
	d, _ := parseDiff([]byte(input))
	if len(d.Files) != 3 {
		t.Fatalf("expected 3 files, got %d", len(d.Files))
	}
	want := []struct {
		path string
		typ  string
	}{
		{"new.go", "added"},
		{"dead.go", "deleted"},
		{"renamed.go", "renamed"},
	}
	for i, w := range want {
		if d.Files[i].Path != w.path || d.Files[i].ChangeType != w.typ {
			t.Errorf("file %d: got %s/%s, want %s/%s",
				i, d.Files[i].Path, d.Files[i].ChangeType, w.path, w.typ)
		}
	}
	if d.Files[2].OldPath != "old.go" {
		t.Errorf("renamed old path = %q", d.Files[2].OldPath)
	}
}

func TestParseDiffDashLinesInsideHunk(t *testing.T) {
	// A removed line that itself starts with dashes must count as a
	// deletion, not open a new file.
	input := `--- a/notes.md
+++ b/notes.md
@@ -1,2 +1,1 @@
--- separator text
 keep
`
	d, _ := parseDiff([]byte(input))
	if len(d.Files) != 1 {
		t.Fatalf("expected 1 file, got %d", len(d.Files))
	}
	if d.Files[0].Deletions != 1 {
		t.Errorf("expected deletion counted, got %d", d.Files[0].Deletions)
	}
}

func TestParseMarkdown(t *testing.T) {
	input := `# Analysis

Intro text.

## Findings

- TODO fix the race in worker.go
- Recommendation: add a timeout

` + "```go\nfunc x() {}\n```" + `

## Summary

Done.
`
	md, summary := parseMarkdown([]byte(input))
	if len(md.Sections) != 3 {
		t.Fatalf("expected 3 sections, got %d", len(md.Sections))
	}
	if md.Sections[0].Heading != "Analysis" || md.Sections[0].Level != 1 {
		t.Errorf("section 0: %+v", md.Sections[0])
	}
	if md.Sections[1].Heading != "Findings" || md.Sections[1].Level != 2 {
		t.Errorf("section 1: %+v", md.Sections[1])
	}
	if len(md.CodeBlocks) != 1 || md.CodeBlocks[0].Lang != "go" {
		t.Errorf("code blocks: %+v", md.CodeBlocks)
	}
	if len(md.ActionItems) != 2 {
		t.Errorf("expected 2 action items, got %v", md.ActionItems)
	}
	if !strings.Contains(summary, "3 sections") {
		t.Errorf("summary: %q", summary)
	}
}

func TestParseMarkdownFenceSwallowsHeadings(t *testing.T) {
	input := "```\n# not a heading\n```\n# Real\nbody\n"
	md, _ := parseMarkdown([]byte(input))
	if len(md.Sections) != 1 || md.Sections[0].Heading != "Real" {
		t.Errorf("sections: %+v", md.Sections)
	}
}

func TestParseLog(t *testing.T) {
	input := `2026-01-02 10:00:00 INFO starting run
2026-01-02 10:00:05 WARN slow response from provider
2026-01-02 10:00:09 ERROR request failed: connection reset
plain line without timestamp
`
	lg, summary := parseLog([]byte(input))
	if len(lg.Entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(lg.Entries))
	}
	if len(lg.Errors) != 1 || !strings.Contains(lg.Errors[0], "connection reset") {
		t.Errorf("errors: %v", lg.Errors)
	}
	if len(lg.Warnings) != 1 {
		t.Errorf("warnings: %v", lg.Warnings)
	}
	if lg.Entries[0].Timestamp == "" || lg.Entries[0].Level != "info" {
		t.Errorf("entry 0: %+v", lg.Entries[0])
	}
	if summary != "4 entries (1 errors, 1 warnings)" {
		t.Errorf("summary: %q", summary)
	}
}

func TestParseJSONObject(t *testing.T) {
	input := `{"summary": "3 issues found", "issues": 3, "metrics": {"score": 0.82}}`
	j, summary := parseJSON([]byte(input))
	if j == nil {
		t.Fatal("expected parse")
	}
	if summary != "3 issues found" {
		t.Errorf("summary: %q", summary)
	}
	if j.Metrics["issues"] != 3 || j.Metrics["score"] != 0.82 {
		t.Errorf("metrics: %v", j.Metrics)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    Kind
	}{
		{"result.json", `{"ok": true}`, KindJSON},
		{"trajectory.json", `[{"step": 1}]`, KindStructured},
		{"broken.json", `{nope`, KindRaw},
		{"summary.md", "# Title", KindMarkdown},
		{"changes.diff", "--- a/x\n+++ b/x", KindDiff},
		{"agent.log", "2026-01-01 00:00:00 INFO hi", KindLog},
		{"noext-json", `{"sniffed": true}`, KindJSON},
		{"noext-diff", "diff --git a/x b/x\n--- a/x\n+++ b/x", KindDiff},
		{"noext-md", "# Heading\n\nBody", KindMarkdown},
		{"noext-log", "2026-01-01 00:00:00 ERROR boom", KindLog},
		{"noext-plain", "just some text", KindRaw},
		{"empty", "", KindRaw},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.name, []byte(tt.content))
			if got != tt.want {
				t.Errorf("classify(%s) = %s, want %s", tt.name, got, tt.want)
			}
		})
	}
}
