package output

import (
	"fmt"
	"regexp"
	"strings"
)

var fileHeaderRe = regexp.MustCompile(`^(---|\+\+\+) (a/|b/|/dev/null)`)

// parseDiff parses a unified diff into per-file change records with
// added/removed line counts and a derived change type.
func parseDiff(content []byte) (*DiffOutput, string) {
	out := &DiffOutput{Text: string(content)}
	var cur *DiffFile
	var oldPath, newPath string
	var renamed, inHunk bool

	flush := func() {
		if cur == nil {
			return
		}
		cur.ChangeType = changeType(oldPath, newPath, renamed)
		cur.Path = strippedPath(newPath)
		if cur.Path == "" || cur.Path == "/dev/null" {
			cur.Path = strippedPath(oldPath)
		}
		if cur.ChangeType == "renamed" {
			cur.OldPath = strippedPath(oldPath)
		}
		out.Files = append(out.Files, *cur)
		out.Stats.Files++
		out.Stats.Additions += cur.Additions
		out.Stats.Deletions += cur.Deletions
		cur = nil
		oldPath, newPath = "", ""
		renamed = false
	}

	start := func() {
		flush()
		cur = &DiffFile{}
		inHunk = false
	}

	// isHeader distinguishes a file header from a context/removal line
	// that happens to start with dashes: headers only occur outside hunks
	// or with git's conventional a/ b/ /dev/null prefixes.
	isHeader := func(line string) bool {
		return !inHunk || fileHeaderRe.MatchString(line)
	}

	for _, line := range strings.Split(string(content), "\n") {
		switch {
		case strings.HasPrefix(line, "diff --git "):
			start()
		case strings.HasPrefix(line, "rename from "):
			renamed = true
			oldPath = strings.TrimPrefix(line, "rename from ")
		case strings.HasPrefix(line, "rename to "):
			renamed = true
			newPath = strings.TrimPrefix(line, "rename to ")
		case strings.HasPrefix(line, "--- ") && isHeader(line):
			if cur == nil || inHunk {
				start()
			}
			oldPath = strings.TrimSpace(strings.TrimPrefix(line, "--- "))
		case strings.HasPrefix(line, "+++ ") && isHeader(line):
			if cur == nil {
				start()
			}
			newPath = strings.TrimSpace(strings.TrimPrefix(line, "+++ "))
		case strings.HasPrefix(line, "@@"):
			if cur != nil {
				cur.Hunks++
				inHunk = true
			}
		case strings.HasPrefix(line, "+"):
			if cur != nil && inHunk {
				cur.Additions++
			}
		case strings.HasPrefix(line, "-"):
			if cur != nil && inHunk {
				cur.Deletions++
			}
		}
	}
	flush()

	summary := fmt.Sprintf("%d files changed, +%d/-%d",
		out.Stats.Files, out.Stats.Additions, out.Stats.Deletions)
	return out, summary
}

func changeType(oldPath, newPath string, renamed bool) string {
	old, nw := strippedPath(oldPath), strippedPath(newPath)
	switch {
	case renamed:
		return "renamed"
	case old == "/dev/null" || old == "":
		return "added"
	case nw == "/dev/null":
		return "deleted"
	case old != "" && nw != "" && old != nw:
		return "renamed"
	default:
		return "modified"
	}
}

// strippedPath removes the conventional a/ b/ prefixes git puts on paths.
func strippedPath(p string) string {
	if p == "/dev/null" || p == "" {
		return p
	}
	if strings.HasPrefix(p, "a/") || strings.HasPrefix(p, "b/") {
		return p[2:]
	}
	return p
}
