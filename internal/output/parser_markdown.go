package output

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	headingRe    = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
	actionItemRe = regexp.MustCompile(`(?i)\b(TODO|FIXME|Action:|Next steps:|Recommendation:)`)
)

// parseMarkdown splits a markdown report into sections, extracts fenced
// code blocks, and collects action-item lines for the reporting layer.
func parseMarkdown(content []byte) (*MarkdownOutput, string) {
	out := &MarkdownOutput{}

	var cur *Section
	var body strings.Builder
	var inFence bool
	var fenceLang string
	var fence strings.Builder

	closeSection := func() {
		if cur != nil {
			cur.Body = strings.TrimSpace(body.String())
			out.Sections = append(out.Sections, *cur)
		}
		body.Reset()
		cur = nil
	}

	for _, line := range strings.Split(string(content), "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			if inFence {
				out.CodeBlocks = append(out.CodeBlocks, CodeBlock{
					Lang: fenceLang,
					Code: strings.TrimRight(fence.String(), "\n"),
				})
				fence.Reset()
				inFence = false
			} else {
				inFence = true
				fenceLang = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "```"))
			}
			continue
		}
		if inFence {
			fence.WriteString(line)
			fence.WriteString("\n")
			continue
		}

		if m := headingRe.FindStringSubmatch(line); m != nil {
			closeSection()
			cur = &Section{Heading: m[2], Level: len(m[1])}
			continue
		}

		if actionItemRe.MatchString(line) {
			if item := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-* ")); item != "" {
				out.ActionItems = append(out.ActionItems, item)
			}
		}

		if cur == nil && strings.TrimSpace(line) != "" {
			// Body before any heading goes into an untitled section.
			cur = &Section{Level: 0}
		}
		if cur != nil {
			body.WriteString(line)
			body.WriteString("\n")
		}
	}
	closeSection()

	summary := fmt.Sprintf("%d sections, %d code blocks, %d action items",
		len(out.Sections), len(out.CodeBlocks), len(out.ActionItems))
	return out, summary
}
