package validate

import (
	"regexp"
	"strings"
	"time"

	"github.com/tcooper/warden/internal/job"
	"github.com/tcooper/warden/internal/output"
)

const minContentBytes = 20

// checkStructure verifies the report has artifacts and that each output's
// declared kind carries its matching payload. Shape mismatches are fatal.
func checkStructure(rep *output.Report, result *Report) {
	if len(rep.Outputs) == 0 {
		result.addError("agent produced no output artifacts")
		return
	}
	if rep.Primary == nil {
		result.addWarning("no primary output identified")
	}

	for i := range rep.Outputs {
		o := &rep.Outputs[i]
		ok := true
		switch o.Kind {
		case output.KindJSON, output.KindStructured:
			ok = o.JSON != nil
		case output.KindMarkdown:
			ok = o.Markdown != nil
		case output.KindDiff:
			ok = o.Diff != nil
		case output.KindLog:
			ok = o.Log != nil
		}
		if !ok {
			result.addError("output %s declares kind %s but carries no parsed payload", o.Name, o.Kind)
		}
	}
}

var failureIndicatorRe = regexp.MustCompile(`(?i)\b(failed|fatal error|could not complete|unable to proceed|aborted)\b`)

var placeholderRe = regexp.MustCompile(`(?i)(\bTBD\b|\bFIXME\b|<placeholder>|<insert[^>]*>|lorem ipsum|\[TODO\])`)

// checkContentQuality warns on thin, contradictory, or unfinished content.
func checkContentQuality(rep *output.Report, result *Report) {
	if rep.Primary == nil {
		return
	}

	content := outputText(rep.Primary)
	if len(strings.TrimSpace(content)) < minContentBytes {
		result.addWarning("primary output %s has near-empty content", rep.Primary.Name)
	}

	// success=true alongside failure-indicator prose is a contradiction
	// worth flagging for human review.
	if p := rep.Primary.JSON; p != nil {
		if obj, ok := p.Data.(map[string]interface{}); ok {
			if success, ok := obj["success"].(bool); ok && success && failureIndicatorRe.MatchString(content) {
				result.addWarning("primary output claims success but contains failure indicators")
			}
		}
	}

	for i := range rep.Outputs {
		if placeholderRe.MatchString(outputText(&rep.Outputs[i])) {
			result.addWarning("output %s contains unresolved placeholder markers", rep.Outputs[i].Name)
		}
	}
}

// checkBusinessRules applies request-type expectations. Agent output
// quality varies too much for these to be fatal, so everything here is a
// warning.
func checkBusinessRules(rep *output.Report, reqType job.RequestType, result *Report) {
	hasDiff, hasMarkdown, hasJSON := false, false, false
	for i := range rep.Outputs {
		switch rep.Outputs[i].Kind {
		case output.KindDiff:
			hasDiff = true
		case output.KindMarkdown:
			hasMarkdown = true
		case output.KindJSON, output.KindStructured:
			hasJSON = true
		}
	}

	switch reqType {
	case job.RequestPullRequest:
		if !hasDiff && !hasMarkdown {
			result.addWarning("pull-request result contains neither diff nor review content")
		}
	case job.RequestSingleIssue:
		if !hasMarkdown && !hasJSON {
			result.addWarning("issue analysis result contains no summary or findings content")
		}
		if hasMarkdown && !hasAnalysisSections(rep) {
			result.addWarning("analysis output lacks summary/findings/recommendations sections")
		}
	case job.RequestInlineComment:
		if rep.Primary == nil || len(strings.TrimSpace(outputText(rep.Primary))) == 0 {
			result.addWarning("inline-comment result has no reply content")
		}
	}
}

var analysisSectionRe = regexp.MustCompile(`(?i)\b(summary|findings|recommendations?)\b`)

func hasAnalysisSections(rep *output.Report) bool {
	for i := range rep.Outputs {
		md := rep.Outputs[i].Markdown
		if md == nil {
			continue
		}
		for _, s := range md.Sections {
			if analysisSectionRe.MatchString(s.Heading) {
				return true
			}
		}
	}
	return false
}

// Security patterns are fatal on match: a leaked credential or an
// injection-risk call in output headed for a public comment fails the job
// no matter what the process exit code said.
var securityPatterns = []struct {
	re   *regexp.Regexp
	desc string
}{
	{regexp.MustCompile(`AWS_SECRET`), "embedded AWS secret"},
	{regexp.MustCompile(`(?i)\bapi[_-]?key\s*[:=]`), "embedded API key assignment"},
	{regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`), "embedded private key block"},
	{regexp.MustCompile(`(?i)\b(ghp|gho|github_pat)_[A-Za-z0-9_]{20,}`), "embedded access token"},
	{regexp.MustCompile(`\b(eval|exec|system)\s*\(`), "injection-risk function call"},
}

var pathTraversalRe = regexp.MustCompile(`\.\./\.\./`)

func checkSecurity(rep *output.Report, result *Report) {
	for i := range rep.Outputs {
		o := &rep.Outputs[i]
		content := outputText(o)
		for _, p := range securityPatterns {
			if p.re.MatchString(content) {
				result.addError("security: %s detected in output %s", p.desc, o.Name)
				result.SecurityFatal = true
			}
		}
		if pathTraversalRe.MatchString(content) {
			result.addWarning("output %s references path-traversal sequences", o.Name)
		}
	}
}

const (
	maxReasonableDuration = 45 * time.Minute
	maxReasonableBytes    = 10 << 20
	maxReasonableFiles    = 50
	maxReasonableBlocks   = 30
)

// checkPerformance warns, never fails, on runs that look pathological.
func checkPerformance(rep *output.Report, vctx Context, result *Report) {
	if vctx.Duration > maxReasonableDuration {
		result.addWarning("run took %s, above the expected ceiling", vctx.Duration.Round(time.Second))
	}
	if rep.Metadata.FileCount > maxReasonableFiles {
		result.addWarning("run produced %d output files", rep.Metadata.FileCount)
	}

	var totalBytes int64
	var codeBlocks int
	for i := range rep.Outputs {
		totalBytes += rep.Outputs[i].SizeBytes
		if md := rep.Outputs[i].Markdown; md != nil {
			codeBlocks += len(md.CodeBlocks)
		}
	}
	if totalBytes > maxReasonableBytes {
		result.addWarning("total output size %d bytes exceeds the expected ceiling", totalBytes)
	}
	if codeBlocks > maxReasonableBlocks {
		result.addWarning("output contains %d code blocks", codeBlocks)
	}
}

// outputText flattens an output's human-readable content for pattern
// scanning.
func outputText(o *output.Output) string {
	var b strings.Builder
	b.WriteString(o.Summary)
	b.WriteString("\n")
	switch {
	case o.Raw != "":
		b.WriteString(o.Raw)
	case o.Markdown != nil:
		for _, s := range o.Markdown.Sections {
			b.WriteString(s.Heading)
			b.WriteString("\n")
			b.WriteString(s.Body)
			b.WriteString("\n")
		}
		for _, c := range o.Markdown.CodeBlocks {
			b.WriteString(c.Code)
			b.WriteString("\n")
		}
	case o.Log != nil:
		for _, e := range o.Log.Entries {
			b.WriteString(e.Message)
			b.WriteString("\n")
		}
	case o.JSON != nil:
		b.WriteString(jsonText(o.JSON.Data))
	case o.Diff != nil:
		b.WriteString(o.Diff.Text)
		b.WriteString("\n")
	}
	return b.String()
}

func jsonText(v interface{}) string {
	var b strings.Builder
	var walk func(interface{})
	walk = func(v interface{}) {
		switch t := v.(type) {
		case string:
			b.WriteString(t)
			b.WriteString("\n")
		case map[string]interface{}:
			for k, vv := range t {
				b.WriteString(k)
				b.WriteString("\n")
				walk(vv)
			}
		case []interface{}:
			for _, vv := range t {
				walk(vv)
			}
		}
	}
	walk(v)
	return b.String()
}
