// Package configgen produces the run-configuration artifact the agent
// process reads from its workspace. Templates use {{variable}} expansion
// and {{#if variable}}...{{/if}} conditional blocks.
package configgen

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	varRe      = regexp.MustCompile(`\{\{([a-zA-Z_][a-zA-Z0-9_]*)\}\}`)
	ifOpenRe   = regexp.MustCompile(`\{\{#if\s+([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)
	ifCloseStr = "{{/if}}"
)

// Vars maps template variable names to values.
type Vars map[string]string

// Render expands a template with the given variables. {{#if}} blocks are
// kept only when the variable is non-empty; a missing plain variable is an
// error so broken configs never reach the agent.
func Render(tmpl string, vars Vars) (string, error) {
	result, err := expandConditionals(tmpl, vars)
	if err != nil {
		return "", err
	}

	var missing []string
	expanded := varRe.ReplaceAllStringFunc(result, func(match string) string {
		name := varRe.FindStringSubmatch(match)[1]
		if val, ok := vars[name]; ok {
			return val
		}
		missing = append(missing, name)
		return match
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("missing template variables: %s", strings.Join(missing, ", "))
	}
	return expanded, nil
}

// expandConditionals resolves {{#if}} blocks innermost-first so nesting
// works: each pass finds the first close tag and pairs it with the nearest
// preceding open tag.
func expandConditionals(tmpl string, vars Vars) (string, error) {
	result := tmpl
	for {
		closeIdx := strings.Index(result, ifCloseStr)
		if closeIdx == -1 {
			return result, nil
		}

		prefix := result[:closeIdx]
		openLocs := ifOpenRe.FindAllStringIndex(prefix, -1)
		if openLocs == nil {
			return "", fmt.Errorf("dangling %s without matching open tag", ifCloseStr)
		}
		open := openLocs[len(openLocs)-1]

		name := ifOpenRe.FindStringSubmatch(prefix[open[0]:open[1]])[1]
		body := result[open[1]:closeIdx]

		var replacement string
		if vars[name] != "" {
			replacement = body
		}
		result = result[:open[0]] + replacement + result[closeIdx+len(ifCloseStr):]
	}
}
