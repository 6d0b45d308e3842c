// Package validate checks a parsed output report for structural, quality,
// and security problems before the result is handed to the reporting layer.
package validate

import (
	"fmt"
	"strings"
	"time"

	"github.com/tcooper/warden/internal/job"
	"github.com/tcooper/warden/internal/output"
)

// Context carries the job facts the passes judge the report against.
type Context struct {
	RequestType job.RequestType
	ExitCode    int
	Duration    time.Duration
}

// Report is the validator's verdict. Errors are fatal; only the structure
// and security passes may produce them. Warnings never fail a result.
// SecurityFatal is set when the security pass matched: those failures fail
// the job outright, other fatal errors merely mark the result low-quality.
type Report struct {
	Valid         bool              `json:"valid"`
	SecurityFatal bool              `json:"security_fatal,omitempty"`
	Errors        []string          `json:"errors,omitempty"`
	Warnings      []string          `json:"warnings,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// FatalError is returned by the reporting stage when the security pass
// failed a result. It is never retried.
type FatalError struct {
	Errors []string
}

func (e *FatalError) Error() string {
	return "validation failed: " + strings.Join(e.Errors, "; ")
}

func (r *Report) addError(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Valid = false
}

func (r *Report) addWarning(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Validate runs the structure, content-quality, business-rule, security,
// and performance passes over a parsed report. A security match is fatal
// regardless of the process exit code.
func Validate(rep *output.Report, vctx Context) *Report {
	result := &Report{
		Valid: true,
		Metadata: map[string]string{
			"checked_at":   time.Now().UTC().Format(time.RFC3339),
			"request_type": string(vctx.RequestType),
		},
	}

	if rep == nil {
		result.addError("no output report produced")
		return result
	}

	checkStructure(rep, result)
	checkContentQuality(rep, result)
	checkBusinessRules(rep, vctx.RequestType, result)
	checkSecurity(rep, result)
	checkPerformance(rep, vctx, result)

	return result
}
