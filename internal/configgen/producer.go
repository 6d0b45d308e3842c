package configgen

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/tcooper/warden/internal/job"
	"github.com/tcooper/warden/internal/workspace"
)

// ConfigFileName is the artifact name the agent expects inside its
// workspace config directory.
const ConfigFileName = "run.yaml"

// Producer generates the serialized run configuration for a job. The
// returned path points inside the workspace config directory; warnings are
// non-fatal generation notes.
type Producer interface {
	Produce(ctx context.Context, j *job.Job, ws *workspace.Workspace) (path string, warnings []string, err error)
}

// TemplateProducer renders the builtin per-request-type templates. It is
// the normal production Producer.
type TemplateProducer struct{}

func (TemplateProducer) Produce(ctx context.Context, j *job.Job, ws *workspace.Workspace) (string, []string, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}

	var warnings []string

	tmpl, ok := builtinTemplates[j.Request.Type]
	if !ok {
		return "", nil, fmt.Errorf("no config template for request type %q", j.Request.Type)
	}
	if j.Params.FallbackConfig {
		// A recovery strategy asked for the safe path.
		return minimalConfig(j, ws)
	}

	vars := baseVars(j, ws)
	vars["trigger_context"] = j.Request.TriggerContext
	vars["base_branch"] = j.Request.BaseBranch
	vars["head_branch"] = j.Request.HeadBranch
	if j.Request.Type == job.RequestPullRequest && j.Request.BaseBranch == "" {
		vars["base_branch"] = "main"
		warnings = append(warnings, "request carried no base branch; defaulting to main")
	}
	if j.Params.ReducedScope {
		vars["reduced_scope"] = "true"
	}
	if j.Params.Simplified {
		vars["simplified"] = "true"
	}

	rendered, err := Render(tmpl, vars)
	if err != nil {
		return "", warnings, fmt.Errorf("render config: %w", err)
	}

	path := filepath.Join(ws.ConfigDir, ConfigFileName)
	if err := workspace.WriteAtomic(path, []byte(rendered)); err != nil {
		return "", warnings, fmt.Errorf("write config: %w", err)
	}
	return path, warnings, nil
}

// Minimal returns a Producer that always writes the fallback config. Used
// as the stage-local recovery for config generation.
func Minimal() Producer {
	return minimalProducer{}
}

type minimalProducer struct{}

func (minimalProducer) Produce(ctx context.Context, j *job.Job, ws *workspace.Workspace) (string, []string, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	return minimalConfig(j, ws)
}

func minimalConfig(j *job.Job, ws *workspace.Workspace) (string, []string, error) {
	vars := baseVars(j, ws)
	vars["task"] = taskName(j.Request.Type)

	rendered, err := Render(minimalTemplate, vars)
	if err != nil {
		return "", nil, fmt.Errorf("render minimal config: %w", err)
	}

	path := filepath.Join(ws.ConfigDir, ConfigFileName)
	if err := workspace.WriteAtomic(path, []byte(rendered)); err != nil {
		return "", nil, fmt.Errorf("write minimal config: %w", err)
	}
	return path, []string{"using minimal fallback configuration"}, nil
}

func baseVars(j *job.Job, ws *workspace.Workspace) Vars {
	return Vars{
		"repo":        j.Request.Repo,
		"item_number": strconv.Itoa(j.Request.ItemNumber),
		"repo_dir":    ws.RepoDir,
		"output_dir":  ws.OutputDir,
		"timeout":     j.Params.Timeout.String(),
	}
}

func taskName(t job.RequestType) string {
	switch t {
	case job.RequestPullRequest:
		return "review-pull-request"
	case job.RequestInlineComment:
		return "answer-inline-comment"
	default:
		return "analyze-issue"
	}
}
