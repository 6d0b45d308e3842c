package configgen

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tcooper/warden/internal/job"
	"github.com/tcooper/warden/internal/workspace"
)

func TestRender_SimpleVars(t *testing.T) {
	tmpl := "repository: {{repo}}\nissue: {{item_number}}\n"
	result, err := Render(tmpl, Vars{"repo": "git@example.com:a/b.git", "item_number": "42"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "repository: git@example.com:a/b.git\nissue: 42\n"
	if result != expected {
		t.Errorf("expected %q, got %q", expected, result)
	}
}

func TestRender_MissingVar(t *testing.T) {
	_, err := Render("repo: {{repo}}, issue: {{item_number}}", Vars{"repo": "x"})
	if err == nil {
		t.Fatal("expected error for missing variable")
	}
	if !strings.Contains(err.Error(), "item_number") {
		t.Errorf("error should mention missing variable, got: %v", err)
	}
}

func TestRender_Conditionals(t *testing.T) {
	tmpl := "base\n{{#if extra}}extra: {{extra}}\n{{/if}}end\n"

	withVar, err := Render(tmpl, Vars{"extra": "yes"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if withVar != "base\nextra: yes\nend\n" {
		t.Errorf("got %q", withVar)
	}

	withoutVar, err := Render(tmpl, Vars{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if withoutVar != "base\nend\n" {
		t.Errorf("got %q", withoutVar)
	}
}

func TestRender_NestedConditionals(t *testing.T) {
	tmpl := "{{#if a}}A{{#if b}}B{{/if}}{{/if}}"

	result, err := Render(tmpl, Vars{"a": "1", "b": "1"})
	if err != nil || result != "AB" {
		t.Errorf("got %q, %v", result, err)
	}
	result, err = Render(tmpl, Vars{"a": "1"})
	if err != nil || result != "A" {
		t.Errorf("got %q, %v", result, err)
	}
	result, err = Render(tmpl, Vars{})
	if err != nil || result != "" {
		t.Errorf("got %q, %v", result, err)
	}
}

func TestRender_DanglingClose(t *testing.T) {
	if _, err := Render("text {{/if}} more", Vars{}); err == nil {
		t.Fatal("expected error for dangling close tag")
	}
}

func testWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()
	root := t.TempDir()
	ws := &workspace.Workspace{
		Root:      root,
		RepoDir:   filepath.Join(root, "repo"),
		ConfigDir: filepath.Join(root, "config"),
		OutputDir: filepath.Join(root, "output"),
	}
	if err := os.MkdirAll(ws.ConfigDir, 0o755); err != nil {
		t.Fatal(err)
	}
	return ws
}

func TestProduceSingleIssue(t *testing.T) {
	ws := testWorkspace(t)
	j := job.New("j1", job.Request{
		Type:           job.RequestSingleIssue,
		Repo:           "git@example.com:a/b.git",
		ItemNumber:     7,
		TriggerContext: "please look at the flaky test",
	}, 3, 30*time.Minute)

	path, warnings, err := TemplateProducer{}.Produce(context.Background(), j, ws)
	if err != nil {
		t.Fatalf("produce: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("warnings: %v", warnings)
	}
	if filepath.Base(path) != ConfigFileName {
		t.Errorf("path = %s", path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(content)
	for _, want := range []string{"task: analyze-issue", "issue: 7", "please look at the flaky test", "timeout: 30m0s"} {
		if !strings.Contains(text, want) {
			t.Errorf("config missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "scope: reduced") {
		t.Error("reduced scope should be absent by default")
	}
}

func TestProducePullRequestDefaultsBaseBranch(t *testing.T) {
	ws := testWorkspace(t)
	j := job.New("j1", job.Request{
		Type:       job.RequestPullRequest,
		Repo:       "git@example.com:a/b.git",
		ItemNumber: 12,
		HeadBranch: "feature/x",
	}, 3, 30*time.Minute)

	path, warnings, err := TemplateProducer{}.Produce(context.Background(), j, ws)
	if err != nil {
		t.Fatalf("produce: %v", err)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "base branch") {
		t.Errorf("warnings: %v", warnings)
	}

	content, _ := os.ReadFile(path)
	if !strings.Contains(string(content), "base_branch: main") {
		t.Errorf("config:\n%s", content)
	}
	if !strings.Contains(string(content), "head_branch: feature/x") {
		t.Errorf("config:\n%s", content)
	}
}

func TestProduceRecoveryFlags(t *testing.T) {
	ws := testWorkspace(t)
	j := job.New("j1", job.Request{
		Type:       job.RequestSingleIssue,
		Repo:       "git@example.com:a/b.git",
		ItemNumber: 7,
	}, 3, 30*time.Minute)
	j.Params.ReducedScope = true
	j.Params.Simplified = true

	path, _, err := TemplateProducer{}.Produce(context.Background(), j, ws)
	if err != nil {
		t.Fatalf("produce: %v", err)
	}
	content, _ := os.ReadFile(path)
	if !strings.Contains(string(content), "scope: reduced") || !strings.Contains(string(content), "mode: simplified") {
		t.Errorf("config:\n%s", content)
	}
}

func TestProduceFallbackUsesMinimal(t *testing.T) {
	ws := testWorkspace(t)
	j := job.New("j1", job.Request{
		Type:       job.RequestPullRequest,
		Repo:       "git@example.com:a/b.git",
		ItemNumber: 12,
	}, 3, 30*time.Minute)
	j.Params.FallbackConfig = true

	path, warnings, err := TemplateProducer{}.Produce(context.Background(), j, ws)
	if err != nil {
		t.Fatalf("produce: %v", err)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "minimal fallback") {
		t.Errorf("warnings: %v", warnings)
	}
	content, _ := os.ReadFile(path)
	if !strings.Contains(string(content), "task: review-pull-request") {
		t.Errorf("config:\n%s", content)
	}
	if strings.Contains(string(content), "{{") {
		t.Errorf("unexpanded template remains:\n%s", content)
	}
}

func TestProduceUnknownType(t *testing.T) {
	ws := testWorkspace(t)
	j := job.New("j1", job.Request{Type: "mystery"}, 3, time.Minute)
	if _, _, err := (TemplateProducer{}).Produce(context.Background(), j, ws); err == nil {
		t.Fatal("expected error for unknown request type")
	}
}

func TestMinimalProducer(t *testing.T) {
	ws := testWorkspace(t)
	j := job.New("j1", job.Request{
		Type: job.RequestSingleIssue,
		Repo: "git@example.com:a/b.git",
	}, 3, time.Minute)

	path, warnings, err := Minimal().Produce(context.Background(), j, ws)
	if err != nil {
		t.Fatalf("produce: %v", err)
	}
	if len(warnings) == 0 {
		t.Error("expected fallback warning")
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config file missing: %v", err)
	}
}
