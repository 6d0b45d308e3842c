package configgen

import "github.com/tcooper/warden/internal/job"

// builtinTemplates maps request type to its run-config template. The
// rendered artifact is the YAML file the agent reads from its workspace
// config directory.
var builtinTemplates = map[job.RequestType]string{
	job.RequestSingleIssue:   singleIssueTemplate,
	job.RequestPullRequest:   pullRequestTemplate,
	job.RequestInlineComment: inlineCommentTemplate,
}

const singleIssueTemplate = `task: analyze-issue
repository: {{repo}}
issue: {{item_number}}
workspace:
  repo_dir: {{repo_dir}}
  output_dir: {{output_dir}}
timeout: {{timeout}}
{{#if trigger_context}}
context: |
  {{trigger_context}}
{{/if}}
{{#if reduced_scope}}
scope: reduced
{{/if}}
{{#if simplified}}
mode: simplified
{{/if}}
instructions: |
  Analyze the referenced issue against the checked-out repository.
  Write findings as summary.md and result.json into the output directory.
`

const pullRequestTemplate = `task: review-pull-request
repository: {{repo}}
pull_request: {{item_number}}
base_branch: {{base_branch}}
{{#if head_branch}}
head_branch: {{head_branch}}
{{/if}}
workspace:
  repo_dir: {{repo_dir}}
  output_dir: {{output_dir}}
timeout: {{timeout}}
{{#if reduced_scope}}
scope: reduced
{{/if}}
{{#if simplified}}
mode: simplified
{{/if}}
instructions: |
  Review the checked-out head branch against {{base_branch}}.
  Write the review as summary.md and any suggested changes as changes.diff
  into the output directory.
`

const inlineCommentTemplate = `task: answer-inline-comment
repository: {{repo}}
item: {{item_number}}
workspace:
  repo_dir: {{repo_dir}}
  output_dir: {{output_dir}}
timeout: {{timeout}}
{{#if trigger_context}}
comment: |
  {{trigger_context}}
{{/if}}
instructions: |
  Answer the inline comment in the context of the surrounding code.
  Write the reply as summary.md into the output directory.
`

// minimalTemplate is the fallback when normal generation fails: no
// optional blocks, nothing that can go wrong.
const minimalTemplate = `task: {{task}}
repository: {{repo}}
workspace:
  repo_dir: {{repo_dir}}
  output_dir: {{output_dir}}
timeout: {{timeout}}
instructions: |
  Perform the requested task and write results into the output directory.
`
