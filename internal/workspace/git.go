package workspace

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// GitRunner provides git commands. Interface for testing.
type GitRunner interface {
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// ExecGit implements GitRunner using exec.CommandContext.
type ExecGit struct{}

func (g *ExecGit) Run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out)), fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// cloneRepo performs a shallow, single-branch clone of repo at branch into dest.
func cloneRepo(ctx context.Context, git GitRunner, repo, branch, dest string) error {
	args := []string{"clone", "--depth", "1", "--single-branch"}
	if branch != "" {
		args = append(args, "--branch", branch)
	}
	args = append(args, repo, dest)
	if _, err := git.Run(ctx, "", args...); err != nil {
		return &GitError{Op: "clone", Err: err}
	}
	return nil
}

// checkoutHead fetches and checks out the PR head branch inside a cloned
// repo. On fetch failure the clone stays on the base branch; this is the
// one internal fallback the workspace layer is allowed.
func checkoutHead(ctx context.Context, git GitRunner, repoDir, headBranch string) error {
	if _, err := git.Run(ctx, repoDir, "fetch", "--depth", "1", "origin", headBranch); err != nil {
		return &GitError{Op: "fetch " + headBranch, Err: err}
	}
	if _, err := git.Run(ctx, repoDir, "checkout", "FETCH_HEAD"); err != nil {
		return &GitError{Op: "checkout " + headBranch, Err: err}
	}
	return nil
}

// removeWorktrees unregisters any git worktrees rooted under the workspace
// before its directory tree is deleted, so the clone's metadata keeps no
// dangling references.
func removeWorktrees(ctx context.Context, git GitRunner, repoDir string) {
	out, err := git.Run(ctx, repoDir, "worktree", "list", "--porcelain")
	if err != nil {
		return
	}
	for _, line := range strings.Split(out, "\n") {
		path, ok := strings.CutPrefix(line, "worktree ")
		if !ok || path == repoDir {
			continue
		}
		_, _ = git.Run(ctx, repoDir, "worktree", "remove", "--force", path)
	}
	_, _ = git.Run(ctx, repoDir, "worktree", "prune")
}
