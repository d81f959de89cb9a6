// Package git shells out to the git binary. The sync repository is a
// plain working tree; nothing here knows about profiles or snapshots.
package git

import (
	"fmt"
	"os/exec"
	"strings"
)

// Run executes a git command in the given directory and returns trimmed
// combined output.
func Run(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out)), err
	}
	return strings.TrimSpace(string(out)), nil
}

// IsRepo returns true if dir is a git repository.
func IsRepo(dir string) bool {
	_, err := Run(dir, "rev-parse", "--git-dir")
	return err == nil
}

// IsClean returns true if the working tree has no uncommitted changes.
func IsClean(dir string) (bool, error) {
	out, err := Run(dir, "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("git status: %s", out)
	}
	return out == "", nil
}

// Init initializes a new repo in dir with local user config so commits
// work regardless of global git configuration.
func Init(dir string) error {
	if out, err := Run(dir, "init", "-b", "main"); err != nil {
		return fmt.Errorf("git init: %s", out)
	}
	if _, err := Run(dir, "config", "user.name", "vscode-sync-settings"); err != nil {
		return err
	}
	_, err := Run(dir, "config", "user.email", "vscode-sync-settings@localhost")
	return err
}

// Clone clones src into dst.
func Clone(src, dst string) error {
	cmd := exec.Command("git", "clone", src, dst)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git clone: %s", strings.TrimSpace(string(out)))
	}
	return nil
}

// AddAll stages every change in the working tree.
func AddAll(dir string) error {
	out, err := Run(dir, "add", "-A")
	if err != nil {
		return fmt.Errorf("git add: %s", out)
	}
	return nil
}

// Commit creates a commit with the given message.
func Commit(dir, message string) error {
	out, err := Run(dir, "commit", "-m", message)
	if err != nil {
		return fmt.Errorf("git commit: %s", out)
	}
	return nil
}

// Pull runs git pull --ff-only. A rejected or failed pull leaves the
// working tree as it was.
func Pull(dir string) error {
	out, err := Run(dir, "pull", "--ff-only")
	if err != nil {
		return fmt.Errorf("git pull: %s", out)
	}
	return nil
}

// NonFastForwardError is returned when a push is rejected because the
// remote has commits not in the local repo.
type NonFastForwardError struct {
	Output string
}

func (e *NonFastForwardError) Error() string {
	return e.Output
}

// Push runs git push. Returns NonFastForwardError if rejected due to
// diverged history; local commits are kept for retry in either case.
func Push(dir string) error {
	out, err := Run(dir, "push")
	if err != nil {
		if isNonFastForward(out) {
			return &NonFastForwardError{Output: out}
		}
		return fmt.Errorf("git push: %s", out)
	}
	return nil
}

// PushWithUpstream pushes and sets the upstream tracking branch.
func PushWithUpstream(dir, remote, branch string) error {
	out, err := Run(dir, "push", "-u", remote, branch)
	if err != nil {
		if isNonFastForward(out) {
			return &NonFastForwardError{Output: out}
		}
		return fmt.Errorf("git push: %s", out)
	}
	return nil
}

func isNonFastForward(output string) bool {
	return strings.Contains(output, "non-fast-forward") ||
		strings.Contains(output, "fetch first")
}

// RevParse returns the resolved SHA for a ref.
func RevParse(dir, ref string) (string, error) {
	return Run(dir, "rev-parse", ref)
}

// CurrentBranch returns the name of the current branch.
func CurrentBranch(dir string) (string, error) {
	return Run(dir, "rev-parse", "--abbrev-ref", "HEAD")
}

// HasRemote returns true if the named remote exists.
func HasRemote(dir, name string) bool {
	_, err := Run(dir, "remote", "get-url", name)
	return err == nil
}

// HasUpstream returns true if the current branch has an upstream
// tracking branch.
func HasUpstream(dir string) bool {
	_, err := Run(dir, "rev-parse", "--abbrev-ref", "@{u}")
	return err == nil
}

// HasCommits returns true once the repo has at least one commit.
func HasCommits(dir string) bool {
	_, err := Run(dir, "rev-parse", "HEAD")
	return err == nil
}

// HasUnpushedCommits returns true if there are local commits not yet on
// the upstream. With no upstream configured, any commit counts.
func HasUnpushedCommits(dir string) bool {
	if !HasUpstream(dir) {
		out, err := Run(dir, "rev-list", "HEAD")
		return err == nil && out != ""
	}
	out, err := Run(dir, "rev-list", "@{u}..HEAD")
	return err == nil && out != ""
}

// CommitCount returns the number of commits reachable from HEAD, 0 for
// an unborn branch.
func CommitCount(dir string) int {
	out, err := Run(dir, "rev-list", "--count", "HEAD")
	if err != nil {
		return 0
	}
	var n int
	fmt.Sscanf(out, "%d", &n)
	return n
}
