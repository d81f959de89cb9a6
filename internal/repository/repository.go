// Package repository wraps the version-controlled directory that holds
// one subdirectory per profile plus a shared settings.yml at its root.
package repository

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/lazyyq/vscode-sync-settings/internal/git"
	"github.com/lazyyq/vscode-sync-settings/internal/settings"
)

// NetworkError wraps a failed pull or push. The local working tree is
// left intact: a failed pull changes nothing, a failed push keeps local
// commits for retry.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Repository is a local clone of the sync repo.
type Repository struct {
	Dir string
	url string
}

// Status describes the repository's local state.
type Status struct {
	Branch   string
	Head     string
	Clean    bool
	Unpushed bool
}

// open resolves the repository from configuration: reuse an existing
// clone, clone from the configured URL, or init a fresh local-only repo.
func open(cfg *settings.Config) (*Repository, error) {
	dir := cfg.Repository.Path

	if !git.IsRepo(dir) {
		switch {
		case cfg.Repository.URL != "":
			if err := git.Clone(cfg.Repository.URL, dir); err != nil {
				return nil, &NetworkError{Op: "clone", Err: err}
			}
		default:
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("creating repository dir: %w", err)
			}
			if err := git.Init(dir); err != nil {
				return nil, err
			}
		}
	}

	repo := &Repository{Dir: dir, url: cfg.Repository.URL}
	if err := repo.ensureSharedConfig(); err != nil {
		return nil, err
	}
	return repo, nil
}

// ensureSharedConfig makes sure settings.yml exists at the repo root and
// is committed, so a fresh repo is immediately valid.
func (r *Repository) ensureSharedConfig() error {
	path := filepath.Join(r.Dir, "settings.yml")
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("checking settings.yml: %w", err)
	}
	if err := os.WriteFile(path, []byte("# shared vscode-sync-settings configuration\n"), 0644); err != nil {
		return fmt.Errorf("writing settings.yml: %w", err)
	}
	if _, err := git.Run(r.Dir, "add", "settings.yml"); err != nil {
		return err
	}
	if err := git.Commit(r.Dir, "Initialize sync repository"); err != nil {
		return err
	}
	return nil
}

// SharedConfigPath returns the repo-root settings.yml.
func (r *Repository) SharedConfigPath() string {
	return filepath.Join(r.Dir, "settings.yml")
}

// ProfileDir returns the subdirectory holding a profile's files.
func (r *Repository) ProfileDir(name string) string {
	return filepath.Join(r.Dir, name)
}

// ProfileNames lists the profile subdirectories, sorted.
func (r *Repository) ProfileNames() ([]string, error) {
	entries, err := os.ReadDir(r.Dir)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && e.Name() != ".git" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// HasRemote reports whether an origin remote is configured.
func (r *Repository) HasRemote() bool {
	return git.HasRemote(r.Dir, "origin")
}

// Status returns branch, cleanliness and unpushed-commit state.
func (r *Repository) Status() (Status, error) {
	branch, err := git.CurrentBranch(r.Dir)
	if err != nil {
		return Status{}, fmt.Errorf("resolving branch: %w", err)
	}
	clean, err := git.IsClean(r.Dir)
	if err != nil {
		return Status{}, err
	}
	st := Status{
		Branch:   branch,
		Clean:    clean,
		Unpushed: r.HasRemote() && git.HasUnpushedCommits(r.Dir),
	}
	// Unborn branches have no HEAD yet; leave Head empty then.
	if sha, err := git.RevParse(r.Dir, "HEAD"); err == nil && len(sha) >= 8 {
		st.Head = sha[:8]
	}
	return st, nil
}

// Pull fast-forwards from origin. A repo without a remote is a no-op.
// Failures wrap into NetworkError and leave the working tree intact.
func (r *Repository) Pull() error {
	if !r.HasRemote() {
		return nil
	}
	if err := git.Pull(r.Dir); err != nil {
		return &NetworkError{Op: "pull", Err: err}
	}
	return nil
}

// Commit stages everything and commits. When the tree is clean relative
// to HEAD it returns (false, nil) without creating a commit.
func (r *Repository) Commit(message string) (bool, error) {
	if err := git.AddAll(r.Dir); err != nil {
		return false, err
	}
	clean, err := git.IsClean(r.Dir)
	if err != nil {
		return false, err
	}
	if clean {
		return false, nil
	}
	if err := git.Commit(r.Dir, message); err != nil {
		return false, err
	}
	return true, nil
}

// Push sends local commits to origin. A repo without a remote is a
// no-op. Failures wrap into NetworkError; commits stay local for retry.
func (r *Repository) Push() error {
	if !r.HasRemote() {
		return nil
	}
	var err error
	if git.HasUpstream(r.Dir) {
		err = git.Push(r.Dir)
	} else {
		branch, berr := git.CurrentBranch(r.Dir)
		if berr != nil {
			return fmt.Errorf("resolving branch: %w", berr)
		}
		err = git.PushWithUpstream(r.Dir, "origin", branch)
	}
	if err != nil {
		return &NetworkError{Op: "push", Err: err}
	}
	return nil
}
