// Package profiles manages named profiles: one repository subdirectory
// per profile, with exactly one profile active at a time.
package profiles

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/lazyyq/vscode-sync-settings/internal/repository"
	"github.com/lazyyq/vscode-sync-settings/internal/settings"
	"github.com/lazyyq/vscode-sync-settings/internal/snapshot"
)

var (
	// ErrDuplicateProfile is returned by Create for an existing name.
	ErrDuplicateProfile = errors.New("profile already exists")
	// ErrProfileNotFound is returned for operations on unknown names.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrActiveProfile is returned by Delete for the active profile.
	ErrActiveProfile = errors.New("profile is active")
)

// Downloader runs a repo-to-local sync for one profile. Implemented by
// the orchestrator; injected here so switching can refresh local state.
type Downloader interface {
	Download(ctx context.Context, profile string) error
}

// Manager creates, deletes and switches profiles.
type Manager struct {
	store  *settings.Store
	handle *repository.Handle
}

// NewManager returns a manager over the given store and repository.
func NewManager(store *settings.Store, handle *repository.Handle) *Manager {
	return &Manager{store: store, handle: handle}
}

// List returns the profile names present in the repository, sorted.
func (m *Manager) List() ([]string, error) {
	repo, err := m.handle.Repo()
	if err != nil {
		return nil, err
	}
	return repo.ProfileNames()
}

// Active returns the active profile name from configuration.
func (m *Manager) Active() (string, error) {
	cfg, err := m.store.Get()
	if err != nil {
		return "", err
	}
	return cfg.Profile, nil
}

// Exists reports whether a profile subdirectory is present.
func (m *Manager) Exists(name string) (bool, error) {
	repo, err := m.handle.Repo()
	if err != nil {
		return false, err
	}
	info, err := os.Stat(repo.ProfileDir(name))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("checking profile %q: %w", name, err)
	}
	return info.IsDir(), nil
}

// Create provisions a new profile subdirectory with empty documents and
// commits it. Fails with ErrDuplicateProfile if the name is taken.
func (m *Manager) Create(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	repo, err := m.handle.Repo()
	if err != nil {
		return err
	}
	exists, err := m.Exists(name)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %q", ErrDuplicateProfile, name)
	}

	empty := snapshot.Snapshot{
		Documents: map[string]snapshot.Document{
			"settings.json":    {},
			"keybindings.json": {},
		},
	}
	if err := snapshot.Write(repo.ProfileDir(name), empty, snapshot.WithExtensionsFile()); err != nil {
		return err
	}
	if _, err := repo.Commit(fmt.Sprintf("Create profile %s", name)); err != nil {
		return err
	}
	return nil
}

// Delete removes a profile subdirectory and commits the removal. The
// active profile cannot be deleted; switch away first.
func (m *Manager) Delete(name string) error {
	active, err := m.Active()
	if err != nil {
		return err
	}
	if name == active {
		return fmt.Errorf("%w: %q", ErrActiveProfile, name)
	}
	exists, err := m.Exists(name)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %q", ErrProfileNotFound, name)
	}

	repo, err := m.handle.Repo()
	if err != nil {
		return err
	}
	if err := os.RemoveAll(repo.ProfileDir(name)); err != nil {
		return fmt.Errorf("removing profile %q: %w", name, err)
	}
	if _, err := repo.Commit(fmt.Sprintf("Delete profile %s", name)); err != nil {
		return err
	}
	return nil
}

// SwitchTo makes name the active profile and downloads its state so
// local settings reflect the new profile before the switch completes.
// If the download fails the previous profile is restored and no local
// files have been touched (the download applies atomically or not at
// all).
func (m *Manager) SwitchTo(ctx context.Context, name string, d Downloader) error {
	exists, err := m.Exists(name)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %q", ErrProfileNotFound, name)
	}

	prev, err := m.Active()
	if err != nil {
		return err
	}
	if prev == name {
		return nil
	}

	if err := m.store.SetProfile(name); err != nil {
		return err
	}
	if err := d.Download(ctx, name); err != nil {
		if rbErr := m.store.SetProfile(prev); rbErr != nil {
			return fmt.Errorf("switch failed (%v) and rollback failed: %w", err, rbErr)
		}
		return fmt.Errorf("switching to %q: %w", name, err)
	}
	return nil
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("profile name must not be empty")
	}
	if strings.ContainsAny(name, `/\`) || name == ".git" || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid profile name %q", name)
	}
	return nil
}
