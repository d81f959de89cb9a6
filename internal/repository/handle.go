package repository

import (
	"sync"

	"github.com/lazyyq/vscode-sync-settings/internal/settings"
	"golang.org/x/sync/singleflight"
)

// Handle owns the process-wide Repository instance. Reload re-resolves
// it from the settings store; concurrent reloads coalesce into one
// in-flight resolution and every caller gets that result.
type Handle struct {
	store *settings.Store

	mu    sync.RWMutex
	repo  *Repository
	group singleflight.Group
}

// NewHandle creates a handle bound to the given store. The repository
// is resolved lazily on first use.
func NewHandle(store *settings.Store) *Handle {
	return &Handle{store: store}
}

// Repo returns the current repository, resolving it on first use.
func (h *Handle) Repo() (*Repository, error) {
	h.mu.RLock()
	repo := h.repo
	h.mu.RUnlock()
	if repo != nil {
		return repo, nil
	}
	return h.Reload()
}

// Reload re-reads configuration and replaces the repository instance.
// Callers arriving while a reload is in flight wait for that reload
// instead of starting another.
func (h *Handle) Reload() (*Repository, error) {
	v, err, _ := h.group.Do("reload", func() (any, error) {
		cfg, err := h.store.Load()
		if err != nil {
			return nil, err
		}
		repo, err := open(cfg)
		if err != nil {
			return nil, err
		}
		h.mu.Lock()
		h.repo = repo
		h.mu.Unlock()
		return repo, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Repository), nil
}
