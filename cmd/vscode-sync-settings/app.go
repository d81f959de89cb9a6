package main

import (
	"fmt"
	"os"

	"github.com/lazyyq/vscode-sync-settings/internal/extensions"
	"github.com/lazyyq/vscode-sync-settings/internal/orchestrator"
	"github.com/lazyyq/vscode-sync-settings/internal/paths"
	"github.com/lazyyq/vscode-sync-settings/internal/profiles"
	"github.com/lazyyq/vscode-sync-settings/internal/repository"
	"github.com/lazyyq/vscode-sync-settings/internal/settings"
)

// app wires the stores and engines behind every command. Built fresh
// per invocation; nothing global.
type app struct {
	confDir string
	store   *settings.Store
	cfg     *settings.Config
	handle  *repository.Handle
	orch    *orchestrator.Orchestrator
	mgr     *profiles.Manager
}

func newApp() (*app, error) {
	confDir := paths.ConfDir()
	if v := os.Getenv("VSCODE_SYNC_SETTINGS_HOME"); v != "" {
		confDir = v
	}

	store := settings.NewStore(paths.ConfigFile(confDir))
	cfg, err := store.Load()
	if err != nil {
		return nil, err
	}

	handle := repository.NewHandle(store)
	orch := orchestrator.New(store, handle, &extensions.CLI{Bin: cfg.Editor.Command}, paths.StateDir(confDir), nil)

	return &app{
		confDir: confDir,
		store:   store,
		cfg:     cfg,
		handle:  handle,
		orch:    orch,
		mgr:     profiles.NewManager(store, handle),
	}, nil
}

// Message weights for the notification filter.
const (
	msgMajor = 1
	msgMinor = 2
	msgInfo  = 3
)

func notificationRank(level string) int {
	switch level {
	case settings.NotifyNone:
		return 0
	case settings.NotifyMajor:
		return msgMajor
	case settings.NotifyMinor:
		return msgMinor
	default:
		return msgInfo
	}
}

// notify prints a message if the configured verbosity admits its weight.
func (a *app) notify(weight int, format string, args ...any) {
	if weight <= notificationRank(a.cfg.Notification) {
		fmt.Printf(format+"\n", args...)
	}
}
