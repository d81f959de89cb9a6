package settings_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lazyyq/vscode-sync-settings/internal/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "settings.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("missing file yields defaults", func(t *testing.T) {
		store := settings.NewStore(filepath.Join(t.TempDir(), "settings.yml"))
		cfg, err := store.Load()
		require.NoError(t, err)
		assert.Equal(t, "main", cfg.Profile)
		assert.Equal(t, settings.NotifyAll, cfg.Notification)
		assert.NotEmpty(t, cfg.Repository.Path)
		assert.Equal(t, "code", cfg.Editor.Command)
	})

	t.Run("parses configured values", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), `
repository:
  url: git@example.com:me/settings.git
  path: /tmp/sync-repo
profile: work
notification: minor
crons:
  download: "0 * * * *"
extensions:
  track_versions: true
`)
		store := settings.NewStore(path)
		cfg, err := store.Load()
		require.NoError(t, err)
		assert.Equal(t, "work", cfg.Profile)
		assert.Equal(t, "git@example.com:me/settings.git", cfg.Repository.URL)
		assert.Equal(t, "/tmp/sync-repo", cfg.Repository.Path)
		assert.Equal(t, settings.NotifyMinor, cfg.Notification)
		assert.Equal(t, "0 * * * *", cfg.Crons["download"])
		assert.True(t, cfg.Extensions.TrackVersions)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), `{{{`)
		_, err := settings.NewStore(path).Load()
		assert.Error(t, err)
	})

	t.Run("invalid notification level", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), "notification: loud\n")
		_, err := settings.NewStore(path).Load()
		assert.ErrorContains(t, err, "notification")
	})

	t.Run("invalid cron operation", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), "crons:\n  destroy: \"* * * * *\"\n")
		_, err := settings.NewStore(path).Load()
		assert.ErrorContains(t, err, "cron")
	})

	t.Run("reload refreshes without invalidating prior reference", func(t *testing.T) {
		dir := t.TempDir()
		path := writeConfig(t, dir, "profile: one\n")
		store := settings.NewStore(path)

		first, err := store.Load()
		require.NoError(t, err)

		writeConfig(t, dir, "profile: two\n")
		second, err := store.Load()
		require.NoError(t, err)

		assert.Equal(t, "one", first.Profile)
		assert.Equal(t, "two", second.Profile)
	})
}

func TestGet(t *testing.T) {
	t.Run("before load", func(t *testing.T) {
		store := settings.NewStore(filepath.Join(t.TempDir(), "settings.yml"))
		_, err := store.Get()
		assert.ErrorIs(t, err, settings.ErrNotLoaded)
	})

	t.Run("after load", func(t *testing.T) {
		store := settings.NewStore(filepath.Join(t.TempDir(), "settings.yml"))
		_, err := store.Load()
		require.NoError(t, err)
		cfg, err := store.Get()
		require.NoError(t, err)
		assert.Equal(t, "main", cfg.Profile)
	})

	t.Run("failed load keeps store unloaded", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), `{{{`)
		store := settings.NewStore(path)
		_, err := store.Load()
		require.Error(t, err)
		_, err = store.Get()
		assert.ErrorIs(t, err, settings.ErrNotLoaded)
	})
}

func TestSetProfile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "profile: main\n")
	store := settings.NewStore(path)
	_, err := store.Load()
	require.NoError(t, err)

	require.NoError(t, store.SetProfile("work"))

	cfg, err := store.Get()
	require.NoError(t, err)
	assert.Equal(t, "work", cfg.Profile)

	// Persisted: a fresh store sees the new profile.
	fresh, err := settings.NewStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "work", fresh.Profile)
}
