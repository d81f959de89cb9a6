package orchestrator_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/lazyyq/vscode-sync-settings/internal/git"
	"github.com/lazyyq/vscode-sync-settings/internal/orchestrator"
	"github.com/lazyyq/vscode-sync-settings/internal/profiles"
	"github.com/lazyyq/vscode-sync-settings/internal/repository"
	"github.com/lazyyq/vscode-sync-settings/internal/settings"
	"github.com/lazyyq/vscode-sync-settings/internal/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeInstaller stands in for the editor CLI. installGate, when set,
// blocks Install calls until the channel is closed, letting tests hold
// a download in Running.
type fakeInstaller struct {
	mu         sync.Mutex
	installed  map[string]string
	installs   []string
	uninstalls []string

	installGate chan struct{}
}

func newFakeInstaller(ids ...string) *fakeInstaller {
	f := &fakeInstaller{installed: map[string]string{}}
	for _, id := range ids {
		f.installed[id] = ""
	}
	return f
}

func (f *fakeInstaller) List() ([]snapshot.Extension, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.installed))
	for id := range f.installed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	exts := make([]snapshot.Extension, 0, len(ids))
	for _, id := range ids {
		exts = append(exts, snapshot.Extension{ID: id, Version: f.installed[id]})
	}
	return exts, nil
}

func (f *fakeInstaller) Install(id string) error {
	if f.installGate != nil {
		<-f.installGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.installs = append(f.installs, id)
	f.installed[id] = ""
	return nil
}

func (f *fakeInstaller) Uninstall(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uninstalls = append(f.uninstalls, id)
	delete(f.installed, id)
	return nil
}

type fixture struct {
	orch    *orchestrator.Orchestrator
	repo    *repository.Repository
	ext     *fakeInstaller
	userDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	confDir := t.TempDir()
	userDir := t.TempDir()
	repoDir := filepath.Join(t.TempDir(), "repo")

	content := fmt.Sprintf(`repository:
  path: %s
profile: main
editor:
  settings_dir: %s
`, repoDir, userDir)
	require.NoError(t, os.WriteFile(filepath.Join(confDir, "settings.yml"), []byte(content), 0644))

	store := settings.NewStore(filepath.Join(confDir, "settings.yml"))
	_, err := store.Load()
	require.NoError(t, err)

	handle := repository.NewHandle(store)
	repo, err := handle.Repo()
	require.NoError(t, err)

	ext := newFakeInstaller()
	return &fixture{
		orch:    orchestrator.New(store, handle, ext, filepath.Join(confDir, "state"), nil),
		repo:    repo,
		ext:     ext,
		userDir: userDir,
	}
}

func (f *fixture) writeLocal(t *testing.T, rel, content string) {
	t.Helper()
	path := filepath.Join(f.userDir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func (f *fixture) seedRepo(t *testing.T, profile string, files map[string]string) {
	t.Helper()
	dir := f.repo.ProfileDir(profile)
	for rel, content := range files {
		path := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	_, err := f.repo.Commit("seed "+profile)
	require.NoError(t, err)
}

func (f *fixture) readLocalJSON(t *testing.T, rel string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.userDir, rel))
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc
}

func run(t *testing.T, f *fixture, kind orchestrator.Kind) orchestrator.Result {
	t.Helper()
	res, err := f.orch.Run(context.Background(), kind, "main")
	require.NoError(t, err)
	return res
}

func waitState(t *testing.T, op *orchestrator.Operation, want orchestrator.State) {
	t.Helper()
	require.Eventually(t, func() bool { return op.State() == want },
		2*time.Second, 5*time.Millisecond)
}

func TestDownload(t *testing.T) {
	t.Run("applies repository state to local settings", func(t *testing.T) {
		f := newFixture(t)
		f.writeLocal(t, "settings.json", `{"theme":"dark"}`)
		f.seedRepo(t, "main", map[string]string{
			"settings.json": `{"theme":"light","font":"mono"}`,
		})

		res := run(t, f, orchestrator.KindDownload)
		require.NoError(t, res.Err)
		assert.False(t, res.Patch.Empty())

		got := f.readLocalJSON(t, "settings.json")
		assert.Equal(t, map[string]any{"theme": "light", "font": "mono"}, got)
	})

	t.Run("installs and uninstalls extensions", func(t *testing.T) {
		f := newFixture(t)
		f.ext.installed["local.only"] = ""
		f.seedRepo(t, "main", map[string]string{
			"extensions.json": `[{"id":"golang.go"}]`,
		})

		res := run(t, f, orchestrator.KindDownload)
		require.NoError(t, res.Err)
		assert.Contains(t, f.ext.installs, "golang.go")
		assert.Contains(t, f.ext.uninstalls, "local.only")
	})

	t.Run("no differences is a successful no-op", func(t *testing.T) {
		f := newFixture(t)
		f.seedRepo(t, "main", map[string]string{"settings.json": `{"a":1}`})
		f.writeLocal(t, "settings.json", `{"a":1}`)

		res := run(t, f, orchestrator.KindDownload)
		require.NoError(t, res.Err)
		assert.Equal(t, "no differences", res.Message)
	})

	t.Run("unprovisioned profile is rejected, local state untouched", func(t *testing.T) {
		f := newFixture(t)
		f.writeLocal(t, "settings.json", `{"theme":"dark"}`)
		f.ext.installed["golang.go"] = ""

		// No "main" subdirectory exists in the repository.
		res := run(t, f, orchestrator.KindDownload)
		require.Error(t, res.Err)
		assert.ErrorIs(t, res.Err, profiles.ErrProfileNotFound)

		assert.FileExists(t, filepath.Join(f.userDir, "settings.json"))
		assert.Equal(t, "dark", f.readLocalJSON(t, "settings.json")["theme"])
		assert.Empty(t, f.ext.uninstalls)
	})
}

func TestUpload(t *testing.T) {
	t.Run("empty diff creates no commit", func(t *testing.T) {
		f := newFixture(t)
		f.seedRepo(t, "main", map[string]string{"settings.json": `{"theme":"dark"}`})
		res := run(t, f, orchestrator.KindDownload)
		require.NoError(t, res.Err)

		before := git.CommitCount(f.repo.Dir)
		res = run(t, f, orchestrator.KindUpload)
		require.NoError(t, res.Err)
		assert.Equal(t, "no changes", res.Message)
		assert.Equal(t, before, git.CommitCount(f.repo.Dir))
	})

	t.Run("local changes are committed to the profile", func(t *testing.T) {
		f := newFixture(t)
		f.seedRepo(t, "main", map[string]string{"settings.json": `{"theme":"dark"}`})
		res := run(t, f, orchestrator.KindDownload)
		require.NoError(t, res.Err)

		f.writeLocal(t, "settings.json", `{"theme":"light","font":"mono"}`)
		before := git.CommitCount(f.repo.Dir)

		res = run(t, f, orchestrator.KindUpload)
		require.NoError(t, res.Err)
		assert.False(t, res.Patch.Empty())
		assert.Equal(t, before+1, git.CommitCount(f.repo.Dir))

		data, err := os.ReadFile(filepath.Join(f.repo.ProfileDir("main"), "settings.json"))
		require.NoError(t, err)
		var doc map[string]any
		require.NoError(t, json.Unmarshal(data, &doc))
		assert.Equal(t, "light", doc["theme"])

		// The baseline advanced: a second upload has nothing to do.
		res = run(t, f, orchestrator.KindUpload)
		require.NoError(t, res.Err)
		assert.Equal(t, "no changes", res.Message)
	})

	t.Run("keeps repository changes the baseline never saw", func(t *testing.T) {
		f := newFixture(t)
		f.seedRepo(t, "main", map[string]string{"settings.json": `{"theme":"dark"}`})
		res := run(t, f, orchestrator.KindDownload)
		require.NoError(t, res.Err)

		// A change lands in the clone behind the baseline's back.
		f.seedRepo(t, "main", map[string]string{"settings.json": `{"theme":"dark","remote":"kept"}`})

		f.writeLocal(t, "settings.json", `{"theme":"light"}`)
		res = run(t, f, orchestrator.KindUpload)
		require.NoError(t, res.Err)

		data, err := os.ReadFile(filepath.Join(f.repo.ProfileDir("main"), "settings.json"))
		require.NoError(t, err)
		var doc map[string]any
		require.NoError(t, json.Unmarshal(data, &doc))
		assert.Equal(t, "light", doc["theme"])
		assert.Equal(t, "kept", doc["remote"])
	})

	t.Run("conflicting repository change aborts before writing", func(t *testing.T) {
		f := newFixture(t)
		f.seedRepo(t, "main", map[string]string{"settings.json": `{"theme":"dark"}`})
		res := run(t, f, orchestrator.KindDownload)
		require.NoError(t, res.Err)

		// The same key changed on both sides since the last sync.
		f.seedRepo(t, "main", map[string]string{"settings.json": `{"theme":"solarized"}`})
		f.writeLocal(t, "settings.json", `{"theme":"light"}`)

		before := git.CommitCount(f.repo.Dir)
		res = run(t, f, orchestrator.KindUpload)
		require.Error(t, res.Err)

		assert.Equal(t, before, git.CommitCount(f.repo.Dir))
		data, err := os.ReadFile(filepath.Join(f.repo.ProfileDir("main"), "settings.json"))
		require.NoError(t, err)
		assert.Contains(t, string(data), "solarized")
	})
}

func TestReview(t *testing.T) {
	t.Run("reports differences without mutating", func(t *testing.T) {
		f := newFixture(t)
		f.seedRepo(t, "main", map[string]string{"settings.json": `{"theme":"dark"}`})
		res := run(t, f, orchestrator.KindDownload)
		require.NoError(t, res.Err)

		f.writeLocal(t, "settings.json", `{"theme":"light"}`)
		before := git.CommitCount(f.repo.Dir)

		res = run(t, f, orchestrator.KindReview)
		require.NoError(t, res.Err)
		require.Len(t, res.Patch.Entries, 1)
		assert.Equal(t, "settings.json/theme", res.Patch.Entries[0].PathString())

		// Nothing moved: no commit, local file untouched.
		assert.Equal(t, before, git.CommitCount(f.repo.Dir))
		assert.Equal(t, "light", f.readLocalJSON(t, "settings.json")["theme"])
	})

	t.Run("empty diff reports no differences", func(t *testing.T) {
		f := newFixture(t)
		res := run(t, f, orchestrator.KindReview)
		require.NoError(t, res.Err)
		assert.Equal(t, "no differences", res.Message)
	})
}

func TestReset(t *testing.T) {
	f := newFixture(t)
	f.seedRepo(t, "main", map[string]string{
		"settings.json":   `{"theme":"dark"}`,
		"extensions.json": `[{"id":"golang.go"}]`,
	})
	res := run(t, f, orchestrator.KindDownload)
	require.NoError(t, res.Err)
	require.FileExists(t, filepath.Join(f.userDir, "settings.json"))

	before := git.CommitCount(f.repo.Dir)
	res = run(t, f, orchestrator.KindReset)
	require.NoError(t, res.Err)

	assert.NoFileExists(t, filepath.Join(f.userDir, "settings.json"))
	assert.Contains(t, f.ext.uninstalls, "golang.go")
	// Repository untouched.
	assert.Equal(t, before, git.CommitCount(f.repo.Dir))
	assert.FileExists(t, filepath.Join(f.repo.ProfileDir("main"), "settings.json"))

	// After reset, review sees nothing to report against the empty baseline.
	res = run(t, f, orchestrator.KindReview)
	require.NoError(t, res.Err)
	assert.Equal(t, "no differences", res.Message)
}

func TestMutualExclusion(t *testing.T) {
	f := newFixture(t)
	f.seedRepo(t, "main", map[string]string{
		"settings.json":   `{"theme":"dark"}`,
		"extensions.json": `[{"id":"golang.go"}]`,
	})
	f.ext.installGate = make(chan struct{})

	dl := f.orch.Enqueue(orchestrator.KindDownload, "main")
	waitState(t, dl, orchestrator.Running)

	up := f.orch.Enqueue(orchestrator.KindUpload, "main")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, orchestrator.Pending, up.State(),
		"a mutating operation must queue behind the running one")

	close(f.ext.installGate)

	ctx := context.Background()
	dlRes, err := dl.Wait(ctx)
	require.NoError(t, err)
	require.NoError(t, dlRes.Err)

	// The queued upload ran after the download finished, against
	// post-download state: nothing left to upload.
	upRes, err := up.Wait(ctx)
	require.NoError(t, err)
	require.NoError(t, upRes.Err)
	assert.Equal(t, "no changes", upRes.Message)

	require.Eventually(t, func() bool { return f.orch.Running() == nil },
		time.Second, 5*time.Millisecond)
}

func TestQueuedSupersede(t *testing.T) {
	f := newFixture(t)
	f.seedRepo(t, "main", map[string]string{
		"settings.json":   `{"theme":"dark"}`,
		"extensions.json": `[{"id":"golang.go"}]`,
	})
	f.ext.installGate = make(chan struct{})

	dl := f.orch.Enqueue(orchestrator.KindDownload, "main")
	waitState(t, dl, orchestrator.Running)

	first := f.orch.Enqueue(orchestrator.KindUpload, "main")
	second := f.orch.Enqueue(orchestrator.KindUpload, "main")

	// The older queued upload is dropped in favor of the newer one.
	waitState(t, first, orchestrator.Cancelled)
	res, err := first.Wait(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, res.Err, orchestrator.ErrSuperseded)

	close(f.ext.installGate)
	res, err = second.Wait(context.Background())
	require.NoError(t, err)
	require.NoError(t, res.Err)
}

func TestReviewRunsConcurrently(t *testing.T) {
	f := newFixture(t)
	f.seedRepo(t, "main", map[string]string{
		"settings.json":   `{"theme":"dark"}`,
		"extensions.json": `[{"id":"golang.go"}]`,
	})
	f.ext.installGate = make(chan struct{})

	dl := f.orch.Enqueue(orchestrator.KindDownload, "main")
	waitState(t, dl, orchestrator.Running)

	// The read-only review completes while the download is still held
	// in Running by the gated extension install.
	rv := f.orch.Enqueue(orchestrator.KindReview, "main")
	res, err := rv.Wait(context.Background())
	require.NoError(t, err)
	require.NoError(t, res.Err)
	assert.Equal(t, orchestrator.Running, dl.State())

	close(f.ext.installGate)
	dlRes, err := dl.Wait(context.Background())
	require.NoError(t, err)
	require.NoError(t, dlRes.Err)
}

func TestMissingExtensions(t *testing.T) {
	f := newFixture(t)
	f.ext.installed["golang.go"] = ""
	f.seedRepo(t, "main", map[string]string{
		"extensions.json": `[{"id":"golang.go"},{"id":"esbenp.prettier-vscode"}]`,
	})

	missing, err := f.orch.MissingExtensions("main")
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, "esbenp.prettier-vscode", missing[0].ID)
}
