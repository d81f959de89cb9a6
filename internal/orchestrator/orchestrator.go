// Package orchestrator serializes and executes sync operations against
// the active profile: download (repo to local), upload (local to repo),
// review (diff only) and reset (clear local synced state).
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/lazyyq/vscode-sync-settings/internal/diff"
	"github.com/lazyyq/vscode-sync-settings/internal/extensions"
	"github.com/lazyyq/vscode-sync-settings/internal/profiles"
	"github.com/lazyyq/vscode-sync-settings/internal/repository"
	"github.com/lazyyq/vscode-sync-settings/internal/settings"
	"github.com/lazyyq/vscode-sync-settings/internal/snapshot"
)

// Orchestrator owns the operation queue. At most one mutating operation
// runs at a time; queued requests run FIFO, and a queued request is
// cancelled when a newer one of the same kind and profile arrives.
type Orchestrator struct {
	store    *settings.Store
	handle   *repository.Handle
	ext      extensions.Installer
	stateDir string
	log      *log.Logger

	mu      sync.Mutex
	queue   []*Operation
	running *Operation
	working bool
}

// New wires an orchestrator. logger may be nil for silent operation.
func New(store *settings.Store, handle *repository.Handle, ext extensions.Installer, stateDir string, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.New(discard{}, "", 0)
	}
	return &Orchestrator{
		store:    store,
		handle:   handle,
		ext:      ext,
		stateDir: stateDir,
		log:      logger,
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// Enqueue submits an operation. Reviews are read-only and start
// immediately, concurrent with whatever else is running. Mutating
// operations join the FIFO queue; an already-queued operation of the
// same kind and profile is cancelled in favor of the new one.
func (o *Orchestrator) Enqueue(kind Kind, profile string) *Operation {
	op := newOperation(kind, profile)

	if !kind.Mutating() {
		go o.execute(op)
		return op
	}

	o.mu.Lock()
	kept := o.queue[:0]
	for _, queued := range o.queue {
		if queued.Kind == kind && queued.Profile == profile {
			queued.cancel()
			continue
		}
		kept = append(kept, queued)
	}
	o.queue = append(kept, op)
	if !o.working {
		o.working = true
		go o.pump()
	}
	o.mu.Unlock()
	return op
}

// Running returns the mutating operation currently executing, if any.
func (o *Orchestrator) Running() *Operation {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

func (o *Orchestrator) pump() {
	for {
		o.mu.Lock()
		if len(o.queue) == 0 {
			o.working = false
			o.mu.Unlock()
			return
		}
		op := o.queue[0]
		o.queue = o.queue[1:]
		o.running = op
		o.mu.Unlock()

		o.execute(op)

		o.mu.Lock()
		o.running = nil
		o.mu.Unlock()
	}
}

func (o *Orchestrator) execute(op *Operation) {
	if !op.start() {
		return
	}
	o.log.Printf("%s %s: started (%s)", op.Kind, op.Profile, op.ID)
	res := o.run(op)
	if res.Err != nil {
		o.log.Printf("%s %s: failed: %v", op.Kind, op.Profile, res.Err)
	} else {
		o.log.Printf("%s %s: %s", op.Kind, op.Profile, summary(res))
	}
	op.finish(res)
}

func summary(res Result) string {
	if res.Message != "" {
		return res.Message
	}
	return fmt.Sprintf("%d change(s)", len(res.Patch.Entries))
}

func (o *Orchestrator) run(op *Operation) Result {
	cfg, err := o.store.Get()
	if err != nil {
		return Result{Err: err}
	}
	switch op.Kind {
	case KindDownload:
		return o.download(cfg, op.Profile)
	case KindUpload:
		return o.upload(cfg, op.Profile)
	case KindReview:
		return o.review(cfg, op.Profile)
	case KindReset:
		return o.reset(cfg, op.Profile)
	default:
		return Result{Err: fmt.Errorf("unknown operation kind %q", op.Kind)}
	}
}

// Download runs a repo-to-local sync for profile and waits for it.
// Implements profiles.Downloader.
func (o *Orchestrator) Download(ctx context.Context, profile string) error {
	res, err := o.Enqueue(KindDownload, profile).Wait(ctx)
	if err != nil {
		return err
	}
	return res.Err
}

// Run submits an operation and waits for its result.
func (o *Orchestrator) Run(ctx context.Context, kind Kind, profile string) (Result, error) {
	return o.Enqueue(kind, profile).Wait(ctx)
}

// download: pull, diff local against the repo profile, apply the patch
// to local files and extensions, then record the new baseline.
func (o *Orchestrator) download(cfg *settings.Config, profile string) Result {
	repo, err := o.handle.Repo()
	if err != nil {
		return Result{Err: err}
	}
	if err := repo.Pull(); err != nil {
		return Result{Err: err}
	}

	// A profile without a repository subdirectory was never provisioned.
	// Refusing here matters: diffing local state against nothing would
	// produce a patch that wipes every local file and extension.
	if _, err := os.Stat(repo.ProfileDir(profile)); err != nil {
		if os.IsNotExist(err) {
			return Result{Err: fmt.Errorf("%w: %q", profiles.ErrProfileNotFound, profile)}
		}
		return Result{Err: fmt.Errorf("checking profile %q: %w", profile, err)}
	}

	repoSnap, err := snapshot.Capture(repo.ProfileDir(profile))
	if err != nil {
		return Result{Err: err}
	}
	local, err := o.captureLocal(cfg)
	if err != nil {
		return Result{Err: err}
	}

	opts := diff.Options{TrackVersions: cfg.Extensions.TrackVersions}
	patch := diff.Compute(local, repoSnap, opts)
	if patch.Empty() {
		if err := snapshot.SaveBaseline(o.stateDir, profile, local); err != nil {
			return Result{Err: err}
		}
		return Result{Message: "no differences"}
	}

	applied, err := diff.Apply(local, patch, opts)
	if err != nil {
		return Result{Err: err}
	}
	if err := snapshot.Write(cfg.Editor.SettingsDir, applied); err != nil {
		return Result{Err: err}
	}
	if err := o.reconcileExtensions(patch, cfg.Extensions.TrackVersions); err != nil {
		return Result{Patch: patch, Err: err}
	}
	if err := snapshot.SaveBaseline(o.stateDir, profile, applied); err != nil {
		return Result{Err: err}
	}
	return Result{Patch: patch}
}

// upload: diff local against the last-synced baseline and apply that
// patch to the repo profile, then commit and push. Applying the patch
// rather than overwriting the profile keeps repo-side changes the
// baseline never saw; a conflicting repo-side change fails validation
// and aborts before anything is written.
func (o *Orchestrator) upload(cfg *settings.Config, profile string) Result {
	local, err := o.captureLocal(cfg)
	if err != nil {
		return Result{Err: err}
	}
	baseline, _, err := snapshot.LoadBaseline(o.stateDir, profile)
	if err != nil {
		return Result{Err: err}
	}

	opts := diff.Options{TrackVersions: cfg.Extensions.TrackVersions}
	patch := diff.Compute(baseline, local, opts)
	if patch.Empty() {
		return Result{Message: "no changes"}
	}

	repo, err := o.handle.Repo()
	if err != nil {
		return Result{Err: err}
	}
	repoSnap, err := snapshot.Capture(repo.ProfileDir(profile))
	if err != nil {
		return Result{Err: err}
	}
	applied, err := diff.Apply(repoSnap, patch, opts)
	if err != nil {
		return Result{Err: fmt.Errorf("repository diverged from last sync, download first: %w", err)}
	}
	if err := snapshot.Write(repo.ProfileDir(profile), applied, snapshot.WithExtensionsFile()); err != nil {
		return Result{Err: err}
	}
	created, err := repo.Commit(fmt.Sprintf("Update profile %s", profile))
	if err != nil {
		return Result{Err: err}
	}
	if err := repo.Push(); err != nil {
		return Result{Patch: patch, Err: err}
	}
	if err := snapshot.SaveBaseline(o.stateDir, profile, local); err != nil {
		return Result{Err: err}
	}

	res := Result{Patch: patch}
	if !created {
		res.Message = "no commit needed"
	}
	return res
}

// review reports the pending upload diff without mutating anything.
func (o *Orchestrator) review(cfg *settings.Config, profile string) Result {
	local, err := o.captureLocal(cfg)
	if err != nil {
		return Result{Err: err}
	}
	baseline, _, err := snapshot.LoadBaseline(o.stateDir, profile)
	if err != nil {
		return Result{Err: err}
	}
	patch := diff.Compute(baseline, local, diff.Options{TrackVersions: cfg.Extensions.TrackVersions})
	if patch.Empty() {
		return Result{Message: "no differences"}
	}
	return Result{Patch: patch}
}

// reset removes synced settings and extensions locally. The repository
// is untouched.
func (o *Orchestrator) reset(cfg *settings.Config, profile string) Result {
	baseline, ok, err := snapshot.LoadBaseline(o.stateDir, profile)
	if err != nil {
		return Result{Err: err}
	}
	if ok {
		for _, ext := range baseline.Extensions {
			if err := o.ext.Uninstall(ext.ID); err != nil {
				o.log.Printf("reset: %v", err)
			}
		}
	}
	empty := snapshot.Snapshot{Documents: map[string]snapshot.Document{}}
	if err := snapshot.Write(cfg.Editor.SettingsDir, empty); err != nil {
		return Result{Err: err}
	}
	if err := snapshot.RemoveBaseline(o.stateDir, profile); err != nil {
		return Result{Err: err}
	}
	return Result{Message: "local synced state cleared"}
}

// MissingExtensions returns the extensions listed in the repo profile
// but not installed locally. Read-only, no queueing.
func (o *Orchestrator) MissingExtensions(profile string) ([]snapshot.Extension, error) {
	cfg, err := o.store.Get()
	if err != nil {
		return nil, err
	}
	repo, err := o.handle.Repo()
	if err != nil {
		return nil, err
	}
	repoSnap, err := snapshot.Capture(repo.ProfileDir(profile))
	if err != nil {
		return nil, err
	}
	installed, err := o.ext.List()
	if err != nil {
		return nil, err
	}

	track := cfg.Extensions.TrackVersions
	have := make(map[string]bool, len(installed))
	for _, e := range installed {
		have[e.Key(track)] = true
	}
	var missing []snapshot.Extension
	for _, e := range repoSnap.Extensions {
		if !have[e.Key(track)] {
			missing = append(missing, e)
		}
	}
	return missing, nil
}

func (o *Orchestrator) captureLocal(cfg *settings.Config) (snapshot.Snapshot, error) {
	installed, err := o.ext.List()
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	return snapshot.Capture(cfg.Editor.SettingsDir, snapshot.WithExtensions(installed))
}

// reconcileExtensions installs and uninstalls per the patch's extension
// entries. Failed installs get one retry pass; anything still failing
// aborts so the next download tries again.
func (o *Orchestrator) reconcileExtensions(patch diff.Patch, trackVersions bool) error {
	var installs, uninstalls []string
	for _, e := range patch.Entries {
		if len(e.Path) != 2 || e.Path[0] != "extensions" {
			continue
		}
		switch e.Kind {
		case diff.Added, diff.Modified:
			ext := e.New.(snapshot.Extension)
			id := ext.ID
			if trackVersions && ext.Version != "" {
				id = ext.ID + "@" + ext.Version
			}
			installs = append(installs, id)
		case diff.Removed:
			uninstalls = append(uninstalls, e.Old.(snapshot.Extension).ID)
		}
	}

	for _, id := range uninstalls {
		if err := o.ext.Uninstall(id); err != nil {
			o.log.Printf("uninstall %s: %v", id, err)
		}
	}

	var failed []string
	for _, id := range installs {
		if err := o.ext.Install(id); err != nil {
			o.log.Printf("install %s: %v", id, err)
			failed = append(failed, id)
		}
	}
	if len(failed) > 0 {
		var stillFailed []string
		for _, id := range failed {
			if err := o.ext.Install(id); err != nil {
				stillFailed = append(stillFailed, id)
			}
		}
		if len(stillFailed) > 0 {
			return fmt.Errorf("failed to install extensions: %v", stillFailed)
		}
	}
	return nil
}
