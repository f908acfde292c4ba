// Package orchestrator ties the porter engines together behind one facade.
// Every operation returns a typed result and reports progress through event
// hooks; the facade itself never prints.
package orchestrator

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/glorpus-work/porter/pkg/config"
	"github.com/glorpus-work/porter/pkg/database"
	"github.com/glorpus-work/porter/pkg/download"
	"github.com/glorpus-work/porter/pkg/errors"
	"github.com/glorpus-work/porter/pkg/health"
	"github.com/glorpus-work/porter/pkg/install"
	"github.com/glorpus-work/porter/pkg/model"
	"github.com/glorpus-work/porter/pkg/remove"
	"github.com/glorpus-work/porter/pkg/repository"
	"github.com/glorpus-work/porter/pkg/run"
	"github.com/glorpus-work/porter/pkg/update"
)

// Orchestrator wires the configuration, the package database and the engines.
type Orchestrator struct {
	Config    *config.Config
	DB        Database
	Syncer    Syncer
	Installer Installer
	Updater   Updater
	Remover   Remover
	Health    HealthManager
	Runner    Runner
	DL        Downloader
	Hooks     Hooks
}

// New constructs an orchestrator from existing engines. Helper for wiring;
// hooks can be zero when no event handling is needed.
func New(cfg *config.Config, db Database, syncer Syncer, installer Installer,
	updater Updater, remover Remover, healthMgr HealthManager, runner Runner,
	dl Downloader, hooks Hooks) *Orchestrator {
	return &Orchestrator{
		Config:    cfg,
		DB:        db,
		Syncer:    syncer,
		Installer: installer,
		Updater:   updater,
		Remover:   remover,
		Health:    healthMgr,
		Runner:    runner,
		DL:        dl,
		Hooks:     hooks,
	}
}

func emit(h Hooks, e Event) {
	if h.OnEvent != nil {
		h.OnEvent(e)
	}
}

// Sync refreshes every enabled repository.
func (o *Orchestrator) Sync(ctx context.Context) (repository.Result, error) {
	if o.Syncer == nil {
		return repository.Result{}, fmt.Errorf("sync engine is not configured")
	}
	emit(o.Hooks, Event{Phase: "syncing"})
	result, err := o.Syncer.Sync(ctx)
	if err != nil {
		emit(o.Hooks, Event{Phase: "error", Msg: err.Error()})
		return result, err
	}
	for _, repo := range result.Repos {
		if repo.Err != nil {
			emit(o.Hooks, Event{Phase: "error", ID: repo.Name, Msg: repo.Err.Error()})
		} else {
			emit(o.Hooks, Event{Phase: "syncing", ID: repo.Name, Msg: fmt.Sprintf("%d packages", repo.Packages)})
		}
	}
	emit(o.Hooks, Event{Phase: "done"})
	return result, nil
}

// Install installs each reference. An already installed package is reported
// as skipped, not as a failure; other errors are collected per reference.
func (o *Orchestrator) Install(ctx context.Context, refs []model.PackageRef, opts install.Options) (InstallResult, error) {
	if o.Installer == nil {
		return InstallResult{}, fmt.Errorf("install engine is not configured")
	}
	result := InstallResult{Items: make([]InstallItem, 0, len(refs))}
	for _, ref := range refs {
		emit(o.Hooks, Event{Phase: "installing", ID: ref.String()})
		item := InstallItem{Ref: ref.String()}
		res, err := o.Installer.Install(ctx, ref, opts)
		switch {
		case err == nil:
			item.Result = res
			emit(o.Hooks, Event{Phase: "installing", ID: ref.String(), Msg: res.Version})
		case stderrors.Is(err, errors.ErrAlreadyInstalled):
			item.Skipped = true
			emit(o.Hooks, Event{Phase: "installing", ID: ref.String(), Msg: "already installed"})
		default:
			item.Err = err
			emit(o.Hooks, Event{Phase: "error", ID: ref.String(), Msg: err.Error()})
		}
		result.Items = append(result.Items, item)
	}
	emit(o.Hooks, Event{Phase: "done"})
	return result, nil
}

// Update updates the referenced packages, or all installed packages when refs
// is empty.
func (o *Orchestrator) Update(ctx context.Context, refs []model.PackageRef, opts update.Options) (update.Result, error) {
	if o.Updater == nil {
		return update.Result{}, fmt.Errorf("update engine is not configured")
	}
	emit(o.Hooks, Event{Phase: "updating"})
	result, err := o.Updater.Update(ctx, refs, opts)
	if err != nil {
		emit(o.Hooks, Event{Phase: "error", Msg: err.Error()})
		return result, err
	}
	for _, item := range result.Items {
		switch {
		case item.Err != nil:
			emit(o.Hooks, Event{Phase: "error", ID: item.PkgID, Msg: item.Err.Error()})
		case item.Updated:
			emit(o.Hooks, Event{Phase: "updating", ID: item.PkgID,
				Msg: item.FromVersion + " -> " + item.ToVersion})
		}
	}
	emit(o.Hooks, Event{Phase: "done"})
	return result, nil
}

// Remove removes the referenced packages.
func (o *Orchestrator) Remove(ctx context.Context, refs []model.PackageRef) (remove.Result, error) {
	if o.Remover == nil {
		return remove.Result{}, fmt.Errorf("removal engine is not configured")
	}
	for _, ref := range refs {
		emit(o.Hooks, Event{Phase: "removing", ID: ref.String()})
	}
	result, err := o.Remover.Remove(ctx, refs)
	if err != nil {
		emit(o.Hooks, Event{Phase: "error", Msg: err.Error()})
		return result, err
	}
	for _, item := range result.Items {
		if item.Err != nil {
			emit(o.Hooks, Event{Phase: "error", ID: item.PkgID, Msg: item.Err.Error()})
		}
	}
	emit(o.Hooks, Event{Phase: "done"})
	return result, nil
}

// ListInstalled lists installed packages, optionally filtered by repository.
func (o *Orchestrator) ListInstalled(ctx context.Context, repoName string, count int) ([]*model.InstalledPackage, error) {
	return o.DB.ListInstalled(ctx, repoName, count)
}

// ListAvailable lists synced package records, optionally filtered by
// repository.
func (o *Orchestrator) ListAvailable(ctx context.Context, repoName string) ([]model.PackageRecord, error) {
	return o.DB.Query(ctx, database.Filter{RepoName: repoName})
}

// QueryPackage resolves a reference to its record and installed state.
func (o *Orchestrator) QueryPackage(ctx context.Context, ref model.PackageRef) (QueryResult, error) {
	rec, err := install.Resolve(ctx, o.DB, ref)
	if err != nil {
		return QueryResult{}, err
	}
	installed, err := o.DB.FindInstalled(ctx, rec.PkgID)
	if err != nil {
		return QueryResult{}, err
	}
	return QueryResult{Record: rec, Installed: installed}, nil
}

// Search finds package records whose name contains query.
func (o *Orchestrator) Search(ctx context.Context, query string, caseSensitive bool, limit int) ([]model.PackageRecord, error) {
	return o.DB.Query(ctx, database.Filter{Search: query, CaseSensitive: caseSensitive, Limit: limit})
}

// CheckHealth classifies every installed package.
func (o *Orchestrator) CheckHealth(ctx context.Context) (health.Report, error) {
	if o.Health == nil {
		return health.Report{}, fmt.Errorf("health engine is not configured")
	}
	return o.Health.Check(ctx)
}

// Repair removes broken rows, dangling symlinks and orphaned directories.
func (o *Orchestrator) Repair(ctx context.Context) (health.RepairResult, error) {
	if o.Health == nil {
		return health.RepairResult{}, fmt.Errorf("health engine is not configured")
	}
	return o.Health.Repair(ctx)
}

// Clean empties the staged download cache and runs a repair pass.
func (o *Orchestrator) Clean(ctx context.Context) (CleanResult, error) {
	if o.Health == nil {
		return CleanResult{}, fmt.Errorf("health engine is not configured")
	}
	if err := o.Health.CleanCache(); err != nil {
		return CleanResult{}, err
	}
	repair, err := o.Health.Repair(ctx)
	if err != nil {
		return CleanResult{}, err
	}
	return CleanResult{Repair: repair}, nil
}

// Download performs a standalone download from a direct URL, a GitHub release
// or an OCI registry, applying the request filters to select one asset.
func (o *Orchestrator) Download(ctx context.Context, req DownloadRequest) (DownloadResult, error) {
	if o.DL == nil {
		return DownloadResult{}, fmt.Errorf("download manager is not configured")
	}
	src, err := req.source()
	if err != nil {
		return DownloadResult{}, err
	}

	emit(o.Hooks, Event{Phase: "resolving"})
	assets, err := o.DL.Resolve(ctx, src)
	if err != nil {
		emit(o.Hooks, Event{Phase: "error", Msg: err.Error()})
		return DownloadResult{}, err
	}

	asset, err := download.Select(assets, req.Filters, req.AllowPrompt, req.Choose)
	if err != nil {
		emit(o.Hooks, Event{Phase: "error", Msg: err.Error()})
		return DownloadResult{}, err
	}

	emit(o.Hooks, Event{Phase: "downloading", ID: asset.Name})
	res, err := o.DL.Fetch(ctx, asset, req.Dir, req.Options)
	if err != nil {
		emit(o.Hooks, Event{Phase: "error", ID: asset.Name, Msg: err.Error()})
		return DownloadResult{}, err
	}
	emit(o.Hooks, Event{Phase: "done", ID: asset.Name})
	return DownloadResult{Asset: asset, Path: res.Path, Skipped: res.Skipped}, nil
}

// Run executes a package ephemerally.
func (o *Orchestrator) Run(ctx context.Context, ref model.PackageRef, opts run.Options) (run.Result, error) {
	if o.Runner == nil {
		return run.Result{}, fmt.Errorf("run engine is not configured")
	}
	emit(o.Hooks, Event{Phase: "running", ID: ref.String()})
	result, err := o.Runner.Run(ctx, ref, opts)
	if err != nil {
		emit(o.Hooks, Event{Phase: "error", ID: ref.String(), Msg: err.Error()})
		return result, err
	}
	emit(o.Hooks, Event{Phase: "done", ID: ref.String()})
	return result, nil
}

// Repositories reports the configured repositories and their sync state.
func (o *Orchestrator) Repositories() []model.Repository {
	if o.Syncer == nil {
		return nil
	}
	return o.Syncer.Repositories()
}

// Env reports the resolved filesystem layout.
func (o *Orchestrator) Env() Env {
	return Env{
		RootDir:     o.Config.Settings.RootDir,
		BinDir:      o.Config.BinDir(),
		DBDir:       o.Config.DBDir(),
		CacheDir:    o.Config.CacheDir(),
		PackagesDir: o.Config.PackagesDir(),
		ReposDir:    o.Config.ReposDir(),
		Profile:     o.Config.ActiveProfile,
	}
}

// source maps the request to the single configured provider.
func (r DownloadRequest) source() (download.Source, error) {
	set := 0
	for _, s := range []string{r.URL, r.GitHub, r.OCI} {
		if s != "" {
			set++
		}
	}
	if set != 1 {
		return nil, errors.Wrap(errors.ErrInvalidPath, "exactly one of url, github or oci must be given")
	}
	switch {
	case r.URL != "":
		return download.DirectSource{URL: r.URL}, nil
	case r.OCI != "":
		return download.OCISource{Ref: r.OCI}, nil
	default:
		return parseGitHubSpec(r.GitHub)
	}
}

// parseGitHubSpec parses "owner/repo" with an optional "@tag" suffix.
func parseGitHubSpec(spec string) (download.Source, error) {
	repoSpec, tag, _ := strings.Cut(spec, "@")
	owner, repo, ok := strings.Cut(repoSpec, "/")
	if !ok || owner == "" || repo == "" {
		return nil, errors.Wrapf(errors.ErrInvalidPath, "invalid github spec %q, want owner/repo[@tag]", spec)
	}
	return download.GitHubSource{Owner: owner, Repo: repo, Tag: tag}, nil
}
