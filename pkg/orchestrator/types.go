//go:generate mockgen -destination=./mocks/orchestrator.go . Database,Syncer,Installer,Updater,Remover,HealthManager,Runner,Downloader

package orchestrator

import (
	"context"

	"github.com/glorpus-work/porter/pkg/database"
	"github.com/glorpus-work/porter/pkg/download"
	"github.com/glorpus-work/porter/pkg/health"
	"github.com/glorpus-work/porter/pkg/install"
	"github.com/glorpus-work/porter/pkg/model"
	"github.com/glorpus-work/porter/pkg/remove"
	"github.com/glorpus-work/porter/pkg/repository"
	"github.com/glorpus-work/porter/pkg/run"
	"github.com/glorpus-work/porter/pkg/update"
)

// Database is the read surface of the package database the facade queries
// directly.
type Database interface {
	Query(ctx context.Context, f database.Filter) ([]model.PackageRecord, error)
	FindInstalled(ctx context.Context, pkgID string) (*model.InstalledPackage, error)
	ListInstalled(ctx context.Context, repoName string, limit int) ([]*model.InstalledPackage, error)
}

// Syncer refreshes repository metadata.
type Syncer interface {
	Sync(ctx context.Context) (repository.Result, error)
	Repositories() []model.Repository
}

// Installer runs the install pipeline.
type Installer interface {
	Install(ctx context.Context, ref model.PackageRef, opts install.Options) (*install.Result, error)
}

// Updater runs the update pipeline.
type Updater interface {
	Update(ctx context.Context, refs []model.PackageRef, opts update.Options) (update.Result, error)
}

// Remover runs the removal pipeline.
type Remover interface {
	Remove(ctx context.Context, refs []model.PackageRef) (remove.Result, error)
}

// HealthManager checks and repairs installed state.
type HealthManager interface {
	Check(ctx context.Context) (health.Report, error)
	Repair(ctx context.Context) (health.RepairResult, error)
	CleanCache() error
}

// Runner executes packages ephemerally.
type Runner interface {
	Run(ctx context.Context, ref model.PackageRef, opts run.Options) (run.Result, error)
}

// Downloader resolves sources and performs transfers.
type Downloader interface {
	Resolve(ctx context.Context, src download.Source) ([]download.Asset, error)
	Fetch(ctx context.Context, asset download.Asset, dir string, opts download.Options) (download.FetchResult, error)
}

// Event represents a simple progress notification.
type Event struct {
	Phase string // syncing|resolving|downloading|installing|updating|removing|running|done|error
	ID    string
	Msg   string
}

// Hooks carries callbacks for progress events.
type Hooks struct {
	OnEvent func(Event)
}

// InstallItem is the per-reference outcome of an install batch.
type InstallItem struct {
	Ref     string
	Result  *install.Result
	Skipped bool
	Err     error
}

// InstallResult aggregates an install batch.
type InstallResult struct {
	Items []InstallItem
}

// Ok reports whether every reference installed or was already present.
func (r InstallResult) Ok() bool {
	for _, it := range r.Items {
		if it.Err != nil {
			return false
		}
	}
	return true
}

// QueryResult pairs the repository record of a package with its installed
// state, if any.
type QueryResult struct {
	Record    *model.PackageRecord
	Installed *model.InstalledPackage
}

// CleanResult reports what a clean pass removed.
type CleanResult struct {
	Repair health.RepairResult
}

// DownloadRequest describes a standalone download. Exactly one of URL,
// GitHub ("owner/repo" or "owner/repo@tag") or OCI must be set.
type DownloadRequest struct {
	URL    string
	GitHub string
	OCI    string

	Filters download.Filters
	Dir     string
	Options download.Options

	// AllowPrompt lets Choose disambiguate when several assets remain after
	// filtering.
	AllowPrompt bool
	Choose      func([]download.Asset) (download.Asset, error)
}

// DownloadResult reports a completed standalone download.
type DownloadResult struct {
	Asset   download.Asset
	Path    string
	Skipped bool
}

// Env exposes the resolved filesystem layout for presentation.
type Env struct {
	RootDir     string
	BinDir      string
	DBDir       string
	CacheDir    string
	PackagesDir string
	ReposDir    string
	Profile     string
}
