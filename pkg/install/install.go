// Package install implements the installation pipeline: resolve a package
// reference against the synced database, stage the artifact under the cache,
// verify it, move it into the versioned install tree, publish the bin symlink
// and commit the installed record. The database row is written last, so a
// crash at any earlier point leaves no installed record behind.
package install

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/glorpus-work/porter/internal/logger"
	"github.com/glorpus-work/porter/pkg/config"
	"github.com/glorpus-work/porter/pkg/database"
	"github.com/glorpus-work/porter/pkg/download"
	"github.com/glorpus-work/porter/pkg/errors"
	"github.com/glorpus-work/porter/pkg/fsutil"
	"github.com/glorpus-work/porter/pkg/hook"
	"github.com/glorpus-work/porter/pkg/model"
)

// Querier resolves references against the synced package records.
type Querier interface {
	Query(ctx context.Context, f database.Filter) ([]model.PackageRecord, error)
}

// Database is the subset of the package database the install engine uses.
type Database interface {
	Querier
	FindInstalled(ctx context.Context, pkgID string) (*model.InstalledPackage, error)
	RecordInstall(ctx context.Context, pkg *model.InstalledPackage) error
}

// Fetcher stages artifacts into a directory.
type Fetcher interface {
	Fetch(ctx context.Context, asset download.Asset, dir string, opts download.Options) (download.FetchResult, error)
}

// Options control a single installation.
type Options struct {
	// Force reinstalls even when the same version is already installed.
	Force bool
	// Portable derives home/config/share dirs from one base directory. It
	// cannot be combined with the individual overrides below.
	Portable       string
	PortableHome   string
	PortableConfig string
	PortableShare  string
	// BinaryOnly installs the binary payload without portable directories.
	BinaryOnly bool
	// NoNotes suppresses post-install notes in the result.
	NoNotes bool
	// Yes bypasses the Confirm callback.
	Yes bool
	// Confirm, when set and Yes is false, is asked before any filesystem or
	// database change happens. Returning false aborts the install.
	Confirm func(rec *model.PackageRecord) bool
}

// Result describes a committed installation.
type Result struct {
	PkgID       string
	Name        string
	Version     string
	InstallPath string
	BinSymlink  string
	Notes       []string
}

// Engine performs installations.
type Engine struct {
	cfg     *config.Config
	db      Database
	fetcher Fetcher
	hooks   *hook.Executor
}

// NewEngine constructs an install engine. hooks may be nil when no hook
// scripts are configured.
func NewEngine(cfg *config.Config, db Database, fetcher Fetcher, hooks *hook.Executor) *Engine {
	return &Engine{cfg: cfg, db: db, fetcher: fetcher, hooks: hooks}
}

// Resolve maps a package reference to the latest matching record. A bare name
// matching packages in more than one repository is ambiguous; qualify the
// reference as repo/name to disambiguate.
func Resolve(ctx context.Context, db Querier, ref model.PackageRef) (*model.PackageRecord, error) {
	records, err := db.Query(ctx, database.Filter{RepoName: ref.RepoName, Name: ref.Name})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		// A bare reference may also be a full pkg_id.
		records, err = db.Query(ctx, database.Filter{RepoName: ref.RepoName, PkgID: ref.Name})
		if err != nil {
			return nil, err
		}
	}
	if len(records) == 0 {
		return nil, errors.Wrapf(errors.ErrPackageNotFound, "%s", ref)
	}

	if ref.RepoName == "" {
		repos := make(map[string]bool)
		for i := range records {
			repos[records[i].RepoName] = true
		}
		if len(repos) > 1 {
			names := make([]string, 0, len(repos))
			for r := range repos {
				names = append(names, r)
			}
			return nil, errors.Wrapf(errors.ErrAmbiguousPackage,
				"%s exists in repositories %s", ref.Name, strings.Join(names, ", "))
		}
	}

	// Query orders by version descending, so the first record is the latest.
	return &records[0], nil
}

// Install runs the full pipeline for one reference.
func (e *Engine) Install(ctx context.Context, ref model.PackageRef, opts Options) (*Result, error) {
	if err := validatePortable(opts); err != nil {
		return nil, err
	}

	rec, err := Resolve(ctx, e.db, ref)
	if err != nil {
		return nil, err
	}

	installed, err := e.db.FindInstalled(ctx, rec.PkgID)
	if err != nil {
		return nil, err
	}
	if installed != nil && installed.Version == rec.Version && !opts.Force {
		return nil, errors.Wrapf(errors.ErrAlreadyInstalled, "%s %s", rec.PkgID, rec.Version)
	}

	if opts.Confirm != nil && !opts.Yes && !opts.Confirm(rec) {
		return nil, errors.Wrapf(errors.ErrConfirmationDeclined, "install %s %s", rec.PkgID, rec.Version)
	}

	lock, err := e.acquireLock(rec.PkgID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Unlock() }()

	return e.installLocked(ctx, rec, opts)
}

// installLocked performs the staged install while the package lock is held.
func (e *Engine) installLocked(ctx context.Context, rec *model.PackageRecord, opts Options) (*Result, error) {
	logger.Info("installing package", logger.Fields{"pkg_id": rec.PkgID, "version": rec.Version})

	pkg := e.plan(rec, opts)

	if e.hooks != nil {
		if err := e.hooks.Execute(hook.PreInstall, hookContext(pkg)); err != nil {
			return nil, err
		}
	}

	stagedPath, err := e.stage(ctx, rec, opts.Force)
	if err != nil {
		return nil, err
	}

	if err := fsutil.EnsureDir(filepath.Dir(pkg.InstallPath), fsutil.DirModeDefault); err != nil {
		return nil, errors.Wrap(err, "creating install dir")
	}
	if err := fsutil.Move(stagedPath, pkg.InstallPath); err != nil {
		return nil, errors.Wrap(err, "placing binary")
	}
	if err := fsutil.MakeExecutable(pkg.InstallPath); err != nil {
		return nil, err
	}

	if err := fsutil.EnsureDir(e.cfg.BinDir(), fsutil.DirModeDefault); err != nil {
		return nil, errors.Wrap(err, "creating bin dir")
	}
	if err := fsutil.ReplaceSymlink(pkg.InstallPath, pkg.BinSymlink); err != nil {
		return nil, errors.Wrap(err, "publishing symlink")
	}

	if !opts.BinaryOnly {
		for _, dir := range pkg.PortableDirs() {
			if err := fsutil.EnsureDir(dir, fsutil.DirModeDefault); err != nil {
				return nil, errors.Wrap(err, "creating portable dir")
			}
		}
	}

	if e.hooks != nil {
		// Post-install hooks are best effort: the package is already placed.
		if err := e.hooks.Execute(hook.PostInstall, hookContext(pkg)); err != nil {
			logger.Warn("post-install hook failed", logger.Fields{"pkg_id": rec.PkgID, "error": err.Error()})
		}
	}

	pkg.InstalledAt = time.Now()
	if err := e.db.RecordInstall(ctx, pkg); err != nil {
		return nil, err
	}

	logger.Info("package installed", logger.Fields{"pkg_id": rec.PkgID, "path": pkg.InstallPath})

	res := &Result{
		PkgID:       pkg.PkgID,
		Name:        pkg.Name,
		Version:     pkg.Version,
		InstallPath: pkg.InstallPath,
		BinSymlink:  pkg.BinSymlink,
	}
	if !opts.NoNotes {
		res.Notes = rec.Notes
	}
	return res, nil
}

// plan computes the target layout for a record without touching the
// filesystem.
func (e *Engine) plan(rec *model.PackageRecord, opts Options) *model.InstalledPackage {
	installDir := filepath.Join(e.cfg.PackagesDir(), fsutil.SanitizePathComponent(rec.PkgID), rec.Version)
	return &model.InstalledPackage{
		PkgID:          rec.PkgID,
		RepoName:       rec.RepoName,
		Name:           rec.Name,
		Version:        rec.Version,
		Checksum:       rec.Checksum,
		InstallPath:    filepath.Join(installDir, rec.EffectiveBinName()),
		BinSymlink:     filepath.Join(e.cfg.BinDir(), rec.EffectiveBinName()),
		Profile:        e.cfg.ActiveProfile,
		PortableBase:   opts.Portable,
		PortableHome:   opts.PortableHome,
		PortableConfig: opts.PortableConfig,
		PortableShare:  opts.PortableShare,
	}
}

// stage downloads the artifact into the cache staging area with checksum
// verification.
func (e *Engine) stage(ctx context.Context, rec *model.PackageRecord, force bool) (string, error) {
	u := rec.GetURL()
	if u == nil {
		return "", errors.Wrapf(errors.ErrInvalidPath, "package %s has no usable origin URL", rec.PkgID)
	}
	stagingDir := filepath.Join(e.cfg.CacheDir(), "staging", fsutil.SanitizePathComponent(rec.PkgID))
	asset := download.Asset{
		Name: rec.EffectiveBinName(),
		URL:  u,
		Size: rec.Size,
	}
	res, err := e.fetcher.Fetch(ctx, asset, stagingDir, download.Options{
		Checksum:       rec.Checksum,
		ForceOverwrite: force,
		SkipExisting:   !force,
	})
	if err != nil {
		return "", err
	}
	return res.Path, nil
}

// acquireLock takes the per-package advisory lock. Contention fails fast
// instead of blocking behind another process.
func (e *Engine) acquireLock(pkgID string) (*flock.Flock, error) {
	lockDir := filepath.Join(e.cfg.CacheDir(), "locks")
	if err := fsutil.EnsureDir(lockDir, fsutil.DirModeDefault); err != nil {
		return nil, errors.Wrap(err, "creating lock dir")
	}
	lock := flock.New(filepath.Join(lockDir, fsutil.SanitizePathComponent(pkgID)+".lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, errors.Wrap(err, "acquiring package lock")
	}
	if !ok {
		return nil, errors.Wrapf(errors.ErrLockContention, "%s", pkgID)
	}
	return lock, nil
}

func validatePortable(opts Options) error {
	if opts.Portable != "" &&
		(opts.PortableHome != "" || opts.PortableConfig != "" || opts.PortableShare != "") {
		return errors.ErrPortableConflict
	}
	return nil
}

func hookContext(pkg *model.InstalledPackage) hook.Context {
	return hook.Context{
		PkgID:       pkg.PkgID,
		Name:        pkg.Name,
		Version:     pkg.Version,
		InstallPath: pkg.InstallPath,
		BinPath:     pkg.BinSymlink,
	}
}
