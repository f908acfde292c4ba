// Package update walks installed packages, compares their versions against
// the synced repository records and reinstalls the ones a newer version
// exists for. Old version directories are pruned only after the new version
// has committed, so an interrupted update always leaves a working install.
package update

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/hashicorp/go-version"

	"github.com/glorpus-work/porter/internal/logger"
	"github.com/glorpus-work/porter/pkg/config"
	"github.com/glorpus-work/porter/pkg/database"
	"github.com/glorpus-work/porter/pkg/errors"
	"github.com/glorpus-work/porter/pkg/fsutil"
	"github.com/glorpus-work/porter/pkg/install"
	"github.com/glorpus-work/porter/pkg/model"
)

// Database is the subset of the package database the update engine uses.
type Database interface {
	Query(ctx context.Context, f database.Filter) ([]model.PackageRecord, error)
	FindInstalled(ctx context.Context, pkgID string) (*model.InstalledPackage, error)
	ListInstalled(ctx context.Context, repoName string, limit int) ([]*model.InstalledPackage, error)
}

// Installer runs the install pipeline for an update target.
type Installer interface {
	Install(ctx context.Context, ref model.PackageRef, opts install.Options) (*install.Result, error)
}

// Options control an update run.
type Options struct {
	// Keep is how many previous version directories survive pruning after a
	// successful update. Zero removes them immediately.
	Keep int
	// Force reinstalls even when the installed version is current.
	Force bool
	// Yes bypasses the Confirm callback.
	Yes bool
	// Confirm, when set and Yes is false, is asked per package before it is
	// reinstalled. Returning false skips the package without failing the run.
	Confirm func(pkgID, from, to string) bool
}

// Item reports the outcome for one package.
type Item struct {
	PkgID       string
	FromVersion string
	ToVersion   string
	Updated     bool
	Err         error
}

// Result aggregates per-package outcomes.
type Result struct {
	Items []Item
}

// Ok reports whether every package updated (or was already current).
func (r Result) Ok() bool {
	for _, it := range r.Items {
		if it.Err != nil {
			return false
		}
	}
	return true
}

// Engine performs updates.
type Engine struct {
	cfg       *config.Config
	db        Database
	installer Installer
}

// NewEngine constructs an update engine.
func NewEngine(cfg *config.Config, db Database, installer Installer) *Engine {
	return &Engine{cfg: cfg, db: db, installer: installer}
}

// Update updates the referenced packages, or every installed package when
// refs is empty. Failures are collected per package, never aborting the rest.
func (e *Engine) Update(ctx context.Context, refs []model.PackageRef, opts Options) (Result, error) {
	targets, err := e.targets(ctx, refs)
	if err != nil {
		return Result{}, err
	}

	result := Result{Items: make([]Item, 0, len(targets))}
	for _, pkg := range targets {
		result.Items = append(result.Items, e.updateOne(ctx, pkg, opts))
	}
	return result, nil
}

func (e *Engine) targets(ctx context.Context, refs []model.PackageRef) ([]*model.InstalledPackage, error) {
	if len(refs) == 0 {
		return e.db.ListInstalled(ctx, "", 0)
	}
	targets := make([]*model.InstalledPackage, 0, len(refs))
	for _, ref := range refs {
		rec, err := install.Resolve(ctx, e.db, ref)
		if err != nil {
			return nil, err
		}
		pkg, err := e.db.FindInstalled(ctx, rec.PkgID)
		if err != nil {
			return nil, err
		}
		if pkg == nil {
			return nil, errors.Wrapf(errors.ErrNotInstalled, "%s", ref)
		}
		targets = append(targets, pkg)
	}
	return targets, nil
}

func (e *Engine) updateOne(ctx context.Context, pkg *model.InstalledPackage, opts Options) Item {
	item := Item{PkgID: pkg.PkgID, FromVersion: pkg.Version}

	rec, err := install.Resolve(ctx, e.db, model.PackageRef{RepoName: pkg.RepoName, Name: pkg.Name})
	if err != nil {
		item.Err = err
		return item
	}
	item.ToVersion = rec.Version

	if !opts.Force && !isNewer(pkg.Version, rec.Version) {
		logger.Debug("package is current", logger.Fields{"pkg_id": pkg.PkgID, "version": pkg.Version})
		return item
	}

	if opts.Confirm != nil && !opts.Yes && !opts.Confirm(pkg.PkgID, pkg.Version, rec.Version) {
		logger.Info("update declined", logger.Fields{"pkg_id": pkg.PkgID, "to": rec.Version})
		return item
	}

	ref := model.PackageRef{RepoName: pkg.RepoName, Name: pkg.Name}
	if _, err := e.installer.Install(ctx, ref, install.Options{Force: true}); err != nil {
		item.Err = err
		return item
	}
	item.Updated = true

	if err := e.pruneVersions(pkg.PkgID, rec.Version, opts.Keep); err != nil {
		// The update itself committed; pruning failure is advisory.
		logger.Warn("pruning old versions failed", logger.Fields{"pkg_id": pkg.PkgID, "error": err.Error()})
	}
	return item
}

// isNewer reports whether candidate is newer than installed. Versions that
// do not parse as semantic versions compare by inequality, treating any
// different repository version as an update.
func isNewer(installed, candidate string) bool {
	iv, ierr := version.NewVersion(installed)
	cv, cerr := version.NewVersion(candidate)
	if ierr != nil || cerr != nil {
		return installed != candidate
	}
	return cv.GreaterThan(iv)
}

// pruneVersions removes old version directories under the package's install
// root, keeping the current version plus the `keep` most recently modified
// previous ones.
func (e *Engine) pruneVersions(pkgID, currentVersion string, keep int) error {
	pkgDir := filepath.Join(e.cfg.PackagesDir(), fsutil.SanitizePathComponent(pkgID))
	entries, err := os.ReadDir(pkgDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "listing versions of %s", pkgID)
	}

	type oldVersion struct {
		name    string
		modTime int64
	}
	var old []oldVersion
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == currentVersion {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		old = append(old, oldVersion{name: entry.Name(), modTime: info.ModTime().UnixNano()})
	}

	sort.Slice(old, func(i, j int) bool { return old[i].modTime > old[j].modTime })
	if keep < 0 {
		keep = 0
	}
	if len(old) <= keep {
		return nil
	}
	for _, v := range old[keep:] {
		path := filepath.Join(pkgDir, v.name)
		if err := os.RemoveAll(path); err != nil {
			return errors.Wrapf(err, "removing %s", path)
		}
		logger.Debug("pruned old version", logger.Fields{"pkg_id": pkgID, "version": v.name})
	}
	return nil
}
