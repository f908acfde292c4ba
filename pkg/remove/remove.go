// Package remove implements package removal. Artifacts are dismantled in
// symlink, install tree, portable directories, database row order: the user
// facing entry point disappears first and the record last, so an interrupted
// removal is always visible as a broken install rather than a phantom row.
package remove

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/glorpus-work/porter/internal/logger"
	"github.com/glorpus-work/porter/pkg/config"
	"github.com/glorpus-work/porter/pkg/errors"
	"github.com/glorpus-work/porter/pkg/hook"
	"github.com/glorpus-work/porter/pkg/model"
)

// Database is the subset of the package database the removal engine uses.
type Database interface {
	FindInstalled(ctx context.Context, pkgID string) (*model.InstalledPackage, error)
	ListInstalled(ctx context.Context, repoName string, limit int) ([]*model.InstalledPackage, error)
	RemoveInstall(ctx context.Context, pkgID string) error
}

// Item reports the outcome for one package.
type Item struct {
	PkgID string
	Err   error
}

// Result aggregates per-package outcomes.
type Result struct {
	Items []Item
}

// Ok reports whether every removal succeeded.
func (r Result) Ok() bool {
	for _, it := range r.Items {
		if it.Err != nil {
			return false
		}
	}
	return true
}

// Engine performs removals.
type Engine struct {
	cfg   *config.Config
	db    Database
	hooks *hook.Executor
}

// NewEngine constructs a removal engine. hooks may be nil.
func NewEngine(cfg *config.Config, db Database, hooks *hook.Executor) *Engine {
	return &Engine{cfg: cfg, db: db, hooks: hooks}
}

// Remove removes the referenced packages. Failures are collected per package.
func (e *Engine) Remove(ctx context.Context, refs []model.PackageRef) (Result, error) {
	result := Result{Items: make([]Item, 0, len(refs))}
	for _, ref := range refs {
		pkg, err := e.resolveInstalled(ctx, ref)
		if err != nil {
			result.Items = append(result.Items, Item{PkgID: ref.String(), Err: err})
			continue
		}
		result.Items = append(result.Items, Item{PkgID: pkg.PkgID, Err: e.removeOne(ctx, pkg)})
	}
	return result, nil
}

// resolveInstalled maps a reference to an installed row by pkg_id or by name,
// optionally qualified by repository.
func (e *Engine) resolveInstalled(ctx context.Context, ref model.PackageRef) (*model.InstalledPackage, error) {
	if pkg, err := e.db.FindInstalled(ctx, ref.Name); err != nil {
		return nil, err
	} else if pkg != nil && (ref.RepoName == "" || pkg.RepoName == ref.RepoName) {
		return pkg, nil
	}

	installed, err := e.db.ListInstalled(ctx, ref.RepoName, 0)
	if err != nil {
		return nil, err
	}
	var matches []*model.InstalledPackage
	for _, pkg := range installed {
		if pkg.Name == ref.Name {
			matches = append(matches, pkg)
		}
	}
	switch len(matches) {
	case 0:
		return nil, errors.Wrapf(errors.ErrNotInstalled, "%s", ref)
	case 1:
		return matches[0], nil
	default:
		repos := make([]string, len(matches))
		for i, pkg := range matches {
			repos[i] = pkg.RepoName
		}
		return nil, errors.Wrapf(errors.ErrAmbiguousPackage,
			"%s installed from repositories %s", ref.Name, strings.Join(repos, ", "))
	}
}

func (e *Engine) removeOne(ctx context.Context, pkg *model.InstalledPackage) error {
	logger.Info("removing package", logger.Fields{"pkg_id": pkg.PkgID, "version": pkg.Version})

	if e.hooks != nil {
		if err := e.hooks.Execute(hook.PreRemove, hookContext(pkg)); err != nil {
			return err
		}
	}

	if pkg.BinSymlink != "" {
		if err := os.Remove(pkg.BinSymlink); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(err, "removing symlink")
		}
	}

	// The install tree holds every version of the package. Only paths inside
	// the packages root are eligible for recursive removal.
	if tree := e.installTree(pkg); tree != "" {
		if err := os.RemoveAll(tree); err != nil {
			return errors.Wrap(err, "removing install tree")
		}
	}

	for _, dir := range pkg.PortableDirs() {
		if err := os.RemoveAll(dir); err != nil {
			return errors.Wrap(err, "removing portable dir")
		}
	}
	if pkg.PortableBase != "" {
		if err := os.Remove(pkg.PortableBase); err != nil && !os.IsNotExist(err) {
			logger.Debug("portable base not empty, leaving in place", logger.Fields{"dir": pkg.PortableBase})
		}
	}

	if err := e.db.RemoveInstall(ctx, pkg.PkgID); err != nil {
		return err
	}

	if e.hooks != nil {
		if err := e.hooks.Execute(hook.PostRemove, hookContext(pkg)); err != nil {
			logger.Warn("post-remove hook failed", logger.Fields{"pkg_id": pkg.PkgID, "error": err.Error()})
		}
	}
	return nil
}

// installTree resolves the per-package directory holding all installed
// versions, refusing anything that escapes the packages root.
func (e *Engine) installTree(pkg *model.InstalledPackage) string {
	if pkg.InstallPath == "" {
		return ""
	}
	root := e.cfg.PackagesDir()
	tree := filepath.Dir(filepath.Dir(pkg.InstallPath))
	if strings.HasPrefix(tree, root+string(os.PathSeparator)) {
		return tree
	}
	// An install path outside the packages root still gets its version
	// directory removed, never anything above it.
	if dir := filepath.Dir(pkg.InstallPath); strings.HasPrefix(dir, root+string(os.PathSeparator)) {
		return dir
	}
	return ""
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
