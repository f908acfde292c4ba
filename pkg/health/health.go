// Package health inspects the installed package state: every database row is
// checked against the filesystem it describes, and repair removes the leftovers
// of interrupted operations (rows without payloads, dangling symlinks,
// orphaned version directories).
package health

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/glorpus-work/porter/internal/logger"
	"github.com/glorpus-work/porter/pkg/config"
	"github.com/glorpus-work/porter/pkg/errors"
	"github.com/glorpus-work/porter/pkg/fsutil"
	"github.com/glorpus-work/porter/pkg/model"
)

// Database is the subset of the package database the health checker uses.
type Database interface {
	ListInstalled(ctx context.Context, repoName string, limit int) ([]*model.InstalledPackage, error)
	RemoveInstall(ctx context.Context, pkgID string) error
}

// Status classifies one installed package.
type Status string

// Possible classifications, from healthy to most damaged.
const (
	StatusOK                 Status = "ok"
	StatusBrokenSymlink      Status = "broken-symlink"
	StatusMissingInstallPath Status = "missing-install-path"
	StatusChecksumDrift      Status = "checksum-drift"
)

// Item is the health classification of one installed package.
type Item struct {
	PkgID  string
	Status Status
	Detail string
}

// Report is the outcome of a health check.
type Report struct {
	Items []Item
}

// Healthy reports whether every installed package checked out.
func (r Report) Healthy() bool {
	for _, it := range r.Items {
		if it.Status != StatusOK {
			return false
		}
	}
	return true
}

// RepairResult lists what a repair pass removed.
type RepairResult struct {
	RemovedRows     []string
	RemovedSymlinks []string
	RemovedDirs     []string
}

// Engine checks and repairs installed state.
type Engine struct {
	cfg *config.Config
	db  Database
}

// NewEngine constructs a health engine.
func NewEngine(cfg *config.Config, db Database) *Engine {
	return &Engine{cfg: cfg, db: db}
}

// Check classifies every installed package.
func (e *Engine) Check(ctx context.Context) (Report, error) {
	installed, err := e.db.ListInstalled(ctx, "", 0)
	if err != nil {
		return Report{}, err
	}

	report := Report{Items: make([]Item, 0, len(installed))}
	for _, pkg := range installed {
		report.Items = append(report.Items, e.checkOne(pkg))
	}
	return report, nil
}

func (e *Engine) checkOne(pkg *model.InstalledPackage) Item {
	item := Item{PkgID: pkg.PkgID, Status: StatusOK}

	if _, err := os.Stat(pkg.InstallPath); err != nil {
		item.Status = StatusMissingInstallPath
		item.Detail = pkg.InstallPath
		return item
	}

	if pkg.BinSymlink != "" {
		target, err := os.Readlink(pkg.BinSymlink)
		switch {
		case err != nil:
			item.Status = StatusBrokenSymlink
			item.Detail = pkg.BinSymlink
			return item
		case target != pkg.InstallPath:
			item.Status = StatusBrokenSymlink
			item.Detail = pkg.BinSymlink + " -> " + target
			return item
		}
	}

	if pkg.Checksum != "" {
		got, err := fileChecksum(pkg.InstallPath)
		if err != nil || got != strings.ToLower(pkg.Checksum) {
			item.Status = StatusChecksumDrift
			item.Detail = pkg.InstallPath
			return item
		}
	}
	return item
}

// Repair removes rows whose install path no longer exists, symlinks in the
// bin directory pointing nowhere, and version directories without a database
// row. It never prompts and never touches healthy installs.
func (e *Engine) Repair(ctx context.Context) (RepairResult, error) {
	var result RepairResult

	installed, err := e.db.ListInstalled(ctx, "", 0)
	if err != nil {
		return result, err
	}
	for _, pkg := range installed {
		if _, err := os.Stat(pkg.InstallPath); err == nil {
			continue
		}
		if pkg.BinSymlink != "" {
			_ = os.Remove(pkg.BinSymlink)
		}
		if err := e.db.RemoveInstall(ctx, pkg.PkgID); err != nil {
			return result, err
		}
		logger.Info("removed broken install record", logger.Fields{"pkg_id": pkg.PkgID})
		result.RemovedRows = append(result.RemovedRows, pkg.PkgID)
	}

	removedLinks, err := e.removeDanglingSymlinks()
	if err != nil {
		return result, err
	}
	result.RemovedSymlinks = removedLinks

	removedDirs, err := e.removeOrphanedDirs(ctx)
	if err != nil {
		return result, err
	}
	result.RemovedDirs = removedDirs

	return result, nil
}

// CleanCache empties the staged download area. Committed installs never live
// under the cache, so this is always safe.
func (e *Engine) CleanCache() error {
	staging := filepath.Join(e.cfg.CacheDir(), "staging")
	if err := os.RemoveAll(staging); err != nil {
		return errors.Wrap(err, "cleaning cache")
	}
	return nil
}

func (e *Engine) removeDanglingSymlinks() ([]string, error) {
	entries, err := os.ReadDir(e.cfg.BinDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "listing bin dir")
	}

	var removed []string
	for _, entry := range entries {
		linkPath := filepath.Join(e.cfg.BinDir(), entry.Name())
		info, err := os.Lstat(linkPath)
		if err != nil || info.Mode()&os.ModeSymlink == 0 {
			continue
		}
		if _, err := os.Stat(linkPath); err == nil {
			continue
		}
		if err := os.Remove(linkPath); err != nil {
			return removed, errors.Wrapf(err, "removing symlink %s", linkPath)
		}
		logger.Info("removed dangling symlink", logger.Fields{"path": linkPath})
		removed = append(removed, linkPath)
	}
	return removed, nil
}

func (e *Engine) removeOrphanedDirs(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(e.cfg.PackagesDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "listing packages dir")
	}

	installed, err := e.db.ListInstalled(ctx, "", 0)
	if err != nil {
		return nil, err
	}
	// Install trees are named by the sanitized pkg_id, not the raw one.
	live := make(map[string]bool, len(installed))
	for _, pkg := range installed {
		live[fsutil.SanitizePathComponent(pkg.PkgID)] = true
	}

	var removed []string
	for _, entry := range entries {
		if !entry.IsDir() || live[entry.Name()] {
			continue
		}
		dir := filepath.Join(e.cfg.PackagesDir(), entry.Name())
		if err := os.RemoveAll(dir); err != nil {
			return removed, errors.Wrapf(err, "removing %s", dir)
		}
		logger.Info("removed orphaned package dir", logger.Fields{"dir": dir})
		removed = append(removed, dir)
	}
	return removed, nil
}

func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
