// Package run executes a package without installing it. The binary is
// materialized into an ephemeral directory under the cache, executed with the
// caller's argv, and the directory is removed afterwards regardless of how
// the process exited. No installed record is ever written.
package run

import (
	"context"
	stderrors "errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/glorpus-work/porter/internal/logger"
	"github.com/glorpus-work/porter/pkg/config"
	"github.com/glorpus-work/porter/pkg/download"
	"github.com/glorpus-work/porter/pkg/errors"
	"github.com/glorpus-work/porter/pkg/fsutil"
	"github.com/glorpus-work/porter/pkg/install"
	"github.com/glorpus-work/porter/pkg/model"
)

// Options control one ephemeral run.
type Options struct {
	Args   []string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// Yes bypasses the Confirm callback.
	Yes bool
	// Confirm, when set and Yes is false, is asked before the package is
	// fetched and executed. Returning false aborts the run.
	Confirm func(rec *model.PackageRecord) bool
}

// Result reports the executed package and its exit code.
type Result struct {
	PkgID    string
	Version  string
	ExitCode int
}

// Engine materializes and executes packages.
type Engine struct {
	cfg     *config.Config
	db      install.Querier
	fetcher install.Fetcher
}

// NewEngine constructs a run engine.
func NewEngine(cfg *config.Config, db install.Querier, fetcher install.Fetcher) *Engine {
	return &Engine{cfg: cfg, db: db, fetcher: fetcher}
}

// Run resolves ref, stages its binary into an ephemeral directory and
// executes it. A non-zero exit status is reported in the result, not as an
// error; the error covers resolution, staging and spawn failures only.
func (e *Engine) Run(ctx context.Context, ref model.PackageRef, opts Options) (Result, error) {
	rec, err := install.Resolve(ctx, e.db, ref)
	if err != nil {
		return Result{}, err
	}
	result := Result{PkgID: rec.PkgID, Version: rec.Version}

	if opts.Confirm != nil && !opts.Yes && !opts.Confirm(rec) {
		return result, errors.Wrapf(errors.ErrConfirmationDeclined, "run %s", rec.PkgID)
	}

	runRoot := filepath.Join(e.cfg.CacheDir(), "run")
	if err := fsutil.EnsureDir(runRoot, fsutil.DirModePrivate); err != nil {
		return result, errors.Wrap(err, "creating run dir")
	}
	dir, err := os.MkdirTemp(runRoot, fsutil.SanitizePathComponent(rec.PkgID)+"-*")
	if err != nil {
		return result, errors.Wrap(err, "creating ephemeral dir")
	}
	// Cleanup happens whether the process ran, failed or never started.
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			logger.Warn("ephemeral dir cleanup failed", logger.Fields{"dir": dir, "error": rmErr.Error()})
		}
	}()

	binPath, err := e.materialize(ctx, rec, dir)
	if err != nil {
		return result, err
	}

	logger.Debug("running package", logger.Fields{"pkg_id": rec.PkgID, "bin": binPath})

	cmd := exec.CommandContext(ctx, binPath, opts.Args...)
	cmd.Stdin = opts.Stdin
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if stderrors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, errors.Wrapf(err, "running %s", rec.PkgID)
	}
	return result, nil
}

func (e *Engine) materialize(ctx context.Context, rec *model.PackageRecord, dir string) (string, error) {
	u := rec.GetURL()
	if u == nil {
		return "", errors.Wrapf(errors.ErrInvalidPath, "package %s has no usable origin URL", rec.PkgID)
	}
	res, err := e.fetcher.Fetch(ctx, download.Asset{
		Name: rec.EffectiveBinName(),
		URL:  u,
		Size: rec.Size,
	}, dir, download.Options{Checksum: rec.Checksum})
	if err != nil {
		return "", err
	}
	if err := fsutil.MakeExecutable(res.Path); err != nil {
		return "", err
	}
	return res.Path, nil
}
