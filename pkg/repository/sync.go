// Package repository implements the sync engine: it fetches each configured
// repository's metadata document, validates it, atomically replaces the local
// shard file, and replaces the repository's rows in the package database.
// Repositories sync independently; one failure never aborts the others.
package repository

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/glorpus-work/porter/internal/logger"
	"github.com/glorpus-work/porter/pkg/config"
	"github.com/glorpus-work/porter/pkg/errors"
	"github.com/glorpus-work/porter/pkg/fsutil"
	"github.com/glorpus-work/porter/pkg/model"
)

// Database is the subset of the package database the sync engine uses.
type Database interface {
	ReplaceRepoPackages(ctx context.Context, repoName string, records []model.PackageRecord) error
}

// Engine fetches repository metadata and keeps the local mirror consistent.
type Engine struct {
	cfg    *config.Config
	db     Database
	client *http.Client
}

// NewEngine constructs a sync engine.
func NewEngine(cfg *config.Config, db Database, client *http.Client) *Engine {
	return &Engine{cfg: cfg, db: db, client: client}
}

// RepoResult reports the outcome of syncing one repository.
type RepoResult struct {
	Name     string
	Packages int
	Err      error
}

// Result aggregates per-repository outcomes in configuration order.
type Result struct {
	Repos []RepoResult
}

// Ok reports whether every repository synced successfully.
func (r Result) Ok() bool {
	for _, repo := range r.Repos {
		if repo.Err != nil {
			return false
		}
	}
	return true
}

// Sync fetches and applies metadata for all enabled repositories. Syncs run
// concurrently, bounded by MaxConcurrent; the returned result lists
// repositories in configuration order regardless of completion order. The
// error is non-nil only for failures outside any single repository.
func (e *Engine) Sync(ctx context.Context) (Result, error) {
	repos := e.cfg.EnabledRepositories()
	result := Result{Repos: make([]RepoResult, len(repos))}
	if len(repos) == 0 {
		return result, nil
	}

	if err := fsutil.EnsureDir(e.cfg.ReposDir(), fsutil.DirModeDefault); err != nil {
		return result, errors.Wrap(err, "creating repositories dir")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Settings.MaxConcurrent)

	for i, repo := range repos {
		g.Go(func() error {
			count, err := e.syncOne(gctx, repo)
			result.Repos[i] = RepoResult{Name: repo.Name, Packages: count, Err: err}
			// Per-repo failures are collected, not propagated, so the
			// remaining repositories still sync.
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}
	return result, nil
}

// syncOne fetches, validates and applies one repository's metadata. The shard
// is written to a temporary file in the same directory and renamed into
// place, so concurrent readers see either the old or the new content.
func (e *Engine) syncOne(ctx context.Context, repo *config.RepositoryConfig) (int, error) {
	logger.Debug("syncing repository", logger.Fields{"repo": repo.Name, "url": repo.URL})

	data, err := e.fetch(ctx, repo.URL)
	if err != nil {
		return 0, err
	}

	meta, err := ParseMetadata(repo.Name, data)
	if err != nil {
		return 0, err
	}

	shardPath := e.ShardPath(repo.Name)
	if err := writeShard(shardPath, data); err != nil {
		return 0, err
	}

	if err := e.db.ReplaceRepoPackages(ctx, repo.Name, meta.Packages); err != nil {
		return 0, err
	}

	logger.Info("repository synced", logger.Fields{"repo": repo.Name, "packages": len(meta.Packages)})
	return len(meta.Packages), nil
}

// ShardPath returns the local metadata shard path for a repository.
func (e *Engine) ShardPath(repoName string) string {
	return filepath.Join(e.cfg.ReposDir(), repoName+".json")
}

func (e *Engine) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, errors.Wrap(errors.ErrNetwork, err.Error())
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrNetwork, err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(errors.ErrHTTPStatus, "%s returned %d", rawURL, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(errors.ErrNetwork, err.Error())
	}
	return data, nil
}

// writeShard replaces the shard atomically. Identical content is left
// untouched so repeated syncs of unchanged repositories are byte-for-byte
// no-ops.
func writeShard(shardPath string, data []byte) error {
	if existing, err := os.ReadFile(shardPath); err == nil && bytes.Equal(existing, data) {
		return nil
	}

	dir := filepath.Dir(shardPath)
	tmp, err := os.CreateTemp(dir, "shard-*.tmp")
	if err != nil {
		return fmt.Errorf("creating shard temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("writing shard: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("syncing shard: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("closing shard temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, fsutil.FileModeDefault); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("setting shard permissions: %w", err)
	}
	if err := os.Rename(tmpPath, shardPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replacing shard: %w", err)
	}
	return nil
}

// Repositories returns the sync state of all configured repositories, using
// the shard file modification time as the last sync time.
func (e *Engine) Repositories() []model.Repository {
	repos := make([]model.Repository, 0, len(e.cfg.Repositories))
	for _, rc := range e.cfg.Repositories {
		repo := model.Repository{
			Name:        rc.Name,
			MetadataURL: rc.URL,
			ShardPath:   e.ShardPath(rc.Name),
		}
		if st, err := os.Stat(repo.ShardPath); err == nil {
			repo.LastSyncTime = st.ModTime()
		}
		repos = append(repos, repo)
	}
	return repos
}
