package update

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glorpus-work/porter/pkg/config"
	"github.com/glorpus-work/porter/pkg/database"
	"github.com/glorpus-work/porter/pkg/errors"
	"github.com/glorpus-work/porter/pkg/install"
	"github.com/glorpus-work/porter/pkg/model"
)

type fakeDB struct {
	records   []model.PackageRecord
	installed map[string]*model.InstalledPackage
}

func (f *fakeDB) Query(_ context.Context, flt database.Filter) ([]model.PackageRecord, error) {
	var out []model.PackageRecord
	for _, rec := range f.records {
		if flt.RepoName != "" && rec.RepoName != flt.RepoName {
			continue
		}
		if flt.Name != "" && rec.Name != flt.Name {
			continue
		}
		if flt.PkgID != "" && rec.PkgID != flt.PkgID {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (f *fakeDB) FindInstalled(_ context.Context, pkgID string) (*model.InstalledPackage, error) {
	return f.installed[pkgID], nil
}

func (f *fakeDB) ListInstalled(_ context.Context, _ string, _ int) ([]*model.InstalledPackage, error) {
	var out []*model.InstalledPackage
	for _, pkg := range f.installed {
		out = append(out, pkg)
	}
	return out, nil
}

// fakeInstaller records install calls and simulates the committed version
// directory.
type fakeInstaller struct {
	cfg   *config.Config
	db    *fakeDB
	calls []model.PackageRef
	err   error
}

func (f *fakeInstaller) Install(_ context.Context, ref model.PackageRef, opts install.Options) (*install.Result, error) {
	f.calls = append(f.calls, ref)
	if f.err != nil {
		return nil, f.err
	}
	if !opts.Force {
		return nil, errors.ErrAlreadyInstalled
	}
	rec := f.db.records[0]
	dir := filepath.Join(f.cfg.PackagesDir(), rec.PkgID, rec.Version)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f.db.installed[rec.PkgID].Version = rec.Version
	return &install.Result{PkgID: rec.PkgID, Version: rec.Version}, nil
}

func newFixture(t *testing.T, installedVersion, repoVersion string) (*Engine, *fakeDB, *fakeInstaller, *config.Config) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Settings.RootDir = t.TempDir()
	db := &fakeDB{
		records: []model.PackageRecord{{
			RepoName: "core", PkgID: "jq#core", Name: "jq", Version: repoVersion,
		}},
		installed: map[string]*model.InstalledPackage{
			"jq#core": {PkgID: "jq#core", RepoName: "core", Name: "jq", Version: installedVersion},
		},
	}
	installer := &fakeInstaller{cfg: cfg, db: db}
	return NewEngine(cfg, db, installer), db, installer, cfg
}

func TestUpdateInstallsNewerVersion(t *testing.T) {
	engine, _, installer, _ := newFixture(t, "1.7.0", "1.7.1")

	result, err := engine.Update(context.Background(), nil, Options{})
	require.NoError(t, err)
	require.True(t, result.Ok())
	require.Len(t, result.Items, 1)
	assert.True(t, result.Items[0].Updated)
	assert.Equal(t, "1.7.0", result.Items[0].FromVersion)
	assert.Equal(t, "1.7.1", result.Items[0].ToVersion)
	assert.Len(t, installer.calls, 1)
}

func TestUpdateSkipsCurrentVersion(t *testing.T) {
	engine, _, installer, _ := newFixture(t, "1.7.1", "1.7.1")

	result, err := engine.Update(context.Background(), nil, Options{})
	require.NoError(t, err)
	assert.False(t, result.Items[0].Updated)
	assert.Empty(t, installer.calls)
}

func TestUpdateSkipsOlderRepoVersion(t *testing.T) {
	engine, _, installer, _ := newFixture(t, "1.8.0", "1.7.1")

	result, err := engine.Update(context.Background(), nil, Options{})
	require.NoError(t, err)
	assert.False(t, result.Items[0].Updated)
	assert.Empty(t, installer.calls)
}

func TestUpdateNonSemverComparesByInequality(t *testing.T) {
	engine, _, installer, _ := newFixture(t, "nightly-2024-01-01", "nightly-2024-06-01")

	result, err := engine.Update(context.Background(), nil, Options{})
	require.NoError(t, err)
	assert.True(t, result.Items[0].Updated)
	assert.Len(t, installer.calls, 1)
}

func TestUpdateForceReinstallsCurrent(t *testing.T) {
	engine, _, installer, _ := newFixture(t, "1.7.1", "1.7.1")

	result, err := engine.Update(context.Background(), nil, Options{Force: true})
	require.NoError(t, err)
	assert.True(t, result.Items[0].Updated)
	assert.Len(t, installer.calls, 1)
}

func TestUpdateConfirmDeclinedSkipsPackage(t *testing.T) {
	engine, _, installer, _ := newFixture(t, "1.7.0", "1.7.1")

	var asked []string
	result, err := engine.Update(context.Background(), nil, Options{
		Confirm: func(pkgID, from, to string) bool {
			asked = append(asked, pkgID+" "+from+" "+to)
			return false
		},
	})
	require.NoError(t, err)
	// A declined package is skipped, not failed.
	require.True(t, result.Ok())
	assert.False(t, result.Items[0].Updated)
	assert.Empty(t, installer.calls)
	assert.Equal(t, []string{"jq#core 1.7.0 1.7.1"}, asked)
}

func TestUpdateYesBypassesConfirm(t *testing.T) {
	engine, _, installer, _ := newFixture(t, "1.7.0", "1.7.1")

	called := false
	result, err := engine.Update(context.Background(), nil, Options{
		Yes:     true,
		Confirm: func(string, string, string) bool { called = true; return false },
	})
	require.NoError(t, err)
	assert.False(t, called)
	assert.True(t, result.Items[0].Updated)
	assert.Len(t, installer.calls, 1)
}

func TestUpdateConfirmNotAskedForCurrentVersion(t *testing.T) {
	engine, _, _, _ := newFixture(t, "1.7.1", "1.7.1")

	called := false
	_, err := engine.Update(context.Background(), nil, Options{
		Confirm: func(string, string, string) bool { called = true; return true },
	})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestUpdateExplicitRefNotInstalled(t *testing.T) {
	engine, db, _, _ := newFixture(t, "1.7.0", "1.7.1")
	db.installed = map[string]*model.InstalledPackage{}

	_, err := engine.Update(context.Background(), []model.PackageRef{model.ParseRef("jq")}, Options{})
	assert.ErrorIs(t, err, errors.ErrNotInstalled)
}

func TestUpdateCollectsInstallFailure(t *testing.T) {
	engine, _, installer, _ := newFixture(t, "1.7.0", "1.7.1")
	installer.err = errors.ErrNetwork

	result, err := engine.Update(context.Background(), nil, Options{})
	require.NoError(t, err)
	assert.False(t, result.Ok())
	assert.ErrorIs(t, result.Items[0].Err, errors.ErrNetwork)
	assert.False(t, result.Items[0].Updated)
}

func TestUpdatePrunesOldVersionsKeepOne(t *testing.T) {
	engine, _, _, cfg := newFixture(t, "1.7.0", "1.7.1")

	pkgDir := filepath.Join(cfg.PackagesDir(), "jq#core")
	oldest := filepath.Join(pkgDir, "1.6.0")
	previous := filepath.Join(pkgDir, "1.7.0")
	require.NoError(t, os.MkdirAll(oldest, 0o755))
	require.NoError(t, os.MkdirAll(previous, 0o755))
	// Make mtimes unambiguous: 1.7.0 is the newer previous version.
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(oldest, past, past))

	result, err := engine.Update(context.Background(), nil, Options{Keep: 1})
	require.NoError(t, err)
	require.True(t, result.Items[0].Updated)

	assert.DirExists(t, filepath.Join(pkgDir, "1.7.1"))
	assert.DirExists(t, previous)
	assert.NoDirExists(t, oldest)
}

func TestUpdatePrunesAllOldVersionsByDefault(t *testing.T) {
	engine, _, _, cfg := newFixture(t, "1.7.0", "1.7.1")

	pkgDir := filepath.Join(cfg.PackagesDir(), "jq#core")
	previous := filepath.Join(pkgDir, "1.7.0")
	require.NoError(t, os.MkdirAll(previous, 0o755))

	_, err := engine.Update(context.Background(), nil, Options{Keep: 0})
	require.NoError(t, err)

	assert.DirExists(t, filepath.Join(pkgDir, "1.7.1"))
	assert.NoDirExists(t, previous)
}
