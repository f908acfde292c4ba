package remove

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glorpus-work/porter/pkg/config"
	"github.com/glorpus-work/porter/pkg/database"
	"github.com/glorpus-work/porter/pkg/download"
	"github.com/glorpus-work/porter/pkg/errors"
	"github.com/glorpus-work/porter/pkg/hook"
	"github.com/glorpus-work/porter/pkg/install"
	"github.com/glorpus-work/porter/pkg/model"
)

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Settings.RootDir = t.TempDir()
	return cfg
}

func openTestDB(t *testing.T, cfg *config.Config) *database.DB {
	t.Helper()
	db, err := database.Open(cfg.DBDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRemoveInstalledRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("payload"))
	}))
	defer server.Close()

	cfg := newTestConfig(t)
	db := openTestDB(t, cfg)

	ctx := context.Background()
	require.NoError(t, db.ReplaceRepoPackages(ctx, "core", []model.PackageRecord{{
		RepoName:  "core",
		PkgID:     "jq#core",
		Name:      "jq",
		Version:   "1.7.1",
		OriginURL: server.URL + "/jq",
	}}))

	installer := install.NewEngine(cfg, db, download.NewManager(&http.Client{}, nil, 0), nil)
	res, err := installer.Install(ctx, model.ParseRef("jq"), install.Options{})
	require.NoError(t, err)
	require.FileExists(t, res.InstallPath)

	engine := NewEngine(cfg, db, nil)
	result, err := engine.Remove(ctx, []model.PackageRef{model.ParseRef("jq")})
	require.NoError(t, err)
	require.True(t, result.Ok())

	// Symlink, install tree and row are all gone.
	_, err = os.Lstat(res.BinSymlink)
	assert.True(t, os.IsNotExist(err))
	assert.NoDirExists(t, filepath.Join(cfg.PackagesDir(), "jq#core"))
	row, err := db.FindInstalled(ctx, "jq#core")
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestRemoveNotInstalled(t *testing.T) {
	cfg := newTestConfig(t)
	db := openTestDB(t, cfg)

	engine := NewEngine(cfg, db, nil)
	result, err := engine.Remove(context.Background(), []model.PackageRef{model.ParseRef("jq")})
	require.NoError(t, err)
	assert.False(t, result.Ok())
	assert.ErrorIs(t, result.Items[0].Err, errors.ErrNotInstalled)
}

func TestRemoveAmbiguousInstalledName(t *testing.T) {
	cfg := newTestConfig(t)
	db := openTestDB(t, cfg)
	ctx := context.Background()

	for _, repo := range []string{"core", "extras"} {
		require.NoError(t, db.RecordInstall(ctx, &model.InstalledPackage{
			PkgID: "jq#" + repo, RepoName: repo, Name: "jq", Version: "1.7.1",
			InstallPath: "/nonexistent", InstalledAt: time.Now(),
		}))
	}

	engine := NewEngine(cfg, db, nil)
	result, err := engine.Remove(ctx, []model.PackageRef{model.ParseRef("jq")})
	require.NoError(t, err)
	assert.ErrorIs(t, result.Items[0].Err, errors.ErrAmbiguousPackage)

	// Qualifying the reference disambiguates.
	result, err = engine.Remove(ctx, []model.PackageRef{model.ParseRef("extras/jq")})
	require.NoError(t, err)
	assert.True(t, result.Ok())
	row, err := db.FindInstalled(ctx, "jq#extras")
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestRemoveDeletesPortableDirs(t *testing.T) {
	cfg := newTestConfig(t)
	db := openTestDB(t, cfg)
	ctx := context.Background()

	base := filepath.Join(t.TempDir(), "portable")
	for _, sub := range []string{"home", "config", "share"} {
		require.NoError(t, os.MkdirAll(filepath.Join(base, sub), 0o755))
	}
	require.NoError(t, db.RecordInstall(ctx, &model.InstalledPackage{
		PkgID: "jq#core", RepoName: "core", Name: "jq", Version: "1.7.1",
		InstallPath: filepath.Join(cfg.PackagesDir(), "jq#core", "1.7.1", "jq"),
		PortableBase: base, InstalledAt: time.Now(),
	}))

	engine := NewEngine(cfg, db, nil)
	result, err := engine.Remove(ctx, []model.PackageRef{model.ParseRef("jq")})
	require.NoError(t, err)
	require.True(t, result.Ok())
	assert.NoDirExists(t, base)
}

func TestRemovePreHookFailureAborts(t *testing.T) {
	cfg := newTestConfig(t)
	db := openTestDB(t, cfg)
	ctx := context.Background()

	require.NoError(t, db.RecordInstall(ctx, &model.InstalledPackage{
		PkgID: "jq#core", RepoName: "core", Name: "jq", Version: "1.7.1",
		InstallPath: "/nonexistent", InstalledAt: time.Now(),
	}))

	hooks := hook.NewExecutor()
	hooks.Add(hook.PreRemove, `err := "package is pinned"`)
	engine := NewEngine(cfg, db, hooks)

	result, err := engine.Remove(ctx, []model.PackageRef{model.ParseRef("jq")})
	require.NoError(t, err)
	assert.ErrorIs(t, result.Items[0].Err, errors.ErrHookScript)

	// The row survives an aborted removal.
	row, err := db.FindInstalled(ctx, "jq#core")
	require.NoError(t, err)
	assert.NotNil(t, row)
}

func TestRemoveByPkgID(t *testing.T) {
	cfg := newTestConfig(t)
	db := openTestDB(t, cfg)
	ctx := context.Background()

	require.NoError(t, db.RecordInstall(ctx, &model.InstalledPackage{
		PkgID: "jq#core", RepoName: "core", Name: "jq", Version: "1.7.1",
		InstallPath: "/nonexistent", InstalledAt: time.Now(),
	}))

	engine := NewEngine(cfg, db, nil)
	result, err := engine.Remove(ctx, []model.PackageRef{model.ParseRef("jq#core")})
	require.NoError(t, err)
	assert.True(t, result.Ok())
}
