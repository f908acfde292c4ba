package health

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glorpus-work/porter/pkg/config"
	"github.com/glorpus-work/porter/pkg/database"
	"github.com/glorpus-work/porter/pkg/fsutil"
	"github.com/glorpus-work/porter/pkg/model"
)

type fixture struct {
	cfg    *config.Config
	db     *database.DB
	engine *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Settings.RootDir = t.TempDir()
	db, err := database.Open(cfg.DBDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &fixture{cfg: cfg, db: db, engine: NewEngine(cfg, db)}
}

// installPackage materializes a consistent install: payload, symlink and row.
func (fx *fixture) installPackage(t *testing.T, pkgID, name string) *model.InstalledPackage {
	t.Helper()
	payload := []byte("binary " + pkgID)
	sum := sha256.Sum256(payload)

	installPath := filepath.Join(fx.cfg.PackagesDir(), fsutil.SanitizePathComponent(pkgID), "1.0.0", name)
	require.NoError(t, os.MkdirAll(filepath.Dir(installPath), 0o755))
	require.NoError(t, os.WriteFile(installPath, payload, 0o755))

	binSymlink := filepath.Join(fx.cfg.BinDir(), name)
	require.NoError(t, os.MkdirAll(fx.cfg.BinDir(), 0o755))
	require.NoError(t, os.Symlink(installPath, binSymlink))

	pkg := &model.InstalledPackage{
		PkgID:       pkgID,
		RepoName:    "core",
		Name:        name,
		Version:     "1.0.0",
		Checksum:    hex.EncodeToString(sum[:]),
		InstallPath: installPath,
		BinSymlink:  binSymlink,
		InstalledAt: time.Now(),
	}
	require.NoError(t, fx.db.RecordInstall(context.Background(), pkg))
	return pkg
}

func statusOf(t *testing.T, report Report, pkgID string) Item {
	t.Helper()
	for _, it := range report.Items {
		if it.PkgID == pkgID {
			return it
		}
	}
	t.Fatalf("no report item for %s", pkgID)
	return Item{}
}

func TestCheckHealthyInstall(t *testing.T) {
	fx := newFixture(t)
	fx.installPackage(t, "jq#core", "jq")

	report, err := fx.engine.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Healthy())
	assert.Equal(t, StatusOK, statusOf(t, report, "jq#core").Status)
}

func TestCheckClassifications(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	missing := fx.installPackage(t, "fd#core", "fd")
	require.NoError(t, os.RemoveAll(filepath.Dir(missing.InstallPath)))

	broken := fx.installPackage(t, "rg#core", "rg")
	require.NoError(t, os.Remove(broken.BinSymlink))
	require.NoError(t, os.Symlink("/nowhere", broken.BinSymlink))

	drifted := fx.installPackage(t, "bat#core", "bat")
	require.NoError(t, os.WriteFile(drifted.InstallPath, []byte("tampered"), 0o755))

	fx.installPackage(t, "jq#core", "jq")

	report, err := fx.engine.Check(ctx)
	require.NoError(t, err)
	assert.False(t, report.Healthy())
	assert.Equal(t, StatusMissingInstallPath, statusOf(t, report, "fd#core").Status)
	assert.Equal(t, StatusBrokenSymlink, statusOf(t, report, "rg#core").Status)
	assert.Equal(t, StatusChecksumDrift, statusOf(t, report, "bat#core").Status)
	assert.Equal(t, StatusOK, statusOf(t, report, "jq#core").Status)
}

func TestRepairRemovesBrokenState(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	// Row whose payload is gone.
	missing := fx.installPackage(t, "fd#core", "fd")
	require.NoError(t, os.RemoveAll(filepath.Dir(filepath.Dir(missing.InstallPath))))

	// Dangling symlink with no row.
	dangling := filepath.Join(fx.cfg.BinDir(), "ghost")
	require.NoError(t, os.MkdirAll(fx.cfg.BinDir(), 0o755))
	require.NoError(t, os.Symlink("/nowhere", dangling))

	// Version dir with no row.
	orphan := filepath.Join(fx.cfg.PackagesDir(), "old#core")
	require.NoError(t, os.MkdirAll(filepath.Join(orphan, "0.1.0"), 0o755))

	// Healthy install stays untouched.
	healthy := fx.installPackage(t, "jq#core", "jq")

	result, err := fx.engine.Repair(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"fd#core"}, result.RemovedRows)
	assert.Contains(t, result.RemovedSymlinks, dangling)
	assert.Contains(t, result.RemovedDirs, orphan)

	row, err := fx.db.FindInstalled(ctx, "fd#core")
	require.NoError(t, err)
	assert.Nil(t, row)
	assert.NoDirExists(t, orphan)
	_, err = os.Lstat(dangling)
	assert.True(t, os.IsNotExist(err))

	assert.FileExists(t, healthy.InstallPath)
	row, err = fx.db.FindInstalled(ctx, "jq#core")
	require.NoError(t, err)
	assert.NotNil(t, row)
}

func TestRepairKeepsHealthyInstallWithSanitizedDirName(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	// The row keeps the raw id while the install tree uses the sanitized name.
	pkg := fx.installPackage(t, "jq:core", "jq")
	require.DirExists(t, filepath.Join(fx.cfg.PackagesDir(), "jq_core"))

	report, err := fx.engine.Check(ctx)
	require.NoError(t, err)
	assert.True(t, report.Healthy())

	result, err := fx.engine.Repair(ctx)
	require.NoError(t, err)
	assert.Empty(t, result.RemovedDirs)
	assert.Empty(t, result.RemovedRows)
	assert.FileExists(t, pkg.InstallPath)

	row, err := fx.db.FindInstalled(ctx, "jq:core")
	require.NoError(t, err)
	require.NotNil(t, row)
}

func TestRepairOnEmptyState(t *testing.T) {
	fx := newFixture(t)
	result, err := fx.engine.Repair(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.RemovedRows)
	assert.Empty(t, result.RemovedSymlinks)
	assert.Empty(t, result.RemovedDirs)
}

func TestCleanCache(t *testing.T) {
	fx := newFixture(t)
	staging := filepath.Join(fx.cfg.CacheDir(), "staging", "jq#core")
	require.NoError(t, os.MkdirAll(staging, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(staging, "jq"), []byte("partial"), 0o644))

	require.NoError(t, fx.engine.CleanCache())
	assert.NoDirExists(t, filepath.Join(fx.cfg.CacheDir(), "staging"))
}
