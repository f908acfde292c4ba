package run

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glorpus-work/porter/pkg/config"
	"github.com/glorpus-work/porter/pkg/database"
	"github.com/glorpus-work/porter/pkg/download"
	"github.com/glorpus-work/porter/pkg/errors"
	"github.com/glorpus-work/porter/pkg/model"
)

type fakeDB struct {
	records []model.PackageRecord
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

func newEngine(t *testing.T, script string) (*Engine, *config.Config) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(script))
	}))
	t.Cleanup(server.Close)

	cfg := config.DefaultConfig()
	cfg.Settings.RootDir = t.TempDir()
	db := &fakeDB{records: []model.PackageRecord{{
		RepoName:  "core",
		PkgID:     "hello#core",
		Name:      "hello",
		Version:   "1.0.0",
		OriginURL: server.URL + "/hello",
	}}}
	return NewEngine(cfg, db, download.NewManager(&http.Client{}, nil, 0)), cfg
}

func TestRunExecutesWithArgs(t *testing.T) {
	engine, cfg := newEngine(t, "#!/bin/sh\necho \"hello $1\"\n")

	var stdout bytes.Buffer
	res, err := engine.Run(context.Background(), model.ParseRef("hello"), Options{
		Args:   []string{"world"},
		Stdout: &stdout,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hello world\n", stdout.String())
	assert.Equal(t, "hello#core", res.PkgID)

	// The ephemeral directory is gone after the run.
	entries, err := os.ReadDir(filepath.Join(cfg.CacheDir(), "run"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunReportsExitCode(t *testing.T) {
	engine, cfg := newEngine(t, "#!/bin/sh\nexit 3\n")

	res, err := engine.Run(context.Background(), model.ParseRef("hello"), Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)

	// Cleanup happens for failing processes too.
	entries, err := os.ReadDir(filepath.Join(cfg.CacheDir(), "run"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunUnknownPackage(t *testing.T) {
	engine, _ := newEngine(t, "#!/bin/sh\n")
	_, err := engine.Run(context.Background(), model.ParseRef("missing"), Options{})
	assert.ErrorIs(t, err, errors.ErrPackageNotFound)
}

func TestRunConfirmDeclined(t *testing.T) {
	engine, cfg := newEngine(t, "#!/bin/sh\necho ran\n")

	var stdout bytes.Buffer
	_, err := engine.Run(context.Background(), model.ParseRef("hello"), Options{
		Stdout:  &stdout,
		Confirm: func(rec *model.PackageRecord) bool { return false },
	})
	require.ErrorIs(t, err, errors.ErrConfirmationDeclined)
	assert.Empty(t, stdout.String())
	assert.NoDirExists(t, filepath.Join(cfg.CacheDir(), "run"))
}

func TestRunYesBypassesConfirm(t *testing.T) {
	engine, _ := newEngine(t, "#!/bin/sh\nexit 0\n")

	called := false
	res, err := engine.Run(context.Background(), model.ParseRef("hello"), Options{
		Yes:     true,
		Confirm: func(*model.PackageRecord) bool { called = true; return false },
	})
	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, 0, res.ExitCode)
}

func TestRunLeavesNoInstalledState(t *testing.T) {
	engine, cfg := newEngine(t, "#!/bin/sh\nexit 0\n")

	_, err := engine.Run(context.Background(), model.ParseRef("hello"), Options{})
	require.NoError(t, err)

	assert.NoDirExists(t, filepath.Join(cfg.PackagesDir(), "hello#core"))
	assert.NoFileExists(t, filepath.Join(cfg.BinDir(), "hello"))
}
