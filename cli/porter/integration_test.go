//go:build integration
// +build integration

package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glorpus-work/porter/pkg/config"
	"github.com/glorpus-work/porter/test/testutil"
)

// execPorter runs the CLI in-process and captures its stdout.
func execPorter(t *testing.T, args ...string) (string, error) {
	t.Helper()

	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	cmd := newRootCmd()
	cmd.SetArgs(args)
	runErr := cmd.ExecuteContext(context.Background())

	os.Stdout = oldStdout
	_ = w.Close()
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	_ = r.Close()

	return string(out), runErr
}

func TestInstallLifecycle(t *testing.T) {
	repo := testutil.NewRepoServer(t, "core")
	repo.AddPackage(t, "hello", "1.0.0", []byte("#!/bin/sh\necho hello\n"))
	configPath := repo.WriteConfig(t)

	out, err := execPorter(t, "--config", configPath, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "core")

	out, err = execPorter(t, "--config", configPath, "install", "hello")
	require.NoError(t, err)
	assert.Contains(t, out, "hello")

	cfg, err := config.LoadConfig(configPath)
	require.NoError(t, err)
	link := filepath.Join(cfg.BinDir(), "hello")
	target, err := os.Readlink(link)
	require.NoError(t, err)
	assert.FileExists(t, target)

	out, err = execPorter(t, "--config", configPath, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "1.0.0")

	out, err = execPorter(t, "--config", configPath, "health")
	require.NoError(t, err)
	assert.Contains(t, out, "ok")

	_, err = execPorter(t, "--config", configPath, "remove", "hello")
	require.NoError(t, err)
	assert.NoFileExists(t, link)

	out, err = execPorter(t, "--config", configPath, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No packages installed")
}

func TestQueryAndSearch(t *testing.T) {
	repo := testutil.NewRepoServer(t, "core")
	repo.AddPackage(t, "ripgrep", "14.1.0", []byte("payload"))
	configPath := repo.WriteConfig(t)

	_, err := execPorter(t, "--config", configPath, "sync")
	require.NoError(t, err)

	out, err := execPorter(t, "--config", configPath, "search", "rip")
	require.NoError(t, err)
	assert.Contains(t, out, "ripgrep")
	assert.Contains(t, out, "14.1.0")

	out, err = execPorter(t, "--config", configPath, "query", "ripgrep")
	require.NoError(t, err)
	assert.Contains(t, out, "Repository: core")
	assert.Contains(t, out, "Installed:  no")
}

func TestUpdatePicksUpNewVersion(t *testing.T) {
	repo := testutil.NewRepoServer(t, "core")
	repo.AddPackage(t, "tool", "1.0.0", []byte("v1"))
	configPath := repo.WriteConfig(t)

	_, err := execPorter(t, "--config", configPath, "sync")
	require.NoError(t, err)
	_, err = execPorter(t, "--config", configPath, "install", "tool")
	require.NoError(t, err)

	repo.SetPackages(nil)
	repo.AddPackage(t, "tool", "2.0.0", []byte("v2"))
	_, err = execPorter(t, "--config", configPath, "sync")
	require.NoError(t, err)

	out, err := execPorter(t, "--config", configPath, "update")
	require.NoError(t, err)
	assert.Contains(t, out, "1 of 1 packages updated")
	assert.Contains(t, out, "1.0.0 -> 2.0.0")
}

func TestDownloadDirectURL(t *testing.T) {
	repo := testutil.NewRepoServer(t, "core")
	rec := repo.AddPackage(t, "asset", "1.0.0", []byte("asset-body"))
	configPath := repo.WriteConfig(t)
	destDir := t.TempDir()

	out, err := execPorter(t, "--config", configPath, "download", rec.OriginURL, "-d", destDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Downloaded")
	assert.FileExists(t, filepath.Join(destDir, "asset-1.0.0"))
}

func TestEnvShowsLayout(t *testing.T) {
	repo := testutil.NewRepoServer(t, "core")
	configPath := repo.WriteConfig(t)

	out, err := execPorter(t, "--config", configPath, "env")
	require.NoError(t, err)
	assert.Contains(t, out, "Bin:")
	assert.Contains(t, out, "Packages:")
}
