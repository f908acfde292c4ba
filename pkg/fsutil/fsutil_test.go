package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMove(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "sub", "dst.bin")
	require.NoError(t, os.WriteFile(src, []byte("payload"), FileModeDefault))

	require.NoError(t, Move(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
	assert.NoFileExists(t, src)
}

func TestMoveEmptyPaths(t *testing.T) {
	assert.Error(t, Move("", "/tmp/x"))
	assert.Error(t, Move("/tmp/x", ""))
}

func TestCopy(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a")
	dst := filepath.Join(dir, "b")
	require.NoError(t, os.WriteFile(src, []byte("data"), FileModeDefault))

	require.NoError(t, Copy(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
	assert.FileExists(t, src)
}

func TestReplaceSymlink(t *testing.T) {
	dir := t.TempDir()
	target1 := filepath.Join(dir, "v1", "bin")
	target2 := filepath.Join(dir, "v2", "bin")
	for _, target := range []string{target1, target2} {
		require.NoError(t, os.MkdirAll(filepath.Dir(target), DirModeDefault))
		require.NoError(t, os.WriteFile(target, []byte("x"), FileModeExec))
	}
	link := filepath.Join(dir, "bin", "tool")

	require.NoError(t, ReplaceSymlink(target1, link))
	got, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, target1, got)

	// Replacing an existing link must not fail.
	require.NoError(t, ReplaceSymlink(target2, link))
	got, err = os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, target2, got)
}

func TestEnsureDir(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b", "c")
	require.NoError(t, EnsureDir(nested, DirModePrivate))
	info, err := os.Stat(nested)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
