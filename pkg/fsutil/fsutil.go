// Package fsutil provides the filesystem helpers porter's engines rely on:
// atomic moves, directory creation and the permission constants used for
// installed artifacts.
package fsutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// Permission modes used throughout porter.
const (
	// FileModeDefault is the mode for regular files such as metadata shards.
	FileModeDefault = 0o644
	// FileModeExec is the mode for installed binaries.
	FileModeExec = 0o755
	// DirModeDefault is the mode for shared directories.
	DirModeDefault = 0o755
	// DirModePrivate is the mode for state directories (database, cache).
	DirModePrivate = 0o700
)

// EnsureDir creates a directory (and parents) if it does not already exist.
func EnsureDir(path string, mode os.FileMode) error {
	if err := os.MkdirAll(path, mode); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

// Move moves a file from src to dst. It attempts os.Rename first for
// atomicity and falls back to copy + delete when the rename crosses a
// filesystem boundary.
func Move(src, dst string) error {
	if src == "" || dst == "" {
		return fmt.Errorf("source and destination paths cannot be empty")
	}

	if err := os.MkdirAll(filepath.Dir(dst), DirModeDefault); err != nil {
		return fmt.Errorf("failed to create destination directory for %s: %w", dst, err)
	}

	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !isCrossFilesystemError(err) {
		return fmt.Errorf("failed to rename %s to %s: %w", src, dst, err)
	}

	if err := Copy(src, dst); err != nil {
		return err
	}
	srcInfo, err := os.Stat(src)
	if err == nil {
		_ = os.Chmod(dst, srcInfo.Mode())
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("failed to remove source file %s after copy: %w", src, err)
	}
	return nil
}

// isCrossFilesystemError reports whether an os.Rename failure indicates a
// cross-device link (EXDEV), which requires the copy + delete fallback.
func isCrossFilesystemError(err error) bool {
	var linkError *os.LinkError
	if errors.As(err, &linkError) {
		if errno, ok := linkError.Err.(syscall.Errno); ok {
			return errno == syscall.EXDEV
		}
	}
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		if errno, ok := pathErr.Err.(syscall.Errno); ok {
			return errno == syscall.EXDEV
		}
	}
	return false
}

// Copy copies the contents of srcFile to dstFile.
func Copy(srcFile, dstFile string) error {
	src, err := os.Open(srcFile)
	if err != nil {
		return fmt.Errorf("failed to open source file %s: %w", srcFile, err)
	}
	defer func() { _ = src.Close() }()

	dst, err := os.Create(dstFile)
	if err != nil {
		return fmt.Errorf("failed to create destination file %s: %w", dstFile, err)
	}
	defer func() { _ = dst.Close() }()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to copy from %s to %s: %w", srcFile, dstFile, err)
	}
	return nil
}

// MakeExecutable marks a file as an executable binary.
func MakeExecutable(path string) error {
	if err := os.Chmod(path, FileModeExec); err != nil {
		return fmt.Errorf("failed to make %s executable: %w", path, err)
	}
	return nil
}

// SanitizePathComponent makes an identifier safe to use as a single path
// element. Every directory derived from a pkg_id goes through this, so disk
// lookups and database lookups agree on the name.
func SanitizePathComponent(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':':
			return '_'
		}
		return r
	}, s)
}

// ReplaceSymlink atomically replaces (or creates) a symlink at linkPath
// pointing at target. The link is created under a temporary name in the same
// directory and renamed into place.
func ReplaceSymlink(target, linkPath string) error {
	if err := os.MkdirAll(filepath.Dir(linkPath), DirModeDefault); err != nil {
		return fmt.Errorf("failed to create symlink directory for %s: %w", linkPath, err)
	}
	tmpLink := linkPath + ".tmp"
	_ = os.Remove(tmpLink)
	if err := os.Symlink(target, tmpLink); err != nil {
		return fmt.Errorf("failed to create symlink %s: %w", linkPath, err)
	}
	if err := os.Rename(tmpLink, linkPath); err != nil {
		_ = os.Remove(tmpLink)
		return fmt.Errorf("failed to replace symlink %s: %w", linkPath, err)
	}
	return nil
}
