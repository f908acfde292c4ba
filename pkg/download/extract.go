package download

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mholt/archives"

	"github.com/glorpus-work/porter/pkg/errors"
	"github.com/glorpus-work/porter/pkg/fsutil"
)

// extractArchive unpacks archivePath into destDir. Entries escaping destDir
// are rejected.
func extractArchive(ctx context.Context, archivePath, destDir string) error {
	fsys, err := archives.FileSystem(ctx, archivePath, nil)
	if err != nil {
		return errors.Wrapf(err, "opening archive %s", archivePath)
	}
	if closer, ok := fsys.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}

	if err := fsutil.EnsureDir(destDir, fsutil.DirModeDefault); err != nil {
		return err
	}

	return fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == "." {
			return nil
		}
		return extractEntry(fsys, path, destDir, d)
	})
}

func extractEntry(fsys fs.FS, path, destDir string, d fs.DirEntry) error {
	targetPath := filepath.Join(destDir, filepath.FromSlash(path))
	if !strings.HasPrefix(targetPath, destDir+string(os.PathSeparator)) {
		return errors.Wrapf(errors.ErrInvalidPath, "archive entry %q escapes destination", path)
	}

	if d.IsDir() {
		return fsutil.EnsureDir(targetPath, fsutil.DirModeDefault)
	}

	info, err := d.Info()
	if err != nil {
		return errors.Wrapf(err, "reading entry %s", path)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return extractSymlink(fsys, path, targetPath)
	}
	return extractFile(fsys, path, targetPath, info)
}

// extractSymlink recreates a symlink entry; the link body in the archive
// filesystem is the link target.
func extractSymlink(fsys fs.FS, path, targetPath string) error {
	src, err := fsys.Open(path)
	if err != nil {
		return errors.Wrapf(err, "opening symlink entry %s", path)
	}
	defer func() { _ = src.Close() }()

	target, err := io.ReadAll(src)
	if err != nil {
		return errors.Wrapf(err, "reading symlink target %s", path)
	}
	if err := fsutil.EnsureDir(filepath.Dir(targetPath), fsutil.DirModeDefault); err != nil {
		return err
	}
	_ = os.Remove(targetPath)
	return os.Symlink(string(target), targetPath)
}

func extractFile(fsys fs.FS, path, targetPath string, info fs.FileInfo) error {
	src, err := fsys.Open(path)
	if err != nil {
		return errors.Wrapf(err, "opening entry %s", path)
	}
	defer func() { _ = src.Close() }()

	if err := fsutil.EnsureDir(filepath.Dir(targetPath), fsutil.DirModeDefault); err != nil {
		return err
	}

	mode := info.Mode().Perm()
	if mode == 0 {
		mode = fsutil.FileModeDefault
	}
	dst, err := os.OpenFile(targetPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return errors.Wrapf(err, "creating %s", targetPath)
	}
	defer func() { _ = dst.Close() }()

	if _, err := io.Copy(dst, src); err != nil {
		return errors.Wrapf(err, "extracting %s", path)
	}
	return os.Chmod(targetPath, mode)
}
