package fsutil

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	plugindomain "kilometers.ai/kmpkg/internal/core/domain/plugin"
)

// Exists reports whether path exists
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// RemoveTree recursively removes path. It reports whether anything was there.
func RemoveTree(path string) (bool, error) {
	if _, err := os.Lstat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, plugindomain.ErrFilesystemOp("stat", path, err)
	}

	if err := os.RemoveAll(path); err != nil {
		return true, plugindomain.ErrFilesystemOp("remove", path, err)
	}
	return true, nil
}

// ResetDir removes path if present and creates it empty
func ResetDir(path string) error {
	if _, err := RemoveTree(path); err != nil {
		return err
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return plugindomain.ErrFilesystemOp("create", path, err)
	}
	return nil
}

// MoveTree moves src to dst. A rename is tried first; across filesystems the tree is
// copied and the source removed.
func MoveTree(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return plugindomain.ErrFilesystemOp("create", filepath.Dir(dst), err)
	}

	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	if err := CopyTree(src, dst); err != nil {
		return err
	}
	if err := os.RemoveAll(src); err != nil {
		return plugindomain.ErrFilesystemOp("remove", src, err)
	}
	return nil
}

// CopyTree recursively copies the directory src to dst, which must not exist
func CopyTree(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return plugindomain.ErrFilesystemOp("stat", src, err)
	}
	if !info.IsDir() {
		return plugindomain.ErrFilesystemOp("copy", src, errors.New("not a directory"))
	}

	return filepath.WalkDir(src, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return plugindomain.ErrFilesystemOp("walk", path, err)
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return plugindomain.ErrFilesystemOp("copy", path, err)
		}
		target := filepath.Join(dst, rel)

		entryInfo, err := entry.Info()
		if err != nil {
			return plugindomain.ErrFilesystemOp("stat", path, err)
		}

		switch {
		case entry.IsDir():
			if err := os.MkdirAll(target, entryInfo.Mode().Perm()|0700); err != nil {
				return plugindomain.ErrFilesystemOp("create", target, err)
			}
		case entryInfo.Mode().IsRegular():
			if err := copyFile(path, target, entryInfo.Mode().Perm()); err != nil {
				return err
			}
		}
		return nil
	})
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return plugindomain.ErrFilesystemOp("open", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return plugindomain.ErrFilesystemOp("create", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return plugindomain.ErrFilesystemOp("copy", dst, err)
	}
	if err := out.Close(); err != nil {
		return plugindomain.ErrFilesystemOp("close", dst, err)
	}
	return nil
}
