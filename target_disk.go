// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archtree

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"
)

// TargetDisk is a [Target] on the file system of the operating system.
type TargetDisk struct{}

// NewTargetDisk creates a new [TargetDisk].
func NewTargetDisk() *TargetDisk {
	return &TargetDisk{}
}

// CreateDir creates path and its missing parents.
func (d *TargetDisk) CreateDir(path string, mode fs.FileMode) error {
	if err := os.MkdirAll(path, mode.Perm()); err != nil {
		return fmt.Errorf("cannot create directory: %w", err)
	}
	return nil
}

// CreateFile writes src to path. Without overwrite an existing file is an error
// matching [fs.ErrExist].
func (d *TargetDisk) CreateFile(path string, src io.Reader, mode fs.FileMode, overwrite bool) (int64, error) {
	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, mode.Perm())
	if err != nil {
		return 0, fmt.Errorf("cannot create file: %w", err)
	}

	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("cannot write file %s: %w", path, err)
	}
	return n, nil
}

// CreateSymlink creates newname as a symlink to oldname.
func (d *TargetDisk) CreateSymlink(oldname string, newname string, overwrite bool) error {
	if overwrite {
		if err := os.Remove(newname); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("cannot replace %s: %w", newname, err)
		}
	}
	if err := os.Symlink(oldname, newname); err != nil {
		return fmt.Errorf("cannot create symlink: %w", err)
	}
	return nil
}

// Lstat calls [os.Lstat].
func (d *TargetDisk) Lstat(path string) (fs.FileInfo, error) {
	return os.Lstat(path)
}

// Chmod calls [os.Chmod] with the permission bits of mode.
func (d *TargetDisk) Chmod(path string, mode fs.FileMode) error {
	return os.Chmod(path, mode.Perm())
}

// Chtimes calls [os.Chtimes].
func (d *TargetDisk) Chtimes(path string, atime, mtime time.Time) error {
	return os.Chtimes(path, atime, mtime)
}

// Lchtimes sets the times of the symlink path itself. On platforms without
// support it does nothing.
func (d *TargetDisk) Lchtimes(path string, atime, mtime time.Time) error {
	if !canMaintainSymlinkTimestamps {
		return nil
	}
	return lchtimes(path, atime, mtime)
}
