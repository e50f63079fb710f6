// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archtree

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Target is the file system an archive is extracted to. [TargetDisk] writes to the
// operating system, [TargetMemory] keeps everything in memory. Paths are joined with
// the separator of the operating system.
type Target interface {
	// CreateDir creates the directory path with mode. An existing directory is kept
	// as it is.
	CreateDir(path string, mode fs.FileMode) error

	// CreateFile writes src to a new file at path and returns the number of bytes
	// written. An existing file is only replaced if overwrite is true.
	CreateFile(path string, src io.Reader, mode fs.FileMode, overwrite bool) (int64, error)

	// CreateSymlink creates newname as a symlink to oldname. An existing entry is
	// only replaced if overwrite is true.
	CreateSymlink(oldname string, newname string, overwrite bool) error

	// Lstat describes path without following a symlink, see [os.Lstat].
	Lstat(path string) (fs.FileInfo, error)

	// Chmod sets the permission bits of path, see [os.Chmod].
	Chmod(path string, mode fs.FileMode) error

	// Chtimes sets the access and modification time of path, see [os.Chtimes].
	Chtimes(path string, atime, mtime time.Time) error

	// Lchtimes sets the times of path without following a symlink.
	Lchtimes(path string, atime, mtime time.Time) error
}

// destination writes the nodes of a tree below dir in a target.
//
// Every archive path is checked to stay below dir. Each directory on the way is
// checked for a symlink once and remembered, so files sharing a directory do not
// repeat the check. Symlink targets are resolved inside the tree first; only the
// parts that the tree does not know are checked in the target.
type destination struct {
	t    Target
	dir  string
	tree *Tree
	cfg  *Config

	mu       sync.Mutex
	verified map[string]bool // archive paths of directories that exist and are safe
}

func newDestination(t Target, dir string, tree *Tree, cfg *Config) *destination {
	return &destination{t: t, dir: dir, tree: tree, cfg: cfg, verified: make(map[string]bool)}
}

// prepare checks that the destination directory exists and creates it if configured.
func (d *destination) prepare() error {
	if d.dir == "" {
		return nil
	}
	_, err := d.t.Lstat(d.dir)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("cannot access destination: %w", err)
	case !d.cfg.CreateDestination():
		return fmt.Errorf("destination does not exist: %s", d.dir)
	}
	if err := d.t.CreateDir(d.dir, d.cfg.CustomCreateDirMode()); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}
	d.cfg.Logger().Info("created destination directory", "path", d.dir)
	return nil
}

// location returns where the archive path p is written. Absolute paths and paths
// leaving the destination are rejected.
func (d *destination) location(p string) (string, error) {
	local := filepath.FromSlash(p)
	if !filepath.IsLocal(local) {
		return "", fmt.Errorf("path traversal detected: %s", p)
	}
	return filepath.Join(d.dir, local), nil
}

// mkdir creates the directory p and its missing ancestors. Directories that are
// nodes of the tree get their archive mode.
func (d *destination) mkdir(p string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var chain []string
	for q := p; q != "" && !d.verified[q]; q = parentPath(q) {
		chain = append(chain, q)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		q := chain[i]
		path, err := d.location(q)
		if err != nil {
			return err
		}
		if err := d.checkNoSymlink(q, path); err != nil {
			return err
		}
		if err := d.t.CreateDir(path, d.dirMode(q)); err != nil {
			return fmt.Errorf("cannot create directory %s: %w", q, err)
		}
		d.verified[q] = true
	}
	return nil
}

func (d *destination) dirMode(p string) fs.FileMode {
	if n, ok := d.tree.Folder(p); ok && n.Explicit && n.Mode.Perm() != 0 {
		return n.Mode.Perm()
	}
	return d.cfg.CustomCreateDirMode()
}

// checkNoSymlink fails if path exists in the target as a symlink, unless
// traversing symlinks is enabled.
func (d *destination) checkNoSymlink(p string, path string) error {
	fi, err := d.t.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("invalid path %s: %w", p, err)
	}
	if fi.Mode()&fs.ModeSymlink == 0 {
		return nil
	}
	if d.cfg.TraverseSymlinks() {
		d.cfg.Logger().Warn("traverse symlink", "path", p)
		return nil
	}
	return fmt.Errorf("symlink in path: %s", p)
}

// writeFile writes src as the content of the leaf n to the archive path p and
// applies the mode and modification time of n.
func (d *destination) writeFile(n *Node, p string, src io.Reader) (int64, error) {
	if err := d.mkdir(parentPath(p)); err != nil {
		return 0, err
	}
	path, err := d.location(p)
	if err != nil {
		return 0, err
	}
	if err := d.checkNoSymlink(p, path); err != nil {
		return 0, err
	}

	mode := n.Mode.Perm()
	if mode == 0 {
		mode = d.cfg.CustomFileMode()
	}
	written, err := d.t.CreateFile(path, src, mode, d.cfg.Overwrite())
	if err != nil {
		return written, err
	}

	if d.cfg.DropFileAttributes() {
		return written, nil
	}
	if err := d.t.Chmod(path, mode); err != nil {
		return written, fmt.Errorf("failed to set file mode: %w", err)
	}
	if !n.ModTime.IsZero() {
		if err := d.t.Chtimes(path, n.ModTime, n.ModTime); err != nil {
			return written, fmt.Errorf("failed to set file times: %w", err)
		}
	}
	return written, nil
}

// writeSymlink creates the symlink n after its target was resolved inside the tree.
func (d *destination) writeSymlink(n *Node) error {
	if d.cfg.DenySymlinkExtraction() {
		return unsupportedFile(n.Path)
	}

	target, err := d.tree.resolveLink(n)
	if err != nil {
		return err
	}
	if _, ok := d.tree.Lookup(target); !ok && target != "" {
		d.cfg.Logger().Debug("symlink target is not part of the archive", "name", n.Path, "target", target)
	}
	if err := d.checkLinkTarget(target); err != nil {
		return err
	}

	if err := d.mkdir(parentPath(n.Path)); err != nil {
		return err
	}
	path, err := d.location(n.Path)
	if err != nil {
		return err
	}
	if err := d.t.CreateSymlink(n.Linkname, path, d.cfg.Overwrite()); err != nil {
		return err
	}

	if !d.cfg.DropFileAttributes() && !n.ModTime.IsZero() {
		if err := d.t.Lchtimes(path, n.ModTime, n.ModTime); err != nil {
			d.cfg.Logger().Debug("cannot set symlink times", "name", n.Path, "error", err)
		}
	}
	return nil
}

// checkLinkTarget checks the components of the resolved target that were not
// created by this extraction, they may be symlinks that existed before.
func (d *destination) checkLinkTarget(target string) error {
	if target == "" {
		return nil
	}
	parts := strings.Split(target, "/")
	for i := range parts {
		q := strings.Join(parts[:i+1], "/")
		d.mu.Lock()
		known := d.verified[q]
		d.mu.Unlock()
		if known {
			continue
		}
		path, err := d.location(q)
		if err != nil {
			return err
		}
		if err := d.checkNoSymlink(q, path); err != nil {
			return fmt.Errorf("symlink target: %w", err)
		}
	}
	return nil
}

// setDirTimes applies the modification time of the directory n.
func (d *destination) setDirTimes(n *Node) error {
	if d.cfg.DropFileAttributes() || n.ModTime.IsZero() {
		return nil
	}
	path, err := d.location(n.Path)
	if err != nil {
		return err
	}
	return d.t.Chtimes(path, n.ModTime, n.ModTime)
}
