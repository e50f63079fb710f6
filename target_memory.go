// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archtree

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

// TargetMemory is a [Target] that keeps extracted files in memory. Permissions are
// stored but not enforced. It implements [fs.FS], [fs.ReadDirFS], [fs.ReadFileFS] and
// [fs.StatFS], opening and stating a symlink follows it.
//
// Paths must be valid [fs.ValidPath] paths, so extract to the destination "" or to
// a relative directory.
type TargetMemory struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
}

// NewTargetMemory creates an empty [TargetMemory].
func NewTargetMemory() *TargetMemory {
	return &TargetMemory{entries: make(map[string]*memoryEntry)}
}

// memoryEntry is a file, directory or symlink. Entries are never changed once
// stored, updates store a copy.
type memoryEntry struct {
	name    string
	mode    fs.FileMode
	modTime time.Time
	data    []byte // content, or the target of a symlink
}

func (e *memoryEntry) Name() string               { return e.name }
func (e *memoryEntry) Size() int64                { return int64(len(e.data)) }
func (e *memoryEntry) Mode() fs.FileMode          { return e.mode }
func (e *memoryEntry) ModTime() time.Time         { return e.modTime }
func (e *memoryEntry) IsDir() bool                { return e.mode.IsDir() }
func (e *memoryEntry) Sys() any                   { return nil }
func (e *memoryEntry) Type() fs.FileMode          { return e.mode.Type() }
func (e *memoryEntry) Info() (fs.FileInfo, error) { return e, nil }

// memoryPath converts a path of the operating system into a key of the map.
func memoryPath(op string, name string) (string, error) {
	p := filepath.ToSlash(name)
	if !fs.ValidPath(p) {
		return "", &fs.PathError{Op: op, Path: name, Err: fs.ErrInvalid}
	}
	return p, nil
}

// CreateDir creates the directory path. Missing parents are not required.
func (m *TargetMemory) CreateDir(name string, mode fs.FileMode) error {
	p, err := memoryPath("mkdir", name)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[p]; ok {
		if e.IsDir() {
			return nil
		}
		return &fs.PathError{Op: "mkdir", Path: name, Err: fs.ErrExist}
	}
	m.entries[p] = &memoryEntry{name: path.Base(p), mode: fs.ModeDir | mode.Perm(), modTime: time.Now()}
	return nil
}

// CreateFile reads src into a new file at path.
func (m *TargetMemory) CreateFile(name string, src io.Reader, mode fs.FileMode, overwrite bool) (int64, error) {
	p, err := memoryPath("create", name)
	if err != nil {
		return 0, err
	}
	if err := m.checkReplace("create", p, overwrite); err != nil {
		return 0, err
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, src)
	if err != nil {
		return n, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[p] = &memoryEntry{name: path.Base(p), mode: mode.Perm(), modTime: time.Now(), data: buf.Bytes()}
	return n, nil
}

// CreateSymlink creates newname as a symlink to oldname.
func (m *TargetMemory) CreateSymlink(oldname string, newname string, overwrite bool) error {
	p, err := memoryPath("symlink", newname)
	if err != nil {
		return err
	}
	if err := m.checkReplace("symlink", p, overwrite); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[p] = &memoryEntry{name: path.Base(p), mode: fs.ModeSymlink | 0777, modTime: time.Now(), data: []byte(oldname)}
	return nil
}

// checkReplace fails if p exists and may not be replaced. Directories are never replaced.
func (m *TargetMemory) checkReplace(op string, p string, overwrite bool) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[p]
	if !ok {
		return nil
	}
	if overwrite && !e.IsDir() {
		return nil
	}
	return &fs.PathError{Op: op, Path: p, Err: fs.ErrExist}
}

// Lstat describes path without following a symlink.
func (m *TargetMemory) Lstat(name string) (fs.FileInfo, error) {
	p, err := memoryPath("lstat", name)
	if err != nil {
		return nil, err
	}
	return m.lookup("lstat", p)
}

// Stat describes path, following symlinks.
func (m *TargetMemory) Stat(name string) (fs.FileInfo, error) {
	p, err := memoryPath("stat", name)
	if err != nil {
		return nil, err
	}
	return m.follow("stat", p)
}

// Readlink returns the target of the symlink at path.
func (m *TargetMemory) Readlink(name string) (string, error) {
	p, err := memoryPath("readlink", name)
	if err != nil {
		return "", err
	}
	e, err := m.lookup("readlink", p)
	if err != nil {
		return "", err
	}
	if e.mode&fs.ModeSymlink == 0 {
		return "", &fs.PathError{Op: "readlink", Path: name, Err: fs.ErrInvalid}
	}
	return string(e.data), nil
}

// Chmod sets the permission bits of path.
func (m *TargetMemory) Chmod(name string, mode fs.FileMode) error {
	return m.update("chmod", name, func(e *memoryEntry) {
		e.mode = e.mode.Type() | mode.Perm()
	})
}

// Chtimes sets the modification time of path, the access time is not stored.
func (m *TargetMemory) Chtimes(name string, _, mtime time.Time) error {
	return m.update("chtimes", name, func(e *memoryEntry) {
		e.modTime = mtime
	})
}

// Lchtimes sets the modification time of path without following a symlink.
func (m *TargetMemory) Lchtimes(name string, atime, mtime time.Time) error {
	return m.Chtimes(name, atime, mtime)
}

// Open opens path for reading. Directories can be listed with [fs.ReadDirFile.ReadDir].
func (m *TargetMemory) Open(name string) (fs.File, error) {
	if name == "." {
		return &memoryFile{entry: &memoryEntry{name: ".", mode: fs.ModeDir | 0755}, dir: m.list(".")}, nil
	}
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	e, err := m.follow("open", name)
	if err != nil {
		return nil, err
	}
	f := &memoryFile{entry: e, r: bytes.NewReader(e.data)}
	if e.IsDir() {
		f.dir = m.list(name)
	}
	return f, nil
}

// ReadFile returns the content of the file at path, following symlinks.
func (m *TargetMemory) ReadFile(name string) ([]byte, error) {
	p, err := memoryPath("read", name)
	if err != nil {
		return nil, err
	}
	e, err := m.follow("read", p)
	if err != nil {
		return nil, err
	}
	if e.IsDir() {
		return nil, &fs.PathError{Op: "read", Path: name, Err: fs.ErrInvalid}
	}
	return slices.Clone(e.data), nil
}

// ReadDir returns the entries of the directory at path sorted by name.
func (m *TargetMemory) ReadDir(name string) ([]fs.DirEntry, error) {
	if name != "." {
		f, err := m.Open(name)
		if err != nil {
			return nil, err
		}
		if !f.(*memoryFile).entry.IsDir() {
			return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
		}
	}
	return m.list(name), nil
}

// list returns the entries below the directory p sorted by name.
func (m *TargetMemory) list(p string) []fs.DirEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var entries []fs.DirEntry
	for k, e := range m.entries {
		if path.Dir(k) == p {
			entries = append(entries, e)
		}
	}
	slices.SortFunc(entries, func(a, b fs.DirEntry) int {
		return strings.Compare(a.Name(), b.Name())
	})
	return entries
}

func (m *TargetMemory) lookup(op string, p string) (*memoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[p]
	if !ok {
		return nil, &fs.PathError{Op: op, Path: p, Err: fs.ErrNotExist}
	}
	return e, nil
}

// follow looks up p and resolves symlinks relative to their directory.
func (m *TargetMemory) follow(op string, p string) (*memoryEntry, error) {
	for hops := 0; hops <= maxLinkHops; hops++ {
		e, err := m.lookup(op, p)
		if err != nil {
			return nil, err
		}
		if e.mode&fs.ModeSymlink == 0 {
			return e, nil
		}
		p = path.Join(path.Dir(p), string(e.data))
		if !fs.ValidPath(p) {
			return nil, &fs.PathError{Op: op, Path: p, Err: fs.ErrInvalid}
		}
	}
	return nil, &fs.PathError{Op: op, Path: p, Err: fmt.Errorf("too many levels of symlinks")}
}

// update stores a modified copy of the entry at path.
func (m *TargetMemory) update(op string, name string, fn func(e *memoryEntry)) error {
	p, err := memoryPath(op, name)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[p]
	if !ok {
		return &fs.PathError{Op: op, Path: name, Err: fs.ErrNotExist}
	}
	c := *e
	fn(&c)
	m.entries[p] = &c
	return nil
}

// memoryFile is an opened entry of a [TargetMemory].
type memoryFile struct {
	entry *memoryEntry
	r     *bytes.Reader
	dir   []fs.DirEntry
}

func (f *memoryFile) Stat() (fs.FileInfo, error) {
	return f.entry, nil
}

func (f *memoryFile) Read(p []byte) (int, error) {
	if f.entry.IsDir() {
		return 0, &fs.PathError{Op: "read", Path: f.entry.name, Err: fs.ErrInvalid}
	}
	return f.r.Read(p)
}

func (f *memoryFile) Close() error {
	return nil
}

// ReadDir returns the next n entries of a directory, all remaining ones for n <= 0.
func (f *memoryFile) ReadDir(n int) ([]fs.DirEntry, error) {
	if !f.entry.IsDir() {
		return nil, &fs.PathError{Op: "readdir", Path: f.entry.name, Err: fs.ErrInvalid}
	}
	if n <= 0 {
		entries := f.dir
		f.dir = nil
		return entries, nil
	}
	if len(f.dir) == 0 {
		return nil, io.EOF
	}
	n = min(n, len(f.dir))
	entries := f.dir[:n]
	f.dir = f.dir[n:]
	return entries, nil
}
