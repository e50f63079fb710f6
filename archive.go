// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archtree

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Archive is an opened archive with its tree. The tree is a snapshot of the
// archive bytes at the time of opening.
type Archive struct {
	cfg  *Config
	src  *Source
	tree *Tree
	file *os.File
}

// Open reads the archive from src and builds its tree. Streams that are not an
// [io.ReaderAt] and [io.Seeker] are cached in memory or in a temporary file,
// see [WithCacheInMemory]. The archive must be closed to release the cache.
func Open(ctx context.Context, src io.Reader, opts ...ConfigOption) (*Archive, error) {
	return open(ctx, src, NewConfig(opts...))
}

// OpenFile opens the archive at path and builds its tree. The file stays open
// until the archive is closed.
func OpenFile(ctx context.Context, path string, opts ...ConfigOption) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open archive: %w", err)
	}
	cfg := NewConfig(append([]ConfigOption{WithArchiveName(filepath.Base(path))}, opts...)...)
	a, err := open(ctx, f, cfg)
	if err != nil {
		f.Close()
		return nil, err
	}
	a.file = f
	return a, nil
}

func open(ctx context.Context, src io.Reader, cfg *Config) (a *Archive, err error) {
	// prepare telemetry data collection and emit
	td := &TelemetryData{Operation: operationOpen}
	defer cfg.TelemetryHook()(ctx, td)
	defer captureDuration(td, now())
	defer func() { captureError(td, err) }()

	s, err := readEntries(ctx, src, cfg)
	if err != nil {
		return nil, err
	}
	td.ArchiveType = s.Type()
	td.InputSize = s.Size()

	t := buildTree(s.Entries(), cfg)
	captureTreeStats(td, t)
	cfg.Logger().Debug("built tree", "nodes", t.Len(), "roots", len(t.roots))

	return &Archive{cfg: cfg, src: s, tree: t}, nil
}

// Name returns the name of the archive input, if known.
func (a *Archive) Name() string {
	return a.src.Name()
}

// Type returns the archive type, e.g. "zip" or "tar.gz".
func (a *Archive) Type() string {
	return a.src.Type()
}

// InputSize returns the size of the archive in bytes.
func (a *Archive) InputSize() int64 {
	return a.src.Size()
}

// Tree returns the tree of the archive.
func (a *Archive) Tree() *Tree {
	return a.tree
}

// Entries returns the raw entries of the archive in archive order.
func (a *Archive) Entries() []RawEntry {
	return a.src.Entries()
}

// Close drops cached content and releases the input.
func (a *Archive) Close() error {
	a.tree.Discard()
	err := a.src.Close()
	if a.file != nil {
		err = errors.Join(err, a.file.Close())
		a.file = nil
	}
	return err
}
