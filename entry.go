// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archtree

import (
	"fmt"
	"io"
	"io/fs"
	"time"
)

// ContentAccessor returns the decompressed content of an archive entry. Every call
// starts a new read from the underlying archive.
type ContentAccessor func() (io.ReadCloser, error)

// RawEntry is a single record of an archive as it is stored in the archive, in
// archive order.
type RawEntry struct {
	// Path is the archive internal, slash separated path of the entry
	Path string

	// IsDir is true if the archive holds an explicit directory entry
	IsDir bool

	// RawSize is the decompressed size of the entry
	RawSize int64

	// CompressedSize is the stored size of the entry
	CompressedSize int64

	// ModTime is the modification time of the entry
	ModTime time.Time

	// Mode holds the permission and type bits of the entry
	Mode fs.FileMode

	// Linkname is the target of a symlink entry
	Linkname string

	// Content fetches the decompressed bytes of the entry, nil for directories
	Content ContentAccessor
}

// Open returns the decompressed content of the entry.
func (e RawEntry) Open() (io.ReadCloser, error) {
	if e.IsDir {
		return nil, fmt.Errorf("%w: %s", ErrIsDirectory, e.Path)
	}
	if e.Content == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoContent, e.Path)
	}
	return e.Content()
}
