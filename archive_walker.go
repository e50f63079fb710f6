// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archtree

import (
	"io"
	"io/fs"
	"time"
)

// archiveWalker is an interface that represents a file walker in an archive.
// Next returns io.EOF after the last entry.
type archiveWalker interface {
	Next() (archiveEntry, error)
}

// archiveEntry is an interface that represents a file in an archive
type archiveEntry interface {
	CompressedSize() int64
	IsDir() bool
	Linkname() string
	Mode() fs.FileMode
	ModTime() time.Time
	Name() string
	Open() (io.ReadCloser, error)
	Size() int64
}

// toRawEntry converts an archive entry into a raw entry with the given accessor.
// Only regular files keep the accessor.
func toRawEntry(ae archiveEntry, content ContentAccessor) RawEntry {
	e := RawEntry{
		Path:           ae.Name(),
		IsDir:          ae.IsDir(),
		RawSize:        ae.Size(),
		CompressedSize: ae.CompressedSize(),
		ModTime:        ae.ModTime(),
		Mode:           ae.Mode(),
		Linkname:       ae.Linkname(),
	}
	if !e.IsDir && e.Mode.IsRegular() {
		e.Content = content
	}
	return e
}
