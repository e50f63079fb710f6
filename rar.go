// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archtree

import (
	"context"
	"io"
	"io/fs"
	"time"

	"github.com/nwaples/rardecode"
)

// fileExtensionRar is the file extension for Rar files.
const fileExtensionRar = "rar"

// magicBytesRar are the magic bytes for Rar files.
var magicBytesRar = [][]byte{
	{0x52, 0x61, 0x72, 0x21, 0x1A, 0x07, 0x00},       // Rar 1.5
	{0x52, 0x61, 0x72, 0x21, 0x1A, 0x07, 0x01, 0x00}, // Rar 5.0
}

// isRar checks if the header matches the magic bytes for Rar files.
func isRar(data []byte) bool {
	return matchesMagicBytes(data, 0, magicBytesRar)
}

// readRar reads the file headers of a Rar archive. Rar is read as a stream, the
// content of an entry is reached by walking the archive again.
func readRar(ctx context.Context, in *input, cfg *Config) (*entryList, error) {
	return readStream(ctx, fileExtensionRar, cfg, func() (archiveWalker, io.Closer, error) {
		r, err := rardecode.NewReader(in.section(), cfg.Password())
		if err != nil {
			return nil, nil, err
		}
		return &rarWalker{r}, nil, nil
	})
}

// rarWalker is an archiveWalker for Rar files.
type rarWalker struct {
	r *rardecode.Reader
}

// Next returns the next entry in the rar file.
func (rw *rarWalker) Next() (archiveEntry, error) {
	fh, err := rw.r.Next()
	if err != nil {
		return nil, err
	}
	return &rarEntry{fh, rw.r}, nil
}

// rarEntry is an archiveEntry for Rar files.
type rarEntry struct {
	f *rardecode.FileHeader
	r io.Reader
}

// Name returns the name of the file.
func (r *rarEntry) Name() string {
	return r.f.Name
}

// Size returns the size of the file.
func (r *rarEntry) Size() int64 {
	return r.f.UnPackedSize
}

// CompressedSize returns the packed size of the file.
func (r *rarEntry) CompressedSize() int64 {
	return r.f.PackedSize
}

// Mode returns the mode of the file.
func (r *rarEntry) Mode() fs.FileMode {
	return r.f.Mode()
}

// Linkname symlinks are not supported.
func (r *rarEntry) Linkname() string {
	return ""
}

// IsDir returns true if the file is a directory.
func (r *rarEntry) IsDir() bool {
	return r.f.IsDir
}

// Open returns a reader for the file.
func (r *rarEntry) Open() (io.ReadCloser, error) {
	return io.NopCloser(r.r), nil
}

// ModTime returns the modification time of the file.
func (r *rarEntry) ModTime() time.Time {
	return r.f.ModificationTime
}
