// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archtree

import (
	"context"
	"io"
	"io/fs"
	"time"

	"github.com/klauspost/compress/zip"
)

// fileExtensionZip is the file extension for zip files.
const fileExtensionZip = "zip"

// maxLinkLength is the maximum size of a symlink target that is read from an archive.
const maxLinkLength = 4096

// magicBytesZip contains the magic bytes for a zip archive.
// reference: https://golang.org/pkg/archive/zip/
var magicBytesZip = [][]byte{
	{0x50, 0x4B, 0x03, 0x04},
}

// isZip checks if data is a zip archive. It returns true if data is a zip archive and false if data is not a zip archive.
func isZip(data []byte) bool {
	return matchesMagicBytes(data, 0, magicBytesZip)
}

// readZip reads the central directory of a zip archive. Every entry is opened
// directly from the input.
func readZip(ctx context.Context, in *input, cfg *Config) (*entryList, error) {
	zr, err := zip.NewReader(in.ra, in.size)
	if err != nil {
		return nil, &FormatError{Type: fileExtensionZip, Err: err}
	}

	entries, err := collectEntries(ctx, &zipWalker{zr: zr}, fileExtensionZip, cfg, func(_ int, ae archiveEntry) ContentAccessor {
		return ae.Open
	})
	if err != nil {
		return nil, err
	}
	return &entryList{typ: fileExtensionZip, entries: entries}, nil
}

// zipWalker is a walker for zip files
type zipWalker struct {
	zr *zip.Reader
	fp int
}

// Next returns the next entry in the zip archive
func (z *zipWalker) Next() (archiveEntry, error) {
	if z.fp >= len(z.zr.File) {
		return nil, io.EOF
	}
	defer func() { z.fp++ }()
	return &zipEntry{z.zr.File[z.fp]}, nil
}

// zipEntry is an entry in a zip archive
type zipEntry struct {
	zf *zip.File
}

// Name returns the name of the entry
func (z *zipEntry) Name() string {
	return z.zf.Name
}

// Size returns the size of the entry
func (z *zipEntry) Size() int64 {
	return int64(z.zf.UncompressedSize64)
}

// CompressedSize returns the stored size of the entry
func (z *zipEntry) CompressedSize() int64 {
	return int64(z.zf.CompressedSize64)
}

// Mode returns the mode of the entry
func (z *zipEntry) Mode() fs.FileMode {
	return z.zf.Mode()
}

// Linkname reads the link target of a symlink entry
func (z *zipEntry) Linkname() string {
	if z.zf.Mode()&fs.ModeSymlink == 0 {
		return ""
	}
	rc, err := z.zf.Open()
	if err != nil {
		return ""
	}
	defer rc.Close()
	data, _ := io.ReadAll(io.LimitReader(rc, maxLinkLength))
	return string(data)
}

// IsDir returns true if the entry is a directory
func (z *zipEntry) IsDir() bool {
	return z.zf.FileInfo().IsDir()
}

// Open returns a reader for the entry
func (z *zipEntry) Open() (io.ReadCloser, error) {
	return z.zf.Open()
}

// ModTime returns the modification time of the entry
func (z *zipEntry) ModTime() time.Time {
	return z.zf.Modified
}
