// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archtree

import (
	"context"
	"io"
	"io/fs"
	"time"

	"github.com/bodgit/sevenzip"
)

// fileExtension7zip is the file extension for 7zip files
const fileExtension7zip = "7z"

// magicBytes7zip are the magic bytes for 7zip files
var magicBytes7zip = [][]byte{
	{0x37, 0x7A, 0xBC, 0xAF, 0x27, 0x1C},
}

// is7zip checks if the header matches the magic bytes for 7zip files
func is7zip(data []byte) bool {
	return matchesMagicBytes(data, 0, magicBytes7zip)
}

// read7zip reads the file list of a 7zip archive. 7zip stores no per-file compressed
// size, so the compressed size of an entry equals its size.
func read7zip(ctx context.Context, in *input, cfg *Config) (*entryList, error) {
	reader, err := sevenzip.NewReaderWithPassword(in.ra, in.size, cfg.Password())
	if err != nil {
		return nil, &FormatError{Type: fileExtension7zip, Err: err}
	}

	entries, err := collectEntries(ctx, &sevenZipWalker{r: reader}, fileExtension7zip, cfg, func(_ int, ae archiveEntry) ContentAccessor {
		return ae.Open
	})
	if err != nil {
		return nil, err
	}
	return &entryList{typ: fileExtension7zip, entries: entries}, nil
}

type sevenZipWalker struct {
	r  *sevenzip.Reader
	fp int
}

func (z *sevenZipWalker) Next() (archiveEntry, error) {
	if z.fp >= len(z.r.File) {
		return nil, io.EOF
	}
	defer func() { z.fp++ }()
	return &sevenZipEntry{z.r.File[z.fp]}, nil
}

type sevenZipEntry struct {
	f *sevenzip.File
}

func (z *sevenZipEntry) Name() string {
	return z.f.Name
}

func (z *sevenZipEntry) Size() int64 {
	return z.f.FileInfo().Size()
}

func (z *sevenZipEntry) CompressedSize() int64 {
	return z.Size()
}

func (z *sevenZipEntry) Mode() fs.FileMode {
	return z.f.FileInfo().Mode()
}

func (z *sevenZipEntry) Linkname() string {
	if z.Mode()&fs.ModeSymlink == 0 {
		return ""
	}
	rc, err := z.f.Open()
	if err != nil {
		return ""
	}
	defer rc.Close()
	data, _ := io.ReadAll(io.LimitReader(rc, maxLinkLength))
	return string(data)
}

func (z *sevenZipEntry) IsDir() bool {
	return z.f.FileInfo().IsDir()
}

func (z *sevenZipEntry) Open() (io.ReadCloser, error) {
	return z.f.Open()
}

func (z *sevenZipEntry) ModTime() time.Time {
	return z.f.FileInfo().ModTime()
}
