// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archtree

import (
	"archive/tar"
	"context"
	"io"
	"io/fs"
	"time"
)

// fileExtensionTar is the file extension for tar files
const fileExtensionTar = "tar"

// offsetTar is the offset where the magic bytes are located in the file
const offsetTar = 257

// magicBytesTar are the magic bytes for tar files
var magicBytesTar = [][]byte{
	[]byte("ustar\x00tar\x00"),
	[]byte("ustar\x00"),
	[]byte("ustar  \x00"),
}

// isTar checks if the header matches the magic bytes for tar files
func isTar(data []byte) bool {
	return matchesMagicBytes(data, offsetTar, magicBytesTar)
}

// readTar reads the headers of an uncompressed tar archive.
func readTar(ctx context.Context, in *input, cfg *Config) (*entryList, error) {
	return readStream(ctx, fileExtensionTar, cfg, func() (archiveWalker, io.Closer, error) {
		return &tarWalker{tr: tar.NewReader(in.section())}, nil, nil
	})
}

// readStream walks a stream archive once to collect its entries. Content is read
// through a streamArchive that walks the archive again on demand.
func readStream(ctx context.Context, typ string, cfg *Config, open walkerFunc) (*entryList, error) {
	w, closer, err := open()
	if err != nil {
		return nil, &FormatError{Type: typ, Err: err}
	}
	if closer != nil {
		defer closer.Close()
	}

	stream := newStreamArchive(open)
	entries, err := collectEntries(ctx, w, typ, cfg, func(index int, _ archiveEntry) ContentAccessor {
		return stream.accessor(index)
	})
	if err != nil {
		return nil, err
	}
	return &entryList{typ: typ, entries: entries, stream: stream}, nil
}

// tarWalker is a walker for tar files
type tarWalker struct {
	tr *tar.Reader
}

// Next returns the next entry in the tar archive. Global pax headers yield a nil entry.
func (t *tarWalker) Next() (archiveEntry, error) {
	hdr, err := t.tr.Next()
	if err != nil {
		return nil, err
	}
	if hdr.Typeflag == tar.TypeXGlobalHeader {
		return nil, nil
	}
	return &tarEntry{hdr, t.tr}, nil
}

// tarEntry is an entry in a tar archive
type tarEntry struct {
	hdr *tar.Header
	tr  *tar.Reader
}

// Name returns the name of the entry
func (t *tarEntry) Name() string {
	return t.hdr.Name
}

// Size returns the size of the entry
func (t *tarEntry) Size() int64 {
	return t.hdr.Size
}

// CompressedSize returns the stored size, which equals the size in a tar archive
func (t *tarEntry) CompressedSize() int64 {
	return t.hdr.Size
}

// Mode returns the mode of the entry. Hard links are marked irregular.
func (t *tarEntry) Mode() fs.FileMode {
	mode := t.hdr.FileInfo().Mode()
	if t.hdr.Typeflag == tar.TypeLink {
		mode |= fs.ModeIrregular
	}
	return mode
}

// Linkname returns the linkname of the entry
func (t *tarEntry) Linkname() string {
	return t.hdr.Linkname
}

// IsDir returns true if the entry is a directory
func (t *tarEntry) IsDir() bool {
	return t.hdr.Typeflag == tar.TypeDir
}

// Open returns a reader for the current entry. The reader is valid until the walker moves on.
func (t *tarEntry) Open() (io.ReadCloser, error) {
	return io.NopCloser(t.tr), nil
}

// ModTime returns the modification time of the entry
func (t *tarEntry) ModTime() time.Time {
	return t.hdr.ModTime
}
