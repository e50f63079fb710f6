// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archtree

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Source is the decoded entry list of an archive. Content accessors of the entries
// read from the input until the Source is closed.
type Source struct {
	typ     string
	name    string
	size    int64
	entries []RawEntry
	in      *input
	stream  *streamArchive
	cleanup func() error
}

// Type returns the archive type, e.g. "zip" or "tar.gz".
func (s *Source) Type() string {
	return s.typ
}

// Name returns the name of the input, if known.
func (s *Source) Name() string {
	return s.name
}

// Size returns the size of the input in bytes.
func (s *Source) Size() int64 {
	return s.size
}

// Entries returns the entries in archive order.
func (s *Source) Entries() []RawEntry {
	return s.entries
}

// Close releases open streams and the input cache.
func (s *Source) Close() error {
	var errs []error
	if s.stream != nil {
		errs = append(errs, s.stream.Close())
	}
	if s.cleanup != nil {
		errs = append(errs, s.cleanup())
		s.cleanup = nil
	}
	return errors.Join(errs...)
}

// input is the random access view on the archive bytes.
type input struct {
	ra   io.ReaderAt
	size int64
	name string
}

// section returns a new reader over the whole input.
func (in *input) section() *io.SectionReader {
	return io.NewSectionReader(in.ra, 0, in.size)
}

// entryList is the result of an archive type reader.
type entryList struct {
	typ     string
	entries []RawEntry
	stream  *streamArchive
}

// ReadEntries decodes src into its ordered list of raw entries. The archive type is
// detected from the magic bytes of the input unless [WithArchiveType] is set. Input
// that cannot be decoded results in a [*FormatError].
//
// The returned [Source] must be closed to release the input cache.
func ReadEntries(ctx context.Context, src io.Reader, opts ...ConfigOption) (*Source, error) {
	return readEntries(ctx, src, NewConfig(opts...))
}

func readEntries(ctx context.Context, src io.Reader, cfg *Config) (*Source, error) {
	name := cfg.ArchiveName()
	if f, ok := src.(*os.File); ok && name == "" {
		name = filepath.Base(f.Name())
	}

	sra, cleanup, err := readerToReaderAtSeeker(cfg, src)
	if err != nil {
		return nil, err
	}
	s := &Source{name: name, cleanup: cleanup}

	size, err := sra.Seek(0, io.SeekEnd)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("cannot determine input size: %w", err)
	}
	if err := cfg.CheckInputSize(size); err != nil {
		s.Close()
		return nil, err
	}
	s.size = size
	in := &input{ra: sra, size: size, name: name}
	s.in = in

	list, err := readInput(ctx, in, cfg)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.typ, s.entries, s.stream = list.typ, list.entries, list.stream
	cfg.Logger().Info("read archive", "type", s.typ, "entries", len(s.entries), "size", size)
	return s, nil
}

// readInput detects or resolves the archive type and dispatches to its reader.
func readInput(ctx context.Context, in *input, cfg *Config) (*entryList, error) {
	typ := canonicalType(cfg.ArchiveType())
	if typ == "" {
		header := make([]byte, maxHeaderLength)
		n, err := in.ra.ReadAt(header, 0)
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("cannot read header: %w", err)
		}
		typ = detectType(header[:n], in.name)
		if typ == "" {
			return nil, &FormatError{Err: errors.New("unrecognized archive format")}
		}
		cfg.Logger().Debug("detected archive type", "type", typ)
	}

	if a, ok := availableArchives[typ]; ok {
		return a.Reader(ctx, in, cfg)
	}

	// compressed tar or plain compressed stream
	forceTar := strings.HasPrefix(typ, fileExtensionTar+".")
	ext := strings.TrimPrefix(typ, fileExtensionTar+".")
	c, ok := availableCompressors[ext]
	if !ok {
		return nil, &FormatError{Type: typ, Err: errors.New("unsupported archive type")}
	}
	return readCompressed(ctx, in, cfg, ext, c.Decompress, forceTar)
}

// readerToReaderAtSeeker converts r into an io.ReaderAt and io.Seeker. Streams are
// cached in memory or in a temporary file, limited by the maximum input size. The
// returned cleanup removes the temporary file.
func readerToReaderAtSeeker(cfg *Config, r io.Reader) (seekerReaderAt, func() error, error) {
	noop := func() error { return nil }

	if s, ok := r.(seekerReaderAt); ok {
		return s, noop, nil
	}

	// check if reader is a buffer
	if b, ok := r.(*bytes.Buffer); ok {
		return bytes.NewReader(b.Bytes()), noop, nil
	}

	// limit reader
	ler := newLimitErrorReader(r, cfg.MaxInputSize(), ErrMaxInputSizeExceeded)

	// check how to cache
	if cfg.CacheInMemory() {
		b, err := io.ReadAll(ler)
		if err != nil {
			return nil, nil, fmt.Errorf("cannot read all from reader: %w", err)
		}
		return bytes.NewReader(b), noop, nil
	}

	// create temp file
	tmpFile, err := os.CreateTemp("", "archtree-*")
	if err != nil {
		return nil, nil, fmt.Errorf("cannot create cache file: %w", err)
	}
	cleanup := func() error {
		tmpFile.Close()
		return os.Remove(tmpFile.Name())
	}

	// copy reader to temp file
	if _, err := io.Copy(tmpFile, ler); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("cannot copy reader to file: %w", err)
	}

	// seek to start
	if _, err := tmpFile.Seek(0, io.SeekStart); err != nil {
		cleanup()
		return nil, nil, err
	}

	return tmpFile, cleanup, nil
}

// seekerReaderAt is an interface that combines the io.ReaderAt and io.Seeker interfaces.
type seekerReaderAt interface {
	io.ReaderAt
	io.Seeker
}

// collectEntries walks w and converts every entry with accessor(index). It checks
// ctx and the maximum number of files between entries.
func collectEntries(ctx context.Context, w archiveWalker, typ string, cfg *Config, accessor func(index int, ae archiveEntry) ContentAccessor) ([]RawEntry, error) {
	var entries []RawEntry
	for index := 0; ; index++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ae, err := w.Next()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, &FormatError{Type: typ, Err: err}
		}
		if ae == nil {
			continue
		}

		if err := cfg.CheckMaxFiles(int64(len(entries) + 1)); err != nil {
			return nil, fmt.Errorf("%w: %d", err, cfg.MaxFiles())
		}
		entries = append(entries, toRawEntry(ae, accessor(index, ae)))
	}
}
