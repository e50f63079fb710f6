// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archtree

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
)

// AppendZip writes the zip archive read from src to dst with one additional file
// named name. Existing entries are copied without recompression. An existing file
// with the same path is replaced. name must not be the path of a directory, and
// none of its parents may be a file.
func AppendZip(ctx context.Context, src io.ReaderAt, size int64, dst io.Writer, name string, content io.Reader, modTime time.Time) error {
	p := normalizePath(name)
	if p == "" {
		return errors.New("cannot append file without name")
	}

	zr, err := zip.NewReader(src, size)
	if err != nil {
		return &FormatError{Type: fileExtensionZip, Err: err}
	}

	parents := make(map[string]bool)
	for q := parentPath(p); q != ""; q = parentPath(q) {
		parents[q] = true
	}

	zw := zip.NewWriter(dst)
	for _, zf := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		existing := normalizePath(zf.Name)
		if existing == p && !zf.FileInfo().IsDir() {
			// replaced by the new entry
			continue
		}
		if existing == p || strings.HasPrefix(existing, p+"/") {
			return fmt.Errorf("%w: %s", ErrIsDirectory, p)
		}
		if parents[existing] && !zf.FileInfo().IsDir() {
			return fmt.Errorf("%w: %s in %s", ErrNotDirectory, existing, p)
		}
		if err := zw.Copy(zf); err != nil {
			return fmt.Errorf("cannot copy entry %s: %w", zf.Name, err)
		}
	}

	fh := &zip.FileHeader{
		Name:     p,
		Method:   zip.Deflate,
		Modified: modTime,
	}
	fh.SetMode(0644)
	w, err := zw.CreateHeader(fh)
	if err != nil {
		return fmt.Errorf("cannot create entry %s: %w", p, err)
	}
	if _, err := io.Copy(w, &contextReader{ctx: ctx, r: content}); err != nil {
		return fmt.Errorf("cannot write entry %s: %w", p, err)
	}
	return zw.Close()
}

// AddFile adds a file to a zip archive. The new archive bytes are written to persist,
// if not nil, and a new Archive over them is returned; a is left unchanged and stays
// valid until closed. Only zip archives are supported, other types return
// [ErrUnsupportedArchive].
func (a *Archive) AddFile(ctx context.Context, name string, content io.Reader, persist io.Writer) (_ *Archive, err error) {
	cfg := a.cfg

	// prepare telemetry data collection and emit
	td := &TelemetryData{Operation: operationAppend, ArchiveType: a.Type(), InputSize: a.InputSize()}
	defer cfg.TelemetryHook()(ctx, td)
	defer captureDuration(td, now())
	defer func() { captureError(td, err) }()

	if a.Type() != fileExtensionZip {
		return nil, fmt.Errorf("%w: cannot add files to %s", ErrUnsupportedArchive, a.Type())
	}

	var buf bytes.Buffer
	if err := AppendZip(ctx, a.src.in.ra, a.src.in.size, &buf, name, content, now()); err != nil {
		return nil, err
	}
	cfg.Logger().Info("appended file", "name", name, "size", buf.Len())

	if persist != nil {
		if _, err := persist.Write(buf.Bytes()); err != nil {
			return nil, fmt.Errorf("cannot persist archive: %w", err)
		}
	}

	b, err := open(ctx, bytes.NewReader(buf.Bytes()), cfg)
	if err != nil {
		return nil, err
	}
	captureTreeStats(td, b.tree)
	return b, nil
}
