// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archtree

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"
)

// decompressionFunc returns a reader that decompresses src.
type decompressionFunc func(src io.Reader) (io.Reader, error)

// openDecompressor starts decompressing the whole input. The closer is nil if the
// decompressor needs no release.
func openDecompressor(in *input, decFunc decompressionFunc) (io.Reader, io.Closer, error) {
	r, err := decFunc(in.section())
	if err != nil {
		return nil, nil, err
	}
	closer, _ := r.(io.Closer)
	return r, closer, nil
}

// readCompressed reads a compressed stream. If the stream holds a tar archive its
// entries are read as "tar.<ext>", otherwise the stream is a single file named
// after the input.
func readCompressed(ctx context.Context, in *input, cfg *Config, fileExt string, decFunc decompressionFunc, forceTar bool) (*entryList, error) {
	cfg.Logger().Info("decompress", "fileExt", fileExt)

	r, closer, err := openDecompressor(in, decFunc)
	if err != nil {
		return nil, &FormatError{Type: fileExt, Err: err}
	}
	headerReader, err := newHeaderReader(r, maxHeaderLength)
	if closer != nil {
		closer.Close()
	}
	if err != nil {
		return nil, &FormatError{Type: fileExt, Err: err}
	}

	// check for tar header
	containsTar := isTar(headerReader.PeekHeader())
	if forceTar && !containsTar {
		return nil, &FormatError{Type: fileExtensionTar + "." + fileExt, Err: errors.New("stream does not contain a tar archive")}
	}
	if containsTar && (forceTar || !cfg.NoUntarAfterDecompression()) {
		typ := fmt.Sprintf("%s.%s", fileExtensionTar, fileExt) // combine types
		return readStream(ctx, typ, cfg, func() (archiveWalker, io.Closer, error) {
			r, closer, err := openDecompressor(in, decFunc)
			if err != nil {
				return nil, nil, err
			}
			return &tarWalker{tr: tar.NewReader(r)}, closer, nil
		})
	}

	return readSingleFile(ctx, in, cfg, fileExt, decFunc)
}

// readSingleFile presents a compressed stream as an archive with one file. The
// stream is decompressed once to determine the size.
func readSingleFile(ctx context.Context, in *input, cfg *Config, fileExt string, decFunc decompressionFunc) (*entryList, error) {
	if err := cfg.CheckMaxFiles(1); err != nil {
		return nil, err
	}

	r, closer, err := openDecompressor(in, decFunc)
	if err != nil {
		return nil, &FormatError{Type: fileExt, Err: err}
	}
	if closer != nil {
		defer closer.Close()
	}
	n, err := io.Copy(io.Discard, newLimitErrorReader(&contextReader{ctx: ctx, r: r}, cfg.MaxExtractionSize(), ErrMaxExtractionSizeExceeded))
	switch {
	case errors.Is(err, ErrMaxExtractionSizeExceeded), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, err
	case err != nil:
		return nil, &FormatError{Type: fileExt, Err: err}
	}

	name := determineOutputName(in.name, "."+fileExt)
	cfg.Logger().Debug("determined output name", "name", name)
	entry := RawEntry{
		Path:           name,
		RawSize:        n,
		CompressedSize: in.size,
		Mode:           cfg.CustomFileMode(),
		Content: func() (io.ReadCloser, error) {
			r, closer, err := openDecompressor(in, decFunc)
			if err != nil {
				return nil, err
			}
			if closer == nil {
				return io.NopCloser(r), nil
			}
			return &readCloser{Reader: r, Closer: closer}, nil
		},
	}
	return &entryList{typ: fileExt, entries: []RawEntry{entry}}, nil
}

// contextReader stops reading once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// nameRestriction is a struct that contains the name of the restriction and the regex to check for it
type nameRestriction struct {
	RestrictionName string
	Regex           *regexp.Regexp
}

// namingRestrictions is a list of restrictions for the name of decompressed content
var namingRestrictions = []nameRestriction{
	{"empty name", regexp.MustCompile(`^$`)},
	{"current directory", regexp.MustCompile(`^\.$`)},
	{"parent directory", regexp.MustCompile(`^\.\.$`)},
	{"maximum length 255", regexp.MustCompile(`^.{256,}$`)},
	{"exclude line break, feed and tab", regexp.MustCompile(`[\x0a\x0d\x09]`)},
	{"invalid character: null byte, slash, backslash", regexp.MustCompile(`[\x00/\\]`)},
}

const (
	// defaultDecompressionName is the default name for the decompressed content
	defaultDecompressionName = "archtree-decompressed-content"

	// defaultDecompressedSuffix is the suffix for the decompressed content if
	// the filename does not end with the file extension
	defaultDecompressedSuffix = "decompressed"
)

// determineOutputName derives the name of decompressed content from the input name
func determineOutputName(inputName string, fileExt string) string {

	// is src for decompression a file?
	if len(inputName) == 0 {
		return defaultDecompressionName
	}

	// start with the input name
	newName := inputName

	// remove file extension
	if strings.HasSuffix(strings.ToLower(inputName), strings.ToLower(fileExt)) {
		newName = newName[:len(newName)-len(fileExt)]
	}

	// check if file extension has been removed, if not, add a suffix
	if newName == inputName {
		newName = fmt.Sprintf("%s.%s", inputName, defaultDecompressedSuffix)
	}

	// check newName is a valid utf8 string
	if !utf8.ValidString(newName) {
		return defaultDecompressionName
	}

	// check if the new filename without the extension is valid
	for _, restriction := range namingRestrictions {
		if restriction.Regex.FindStringIndex(newName) != nil {
			return defaultDecompressionName
		}
	}

	return newName
}
