// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archtree

import (
	"errors"
	"fmt"
)

var (
	// ErrFormat is returned when the input cannot be decoded as a supported archive.
	ErrFormat = errors.New("archtree: invalid archive format")

	// ErrMaxFilesExceeded is returned when the number of entries exceeds the configured maximum.
	ErrMaxFilesExceeded = errors.New("archtree: maximum number of files exceeded")

	// ErrMaxInputSizeExceeded is returned when the input exceeds the configured maximum size.
	ErrMaxInputSizeExceeded = errors.New("archtree: maximum input size exceeded")

	// ErrMaxExtractionSizeExceeded is returned when decompressed content exceeds the configured maximum.
	ErrMaxExtractionSizeExceeded = errors.New("archtree: maximum extraction size exceeded")

	// ErrUnsupportedArchive is returned when an operation is not available for the archive type.
	ErrUnsupportedArchive = errors.New("archtree: operation not supported for archive type")

	// ErrUnsupportedFile is returned when an entry cannot be extracted, e.g. a device file.
	ErrUnsupportedFile = errors.New("archtree: unsupported file")

	// ErrNotFound is returned when a path is not part of the tree.
	ErrNotFound = errors.New("archtree: path not found")

	// ErrIsDirectory is returned when content is requested for a directory.
	ErrIsDirectory = errors.New("archtree: is a directory")

	// ErrNotDirectory is returned when a path runs through an entry that is not a directory.
	ErrNotDirectory = errors.New("archtree: not a directory")

	// ErrNoContent is returned when an entry carries no content accessor.
	ErrNoContent = errors.New("archtree: entry has no content")
)

// FormatError is returned when the raw bytes cannot be decoded as the
// detected archive type. It matches [ErrFormat] with [errors.Is].
type FormatError struct {
	// Type is the detected or configured archive type, empty if detection failed.
	Type string

	// Err is the underlying decoder error.
	Err error
}

func (e *FormatError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("%s: %v", ErrFormat, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", ErrFormat, e.Type, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}

// unsupportedFile returns an error that indicates that a file is not supported.
func unsupportedFile(path string) error {
	return fmt.Errorf("%w: %s", ErrUnsupportedFile, path)
}
