// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archtree

import (
	"context"
	"encoding/json"
	"time"
)

const (
	operationOpen    = "open"
	operationExtract = "extract"
	operationAppend  = "append"
)

// TelemetryData holds all telemetry data of an operation on an archive.
type TelemetryData struct {
	// Operation is the operation that was performed, one of "open", "extract" or "append"
	Operation string `json:"operation"`

	// ArchiveType is the type of the archive
	ArchiveType string `json:"archive_type"`

	// InputSize is the size of the input
	InputSize int64 `json:"input_size"`

	// Duration is the time it took to finish the operation
	Duration time.Duration `json:"duration"`

	// Entries is the number of raw entries read from the archive
	Entries int64 `json:"entries"`

	// Files is the number of file nodes in the tree
	Files int64 `json:"files"`

	// Dirs is the number of directory nodes in the tree
	Dirs int64 `json:"dirs"`

	// SynthesizedDirs is the number of directories without an entry of their own
	SynthesizedDirs int64 `json:"synthesized_dirs"`

	// DuplicatePaths is the number of file entries that replaced an earlier entry with the same path
	DuplicatePaths int64 `json:"duplicate_paths"`

	// ShadowedFiles is the number of file entries dropped because a directory has the same path
	ShadowedFiles int64 `json:"shadowed_files"`

	// SkippedEntries is the number of entries with an empty path
	SkippedEntries int64 `json:"skipped_entries"`

	// TotalRawSize is the sum of all file sizes
	TotalRawSize int64 `json:"total_raw_size"`

	// TotalCompressedSize is the sum of all compressed file sizes
	TotalCompressedSize int64 `json:"total_compressed_size"`

	// ExtractedDirs is the number of extracted directories
	ExtractedDirs int64 `json:"extracted_dirs"`

	// ExtractedFiles is the number of extracted files
	ExtractedFiles int64 `json:"extracted_files"`

	// ExtractedSymlinks is the number of extracted symlinks
	ExtractedSymlinks int64 `json:"extracted_symlinks"`

	// ExtractionSize is the size of the extracted files
	ExtractionSize int64 `json:"extraction_size"`

	// Errors is the number of errors during the operation
	Errors int64 `json:"errors"`

	// LastError is the last error during the operation
	LastError error `json:"last_error"`

	// PatternMismatches is the number of skipped files
	PatternMismatches int64 `json:"pattern_mismatches"`

	// UnsupportedFiles is the number of skipped unsupported files
	UnsupportedFiles int64 `json:"unsupported_files"`

	// LastUnsupportedFile is the last skipped unsupported file
	LastUnsupportedFile string `json:"last_unsupported_file"`
}

// String returns a string representation of [TelemetryData].
func (m TelemetryData) String() string {
	b, _ := json.Marshal(m)
	return string(b)
}

// MarshalJSON implements the [encoding/json.Marshaler] interface.
func (m TelemetryData) MarshalJSON() ([]byte, error) {
	var lastError string
	if m.LastError != nil {
		lastError = m.LastError.Error()
	}

	type Alias TelemetryData
	return json.Marshal(&struct {
		LastError string `json:"last_error"`
		*Alias
	}{
		LastError: lastError,
		Alias:     (*Alias)(&m),
	})
}

// TelemetryHook is a function type that performs operations on [TelemetryData]
// after an operation has finished which can be used to submit the [TelemetryData]
// to a telemetry service, for example.
type TelemetryHook func(context.Context, *TelemetryData)

// captureError counts err as the last error of the operation
func captureError(td *TelemetryData, err error) {
	if err != nil {
		td.Errors++
		td.LastError = err
	}
}

// now is the clock used to measure durations
var now = time.Now

// captureDuration stores the time elapsed since start
func captureDuration(td *TelemetryData, start time.Time) {
	td.Duration = time.Since(start)
}

// captureTreeStats copies the build statistics and totals of t into td
func captureTreeStats(td *TelemetryData, t *Tree) {
	s := t.Stats()
	td.Entries = s.Entries
	td.Files = s.Files
	td.Dirs = s.Dirs
	td.SynthesizedDirs = s.SynthesizedDirs
	td.DuplicatePaths = s.DuplicatePaths
	td.ShadowedFiles = s.ShadowedFiles
	td.SkippedEntries = s.SkippedEntries
	td.TotalRawSize, td.TotalCompressedSize = t.TotalSize()
}
