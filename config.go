// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archtree

import (
	"context"
	"io"
	"io/fs"
	"log/slog"

	"golang.org/x/text/language"
)

// ConfigOption is a function pointer to implement the option pattern
type ConfigOption func(*Config)

// Config provides a configuration struct and options to adjust the configuration.
//
// The configuration struct holds all configuration options for reading an archive,
// building its tree and extracting its entries. The configuration options can be
// adjusted using the option pattern style.
//
// The default configuration is designed to be secure by default and prevent exhaustion,
// path traversal and symlink attacks.
type Config struct {
	// archiveName is the name of the input, used to derive names and to detect
	// formats without magic bytes
	archiveName string

	// archiveType forces the archive type instead of detecting it
	archiveType string

	// cacheContent enables the on-first-access cache of decompressed file content
	cacheContent bool

	// cacheInMemory offers the option to enable/disable caching the input in memory. This
	// applies only to inputs which are provided as a stream.
	cacheInMemory bool

	// caseInsensitiveSort compares sibling names ignoring case
	caseInsensitiveSort bool

	// concurrency is the number of files that are extracted in parallel
	concurrency int

	// continueOnError decides if the extraction should be continued even if an error occurred
	continueOnError bool

	// continueOnUnsupportedFiles offers the option to enable/disable skipping unsupported files
	continueOnUnsupportedFiles bool

	// create destination directory if it does not exist
	createDestination bool

	// customCreateDirMode is the file mode for created directories, that are not defined in the archive (respecting umask)
	customCreateDirMode fs.FileMode

	// customFileMode is the file mode for files without permissions in the archive (respecting umask)
	customFileMode fs.FileMode

	// denySymlinkExtraction offers the option to enable/disable the extraction of symlinks
	denySymlinkExtraction bool

	// dropFileAttributes is a flag drop the file attributes of the extracted files
	dropFileAttributes bool

	// locale is the language used to collate sibling names
	locale language.Tag

	// logger stream
	logger logger

	// maxExtractionSize is the maximum size of a file after decompression.
	// Set value to -1 to disable the check.
	maxExtractionSize int64

	// maxFiles is the maximum of entries (including folder and symlinks) in an archive.
	// Set value to -1 to disable the check.
	maxFiles int64

	// maxInputSize is the maximum size of the input
	// Set value to -1 to disable the check.
	maxInputSize int64

	// noUntarAfterDecompression offers the option to enable/disable combined tar.gz reading
	noUntarAfterDecompression bool

	// numericSort compares digit sequences in sibling names by their numeric value
	numericSort bool

	// Define if files should be overwritten in the destination
	overwrite bool

	// password for encrypted rar and 7z archives
	password string

	// patterns is a list of file patterns to match files to extract
	patterns []string

	// telemetryHook is a function to consume telemetry data after a finished operation
	// Important: do not adjust this value after an operation started
	telemetryHook TelemetryHook

	// timeFormat is the layout of the modification time display string
	timeFormat string

	// traverseSymlinks traverses symlinks to directories during extraction
	traverseSymlinks bool
}

// ArchiveName returns the configured name of the input.
func (c *Config) ArchiveName() string {
	return c.archiveName
}

// ArchiveType returns the forced archive type, or an empty string if the type is detected.
func (c *Config) ArchiveType() string {
	return c.archiveType
}

// CacheContent returns true if decompressed file content is cached on first access.
func (c *Config) CacheContent() bool {
	return c.cacheContent
}

// CacheInMemory returns true if caching the input in memory is enabled. This applies
// only to inputs which are provided as a stream.
//
// If set to false, the cache is stored on disk to avoid memory exhaustion.
func (c *Config) CacheInMemory() bool {
	return c.cacheInMemory
}

// CaseInsensitiveSort returns true if sibling names are compared ignoring case.
func (c *Config) CaseInsensitiveSort() bool {
	return c.caseInsensitiveSort
}

// CheckExtractionSize checks if fileSize exceeds configured maximum. If the maximum is exceeded,
// a [ErrMaxExtractionSizeExceeded] error is returned.
func (c *Config) CheckExtractionSize(fileSize int64) error {

	// check if disabled
	if c.MaxExtractionSize() == -1 {
		return nil
	}

	// check value
	if fileSize > c.MaxExtractionSize() {
		return ErrMaxExtractionSizeExceeded
	}
	return nil
}

// CheckInputSize checks if size exceeds the configured maximum. If the maximum is exceeded,
// a [ErrMaxInputSizeExceeded] error is returned.
func (c *Config) CheckInputSize(size int64) error {
	if c.MaxInputSize() == -1 {
		return nil
	}
	if size > c.MaxInputSize() {
		return ErrMaxInputSizeExceeded
	}
	return nil
}

// CheckMaxFiles checks if counter exceeds the configured maximum. If the maximum is exceeded,
// a [ErrMaxFilesExceeded] error is returned.
func (c *Config) CheckMaxFiles(counter int64) error {

	// check if disabled
	if c.MaxFiles() == -1 {
		return nil
	}

	// check value
	if counter > c.MaxFiles() {
		return ErrMaxFilesExceeded
	}
	return nil
}

// Concurrency returns the number of files that are extracted in parallel.
func (c *Config) Concurrency() int {
	return c.concurrency
}

// ContinueOnError returns true if the extraction should continue on error.
func (c *Config) ContinueOnError() bool {
	return c.continueOnError
}

// ContinueOnUnsupportedFiles returns true if unsupported files, e.g., FIFO, block or
// character devices, should be skipped.
//
// If symlinks are not allowed and a symlink is found, it is considered an unsupported
// file.
func (c *Config) ContinueOnUnsupportedFiles() bool {
	return c.continueOnUnsupportedFiles
}

// CreateDestination returns true if the destination directory should be
// created if it does not exist.
func (c *Config) CreateDestination() bool {
	return c.createDestination
}

// CustomCreateDirMode returns the file mode for created directories,
// that are not defined in the archive. (respecting umask)
func (c *Config) CustomCreateDirMode() fs.FileMode {
	return c.customCreateDirMode
}

// CustomFileMode returns the file mode for files that carry no permissions
// in the archive. (respecting umask)
func (c *Config) CustomFileMode() fs.FileMode {
	return c.customFileMode
}

// DenySymlinkExtraction returns true if symlinks are NOT allowed.
func (c *Config) DenySymlinkExtraction() bool {
	return c.denySymlinkExtraction
}

// DropFileAttributes returns true if the file attributes should be dropped.
func (c *Config) DropFileAttributes() bool {
	return c.dropFileAttributes
}

// Locale returns the language used to collate sibling names.
func (c *Config) Locale() language.Tag {
	return c.locale
}

// Logger returns the logger.
func (c *Config) Logger() logger {
	return c.logger
}

// MaxExtractionSize returns the maximum size of decompressed content.
func (c *Config) MaxExtractionSize() int64 {
	return c.maxExtractionSize
}

// MaxFiles returns the maximum of entries (including folder and symlinks) in an archive.
func (c *Config) MaxFiles() int64 {
	return c.maxFiles
}

// MaxInputSize returns the maximum size of the input.
func (c *Config) MaxInputSize() int64 {
	return c.maxInputSize
}

// NoUntarAfterDecompression returns true if tar.gz should NOT be read as tar after decompression.
func (c *Config) NoUntarAfterDecompression() bool {
	return c.noUntarAfterDecompression
}

// NumericSort returns true if digit sequences in names are compared by value.
func (c *Config) NumericSort() bool {
	return c.numericSort
}

// Overwrite returns true if files should be overwritten in the destination.
func (c *Config) Overwrite() bool {
	return c.overwrite
}

// Password returns the password for encrypted archives.
func (c *Config) Password() string {
	return c.password
}

// Patterns returns a list of unix-filepath patterns to match files to extract
// Patterns are matched using [pkg/path/filepath.Match].
func (c *Config) Patterns() []string {
	return c.patterns
}

// TelemetryHook returns the telemetry hook.
func (c *Config) TelemetryHook() TelemetryHook {
	if c.telemetryHook == nil {
		return func(ctx context.Context, d *TelemetryData) {
			// noop
		}
	}
	return c.telemetryHook
}

// TimeFormat returns the layout used for modification time display strings.
func (c *Config) TimeFormat() string {
	return c.timeFormat
}

// TraverseSymlinks returns true if symlinks should be traversed during extraction.
func (c *Config) TraverseSymlinks() bool {
	return c.traverseSymlinks
}

const (
	defaultArchiveType                = ""                    // detect archive type
	defaultCacheContent               = false                 // decompress on every access
	defaultCacheInMemory              = false                 // cache on disk
	defaultCaseInsensitiveSort        = false                 // case-sensitive collation
	defaultConcurrency                = 1                     // extract one file at a time
	defaultContinueOnError            = false                 // stop on error and return error
	defaultContinueOnUnsupportedFiles = false                 // stop on unsupported files and return error
	defaultCreateDestination          = false                 // don't create destination directory
	defaultCustomCreateDirMode        = 0750                  // default directory permissions rwxr-x---
	defaultCustomFileMode             = 0640                  // default file permissions rw-r-----
	defaultDenySymlinkExtraction      = false                 // allow symlink extraction
	defaultDropFileAttributes         = false                 // apply file attributes from archive
	defaultMaxFiles                   = 100000                // 100k files
	defaultMaxExtractionSize          = 1 << (10 * 3)         // 1 Gb
	defaultMaxInputSize               = 1 << (10 * 3)         // 1 Gb
	defaultNoUntarAfterDecompression  = false                 // untar after decompression
	defaultNumericSort                = false                 // compare digits as text
	defaultOverwrite                  = false                 // don't overwrite existing files
	defaultTimeFormat                 = "2006-01-02 15:04:05" // yyyy-MM-dd hh:mm:ss
	defaultTraverseSymlinks           = false                 // don't traverse symlinks
)

var (
	// slog to discard
	defaultLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	// root collation
	defaultLocale = language.Und
	// no operation telemetry hook
	defaultTelemetryHook = func(ctx context.Context, d *TelemetryData) {
		// noop
	}
)

// NewConfig is a generator option that takes opts as adjustments of the
// default configuration in an option pattern style.
func NewConfig(opts ...ConfigOption) *Config {

	// setup default values
	config := &Config{
		archiveType:                defaultArchiveType,
		cacheContent:               defaultCacheContent,
		cacheInMemory:              defaultCacheInMemory,
		caseInsensitiveSort:        defaultCaseInsensitiveSort,
		concurrency:                defaultConcurrency,
		continueOnError:            defaultContinueOnError,
		continueOnUnsupportedFiles: defaultContinueOnUnsupportedFiles,
		createDestination:          defaultCreateDestination,
		customCreateDirMode:        defaultCustomCreateDirMode,
		customFileMode:             defaultCustomFileMode,
		denySymlinkExtraction:      defaultDenySymlinkExtraction,
		dropFileAttributes:         defaultDropFileAttributes,
		locale:                     defaultLocale,
		logger:                     defaultLogger,
		maxFiles:                   defaultMaxFiles,
		maxExtractionSize:          defaultMaxExtractionSize,
		maxInputSize:               defaultMaxInputSize,
		noUntarAfterDecompression:  defaultNoUntarAfterDecompression,
		numericSort:                defaultNumericSort,
		overwrite:                  defaultOverwrite,
		telemetryHook:              defaultTelemetryHook,
		timeFormat:                 defaultTimeFormat,
		traverseSymlinks:           defaultTraverseSymlinks,
	}

	// Loop through each option
	for _, opt := range opts {
		opt(config)
	}

	return config
}

// WithArchiveName options pattern function to set the name of the input. The name is
// used to name the content of single compressed files and to detect formats without
// magic bytes, e.g. brotli.
func WithArchiveName(name string) ConfigOption {
	return func(c *Config) {
		c.archiveName = name
	}
}

// WithArchiveType options pattern function to force the archive type, e.g. "zip" or "tar.gz",
// instead of detecting it from the magic bytes.
func WithArchiveType(archiveType string) ConfigOption {
	return func(c *Config) {
		if len(archiveType) > 0 {
			c.archiveType = archiveType
		}
	}
}

// WithCacheContent options pattern function to cache decompressed file content on first access.
// The cache is dropped when the tree is discarded.
func WithCacheContent(cache bool) ConfigOption {
	return func(c *Config) {
		c.cacheContent = cache
	}
}

// WithCacheInMemory options pattern function to enable/disable caching the input in memory.
// This applies only to inputs which are provided as a stream.
//
// If set to false, the cache is stored on disk to avoid memory exhaustion.
func WithCacheInMemory(cache bool) ConfigOption {
	return func(c *Config) {
		c.cacheInMemory = cache
	}
}

// WithCaseInsensitiveSort options pattern function to compare sibling names ignoring case.
func WithCaseInsensitiveSort(enable bool) ConfigOption {
	return func(c *Config) {
		c.caseInsensitiveSort = enable
	}
}

// WithConcurrency options pattern function to set the number of files that are
// extracted in parallel. Values below 1 are ignored.
func WithConcurrency(n int) ConfigOption {
	return func(c *Config) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithContinueOnError options pattern function to continue on error during extraction. If set to true,
// the error is logged and the extraction continues. If set to false, the extraction stops and returns the error.
func WithContinueOnError(yes bool) ConfigOption {
	return func(c *Config) {
		c.continueOnError = yes
	}
}

// WithContinueOnUnsupportedFiles options pattern function to
// enable/disable skipping unsupported files. An unsupported file is a file
// that is not supported by the extraction algorithm. If symlinks are not allowed
// and a symlink is found, it is considered an unsupported file.
func WithContinueOnUnsupportedFiles(ctd bool) ConfigOption {
	return func(c *Config) {
		c.continueOnUnsupportedFiles = ctd
	}
}

// WithCreateDestination options pattern function to create
// destination directory if it does not exist.
func WithCreateDestination(create bool) ConfigOption {
	return func(c *Config) {
		c.createDestination = create
	}
}

// WithCustomCreateDirMode options pattern function to set the file mode
// for created directories, that are not defined in the archive. (respecting umask)
func WithCustomCreateDirMode(mode fs.FileMode) ConfigOption {
	return func(c *Config) {
		c.customCreateDirMode = mode
	}
}

// WithCustomFileMode options pattern function to set the file mode for files
// without permissions in the archive. (respecting umask)
func WithCustomFileMode(mode fs.FileMode) ConfigOption {
	return func(c *Config) {
		c.customFileMode = mode
	}
}

// WithDenySymlinkExtraction options pattern function to deny symlink extraction.
func WithDenySymlinkExtraction(deny bool) ConfigOption {
	return func(c *Config) {
		c.denySymlinkExtraction = deny
	}
}

// WithDropFileAttributes options pattern function to drop the
// file attributes of the extracted files.
func WithDropFileAttributes(drop bool) ConfigOption {
	return func(c *Config) {
		c.dropFileAttributes = drop
	}
}

// WithInsecureTraverseSymlinks options pattern function to traverse symlinks during extraction.
func WithInsecureTraverseSymlinks(traverse bool) ConfigOption {
	return func(c *Config) {
		c.traverseSymlinks = traverse
	}
}

// WithLocale options pattern function to set the language used to collate sibling names.
func WithLocale(tag language.Tag) ConfigOption {
	return func(c *Config) {
		c.locale = tag
	}
}

// WithLogger options pattern function to set a custom logger.
func WithLogger(logger logger) ConfigOption {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithMaxExtractionSize options pattern function to set maximum size of decompressed
// content. (-1 to disable check)
func WithMaxExtractionSize(maxExtractionSize int64) ConfigOption {
	return func(c *Config) {
		c.maxExtractionSize = maxExtractionSize
	}
}

// WithMaxFiles options pattern function to set maximum number of entries, including
// files, directories and symlinks, in an archive. (-1 to disable check)
func WithMaxFiles(maxFiles int64) ConfigOption {
	return func(c *Config) {
		c.maxFiles = maxFiles
	}
}

// WithMaxInputSize options pattern function to set MaxInputSize for the input. (-1 to disable check)
func WithMaxInputSize(maxInputSize int64) ConfigOption {
	return func(c *Config) {
		c.maxInputSize = maxInputSize
	}
}

// WithNoUntarAfterDecompression options pattern function to enable/disable combined tar.gz reading.
func WithNoUntarAfterDecompression(disable bool) ConfigOption {
	return func(c *Config) {
		c.noUntarAfterDecompression = disable
	}
}

// WithNumericSort options pattern function to compare digit sequences in sibling names
// by their numeric value, e.g. "file2" before "file10".
func WithNumericSort(enable bool) ConfigOption {
	return func(c *Config) {
		c.numericSort = enable
	}
}

// WithOverwrite options pattern function specify if files should be overwritten in the destination.
func WithOverwrite(enable bool) ConfigOption {
	return func(c *Config) {
		c.overwrite = enable
	}
}

// WithPassword options pattern function to set the password for encrypted rar and 7z archives.
func WithPassword(password string) ConfigOption {
	return func(c *Config) {
		c.password = password
	}
}

// WithPatterns options pattern function to set filepath pattern, that files need to match to be extracted.
// Patterns are matched using [pkg/path/filepath.Match].
func WithPatterns(pattern ...string) ConfigOption {
	return func(c *Config) {
		c.patterns = append(c.patterns, pattern...)
	}
}

// WithTelemetryHook options pattern function to set a [TelemetryHook], which is called after
// every operation.
func WithTelemetryHook(hook TelemetryHook) ConfigOption {
	return func(c *Config) {
		c.telemetryHook = hook
	}
}

// WithTimeFormat options pattern function to set the layout of modification time display
// strings, see [time.Layout].
func WithTimeFormat(layout string) ConfigOption {
	return func(c *Config) {
		if len(layout) > 0 {
			c.timeFormat = layout
		}
	}
}
