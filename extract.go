// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archtree

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Extract writes every directory and file of the archive below dst in t.
// Directories are created first, then regular files, with up to [WithConcurrency]
// files in parallel, then symlinks. For duplicate paths only the last entry of the
// archive is written.
func (a *Archive) Extract(ctx context.Context, t Target, dst string) error {
	cfg := a.cfg

	// prepare telemetry data collection and emit
	td := &TelemetryData{Operation: operationExtract, ArchiveType: a.Type(), InputSize: a.InputSize()}
	defer cfg.TelemetryHook()(ctx, td)
	defer captureDuration(td, now())

	x := newExtraction(t, dst, a.tree, cfg, td)
	return x.run(ctx)
}

// ExtractFile writes the file at path into the directory dst in t, named after its
// last path component, and returns the path of the written file.
func (a *Archive) ExtractFile(ctx context.Context, t Target, dst string, path string) (string, error) {
	cfg := a.cfg
	td := &TelemetryData{Operation: operationExtract, ArchiveType: a.Type(), InputSize: a.InputSize()}
	defer cfg.TelemetryHook()(ctx, td)
	defer captureDuration(td, now())

	n, err := a.tree.lookupFile(path)
	if err != nil {
		captureError(td, err)
		return "", err
	}
	if !n.Mode.IsRegular() || n.content == nil {
		err := unsupportedFile(n.Path)
		captureError(td, err)
		return "", err
	}
	if err := ctx.Err(); err != nil {
		captureError(td, err)
		return "", err
	}

	x := newExtraction(t, dst, a.tree, cfg, td)
	if err := x.dst.prepare(); err != nil {
		captureError(td, err)
		return "", err
	}
	if err := x.writeFile(n, n.Name); err != nil {
		captureError(td, err)
		return "", err
	}
	return filepath.Join(dst, n.Name), nil
}

// AutoDestination returns the directory an archive is extracted into next to
// dir: dir itself if the archive has a single top-level node, otherwise a
// sub-directory named after the archive without its extension.
func (a *Archive) AutoDestination(dir string) string {
	return autoDestination(dir, a.Name(), a.tree)
}

func autoDestination(dir string, archiveName string, t *Tree) string {
	if len(t.roots) <= 1 {
		return dir
	}
	name := strings.TrimSuffix(archiveName, filepath.Ext(archiveName))
	if name == "" || name == "." || name == ".." {
		name = defaultDecompressionName
	}
	return filepath.Join(dir, name)
}

// extraction holds the state of one Extract call. td is guarded by mu, files are
// written concurrently. remaining is the extraction size budget shared by all
// files, nil if unlimited.
type extraction struct {
	cfg       *Config
	tree      *Tree
	dst       *destination
	remaining *atomic.Int64

	mu sync.Mutex
	td *TelemetryData
}

func newExtraction(t Target, dst string, tree *Tree, cfg *Config, td *TelemetryData) *extraction {
	x := &extraction{cfg: cfg, tree: tree, dst: newDestination(t, dst, tree, cfg), td: td}
	if limit := cfg.MaxExtractionSize(); limit >= 0 {
		x.remaining = new(atomic.Int64)
		x.remaining.Store(limit)
	}
	return x
}

func (x *extraction) run(ctx context.Context) error {
	cfg := x.cfg
	tree := x.tree

	// check if dst exist, create it if configured
	if err := x.dst.prepare(); err != nil {
		return x.handleError("cannot create destination", err)
	}

	cfg.Logger().Info("start extraction", "dst", x.dst.dir)
	var files, links, dirs []*Node
	err := tree.Walk(func(n *Node, _ int) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		// check if file needs to match patterns
		if n.Kind == KindFile {
			match, err := checkPatterns(cfg.Patterns(), n.Path)
			if err != nil {
				return x.handleError("cannot check pattern", err)
			}
			if !match {
				cfg.Logger().Info("skipping file (pattern mismatch)", "name", n.Path)
				x.td.PatternMismatches++
				return nil
			}
		}

		switch {
		case n.Kind == KindDir:
			if len(cfg.Patterns()) > 0 {
				// created on demand for matching files
				return nil
			}
			if err := x.dst.mkdir(n.Path); err != nil {
				return x.handleError("failed to create safe directory", err)
			}
			x.td.ExtractedDirs++
			dirs = append(dirs, n)

		case tree.files[n.Path] != n.ID:
			cfg.Logger().Debug("skip overwritten duplicate", "name", n.Path)

		case n.IsSymlink():
			links = append(links, n)

		case n.Mode.IsRegular() && n.content != nil:
			files = append(files, n)

		default:
			if cfg.ContinueOnUnsupportedFiles() {
				x.td.UnsupportedFiles++
				x.td.LastUnsupportedFile = n.Path
				cfg.Logger().Debug("skipping unsupported file", "name", n.Path)
				return nil
			}
			return x.handleError("cannot extract file", unsupportedFile(n.Path))
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := x.writeFiles(ctx, files); err != nil {
		return err
	}

	for _, n := range links {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := x.writeSymlink(n); err != nil {
			return err
		}
	}

	// directory times last, file creation changes them
	for i := len(dirs) - 1; i >= 0; i-- {
		if err := x.dst.setDirTimes(dirs[i]); err != nil {
			if err := x.handleError("failed to set directory times", err); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeFiles extracts files with the configured concurrency.
func (x *extraction) writeFiles(ctx context.Context, files []*Node) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(x.cfg.Concurrency())
	for _, n := range files {
		if ctx.Err() != nil {
			break
		}
		n := n
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := x.writeFile(n, n.Path); err != nil {
				return x.lockedHandleError("failed to extract file", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// writeFile extracts the content of n to the archive path p below dst.
func (x *extraction) writeFile(n *Node, p string) error {
	rc, err := n.Open()
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer rc.Close()

	var src io.Reader = rc
	if x.remaining != nil {
		src = &budgetReader{r: rc, remaining: x.remaining}
	}
	written, err := x.dst.writeFile(n, p, src)

	x.mu.Lock()
	x.td.ExtractionSize += written
	if err == nil {
		x.td.ExtractedFiles++
	}
	x.mu.Unlock()
	return err
}

func (x *extraction) writeSymlink(n *Node) error {
	cfg := x.cfg
	if cfg.DenySymlinkExtraction() && cfg.ContinueOnUnsupportedFiles() {
		x.td.UnsupportedFiles++
		x.td.LastUnsupportedFile = n.Path
		cfg.Logger().Debug("skipping symlink", "name", n.Path)
		return nil
	}
	if err := x.dst.writeSymlink(n); err != nil {
		return x.handleError("failed to create safe symlink", err)
	}
	x.td.ExtractedSymlinks++
	return nil
}

// handleError increases the error counter, sets the latest error and
// decides if extraction should continue.
func (x *extraction) handleError(msg string, err error) error {

	// increase error counter and set error
	x.td.Errors++
	x.td.LastError = fmt.Errorf("%s: %w", msg, err)

	// do not end on error
	if x.cfg.ContinueOnError() {
		x.cfg.Logger().Error(msg, "error", err)
		return nil
	}

	// end extraction on error
	return x.td.LastError
}

func (x *extraction) lockedHandleError(msg string, err error) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.handleError(msg, err)
}

// budgetReader takes every byte it returns from a budget shared by all files of an
// extraction. Once the budget is used up it fails with [ErrMaxExtractionSizeExceeded],
// so concurrent files together never exceed it.
type budgetReader struct {
	r         io.Reader
	remaining *atomic.Int64
}

func (b *budgetReader) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if n == 0 {
		return n, err
	}
	for {
		left := b.remaining.Load()
		take := min(int64(n), left)
		if !b.remaining.CompareAndSwap(left, left-take) {
			continue
		}
		if take < int64(n) {
			return int(take), ErrMaxExtractionSizeExceeded
		}
		return n, err
	}
}

// checkPatterns checks if the given path matches any of the given patterns.
// If no patterns are given, the function returns true.
func checkPatterns(patterns []string, path string) (bool, error) {

	// no patterns given
	if len(patterns) == 0 {
		return true, nil
	}

	// check if path matches any pattern
	for _, pattern := range patterns {
		if match, err := filepath.Match(pattern, path); err != nil {
			return false, fmt.Errorf("failed to match pattern: %w", err)
		} else if match {
			return true, nil
		}
	}
	return false, nil
}
