// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"
	archtree "github.com/hashicorp/go-archtree"
	"github.com/pkg/errors"
	"golang.org/x/text/language"
)

// Globals are the cli parameters shared by all commands
type Globals struct {
	CacheInMemory     bool             `help:"Cache stdin input in memory instead of a temporary file."`
	CaseInsensitive   bool             `short:"i" help:"Sort names case insensitive."`
	Locale            string           `default:"und" help:"Locale used to sort names (BCP 47)."`
	MaxFiles          int64            `optional:"" default:"100000" help:"Maximum entries of an archive. (disable check: -1)"`
	MaxExtractionSize int64            `optional:"" default:"1073741824" help:"Maximum size of decompressed content (in bytes). (disable check: -1)"`
	MaxInputSize      int64            `optional:"" default:"1073741824" help:"Maximum input size that allowed is (in bytes). (disable check: -1)"`
	Metrics           bool             `short:"M" optional:"" default:"false" help:"Print telemetry data to log after each operation."`
	NoUntar           bool             `help:"Do not read a decompressed tar as archive."`
	Numeric           bool             `short:"n" help:"Sort digit sequences by numeric value."`
	Password          string           `env:"ARCHTREE_PASSWORD" help:"Password of encrypted 7z and rar archives."`
	Type              string           `short:"t" help:"Archive type, detected from the input if empty (e.g. zip, tar.gz, 7z)."`
	Verbose           bool             `short:"v" optional:"" help:"Verbose logging."`
	Version           kong.VersionFlag `short:"V" optional:"" help:"Print release version information."`

	logger *slog.Logger `kong:"-"`
	stdout io.Writer    `kong:"-"`
}

// CLI are the cli parameters for the archtree binary
type CLI struct {
	Globals

	Tree    TreeCmd    `cmd:"" help:"Print the tree of an archive."`
	Ls      LsCmd      `cmd:"" help:"List a directory of an archive."`
	Cat     CatCmd     `cmd:"" help:"Print a file of an archive."`
	Extract ExtractCmd `cmd:"" help:"Extract an archive."`
	Add     AddCmd     `cmd:"" help:"Add a file to a zip archive."`
}

// Run the entrypoint into archtree as a cli tool
func Run(version, commit, date string) {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("archtree"),
		kong.Description("Browse, read and extract archives as a tree"),
		kong.UsageOnError(),
		kong.Vars{
			"version": fmt.Sprintf("%s (%s), commit %s, built at %s", filepath.Base(os.Args[0]), version, commit, date),
		},
	)

	// Check for verbose output
	logLevel := slog.LevelError
	if cli.Verbose {
		logLevel = slog.LevelDebug
	}

	// setup logger
	cli.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	cli.stdout = os.Stdout

	kctx.FatalIfErrorf(kctx.Run(&cli.Globals))
}

// options converts the global parameters into archive options
func (g *Globals) options() ([]archtree.ConfigOption, error) {
	tag, err := language.Parse(g.Locale)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid locale %q", g.Locale)
	}

	// print telemetry data if requested
	telemetryToStderr := func(_ context.Context, td *archtree.TelemetryData) {
		if g.Metrics {
			fmt.Fprintln(os.Stderr, td.String())
		}
	}

	return []archtree.ConfigOption{
		archtree.WithArchiveType(g.Type),
		archtree.WithCacheInMemory(g.CacheInMemory),
		archtree.WithCaseInsensitiveSort(g.CaseInsensitive),
		archtree.WithLocale(tag),
		archtree.WithLogger(g.logger),
		archtree.WithMaxExtractionSize(g.MaxExtractionSize),
		archtree.WithMaxFiles(g.MaxFiles),
		archtree.WithMaxInputSize(g.MaxInputSize),
		archtree.WithNoUntarAfterDecompression(g.NoUntar),
		archtree.WithNumericSort(g.Numeric),
		archtree.WithPassword(g.Password),
		archtree.WithTelemetryHook(telemetryToStderr),
	}, nil
}

// open opens the archive at path, "-" reads from stdin
func (g *Globals) open(ctx context.Context, path string, extra ...archtree.ConfigOption) (*archtree.Archive, error) {
	opts, err := g.options()
	if err != nil {
		return nil, err
	}
	opts = append(opts, extra...)

	if path == "-" {
		a, err := archtree.Open(ctx, bufio.NewReader(os.Stdin), opts...)
		return a, errors.Wrap(err, "cannot read archive from stdin")
	}
	a, err := archtree.OpenFile(ctx, path, opts...)
	return a, errors.Wrapf(err, "cannot read archive %s", path)
}

// TreeCmd prints the sorted tree of an archive
type TreeCmd struct {
	Archive    string `arg:"" name:"archive" help:"Path to archive. (\"-\" for STDIN)"`
	Compressed bool   `short:"c" help:"Show compressed sizes."`
	Depth      int    `short:"d" default:"-1" help:"Maximum depth to print. (unlimited: -1)"`
	JSON       bool   `short:"j" name:"json" help:"Print the tree as JSON."`
}

// Run prints the tree
func (c *TreeCmd) Run(g *Globals) error {
	ctx := context.Background()
	a, err := g.open(ctx, c.Archive)
	if err != nil {
		return err
	}
	defer a.Close()

	if c.JSON {
		return printJSON(g.stdout, a.Tree(), c.Depth)
	}
	return printTree(g.stdout, a.Tree(), c.Depth, c.Compressed)
}

var dirColor = color.New(color.FgBlue, color.Bold)

// printTree writes one indented line per node
func printTree(w io.Writer, t *archtree.Tree, maxDepth int, compressed bool) error {
	return t.Walk(func(n *archtree.Node, depth int) error {
		size := n.RawSizeText
		if compressed {
			size = n.CompressedSizeText
		}
		indent := strings.Repeat("  ", depth)
		if n.IsDir() {
			fmt.Fprintf(w, "%s%s (%s)\n", indent, dirColor.Sprint(n.Name+"/"), size)
			if maxDepth >= 0 && depth >= maxDepth {
				return fs.SkipDir
			}
			return nil
		}
		if n.IsSymlink() {
			fmt.Fprintf(w, "%s%s -> %s\n", indent, n.Name, n.Linkname)
			return nil
		}
		fmt.Fprintf(w, "%s%s (%s)\n", indent, n.Name, size)
		return nil
	})
}

// jsonNode is the JSON representation of a tree node
type jsonNode struct {
	Name           string      `json:"name"`
	Path           string      `json:"path"`
	Kind           string      `json:"kind"`
	Size           int64       `json:"size"`
	CompressedSize int64       `json:"compressed_size"`
	SizeText       string      `json:"size_text"`
	ModTime        string      `json:"mod_time,omitempty"`
	Linkname       string      `json:"linkname,omitempty"`
	Children       []*jsonNode `json:"children,omitempty"`
}

// printJSON writes the tree below the top-level list as JSON
func printJSON(w io.Writer, t *archtree.Tree, maxDepth int) error {
	return writeJSON(w, t, t.Roots(), maxDepth)
}

// writeJSON writes nodes and their descendants up to maxDepth as JSON
func writeJSON(w io.Writer, t *archtree.Tree, nodes []*archtree.Node, maxDepth int) error {
	var convert func(n *archtree.Node, depth int) *jsonNode
	convert = func(n *archtree.Node, depth int) *jsonNode {
		jn := &jsonNode{
			Name:           n.Name,
			Path:           n.Path,
			Kind:           n.Kind.String(),
			Size:           n.RawSize,
			CompressedSize: n.CompressedSize,
			SizeText:       n.RawSizeText,
			ModTime:        n.ModTimeText,
			Linkname:       n.Linkname,
		}
		if maxDepth >= 0 && depth >= maxDepth {
			return jn
		}
		for _, child := range t.Children(n) {
			jn.Children = append(jn.Children, convert(child, depth+1))
		}
		return jn
	}

	out := make([]*jsonNode, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, convert(n, 0))
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// LsCmd lists the children of a directory
type LsCmd struct {
	Archive string `arg:"" name:"archive" help:"Path to archive. (\"-\" for STDIN)"`
	Path    string `arg:"" optional:"" help:"Directory inside the archive, top-level if empty."`
	JSON    bool   `short:"j" name:"json" help:"Print the listing as JSON."`
}

// Run lists the directory
func (c *LsCmd) Run(g *Globals) error {
	ctx := context.Background()
	a, err := g.open(ctx, c.Archive)
	if err != nil {
		return err
	}
	defer a.Close()

	if c.JSON {
		nodes, err := listNodes(a.Tree(), c.Path)
		if err != nil {
			return err
		}
		return writeJSON(g.stdout, a.Tree(), nodes, 0)
	}
	return list(g.stdout, a.Tree(), c.Path)
}

// listNodes returns the children of the directory at path, or the top-level list
func listNodes(t *archtree.Tree, path string) ([]*archtree.Node, error) {
	if path == "" {
		return t.Roots(), nil
	}
	n, ok := t.Folder(path)
	if !ok {
		return nil, errors.Wrapf(archtree.ErrNotFound, "no directory %s", path)
	}
	return t.Children(n), nil
}

func list(w io.Writer, t *archtree.Tree, path string) error {
	nodes, err := listNodes(t, path)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, n := range nodes {
		name := n.Name
		if n.IsDir() {
			name = dirColor.Sprint(name + "/")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", n.Mode, n.RawSizeText, n.ModTimeText, name)
	}
	return tw.Flush()
}

// CatCmd writes the content of a file to stdout
type CatCmd struct {
	Archive string `arg:"" name:"archive" help:"Path to archive. (\"-\" for STDIN)"`
	Path    string `arg:"" help:"File inside the archive."`
}

// Run prints the file
func (c *CatCmd) Run(g *Globals) error {
	ctx := context.Background()
	a, err := g.open(ctx, c.Archive)
	if err != nil {
		return err
	}
	defer a.Close()

	rc, err := a.Tree().Open(c.Path)
	if err != nil {
		return errors.Wrapf(err, "cannot open %s", c.Path)
	}
	defer rc.Close()
	_, err = io.Copy(g.stdout, rc)
	return errors.Wrapf(err, "cannot read %s", c.Path)
}

// ExtractCmd writes an archive to disk
type ExtractCmd struct {
	Archive           string   `arg:"" name:"archive" help:"Path to archive. (\"-\" for STDIN)"`
	Destination       string   `arg:"" name:"destination" optional:"" help:"Output directory, derived from the archive name if empty."`
	Concurrency       int      `short:"P" default:"1" help:"Files that are written in parallel."`
	ContinueOnError   bool     `short:"C" help:"Continue extraction on error."`
	CreateDestination bool     `short:"c" help:"Create destination directory if it does not exist."`
	DenySymlinks      bool     `short:"D" help:"Deny symlink extraction."`
	DropAttributes    bool     `help:"Do not restore file modes and times."`
	FollowSymlinks    bool     `short:"F" help:"[Dangerous!] Follow symlinks to directories during extraction."`
	MaxExtractionTime int64    `optional:"" default:"60" help:"Maximum time that an extraction should take (in seconds). (disable check: -1)"`
	Overwrite         bool     `short:"O" help:"Overwrite if exist."`
	Pattern           []string `short:"p" help:"Extract only files matching the pattern."`
}

// Run extracts the archive
func (c *ExtractCmd) Run(g *Globals) error {
	ctx := context.Background()
	if c.MaxExtractionTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Second*time.Duration(c.MaxExtractionTime))
		defer cancel()
	}

	a, err := g.open(ctx, c.Archive,
		archtree.WithConcurrency(c.Concurrency),
		archtree.WithContinueOnError(c.ContinueOnError),
		archtree.WithCreateDestination(c.CreateDestination || c.Destination == ""),
		archtree.WithDenySymlinkExtraction(c.DenySymlinks),
		archtree.WithDropFileAttributes(c.DropAttributes),
		archtree.WithInsecureTraverseSymlinks(c.FollowSymlinks),
		archtree.WithOverwrite(c.Overwrite),
		archtree.WithPatterns(c.Pattern...),
	)
	if err != nil {
		return err
	}
	defer a.Close()

	dst := c.Destination
	if dst == "" {
		dst = a.AutoDestination(".")
	}
	g.logger.Debug("extracting", "archive", c.Archive, "dst", dst)
	if err := a.Extract(ctx, archtree.NewTargetDisk(), dst); err != nil {
		return errors.Wrap(err, "error during extraction")
	}
	return nil
}

// AddCmd adds a file to a zip archive and replaces the archive on disk
type AddCmd struct {
	Archive string `arg:"" name:"archive" help:"Path to zip archive." type:"existingfile"`
	Name    string `arg:"" name:"name" help:"Path of the new file inside the archive."`
	File    string `arg:"" name:"file" help:"File to add. (\"-\" for STDIN)"`
}

// Run adds the file
func (c *AddCmd) Run(g *Globals) error {
	ctx := context.Background()
	a, err := g.open(ctx, c.Archive)
	if err != nil {
		return err
	}
	defer a.Close()

	var content io.Reader = os.Stdin
	if c.File != "-" {
		f, err := os.Open(c.File)
		if err != nil {
			return errors.Wrap(err, "cannot open file")
		}
		defer f.Close()
		content = f
	}

	// write next to the archive and replace it at once
	tmp, err := os.CreateTemp(filepath.Dir(c.Archive), ".archtree-*")
	if err != nil {
		return errors.Wrap(err, "cannot create temporary file")
	}
	defer os.Remove(tmp.Name())

	b, err := a.AddFile(ctx, c.Name, content, tmp)
	if err != nil {
		tmp.Close()
		return errors.Wrapf(err, "cannot add %s", c.Name)
	}
	defer b.Close()
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "cannot write archive")
	}
	if err := os.Rename(tmp.Name(), c.Archive); err != nil {
		return errors.Wrap(err, "cannot replace archive")
	}

	raw, _ := b.Tree().TotalSize()
	g.logger.Info("added file", "name", c.Name, "entries", len(b.Entries()), "size", raw)
	return nil
}
