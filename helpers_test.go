// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archtree_test

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/dsnet/compress/bzip2"
	"github.com/golang/snappy"
	archtree "github.com/hashicorp/go-archtree"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

// baseTime is the modification time of all generated test entries
var baseTime = time.Date(2021, 1, 1, 12, 0, 0, 0, time.UTC)

// archiveContent describes one entry of a generated test archive. Names ending
// with a slash are directories, a non-empty Linktarget makes a symlink.
type archiveContent struct {
	Name       string
	Content    []byte
	Mode       fs.FileMode
	Linktarget string
}

func (c archiveContent) isDir() bool {
	return strings.HasSuffix(c.Name, "/")
}

// defaultContents is a small archive with nested files, an explicit directory and a symlink
var defaultContents = []archiveContent{
	{Name: "README.md", Content: []byte("# readme\n"), Mode: 0644},
	{Name: "src/", Mode: 0755},
	{Name: "src/main.go", Content: []byte("package main\n"), Mode: 0644},
	{Name: "src/pkg/util.go", Content: []byte("package pkg\n\nfunc Util() {}\n"), Mode: 0600},
	{Name: "link", Mode: 0777, Linktarget: "src/main.go"},
}

// packTar creates a tar archive from contents
func packTar(t *testing.T, contents []archiveContent) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, c := range contents {
		hdr := &tar.Header{
			Name:    c.Name,
			Mode:    int64(c.Mode.Perm()),
			ModTime: baseTime,
		}
		switch {
		case c.isDir():
			hdr.Typeflag = tar.TypeDir
		case c.Linktarget != "":
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = c.Linktarget
		default:
			hdr.Typeflag = tar.TypeReg
			hdr.Size = int64(len(c.Content))
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if hdr.Typeflag == tar.TypeReg {
			_, err := tw.Write(c.Content)
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

// packZip creates a zip archive from contents
func packZip(t *testing.T, contents []archiveContent) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, c := range contents {
		fh := &zip.FileHeader{
			Name:     c.Name,
			Method:   zip.Deflate,
			Modified: baseTime,
		}
		switch {
		case c.isDir():
			fh.SetMode(fs.ModeDir | c.Mode.Perm())
		case c.Linktarget != "":
			fh.SetMode(fs.ModeSymlink | c.Mode.Perm())
		default:
			fh.SetMode(c.Mode.Perm())
		}
		w, err := zw.CreateHeader(fh)
		require.NoError(t, err)
		switch {
		case c.isDir():
		case c.Linktarget != "":
			_, err = w.Write([]byte(c.Linktarget))
		default:
			_, err = w.Write(c.Content)
		}
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// compressor wraps a writer with a compression algorithm
type compressor func(io.Writer) (io.WriteCloser, error)

var compressors = map[string]compressor{
	"gz": func(w io.Writer) (io.WriteCloser, error) {
		return gzip.NewWriter(w), nil
	},
	"bz2": func(w io.Writer) (io.WriteCloser, error) {
		return bzip2.NewWriter(w, &bzip2.WriterConfig{})
	},
	"xz": func(w io.Writer) (io.WriteCloser, error) {
		return xz.NewWriter(w)
	},
	"zst": func(w io.Writer) (io.WriteCloser, error) {
		return zstd.NewWriter(w)
	},
	"lz4": func(w io.Writer) (io.WriteCloser, error) {
		return lz4.NewWriter(w), nil
	},
	"sz": func(w io.Writer) (io.WriteCloser, error) {
		return snappy.NewBufferedWriter(w), nil
	},
	"zz": func(w io.Writer) (io.WriteCloser, error) {
		return zlib.NewWriter(w), nil
	},
	"br": func(w io.Writer) (io.WriteCloser, error) {
		return brotli.NewWriter(w), nil
	},
}

// compress compresses data with the algorithm of the file extension ext
func compress(t *testing.T, ext string, data []byte) []byte {
	t.Helper()
	newWriter, ok := compressors[ext]
	require.True(t, ok, "no compressor for %s", ext)

	var buf bytes.Buffer
	w, err := newWriter(&buf)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// openArchive opens data and closes the archive when the test ends
func openArchive(t *testing.T, data []byte, opts ...archtree.ConfigOption) *archtree.Archive {
	t.Helper()
	a, err := archtree.Open(context.Background(), bytes.NewReader(data), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

// fileEntry returns a raw file entry with static content
func fileEntry(path string, content string) archtree.RawEntry {
	return archtree.RawEntry{
		Path:           path,
		RawSize:        int64(len(content)),
		CompressedSize: int64(len(content)) / 2,
		Mode:           0644,
		ModTime:        baseTime,
		Content: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(content)), nil
		},
	}
}

// dirEntry returns a raw directory entry
func dirEntry(path string) archtree.RawEntry {
	return archtree.RawEntry{Path: path, IsDir: true, Mode: fs.ModeDir | 0755, ModTime: baseTime}
}

// paths returns the path of every node in walk order
func paths(t *testing.T, tree *archtree.Tree) []string {
	t.Helper()
	var out []string
	require.NoError(t, tree.Walk(func(n *archtree.Node, _ int) error {
		out = append(out, n.Path)
		return nil
	}))
	return out
}
