// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"
	archtree "github.com/hashicorp/go-archtree"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

// testZip packs a small zip archive with a directory, two files and a symlink
func testZip(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	entries := []struct {
		name    string
		mode    fs.FileMode
		content string
	}{
		{"a.txt", 0644, "hello"},
		{"dir/", fs.ModeDir | 0755, ""},
		{"dir/b.txt", 0644, "world!"},
		{"link", fs.ModeSymlink | 0777, "a.txt"},
	}
	for _, e := range entries {
		fh := &zip.FileHeader{Name: e.name, Method: zip.Deflate, Modified: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)}
		fh.SetMode(e.mode)
		w, err := zw.CreateHeader(fh)
		require.NoError(t, err)
		_, err = w.Write([]byte(e.content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func testArchive(t *testing.T) *archtree.Archive {
	t.Helper()
	a, err := archtree.Open(context.Background(), bytes.NewReader(testZip(t)))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

// writeTestZip stores the test archive in a temporary directory and returns its path
func writeTestZip(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.zip")
	require.NoError(t, os.WriteFile(path, testZip(t), 0644))
	return path
}

// runCLI parses args like the binary does and runs the selected command
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var cli CLI
	parser, err := kong.New(&cli, kong.Name("archtree"), kong.Vars{"version": "test"})
	require.NoError(t, err)
	kctx, err := parser.Parse(args)
	require.NoError(t, err)

	var out bytes.Buffer
	cli.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	cli.stdout = &out
	err = kctx.Run(&cli.Globals)
	return out.String(), err
}

func TestPrintTree(t *testing.T) {
	tests := []struct {
		name  string
		depth int
		want  string
	}{
		{
			name:  "unlimited",
			depth: -1,
			want:  "dir/ (6 B)\n  b.txt (6 B)\na.txt (5 B)\nlink -> a.txt\n",
		},
		{
			name:  "top-level only",
			depth: 0,
			want:  "dir/ (6 B)\na.txt (5 B)\nlink -> a.txt\n",
		},
	}

	a := testArchive(t)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, printTree(&buf, a.Tree(), tc.depth, false))
			assert.Equal(t, tc.want, buf.String())
		})
	}
}

func TestPrintJSON(t *testing.T) {
	a := testArchive(t)
	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, a.Tree(), -1))

	var roots []jsonNode
	require.NoError(t, json.Unmarshal(buf.Bytes(), &roots))
	require.Len(t, roots, 3)
	assert.Equal(t, "dir", roots[0].Name)
	assert.Equal(t, "dir", roots[0].Kind)
	assert.EqualValues(t, 6, roots[0].Size)
	require.Len(t, roots[0].Children, 1)
	assert.Equal(t, "dir/b.txt", roots[0].Children[0].Path)
	assert.Equal(t, "a.txt", roots[2].Linkname)

	buf.Reset()
	require.NoError(t, printJSON(&buf, a.Tree(), 0))
	var shallow []jsonNode
	require.NoError(t, json.Unmarshal(buf.Bytes(), &shallow))
	require.Len(t, shallow, 3)
	assert.Empty(t, shallow[0].Children)
}

func TestList(t *testing.T) {
	a := testArchive(t)

	var buf bytes.Buffer
	require.NoError(t, list(&buf, a.Tree(), ""))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "dir/")
	assert.Contains(t, lines[1], "a.txt")
	assert.Contains(t, lines[1], "5 B")
	assert.Contains(t, lines[1], "2021-01-01 00:00:00")

	buf.Reset()
	require.NoError(t, list(&buf, a.Tree(), "dir"))
	assert.Contains(t, buf.String(), "b.txt")

	assert.ErrorIs(t, list(&buf, a.Tree(), "missing"), archtree.ErrNotFound)
}

func TestTreeCmd(t *testing.T) {
	path := writeTestZip(t)

	out, err := runCLI(t, "tree", path, "-d", "0")
	require.NoError(t, err)
	assert.Equal(t, "dir/ (6 B)\na.txt (5 B)\nlink -> a.txt\n", out)

	out, err = runCLI(t, "ls", "--json", path, "dir")
	require.NoError(t, err)
	var nodes []jsonNode
	require.NoError(t, json.Unmarshal([]byte(out), &nodes))
	require.Len(t, nodes, 1)
	assert.Equal(t, "dir/b.txt", nodes[0].Path)

	_, err = runCLI(t, "tree", filepath.Join(t.TempDir(), "missing.zip"))
	assert.Error(t, err)
}

func TestCatCmd(t *testing.T) {
	path := writeTestZip(t)

	tests := []struct {
		name    string
		file    string
		want    string
		wantErr error
	}{
		{name: "top-level file", file: "a.txt", want: "hello"},
		{name: "nested file", file: "dir/b.txt", want: "world!"},
		{name: "directory", file: "dir", wantErr: archtree.ErrIsDirectory},
		{name: "missing", file: "missing.txt", wantErr: archtree.ErrNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := runCLI(t, "cat", path, tc.file)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, out)
		})
	}
}

func TestExtractCmd(t *testing.T) {
	path := writeTestZip(t)

	tests := []struct {
		name    string
		args    []string
		wantErr bool
		want    map[string]string // files expected below the destination
		absent  []string
	}{
		{
			name: "everything",
			args: []string{"-c"},
			want: map[string]string{"a.txt": "hello", "dir/b.txt": "world!"},
		},
		{
			name: "concurrent",
			args: []string{"-c", "-P", "4"},
			want: map[string]string{"a.txt": "hello", "dir/b.txt": "world!"},
		},
		{
			name:   "pattern",
			args:   []string{"-c", "-p", "dir/*"},
			want:   map[string]string{"dir/b.txt": "world!"},
			absent: []string{"a.txt", "link"},
		},
		{
			name:    "destination missing",
			wantErr: true,
		},
		{
			name:    "deny symlinks",
			args:    []string{"-c", "-D"},
			wantErr: true,
		},
		{
			name:   "deny symlinks continue on error",
			args:   []string{"-c", "-D", "-C"},
			want:   map[string]string{"a.txt": "hello"},
			absent: []string{"link"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dst := filepath.Join(t.TempDir(), "out")
			args := append([]string{"extract", path, dst}, tc.args...)
			_, err := runCLI(t, args...)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			for name, content := range tc.want {
				data, err := os.ReadFile(filepath.Join(dst, filepath.FromSlash(name)))
				require.NoError(t, err)
				assert.Equal(t, content, string(data))
			}
			for _, name := range tc.absent {
				_, err := os.Lstat(filepath.Join(dst, name))
				assert.ErrorIs(t, err, fs.ErrNotExist, name)
			}
		})
	}

	if runtime.GOOS != "windows" {
		dst := filepath.Join(t.TempDir(), "out")
		_, err := runCLI(t, "extract", path, dst, "-c")
		require.NoError(t, err)
		link, err := os.Readlink(filepath.Join(dst, "link"))
		require.NoError(t, err)
		assert.Equal(t, "a.txt", link)
	}
}

func TestAddCmd(t *testing.T) {
	path := writeTestZip(t)
	src := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(src, []byte("added"), 0644))

	_, err := runCLI(t, "add", path, "notes/new.txt", src)
	require.NoError(t, err)

	out, err := runCLI(t, "cat", path, "notes/new.txt")
	require.NoError(t, err)
	assert.Equal(t, "added", out)

	// a file cannot be the parent of the new one, the archive stays as it was
	_, err = runCLI(t, "add", path, "a.txt/new.txt", src)
	assert.ErrorIs(t, err, archtree.ErrNotDirectory)
	_, err = runCLI(t, "add", path, "dir", src)
	assert.ErrorIs(t, err, archtree.ErrIsDirectory)

	a, err := archtree.OpenFile(context.Background(), path)
	require.NoError(t, err)
	defer a.Close()
	assert.Len(t, a.Entries(), 5)
	data, err := a.Tree().ReadFile("a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = runCLI(t, "add", path, "x", filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
