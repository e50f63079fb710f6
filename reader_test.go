// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archtree_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	archtree "github.com/hashicorp/go-archtree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// test7zipArchiveHex holds the file "test/data" with content "Hello World!"
const test7zipArchiveHex = "377abcaf271c00049af18e7973000000000000002000000000000000a7e80f9801000b48656c6c6f20576f726c6421000000813307ae0fcef2b20c07c8437f41b1fafddb88b6d7636b8bd58a0e24a2f717a5f156e37f41fd00833298421d5d088c0cf987b30c0473663599e4d2f21cb69620038f10458109662135c3024189f42799abe3227b174a853e824f808b2efaab000017061001096300070b01000123030101055d001000000c760a015bcfa0a70000"

// testRarArchiveBase64 holds a rar5 archive with the file "file", the symlink "link" and the directory "dir"
const testRarArchiveBase64 = "UmFyIRoHAQAzkrXlCgEFBgAFAQGAgACUHbvqIgIDC50ABJ0ApIMCPs+7qoAAAQRmaWxlCgMTxA3XZsR7EA5EaSAgMyBTZXAgMjAyNCAxNToyMzoxNiBDRVNUCpbhsN0pAgMUAAQE7cMCAAAAAIAAAQRsaW5rCgMTyQ3XZizK2TQIBQEABGZpbGVVBY+/GwIDCwABAO2DAYAAAQNkaXIKAxO3DddmazZtHx13VlEDBQQA"

// checkDefaultTree verifies the tree built from defaultContents
func checkDefaultTree(t *testing.T, tree *archtree.Tree) {
	t.Helper()
	checkInvariants(t, tree)

	assert.Equal(t, []string{"src", "src/pkg", "src/pkg/util.go", "src/main.go", "link", "README.md"}, paths(t, tree))

	for _, c := range defaultContents {
		n, ok := tree.Lookup(c.Name)
		require.True(t, ok, "node %s", c.Name)
		assert.True(t, n.ModTime.Equal(baseTime), "mod time of %s: %v", c.Name, n.ModTime)

		switch {
		case c.isDir():
			assert.True(t, n.IsDir())
			assert.True(t, n.Explicit)
		case c.Linktarget != "":
			assert.True(t, n.IsSymlink(), "%s is a symlink", c.Name)
			assert.Equal(t, c.Linktarget, n.Linkname)
		default:
			assert.Equal(t, c.Mode.Perm(), n.Mode.Perm(), "mode of %s", c.Name)
			assert.EqualValues(t, len(c.Content), n.RawSize)
			data, err := tree.ReadFile(c.Name)
			require.NoError(t, err)
			assert.Equal(t, c.Content, data)
		}
	}

	pkg, ok := tree.Folder("src/pkg")
	require.True(t, ok)
	assert.False(t, pkg.Explicit)
	assert.EqualValues(t, 1, tree.Stats().SynthesizedDirs)
	assert.EqualValues(t, 4, tree.Stats().Files)
}

func TestOpenArchives(t *testing.T) {
	tarData := packTar(t, defaultContents)
	tests := []struct {
		name   string
		data   []byte
		opts   []archtree.ConfigOption
		expect string
	}{
		{name: "zip", data: packZip(t, defaultContents), expect: "zip"},
		{name: "tar", data: tarData, expect: "tar"},
		{name: "tar.gz", data: compress(t, "gz", tarData), expect: "tar.gz"},
		{name: "tar.bz2", data: compress(t, "bz2", tarData), expect: "tar.bz2"},
		{name: "tar.xz", data: compress(t, "xz", tarData), expect: "tar.xz"},
		{name: "tar.zst", data: compress(t, "zst", tarData), expect: "tar.zst"},
		{name: "tar.lz4", data: compress(t, "lz4", tarData), expect: "tar.lz4"},
		{name: "tar.sz", data: compress(t, "sz", tarData), expect: "tar.sz"},
		{name: "tar.zz", data: compress(t, "zz", tarData), expect: "tar.zz"},
		{
			name:   "tar.br by name",
			data:   compress(t, "br", tarData),
			opts:   []archtree.ConfigOption{archtree.WithArchiveName("test.tar.br")},
			expect: "tar.br",
		},
		{
			name:   "tar.br by type",
			data:   compress(t, "br", tarData),
			opts:   []archtree.ConfigOption{archtree.WithArchiveType("tbr")},
			expect: "tar.br",
		},
		{
			name:   "tgz by type",
			data:   compress(t, "gz", tarData),
			opts:   []archtree.ConfigOption{archtree.WithArchiveType("tgz")},
			expect: "tar.gz",
		},
		{
			name:   "zip cached content",
			data:   packZip(t, defaultContents),
			opts:   []archtree.ConfigOption{archtree.WithCacheContent(true)},
			expect: "zip",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := openArchive(t, tc.data, tc.opts...)
			assert.Equal(t, tc.expect, a.Type())
			assert.EqualValues(t, len(tc.data), a.InputSize())
			assert.Len(t, a.Entries(), len(defaultContents))
			checkDefaultTree(t, a.Tree())
		})
	}
}

func TestOpenStreamInput(t *testing.T) {
	data := compress(t, "gz", packTar(t, defaultContents))
	for _, inMemory := range []bool{false, true} {
		t.Run(map[bool]string{false: "temp file", true: "memory"}[inMemory], func(t *testing.T) {
			// a plain reader needs caching
			src := io.MultiReader(bytes.NewReader(data))
			a, err := archtree.Open(context.Background(), src, archtree.WithCacheInMemory(inMemory))
			require.NoError(t, err)
			checkDefaultTree(t, a.Tree())
			require.NoError(t, a.Close())
		})
	}
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.zip")
	data := packZip(t, defaultContents)
	require.NoError(t, os.WriteFile(path, data, 0644))

	a, err := archtree.OpenFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "test.zip", a.Name())
	assert.Equal(t, "zip", a.Type())
	assert.EqualValues(t, len(data), a.InputSize())
	checkDefaultTree(t, a.Tree())
	require.NoError(t, a.Close())

	_, err = archtree.OpenFile(context.Background(), filepath.Join(t.TempDir(), "missing.zip"))
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestOpenSingleCompressedFile(t *testing.T) {
	content := []byte("hello world, hello world, hello world")
	for _, ext := range []string{"gz", "bz2", "xz", "zst", "lz4", "sz", "zz", "br"} {
		t.Run(ext, func(t *testing.T) {
			data := compress(t, ext, content)
			a := openArchive(t, data, archtree.WithArchiveName("data.txt."+ext))
			assert.Equal(t, ext, a.Type())

			roots := a.Tree().Roots()
			require.Len(t, roots, 1)
			n := roots[0]
			assert.Equal(t, "data.txt", n.Name)
			assert.EqualValues(t, len(content), n.RawSize)
			assert.EqualValues(t, len(data), n.CompressedSize)

			got, err := a.Tree().ReadFile("data.txt")
			require.NoError(t, err)
			assert.Equal(t, content, got)
		})
	}
}

func TestOpenSingleCompressedFileWithoutName(t *testing.T) {
	a := openArchive(t, compress(t, "gz", []byte("data")))
	_, ok := a.Tree().File("archtree-decompressed-content")
	assert.True(t, ok)
}

func TestOpenNoUntar(t *testing.T) {
	tarData := packTar(t, defaultContents)
	a := openArchive(t, compress(t, "gz", tarData),
		archtree.WithArchiveName("test.tar.gz"),
		archtree.WithNoUntarAfterDecompression(true))
	assert.Equal(t, "gz", a.Type())

	data, err := a.Tree().ReadFile("test.tar")
	require.NoError(t, err)
	assert.Equal(t, tarData, data)
}

func TestOpenInvalidInput(t *testing.T) {
	tests := []struct {
		name       string
		data       []byte
		opts       []archtree.ConfigOption
		expectType string
	}{
		{name: "garbage", data: []byte("this is not an archive")},
		{name: "empty", data: []byte{}},
		{name: "fake 7z", data: append([]byte{0x37, 0x7A, 0xBC, 0xAF, 0x27, 0x1C}, bytes.Repeat([]byte{0x01}, 64)...), expectType: "7z"},
		{name: "fake zip", data: append([]byte{0x50, 0x4B, 0x03, 0x04}, bytes.Repeat([]byte{0x01}, 64)...), expectType: "zip"},
		{name: "broken gzip", data: []byte{0x1f, 0x8b, 0x08, 0x00, 0x01}, expectType: "gz"},
		{
			name:       "forced tar.gz without tar",
			data:       compress(t, "gz", []byte("plain text")),
			opts:       []archtree.ConfigOption{archtree.WithArchiveType("tar.gz")},
			expectType: "tar.gz",
		},
		{
			name:       "unknown forced type",
			data:       []byte("plain text"),
			opts:       []archtree.ConfigOption{archtree.WithArchiveType("arj")},
			expectType: "arj",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := archtree.Open(context.Background(), bytes.NewReader(tc.data), tc.opts...)
			require.Error(t, err)
			assert.ErrorIs(t, err, archtree.ErrFormat)

			var fe *archtree.FormatError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tc.expectType, fe.Type)
		})
	}
}

func TestOpenLimits(t *testing.T) {
	zipData := packZip(t, defaultContents)
	tests := []struct {
		name   string
		data   []byte
		stream bool
		opts   []archtree.ConfigOption
		expect error
	}{
		{
			name:   "max files",
			data:   zipData,
			opts:   []archtree.ConfigOption{archtree.WithMaxFiles(3)},
			expect: archtree.ErrMaxFilesExceeded,
		},
		{
			name:   "max files in stream archive",
			data:   packTar(t, defaultContents),
			opts:   []archtree.ConfigOption{archtree.WithMaxFiles(3)},
			expect: archtree.ErrMaxFilesExceeded,
		},
		{
			name:   "max input size",
			data:   zipData,
			opts:   []archtree.ConfigOption{archtree.WithMaxInputSize(10)},
			expect: archtree.ErrMaxInputSizeExceeded,
		},
		{
			name:   "max input size while caching in memory",
			data:   zipData,
			stream: true,
			opts:   []archtree.ConfigOption{archtree.WithMaxInputSize(10), archtree.WithCacheInMemory(true)},
			expect: archtree.ErrMaxInputSizeExceeded,
		},
		{
			name:   "max input size while caching in file",
			data:   zipData,
			stream: true,
			opts:   []archtree.ConfigOption{archtree.WithMaxInputSize(10)},
			expect: archtree.ErrMaxInputSizeExceeded,
		},
		{
			name:   "max extraction size of single file",
			data:   compress(t, "gz", bytes.Repeat([]byte("x"), 100)),
			opts:   []archtree.ConfigOption{archtree.WithMaxExtractionSize(10)},
			expect: archtree.ErrMaxExtractionSizeExceeded,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var src io.Reader = bytes.NewReader(tc.data)
			if tc.stream {
				src = io.MultiReader(src)
			}
			_, err := archtree.Open(context.Background(), src, tc.opts...)
			assert.ErrorIs(t, err, tc.expect)
		})
	}

	// disabled limits
	a := openArchive(t, zipData, archtree.WithMaxFiles(-1), archtree.WithMaxInputSize(-1))
	assert.Len(t, a.Entries(), len(defaultContents))
}

func TestOpenCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := archtree.Open(ctx, bytes.NewReader(packZip(t, defaultContents)))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadEntries(t *testing.T) {
	src, err := archtree.ReadEntries(context.Background(), bytes.NewReader(packTar(t, defaultContents)))
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, "tar", src.Type())
	entries := src.Entries()
	require.Len(t, entries, len(defaultContents))
	for i, c := range defaultContents {
		e := entries[i]
		assert.Equal(t, c.Name, e.Path, "archive order")
		assert.Equal(t, c.isDir(), e.IsDir)
		if c.Content != nil {
			rc, err := e.Open()
			require.NoError(t, err)
			data, err := io.ReadAll(rc)
			require.NoError(t, err)
			require.NoError(t, rc.Close())
			assert.Equal(t, c.Content, data)
		}
	}
}

func TestOpen7zip(t *testing.T) {
	data, err := hex.DecodeString(test7zipArchiveHex)
	require.NoError(t, err)

	a := openArchive(t, data)
	assert.Equal(t, "7z", a.Type())
	checkInvariants(t, a.Tree())

	_, ok := a.Tree().Folder("test")
	assert.True(t, ok)
	content, err := a.Tree().ReadFile("test/data")
	require.NoError(t, err)
	assert.Equal(t, "Hello World!", string(content))
}

func TestOpenRar(t *testing.T) {
	data, err := base64.StdEncoding.DecodeString(testRarArchiveBase64)
	require.NoError(t, err)

	for _, inMemory := range []bool{false, true} {
		a, err := archtree.Open(context.Background(), io.MultiReader(bytes.NewReader(data)), archtree.WithCacheInMemory(inMemory))
		require.NoError(t, err)
		assert.Equal(t, "rar", a.Type())
		checkInvariants(t, a.Tree())

		_, ok := a.Tree().Folder("dir")
		assert.True(t, ok)
		f, ok := a.Tree().File("file")
		require.True(t, ok)
		content, err := f.ReadAll()
		require.NoError(t, err)
		assert.EqualValues(t, f.RawSize, len(content))
		_, ok = a.Tree().Lookup("link")
		assert.True(t, ok)
		require.NoError(t, a.Close())
	}
}

func TestOpenTelemetry(t *testing.T) {
	var td *archtree.TelemetryData
	hook := func(_ context.Context, d *archtree.TelemetryData) { td = d }

	a := openArchive(t, packZip(t, defaultContents), archtree.WithTelemetryHook(hook))
	require.NotNil(t, td)
	assert.Equal(t, "open", td.Operation)
	assert.Equal(t, "zip", td.ArchiveType)
	assert.Equal(t, a.InputSize(), td.InputSize)
	assert.EqualValues(t, 5, td.Entries)
	assert.EqualValues(t, 4, td.Files)
	assert.EqualValues(t, 2, td.Dirs)
	assert.EqualValues(t, 1, td.SynthesizedDirs)
	assert.Zero(t, td.Errors)
	raw, _ := a.Tree().TotalSize()
	assert.Equal(t, raw, td.TotalRawSize)

	// errors are captured as well
	_, err := archtree.Open(context.Background(), bytes.NewReader([]byte("garbage")), archtree.WithTelemetryHook(hook))
	require.Error(t, err)
	assert.EqualValues(t, 1, td.Errors)
	assert.ErrorIs(t, td.LastError, archtree.ErrFormat)
}
