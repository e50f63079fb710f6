// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archtree

import (
	"io/fs"
	"testing"
)

func TestResolveLink(t *testing.T) {
	link := func(p, target string) RawEntry {
		return RawEntry{Path: p, Mode: fs.ModeSymlink | 0777, Linkname: target}
	}
	tree := Build([]RawEntry{
		{Path: "dir/file", Mode: 0644},
		link("top", "dir/file"),
		link("dir/sibling", "file"),
		link("dir/up", ".."),
		link("dir/escape", "../.."),
		link("chain", "dir/up/dir/file"),
		link("chain-escape", "dir/up/../outside"),
		link("abs", "/etc/passwd"),
		link("via-abs", "abs/x"),
		link("loop-a", "loop-b"),
		link("loop-b", "loop-a"),
		link("dangling", "missing/file"),
		link("self-dir", "."),
		link("backslash", `dir\file`),
	})

	tests := []struct {
		path    string
		want    string
		wantErr bool
	}{
		{path: "top", want: "dir/file"},
		{path: "dir/sibling", want: "dir/file"},
		{path: "dir/up", want: ""},
		{path: "dir/escape", wantErr: true},
		{path: "chain", want: "dir/file"},
		{path: "chain-escape", wantErr: true},
		{path: "abs", wantErr: true},
		{path: "via-abs", wantErr: true},
		{path: "loop-a", wantErr: true},
		{path: "dangling", want: "missing/file"},
		{path: "self-dir", want: ""},
		{path: "backslash", want: "dir/file"},
	}

	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			n, ok := tree.File(tc.path)
			if !ok {
				t.Fatalf("no leaf %s", tc.path)
			}
			got, err := tree.resolveLink(n)
			if (err != nil) != tc.wantErr {
				t.Fatalf("resolveLink(%s) error = %v, wantErr %v", tc.path, err, tc.wantErr)
			}
			if err == nil && got != tc.want {
				t.Errorf("resolveLink(%s) = %q, want %q", tc.path, got, tc.want)
			}
		})
	}
}
