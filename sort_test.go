// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archtree_test

import (
	"testing"

	archtree "github.com/hashicorp/go-archtree"
	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestSortSiblings(t *testing.T) {
	tests := []struct {
		name   string
		files  []string
		opts   []archtree.ConfigOption
		expect []string
	}{
		{
			name:   "directories first",
			files:  []string{"b", "z/x", "a", "c/y"},
			expect: []string{"c", "z", "a", "b"},
		},
		{
			name:   "lexical digits",
			files:  []string{"file2", "file10", "file1"},
			expect: []string{"file1", "file10", "file2"},
		},
		{
			name:   "numeric digits",
			files:  []string{"file2", "file10", "file1"},
			opts:   []archtree.ConfigOption{archtree.WithNumericSort(true)},
			expect: []string{"file1", "file2", "file10"},
		},
		{
			name:   "case sensitive",
			files:  []string{"b", "B", "a"},
			expect: []string{"a", "b", "B"},
		},
		{
			name:   "case insensitive keeps archive order",
			files:  []string{"B", "b", "a"},
			opts:   []archtree.ConfigOption{archtree.WithCaseInsensitiveSort(true)},
			expect: []string{"a", "B", "b"},
		},
		{
			name:   "root locale",
			files:  []string{"z", "ä", "a"},
			expect: []string{"a", "ä", "z"},
		},
		{
			name:   "swedish locale",
			files:  []string{"z", "ä", "a"},
			opts:   []archtree.ConfigOption{archtree.WithLocale(language.Swedish)},
			expect: []string{"a", "z", "ä"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var entries []archtree.RawEntry
			for _, f := range tc.files {
				entries = append(entries, fileEntry(f, f))
			}
			tree := archtree.Build(entries, tc.opts...)

			var names []string
			for _, n := range tree.Roots() {
				names = append(names, n.Name)
			}
			assert.Equal(t, tc.expect, names)
		})
	}
}

func TestSortNestedChildren(t *testing.T) {
	tree := archtree.Build([]archtree.RawEntry{
		fileEntry("root/b.txt", "b"),
		fileEntry("root/sub/x", "x"),
		fileEntry("root/a.txt", "a"),
		dirEntry("root/empty/"),
	})

	root, ok := tree.Folder("root")
	if !ok {
		t.Fatalf("root directory missing")
	}
	var names []string
	for _, n := range tree.Children(root) {
		names = append(names, n.Name)
	}
	assert.Equal(t, []string{"empty", "sub", "a.txt", "b.txt"}, names)
}
