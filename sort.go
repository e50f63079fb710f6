// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archtree

import (
	"slices"

	"golang.org/x/text/collate"
)

// sorter orders sibling lists: directories first, then names in collation order.
type sorter struct {
	col   *collate.Collator
	nodes []Node
}

func newSorter(cfg *Config) *sorter {
	var opts []collate.Option
	if cfg.CaseInsensitiveSort() {
		opts = append(opts, collate.IgnoreCase)
	}
	if cfg.NumericSort() {
		opts = append(opts, collate.Numeric)
	}
	return &sorter{col: collate.New(cfg.Locale(), opts...)}
}

// compare returns a negative number if a sorts before b.
func (s *sorter) compare(a, b NodeID) int {
	na, nb := &s.nodes[a], &s.nodes[b]
	if na.Kind != nb.Kind {
		if na.Kind == KindDir {
			return -1
		}
		return 1
	}
	return s.col.CompareString(na.Name, nb.Name)
}

// sort orders the top-level list and the children of every directory. The sort
// is stable, so entries with equal names keep their archive order.
func (t *Tree) sort(s *sorter) {
	s.nodes = t.nodes
	slices.SortStableFunc(t.roots, s.compare)
	for i := range t.nodes {
		if n := &t.nodes[i]; len(n.Children) > 1 {
			slices.SortStableFunc(n.Children, s.compare)
		}
	}
	s.nodes = nil
}
