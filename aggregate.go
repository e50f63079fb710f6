// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archtree

import "math"

// aggregate computes the recursive raw and compressed sizes of every directory
// and the display strings of every node. The traversal is post-order with an
// explicit stack, so deeply nested archives cannot exhaust the call stack.
func (t *Tree) aggregate() {
	type frame struct {
		id   NodeID
		next int // index of the next child to descend into
	}
	stack := make([]frame, 0, 64)

	for _, root := range t.roots {
		stack = append(stack, frame{id: root})
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			n := &t.nodes[top.id]

			// descend into the next child
			if top.next < len(n.Children) {
				child := n.Children[top.next]
				top.next++
				if t.nodes[child].Kind == KindDir {
					stack = append(stack, frame{id: child})
				} else {
					formatSizes(&t.nodes[child])
				}
				continue
			}

			// all children are final
			if n.Kind == KindDir {
				var raw, compressed int64
				for _, c := range n.Children {
					raw = addSize(raw, t.nodes[c].RawSize)
					compressed = addSize(compressed, t.nodes[c].CompressedSize)
				}
				n.RawSize = raw
				n.CompressedSize = compressed
			}
			formatSizes(n)
			stack = stack[:len(stack)-1]
		}
	}
}

func formatSizes(n *Node) {
	n.RawSizeText = formatSize(n.RawSize)
	n.CompressedSizeText = formatSize(n.CompressedSize)
}

// addSize adds two sizes and saturates at math.MaxInt64.
func addSize(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}
