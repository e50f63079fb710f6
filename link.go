// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archtree

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// maxLinkHops is the number of symlinks followed while resolving a link target
const maxLinkHops = 40

// resolveLink returns the archive path the symlink n points to. Symlinks of the
// tree met on the way are followed, so a chain of relative links cannot leave the
// archive root either. An empty result is the archive root itself.
func (t *Tree) resolveLink(n *Node) (string, error) {
	if isAbsLink(n.Linkname) {
		return "", fmt.Errorf("symlink with absolute path as target: %s", n.Linkname)
	}

	var parts []string
	if dir := parentPath(n.Path); dir != "" {
		parts = strings.Split(dir, "/")
	}
	pending := splitLink(n.Linkname)

	hops := 0
	for len(pending) > 0 {
		c := pending[0]
		pending = pending[1:]

		switch c {
		case "", ".":
			continue
		case "..":
			if len(parts) == 0 {
				return "", fmt.Errorf("symlink target outside of archive: %s -> %s", n.Path, n.Linkname)
			}
			parts = parts[:len(parts)-1]
			continue
		}

		parts = append(parts, c)
		leaf, ok := t.File(strings.Join(parts, "/"))
		if !ok || !leaf.IsSymlink() {
			continue
		}

		// continue with the target of the link in place of its name
		hops++
		if hops > maxLinkHops {
			return "", fmt.Errorf("too many levels of symlinks: %s", n.Path)
		}
		if isAbsLink(leaf.Linkname) {
			return "", fmt.Errorf("symlink %s resolves through absolute target %s", n.Path, leaf.Linkname)
		}
		parts = parts[:len(parts)-1]
		pending = append(splitLink(leaf.Linkname), pending...)
	}
	return strings.Join(parts, "/"), nil
}

func isAbsLink(target string) bool {
	return path.IsAbs(target) || filepath.IsAbs(target) || strings.HasPrefix(target, `\`)
}

func splitLink(target string) []string {
	return strings.Split(strings.ReplaceAll(target, `\`, "/"), "/")
}
