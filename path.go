// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archtree

import "strings"

// normalizePath converts an archive entry name into a tree path. Backslashes are
// treated as separators, leading and trailing slashes, empty and "." segments are
// removed. ".." segments are kept; extraction rejects them.
func normalizePath(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	segments := strings.Split(name, "/")
	kept := segments[:0]
	for _, s := range segments {
		if s == "" || s == "." {
			continue
		}
		kept = append(kept, s)
	}
	return strings.Join(kept, "/")
}

// parentPath returns p without its last component, or "" for top-level paths.
func parentPath(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[:i]
	}
	return ""
}

// baseName returns the last component of p.
func baseName(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}
