// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archtree

import (
	"errors"
	"io/fs"
	"time"
)

// NodeID addresses a node in the arena of a [Tree].
type NodeID int

// NoParent is the parent of top-level nodes.
const NoParent NodeID = -1

// NodeKind distinguishes files from directories.
type NodeKind uint8

const (
	// KindFile is a leaf node. Symlinks and other non-directory entries are leaves as well.
	KindFile NodeKind = iota

	// KindDir is a directory node, explicit or synthesized.
	KindDir
)

// String returns a string representation of [NodeKind].
func (k NodeKind) String() string {
	if k == KindDir {
		return "dir"
	}
	return "file"
}

// Node is a file or directory of a [Tree].
type Node struct {
	// ID is the position of the node in the arena
	ID NodeID

	// Parent is the containing directory, or [NoParent] for top-level nodes
	Parent NodeID

	// Children are the sorted child nodes of a directory
	Children []NodeID

	// Kind is [KindDir] or [KindFile]
	Kind NodeKind

	// Name is the last component of Path
	Name string

	// Path is the normalized, slash separated path of the node
	Path string

	// Explicit is true if the archive holds its own entry for a directory. Synthesized
	// directories are otherwise identical.
	Explicit bool

	// RawSize is the decompressed size of a file, or the sum over all descendant files
	// of a directory
	RawSize int64

	// CompressedSize is the stored size of a file, or the sum over all descendant files
	// of a directory
	CompressedSize int64

	// RawSizeText is RawSize in binary units
	RawSizeText string

	// CompressedSizeText is CompressedSize in binary units
	CompressedSizeText string

	// ModTime is the modification time stored in the archive, zero for synthesized directories
	ModTime time.Time

	// ModTimeText is ModTime in the configured layout, empty for a zero ModTime
	ModTimeText string

	// Mode holds the permission and type bits stored in the archive
	Mode fs.FileMode

	// Linkname is the target of a symlink
	Linkname string

	content *content
	dropped bool
}

// IsDir returns true for directory nodes.
func (n *Node) IsDir() bool {
	return n.Kind == KindDir
}

// IsSymlink returns true for symlink leaves.
func (n *Node) IsSymlink() bool {
	return n.Kind == KindFile && n.Mode&fs.ModeSymlink != 0
}

// BuildStats counts what happened while the tree was built.
type BuildStats struct {
	// Entries is the number of raw entries with a non-empty path
	Entries int64

	// Files is the number of leaves in the file map
	Files int64

	// Dirs is the number of directories, explicit and synthesized
	Dirs int64

	// SynthesizedDirs is the number of directories without an entry of their own
	SynthesizedDirs int64

	// DuplicatePaths is the number of file entries that replaced an earlier one in the file map
	DuplicatePaths int64

	// ShadowedFiles is the number of file entries dropped because a directory has the same path
	ShadowedFiles int64

	// SkippedEntries is the number of entries whose path is empty after normalization
	SkippedEntries int64
}

// Tree is the directory tree of an archive. Nodes are stored in an arena and
// addressed by [NodeID]; two indices map directory and file paths to nodes.
//
// A Tree is read-only once built and safe for concurrent use.
type Tree struct {
	nodes []Node
	roots []NodeID
	dirs  map[string]NodeID
	files map[string]NodeID
	stats BuildStats
}

// Build turns the ordered entry list of an archive into a [Tree]. Missing
// intermediate directories are synthesized, directory sizes are aggregated
// and siblings are sorted. Build never fails.
func Build(entries []RawEntry, opts ...ConfigOption) *Tree {
	return buildTree(entries, NewConfig(opts...))
}

func buildTree(entries []RawEntry, cfg *Config) *Tree {
	b := newBuilder(cfg, len(entries))
	for _, e := range entries {
		b.add(e)
	}
	t := b.finish()
	t.aggregate()
	t.sort(newSorter(cfg))
	return t
}

// builder attaches raw entries to the arena, one entry at a time
type builder struct {
	cfg     *Config
	t       *Tree
	chain   []string
	dropped bool
}

func newBuilder(cfg *Config, sizeHint int) *builder {
	return &builder{
		cfg: cfg,
		t: &Tree{
			nodes: make([]Node, 0, sizeHint),
			dirs:  make(map[string]NodeID),
			files: make(map[string]NodeID, sizeHint),
		},
	}
}

// add attaches e to its parent directory, creating every missing ancestor.
func (b *builder) add(e RawEntry) {
	t := b.t
	p := normalizePath(e.Path)
	if p == "" {
		t.stats.SkippedEntries++
		b.cfg.Logger().Debug("skip entry with empty path", "name", e.Path)
		return
	}
	t.stats.Entries++

	if e.IsDir {
		id := b.ensureDir(p)
		if n := &t.nodes[id]; !n.Explicit {
			n.Explicit = true
			n.Mode = e.Mode | fs.ModeDir
			n.ModTime = e.ModTime
			n.ModTimeText = formatTime(e.ModTime, b.cfg.TimeFormat())
		}
		return
	}

	// a directory owns the path
	if _, ok := t.dirs[p]; ok {
		t.stats.ShadowedFiles++
		b.cfg.Logger().Warn("drop file shadowed by directory", "path", p)
		return
	}

	parent := NoParent
	if pp := parentPath(p); pp != "" {
		parent = b.ensureDir(pp)
	}
	id := b.newNode(Node{
		Kind:           KindFile,
		Name:           baseName(p),
		Path:           p,
		Parent:         parent,
		RawSize:        e.RawSize,
		CompressedSize: e.CompressedSize,
		ModTime:        e.ModTime,
		ModTimeText:    formatTime(e.ModTime, b.cfg.TimeFormat()),
		Mode:           e.Mode,
		Linkname:       e.Linkname,
		content:        newContent(e.Content, b.cfg),
	})
	b.link(parent, id)

	// last write wins
	if _, ok := t.files[p]; ok {
		t.stats.DuplicatePaths++
		b.cfg.Logger().Debug("duplicate file path", "path", p)
	}
	t.files[p] = id
}

// ensureDir returns the directory node at p. Missing directories along the
// whole ancestor chain are created top-down and linked to their parent.
func (b *builder) ensureDir(p string) NodeID {
	t := b.t
	if id, ok := t.dirs[p]; ok {
		return id
	}

	// collect missing ancestors, deepest first
	missing := b.chain[:0]
	parent := NoParent
	for cur := p; cur != ""; cur = parentPath(cur) {
		if id, ok := t.dirs[cur]; ok {
			parent = id
			break
		}
		missing = append(missing, cur)
	}

	for i := len(missing) - 1; i >= 0; i-- {
		dp := missing[i]
		if _, ok := t.files[dp]; ok {
			b.dropFiles(parent, dp)
		}
		id := b.newNode(Node{
			Kind:   KindDir,
			Name:   baseName(dp),
			Path:   dp,
			Parent: parent,
			Mode:   fs.ModeDir,
		})
		t.dirs[dp] = id
		b.link(parent, id)
		parent = id
	}
	b.chain = missing
	return parent
}

// dropFiles detaches all leaves at path p below parent. The nodes stay in the
// arena until finish compacts it.
func (b *builder) dropFiles(parent NodeID, p string) {
	t := b.t
	siblings := &t.roots
	if parent != NoParent {
		siblings = &t.nodes[parent].Children
	}
	kept := (*siblings)[:0]
	for _, id := range *siblings {
		n := &t.nodes[id]
		if n.Kind == KindFile && n.Path == p {
			n.dropped = true
			t.stats.ShadowedFiles++
			continue
		}
		kept = append(kept, id)
	}
	*siblings = kept
	delete(t.files, p)
	b.dropped = true
	b.cfg.Logger().Warn("drop file shadowed by directory", "path", p)
}

func (b *builder) newNode(n Node) NodeID {
	n.ID = NodeID(len(b.t.nodes))
	b.t.nodes = append(b.t.nodes, n)
	return n.ID
}

func (b *builder) link(parent, child NodeID) {
	if parent == NoParent {
		b.t.roots = append(b.t.roots, child)
		return
	}
	p := &b.t.nodes[parent]
	p.Children = append(p.Children, child)
}

// finish compacts the arena and completes the statistics.
func (b *builder) finish() *Tree {
	t := b.t
	if b.dropped {
		t.compact()
	}
	t.stats.Files = int64(len(t.files))
	t.stats.Dirs = int64(len(t.dirs))
	for _, id := range t.dirs {
		if !t.nodes[id].Explicit {
			t.stats.SynthesizedDirs++
		}
	}
	return t
}

// compact removes dropped nodes from the arena and renumbers the remaining ones.
func (t *Tree) compact() {
	remap := make([]NodeID, len(t.nodes))
	nodes := make([]Node, 0, len(t.nodes))
	for i := range t.nodes {
		if t.nodes[i].dropped {
			remap[i] = NoParent
			continue
		}
		remap[i] = NodeID(len(nodes))
		nodes = append(nodes, t.nodes[i])
	}
	for i := range nodes {
		n := &nodes[i]
		n.ID = NodeID(i)
		if n.Parent != NoParent {
			n.Parent = remap[n.Parent]
		}
		for j, c := range n.Children {
			n.Children[j] = remap[c]
		}
	}
	for i, id := range t.roots {
		t.roots[i] = remap[id]
	}
	for p, id := range t.dirs {
		t.dirs[p] = remap[id]
	}
	for p, id := range t.files {
		t.files[p] = remap[id]
	}
	t.nodes = nodes
}

// Len returns the number of nodes in the tree.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Node returns the node with the given id, or nil if id is out of range.
func (t *Tree) Node(id NodeID) *Node {
	if id < 0 || int(id) >= len(t.nodes) {
		return nil
	}
	return &t.nodes[id]
}

// Roots returns the sorted top-level nodes.
func (t *Tree) Roots() []*Node {
	return t.resolve(t.roots)
}

// Children returns the sorted children of n, nil for files.
func (t *Tree) Children(n *Node) []*Node {
	return t.resolve(n.Children)
}

// Parent returns the directory containing n, or nil for top-level nodes.
func (t *Tree) Parent(n *Node) *Node {
	return t.Node(n.Parent)
}

func (t *Tree) resolve(ids []NodeID) []*Node {
	if len(ids) == 0 {
		return nil
	}
	nodes := make([]*Node, len(ids))
	for i, id := range ids {
		nodes[i] = &t.nodes[id]
	}
	return nodes
}

// Folder returns the directory at path p.
func (t *Tree) Folder(p string) (*Node, bool) {
	id, ok := t.dirs[normalizePath(p)]
	if !ok {
		return nil, false
	}
	return &t.nodes[id], true
}

// File returns the file at path p. For duplicate paths the last entry of the archive is returned.
func (t *Tree) File(p string) (*Node, bool) {
	id, ok := t.files[normalizePath(p)]
	if !ok {
		return nil, false
	}
	return &t.nodes[id], true
}

// Lookup returns the directory or file at path p.
func (t *Tree) Lookup(p string) (*Node, bool) {
	if n, ok := t.Folder(p); ok {
		return n, true
	}
	return t.File(p)
}

// FolderMap returns a new map from directory path to node, including synthesized directories.
func (t *Tree) FolderMap() map[string]*Node {
	return t.index(t.dirs)
}

// FileMap returns a new map from file path to node.
func (t *Tree) FileMap() map[string]*Node {
	return t.index(t.files)
}

func (t *Tree) index(ids map[string]NodeID) map[string]*Node {
	m := make(map[string]*Node, len(ids))
	for p, id := range ids {
		m[p] = &t.nodes[id]
	}
	return m
}

// Stats returns the statistics collected while the tree was built.
func (t *Tree) Stats() BuildStats {
	return t.stats
}

// TotalSize returns the summed raw and compressed size over all top-level nodes.
func (t *Tree) TotalSize() (raw int64, compressed int64) {
	for _, id := range t.roots {
		raw = addSize(raw, t.nodes[id].RawSize)
		compressed = addSize(compressed, t.nodes[id].CompressedSize)
	}
	return raw, compressed
}

// Walk visits every node in sorted pre-order and passes its depth, starting at 0
// for top-level nodes. If fn returns [fs.SkipDir] for a directory its children are
// skipped; any other error stops the walk and is returned.
func (t *Tree) Walk(fn func(n *Node, depth int) error) error {
	type frame struct {
		id    NodeID
		depth int
	}
	stack := make([]frame, 0, len(t.roots))
	for i := len(t.roots) - 1; i >= 0; i-- {
		stack = append(stack, frame{t.roots[i], 0})
	}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := &t.nodes[f.id]
		if err := fn(n, f.depth); err != nil {
			if errors.Is(err, fs.SkipDir) {
				continue
			}
			return err
		}
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{n.Children[i], f.depth + 1})
		}
	}
	return nil
}

// Discard drops all cached file content.
func (t *Tree) Discard() {
	for i := range t.nodes {
		if c := t.nodes[i].content; c != nil {
			c.drop()
		}
	}
}
