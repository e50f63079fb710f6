// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archtree

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/singleflight"
)

// content is the decompressed data of a leaf. Without caching every read calls
// the accessor again; with caching the first read fills data and concurrent first
// reads share one decompression.
type content struct {
	open    ContentAccessor
	cache   bool
	maxSize int64

	group  singleflight.Group
	mu     sync.RWMutex
	data   []byte
	loaded bool
}

func newContent(open ContentAccessor, cfg *Config) *content {
	if open == nil {
		return nil
	}
	return &content{
		open:    open,
		cache:   cfg.CacheContent(),
		maxSize: cfg.MaxExtractionSize(),
	}
}

// reader returns a size limited reader of the content.
func (c *content) reader() (io.ReadCloser, error) {
	if c.cache {
		data, err := c.bytes()
		if err != nil {
			return nil, err
		}
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return c.stream()
}

func (c *content) stream() (io.ReadCloser, error) {
	rc, err := c.open()
	if err != nil {
		return nil, err
	}
	return &readCloser{
		Reader: newLimitErrorReader(rc, c.maxSize, ErrMaxExtractionSizeExceeded),
		Closer: rc,
	}, nil
}

// bytes returns the whole content, from the cache if enabled.
func (c *content) bytes() ([]byte, error) {
	if !c.cache {
		return c.load()
	}

	c.mu.RLock()
	if c.loaded {
		defer c.mu.RUnlock()
		return c.data, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do("", func() (any, error) {
		c.mu.RLock()
		if c.loaded {
			defer c.mu.RUnlock()
			return c.data, nil
		}
		c.mu.RUnlock()

		data, err := c.load()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.data, c.loaded = data, true
		c.mu.Unlock()
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (c *content) load() ([]byte, error) {
	rc, err := c.stream()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// cached returns true if the content is held in memory.
func (c *content) cached() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// drop releases the cached data.
func (c *content) drop() {
	c.mu.Lock()
	c.data, c.loaded = nil, false
	c.mu.Unlock()
}

// readCloser combines a wrapped reader with the closer of the original stream.
type readCloser struct {
	io.Reader
	io.Closer
}

// Open returns the decompressed content of a file node. Each call without content
// caching decompresses the entry again.
func (n *Node) Open() (io.ReadCloser, error) {
	if n.Kind == KindDir {
		return nil, fmt.Errorf("%w: %s", ErrIsDirectory, n.Path)
	}
	if n.content == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoContent, n.Path)
	}
	return n.content.reader()
}

// ReadAll returns the whole decompressed content of a file node.
func (n *Node) ReadAll() ([]byte, error) {
	if n.Kind == KindDir {
		return nil, fmt.Errorf("%w: %s", ErrIsDirectory, n.Path)
	}
	if n.content == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoContent, n.Path)
	}
	return n.content.bytes()
}

// Cached returns true if the content of a file node is held in memory.
func (n *Node) Cached() bool {
	return n.content != nil && n.content.cached()
}

// Open returns the decompressed content of the file at path p.
func (t *Tree) Open(p string) (io.ReadCloser, error) {
	n, err := t.lookupFile(p)
	if err != nil {
		return nil, err
	}
	return n.Open()
}

// ReadFile returns the whole decompressed content of the file at path p.
func (t *Tree) ReadFile(p string) ([]byte, error) {
	n, err := t.lookupFile(p)
	if err != nil {
		return nil, err
	}
	return n.ReadAll()
}

func (t *Tree) lookupFile(p string) (*Node, error) {
	if n, ok := t.File(p); ok {
		return n, nil
	}
	if _, ok := t.Folder(p); ok {
		return nil, fmt.Errorf("%w: %s", ErrIsDirectory, p)
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
}
