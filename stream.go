// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archtree

import (
	"fmt"
	"io"
	"sync"
)

// walkerFunc starts a new walk over a stream archive. The closer, if any, releases
// the decompressor behind the walker.
type walkerFunc func() (archiveWalker, io.Closer, error)

// streamArchive gives random access to the entries of a stream archive, e.g. tar
// or rar. Every access walks the stream from the start, except when a parked
// cursor is still before the requested entry: sequential reads continue where
// the last read stopped.
type streamArchive struct {
	open walkerFunc

	mu     sync.Mutex
	idle   *streamCursor
	closed bool
}

func newStreamArchive(open walkerFunc) *streamArchive {
	return &streamArchive{open: open}
}

// streamCursor is a walk over a stream archive. pos is the index of the entry
// returned by the last call to Next, -1 before the first call.
type streamCursor struct {
	w      archiveWalker
	closer io.Closer
	pos    int
}

func (c *streamCursor) close() {
	if c.closer != nil {
		c.closer.Close()
	}
}

// accessor returns the content accessor for the entry at index.
func (s *streamArchive) accessor(index int) ContentAccessor {
	return func() (io.ReadCloser, error) {
		return s.openEntry(index)
	}
}

func (s *streamArchive) openEntry(index int) (io.ReadCloser, error) {
	c := s.take(index)
	if c == nil {
		w, closer, err := s.open()
		if err != nil {
			return nil, fmt.Errorf("cannot reopen archive: %w", err)
		}
		c = &streamCursor{w: w, closer: closer, pos: -1}
	}

	for c.pos < index {
		ae, err := c.w.Next()
		if err != nil {
			c.close()
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, fmt.Errorf("cannot reach entry %d: %w", index, err)
		}
		c.pos++
		if c.pos < index {
			continue
		}
		if ae == nil {
			c.close()
			return nil, fmt.Errorf("entry %d has no content", index)
		}
		rc, err := ae.Open()
		if err != nil {
			c.close()
			return nil, err
		}
		return &cursorReader{ReadCloser: rc, cursor: c, stream: s}, nil
	}

	// unreachable, take never returns a cursor at or past index
	c.close()
	return nil, fmt.Errorf("cannot reach entry %d", index)
}

// take returns the parked cursor if it is before index.
func (s *streamArchive) take(index int) *streamCursor {
	s.mu.Lock()
	c := s.idle
	s.idle = nil
	s.mu.Unlock()

	if c != nil && c.pos >= index {
		c.close()
		return nil
	}
	return c
}

// park keeps c for the next access, or closes it if a cursor is already parked.
func (s *streamArchive) park(c *streamCursor) {
	s.mu.Lock()
	if s.idle == nil && !s.closed {
		s.idle = c
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	c.close()
}

// Close closes the parked cursor. Readers that are still open are closed by their owners.
func (s *streamArchive) Close() error {
	s.mu.Lock()
	c := s.idle
	s.idle = nil
	s.closed = true
	s.mu.Unlock()

	if c != nil {
		c.close()
	}
	return nil
}

// cursorReader returns its cursor to the stream archive on Close.
type cursorReader struct {
	io.ReadCloser
	cursor *streamCursor
	stream *streamArchive
	once   sync.Once
}

func (r *cursorReader) Close() error {
	err := r.ReadCloser.Close()
	r.once.Do(func() {
		r.stream.park(r.cursor)
	})
	return err
}
