// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archtree

import (
	"errors"
	"io"
)

// errReadLimitExceeded is returned by a limitErrorReader without a dedicated error.
var errReadLimitExceeded = errors.New("read limit exceeded")

// limitErrorReader is a reader that returns an error if the limit is exceeded
// before the underlying reader is fully read.
// If the limit is -1, all data from the original reader is read.
type limitErrorReader struct {
	R   io.Reader // underlying reader
	L   int64     // limit
	N   int64     // number of bytes read
	Err error     // returned once the limit is exceeded
}

// Read reads from the underlying reader and fills up p.
// It returns an error if the limit is exceeded, even if the underlying reader is not fully read.
// If the limit is -1, all data from the original reader is read.
func (l *limitErrorReader) Read(p []byte) (int, error) {
	if l.L == -1 {
		n, err := l.R.Read(p)
		l.N += int64(n)
		return n, err
	}

	// limit reached, only EOF is acceptable
	m := l.L - l.N
	if m <= 0 {
		var one [1]byte
		n, err := io.ReadFull(l.R, one[:])
		if n == 0 && (err == io.EOF || err == io.ErrUnexpectedEOF) {
			return 0, io.EOF
		}
		return 0, l.Err
	}
	if m > int64(len(p)) {
		m = int64(len(p))
	}

	// read from underlying reader and preserve error type
	n, err := l.R.Read(p[:m])
	l.N += int64(n)
	return n, err
}

// ReadBytes returns how many bytes have been read from the underlying reader
func (l *limitErrorReader) ReadBytes() int64 {
	return l.N
}

// newLimitErrorReader returns a new limitErrorReader that reads from r and
// returns exceeded once more than limit bytes are available.
func newLimitErrorReader(r io.Reader, limit int64, exceeded error) *limitErrorReader {
	if exceeded == nil {
		exceeded = errReadLimitExceeded
	}
	return &limitErrorReader{R: r, L: limit, Err: exceeded}
}
