// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

//go:build unix

package archtree

import (
	"time"

	"golang.org/x/sys/unix"
)

const canMaintainSymlinkTimestamps = true

// lchtimes sets the access and modification time of path without following symlinks.
// Times are rounded up to the next microsecond.
func lchtimes(path string, atime, mtime time.Time) error {
	return unix.Lutimes(path, []unix.Timeval{
		unix.NsecToTimeval(atime.UnixNano()),
		unix.NsecToTimeval(mtime.UnixNano()),
	})
}
