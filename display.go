// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archtree

import (
	"time"

	"github.com/dustin/go-humanize"
)

// formatSize renders a byte count in binary units, e.g. "1.5 KiB".
// Negative sizes, which some archives store for unknown sizes, render as "0 B".
func formatSize(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

// formatTime renders t with layout, or returns an empty string for the zero time.
func formatTime(t time.Time, layout string) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(layout)
}
