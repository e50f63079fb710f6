// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

//go:build !unix

package archtree

import "time"

const canMaintainSymlinkTimestamps = false

func lchtimes(_ string, _, _ time.Time) error {
	return nil
}
