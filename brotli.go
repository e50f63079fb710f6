// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archtree

import (
	"io"

	"github.com/andybalholm/brotli"
)

// fileExtensionBrotli is the file extension for brotli files.
const fileExtensionBrotli = "br"

// isBrotli always returns false, brotli streams have no magic bytes. Brotli is
// detected by the input name or set with [WithArchiveType].
func isBrotli(header []byte) bool {
	return false
}

// decompressBrotliStream returns an io.Reader that decompresses src with brotli algorithm.
func decompressBrotliStream(src io.Reader) (io.Reader, error) {
	return brotli.NewReader(src), nil
}
