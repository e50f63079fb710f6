// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archtree

import (
	"bytes"
	"context"
	"strings"
)

// init calculates the maximum header length
func init() {
	for _, f := range availableArchives {
		maxHeaderLength = max(maxHeaderLength, headerLength(f.MagicBytes, f.Offset))
	}
	for _, c := range availableCompressors {
		maxHeaderLength = max(maxHeaderLength, headerLength(c.MagicBytes, 0))
	}
}

func headerLength(magicBytes [][]byte, offset int) int {
	needs := offset
	for _, mb := range magicBytes {
		needs = max(needs, len(mb)+offset)
	}
	return needs
}

// readFunc reads all entries of an archive type from in.
type readFunc func(ctx context.Context, in *input, cfg *Config) (*entryList, error)

// headerCheck is a function that checks if the given header matches the expected magic bytes.
type headerCheck func([]byte) bool

type availableArchive struct {
	Reader      readFunc
	HeaderCheck headerCheck
	MagicBytes  [][]byte
	Offset      int
}

type availableCompressor struct {
	Decompress  decompressionFunc
	HeaderCheck headerCheck
	MagicBytes  [][]byte
}

// availableArchives holds the container formats with their magic bytes and offset.
var availableArchives = map[string]availableArchive{
	fileExtension7zip: {
		Reader:      read7zip,
		HeaderCheck: is7zip,
		MagicBytes:  magicBytes7zip,
	},
	fileExtensionRar: {
		Reader:      readRar,
		HeaderCheck: isRar,
		MagicBytes:  magicBytesRar,
	},
	fileExtensionTar: {
		Reader:      readTar,
		HeaderCheck: isTar,
		MagicBytes:  magicBytesTar,
		Offset:      offsetTar,
	},
	fileExtensionZip: {
		Reader:      readZip,
		HeaderCheck: isZip,
		MagicBytes:  magicBytesZip,
	},
}

// availableCompressors holds the single stream compression formats. A compressed
// stream that contains a tar archive is read as "tar.<ext>".
var availableCompressors = map[string]availableCompressor{
	fileExtensionBrotli: {
		Decompress:  decompressBrotliStream,
		HeaderCheck: isBrotli,
	},
	fileExtensionBzip2: {
		Decompress:  decompressBzip2Stream,
		HeaderCheck: isBzip2,
		MagicBytes:  magicBytesBzip2,
	},
	fileExtensionGZip: {
		Decompress:  decompressGZipStream,
		HeaderCheck: isGZip,
		MagicBytes:  magicBytesGZip,
	},
	fileExtensionLZ4: {
		Decompress:  decompressLZ4Stream,
		HeaderCheck: isLZ4,
		MagicBytes:  magicBytesLZ4,
	},
	fileExtensionSnappy: {
		Decompress:  decompressSnappyStream,
		HeaderCheck: isSnappy,
		MagicBytes:  magicBytesSnappy,
	},
	fileExtensionXz: {
		Decompress:  decompressXzStream,
		HeaderCheck: isXz,
		MagicBytes:  magicBytesXz,
	},
	fileExtensionZlib: {
		Decompress:  decompressZlibStream,
		HeaderCheck: isZlib,
		MagicBytes:  magicBytesZlib,
	},
	fileExtensionZstd: {
		Decompress:  decompressZstdStream,
		HeaderCheck: isZstd,
		MagicBytes:  magicBytesZstd,
	},
}

// detectionOrder lists the types in the order their header checks are tried.
// zlib has the weakest signature and is checked last.
var detectionOrder = []string{
	fileExtensionZip,
	fileExtension7zip,
	fileExtensionRar,
	fileExtensionTar,
	fileExtensionGZip,
	fileExtensionBzip2,
	fileExtensionXz,
	fileExtensionZstd,
	fileExtensionLZ4,
	fileExtensionSnappy,
	fileExtensionZlib,
}

// typeAliases maps short file extensions to archive types.
var typeAliases = map[string]string{
	fileExtensionTarGZip: fileExtensionTar + "." + fileExtensionGZip,
	"tbr":                fileExtensionTar + "." + fileExtensionBrotli,
}

// maxHeaderLength is the maximum header length of all formats
var maxHeaderLength int

// detectType returns the archive type of header, falling back to the extension of
// name for formats without magic bytes. It returns an empty string if nothing matches.
func detectType(header []byte, name string) string {
	for _, typ := range detectionOrder {
		var check headerCheck
		if a, ok := availableArchives[typ]; ok {
			check = a.HeaderCheck
		} else {
			check = availableCompressors[typ].HeaderCheck
		}
		if check(header) {
			return typ
		}
	}

	// formats without magic bytes
	name = strings.ToLower(name)
	for _, typ := range []string{fileExtensionTar + "." + fileExtensionBrotli, "tbr", fileExtensionBrotli} {
		if strings.HasSuffix(name, "."+typ) {
			return canonicalType(typ)
		}
	}
	return ""
}

// canonicalType resolves aliases, e.g. "tgz" to "tar.gz".
func canonicalType(typ string) string {
	typ = strings.ToLower(strings.TrimPrefix(typ, "."))
	if alias, ok := typeAliases[typ]; ok {
		return alias
	}
	return typ
}

// matchesMagicBytes checks if the bytes in data are equal to any of the magic
// byte sequences at the given offset.
func matchesMagicBytes(data []byte, offset int, magicBytes [][]byte) bool {
	for _, mb := range magicBytes {
		if len(data) < offset+len(mb) {
			continue
		}
		if bytes.Equal(mb, data[offset:offset+len(mb)]) {
			return true
		}
	}
	return false
}
