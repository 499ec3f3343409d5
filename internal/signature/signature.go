// Package signature derives cheap file fingerprints used to detect external changes.
package signature

import (
	"bytes"
	"encoding/binary"
	"io/fs"
)

// Size is the length of a signature block.
const Size = 16

// Of returns the signature of a file: its size followed by its
// modification time in nanoseconds, both big-endian.
func Of(info fs.FileInfo) []byte {
	buf := make([]byte, Size)
	binary.BigEndian.PutUint64(buf[:8], uint64(info.Size()))
	binary.BigEndian.PutUint64(buf[8:], uint64(info.ModTime().UnixNano()))
	return buf
}

// Equal reports whether two signatures match. Empty signatures never match.
func Equal(a, b []byte) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	return bytes.Equal(a, b)
}
