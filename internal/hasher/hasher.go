// Package hasher computes the 64-bit FNV-1a content hash used to tell whether
// a file's bytes actually changed. It is a change signal, not a security primitive.
package hasher

import (
	"hash/fnv"
	"io"
	"os"
)

const (
	OffsetBasis uint64 = 0xcbf29ce484222325
	Prime       uint64 = 0x00000100000001b3
)

// Sum64 returns the FNV-1a hash of b.
func Sum64(b []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

// File hashes the contents of the file at path.
func File(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	h := fnv.New64a()
	if _, err := io.Copy(h, f); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}
