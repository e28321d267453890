package cmap

import "github.com/cespare/xxhash/v2"

// XXHash returns a 64-bit xxhash of a string. This is what Map actually uses
// to shard keys; the FNV-1 implementation benchmarked against it in the test
// file is kept only as a historical reference point, not for production use.
func XXHash(s string) uint64 {
	return xxhash.Sum64String(s)
}

// XXHashes returns a 64-bit xxhash of a series of strings, hashed as if
// concatenated (without actually allocating the concatenation).
func XXHashes(s ...string) uint64 {
	d := xxhash.New()
	for _, x := range s {
		d.WriteString(x)
	}
	return d.Sum64()
}
