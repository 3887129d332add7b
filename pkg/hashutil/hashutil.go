package hashutil

import "github.com/cespare/xxhash/v2"

// Hash64 returns a fast, non-cryptographic 64-bit hash of data. Any
// implementation passing standard avalanche tests is acceptable per §1;
// xxhash is the pack's common choice for this role.
func Hash64(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// Hash32 truncates Hash64 to its low 32 bits, used to build the domain
// half of a PageHash (§6.2).
func Hash32(data []byte) uint32 {
	return uint32(Hash64(data))
}
