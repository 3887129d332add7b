// Package pagehash computes the 64-bit PageHash (§6.2) the engine uses in
// place of raw URL strings as a key: the upper 32 bits identify the URL's
// domain, the lower 32 bits the URL itself. Packing the domain into the
// high bits keeps every URL of a domain contiguous in hash-key order.
package pagehash

import (
	"github.com/rohmanhakim/pagefrontier/pkg/hashutil"
	"github.com/rohmanhakim/pagefrontier/pkg/urlutil"
)

// Hash is the 64-bit PageHash derived from a URL.
type Hash uint64

// Of computes h(url) := (h32(domain(url)) << 32) | h32(url).
func Of(rawURL string) Hash {
	domainHash := hashutil.Hash32([]byte(urlutil.Domain(rawURL)))
	urlHash := hashutil.Hash32([]byte(rawURL))
	return Hash(uint64(domainHash)<<32 | uint64(urlHash))
}

// DomainHash returns the upper 32 bits: the hash of the URL's domain.
func (h Hash) DomainHash() uint32 {
	return uint32(uint64(h) >> 32)
}

// URLHash returns the lower 32 bits: the hash of the full URL.
func (h Hash) URLHash() uint32 {
	return uint32(h)
}

// SameDomain reports whether two PageHashes share a domain hash. It is an
// approximation of urlutil.SameDomain usable once only hashes are on hand
// (e.g. inside a link stream, where only the stored hash is available).
func SameDomain(a, b Hash) bool {
	return a.DomainHash() == b.DomainHash()
}
