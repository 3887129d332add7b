package urlutil

import "strings"

// Domain extracts the authority component a PageHash is partitioned on
// (§6.2): the substring between "://" (skipping an optional
// "user:password@") and the next "/", ":", or end of string. A raw string
// with no scheme separator falls back to the full string, so every URL
// hashes to *some* domain.
//
// Properties:
//   - Pure: no state, no memory
//   - Deterministic: same input always produces same output
//   - Operates on the raw byte string, never a parsed url.URL, so it never
//     fails on malformed input the way net/url.Parse can.
func Domain(raw string) string {
	i := strings.Index(raw, "://")
	if i < 0 {
		return raw
	}
	rest := raw[i+3:]

	// userinfo, if present, precedes the host and ends at the last '@'
	// before the path begins; its own ':' (password separator) must not be
	// mistaken for the host:port separator.
	authorityEnd := len(rest)
	if slash := strings.IndexByte(rest, '/'); slash >= 0 {
		authorityEnd = slash
	}
	if at := strings.LastIndexByte(rest[:authorityEnd], '@'); at >= 0 {
		rest = rest[at+1:]
	}

	end := len(rest)
	for _, delim := range []byte{'/', ':'} {
		if d := strings.IndexByte(rest, delim); d >= 0 && d < end {
			end = d
		}
	}
	return rest[:end]
}

// SameDomain reports whether u and v have the same domain, per Domain.
func SameDomain(u, v string) bool {
	return Domain(u) == Domain(v)
}
