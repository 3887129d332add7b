package pagedb

import (
	"encoding/binary"
	"math"

	"github.com/rohmanhakim/pagefrontier/pkg/failure"
)

// encodeU64/decodeU64 key-encode PageIds and PageHashes as big-endian
// fixed 8-byte bucket keys. bbolt orders cursor traversal by raw byte
// comparison, so big-endian is what makes that byte order match numeric
// order — the same reason schedulekey.Encode big-endian-encodes its keys
// — which HashIdxStream/HashInfoStream's ascending-order contract (§4.3)
// and the domain-locality invariant (§3: a hash's high 32 bits, its
// domain, must sort before its low 32 bits) both depend on.
func encodeU64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func decodeU64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// encodeAdjacency/decodeAdjacency implement §6.3: value is a packed
// u64[k] of child PageIds.
func encodeAdjacency(ids []uint64) []byte {
	b := make([]byte, 8*len(ids))
	for i, id := range ids {
		binary.LittleEndian.PutUint64(b[i*8:], id)
	}
	return b
}

func decodeAdjacency(b []byte) []uint64 {
	n := len(b) / 8
	ids := make([]uint64, n)
	for i := 0; i < n; i++ {
		ids[i] = binary.LittleEndian.Uint64(b[i*8:])
	}
	return ids
}

// encodePageInfo implements §6.1's bit-exact layout:
//
//	first_crawl: f64 | last_crawl: f64 | n_changes: u64 | n_crawls: u64 |
//	score: f32 | content_hash_length: u64 | url: bytes(NUL-terminated) |
//	content_hash: bytes(content_hash_length)
func encodePageInfo(pi PageInfo) []byte {
	urlBytes := []byte(pi.URL)
	size := 8 + 8 + 8 + 8 + 4 + 8 + len(urlBytes) + 1 + len(pi.ContentHash)
	b := make([]byte, size)
	off := 0

	binary.LittleEndian.PutUint64(b[off:], math.Float64bits(pi.FirstCrawl))
	off += 8
	binary.LittleEndian.PutUint64(b[off:], math.Float64bits(pi.LastCrawl))
	off += 8
	binary.LittleEndian.PutUint64(b[off:], pi.NChanges)
	off += 8
	binary.LittleEndian.PutUint64(b[off:], pi.NCrawls)
	off += 8
	binary.LittleEndian.PutUint32(b[off:], math.Float32bits(pi.Score))
	off += 4
	binary.LittleEndian.PutUint64(b[off:], uint64(len(pi.ContentHash)))
	off += 8
	copy(b[off:], urlBytes)
	off += len(urlBytes)
	b[off] = 0 // NUL terminator
	off++
	copy(b[off:], pi.ContentHash)

	return b
}

// decodePageInfo is encodePageInfo's inverse. It returns a KindInternal
// error on a buffer too short to contain the fixed-size prefix or whose
// NUL terminator / declared content-hash length don't fit.
func decodePageInfo(b []byte) (PageInfo, error) {
	const fixedLen = 8 + 8 + 8 + 8 + 4 + 8
	if len(b) < fixedLen {
		return PageInfo{}, failure.New(failure.KindInternal, failure.SeverityFatal, "pagedb: truncated PageInfo record")
	}
	off := 0
	firstCrawl := math.Float64frombits(binary.LittleEndian.Uint64(b[off:]))
	off += 8
	lastCrawl := math.Float64frombits(binary.LittleEndian.Uint64(b[off:]))
	off += 8
	nChanges := binary.LittleEndian.Uint64(b[off:])
	off += 8
	nCrawls := binary.LittleEndian.Uint64(b[off:])
	off += 8
	score := math.Float32frombits(binary.LittleEndian.Uint32(b[off:]))
	off += 4
	contentHashLen := binary.LittleEndian.Uint64(b[off:])
	off += 8

	nulIdx := -1
	for i := off; i < len(b); i++ {
		if b[i] == 0 {
			nulIdx = i
			break
		}
	}
	if nulIdx < 0 {
		return PageInfo{}, failure.New(failure.KindInternal, failure.SeverityFatal, "pagedb: PageInfo missing NUL-terminated URL")
	}
	url := string(b[off:nulIdx])
	hashStart := nulIdx + 1
	hashEnd := hashStart + int(contentHashLen)
	if hashEnd > len(b) {
		return PageInfo{}, failure.New(failure.KindInternal, failure.SeverityFatal, "pagedb: PageInfo content_hash length overruns record")
	}
	contentHash := make([]byte, contentHashLen)
	copy(contentHash, b[hashStart:hashEnd])

	return PageInfo{
		URL:         url,
		FirstCrawl:  firstCrawl,
		LastCrawl:   lastCrawl,
		NCrawls:     nCrawls,
		NChanges:    nChanges,
		Score:       score,
		ContentHash: contentHash,
	}, nil
}
