package pagedb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeU64_RoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 42, 1 << 40, ^uint64(0)} {
		assert.Equal(t, v, decodeU64(encodeU64(v)))
	}
}

func TestEncodeDecodeAdjacency_RoundTrip(t *testing.T) {
	ids := []uint64{1, 2, 3, 999999}
	got := decodeAdjacency(encodeAdjacency(ids))
	assert.Equal(t, ids, got)
}

func TestEncodeDecodeAdjacency_Empty(t *testing.T) {
	got := decodeAdjacency(encodeAdjacency(nil))
	assert.Empty(t, got)
}

func TestEncodeDecodePageInfo_RoundTrip(t *testing.T) {
	pi := PageInfo{
		URL:         "https://example.com/page",
		FirstCrawl:  1000.5,
		LastCrawl:   2000.25,
		NCrawls:     7,
		NChanges:    3,
		Score:       0.125,
		ContentHash: []byte{0xde, 0xad, 0xbe, 0xef},
	}
	got, err := decodePageInfo(encodePageInfo(pi))
	require.NoError(t, err)
	assert.Equal(t, pi, got)
}

func TestEncodeDecodePageInfo_EmptyContentHash(t *testing.T) {
	pi := PageInfo{URL: "u", FirstCrawl: 1, LastCrawl: 1, NCrawls: 1}
	got, err := decodePageInfo(encodePageInfo(pi))
	require.NoError(t, err)
	assert.Equal(t, pi.URL, got.URL)
	assert.Empty(t, got.ContentHash)
}

func TestDecodePageInfo_TruncatedBuffer(t *testing.T) {
	_, err := decodePageInfo([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestDecodePageInfo_MissingNulTerminator(t *testing.T) {
	pi := PageInfo{URL: "u", ContentHash: nil}
	encoded := encodePageInfo(pi)
	// Cut the last URL byte and the NUL terminator so the URL scan runs
	// off the end of the buffer.
	truncated := encoded[:len(encoded)-2]
	_, err := decodePageInfo(truncated)
	assert.Error(t, err)
}

func TestDecodePageInfo_ContentHashLengthOverrunsRecord(t *testing.T) {
	pi := PageInfo{URL: "u", ContentHash: []byte{1, 2, 3}}
	encoded := encodePageInfo(pi)
	truncated := encoded[:len(encoded)-2]
	_, err := decodePageInfo(truncated)
	assert.Error(t, err)
}
