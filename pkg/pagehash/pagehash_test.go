package pagehash_test

import (
	"testing"

	"github.com/rohmanhakim/pagefrontier/pkg/hashutil"
	"github.com/rohmanhakim/pagefrontier/pkg/pagehash"
	"github.com/rohmanhakim/pagefrontier/pkg/urlutil"
	"github.com/stretchr/testify/assert"
)

func TestOf_PacksDomainAndURLHashes(t *testing.T) {
	u := "https://www.yahoo.com/news/a"
	got := pagehash.Of(u)

	wantDomain := hashutil.Hash32([]byte(urlutil.Domain(u)))
	wantURL := hashutil.Hash32([]byte(u))

	assert.Equal(t, wantDomain, got.DomainHash())
	assert.Equal(t, wantURL, got.URLHash())
}

func TestOf_Deterministic(t *testing.T) {
	u := "https://www.bing.com/x"
	assert.Equal(t, pagehash.Of(u), pagehash.Of(u))
}

func TestSameDomain(t *testing.T) {
	a := pagehash.Of("https://www.yahoo.com/a")
	b := pagehash.Of("https://www.yahoo.com/b")
	c := pagehash.Of("https://www.bing.com/c")

	assert.True(t, pagehash.SameDomain(a, b))
	assert.False(t, pagehash.SameDomain(a, c))
}

func TestOf_DistinctURLsRarelyCollide(t *testing.T) {
	seen := make(map[pagehash.Hash]string)
	for i := 0; i < 1000; i++ {
		u := "https://example.com/page/" + string(rune('a'+i%26)) + string(rune('0'+i%10))
		h := pagehash.Of(u)
		if prev, ok := seen[h]; ok && prev != u {
			t.Fatalf("unexpected collision between %q and %q", prev, u)
		}
		seen[h] = u
	}
}
