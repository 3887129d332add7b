package pagerank_test

import (
	"testing"

	"github.com/rohmanhakim/pagefrontier/internal/pagedb"
	"github.com/rohmanhakim/pagefrontier/internal/pagerank"
	"github.com/rohmanhakim/pagefrontier/pkg/pagehash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildFiveNodeGraph reproduces spec.md §8 scenario S3's graph: edges
// 1→2, 1→5, 2→3, 2→5, 3→4, 3→5, 4→1, 4→5 (1-indexed), page 5 dangling.
func buildFiveNodeGraph(t *testing.T) *pagedb.DB {
	t.Helper()
	db, err := pagedb.Open(t.TempDir(), pagedb.Options{Persist: false})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	urls := []string{"p1", "p2", "p3", "p4", "p5"}
	for _, u := range urls {
		_, cerr := db.Add(pagedb.Page{URL: u}, false)
		require.Nil(t, cerr)
	}

	links := map[string][]string{
		"p1": {"p2", "p5"},
		"p2": {"p3", "p5"},
		"p3": {"p4", "p5"},
		"p4": {"p1", "p5"},
		"p5": {},
	}
	for url, children := range links {
		var in []pagedb.LinkIn
		for _, c := range children {
			in = append(in, pagedb.LinkIn{URL: c})
		}
		_, cerr := db.Add(pagedb.Page{URL: url, Links: in}, false)
		require.Nil(t, cerr)
	}
	return db
}

func idOf(t *testing.T, db *pagedb.DB, url string) uint64 {
	t.Helper()
	id, found, cerr := db.GetIdx(uint64(pagehash.Of(url)))
	require.Nil(t, cerr)
	require.True(t, found)
	return id
}

func TestPageRank_S3FiveNodeGraph(t *testing.T) {
	db := buildFiveNodeGraph(t)

	pr, err := pagerank.New(db, pagerank.Options{
		Damping:   0.85,
		Precision: 1e-6,
		MaxLoops:  500,
	})
	require.NoError(t, err)
	defer pr.Close()

	cerr := pr.Run()
	require.Nil(t, cerr)

	want := map[string]float32{
		"p1": 0.1594,
		"p2": 0.1594,
		"p3": 0.1594,
		"p4": 0.1594,
		"p5": 0.3625,
	}
	for url, w := range want {
		v, err := pr.Score(idOf(t, db, url))
		require.NoError(t, err)
		assert.InDelta(t, w, v, 1e-3, "score for %s", url)
	}
}

func TestPageRank_SumsToOne(t *testing.T) {
	db := buildFiveNodeGraph(t)

	pr, err := pagerank.New(db, pagerank.Options{
		Damping:   0.85,
		Precision: 1e-6,
		MaxLoops:  500,
	})
	require.NoError(t, err)
	defer pr.Close()

	require.Nil(t, pr.Run())

	var sum float32
	for _, url := range []string{"p1", "p2", "p3", "p4", "p5"} {
		v, err := pr.Score(idOf(t, db, url))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, v, float32(0))
		sum += v
	}
	assert.InDelta(t, float32(1), sum, 1e-5)
}

func TestPageRank_PrecisionNotReachedSurfacesWarning(t *testing.T) {
	db := buildFiveNodeGraph(t)

	pr, err := pagerank.New(db, pagerank.Options{
		Damping:   0.85,
		Precision: 1e-9,
		MaxLoops:  1,
	})
	require.NoError(t, err)
	defer pr.Close()

	cerr := pr.Run()
	require.NotNil(t, cerr)
	assert.Equal(t, "precision", string(cerr.Kind()))
}
