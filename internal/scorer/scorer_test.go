package scorer_test

import (
	"testing"

	"github.com/rohmanhakim/pagefrontier/internal/hits"
	"github.com/rohmanhakim/pagefrontier/internal/pagedb"
	"github.com/rohmanhakim/pagefrontier/internal/pagerank"
	"github.com/rohmanhakim/pagefrontier/internal/scorer"
	"github.com/rohmanhakim/pagefrontier/pkg/pagehash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildChainGraph(t *testing.T) *pagedb.DB {
	t.Helper()
	db, err := pagedb.Open(t.TempDir(), pagedb.Options{Persist: false})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, cerr := db.Add(pagedb.Page{URL: "a", Links: []pagedb.LinkIn{{URL: "b"}}}, false)
	require.Nil(t, cerr)
	_, cerr = db.Add(pagedb.Page{URL: "b", Links: []pagedb.LinkIn{{URL: "c"}}}, false)
	require.Nil(t, cerr)
	_, cerr = db.Add(pagedb.Page{URL: "c"}, false)
	require.Nil(t, cerr)
	return db
}

func TestPageRankScorer_AddThenUpdateChangesScore(t *testing.T) {
	db := buildChainGraph(t)
	s, err := scorer.NewPageRankScorer(db, pagerank.Options{Damping: 0.85, Precision: 1e-6, MaxLoops: 200})
	require.NoError(t, err)
	defer s.Close()

	info, found, cerr := db.GetInfo(uint64(pagehash.Of("a")))
	require.Nil(t, cerr)
	require.True(t, found)
	assert.Equal(t, float32(0), s.Add(info))

	require.Nil(t, s.Update())

	id, found, cerr := db.GetIdx(uint64(pagehash.Of("c")))
	require.Nil(t, cerr)
	require.True(t, found)

	oldScore, newScore := s.Get(id)
	assert.Equal(t, float32(0), oldScore)
	assert.Greater(t, newScore, float32(0))
}

func TestHitsScorer_AddThenUpdateChangesScore(t *testing.T) {
	db := buildChainGraph(t)
	s, err := scorer.NewHitsScorer(db, hits.Options{Precision: 1e-6, MaxLoops: 200})
	require.NoError(t, err)
	defer s.Close()

	require.Nil(t, s.Update())

	id, found, cerr := db.GetIdx(uint64(pagehash.Of("c")))
	require.Nil(t, cerr)
	require.True(t, found)

	_, newScore := s.Get(id)
	assert.GreaterOrEqual(t, newScore, float32(0))
}
