// Package scorer implements the Scorer abstraction of §4.4: a capability
// set {add, update, get} exposed behind one interface so both schedulers
// can hold a link-analysis algorithm without knowing which one (§9,
// "Scorer polymorphism").
package scorer

import (
	"sync"

	"github.com/rohmanhakim/pagefrontier/internal/hits"
	"github.com/rohmanhakim/pagefrontier/internal/pagedb"
	"github.com/rohmanhakim/pagefrontier/internal/pagerank"
	"github.com/rohmanhakim/pagefrontier/pkg/failure"
)

// Scorer is the capability set §4.4 names. add offers a freshly observed
// PageInfo and returns its baseline score; update runs a full re-scoring
// pass; get returns the previous and current score for a page id.
type Scorer interface {
	Add(info pagedb.PageInfo) float32
	Update() failure.ClassifiedError
	Get(id uint64) (scoreOld, scoreNew float32)
}

// PageRankScorer adapts a pagerank.PageRank to the Scorer interface.
type PageRankScorer struct {
	mu   sync.Mutex
	pr   *pagerank.PageRank
	prev map[uint64]float32
}

// NewPageRankScorer constructs a Scorer backed by PageRank.
func NewPageRankScorer(db *pagedb.DB, opts pagerank.Options) (*PageRankScorer, error) {
	pr, err := pagerank.New(db, opts)
	if err != nil {
		return nil, err
	}
	return &PageRankScorer{pr: pr, prev: make(map[uint64]float32)}, nil
}

// Add returns PageRank's baseline score (0) for a freshly observed page;
// the vector slot is populated lazily on the next Update.
func (s *PageRankScorer) Add(pagedb.PageInfo) float32 {
	return 0
}

// Update snapshots every currently-tracked id's score as "old", runs a
// full power-iteration pass, then exposes the refreshed values as "new".
// A KindPrecision error is returned (but the snapshot still advances) if
// the loop budget was exhausted without converging.
func (s *PageRankScorer) Update() failure.ClassifiedError {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.pr.Len()
	prev := make(map[uint64]float32, n)
	for i := 0; i < n; i++ {
		v, _ := s.pr.Score(uint64(i))
		prev[uint64(i)] = v
	}

	cerr := s.pr.Run()
	s.prev = prev
	return cerr
}

// Get returns the score id held before the last Update and its current
// value.
func (s *PageRankScorer) Get(id uint64) (float32, float32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.prev[id]
	newV, _ := s.pr.Score(id)
	return old, newV
}

// Close releases the underlying PageRank MArrs.
func (s *PageRankScorer) Close() error {
	return s.pr.Close()
}

// HitsScorer adapts a hits.HITS to the Scorer interface, exposing the
// authority score as the page's importance signal (§9, "Scorer
// polymorphism" names HITS as an interchangeable PageRank alternative;
// authority, not hub, is the score a crawler scheduler cares about since
// it measures how much a page is pointed to).
type HitsScorer struct {
	mu   sync.Mutex
	h    *hits.HITS
	prev map[uint64]float32
}

// NewHitsScorer constructs a Scorer backed by HITS.
func NewHitsScorer(db *pagedb.DB, opts hits.Options) (*HitsScorer, error) {
	h, err := hits.New(db, opts)
	if err != nil {
		return nil, err
	}
	return &HitsScorer{h: h, prev: make(map[uint64]float32)}, nil
}

// Add returns HITS's baseline score (0) for a freshly observed page.
func (s *HitsScorer) Add(pagedb.PageInfo) float32 {
	return 0
}

// Update snapshots every currently-tracked id's authority score as "old",
// runs a full Kleinberg-iteration pass, then exposes the refreshed values
// as "new".
func (s *HitsScorer) Update() failure.ClassifiedError {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.h.Len()
	prev := make(map[uint64]float32, n)
	for i := 0; i < n; i++ {
		v, _ := s.h.Authority(uint64(i))
		prev[uint64(i)] = v
	}

	cerr := s.h.Run()
	s.prev = prev
	return cerr
}

// Get returns the authority score id held before the last Update and its
// current value.
func (s *HitsScorer) Get(id uint64) (float32, float32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.prev[id]
	newV, _ := s.h.Authority(id)
	return old, newV
}

// Close releases the underlying HITS MArrs.
func (s *HitsScorer) Close() error {
	return s.h.Close()
}

var (
	_ Scorer = (*PageRankScorer)(nil)
	_ Scorer = (*HitsScorer)(nil)
)
