package bfscheduler_test

import (
	"sync"

	"github.com/rohmanhakim/pagefrontier/internal/pagedb"
	"github.com/rohmanhakim/pagefrontier/pkg/failure"
)

// fakeScorer is a deterministic, in-memory Scorer double: Update() leaves
// every tracked score unchanged unless a test injects an override via
// SetScore, letting bfscheduler tests isolate queue/throttle behavior
// from the real link-analysis algorithms.
type fakeScorer struct {
	mu        sync.Mutex
	overrides map[uint64]float32
	updates   int
}

func newFakeScorer() *fakeScorer {
	return &fakeScorer{overrides: make(map[uint64]float32)}
}

func (f *fakeScorer) Add(pagedb.PageInfo) float32 {
	return 0
}

func (f *fakeScorer) Update() failure.ClassifiedError {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	return nil
}

func (f *fakeScorer) SetScore(id uint64, score float32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrides[id] = score
}

func (f *fakeScorer) Get(id uint64) (float32, float32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return 0, f.overrides[id]
}

func (f *fakeScorer) Updates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates
}
