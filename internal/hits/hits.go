// Package hits implements the streaming Kleinberg iteration of §4.3.4:
// hub and authority scores over PageDB's link graph, refreshed the same
// way PageRank is — by re-streaming edges rather than holding the graph
// in memory.
package hits

import (
	"path/filepath"

	"github.com/rohmanhakim/pagefrontier/internal/marr"
	"github.com/rohmanhakim/pagefrontier/internal/pagedb"
	"github.com/rohmanhakim/pagefrontier/pkg/failure"
)

// Options configures a HITS instance (§6.8).
type Options struct {
	Dir              string
	Persist          bool
	Precision        float32
	MaxLoops         int
	UseContentScores bool
}

// HITS holds the four MArr<f32> vectors §4.3.4 names: h1/h2 (hub scores,
// current/next) and a1/a2 (authority scores, current/next).
type HITS struct {
	db *pagedb.DB

	h1, h2 *marr.Float32
	a1, a2 *marr.Float32
	scores *marr.Float32

	opts Options

	initialized bool
}

func arrPath(dir, name string) string {
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, name+".marr")
}

// New opens (or creates) a HITS instance sized to PageDB's current page
// count; its vectors grow on demand as new pages are observed.
func New(db *pagedb.DB, opts Options) (*HITS, error) {
	n, cerr := db.NPages()
	if cerr != nil {
		return nil, cerr
	}
	capacity := int(n)
	if capacity < 1 {
		capacity = 1
	}

	h1, err := marr.OpenFloat32(arrPath(opts.Dir, "hits_h1"), capacity, opts.Persist)
	if err != nil {
		return nil, err
	}
	h2, err := marr.OpenFloat32(arrPath(opts.Dir, "hits_h2"), capacity, opts.Persist)
	if err != nil {
		return nil, err
	}
	a1, err := marr.OpenFloat32(arrPath(opts.Dir, "hits_a1"), capacity, opts.Persist)
	if err != nil {
		return nil, err
	}
	a2, err := marr.OpenFloat32(arrPath(opts.Dir, "hits_a2"), capacity, opts.Persist)
	if err != nil {
		return nil, err
	}
	var scores *marr.Float32
	if opts.UseContentScores {
		scores, err = marr.OpenFloat32(arrPath(opts.Dir, "hits_content"), capacity, opts.Persist)
		if err != nil {
			return nil, err
		}
	}

	return &HITS{db: db, h1: h1, h2: h2, a1: a1, a2: a2, scores: scores, opts: opts}, nil
}

// Close releases every backing MArr.
func (h *HITS) Close() error {
	for _, a := range []*marr.Float32{h.h1, h.h2, h.a1, h.a2, h.scores} {
		if a == nil {
			continue
		}
		if err := a.Close(); err != nil {
			return err
		}
	}
	return nil
}

// Len reports the current element capacity of the score vectors.
func (h *HITS) Len() int {
	return h.h1.Len()
}

// Hub returns page id's current hub score.
func (h *HITS) Hub(id uint64) (float32, error) {
	if int(id) >= h.h1.Len() {
		return 0, nil
	}
	return h.h1.Get(int(id))
}

// Authority returns page id's current authority score.
func (h *HITS) Authority(id uint64) (float32, error) {
	if int(id) >= h.a1.Len() {
		return 0, nil
	}
	return h.a1.Get(int(id))
}

func (h *HITS) ensureCapacity(i int) error {
	for _, a := range []*marr.Float32{h.h1, h.h2, h.a1, h.a2} {
		if err := a.EnsureLen(i); err != nil {
			return err
		}
	}
	if h.scores != nil {
		if err := h.scores.EnsureLen(i); err != nil {
			return err
		}
	}
	return nil
}

// initialize seeds h1[i]=a1[i]=1/N (§4.3.4).
func (h *HITS) initialize() failure.ClassifiedError {
	if h.initialized {
		return nil
	}
	n := h.h1.Len()
	uniform := float32(0)
	if n > 0 {
		uniform = 1 / float32(n)
	}
	for i := 0; i < n; i++ {
		if err := h.h1.Set(i, uniform); err != nil {
			return failure.Wrap("hits: initialize: seed h1", err)
		}
		if err := h.a1.Set(i, uniform); err != nil {
			return failure.Wrap("hits: initialize: seed a1", err)
		}
	}
	h.initialized = true
	return nil
}

func (h *HITS) loadContentScores() failure.ClassifiedError {
	if h.scores == nil {
		return nil
	}
	raw, cerr := h.db.GetScores()
	if cerr != nil {
		return failure.Wrap("hits: load content scores", cerr)
	}
	n := h.scores.Len()
	for i := 0; i < n; i++ {
		var v float32
		if i < raw.Len() {
			var err error
			v, err = raw.Get(i)
			if err != nil {
				return failure.Wrap("hits: load content scores: read", err)
			}
		}
		if err := h.scores.Set(i, v); err != nil {
			return failure.Wrap("hits: load content scores: write", err)
		}
	}
	return nil
}

func normalize(a *marr.Float32) failure.ClassifiedError {
	var total float32
	for i := 0; i < a.Len(); i++ {
		v, err := a.Get(i)
		if err != nil {
			return failure.Wrap("hits: normalize: read", err)
		}
		total += v
	}
	if total <= 0 {
		return nil
	}
	for i := 0; i < a.Len(); i++ {
		v, err := a.Get(i)
		if err != nil {
			return failure.Wrap("hits: normalize: read", err)
		}
		if err := a.Set(i, v/total); err != nil {
			return failure.Wrap("hits: normalize: write", err)
		}
	}
	return nil
}

// Run executes Kleinberg iteration (§4.3.4) until delta < precision or
// MaxLoops is exhausted, returning a KindPrecision ClassifiedError on cap
// (callers may treat it as a warning), exactly as PageRank does.
func (h *HITS) Run() failure.ClassifiedError {
	if cerr := h.initialize(); cerr != nil {
		return cerr
	}

	n, cerr := h.db.NPages()
	if cerr != nil {
		return cerr
	}
	if err := h.ensureCapacity(int(n)); err != nil {
		return failure.Wrap("hits: run: grow", err)
	}
	if cerr := h.loadContentScores(); cerr != nil {
		return cerr
	}

	for loop := 0; loop < h.opts.MaxLoops; loop++ {
		h.h2.Zero()
		h.a2.Zero()

		stream, cerr := h.db.NewLinkStream()
		if cerr != nil {
			return failure.Wrap("hits: run: open link stream", cerr)
		}
		for {
			l, ok := stream.Next()
			if !ok {
				break
			}
			if int(l.From) >= h.h2.Len() || int(l.To) >= h.h2.Len() {
				continue
			}
			aTo, err := h.a1.Get(int(l.To))
			if err != nil {
				stream.Close()
				return failure.Wrap("hits: run: read a1", err)
			}
			if h.scores != nil {
				w, werr := h.scores.Get(int(l.To))
				if werr != nil {
					stream.Close()
					return failure.Wrap("hits: run: read content weight", werr)
				}
				aTo *= w
			}
			h2From, err := h.h2.Get(int(l.From))
			if err != nil {
				stream.Close()
				return failure.Wrap("hits: run: read h2", err)
			}
			if err := h.h2.Set(int(l.From), h2From+aTo); err != nil {
				stream.Close()
				return failure.Wrap("hits: run: write h2", err)
			}

			hFrom, err := h.h1.Get(int(l.From))
			if err != nil {
				stream.Close()
				return failure.Wrap("hits: run: read h1", err)
			}
			a2To, err := h.a2.Get(int(l.To))
			if err != nil {
				stream.Close()
				return failure.Wrap("hits: run: read a2", err)
			}
			if err := h.a2.Set(int(l.To), a2To+hFrom); err != nil {
				stream.Close()
				return failure.Wrap("hits: run: write a2", err)
			}
		}
		stream.Close()

		if cerr := normalize(h.h2); cerr != nil {
			return cerr
		}
		if cerr := normalize(h.a2); cerr != nil {
			return cerr
		}

		var delta float32
		for i := 0; i < h.h1.Len(); i++ {
			hv1, _ := h.h1.Get(i)
			hv2, _ := h.h2.Get(i)
			if d := abs32(hv2 - hv1); d > delta {
				delta = d
			}
			av1, _ := h.a1.Get(i)
			av2, _ := h.a2.Get(i)
			if d := abs32(av2 - av1); d > delta {
				delta = d
			}
		}

		h.h1, h.h2 = h.h2, h.h1
		h.a1, h.a2 = h.a2, h.a1

		if delta < h.opts.Precision {
			return nil
		}
	}

	return failure.New(failure.KindPrecision, failure.SeverityRecoverable, "hits: run: precision not reached within max_loops")
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
