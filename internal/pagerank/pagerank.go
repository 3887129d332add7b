// Package pagerank implements the streaming power iteration of §4.3.3: a
// PageRank scorer that never materializes the link graph in memory,
// instead re-streaming PageDB's link table once per iteration and folding
// dangling-node mass uniformly across every page (the Open Question
// decision recorded in SPEC_FULL.md).
package pagerank

import (
	"path/filepath"

	"github.com/rohmanhakim/pagefrontier/internal/marr"
	"github.com/rohmanhakim/pagefrontier/internal/pagedb"
	"github.com/rohmanhakim/pagefrontier/pkg/failure"
)

// Options configures a PageRank instance (§6.8).
type Options struct {
	// Dir selects where the four MArrs are file-backed (§3.S1); "" uses
	// anonymous, non-persistent mappings.
	Dir              string
	Persist          bool
	Damping          float32
	Precision        float32
	MaxLoops         int
	UseContentScores bool
}

// PageRank holds the four MArr<f32> vectors §4.3.3 names: out-degree, two
// alternating score buffers, and an optional content-score weight vector.
type PageRank struct {
	db *pagedb.DB

	outDegree *marr.Float32
	value1    *marr.Float32
	value2    *marr.Float32
	content   *marr.Float32

	opts Options

	initialized bool
}

func arrPath(dir, name string) string {
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, name+".marr")
}

// New opens (or creates) a PageRank instance sized to PageDB's current
// page count; its vectors grow on demand as new pages are observed.
func New(db *pagedb.DB, opts Options) (*PageRank, error) {
	n, cerr := db.NPages()
	if cerr != nil {
		return nil, cerr
	}
	capacity := int(n)
	if capacity < 1 {
		capacity = 1
	}

	outDegree, err := marr.OpenFloat32(arrPath(opts.Dir, "pr_out_degree"), capacity, opts.Persist)
	if err != nil {
		return nil, err
	}
	value1, err := marr.OpenFloat32(arrPath(opts.Dir, "pr_value1"), capacity, opts.Persist)
	if err != nil {
		return nil, err
	}
	value2, err := marr.OpenFloat32(arrPath(opts.Dir, "pr_value2"), capacity, opts.Persist)
	if err != nil {
		return nil, err
	}
	var content *marr.Float32
	if opts.UseContentScores {
		content, err = marr.OpenFloat32(arrPath(opts.Dir, "pr_content"), capacity, opts.Persist)
		if err != nil {
			return nil, err
		}
	}

	return &PageRank{
		db:        db,
		outDegree: outDegree,
		value1:    value1,
		value2:    value2,
		content:   content,
		opts:      opts,
	}, nil
}

// Close releases every backing MArr.
func (pr *PageRank) Close() error {
	for _, a := range []*marr.Float32{pr.outDegree, pr.value1, pr.value2, pr.content} {
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
func (pr *PageRank) Len() int {
	return pr.value1.Len()
}

// Score returns page id's current PageRank value, 0 if never assigned.
func (pr *PageRank) Score(id uint64) (float32, error) {
	if int(id) >= pr.value1.Len() {
		return 0, nil
	}
	v, err := pr.value1.Get(int(id))
	if err != nil {
		return 0, err
	}
	return v, nil
}

func (pr *PageRank) ensureCapacity(i int) error {
	for _, a := range []*marr.Float32{pr.outDegree, pr.value1, pr.value2} {
		if err := a.EnsureLen(i); err != nil {
			return err
		}
	}
	if pr.content != nil {
		if err := pr.content.EnsureLen(i); err != nil {
			return err
		}
	}
	return nil
}

// initialize consumes the link stream once to fill out_degree (§4.3.3,
// "On first run only") and seeds value1 to a uniform 1/n distribution.
func (pr *PageRank) initialize() failure.ClassifiedError {
	if pr.initialized {
		return nil
	}

	n := pr.value1.Len()
	uniform := float32(0)
	if n > 0 {
		uniform = 1 / float32(n)
	}
	for i := 0; i < n; i++ {
		if err := pr.value1.Set(i, uniform); err != nil {
			return failure.Wrap("pagerank: initialize: seed value1", err)
		}
	}

	stream, cerr := pr.db.NewLinkStream()
	if cerr != nil {
		return failure.Wrap("pagerank: initialize: open link stream", cerr)
	}
	defer stream.Close()

	for {
		l, ok := stream.Next()
		if !ok {
			break
		}
		if err := pr.ensureCapacity(int(l.From)); err != nil {
			return failure.Wrap("pagerank: initialize: grow", err)
		}
		if err := pr.ensureCapacity(int(l.To)); err != nil {
			return failure.Wrap("pagerank: initialize: grow", err)
		}
		d, err := pr.outDegree.Get(int(l.From))
		if err != nil {
			return failure.Wrap("pagerank: initialize: read out_degree", err)
		}
		if err := pr.outDegree.Set(int(l.From), d+1); err != nil {
			return failure.Wrap("pagerank: initialize: write out_degree", err)
		}
	}

	pr.initialized = true
	return nil
}

// loadContentScores normalizes the optional content-score vector to sum
// to 1 before use (§4.3.3 step 3), reading each page's PageDB score by id.
func (pr *PageRank) loadContentScores() failure.ClassifiedError {
	if pr.content == nil {
		return nil
	}
	scores, cerr := pr.db.GetScores()
	if cerr != nil {
		return failure.Wrap("pagerank: load content scores", cerr)
	}
	n := pr.content.Len()
	if scores.Len() < n {
		if err := pr.content.EnsureLen(scores.Len() - 1); err != nil {
			return failure.Wrap("pagerank: load content scores: grow", err)
		}
	}

	var total float32
	vals := make([]float32, n)
	for i := 0; i < n; i++ {
		var v float32
		if i < scores.Len() {
			sv, err := scores.Get(i)
			if err != nil {
				return failure.Wrap("pagerank: load content scores: read", err)
			}
			v = sv
		}
		vals[i] = v
		total += v
	}
	if total <= 0 {
		total = 1
	}
	for i := 0; i < n; i++ {
		if err := pr.content.Set(i, vals[i]/total); err != nil {
			return failure.Wrap("pagerank: load content scores: write", err)
		}
	}
	return nil
}

// Run executes power iteration (§4.3.3) until delta < precision or
// MaxLoops is exhausted. It returns a KindPrecision ClassifiedError (but
// leaves value1 holding the best iterate reached) when the loop budget is
// exhausted without converging — callers may treat this as a warning
// (§4.3.3 step 6).
func (pr *PageRank) Run() failure.ClassifiedError {
	if cerr := pr.initialize(); cerr != nil {
		return cerr
	}
	if cerr := pr.loadContentScores(); cerr != nil {
		return cerr
	}

	n, cerr := pr.db.NPages()
	if cerr != nil {
		return cerr
	}
	if err := pr.ensureCapacity(int(n)); err != nil {
		return failure.Wrap("pagerank: run: grow", err)
	}

	damping := pr.opts.Damping
	for loop := 0; loop < pr.opts.MaxLoops; loop++ {
		size := pr.value1.Len()

		var danglingMass float32
		for i := 0; i < size; i++ {
			od, err := pr.outDegree.Get(i)
			if err != nil {
				return failure.Wrap("pagerank: run: read out_degree", err)
			}
			v1, err := pr.value1.Get(i)
			if err != nil {
				return failure.Wrap("pagerank: run: read value1", err)
			}
			if od == 0 {
				danglingMass += v1
			} else {
				danglingMass += (1 - damping) * v1
			}
		}
		d := float32(0)
		if size > 0 {
			d = danglingMass / float32(size)
		}

		for i := 0; i < size; i++ {
			od, err := pr.outDegree.Get(i)
			if err != nil {
				return failure.Wrap("pagerank: run: read out_degree", err)
			}
			if od == 0 {
				continue
			}
			v1, err := pr.value1.Get(i)
			if err != nil {
				return failure.Wrap("pagerank: run: read value1", err)
			}
			if err := pr.value1.Set(i, v1*damping/od); err != nil {
				return failure.Wrap("pagerank: run: write value1", err)
			}
		}

		for i := 0; i < size; i++ {
			fill := d
			if pr.content != nil {
				cv, err := pr.content.Get(i)
				if err != nil {
					return failure.Wrap("pagerank: run: read content score", err)
				}
				fill = d * cv
			}
			if err := pr.value2.Set(i, fill); err != nil {
				return failure.Wrap("pagerank: run: seed value2", err)
			}
		}

		stream, cerr := pr.db.NewLinkStream()
		if cerr != nil {
			return failure.Wrap("pagerank: run: open link stream", cerr)
		}
		for {
			l, ok := stream.Next()
			if !ok {
				break
			}
			if int(l.From) >= size || int(l.To) >= size {
				continue
			}
			v1, err := pr.value1.Get(int(l.From))
			if err != nil {
				stream.Close()
				return failure.Wrap("pagerank: run: read value1 edge", err)
			}
			v2, err := pr.value2.Get(int(l.To))
			if err != nil {
				stream.Close()
				return failure.Wrap("pagerank: run: read value2 edge", err)
			}
			if err := pr.value2.Set(int(l.To), v2+v1); err != nil {
				stream.Close()
				return failure.Wrap("pagerank: run: write value2 edge", err)
			}
		}
		stream.Close()

		var delta float32
		for i := 0; i < size; i++ {
			v1, err := pr.value1.Get(i)
			if err != nil {
				return failure.Wrap("pagerank: run: read value1 delta", err)
			}
			// value1 was scaled by damping/out_degree above; undo that so
			// delta compares this iteration's ranks with the previous ones.
			od, err := pr.outDegree.Get(i)
			if err != nil {
				return failure.Wrap("pagerank: run: read out_degree delta", err)
			}
			if od != 0 && damping != 0 {
				v1 = v1 * od / damping
			}
			v2, err := pr.value2.Get(i)
			if err != nil {
				return failure.Wrap("pagerank: run: read value2 delta", err)
			}
			diff := v2 - v1
			if diff < 0 {
				diff = -diff
			}
			if diff > delta {
				delta = diff
			}
		}

		pr.value1, pr.value2 = pr.value2, pr.value1

		if delta < pr.opts.Precision {
			return nil
		}
	}

	return failure.New(failure.KindPrecision, failure.SeverityRecoverable, "pagerank: run: precision not reached within max_loops")
}
