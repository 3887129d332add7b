// Package bfscheduler implements BFScheduler (§4.5): a best-first crawl
// queue backed by a `(score, hash)`-ordered ScheduleKey table, with a
// background goroutine that periodically re-scores the frontier through
// an attached Scorer and rewrites schedule keys in small batches so it
// never monopolizes the underlying store's single writer.
package bfscheduler

import (
	"path/filepath"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"github.com/rohmanhakim/pagefrontier/internal/pagedb"
	"github.com/rohmanhakim/pagefrontier/internal/schedulekey"
	"github.com/rohmanhakim/pagefrontier/internal/scorer"
	"github.com/rohmanhakim/pagefrontier/internal/txnmgr"
	"github.com/rohmanhakim/pagefrontier/pkg/failure"
	"github.com/rohmanhakim/pagefrontier/pkg/pagehash"
)

// State is the background updater's lifecycle (§4.5): None -> Working,
// Working -> Stopped, Stopped -> Finished. Start only leaves None, so a
// Stopped updater is not started again. Finished is terminal.
type State int

const (
	StateNone State = iota
	StateWorking
	StateStopped
	StateFinished
)

var bucketSchedule = []byte("schedule")

// Options configures a BFScheduler (§6.8).
type Options struct {
	Dir                    string
	Persist                bool
	MaxSoftDomainCrawlRate float32
	MaxHardDomainCrawlRate float32
	PagesThreshold         float64
	Fraction               float64
	UpdateBatchSize        int
	CrawlRateSteps         int
}

// BFScheduler is the best-first scheduler of §4.5. PageDB is owned by the
// caller; BFScheduler holds a non-owning reference, per §5 "Ownership".
type BFScheduler struct {
	db     *pagedb.DB
	txn    *txnmgr.TxnMgr
	scorer scorer.Scorer
	opts   Options

	mu             sync.Mutex
	cond           *sync.Cond
	state          State
	nPagesOld      uint64
	nPagesNew      uint64
	requestCounter int

	doneCh chan struct{}
}

// Open opens (creating if absent) a BFScheduler's schedule table rooted
// at opts.Dir, per §3.S1's "one file per persisted component" layout.
func Open(db *pagedb.DB, sc scorer.Scorer, opts Options) (*BFScheduler, error) {
	path := filepath.Join(opts.Dir, "bf_schedule.bolt")
	tm, err := txnmgr.Open(path, opts.Persist)
	if err != nil {
		return nil, err
	}
	if err := tm.CreateBuckets(bucketSchedule); err != nil {
		return nil, err
	}
	s := &BFScheduler{db: db, txn: tm, scorer: sc, opts: opts, state: StateNone}
	s.cond = sync.NewCond(&s.mu)
	return s, nil
}

// State reports the background updater's current lifecycle state.
func (s *BFScheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Add implements §4.5 `add(page)`: delegate to PageDB, then insert a
// ScheduleKey for every newly observed (never-crawled) page the add
// revealed.
func (s *BFScheduler) Add(page pagedb.Page) failure.ClassifiedError {
	deltas, cerr := s.db.Add(page, true)
	if cerr != nil {
		return cerr
	}

	var nNew int
	cerr = s.txn.Update(func(tx *bbolt.Tx) failure.ClassifiedError {
		b := tx.Bucket(bucketSchedule)
		nNew = 0
		for _, d := range deltas {
			if d.Info.NCrawls != 0 {
				continue // previously-seen pages are not re-inserted
			}
			key, kerr := schedulekey.Encode(-d.Info.Score, d.Hash)
			if kerr != nil {
				return kerr
			}
			if err := b.Put(key, nil); err != nil {
				return failure.New(failure.KindInternal, failure.SeverityFatal, "bfscheduler: add: write schedule key: "+err.Error())
			}
			nNew++
		}
		return nil
	})
	if cerr != nil {
		return cerr
	}

	s.mu.Lock()
	s.nPagesNew += uint64(nNew)
	s.mu.Unlock()
	s.cond.Signal()
	return nil
}

// crawlRateStep maps a domain's current crawl rate to a 1..CrawlRateSteps
// throttle step between the soft and hard ceilings: 1 at (or just above)
// the soft ceiling, CrawlRateSteps at the hard ceiling. §4.5 leaves the exact
// progressive-skip curve unspecified beyond "a step-count ... is used to
// progressively skip more batches"; this is a linear interpolation.
func (o Options) crawlRateStep(rate float32) int {
	span := o.MaxHardDomainCrawlRate - o.MaxSoftDomainCrawlRate
	if span <= 0 {
		return o.CrawlRateSteps
	}
	frac := (rate - o.MaxSoftDomainCrawlRate) / span
	step := int(frac * float32(o.CrawlRateSteps))
	if step < 1 {
		step = 1
	}
	if step > o.CrawlRateSteps {
		step = o.CrawlRateSteps
	}
	return step
}

// Request implements §4.5 `request(n)`. now is the caller's current
// clock reading, in the same time unit DomainTemp's window uses
// (seconds); it drives the domain crawl-rate cool-down (§4.3.2) so a
// domain's temperature can fall back below the hard ceiling once it has
// gone idle, not just rise on every dispatch.
func (s *BFScheduler) Request(n int, now float64) ([]string, failure.ClassifiedError) {
	s.mu.Lock()
	s.requestCounter++
	counter := s.requestCounter
	s.mu.Unlock()

	s.db.UpdateDomainTemp(now)

	var urls []string
	cerr := s.txn.Update(func(tx *bbolt.Tx) failure.ClassifiedError {
		urls = nil
		b := tx.Bucket(bucketSchedule)
		c := b.Cursor()

		count := 0
		k, _ := c.First()
		for count < n && k != nil {
			_, hash := schedulekey.Decode(k)

			info, found, cerr := s.db.GetInfo(hash)
			if cerr != nil {
				return cerr
			}
			if !found || info.NCrawls > 0 {
				kc := append([]byte(nil), k...)
				if err := c.Delete(); err != nil {
					return failure.New(failure.KindInternal, failure.SeverityFatal, "bfscheduler: request: delete stale key: "+err.Error())
				}
				k, _ = c.Seek(kc)
				continue
			}

			dh := pagehash.Hash(hash).DomainHash()
			rate := s.db.DomainCrawlRate(dh)

			if rate > s.opts.MaxHardDomainCrawlRate {
				kc := append([]byte(nil), k...)
				if err := c.Delete(); err != nil {
					return failure.New(failure.KindInternal, failure.SeverityFatal, "bfscheduler: request: drop over-hard entry: "+err.Error())
				}
				k, _ = c.Seek(kc)
				continue
			}

			if rate > s.opts.MaxSoftDomainCrawlRate {
				step := s.opts.crawlRateStep(rate)
				if s.opts.CrawlRateSteps > 0 && counter%s.opts.CrawlRateSteps < step {
					k, _ = c.Next()
					continue
				}
			}

			kc := append([]byte(nil), k...)
			if err := c.Delete(); err != nil {
				return failure.New(failure.KindInternal, failure.SeverityFatal, "bfscheduler: request: delete accepted key: "+err.Error())
			}
			urls = append(urls, info.URL)
			s.db.HeatDomain(dh)
			count++
			k, _ = c.Seek(kc)
		}
		return nil
	})
	return urls, cerr
}

// pagesThreshold computes the current trigger threshold for the
// background updater: max(PAGES_THRESHOLD, FRACTION * n_pages_old).
func (s *BFScheduler) pagesThreshold() uint64 {
	t := s.opts.PagesThreshold
	f := s.opts.Fraction * float64(s.nPagesOld)
	if f > t {
		t = f
	}
	if t < 0 {
		t = 0
	}
	return uint64(t)
}

// Start launches the background update thread if it has never run
// (state None). A no-op if already started.
func (s *BFScheduler) Start() {
	s.mu.Lock()
	if s.state != StateNone {
		s.mu.Unlock()
		return
	}
	s.state = StateWorking
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.run()
}

func (s *BFScheduler) run() {
	defer close(s.doneCh)

	for {
		s.mu.Lock()
		for s.state == StateWorking && (s.nPagesNew-s.nPagesOld) < s.pagesThreshold() {
			s.cond.Wait()
		}
		stopping := s.state == StateStopped
		s.mu.Unlock()
		if stopping {
			break
		}

		s.db.UpdateDomainTemp(float64(time.Now().Unix()))
		_ = s.scorer.Update() // a precision-not-reached warning is non-fatal (§4.3.3 step 6)
		_ = s.rewriteBatches()

		s.mu.Lock()
		s.nPagesOld = s.nPagesNew
		done := s.state == StateStopped
		s.mu.Unlock()
		if done {
			break
		}
	}

	s.mu.Lock()
	s.state = StateFinished
	s.mu.Unlock()
}

// rewriteBatches walks HashIdxStream in fixed-size batches (§4.5 step 3).
func (s *BFScheduler) rewriteBatches() failure.ClassifiedError {
	stream, cerr := s.db.NewHashIdxStream()
	if cerr != nil {
		return cerr
	}
	defer stream.Close()

	batchSize := s.opts.UpdateBatchSize
	if batchSize < 1 {
		batchSize = 1
	}

	batch := make([]pagedb.HashIdxEntry, 0, batchSize)
	entry, ok := stream.First()
	for ok {
		batch = append(batch, entry)
		if len(batch) >= batchSize {
			if cerr := s.rewriteBatch(batch); cerr != nil {
				return cerr
			}
			batch = batch[:0]
		}
		entry, ok = stream.Next()
	}
	if len(batch) > 0 {
		if cerr := s.rewriteBatch(batch); cerr != nil {
			return cerr
		}
	}
	return nil
}

func (s *BFScheduler) rewriteBatch(batch []pagedb.HashIdxEntry) failure.ClassifiedError {
	return s.txn.Update(func(tx *bbolt.Tx) failure.ClassifiedError {
		b := tx.Bucket(bucketSchedule)
		for _, e := range batch {
			info, found, cerr := s.db.GetInfo(e.Hash)
			if cerr != nil {
				return cerr
			}
			if !found || info.NCrawls != 0 {
				continue
			}
			old, newScore := s.scorer.Get(e.ID)
			if old == newScore {
				continue
			}
			oldKey, kerr := schedulekey.Encode(-old, e.Hash)
			if kerr != nil {
				continue // a stale NaN-tainted key cannot have existed; nothing to delete
			}
			newKey, kerr := schedulekey.Encode(-newScore, e.Hash)
			if kerr != nil {
				return kerr
			}
			_ = b.Delete(oldKey)
			if err := b.Put(newKey, nil); err != nil {
				return failure.New(failure.KindInternal, failure.SeverityFatal, "bfscheduler: rewrite batch: put: "+err.Error())
			}
		}
		return nil
	})
}

// Reload implements the `bf reload` CLI command (§6.S1, mirroring
// `lib/src/bf_scheduler_reload.c`): rebuild the schedule bucket from
// scratch by streaming hash2info and inserting a ScheduleKey for every
// still-uncrawled page, discarding whatever the bucket previously held.
func (s *BFScheduler) Reload() failure.ClassifiedError {
	stream, cerr := s.db.NewHashInfoStream()
	if cerr != nil {
		return cerr
	}
	defer stream.Close()

	return s.txn.Update(func(tx *bbolt.Tx) failure.ClassifiedError {
		if err := tx.DeleteBucket(bucketSchedule); err != nil && err != bbolt.ErrBucketNotFound {
			return failure.New(failure.KindInternal, failure.SeverityFatal, "bfscheduler: reload: clear schedule: "+err.Error())
		}
		b, err := tx.CreateBucket(bucketSchedule)
		if err != nil {
			return failure.New(failure.KindInternal, failure.SeverityFatal, "bfscheduler: reload: recreate schedule: "+err.Error())
		}

		entry, ok, cerr := stream.First()
		for cerr == nil && ok {
			if entry.Info.NCrawls == 0 {
				key, kerr := schedulekey.Encode(-entry.Info.Score, entry.Hash)
				if kerr != nil {
					return kerr
				}
				if err := b.Put(key, nil); err != nil {
					return failure.New(failure.KindInternal, failure.SeverityFatal, "bfscheduler: reload: put: "+err.Error())
				}
			}
			entry, ok, cerr = stream.Next()
		}
		return cerr
	})
}

// Stop cooperatively signals the background updater to finish its
// current batch and transition to Finished (§4.5).
func (s *BFScheduler) Stop() {
	s.mu.Lock()
	if s.state == StateWorking {
		s.state = StateStopped
	}
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Wait blocks until the background updater has reached Finished. A no-op
// if Start was never called.
func (s *BFScheduler) Wait() {
	s.mu.Lock()
	ch := s.doneCh
	s.mu.Unlock()
	if ch != nil {
		<-ch
	}
}

// Close stops the background updater (if running) and releases the
// schedule table.
func (s *BFScheduler) Close() error {
	s.Stop()
	s.Wait()
	return s.txn.Close()
}
