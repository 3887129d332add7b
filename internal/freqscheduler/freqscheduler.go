// Package freqscheduler implements FreqScheduler (§4.6): a re-crawl
// scheduler that dispatches known pages at a per-page target frequency
// estimated from their observed change history, rather than picking the
// single highest-scoring uncrawled page the way BFScheduler does.
package freqscheduler

import (
	"encoding/binary"
	"math"
	"path/filepath"
	"sync"

	"go.etcd.io/bbolt"

	"github.com/rohmanhakim/pagefrontier/internal/pagedb"
	"github.com/rohmanhakim/pagefrontier/internal/schedulekey"
	"github.com/rohmanhakim/pagefrontier/internal/txnmgr"
	"github.com/rohmanhakim/pagefrontier/pkg/failure"
)

var bucketSchedule = []byte("schedule")

// Options configures a FreqScheduler (§6.8).
type Options struct {
	Dir        string
	Persist    bool
	Margin     float64
	MaxNCrawls int // 0 disables the cap
}

// PageFreq is one (hash, target frequency) bulk-seed entry for LoadMmap.
type PageFreq struct {
	Hash uint64
	Freq float32
}

// FreqScheduler is the re-crawl scheduler of §4.6. PageDB is owned by the
// caller; FreqScheduler holds a non-owning reference (§5 "Ownership").
type FreqScheduler struct {
	db  *pagedb.DB
	txn *txnmgr.TxnMgr
	opts Options

	mu     sync.Mutex
	seeded map[uint64]bool // hashes inserted via LoadMmap, skipped by LoadSimple
}

// Open opens (creating if absent) a FreqScheduler's schedule table rooted
// at opts.Dir (§3.S1).
func Open(db *pagedb.DB, opts Options) (*FreqScheduler, error) {
	path := filepath.Join(opts.Dir, "freq_schedule.bolt")
	tm, err := txnmgr.Open(path, opts.Persist)
	if err != nil {
		return nil, err
	}
	if err := tm.CreateBuckets(bucketSchedule); err != nil {
		return nil, err
	}
	return &FreqScheduler{db: db, txn: tm, opts: opts, seeded: make(map[uint64]bool)}, nil
}

func encodeFreq(v float32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
	return b
}

func decodeFreq(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

// changeRate implements §4.S1's `freq_algo_rate` helper: the observed
// rate of content change per unit time, undefined (ok=false) when the
// page has only ever been seen at a single instant.
func changeRate(pi pagedb.PageInfo) (rate float64, ok bool) {
	denom := pi.LastCrawl - pi.FirstCrawl
	if denom <= 0 {
		return 0, false
	}
	return float64(pi.NChanges) / denom, true
}

// LoadSimple implements §4.6 `load_simple(freq_default, freq_scale)`.
func (s *FreqScheduler) LoadSimple(freqDefault, freqScale float32) failure.ClassifiedError {
	stream, cerr := s.db.NewHashInfoStream()
	if cerr != nil {
		return cerr
	}
	defer stream.Close()

	return s.txn.Update(func(tx *bbolt.Tx) failure.ClassifiedError {
		b := tx.Bucket(bucketSchedule)

		entry, ok, cerr := stream.First()
		for cerr == nil && ok {
			pi := entry.Info
			withinCap := s.opts.MaxNCrawls == 0 || pi.NCrawls < uint64(s.opts.MaxNCrawls)

			s.mu.Lock()
			isSeed := s.seeded[entry.Hash]
			s.mu.Unlock()

			if pi.NCrawls >= 1 && withinCap && !isSeed {
				var freq float32
				if rate, rok := changeRate(pi); rok && rate > 0 {
					freq = freqScale * float32(rate)
				} else {
					freq = freqDefault
				}
				if freq > 0 {
					key, kerr := schedulekey.Encode(0, entry.Hash)
					if kerr != nil {
						return kerr
					}
					if err := b.Put(key, encodeFreq(freq)); err != nil {
						return failure.New(failure.KindInternal, failure.SeverityFatal, "freqscheduler: load_simple: put: "+err.Error())
					}
				}
			}

			entry, ok, cerr = stream.Next()
		}
		return cerr
	})
}

// LoadMmap implements §4.6 `load_mmap(PageFreq[])`: bulk-seed the
// schedule, remembering every seeded hash so a later LoadSimple does not
// overwrite its explicit frequency.
func (s *FreqScheduler) LoadMmap(entries []PageFreq) failure.ClassifiedError {
	return s.txn.Update(func(tx *bbolt.Tx) failure.ClassifiedError {
		b := tx.Bucket(bucketSchedule)
		for _, e := range entries {
			s.mu.Lock()
			s.seeded[e.Hash] = true
			s.mu.Unlock()

			if e.Freq <= 0 {
				continue
			}
			key, kerr := schedulekey.Encode(1/e.Freq, e.Hash)
			if kerr != nil {
				return kerr
			}
			if err := b.Put(key, encodeFreq(e.Freq)); err != nil {
				return failure.New(failure.KindInternal, failure.SeverityFatal, "freqscheduler: load_mmap: put: "+err.Error())
			}
		}
		return nil
	})
}

// Request implements §4.6 `request(n)`: now is the caller's current
// clock reading, in the same time unit PageInfo.LastCrawl uses.
func (s *FreqScheduler) Request(n int, now float64) ([]string, failure.ClassifiedError) {
	var urls []string
	cerr := s.txn.Update(func(tx *bbolt.Tx) failure.ClassifiedError {
		urls = nil
		b := tx.Bucket(bucketSchedule)
		c := b.Cursor()

		count := 0
		k, v := c.First()
		for count < n && k != nil {
			key, hash := schedulekey.Decode(k)
			freq := decodeFreq(v)

			info, found, cerr := s.db.GetInfo(hash)
			if cerr != nil {
				return cerr
			}
			if !found {
				if err := c.Delete(); err != nil {
					return failure.New(failure.KindInternal, failure.SeverityFatal, "freqscheduler: request: delete missing page: "+err.Error())
				}
				k, v = c.First()
				continue
			}

			if s.opts.Margin >= 0 && freq > 0 {
				interval := 1 / (float64(freq) * (1 + s.opts.Margin))
				if (now - info.LastCrawl) < interval {
					break // the whole queue is not yet due
				}
			}

			if err := c.Delete(); err != nil {
				return failure.New(failure.KindInternal, failure.SeverityFatal, "freqscheduler: request: delete head: "+err.Error())
			}

			withinCap := s.opts.MaxNCrawls == 0 || info.NCrawls < uint64(s.opts.MaxNCrawls)
			if withinCap && freq > 0 {
				urls = append(urls, info.URL)
				newKey, kerr := schedulekey.Encode(key+1/freq, hash)
				if kerr != nil {
					return kerr
				}
				if err := b.Put(newKey, encodeFreq(freq)); err != nil {
					return failure.New(failure.KindInternal, failure.SeverityFatal, "freqscheduler: request: reinsert: "+err.Error())
				}
			}

			count++
			k, v = c.First()
		}
		return nil
	})
	return urls, cerr
}

// Add implements §4.6 `add(page)`: straight delegation to PageDB, no
// schedule mutation — re-crawl cadence is fixed by the seeding step.
func (s *FreqScheduler) Add(page pagedb.Page) failure.ClassifiedError {
	_, cerr := s.db.Add(page, false)
	return cerr
}

// DumpEntry is one row of the schedule table, as printed by the `freq
// dump` CLI command (§6.S1).
type DumpEntry struct {
	Hash uint64
	Key  float32 // virtual due-time component of the ScheduleKey
	Freq float32
}

// Dump returns every (hash, due-time, freq) row currently in the
// schedule table, in ascending due-time order, mirroring
// `lib/src/freq_scheduler_dump.c`.
func (s *FreqScheduler) Dump() ([]DumpEntry, failure.ClassifiedError) {
	var entries []DumpEntry
	cerr := s.txn.View(func(tx *bbolt.Tx) failure.ClassifiedError {
		c := tx.Bucket(bucketSchedule).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			key, hash := schedulekey.Decode(k)
			entries = append(entries, DumpEntry{Hash: hash, Key: key, Freq: decodeFreq(v)})
		}
		return nil
	})
	return entries, cerr
}

// Close releases the schedule table.
func (s *FreqScheduler) Close() error {
	return s.txn.Close()
}
